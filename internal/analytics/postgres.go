// Package analytics implements internal/evaluate's AnalyticsStore against
// PostgreSQL, opening one short-lived connection per report run rather
// than pooling across runs, since report runs are separated by the report
// interval (30 seconds by default) and a long-lived pool buys nothing here.
package analytics

import (
	"context"
	"database/sql"
	"fmt"
	"iter"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/needle-ab/needle/internal/config"
)

// Store is a PostgreSQL-backed AnalyticsStore. Each report run opens a
// fresh Store against the configuration's connection string and closes it
// when the run completes.
type Store struct {
	db *sqlx.DB
}

// Open connects to the database named by dsn (the connection string from
// kpis.yaml). Callers must Close the returned Store when the report run
// finishes.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening analytics store: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging analytics store: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Users runs the configured get-users query and lazily yields each row as
// a config.UserSignup. The query must return exactly two columns: a user
// identifier and a signup date.
func (s *Store) Users(ctx context.Context, query string) iter.Seq2[config.UserSignup, error] {
	return func(yield func(config.UserSignup, error) bool) {
		rows, err := s.db.QueryContext(ctx, query)
		if err != nil {
			yield(config.UserSignup{}, fmt.Errorf("running users query: %w", err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			var u config.UserSignup
			if err := rows.Scan(&u.UserID, &u.SignupDate); err != nil {
				yield(config.UserSignup{}, fmt.Errorf("scanning user row: %w", err))
				return
			}
			if !yield(u, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(config.UserSignup{}, err)
		}
	}
}

// BernoulliSamples wraps query in a counting subquery, matching the
// original implementation's compound SQL, and binds userIDs as a
// variable-length IN (...) clause via sqlx.In.
func (s *Store) BernoulliSamples(ctx context.Context, query string, userIDs []string) (successes, trials int64, err error) {
	if len(userIDs) == 0 {
		return 0, 0, nil
	}

	compound := fmt.Sprintf(`
		SELECT
			COALESCE(SUM(sample::int), 0) AS successes,
			COUNT(*) AS trials
		FROM (%s) AS sq(sample, user_id)
		WHERE user_id IN (?)
	`, query)

	boundQuery, args, err := sqlx.In(compound, userIDs)
	if err != nil {
		return 0, 0, fmt.Errorf("binding user ids: %w", err)
	}
	boundQuery = s.db.Rebind(boundQuery)

	row := s.db.QueryRowContext(ctx, boundQuery, args...)
	if err := row.Scan(&successes, &trials); err != nil {
		return 0, 0, fmt.Errorf("scanning bernoulli samples: %w", err)
	}

	return successes, trials, nil
}

// RealSamples wraps query to restrict it to userIDs and returns every raw
// value, used as the bootstrap resample pool for MedianBootstrap KPIs.
func (s *Store) RealSamples(ctx context.Context, query string, userIDs []string) ([]float64, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}

	compound := fmt.Sprintf(`
		SELECT sample
		FROM (%s) AS sq(sample, user_id)
		WHERE user_id IN (?)
	`, query)

	boundQuery, args, err := sqlx.In(compound, userIDs)
	if err != nil {
		return nil, fmt.Errorf("binding user ids: %w", err)
	}
	boundQuery = s.db.Rebind(boundQuery)

	rows, err := s.db.QueryContext(ctx, boundQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("running kpi query: %w", err)
	}
	defer rows.Close()

	var samples []float64
	for rows.Next() {
		var v sql.NullFloat64
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scanning sample: %w", err)
		}
		if v.Valid {
			samples = append(samples, v.Float64)
		}
	}

	return samples, rows.Err()
}
