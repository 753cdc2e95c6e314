// Package evaluate computes, for one experiment, the per-branch posterior
// statistics and the probability that each treatment branch beats control
// by at least the experiment's minimum detectable change.
package evaluate

import (
	"context"
	"fmt"
	"iter"
	"math"
	"math/rand"
	"time"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/needle-ab/needle/internal/assign"
	"github.com/needle-ab/needle/internal/config"
	"github.com/needle-ab/needle/internal/stats"
)

// AnalyticsStore is everything the Evaluator needs from the analytics
// backend: the experiment's user population, and raw samples for a KPI
// restricted to a set of user IDs.
type AnalyticsStore interface {
	Users(ctx context.Context, query string) iter.Seq2[config.UserSignup, error]
	BernoulliSamples(ctx context.Context, query string, userIDs []string) (successes, trials int64, err error)
	RealSamples(ctx context.Context, query string, userIDs []string) ([]float64, error)
}

// BranchResult is one branch's fitted posterior and, for non-control
// branches, the two directional difference probabilities against
// control: ProbAbove (the branch beats control by at least the minimum
// change) and ProbBelow (the branch trails control by at least the
// minimum change). Which of the two counts as "success" depends on the
// experiment's Tail.
type BranchResult struct {
	Branch    string
	Posterior stats.Posterior
	ProbAbove float64
	ProbBelow float64
}

// KPIResult is the outcome of evaluating one KPI across every branch of
// an experiment.
type KPIResult struct {
	KPI         string
	Description string
	Model       config.MetricKind
	Branches    []BranchResult
}

// Result is the complete evaluation of one experiment: its primary KPI
// plus any secondary KPIs, and the recommendation derived from the
// primary KPI's probabilities against the experiment's confidence level.
type Result struct {
	Experiment     string
	StartDate      time.Time
	Primary        KPIResult
	Secondaries    []KPIResult
	Recommendation string // "conclude_positive", "conclude_negative", or "continue"
}

const (
	RecommendPositive = "conclude_positive"
	RecommendNegative = "conclude_negative"
	RecommendContinue = "continue"
)

// Evaluator runs the evaluation pipeline for one experiment against an
// AnalyticsStore, using the provided Configuration to determine branch
// membership via internal/assign.
type Evaluator struct {
	Store AnalyticsStore
	Now   func() time.Time
}

// NewEvaluator constructs an Evaluator against store, using time.Now for
// "is this experiment in progress" comparisons.
func NewEvaluator(store AnalyticsStore) *Evaluator {
	return &Evaluator{Store: store, Now: time.Now}
}

// Evaluate runs the full pipeline for one experiment: enumerate users,
// bucket them by branch, fit the primary (and any secondary) KPI's metric
// model per branch, and compute improvement probabilities against
// control.
func (e *Evaluator) Evaluate(ctx context.Context, cfg *config.Configuration, experiment *config.Experiment) (*Result, error) {
	var users []config.UserSignup
	for u, err := range e.Store.Users(ctx, cfg.GetUsersSQL) {
		if err != nil {
			return nil, fmt.Errorf("enumerating users: %w", err)
		}
		users = append(users, u)
	}

	branchUsers, err := assign.BranchUsers(cfg, experiment, users, e.Now())
	if err != nil {
		return nil, err
	}

	primaryKPI, ok := cfg.KPIs[experiment.PrimaryKPI]
	if !ok {
		return nil, fmt.Errorf("unknown primary kpi %q", experiment.PrimaryKPI)
	}

	primary, err := e.evaluateKPI(ctx, primaryKPI, branchUsers, experiment.MinimumChange)
	if err != nil {
		return nil, fmt.Errorf("evaluating primary kpi %q: %w", primaryKPI.Name, err)
	}

	var secondaries []KPIResult
	for _, name := range experiment.SecondaryKPIs {
		kpi, ok := cfg.KPIs[name]
		if !ok {
			return nil, fmt.Errorf("unknown secondary kpi %q", name)
		}
		res, err := e.evaluateKPI(ctx, kpi, branchUsers, experiment.MinimumChange)
		if err != nil {
			return nil, fmt.Errorf("evaluating secondary kpi %q: %w", kpi.Name, err)
		}
		secondaries = append(secondaries, *res)
	}

	return &Result{
		Experiment:     experiment.Name,
		StartDate:      experiment.StartDate,
		Primary:        *primary,
		Secondaries:    secondaries,
		Recommendation: recommend(*primary, experiment.Tail, experiment.Confidence),
	}, nil
}

func (e *Evaluator) evaluateKPI(ctx context.Context, kpi config.KPI, branchUsers map[string][]string, minimumChange float64) (*KPIResult, error) {
	result := KPIResult{KPI: kpi.Name, Description: kpi.Description, Model: kpi.Metric}

	branchModels := make(map[string]stats.MetricModel, len(branchUsers))
	for branch, userIDs := range branchUsers {
		model, err := e.fitModel(ctx, kpi, userIDs)
		if err != nil {
			return nil, fmt.Errorf("branch %q: %w", branch, err)
		}
		branchModels[branch] = model
	}

	control, ok := branchModels["control"]
	if !ok {
		return nil, fmt.Errorf("no control branch users for kpi %q", kpi.Name)
	}
	controlPosterior := control.Posterior()

	result.Branches = append(result.Branches, BranchResult{Branch: "control", Posterior: controlPosterior})

	for branch, model := range branchModels {
		if branch == "control" {
			continue
		}
		posterior := model.Posterior()
		probAbove, probBelow := differenceProbabilities(controlPosterior, posterior, minimumChange)
		result.Branches = append(result.Branches, BranchResult{
			Branch:    branch,
			Posterior: posterior,
			ProbAbove: probAbove,
			ProbBelow: probBelow,
		})
	}

	return &result, nil
}

func (e *Evaluator) fitModel(ctx context.Context, kpi config.KPI, userIDs []string) (stats.MetricModel, error) {
	switch kpi.Metric {
	case config.MetricBernoulli:
		successes, trials, err := e.Store.BernoulliSamples(ctx, kpi.SQL, userIDs)
		if err != nil {
			return nil, err
		}
		return stats.NewBernoulli(kpi.Prior[0], kpi.Prior[1], successes, trials), nil

	case config.MetricMedianBootstrap:
		samples, err := e.Store.RealSamples(ctx, kpi.SQL, userIDs)
		if err != nil {
			return nil, err
		}
		return stats.NewMedianBootstrap(kpi.Prior, samples, rand.New(rand.NewSource(time.Now().UnixNano()))), nil

	default:
		return nil, fmt.Errorf("unknown metric kind %q", kpi.Metric)
	}
}

// differenceProbabilities computes, under a Normal approximation to both
// branches' posteriors, the probability that the test branch beats
// control by at least minimumChange (probAbove) and the probability it
// trails control by at least minimumChange (probBelow). This mirrors the
// original implementation's difference_probabilities formula exactly.
func differenceProbabilities(control, test stats.Posterior, minimumChange float64) (probAbove, probBelow float64) {
	variance := control.Std*control.Std + test.Std*test.Std
	if variance <= 0 {
		return 0, 0
	}
	sigma := math.Sqrt(variance)

	norm := distuv.Normal{Mu: 0, Sigma: 1}

	diffAbove := test.Mean - (control.Mean + minimumChange)
	diffBelow := test.Mean - (control.Mean - minimumChange)

	probBelow = 1 - norm.CDF(diffBelow/sigma)
	probAbove = 1 - norm.CDF(-diffAbove/sigma)

	return probAbove, probBelow
}

// recommend derives conclude/continue from the primary KPI's branch
// probabilities against the experiment's confidence threshold. The tail
// selects which direction counts as success and which as failure, per
// the original implementation's generate_report.py: LESS takes
// probBelow as success and probAbove as failure, GREATER the reverse,
// and BOTH sums both directions into success with no failure direction.
func recommend(primary KPIResult, tail config.Tail, confidence float64) string {
	for _, b := range primary.Branches {
		if b.Branch == "control" {
			continue
		}

		var probSuccess, probFailure float64
		switch tail {
		case config.TailLess:
			probSuccess, probFailure = b.ProbBelow, b.ProbAbove
		case config.TailGreater:
			probSuccess, probFailure = b.ProbAbove, b.ProbBelow
		default:
			probSuccess, probFailure = b.ProbAbove+b.ProbBelow, 0
		}

		if probSuccess > confidence {
			return RecommendPositive
		}
		if probFailure > confidence {
			return RecommendNegative
		}
	}
	return RecommendContinue
}
