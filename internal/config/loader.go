package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/go-playground/validator/v10"

	"github.com/needle-ab/needle/internal"
	"github.com/needle-ab/needle/internal/errs"
)

// Loader reads a configuration directory and produces a validated
// Configuration. It is stateless and safe to call from multiple goroutines
// (each call produces a fresh, independent Configuration).
type Loader struct {
	validate *validator.Validate
}

// NewLoader constructs a Loader.
func NewLoader() *Loader {
	return &Loader{validate: validator.New(validator.WithRequiredStructEnabled())}
}

// wire document shapes, matching defaults.yaml / experiments.yaml / kpis.yaml

type experimentsDoc struct {
	Experiments []Experiment `yaml:"experiments" validate:"dive"`
}

type kpisDoc struct {
	KPIs       map[string]rawKPI `yaml:"kpis"`
	Connection string            `yaml:"connection" validate:"required"`
	GetUsers   string            `yaml:"get-users" validate:"required"`
}

type rawKPI struct {
	Name        string     `yaml:"name" validate:"required"`
	Description string     `yaml:"description"`
	Metric      MetricKind `yaml:"metric" validate:"required,oneof=bernoulli median_bootstrap"`
	Prior       []float64  `yaml:"prior"`
	SQL         string     `yaml:"sql" validate:"required"`
}

// superunityTolerance absorbs floating-point rounding in a legitimately
// full-coverage branch/site-area split, matching spec.md's 1e-9 margin.
const superunityTolerance = 1e-9

// Load parses defaults.yaml, experiments.yaml, and kpis.yaml from dir, in
// that order, and validates the result. This mirrors the original needle
// implementation's Configuration.__init__ sequence exactly: defaults,
// then experiments (each checked for a control branch and non-superunity
// own-branch coverage), then KPIs. The cross-reference check (every
// referenced KPI name exists) necessarily runs after KPIs are parsed, but
// is still a load-time failure, never deferred to evaluation.
func (l *Loader) Load(dir string) (*Configuration, error) {
	defaults, err := loadYAML[map[string]any](dir, "defaults.yaml")
	if err != nil {
		return nil, errs.ConfigurationError(err)
	}

	expDoc, err := loadYAML[experimentsDoc](dir, "experiments.yaml")
	if err != nil {
		return nil, errs.ConfigurationError(err)
	}

	experiments := make([]*Experiment, 0, len(expDoc.Experiments))
	siteAreaSet := make(map[string]struct{})

	for i := range expDoc.Experiments {
		e := expDoc.Experiments[i]

		if err := l.validate.Struct(&e); err != nil {
			return nil, errs.ConfigurationError(fmt.Errorf("experiment %q: %w", e.Name, err))
		}

		if e.UserClass == "" {
			e.UserClass = UserClassBoth
		}
		if e.Confidence == 0 {
			e.Confidence = 0.95
		}
		if e.Tail == "" {
			e.Tail = TailBoth
		}

		if err := validateBranches(e.Branches); err != nil {
			return nil, errs.ConfigurationError(fmt.Errorf("experiment %q: %w", e.Name, err))
		}

		if sumFractions(e.Branches) > 1+superunityTolerance {
			return nil, errs.ConfigurationError(fmt.Errorf("experiment %q defines superunity coverage", e.Name))
		}

		siteAreaSet[e.SiteArea] = struct{}{}
		experiments = append(experiments, &e)
	}

	kpiDoc, err := loadYAML[kpisDoc](dir, "kpis.yaml")
	if err != nil {
		return nil, errs.ConfigurationError(err)
	}
	if err := l.validate.Struct(&kpiDoc); err != nil {
		return nil, errs.ConfigurationError(err)
	}

	kpis := make(map[string]KPI, len(kpiDoc.KPIs))
	for name, raw := range kpiDoc.KPIs {
		if err := l.validate.Struct(&raw); err != nil {
			return nil, errs.ConfigurationError(fmt.Errorf("kpi %q: %w", name, err))
		}
		if raw.Metric == MetricBernoulli && len(raw.Prior) != 2 {
			return nil, errs.ConfigurationError(fmt.Errorf("kpi %q: bernoulli prior must have exactly 2 elements, got %d", name, len(raw.Prior)))
		}
		kpis[name] = KPI{
			Name:        internal.Or(raw.Name, name),
			Description: raw.Description,
			Metric:      raw.Metric,
			Prior:       raw.Prior,
			SQL:         raw.SQL,
		}
	}

	for _, e := range experiments {
		if _, ok := kpis[e.PrimaryKPI]; !ok {
			return nil, errs.ConfigurationError(fmt.Errorf("experiment %q: unknown primary kpi %q", e.Name, e.PrimaryKPI))
		}
		for _, name := range e.SecondaryKPIs {
			if _, ok := kpis[name]; !ok {
				return nil, errs.ConfigurationError(fmt.Errorf("experiment %q: unknown secondary kpi %q", e.Name, name))
			}
		}
	}

	siteAreas := make([]string, 0, len(siteAreaSet))
	for sa := range siteAreaSet {
		siteAreas = append(siteAreas, sa)
	}
	sort.Strings(siteAreas)

	return &Configuration{
		Defaults:         defaults,
		Experiments:      experiments,
		KPIs:             kpis,
		ConnectionString: kpiDoc.Connection,
		GetUsersSQL:      kpiDoc.GetUsers,
		siteAreas:        siteAreas,
	}, nil
}

// validateBranches enforces that branch names are unique within an
// experiment and that exactly one branch is named "control".
func validateBranches(branches []Branch) error {
	seen := make(map[string]struct{}, len(branches))
	controlCount := 0
	for _, b := range branches {
		if _, dup := seen[b.Name]; dup {
			return fmt.Errorf("duplicate branch name %q", b.Name)
		}
		seen[b.Name] = struct{}{}
		if b.Name == "control" {
			controlCount++
		}
	}
	if controlCount != 1 {
		return fmt.Errorf("defines %d control branches, want exactly 1", controlCount)
	}
	return nil
}

func sumFractions(branches []Branch) float64 {
	var sum float64
	for _, b := range branches {
		sum += b.Fraction
	}
	return sum
}

func loadYAML[T any](dir, filename string) (T, error) {
	var zero T

	b, err := os.ReadFile(filepath.Join(dir, filename))
	if err != nil {
		return zero, fmt.Errorf("could not load %s: %w", filename, err)
	}

	v, err := internal.UnmarshalYAML[T](b)
	if err != nil {
		return zero, fmt.Errorf("could not parse %s: %w", filename, err)
	}

	return v, nil
}
