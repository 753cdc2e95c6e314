// Package config loads and validates the three-document YAML bundle
// (defaults.yaml, experiments.yaml, kpis.yaml) into an immutable
// Configuration, matching the original needle implementation's document
// names and validation order exactly.
package config

import "time"

// UserClass controls which users are eligible for an experiment based on
// their signup date relative to the experiment's start date.
type UserClass string

const (
	UserClassExisting UserClass = "existing"
	UserClassNew      UserClass = "new"
	UserClassBoth     UserClass = "both"
)

// Branch is one variant of an experiment: a slice of traffic and the
// parameter overrides it applies on top of site defaults.
type Branch struct {
	Name       string         `yaml:"name" validate:"required"`
	Fraction   float64        `yaml:"fraction" validate:"gt=0,lte=1"`
	Parameters map[string]any `yaml:"parameters"`
}

// Tail narrows which of the two difference-probabilities (the test branch
// beating control, or trailing it) drives the conclude recommendation.
// LESS means a decrease in the KPI is the desired outcome, GREATER means
// an increase is, and BOTH treats either direction as a positive result.
type Tail string

const (
	TailLess    Tail = "less"
	TailGreater Tail = "greater"
	TailBoth    Tail = "both"
)

// Experiment is one declared A/B test: a site-area, an eligibility rule,
// a set of branches summing to at most 1.0, and the KPI it is judged on.
type Experiment struct {
	Name          string     `yaml:"name" validate:"required"`
	Description   string     `yaml:"description"`
	Confidence    float64    `yaml:"confidence" validate:"gte=0,lte=1"`
	SiteArea      string     `yaml:"site-area" validate:"required"`
	UserClass     UserClass  `yaml:"user-class" validate:"omitempty,oneof=existing new both"`
	StartDate     time.Time  `yaml:"start-date" validate:"required"`
	Branches      []Branch   `yaml:"branches" validate:"required,min=1,dive"`
	PrimaryKPI    string     `yaml:"kpi" validate:"required"`
	MinimumChange float64    `yaml:"minimum-change"`
	SecondaryKPIs []string   `yaml:"secondary-kpis"`
	Tail          Tail       `yaml:"tail" validate:"omitempty,oneof=less greater both"`
	ConcludedAt   *time.Time `yaml:"-"`
}

// IsConcluded reports whether this experiment has already been evaluated
// to a final result (a future extension point for recorded conclusions;
// the current reporting pipeline treats every in-progress experiment as
// re-evaluable on each run, matching the original implementation).
func (e *Experiment) IsConcluded() bool { return e.ConcludedAt != nil }

// IsInProgress reports whether the experiment has started (relative to
// asOf, normally time.Now()) and has not concluded.
func (e *Experiment) IsInProgress(asOf time.Time) bool {
	return !e.StartDate.After(asOf) && !e.IsConcluded()
}

// MetricKind selects which posterior estimator a KPI uses.
type MetricKind string

const (
	MetricBernoulli       MetricKind = "bernoulli"
	MetricMedianBootstrap MetricKind = "median_bootstrap"
)

// KPI is a named, queryable outcome measure: a SQL fragment producing raw
// samples and the metric model used to turn those samples into a
// posterior. Prior's meaning depends on Metric: for a bernoulli KPI it is
// read as the two-element [alpha, beta] Beta-prior; for a median_bootstrap
// KPI it is a variable-length sequence of seed samples concatenated into
// the resample pool ahead of observed samples.
type KPI struct {
	Name        string     `yaml:"name" validate:"required"`
	Description string     `yaml:"description"`
	Metric      MetricKind `yaml:"metric" validate:"required,oneof=bernoulli median_bootstrap"`
	Prior       []float64  `yaml:"prior"`
	SQL         string     `yaml:"sql" validate:"required"`
}

// Configuration is the fully loaded, validated, immutable set of defaults,
// experiments, and KPIs a running server evaluates against. Once returned
// by Loader.Load it is never mutated; a reload produces a new instance
// that atomically replaces the old one.
type Configuration struct {
	Defaults           map[string]any
	Experiments        []*Experiment
	KPIs               map[string]KPI
	ConnectionString   string
	GetUsersSQL        string
	siteAreas          []string
}

// SiteAreas returns the distinct site-areas declared across all
// experiments, in lexicographic order — the same order assign.Merge
// applies parameter overrides in, per the documented tie-break rule.
func (c *Configuration) SiteAreas() []string {
	return c.siteAreas
}

// UserSignup is one row from the analytics store's users query: a user
// identifier and the date they signed up.
type UserSignup struct {
	UserID     string
	SignupDate time.Time
}
