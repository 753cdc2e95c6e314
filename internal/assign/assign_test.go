package assign

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/needle-ab/needle/internal/config"
)

func mustDate(t *testing.T, s string) time.Time {
	t.Helper()
	tm, err := time.Parse("2006-01-02", s)
	require.NoError(t, err)
	return tm
}

func basicConfig(t *testing.T) *config.Configuration {
	start := mustDate(t, "2024-01-01")
	return &config.Configuration{
		Defaults: map[string]any{"button-color": "blue"},
		Experiments: []*config.Experiment{
			{
				Name:      "checkout-color",
				SiteArea:  "checkout",
				UserClass: config.UserClassBoth,
				StartDate: start,
				PrimaryKPI: "conv",
				Branches: []config.Branch{
					{Name: "control", Fraction: 0.5, Parameters: map[string]any{"button-color": "blue"}},
					{Name: "green", Fraction: 0.5, Parameters: map[string]any{"button-color": "green"}},
				},
			},
		},
	}
}

func TestHashIsDeterministic(t *testing.T) {
	h1 := Hash("42", "checkout")
	h2 := Hash("42", "checkout")
	assert.Equal(t, h1, h2)
	assert.GreaterOrEqual(t, h1, 0.0)
	assert.Less(t, h1, 1.0)
}

func TestHashVariesByInput(t *testing.T) {
	assert.NotEqual(t, Hash("1", "checkout"), Hash("2", "checkout"))
	assert.NotEqual(t, Hash("1", "checkout"), Hash("1", "homepage"))
}

func TestAssignmentsAreDeterministicAcrossCalls(t *testing.T) {
	cfg := basicConfig(t)
	now := mustDate(t, "2024-06-01")
	signup := mustDate(t, "2023-01-01")

	a1, err := Assignments(cfg, "12345", signup, now)
	require.NoError(t, err)
	a2, err := Assignments(cfg, "12345", signup, now)
	require.NoError(t, err)

	assert.Equal(t, a1, a2)
}

func TestAssignmentsCoverEveryBucket(t *testing.T) {
	cfg := basicConfig(t)
	now := mustDate(t, "2024-06-01")
	signup := mustDate(t, "2023-01-01")

	seen := map[string]bool{}
	for i := 0; i < 500; i++ {
		assignments, err := Assignments(cfg, strconv.Itoa(i), signup, now)
		require.NoError(t, err)
		for _, a := range assignments {
			seen[a.Branch.Name] = true
		}
	}

	assert.True(t, seen["control"] && seen["green"])
}

func TestEligibilityExistingUserClass(t *testing.T) {
	cfg := basicConfig(t)
	cfg.Experiments[0].UserClass = config.UserClassExisting

	now := mustDate(t, "2024-06-01")

	beforeStart := mustDate(t, "2023-01-01")
	afterStart := mustDate(t, "2024-03-01")

	_, err := Assignments(cfg, "999", beforeStart, now)
	require.NoError(t, err)

	assignmentsAfter, err := Assignments(cfg, "999", afterStart, now)
	require.NoError(t, err)
	for _, a := range assignmentsAfter {
		assert.NotEqual(t, "checkout-color", a.Experiment.Name)
	}
}

func TestEligibilityNewUserClass(t *testing.T) {
	cfg := basicConfig(t)
	cfg.Experiments[0].UserClass = config.UserClassNew

	now := mustDate(t, "2024-06-01")
	beforeStart := mustDate(t, "2023-01-01")

	assignments, err := Assignments(cfg, "999", beforeStart, now)
	require.NoError(t, err)
	for _, a := range assignments {
		assert.NotEqual(t, "checkout-color", a.Experiment.Name)
	}
}

func TestSuperunityCoverageErrors(t *testing.T) {
	cfg := basicConfig(t)
	cfg.Experiments = append(cfg.Experiments, &config.Experiment{
		Name:      "checkout-second",
		SiteArea:  "checkout",
		UserClass: config.UserClassBoth,
		StartDate: mustDate(t, "2024-02-01"),
		Branches: []config.Branch{
			{Name: "control", Fraction: 0.6},
			{Name: "other", Fraction: 0.4},
		},
	})

	now := mustDate(t, "2024-06-01")
	signup := mustDate(t, "2023-01-01")

	_, err := Assignments(cfg, "1", signup, now)
	assert.Error(t, err)
}

func TestMergeAppliesSiteAreasInLexicographicOrder(t *testing.T) {
	defaults := map[string]any{"x": "default"}

	homepage := &config.Experiment{SiteArea: "homepage"}
	checkout := &config.Experiment{SiteArea: "checkout"}

	assignments := []Assignment{
		{Experiment: homepage, Branch: &config.Branch{Parameters: map[string]any{"x": "from-homepage"}}},
		{Experiment: checkout, Branch: &config.Branch{Parameters: map[string]any{"x": "from-checkout"}}},
	}

	merged := Merge(defaults, assignments)
	assert.Equal(t, "from-homepage", merged["x"])
}
