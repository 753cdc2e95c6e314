// Package assign implements the deterministic user-to-experiment-branch
// mapping: a cumulative split across the in-progress experiments declared
// for a site-area, keyed by a SHA-256 hash of the user identifier.
package assign

import (
	"crypto/sha256"
	"fmt"
	"math/big"
	"sort"
	"time"

	"github.com/needle-ab/needle/internal/config"
	"github.com/needle-ab/needle/internal/errs"
)

// two256 is the normalization denominator for the 256-bit SHA-256 digest.
var two256 = new(big.Float).SetInt(new(big.Int).Lsh(big.NewInt(1), 256))

// superunityTolerance absorbs floating-point rounding in a legitimately
// full-coverage site-area split, matching spec.md's 1e-9 margin.
const superunityTolerance = 1e-9

// Assignment is the experiment/branch a user falls into for one site-area.
type Assignment struct {
	Experiment *config.Experiment
	Branch     *config.Branch
}

// Hash returns the deterministic position of (userID, siteArea) in [0, 1).
//
// This computes SHA-256("<userID>/<siteArea>"), interprets the digest as a
// big-endian unsigned integer, and divides by 2^256. This exact formula is
// normative: it must never be replaced by a faster non-cryptographic hash,
// since cross-host and cross-version determinism depends on SHA-256's fixed
// output.
func Hash(userID, siteArea string) float64 {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s/%s", userID, siteArea)))
	n := new(big.Int).SetBytes(sum[:])
	f := new(big.Float).SetInt(n)
	f.Quo(f, two256)
	out, _ := f.Float64()
	return out
}

// split is one cumulative entry in a site-area's bucketing.
type split struct {
	cumulative float64
	experiment *config.Experiment
	branch     *config.Branch
}

// splitsBySiteArea builds the cumulative split-point list for a site-area:
// in-progress experiments ordered by start date (ties broken by declaration
// order in the configuration), each branch consuming a slice of [0, 1)
// proportional to its fraction.
func splitsBySiteArea(cfg *config.Configuration, siteArea string, asOf time.Time) ([]split, error) {
	var experiments []*config.Experiment
	for _, e := range cfg.Experiments {
		if e.SiteArea == siteArea && e.IsInProgress(asOf) {
			experiments = append(experiments, e)
		}
	}

	sort.SliceStable(experiments, func(i, j int) bool {
		return experiments[i].StartDate.Before(experiments[j].StartDate)
	})

	var splits []split
	cumulative := 0.0
	for _, e := range experiments {
		for i := range e.Branches {
			b := &e.Branches[i]
			cumulative += b.Fraction
			splits = append(splits, split{cumulative: cumulative, experiment: e, branch: b})
		}
	}

	if cumulative > 1.0+superunityTolerance {
		return nil, fmt.Errorf("superunity experiment coverage in site area %q", siteArea)
	}

	return splits, nil
}

// eligible reports whether a user with the given signup date may be
// assigned into an experiment, per its UserClass.
func eligible(signupDate time.Time, e *config.Experiment) bool {
	switch e.UserClass {
	case config.UserClassExisting:
		return signupDate.Before(e.StartDate)
	case config.UserClassNew:
		return !signupDate.Before(e.StartDate)
	default:
		return true
	}
}

// Assignments computes every experiment/branch assignment for a user across
// all site-areas declared in the configuration, as of the given time (used
// for "is this experiment in progress" comparisons — production callers
// pass time.Now()).
//
// For each site-area, the user's hash position is located in that
// site-area's cumulative split. If it falls within a branch's slice but the
// user is ineligible for that branch's experiment, no assignment is made
// for that site-area — there is no fallthrough to a different experiment.
func Assignments(cfg *config.Configuration, userID string, signupDate, asOf time.Time) ([]Assignment, error) {
	var out []Assignment

	for _, siteArea := range cfg.SiteAreas() {
		splits, err := splitsBySiteArea(cfg, siteArea, asOf)
		if err != nil {
			return nil, err
		}
		if len(splits) == 0 {
			continue
		}

		pos := Hash(userID, siteArea)

		for _, s := range splits {
			if pos <= s.cumulative {
				if eligible(signupDate, s.experiment) {
					out = append(out, Assignment{Experiment: s.experiment, Branch: s.branch})
				}
				break
			}
		}
	}

	return out, nil
}

// BranchUsers partitions the provided users by the branch they fall into
// for one specific experiment, ignoring site-areas the experiment does not
// belong to. Used by the evaluator to bucket analytics-store users without
// recomputing every site-area's assignment per user.
func BranchUsers(cfg *config.Configuration, experiment *config.Experiment, users []config.UserSignup, asOf time.Time) (map[string][]string, error) {
	buckets := make(map[string][]string, len(experiment.Branches))
	for i := range experiment.Branches {
		buckets[experiment.Branches[i].Name] = nil
	}

	splits, err := splitsBySiteArea(cfg, experiment.SiteArea, asOf)
	if err != nil {
		return nil, err
	}

	for _, u := range users {
		pos := Hash(u.UserID, experiment.SiteArea)

		for _, s := range splits {
			if pos <= s.cumulative {
				if s.experiment.Name == experiment.Name && eligible(u.SignupDate, s.experiment) {
					buckets[s.branch.Name] = append(buckets[s.branch.Name], u.UserID)
				}
				break
			}
		}
	}

	return buckets, nil
}

// Merge builds the effective parameter set for a user from the site's
// defaults plus every branch they were assigned into. Site-areas are
// applied in lexicographic order (the tie-break this server uses when two
// assigned branches declare the same parameter key), so later site-areas
// in sort order win on collision.
func Merge(defaults map[string]any, assignments []Assignment) map[string]any {
	out := make(map[string]any, len(defaults))
	for k, v := range defaults {
		out[k] = v
	}

	sorted := make([]Assignment, len(assignments))
	copy(sorted, assignments)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Experiment.SiteArea < sorted[j].Experiment.SiteArea
	})

	for _, a := range sorted {
		for k, v := range a.Branch.Parameters {
			out[k] = v
		}
	}

	return out
}

// ControlBranch returns the experiment's control branch, or an error
// if none is declared — ConfigLoader already enforces this invariant at
// load time, so this should never fail for a validated Configuration.
func ControlBranch(e *config.Experiment) (*config.Branch, error) {
	for i := range e.Branches {
		if e.Branches[i].Name == "control" {
			return &e.Branches[i], nil
		}
	}
	return nil, errs.AssignmentCoverageError(e.SiteArea)
}
