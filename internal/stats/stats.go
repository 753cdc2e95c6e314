// Package stats implements the pluggable posterior estimators a KPI can
// use: a conjugate Beta-Bernoulli model for binary outcomes, and a
// bootstrap-resampled median model for arbitrary real-valued outcomes.
package stats

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// bootstrapResamples is the fixed resample count for MedianBootstrap,
// matching spec.md's normative 10,000.
const bootstrapResamples = 10000

// percentileCount is the number of percentile points (0th through 100th
// inclusive) a Posterior reports.
const percentileCount = 101

// Posterior summarizes a fitted metric model's belief about a branch's
// true value: central tendency, spread, shape, and a dense percentile
// ladder for downstream plotting or interval queries.
type Posterior struct {
	Mean        float64
	Std         float64
	Skewness    float64
	Percentiles [percentileCount]float64
	SampleSize  int64
}

// MetricModel fits a posterior distribution from raw samples and exposes
// it as descriptive statistics. internal/evaluate consumes Posterior.Mean
// and Posterior.Std for its Normal-approximation improvement-probability
// calculation.
type MetricModel interface {
	Posterior() Posterior
}

// Bernoulli is the conjugate Beta-Bernoulli posterior for a binary
// outcome: prior Beta(alpha, beta), updated with observed
// successes-out-of-trials to Beta(alpha+successes, beta+trials-successes).
type Bernoulli struct {
	dist distuv.Beta
	n    int64
}

// NewBernoulli fits the conjugate posterior for successes out of trials,
// given a Beta(priorAlpha, priorBeta) prior.
func NewBernoulli(priorAlpha, priorBeta float64, successes, trials int64) *Bernoulli {
	return &Bernoulli{
		dist: distuv.Beta{
			Alpha: priorAlpha + float64(successes),
			Beta:  priorBeta + float64(trials-successes),
		},
		n: trials,
	}
}

func (b *Bernoulli) Posterior() Posterior {
	p := Posterior{
		Mean:       b.dist.Mean(),
		Std:        b.dist.StdDev(),
		SampleSize: b.n,
	}
	p.Skewness = betaSkewness(b.dist.Alpha, b.dist.Beta)
	for i := 0; i < percentileCount; i++ {
		p.Percentiles[i] = b.dist.Quantile(float64(i) / float64(percentileCount-1))
	}
	return p
}

func betaSkewness(alpha, beta float64) float64 {
	num := 2 * (beta - alpha) * math.Sqrt(alpha+beta+1)
	den := (alpha + beta + 2) * math.Sqrt(alpha*beta)
	if den == 0 {
		return 0
	}
	return num / den
}

// MedianBootstrap fits a distribution-free posterior over the median of
// real-valued observations by resampling the raw sample pool with
// replacement bootstrapResamples times and recomputing the median each
// time, producing an empirical distribution of the median statistic.
type MedianBootstrap struct {
	resampleMedians []float64
	n               int64
}

// bootstrapSource draws uniform random numbers for the resampler. Tests
// supply a seeded *rand.Rand; production (internal/evaluate) supplies a
// *rand.Rand seeded from the current time.
type bootstrapSource interface {
	Intn(n int) int
}

// NewMedianBootstrap fits a bootstrap posterior over the median of
// samples, using src to draw resample indices. The resample pool is
// prior (a fixed sequence of seed samples, from the KPI's configured
// prior) concatenated with the observed samples, so a KPI with little or
// no data still has a seeded belief to resample from rather than an
// empty, undefined one. SampleSize reports the count of observed
// samples only — prior seeds are not user observations.
func NewMedianBootstrap(prior, samples []float64, src bootstrapSource) *MedianBootstrap {
	pool := make([]float64, 0, len(prior)+len(samples))
	pool = append(pool, prior...)
	pool = append(pool, samples...)

	if len(pool) == 0 {
		return &MedianBootstrap{n: int64(len(samples))}
	}

	medians := make([]float64, bootstrapResamples)
	scratch := make([]float64, len(pool))

	for i := 0; i < bootstrapResamples; i++ {
		for j := range scratch {
			scratch[j] = pool[src.Intn(len(pool))]
		}
		medians[i] = median(scratch)
	}

	return &MedianBootstrap{resampleMedians: medians, n: int64(len(samples))}
}

func median(xs []float64) float64 {
	sorted := make([]float64, len(xs))
	copy(sorted, xs)
	sort.Float64s(sorted)

	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

func (m *MedianBootstrap) Posterior() Posterior {
	p := Posterior{SampleSize: m.n}
	if len(m.resampleMedians) == 0 {
		return p
	}

	p.Mean = stat.Mean(m.resampleMedians, nil)
	p.Std = stat.StdDev(m.resampleMedians, nil)

	sorted := make([]float64, len(m.resampleMedians))
	copy(sorted, m.resampleMedians)
	sort.Float64s(sorted)

	p.Skewness = stat.Skew(m.resampleMedians, nil)
	for i := 0; i < percentileCount; i++ {
		p.Percentiles[i] = stat.Quantile(float64(i)/float64(percentileCount-1), stat.Empirical, sorted, nil)
	}
	return p
}

