package stats

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBernoulliPosteriorMeanNearObservedRate(t *testing.T) {
	b := NewBernoulli(1, 1, 500, 1000)
	p := b.Posterior()

	assert.InDelta(t, 0.5, p.Mean, 0.05)
	assert.Equal(t, int64(1000), p.SampleSize)
	assert.Len(t, p.Percentiles, percentileCount)
	assert.InDelta(t, p.Percentiles[0], 0, 0.2)
	assert.InDelta(t, p.Percentiles[percentileCount-1], 1, 0.2)
}

func TestBernoulliPosteriorWithNoDataReturnsPrior(t *testing.T) {
	b := NewBernoulli(2, 3, 0, 0)
	p := b.Posterior()

	assert.InDelta(t, 2.0/5.0, p.Mean, 1e-9)
	assert.Equal(t, int64(0), p.SampleSize)
}

func TestMedianBootstrapPosteriorNearSampleMedian(t *testing.T) {
	samples := []float64{10, 12, 11, 13, 9, 14, 10, 11, 12, 13}

	m := NewMedianBootstrap(nil, samples, rand.New(rand.NewSource(1)))
	p := m.Posterior()

	assert.InDelta(t, 11.5, p.Mean, 1.5)
	assert.Equal(t, int64(len(samples)), p.SampleSize)
	assert.Greater(t, p.Std, 0.0)
}

func TestMedianBootstrapWithNoSamples(t *testing.T) {
	m := NewMedianBootstrap(nil, nil, rand.New(rand.NewSource(1)))
	p := m.Posterior()

	assert.Equal(t, int64(0), p.SampleSize)
	assert.Equal(t, 0.0, p.Mean)
}

func TestMedianBootstrapSeedsPoolFromPriorWhenNoObservations(t *testing.T) {
	prior := []float64{30, 30, 30, 30, 30}

	m := NewMedianBootstrap(prior, nil, rand.New(rand.NewSource(1)))
	p := m.Posterior()

	assert.Equal(t, int64(0), p.SampleSize, "SampleSize counts observations only, not prior seeds")
	assert.InDelta(t, 30.0, p.Mean, 1e-9)
}

func TestMedianBootstrapPoolsPriorAlongsideObservations(t *testing.T) {
	prior := []float64{100, 100, 100, 100, 100}
	samples := []float64{10, 12, 11, 13, 9}

	withPrior := NewMedianBootstrap(prior, samples, rand.New(rand.NewSource(1))).Posterior()
	withoutPrior := NewMedianBootstrap(nil, samples, rand.New(rand.NewSource(1))).Posterior()

	assert.Greater(t, withPrior.Mean, withoutPrior.Mean, "seeding with a high prior should pull the posterior mean upward")
}
