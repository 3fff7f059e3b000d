package dngo

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsembleSamplerShapes(t *testing.T) {
	rng := rand.New(rand.NewSource(21))

	lnprob := func(x []float64) float64 {
		return -0.5 * (x[0]*x[0] + x[1]*x[1])
	}

	sampler := newEnsembleSampler(6, 2, lnprob, rng)

	p0 := make([][]float64, 6)
	for i := range p0 {
		p0[i] = []float64{rng.NormFloat64() * 0.1, rng.NormFloat64() * 0.1}
	}

	pos := sampler.runMCMC(p0, 50)

	require.Len(t, pos, 6)
	for _, p := range pos {
		require.Len(t, p, 2)
		for _, v := range p {
			assert.False(t, math.IsNaN(v))
			assert.False(t, math.IsInf(v, 0))
		}
	}
}

func TestEnsembleSamplerDoesNotMutateStart(t *testing.T) {
	rng := rand.New(rand.NewSource(13))

	sampler := newEnsembleSampler(4, 1, func(x []float64) float64 {
		return -x[0] * x[0]
	}, rng)

	p0 := [][]float64{{0.1}, {-0.1}, {0.2}, {-0.2}}
	want := copyPositions(p0)

	sampler.runMCMC(p0, 25)

	assert.Equal(t, want, p0)
}

func TestEnsembleSamplerRespectsHardSupport(t *testing.T) {
	rng := rand.New(rand.NewSource(8))

	// Flat density on the unit square with a sentinel floor outside.
	// Proposals landing outside are silently rejected, so walkers started
	// inside must stay inside.
	lnprob := func(x []float64) float64 {
		for _, v := range x {
			if v < 0 || v > 1 {
				return logLikelihoodSentinel
			}
		}
		return 0
	}

	sampler := newEnsembleSampler(5, 2, lnprob, rng)

	p0 := make([][]float64, 5)
	for i := range p0 {
		p0[i] = []float64{0.2 + 0.1*float64(i), 0.5}
	}

	pos := sampler.runMCMC(p0, 200)

	for _, p := range pos {
		for _, v := range p {
			assert.GreaterOrEqual(t, v, 0.0)
			assert.LessOrEqual(t, v, 1.0)
		}
	}
}
