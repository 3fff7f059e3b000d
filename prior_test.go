package dngo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	exprand "golang.org/x/exp/rand"
)

func TestDefaultPriorSampleShapes(t *testing.T) {
	prior := NewDefaultPrior(exprand.NewSource(42))

	samples := prior.SampleFromPrior(10)

	assert.Len(t, samples, 10)
	for _, s := range samples {
		assert.Len(t, s, 2)

		// log alpha draws come from the shifted log-normal and land close
		// to the shift location.
		assert.Greater(t, s[0], -10.0)
		assert.Less(t, s[0], -8.0)

		assert.False(t, math.IsNaN(s[1]))
	}
}

func TestDefaultPriorLnProbFinite(t *testing.T) {
	prior := NewDefaultPrior(exprand.NewSource(1))

	lp := prior.LnProb([]float64{-9, -5})

	assert.False(t, math.IsNaN(lp))
	assert.False(t, math.IsInf(lp, 0))
}

func TestDefaultPriorHorseshoeDivergesAtZero(t *testing.T) {
	prior := NewDefaultPrior(exprand.NewSource(1))

	lp := prior.LnProb([]float64{-9, 0})

	assert.True(t, math.IsInf(lp, 1))
}
