package dngo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"
)

func TestNormalizeInputRoundTrip(t *testing.T) {
	X := mat.NewDense(4, 2, []float64{
		1.0, 100.0,
		2.0, 250.0,
		3.0, 75.0,
		4.0, 10.0,
	})

	Xnorm, mean, std := NormalizeInput(X)

	assert.Len(t, mean, 2)
	assert.Len(t, std, 2)

	// Each column of the normalized matrix has zero mean and unit variance.
	col := make([]float64, 4)
	for j := 0; j < 2; j++ {
		mat.Col(col, j, Xnorm)

		var sum, sumSq float64
		for _, v := range col {
			sum += v
			sumSq += v * v
		}

		assert.InDelta(t, 0.0, sum/4, 1e-12)
		assert.InDelta(t, 1.0, sumSq/4, 1e-12)
	}

	back := UnnormalizeInput(Xnorm, mean, std)

	for i := 0; i < 4; i++ {
		for j := 0; j < 2; j++ {
			assert.InDelta(t, X.At(i, j), back.At(i, j), 1e-12)
		}
	}
}

func TestNormalizeInputWithReusesStatistics(t *testing.T) {
	train := mat.NewDense(3, 1, []float64{0, 5, 10})
	test := mat.NewDense(2, 1, []float64{5, 15})

	_, mean, std := NormalizeInput(train)

	scaled := NormalizeInputWith(test, mean, std)

	// The training mean lands at zero under the training statistics.
	assert.InDelta(t, 0.0, scaled.At(0, 0), 1e-12)
	assert.Greater(t, scaled.At(1, 0), 0.0)
}

func TestNormalizeOutputRoundTrip(t *testing.T) {
	y := []float64{-3.5, 0.0, 1.25, 42.0, 7.5}

	ynorm, mean, std := NormalizeOutput(y)

	assert.Greater(t, std, 0.0)

	back := UnnormalizeOutput(ynorm, mean, std)
	for i := range y {
		assert.InDelta(t, y[i], back[i], 1e-12)
	}
}
