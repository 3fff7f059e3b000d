package dngo

import (
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

//////
// Normalization utilities.
//
// Stateless zero-mean unit-variance transforms and their inverses. The
// statistics returned by the forward transforms are what the inverse
// transforms need, so callers capture them at training time and reuse them at
// prediction time. Columns with zero variance are a documented edge case: the
// division by std is not defended and will produce non-finite values.
//////

// NormalizeInput maps X (N x D) to a zero-mean unit-variance representation,
// column by column.
//
// Returns:
//   - Xnorm: (X - mean) / std, same shape as X
//   - mean: per-column means, length D
//   - std: per-column population standard deviations, length D
//
// The round trip UnnormalizeInput(NormalizeInput(X)) reproduces X up to
// floating-point rounding.
func NormalizeInput(X *mat.Dense) (Xnorm *mat.Dense, mean, std []float64) {
	n, d := X.Dims()

	mean = make([]float64, d)
	std = make([]float64, d)

	col := make([]float64, n)
	for j := 0; j < d; j++ {
		mat.Col(col, j, X)
		mean[j] = stat.Mean(col, nil)
		std[j] = stat.PopStdDev(col, nil)
	}

	return NormalizeInputWith(X, mean, std), mean, std
}

// NormalizeInputWith applies previously captured normalization statistics to
// X. This is the prediction-time path: test inputs must be scaled with the
// statistics of the training set, not their own.
func NormalizeInputWith(X *mat.Dense, mean, std []float64) *mat.Dense {
	n, d := X.Dims()

	Xnorm := mat.NewDense(n, d, nil)
	for i := 0; i < n; i++ {
		row := X.RawRowView(i)
		for j := 0; j < d; j++ {
			Xnorm.Set(i, j, (row[j]-mean[j])/std[j])
		}
	}

	return Xnorm
}

// UnnormalizeInput is the exact inverse of NormalizeInput given the same
// (mean, std).
func UnnormalizeInput(Xnorm *mat.Dense, mean, std []float64) *mat.Dense {
	n, d := Xnorm.Dims()

	X := mat.NewDense(n, d, nil)
	for i := 0; i < n; i++ {
		row := Xnorm.RawRowView(i)
		for j := 0; j < d; j++ {
			X.Set(i, j, row[j]*std[j]+mean[j])
		}
	}

	return X
}

// NormalizeOutput maps a target vector to zero mean and unit variance.
//
// Returns:
//   - ynorm: (y - mean) / std
//   - mean: scalar mean of y
//   - std: scalar population standard deviation of y
func NormalizeOutput(y []float64) (ynorm []float64, mean, std float64) {
	mean = stat.Mean(y, nil)
	std = stat.PopStdDev(y, nil)

	ynorm = make([]float64, len(y))
	for i, v := range y {
		ynorm[i] = (v - mean) / std
	}

	return ynorm, mean, std
}

// UnnormalizeOutput is the exact inverse of NormalizeOutput given the same
// (mean, std).
func UnnormalizeOutput(ynorm []float64, mean, std float64) []float64 {
	y := make([]float64, len(ynorm))
	for i, v := range ynorm {
		y[i] = v*std + mean
	}

	return y
}
