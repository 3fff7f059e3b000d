package dngo

import "math"

//////
// Acquisition functions for the Bayesian optimization loop.
// Each one scores a candidate from the surrogate's predictive mean and
// variance; lower scores are evaluated first. They balance exploitation
// (low predicted mean) against exploration (high predictive variance).
//////

// UCB is the Upper Confidence Bound acquisition function:
// mean - Beta*sqrt(variance). Beta weights exploration; 2.0 is a reasonable
// default. This is the package's default acquisition function.
func UCB(mean, variance float64, params AcquisitionParams) float64 {
	return mean - params.Beta*math.Sqrt(variance)
}

// ProbabilityOfImprovement scores a candidate by the probability, under the
// surrogate's Gaussian prediction, of beating the current best value by at
// least Xi. Conservative: it ignores the size of the improvement.
//
// Uses params.BestSoFar and params.Xi.
func ProbabilityOfImprovement(mean, variance float64, params AcquisitionParams) float64 {
	z := (mean - params.BestSoFar - params.Xi) / math.Sqrt(variance)

	return normalCDF(z)
}

// ExpectedImprovement weights the probability of improvement by its expected
// magnitude; the most commonly used acquisition function in practice.
//
// Uses params.BestSoFar and params.Xi.
func ExpectedImprovement(mean, variance float64, params AcquisitionParams) float64 {
	sigma := math.Sqrt(variance)

	z := (mean - params.BestSoFar - params.Xi) / sigma

	return (mean-params.BestSoFar-params.Xi)*normalCDF(z) + sigma*normalPDF(z)
}

// ThompsonSampling draws one sample from the surrogate's predictive
// distribution at the candidate and uses it as the score. The randomness
// itself does the exploration; no tuning parameters.
//
// Uses params.RandomState, which must be non-nil and must not be shared
// between concurrent optimization runs.
func ThompsonSampling(mean, variance float64, params AcquisitionParams) float64 {
	return mean + math.Sqrt(variance)*params.RandomState.NormFloat64()
}
