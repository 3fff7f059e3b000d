package dngo

import (
	"errors"
	"math/rand"

	"golang.org/x/exp/constraints"
	"gonum.org/v1/gonum/mat"
)

//////
// Const, vars, types.
//////

// ErrNotImplemented is returned for capabilities a model does not provide,
// such as predictive gradients. Callers must treat it as a hard failure, not
// as a signal to fall back silently.
var ErrNotImplemented = errors.New("dngo: not implemented")

// Surrogate is the capability contract consumed by acquisition functions and
// optimizer loops. Any model exposing these two methods is substitutable;
// model polymorphism is expressed through this interface rather than through
// embedding or inheritance-style dispatch.
//
// Contract:
//   - Train fully replaces the model's fitted state with a fit to (X, y).
//     X is N x D, y has length N. A length mismatch is rejected with an error
//     before any computation.
//   - Predict returns the predictive mean and variance at each row of X.
//     It must only be called after a successful Train.
//
// Implementations in this package: BayesianLinearRegression and DNGO.
type Surrogate interface {
	Train(X *mat.Dense, y []float64) error
	Predict(X *mat.Dense) (mean, variance []float64, err error)
}

// Prior supplies the log-density and prior-sampling routine used to seed and
// bias the MCMC chain over the Bayesian linear regression hyperparameters.
//
// Conventions:
//   - Samples and densities live in log space: theta = (log alpha, log of the
//     noise variance).
//   - SampleFromPrior returns n draws, each of length 2, used as initial
//     walker positions.
//   - LnProb is combined additively with the marginal log-likelihood inside
//     the MCMC target function.
type Prior interface {
	SampleFromPrior(n int) [][]float64
	LnProb(theta []float64) float64
}

// ProgressUpdate represents the current state of an optimization run, sent on
// OptimizationConfig.ProgressChan after every objective evaluation.
type ProgressUpdate struct {
	// Phase indicates whether we're in the initial sampling or the
	// optimization phase.
	Phase string

	// CurrentIteration is the current iteration number within the phase.
	CurrentIteration int

	// TotalIterations is the total number of iterations in the phase.
	TotalIterations int

	// CurrentParams holds the parameter values just evaluated.
	CurrentParams []float64

	// CurrentBestParams holds the best parameters found so far.
	CurrentBestParams []float64

	// CurrentBestValue holds the best (lowest) objective value found so far.
	CurrentBestValue float64

	// LastValue holds the objective value of the last evaluation.
	LastValue float64
}

// ParameterRange defines the inclusive search interval for one parameter of
// the objective function.
//
// Type Parameter:
//   - T: the numeric type for this parameter (integer or float)
//
// Min must be less than or equal to Max. Very wide ranges slow convergence:
// the surrogate has to cover more ground with the same evaluation budget.
type ParameterRange[T constraints.Integer | constraints.Float] struct {
	// Min defines the minimum allowed value (inclusive).
	Min T

	// Max defines the maximum allowed value (inclusive).
	Max T
}

// ObjectiveFunc is the function being minimized by Optimize. It receives one
// value per ParameterRange, in order, and returns the objective value at that
// point (lower is better).
//
// Returning a non-nil error marks the point as failed; the optimizer records
// a large penalty value for it so the surrogate learns to avoid the region.
type ObjectiveFunc[T constraints.Integer | constraints.Float] func(params ...T) (float64, error)

// AcquisitionFunc scores a candidate point from the surrogate's predictive
// mean and variance at that point. Lower values indicate more promising
// candidates (the package minimizes throughout).
//
// Built-in acquisition functions: UCB, ProbabilityOfImprovement,
// ExpectedImprovement, ThompsonSampling.
//
// Custom implementations must handle zero variance and must only use state
// from the supplied AcquisitionParams.
type AcquisitionFunc func(mean, variance float64, params AcquisitionParams) float64

// AcquisitionParams holds the knobs shared by the acquisition functions.
// Each function reads only the fields it documents.
type AcquisitionParams struct {
	// Beta controls the exploration-exploitation trade-off in UCB. Higher
	// values favor uncertain regions. Typical range 0.1 to 5.0.
	Beta float64

	// Xi is the minimum-improvement margin used by PI and EI. Typical range
	// 0.01 to 0.1.
	Xi float64

	// BestSoFar is the best (lowest) objective value observed so far. It is
	// updated by the optimizer before each acquisition round; initialize it
	// to math.MaxFloat64.
	BestSoFar float64

	// RandomState is the random number generator used by ThompsonSampling.
	// Must be non-nil when that acquisition function is selected, and must
	// not be shared between concurrent optimization runs.
	RandomState *rand.Rand
}

// OptimizationConfig controls the Bayesian optimization loop in Optimize.
//
// Runtime is InitialSamples + Iterations objective evaluations, plus one
// surrogate retraining per evaluation. Create a separate config (and a
// separate Surrogate) for each concurrent optimization run.
type OptimizationConfig struct {
	// Iterations is the number of optimization steps after the initial
	// sampling phase. Recommended range: 20-200.
	Iterations int

	// InitialSamples is the number of random points evaluated before the
	// surrogate-guided phase starts. Recommended range: 5-20.
	InitialSamples int

	// NumCandidates is the number of random candidates scored through the
	// surrogate in each iteration before one is evaluated for real.
	// Recommended range: 50-500.
	NumCandidates int

	// Surrogate is the model used to predict objective values at untested
	// points. If nil, Optimize builds a DNGO model from DefaultDNGOConfig.
	Surrogate Surrogate

	// AcquisitionFunc selects the next point to evaluate. See the
	// AcquisitionFunc type for built-in options.
	AcquisitionFunc AcquisitionFunc

	// AcqParams holds the parameters for the acquisition function.
	AcqParams AcquisitionParams

	// RandomState drives candidate generation. If nil, a time-seeded
	// generator is used.
	RandomState *rand.Rand

	// ProgressChan receives progress updates during optimization. If nil,
	// no updates are sent. Sends never block; updates are dropped when the
	// channel is full.
	ProgressChan chan<- ProgressUpdate
}
