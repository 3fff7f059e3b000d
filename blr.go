package dngo

import (
	"fmt"
	"math"
	"math/rand"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
)

//////
// Const, vars, types.
//////

// logLikelihoodSentinel is returned by the evidence functions for
// hyperparameters outside the supported region and for proposals whose
// precision matrix is not positive definite. It acts as a negative-infinity
// floor: MCMC proposals landing there are silently rejected rather than
// raised as failures. The hard, discontinuous rejection region is load
// bearing for chain stability; do not smooth it.
const logLikelihoodSentinel = -1e25

// Per-component support bounds for (log alpha, log beta).
const (
	logHyperMin = -5.0
	logHyperMax = 10.0
)

// BayesianLinearRegression is a Gaussian linear model over a fixed design
// matrix Theta. Given weight precision alpha and noise precision beta, the
// posterior over weights is closed form:
//
//	S = (beta * Theta^T Theta + alpha * I)^-1
//	m = beta * S * Theta^T y
//
// and the predictive distribution at a new row theta is Gaussian with mean
// theta*m and variance 1/beta + theta*S*theta^T.
//
// One instance is fitted per hyperparameter sample inside DNGO; the instances
// share the same (Theta, y) but are independent of each other. The model also
// works standalone and satisfies the Surrogate interface, with Train's X
// playing the role of the design matrix.
type BayesianLinearRegression struct {
	// Alpha is the precision of the Gaussian prior over the weights.
	Alpha float64

	// Beta is the precision of the observation noise.
	Beta float64

	// doOptimize selects whether Train maximizes the log evidence over
	// (Alpha, Beta) before fitting, or uses the externally supplied values
	// as-is. DNGO always constructs its sub-models with doOptimize=false:
	// the hyperparameters are already fixed by the ensemble.
	doOptimize bool

	rng    *rand.Rand
	logger *zap.Logger

	// Fitted state, replaced wholesale on every Train call.
	theta *mat.Dense
	y     *mat.VecDense
	m     *mat.VecDense
	s     *mat.SymDense
}

//////
// Methods.
//////

// Train fits the closed-form posterior on the design matrix Theta (N x H) and
// targets y (length N).
//
// If the model was constructed with doOptimize enabled, (Alpha, Beta) are
// first re-estimated by maximizing the log evidence with a derivative-free
// Nelder-Mead search over (log alpha, log beta) from a random starting point.
//
// Failure modes:
//   - Mismatched Theta/y lengths are rejected before any computation.
//   - A singular or non-positive-definite precision matrix
//     beta*Theta^T*Theta + alpha*I fails the Cholesky factorization; the
//     error propagates and the model keeps no partial state. Callers fitting
//     one model per hyperparameter sample must treat this as fatal for that
//     sample.
func (b *BayesianLinearRegression) Train(theta *mat.Dense, y []float64) error {
	n, _ := theta.Dims()
	if n != len(y) {
		return fmt.Errorf("dngo: shape mismatch: Theta has %d rows but y has length %d", n, len(y))
	}

	b.theta = mat.DenseCopyOf(theta)
	b.y = mat.NewVecDense(len(y), nil)
	for i, v := range y {
		b.y.SetVec(i, v)
	}

	if b.doOptimize {
		problem := optimize.Problem{
			Func: func(point []float64) float64 {
				return -b.LogEvidence(point)
			},
		}

		x0 := []float64{b.rng.Float64(), b.rng.Float64()}

		result, err := optimize.Minimize(problem, x0, nil, &optimize.NelderMead{})
		if result == nil {
			return fmt.Errorf("dngo: evidence maximization failed: %w", err)
		}

		if err != nil {
			b.logger.Warn("evidence maximization did not fully converge",
				zap.Error(err),
			)
		}

		b.Alpha = math.Exp(result.X[0])
		b.Beta = math.Exp(result.X[1])

		b.logger.Debug("optimized hyperparameters",
			zap.Float64("alpha", b.Alpha),
			zap.Float64("beta", b.Beta),
		)
	}

	return b.fit(b.Alpha, b.Beta)
}

// fit computes the posterior weight mean and covariance for the stored
// (theta, y) under the given precisions.
func (b *BayesianLinearRegression) fit(alpha, beta float64) error {
	_, h := b.theta.Dims()

	// K = beta * Theta^T Theta + alpha * I
	var k mat.SymDense
	k.SymOuterK(beta, b.theta.T())
	for i := 0; i < h; i++ {
		k.SetSym(i, i, k.At(i, i)+alpha)
	}

	var chol mat.Cholesky
	if ok := chol.Factorize(&k); !ok {
		return fmt.Errorf("dngo: precision matrix is not positive definite (alpha=%g, beta=%g)", alpha, beta)
	}

	s := mat.NewSymDense(h, nil)
	if err := chol.InverseTo(s); err != nil {
		return fmt.Errorf("dngo: posterior covariance inversion failed: %w", err)
	}

	// m = beta * S * Theta^T y
	var ty mat.VecDense
	ty.MulVec(b.theta.T(), b.y)

	m := mat.NewVecDense(h, nil)
	m.MulVec(s, &ty)
	m.ScaleVec(beta, m)

	b.s = s
	b.m = m

	return nil
}

// Predict returns the predictive mean and variance at every row of Theta
// (M x H, same feature width as the training design matrix).
//
// Returns:
//   - mean: Theta * m, length M
//   - variance: 1/Beta + diag(Theta * S * Theta^T), length M
func (b *BayesianLinearRegression) Predict(theta *mat.Dense) (mean, variance []float64, err error) {
	if b.m == nil {
		return nil, nil, fmt.Errorf("dngo: Predict called before Train")
	}

	m, _ := theta.Dims()

	mean = make([]float64, m)
	variance = make([]float64, m)

	noiseVar := 1.0 / b.Beta

	for i := 0; i < m; i++ {
		row := theta.RowView(i)
		mean[i] = mat.Dot(row, b.m)
		variance[i] = noiseVar + mat.Inner(row, b.s, row)
	}

	return mean, variance, nil
}

// LogEvidence computes the log marginal likelihood of the stored (Theta, y)
// at theta = (log alpha, log beta).
//
// Components outside [logHyperMin, logHyperMax] return the sentinel floor, as
// do proposals whose precision matrix cannot be factorized. The residual term
// uses the 2-norm of y - Theta*m, unsquared, inherited from the reference
// numerics of this model family.
func (b *BayesianLinearRegression) LogEvidence(theta []float64) float64 {
	for _, t := range theta {
		if t < logHyperMin || t > logHyperMax {
			return logLikelihoodSentinel
		}
	}

	alpha := math.Exp(theta[0])
	beta := math.Exp(theta[1])

	n, h := b.theta.Dims()

	var k mat.SymDense
	k.SymOuterK(beta, b.theta.T())
	for i := 0; i < h; i++ {
		k.SetSym(i, i, k.At(i, i)+alpha)
	}

	var chol mat.Cholesky
	if ok := chol.Factorize(&k); !ok {
		return logLikelihoodSentinel
	}

	// m = beta * K^-1 * Theta^T y
	var ty mat.VecDense
	ty.MulVec(b.theta.T(), b.y)

	var m mat.VecDense
	if err := chol.SolveVecTo(&m, &ty); err != nil {
		return logLikelihoodSentinel
	}
	m.ScaleVec(beta, &m)

	var resid mat.VecDense
	resid.MulVec(b.theta, &m)
	resid.SubVec(b.y, &resid)

	mll := float64(h) / 2 * math.Log(alpha)
	mll += float64(n) / 2 * math.Log(beta)
	mll -= float64(n) / 2 * math.Log(2*math.Pi)
	mll -= beta / 2 * mat.Norm(&resid, 2)
	mll -= alpha / 2 * mat.Dot(&m, &m)
	mll -= 0.5 * chol.LogDet()

	return mll
}

//////
// Factory.
//////

// NewBayesianLinearRegression creates a Bayesian linear regression model.
//
// Parameters:
//   - alpha: weight precision, used directly when doOptimize is false and as
//     a starting value otherwise
//   - beta: noise precision, same convention
//   - doOptimize: re-estimate (alpha, beta) by evidence maximization on every
//     Train call
//   - rng: source of the random starting point for evidence maximization;
//     nil selects a time-seeded generator
//   - logger: structured logger; nil selects a no-op logger
func NewBayesianLinearRegression(alpha, beta float64, doOptimize bool, rng *rand.Rand, logger *zap.Logger) *BayesianLinearRegression {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &BayesianLinearRegression{
		Alpha:      alpha,
		Beta:       beta,
		doOptimize: doOptimize,
		rng:        defaultRNG(rng),
		logger:     logger.Named("blr"),
	}
}
