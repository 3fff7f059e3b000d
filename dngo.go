package dngo

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
)

//////
// Const, vars, types.
//////

// DNGOConfig holds the architecture, training, and marginalization settings
// of a DNGO model. The config is fixed at construction; only Train/Predict
// mutate model state afterwards.
type DNGOConfig struct {
	// BatchSize is the minibatch size for network training. When the
	// training set is smaller, the whole set is used as a single batch.
	BatchSize int

	// NumEpochs is the number of passes over the training set.
	NumEpochs int

	// LearningRate is the initial optimizer step size. See AdaptEpoch for
	// the schedule applied during training.
	LearningRate float64

	// L2 is the weight-penalty coefficient added to the training loss.
	L2 float64

	// AdaptEpoch controls the learning-rate schedule: on every epoch where
	// epoch % AdaptEpoch == 0, the rate is reassigned to a tenth of
	// LearningRate. With the default of 5000 and fewer epochs than that,
	// the reassignment happens once, after the first epoch's batches.
	AdaptEpoch int

	// NUnits1, NUnits2, NUnits3 are the widths of the three tanh hidden
	// layers. The third width is also the number of basis functions H.
	NUnits1 int
	NUnits2 int
	NUnits3 int

	// Alpha and Beta are the weight and noise precisions used verbatim when
	// DoOptimize is false.
	Alpha float64
	Beta  float64

	// DoOptimize enables hyperparameter marginalization. When false, the
	// fixed (Alpha, Beta) form a single-element ensemble.
	DoOptimize bool

	// DoMCMC selects sampling-based marginalization (ensemble MCMC over
	// NHypers walkers) instead of a single Nelder-Mead evidence
	// maximization. Only consulted when DoOptimize is true.
	DoMCMC bool

	// NHypers is the number of MCMC walkers and therefore the ensemble size.
	NHypers int

	// ChainLength is the number of MCMC steps run on every Train call.
	ChainLength int

	// BurninSteps is the number of extra MCMC steps run once, on the first
	// Train call of the model's lifetime.
	BurninSteps int

	// NormalizeInput and NormalizeOutput toggle the zero-mean unit-variance
	// transforms; the captured statistics are inverted at prediction time.
	NormalizeInput  bool
	NormalizeOutput bool

	// VarianceFloor is the smallest predictive variance Predict may return.
	// Guards downstream log/sqrt operations; defaults to the float64
	// machine epsilon.
	VarianceFloor float64

	// UseSMORMS3 switches network training from Adam to the SMORMS3 rule.
	UseSMORMS3 bool

	// Prior over (log alpha, log sigma^2). Nil selects NewDefaultPrior.
	Prior Prior

	// RandomState drives weight initialization, minibatch shuffling, MCMC
	// moves, and optimizer starting points. Nil selects a time-seeded
	// generator.
	RandomState *rand.Rand

	// Logger receives structured training diagnostics. Nil disables them.
	Logger *zap.Logger
}

// DNGO is the two-stage surrogate: a feed-forward network learns basis
// functions, and one BayesianLinearRegression per hyperparameter sample is
// fitted on the penultimate-layer activations. Predictions from the ensemble
// are fused via the law of total variance.
//
// Train may be called repeatedly; every call fully replaces the network, the
// design matrix, the hyperparameter ensemble, and the sub-models. Only the
// MCMC chain positions and the burned flag survive between calls, so later
// calls warm-start the chain instead of re-burning-in.
//
// Instances are not safe for concurrent use; callers serialize Train and
// Predict externally.
type DNGO struct {
	config DNGOConfig
	logger *zap.Logger
	rng    *rand.Rand
	prior  Prior

	// Training data after (optional) normalization, plus the captured
	// statistics for the inverse transforms.
	x     *mat.Dense
	y     []float64
	yVec  *mat.VecDense
	xMean []float64
	xStd  []float64
	yMean float64
	yStd  float64

	network *network
	theta   *mat.Dense

	hypers [][]float64
	models []*BayesianLinearRegression

	// MCMC chain state carried across Train calls.
	burned bool
	p0     [][]float64

	// newSampler and newOptimizer are swappable so tests can observe
	// warm-start positions and the learning-rate schedule.
	newSampler   samplerFactory
	newOptimizer optimizerFactory

	trained bool
}

//////
// Methods.
//////

// Train fits the full model to X (N x D) and y (length N):
//
//  1. Normalize inputs and outputs if configured.
//  2. Build a fresh network and train it for NumEpochs epochs of shuffled
//     minibatches (batch size min(BatchSize, N); the remainder batch is
//     dropped).
//  3. Extract the design matrix Theta from the frozen network.
//  4. Marginalize (alpha, beta): fixed values, ensemble MCMC with warm
//     start, or Nelder-Mead evidence maximization.
//  5. Fit one Bayesian linear regression per ensemble member with its
//     (alpha, beta) held fixed.
//
// A length mismatch between X and y is rejected before any computation. A
// linear-algebra failure while fitting a sub-model aborts the call; there is
// no partial-failure recovery.
func (d *DNGO) Train(X *mat.Dense, y []float64) error {
	n, features := X.Dims()
	if n != len(y) {
		return fmt.Errorf("dngo: shape mismatch: X has %d rows but y has length %d", n, len(y))
	}
	if n < 1 {
		return fmt.Errorf("dngo: empty training set")
	}

	start := time.Now()

	if d.config.NormalizeInput {
		d.x, d.xMean, d.xStd = NormalizeInput(X)
	} else {
		d.x = mat.DenseCopyOf(X)
	}

	if d.config.NormalizeOutput {
		d.y, d.yMean, d.yStd = NormalizeOutput(y)
	} else {
		d.y = append([]float64(nil), y...)
	}

	d.yVec = mat.NewVecDense(len(d.y), append([]float64(nil), d.y...))

	batchSize := d.config.BatchSize
	if n < batchSize {
		batchSize = n
	}

	d.network = newNetwork(features, d.config.NUnits1, d.config.NUnits2, d.config.NUnits3, d.rng)

	opt := d.newOptimizer(d.network.params(), d.config.LearningRate)

	for epoch := 0; epoch < d.config.NumEpochs; epoch++ {
		epochStart := time.Now()

		var trainErr float64

		batches := minibatchIndices(n, batchSize, true, d.rng)
		for _, idx := range batches {
			trainErr += d.network.trainBatch(d.x, d.y, idx, d.config.L2, opt)
		}

		d.logger.Debug("epoch complete",
			zap.Int("epoch", epoch+1),
			zap.Int("num_epochs", d.config.NumEpochs),
			zap.Float64("train_loss", trainErr/float64(len(batches))),
			zap.Duration("epoch_time", time.Since(epochStart)),
			zap.Duration("total_time", time.Since(start)),
		)

		// Learning-rate schedule: reassign a tenth of the initial rate on
		// every epoch divisible by AdaptEpoch, after that epoch's batches.
		if epoch%d.config.AdaptEpoch == 0 {
			opt.setLearningRate(d.config.LearningRate * 0.1)
		}
	}

	// Design matrix from the frozen network.
	d.theta = d.network.Basis(d.x)

	if err := d.marginalizeHypers(); err != nil {
		return err
	}

	d.logger.Info("hyperparameter ensemble ready",
		zap.Int("samples", len(d.hypers)),
	)

	d.models = make([]*BayesianLinearRegression, 0, len(d.hypers))
	for _, sample := range d.hypers {
		model := NewBayesianLinearRegression(sample[0], sample[1], false, d.rng, d.config.Logger)

		if err := model.Train(d.theta, d.y); err != nil {
			return fmt.Errorf("dngo: fitting sub-model (alpha=%g, beta=%g): %w", sample[0], sample[1], err)
		}

		d.models = append(d.models, model)
	}

	d.trained = true

	return nil
}

// marginalizeHypers fills d.hypers with (alpha, beta) pairs according to the
// configured marginalization mode.
func (d *DNGO) marginalizeHypers() error {
	switch {
	case !d.config.DoOptimize:
		d.hypers = [][]float64{{d.config.Alpha, d.config.Beta}}

	case d.config.DoMCMC:
		sampler := d.newSampler(d.config.NHypers, 2, d.marginalLogLikelihood, d.rng)

		// Burn in exactly once per model lifetime, starting from prior
		// samples. Later Train calls reuse the previous chain's final
		// positions.
		if !d.burned {
			d.p0 = sampler.runMCMC(d.prior.SampleFromPrior(d.config.NHypers), d.config.BurninSteps)
			d.burned = true
		}

		pos := sampler.runMCMC(d.p0, d.config.ChainLength)

		// The final positions seed the next Train call's chain.
		d.p0 = copyPositions(pos)

		d.hypers = make([][]float64, len(pos))
		for i, p := range pos {
			d.hypers[i] = []float64{math.Exp(p[0]), math.Exp(p[1])}
		}

	default:
		problem := optimize.Problem{Func: d.negativeMarginalLogLikelihood}

		x0 := []float64{d.rng.Float64(), d.rng.Float64()}

		result, err := optimize.Minimize(problem, x0, nil, &optimize.NelderMead{})
		if result == nil {
			return fmt.Errorf("dngo: evidence maximization failed: %w", err)
		}

		if err != nil {
			d.logger.Warn("evidence maximization did not fully converge",
				zap.Error(err),
			)
		}

		d.hypers = [][]float64{{math.Exp(result.X[0]), math.Exp(result.X[1])}}
	}

	return nil
}

// marginalLogLikelihood is the MCMC target over theta = (log alpha,
// log beta): the closed-form log evidence of the Bayesian linear layer plus
// the prior's log density.
//
// Two deliberate quirks are preserved from the reference numerics and must
// not be "fixed":
//
//   - The precision matrix here is beta*Theta^T*Theta + alpha^2*I (alpha
//     squared), while the sub-model fit uses alpha*I.
//   - The residual term is the unsquared 2-norm of y - Theta*m.
//
// Components outside [-5, 10] return the sentinel floor: a hard rejection
// region, not a smooth penalty. The prior is evaluated at the reparameterized
// point (log alpha, log(1/beta)); the precision is swapped for the rate on
// the noise component.
func (d *DNGO) marginalLogLikelihood(theta []float64) float64 {
	for _, t := range theta {
		if t < logHyperMin || t > logHyperMax {
			return logLikelihoodSentinel
		}
	}

	alpha := math.Exp(theta[0])
	beta := math.Exp(theta[1])

	n, features := d.x.Dims()
	_, h := d.theta.Dims()

	var k mat.SymDense
	k.SymOuterK(beta, d.theta.T())
	for i := 0; i < h; i++ {
		k.SetSym(i, i, k.At(i, i)+alpha*alpha)
	}

	var chol mat.Cholesky
	if ok := chol.Factorize(&k); !ok {
		return logLikelihoodSentinel
	}

	// m = beta * K^-1 * Theta^T y
	var ty mat.VecDense
	ty.MulVec(d.theta.T(), d.yVec)

	var m mat.VecDense
	if err := chol.SolveVecTo(&m, &ty); err != nil {
		return logLikelihoodSentinel
	}
	m.ScaleVec(beta, &m)

	var resid mat.VecDense
	resid.MulVec(d.theta, &m)
	resid.SubVec(d.yVec, &resid)

	mll := float64(features) / 2 * math.Log(alpha)
	mll += float64(n) / 2 * math.Log(beta)
	mll -= float64(n) / 2 * math.Log(2*math.Pi)
	mll -= beta / 2 * mat.Norm(&resid, 2)
	mll -= alpha / 2 * mat.Dot(&m, &m)
	mll -= 0.5 * chol.LogDet()

	param := []float64{theta[0], math.Log(1 / beta)}

	return mll + d.prior.LnProb(param)
}

// negativeMarginalLogLikelihood is the minimization target for the direct
// optimization path.
func (d *DNGO) negativeMarginalLogLikelihood(theta []float64) float64 {
	return -d.marginalLogLikelihood(theta)
}

// Predict returns the marginalized predictive mean and variance at every row
// of X (M x D, raw scale):
//
//  1. Scale X with the statistics captured during the last Train call.
//  2. Re-extract penultimate-layer features through the frozen network.
//  3. Query every sub-model and fuse via the law of total variance:
//     mean = avg(mean_i), variance = avg(mean_i^2 + var_i) - mean^2.
//  4. Clip the variance to VarianceFloor.
//  5. Invert the output transform (mean shifted and scaled, variance scaled
//     by std^2).
//
// Calling Predict before a successful Train returns an error.
func (d *DNGO) Predict(X *mat.Dense) (mean, variance []float64, err error) {
	if !d.trained {
		return nil, nil, fmt.Errorf("dngo: Predict called before Train")
	}

	xTest := X
	if d.config.NormalizeInput {
		xTest = NormalizeInputWith(X, d.xMean, d.xStd)
	}

	theta := d.network.Basis(xTest)

	mu := make([][]float64, len(d.models))
	vr := make([][]float64, len(d.models))

	for i, model := range d.models {
		mu[i], vr[i], err = model.Predict(theta)
		if err != nil {
			return nil, nil, err
		}
	}

	mean, variance = aggregatePredictions(mu, vr)

	for i := range variance {
		if variance[i] < d.config.VarianceFloor {
			variance[i] = d.config.VarianceFloor
		}
	}

	if d.config.NormalizeOutput {
		mean = UnnormalizeOutput(mean, d.yMean, d.yStd)
		for i := range variance {
			variance[i] *= d.yStd * d.yStd
		}
	}

	return mean, variance, nil
}

// PredictiveGradients would return the gradients of the predictive mean and
// variance with respect to a test input. Gradient-mode acquisition evaluation
// is not implemented; the error is a hard failure, never a silent fallback.
func (d *DNGO) PredictiveGradients(x []float64) (dMean, dVariance []float64, err error) {
	return nil, nil, ErrNotImplemented
}

// Hypers returns a copy of the current hyperparameter ensemble, one
// (alpha, beta) pair per element. Empty before the first Train call.
func (d *DNGO) Hypers() [][]float64 {
	return copyPositions(d.hypers)
}

// aggregatePredictions fuses per-model predictions via the law of total
// variance. With zero cross-model disagreement the variance collapses to the
// shared within-model term.
func aggregatePredictions(mu, vr [][]float64) (mean, variance []float64) {
	nModels := float64(len(mu))
	nPoints := len(mu[0])

	mean = make([]float64, nPoints)
	variance = make([]float64, nPoints)

	for p := 0; p < nPoints; p++ {
		var mSum, sSum float64

		for i := range mu {
			mSum += mu[i][p]
			sSum += mu[i][p]*mu[i][p] + vr[i][p]
		}

		m := mSum / nModels

		mean[p] = m
		variance[p] = sSum/nModels - m*m
	}

	return mean, variance
}

//////
// Factory.
//////

// DefaultDNGOConfig returns a configuration matching the reference DNGO
// setup: 50-unit hidden layers, Adam training, full MCMC marginalization
// with 20 walkers, and normalization on both axes.
func DefaultDNGOConfig() DNGOConfig {
	return DNGOConfig{
		BatchSize:       10,
		NumEpochs:       500,
		LearningRate:    0.01,
		L2:              1e-4,
		AdaptEpoch:      5000,
		NUnits1:         50,
		NUnits2:         50,
		NUnits3:         50,
		Alpha:           1.0,
		Beta:            1000,
		DoOptimize:      true,
		DoMCMC:          true,
		NHypers:         20,
		ChainLength:     2000,
		BurninSteps:     2000,
		NormalizeInput:  true,
		NormalizeOutput: true,
		VarianceFloor:   math.Nextafter(1, 2) - 1,
	}
}

// NewDNGO creates an untrained DNGO model from the given configuration.
func NewDNGO(config DNGOConfig) *DNGO {
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	prior := config.Prior
	if prior == nil {
		prior = NewDefaultPrior(nil)
	}

	// A hand-built config with zero values for these fields would divide by
	// zero in the epoch loop or batch forever; guard them like VarianceFloor.
	if config.VarianceFloor <= 0 {
		config.VarianceFloor = math.Nextafter(1, 2) - 1
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 10
	}
	if config.AdaptEpoch <= 0 {
		config.AdaptEpoch = 5000
	}

	newOptimizer := func(params [][]float64, lr float64) gradientOptimizer {
		if config.UseSMORMS3 {
			return newSMORMS3Optimizer(params, lr)
		}

		return newAdamOptimizer(params, lr)
	}

	return &DNGO{
		config:       config,
		logger:       logger.Named("dngo"),
		rng:          defaultRNG(config.RandomState),
		prior:        prior,
		newSampler:   newEnsembleSampler,
		newOptimizer: newOptimizer,
	}
}
