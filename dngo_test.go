package dngo

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// recordingSampler is an mcmcSampler stub that records the starting
// positions of every run and returns a fixed ensemble.
type recordingSampler struct {
	starts *[][][]float64
	result [][]float64
}

func (s *recordingSampler) runMCMC(p0 [][]float64, steps int) [][]float64 {
	*s.starts = append(*s.starts, copyPositions(p0))

	return copyPositions(s.result)
}

// recordingOptimizer is a gradientOptimizer stub that counts steps and
// records every learning-rate reassignment together with the number of steps
// taken when it happened.
type recordingOptimizer struct {
	steps       int
	rates       []float64
	stepsAtRate []int
}

func (o *recordingOptimizer) step(params, grads [][]float64) {
	o.steps++
}

func (o *recordingOptimizer) setLearningRate(lr float64) {
	o.rates = append(o.rates, lr)
	o.stepsAtRate = append(o.stepsAtRate, o.steps)
}

func smallTestConfig() DNGOConfig {
	config := DefaultDNGOConfig()
	config.NumEpochs = 10
	config.NUnits1 = 5
	config.NUnits2 = 5
	config.NUnits3 = 5
	config.RandomState = rand.New(rand.NewSource(17))

	return config
}

func quadraticDataset(n int) (*mat.Dense, []float64) {
	X := mat.NewDense(n, 1, nil)
	y := make([]float64, n)

	for i := 0; i < n; i++ {
		x := float64(i)/float64(n-1)*2 - 1
		X.Set(i, 0, x)
		y[i] = x * x
	}

	return X, y
}

func TestDNGOShapeMismatchRejected(t *testing.T) {
	model := NewDNGO(smallTestConfig())

	err := model.Train(mat.NewDense(3, 1, []float64{1, 2, 3}), []float64{1, 2})

	assert.ErrorContains(t, err, "shape mismatch")
}

func TestDNGOPredictBeforeTrainFails(t *testing.T) {
	model := NewDNGO(smallTestConfig())

	_, _, err := model.Predict(mat.NewDense(1, 1, []float64{0}))

	assert.Error(t, err)
}

func TestDNGOPredictiveGradientsNotImplemented(t *testing.T) {
	model := NewDNGO(smallTestConfig())

	_, _, err := model.PredictiveGradients([]float64{0.5})

	assert.ErrorIs(t, err, ErrNotImplemented)
}

func TestDNGOEndToEndQuadratic(t *testing.T) {
	X, y := quadraticDataset(50)

	config := DefaultDNGOConfig()
	config.DoOptimize = false
	config.Alpha = 1.0
	config.Beta = 1000
	config.RandomState = rand.New(rand.NewSource(23))

	model := NewDNGO(config)
	require.NoError(t, model.Train(X, y))

	// Fixed hyperparameters form a single-element ensemble.
	require.Len(t, model.Hypers(), 1)
	assert.Equal(t, []float64{1.0, 1000}, model.Hypers()[0])

	held := 0.35
	mean, variance, err := model.Predict(mat.NewDense(1, 1, []float64{held}))
	require.NoError(t, err)

	assert.InDelta(t, held*held, mean[0], 0.1)
	assert.Greater(t, variance[0], 0.0)
	assert.False(t, math.IsInf(variance[0], 0))
	assert.False(t, math.IsNaN(variance[0]))
}

func TestDNGOVarianceNeverBelowFloor(t *testing.T) {
	X, y := quadraticDataset(30)

	config := smallTestConfig()
	config.DoOptimize = false
	config.NormalizeOutput = false

	model := NewDNGO(config)
	require.NoError(t, model.Train(X, y))

	grid := mat.NewDense(11, 1, nil)
	for i := 0; i < 11; i++ {
		grid.Set(i, 0, float64(i)/5-1)
	}

	_, variance, err := model.Predict(grid)
	require.NoError(t, err)

	for _, v := range variance {
		assert.GreaterOrEqual(t, v, config.VarianceFloor)
	}
}

func TestAggregatePredictionsCollapsesForIdenticalModels(t *testing.T) {
	// Three sub-models in perfect agreement: the law-of-total-variance
	// aggregate must equal the shared within-model variance exactly.
	mu := [][]float64{
		{1.5, -0.5},
		{1.5, -0.5},
		{1.5, -0.5},
	}
	vr := [][]float64{
		{0.25, 0.5},
		{0.25, 0.5},
		{0.25, 0.5},
	}

	mean, variance := aggregatePredictions(mu, vr)

	assert.Equal(t, []float64{1.5, -0.5}, mean)
	assert.Equal(t, []float64{0.25, 0.5}, variance)
}

func TestDNGOMCMCWarmStart(t *testing.T) {
	X, y := quadraticDataset(20)

	config := smallTestConfig()
	config.DoOptimize = true
	config.DoMCMC = true
	config.NHypers = 3
	config.ChainLength = 5
	config.BurninSteps = 5

	model := NewDNGO(config)

	var starts [][][]float64
	final := [][]float64{{0, 1}, {0.5, 2}, {-1, 3}}

	model.newSampler = func(nWalkers, dim int, lnprob func([]float64) float64, rng *rand.Rand) mcmcSampler {
		return &recordingSampler{starts: &starts, result: final}
	}

	// First call burns in from prior samples and then runs the chain.
	require.NoError(t, model.Train(X, y))
	require.Len(t, starts, 2)
	assert.Equal(t, final, starts[1])

	// The second call must reuse the first call's final chain positions as
	// its starting point, with no second burn-in.
	require.NoError(t, model.Train(X, y))
	require.Len(t, starts, 3)
	assert.Equal(t, final, starts[2])

	// The ensemble is the exponentiated final sample of every walker.
	hypers := model.Hypers()
	require.Len(t, hypers, 3)
	for i, p := range final {
		assert.InDelta(t, math.Exp(p[0]), hypers[i][0], 1e-12)
		assert.InDelta(t, math.Exp(p[1]), hypers[i][1], 1e-12)
	}
}

func TestDNGOMCMCEndToEnd(t *testing.T) {
	X, y := quadraticDataset(20)

	config := smallTestConfig()
	config.DoOptimize = true
	config.DoMCMC = true
	config.NHypers = 4
	config.ChainLength = 20
	config.BurninSteps = 20

	model := NewDNGO(config)
	require.NoError(t, model.Train(X, y))

	require.Len(t, model.Hypers(), 4)
	for _, sample := range model.Hypers() {
		assert.Greater(t, sample[0], 0.0)
		assert.Greater(t, sample[1], 0.0)
	}

	mean, variance, err := model.Predict(mat.NewDense(1, 1, []float64{0.25}))
	require.NoError(t, err)

	assert.Len(t, mean, 1)
	assert.Greater(t, variance[0], 0.0)
}

func TestDNGODirectOptimization(t *testing.T) {
	X, y := quadraticDataset(20)

	config := smallTestConfig()
	config.DoOptimize = true
	config.DoMCMC = false

	model := NewDNGO(config)
	require.NoError(t, model.Train(X, y))

	// Direct evidence maximization yields a single-element ensemble of
	// positive precisions.
	hypers := model.Hypers()
	require.Len(t, hypers, 1)
	assert.Greater(t, hypers[0][0], 0.0)
	assert.Greater(t, hypers[0][1], 0.0)
}

func TestDNGOTrainsWithSMORMS3(t *testing.T) {
	X, y := quadraticDataset(25)

	config := smallTestConfig()
	config.DoOptimize = false
	config.UseSMORMS3 = true

	model := NewDNGO(config)
	require.NoError(t, model.Train(X, y))

	mean, variance, err := model.Predict(mat.NewDense(1, 1, []float64{0.1}))
	require.NoError(t, err)

	assert.Len(t, mean, 1)
	assert.Greater(t, variance[0], 0.0)
}

func TestDNGOLearningRateSchedule(t *testing.T) {
	X, y := quadraticDataset(20)

	config := smallTestConfig()
	config.DoOptimize = false
	config.NumEpochs = 3
	config.AdaptEpoch = 2
	config.BatchSize = 10 // two batches per epoch

	model := NewDNGO(config)

	opt := &recordingOptimizer{}
	model.newOptimizer = func(params [][]float64, lr float64) gradientOptimizer {
		return opt
	}

	require.NoError(t, model.Train(X, y))

	// Three epochs of two batches each.
	require.Equal(t, 6, opt.steps)

	// The rate is reassigned on epochs 0 and 2, each time after that
	// epoch's batches, always to a tenth of the initial rate and never
	// compounded across hits.
	assert.Equal(t, []float64{0.001, 0.001}, opt.rates)
	assert.Equal(t, []int{2, 6}, opt.stepsAtRate)
}

func TestDNGOLearningRateReassignedOnFirstEpoch(t *testing.T) {
	X, y := quadraticDataset(20)

	config := smallTestConfig()
	config.DoOptimize = false
	config.NumEpochs = 4
	config.BatchSize = 10

	model := NewDNGO(config)

	opt := &recordingOptimizer{}
	model.newOptimizer = func(params [][]float64, lr float64) gradientOptimizer {
		return opt
	}

	require.NoError(t, model.Train(X, y))

	// With AdaptEpoch at its default of 5000 and far fewer epochs, epoch 0
	// is the only hit: one reassignment, after the first epoch's batches.
	assert.Equal(t, []float64{0.001}, opt.rates)
	assert.Equal(t, []int{2}, opt.stepsAtRate)
}

func TestDNGOZeroValueConfigGetsDefaults(t *testing.T) {
	X, y := quadraticDataset(12)

	// A hand-built config leaves BatchSize and AdaptEpoch at zero; NewDNGO
	// must fill them in rather than divide or loop on zero during Train.
	model := NewDNGO(DNGOConfig{
		NumEpochs:    2,
		LearningRate: 0.01,
		NUnits1:      4,
		NUnits2:      4,
		NUnits3:      4,
		Alpha:        1,
		Beta:         1000,
		RandomState:  rand.New(rand.NewSource(5)),
	})

	assert.Equal(t, 10, model.config.BatchSize)
	assert.Equal(t, 5000, model.config.AdaptEpoch)
	assert.Greater(t, model.config.VarianceFloor, 0.0)

	require.NoError(t, model.Train(X, y))
}

func TestDNGORetrainReplacesState(t *testing.T) {
	config := smallTestConfig()
	config.DoOptimize = false

	model := NewDNGO(config)

	X1, y1 := quadraticDataset(20)
	require.NoError(t, model.Train(X1, y1))
	firstNet := model.network

	X2, y2 := quadraticDataset(30)
	require.NoError(t, model.Train(X2, y2))

	// A retrain discards and replaces the network rather than updating it.
	assert.NotSame(t, firstNet, model.network)
}
