package dngo

import (
	"fmt"
	"math"

	"golang.org/x/exp/constraints"
	"gonum.org/v1/gonum/mat"
)

//////
// Exported functionalities.
//////

// DefaultConfig returns a default optimization configuration: UCB acquisition
// with moderate exploration, and a DNGO surrogate built lazily from
// DefaultDNGOConfig on the first Optimize call.
func DefaultConfig() OptimizationConfig {
	return OptimizationConfig{
		Iterations:      50,
		InitialSamples:  10,
		NumCandidates:   50,
		AcquisitionFunc: UCB,
		AcqParams: AcquisitionParams{
			BestSoFar: math.MaxFloat64,
			Beta:      2.0,
			Xi:        0.01,
		},
	}
}

// Optimize minimizes the objective over the given parameter bounds using
// Bayesian optimization: a surrogate model predicts the objective at untested
// points, and an acquisition function picks the most promising candidate to
// evaluate next.
//
// Type Parameter:
//   - T: the numeric type for parameters (integer or float)
//
// Parameters:
//   - config: controls the budget, the surrogate, and the acquisition
//     strategy
//   - objective: the function to minimize; a non-nil error marks the point
//     as failed and records a large penalty value
//   - bounds: one ParameterRange per parameter, in argument order
//
// Returns:
//   - []T: the best parameters found (same order as bounds)
//   - error: a surrogate training/prediction failure, or empty bounds
//
// How it works:
//  1. Evaluates InitialSamples random points to seed the surrogate.
//  2. Each iteration retrains the surrogate on every observation so far
//     (a DNGO surrogate warm-starts its MCMC chain across these calls),
//     scores NumCandidates random candidates through the surrogate's
//     Predict, evaluates the acquisition minimizer for real, and records
//     the result.
//  3. Returns the best parameters seen.
//
// The loop is synchronous and single-threaded. Run concurrent optimizations
// only with separate configs and surrogates.
func Optimize[T constraints.Integer | constraints.Float](
	config OptimizationConfig,
	objective ObjectiveFunc[T],
	bounds ...ParameterRange[T],
) ([]T, error) {
	if len(bounds) == 0 {
		return nil, fmt.Errorf("dngo: Optimize requires at least one parameter bound")
	}

	rng := defaultRNG(config.RandomState)

	surrogate := config.Surrogate
	if surrogate == nil {
		surrogate = NewDNGO(DefaultDNGOConfig())
	}

	acquire := config.AcquisitionFunc
	if acquire == nil {
		acquire = UCB
	}

	// randomParams draws one uniform point inside the bounds. Integer
	// parameters get inclusive integer draws, float parameters continuous
	// ones.
	randomParams := func() []T {
		params := make([]T, len(bounds))
		for i, bound := range bounds {
			switch any(bound.Min).(type) {
			case float32, float64:
				lo := float64(bound.Min)
				hi := float64(bound.Max)
				params[i] = T(lo + rng.Float64()*(hi-lo))
			default:
				lo := int64(bound.Min)
				hi := int64(bound.Max)
				params[i] = T(lo + rng.Int63n(hi-lo+1))
			}
		}

		return params
	}

	paramsToFloats := func(params []T) []float64 {
		floats := make([]float64, len(params))
		for i, v := range params {
			floats[i] = float64(v)
		}

		return floats
	}

	// All observations so far; the surrogate is retrained on the full set
	// every iteration.
	var observedX [][]float64
	var observedY []float64

	bestParams := make([]T, len(bounds))
	bestValue := math.MaxFloat64

	sendProgress := func(phase string, iteration, total int, current []T, value float64) {
		if config.ProgressChan == nil {
			return
		}

		update := ProgressUpdate{
			Phase:             phase,
			CurrentIteration:  iteration,
			TotalIterations:   total,
			CurrentParams:     paramsToFloats(current),
			CurrentBestParams: paramsToFloats(bestParams),
			CurrentBestValue:  bestValue,
			LastValue:         value,
		}

		select {
		case config.ProgressChan <- update:
		default:
			// Skip the update if the channel is full.
		}
	}

	evaluate := func(params []T) float64 {
		value, err := objective(params...)
		if err != nil {
			// Penalize failed points so the surrogate learns to avoid
			// the region instead of re-sampling it.
			value = math.MaxFloat64 / 2
		}

		observedX = append(observedX, paramsToFloats(params))
		observedY = append(observedY, value)

		if value < bestValue {
			bestValue = value
			copy(bestParams, params)
		}

		return value
	}

	// Phase 1: initial random sampling to seed the surrogate.
	for i := 0; i < config.InitialSamples; i++ {
		params := randomParams()
		value := evaluate(params)
		sendProgress("InitialSampling", i+1, config.InitialSamples, params, value)
	}

	// Phase 2: surrogate-guided optimization.
	for i := 0; i < config.Iterations; i++ {
		if err := surrogate.Train(rowsToDense(observedX), observedY); err != nil {
			return nil, fmt.Errorf("dngo: surrogate training failed: %w", err)
		}

		config.AcqParams.BestSoFar = bestValue

		// Score a batch of random candidates through the surrogate and
		// keep the acquisition minimizer.
		candidates := make([][]T, config.NumCandidates)
		candidateX := make([][]float64, config.NumCandidates)
		for j := range candidates {
			candidates[j] = randomParams()
			candidateX[j] = paramsToFloats(candidates[j])
		}

		mean, variance, err := surrogate.Predict(rowsToDense(candidateX))
		if err != nil {
			return nil, fmt.Errorf("dngo: surrogate prediction failed: %w", err)
		}

		next := 0
		bestAcq := math.MaxFloat64
		for j := range candidates {
			if acq := acquire(mean[j], variance[j], config.AcqParams); acq < bestAcq {
				bestAcq = acq
				next = j
			}
		}

		value := evaluate(candidates[next])
		sendProgress("Optimization", i+1, config.Iterations, candidates[next], value)
	}

	return bestParams, nil
}

// rowsToDense packs equal-length rows into a dense matrix.
func rowsToDense(rows [][]float64) *mat.Dense {
	n := len(rows)
	d := len(rows[0])

	out := mat.NewDense(n, d, nil)
	for i, row := range rows {
		out.SetRow(i, row)
	}

	return out
}
