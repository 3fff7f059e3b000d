package dngo

import (
	"math"
	"math/rand"
)

//////
// Const, vars, types.
//////

// mcmcSampler runs a fixed number of MCMC steps from the given walker
// positions and returns the final position of every walker. DNGO depends on
// this narrow contract (rather than on the concrete sampler) so that chain
// warm-starting can be observed in tests.
type mcmcSampler interface {
	runMCMC(p0 [][]float64, steps int) [][]float64
}

// samplerFactory builds a sampler for nWalkers walkers over dim dimensions
// targeting the given log-probability function. A fresh sampler is built on
// every Train call because the target closes over the current design matrix.
type samplerFactory func(nWalkers, dim int, lnprob func([]float64) float64, rng *rand.Rand) mcmcSampler

// ensembleSampler is an affine-invariant ensemble sampler using the
// Goodman-Weare stretch move: each walker proposes a point on the line
// through itself and a randomly chosen companion walker, scaled by
// z ~ g(z) on [1/a, a]. The move is invariant under affine transformations
// of the target, which makes it robust to the strong (alpha, beta) scale
// correlations in the evidence surface.
type ensembleSampler struct {
	nWalkers int
	dim      int
	lnprob   func([]float64) float64
	rng      *rand.Rand

	// a is the stretch scale. 2.0 is the standard choice.
	a float64
}

//////
// Methods.
//////

// runMCMC advances every walker by steps stretch moves and returns the final
// ensemble positions. p0 must hold nWalkers positions of length dim; it is
// not mutated.
func (s *ensembleSampler) runMCMC(p0 [][]float64, steps int) [][]float64 {
	pos := copyPositions(p0)

	lp := make([]float64, s.nWalkers)
	for k := range pos {
		lp[k] = s.lnprob(pos[k])
	}

	prop := make([]float64, s.dim)

	for step := 0; step < steps; step++ {
		for k := 0; k < s.nWalkers; k++ {
			// Companion walker drawn from the rest of the ensemble.
			j := s.rng.Intn(s.nWalkers - 1)
			if j >= k {
				j++
			}

			// z ~ g(z) proportional to 1/sqrt(z) on [1/a, a].
			u := s.rng.Float64()
			z := (u*(s.a-1) + 1)
			z = z * z / s.a

			for d := 0; d < s.dim; d++ {
				prop[d] = pos[j][d] + z*(pos[k][d]-pos[j][d])
			}

			lpProp := s.lnprob(prop)

			logQ := float64(s.dim-1)*math.Log(z) + lpProp - lp[k]
			if math.Log(s.rng.Float64()) < logQ {
				copy(pos[k], prop)
				lp[k] = lpProp
			}
		}
	}

	return pos
}

//////
// Factory.
//////

// newEnsembleSampler creates a stretch-move sampler with the standard scale
// a=2. It satisfies samplerFactory.
func newEnsembleSampler(nWalkers, dim int, lnprob func([]float64) float64, rng *rand.Rand) mcmcSampler {
	return &ensembleSampler{
		nWalkers: nWalkers,
		dim:      dim,
		lnprob:   lnprob,
		rng:      defaultRNG(rng),
		a:        2.0,
	}
}
