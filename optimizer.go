package dngo

import "math"

//////
// Per-parameter gradient optimizers.
//
// Both rules keep explicit moving-average state per parameter, updated on
// every step, independent of any automatic-differentiation machinery. State
// slices are laid out parallel to the parameter groups handed to the
// factories (one group per layer weight matrix or bias vector).
//////

// gradientOptimizer applies one update step from accumulated gradients and
// supports a time-varying learning rate (see the adaptEpoch schedule in
// DNGO.Train).
type gradientOptimizer interface {
	step(params, grads [][]float64)
	setLearningRate(lr float64)
}

// optimizerFactory builds a gradientOptimizer for the given parameter groups
// and initial learning rate.
type optimizerFactory func(params [][]float64, lr float64) gradientOptimizer

// adamOptimizer is the Adam rule with bias-corrected first and second moment
// estimates. It is the optimizer actually used for network training.
type adamOptimizer struct {
	lr    float64
	beta1 float64
	beta2 float64
	eps   float64

	t int
	m [][]float64
	v [][]float64
}

func (a *adamOptimizer) setLearningRate(lr float64) {
	a.lr = lr
}

func (a *adamOptimizer) step(params, grads [][]float64) {
	a.t++

	c1 := 1 - math.Pow(a.beta1, float64(a.t))
	c2 := 1 - math.Pow(a.beta2, float64(a.t))

	for g := range params {
		p, gr := params[g], grads[g]
		m, v := a.m[g], a.v[g]

		for j := range p {
			m[j] = a.beta1*m[j] + (1-a.beta1)*gr[j]
			v[j] = a.beta2*v[j] + (1-a.beta2)*gr[j]*gr[j]

			mHat := m[j] / c1
			vHat := v[j] / c2

			p[j] -= a.lr * mHat / (math.Sqrt(vHat) + a.eps)
		}
	}
}

// smorms3Optimizer implements the SMORMS3 rule: a squared-gradient
// normalization whose effective step size is clipped per parameter by the
// signal-to-noise estimate g^2/(g2+eps), with a memory term that resets when
// the gradient direction is noisy.
type smorms3Optimizer struct {
	lr  float64
	eps float64

	mem [][]float64
	g   [][]float64
	g2  [][]float64
}

func (s *smorms3Optimizer) setLearningRate(lr float64) {
	s.lr = lr
}

func (s *smorms3Optimizer) step(params, grads [][]float64) {
	for gi := range params {
		p, gr := params[gi], grads[gi]
		mem, g, g2 := s.mem[gi], s.g[gi], s.g2[gi]

		for j := range p {
			r := 1 / (mem[j] + 1)

			g[j] = (1-r)*g[j] + r*gr[j]
			g2[j] = (1-r)*g2[j] + r*gr[j]*gr[j]

			x := g[j] * g[j] / (g2[j] + s.eps)

			p[j] -= gr[j] * math.Min(s.lr, x) / (math.Sqrt(g2[j]+s.eps) + s.eps)

			mem[j] = 1 + mem[j]*(1-x)
		}
	}
}

//////
// Factories.
//////

// newAdamOptimizer creates an Adam optimizer with moment state shaped after
// the given parameter groups.
func newAdamOptimizer(params [][]float64, lr float64) *adamOptimizer {
	return &adamOptimizer{
		lr:    lr,
		beta1: 0.9,
		beta2: 0.999,
		eps:   1e-8,
		m:     zeroLike(params),
		v:     zeroLike(params),
	}
}

// newSMORMS3Optimizer creates a SMORMS3 optimizer with its memory term
// initialized to one, per the rule's definition.
func newSMORMS3Optimizer(params [][]float64, lr float64) *smorms3Optimizer {
	mem := zeroLike(params)
	for _, group := range mem {
		for j := range group {
			group[j] = 1
		}
	}

	return &smorms3Optimizer{
		lr:  lr,
		eps: 1e-16,
		mem: mem,
		g:   zeroLike(params),
		g2:  zeroLike(params),
	}
}

// zeroLike allocates zeroed groups with the same shapes as params.
func zeroLike(params [][]float64) [][]float64 {
	out := make([][]float64, len(params))
	for i, group := range params {
		out[i] = make([]float64, len(group))
	}

	return out
}
