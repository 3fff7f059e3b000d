package dngo

import (
	"math"
	"time"

	exprand "golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
)

//////
// Const, vars, types.
//////

// DefaultPrior is the stock prior over the DNGO hyperparameters
// theta = (log alpha, log sigma^2), where sigma^2 = 1/beta is the noise
// variance:
//
//   - log alpha: log-normal density with sigma 0.1, shifted by -10
//   - log sigma^2: horseshoe with scale 0.1, which concentrates mass near
//     zero noise while keeping heavy tails
//
// SampleFromPrior seeds the MCMC walkers; LnProb is added to the marginal
// log-likelihood inside the MCMC target.
type DefaultPrior struct {
	// loc shifts the log-normal density for log alpha.
	loc float64

	// scale is the horseshoe scale for the log noise variance.
	scale float64

	lnAlpha distuv.LogNormal
	normal  distuv.Normal
	cauchy  distuv.StudentsT
}

//////
// Methods.
//////

// LnProb evaluates the log prior density at theta = (log alpha, log sigma^2).
//
// The horseshoe density diverges at exactly zero; a theta[1] of 0 returns
// +Inf, matching the reference behavior of this prior family.
func (p *DefaultPrior) LnProb(theta []float64) float64 {
	lp := p.lnAlpha.LogProb(theta[0] - p.loc)
	lp += p.horseshoeLnProb(theta[1])

	return lp
}

// horseshoeLnProb is the (approximate, bounded-form) horseshoe log density:
// ln ln(1 + 3*(scale/exp(theta))^2).
func (p *DefaultPrior) horseshoeLnProb(theta float64) float64 {
	if theta == 0 {
		return math.Inf(1)
	}

	r := p.scale / math.Exp(theta)

	return math.Log(math.Log(1 + 3*r*r))
}

// SampleFromPrior draws n walker seeds. Each draw has length 2:
//
//   - draw[0]: log alpha from the shifted log-normal
//   - draw[1]: log sigma^2 from the horseshoe, generated as
//     ln|N(0,1) * |Cauchy(0,1)| * scale|
func (p *DefaultPrior) SampleFromPrior(n int) [][]float64 {
	p0 := make([][]float64, n)
	for i := range p0 {
		lamda := math.Abs(p.cauchy.Rand())

		p0[i] = []float64{
			p.loc + p.lnAlpha.Rand(),
			math.Log(math.Abs(p.normal.Rand() * lamda * p.scale)),
		}
	}

	return p0
}

//////
// Factory.
//////

// NewDefaultPrior creates the stock DNGO prior. A nil src selects a
// time-seeded source.
func NewDefaultPrior(src exprand.Source) *DefaultPrior {
	if src == nil {
		src = exprand.NewSource(uint64(time.Now().UnixNano()))
	}

	return &DefaultPrior{
		loc:   -10,
		scale: 0.1,
		lnAlpha: distuv.LogNormal{
			Mu:    0,
			Sigma: 0.1,
			Src:   src,
		},
		normal: distuv.Normal{
			Mu:    0,
			Sigma: 1,
			Src:   src,
		},
		// Student's t with one degree of freedom is a standard Cauchy.
		cauchy: distuv.StudentsT{
			Mu:    0,
			Sigma: 1,
			Nu:    1,
			Src:   src,
		},
	}
}
