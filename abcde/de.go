package abcde

import (
	"math"

	"golang.org/x/exp/rand"

	"github.com/rwcarlsen/abc"
)

// degamma is the differential-evolution-MCMC optimal scaling constant
// 2.38/sqrt(2*ndim).
func degamma(ndim int) float64 {
	return 2.38 / math.Sqrt(2*float64(ndim))
}

// deperturb builds a proposal for particle i from three reference
// particles drawn without replacement from ref, all distinct from each
// other and from i (callers guard ref.Len() >= 4).  Continuous
// dimensions get
//
//	x_a + gamma*(x_b-x_c)*(0.9+0.2*U) + 0.05*N(0,1)*|x_b-x_c|
//
// The jitter on both the scale and the additive noise keeps the proposal
// chain from collapsing onto a lower-dimensional subspace.  Discrete
// dimensions compute the same real-valued step and stochastically round
// it, which keeps the step unbiased in expectation.
func deperturb(prior abc.Dist, ref abc.Population, i int, gamma float64, rng *rand.Rand) []float64 {
	a, b, c := pick3(rng, ref.Len(), i)
	x := make([]float64, len(ref.Xs[i]))
	for d := range x {
		diff := ref.Xs[b][d] - ref.Xs[c][d]
		step := gamma*diff*(0.9+0.2*rng.Float64()) + 0.05*rng.NormFloat64()*math.Abs(diff)
		if prior.Discrete(d) {
			step = roundStoch(rng, step)
		}
		x[d] = ref.Xs[a][d] + step
	}
	return x
}

func pick3(rng *rand.Rand, n, i int) (a, b, c int) {
	a = i
	for a == i {
		a = rng.Intn(n)
	}
	b = i
	for b == i || b == a {
		b = rng.Intn(n)
	}
	c = i
	for c == i || c == a || c == b {
		c = rng.Intn(n)
	}
	return a, b, c
}

// roundStoch rounds v to an integer, up with probability equal to its
// fractional part.
func roundStoch(rng *rand.Rand, v float64) float64 {
	f := math.Floor(v)
	if rng.Float64() < v-f {
		return f + 1
	}
	return f
}
