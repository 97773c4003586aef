// Package kernel builds the bounded perturbation kernels used by the
// partial-rejection SMC sampler: a truncated normal for continuous prior
// dimensions and a truncated discrete uniform for integer ones, with
// widths tracking the empirical spread of a reference subpopulation.
package kernel

import (
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/rwcarlsen/abc"
)

// Scale returns the kernel width for one prior dimension from the values
// a reference group takes there: sqrt(2)*stddev, rounded up to an
// integer of at least 1 for discrete dimensions.  A zero-width integer
// kernel could never move a particle.
func Scale(prior abc.Dist, dim int, vals []float64) float64 {
	s := math.Sqrt2 * stat.StdDev(vals, nil)
	if prior.Discrete(dim) {
		s = math.Ceil(s)
		if s < 1 {
			s = 1
		}
	}
	return s
}

// Scales computes the per-dimension kernel widths from a reference
// group's parameter vectors.
func Scales(prior abc.Dist, xs [][]float64) []float64 {
	nd := prior.Len()
	scales := make([]float64, nd)
	vals := make([]float64, len(xs))
	for d := 0; d < nd; d++ {
		for i, x := range xs {
			vals[i] = x[d]
		}
		scales[d] = Scale(prior, d, vals)
	}
	return scales
}

// Perturb draws one proposal from the kernel centered at x, perturbing
// each dimension independently.  The draw always lands inside the
// prior's support bounds.
func Perturb(prior abc.Dist, scales []float64, x []float64, rng *rand.Rand) []float64 {
	out := make([]float64, len(x))
	for d := range x {
		low, up := prior.Bounds(d)
		switch {
		case prior.Discrete(d):
			lo, hi := intSpan(x[d], scales[d], low, up)
			out[d] = lo + float64(rng.Intn(int(hi-lo)+1))
		case scales[d] == 0:
			// zero spread in the reference group: the kernel degenerates
			// to a point mass at the center
			out[d] = x[d]
		default:
			out[d] = truncNormRand(rng, x[d], scales[d], low, up)
		}
	}
	return out
}

// Density evaluates the kernel built at center (with the given scales)
// at x.  Truncation makes the kernel asymmetric near support bounds, so
// Metropolis acceptance needs the forward/reverse density ratio - it is
// not 1 in general.
func Density(prior abc.Dist, scales []float64, center, x []float64) float64 {
	dens := 1.0
	for d := range x {
		low, up := prior.Bounds(d)
		switch {
		case prior.Discrete(d):
			lo, hi := intSpan(center[d], scales[d], low, up)
			if x[d] < lo || x[d] > hi {
				return 0
			}
			dens *= 1 / (hi - lo + 1)
		case scales[d] == 0:
			if x[d] != center[d] {
				return 0
			}
		default:
			dens *= truncNormProb(x[d], center[d], scales[d], low, up)
		}
	}
	return dens
}

// intSpan is the integer kernel support [center-scale, center+scale]
// clipped to the prior bounds.
func intSpan(center, scale, low, up float64) (lo, hi float64) {
	lo = math.Max(low, center-scale)
	hi = math.Min(up, center+scale)
	return lo, hi
}

func truncNormRand(rng *rand.Rand, center, scale, low, up float64) float64 {
	n := distuv.Normal{Mu: center, Sigma: scale}
	a, b := n.CDF(low), n.CDF(up)
	return n.Quantile(a + rng.Float64()*(b-a))
}

func truncNormProb(x, center, scale, low, up float64) float64 {
	if x < low || x > up {
		return 0
	}
	n := distuv.Normal{Mu: center, Sigma: scale}
	return n.Prob(x) / (n.CDF(up) - n.CDF(low))
}
