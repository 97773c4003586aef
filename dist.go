// Package abc implements likelihood-free Bayesian inference via
// simulation-based Approximate Bayesian Computation.  The root package
// holds the pieces shared by every sampler: the prior capability
// interface, the inference plan, the population data structure, and the
// serial/parallel simulate-and-score evalers.  The samplers themselves
// live in the reject, abcde, and smcpr subpackages.
package abc

import (
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/sampleuv"
)

// Marginal is the univariate capability a continuous prior dimension is
// built from.  Sampling happens by quantile transform of a uniform
// variate, so any distribution exposing Prob and Quantile - e.g. the
// gonum.org/v1/gonum/stat/distuv types - can serve directly.
type Marginal interface {
	Prob(x float64) float64
	Quantile(p float64) float64
}

// Dist is the prior capability every sampler consumes: sampling, density
// evaluation, per-dimension support bounds, and the discrete/continuous
// tag that decides which perturbation kernel applies.  Implementations
// must be stateless - samplers call these methods concurrently.
type Dist interface {
	// Len is the dimensionality of a parameter vector.
	Len() int
	// Sample draws one parameter vector using rng.
	Sample(rng *rand.Rand) []float64
	// Density evaluates the prior density at x.  It need not be
	// normalized - samplers only ever use density ratios.
	Density(x []float64) float64
	// Discrete reports whether dimension dim is integer-valued.
	Discrete(dim int) bool
	// Bounds returns the support bounds of dimension dim.
	Bounds(dim int) (low, up float64)
}

// Continuous is a scalar continuous prior wrapping a Marginal, optionally
// restricted to [Low, Up].  Restricting does not renormalize the density;
// ratios are unaffected.
type Continuous struct {
	M   Marginal
	Low float64
	Up  float64
}

// NewContinuous wraps m with unbounded support.
func NewContinuous(m Marginal) Continuous {
	return Continuous{M: m, Low: math.Inf(-1), Up: math.Inf(1)}
}

func (c Continuous) Len() int { return 1 }

func (c Continuous) Sample(rng *rand.Rand) []float64 {
	// quantile-transform sampling keeps the draw on the caller's stream
	x := c.M.Quantile(rng.Float64())
	for x < c.Low || x > c.Up {
		x = c.M.Quantile(rng.Float64())
	}
	return []float64{x}
}

func (c Continuous) Density(x []float64) float64 {
	if x[0] < c.Low || x[0] > c.Up {
		return 0
	}
	return c.M.Prob(x[0])
}

func (c Continuous) Discrete(dim int) bool { return false }

func (c Continuous) Bounds(dim int) (float64, float64) { return c.Low, c.Up }

// Weighted is a scalar discrete prior over the integer lattice
// [Low, Low+len(W)-1] with probability proportional to W.
type Weighted struct {
	Low int
	W   []float64
}

// NewIntUniform returns a uniform discrete prior over [low, up].
func NewIntUniform(low, up int) Weighted {
	w := make([]float64, up-low+1)
	for i := range w {
		w[i] = 1
	}
	return Weighted{Low: low, W: w}
}

func (w Weighted) Len() int { return 1 }

func (w Weighted) Sample(rng *rand.Rand) []float64 {
	i, _ := sampleuv.NewWeighted(w.W, rng).Take()
	return []float64{float64(w.Low + i)}
}

func (w Weighted) Density(x []float64) float64 {
	if x[0] != math.Trunc(x[0]) {
		return 0
	}
	i := int(x[0]) - w.Low
	if i < 0 || i >= len(w.W) {
		return 0
	}
	return w.W[i] / floats.Sum(w.W)
}

func (w Weighted) Discrete(dim int) bool { return true }

func (w Weighted) Bounds(dim int) (float64, float64) {
	return float64(w.Low), float64(w.Low + len(w.W) - 1)
}

// Factored composes independent scalar priors into a tuple-valued prior
// with product density.  Sampling and perturbation treat each component
// independently.
type Factored []Dist

func (f Factored) Len() int {
	n := 0
	for _, d := range f {
		n += d.Len()
	}
	return n
}

func (f Factored) Sample(rng *rand.Rand) []float64 {
	x := make([]float64, 0, f.Len())
	for _, d := range f {
		x = append(x, d.Sample(rng)...)
	}
	return x
}

func (f Factored) Density(x []float64) float64 {
	dens := 1.0
	at := 0
	for _, d := range f {
		n := d.Len()
		dens *= d.Density(x[at : at+n])
		at += n
	}
	return dens
}

func (f Factored) Discrete(dim int) bool {
	d, sub := f.component(dim)
	return d.Discrete(sub)
}

func (f Factored) Bounds(dim int) (float64, float64) {
	d, sub := f.component(dim)
	return d.Bounds(sub)
}

func (f Factored) component(dim int) (Dist, int) {
	for _, d := range f {
		if dim < d.Len() {
			return d, dim
		}
		dim -= d.Len()
	}
	panic("abc: dimension out of range")
}
