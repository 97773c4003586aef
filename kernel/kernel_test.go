package kernel

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/rwcarlsen/abc"
)

func contprior(low, up float64) abc.Dist {
	return abc.Continuous{M: distuv.Uniform{Min: low, Max: up}, Low: low, Up: up}
}

func TestScale(t *testing.T) {
	vals := []float64{1, 2, 3, 4, 5}
	sd := math.Sqrt(2.5) // sample variance of 1..5

	cont := contprior(0, 10)
	assert.InDelta(t, math.Sqrt2*sd, Scale(cont, 0, vals), 1e-12)

	disc := abc.NewIntUniform(0, 10)
	assert.Equal(t, math.Ceil(math.Sqrt2*sd), Scale(disc, 0, vals))

	// a collapsed discrete reference group still yields a kernel that
	// can move a particle
	assert.Equal(t, 1.0, Scale(disc, 0, []float64{3, 3, 3}))
}

func TestPerturbInBounds(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	prior := abc.Factored{
		abc.NewIntUniform(0, 10),
		contprior(-1, 1),
	}
	scales := []float64{4, 1.5}

	for i := 0; i < 2000; i++ {
		center := prior.Sample(rng)
		x := Perturb(prior, scales, center, rng)
		require.Len(t, x, 2)
		require.Equal(t, math.Trunc(x[0]), x[0], "discrete dimension must stay on the lattice")
		for d := range x {
			low, up := prior.Bounds(d)
			require.GreaterOrEqual(t, x[d], low)
			require.LessOrEqual(t, x[d], up)
		}
	}
}

func TestDiscreteDensitySums(t *testing.T) {
	prior := abc.NewIntUniform(0, 10)
	scales := []float64{3}
	center := []float64{1} // clipped: support is {0..4}, 5 atoms

	tot := 0.0
	for k := 0.0; k <= 10; k++ {
		tot += Density(prior, scales, center, []float64{k})
	}
	assert.InDelta(t, 1.0, tot, 1e-12)
	assert.InDelta(t, 0.2, Density(prior, scales, center, []float64{0}), 1e-12)
	assert.Zero(t, Density(prior, scales, center, []float64{5}))
}

func TestTruncatedAsymmetry(t *testing.T) {
	prior := contprior(0, 1)
	scales := []float64{0.5}

	// away from the bounds the kernel is symmetric in (center, x)...
	mid, off := []float64{0.5}, []float64{0.6}
	fwd := Density(prior, scales, mid, off)
	rev := Density(prior, scales, off, mid)
	assert.InDelta(t, 1.0, fwd/rev, 0.2)

	// ...but near a bound truncation breaks the symmetry, which is why
	// Metropolis acceptance needs the forward/reverse ratio
	edge, in := []float64{0.01}, []float64{0.4}
	fwd = Density(prior, scales, edge, in)
	rev = Density(prior, scales, in, edge)
	require.Greater(t, fwd, 0.0)
	require.Greater(t, rev, 0.0)
	assert.Greater(t, math.Abs(fwd/rev-1.0), 0.05)
}

func TestZeroScaleDegenerates(t *testing.T) {
	prior := contprior(0, 1)
	rng := rand.New(rand.NewSource(1))
	center := []float64{0.3}

	x := Perturb(prior, []float64{0}, center, rng)
	assert.Equal(t, center[0], x[0])
	assert.Equal(t, 1.0, Density(prior, []float64{0}, center, center))
	assert.Zero(t, Density(prior, []float64{0}, center, []float64{0.4}))
}

func TestDensityNormalIntegrates(t *testing.T) {
	prior := contprior(0, 1)
	scales := []float64{0.3}
	center := []float64{0.1}

	// trapezoid over the support: truncated kernels renormalize their
	// clipped mass back into the bounds
	n := 20000
	h := 1.0 / float64(n)
	tot := 0.0
	for i := 0; i <= n; i++ {
		w := 1.0
		if i == 0 || i == n {
			w = 0.5
		}
		tot += w * Density(prior, scales, center, []float64{float64(i) * h})
	}
	assert.InDelta(t, 1.0, tot*h, 1e-3)
}
