package abc

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
)

func TestContinuousSampleBounds(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	c := Continuous{M: distuv.Normal{Mu: 0, Sigma: 1}, Low: -0.5, Up: 2}

	for i := 0; i < 1000; i++ {
		x := c.Sample(rng)
		require.Len(t, x, 1)
		assert.GreaterOrEqual(t, x[0], c.Low)
		assert.LessOrEqual(t, x[0], c.Up)
	}

	assert.Zero(t, c.Density([]float64{-1}))
	assert.Zero(t, c.Density([]float64{3}))
	assert.InDelta(t, distuv.Normal{Mu: 0, Sigma: 1}.Prob(1), c.Density([]float64{1}), 1e-12)
}

func TestWeighted(t *testing.T) {
	w := Weighted{Low: 3, W: []float64{1, 2, 1}}
	rng := rand.New(rand.NewSource(1))

	require.True(t, w.Discrete(0))
	low, up := w.Bounds(0)
	assert.Equal(t, 3.0, low)
	assert.Equal(t, 5.0, up)

	assert.InDelta(t, 0.25, w.Density([]float64{3}), 1e-12)
	assert.InDelta(t, 0.5, w.Density([]float64{4}), 1e-12)
	assert.Zero(t, w.Density([]float64{6}))
	assert.Zero(t, w.Density([]float64{3.5}), "non-integer values carry no mass")

	counts := map[float64]int{}
	for i := 0; i < 4000; i++ {
		x := w.Sample(rng)
		require.Equal(t, math.Trunc(x[0]), x[0])
		require.GreaterOrEqual(t, x[0], low)
		require.LessOrEqual(t, x[0], up)
		counts[x[0]]++
	}
	assert.InDelta(t, 2000, counts[4], 200, "middle atom has half the mass")
}

func TestFactored(t *testing.T) {
	f := Factored{
		NewIntUniform(0, 9),
		Continuous{M: distuv.Uniform{Min: 0, Max: 2}, Low: 0, Up: 2},
	}
	rng := rand.New(rand.NewSource(1))

	require.Equal(t, 2, f.Len())
	require.True(t, f.Discrete(0))
	require.False(t, f.Discrete(1))

	low, up := f.Bounds(1)
	assert.Equal(t, 0.0, low)
	assert.Equal(t, 2.0, up)

	x := f.Sample(rng)
	require.Len(t, x, 2)

	// product of a 1/10 atom and a 1/2 density
	assert.InDelta(t, 0.05, f.Density([]float64{4, 1}), 1e-12)
	assert.Zero(t, f.Density([]float64{-1, 1}))
	assert.Zero(t, f.Density([]float64{4, 3}))
}
