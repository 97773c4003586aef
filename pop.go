package abc

import (
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Population holds N particles as parallel parameter/distance slices.
// len(Xs) == len(Dists) at every observable point between sampler steps;
// Dists[i] is always the score of a simulation produced at Xs[i].
type Population struct {
	Xs    [][]float64
	Dists []float64
}

func (pop Population) Len() int { return len(pop.Xs) }

// Clone deep-copies the population, including parameter vectors, so a
// sampler can propose against a frozen generation while committing into
// the live one.
func (pop Population) Clone() Population {
	c := Population{
		Xs:    make([][]float64, len(pop.Xs)),
		Dists: append([]float64(nil), pop.Dists...),
	}
	for i, x := range pop.Xs {
		c.Xs[i] = append([]float64(nil), x...)
	}
	return c
}

// Append adds all of o's particles to pop.
func (pop *Population) Append(o Population) {
	pop.Xs = append(pop.Xs, o.Xs...)
	pop.Dists = append(pop.Dists, o.Dists...)
}

func (pop Population) MinDist() float64 {
	min := pop.Dists[0]
	for _, d := range pop.Dists[1:] {
		if d < min {
			min = d
		}
	}
	return min
}

func (pop Population) MaxDist() float64 {
	max := pop.Dists[0]
	for _, d := range pop.Dists[1:] {
		if d > max {
			max = d
		}
	}
	return max
}

// Blend returns the convex combination (1-alpha)*min + alpha*max of the
// population's distances - the adaptive tolerance used by the
// differential-evolution sampler.
func (pop Population) Blend(alpha float64) float64 {
	return (1-alpha)*pop.MinDist() + alpha*pop.MaxDist()
}

// SortByDist orders particles by ascending distance, keeping each
// parameter vector paired with its own score.
func (pop Population) SortByDist() { sort.Sort(byDist(pop)) }

type byDist Population

func (p byDist) Len() int           { return len(p.Xs) }
func (p byDist) Less(i, j int) bool { return p.Dists[i] < p.Dists[j] }
func (p byDist) Swap(i, j int) {
	p.Xs[i], p.Xs[j] = p.Xs[j], p.Xs[i]
	p.Dists[i], p.Dists[j] = p.Dists[j], p.Dists[i]
}

// Mean returns the per-dimension mean of the population's parameters -
// the posterior-mean estimate once a sampler has converged.
func (pop Population) Mean() []float64 {
	nd := len(pop.Xs[0])
	m := make([]float64, nd)
	vals := make([]float64, len(pop.Xs))
	for d := 0; d < nd; d++ {
		for i, x := range pop.Xs {
			vals[i] = x[d]
		}
		m[d] = stat.Mean(vals, nil)
	}
	return m
}
