// Package reject implements plain ABC rejection sampling: simulate many
// particles from the prior, keep the fraction that fit the observed data
// best.  It is the baseline correctness reference for the adaptive
// samplers.
package reject

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/petar/GoLLRB/llrb"

	"github.com/rwcarlsen/abc"
)

type Option func(*Sampler)

// Evaler substitutes the engine used for the simulate-and-score fan-out.
func Evaler(ev abc.Evaler) Option {
	return func(s *Sampler) { s.ev = ev }
}

// Seed sets the master seed for the per-particle random streams.
func Seed(seed uint64) Option {
	return func(s *Sampler) { s.seed = seed }
}

// Verbose directs progress reporting to l.
func Verbose(l *slog.Logger) Option {
	return func(s *Sampler) { s.log = l }
}

// Sampler retains the N best-fitting of ceil(N/Target) simulated
// particles.  Target is the acceptance fraction in (0, 1].
type Sampler struct {
	N      int
	Target float64
	ev     abc.Evaler
	seed   uint64
	log    *slog.Logger
}

func New(n int, target float64, opts ...Option) *Sampler {
	s := &Sampler{N: n, Target: target, ev: abc.ParallelEvaler{}}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Result is a rejection-sampling posterior sample.  Eps is the largest
// retained distance - the empirical acceptance-fraction quantile of the
// simulated distances.
type Result struct {
	Pop  abc.Population
	Eps  float64
	Nsim int
}

type item struct {
	x    []float64
	dist float64
}

func (a item) Less(than llrb.Item) bool { return a.dist < than.(item).dist }

// Run simulates ceil(N/Target) particles and returns the N with the
// smallest distances.  With Target == 1 this is the plain initial sample
// and Eps equals the maximum simulated distance.
func (s *Sampler) Run(p *abc.Plan) (*Result, error) {
	if s.N < 1 {
		return nil, fmt.Errorf("reject: need at least 1 particle, got %v", s.N)
	}
	if s.Target <= 0 || s.Target > 1 {
		return nil, fmt.Errorf("reject: acceptance target %v outside (0, 1]", s.Target)
	}

	m := int(math.Ceil(float64(s.N) / s.Target))
	rngs := abc.Streams(s.seed, m)
	pop, nsim := abc.Init(p, s.ev, m, rngs)

	// stream the candidates through a tree that holds only the current
	// best N, rather than sorting all m
	tree := llrb.New()
	for i := range pop.Dists {
		tree.InsertNoReplace(item{x: pop.Xs[i], dist: pop.Dists[i]})
		if tree.Len() > s.N {
			tree.DeleteMax()
		}
	}

	out := abc.Population{
		Xs:    make([][]float64, 0, s.N),
		Dists: make([]float64, 0, s.N),
	}
	for tree.Len() > 0 {
		it := tree.DeleteMin().(item)
		out.Xs = append(out.Xs, it.x)
		out.Dists = append(out.Dists, it.dist)
	}

	eps := out.Dists[len(out.Dists)-1]
	if s.log != nil {
		s.log.Info("rejection sample complete", "n", s.N, "simulated", m, "eps", eps)
	}
	return &Result{Pop: out, Eps: eps, Nsim: nsim}, nil
}
