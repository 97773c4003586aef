// Package abcde implements an adaptive-tolerance ABC sampler driven by
// differential-evolution proposals.  Each generation blends a tolerance
// between the population's best and worst distances and mutates the
// particles above it; the tolerance tightens as the population improves
// until every particle fits within the target or the simulation budget
// runs out.
package abcde

import (
	"database/sql"
	"fmt"
	"log/slog"
	"math"
	"sync/atomic"

	"golang.org/x/exp/rand"

	"github.com/rwcarlsen/abc"
)

const (
	DefaultN        = 50
	DefaultMaxSimPP = 200
	DefaultBlend    = 1.0 / 3.0
)

type Option func(*Sampler)

// N sets the population size (at least 4 - the differential-evolution
// proposal needs three distinct references besides the target).
func N(n int) Option { return func(s *Sampler) { s.n = n } }

// MaxSimPP sets the simulation budget to maxsimpp simulations per
// particle.
func MaxSimPP(maxsimpp int) Option { return func(s *Sampler) { s.maxsimpp = maxsimpp } }

// Blend sets the tolerance blend factor in (0, 1): each generation's
// tolerance is (1-blend)*min + blend*max of the current distances.
func Blend(alpha float64) Option { return func(s *Sampler) { s.blend = alpha } }

// ExtraSteps appends k additional full mutation rounds at the frozen
// final tolerance after convergence, growing the output to (1+k)*N
// correlated posterior draws.
func ExtraSteps(k int) Option { return func(s *Sampler) { s.extra = k } }

// Serial disables the parallel mutation fan-out.
func Serial() Option { return func(s *Sampler) { s.parallel = false } }

// MaxWorkers caps the parallel fan-out (NumCPU if unset).
func MaxWorkers(n int) Option { return func(s *Sampler) { s.workers = n } }

// Seed sets the master seed for the per-particle random streams.
func Seed(seed uint64) Option { return func(s *Sampler) { s.seed = seed } }

// Verbose directs per-generation progress reporting to l.
func Verbose(l *slog.Logger) Option { return func(s *Sampler) { s.log = l } }

// DB records per-generation population snapshots into db (see initdb for
// the schema).
func DB(db *sql.DB) Option { return func(s *Sampler) { s.db = db } }

type Sampler struct {
	n        int
	maxsimpp int
	blend    float64
	extra    int
	parallel bool
	workers  int
	seed     uint64
	log      *slog.Logger
	db       *sql.DB
}

func New(opts ...Option) *Sampler {
	s := &Sampler{
		n:        DefaultN,
		maxsimpp: DefaultMaxSimPP,
		blend:    DefaultBlend,
		parallel: true,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Result is the terminal state of a run.  When Converged is false the
// population is the best effort reached within the simulation budget and
// Eps reports the tolerance actually achieved.
type Result struct {
	Pop       abc.Population
	Eps       float64
	Converged bool
	Nsim      int
}

// Run evolves a population of N particles until max(distances) <= eps or
// the budget of MaxSimPP*N simulations is exhausted.
func (s *Sampler) Run(p *abc.Plan, eps float64) (*Result, error) {
	if s.n < 4 {
		return nil, fmt.Errorf("abcde: differential evolution needs at least 4 particles, got %v", s.n)
	}
	if s.blend <= 0 || s.blend >= 1 {
		return nil, fmt.Errorf("abcde: blend factor %v outside (0, 1)", s.blend)
	}
	if s.maxsimpp < 1 {
		return nil, fmt.Errorf("abcde: invalid simulation budget multiplier %v", s.maxsimpp)
	}
	if err := s.initdb(p.Prior.Len()); err != nil {
		return nil, err
	}

	rngs := abc.Streams(s.seed, s.n)
	ev := s.evaler()
	pop, nsim := abc.Init(p, ev, s.n, rngs)
	budget := s.maxsimpp * s.n
	gamma := degamma(p.Prior.Len())

	gen := 0
	cur := math.Max(pop.Blend(s.blend), eps)
	converged := pop.MaxDist() <= eps
	for !converged {
		if nsim >= budget {
			s.warnf("budget exhausted before convergence", "nsim", nsim, "eps", pop.MaxDist(), "target", eps)
			break
		}
		gen++
		cur = math.Max(pop.Blend(s.blend), eps)

		idx := above(pop.Dists, cur)
		if len(idx) == 0 {
			// the population collapsed onto a single distance; mutate
			// everyone so the chain keeps moving
			idx = all(pop.Len())
		}
		n := s.step(p, pop, rngs, gamma, cur, idx)
		nsim += n

		converged = pop.MaxDist() <= eps
		s.debugf("generation complete", "gen", gen, "eps", cur, "mutated", len(idx), "nsim", nsim, "max", pop.MaxDist())
		s.record(gen, cur, nsim, len(idx), pop)
	}

	out := pop
	if converged && s.extra > 0 {
		work := pop.Clone()
		for k := 0; k < s.extra; k++ {
			gen++
			nsim += s.step(p, work, rngs, gamma, cur, all(work.Len()))
			out.Append(work.Clone())
			s.record(gen, cur, nsim, work.Len(), work)
		}
	}

	// Eps covers the whole returned population, extension rounds
	// included - their commits stay below the frozen tolerance but can
	// sit above the core generation's maximum.
	return &Result{Pop: out, Eps: out.MaxDist(), Converged: converged, Nsim: nsim}, nil
}

// step runs one mutation round at tolerance cur over the particles in
// idx.  Proposals read a frozen copy of the generation while commits
// write each particle's own slot, so the fan-out needs no locking.  The
// acceptance gate is the prior-density ratio alone: the
// differential-evolution proposal is treated as symmetric, a modeling
// approximation inherited from the algorithm's design.
func (s *Sampler) step(p *abc.Plan, pop abc.Population, rngs []*rand.Rand, gamma, cur float64, idx []int) int {
	ref := pop.Clone()
	var nsim atomic.Int64
	abc.ParFor(len(idx), s.workers, s.parallel, func(k int) {
		i := idx[k]
		rng := rngs[i]

		x := deperturb(p.Prior, ref, i, gamma, rng)
		w := p.Prior.Density(x) / p.Prior.Density(ref.Xs[i])
		if !(rng.Float64() < w) {
			return
		}

		d := p.Score(rng, x)
		nsim.Add(1)
		// commit below the shared tolerance, or greedily on any local
		// improvement so particles drift between tightenings
		if d < cur || d < pop.Dists[i] {
			pop.Xs[i] = x
			pop.Dists[i] = d
		}
	})
	return int(nsim.Load())
}

func (s *Sampler) evaler() abc.Evaler {
	if !s.parallel {
		return abc.SerialEvaler{}
	}
	return abc.ParallelEvaler{MaxWorkers: s.workers}
}

func (s *Sampler) debugf(msg string, args ...any) {
	if s.log != nil {
		s.log.Debug(msg, args...)
	}
}

func (s *Sampler) warnf(msg string, args ...any) {
	if s.log != nil {
		s.log.Warn(msg, args...)
	}
}

func above(dists []float64, cur float64) []int {
	idx := make([]int, 0, len(dists))
	for i, d := range dists {
		if d > cur {
			idx = append(idx, i)
		}
	}
	return idx
}

func all(n int) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	return idx
}
