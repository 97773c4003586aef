// Package smcpr implements sequential Monte Carlo ABC with partial
// rejection control.  Each generation keeps the best-fitting fraction of
// the population alive, resamples the rest from the elite, and repairs
// them with an adaptive number of Metropolis mutation steps whose
// kernels track the spread of the particles being replaced.
package smcpr

import (
	"database/sql"
	"fmt"
	"log/slog"
	"math"
	"sync/atomic"

	"golang.org/x/exp/rand"

	"github.com/rwcarlsen/abc"
	"github.com/rwcarlsen/abc/kernel"
)

const (
	DefaultN        = 100
	DefaultMaxSimPP = 200
	DefaultAlpha    = 0.3
	DefaultC        = 0.01

	// rateSmooth keeps the acceptance-rate estimate away from an exact
	// zero that would degenerate the Rt recurrence.
	rateSmooth = 1e-2
)

type Option func(*Sampler)

// N sets the population size.
func N(n int) Option { return func(s *Sampler) { s.n = n } }

// Alpha sets the retained fraction: ceil(alpha*N) elite particles stay
// alive each generation.  The elite must satisfy 2 < ceil(alpha*N) < N-1.
func Alpha(alpha float64) Option { return func(s *Sampler) { s.alpha = alpha } }

// C sets the non-update probability target: the mutation depth Rt is
// chosen so the chance a resampled particle receives no successful
// mutation in a generation falls below c.
func C(c float64) Option { return func(s *Sampler) { s.c = c } }

// MaxSimPP sets the simulation budget to maxsimpp simulations per
// particle.
func MaxSimPP(maxsimpp int) Option { return func(s *Sampler) { s.maxsimpp = maxsimpp } }

// Serial disables the parallel mutation fan-out.
func Serial() Option { return func(s *Sampler) { s.parallel = false } }

// MaxWorkers caps the parallel fan-out (NumCPU if unset).
func MaxWorkers(n int) Option { return func(s *Sampler) { s.workers = n } }

// Seed sets the master seed for the per-particle random streams.
func Seed(seed uint64) Option { return func(s *Sampler) { s.seed = seed } }

// Verbose directs per-generation progress reporting to l.
func Verbose(l *slog.Logger) Option { return func(s *Sampler) { s.log = l } }

// DB records per-generation population snapshots into db.
func DB(db *sql.DB) Option { return func(s *Sampler) { s.db = db } }

type Sampler struct {
	n        int
	alpha    float64
	c        float64
	maxsimpp int
	parallel bool
	workers  int
	seed     uint64
	log      *slog.Logger
	db       *sql.DB
}

func New(opts ...Option) *Sampler {
	s := &Sampler{
		n:        DefaultN,
		alpha:    DefaultAlpha,
		c:        DefaultC,
		maxsimpp: DefaultMaxSimPP,
		parallel: true,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Result is the terminal state of a run.  Eps is the tolerance actually
// achieved; when Converged is true every particle's distance is within
// it.  Rt is the last adapted mutation depth.
type Result struct {
	Pop       abc.Population
	Eps       float64
	Rt        int
	Converged bool
	Nsim      int
}

// Run evolves a population of N particles until the elite tolerance
// falls to eps or the next generation would exceed the budget of
// MaxSimPP*N simulations.
func (s *Sampler) Run(p *abc.Plan, eps float64) (*Result, error) {
	nkeep := int(math.Ceil(s.alpha * float64(s.n)))
	if nkeep <= 2 || nkeep >= s.n-1 {
		return nil, fmt.Errorf("smcpr: retained fraction %v keeps %v of %v particles, need 2 < kept < n-1", s.alpha, nkeep, s.n)
	}
	if s.c <= 0 || s.c >= 1 {
		return nil, fmt.Errorf("smcpr: non-update target %v outside (0, 1)", s.c)
	}
	if s.maxsimpp < 1 {
		return nil, fmt.Errorf("smcpr: invalid simulation budget multiplier %v", s.maxsimpp)
	}
	if err := s.initdb(p.Prior.Len()); err != nil {
		return nil, err
	}

	rngs := abc.Streams(s.seed, s.n)
	pop, nsim := abc.Init(p, s.evaler(), s.n, rngs)
	budget := s.maxsimpp * s.n
	ndead := s.n - nkeep

	rt := 1
	gen := 0
	converged := false
	cur := math.Inf(1)
	for {
		pop.SortByDist()
		cur = pop.Dists[nkeep-1]
		converged = cur <= eps

		// every mutation attempt can cost a simulation, so check the
		// budget against the worst case before committing to a generation
		if !converged && nsim+rt*ndead > budget {
			s.warnf("budget exhausted before convergence", "nsim", nsim, "eps", cur, "target", eps, "rt", rt)
			break
		}
		gen++

		// The resample-and-mutate pass runs once more after the elite
		// tolerance reaches the target: a resampled copy of an elite
		// particle already fits within cur and mutations only commit
		// below it, so the returned population satisfies the achieved
		// tolerance throughout, not just in its elite.
		acc, sims := s.mutate(p, pop, rngs, nkeep, rt, cur)
		nsim += sims

		attempts := rt * ndead
		rate := (float64(acc) + rateSmooth) / (float64(attempts) + rateSmooth)
		rt = nextRt(rate, s.c)

		s.debugf("generation complete", "gen", gen, "eps", cur, "accepted", acc, "rate", rate, "rt", rt, "nsim", nsim)
		s.record(gen, cur, nsim, rt, acc, pop)
		if converged {
			break
		}
	}

	return &Result{Pop: pop, Eps: cur, Rt: rt, Converged: converged, Nsim: nsim}, nil
}

// mutate replaces each dead particle (index nkeep and beyond) with a
// uniformly random elite particle and applies rt Metropolis mutation
// attempts bounded by cur.  Each dead slot is written only by its own
// index, elites are read-only, and the counters are atomic, so the
// fan-out is race-free.
func (s *Sampler) mutate(p *abc.Plan, pop abc.Population, rngs []*rand.Rand, nkeep, rt int, cur float64) (acc, sims int) {
	// kernel widths follow the spread of the particles being replaced
	scales := kernel.Scales(p.Prior, pop.Xs[nkeep:])

	var nacc, nsim atomic.Int64
	abc.ParFor(pop.Len()-nkeep, s.workers, s.parallel, func(k int) {
		i := nkeep + k
		rng := rngs[i]

		// restart from a uniformly random elite particle
		j := rng.Intn(nkeep)
		x := append([]float64(nil), pop.Xs[j]...)
		d := pop.Dists[j]

		for t := 0; t < rt; t++ {
			prop := kernel.Perturb(p.Prior, scales, x, rng)
			w := p.Prior.Density(prop) / p.Prior.Density(x) *
				kernel.Density(p.Prior, scales, prop, x) /
				kernel.Density(p.Prior, scales, x, prop)
			if !(rng.Float64() < w) {
				continue
			}
			nd := p.Score(rng, prop)
			nsim.Add(1)
			if nd > cur {
				// the simulation still counts against the budget
				continue
			}
			x, d = prop, nd
			nacc.Add(1)
		}
		pop.Xs[i] = x
		pop.Dists[i] = d
	})
	return int(nacc.Load()), int(nsim.Load())
}

// nextRt is the number of mutation attempts needed so the probability of
// a particle receiving zero successful mutations at the given acceptance
// rate falls below c: ceil(log(c)/log(1-rate)), never less than 1.
func nextRt(rate, c float64) int {
	rt := int(math.Ceil(math.Log(c) / math.Log(1-rate)))
	if rt < 1 {
		rt = 1
	}
	return rt
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
