package abc

import (
	"runtime"

	"golang.org/x/exp/rand"
	"golang.org/x/sync/errgroup"
)

// Evaler simulates and scores a batch of parameter vectors against a
// plan.  rngs supplies one random stream per slot; implementations must
// use rngs[i] for slot i only, so results are identical however the work
// is scheduled.  n reports the number of simulations performed.
type Evaler interface {
	Eval(p *Plan, xs [][]float64, rngs []*rand.Rand) (dists []float64, n int)
}

// SerialEvaler evaluates one particle at a time on the calling goroutine.
type SerialEvaler struct{}

func (SerialEvaler) Eval(p *Plan, xs [][]float64, rngs []*rand.Rand) ([]float64, int) {
	dists := make([]float64, len(xs))
	for i, x := range xs {
		dists[i] = p.Score(rngs[i], x)
	}
	return dists, len(xs)
}

// ParallelEvaler fans the batch out across at most MaxWorkers goroutines
// (NumCPU if zero).  Each slot writes only its own entry and reads only
// immutable plan state, so the population slices need no locking.
type ParallelEvaler struct {
	MaxWorkers int
}

func (ev ParallelEvaler) Eval(p *Plan, xs [][]float64, rngs []*rand.Rand) ([]float64, int) {
	dists := make([]float64, len(xs))
	g := new(errgroup.Group)
	g.SetLimit(workers(ev.MaxWorkers))
	for i := range xs {
		g.Go(func() error {
			dists[i] = p.Score(rngs[i], xs[i])
			return nil
		})
	}
	g.Wait()
	return dists, len(xs)
}

// ParFor runs fn(i) for each i in [0, n), fanned out across at most max
// goroutines when parallel is true.  fn must write only state owned by
// its own index.
func ParFor(n, max int, parallel bool, fn func(i int)) {
	if !parallel {
		for i := 0; i < n; i++ {
			fn(i)
		}
		return
	}
	g := new(errgroup.Group)
	g.SetLimit(workers(max))
	for i := 0; i < n; i++ {
		g.Go(func() error {
			fn(i)
			return nil
		})
	}
	g.Wait()
}

func workers(max int) int {
	if max <= 0 {
		return runtime.NumCPU()
	}
	return max
}

// Init draws n independent prior samples, simulates each with the plan's
// constants, and scores them against the observed data.  The returned
// population has size exactly n; nsim is the simulation count (always n
// here, returned for the samplers' budget bookkeeping).
func Init(p *Plan, ev Evaler, n int, rngs []*rand.Rand) (pop Population, nsim int) {
	xs := make([][]float64, n)
	for i := range xs {
		xs[i] = p.Prior.Sample(rngs[i])
	}
	dists, nsim := ev.Eval(p, xs, rngs)
	return Population{Xs: xs, Dists: dists}, nsim
}
