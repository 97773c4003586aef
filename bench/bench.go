// Package bench provides inference scenarios with known posteriors for
// exercising the samplers, plus a test harness that checks a sampler's
// output against a scenario's expected posterior summary.
package bench

import (
	"math"
	"testing"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/rwcarlsen/abc"
)

// Scenario is one inference problem: a plan, the target tolerance to run
// to, and (when the posterior is known) the expected posterior mean with
// per-dimension allowed error.
type Scenario struct {
	Name string
	Plan *abc.Plan
	Eps  float64
	Mean []float64 // expected posterior mean, nil to skip the check
	Tol  []float64 // allowed absolute error per dimension
}

func All() []Scenario {
	return []Scenario{NormalMap(), MeanShift(), CoinFlips()}
}

// NormalMap is a deterministic single-parameter problem: the simulator
// maps mu to mu^2+c with c = 1 and the observation is 1.5, so the
// posterior concentrates on mu = 1/sqrt(2) - the prior Normal(1, 0.2)
// carries essentially no mass near the negative root.
func NormalMap() Scenario {
	prior := abc.NewContinuous(distuv.Normal{Mu: 1, Sigma: 0.2})
	sim := func(rng *rand.Rand, x []float64, consts any) any {
		return x[0]*x[0] + consts.(float64)
	}
	dist := func(sim, obs any) float64 {
		return math.Abs(sim.(float64) - obs.(float64))
	}
	plan := abc.NewPlan(prior, sim, 1.5, dist)
	plan.Consts = 1.0
	return Scenario{
		Name: "normalmap",
		Plan: plan,
		Eps:  0.02,
		Mean: []float64{1 / math.Sqrt2},
		Tol:  []float64{0.08},
	}
}

// MeanShift estimates the mean of a normal population: the observed data
// is 1000 ones, the simulator draws 1000 standard normal variates
// shifted by mu, and the distance compares sample means.  The posterior
// mean is 1 to within the prior's shrinkage.
func MeanShift() Scenario {
	const ndata = 1000
	prior := abc.NewContinuous(distuv.Normal{Mu: 0, Sigma: 1})
	obs := make([]float64, ndata)
	for i := range obs {
		obs[i] = 1
	}
	sim := func(rng *rand.Rand, x []float64, _ any) any {
		data := make([]float64, ndata)
		for i := range data {
			data[i] = x[0] + rng.NormFloat64()
		}
		return data
	}
	dist := func(sim, obs any) float64 {
		return math.Abs(stat.Mean(sim.([]float64), nil) - stat.Mean(obs.([]float64), nil))
	}
	return Scenario{
		Name: "meanshift",
		Plan: abc.NewPlan(prior, sim, obs, dist),
		Eps:  0.25 / math.Sqrt(ndata),
		Mean: []float64{1},
		Tol:  []float64{0.15},
	}
}

// CoinFlips is a mixed-support problem exercising the factored prior: an
// unknown integer number of coin tosses and an unknown continuous bias,
// observed through a single binomial head count of 50.  The posterior is
// a ridge along tosses*bias = 50, so only convergence is checked.
func CoinFlips() Scenario {
	prior := abc.Factored{
		abc.NewIntUniform(1, 100),
		abc.Continuous{M: distuv.Uniform{Min: 0, Max: 1}, Low: 0, Up: 1},
	}
	sim := func(rng *rand.Rand, x []float64, _ any) any {
		bin := distuv.Binomial{N: x[0], P: x[1], Src: rng}
		return bin.Rand()
	}
	dist := func(sim, obs any) float64 {
		return math.Abs(sim.(float64) - obs.(float64))
	}
	return Scenario{
		Name: "coinflips",
		Plan: abc.NewPlan(prior, sim, 50.0, dist),
		Eps:  1.0,
	}
}

// Runner adapts one sampler invocation to the harness: run the plan to
// tolerance eps and return the terminal population, the tolerance
// achieved, and whether the sampler converged.
type Runner func(p *abc.Plan, eps float64) (pop abc.Population, eps2 float64, converged bool, err error)

// Benchmark runs a sampler against a scenario and checks the population
// it returns: convergence, every distance within the achieved tolerance,
// and the posterior mean when the scenario pins one down.
func Benchmark(t *testing.T, sc Scenario, run Runner) {
	pop, eps, converged, err := run(sc.Plan, sc.Eps)
	if err != nil {
		t.Fatalf("[%v] %v", sc.Name, err)
	}
	if !converged {
		t.Errorf("[%v] did not converge to eps=%v", sc.Name, sc.Eps)
		return
	}
	if eps > sc.Eps {
		t.Errorf("[%v] achieved eps %v worse than target %v", sc.Name, eps, sc.Eps)
	}
	for i, d := range pop.Dists {
		if d > eps {
			t.Errorf("[%v] particle %v dist %v exceeds achieved eps %v", sc.Name, i, d, eps)
		}
	}

	mean := pop.Mean()
	if sc.Mean != nil {
		for d := range sc.Mean {
			if diff := math.Abs(mean[d] - sc.Mean[d]); diff > sc.Tol[d] {
				t.Errorf("[%v] posterior mean[%v] = %v, want %v +/- %v", sc.Name, d, mean[d], sc.Mean[d], sc.Tol[d])
			}
		}
	}
	t.Logf("[%v] n=%v eps=%v mean=%v", sc.Name, pop.Len(), eps, mean)
}
