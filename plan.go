package abc

import "golang.org/x/exp/rand"

// SimFunc runs the stochastic simulator once for the parameter vector x.
// consts is the plan's constant bundle, passed through unchanged on every
// call.  All randomness must come from rng so that runs are reproducible
// under parallel execution.
type SimFunc func(rng *rand.Rand, x []float64, consts any) any

// DistFunc measures how far simulated data falls from observed data.
// Results must be nonnegative; lower is a better fit.
type DistFunc func(sim, obs any) float64

// Plan is the immutable bundle every sampler consumes: a prior, a
// simulator, the observed dataset, and a distance function.  The observed
// data is opaque to the library - it is only ever handed to Dist.
type Plan struct {
	Prior  Dist
	Sim    SimFunc
	Obs    any
	Dist   DistFunc
	Consts any
}

// NewPlan bundles a prior, simulator, observation, and distance into a
// plan with no constants.  Set Consts directly before first use if the
// simulator needs them.
func NewPlan(prior Dist, sim SimFunc, obs any, dist DistFunc) *Plan {
	return &Plan{Prior: prior, Sim: sim, Obs: obs, Dist: dist}
}

// Score simulates at x and measures the result against the observed
// data.  One call is one unit of the samplers' simulation budgets.
func (p *Plan) Score(rng *rand.Rand, x []float64) float64 {
	return p.Dist(p.Sim(rng, x, p.Consts), p.Obs)
}
