package abc

import "golang.org/x/exp/rand"

// splitmix64 finalizer, used to decorrelate stream seeds.
func splitmix64(x uint64) uint64 {
	x += 0x9e3779b97f4a7c15
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb
	return x ^ (x >> 31)
}

// Streams derives n independently seeded random streams from a master
// seed.  Stream i is a pure function of (seed, i), so a sampler that
// assigns stream i to particle slot i produces identical results for any
// worker count and any scheduling order.
func Streams(seed uint64, n int) []*rand.Rand {
	base := splitmix64(seed)
	rngs := make([]*rand.Rand, n)
	for i := range rngs {
		rngs[i] = rand.New(rand.NewSource(splitmix64(base + uint64(i))))
	}
	return rngs
}
