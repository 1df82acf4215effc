package kernel

import (
	"math/rand/v2"
)

// seededRand is the deterministic, replay-safe PRNG source spec §9's
// open question recommends: each data source node gets its own PCG
// source seeded from (scenario seed, node id), so two runs with the
// same scenario seed draw the same sequence of values regardless of
// node iteration order elsewhere in the scenario.
type seededRand struct {
	r *rand.Rand
}

func newSeededRand(scenarioSeed int64, nodeID string) *seededRand {
	h := fnv64a(nodeID)
	return &seededRand{r: rand.New(rand.NewPCG(uint64(scenarioSeed), h))}
}

// Float64 returns a value in [0, 1).
func (s *seededRand) Float64() float64 { return s.r.Float64() }

// Uniform returns a value uniformly distributed in [min, max].
func (s *seededRand) Uniform(min, max float64) float64 {
	if max <= min {
		return min
	}
	return min + s.r.Float64()*(max-min)
}

func fnv64a(s string) uint64 {
	const (
		offset = 14695981039346656037
		prime  = 1099511628211
	)
	h := uint64(offset)
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= prime
	}
	return h
}
