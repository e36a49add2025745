// Package random provides a random source that can be shared by every
// worker of a generation phase.
package random

import (
	"math/rand/v2"
	"sync"

	"gonum.org/v1/gonum/stat/distuv"
)

type lockedSource struct {
	mu  sync.Mutex
	src rand.Source
}

func (s *lockedSource) Uint64() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.src.Uint64()
}

// Rand is safe for concurrent use.
type Rand struct {
	src *lockedSource
	r   *rand.Rand
}

func New(seed int64) *Rand {
	src := &lockedSource{src: rand.NewPCG(uint64(seed), uint64(seed)^0x9e3779b97f4a7c15)}
	return &Rand{src: src, r: rand.New(src)}
}

// Float64 returns a uniform sample in [0, 1).
func (r *Rand) Float64() float64 {
	return r.r.Float64()
}

// IntN returns a uniform sample in [0, n). It panics if n <= 0.
func (r *Rand) IntN(n int) int {
	return r.r.IntN(n)
}

// Normal returns a sample from N(mu, sigma).
func (r *Rand) Normal(mu, sigma float64) float64 {
	return distuv.Normal{Mu: mu, Sigma: sigma, Src: r.src}.Rand()
}

// Source exposes the shared source for gonum distributions.
func (r *Rand) Source() rand.Source {
	return r.src
}
