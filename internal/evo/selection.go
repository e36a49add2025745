package evo

import (
	"math"

	"progevo/internal/random"
)

// DefaultSelectionExponent biases crossover parents strongly toward the top
// of the ranking.
const DefaultSelectionExponent = 4

// Selector picks a position in a ranking of n individuals, best first.
type Selector interface {
	Name() string
	PickParent(r *random.Rand, n int) int
}

// PowerSelector picks floor(u^Exponent * n) for uniform u.
type PowerSelector struct {
	Exponent float64
}

func (PowerSelector) Name() string {
	return "power"
}

func (s PowerSelector) PickParent(r *random.Rand, n int) int {
	if n <= 0 {
		return 0
	}
	exponent := s.Exponent
	if exponent <= 0 {
		exponent = DefaultSelectionExponent
	}
	return clampPosition(int(math.Floor(math.Pow(r.Float64(), exponent)*float64(n))), n)
}

// TournamentSelector samples Size positions and keeps the best ranked one.
type TournamentSelector struct {
	Size int
}

func (TournamentSelector) Name() string {
	return "tournament"
}

func (s TournamentSelector) PickParent(r *random.Rand, n int) int {
	if n <= 0 {
		return 0
	}
	size := s.Size
	if size <= 0 {
		size = 3
	}
	best := r.IntN(n)
	for i := 1; i < size; i++ {
		best = min(best, r.IntN(n))
	}
	return best
}

// UniformSelector ignores rank.
type UniformSelector struct{}

func (UniformSelector) Name() string {
	return "uniform"
}

func (UniformSelector) PickParent(r *random.Rand, n int) int {
	if n <= 0 {
		return 0
	}
	return r.IntN(n)
}

func clampPosition(pos, n int) int {
	if pos < 0 {
		return 0
	}
	if pos >= n {
		return n - 1
	}
	return pos
}
