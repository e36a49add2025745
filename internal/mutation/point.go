package mutation

import (
	"context"
	"errors"
	"fmt"

	"progevo/internal/model"
	"progevo/internal/program"
	"progevo/internal/random"
)

const (
	takeParentA = 0.33
	takeParentB = 0.66
)

type indexedValue struct {
	index int
	value model.Value
}

// Point is one genome locus: a Mutant found inside a live program together
// with the snapshots needed to reset or roll it back.
type Point struct {
	mutant   *Mutant
	original []indexedValue

	saved  bool
	state  any
	params []model.Value
}

// Gather returns one Point per Mutant in program traversal order, nested
// containers included.
func Gather(p *program.Program) []*Point {
	var points []*Point
	p.Walk(func(op program.Operation) bool {
		if m, ok := op.(*Mutant); ok {
			points = append(points, newPoint(m))
		}
		return true
	})
	return points
}

func newPoint(m *Mutant) *Point {
	pt := &Point{mutant: m}
	if m.wrapped == nil {
		return pt
	}
	pt.original = make([]indexedValue, 0, len(m.indices))
	for _, idx := range m.indices {
		pt.original = append(pt.original, indexedValue{index: idx, value: m.wrapped.Param(idx)})
	}
	return pt
}

func (pt *Point) Mutant() *Mutant { return pt.mutant }

// Operation returns the wrapped operation whose parameters this locus evolves.
func (pt *Point) Operation() program.Operation { return pt.mutant.wrapped }

// Mutate perturbs the locus with probability rate. When the wrapped operation
// has its own Mutator hook it is used if there are no indices, or on a coin
// flip otherwise. Reports whether anything changed.
func (pt *Point) Mutate(ctx context.Context, r *random.Rand, rate float64) (bool, error) {
	op := pt.mutant.wrapped
	if op == nil || r.Float64() >= rate {
		return false, nil
	}
	indices := pt.mutant.indices
	if mutator, ok := op.(program.Mutator); ok && (len(indices) == 0 || r.Float64() < 0.5) {
		mutator.Mutate(r, pt.mutant.options)
		return true, nil
	}
	if len(indices) == 0 {
		return false, nil
	}

	position := r.IntN(len(indices))
	idx := indices[position]
	current := op.Param(idx)
	if custom := pt.mutant.Mutator(position); custom != nil {
		out, err := custom.Run(ctx, current)
		if err != nil {
			return false, fmt.Errorf("mutator for %s param %d: %w", op.Name(), idx, err)
		}
		current = out
	} else {
		MutateValue(r, &current)
	}
	if err := op.SetParam(idx, current); err != nil {
		return false, fmt.Errorf("mutate %s param %d: %w", op.Name(), idx, err)
	}
	return true, nil
}

// Crossover recombines this locus from the matching loci of two parents.
func (pt *Point) Crossover(r *random.Rand, a, b *Point) error {
	child := pt.mutant.wrapped
	if child == nil {
		return nil
	}
	parentA := a.mutant.wrapped
	parentB := b.mutant.wrapped
	if crosser, ok := child.(program.Crosser); ok {
		crosser.Crossover(stateOf(parentA), stateOf(parentB))
	}
	for _, idx := range pt.mutant.indices {
		roll := r.Float64()
		var source program.Operation
		switch {
		case roll < takeParentA:
			source = parentA
		case roll < takeParentB:
			source = parentB
		default:
			continue
		}
		if source == nil {
			continue
		}
		if err := child.SetParam(idx, source.Param(idx)); err != nil {
			return fmt.Errorf("crossover %s param %d: %w", child.Name(), idx, err)
		}
	}
	return nil
}

func stateOf(op program.Operation) any {
	if s, ok := op.(program.Stateful); ok {
		return s.State()
	}
	return nil
}

// Reset restores the parameters captured at gather time, clears the
// operation's internal state and drops any saved snapshot.
func (pt *Point) Reset() error {
	op := pt.mutant.wrapped
	if op == nil {
		return nil
	}
	if r, ok := op.(program.Resettable); ok {
		r.ResetState()
	}
	pt.saved = false
	pt.state = nil
	pt.params = nil
	for _, iv := range pt.original {
		if err := op.SetParam(iv.index, iv.value); err != nil {
			return fmt.Errorf("reset %s param %d: %w", op.Name(), iv.index, err)
		}
	}
	return nil
}

// SaveState captures the operation's opaque state, when it has one, and the
// current value of every mutable parameter.
func (pt *Point) SaveState() {
	op := pt.mutant.wrapped
	if op == nil {
		return
	}
	pt.state = stateOf(op)
	pt.params = make([]model.Value, 0, len(pt.mutant.indices))
	for _, idx := range pt.mutant.indices {
		pt.params = append(pt.params, op.Param(idx))
	}
	pt.saved = true
}

// RestoreState writes the last saved snapshot back. It is a no-op if nothing
// was saved or the saved parameter count no longer matches.
func (pt *Point) RestoreState() error {
	op := pt.mutant.wrapped
	if op == nil || !pt.saved {
		return nil
	}
	if s, ok := op.(program.Stateful); ok && pt.state != nil {
		s.SetState(pt.state)
	}
	if len(pt.params) != len(pt.mutant.indices) {
		return nil
	}
	for i, idx := range pt.mutant.indices {
		if err := op.SetParam(idx, pt.params[i]); err != nil {
			return fmt.Errorf("restore %s param %d: %w", op.Name(), idx, err)
		}
	}
	return nil
}

func (pt *Point) Saved() bool { return pt.saved }

// MutateAll mutates every point and returns how many changed.
func MutateAll(ctx context.Context, r *random.Rand, points []*Point, rate float64) (int, error) {
	var (
		changed int
		errs    []error
	)
	for _, pt := range points {
		ok, err := pt.Mutate(ctx, r, rate)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if ok {
			changed++
		}
	}
	return changed, errors.Join(errs...)
}

// CrossoverAll pairs loci positionally; programs cloned from the same base
// share the same point layout.
func CrossoverAll(r *random.Rand, child, a, b []*Point) error {
	n := min(len(child), len(a), len(b))
	var errs []error
	for i := 0; i < n; i++ {
		if err := child[i].Crossover(r, a[i], b[i]); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func ResetAll(points []*Point) error {
	var errs []error
	for _, pt := range points {
		if err := pt.Reset(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func SaveAll(points []*Point) {
	for _, pt := range points {
		pt.SaveState()
	}
}

func RestoreAll(points []*Point) error {
	var errs []error
	for _, pt := range points {
		if err := pt.RestoreState(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
