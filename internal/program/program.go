package program

import (
	"context"
	"fmt"

	"progevo/internal/model"
)

// NoOwner marks a program that is not held by any population member.
const NoOwner = -1

// Program is an ordered chain of operations. The output of each operation is
// the input of the next one; the last output is the program's result.
type Program struct {
	name  string
	ops   []Operation
	owner int
}

func New(name string, ops ...Operation) *Program {
	return &Program{name: name, ops: ops, owner: NoOwner}
}

func (p *Program) Name() string {
	return p.name
}

func (p *Program) Ops() []Operation {
	return p.ops
}

// Owner returns the handle of the population member holding this program.
func (p *Program) Owner() int {
	return p.owner
}

func (p *Program) SetOwner(handle int) {
	p.owner = handle
}

// Run activates every operation in order and returns the last produced value.
// A panicking operation is reported as ErrOperationPanic.
func (p *Program) Run(ctx context.Context, input model.Value) (model.Value, error) {
	current := input
	for i, op := range p.ops {
		if err := ctx.Err(); err != nil {
			return model.None(), err
		}
		out, err := activate(ctx, op, current)
		if err != nil {
			return model.None(), fmt.Errorf("program %s: op %d (%s): %w", p.name, i, op.Name(), err)
		}
		current = out
	}
	return current, nil
}

func activate(ctx context.Context, op Operation, input model.Value) (out model.Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = model.None()
			err = fmt.Errorf("%w: %v", ErrOperationPanic, r)
		}
	}()
	return op.Activate(ctx, input)
}

// Compose validates the operation chain for the given input kind and returns
// the program's output kind.
func (p *Program) Compose(input model.Kind) (model.Kind, error) {
	return composeChain(p.ops, input)
}

func composeChain(ops []Operation, input model.Kind) (model.Kind, error) {
	current := input
	for i, op := range ops {
		out, err := op.Compose(current)
		if err != nil {
			return model.KindNone, fmt.Errorf("compose op %d (%s): %w", i, op.Name(), err)
		}
		current = out
	}
	return current, nil
}

// Walk visits every operation in program order, descending into containers.
// Returning false from fn stops the walk.
func (p *Program) Walk(fn func(op Operation) bool) {
	walk(p.ops, fn)
}

func walk(ops []Operation, fn func(op Operation) bool) bool {
	for _, op := range ops {
		if !fn(op) {
			return false
		}
		if container, ok := op.(Container); ok {
			if !walk(container.Children(), fn) {
				return false
			}
		}
	}
	return true
}

// ResetStates clears the internal state of every Resettable operation, so the
// next run starts from the same state as a fresh clone.
func (p *Program) ResetStates() {
	p.Walk(func(op Operation) bool {
		if r, ok := op.(Resettable); ok {
			r.ResetState()
		}
		return true
	})
}

// Stop releases resources held by the program's operations.
func (p *Program) Stop() {
	p.Walk(func(op Operation) bool {
		if cleaner, ok := op.(Cleaner); ok {
			cleaner.Cleanup()
		}
		return true
	})
}

func (p *Program) Spec() ProgramSpec {
	spec := ProgramSpec{
		VersionedRecord: model.VersionedRecord{SchemaVersion: SupportedSchemaVersion, CodecVersion: SupportedCodecVersion},
		Name:            p.name,
		Ops:             make([]OpSpec, 0, len(p.ops)),
	}
	for _, op := range p.ops {
		spec.Ops = append(spec.Ops, op.Spec())
	}
	return spec
}

// Clone returns an independent copy with fresh internal state and no owner.
func (p *Program) Clone() (*Program, error) {
	data, err := p.Encode()
	if err != nil {
		return nil, err
	}
	return Decode(data)
}
