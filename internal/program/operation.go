package program

import (
	"context"
	"errors"
	"fmt"

	"progevo/internal/model"
	"progevo/internal/random"
)

var (
	ErrParamIndex     = errors.New("parameter index out of range")
	ErrParamKind      = errors.New("parameter kind mismatch")
	ErrInputKind      = errors.New("unsupported input kind")
	ErrOperationPanic = errors.New("operation panicked")
)

// Operation is the capability surface every program operation exposes.
type Operation interface {
	Name() string
	Activate(ctx context.Context, input model.Value) (model.Value, error)
	// Compose returns the output kind produced for the given input kind.
	Compose(input model.Kind) (model.Kind, error)
	ParamCount() int
	Param(index int) model.Value
	SetParam(index int, value model.Value) error
	Spec() OpSpec
}

// Stateful operations expose an opaque snapshot of their internal state.
type Stateful interface {
	State() any
	SetState(state any)
}

type Resettable interface {
	ResetState()
}

// Mutator operations know how to perturb themselves as a whole.
type Mutator interface {
	Mutate(r *random.Rand, options map[string]model.Value)
}

// Crosser operations combine two parents' opaque states into themselves.
type Crosser interface {
	Crossover(stateA, stateB any)
}

// Container operations own nested operations that are part of the program graph.
type Container interface {
	Children() []Operation
}

type Cleaner interface {
	Cleanup()
}

// params is the shared parameter table embedded by the built-in operations.
type params struct {
	values []model.Value
}

func newParams(values ...model.Value) params {
	return params{values: values}
}

func (p *params) ParamCount() int {
	return len(p.values)
}

func (p *params) Param(index int) model.Value {
	if index < 0 || index >= len(p.values) {
		return model.None()
	}
	return p.values[index].Clone()
}

func (p *params) SetParam(index int, value model.Value) error {
	if index < 0 || index >= len(p.values) {
		return fmt.Errorf("%w: %d", ErrParamIndex, index)
	}
	if current := p.values[index]; current.Kind != value.Kind {
		return fmt.Errorf("%w: index %d holds %s, got %s", ErrParamKind, index, current.Kind, value.Kind)
	}
	if err := value.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrParamKind, err)
	}
	p.values[index] = value.Clone()
	return nil
}

func (p *params) cloneValues() []model.Value {
	out := make([]model.Value, len(p.values))
	for i, v := range p.values {
		out[i] = v.Clone()
	}
	return out
}
