package mutation

import (
	"context"
	"errors"
	"fmt"

	"progevo/internal/model"
	"progevo/internal/program"
)

var (
	ErrMissingWrapped      = errors.New("mutant has no wrapped operation")
	ErrIndexOutOfRange     = errors.New("mutant index out of range")
	ErrMutatorTypeMismatch = errors.New("mutator output kind differs from parameter kind")
	ErrTooManyMutators     = errors.New("more mutators than mutable indices")
)

const MutantName = "Mutant"

func init() {
	program.MustRegister(MutantName, buildMutant)
}

// Mutant marks the wrapped operation as a genome locus. Indices lists the
// evolvable parameter slots; Mutations[i], when present, is the program run
// to produce a new value for Indices[i].
type Mutant struct {
	wrapped   program.Operation
	indices   []int
	mutations []*program.Program
	options   map[string]model.Value
}

func NewMutant(wrapped program.Operation, indices []int, mutations []*program.Program, options map[string]model.Value) *Mutant {
	return &Mutant{
		wrapped:   wrapped,
		indices:   append([]int(nil), indices...),
		mutations: append([]*program.Program(nil), mutations...),
		options:   cloneOptions(options),
	}
}

func buildMutant(spec program.OpSpec) (program.Operation, error) {
	if len(spec.Children) != 1 {
		return nil, fmt.Errorf("%w: got %d children", ErrMissingWrapped, len(spec.Children))
	}
	wrapped, err := program.Build(spec.Children[0])
	if err != nil {
		return nil, err
	}
	mutations := make([]*program.Program, len(spec.Mutations))
	for i, mspec := range spec.Mutations {
		if mspec == nil {
			continue
		}
		m, err := program.BuildProgram(*mspec)
		if err != nil {
			return nil, fmt.Errorf("mutation %d: %w", i, err)
		}
		mutations[i] = m
	}
	return &Mutant{
		wrapped:   wrapped,
		indices:   append([]int(nil), spec.Indices...),
		mutations: mutations,
		options:   cloneOptions(spec.Options),
	}, nil
}

func (m *Mutant) Name() string { return MutantName }

func (m *Mutant) Wrapped() program.Operation { return m.wrapped }

func (m *Mutant) Indices() []int { return m.indices }

func (m *Mutant) Options() map[string]model.Value { return m.options }

// Mutator returns the custom mutation program for the position in Indices, or nil.
func (m *Mutant) Mutator(position int) *program.Program {
	if position < 0 || position >= len(m.mutations) {
		return nil
	}
	return m.mutations[position]
}

func (m *Mutant) Activate(ctx context.Context, input model.Value) (model.Value, error) {
	if m.wrapped == nil {
		return model.None(), ErrMissingWrapped
	}
	return m.wrapped.Activate(ctx, input)
}

// Compose validates the locus configuration before delegating to the wrapped
// operation: indices must address real parameter slots and every custom
// mutator must map the parameter's kind to itself.
func (m *Mutant) Compose(input model.Kind) (model.Kind, error) {
	if m.wrapped == nil {
		return model.KindNone, ErrMissingWrapped
	}
	count := m.wrapped.ParamCount()
	for _, idx := range m.indices {
		if idx < 0 || idx >= count {
			return model.KindNone, fmt.Errorf("%w: %s has %d params, got index %d", ErrIndexOutOfRange, m.wrapped.Name(), count, idx)
		}
	}
	if len(m.mutations) > len(m.indices) {
		return model.KindNone, fmt.Errorf("%w: %d mutators for %d indices", ErrTooManyMutators, len(m.mutations), len(m.indices))
	}
	for i, mutator := range m.mutations {
		if mutator == nil {
			continue
		}
		kind := m.wrapped.Param(m.indices[i]).Kind
		out, err := mutator.Compose(kind)
		if err != nil {
			return model.KindNone, fmt.Errorf("mutator for param %d: %w", m.indices[i], err)
		}
		if out != kind {
			return model.KindNone, fmt.Errorf("%w: param %d is %s, mutator yields %s", ErrMutatorTypeMismatch, m.indices[i], kind, out)
		}
	}
	return m.wrapped.Compose(input)
}

// The mutant itself has no parameters; the evolvable ones belong to the wrapped operation.
func (m *Mutant) ParamCount() int { return 0 }

func (m *Mutant) Param(_ int) model.Value { return model.None() }

func (m *Mutant) SetParam(index int, _ model.Value) error {
	return fmt.Errorf("%w: %d", program.ErrParamIndex, index)
}

func (m *Mutant) Spec() program.OpSpec {
	spec := program.OpSpec{
		Op:      MutantName,
		Indices: append([]int(nil), m.indices...),
		Options: cloneOptions(m.options),
	}
	if m.wrapped != nil {
		spec.Children = []program.OpSpec{m.wrapped.Spec()}
	}
	if len(m.mutations) > 0 {
		spec.Mutations = make([]*program.ProgramSpec, len(m.mutations))
		for i, mutator := range m.mutations {
			if mutator == nil {
				continue
			}
			mspec := mutator.Spec()
			spec.Mutations[i] = &mspec
		}
	}
	return spec
}

func (m *Mutant) Children() []program.Operation {
	if m.wrapped == nil {
		return nil
	}
	return []program.Operation{m.wrapped}
}

func (m *Mutant) Cleanup() {
	for _, mutator := range m.mutations {
		if mutator != nil {
			mutator.Stop()
		}
	}
}

func cloneOptions(options map[string]model.Value) map[string]model.Value {
	if options == nil {
		return nil
	}
	out := make(map[string]model.Value, len(options))
	for k, v := range options {
		out[k] = v.Clone()
	}
	return out
}
