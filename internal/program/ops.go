package program

import (
	"context"
	"errors"
	"fmt"

	"progevo/internal/model"
	"progevo/internal/random"
)

// Const emits its parameter regardless of input.
type Const struct {
	params
}

func NewConst(v model.Value) *Const {
	return &Const{params: newParams(v.Clone())}
}

func buildConst(spec OpSpec) (Operation, error) {
	v, err := paramAt(spec, 0, model.KindAny, model.None())
	if err != nil {
		return nil, err
	}
	return NewConst(v), nil
}

func (o *Const) Name() string { return "Const" }

func (o *Const) Activate(_ context.Context, _ model.Value) (model.Value, error) {
	return o.values[0].Clone(), nil
}

func (o *Const) Compose(_ model.Kind) (model.Kind, error) {
	return o.values[0].Kind, nil
}

func (o *Const) Spec() OpSpec {
	return OpSpec{Op: o.Name(), Params: o.cloneValues()}
}

// Identity passes its input through.
type Identity struct {
	params
}

func NewIdentity() *Identity {
	return &Identity{}
}

func buildIdentity(_ OpSpec) (Operation, error) {
	return NewIdentity(), nil
}

func (o *Identity) Name() string { return "Identity" }

func (o *Identity) Activate(_ context.Context, input model.Value) (model.Value, error) {
	return input, nil
}

func (o *Identity) Compose(input model.Kind) (model.Kind, error) {
	return input, nil
}

func (o *Identity) Spec() OpSpec {
	return OpSpec{Op: o.Name()}
}

// Arith combines its input lane-wise with a numeric operand of the same kind.
type Arith struct {
	params
	name      string
	floatOp   func(a, b float64) float64
	integerOp func(a, b int64) int64
}

func NewAdd(operand model.Value) *Arith {
	return &Arith{
		params:    newParams(operand.Clone()),
		name:      "Add",
		floatOp:   func(a, b float64) float64 { return a + b },
		integerOp: func(a, b int64) int64 { return a + b },
	}
}

func NewMul(operand model.Value) *Arith {
	return &Arith{
		params:    newParams(operand.Clone()),
		name:      "Mul",
		floatOp:   func(a, b float64) float64 { return a * b },
		integerOp: func(a, b int64) int64 { return a * b },
	}
}

func buildAdd(spec OpSpec) (Operation, error) {
	v, err := paramAt(spec, 0, model.KindAny, model.Float(0))
	if err != nil {
		return nil, err
	}
	return NewAdd(v), nil
}

func buildMul(spec OpSpec) (Operation, error) {
	v, err := paramAt(spec, 0, model.KindAny, model.Float(1))
	if err != nil {
		return nil, err
	}
	return NewMul(v), nil
}

func (o *Arith) Name() string { return o.name }

func (o *Arith) Activate(_ context.Context, input model.Value) (model.Value, error) {
	operand := o.values[0]
	if input.Kind != operand.Kind {
		return model.None(), fmt.Errorf("%w: %s with %s operand", ErrInputKind, input.Kind, operand.Kind)
	}
	out := input.Clone()
	switch {
	case operand.Kind.IsInt():
		for i := range out.Ints {
			out.Ints[i] = model.TruncateInt(operand.Kind, o.integerOp(out.Ints[i], operand.Ints[i]))
		}
	case operand.Kind.IsFloat():
		for i := range out.Floats {
			out.Floats[i] = model.RoundFloat(operand.Kind, o.floatOp(out.Floats[i], operand.Floats[i]))
		}
	default:
		return model.None(), fmt.Errorf("%w: %s operand is not numeric", ErrInputKind, operand.Kind)
	}
	return out, nil
}

func (o *Arith) Compose(input model.Kind) (model.Kind, error) {
	kind := o.values[0].Kind
	if !kind.IsInt() && !kind.IsFloat() {
		return model.KindNone, fmt.Errorf("%w: %s operand is not numeric", ErrParamKind, kind)
	}
	if !kind.Accepts(input) {
		return model.KindNone, fmt.Errorf("%w: %s with %s operand", ErrInputKind, input, kind)
	}
	return kind, nil
}

func (o *Arith) Spec() OpSpec {
	return OpSpec{Op: o.name, Params: o.cloneValues()}
}

// Accumulate keeps a running sum of gain*input across activations of one run.
type Accumulate struct {
	params
	sum float64
}

func NewAccumulate(gain float64) *Accumulate {
	return &Accumulate{params: newParams(model.Float(gain))}
}

func buildAccumulate(spec OpSpec) (Operation, error) {
	v, err := paramAt(spec, 0, model.KindFloat, model.Float(1))
	if err != nil {
		return nil, err
	}
	return &Accumulate{params: newParams(v)}, nil
}

func (o *Accumulate) Name() string { return "Accumulate" }

func (o *Accumulate) Activate(_ context.Context, input model.Value) (model.Value, error) {
	x, ok := input.Float64()
	if !ok {
		return model.None(), fmt.Errorf("%w: %s", ErrInputKind, input.Kind)
	}
	gain, _ := o.values[0].Float64()
	o.sum += gain * x
	return model.Float(o.sum), nil
}

func (o *Accumulate) Compose(input model.Kind) (model.Kind, error) {
	switch input {
	case model.KindInt, model.KindFloat, model.KindAny:
		return model.KindFloat, nil
	default:
		return model.KindNone, fmt.Errorf("%w: %s", ErrInputKind, input)
	}
}

func (o *Accumulate) Spec() OpSpec {
	return OpSpec{Op: o.Name(), Params: o.cloneValues()}
}

func (o *Accumulate) State() any {
	return o.sum
}

func (o *Accumulate) SetState(state any) {
	if sum, ok := state.(float64); ok {
		o.sum = sum
	}
}

func (o *Accumulate) ResetState() {
	o.sum = 0
}

func (o *Accumulate) Crossover(stateA, stateB any) {
	a, okA := stateA.(float64)
	b, okB := stateB.(float64)
	switch {
	case okA && okB:
		o.sum = (a + b) / 2
	case okA:
		o.sum = a
	case okB:
		o.sum = b
	}
}

// Mutate scales the gain by 1+N(0, scale); scale comes from options and defaults to 0.1.
func (o *Accumulate) Mutate(r *random.Rand, options map[string]model.Value) {
	scale := 0.1
	if v, ok := options["scale"]; ok {
		if f, ok := v.Float64(); ok {
			scale = f
		}
	}
	gain, _ := o.values[0].Float64()
	o.values[0] = model.Float(gain * (1 + r.Normal(0, scale)))
}

// Repeat runs its body chain a fixed number of times, feeding each pass's
// output into the next pass.
type Repeat struct {
	params
	body []Operation
}

func NewRepeat(times int64, body ...Operation) *Repeat {
	return &Repeat{params: newParams(model.Int(times)), body: body}
}

func buildRepeat(spec OpSpec) (Operation, error) {
	times, err := paramAt(spec, 0, model.KindInt, model.Int(1))
	if err != nil {
		return nil, err
	}
	body, err := BuildAll(spec.Children)
	if err != nil {
		return nil, err
	}
	return &Repeat{params: newParams(times), body: body}, nil
}

func (o *Repeat) Name() string { return "Repeat" }

func (o *Repeat) times() int64 {
	n, _ := o.values[0].Int64()
	return n
}

func (o *Repeat) Activate(ctx context.Context, input model.Value) (model.Value, error) {
	current := input
	for pass := int64(0); pass < o.times(); pass++ {
		for _, op := range o.body {
			if err := ctx.Err(); err != nil {
				return model.None(), err
			}
			out, err := activate(ctx, op, current)
			if err != nil {
				return model.None(), err
			}
			current = out
		}
	}
	return current, nil
}

func (o *Repeat) Compose(input model.Kind) (model.Kind, error) {
	if o.times() < 0 {
		return model.KindNone, errors.New("repeat count must be >= 0")
	}
	out, err := composeChain(o.body, input)
	if err != nil {
		return model.KindNone, err
	}
	if o.times() == 0 {
		return input, nil
	}
	if o.times() > 1 && !input.Accepts(out) {
		return model.KindNone, fmt.Errorf("%w: repeated body maps %s to %s", ErrInputKind, input, out)
	}
	return out, nil
}

func (o *Repeat) Spec() OpSpec {
	children := make([]OpSpec, 0, len(o.body))
	for _, op := range o.body {
		children = append(children, op.Spec())
	}
	return OpSpec{Op: o.Name(), Params: o.cloneValues(), Children: children}
}

func (o *Repeat) Children() []Operation {
	return o.body
}

// Fail aborts the run with its message.
type Fail struct {
	params
}

func NewFail(message string) *Fail {
	return &Fail{params: newParams(model.String(message))}
}

func buildFail(spec OpSpec) (Operation, error) {
	v, err := paramAt(spec, 0, model.KindString, model.String("fail"))
	if err != nil {
		return nil, err
	}
	return &Fail{params: newParams(v)}, nil
}

func (o *Fail) Name() string { return "Fail" }

func (o *Fail) Activate(_ context.Context, _ model.Value) (model.Value, error) {
	return model.None(), errors.New(o.values[0].Str)
}

func (o *Fail) Compose(input model.Kind) (model.Kind, error) {
	return input, nil
}

func (o *Fail) Spec() OpSpec {
	return OpSpec{Op: o.Name(), Params: o.cloneValues()}
}
