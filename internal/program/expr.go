package program

import (
	"context"
	"fmt"

	"github.com/PaesslerAG/gval"
	lru "github.com/hashicorp/golang-lru"

	"progevo/internal/model"
)

const (
	exprCacheSize   = 256
	maxCoefficients = 26
)

var (
	exprLanguage = gval.Full()
	exprCache    *lru.Cache
)

func init() {
	cache, err := lru.New(exprCacheSize)
	if err != nil {
		panic(err)
	}
	exprCache = cache
}

// compileExpr returns a cached evaluable for the expression. Every clone of a
// program shares the compiled form of identical expressions.
func compileExpr(expression string) (gval.Evaluable, error) {
	if cached, ok := exprCache.Get(expression); ok {
		return cached.(gval.Evaluable), nil
	}
	evaluable, err := exprLanguage.NewEvaluable(expression)
	if err != nil {
		return nil, fmt.Errorf("compile expression %q: %w", expression, err)
	}
	exprCache.Add(expression, evaluable)
	return evaluable, nil
}

// Expr evaluates an arithmetic expression over the input x and float
// coefficients bound to a, b, c, ... in parameter order. Parameter 0 is the
// expression text.
type Expr struct {
	params
}

func NewExpr(expression string, coefficients ...float64) *Expr {
	values := make([]model.Value, 0, len(coefficients)+1)
	values = append(values, model.String(expression))
	for _, c := range coefficients {
		values = append(values, model.Float(c))
	}
	return &Expr{params: newParams(values...)}
}

func buildExpr(spec OpSpec) (Operation, error) {
	if len(spec.Params) == 0 {
		return nil, fmt.Errorf("expression parameter is required")
	}
	values := make([]model.Value, 0, len(spec.Params))
	for i := range spec.Params {
		kind := model.KindFloat
		if i == 0 {
			kind = model.KindString
		}
		v, err := paramAt(spec, i, kind, model.None())
		if err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return &Expr{params: newParams(values...)}, nil
}

func (o *Expr) Name() string { return "Expr" }

func (o *Expr) variables(input model.Value) map[string]interface{} {
	vars := make(map[string]interface{}, len(o.values))
	x, _ := input.Float64()
	vars["x"] = x
	for i, v := range o.values[1:] {
		f, _ := v.Float64()
		vars[string(rune('a'+i))] = f
	}
	return vars
}

func (o *Expr) Activate(ctx context.Context, input model.Value) (model.Value, error) {
	evaluable, err := compileExpr(o.values[0].Str)
	if err != nil {
		return model.None(), err
	}
	out, err := evaluable.EvalFloat64(ctx, o.variables(input))
	if err != nil {
		return model.None(), fmt.Errorf("evaluate %q: %w", o.values[0].Str, err)
	}
	return model.Float(out), nil
}

func (o *Expr) Compose(input model.Kind) (model.Kind, error) {
	switch input {
	case model.KindNone, model.KindInt, model.KindFloat, model.KindAny:
	default:
		return model.KindNone, fmt.Errorf("%w: %s", ErrInputKind, input)
	}
	if len(o.values)-1 > maxCoefficients {
		return model.KindNone, fmt.Errorf("too many coefficients: %d", len(o.values)-1)
	}
	if _, err := compileExpr(o.values[0].Str); err != nil {
		return model.KindNone, err
	}
	return model.KindFloat, nil
}

func (o *Expr) Spec() OpSpec {
	return OpSpec{Op: o.Name(), Params: o.cloneValues()}
}
