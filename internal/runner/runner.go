package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"progevo/internal/model"
	"progevo/internal/program"
)

var ErrNilProgram = errors.New("nil program")

// Observer receives lifecycle notifications around a run. Hooks execute on
// the running goroutine and are not guarded: a panic in a hook propagates.
type Observer interface {
	// BeforeCompose fires before the program is validated and started.
	BeforeCompose(p *program.Program)
	// BeforeStop fires after the last activation with the last produced
	// value, or with the run error.
	BeforeStop(p *program.Program, last model.Value, err error)
}

// Result is the outcome of one isolated run.
type Result struct {
	Last     model.Value
	Err      error
	Duration time.Duration
}

func (r Result) Failed() bool { return r.Err != nil }

// Runner executes programs to completion. The zero value is ready to use.
type Runner struct {
	// Timeout bounds a single run when positive.
	Timeout time.Duration
}

// Run composes and runs p once. Operation failures, including panics inside
// operations, are reported in Result.Err rather than returned.
func (r *Runner) Run(ctx context.Context, p *program.Program, input model.Value, obs Observer) Result {
	start := time.Now()
	if p == nil {
		return Result{Last: model.None(), Err: ErrNilProgram}
	}
	if obs != nil {
		obs.BeforeCompose(p)
	}
	if r != nil && r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	last, err := run(ctx, p, input)
	if obs != nil {
		obs.BeforeStop(p, last, err)
	}
	return Result{Last: last, Err: err, Duration: time.Since(start)}
}

func run(ctx context.Context, p *program.Program, input model.Value) (model.Value, error) {
	if _, err := p.Compose(input.Kind); err != nil {
		return model.None(), fmt.Errorf("compose %s: %w", p.Name(), err)
	}
	return p.Run(ctx, input)
}

// ObserverFuncs adapts plain functions to Observer; nil fields are skipped.
type ObserverFuncs struct {
	OnCompose func(p *program.Program)
	OnStop    func(p *program.Program, last model.Value, err error)
}

func (o ObserverFuncs) BeforeCompose(p *program.Program) {
	if o.OnCompose != nil {
		o.OnCompose(p)
	}
}

func (o ObserverFuncs) BeforeStop(p *program.Program, last model.Value, err error) {
	if o.OnStop != nil {
		o.OnStop(p, last, err)
	}
}
