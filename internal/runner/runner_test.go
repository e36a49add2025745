package runner

import (
	"context"
	"errors"
	"testing"
	"time"

	"progevo/internal/model"
	"progevo/internal/program"
)

func TestRunFiresHooksInOrder(t *testing.T) {
	var events []string
	var harvested model.Value
	obs := ObserverFuncs{
		OnCompose: func(*program.Program) { events = append(events, "compose") },
		OnStop: func(_ *program.Program, last model.Value, err error) {
			events = append(events, "stop")
			harvested = last
			if err != nil {
				t.Fatalf("unexpected run error: %v", err)
			}
		},
	}
	p := program.New("seven", program.NewConst(model.Float(7)))
	res := (&Runner{}).Run(context.Background(), p, model.None(), obs)
	if res.Failed() {
		t.Fatalf("run failed: %v", res.Err)
	}
	if len(events) != 2 || events[0] != "compose" || events[1] != "stop" {
		t.Fatalf("unexpected hook order: %v", events)
	}
	if got, _ := harvested.Float64(); got != 7 {
		t.Fatalf("unexpected harvested value: got=%f want=7", got)
	}
}

func TestRunReportsFailureWithoutPanicking(t *testing.T) {
	var stopErr error
	obs := ObserverFuncs{OnStop: func(_ *program.Program, _ model.Value, err error) { stopErr = err }}
	p := program.New("fails", program.NewFail("broken"))
	res := (&Runner{}).Run(context.Background(), p, model.None(), obs)
	if !res.Failed() || stopErr == nil {
		t.Fatalf("expected failure in result and hook: result=%v hook=%v", res.Err, stopErr)
	}
}

func TestRunReportsCompositionFailure(t *testing.T) {
	p := program.New("mismatch", program.NewConst(model.Int(1)), program.NewAdd(model.Float(1)))
	res := (&Runner{}).Run(context.Background(), p, model.None(), nil)
	if !errors.Is(res.Err, program.ErrInputKind) {
		t.Fatalf("expected input kind error, got %v", res.Err)
	}
}

func TestHookPanicPropagates(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected hook panic to propagate")
		}
	}()
	obs := ObserverFuncs{OnCompose: func(*program.Program) { panic("bookkeeping") }}
	(&Runner{}).Run(context.Background(), program.New("p"), model.None(), obs)
}

func TestRunTimeout(t *testing.T) {
	r := &Runner{Timeout: time.Nanosecond}
	p := program.New("slow", program.NewRepeat(1_000_000, program.NewIdentity()))
	res := r.Run(context.Background(), p, model.Float(1), nil)
	if !errors.Is(res.Err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", res.Err)
	}
}

func TestRunNilProgram(t *testing.T) {
	res := (&Runner{}).Run(context.Background(), nil, model.None(), nil)
	if !errors.Is(res.Err, ErrNilProgram) {
		t.Fatalf("expected nil program error, got %v", res.Err)
	}
}
