package evo

import (
	"context"
	"log/slog"
	"math"

	"progevo/internal/model"
	"progevo/internal/mutation"
	"progevo/internal/program"
)

// evaluationObserver connects runner lifecycle hooks to population
// bookkeeping. Lookup misses panic from inside the hooks; the runner does
// not guard them.
type evaluationObserver struct {
	ctx context.Context
	m   *PopulationMonitor
}

// BeforeCompose isolates crossover-mode runs by clearing operation state. In
// snapshot mode live state carries over and the saved snapshot is the rollback.
func (o evaluationObserver) BeforeCompose(p *program.Program) {
	ind := o.m.lookup.individualFor(p)
	if o.m.cfg.Mode == ModeCrossover {
		p.ResetStates()
		return
	}
	if p != ind.Program {
		return
	}
	o.m.prepareSnapshotRun(o.ctx, ind)
}

func (o evaluationObserver) BeforeStop(p *program.Program, last model.Value, err error) {
	ind := o.m.lookup.individualFor(p)
	if err != nil {
		return
	}
	harvest := ind.FitnessProgram
	if o.m.cfg.Mode == ModeSnapshot {
		harvest = ind.Program
	}
	if p != harvest {
		return
	}
	if fitness, ok := fitnessOf(last); ok {
		ind.Fitness = fitness
	}
}

// prepareSnapshotRun applies the previous generation's verdict right before
// the individual runs again: extinct loci are reset, other non-elite loci are
// rolled back to their saved snapshot and mutated. Every locus is then saved.
func (m *PopulationMonitor) prepareSnapshotRun(ctx context.Context, ind *Individual) {
	if ind.evaluated && !ind.Elite {
		var err error
		if ind.Extinct {
			err = mutation.ResetAll(ind.Points)
		} else {
			err = mutation.RestoreAll(ind.Points)
		}
		if err != nil {
			m.log.Warn("roll back individual", slog.Int("handle", ind.Handle), slog.Any("error", err))
		}
		m.mutateIndividual(ctx, ind)
	}
	mutation.SaveAll(ind.Points)
}

func (m *PopulationMonitor) mutateIndividual(ctx context.Context, ind *Individual) {
	changed, err := mutation.MutateAll(ctx, m.cfg.Rand, ind.Points, m.cfg.MutationRate)
	ind.mutated = changed
	if err != nil {
		m.log.Warn("mutate individual", slog.Int("handle", ind.Handle), slog.Any("error", err))
	}
}

// fitnessOf accepts only finite scalar float outputs.
func fitnessOf(v model.Value) (float64, bool) {
	if v.Kind != model.KindFloat || len(v.Floats) != 1 {
		return 0, false
	}
	f := v.Floats[0]
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
