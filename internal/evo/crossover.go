package evo

import (
	"log/slog"

	"progevo/internal/executor"
	"progevo/internal/mutation"
)

// planCrossover pairs individuals for recombination using the previous
// ranking. Each accepted child gets an edge from both parents so a parent
// is fully recombined before any child reads it. Pairings that would read a
// child's own output back into one of its parents are dropped.
func (m *PopulationMonitor) planCrossover() *executor.Graph {
	rate := m.cfg.CrossoverRate
	ranked := m.sorted
	n := len(ranked)
	if rate <= 0 || n < 2 {
		return nil
	}

	g := executor.NewGraph()
	for _, child := range ranked {
		if m.cfg.Rand.Float64() >= rate {
			continue
		}
		parentA := ranked[m.cfg.Selector.PickParent(m.cfg.Rand, n)]
		parentB := ranked[m.cfg.Selector.PickParent(m.cfg.Rand, n)]
		if parentA == child || parentB == child {
			continue
		}
		if descendsFrom(parentA, child) || descendsFrom(parentB, child) {
			continue
		}
		childID, aID, bID := int64(child.Handle), int64(parentA.Handle), int64(parentB.Handle)
		g.AddTask(childID, nil)
		g.AddTask(aID, nil)
		g.AddTask(bID, nil)
		if g.PathExists(childID, aID) || g.PathExists(childID, bID) {
			continue
		}
		if err := g.DependsOn(childID, aID); err != nil {
			m.log.Debug("drop crossover pairing", slog.Int("child", child.Handle), slog.Any("error", err))
			continue
		}
		if err := g.DependsOn(childID, bID); err != nil {
			m.log.Debug("drop crossover pairing", slog.Int("child", child.Handle), slog.Any("error", err))
			continue
		}
		child.Parent0, child.Parent1 = parentA.Handle, parentB.Handle
		g.AddTask(childID, m.crossoverTask(child, parentA, parentB))
	}
	return g
}

func descendsFrom(ind, ancestor *Individual) bool {
	return ind.Parent0 == ancestor.Handle || ind.Parent1 == ancestor.Handle
}

func (m *PopulationMonitor) crossoverTask(child, parentA, parentB *Individual) func() {
	return func() {
		if err := mutation.CrossoverAll(m.cfg.Rand, child.Points, parentA.Points, parentB.Points); err != nil {
			m.log.Warn("crossover", slog.Int("child", child.Handle), slog.Any("error", err))
		}
	}
}
