package evo

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"progevo/internal/model"
	"progevo/internal/mutation"
	"progevo/internal/program"
	"progevo/internal/stats"
)

type GenerationDiagnostics = model.GenerationDiagnostics

// GenerationResult is the output of one Step.
type GenerationResult struct {
	Generation  int
	BestFitness float64
	// Best is an independent clone of the top individual's program, taken
	// after ranking and before mutation.
	Best        *program.Program
	Diagnostics GenerationDiagnostics
}

type RunResult struct {
	BestByGeneration      []float64
	GenerationDiagnostics []GenerationDiagnostics
	BestFitness           float64
	BestGeneration        int
	Best                  *program.Program
	FinalPopulation       []IndividualView
	Stopped               bool
}

// PopulationMonitor owns a population of program clones and advances it one
// generation per Step. Calls are serialized.
type PopulationMonitor struct {
	cfg MonitorConfig
	log *slog.Logger

	mu          sync.Mutex
	population  []*Individual
	sorted      []*Individual
	lookup      lookupTable
	serialized  []byte
	fitnessData []byte
	generation  int
	closed      bool
}

func NewPopulationMonitor(cfg MonitorConfig) (*PopulationMonitor, error) {
	cfg, err := cfg.withDefaults()
	if err != nil {
		return nil, err
	}
	logger := cfg.Logger.With(slog.String("component", "evo"))
	if cfg.RunID != "" {
		logger = logger.With(slog.String("run_id", cfg.RunID))
	}
	return &PopulationMonitor{cfg: cfg, log: logger}, nil
}

func (m *PopulationMonitor) Config() MonitorConfig {
	return m.cfg
}

// Generation returns the number of completed generations.
func (m *PopulationMonitor) Generation() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.generation
}

// Step advances the population by one generation: crossover (from the
// second generation on), evaluation, ranking, classification and mutation.
// Composition errors are reported by the first Step before anything runs.
func (m *PopulationMonitor) Step(ctx context.Context) (GenerationResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return GenerationResult{}, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return GenerationResult{}, err
	}
	start := time.Now()
	if m.population == nil {
		if err := m.initialize(); err != nil {
			return GenerationResult{}, err
		}
		m.cfg.Metrics.ObservePhase("initialize", time.Since(start))
	}

	crossed := 0
	if m.cfg.Mode == ModeCrossover && m.generation > 0 {
		phase := time.Now()
		var err error
		crossed, err = m.crossover()
		if err != nil {
			return GenerationResult{}, err
		}
		m.cfg.Metrics.ObservePhase("crossover", time.Since(phase))
		m.cfg.Metrics.Crossed(crossed)
	}

	phase := time.Now()
	m.evaluate(ctx)
	m.cfg.Metrics.ObservePhase("evaluate", time.Since(phase))
	if err := ctx.Err(); err != nil {
		return GenerationResult{}, err
	}

	phase = time.Now()
	m.cfg.Postprocessor.Process(m.population)
	m.rank()
	m.classify()
	m.cfg.Metrics.ObservePhase("rank", time.Since(phase))

	best, err := m.sorted[0].Program.Clone()
	if err != nil {
		return GenerationResult{}, fmt.Errorf("snapshot best program: %w", err)
	}

	diag := m.diagnostics(crossed)

	mutated := 0
	if m.cfg.Mode == ModeCrossover {
		phase = time.Now()
		mutated = m.mutate(ctx)
		m.cfg.Metrics.ObservePhase("mutate", time.Since(phase))
	} else {
		for _, ind := range m.population {
			mutated += ind.mutated
		}
	}
	m.cfg.Metrics.Mutated(mutated)
	diag.Mutations = mutated
	diag.DurationMS = time.Since(start).Milliseconds()

	m.generation++
	result := GenerationResult{
		Generation:  m.generation,
		BestFitness: m.sorted[0].Fitness,
		Best:        best,
		Diagnostics: diag,
	}
	m.cfg.Metrics.Generation(m.cfg.RunID, result.BestFitness)
	m.log.Info("generation complete",
		slog.Int("generation", m.generation),
		slog.Float64("best_fitness", result.BestFitness),
		slog.Float64("mean_fitness", diag.MeanFitness),
		slog.Int("failed", diag.FailedEvaluations),
		slog.Int("crossovers", crossed),
		slog.Int("mutations", mutated),
	)
	return result, nil
}

// Run calls Step for the given number of generations, stopping early once
// the configured fitness goal is reached or the stop channel is closed.
func (m *PopulationMonitor) Run(ctx context.Context, generations int) (RunResult, error) {
	if generations <= 0 {
		return RunResult{}, fmt.Errorf("%w: generations must be > 0", ErrInvalidConfig)
	}
	out := RunResult{
		BestByGeneration:      make([]float64, 0, generations),
		GenerationDiagnostics: make([]GenerationDiagnostics, 0, generations),
		BestFitness:           SentinelFitness,
	}
	for gen := 0; gen < generations; gen++ {
		if m.stopRequested() {
			m.log.Info("stop requested", slog.Int("generation", m.Generation()))
			out.Stopped = true
			break
		}
		res, err := m.Step(ctx)
		if err != nil {
			return RunResult{}, err
		}
		out.BestByGeneration = append(out.BestByGeneration, res.BestFitness)
		out.GenerationDiagnostics = append(out.GenerationDiagnostics, res.Diagnostics)
		if out.Best == nil || res.BestFitness > out.BestFitness {
			out.BestFitness = res.BestFitness
			out.BestGeneration = res.Generation
			out.Best = res.Best
		}
		if goal := m.cfg.FitnessGoal; goal != nil && res.BestFitness >= *goal {
			m.log.Info("fitness goal reached", slog.Int("generation", res.Generation), slog.Float64("goal", *goal))
			break
		}
	}
	out.FinalPopulation = m.Population()
	return out, nil
}

func (m *PopulationMonitor) stopRequested() bool {
	if m.cfg.Stop == nil {
		return false
	}
	select {
	case <-m.cfg.Stop:
		return true
	default:
		return false
	}
}

// Population returns a snapshot of every individual in handle order.
func (m *PopulationMonitor) Population() []IndividualView {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]IndividualView, 0, len(m.population))
	for _, ind := range m.population {
		out = append(out, ind.view())
	}
	return out
}

// Close stops every program and releases the population. It is safe to call
// more than once.
func (m *PopulationMonitor) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	population := m.population
	m.cfg.Executor.ParallelFor(len(population), func(i int) {
		population[i].Program.Stop()
		if fp := population[i].FitnessProgram; fp != nil {
			fp.Stop()
		}
	})
	m.population = nil
	m.sorted = nil
	m.lookup = nil
	m.serialized = nil
	m.fitnessData = nil
	m.log.Debug("population released", slog.Int("individuals", len(population)))
}

func (m *PopulationMonitor) initialize() error {
	inputKind := m.cfg.Input.Kind
	outKind, err := m.cfg.Base.Compose(inputKind)
	if err != nil {
		return fmt.Errorf("%w: base program %s: %w", ErrComposition, m.cfg.Base.Name(), err)
	}
	serialized, err := m.cfg.Base.Encode()
	if err != nil {
		return fmt.Errorf("encode base program: %w", err)
	}
	m.serialized = serialized

	if m.cfg.Mode == ModeCrossover {
		if _, err := m.cfg.Fitness.Compose(outKind); err != nil {
			return fmt.Errorf("%w: fitness program %s: %w", ErrComposition, m.cfg.Fitness.Name(), err)
		}
		fitnessData, err := m.cfg.Fitness.Encode()
		if err != nil {
			return fmt.Errorf("encode fitness program: %w", err)
		}
		m.fitnessData = fitnessData
	}

	n := m.cfg.PopulationSize
	population := make([]*Individual, n)
	err = m.cfg.Executor.ParallelForErr(n, func(i int) error {
		p, err := program.Decode(m.serialized)
		if err != nil {
			return fmt.Errorf("clone individual %d: %w", i, err)
		}
		p.SetOwner(i)
		ind := &Individual{
			Handle:  i,
			Program: p,
			Points:  mutation.Gather(p),
			Fitness: SentinelFitness,
			Parent0: NoParent,
			Parent1: NoParent,
		}
		if m.fitnessData != nil {
			fp, err := program.Decode(m.fitnessData)
			if err != nil {
				return fmt.Errorf("clone fitness program %d: %w", i, err)
			}
			fp.SetOwner(i)
			ind.FitnessProgram = fp
		}
		population[i] = ind
		return nil
	})
	if err != nil {
		return err
	}

	m.lookup = make(lookupTable, n)
	for _, ind := range population {
		m.lookup[ind.Handle] = ind
	}
	m.population = population
	m.sorted = append([]*Individual(nil), population...)
	m.log.Debug("population initialized",
		slog.Int("individuals", n),
		slog.Int("mutation_points", len(population[0].Points)),
		slog.String("mode", m.cfg.Mode.String()),
	)
	return nil
}

func (m *PopulationMonitor) crossover() (int, error) {
	g := m.planCrossover()
	if g == nil {
		return 0, nil
	}
	tasks := g.Runnable()
	if err := g.Run(m.cfg.Executor); err != nil {
		return 0, fmt.Errorf("crossover: %w", err)
	}
	m.log.Debug("crossover complete", slog.Int("tasks", tasks))
	return tasks, nil
}

func (m *PopulationMonitor) evaluate(ctx context.Context) {
	obs := evaluationObserver{ctx: ctx, m: m}
	m.cfg.Executor.ParallelFor(len(m.population), func(i int) {
		ind := m.population[i]
		ind.Fitness = SentinelFitness
		ind.Failed = nil
		ind.mutated = 0

		res := m.cfg.Runner.Run(ctx, ind.Program, m.cfg.Input, obs)
		if res.Err == nil && ind.FitnessProgram != nil {
			res = m.cfg.Runner.Run(ctx, ind.FitnessProgram, res.Last, obs)
		}
		ind.evaluated = true
		if res.Err != nil {
			ind.Failed = res.Err
			ind.Fitness = SentinelFitness
			m.log.Warn("individual evaluation failed", slog.Int("handle", ind.Handle), slog.Any("error", res.Err))
		}
		m.cfg.Metrics.Evaluated(res.Err != nil)
	})
}

func (m *PopulationMonitor) rank() {
	sort.SliceStable(m.sorted, func(i, j int) bool {
		return m.sorted[i].Fitness > m.sorted[j].Fitness
	})
}

// classify marks the top nElites elite and the bottom nKills extinct. An
// individual in both buckets stays elite.
func (m *PopulationMonitor) classify() {
	n := len(m.sorted)
	elites := m.cfg.Elites()
	kills := m.cfg.Kills()
	for pos, ind := range m.sorted {
		ind.Elite = pos < elites
		ind.Extinct = !ind.Elite && pos >= n-kills
		ind.Parent0 = NoParent
		ind.Parent1 = NoParent
	}
}

func (m *PopulationMonitor) mutate(ctx context.Context) int {
	m.cfg.Executor.ParallelFor(len(m.population), func(i int) {
		ind := m.population[i]
		if ind.Elite {
			return
		}
		if ind.Extinct {
			if err := mutation.ResetAll(ind.Points); err != nil {
				m.log.Warn("reset individual", slog.Int("handle", ind.Handle), slog.Any("error", err))
			}
		}
		m.mutateIndividual(ctx, ind)
	})
	total := 0
	for _, ind := range m.population {
		total += ind.mutated
	}
	return total
}

// diagnostics summarizes the generation being completed from the evaluated,
// ranked population.
func (m *PopulationMonitor) diagnostics(crossed int) GenerationDiagnostics {
	scores := make([]float64, 0, len(m.population))
	diag := GenerationDiagnostics{
		Generation:  m.generation + 1,
		BestFitness: m.sorted[0].Fitness,
		Evaluated:   len(m.population),
		Crossovers:  crossed,
	}
	fingerprints := make(map[string]struct{}, len(m.population))
	for _, ind := range m.population {
		switch {
		case ind.Failed != nil:
			diag.FailedEvaluations++
		case ind.Fitness != SentinelFitness:
			scores = append(scores, ind.Fitness)
		}
		if ind.Elite {
			diag.Elites++
		}
		if ind.Extinct {
			diag.Extinct++
		}
		if sig, err := ComputeProgramSignature(ind.Program); err == nil {
			fingerprints[sig.Fingerprint] = struct{}{}
		}
	}
	diag.FingerprintDiversity = len(fingerprints)
	summary := stats.Summarize(scores)
	diag.MeanFitness = summary.Mean
	diag.MinFitness = summary.Min
	diag.StdDevFitness = summary.StdDev
	return diag
}
