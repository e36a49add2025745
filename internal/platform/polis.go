// Package platform coordinates evolution runs against a store: it owns the
// store lifecycle, tracks active runs so they can be stopped, and persists
// each run's outputs.
package platform

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"progevo/internal/evo"
	"progevo/internal/executor"
	"progevo/internal/metrics"
	"progevo/internal/model"
	"progevo/internal/program"
	"progevo/internal/runner"
	"progevo/internal/stats"
	"progevo/internal/storage"
)

var (
	ErrNotInitialized = errors.New("polis is not initialized")
	ErrRunActive      = errors.New("run already active")
	ErrRunNotActive   = errors.New("run not active")
	ErrStoreRequired  = errors.New("store is required")
	ErrRunIDRequired  = errors.New("run id is required")
	ErrInvalidRun     = errors.New("invalid run config")
)

// createdAtLayout is fixed width so stored timestamps sort lexically.
const createdAtLayout = "2006-01-02T15:04:05.000000000Z"

type Config struct {
	Store   storage.Store
	Logger  *slog.Logger
	Metrics *metrics.Collectors
	// ArtifactsDir receives JSON and CSV exports of every finished run when set.
	ArtifactsDir string
}

type EvolutionConfig struct {
	RunID   string
	Base    *program.Program
	Fitness *program.Program
	Mode    evo.Mode
	Input   model.Value

	PopulationSize int
	Generations    int
	MutationRate   float64
	CrossoverRate  float64
	ExtinctionRate float64
	ElitismRate    float64
	FitnessGoal    *float64

	Seed    int64
	Workers int
	// Timeout bounds each individual program run. Zero means no limit.
	Timeout       time.Duration
	Selector      evo.Selector
	Postprocessor evo.FitnessPostprocessor
}

type EvolutionResult struct {
	RunID                 string
	BestByGeneration      []float64
	GenerationDiagnostics []model.GenerationDiagnostics
	BestFitness           float64
	BestGeneration        int
	Best                  *program.Program
	FinalPopulation       []evo.IndividualView
	ArtifactsDir          string
	Stopped               bool
}

type runControl struct {
	stop chan struct{}
	once sync.Once
}

func (c *runControl) requestStop() {
	c.once.Do(func() { close(c.stop) })
}

type Polis struct {
	store        storage.Store
	base         *slog.Logger
	log          *slog.Logger
	metrics      *metrics.Collectors
	artifactsDir string

	mu      sync.RWMutex
	started bool
	runs    map[string]*runControl
}

func NewPolis(cfg Config) *Polis {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Polis{
		store:        cfg.Store,
		base:         logger,
		log:          logger.With(slog.String("component", "polis")),
		metrics:      cfg.Metrics,
		artifactsDir: cfg.ArtifactsDir,
		runs:         make(map[string]*runControl),
	}
}

func (p *Polis) Init(ctx context.Context) error {
	if p.store == nil {
		return ErrStoreRequired
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return nil
	}
	if err := p.store.Init(ctx); err != nil {
		return err
	}
	p.started = true
	return nil
}

func (p *Polis) Started() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.started
}

func (p *Polis) Store() storage.Store {
	return p.store
}

// RunEvolution runs one evolution to completion (or until stopped) and
// persists its record, fitness history, diagnostics and best program.
func (p *Polis) RunEvolution(ctx context.Context, cfg EvolutionConfig) (EvolutionResult, error) {
	if cfg.RunID == "" {
		return EvolutionResult{}, ErrRunIDRequired
	}
	if cfg.Generations <= 0 {
		return EvolutionResult{}, fmt.Errorf("%w: generations must be > 0", ErrInvalidRun)
	}
	control, err := p.registerRun(cfg.RunID)
	if err != nil {
		return EvolutionResult{}, err
	}
	defer p.unregisterRun(cfg.RunID)

	log := p.log.With(slog.String("run_id", cfg.RunID))
	monitor, err := evo.NewPopulationMonitor(evo.MonitorConfig{
		Base:           cfg.Base,
		Fitness:        cfg.Fitness,
		Mode:           cfg.Mode,
		PopulationSize: cfg.PopulationSize,
		MutationRate:   cfg.MutationRate,
		CrossoverRate:  cfg.CrossoverRate,
		ExtinctionRate: cfg.ExtinctionRate,
		ElitismRate:    cfg.ElitismRate,
		Executor:       executor.New(cfg.Workers),
		Seed:           cfg.Seed,
		Runner:         &runner.Runner{Timeout: cfg.Timeout},
		Input:          cfg.Input,
		Selector:       cfg.Selector,
		Postprocessor:  cfg.Postprocessor,
		FitnessGoal:    cfg.FitnessGoal,
		Stop:           control.stop,
		RunID:          cfg.RunID,
		Logger:         p.base,
		Metrics:        p.metrics,
	})
	if err != nil {
		return EvolutionResult{}, err
	}
	defer monitor.Close()

	started := time.Now()
	log.Info("run started",
		slog.String("mode", cfg.Mode.String()),
		slog.Int("population", cfg.PopulationSize),
		slog.Int("generations", cfg.Generations),
	)
	result, err := monitor.Run(ctx, cfg.Generations)
	if err != nil {
		return EvolutionResult{}, err
	}

	out := EvolutionResult{
		RunID:                 cfg.RunID,
		BestByGeneration:      result.BestByGeneration,
		GenerationDiagnostics: result.GenerationDiagnostics,
		BestFitness:           result.BestFitness,
		BestGeneration:        result.BestGeneration,
		Best:                  result.Best,
		FinalPopulation:       result.FinalPopulation,
		Stopped:               result.Stopped,
	}
	if err := p.persist(ctx, cfg, &out, started); err != nil {
		return EvolutionResult{}, err
	}
	log.Info("run finished",
		slog.Float64("best_fitness", out.BestFitness),
		slog.Int("best_generation", out.BestGeneration),
		slog.Int("generations", len(out.BestByGeneration)),
		slog.Bool("stopped", out.Stopped),
		slog.Duration("elapsed", time.Since(started)),
	)
	return out, nil
}

func (p *Polis) persist(ctx context.Context, cfg EvolutionConfig, out *EvolutionResult, started time.Time) error {
	record := model.RunRecord{
		VersionedRecord:  storage.CurrentVersion(),
		ID:               cfg.RunID,
		CreatedAtUTC:     started.UTC().Format(createdAtLayout),
		BaseProgram:      cfg.Base.Name(),
		Mode:             cfg.Mode.String(),
		PopulationSize:   cfg.PopulationSize,
		Generations:      len(out.BestByGeneration),
		MutationRate:     cfg.MutationRate,
		CrossoverRate:    cfg.CrossoverRate,
		ExtinctionRate:   cfg.ExtinctionRate,
		ElitismRate:      cfg.ElitismRate,
		Seed:             cfg.Seed,
		FinalBestFitness: out.BestFitness,
	}
	if cfg.Mode == evo.ModeCrossover && cfg.Fitness != nil {
		record.FitnessProgram = cfg.Fitness.Name()
	}
	diagnostics := append([]model.GenerationDiagnostics(nil), out.GenerationDiagnostics...)

	if err := p.store.SaveRun(ctx, record); err != nil {
		return fmt.Errorf("save run: %w", err)
	}
	if err := p.store.SaveFitnessHistory(ctx, cfg.RunID, out.BestByGeneration); err != nil {
		return fmt.Errorf("save fitness history: %w", err)
	}
	if err := p.store.SaveGenerationDiagnostics(ctx, cfg.RunID, diagnostics); err != nil {
		return fmt.Errorf("save generation diagnostics: %w", err)
	}

	var encoded []byte
	if out.Best != nil {
		data, err := out.Best.Encode()
		if err != nil {
			return fmt.Errorf("encode best program: %w", err)
		}
		encoded = data
		best := model.BestProgramRecord{
			VersionedRecord: storage.CurrentVersion(),
			RunID:           cfg.RunID,
			Generation:      out.BestGeneration,
			Fitness:         out.BestFitness,
			Program:         data,
		}
		if err := p.store.SaveBestProgram(ctx, best); err != nil {
			return fmt.Errorf("save best program: %w", err)
		}
	}

	if p.artifactsDir == "" {
		return nil
	}
	dir, err := stats.WriteRunArtifacts(p.artifactsDir, stats.RunArtifacts{
		Run:                   record,
		BestByGeneration:      out.BestByGeneration,
		GenerationDiagnostics: diagnostics,
		BestProgram:           encoded,
	})
	if err != nil {
		return fmt.Errorf("write run artifacts: %w", err)
	}
	out.ArtifactsDir = dir
	return nil
}

// StopRun asks an active run to finish after its current generation. The
// run still persists what it produced.
func (p *Polis) StopRun(runID string) error {
	p.mu.RLock()
	control, ok := p.runs[runID]
	p.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrRunNotActive, runID)
	}
	control.requestStop()
	return nil
}

// Shutdown stops every active run.
func (p *Polis) Shutdown() {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, control := range p.runs {
		control.requestStop()
	}
}

func (p *Polis) ActiveRuns() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	ids := make([]string, 0, len(p.runs))
	for id := range p.runs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (p *Polis) registerRun(runID string) (*runControl, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.started {
		return nil, ErrNotInitialized
	}
	if _, exists := p.runs[runID]; exists {
		return nil, fmt.Errorf("%w: %s", ErrRunActive, runID)
	}
	control := &runControl{stop: make(chan struct{})}
	p.runs[runID] = control
	return control, nil
}

func (p *Polis) unregisterRun(runID string) {
	p.mu.Lock()
	delete(p.runs, runID)
	p.mu.Unlock()
}
