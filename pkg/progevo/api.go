// Package progevo is the public API for running program evolutions and
// reading back their persisted results.
package progevo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"progevo/internal/evo"
	"progevo/internal/metrics"
	"progevo/internal/model"
	"progevo/internal/platform"
	"progevo/internal/program"
	"progevo/internal/storage"
)

const (
	defaultArtifactsDir = "runs"
	defaultPopulation   = 20
	defaultGenerations  = 50
)

type Options struct {
	StoreKind string
	DBPath    string
	// ArtifactsDir receives per-run exports. Set DisableArtifacts to skip them.
	ArtifactsDir     string
	DisableArtifacts bool
	Logger           *slog.Logger
	Metrics          *metrics.Collectors
}

type Client struct {
	store storage.Store
	polis *platform.Polis
}

// RunRequest describes one evolution. Programs are taken from Base/Fitness
// when set, otherwise loaded from the JSON files at BasePath/FitnessPath.
type RunRequest struct {
	RunID       string
	Base        *program.Program
	BasePath    string
	Fitness     *program.Program
	FitnessPath string
	Mode        string
	Input       model.Value

	Population     int
	Generations    int
	MutationRate   float64
	CrossoverRate  float64
	ExtinctionRate float64
	ElitismRate    float64
	FitnessGoal    *float64

	Seed          int64
	Workers       int
	Timeout       time.Duration
	Selection     string
	Postprocessor string
}

type RunSummary struct {
	RunID            string
	ArtifactsDir     string
	BestByGeneration []float64
	FinalBestFitness float64
	BestGeneration   int
	Stopped          bool
}

type RunsRequest struct {
	Limit int
}

// RunQuery selects a stored run either by id or as the most recent one.
type RunQuery struct {
	RunID  string
	Latest bool
	Limit  int
}

func New(opts Options) (*Client, error) {
	storeKind := opts.StoreKind
	if storeKind == "" {
		storeKind = storage.DefaultStoreKind
	}
	store, err := storage.NewStore(storeKind, opts.DBPath)
	if err != nil {
		return nil, err
	}
	artifactsDir := opts.ArtifactsDir
	if artifactsDir == "" {
		artifactsDir = defaultArtifactsDir
	}
	if opts.DisableArtifacts {
		artifactsDir = ""
	}
	return &Client{
		store: store,
		polis: platform.NewPolis(platform.Config{
			Store:        store,
			Logger:       opts.Logger,
			Metrics:      opts.Metrics,
			ArtifactsDir: artifactsDir,
		}),
	}, nil
}

func (c *Client) Close() error {
	c.polis.Shutdown()
	return storage.CloseIfSupported(c.store)
}

func (c *Client) Init(ctx context.Context) error {
	return c.polis.Init(ctx)
}

func (c *Client) Run(ctx context.Context, req RunRequest) (RunSummary, error) {
	if req.Population <= 0 {
		req.Population = defaultPopulation
	}
	if req.Generations <= 0 {
		req.Generations = defaultGenerations
	}
	if req.RunID == "" {
		req.RunID = uuid.NewString()
	}
	mode, err := evo.ParseMode(req.Mode)
	if err != nil {
		return RunSummary{}, err
	}
	base, err := resolveProgram(req.Base, req.BasePath, "base")
	if err != nil {
		return RunSummary{}, err
	}
	var fitness *program.Program
	if mode == evo.ModeCrossover {
		fitness, err = resolveProgram(req.Fitness, req.FitnessPath, "fitness")
		if err != nil {
			return RunSummary{}, err
		}
	}
	selector, err := evo.ResolveSelector(req.Selection)
	if err != nil {
		return RunSummary{}, err
	}
	postprocessor, err := evo.ResolvePostprocessor(req.Postprocessor)
	if err != nil {
		return RunSummary{}, err
	}
	if err := c.polis.Init(ctx); err != nil {
		return RunSummary{}, err
	}

	result, err := c.polis.RunEvolution(ctx, platform.EvolutionConfig{
		RunID:          req.RunID,
		Base:           base,
		Fitness:        fitness,
		Mode:           mode,
		Input:          req.Input,
		PopulationSize: req.Population,
		Generations:    req.Generations,
		MutationRate:   req.MutationRate,
		CrossoverRate:  req.CrossoverRate,
		ExtinctionRate: req.ExtinctionRate,
		ElitismRate:    req.ElitismRate,
		FitnessGoal:    req.FitnessGoal,
		Seed:           req.Seed,
		Workers:        req.Workers,
		Timeout:        req.Timeout,
		Selector:       selector,
		Postprocessor:  postprocessor,
	})
	if err != nil {
		return RunSummary{}, err
	}
	return RunSummary{
		RunID:            result.RunID,
		ArtifactsDir:     result.ArtifactsDir,
		BestByGeneration: append([]float64(nil), result.BestByGeneration...),
		FinalBestFitness: result.BestFitness,
		BestGeneration:   result.BestGeneration,
		Stopped:          result.Stopped,
	}, nil
}

// StopRun asks an active run to finish after its current generation.
func (c *Client) StopRun(runID string) error {
	return c.polis.StopRun(runID)
}

// Runs lists stored runs, newest first.
func (c *Client) Runs(ctx context.Context, req RunsRequest) ([]model.RunRecord, error) {
	if req.Limit <= 0 {
		req.Limit = 20
	}
	if err := c.polis.Init(ctx); err != nil {
		return nil, err
	}
	runs, err := c.store.ListRuns(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]model.RunRecord, 0, min(len(runs), req.Limit))
	for i := len(runs) - 1; i >= 0 && len(out) < req.Limit; i-- {
		out = append(out, runs[i])
	}
	return out, nil
}

func (c *Client) FitnessHistory(ctx context.Context, req RunQuery) ([]float64, error) {
	runID, err := c.resolveRunID(ctx, req, "fitness history")
	if err != nil {
		return nil, err
	}
	history, ok, err := c.store.GetFitnessHistory(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("fitness history not found for run id: %s", runID)
	}
	if req.Limit > 0 && len(history) > req.Limit {
		history = history[:req.Limit]
	}
	return append([]float64(nil), history...), nil
}

func (c *Client) Diagnostics(ctx context.Context, req RunQuery) ([]model.GenerationDiagnostics, error) {
	runID, err := c.resolveRunID(ctx, req, "diagnostics")
	if err != nil {
		return nil, err
	}
	diagnostics, ok, err := c.store.GetGenerationDiagnostics(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("diagnostics not found for run id: %s", runID)
	}
	if req.Limit > 0 && len(diagnostics) > req.Limit {
		diagnostics = diagnostics[:req.Limit]
	}
	out := make([]model.GenerationDiagnostics, len(diagnostics))
	copy(out, diagnostics)
	return out, nil
}

// BestProgram returns the stored best program of a run together with the
// decoded, runnable program.
func (c *Client) BestProgram(ctx context.Context, req RunQuery) (model.BestProgramRecord, *program.Program, error) {
	runID, err := c.resolveRunID(ctx, req, "best program")
	if err != nil {
		return model.BestProgramRecord{}, nil, err
	}
	record, ok, err := c.store.GetBestProgram(ctx, runID)
	if err != nil {
		return model.BestProgramRecord{}, nil, err
	}
	if !ok {
		return model.BestProgramRecord{}, nil, fmt.Errorf("best program not found for run id: %s", runID)
	}
	p, err := program.Decode(record.Program)
	if err != nil {
		return model.BestProgramRecord{}, nil, fmt.Errorf("decode best program: %w", err)
	}
	return record, p, nil
}

func (c *Client) resolveRunID(ctx context.Context, req RunQuery, what string) (string, error) {
	if req.RunID != "" && req.Latest {
		return "", errors.New("use either run id or latest")
	}
	if req.Limit < 0 {
		return "", errors.New("limit must be >= 0")
	}
	if err := c.polis.Init(ctx); err != nil {
		return "", err
	}
	if !req.Latest {
		if req.RunID == "" {
			return "", fmt.Errorf("%s requires run id or latest", what)
		}
		return req.RunID, nil
	}
	runs, err := c.store.ListRuns(ctx)
	if err != nil {
		return "", err
	}
	if len(runs) == 0 {
		return "", errors.New("no runs available")
	}
	return runs[len(runs)-1].ID, nil
}

func resolveProgram(p *program.Program, path, role string) (*program.Program, error) {
	if p != nil {
		return p, nil
	}
	if path == "" {
		return nil, fmt.Errorf("%s program is required", role)
	}
	loaded, err := program.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load %s program: %w", role, err)
	}
	return loaded, nil
}
