package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"progevo/internal/evo"
	"progevo/internal/model"
	"progevo/internal/mutation"
	"progevo/internal/program"
	"progevo/internal/storage"
)

func newTestPolis(t *testing.T, artifactsDir string) *Polis {
	t.Helper()
	store := storage.NewMemoryStore()
	p := NewPolis(Config{
		Store:        store,
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		ArtifactsDir: artifactsDir,
	})
	if err := p.Init(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}
	return p
}

func floatCounterConfig(runID string) EvolutionConfig {
	return EvolutionConfig{
		RunID:          runID,
		Base:           program.New("climber", mutation.NewMutant(program.NewConst(model.Float(0)), []int{0}, nil, nil)),
		Fitness:        program.New("identity", program.NewIdentity()),
		Mode:           evo.ModeCrossover,
		PopulationSize: 6,
		Generations:    4,
		MutationRate:   1,
		ElitismRate:    0.34,
		Seed:           11,
		Workers:        2,
	}
}

func TestRunEvolutionPersistsOutputs(t *testing.T) {
	ctx := context.Background()
	artifacts := t.TempDir()
	p := newTestPolis(t, artifacts)

	res, err := p.RunEvolution(ctx, floatCounterConfig("run-1"))
	if err != nil {
		t.Fatalf("run evolution: %v", err)
	}
	if len(res.BestByGeneration) != 4 {
		t.Fatalf("unexpected history length: got=%d want=4", len(res.BestByGeneration))
	}
	if res.Best == nil || res.BestGeneration < 1 {
		t.Fatalf("expected best program, got generation %d", res.BestGeneration)
	}

	store := p.Store()
	run, ok, err := store.GetRun(ctx, "run-1")
	if err != nil || !ok {
		t.Fatalf("get run: ok=%v err=%v", ok, err)
	}
	if run.Mode != "crossover" || run.BaseProgram != "climber" || run.FitnessProgram != "identity" || run.Generations != 4 {
		t.Fatalf("unexpected run record: %+v", run)
	}
	if run.FinalBestFitness != res.BestFitness {
		t.Fatalf("unexpected final best: got=%f want=%f", run.FinalBestFitness, res.BestFitness)
	}

	history, ok, err := store.GetFitnessHistory(ctx, "run-1")
	if err != nil || !ok || len(history) != 4 {
		t.Fatalf("unexpected history: %v ok=%v err=%v", history, ok, err)
	}
	diagnostics, ok, err := store.GetGenerationDiagnostics(ctx, "run-1")
	if err != nil || !ok || len(diagnostics) != 4 || diagnostics[3].Generation != 4 {
		t.Fatalf("unexpected diagnostics: %+v ok=%v err=%v", diagnostics, ok, err)
	}

	best, ok, err := store.GetBestProgram(ctx, "run-1")
	if err != nil || !ok {
		t.Fatalf("get best program: ok=%v err=%v", ok, err)
	}
	decoded, err := program.Decode(best.Program)
	if err != nil {
		t.Fatalf("decode best program: %v", err)
	}
	out, err := decoded.Run(ctx, model.None())
	if err != nil {
		t.Fatalf("run best program: %v", err)
	}
	if got, _ := out.Float64(); got != best.Fitness {
		t.Fatalf("stored best program does not reproduce its fitness: got=%f want=%f", got, best.Fitness)
	}

	if res.ArtifactsDir != filepath.Join(artifacts, "run-1") {
		t.Fatalf("unexpected artifacts dir: %s", res.ArtifactsDir)
	}
	if _, err := os.Stat(filepath.Join(res.ArtifactsDir, "fitness_series.csv")); err != nil {
		t.Fatalf("expected fitness series: %v", err)
	}
	if len(p.ActiveRuns()) != 0 {
		t.Fatalf("expected no active runs, got %v", p.ActiveRuns())
	}
}

func TestRunEvolutionRequiresInit(t *testing.T) {
	p := NewPolis(Config{Store: storage.NewMemoryStore()})
	if _, err := p.RunEvolution(context.Background(), floatCounterConfig("r")); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("expected not initialized, got %v", err)
	}
	if err := NewPolis(Config{}).Init(context.Background()); !errors.Is(err, ErrStoreRequired) {
		t.Fatalf("expected store required, got %v", err)
	}
}

func TestRunEvolutionRejectsInvalidConfig(t *testing.T) {
	p := newTestPolis(t, "")
	cfg := floatCounterConfig("bad")
	cfg.MutationRate = 2
	if _, err := p.RunEvolution(context.Background(), cfg); !errors.Is(err, evo.ErrInvalidConfig) {
		t.Fatalf("expected invalid config, got %v", err)
	}
	cfg = floatCounterConfig("")
	if _, err := p.RunEvolution(context.Background(), cfg); !errors.Is(err, ErrRunIDRequired) {
		t.Fatalf("expected run id required, got %v", err)
	}
	cfg = floatCounterConfig("no-gens")
	cfg.Generations = 0
	if _, err := p.RunEvolution(context.Background(), cfg); !errors.Is(err, ErrInvalidRun) {
		t.Fatalf("expected invalid run, got %v", err)
	}
	if len(p.ActiveRuns()) != 0 {
		t.Fatal("failed runs must be unregistered")
	}
}

func TestRunEvolutionLogsOneComponentPerLine(t *testing.T) {
	var buf bytes.Buffer
	p := NewPolis(Config{
		Store:  storage.NewMemoryStore(),
		Logger: slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})),
	})
	if err := p.Init(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}
	if _, err := p.RunEvolution(context.Background(), floatCounterConfig("logged")); err != nil {
		t.Fatalf("run evolution: %v", err)
	}

	components := map[string]bool{}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	for _, line := range lines {
		if got := strings.Count(line, `"component":`); got != 1 {
			t.Fatalf("component keys: got=%d want=1 in %s", got, line)
		}
		var rec struct {
			Component string `json:"component"`
			RunID     string `json:"run_id"`
		}
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			t.Fatalf("decode log line: %v", err)
		}
		if rec.RunID != "logged" {
			t.Fatalf("run id: got=%q want=%q in %s", rec.RunID, "logged", line)
		}
		components[rec.Component] = true
	}
	if !components["polis"] || !components["evo"] {
		t.Fatalf("expected polis and evo log lines, got %v", components)
	}
}

func TestStopRunUnknown(t *testing.T) {
	p := newTestPolis(t, "")
	if err := p.StopRun("missing"); !errors.Is(err, ErrRunNotActive) {
		t.Fatalf("expected run not active, got %v", err)
	}
}

func TestStopRunEndsRunAndPersists(t *testing.T) {
	ctx := context.Background()
	p := newTestPolis(t, "")
	control, err := p.registerRun("stopped")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := p.registerRun("stopped"); !errors.Is(err, ErrRunActive) {
		t.Fatalf("expected duplicate run error, got %v", err)
	}
	if err := p.StopRun("stopped"); err != nil {
		t.Fatalf("stop run: %v", err)
	}
	select {
	case <-control.stop:
	default:
		t.Fatal("expected stop channel to be closed")
	}
	// stopping twice is harmless
	p.Shutdown()
	p.unregisterRun("stopped")

	cfg := floatCounterConfig("stopped")
	cfg.Generations = 3
	res, err := p.RunEvolution(ctx, cfg)
	if err != nil {
		t.Fatalf("run evolution: %v", err)
	}
	if res.Stopped {
		t.Fatal("a fresh run must not inherit an earlier stop")
	}
}
