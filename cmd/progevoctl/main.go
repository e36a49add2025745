package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/google/uuid"

	"progevo/internal/evo"
	"progevo/internal/metrics"
	"progevo/internal/program"
	"progevo/internal/storage"
	"progevo/pkg/progevo"
)

var (
	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr
)

func main() {
	if err := run(context.Background(), os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return usageError("missing command")
	}

	switch args[0] {
	case "init":
		return runInit(ctx, args[1:])
	case "run":
		return runRun(ctx, args[1:])
	case "runs":
		return runRuns(ctx, args[1:])
	case "fitness":
		return runFitness(ctx, args[1:])
	case "diagnostics":
		return runDiagnostics(ctx, args[1:])
	case "best":
		return runBest(ctx, args[1:])
	case "ops":
		return runOps(args[1:])
	case "selectors":
		return runSelectors(args[1:])
	default:
		return usageError(fmt.Sprintf("unknown command: %s", args[0]))
	}
}

type storeFlags struct {
	kind   *string
	dbPath *string
}

func addStoreFlags(fs *flag.FlagSet) storeFlags {
	return storeFlags{
		kind:   fs.String("store", storage.DefaultStoreKind, "store backend: memory|sqlite"),
		dbPath: fs.String("db-path", storage.DefaultSQLitePath, "sqlite database path"),
	}
}

func (s storeFlags) client(logger *slog.Logger) (*progevo.Client, error) {
	return progevo.New(progevo.Options{
		StoreKind:        *s.kind,
		DBPath:           *s.dbPath,
		DisableArtifacts: true,
		Logger:           logger,
	})
}

func runInit(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	store := addStoreFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := store.client(nil)
	if err != nil {
		return err
	}
	defer client.Close()
	if err := client.Init(ctx); err != nil {
		return err
	}

	fmt.Fprintf(stdout, "initialized store=%s\n", *store.kind)
	return nil
}

func runRun(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	defaults := defaultRunConfig()
	configPath := fs.String("config", "", "optional run config path (.toml or .json)")
	runID := fs.String("run-id", "", "explicit run id (optional)")
	mode := fs.String("mode", defaults.Mode, "evolution mode: crossover|snapshot")
	base := fs.String("base", "", "base program JSON path")
	fitness := fs.String("fitness", "", "fitness program JSON path (crossover mode)")
	input := fs.Float64("input", 0, "scalar float input passed to every run")
	population := fs.Int("pop", defaults.Population, "population size")
	generations := fs.Int("gens", defaults.Generations, "generation count")
	mutationRate := fs.Float64("mutation-rate", defaults.MutationRate, "per-point mutation probability")
	crossoverRate := fs.Float64("crossover-rate", defaults.CrossoverRate, "per-individual crossover probability")
	extinctionRate := fs.Float64("extinction-rate", defaults.ExtinctionRate, "share of worst individuals reset each generation")
	elitismRate := fs.Float64("elitism-rate", defaults.ElitismRate, "share of best individuals kept unchanged")
	fitnessGoal := fs.Float64("fitness-goal", 0, "early-stop best fitness goal (unset disables)")
	seed := fs.Int64("seed", defaults.Seed, "rng seed")
	workers := fs.Int("workers", defaults.Workers, "worker count")
	timeout := fs.Duration("timeout", 0, "per-program run timeout (0 disables)")
	selection := fs.String("selection", defaults.Selection, "parent selection: "+strings.Join(evo.ListSelectors(), "|"))
	postprocessor := fs.String("fitness-postprocessor", defaults.Postprocessor, "fitness postprocessor: "+strings.Join(evo.ListPostprocessors(), "|"))
	artifactsDir := fs.String("artifacts-dir", "runs", "directory for per-run exports")
	noArtifacts := fs.Bool("no-artifacts", false, "skip per-run exports")
	printConfig := fs.Bool("print-config", false, "print the effective run config as TOML and exit")
	metricsAddr := fs.String("metrics-addr", "", "serve prometheus metrics on this address while running")
	logLevel := fs.String("log-level", "info", "log level: debug|info|warn|error")
	logFormat := fs.String("log-format", "text", "log format: text|json")
	jsonOut := fs.Bool("json", false, "emit run summary as JSON")
	store := addStoreFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	setFlags := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) {
		setFlags[f.Name] = true
	})

	cfg := defaults
	if *configPath != "" {
		loaded, err := loadRunConfig(*configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	overrideFromFlags(&cfg, setFlags, map[string]any{
		"run-id":                *runID,
		"mode":                  *mode,
		"base":                  *base,
		"fitness":               *fitness,
		"input":                 *input,
		"pop":                   *population,
		"gens":                  *generations,
		"mutation-rate":         *mutationRate,
		"crossover-rate":        *crossoverRate,
		"extinction-rate":       *extinctionRate,
		"elitism-rate":          *elitismRate,
		"fitness-goal":          *fitnessGoal,
		"seed":                  *seed,
		"workers":               *workers,
		"timeout":               *timeout,
		"selection":             *selection,
		"fitness-postprocessor": *postprocessor,
	})
	if *printConfig {
		return writeRunConfig(stdout, cfg)
	}
	if cfg.Base == "" {
		return errors.New("base program is required (-base or config base)")
	}
	if cfg.RunID == "" {
		cfg.RunID = uuid.NewString()
	}
	req, err := cfg.request()
	if err != nil {
		return err
	}

	logger, err := newLogger(stderr, *logLevel, *logFormat)
	if err != nil {
		return err
	}
	var collectors *metrics.Collectors
	if *metricsAddr != "" {
		collectors, err = metrics.New()
		if err != nil {
			return err
		}
		shutdown := serveMetrics(*metricsAddr, collectors, logger)
		defer shutdown()
	}

	client, err := progevo.New(progevo.Options{
		StoreKind:        *store.kind,
		DBPath:           *store.dbPath,
		ArtifactsDir:     *artifactsDir,
		DisableArtifacts: *noArtifacts,
		Logger:           logger,
		Metrics:          collectors,
	})
	if err != nil {
		return err
	}
	defer client.Close()

	stopOnInterrupt := stopRunOnSignal(client, cfg.RunID, logger)
	defer stopOnInterrupt()

	summary, err := client.Run(ctx, req)
	if err != nil {
		return err
	}
	if *jsonOut {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			RunID            string    `json:"run_id"`
			ArtifactsDir     string    `json:"artifacts_dir,omitempty"`
			BestByGeneration []float64 `json:"best_by_generation"`
			FinalBestFitness float64   `json:"final_best_fitness"`
			BestGeneration   int       `json:"best_generation"`
			Stopped          bool      `json:"stopped"`
		}{
			RunID:            summary.RunID,
			ArtifactsDir:     summary.ArtifactsDir,
			BestByGeneration: summary.BestByGeneration,
			FinalBestFitness: summary.FinalBestFitness,
			BestGeneration:   summary.BestGeneration,
			Stopped:          summary.Stopped,
		})
	}

	fmt.Fprintf(stdout, "run_id=%s generations=%d best_fitness=%.6f best_generation=%d stopped=%t\n",
		summary.RunID, len(summary.BestByGeneration), summary.FinalBestFitness, summary.BestGeneration, summary.Stopped)
	if summary.ArtifactsDir != "" {
		fmt.Fprintf(stdout, "artifacts=%s\n", summary.ArtifactsDir)
	}
	return nil
}

func overrideFromFlags(cfg *runConfig, set map[string]bool, flagValue map[string]any) {
	for name := range set {
		v, ok := flagValue[name]
		if !ok {
			continue
		}
		switch name {
		case "run-id":
			cfg.RunID = v.(string)
		case "mode":
			cfg.Mode = v.(string)
		case "base":
			cfg.Base = v.(string)
		case "fitness":
			cfg.Fitness = v.(string)
		case "input":
			f := v.(float64)
			cfg.Input = &f
		case "pop":
			cfg.Population = v.(int)
		case "gens":
			cfg.Generations = v.(int)
		case "mutation-rate":
			cfg.MutationRate = v.(float64)
		case "crossover-rate":
			cfg.CrossoverRate = v.(float64)
		case "extinction-rate":
			cfg.ExtinctionRate = v.(float64)
		case "elitism-rate":
			cfg.ElitismRate = v.(float64)
		case "fitness-goal":
			f := v.(float64)
			cfg.FitnessGoal = &f
		case "seed":
			cfg.Seed = v.(int64)
		case "workers":
			cfg.Workers = v.(int)
		case "timeout":
			cfg.Timeout = v.(time.Duration).String()
		case "selection":
			cfg.Selection = v.(string)
		case "fitness-postprocessor":
			cfg.Postprocessor = v.(string)
		}
	}
}

// stopRunOnSignal turns the first interrupt into a graceful stop after the
// current generation. The returned func releases the signal handler.
func stopRunOnSignal(client *progevo.Client, runID string, logger *slog.Logger) func() {
	sigs := make(chan os.Signal, 1)
	done := make(chan struct{})
	signal.Notify(sigs, os.Interrupt)
	go func() {
		select {
		case <-sigs:
			logger.Info("interrupt received, stopping after current generation", slog.String("run_id", runID))
			if err := client.StopRun(runID); err != nil {
				logger.Warn("stop run", slog.Any("error", err))
			}
		case <-done:
		}
	}()
	return func() {
		signal.Stop(sigs)
		close(done)
	}
}

func serveMetrics(addr string, collectors *metrics.Collectors, logger *slog.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", collectors.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server", slog.Any("error", err))
		}
	}()
	logger.Info("serving metrics", slog.String("addr", addr))
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

func newLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	opts := &slog.HandlerOptions{Level: lvl}
	switch format {
	case "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("unsupported log format: %s", format)
	}
}

func runRuns(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("runs", flag.ContinueOnError)
	limit := fs.Int("limit", 20, "max runs to list")
	jsonOut := fs.Bool("json", false, "emit runs list as JSON")
	store := addStoreFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *limit <= 0 {
		return errors.New("limit must be > 0")
	}

	client, err := store.client(nil)
	if err != nil {
		return err
	}
	defer client.Close()
	runs, err := client.Runs(ctx, progevo.RunsRequest{Limit: *limit})
	if err != nil {
		return err
	}
	if *jsonOut {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(runs)
	}
	if len(runs) == 0 {
		fmt.Fprintln(stdout, "no runs found")
		return nil
	}
	for _, r := range runs {
		fmt.Fprintf(stdout, "run_id=%s created_at=%s mode=%s pop=%d gens=%d seed=%d best_fitness=%.6f\n",
			r.ID, r.CreatedAtUTC, r.Mode, r.PopulationSize, r.Generations, r.Seed, r.FinalBestFitness)
	}
	return nil
}

type queryFlags struct {
	runID  *string
	latest *bool
	limit  *int
}

func addQueryFlags(fs *flag.FlagSet) queryFlags {
	return queryFlags{
		runID:  fs.String("run-id", "", "run id"),
		latest: fs.Bool("latest", false, "use the most recent run"),
		limit:  fs.Int("limit", 0, "max generations to show (0 shows all)"),
	}
}

func (q queryFlags) query() progevo.RunQuery {
	return progevo.RunQuery{RunID: *q.runID, Latest: *q.latest, Limit: *q.limit}
}

func runFitness(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("fitness", flag.ContinueOnError)
	query := addQueryFlags(fs)
	jsonOut := fs.Bool("json", false, "emit fitness history as JSON")
	store := addStoreFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := store.client(nil)
	if err != nil {
		return err
	}
	defer client.Close()
	history, err := client.FitnessHistory(ctx, query.query())
	if err != nil {
		return err
	}
	if *jsonOut {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(history)
	}
	for i, best := range history {
		fmt.Fprintf(stdout, "generation=%d best_fitness=%.6f\n", i+1, best)
	}
	return nil
}

func runDiagnostics(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("diagnostics", flag.ContinueOnError)
	query := addQueryFlags(fs)
	jsonOut := fs.Bool("json", false, "emit diagnostics as JSON")
	store := addStoreFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := store.client(nil)
	if err != nil {
		return err
	}
	defer client.Close()
	diagnostics, err := client.Diagnostics(ctx, query.query())
	if err != nil {
		return err
	}
	if *jsonOut {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(diagnostics)
	}
	for _, d := range diagnostics {
		fmt.Fprintf(stdout, "generation=%d best=%.6f mean=%.6f min=%.6f std=%.6f evaluated=%d failed=%d elites=%d extinct=%d crossovers=%d mutations=%d diversity=%d duration_ms=%d\n",
			d.Generation, d.BestFitness, d.MeanFitness, d.MinFitness, d.StdDevFitness, d.Evaluated, d.FailedEvaluations,
			d.Elites, d.Extinct, d.Crossovers, d.Mutations, d.FingerprintDiversity, d.DurationMS)
	}
	return nil
}

func runBest(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("best", flag.ContinueOnError)
	runID := fs.String("run-id", "", "run id")
	latest := fs.Bool("latest", false, "use the most recent run")
	out := fs.String("out", "", "write the best program JSON to this path")
	jsonOut := fs.Bool("json", false, "emit the best program record as JSON")
	store := addStoreFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := store.client(nil)
	if err != nil {
		return err
	}
	defer client.Close()
	record, p, err := client.BestProgram(ctx, progevo.RunQuery{RunID: *runID, Latest: *latest})
	if err != nil {
		return err
	}
	if *out != "" {
		data, err := p.Encode()
		if err != nil {
			return err
		}
		if err := os.WriteFile(*out, data, 0o644); err != nil {
			return err
		}
	}
	if *jsonOut {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(record)
	}
	fmt.Fprintf(stdout, "run_id=%s generation=%d fitness=%.6f ops=%d\n", record.RunID, record.Generation, record.Fitness, len(p.Ops()))
	if *out != "" {
		fmt.Fprintf(stdout, "wrote %s\n", *out)
	}
	return nil
}

func runOps(args []string) error {
	fs := flag.NewFlagSet("ops", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	for _, name := range program.ListOperations() {
		fmt.Fprintln(stdout, name)
	}
	return nil
}

func runSelectors(args []string) error {
	fs := flag.NewFlagSet("selectors", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "selection=%s\n", strings.Join(evo.ListSelectors(), ","))
	fmt.Fprintf(stdout, "fitness_postprocessor=%s\n", strings.Join(evo.ListPostprocessors(), ","))
	return nil
}

func usageError(msg string) error {
	return fmt.Errorf("%s\nusage: progevoctl <init|run|runs|fitness|diagnostics|best|ops|selectors> [flags]", msg)
}
