package evo

import (
	"errors"
	"fmt"
	"log/slog"
	"math"

	"progevo/internal/executor"
	"progevo/internal/metrics"
	"progevo/internal/model"
	"progevo/internal/program"
	"progevo/internal/random"
	"progevo/internal/runner"
)

// SentinelFitness is the score of an individual that has not produced a
// usable fitness in the current generation.
const SentinelFitness = -math.MaxFloat64

var (
	ErrInvalidConfig  = errors.New("invalid evolution config")
	ErrComposition    = errors.New("program composition failed")
	ErrUnknownProgram = errors.New("program is not owned by any individual")
	ErrClosed         = errors.New("population monitor is closed")
)

// Mode selects how individuals are recombined and rolled back.
type Mode int

const (
	// ModeCrossover evaluates a separate fitness program, recombines
	// individuals along a precedence graph and hard-resets extinct loci to
	// their original parameters.
	ModeCrossover Mode = iota
	// ModeSnapshot takes the fitness from the program's own last output and
	// rolls loci back to the state saved before the previous run.
	ModeSnapshot
)

func (m Mode) String() string {
	switch m {
	case ModeCrossover:
		return "crossover"
	case ModeSnapshot:
		return "snapshot"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

func ParseMode(name string) (Mode, error) {
	switch name {
	case "", "crossover":
		return ModeCrossover, nil
	case "snapshot":
		return ModeSnapshot, nil
	default:
		return 0, fmt.Errorf("%w: unknown mode %q", ErrInvalidConfig, name)
	}
}

type MonitorConfig struct {
	Base *program.Program
	// Fitness maps the base program's last value to a float score. Required
	// in crossover mode, ignored in snapshot mode.
	Fitness *program.Program
	Mode    Mode

	PopulationSize int
	MutationRate   float64
	CrossoverRate  float64
	ExtinctionRate float64
	ElitismRate    float64

	Executor      *executor.Executor
	Rand          *random.Rand
	Seed          int64
	Runner        *runner.Runner
	Input         model.Value
	Selector      Selector
	Postprocessor FitnessPostprocessor
	// FitnessGoal stops Run early once the best fitness reaches it.
	FitnessGoal *float64
	// Stop ends Run before the next generation once it is closed.
	Stop <-chan struct{}

	RunID   string
	Logger  *slog.Logger
	Metrics *metrics.Collectors
}

// Kills is floor(N*ExtinctionRate).
func (cfg MonitorConfig) Kills() int {
	return int(math.Floor(float64(cfg.PopulationSize) * cfg.ExtinctionRate))
}

// Elites is floor(N*ElitismRate).
func (cfg MonitorConfig) Elites() int {
	return int(math.Floor(float64(cfg.PopulationSize) * cfg.ElitismRate))
}

func (cfg MonitorConfig) withDefaults() (MonitorConfig, error) {
	if cfg.Base == nil {
		return cfg, fmt.Errorf("%w: base program is required", ErrInvalidConfig)
	}
	switch cfg.Mode {
	case ModeCrossover:
		if cfg.Fitness == nil {
			return cfg, fmt.Errorf("%w: fitness program is required in crossover mode", ErrInvalidConfig)
		}
	case ModeSnapshot:
		if cfg.CrossoverRate > 0 {
			return cfg, fmt.Errorf("%w: crossover is not available in snapshot mode", ErrInvalidConfig)
		}
		cfg.Fitness = nil
	default:
		return cfg, fmt.Errorf("%w: unknown mode %d", ErrInvalidConfig, int(cfg.Mode))
	}
	if cfg.PopulationSize <= 0 {
		return cfg, fmt.Errorf("%w: population size must be > 0", ErrInvalidConfig)
	}
	rates := []struct {
		name  string
		value float64
	}{
		{"mutation", cfg.MutationRate},
		{"crossover", cfg.CrossoverRate},
		{"extinction", cfg.ExtinctionRate},
		{"elitism", cfg.ElitismRate},
	}
	for _, rate := range rates {
		if math.IsNaN(rate.value) || rate.value < 0 || rate.value > 1 {
			return cfg, fmt.Errorf("%w: %s rate must be in [0, 1], got %v", ErrInvalidConfig, rate.name, rate.value)
		}
	}

	if cfg.Executor == nil {
		cfg.Executor = executor.New(0)
	}
	if cfg.Rand == nil {
		cfg.Rand = random.New(cfg.Seed)
	}
	if cfg.Runner == nil {
		cfg.Runner = &runner.Runner{}
	}
	if cfg.Selector == nil {
		cfg.Selector = PowerSelector{Exponent: DefaultSelectionExponent}
	}
	if cfg.Postprocessor == nil {
		cfg.Postprocessor = NoopFitnessPostprocessor{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return cfg, nil
}
