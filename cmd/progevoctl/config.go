package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"progevo/internal/model"
	"progevo/pkg/progevo"
)

// runConfig is the file form of a run. Keys use snake_case in both TOML and
// JSON files.
type runConfig struct {
	RunID          string   `toml:"run_id,omitempty" json:"run_id,omitempty"`
	Mode           string   `toml:"mode" json:"mode"`
	Base           string   `toml:"base" json:"base"`
	Fitness        string   `toml:"fitness,omitempty" json:"fitness,omitempty"`
	Input          *float64 `toml:"input,omitempty" json:"input,omitempty"`
	Population     int      `toml:"population" json:"population"`
	Generations    int      `toml:"generations" json:"generations"`
	MutationRate   float64  `toml:"mutation_rate" json:"mutation_rate"`
	CrossoverRate  float64  `toml:"crossover_rate" json:"crossover_rate"`
	ExtinctionRate float64  `toml:"extinction_rate" json:"extinction_rate"`
	ElitismRate    float64  `toml:"elitism_rate" json:"elitism_rate"`
	FitnessGoal    *float64 `toml:"fitness_goal,omitempty" json:"fitness_goal,omitempty"`
	Seed           int64    `toml:"seed" json:"seed"`
	Workers        int      `toml:"workers" json:"workers"`
	Timeout        string   `toml:"timeout,omitempty" json:"timeout,omitempty"`
	Selection      string   `toml:"selection" json:"selection"`
	Postprocessor  string   `toml:"fitness_postprocessor" json:"fitness_postprocessor"`
}

func defaultRunConfig() runConfig {
	return runConfig{
		Mode:           "crossover",
		Population:     20,
		Generations:    50,
		MutationRate:   0.5,
		CrossoverRate:  0.25,
		ExtinctionRate: 0.1,
		ElitismRate:    0.1,
		Seed:           1,
		Workers:        4,
		Selection:      "power",
		Postprocessor:  "none",
	}
}

// loadRunConfig reads a TOML or JSON run config over the defaults. The format
// follows the file extension; anything other than .json is read as TOML.
func loadRunConfig(path string) (runConfig, error) {
	cfg := defaultRunConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return runConfig{}, err
	}
	var raw map[string]any
	if strings.EqualFold(filepath.Ext(path), ".json") {
		if err := json.Unmarshal(data, &raw); err != nil {
			return runConfig{}, fmt.Errorf("decode %s: %w", path, err)
		}
	} else {
		if _, err := toml.Decode(string(data), &raw); err != nil {
			return runConfig{}, fmt.Errorf("decode %s: %w", path, err)
		}
	}
	if err := applyConfigMap(&cfg, raw); err != nil {
		return runConfig{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func applyConfigMap(cfg *runConfig, raw map[string]any) error {
	var unknown []string
	for key, v := range raw {
		ok := true
		switch key {
		case "run_id":
			cfg.RunID, ok = asString(v)
		case "mode":
			cfg.Mode, ok = asString(v)
		case "base":
			cfg.Base, ok = asString(v)
		case "fitness":
			cfg.Fitness, ok = asString(v)
		case "input":
			var f float64
			if f, ok = asFloat64(v); ok {
				cfg.Input = &f
			}
		case "population":
			cfg.Population, ok = asInt(v)
		case "generations":
			cfg.Generations, ok = asInt(v)
		case "mutation_rate":
			cfg.MutationRate, ok = asFloat64(v)
		case "crossover_rate":
			cfg.CrossoverRate, ok = asFloat64(v)
		case "extinction_rate":
			cfg.ExtinctionRate, ok = asFloat64(v)
		case "elitism_rate":
			cfg.ElitismRate, ok = asFloat64(v)
		case "fitness_goal":
			var f float64
			if f, ok = asFloat64(v); ok {
				cfg.FitnessGoal = &f
			}
		case "seed":
			cfg.Seed, ok = asInt64(v)
		case "workers":
			cfg.Workers, ok = asInt(v)
		case "timeout":
			cfg.Timeout, ok = asString(v)
		case "selection":
			cfg.Selection, ok = asString(v)
		case "fitness_postprocessor":
			cfg.Postprocessor, ok = asString(v)
		default:
			unknown = append(unknown, key)
			continue
		}
		if !ok {
			return fmt.Errorf("config key %s: unexpected value %v (%T)", key, v, v)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return fmt.Errorf("unknown config keys: %s", strings.Join(unknown, ", "))
	}
	return nil
}

func asString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

func asInt(v any) (int, bool) {
	n, ok := asInt64(v)
	return int(n), ok
}

func asInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case int64:
		return x, true
	case int:
		return int64(x), true
	case float64:
		if x != float64(int64(x)) {
			return 0, false
		}
		return int64(x), true
	default:
		return 0, false
	}
}

func asFloat64(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int64:
		return float64(x), true
	case int:
		return float64(x), true
	default:
		return 0, false
	}
}

func (c runConfig) request() (progevo.RunRequest, error) {
	req := progevo.RunRequest{
		RunID:          c.RunID,
		Mode:           c.Mode,
		BasePath:       c.Base,
		FitnessPath:    c.Fitness,
		Population:     c.Population,
		Generations:    c.Generations,
		MutationRate:   c.MutationRate,
		CrossoverRate:  c.CrossoverRate,
		ExtinctionRate: c.ExtinctionRate,
		ElitismRate:    c.ElitismRate,
		FitnessGoal:    c.FitnessGoal,
		Seed:           c.Seed,
		Workers:        c.Workers,
		Selection:      c.Selection,
		Postprocessor:  c.Postprocessor,
	}
	if c.Input != nil {
		req.Input = model.Float(*c.Input)
	}
	if c.Timeout != "" {
		d, err := time.ParseDuration(c.Timeout)
		if err != nil {
			return progevo.RunRequest{}, fmt.Errorf("timeout: %w", err)
		}
		req.Timeout = d
	}
	return req, nil
}

func writeRunConfig(w io.Writer, c runConfig) error {
	return toml.NewEncoder(w).Encode(c)
}
