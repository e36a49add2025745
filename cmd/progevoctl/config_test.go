package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"progevo/internal/model"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadRunConfigFromExampleTOML(t *testing.T) {
	cfg, err := loadRunConfig(filepath.Join(examplesDir, "run.toml"))
	if err != nil {
		t.Fatalf("load example config: %v", err)
	}
	if cfg.Mode != "crossover" || cfg.Population != 24 || cfg.Generations != 40 || cfg.Seed != 7 || cfg.Workers != 4 {
		t.Fatalf("unexpected example config: %+v", cfg)
	}
	if cfg.MutationRate != 0.8 || cfg.CrossoverRate != 0.3 || cfg.ExtinctionRate != 0.2 || cfg.ElitismRate != 0.1 {
		t.Fatalf("unexpected example rates: %+v", cfg)
	}
	if cfg.Postprocessor != "none" {
		t.Fatalf("postprocessor default not kept: got=%q want=%q", cfg.Postprocessor, "none")
	}
}

func TestLoadRunConfigFromJSON(t *testing.T) {
	path := writeConfig(t, "run.json", `{
		"mode": "snapshot",
		"base": "stepper.json",
		"population": 12,
		"input": 2,
		"fitness_goal": 0,
		"timeout": "1s"
	}`)
	cfg, err := loadRunConfig(path)
	if err != nil {
		t.Fatalf("load json config: %v", err)
	}
	if cfg.Mode != "snapshot" || cfg.Base != "stepper.json" || cfg.Population != 12 {
		t.Fatalf("unexpected json config: %+v", cfg)
	}
	if cfg.Generations != defaultRunConfig().Generations {
		t.Fatalf("generations default: got=%d want=%d", cfg.Generations, defaultRunConfig().Generations)
	}
	if cfg.Input == nil || *cfg.Input != 2 {
		t.Fatalf("input: got=%v want=2", cfg.Input)
	}
	if cfg.FitnessGoal == nil || *cfg.FitnessGoal != 0 {
		t.Fatalf("fitness goal: got=%v want=0", cfg.FitnessGoal)
	}

	req, err := cfg.request()
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if !req.Input.Equal(model.Float(2)) {
		t.Fatalf("request input: got=%v want=%v", req.Input, model.Float(2))
	}
	if req.Timeout != time.Second {
		t.Fatalf("request timeout: got=%v want=%v", req.Timeout, time.Second)
	}
	if req.BasePath != "stepper.json" || req.FitnessGoal == nil {
		t.Fatalf("unexpected request: %+v", req)
	}
}

func TestLoadRunConfigRejectsBadInput(t *testing.T) {
	cases := []struct {
		name string
		file string
		body string
		want string
	}{
		{name: "unknown keys", file: "run.toml", body: "pop = 3\nislands = 2\n", want: "unknown config keys: islands, pop"},
		{name: "wrong type", file: "run.toml", body: "population = \"many\"\n", want: "config key population"},
		{name: "fractional int", file: "run.json", body: `{"generations": 1.5}`, want: "config key generations"},
		{name: "malformed toml", file: "run.toml", body: "population = \n", want: "decode"},
		{name: "malformed json", file: "run.json", body: "{", want: "decode"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := loadRunConfig(writeConfig(t, tc.file, tc.body))
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestRunConfigRequestRejectsBadTimeout(t *testing.T) {
	cfg := defaultRunConfig()
	cfg.Timeout = "soon"
	if _, err := cfg.request(); err == nil || !strings.Contains(err.Error(), "timeout") {
		t.Fatalf("expected timeout error, got %v", err)
	}
}

func TestOverrideFromFlagsOnlyTouchesSetFlags(t *testing.T) {
	cfg := defaultRunConfig()
	cfg.Base = "from-file.json"
	overrideFromFlags(&cfg, map[string]bool{"gens": true, "timeout": true, "fitness-goal": true}, map[string]any{
		"base":         "from-flag.json",
		"gens":         7,
		"timeout":      2 * time.Second,
		"fitness-goal": 3.5,
	})
	if cfg.Base != "from-file.json" {
		t.Fatalf("unset flag overrode base: got=%q", cfg.Base)
	}
	if cfg.Generations != 7 || cfg.Timeout != "2s" {
		t.Fatalf("set flags not applied: %+v", cfg)
	}
	if cfg.FitnessGoal == nil || *cfg.FitnessGoal != 3.5 {
		t.Fatalf("fitness goal: got=%v want=3.5", cfg.FitnessGoal)
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := newLogger(&buf, "warn", "json")
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	logger.Info("hidden")
	logger.Warn("shown")
	if out := buf.String(); strings.Contains(out, "hidden") || !strings.Contains(out, `"msg":"shown"`) {
		t.Fatalf("unexpected log output: %s", out)
	}
	if _, err := newLogger(&buf, "loud", "text"); err == nil {
		t.Fatal("expected log level error")
	}
	if _, err := newLogger(&buf, "info", "xml"); err == nil {
		t.Fatal("expected log format error")
	}
}
