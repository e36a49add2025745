package stats

import (
	"encoding/csv"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"

	"progevo/internal/model"
)

func TestWriteAndReadRunArtifacts(t *testing.T) {
	base := t.TempDir()
	artifacts := RunArtifacts{
		Run: model.RunRecord{
			VersionedRecord:  model.VersionedRecord{SchemaVersion: 1, CodecVersion: 1},
			ID:               "run-1",
			Mode:             "crossover",
			PopulationSize:   4,
			Generations:      3,
			FinalBestFitness: 3,
		},
		BestByGeneration: []float64{1, 2, 3},
		GenerationDiagnostics: []model.GenerationDiagnostics{
			{Generation: 1, BestFitness: 1, Evaluated: 4},
			{Generation: 2, BestFitness: 2, Evaluated: 4, FailedEvaluations: 1},
			{Generation: 3, BestFitness: 3, Evaluated: 4},
		},
		BestProgram: json.RawMessage(`{"name":"best","ops":[]}`),
	}

	dir, err := WriteRunArtifacts(base, artifacts)
	if err != nil {
		t.Fatalf("write artifacts: %v", err)
	}
	if dir != filepath.Join(base, "run-1") {
		t.Fatalf("unexpected run dir: got=%s", dir)
	}
	for _, name := range []string{runFile, fitnessHistoryFile, diagnosticsFile, bestProgramFile, fitnessSeriesFile, diagnosticsCSVFile} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Fatalf("expected %s: %v", name, err)
		}
	}

	loaded, ok, err := ReadRunArtifacts(base, "run-1")
	if err != nil || !ok {
		t.Fatalf("read artifacts: ok=%v err=%v", ok, err)
	}
	if loaded.Run.ID != "run-1" || loaded.Run.FinalBestFitness != 3 {
		t.Fatalf("unexpected run: %+v", loaded.Run)
	}
	if len(loaded.BestByGeneration) != 3 || loaded.BestByGeneration[2] != 3 {
		t.Fatalf("unexpected history: %v", loaded.BestByGeneration)
	}
	if len(loaded.GenerationDiagnostics) != 3 || loaded.GenerationDiagnostics[1].FailedEvaluations != 1 {
		t.Fatalf("unexpected diagnostics: %+v", loaded.GenerationDiagnostics)
	}
	if string(loaded.BestProgram) != `{"name":"best","ops":[]}` {
		t.Fatalf("unexpected best program: %s", loaded.BestProgram)
	}

	series, ok, err := ReadFitnessSeries(base, "run-1")
	if err != nil || !ok {
		t.Fatalf("read series: ok=%v err=%v", ok, err)
	}
	if len(series) != 3 || series[0] != 1 || series[2] != 3 {
		t.Fatalf("unexpected series: %v", series)
	}

	file, err := os.Open(filepath.Join(dir, diagnosticsCSVFile))
	if err != nil {
		t.Fatalf("open diagnostics csv: %v", err)
	}
	defer file.Close()
	rows, err := csv.NewReader(file).ReadAll()
	if err != nil {
		t.Fatalf("parse diagnostics csv: %v", err)
	}
	if len(rows) != 4 || rows[2][6] != "1" {
		t.Fatalf("unexpected diagnostics csv: %v", rows)
	}
}

func TestWriteRunArtifactsWithSentinelHistory(t *testing.T) {
	base := t.TempDir()
	artifacts := RunArtifacts{
		Run:              model.RunRecord{ID: "sentinel"},
		BestByGeneration: []float64{-math.MaxFloat64, 1},
	}
	if _, err := WriteRunArtifacts(base, artifacts); err != nil {
		t.Fatalf("write artifacts: %v", err)
	}
	series, _, err := ReadFitnessSeries(base, "sentinel")
	if err != nil {
		t.Fatalf("read series: %v", err)
	}
	if len(series) != 2 || series[0] != -math.MaxFloat64 {
		t.Fatalf("unexpected series: %v", series)
	}
}

func TestArtifactsRequireRunID(t *testing.T) {
	if _, err := WriteRunArtifacts(t.TempDir(), RunArtifacts{}); err == nil {
		t.Fatal("expected missing run id error")
	}
}

func TestReadMissingArtifacts(t *testing.T) {
	base := t.TempDir()
	if _, ok, err := ReadRunArtifacts(base, "absent"); err != nil || ok {
		t.Fatalf("expected missing run: ok=%v err=%v", ok, err)
	}
	if _, ok, err := ReadFitnessSeries(base, "absent"); err != nil || ok {
		t.Fatalf("expected missing series: ok=%v err=%v", ok, err)
	}
}
