package storage

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/onsi/gomega"

	"progevo/internal/model"
)

func storesUnderTest(t *testing.T) map[string]Store {
	t.Helper()
	sqlite := NewSQLiteStore(filepath.Join(t.TempDir(), "progevo.db"))
	t.Cleanup(func() {
		_ = sqlite.Close()
	})
	return map[string]Store{
		"memory": NewMemoryStore(),
		"sqlite": sqlite,
	}
}

func TestStoreRunRecords(t *testing.T) {
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			g := gomega.NewWithT(t)
			ctx := context.Background()
			g.Expect(store.Init(ctx)).To(gomega.Succeed())

			later := model.RunRecord{VersionedRecord: CurrentVersion(), ID: "b", CreatedAtUTC: "2026-01-02T00:00:00Z", Mode: "snapshot", PopulationSize: 8}
			earlier := model.RunRecord{VersionedRecord: CurrentVersion(), ID: "a", CreatedAtUTC: "2026-01-01T00:00:00Z", Mode: "crossover", PopulationSize: 4}
			g.Expect(store.SaveRun(ctx, later)).To(gomega.Succeed())
			g.Expect(store.SaveRun(ctx, earlier)).To(gomega.Succeed())

			got, ok, err := store.GetRun(ctx, "b")
			g.Expect(err).NotTo(gomega.HaveOccurred())
			g.Expect(ok).To(gomega.BeTrue())
			g.Expect(got).To(gomega.Equal(later))

			_, ok, err = store.GetRun(ctx, "missing")
			g.Expect(err).NotTo(gomega.HaveOccurred())
			g.Expect(ok).To(gomega.BeFalse())

			runs, err := store.ListRuns(ctx)
			g.Expect(err).NotTo(gomega.HaveOccurred())
			g.Expect(runs).To(gomega.HaveLen(2))
			g.Expect(runs[0].ID).To(gomega.Equal("a"))
			g.Expect(runs[1].ID).To(gomega.Equal("b"))

			later.FinalBestFitness = 3.5
			g.Expect(store.SaveRun(ctx, later)).To(gomega.Succeed())
			got, _, err = store.GetRun(ctx, "b")
			g.Expect(err).NotTo(gomega.HaveOccurred())
			g.Expect(got.FinalBestFitness).To(gomega.Equal(3.5))
		})
	}
}

func TestStoreRunOutputs(t *testing.T) {
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if err := store.Init(ctx); err != nil {
				t.Fatalf("init: %v", err)
			}

			history := []float64{-1.7976931348623157e308, 0.5, 1.25}
			if err := store.SaveFitnessHistory(ctx, "run-1", history); err != nil {
				t.Fatalf("save history: %v", err)
			}
			gotHistory, ok, err := store.GetFitnessHistory(ctx, "run-1")
			if err != nil || !ok {
				t.Fatalf("get history: ok=%v err=%v", ok, err)
			}
			if len(gotHistory) != 3 || gotHistory[0] != history[0] || gotHistory[2] != 1.25 {
				t.Fatalf("unexpected history: got=%v want=%v", gotHistory, history)
			}

			diagnostics := []model.GenerationDiagnostics{{Generation: 1, BestFitness: 1.25, Evaluated: 4, FailedEvaluations: 1}}
			if err := store.SaveGenerationDiagnostics(ctx, "run-1", diagnostics); err != nil {
				t.Fatalf("save diagnostics: %v", err)
			}
			gotDiagnostics, ok, err := store.GetGenerationDiagnostics(ctx, "run-1")
			if err != nil || !ok {
				t.Fatalf("get diagnostics: ok=%v err=%v", ok, err)
			}
			if len(gotDiagnostics) != 1 || gotDiagnostics[0] != diagnostics[0] {
				t.Fatalf("unexpected diagnostics: got=%+v want=%+v", gotDiagnostics, diagnostics)
			}

			best := model.BestProgramRecord{
				VersionedRecord: CurrentVersion(),
				RunID:           "run-1",
				Generation:      3,
				Fitness:         1.25,
				Program:         json.RawMessage(`{"name":"best"}`),
			}
			if err := store.SaveBestProgram(ctx, best); err != nil {
				t.Fatalf("save best program: %v", err)
			}
			gotBest, ok, err := store.GetBestProgram(ctx, "run-1")
			if err != nil || !ok {
				t.Fatalf("get best program: ok=%v err=%v", ok, err)
			}
			if gotBest.Generation != 3 || string(gotBest.Program) != `{"name":"best"}` {
				t.Fatalf("unexpected best program: %+v", gotBest)
			}

			if _, ok, _ := store.GetFitnessHistory(ctx, "run-2"); ok {
				t.Fatal("expected no history for unknown run")
			}
		})
	}
}

func TestStoreRequiresInit(t *testing.T) {
	ctx := context.Background()
	for name, store := range storesUnderTest(t) {
		if err := store.SaveFitnessHistory(ctx, "run", []float64{1}); err == nil {
			t.Fatalf("%s: expected error before init", name)
		}
	}
}

func TestSQLiteStorePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "reopen.db")

	first := NewSQLiteStore(path)
	if err := first.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	run := model.RunRecord{VersionedRecord: CurrentVersion(), ID: "persisted", CreatedAtUTC: "2026-03-01T00:00:00Z"}
	if err := first.SaveRun(ctx, run); err != nil {
		t.Fatalf("save run: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	second := NewSQLiteStore(path)
	if err := second.Init(ctx); err != nil {
		t.Fatalf("reopen: %v", err)
	}
	t.Cleanup(func() {
		_ = second.Close()
	})
	got, ok, err := second.GetRun(ctx, "persisted")
	if err != nil || !ok {
		t.Fatalf("get run: ok=%v err=%v", ok, err)
	}
	if got.ID != run.ID {
		t.Fatalf("unexpected run: got=%s want=%s", got.ID, run.ID)
	}
}

func TestSQLiteStoreRequiresPath(t *testing.T) {
	if err := NewSQLiteStore("").Init(context.Background()); err == nil {
		t.Fatal("expected missing path error")
	}
}
