package progevo

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/onsi/gomega"

	"progevo/internal/model"
	"progevo/internal/mutation"
	"progevo/internal/program"
)

const examplesDir = "../../examples/programs"

func newTestClient(t *testing.T, opts Options) *Client {
	t.Helper()
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.ArtifactsDir == "" {
		opts.ArtifactsDir = t.TempDir()
	}
	c, err := New(opts)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	t.Cleanup(func() {
		_ = c.Close()
	})
	if err := c.Init(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}
	return c
}

func TestRunFromProgramFiles(t *testing.T) {
	g := gomega.NewWithT(t)
	ctx := context.Background()
	c := newTestClient(t, Options{StoreKind: "sqlite", DBPath: filepath.Join(t.TempDir(), "runs.db")})

	summary, err := c.Run(ctx, RunRequest{
		BasePath:       filepath.Join(examplesDir, "climber.json"),
		FitnessPath:    filepath.Join(examplesDir, "parabola_score.json"),
		Population:     12,
		Generations:    15,
		MutationRate:   1,
		CrossoverRate:  0.2,
		ExtinctionRate: 0.25,
		ElitismRate:    0.25,
		Seed:           5,
		Workers:        3,
	})
	g.Expect(err).NotTo(gomega.HaveOccurred())
	_, err = uuid.Parse(summary.RunID)
	g.Expect(err).NotTo(gomega.HaveOccurred())
	g.Expect(summary.BestByGeneration).To(gomega.HaveLen(15))
	g.Expect(summary.ArtifactsDir).NotTo(gomega.BeEmpty())
	// the peak of -(x-3)^2 is 0
	g.Expect(summary.FinalBestFitness).To(gomega.BeNumerically("<=", 0))
	g.Expect(summary.FinalBestFitness).To(gomega.BeNumerically(">=", summary.BestByGeneration[0]))

	runs, err := c.Runs(ctx, RunsRequest{})
	g.Expect(err).NotTo(gomega.HaveOccurred())
	g.Expect(runs).To(gomega.HaveLen(1))
	g.Expect(runs[0].ID).To(gomega.Equal(summary.RunID))
	g.Expect(runs[0].BaseProgram).To(gomega.Equal("climber"))
	g.Expect(runs[0].FitnessProgram).To(gomega.Equal("parabola-score"))

	history, err := c.FitnessHistory(ctx, RunQuery{Latest: true})
	g.Expect(err).NotTo(gomega.HaveOccurred())
	g.Expect(history).To(gomega.Equal(summary.BestByGeneration))

	diagnostics, err := c.Diagnostics(ctx, RunQuery{RunID: summary.RunID, Limit: 5})
	g.Expect(err).NotTo(gomega.HaveOccurred())
	g.Expect(diagnostics).To(gomega.HaveLen(5))
	g.Expect(diagnostics[0].Evaluated).To(gomega.Equal(12))

	record, best, err := c.BestProgram(ctx, RunQuery{RunID: summary.RunID})
	g.Expect(err).NotTo(gomega.HaveOccurred())
	g.Expect(record.Fitness).To(gomega.Equal(summary.FinalBestFitness))
	g.Expect(best.Name()).To(gomega.Equal("climber"))
}

func TestRunSnapshotModeWithoutFitnessProgram(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t, Options{DisableArtifacts: true})

	summary, err := c.Run(ctx, RunRequest{
		RunID:        "stepper",
		BasePath:     filepath.Join(examplesDir, "stepper.json"),
		Mode:         "snapshot",
		Population:   6,
		Generations:  8,
		MutationRate: 1,
		ElitismRate:  0.5,
		Seed:         1,
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.RunID != "stepper" || summary.ArtifactsDir != "" {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	// every non-elite counter climbs by one per generation toward 10
	if summary.FinalBestFitness <= summary.BestByGeneration[0] {
		t.Fatalf("expected improvement: first=%f best=%f", summary.BestByGeneration[0], summary.FinalBestFitness)
	}
}

func TestRunWithInMemoryPrograms(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t, Options{})
	goal := 7.0
	summary, err := c.Run(ctx, RunRequest{
		Base:        program.New("seven", mutation.NewMutant(program.NewConst(model.Float(7)), nil, nil, nil)),
		Fitness:     program.New("identity", program.NewIdentity()),
		Population:  4,
		Generations: 10,
		FitnessGoal: &goal,
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(summary.BestByGeneration) != 1 || summary.FinalBestFitness != 7 {
		t.Fatalf("expected early stop at the goal: %+v", summary)
	}
}

func TestRunRequestErrors(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t, Options{})
	cases := []struct {
		name string
		req  RunRequest
	}{
		{"missing base", RunRequest{FitnessPath: filepath.Join(examplesDir, "parabola_score.json")}},
		{"missing fitness", RunRequest{BasePath: filepath.Join(examplesDir, "climber.json")}},
		{"unknown mode", RunRequest{BasePath: filepath.Join(examplesDir, "climber.json"), Mode: "island"}},
		{"unknown selection", RunRequest{BasePath: filepath.Join(examplesDir, "stepper.json"), Mode: "snapshot", Selection: "roulette"}},
		{"unknown postprocessor", RunRequest{BasePath: filepath.Join(examplesDir, "stepper.json"), Mode: "snapshot", Postprocessor: "nope"}},
		{"missing file", RunRequest{BasePath: filepath.Join(examplesDir, "absent.json"), Mode: "snapshot"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := c.Run(ctx, tc.req); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestQueriesValidateRunSelection(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t, Options{})
	if _, err := c.FitnessHistory(ctx, RunQuery{RunID: "a", Latest: true}); err == nil {
		t.Fatal("expected conflicting selection error")
	}
	if _, err := c.Diagnostics(ctx, RunQuery{}); err == nil {
		t.Fatal("expected missing selection error")
	}
	if _, err := c.FitnessHistory(ctx, RunQuery{Latest: true}); err == nil {
		t.Fatal("expected no runs error")
	}
	if _, _, err := c.BestProgram(ctx, RunQuery{RunID: "unknown"}); err == nil {
		t.Fatal("expected not found error")
	}
	if _, err := c.Diagnostics(ctx, RunQuery{RunID: "x", Limit: -1}); err == nil {
		t.Fatal("expected negative limit error")
	}
	if err := c.StopRun("idle"); err == nil {
		t.Fatal("expected inactive run error")
	}
}

func TestRunsNewestFirstWithLimit(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t, Options{DisableArtifacts: true})
	for _, id := range []string{"first", "second", "third"} {
		if _, err := c.Run(ctx, RunRequest{
			RunID:       id,
			Base:        program.New("seven", program.NewConst(model.Float(7))),
			Mode:        "snapshot",
			Population:  2,
			Generations: 1,
		}); err != nil {
			t.Fatalf("run %s: %v", id, err)
		}
	}
	runs, err := c.Runs(ctx, RunsRequest{Limit: 2})
	if err != nil {
		t.Fatalf("runs: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != "third" || runs[1].ID != "second" {
		t.Fatalf("unexpected runs: %+v", runs)
	}
}
