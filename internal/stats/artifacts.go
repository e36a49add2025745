package stats

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"progevo/internal/model"
)

const (
	runFile            = "run.json"
	fitnessHistoryFile = "fitness_history.json"
	diagnosticsFile    = "generation_diagnostics.json"
	bestProgramFile    = "best_program.json"
	fitnessSeriesFile  = "fitness_series.csv"
	diagnosticsCSVFile = "generation_diagnostics.csv"
	artifactDirMode    = 0o755
)

// RunArtifacts is everything exported for one finished run.
type RunArtifacts struct {
	Run                   model.RunRecord               `json:"run"`
	BestByGeneration      []float64                     `json:"best_by_generation"`
	GenerationDiagnostics []model.GenerationDiagnostics `json:"generation_diagnostics,omitempty"`
	BestProgram           json.RawMessage               `json:"best_program,omitempty"`
}

// WriteRunArtifacts writes the run under baseDir/<run id> and returns that
// directory. JSON files carry the full records; the CSV files are for
// plotting.
func WriteRunArtifacts(baseDir string, artifacts RunArtifacts) (string, error) {
	if artifacts.Run.ID == "" {
		return "", fmt.Errorf("run id is required")
	}

	runDir := filepath.Join(baseDir, artifacts.Run.ID)
	if err := os.MkdirAll(runDir, artifactDirMode); err != nil {
		return "", err
	}

	if err := writeJSON(filepath.Join(runDir, runFile), artifacts.Run); err != nil {
		return "", err
	}
	history := map[string]any{
		"best_by_generation": artifacts.BestByGeneration,
		"final_best_fitness": artifacts.Run.FinalBestFitness,
	}
	// sentinel scores in the series can overflow the regression
	if slope := Improvement(artifacts.BestByGeneration); !math.IsNaN(slope) && !math.IsInf(slope, 0) {
		history["improvement"] = slope
	}
	if err := writeJSON(filepath.Join(runDir, fitnessHistoryFile), history); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, diagnosticsFile), artifacts.GenerationDiagnostics); err != nil {
		return "", err
	}
	if len(artifacts.BestProgram) > 0 {
		if err := os.WriteFile(filepath.Join(runDir, bestProgramFile), artifacts.BestProgram, 0o644); err != nil {
			return "", err
		}
	}
	if err := writeFitnessSeries(filepath.Join(runDir, fitnessSeriesFile), artifacts.BestByGeneration); err != nil {
		return "", err
	}
	if err := writeDiagnosticsCSV(filepath.Join(runDir, diagnosticsCSVFile), artifacts.GenerationDiagnostics); err != nil {
		return "", err
	}
	return runDir, nil
}

// ReadRunArtifacts loads what WriteRunArtifacts wrote. The bool is false when
// the run directory has no run record.
func ReadRunArtifacts(baseDir, runID string) (RunArtifacts, bool, error) {
	runDir := filepath.Join(baseDir, runID)
	var out RunArtifacts
	ok, err := readJSON(filepath.Join(runDir, runFile), &out.Run)
	if err != nil || !ok {
		return RunArtifacts{}, ok, err
	}
	var history struct {
		BestByGeneration []float64 `json:"best_by_generation"`
	}
	if _, err := readJSON(filepath.Join(runDir, fitnessHistoryFile), &history); err != nil {
		return RunArtifacts{}, false, err
	}
	out.BestByGeneration = history.BestByGeneration
	if _, err := readJSON(filepath.Join(runDir, diagnosticsFile), &out.GenerationDiagnostics); err != nil {
		return RunArtifacts{}, false, err
	}
	best, err := os.ReadFile(filepath.Join(runDir, bestProgramFile))
	switch {
	case err == nil:
		out.BestProgram = best
	case !errors.Is(err, os.ErrNotExist):
		return RunArtifacts{}, false, err
	}
	return out, true, nil
}

func ReadFitnessSeries(baseDir, runID string) ([]float64, bool, error) {
	path := filepath.Join(baseDir, runID, fitnessSeriesFile)
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return []float64{}, true, nil
		}
		return nil, false, err
	}
	if len(header) < 2 {
		return nil, false, fmt.Errorf("fitness series header must have at least 2 columns")
	}

	series := make([]float64, 0, 128)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, false, err
		}
		if len(record) < 2 {
			return nil, false, fmt.Errorf("fitness series row must have at least 2 columns")
		}
		value, err := strconv.ParseFloat(record[1], 64)
		if err != nil {
			return nil, false, err
		}
		series = append(series, value)
	}
	return series, true, nil
}

func writeFitnessSeries(path string, bestByGeneration []float64) error {
	rows := make([][]string, 0, len(bestByGeneration))
	for i, best := range bestByGeneration {
		rows = append(rows, []string{strconv.Itoa(i + 1), formatFloat(best)})
	}
	return writeCSV(path, []string{"generation", "best_fitness"}, rows)
}

func writeDiagnosticsCSV(path string, diagnostics []model.GenerationDiagnostics) error {
	header := []string{
		"generation", "best_fitness", "mean_fitness", "min_fitness", "stddev_fitness",
		"evaluated", "failed_evaluations", "elites", "extinct", "crossovers", "mutations",
		"fingerprint_diversity", "duration_ms",
	}
	rows := make([][]string, 0, len(diagnostics))
	for _, d := range diagnostics {
		rows = append(rows, []string{
			strconv.Itoa(d.Generation),
			formatFloat(d.BestFitness),
			formatFloat(d.MeanFitness),
			formatFloat(d.MinFitness),
			formatFloat(d.StdDevFitness),
			strconv.Itoa(d.Evaluated),
			strconv.Itoa(d.FailedEvaluations),
			strconv.Itoa(d.Elites),
			strconv.Itoa(d.Extinct),
			strconv.Itoa(d.Crossovers),
			strconv.Itoa(d.Mutations),
			strconv.Itoa(d.FingerprintDiversity),
			strconv.FormatInt(d.DurationMS, 10),
		})
	}
	return writeCSV(path, header, rows)
}

func writeCSV(path string, header []string, rows [][]string) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write(header); err != nil {
		return err
	}
	if err := writer.WriteAll(rows); err != nil {
		return err
	}
	return file.Sync()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func writeJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o644)
}

func readJSON(path string, into any) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, into); err != nil {
		return false, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return true, nil
}
