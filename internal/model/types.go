package model

import "encoding/json"

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

// RunRecord describes one evolution run and its configuration.
type RunRecord struct {
	VersionedRecord
	ID               string  `json:"id"`
	CreatedAtUTC     string  `json:"created_at_utc"`
	BaseProgram      string  `json:"base_program"`
	FitnessProgram   string  `json:"fitness_program,omitempty"`
	Mode             string  `json:"mode"`
	PopulationSize   int     `json:"population_size"`
	Generations      int     `json:"generations"`
	MutationRate     float64 `json:"mutation_rate"`
	CrossoverRate    float64 `json:"crossover_rate"`
	ExtinctionRate   float64 `json:"extinction_rate"`
	ElitismRate      float64 `json:"elitism_rate"`
	Seed             int64   `json:"seed"`
	FinalBestFitness float64 `json:"final_best_fitness"`
}

// GenerationDiagnostics summarizes one generation. Fitness statistics cover
// successful evaluations only.
type GenerationDiagnostics struct {
	Generation           int     `json:"generation"`
	BestFitness          float64 `json:"best_fitness"`
	MeanFitness          float64 `json:"mean_fitness"`
	MinFitness           float64 `json:"min_fitness"`
	StdDevFitness        float64 `json:"stddev_fitness"`
	Evaluated            int     `json:"evaluated"`
	FailedEvaluations    int     `json:"failed_evaluations"`
	Elites               int     `json:"elites"`
	Extinct              int     `json:"extinct"`
	Crossovers           int     `json:"crossovers"`
	Mutations            int     `json:"mutations"`
	FingerprintDiversity int     `json:"fingerprint_diversity"`
	DurationMS           int64   `json:"duration_ms"`
}

// BestProgramRecord is the encoded best program of a run at a given generation.
type BestProgramRecord struct {
	VersionedRecord
	RunID      string          `json:"run_id"`
	Generation int             `json:"generation"`
	Fitness    float64         `json:"fitness"`
	Program    json.RawMessage `json:"program"`
}
