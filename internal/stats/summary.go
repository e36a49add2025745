package stats

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// FitnessSummary describes a set of fitness scores.
type FitnessSummary struct {
	Count  int
	Best   float64
	Mean   float64
	Min    float64
	StdDev float64
}

// Summarize reports the best, mean, minimum and standard deviation of the
// finite scores in values. Non-finite scores are ignored.
func Summarize(values []float64) FitnessSummary {
	finite := make([]float64, 0, len(values))
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		finite = append(finite, v)
	}
	if len(finite) == 0 {
		return FitnessSummary{}
	}

	out := FitnessSummary{Count: len(finite), Best: finite[0], Min: finite[0]}
	for _, v := range finite[1:] {
		out.Best = math.Max(out.Best, v)
		out.Min = math.Min(out.Min, v)
	}
	if len(finite) == 1 {
		out.Mean = finite[0]
		return out
	}
	out.Mean, out.StdDev = stat.MeanStdDev(finite, nil)
	return out
}

// Improvement is the slope of a least-squares line through a best-fitness
// series, indexed by generation.
func Improvement(bestByGeneration []float64) float64 {
	if len(bestByGeneration) < 2 {
		return 0
	}
	xs := make([]float64, len(bestByGeneration))
	for i := range xs {
		xs[i] = float64(i)
	}
	_, slope := stat.LinearRegression(xs, bestByGeneration, nil, false)
	return slope
}
