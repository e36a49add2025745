package evo

import (
	"math"

	"progevo/internal/mutation"
)

// DefaultMagnitudeWeight is the penalty per unit of evolvable parameter magnitude.
const DefaultMagnitudeWeight = 0.01

// FitnessPostprocessor adjusts evaluated fitness values in place before
// ranking. Individuals holding the sentinel are left untouched.
type FitnessPostprocessor interface {
	Name() string
	Process(population []*Individual)
}

type NoopFitnessPostprocessor struct{}

func (NoopFitnessPostprocessor) Name() string {
	return "none"
}

func (NoopFitnessPostprocessor) Process(_ []*Individual) {}

// ParameterMagnitudePostprocessor subtracts Weight times the L1 norm of the
// individual's evolvable parameters, so among equally fit individuals the
// one with smaller parameters ranks first. A non-positive Weight selects
// DefaultMagnitudeWeight.
type ParameterMagnitudePostprocessor struct {
	Weight float64
}

func (ParameterMagnitudePostprocessor) Name() string {
	return "parameter_magnitude"
}

func (p ParameterMagnitudePostprocessor) Process(population []*Individual) {
	weight := p.Weight
	if weight <= 0 {
		weight = DefaultMagnitudeWeight
	}
	for _, ind := range population {
		if ind.Fitness == SentinelFitness {
			continue
		}
		ind.Fitness -= weight * parameterMagnitude(ind.Points)
	}
}

func parameterMagnitude(points []*mutation.Point) float64 {
	var total float64
	for _, pt := range points {
		op := pt.Operation()
		if op == nil {
			continue
		}
		for _, idx := range pt.Mutant().Indices() {
			v := op.Param(idx)
			for _, x := range v.Ints {
				total += math.Abs(float64(x))
			}
			for _, x := range v.Floats {
				total += math.Abs(x)
			}
		}
	}
	return total
}
