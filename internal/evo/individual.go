package evo

import (
	"fmt"

	"progevo/internal/mutation"
	"progevo/internal/program"
)

// NoParent marks an individual that was not produced by crossover this generation.
const NoParent = -1

// Individual is one population member. It is created once at initialization
// and lives until Close.
type Individual struct {
	Handle         int
	Program        *program.Program
	FitnessProgram *program.Program
	Points         []*mutation.Point
	Fitness        float64

	Elite   bool
	Extinct bool

	Parent0 int
	Parent1 int

	// Failed holds the last run error, if any.
	Failed error

	evaluated bool
	mutated   int
}

// IndividualView is a read-only copy of an individual's bookkeeping.
type IndividualView struct {
	Handle         int     `json:"handle"`
	Fitness        float64 `json:"fitness"`
	Elite          bool    `json:"elite"`
	Extinct        bool    `json:"extinct"`
	Parent0        int     `json:"parent0"`
	Parent1        int     `json:"parent1"`
	Failed         string  `json:"failed,omitempty"`
	MutationPoints int     `json:"mutation_points"`
}

func (ind *Individual) view() IndividualView {
	v := IndividualView{
		Handle:         ind.Handle,
		Fitness:        ind.Fitness,
		Elite:          ind.Elite,
		Extinct:        ind.Extinct,
		Parent0:        ind.Parent0,
		Parent1:        ind.Parent1,
		MutationPoints: len(ind.Points),
	}
	if ind.Failed != nil {
		v.Failed = ind.Failed.Error()
	}
	return v
}

func (ind *Individual) owns(p *program.Program) bool {
	return p != nil && (ind.Program == p || ind.FitnessProgram == p)
}

// lookupTable maps a program's owner handle back to its individual. It is
// built once after initialization and only read afterwards.
type lookupTable map[int]*Individual

// individualFor resolves a running program to its owner. A miss means the
// population bookkeeping is corrupt and panics.
func (t lookupTable) individualFor(p *program.Program) *Individual {
	if p == nil {
		panic(fmt.Errorf("%w: nil program", ErrUnknownProgram))
	}
	ind, ok := t[p.Owner()]
	if !ok || !ind.owns(p) {
		panic(fmt.Errorf("%w: %s (owner %d)", ErrUnknownProgram, p.Name(), p.Owner()))
	}
	return ind
}
