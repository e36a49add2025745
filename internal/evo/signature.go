package evo

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"progevo/internal/mutation"
	"progevo/internal/program"
)

// ProgramSignature identifies a program's structure and parameter values,
// independent of its name.
type ProgramSignature struct {
	Fingerprint    string `json:"fingerprint"`
	Operations     int    `json:"operations"`
	MutationPoints int    `json:"mutation_points"`
	Parameters     int    `json:"parameters"`
}

func ComputeProgramSignature(p *program.Program) (ProgramSignature, error) {
	spec := p.Spec()
	spec.Name = ""
	data, err := json.Marshal(spec)
	if err != nil {
		return ProgramSignature{}, err
	}
	sum := sha256.Sum256(data)
	sig := ProgramSignature{Fingerprint: hex.EncodeToString(sum[:])}
	p.Walk(func(op program.Operation) bool {
		sig.Operations++
		sig.Parameters += op.ParamCount()
		if _, ok := op.(*mutation.Mutant); ok {
			sig.MutationPoints++
		}
		return true
	})
	return sig, nil
}
