package program

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"progevo/internal/model"
)

var ErrVersionMismatch = errors.New("program version mismatch")

// OpSpec is the serialized form of an operation.
type OpSpec struct {
	Op        string                 `json:"op"`
	Params    []model.Value          `json:"params,omitempty"`
	Children  []OpSpec               `json:"children,omitempty"`
	Indices   []int                  `json:"indices,omitempty"`
	Mutations []*ProgramSpec         `json:"mutations,omitempty"`
	Options   map[string]model.Value `json:"options,omitempty"`
}

// ProgramSpec is the serialized form of a program.
type ProgramSpec struct {
	model.VersionedRecord
	Name string   `json:"name"`
	Ops  []OpSpec `json:"ops"`
}

func (p *Program) Encode() ([]byte, error) {
	return json.Marshal(p.Spec())
}

func Decode(data []byte) (*Program, error) {
	var spec ProgramSpec
	if err := json.Unmarshal(data, &spec); err != nil {
		return nil, err
	}
	return BuildProgram(spec)
}

// Load reads a program file. Missing version fields default to the current versions.
func Load(path string) (*Program, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var spec ProgramSpec
	if err := json.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("decode program %s: %w", path, err)
	}
	if spec.SchemaVersion == 0 && spec.CodecVersion == 0 {
		spec.SchemaVersion = SupportedSchemaVersion
		spec.CodecVersion = SupportedCodecVersion
	}
	if spec.Name == "" {
		spec.Name = path
	}
	return BuildProgram(spec)
}

func paramAt(spec OpSpec, index int, kind model.Kind, fallback model.Value) (model.Value, error) {
	if index >= len(spec.Params) {
		return fallback, nil
	}
	v := spec.Params[index]
	if kind != model.KindAny && v.Kind != kind {
		return model.Value{}, fmt.Errorf("%w: param %d want %s got %s", ErrParamKind, index, kind, v.Kind)
	}
	if err := v.Validate(); err != nil {
		return model.Value{}, fmt.Errorf("param %d: %w", index, err)
	}
	return v.Clone(), nil
}
