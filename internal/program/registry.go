package program

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

const (
	SupportedSchemaVersion = 1
	SupportedCodecVersion  = 1
)

var (
	ErrOperationExists   = errors.New("operation already registered")
	ErrOperationNotFound = errors.New("operation not found")
)

// Constructor builds an operation from its serialized form.
type Constructor func(spec OpSpec) (Operation, error)

var operationRegistry = struct {
	mu sync.RWMutex
	m  map[string]Constructor
}{
	m: make(map[string]Constructor),
}

func init() {
	initializeBuiltInOperations()
}

func initializeBuiltInOperations() {
	MustRegister("Const", buildConst)
	MustRegister("Identity", buildIdentity)
	MustRegister("Add", buildAdd)
	MustRegister("Mul", buildMul)
	MustRegister("Expr", buildExpr)
	MustRegister("Accumulate", buildAccumulate)
	MustRegister("Repeat", buildRepeat)
	MustRegister("Fail", buildFail)
}

// Register makes an operation kind available to Build and Decode.
func Register(name string, ctor Constructor) error {
	if name == "" {
		return errors.New("operation name is required")
	}
	if ctor == nil {
		return errors.New("operation constructor is required")
	}

	operationRegistry.mu.Lock()
	defer operationRegistry.mu.Unlock()

	if _, exists := operationRegistry.m[name]; exists {
		return fmt.Errorf("%w: %s", ErrOperationExists, name)
	}
	operationRegistry.m[name] = ctor
	return nil
}

func MustRegister(name string, ctor Constructor) {
	if err := Register(name, ctor); err != nil {
		panic(err)
	}
}

// Build constructs a single operation from its spec.
func Build(spec OpSpec) (Operation, error) {
	operationRegistry.mu.RLock()
	ctor, ok := operationRegistry.m[spec.Op]
	operationRegistry.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrOperationNotFound, spec.Op)
	}
	op, err := ctor(spec)
	if err != nil {
		return nil, fmt.Errorf("build %s: %w", spec.Op, err)
	}
	return op, nil
}

func BuildAll(specs []OpSpec) ([]Operation, error) {
	ops := make([]Operation, 0, len(specs))
	for _, spec := range specs {
		op, err := Build(spec)
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
	}
	return ops, nil
}

// BuildProgram constructs a program from its spec after a version check.
func BuildProgram(spec ProgramSpec) (*Program, error) {
	if spec.SchemaVersion != SupportedSchemaVersion || spec.CodecVersion != SupportedCodecVersion {
		return nil, fmt.Errorf("%w: schema=%d codec=%d", ErrVersionMismatch, spec.SchemaVersion, spec.CodecVersion)
	}
	ops, err := BuildAll(spec.Ops)
	if err != nil {
		return nil, fmt.Errorf("program %s: %w", spec.Name, err)
	}
	return New(spec.Name, ops...), nil
}

func ListOperations() []string {
	operationRegistry.mu.RLock()
	defer operationRegistry.mu.RUnlock()

	names := make([]string, 0, len(operationRegistry.m))
	for name := range operationRegistry.m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
