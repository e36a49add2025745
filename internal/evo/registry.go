package evo

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	ErrSelectorExists        = errors.New("selector already registered")
	ErrSelectorNotFound      = errors.New("selector not found")
	ErrPostprocessorExists   = errors.New("fitness postprocessor already registered")
	ErrPostprocessorNotFound = errors.New("fitness postprocessor not found")
	errRegistryNameRequired  = errors.New("registry name is required")
	errRegistryEntryRequired = errors.New("registry entry is required")
)

type namedRegistry[T any] struct {
	mu          sync.RWMutex
	m           map[string]T
	errExists   error
	errNotFound error
}

func newNamedRegistry[T any](errExists, errNotFound error) *namedRegistry[T] {
	return &namedRegistry[T]{m: make(map[string]T), errExists: errExists, errNotFound: errNotFound}
}

func (r *namedRegistry[T]) register(name string, entry T, isNil bool) error {
	if name == "" {
		return errRegistryNameRequired
	}
	if isNil {
		return errRegistryEntryRequired
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.m[name]; exists {
		return fmt.Errorf("%w: %s", r.errExists, name)
	}
	r.m[name] = entry
	return nil
}

func (r *namedRegistry[T]) resolve(name string) (T, error) {
	r.mu.RLock()
	entry, ok := r.m[name]
	r.mu.RUnlock()
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: %s", r.errNotFound, name)
	}
	return entry, nil
}

func (r *namedRegistry[T]) names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.m))
	for name := range r.m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

var (
	selectorRegistry      = newNamedRegistry[Selector](ErrSelectorExists, ErrSelectorNotFound)
	postprocessorRegistry = newNamedRegistry[FitnessPostprocessor](ErrPostprocessorExists, ErrPostprocessorNotFound)
)

func init() {
	for _, s := range []Selector{PowerSelector{Exponent: DefaultSelectionExponent}, TournamentSelector{}, UniformSelector{}} {
		if err := RegisterSelector(s.Name(), s); err != nil {
			panic(err)
		}
	}
	for _, p := range []FitnessPostprocessor{NoopFitnessPostprocessor{}, ParameterMagnitudePostprocessor{Weight: DefaultMagnitudeWeight}} {
		if err := RegisterPostprocessor(p.Name(), p); err != nil {
			panic(err)
		}
	}
}

func RegisterSelector(name string, s Selector) error {
	return selectorRegistry.register(name, s, s == nil)
}

// ResolveSelector returns the registered selector; an empty name selects the default.
func ResolveSelector(name string) (Selector, error) {
	if name == "" {
		return PowerSelector{Exponent: DefaultSelectionExponent}, nil
	}
	return selectorRegistry.resolve(name)
}

func ListSelectors() []string {
	return selectorRegistry.names()
}

func RegisterPostprocessor(name string, p FitnessPostprocessor) error {
	return postprocessorRegistry.register(name, p, p == nil)
}

func ResolvePostprocessor(name string) (FitnessPostprocessor, error) {
	if name == "" {
		return NoopFitnessPostprocessor{}, nil
	}
	return postprocessorRegistry.resolve(name)
}

func ListPostprocessors() []string {
	return postprocessorRegistry.names()
}
