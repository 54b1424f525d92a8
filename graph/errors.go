package graph

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
)

// Dependency resolution errors
var (
	ErrCircularDependency = errors.New("circular dependency detected")
	ErrMissingDependency  = errors.New("module depends on non-existent module")
)

// CircularDependencyError lists every module that takes part in at least one
// dependency cycle, plus the cycle paths found during analysis.
type CircularDependencyError struct {
	Modules []string
	Cycles  [][]string
}

func (e *CircularDependencyError) Error() string {
	if len(e.Cycles) == 0 {
		return fmt.Sprintf("%s: %s", ErrCircularDependency, strings.Join(e.Modules, ", "))
	}
	paths := make([]string, len(e.Cycles))
	for i, c := range e.Cycles {
		paths[i] = strings.Join(c, " -> ")
	}
	return fmt.Sprintf("%s: %s", ErrCircularDependency, strings.Join(paths, "; "))
}

func (e *CircularDependencyError) Is(target error) bool {
	return target == ErrCircularDependency
}

// MissingDependencyError maps each dependent module to the dependency names
// that are not registered.
type MissingDependencyError struct {
	Missing map[string][]string
}

func (e *MissingDependencyError) Error() string {
	parts := make([]string, 0, len(e.Missing))
	for _, name := range slices.Sorted(maps.Keys(e.Missing)) {
		parts = append(parts, fmt.Sprintf("%s requires %s", name, strings.Join(e.Missing[name], ", ")))
	}
	return fmt.Sprintf("%s: %s", ErrMissingDependency, strings.Join(parts, "; "))
}

func (e *MissingDependencyError) Is(target error) bool {
	return target == ErrMissingDependency
}
