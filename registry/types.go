package registry

import (
	"context"
	"fmt"
	"time"
)

// Scope controls how often a factory-backed service is instantiated.
type Scope string

const (
	// ScopeSingleton builds the service once, on first resolution.
	ScopeSingleton Scope = "singleton"
	// ScopeTransient builds a new instance on every resolution.
	ScopeTransient Scope = "transient"
)

// IsValid reports whether s is a known scope.
func (s Scope) IsValid() bool {
	return s == ScopeSingleton || s == ScopeTransient
}

// ParseScope parses a scope name. The empty string means ScopeSingleton.
func ParseScope(s string) (Scope, error) {
	if s == "" {
		return ScopeSingleton, nil
	}
	scope := Scope(s)
	if !scope.IsValid() {
		return "", fmt.Errorf("%w: %s", ErrInvalidScope, s)
	}
	return scope, nil
}

// ConflictResolution defines what happens when a service name is registered twice.
type ConflictResolution string

const (
	ConflictResolutionError     ConflictResolution = "error"     // Fail the registration
	ConflictResolutionOverwrite ConflictResolution = "overwrite" // Replace the existing service
	ConflictResolutionIgnore    ConflictResolution = "ignore"    // Keep the existing service
	ConflictResolutionPriority  ConflictResolution = "priority"  // Higher priority wins, ties keep the existing one
)

// Config configures a Registry.
type Config struct {
	ConflictResolution ConflictResolution `json:"conflict_resolution"`
}

// Factory builds a service instance on demand.
type Factory func(ctx context.Context) (any, error)

// Registration describes one service offered by a module. Exactly one of
// Instance and Factory must be set.
type Registration struct {
	Name     string
	Instance any
	Factory  Factory
	Scope    Scope
	// Priority breaks ties in ResolveByInterface and drives
	// ConflictResolutionPriority.
	Priority int
}

// UsageStatistics tracks how often a service was resolved.
type UsageStatistics struct {
	AccessCount    int64     `json:"access_count"`
	LastAccessTime time.Time `json:"last_access_time,omitzero"`
}

// Entry is a read-only view of a registered service.
type Entry struct {
	Name         string          `json:"name"`
	Owner        string          `json:"owner"`
	Scope        Scope           `json:"scope"`
	Priority     int             `json:"priority"`
	FactoryBased bool            `json:"factory_based"`
	RegisteredAt time.Time       `json:"registered_at"`
	Usage        UsageStatistics `json:"usage"`
}

// LazyResolver defers resolution until the service is actually needed.
type LazyResolver interface {
	Resolve(ctx context.Context) (any, error)
	IsResolved() bool
	ServiceName() string
}
