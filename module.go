// Package modsys composes a module registry, a dependency graph analyzer and a
// lifecycle state machine into a small module system.
//
// Modules declare a name, a priority, the modules they depend on and the
// capabilities they export. The system checks the dependency graph before
// touching anything, then drives every module through initialize and start in
// dependency order, configuring each one against its own service container.
//
// Basic usage:
//
//	sys, err := modsys.New(modsys.WithLogger(logger))
//	if err != nil {
//		log.Fatal(err)
//	}
//	_ = sys.RegisterFunc(modsys.ModuleDescriptor{Name: "database", Exports: []string{"db"}},
//		func(ctx context.Context, mc *modsys.ModuleContext) error {
//			return mc.Container.RegisterInstance(ctx, "db", openDB())
//		})
//	if err := sys.Initialize(ctx); err != nil {
//		log.Fatal(err)
//	}
//	defer sys.Shutdown(context.Background())
package modsys

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/GoCodeAlone/modsys/registry"
)

// ModuleDescriptor is the static identity of a module. It is copied on
// registration and never changes afterwards.
type ModuleDescriptor struct {
	Name string `json:"name" yaml:"name" toml:"name"`
	// Priority orders modules that do not depend on each other; higher
	// values initialize first.
	Priority     int      `json:"priority" yaml:"priority" toml:"priority"`
	Dependencies []string `json:"dependencies,omitempty" yaml:"dependencies" toml:"dependencies"`
	Exports      []string `json:"exports,omitempty" yaml:"exports" toml:"exports"`
}

// Validate rejects descriptors without a name or with blank dependency or
// export entries. Self dependencies and unknown dependencies are left to the
// graph analyzer, which reports them as cycles and missing dependencies.
func (d ModuleDescriptor) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return fmt.Errorf("%w: %w", ErrInvalidDescriptor, ErrModuleNameEmpty)
	}
	if slices.ContainsFunc(d.Dependencies, isBlank) {
		return fmt.Errorf("%w: module '%s' declares an empty dependency", ErrInvalidDescriptor, d.Name)
	}
	if slices.ContainsFunc(d.Exports, isBlank) {
		return fmt.Errorf("%w: module '%s' declares an empty export", ErrInvalidDescriptor, d.Name)
	}
	return nil
}

// Clone returns a deep copy with duplicate dependencies and exports removed.
func (d ModuleDescriptor) Clone() ModuleDescriptor {
	return ModuleDescriptor{
		Name:         d.Name,
		Priority:     d.Priority,
		Dependencies: dedupe(d.Dependencies),
		Exports:      dedupe(d.Exports),
	}
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}

func dedupe(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// Module is a registrable component.
type Module interface {
	// Descriptor is read once, at registration.
	Descriptor() ModuleDescriptor

	// Configure runs while the module is initializing. It registers the
	// module's services in mc.Container and may resolve services exported by
	// modules that are already active.
	Configure(ctx context.Context, mc *ModuleContext) error
}

// Startable is implemented by modules with work to do when they become active.
// Start runs as the completion action of the start transition; an error fails
// the module.
type Startable interface {
	Start(ctx context.Context) error
}

// Stoppable is implemented by modules that hold resources to release on stop.
type Stoppable interface {
	Stop(ctx context.Context) error
}

// ConfigureFunc is the configuration callback of a functional module.
type ConfigureFunc func(ctx context.Context, mc *ModuleContext) error

type funcModule struct {
	desc      ModuleDescriptor
	configure ConfigureFunc
}

// NewModule builds a Module from a descriptor and a configuration callback.
// A nil callback configures nothing.
func NewModule(desc ModuleDescriptor, configure ConfigureFunc) Module {
	return &funcModule{desc: desc, configure: configure}
}

func (m *funcModule) Descriptor() ModuleDescriptor {
	return m.desc
}

func (m *funcModule) Configure(ctx context.Context, mc *ModuleContext) error {
	if m.configure == nil {
		return nil
	}
	return m.configure(ctx, mc)
}

// ModuleContext is handed to Module.Configure.
type ModuleContext struct {
	// Name of the module being configured.
	Name string
	// Container is the module's own service registry.
	Container *registry.Registry
	Logger    Logger

	system *ModuleSystem
}

// Resolve looks a service up in the active modules, in initialization order.
// It must not be used to drive lifecycle transitions.
func (mc *ModuleContext) Resolve(ctx context.Context, service string) (any, error) {
	return mc.system.Resolve(ctx, service, "")
}

// ResolveFrom looks a service up in one specific module's container.
func (mc *ModuleContext) ResolveFrom(ctx context.Context, service, module string) (any, error) {
	return mc.system.Resolve(ctx, service, module)
}
