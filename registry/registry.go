// Package registry is the per-module service container. Every module gets its
// own Registry during configuration; other modules reach it only through the
// module system's resolve path.
package registry

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strings"
	"sync"
	"time"
)

// Static errors for registry package
var (
	ErrServiceNameEmpty             = errors.New("service name must not be empty")
	ErrNoServiceProvider            = errors.New("service registration needs exactly one of instance or factory")
	ErrServiceConflict              = errors.New("service registration conflict: service name already exists")
	ErrServiceNotFound              = errors.New("service not found")
	ErrServiceWrongType             = errors.New("service is not of the requested type")
	ErrFactoryFailed                = errors.New("service factory failed")
	ErrInvalidScope                 = errors.New("invalid service scope")
	ErrNoServicesFoundForInterface  = errors.New("no services found implementing interface")
	ErrAmbiguousInterfaceResolution = errors.New("ambiguous interface resolution: multiple services implement interface")
)

type entry struct {
	reg          Registration
	registeredAt time.Time
	seq          int
	usage        UsageStatistics

	buildMu  sync.Mutex
	built    bool
	instance any
}

// Registry holds the services one module offers.
type Registry struct {
	owner string

	mu       sync.RWMutex
	services map[string]*entry
	seq      int
	config   Config
	now      func() time.Time
}

// NewRegistry creates an empty registry owned by the named module.
func NewRegistry(owner string, config *Config) *Registry {
	cfg := Config{ConflictResolution: ConflictResolutionError}
	if config != nil && config.ConflictResolution != "" {
		cfg = *config
	}
	return &Registry{
		owner:    owner,
		services: make(map[string]*entry),
		config:   cfg,
		now:      time.Now,
	}
}

// Owner returns the name of the module owning the registry.
func (r *Registry) Owner() string {
	return r.owner
}

// Register adds a service, applying the configured conflict resolution when
// the name is already taken.
func (r *Registry) Register(_ context.Context, reg Registration) error {
	if reg.Name == "" {
		return ErrServiceNameEmpty
	}
	if (reg.Instance == nil) == (reg.Factory == nil) {
		return fmt.Errorf("%w: %s", ErrNoServiceProvider, reg.Name)
	}
	scope, err := ParseScope(string(reg.Scope))
	if err != nil {
		return err
	}
	reg.Scope = scope

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, exists := r.services[reg.Name]; exists {
		switch r.config.ConflictResolution {
		case ConflictResolutionOverwrite:
		case ConflictResolutionIgnore:
			return nil
		case ConflictResolutionPriority:
			if reg.Priority <= existing.reg.Priority {
				return nil
			}
		default:
			return fmt.Errorf("%w: %s in module %s", ErrServiceConflict, reg.Name, r.owner)
		}
	}

	r.seq++
	e := &entry{reg: reg, registeredAt: r.now(), seq: r.seq}
	if reg.Instance != nil {
		e.built = true
		e.instance = reg.Instance
	}
	r.services[reg.Name] = e
	return nil
}

// RegisterInstance registers a ready-made service.
func (r *Registry) RegisterInstance(ctx context.Context, name string, service any) error {
	return r.Register(ctx, Registration{Name: name, Instance: service})
}

// RegisterFactory registers a service built on demand with the given scope.
func (r *Registry) RegisterFactory(ctx context.Context, name string, scope Scope, factory Factory) error {
	return r.Register(ctx, Registration{Name: name, Factory: factory, Scope: scope})
}

// Unregister removes a service.
func (r *Registry) Unregister(_ context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.services[name]; !exists {
		return fmt.Errorf("%w: %s in module %s", ErrServiceNotFound, name, r.owner)
	}
	delete(r.services, name)
	return nil
}

// Resolve returns the named service, building it when it is factory-backed.
func (r *Registry) Resolve(ctx context.Context, name string) (any, error) {
	r.mu.Lock()
	e, exists := r.services[name]
	if exists {
		e.usage.AccessCount++
		e.usage.LastAccessTime = r.now()
	}
	r.mu.Unlock()

	if !exists {
		return nil, fmt.Errorf("%w: %s in module %s", ErrServiceNotFound, name, r.owner)
	}
	return r.instantiate(ctx, e)
}

// ResolveOptional resolves a service if available and returns nil, nil when
// it is not registered.
func (r *Registry) ResolveOptional(ctx context.Context, name string) (any, error) {
	svc, err := r.Resolve(ctx, name)
	if errors.Is(err, ErrServiceNotFound) {
		return nil, nil
	}
	return svc, err
}

// ResolveByInterface returns the single service whose instance implements
// iface. Factory-backed services take part once they have been built.
// Ties are broken by priority, then by registration order.
func (r *Registry) ResolveByInterface(ctx context.Context, iface reflect.Type) (any, error) {
	if iface == nil || iface.Kind() != reflect.Interface {
		return nil, fmt.Errorf("%w: %v is not an interface type", ErrNoServicesFoundForInterface, iface)
	}

	r.mu.RLock()
	all := make([]*entry, 0, len(r.services))
	for _, e := range r.services {
		all = append(all, e)
	}
	r.mu.RUnlock()

	// buildMu may be held by a factory that resolves through this registry,
	// so it is never taken while r.mu is held.
	var candidates []*entry
	for _, e := range all {
		e.buildMu.Lock()
		ok := e.built && e.instance != nil && reflect.TypeOf(e.instance).Implements(iface)
		e.buildMu.Unlock()
		if ok {
			candidates = append(candidates, e)
		}
	}

	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: %s in module %s", ErrNoServicesFoundForInterface, iface, r.owner)
	}
	slices.SortFunc(candidates, func(a, b *entry) int {
		if c := cmp.Compare(b.reg.Priority, a.reg.Priority); c != 0 {
			return c
		}
		return cmp.Compare(a.seq, b.seq)
	})
	if len(candidates) > 1 && candidates[0].reg.Priority == candidates[1].reg.Priority {
		names := make([]string, 0, len(candidates))
		for _, c := range candidates {
			if c.reg.Priority == candidates[0].reg.Priority {
				names = append(names, c.reg.Name)
			}
		}
		return nil, fmt.Errorf("%w %s: [%s]", ErrAmbiguousInterfaceResolution, iface, strings.Join(names, ", "))
	}
	return r.Resolve(ctx, candidates[0].reg.Name)
}

// Exists reports whether a service with the given name is registered.
func (r *Registry) Exists(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.services[name]
	return exists
}

// Names lists the registered service names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.services))
	for name := range r.services {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// List returns a snapshot of every registered service, sorted by name.
func (r *Registry) List() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entries := make([]Entry, 0, len(r.services))
	for name, e := range r.services {
		entries = append(entries, Entry{
			Name:         name,
			Owner:        r.owner,
			Scope:        e.reg.Scope,
			Priority:     e.reg.Priority,
			FactoryBased: e.reg.Factory != nil,
			RegisteredAt: e.registeredAt,
			Usage:        e.usage,
		})
	}
	slices.SortFunc(entries, func(a, b Entry) int { return cmp.Compare(a.Name, b.Name) })
	return entries
}

// Usage returns the access count of every registered service.
func (r *Registry) Usage() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	usage := make(map[string]int, len(r.services))
	for name, e := range r.services {
		usage[name] = int(e.usage.AccessCount)
	}
	return usage
}

// Lazy returns a resolver that resolves name on first use and caches it.
func (r *Registry) Lazy(name string) LazyResolver {
	return &lazyResolver{registry: r, serviceName: name}
}

func (r *Registry) instantiate(ctx context.Context, e *entry) (any, error) {
	if e.reg.Factory == nil {
		return e.reg.Instance, nil
	}
	if e.reg.Scope == ScopeTransient {
		return r.build(ctx, e)
	}

	e.buildMu.Lock()
	defer e.buildMu.Unlock()
	if e.built {
		return e.instance, nil
	}
	svc, err := r.build(ctx, e)
	if err != nil {
		return nil, err
	}
	e.instance = svc
	e.built = true
	return svc, nil
}

func (r *Registry) build(ctx context.Context, e *entry) (svc any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%w: %s in module %s: panic: %v", ErrFactoryFailed, e.reg.Name, r.owner, rec)
		}
	}()
	svc, err = e.reg.Factory(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %s in module %s: %w", ErrFactoryFailed, e.reg.Name, r.owner, err)
	}
	return svc, nil
}

// ResolveAs resolves a service and asserts its type.
func ResolveAs[T any](ctx context.Context, r *Registry, name string) (T, error) {
	var zero T
	svc, err := r.Resolve(ctx, name)
	if err != nil {
		return zero, err
	}
	typed, ok := svc.(T)
	if !ok {
		return zero, fmt.Errorf("%w: %s is %T, want %T", ErrServiceWrongType, name, svc, zero)
	}
	return typed, nil
}

type lazyResolver struct {
	registry    *Registry
	serviceName string

	mu       sync.Mutex
	resolved bool
	service  any
}

// Resolve resolves the service when actually needed
func (lr *lazyResolver) Resolve(ctx context.Context) (any, error) {
	lr.mu.Lock()
	defer lr.mu.Unlock()

	if lr.resolved {
		return lr.service, nil
	}
	service, err := lr.registry.Resolve(ctx, lr.serviceName)
	if err != nil {
		return nil, err
	}
	lr.service = service
	lr.resolved = true
	return service, nil
}

func (lr *lazyResolver) IsResolved() bool {
	lr.mu.Lock()
	defer lr.mu.Unlock()
	return lr.resolved
}

func (lr *lazyResolver) ServiceName() string {
	return lr.serviceName
}
