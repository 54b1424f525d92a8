package modsys

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"slices"
	"sync"
	"time"

	"github.com/GoCodeAlone/modsys/graph"
	"github.com/GoCodeAlone/modsys/health"
	"github.com/GoCodeAlone/modsys/lifecycle"
	"github.com/GoCodeAlone/modsys/registry"
)

// ModuleSystem ties the module registry, the graph analyzer and the lifecycle
// manager together.
type ModuleSystem struct {
	modules   *ModuleRegistry
	lc        *lifecycle.Manager
	observers *ObserverHook
	logger    Logger
	config    *Config

	// construction-time settings
	hooks   []lifecycle.Hook
	timeout *time.Duration
	now     func() time.Time
	pending []Module

	// initMu serialises Initialize and Shutdown.
	initMu sync.Mutex

	mu         sync.RWMutex
	containers map[string]*registry.Registry
	order      []string
}

// New creates a module system.
func New(opts ...Option) (*ModuleSystem, error) {
	s := &ModuleSystem{
		modules:    NewModuleRegistry(),
		observers:  NewObserverHook(),
		logger:     nopLogger{},
		now:        time.Now,
		containers: make(map[string]*registry.Registry),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	if s.config == nil {
		s.config = DefaultConfig()
	}
	timeout := s.config.TransitionTimeout
	if s.timeout != nil {
		timeout = *s.timeout
	}

	hooks := append(slices.Clone(s.hooks), s.observers)
	s.lc = lifecycle.NewManager(
		lifecycle.WithLogger(s.logger),
		lifecycle.WithClock(s.now),
		lifecycle.WithTransitionTimeout(timeout),
		lifecycle.WithHooks(hooks...),
	)

	for _, m := range s.pending {
		if err := s.Register(m); err != nil {
			return nil, err
		}
	}
	s.pending = nil
	return s, nil
}

// Register adds a module and starts tracking it in the uninitialized state.
func (s *ModuleSystem) Register(module Module) error {
	if err := s.modules.Register(module); err != nil {
		return err
	}
	desc := module.Descriptor()
	if err := s.lc.Track(desc.Name); err != nil {
		return err
	}
	s.logger.Debug("Registered module", "module", desc.Name, "priority", desc.Priority, "dependencies", desc.Dependencies)
	s.emit(context.Background(), EventTypeModuleRegistered, desc.Name, desc.Clone())
	return nil
}

// RegisterFunc registers a functional module.
func (s *ModuleSystem) RegisterFunc(desc ModuleDescriptor, configure ConfigureFunc) error {
	return s.Register(NewModule(desc, configure))
}

// Modules returns the module registry.
func (s *ModuleSystem) Modules() *ModuleRegistry {
	return s.modules
}

// Lifecycle returns the lifecycle manager. Its query methods are safe to use
// directly; transitions should normally go through the system so module
// Start and Stop callbacks run.
func (s *ModuleSystem) Lifecycle() *lifecycle.Manager {
	return s.lc
}

// Observers returns the observer bridge.
func (s *ModuleSystem) Observers() *ObserverHook {
	return s.observers
}

// Config returns a copy of the effective configuration.
func (s *ModuleSystem) Config() Config {
	return *s.config
}

// Container returns the service registry of a configured module.
func (s *ModuleSystem) Container(name string) (*registry.Registry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.containers[name]
	return c, ok
}

// Analyze runs the dependency analyzer over the registered modules. Usage data
// comes from the module containers, so an export counts as used once some
// other module has resolved it.
func (s *ModuleSystem) Analyze() *graph.Result {
	usage := make(map[string]map[string]int)
	s.mu.RLock()
	for name, c := range s.containers {
		usage[name] = c.Usage()
	}
	s.mu.RUnlock()

	nodes := nodesFor(s.modules.Descriptors(), func(name string) bool {
		state, ok := s.lc.State(name)
		return ok && state != lifecycle.StateUninitialized && state != lifecycle.StateInitializing
	})
	var opts []graph.Option
	if len(usage) > 0 {
		opts = append(opts, graph.WithUsage(usage))
	}
	return graph.Analyze(nodes, opts...)
}

func nodesFor(descs []ModuleDescriptor, initialized func(string) bool) []graph.Node {
	nodes := make([]graph.Node, 0, len(descs))
	for _, d := range descs {
		nodes = append(nodes, graph.Node{
			Name:         d.Name,
			Priority:     d.Priority,
			Dependencies: d.Dependencies,
			Exports:      d.Exports,
			Initialized:  initialized != nil && initialized(d.Name),
		})
	}
	return nodes
}

// Initialize checks the dependency graph and then drives every module through
// initialize and start, one at a time, in initialization order. Module B
// never begins initializing before every module ahead of it has finished.
//
// Graph problems are reported before any module is touched. The first module
// whose initialize or start does not succeed aborts the rest of the sequence
// with an *InitializationError; modules already active stay active.
// Initialize can be called again, after registering more modules or after a
// failure. Active and paused modules are skipped. Configured modules that are
// initialized, stopped or failed are started again. A module that failed
// before Configure succeeded is destroyed and initialized from scratch.
func (s *ModuleSystem) Initialize(ctx context.Context) error {
	s.initMu.Lock()
	defer s.initMu.Unlock()

	result := s.Analyze()
	if err := result.Err(); err != nil {
		s.logger.Error("Dependency analysis failed", "error", err)
		s.emit(ctx, EventTypeSystemFailed, "", map[string]any{"error": err.Error()})
		return fmt.Errorf("failed to resolve dependencies: %w", err)
	}

	order := result.InitializationOrder
	s.mu.Lock()
	s.order = slices.Clone(order)
	s.mu.Unlock()
	s.logger.Info("Initializing modules", "order", order)

	var completed []string
	for _, name := range order {
		res, skipped := s.bringUp(ctx, name)
		if skipped {
			completed = append(completed, name)
			continue
		}
		if !res.OK() {
			initErr := &InitializationError{Module: name, Result: res, Completed: completed}
			s.logger.Error("Module initialization aborted", "module", name, "operation", res.Operation, "outcome", res.Outcome.String(), "error", res.Error())
			s.emit(ctx, EventTypeSystemFailed, name, map[string]any{"module": name, "error": initErr.Error()})
			return initErr
		}
		completed = append(completed, name)
		s.logger.Info("Module active", "module", name)
	}

	s.emit(ctx, EventTypeSystemInitialized, "", map[string]any{"modules": completed})
	return nil
}

// bringUp drives one module to active from whatever state an earlier call
// left it in. It reports skipped for modules that are already running.
func (s *ModuleSystem) bringUp(ctx context.Context, name string) (lifecycle.Result, bool) {
	state, tracked := s.lc.State(name)
	_, configured := s.Container(name)
	switch {
	case tracked && (state == lifecycle.StateActive || state == lifecycle.StatePaused):
		s.logger.Debug("Module already running, skipping", "module", name, "state", state.String())
		return lifecycle.Result{}, true
	case configured && (state == lifecycle.StateInitialized || state == lifecycle.StateStopped || state == lifecycle.StateFailed):
		s.logger.Debug("Module already configured, starting", "module", name, "state", state.String())
		return s.StartModule(ctx, name), false
	case tracked && state == lifecycle.StateFailed:
		// Configure never succeeded; start over from a fresh record.
		s.logger.Debug("Module failed before it was configured, reinitializing", "module", name)
		if res := s.DestroyModule(ctx, name); !res.OK() {
			return res, false
		}
	}

	res := s.initializeModule(ctx, name)
	if res.OK() {
		res = s.StartModule(ctx, name)
	}
	return res, false
}

// initializeModule runs the module's Configure callback as the completion
// action of the initialize transition. The container only becomes visible to
// Resolve once Configure succeeded.
func (s *ModuleSystem) initializeModule(ctx context.Context, name string) lifecycle.Result {
	module, ok := s.modules.module(name)
	if !ok {
		return s.lc.InitializeModule(ctx, name, func(context.Context) error {
			return fmt.Errorf("%w: %s", ErrModuleNotFound, name)
		})
	}
	container := registry.NewRegistry(name, s.config.registryConfig())
	mc := &ModuleContext{Name: name, Container: container, Logger: s.logger, system: s}

	return s.lc.InitializeModule(ctx, name, func(ctx context.Context) error {
		if err := module.Configure(ctx, mc); err != nil {
			return fmt.Errorf("failed to configure module '%s': %w", name, err)
		}
		s.mu.Lock()
		s.containers[name] = container
		s.mu.Unlock()
		desc, _ := s.modules.Get(name)
		for _, export := range desc.Exports {
			if !container.Exists(export) {
				s.logger.Warn("Module did not register a declared export", "module", name, "export", export)
			}
		}
		return nil
	})
}

// Resolve looks a service up. With fromModule set only that module's container
// is consulted; otherwise every active module is searched in initialization
// order and the first one holding the name wins.
func (s *ModuleSystem) Resolve(ctx context.Context, service, fromModule string) (any, error) {
	if fromModule != "" {
		if _, ok := s.modules.Get(fromModule); !ok {
			return nil, fmt.Errorf("%w: %s", ErrModuleNotFound, fromModule)
		}
		c, ok := s.Container(fromModule)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrModuleNotConfigured, fromModule)
		}
		svc, err := c.Resolve(ctx, service)
		if err != nil {
			return nil, fmt.Errorf("module '%s': %w", fromModule, err)
		}
		return svc, nil
	}

	for _, name := range s.searchOrder() {
		if state, ok := s.lc.State(name); !ok || state != lifecycle.StateActive {
			continue
		}
		c, ok := s.Container(name)
		if !ok || !c.Exists(service) {
			continue
		}
		svc, err := c.Resolve(ctx, service)
		if err != nil {
			return nil, fmt.Errorf("module '%s': %w", name, err)
		}
		return svc, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrServiceNotFound, service)
}

// ResolveByInterface finds the service implementing iface among the active
// modules. The first module, in initialization order, with a match wins.
func (s *ModuleSystem) ResolveByInterface(ctx context.Context, iface reflect.Type) (any, error) {
	if iface == nil || iface.Kind() != reflect.Interface {
		return nil, fmt.Errorf("%w: %v is not an interface type", registry.ErrNoServicesFoundForInterface, iface)
	}
	for _, name := range s.searchOrder() {
		if state, ok := s.lc.State(name); !ok || state != lifecycle.StateActive {
			continue
		}
		c, ok := s.Container(name)
		if !ok {
			continue
		}
		svc, err := c.ResolveByInterface(ctx, iface)
		if errors.Is(err, registry.ErrNoServicesFoundForInterface) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("module '%s': %w", name, err)
		}
		return svc, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrServiceNotFound, iface)
}

// ResolveAs resolves a service and asserts its type.
func ResolveAs[T any](ctx context.Context, s *ModuleSystem, service, fromModule string) (T, error) {
	var zero T
	svc, err := s.Resolve(ctx, service, fromModule)
	if err != nil {
		return zero, err
	}
	typed, ok := svc.(T)
	if !ok {
		return zero, fmt.Errorf("%w: %s is %T, not %T", registry.ErrServiceWrongType, service, svc, zero)
	}
	return typed, nil
}

// searchOrder is the last computed initialization order followed by any
// module registered since.
func (s *ModuleSystem) searchOrder() []string {
	s.mu.RLock()
	order := slices.Clone(s.order)
	s.mu.RUnlock()
	seen := make(map[string]bool, len(order))
	for _, name := range order {
		seen[name] = true
	}
	for _, d := range s.modules.Descriptors() {
		if !seen[d.Name] {
			order = append(order, d.Name)
		}
	}
	return order
}

// InitializationOrder returns the order computed by the last Initialize call.
func (s *ModuleSystem) InitializationOrder() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.order)
}

// Health evaluates every registered module. Active modules implementing
// health.Checker are asked for their own verdict.
func (s *ModuleSystem) Health(ctx context.Context) health.Report {
	names := s.modules.AllNames()
	modules := make([]health.ModuleHealth, 0, len(names))
	now := s.now()
	for _, name := range names {
		info, ok := s.lc.Info(name)
		if !ok {
			modules = append(modules, health.Untracked(name, now))
			continue
		}
		var checker health.Checker
		if m, ok := s.modules.module(name); ok {
			checker, _ = m.(health.Checker)
		}
		modules = append(modules, health.Evaluate(ctx, info, checker, now))
	}
	return health.Aggregate(modules, now)
}

func (s *ModuleSystem) emit(ctx context.Context, eventType, module string, data any) {
	source := "modsys"
	if module != "" {
		source = "modsys/" + module
	}
	if err := s.observers.Notify(ctx, NewCloudEvent(eventType, source, data, nil)); err != nil {
		s.logger.Warn("Observer failed", "event", eventType, "error", err)
	}
}
