package modsys

import (
	"slices"
	"sync"
)

type registeredModule struct {
	desc   ModuleDescriptor
	module Module
}

// ModuleRegistry stores module descriptors and their modules by name. It is
// safe for concurrent use.
type ModuleRegistry struct {
	mu      sync.RWMutex
	modules map[string]*registeredModule
	order   []string
}

// NewModuleRegistry creates an empty registry.
func NewModuleRegistry() *ModuleRegistry {
	return &ModuleRegistry{modules: make(map[string]*registeredModule)}
}

// Register validates the module's descriptor and stores a copy of it.
func (r *ModuleRegistry) Register(module Module) error {
	if module == nil {
		return ErrModuleNil
	}
	desc := module.Descriptor()
	if err := desc.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.modules[desc.Name]; exists {
		return &DuplicateModuleError{Name: desc.Name}
	}
	r.modules[desc.Name] = &registeredModule{desc: desc.Clone(), module: module}
	r.order = append(r.order, desc.Name)
	return nil
}

// Get returns a copy of the named module's descriptor.
func (r *ModuleRegistry) Get(name string) (ModuleDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.modules[name]
	if !ok {
		return ModuleDescriptor{}, false
	}
	return m.desc.Clone(), true
}

func (r *ModuleRegistry) module(name string) (Module, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.modules[name]
	if !ok {
		return nil, false
	}
	return m.module, true
}

// AllNames returns a sorted snapshot of the registered names.
func (r *ModuleRegistry) AllNames() []string {
	r.mu.RLock()
	names := slices.Clone(r.order)
	r.mu.RUnlock()
	slices.Sort(names)
	return names
}

// Descriptors returns copies of every descriptor in registration order.
func (r *ModuleRegistry) Descriptors() []ModuleDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ModuleDescriptor, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.modules[name].desc.Clone())
	}
	return out
}

// Len returns the number of registered modules.
func (r *ModuleRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}
