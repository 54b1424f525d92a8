package modsys

import (
	"context"
	"fmt"

	"github.com/GoCodeAlone/modsys/feeders"
	"github.com/GoCodeAlone/modsys/graph"
)

// Manifest is a declarative description of a module system:
//
//	system:
//	  transitionTimeout: 10s
//	modules:
//	  - name: database
//	    priority: 90
//	    exports: [db]
//	  - name: users
//	    dependencies: [database]
type Manifest struct {
	System  Config             `yaml:"system" toml:"system" json:"system"`
	Modules []ModuleDescriptor `yaml:"modules" toml:"modules" json:"modules"`

	path string
}

// LoadManifest reads a manifest from a .yaml, .yml, .toml or .json file. The
// system section gets defaults and MODSYS_* overrides applied and is
// validated; every module descriptor is validated too.
func LoadManifest(path string) (*Manifest, error) {
	feeder, err := feeders.ForFile(path)
	if err != nil {
		return nil, err
	}
	m := &Manifest{path: path}
	if err := feeder.Feed(m); err != nil {
		return nil, fmt.Errorf("failed to load manifest: %w", err)
	}
	if err := applyEnv(&m.System); err != nil {
		return nil, err
	}
	if err := ValidateConfig(&m.System); err != nil {
		return nil, fmt.Errorf("manifest %s: %w", path, err)
	}
	if len(m.Modules) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrManifestEmpty, path)
	}
	for _, desc := range m.Modules {
		if err := desc.Validate(); err != nil {
			return nil, fmt.Errorf("manifest %s: %w", path, err)
		}
	}
	return m, nil
}

// Path is the file the manifest was loaded from.
func (m *Manifest) Path() string {
	return m.path
}

// Descriptors returns copies of the declared modules.
func (m *Manifest) Descriptors() []ModuleDescriptor {
	out := make([]ModuleDescriptor, len(m.Modules))
	for i, d := range m.Modules {
		out[i] = d.Clone()
	}
	return out
}

// Analyze runs the graph analyzer over the declared modules without building
// a system.
func (m *Manifest) Analyze() *graph.Result {
	return graph.Analyze(nodesFor(m.Descriptors(), nil))
}

// Register adds every declared module to sys as a placeholder module (see
// PlaceholderModule).
func (m *Manifest) Register(sys *ModuleSystem) error {
	for _, desc := range m.Descriptors() {
		if err := sys.Register(PlaceholderModule(desc)); err != nil {
			return err
		}
	}
	return nil
}

// Placeholder is the service a placeholder module registers for each of its
// exports.
type Placeholder struct {
	Module string `json:"module"`
	Export string `json:"export"`
}

// PlaceholderModule builds a module with no behaviour of its own: it
// registers a Placeholder per export and resolves every export of the
// modules it depends on. It lets a manifest be brought up and exercised
// before the real modules exist.
func PlaceholderModule(desc ModuleDescriptor) Module {
	return NewModule(desc, func(ctx context.Context, mc *ModuleContext) error {
		for _, export := range desc.Exports {
			if err := mc.Container.RegisterInstance(ctx, export, Placeholder{Module: desc.Name, Export: export}); err != nil {
				return err
			}
		}
		for _, dep := range desc.Dependencies {
			depDesc, ok := mc.system.modules.Get(dep)
			if !ok {
				continue
			}
			for _, export := range depDesc.Exports {
				if _, err := mc.ResolveFrom(ctx, export, dep); err != nil {
					return fmt.Errorf("resolve %s from %s: %w", export, dep, err)
				}
			}
		}
		return nil
	})
}
