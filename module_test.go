package modsys

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModuleDescriptor_Validate(t *testing.T) {
	tests := []struct {
		name    string
		desc    ModuleDescriptor
		wantErr bool
	}{
		{"valid", ModuleDescriptor{Name: "db", Dependencies: []string{"net"}, Exports: []string{"sql"}}, false},
		{"self dependency is left to the analyzer", ModuleDescriptor{Name: "db", Dependencies: []string{"db"}}, false},
		{"empty name", ModuleDescriptor{}, true},
		{"blank name", ModuleDescriptor{Name: "  "}, true},
		{"blank dependency", ModuleDescriptor{Name: "db", Dependencies: []string{""}}, true},
		{"blank export", ModuleDescriptor{Name: "db", Exports: []string{" "}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.desc.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidDescriptor)
				return
			}
			assert.NoError(t, err)
		})
	}
	assert.ErrorIs(t, ModuleDescriptor{}.Validate(), ErrModuleNameEmpty)
}

func TestModuleDescriptor_Clone(t *testing.T) {
	desc := ModuleDescriptor{Name: "users", Priority: 5, Dependencies: []string{"db", "net", "db"}, Exports: []string{"users", "users"}}
	clone := desc.Clone()
	assert.Equal(t, []string{"db", "net"}, clone.Dependencies)
	assert.Equal(t, []string{"users"}, clone.Exports)

	clone.Dependencies[0] = "changed"
	assert.Equal(t, "db", desc.Dependencies[0])
	assert.Nil(t, ModuleDescriptor{Name: "x"}.Clone().Dependencies)
}

func TestModuleRegistry(t *testing.T) {
	r := NewModuleRegistry()
	require.NoError(t, r.Register(NewModule(ModuleDescriptor{Name: "users", Dependencies: []string{"db", "db"}}, nil)))
	require.NoError(t, r.Register(NewModule(ModuleDescriptor{Name: "db", Priority: 90}, nil)))

	err := r.Register(NewModule(ModuleDescriptor{Name: "db"}, nil))
	require.ErrorIs(t, err, ErrDuplicateModule)
	var dup *DuplicateModuleError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "db", dup.Name)

	assert.ErrorIs(t, r.Register(nil), ErrModuleNil)
	assert.ErrorIs(t, r.Register(NewModule(ModuleDescriptor{}, nil)), ErrInvalidDescriptor)

	desc, ok := r.Get("users")
	require.True(t, ok)
	assert.Equal(t, []string{"db"}, desc.Dependencies, "duplicates are collapsed on registration")
	desc.Dependencies[0] = "mutated"
	again, _ := r.Get("users")
	assert.Equal(t, "db", again.Dependencies[0], "callers only ever see copies")

	_, ok = r.Get("ghost")
	assert.False(t, ok)

	assert.Equal(t, []string{"db", "users"}, r.AllNames())
	descs := r.Descriptors()
	require.Len(t, descs, 2)
	assert.Equal(t, "users", descs[0].Name, "registration order")
	assert.Equal(t, 2, r.Len())
}

func TestModuleRegistry_ConcurrentRegister(t *testing.T) {
	r := NewModuleRegistry()
	var wg sync.WaitGroup
	var mu sync.Mutex
	var failures int
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := r.Register(NewModule(ModuleDescriptor{Name: "same"}, nil)); err != nil {
				mu.Lock()
				failures++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, r.Len())
	assert.Equal(t, 19, failures)
}

func TestNewModule(t *testing.T) {
	errConfigure := errors.New("configure failed")
	m := NewModule(ModuleDescriptor{Name: "x"}, func(context.Context, *ModuleContext) error { return errConfigure })
	assert.Equal(t, "x", m.Descriptor().Name)
	assert.ErrorIs(t, m.Configure(context.Background(), &ModuleContext{}), errConfigure)
	assert.NoError(t, NewModule(ModuleDescriptor{Name: "y"}, nil).Configure(context.Background(), &ModuleContext{}))
}
