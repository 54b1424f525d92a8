package modsys

import (
	"errors"
	"fmt"

	"github.com/GoCodeAlone/modsys/graph"
	"github.com/GoCodeAlone/modsys/lifecycle"
)

// Module system errors
var (
	// Registration errors
	ErrModuleNil         = errors.New("module is nil")
	ErrModuleNameEmpty   = errors.New("module name must not be empty")
	ErrInvalidDescriptor = errors.New("invalid module descriptor")
	ErrDuplicateModule   = errors.New("module already registered")
	ErrModuleNotFound    = errors.New("module not found")

	// Dependency resolution errors. These alias the graph package sentinels so
	// errors.Is works on whatever Initialize returns.
	ErrCircularDependency = graph.ErrCircularDependency
	ErrMissingDependency  = graph.ErrMissingDependency

	// Initialization and resolution errors
	ErrInitializationFailed = errors.New("module initialization failed")
	ErrModuleNotConfigured  = errors.New("module has not been configured")
	ErrUnknownAction        = errors.New("unknown lifecycle action")
	ErrServiceNotFound      = errors.New("service not found in any active module")

	// Config validation errors
	ErrConfigNil                  = errors.New("config is nil")
	ErrConfigNotPointer           = errors.New("config must be a pointer")
	ErrConfigNotStruct            = errors.New("config must be a struct")
	ErrConfigRequiredFieldMissing = errors.New("required field is missing")
	ErrConfigValidationFailed     = errors.New("config validation failed")
	ErrUnsupportedTypeForDefault  = errors.New("unsupported type for default value")
	ErrDefaultValueParseError     = errors.New("failed to parse default value")
	ErrUnsupportedFormatType      = errors.New("unsupported format type")

	// Manifest errors
	ErrManifestEmpty = errors.New("manifest declares no modules")
)

// DuplicateModuleError reports a second registration under a taken name.
type DuplicateModuleError struct {
	Name string
}

func (e *DuplicateModuleError) Error() string {
	return fmt.Sprintf("%s: %s", ErrDuplicateModule, e.Name)
}

func (e *DuplicateModuleError) Is(target error) bool {
	return target == ErrDuplicateModule
}

// InitializationError is returned by Initialize when a module's initialize or
// start transition does not succeed. Completed lists the modules that reached
// active before the failure, in order.
type InitializationError struct {
	Module    string
	Result    lifecycle.Result
	Completed []string
}

func (e *InitializationError) Error() string {
	return fmt.Sprintf("%s: module '%s': %s", ErrInitializationFailed, e.Module, e.Result)
}

func (e *InitializationError) Is(target error) bool {
	return target == ErrInitializationFailed
}

// Unwrap exposes the transition error so callers can match
// lifecycle.ErrTransitionFailed and friends, or the module's own cause.
func (e *InitializationError) Unwrap() error {
	return e.Result.Error()
}
