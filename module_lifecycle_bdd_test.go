package modsys

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/cucumber/godog"

	"github.com/GoCodeAlone/modsys/graph"
	"github.com/GoCodeAlone/modsys/lifecycle"
)

// Static error variables for BDD steps
var (
	errExpectedInitSuccess = errors.New("expected initialization to succeed")
	errExpectedInitFailure = errors.New("expected initialization to fail")
	errUnexpectedState     = errors.New("unexpected module state")
	errUnexpectedOutcome   = errors.New("unexpected transition outcome")
	errModuleStillTracked  = errors.New("module is still tracked")
	errStartRefused        = errors.New("start refused")
)

type lifecycleBDDContext struct {
	system  *ModuleSystem
	initErr error
	last    lifecycle.Result
}

// flakyModule fails its first start.
type flakyModule struct {
	Module
	starts atomic.Int32
}

func (m *flakyModule) Start(context.Context) error {
	if m.starts.Add(1) == 1 {
		return errStartRefused
	}
	return nil
}

func splitNames(list string) []string {
	if list == "" {
		return nil
	}
	return strings.Split(list, ",")
}

func (c *lifecycleBDDContext) aModuleSystem() error {
	s, err := New()
	if err != nil {
		return err
	}
	c.system = s
	c.initErr = nil
	c.last = lifecycle.Result{}
	return nil
}

func (c *lifecycleBDDContext) aModuleWithPriority(name string, priority int) error {
	return c.system.RegisterFunc(ModuleDescriptor{Name: name, Priority: priority}, nil)
}

func (c *lifecycleBDDContext) aModuleWithPriorityDependingOn(name string, priority int, deps string) error {
	return c.system.RegisterFunc(ModuleDescriptor{Name: name, Priority: priority, Dependencies: splitNames(deps)}, nil)
}

func (c *lifecycleBDDContext) aModuleThatFailsToStartOnce(name string, priority int) error {
	return c.system.Register(&flakyModule{Module: NewModule(ModuleDescriptor{Name: name, Priority: priority}, nil)})
}

func (c *lifecycleBDDContext) iInitializeTheSystem() error {
	c.initErr = c.system.Initialize(context.Background())
	return nil
}

func (c *lifecycleBDDContext) initializationSucceeds() error {
	if c.initErr != nil {
		return fmt.Errorf("%w: %w", errExpectedInitSuccess, c.initErr)
	}
	return nil
}

func (c *lifecycleBDDContext) initializationFails() error {
	if c.initErr == nil {
		return errExpectedInitFailure
	}
	return nil
}

func (c *lifecycleBDDContext) initializationFailsWithCycle(modules string) error {
	var cycleErr *graph.CircularDependencyError
	if !errors.As(c.initErr, &cycleErr) {
		return fmt.Errorf("%w: got %v", errExpectedInitFailure, c.initErr)
	}
	if !slices.Equal(cycleErr.Modules, splitNames(modules)) {
		return fmt.Errorf("cycle modules %v, want %s", cycleErr.Modules, modules)
	}
	return nil
}

func (c *lifecycleBDDContext) initializationFailsBecauseMissing(module, missing string) error {
	var missingErr *graph.MissingDependencyError
	if !errors.As(c.initErr, &missingErr) {
		return fmt.Errorf("%w: got %v", errExpectedInitFailure, c.initErr)
	}
	if !slices.Contains(missingErr.Missing[module], missing) {
		return fmt.Errorf("%s is not reported missing for %s: %v", missing, module, missingErr.Missing)
	}
	return nil
}

func (c *lifecycleBDDContext) theInitializationOrderIs(order string) error {
	got := c.system.InitializationOrder()
	if !slices.Equal(got, splitNames(order)) {
		return fmt.Errorf("initialization order %v, want %s", got, order)
	}
	return nil
}

func (c *lifecycleBDDContext) iActOnModule(action, name string) error {
	res, err := c.system.Transition(context.Background(), name, action)
	if err != nil {
		return err
	}
	c.last = res
	return nil
}

func (c *lifecycleBDDContext) theTransitionSucceeds() error {
	if !c.last.OK() {
		return fmt.Errorf("%w: %s", errUnexpectedOutcome, c.last)
	}
	return nil
}

func (c *lifecycleBDDContext) theTransitionIsBlocked() error {
	if c.last.Outcome != lifecycle.OutcomeBlocked {
		return fmt.Errorf("%w: %s", errUnexpectedOutcome, c.last)
	}
	return nil
}

func (c *lifecycleBDDContext) moduleIs(name, state string) error {
	want, err := lifecycle.ParseState(state)
	if err != nil {
		return err
	}
	got, ok := c.system.Lifecycle().State(name)
	if !ok || got != want {
		return fmt.Errorf("%w: %s is %s, want %s", errUnexpectedState, name, got, want)
	}
	return nil
}

func (c *lifecycleBDDContext) moduleHasFailures(name string, count int) error {
	info, ok := c.system.Lifecycle().Info(name)
	if !ok {
		return fmt.Errorf("%w: %s is not tracked", errUnexpectedState, name)
	}
	if info.FailureCount != count {
		return fmt.Errorf("%s has %d failures, want %d", name, info.FailureCount, count)
	}
	return nil
}

func (c *lifecycleBDDContext) moduleHistoryIs(name, history string) error {
	info, ok := c.system.Lifecycle().Info(name)
	if !ok {
		return fmt.Errorf("%w: %s is not tracked", errUnexpectedState, name)
	}
	got := make([]string, len(info.History))
	for i, s := range info.History {
		got[i] = s.String()
	}
	if strings.Join(got, ",") != history {
		return fmt.Errorf("history %s, want %s", strings.Join(got, ","), history)
	}
	return nil
}

func (c *lifecycleBDDContext) moduleIsNotTracked(name string) error {
	if _, ok := c.system.Lifecycle().Info(name); ok {
		return fmt.Errorf("%w: %s", errModuleStillTracked, name)
	}
	return nil
}

func (c *lifecycleBDDContext) noModuleIs(state string) error {
	s, err := lifecycle.ParseState(state)
	if err != nil {
		return err
	}
	if names := c.system.Lifecycle().Modules(s); len(names) > 0 {
		return fmt.Errorf("%w: %v are %s", errUnexpectedState, names, s)
	}
	return nil
}

func initializeLifecycleScenario(sc *godog.ScenarioContext) {
	c := &lifecycleBDDContext{}

	sc.Step(`^a module system$`, c.aModuleSystem)
	sc.Step(`^a module "([^"]*)" with priority (-?\d+)$`, c.aModuleWithPriority)
	sc.Step(`^a module "([^"]*)" with priority (-?\d+) depending on "([^"]*)"$`, c.aModuleWithPriorityDependingOn)
	sc.Step(`^a module "([^"]*)" with priority (-?\d+) that fails to start once$`, c.aModuleThatFailsToStartOnce)
	sc.Step(`^I initialize the system$`, c.iInitializeTheSystem)
	sc.Step(`^initialization succeeds$`, c.initializationSucceeds)
	sc.Step(`^initialization fails$`, c.initializationFails)
	sc.Step(`^initialization fails with a circular dependency involving "([^"]*)"$`, c.initializationFailsWithCycle)
	sc.Step(`^initialization fails because "([^"]*)" is missing "([^"]*)"$`, c.initializationFailsBecauseMissing)
	sc.Step(`^the initialization order is "([^"]*)"$`, c.theInitializationOrderIs)
	sc.Step(`^I "([^"]*)" module "([^"]*)"$`, c.iActOnModule)
	sc.Step(`^the transition succeeds$`, c.theTransitionSucceeds)
	sc.Step(`^the transition is blocked$`, c.theTransitionIsBlocked)
	sc.Step(`^module "([^"]*)" is "([^"]*)"$`, c.moduleIs)
	sc.Step(`^module "([^"]*)" has (\d+) failures$`, c.moduleHasFailures)
	sc.Step(`^module "([^"]*)" history is "([^"]*)"$`, c.moduleHistoryIs)
	sc.Step(`^module "([^"]*)" is not tracked$`, c.moduleIsNotTracked)
	sc.Step(`^no module is "([^"]*)"$`, c.noModuleIs)
}

func TestModuleLifecycleFeatures(t *testing.T) {
	suite := godog.TestSuite{
		ScenarioInitializer: initializeLifecycleScenario,
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"features/module_lifecycle.feature"},
			TestingT: t,
		},
	}

	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}
