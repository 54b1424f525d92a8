package modsys

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/GoCodeAlone/modsys/lifecycle"
)

// Lifecycle actions accepted by Transition.
const (
	ActionStart   = "start"
	ActionStop    = "stop"
	ActionPause   = "pause"
	ActionResume  = "resume"
	ActionDestroy = "destroy"
)

// StartModule moves a module to active, calling its Start method when it
// implements Startable. A module whose Configure never succeeded has no
// container and is blocked; destroy it and run Initialize again instead.
func (s *ModuleSystem) StartModule(ctx context.Context, name string) lifecycle.Result {
	if state, ok := s.lc.State(name); ok {
		if _, configured := s.Container(name); !configured {
			s.logger.Warn("Refusing to start unconfigured module", "module", name, "state", state.String())
			return lifecycle.Result{
				Outcome:   lifecycle.OutcomeBlocked,
				Module:    name,
				Operation: "start",
				From:      state,
				To:        state,
				Reason:    "module has not been configured",
			}
		}
	}
	return s.lc.StartModule(ctx, name, s.moduleAction(name, func(m Module) func(context.Context) error {
		if st, ok := m.(Startable); ok {
			return st.Start
		}
		return nil
	}))
}

// StopModule moves a module to stopped, calling its Stop method when it
// implements Stoppable.
func (s *ModuleSystem) StopModule(ctx context.Context, name string) lifecycle.Result {
	return s.lc.StopModule(ctx, name, s.moduleAction(name, func(m Module) func(context.Context) error {
		if st, ok := m.(Stoppable); ok {
			return st.Stop
		}
		return nil
	}))
}

// PauseModule pauses an active module.
func (s *ModuleSystem) PauseModule(ctx context.Context, name string) lifecycle.Result {
	return s.lc.PauseModule(ctx, name)
}

// ResumeModule resumes a paused module.
func (s *ModuleSystem) ResumeModule(ctx context.Context, name string) lifecycle.Result {
	return s.lc.ResumeModule(ctx, name)
}

// DestroyModule destroys a module and drops its service container. The
// module stays registered and can be initialized again.
func (s *ModuleSystem) DestroyModule(ctx context.Context, name string) lifecycle.Result {
	res := s.lc.DestroyModule(ctx, name)
	if res.OK() {
		s.mu.Lock()
		delete(s.containers, name)
		s.mu.Unlock()
	}
	return res
}

// MarkModuleFailed records an externally detected fault.
func (s *ModuleSystem) MarkModuleFailed(ctx context.Context, name string, cause error) lifecycle.Result {
	return s.lc.MarkModuleFailed(ctx, name, cause)
}

// Transition runs a lifecycle action by name. It is the entry point used by
// the admin API.
func (s *ModuleSystem) Transition(ctx context.Context, name, action string) (lifecycle.Result, error) {
	if _, ok := s.modules.Get(name); !ok {
		return lifecycle.Result{}, fmt.Errorf("%w: %s", ErrModuleNotFound, name)
	}
	switch action {
	case ActionStart:
		return s.StartModule(ctx, name), nil
	case ActionStop:
		return s.StopModule(ctx, name), nil
	case ActionPause:
		return s.PauseModule(ctx, name), nil
	case ActionResume:
		return s.ResumeModule(ctx, name), nil
	case ActionDestroy:
		return s.DestroyModule(ctx, name), nil
	default:
		return lifecycle.Result{}, fmt.Errorf("%w: %s", ErrUnknownAction, action)
	}
}

// Shutdown stops running modules in reverse initialization order and destroys
// every module that can be destroyed. It keeps going past failures and
// returns them joined.
func (s *ModuleSystem) Shutdown(ctx context.Context) error {
	s.initMu.Lock()
	defer s.initMu.Unlock()

	order := s.searchOrder()
	slices.Reverse(order)
	s.logger.Info("Shutting down modules", "order", order)

	var errs []error
	for _, name := range order {
		state, ok := s.lc.State(name)
		if !ok {
			continue
		}
		if state == lifecycle.StateActive || state == lifecycle.StatePaused {
			res := s.StopModule(ctx, name)
			if !res.OK() {
				s.logger.Error("Error stopping module", "module", name, "error", res.Error())
				errs = append(errs, res.Error())
			}
			state, _ = s.lc.State(name)
		}
		switch state {
		case lifecycle.StateInitialized, lifecycle.StateStopped, lifecycle.StateFailed:
			if res := s.DestroyModule(ctx, name); !res.OK() {
				s.logger.Error("Error destroying module", "module", name, "error", res.Error())
				errs = append(errs, res.Error())
			}
		case lifecycle.StateUninitialized:
		default:
			errs = append(errs, fmt.Errorf("module '%s' left in state %s", name, state))
		}
	}

	err := errors.Join(errs...)
	data := map[string]any{"modules": len(order)}
	if err != nil {
		data["error"] = err.Error()
	}
	s.emit(ctx, EventTypeSystemShutdown, "", data)
	return err
}

func (s *ModuleSystem) moduleAction(name string, pick func(Module) func(context.Context) error) lifecycle.Action {
	m, ok := s.modules.module(name)
	if !ok {
		return nil
	}
	fn := pick(m)
	if fn == nil {
		return nil
	}
	return lifecycle.Action(fn)
}
