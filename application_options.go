package modsys

import (
	"errors"
	"fmt"
	"time"

	"github.com/GoCodeAlone/modsys/lifecycle"
)

// ErrInvalidOption is returned by New when an option value is rejected.
var ErrInvalidOption = errors.New("invalid module system option")

// Option configures a ModuleSystem.
type Option func(*ModuleSystem) error

// WithLogger sets the logger shared by the system and its lifecycle manager.
func WithLogger(logger Logger) Option {
	return func(s *ModuleSystem) error {
		if logger == nil {
			return fmt.Errorf("%w: logger is nil", ErrInvalidOption)
		}
		s.logger = logger
		return nil
	}
}

// WithHooks registers lifecycle hooks, invoked in the order given and before
// the observer bridge.
func WithHooks(hooks ...lifecycle.Hook) Option {
	return func(s *ModuleSystem) error {
		for _, h := range hooks {
			if h == nil {
				return fmt.Errorf("%w: %w", ErrInvalidOption, lifecycle.ErrHookNil)
			}
		}
		s.hooks = append(s.hooks, hooks...)
		return nil
	}
}

// WithTransitionTimeout bounds every lifecycle transition. It takes
// precedence over Config.TransitionTimeout.
func WithTransitionTimeout(d time.Duration) Option {
	return func(s *ModuleSystem) error {
		if d < 0 {
			return fmt.Errorf("%w: negative transition timeout %s", ErrInvalidOption, d)
		}
		s.timeout = &d
		return nil
	}
}

// WithObservers subscribes CloudEvents observers to lifecycle and system events.
func WithObservers(observers ...Observer) Option {
	return func(s *ModuleSystem) error {
		for _, o := range observers {
			if err := s.observers.RegisterObserver(o); err != nil {
				return fmt.Errorf("%w: %w", ErrInvalidOption, err)
			}
		}
		return nil
	}
}

// WithClock replaces time.Now for uptime accounting.
func WithClock(now func() time.Time) Option {
	return func(s *ModuleSystem) error {
		if now == nil {
			return fmt.Errorf("%w: clock is nil", ErrInvalidOption)
		}
		s.now = now
		return nil
	}
}

// WithConfig applies a loaded Config. Defaults are filled in and the result
// is validated.
func WithConfig(cfg *Config) Option {
	return func(s *ModuleSystem) error {
		if cfg == nil {
			return fmt.Errorf("%w: %w", ErrInvalidOption, ErrConfigNil)
		}
		c := *cfg
		if err := ValidateConfig(&c); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidOption, err)
		}
		s.config = &c
		return nil
	}
}

// WithModules registers modules as part of construction.
func WithModules(modules ...Module) Option {
	return func(s *ModuleSystem) error {
		s.pending = append(s.pending, modules...)
		return nil
	}
}
