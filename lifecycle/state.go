// Package lifecycle implements the per-module lifecycle state machine: the
// twelve lifecycle states, the allowed-transition table, hook dispatch and
// uptime/failure accounting.
package lifecycle

import (
	"fmt"
	"strings"
)

// State is one of the lifecycle phases a module passes through.
type State int

const (
	StateUninitialized State = iota
	StateInitializing
	StateInitialized
	StateStarting
	StateActive
	StatePausing
	StatePaused
	StateResuming
	StateStopping
	StateStopped
	StateFailed
	StateDestroyed
)

var stateNames = [...]string{
	StateUninitialized: "uninitialized",
	StateInitializing:  "initializing",
	StateInitialized:   "initialized",
	StateStarting:      "starting",
	StateActive:        "active",
	StatePausing:       "pausing",
	StatePaused:        "paused",
	StateResuming:      "resuming",
	StateStopping:      "stopping",
	StateStopped:       "stopped",
	StateFailed:        "failed",
	StateDestroyed:     "destroyed",
}

// AllStates lists every state in declaration order.
func AllStates() []State {
	states := make([]State, len(stateNames))
	for i := range stateNames {
		states[i] = State(i)
	}
	return states
}

func (s State) String() string {
	if s.valid() {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

func (s State) valid() bool {
	return s >= StateUninitialized && s <= StateDestroyed
}

// ParseState converts a state name (case-insensitive) back into a State.
func ParseState(name string) (State, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for i, n := range stateNames {
		if n == name {
			return State(i), nil
		}
	}
	return StateUninitialized, fmt.Errorf("%w: %q", ErrUnknownState, name)
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	if !s.valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownState, int(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *State) UnmarshalText(text []byte) error {
	parsed, err := ParseState(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// IsTerminal reports whether no transition leaves s.
func (s State) IsTerminal() bool {
	return s == StateDestroyed
}

// IsTransitional reports whether s is an in-progress state that only exists
// while an operation is running.
func (s State) IsTransitional() bool {
	switch s {
	case StateInitializing, StateStarting, StatePausing, StateResuming, StateStopping:
		return true
	default:
		return false
	}
}
