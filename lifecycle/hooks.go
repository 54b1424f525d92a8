package lifecycle

import (
	"context"
	"fmt"
	"time"
)

// EventKind identifies the point in a transition a hook is notified about.
type EventKind int

const (
	EventWillInitialize EventKind = iota
	EventDidInitialize
	EventWillStart
	EventDidStart
	EventWillPause
	EventDidPause
	EventWillResume
	EventDidResume
	EventWillStop
	EventDidStop
	EventWillDestroy
	EventDidDestroy
	EventDidFail
)

var eventKindNames = [...]string{
	EventWillInitialize: "willInitialize",
	EventDidInitialize:  "didInitialize",
	EventWillStart:      "willStart",
	EventDidStart:       "didStart",
	EventWillPause:      "willPause",
	EventDidPause:       "didPause",
	EventWillResume:     "willResume",
	EventDidResume:      "didResume",
	EventWillStop:       "willStop",
	EventDidStop:        "didStop",
	EventWillDestroy:    "willDestroy",
	EventDidDestroy:     "didDestroy",
	EventDidFail:        "didFail",
}

func (k EventKind) String() string {
	if k >= 0 && int(k) < len(eventKindNames) {
		return eventKindNames[k]
	}
	return fmt.Sprintf("event(%d)", int(k))
}

// Event is delivered to every registered hook.
type Event struct {
	Kind   EventKind
	Module string
	From   State
	To     State
	// Err is only set for EventDidFail.
	Err  error
	Time time.Time
}

// Hook observes lifecycle events. Hooks are advisory: a returned error or a
// panic is logged and otherwise ignored, it never aborts the transition.
//
// A hook may call query methods on the Manager. It must not call a mutating
// operation for the module whose transition it is observing; that operation
// waits for the one in flight and only returns once its context expires.
type Hook interface {
	HookID() string
	OnLifecycleEvent(ctx context.Context, event Event) error
}

// HookFunc adapts a function into a Hook.
type HookFunc struct {
	id string
	fn func(ctx context.Context, event Event) error
}

// NewHookFunc creates a hook that calls fn for every event.
func NewHookFunc(id string, fn func(ctx context.Context, event Event) error) *HookFunc {
	return &HookFunc{id: id, fn: fn}
}

// HookID implements Hook.
func (h *HookFunc) HookID() string { return h.id }

// OnLifecycleEvent implements Hook.
func (h *HookFunc) OnLifecycleEvent(ctx context.Context, event Event) error {
	if h.fn == nil {
		return nil
	}
	return h.fn(ctx, event)
}

// Action is the completion work a caller attaches to a transition. It runs
// after the will hook and before the did hook; an error or panic fails the
// transition.
type Action func(ctx context.Context) error
