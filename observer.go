package modsys

import (
	"context"

	cloudevents "github.com/cloudevents/sdk-go/v2"

	"github.com/GoCodeAlone/modsys/lifecycle"
)

// Observer is notified of module system events, delivered as CloudEvents.
type Observer interface {
	// OnEvent should return quickly; it runs inside the lifecycle transition
	// that produced the event.
	OnEvent(ctx context.Context, event cloudevents.Event) error
	ObserverID() string
}

// CloudEvent types emitted by the module system. Lifecycle hook events are
// published as EventTypeModulePrefix followed by the event kind, for example
// "com.modsys.module.didStart".
const (
	EventTypeModulePrefix     = "com.modsys.module."
	EventTypeModuleRegistered = "com.modsys.module.registered"

	EventTypeSystemInitialized = "com.modsys.system.initialized"
	EventTypeSystemFailed      = "com.modsys.system.failed"
	EventTypeSystemShutdown    = "com.modsys.system.shutdown"
	EventTypeSystemHealth      = "com.modsys.system.health"
)

// EventTypeFor maps a lifecycle event kind to its CloudEvent type.
func EventTypeFor(kind lifecycle.EventKind) string {
	return EventTypeModulePrefix + kind.String()
}

// FunctionalObserver adapts a function into an Observer.
type FunctionalObserver struct {
	id      string
	handler func(ctx context.Context, event cloudevents.Event) error
}

// NewFunctionalObserver creates an observer that calls handler for every event.
func NewFunctionalObserver(id string, handler func(ctx context.Context, event cloudevents.Event) error) Observer {
	return &FunctionalObserver{id: id, handler: handler}
}

func (f *FunctionalObserver) OnEvent(ctx context.Context, event cloudevents.Event) error {
	return f.handler(ctx, event)
}

func (f *FunctionalObserver) ObserverID() string {
	return f.id
}
