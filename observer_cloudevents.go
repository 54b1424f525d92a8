package modsys

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"

	"github.com/GoCodeAlone/modsys/lifecycle"
)

// Static errors for observer registration
var (
	ErrObserverNil           = errors.New("observer is nil")
	ErrObserverAlreadyExists = errors.New("observer with this ID is already registered")
)

// CloudEvent is an alias for the CloudEvents Event type for convenience
type CloudEvent = cloudevents.Event

// ObserverHookID is the hook ID under which the observer bridge is registered
// with the lifecycle manager.
const ObserverHookID = "modsys.observers"

// NewCloudEvent creates a CloudEvent with a time-ordered ID, the given type,
// source and JSON data. Metadata entries become extensions.
func NewCloudEvent(eventType, source string, data any, metadata map[string]any) cloudevents.Event {
	event := cloudevents.NewEvent()
	event.SetID(generateEventID())
	event.SetSource(source)
	event.SetType(eventType)
	event.SetTime(time.Now())
	event.SetSpecVersion(cloudevents.VersionV1)
	if data != nil {
		_ = event.SetData(cloudevents.ApplicationJSON, data)
	}
	for key, value := range metadata {
		event.SetExtension(key, value)
	}
	return event
}

// generateEventID prefers UUIDv7 so IDs sort by emission time.
func generateEventID() string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return id.String()
}

// LifecycleEventData is the JSON payload of module lifecycle CloudEvents.
type LifecycleEventData struct {
	Module string `json:"module"`
	From   string `json:"from"`
	To     string `json:"to"`
	Error  string `json:"error,omitempty"`
}

// ObserverHook is a lifecycle hook that republishes every lifecycle event to a
// set of observers.
type ObserverHook struct {
	mu        sync.RWMutex
	observers []Observer
}

// NewObserverHook creates the bridge with an initial set of observers.
func NewObserverHook(observers ...Observer) *ObserverHook {
	h := &ObserverHook{}
	for _, o := range observers {
		_ = h.RegisterObserver(o)
	}
	return h
}

// RegisterObserver adds an observer; IDs must be unique.
func (h *ObserverHook) RegisterObserver(observer Observer) error {
	if observer == nil {
		return ErrObserverNil
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, o := range h.observers {
		if o.ObserverID() == observer.ObserverID() {
			return fmt.Errorf("%w: %s", ErrObserverAlreadyExists, observer.ObserverID())
		}
	}
	h.observers = append(h.observers, observer)
	return nil
}

// UnregisterObserver removes an observer by ID. Unknown IDs are ignored.
func (h *ObserverHook) UnregisterObserver(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.observers = slices.DeleteFunc(h.observers, func(o Observer) bool {
		return o.ObserverID() == id
	})
}

// HookID implements lifecycle.Hook.
func (h *ObserverHook) HookID() string {
	return ObserverHookID
}

// OnLifecycleEvent implements lifecycle.Hook. Every observer is called even
// when an earlier one fails; the failures are joined.
func (h *ObserverHook) OnLifecycleEvent(ctx context.Context, event lifecycle.Event) error {
	data := LifecycleEventData{
		Module: event.Module,
		From:   event.From.String(),
		To:     event.To.String(),
	}
	if event.Err != nil {
		data.Error = event.Err.Error()
	}
	ce := NewCloudEvent(EventTypeFor(event.Kind), "modsys/"+event.Module, data, nil)
	if !event.Time.IsZero() {
		ce.SetTime(event.Time)
	}
	return h.Notify(ctx, ce)
}

// Notify delivers an arbitrary event to every observer.
func (h *ObserverHook) Notify(ctx context.Context, event cloudevents.Event) error {
	h.mu.RLock()
	observers := slices.Clone(h.observers)
	h.mu.RUnlock()

	var errs []error
	for _, o := range observers {
		if err := o.OnEvent(ctx, event); err != nil {
			errs = append(errs, fmt.Errorf("observer %s: %w", o.ObserverID(), err))
		}
	}
	return errors.Join(errs...)
}
