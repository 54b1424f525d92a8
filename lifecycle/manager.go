package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"
)

// Info is an immutable snapshot of one module's runtime record.
type Info struct {
	Module         string            `json:"module"`
	State          State             `json:"state"`
	PreviousState  State             `json:"previousState"`
	History        []State           `json:"history"`
	LastTransition time.Time         `json:"lastTransition"`
	InitializedAt  time.Time         `json:"initializedAt,omitzero"`
	Uptime         time.Duration     `json:"uptime"`
	FailureCount   int               `json:"failureCount"`
	LastError      string            `json:"lastError,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// Stats summarises every tracked module.
type Stats struct {
	Tracked       int           `json:"tracked"`
	ByState       map[State]int `json:"byState"`
	TotalFailures int           `json:"totalFailures"`
}

// record is the mutable per-module state. Its fields are guarded by
// Manager.mu; opLock serialises mutating operations on the module and is held
// for the whole transition, hooks included.
type record struct {
	opLock chan struct{}

	current        State
	previous       State
	history        []State
	lastTransition time.Time
	initializedAt  time.Time
	uptime         time.Duration
	activeSince    time.Time
	failures       int
	lastErr        error
	metadata       map[string]string
}

func newRecord(now time.Time) *record {
	return &record{
		opLock:         make(chan struct{}, 1),
		current:        StateUninitialized,
		previous:       StateUninitialized,
		history:        []State{StateUninitialized},
		lastTransition: now,
		metadata:       make(map[string]string),
	}
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger used for transition and hook diagnostics.
func WithLogger(logger Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithClock replaces time.Now, mainly for uptime tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithTransitionTimeout bounds every transition, hooks and actions included.
// Zero disables the bound; a deadline on the caller's context still applies.
func WithTransitionTimeout(d time.Duration) Option {
	return func(m *Manager) {
		m.timeout = d
	}
}

// WithHooks registers hooks at construction time, in order.
func WithHooks(hooks ...Hook) Option {
	return func(m *Manager) {
		for _, h := range hooks {
			if h != nil {
				m.hooks = append(m.hooks, h)
			}
		}
	}
}

// Manager owns the runtime state of every module and is the only place it is
// mutated. Operations on different modules run independently; operations on
// the same module are strictly serialised.
//
// A transition whose context deadline expires returns OutcomeTimeout; one
// whose caller cancels the context returns OutcomeFailure wrapping
// ErrTransitionCanceled. Either way, if hooks or actions had already begun the
// module is left in failed, since they were abandoned part way. Cancellation
// while still waiting for another operation on the module changes nothing.
// Callers that must not abandon a transition, such as request handlers,
// should pass a context detached from the request.
type Manager struct {
	mu      sync.RWMutex
	records map[string]*record
	hooks   []Hook
	logger  Logger
	now     func() time.Time
	timeout time.Duration
}

// NewManager creates an empty lifecycle manager.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		records: make(map[string]*record),
		logger:  nopLogger{},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// RegisterHook appends a hook. Hooks are invoked in registration order.
func (m *Manager) RegisterHook(hook Hook) error {
	if hook == nil {
		return ErrHookNil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, h := range m.hooks {
		if h.HookID() == hook.HookID() {
			return fmt.Errorf("%w: %s", ErrHookAlreadyExists, hook.HookID())
		}
	}
	m.hooks = append(m.hooks, hook)
	return nil
}

// UnregisterHook removes the hook with the given ID.
func (m *Manager) UnregisterHook(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, h := range m.hooks {
		if h.HookID() == id {
			m.hooks = slices.Delete(m.hooks, i, i+1)
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrHookNotFound, id)
}

// Track creates the runtime record for a module in the uninitialized state.
// Tracking an already tracked module is a no-op.
func (m *Manager) Track(name string) error {
	if name == "" {
		return ErrModuleNameEmpty
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[name]; !ok {
		m.records[name] = newRecord(m.now())
	}
	return nil
}

// InitializeModule moves a module from uninitialized to initialized. It is
// the only operation that creates a record for an untracked module.
func (m *Manager) InitializeModule(ctx context.Context, name string, actions ...Action) Result {
	return m.run(ctx, opInitialize, name, actions)
}

// StartModule moves a module from initialized, stopped or failed to active.
func (m *Manager) StartModule(ctx context.Context, name string, actions ...Action) Result {
	return m.run(ctx, opStart, name, actions)
}

// PauseModule moves an active module to paused.
func (m *Manager) PauseModule(ctx context.Context, name string, actions ...Action) Result {
	return m.run(ctx, opPause, name, actions)
}

// ResumeModule moves a paused module back to active.
func (m *Manager) ResumeModule(ctx context.Context, name string, actions ...Action) Result {
	return m.run(ctx, opResume, name, actions)
}

// StopModule moves an active or paused module to stopped.
func (m *Manager) StopModule(ctx context.Context, name string, actions ...Action) Result {
	return m.run(ctx, opStop, name, actions)
}

// DestroyModule moves an initialized, stopped or failed module to destroyed
// and then purges every piece of bookkeeping kept for it.
func (m *Manager) DestroyModule(ctx context.Context, name string, actions ...Action) Result {
	return m.run(ctx, opDestroy, name, actions)
}

// MarkModuleFailed forces a tracked module into failed regardless of the
// state it is in. It is meant for faults detected outside the normal flow.
func (m *Manager) MarkModuleFailed(ctx context.Context, name string, cause error) Result {
	const opName = "markFailed"
	started := m.now()
	ctx, cancel := m.bound(ctx)
	defer cancel()

	rec, err := m.acquire(ctx, name, false)
	if err != nil {
		return m.acquireFailure(opName, name, err)
	}
	defer release(rec)

	if cause == nil {
		cause = ErrTransitionFailed
	}

	m.mu.Lock()
	from := rec.current
	now := m.now()
	rec.failures++
	rec.lastErr = cause
	if from != StateFailed {
		m.setState(rec, StateFailed, now)
	}
	hooks := slices.Clone(m.hooks)
	m.mu.Unlock()

	m.logger.Warn("Module marked failed", "module", name, "from", from.String(), "error", cause)
	m.dispatchDetached(ctx, hooks, Event{Kind: EventDidFail, Module: name, From: from, To: StateFailed, Err: cause, Time: now})

	return Result{
		Outcome:   OutcomeSuccess,
		Module:    name,
		Operation: opName,
		From:      from,
		To:        StateFailed,
		Duration:  m.now().Sub(started),
	}
}

// SetMetadata replaces the caller-supplied metadata of a tracked module.
func (m *Manager) SetMetadata(name string, metadata map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrModuleNotTracked, name)
	}
	rec.metadata = maps.Clone(metadata)
	if rec.metadata == nil {
		rec.metadata = make(map[string]string)
	}
	return nil
}

// Info returns a snapshot of a module's record, or false when the module is
// not tracked (never seen, or destroyed and purged).
func (m *Manager) Info(name string) (*Info, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[name]
	if !ok {
		return nil, false
	}
	return m.snapshot(name, rec), true
}

// State returns the current state of a tracked module.
func (m *Manager) State(name string) (State, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[name]
	if !ok {
		return StateUninitialized, false
	}
	return rec.current, true
}

// Modules lists the tracked modules currently in the given state, sorted.
func (m *Manager) Modules(state State) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var names []string
	for name, rec := range m.records {
		if rec.current == state {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names
}

// CanTransition is a dry run: it reports whether the table allows moving the
// module from its current state to the given one. Untracked modules are
// treated as uninitialized.
func (m *Manager) CanTransition(name string, to State) bool {
	current, ok := m.State(name)
	if !ok {
		current = StateUninitialized
	}
	if current.IsTerminal() {
		return false
	}
	return IsValidTransition(current, to)
}

// Stats counts tracked modules per state.
func (m *Manager) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	stats := Stats{Tracked: len(m.records), ByState: make(map[State]int)}
	for _, rec := range m.records {
		stats.ByState[rec.current]++
		stats.TotalFailures += rec.failures
	}
	return stats
}

func (m *Manager) snapshot(name string, rec *record) *Info {
	info := &Info{
		Module:         name,
		State:          rec.current,
		PreviousState:  rec.previous,
		History:        slices.Clone(rec.history),
		LastTransition: rec.lastTransition,
		InitializedAt:  rec.initializedAt,
		Uptime:         rec.uptime,
		FailureCount:   rec.failures,
		Metadata:       maps.Clone(rec.metadata),
	}
	if rec.current == StateActive && !rec.activeSince.IsZero() {
		info.Uptime += m.now().Sub(rec.activeSince)
	}
	if rec.lastErr != nil {
		info.LastError = rec.lastErr.Error()
	}
	return info
}

// run executes one named transition attempt.
func (m *Manager) run(ctx context.Context, op operation, name string, actions []Action) Result {
	started := m.now()
	ctx, cancel := m.bound(ctx)
	defer cancel()

	rec, err := m.acquire(ctx, name, op.name == opInitialize.name)
	if err != nil {
		return m.acquireFailure(op.name, name, err)
	}
	defer release(rec)

	m.mu.Lock()
	from := rec.current
	if !op.acceptsSource(from) {
		m.mu.Unlock()
		reason := fmt.Sprintf("cannot %s module in state %s", op.name, from)
		m.logger.Warn("Lifecycle transition blocked", "module", name, "operation", op.name, "state", from.String())
		return blocked(op.name, name, from, reason)
	}
	if !IsValidTransition(from, op.inProgress) {
		m.mu.Unlock()
		reason := fmt.Sprintf("transition %s -> %s is not allowed", from, op.inProgress)
		m.logger.Warn("Lifecycle transition blocked", "module", name, "operation", op.name, "state", from.String())
		return blocked(op.name, name, from, reason)
	}
	if op.inProgress != op.target {
		m.setState(rec, op.inProgress, m.now())
	}
	hooks := slices.Clone(m.hooks)
	m.mu.Unlock()

	m.logger.Debug("Lifecycle transition started", "module", name, "operation", op.name, "from", from.String())

	err = m.guard(ctx, func(ctx context.Context) error {
		m.dispatch(ctx, hooks, Event{Kind: op.will, Module: name, From: from, To: op.target, Time: m.now()})
		for _, action := range actions {
			if action == nil {
				continue
			}
			if err := runAction(ctx, action); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return m.fail(ctx, op, name, rec, from, hooks, err, started)
	}

	now := m.now()
	m.mu.Lock()
	m.setState(rec, op.target, now)
	m.mu.Unlock()

	if err := m.guard(ctx, func(ctx context.Context) error {
		m.dispatch(ctx, hooks, Event{Kind: op.did, Module: name, From: from, To: op.target, Time: now})
		return nil
	}); err != nil {
		m.logger.Warn("Lifecycle hooks did not finish in time", "module", name, "event", op.did.String(), "error", err)
	}

	if op.name == opDestroy.name {
		m.purge(name, rec)
	}

	m.logger.Debug("Lifecycle transition completed", "module", name, "operation", op.name, "to", op.target.String())
	return success(op, name, from, started, m.now())
}

// fail applies the failure path of a transition: count the failure, force
// the module into failed when the table allows it from where it is, notify
// hooks with didFail.
func (m *Manager) fail(ctx context.Context, op operation, name string, rec *record, from State, hooks []Hook, cause error, started time.Time) Result {
	outcome, cause := classify(cause)

	now := m.now()
	m.mu.Lock()
	rec.failures++
	rec.lastErr = cause
	current := rec.current
	if IsValidTransition(current, StateFailed) {
		m.setState(rec, StateFailed, now)
	}
	to := rec.current
	m.mu.Unlock()

	m.logger.Error("Lifecycle transition failed", "module", name, "operation", op.name, "outcome", outcome.String(), "error", cause)
	m.dispatchDetached(ctx, hooks, Event{Kind: EventDidFail, Module: name, From: current, To: to, Err: cause, Time: now})

	return Result{
		Outcome:   outcome,
		Module:    name,
		Operation: op.name,
		From:      from,
		To:        to,
		Err:       cause,
		Duration:  m.now().Sub(started),
	}
}

// setState must be called with m.mu held.
func (m *Manager) setState(rec *record, to State, now time.Time) {
	if rec.current == StateActive && to != StateActive && !rec.activeSince.IsZero() {
		rec.uptime += now.Sub(rec.activeSince)
		rec.activeSince = time.Time{}
	}
	if to == StateActive && rec.current != StateActive {
		rec.activeSince = now
	}
	if to == StateInitialized && rec.initializedAt.IsZero() {
		rec.initializedAt = now
	}
	rec.previous = rec.current
	rec.current = to
	rec.history = append(rec.history, to)
	rec.lastTransition = now
}

func (m *Manager) purge(name string, rec *record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.records[name] == rec {
		delete(m.records, name)
	}
}

// acquire takes the operation lock of a module's record. A record purged
// while we waited is discarded and the lookup retried.
func (m *Manager) acquire(ctx context.Context, name string, create bool) (*record, error) {
	if name == "" {
		return nil, ErrModuleNameEmpty
	}
	for {
		m.mu.Lock()
		rec, ok := m.records[name]
		if !ok {
			if !create {
				m.mu.Unlock()
				return nil, fmt.Errorf("%w: %s", ErrModuleNotTracked, name)
			}
			rec = newRecord(m.now())
			m.records[name] = rec
		}
		m.mu.Unlock()

		select {
		case rec.opLock <- struct{}{}:
		case <-ctx.Done():
			return nil, ctx.Err()
		}

		m.mu.RLock()
		current := m.records[name] == rec
		m.mu.RUnlock()
		if current {
			return rec, nil
		}
		release(rec)
	}
}

func (m *Manager) acquireFailure(opName, name string, err error) Result {
	if errors.Is(err, ErrModuleNotTracked) || errors.Is(err, ErrModuleNameEmpty) {
		m.logger.Warn("Lifecycle transition blocked", "module", name, "operation", opName, "error", err)
		return blocked(opName, name, StateUninitialized, err.Error())
	}
	outcome, cause := classify(err)
	m.logger.Warn("Lifecycle transition gave up waiting for module", "module", name, "operation", opName, "error", cause)
	return Result{
		Outcome:   outcome,
		Module:    name,
		Operation: opName,
		Err:       cause,
	}
}

// classify separates an expired deadline (a timeout) from the caller
// cancelling its context (a failure) and from ordinary errors.
func classify(err error) (Outcome, error) {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return OutcomeTimeout, fmt.Errorf("%w: %w", ErrTransitionTimeout, err)
	case errors.Is(err, context.Canceled):
		return OutcomeFailure, fmt.Errorf("%w: %w", ErrTransitionCanceled, err)
	default:
		return OutcomeFailure, err
	}
}

func release(rec *record) {
	<-rec.opLock
}

func (m *Manager) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if m.timeout > 0 {
		return context.WithTimeout(ctx, m.timeout)
	}
	return ctx, func() {}
}

// guard runs fn and waits for it at most until ctx is done. Without a
// deadline or cancellation fn simply runs inline.
func (m *Manager) guard(ctx context.Context, fn func(context.Context) error) error {
	if ctx.Done() == nil {
		return fn(ctx)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	done := make(chan error, 1)
	go func() {
		done <- fn(ctx)
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// dispatch invokes hooks in order. Errors and panics are logged per hook.
func (m *Manager) dispatch(ctx context.Context, hooks []Hook, event Event) {
	for _, hook := range hooks {
		if err := callHook(ctx, hook, event); err != nil {
			m.logger.Error("Lifecycle hook failed", "hook", hook.HookID(), "event", event.Kind.String(), "module", event.Module, "error", err)
		}
	}
}

// dispatchDetached delivers didFail even when the transition context has
// already expired, bounded by the manager timeout.
func (m *Manager) dispatchDetached(ctx context.Context, hooks []Hook, event Event) {
	if len(hooks) == 0 {
		return
	}
	detached, cancel := m.bound(context.WithoutCancel(ctx))
	defer cancel()
	if err := m.guard(detached, func(ctx context.Context) error {
		m.dispatch(ctx, hooks, event)
		return nil
	}); err != nil {
		m.logger.Warn("Lifecycle hooks did not finish in time", "module", event.Module, "event", event.Kind.String(), "error", err)
	}
}

func callHook(ctx context.Context, hook Hook, event Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = panicError(ErrHookPanicked, r)
		}
	}()
	return hook.OnLifecycleEvent(ctx, event)
}

func runAction(ctx context.Context, action Action) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = panicError(ErrActionPanicked, r)
		}
	}()
	return action(ctx)
}
