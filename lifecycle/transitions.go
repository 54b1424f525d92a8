package lifecycle

// transitions is the complete allowed-transition table. Anything not listed
// is rejected.
var transitions = map[State][]State{
	StateUninitialized: {StateInitializing},
	StateInitializing:  {StateInitialized, StateFailed},
	StateInitialized:   {StateStarting, StateDestroyed},
	StateStarting:      {StateActive, StateFailed},
	StateActive:        {StatePausing, StateStopping, StateFailed},
	StatePausing:       {StatePaused, StateFailed},
	StatePaused:        {StateResuming, StateStopping},
	StateResuming:      {StateActive, StateFailed},
	StateStopping:      {StateStopped, StateFailed},
	StateStopped:       {StateDestroyed, StateStarting},
	StateFailed:        {StateStarting, StateDestroyed},
	StateDestroyed:     nil,
}

// IsValidTransition reports whether the table allows moving from -> to.
func IsValidTransition(from, to State) bool {
	for _, target := range transitions[from] {
		if target == to {
			return true
		}
	}
	return false
}

// AllowedTargets returns the states reachable from s in a single step.
func AllowedTargets(s State) []State {
	targets := transitions[s]
	out := make([]State, len(targets))
	copy(out, targets)
	return out
}

// operation describes one named transition attempt: the states it may start
// from, the in-progress state it enters and the state it completes in.
type operation struct {
	name       string
	sources    []State
	inProgress State
	target     State
	will       EventKind
	did        EventKind
}

var (
	opInitialize = operation{
		name:       "initialize",
		sources:    []State{StateUninitialized},
		inProgress: StateInitializing,
		target:     StateInitialized,
		will:       EventWillInitialize,
		did:        EventDidInitialize,
	}
	opStart = operation{
		name:       "start",
		sources:    []State{StateInitialized, StateStopped, StateFailed},
		inProgress: StateStarting,
		target:     StateActive,
		will:       EventWillStart,
		did:        EventDidStart,
	}
	opPause = operation{
		name:       "pause",
		sources:    []State{StateActive},
		inProgress: StatePausing,
		target:     StatePaused,
		will:       EventWillPause,
		did:        EventDidPause,
	}
	opResume = operation{
		name:       "resume",
		sources:    []State{StatePaused},
		inProgress: StateResuming,
		target:     StateActive,
		will:       EventWillResume,
		did:        EventDidResume,
	}
	opStop = operation{
		name:       "stop",
		sources:    []State{StateActive, StatePaused},
		inProgress: StateStopping,
		target:     StateStopped,
		will:       EventWillStop,
		did:        EventDidStop,
	}
	// destroy has no in-progress state: it moves straight to destroyed and
	// then purges the record.
	opDestroy = operation{
		name:       "destroy",
		sources:    []State{StateInitialized, StateStopped, StateFailed},
		inProgress: StateDestroyed,
		target:     StateDestroyed,
		will:       EventWillDestroy,
		did:        EventDidDestroy,
	}
)

func (op operation) acceptsSource(s State) bool {
	for _, src := range op.sources {
		if src == s {
			return true
		}
	}
	return false
}
