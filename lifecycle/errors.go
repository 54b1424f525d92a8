package lifecycle

import (
	"errors"
	"fmt"
)

// Static errors for the lifecycle package
var (
	ErrUnknownState      = errors.New("unknown lifecycle state")
	ErrModuleNotTracked  = errors.New("module is not tracked by the lifecycle manager")
	ErrTransitionBlocked = errors.New("lifecycle transition blocked")
	ErrTransitionFailed  = errors.New("lifecycle transition failed")
	ErrTransitionTimeout = errors.New("lifecycle transition timed out")
	// ErrTransitionCanceled wraps context.Canceled when the caller gave up on
	// a transition. It is reported as a failure, not a timeout.
	ErrTransitionCanceled = errors.New("lifecycle transition canceled by caller")
	ErrHookPanicked      = errors.New("lifecycle hook panicked")
	ErrActionPanicked    = errors.New("lifecycle action panicked")
	ErrModuleNameEmpty   = errors.New("module name must not be empty")
	ErrHookNil           = errors.New("hook is nil")
	ErrHookAlreadyExists = errors.New("hook with this ID is already registered")
	ErrHookNotFound      = errors.New("hook not found")
)

// TransitionError wraps a non-successful Result so it can travel through
// ordinary error returns. It matches ErrTransitionBlocked, ErrTransitionFailed
// or ErrTransitionTimeout with errors.Is, and unwraps to the cause.
type TransitionError struct {
	Result   Result
	sentinel error
}

func (e *TransitionError) Error() string {
	return e.Result.String()
}

func (e *TransitionError) Is(target error) bool {
	return target == e.sentinel
}

func (e *TransitionError) Unwrap() error {
	return e.Result.Err
}

func panicError(sentinel error, recovered any) error {
	if err, ok := recovered.(error); ok {
		return fmt.Errorf("%w: %w", sentinel, err)
	}
	return fmt.Errorf("%w: %v", sentinel, recovered)
}
