package lifecycle

import (
	"fmt"
	"time"
)

// Outcome tags the variant of a Result.
type Outcome int

const (
	// OutcomeSuccess means the transition completed.
	OutcomeSuccess Outcome = iota
	// OutcomeFailure means a hook-independent error occurred while the
	// transition ran; the module was moved to failed.
	OutcomeFailure
	// OutcomeBlocked means the transition was not valid for the current
	// state. Nothing was mutated.
	OutcomeBlocked
	// OutcomeTimeout means the bounded wait around the transition expired.
	OutcomeTimeout
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeFailure:
		return "failure"
	case OutcomeBlocked:
		return "blocked"
	case OutcomeTimeout:
		return "timeout"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Result is the value returned by every named transition attempt.
type Result struct {
	Outcome Outcome
	Module  string
	// Operation is the name of the attempted operation ("start", "stop", ...).
	Operation string
	From      State
	To        State
	// Err is set for OutcomeFailure and OutcomeTimeout.
	Err error
	// Reason explains an OutcomeBlocked result.
	Reason   string
	Duration time.Duration
}

// OK reports whether the transition succeeded.
func (r Result) OK() bool {
	return r.Outcome == OutcomeSuccess
}

// Error converts a non-successful result into an error, or nil on success.
func (r Result) Error() error {
	switch r.Outcome {
	case OutcomeSuccess:
		return nil
	case OutcomeBlocked:
		return &TransitionError{Result: r, sentinel: ErrTransitionBlocked}
	case OutcomeTimeout:
		return &TransitionError{Result: r, sentinel: ErrTransitionTimeout}
	default:
		return &TransitionError{Result: r, sentinel: ErrTransitionFailed}
	}
}

func (r Result) String() string {
	switch r.Outcome {
	case OutcomeBlocked:
		return fmt.Sprintf("%s %s: blocked: %s", r.Operation, r.Module, r.Reason)
	case OutcomeSuccess:
		return fmt.Sprintf("%s %s: %s -> %s", r.Operation, r.Module, r.From, r.To)
	default:
		return fmt.Sprintf("%s %s: %s: %v", r.Operation, r.Module, r.Outcome, r.Err)
	}
}

func success(op operation, module string, from State, started time.Time, now time.Time) Result {
	return Result{
		Outcome:   OutcomeSuccess,
		Module:    module,
		Operation: op.name,
		From:      from,
		To:        op.target,
		Duration:  now.Sub(started),
	}
}

func blocked(opName, module string, from State, reason string) Result {
	return Result{
		Outcome:   OutcomeBlocked,
		Module:    module,
		Operation: opName,
		From:      from,
		To:        from,
		Reason:    reason,
	}
}
