package models

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound covers unknown course, driver, client or payment ids.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyClaimed is returned to claim-race losers. It is an expected
	// outcome, reported to the caller but never logged as an error.
	ErrAlreadyClaimed = errors.New("course already claimed")
	// ErrDriverUnavailable means the acting driver failed a precondition
	// (wrong status, wrong vehicle class, not approved).
	ErrDriverUnavailable = errors.New("driver unavailable")
	// ErrInvalidTransition means the action was attempted from the wrong
	// lifecycle state; the course is left untouched.
	ErrInvalidTransition = errors.New("invalid transition")
)

// TransitionError carries the offending edge for diagnostics. It unwraps to
// ErrInvalidTransition so callers can match with errors.Is.
type TransitionError struct {
	From CourseStatus
	To   CourseStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid transition %s -> %s", e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }
