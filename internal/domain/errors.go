package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidID        = errors.New("invalid id")
	ErrInvalidTitle     = errors.New("invalid title")
	ErrInvalidKind      = errors.New("invalid trackable kind")
	ErrInvalidTimer     = errors.New("invalid timer")
	ErrInvalidAction    = errors.New("invalid time log action")
	ErrInvalidReviewer  = errors.New("invalid qa reviewer")
	ErrInvalidVerdict   = errors.New("invalid qa verdict")
	ErrInvalidActorType = errors.New("invalid actor type")

	// ErrInvalidState reports a timer transition attempted from a state that does not allow it.
	ErrInvalidState = errors.New("invalid timer state")
	// ErrConflict reports that a QA reviewer already has another item under test.
	ErrConflict = errors.New("qa reviewer conflict")
)

// invalidState wraps ErrInvalidState with the attempted action and the observed state.
func invalidState(timer TimerKind, action TimeLogAction, state string) error {
	if strings.TrimSpace(state) == "" {
		state = "none"
	}
	return fmt.Errorf("%w: cannot %s %s timer while %s", ErrInvalidState, action, timer, state)
}

// ConflictError names the trackable that blocks a reviewer from starting another test session.
type ConflictError struct {
	ReviewerID    string
	BlockingID    string
	BlockingKind  TrackableKind
	BlockingTitle string
}

// Error returns a user-facing message naming the blocking trackable.
func (e *ConflictError) Error() string {
	kind := string(e.BlockingKind)
	if kind == "" {
		kind = "item"
	}
	return fmt.Sprintf("reviewer %q is already testing %s %q (%s)", e.ReviewerID, kind, e.BlockingTitle, e.BlockingID)
}

// Is lets errors.Is match ErrConflict.
func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

// NewConflictError builds a conflict for reviewerID blocked by the given trackable.
func NewConflictError(reviewerID string, blocking Trackable) *ConflictError {
	return &ConflictError{
		ReviewerID:    strings.TrimSpace(reviewerID),
		BlockingID:    blocking.ID,
		BlockingKind:  blocking.Kind,
		BlockingTitle: blocking.Title,
	}
}
