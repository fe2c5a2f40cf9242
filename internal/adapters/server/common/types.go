// Package common provides transport-agnostic server contracts used by HTTP and MCP adapters.
package common

import (
	"context"
	"errors"
	"time"
)

// ErrInvalidRequest reports malformed transport input.
var ErrInvalidRequest = errors.New("invalid request")

// ErrNotFound reports missing transport-visible resources.
var ErrNotFound = errors.New("not found")

// ErrInvalidState reports a timer transition that the current state does not allow.
var ErrInvalidState = errors.New("invalid state")

// ErrConflict reports a QA reviewer that is already testing another item.
var ErrConflict = errors.New("conflict")

// ErrConcurrentUpdate reports a lost optimistic-concurrency race.
var ErrConcurrentUpdate = errors.New("concurrent update")

// ErrServiceUnavailable reports a transport built without a backing service.
var ErrServiceUnavailable = errors.New("service unavailable")

// TimerWork and TimerQA are the accepted timer values.
const (
	TimerWork = "work"
	TimerQA   = "qa"
)

// Transition actions accepted by Transition. ActionSubmit applies to the qa timer only.
const (
	ActionStart  = "start"
	ActionPause  = "pause"
	ActionResume = "resume"
	ActionFinish = "finish"
	ActionSubmit = "submit"
)

// Trackable is the transport view of one task or bug.
type Trackable struct {
	ID           string       `json:"id"`
	Kind         string       `json:"kind"`
	Title        string       `json:"title"`
	Description  string       `json:"description,omitempty"`
	AssigneeID   string       `json:"assignee_id,omitempty"`
	WorkState    string       `json:"work_state"`
	IsWorking    bool         `json:"is_working"`
	QAStatus     string       `json:"qa_status,omitempty"`
	QAReviewerID string       `json:"qa_reviewer_id,omitempty"`
	Work         TimerReading `json:"work"`
	QA           TimerReading `json:"qa"`
	Version      int64        `json:"version"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// TimerReading is the transport view of a timer projected at read time.
type TimerReading struct {
	Timer            string     `json:"timer"`
	State            string     `json:"state"`
	Running          bool       `json:"running"`
	TotalSeconds     int64      `json:"total_seconds"`
	OpenSeconds      int64      `json:"open_seconds"`
	DisplayedSeconds int64      `json:"displayed_seconds"`
	StartedAt        *time.Time `json:"started_at,omitempty"`
	PausedAt         *time.Time `json:"paused_at,omitempty"`
	FinishedAt       *time.Time `json:"finished_at,omitempty"`
	SkewClamped      bool       `json:"skew_clamped,omitempty"`
}

// TimeSummary bundles both readings of one trackable.
type TimeSummary struct {
	TrackableID string       `json:"trackable_id"`
	Work        TimerReading `json:"work"`
	QA          TimerReading `json:"qa"`
	ReadAt      time.Time    `json:"read_at"`
}

// TimeLogEntry is the transport view of one ledger record.
type TimeLogEntry struct {
	ID              int64     `json:"id"`
	TrackableID     string    `json:"trackable_id"`
	Timer           string    `json:"timer"`
	Action          string    `json:"action"`
	DurationSeconds *int64    `json:"duration_seconds,omitempty"`
	ActorID         string    `json:"actor_id"`
	ActorType       string    `json:"actor_type"`
	OccurredAt      time.Time `json:"occurred_at"`
}

// Reconciliation reports ledger drift for one timer.
type Reconciliation struct {
	TrackableID      string `json:"trackable_id"`
	Timer            string `json:"timer"`
	StoredSeconds    int64  `json:"stored_seconds"`
	LedgerSeconds    int64  `json:"ledger_seconds"`
	OpenSeconds      int64  `json:"open_seconds"`
	DisplayedSeconds int64  `json:"displayed_seconds"`
	DriftSeconds     int64  `json:"drift_seconds"`
	Applied          bool   `json:"applied"`
}

// CreateTrackableRequest captures input for new trackables.
type CreateTrackableRequest struct {
	Kind        string `json:"kind,omitempty"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	AssigneeID  string `json:"assignee_id,omitempty"`
}

// UpdateTrackableRequest captures a partial detail edit. Omitted fields keep their value.
type UpdateTrackableRequest struct {
	TrackableID string  `json:"-"`
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	AssigneeID  *string `json:"assignee_id,omitempty"`
}

// ListTrackablesRequest captures list filters. Empty fields match everything.
type ListTrackablesRequest struct {
	Kind         string
	AssigneeID   string
	QAReviewerID string
	WorkState    string
	QAStatus     string
}

// TransitionRequest captures one timer transition.
type TransitionRequest struct {
	TrackableID string `json:"-"`
	Timer       string `json:"-"`
	Action      string `json:"-"`
	ReviewerID  string `json:"reviewer_id,omitempty"`
	Verdict     string `json:"verdict,omitempty"`
	ActorID     string `json:"actor_id,omitempty"`
	ActorType   string `json:"actor_type,omitempty"`
}

// TimeLogRequest captures ledger list filters.
type TimeLogRequest struct {
	TrackableID string
	Timer       string
}

// ConflictDetails describes the trackable that blocks a reviewer.
type ConflictDetails struct {
	ReviewerID    string `json:"reviewer_id"`
	BlockingID    string `json:"blocking_id"`
	BlockingKind  string `json:"blocking_kind"`
	BlockingTitle string `json:"blocking_title"`
}

// conflictError carries ConflictDetails through error chains.
type conflictError struct {
	details ConflictDetails
	cause   error
}

// Error returns the underlying message.
func (e *conflictError) Error() string {
	return e.cause.Error()
}

// Unwrap exposes the sentinel and the app-level cause.
func (e *conflictError) Unwrap() []error {
	return []error{ErrConflict, e.cause}
}

// NewConflictError wraps cause so that it matches ErrConflict and carries details.
func NewConflictError(details ConflictDetails, cause error) error {
	if cause == nil {
		cause = ErrConflict
	}
	return &conflictError{details: details, cause: cause}
}

// ConflictFrom extracts blocking details from err when it is a reviewer conflict.
func ConflictFrom(err error) (ConflictDetails, bool) {
	var conflict *conflictError
	if !errors.As(err, &conflict) {
		return ConflictDetails{}, false
	}
	return conflict.details, true
}

// TimerService captures the operations exposed by HTTP and MCP adapters.
type TimerService interface {
	CreateTrackable(context.Context, CreateTrackableRequest) (Trackable, error)
	UpdateTrackable(context.Context, UpdateTrackableRequest) (Trackable, error)
	GetTrackable(context.Context, string) (Trackable, error)
	ListTrackables(context.Context, ListTrackablesRequest) ([]Trackable, error)
	ListActive(context.Context) ([]Trackable, error)
	TimeSummary(context.Context, string) (TimeSummary, error)
	ListTimeLog(context.Context, TimeLogRequest) ([]TimeLogEntry, error)
	Transition(context.Context, TransitionRequest) (Trackable, error)
	RecomputeTotal(context.Context, string) ([]Reconciliation, error)
	ReconcileAll(context.Context, bool) ([]Reconciliation, error)
}
