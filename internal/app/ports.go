package app

import (
	"context"

	"github.com/hylla/worktally/internal/domain"
)

// TrackableFilter narrows trackable listings. Empty fields match everything.
type TrackableFilter struct {
	Kind         domain.TrackableKind
	AssigneeID   string
	QAReviewerID string
	WorkStates   []domain.WorkState
	QAStatuses   []domain.QAStatus
}

// TimeLogFilter narrows ledger listings. An empty TrackableID lists every entry.
type TimeLogFilter struct {
	TrackableID string
	Timer       domain.TimerKind
}

// TransitionReader exposes reads that run inside the transition transaction.
type TransitionReader interface {
	ListTrackables(context.Context, TrackableFilter) ([]domain.Trackable, error)
	ListTimeLog(context.Context, TimeLogFilter) ([]domain.TimeLogEntry, error)
}

// TransitionFunc mutates a loaded trackable and returns the ledger entries to append.
// Returning ErrNoChange commits nothing and is not reported as an error.
type TransitionFunc func(context.Context, TransitionReader, *domain.Trackable) ([]domain.TimeLogEntry, error)

// Repository persists trackables and their time log. Implementations must run ApplyTransition atomically.
type Repository interface {
	CreateTrackable(context.Context, domain.Trackable) error
	GetTrackable(context.Context, string) (domain.Trackable, error)
	ListTrackables(context.Context, TrackableFilter) ([]domain.Trackable, error)
	ListTimeLog(context.Context, TimeLogFilter) ([]domain.TimeLogEntry, error)

	// ApplyTransition loads the trackable, runs fn, then persists the result and the
	// returned entries in one transaction. It returns the stored trackable and entries.
	ApplyTransition(context.Context, string, TransitionFunc) (domain.Trackable, []domain.TimeLogEntry, error)

	// ImportTrackable inserts a trackable together with its ledger. It never appends to an
	// existing trackable's ledger.
	ImportTrackable(context.Context, domain.Trackable, []domain.TimeLogEntry) error
}

// TrackableCache caches single-trackable reads. Implementations may be shared between processes.
type TrackableCache interface {
	Get(context.Context, string) (domain.Trackable, bool, error)
	Set(context.Context, domain.Trackable) error
	Invalidate(context.Context, ...string) error
}
