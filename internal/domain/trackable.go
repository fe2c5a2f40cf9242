package domain

import (
	"slices"
	"strings"
	"time"
)

// TrackableKind distinguishes the work item variants that carry timers.
type TrackableKind string

const (
	TrackableKindTask TrackableKind = "task"
	TrackableKindBug  TrackableKind = "bug"
)

var validTrackableKinds = []TrackableKind{TrackableKindTask, TrackableKindBug}

// WorkState is the state of the work session timer.
type WorkState string

const (
	WorkStateIdle     WorkState = "idle"
	WorkStateWorking  WorkState = "working"
	WorkStatePaused   WorkState = "paused"
	WorkStateFinished WorkState = "finished"
)

var validWorkStates = []WorkState{WorkStateIdle, WorkStateWorking, WorkStatePaused, WorkStateFinished}

// QAStatus is the state of the QA testing timer. The empty value means the item was never submitted.
type QAStatus string

const (
	QAStatusNone          QAStatus = ""
	QAStatusReadyForTest  QAStatus = "ready_for_test"
	QAStatusTesting       QAStatus = "testing"
	QAStatusTestingPaused QAStatus = "testing_paused"
	QAStatusApproved      QAStatus = "approved"
	QAStatusRejected      QAStatus = "rejected"
)

var validQAStatuses = []QAStatus{
	QAStatusNone,
	QAStatusReadyForTest,
	QAStatusTesting,
	QAStatusTestingPaused,
	QAStatusApproved,
	QAStatusRejected,
}

// ActiveQAStatuses are the statuses that occupy a reviewer.
var ActiveQAStatuses = []QAStatus{QAStatusTesting, QAStatusTestingPaused}

// Trackable is a task or bug whose effort is measured by a work timer and a QA timer.
type Trackable struct {
	ID           string
	Kind         TrackableKind
	Title        string
	Description  string
	AssigneeID   string
	WorkState    WorkState
	Work         Stopwatch
	QAStatus     QAStatus
	QAReviewerID string
	QA           Stopwatch
	Version      int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// TrackableInput holds the values accepted when creating a trackable.
type TrackableInput struct {
	ID          string
	Kind        TrackableKind
	Title       string
	Description string
	AssigneeID  string
}

// NewTrackable validates input and returns an idle trackable.
func NewTrackable(in TrackableInput, now time.Time) (Trackable, error) {
	in.ID = strings.TrimSpace(in.ID)
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	in.AssigneeID = strings.TrimSpace(in.AssigneeID)

	if in.ID == "" {
		return Trackable{}, ErrInvalidID
	}
	if in.Title == "" {
		return Trackable{}, ErrInvalidTitle
	}
	kind, err := ParseTrackableKind(string(in.Kind))
	if err != nil {
		return Trackable{}, err
	}

	ts := now.UTC()
	return Trackable{
		ID:          in.ID,
		Kind:        kind,
		Title:       in.Title,
		Description: in.Description,
		AssigneeID:  in.AssigneeID,
		WorkState:   WorkStateIdle,
		QAStatus:    QAStatusNone,
		Version:     1,
		CreatedAt:   ts,
		UpdatedAt:   ts,
	}, nil
}

// ParseTrackableKind normalizes raw into a known kind. Empty input defaults to task.
func ParseTrackableKind(raw string) (TrackableKind, error) {
	kind := TrackableKind(strings.TrimSpace(strings.ToLower(raw)))
	if kind == "" {
		return TrackableKindTask, nil
	}
	if !slices.Contains(validTrackableKinds, kind) {
		return "", ErrInvalidKind
	}
	return kind, nil
}

// ParseWorkState normalizes raw into a known work state.
func ParseWorkState(raw string) (WorkState, error) {
	state := WorkState(strings.TrimSpace(strings.ToLower(raw)))
	if !slices.Contains(validWorkStates, state) {
		return "", ErrInvalidState
	}
	return state, nil
}

// ParseQAStatus normalizes raw into a known QA status.
func ParseQAStatus(raw string) (QAStatus, error) {
	status := QAStatus(strings.TrimSpace(strings.ToLower(raw)))
	if !slices.Contains(validQAStatuses, status) {
		return "", ErrInvalidState
	}
	return status, nil
}

// IsWorking reports whether the work interval is open.
func (t Trackable) IsWorking() bool {
	return t.WorkState == WorkStateWorking
}

// IsTesting reports whether the QA interval is open.
func (t Trackable) IsTesting() bool {
	return t.QAStatus == QAStatusTesting
}

// OccupiesReviewer reports whether the trackable counts against its reviewer's single active slot.
func (t Trackable) OccupiesReviewer() bool {
	return slices.Contains(ActiveQAStatuses, t.QAStatus)
}

// HasOpenTimer reports whether any timer is running or paused.
func (t Trackable) HasOpenTimer() bool {
	return t.WorkState == WorkStateWorking || t.WorkState == WorkStatePaused || t.OccupiesReviewer()
}

// touch bumps UpdatedAt after a mutation.
func (t *Trackable) touch(now time.Time) {
	t.UpdatedAt = now.UTC()
}
