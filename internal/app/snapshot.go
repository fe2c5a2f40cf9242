package app

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/hylla/worktally/internal/domain"
)

// SnapshotVersion tags the export format.
const SnapshotVersion = "worktally.snapshot.v1"

// Snapshot is a portable copy of every trackable and the full time log.
type Snapshot struct {
	Version    string                 `json:"version"`
	ExportedAt time.Time              `json:"exported_at"`
	Trackables []SnapshotTrackable    `json:"trackables"`
	TimeLog    []SnapshotTimeLogEntry `json:"time_log"`
}

// SnapshotStopwatch mirrors domain.Stopwatch.
type SnapshotStopwatch struct {
	TotalSeconds int64      `json:"total_seconds"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	PausedAt     *time.Time `json:"paused_at,omitempty"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
}

// SnapshotTrackable mirrors domain.Trackable without the storage version.
type SnapshotTrackable struct {
	ID           string               `json:"id"`
	Kind         domain.TrackableKind `json:"kind"`
	Title        string               `json:"title"`
	Description  string               `json:"description,omitempty"`
	AssigneeID   string               `json:"assignee_id,omitempty"`
	WorkState    domain.WorkState     `json:"work_state"`
	Work         SnapshotStopwatch    `json:"work"`
	QAStatus     domain.QAStatus      `json:"qa_status,omitempty"`
	QAReviewerID string               `json:"qa_reviewer_id,omitempty"`
	QA           SnapshotStopwatch    `json:"qa"`
	CreatedAt    time.Time            `json:"created_at"`
	UpdatedAt    time.Time            `json:"updated_at"`
}

// SnapshotTimeLogEntry mirrors domain.TimeLogEntry. IDs are informational and are
// reassigned on import.
type SnapshotTimeLogEntry struct {
	ID              int64                `json:"id"`
	TrackableID     string               `json:"trackable_id"`
	Timer           domain.TimerKind     `json:"timer"`
	Action          domain.TimeLogAction `json:"action"`
	DurationSeconds *int64               `json:"duration_seconds,omitempty"`
	ActorID         string               `json:"actor_id"`
	ActorType       domain.ActorType     `json:"actor_type"`
	OccurredAt      time.Time            `json:"occurred_at"`
}

// ImportResult reports what ImportSnapshot restored.
type ImportResult struct {
	Imported  []string `json:"imported"`
	Skipped   []string `json:"skipped"`
	Entries   int      `json:"entries"`
	Corrected []string `json:"corrected"`
}

// ExportSnapshot copies every trackable and ledger entry.
func (s *Service) ExportSnapshot(ctx context.Context) (Snapshot, error) {
	items, err := s.repo.ListTrackables(ctx, TrackableFilter{})
	if err != nil {
		return Snapshot{}, err
	}
	entries, err := s.repo.ListTimeLog(ctx, TimeLogFilter{})
	if err != nil {
		return Snapshot{}, err
	}

	snap := Snapshot{
		Version:    SnapshotVersion,
		ExportedAt: s.clock().UTC(),
		Trackables: make([]SnapshotTrackable, 0, len(items)),
		TimeLog:    make([]SnapshotTimeLogEntry, 0, len(entries)),
	}
	for _, t := range items {
		snap.Trackables = append(snap.Trackables, snapshotTrackableFromDomain(t))
	}
	for _, e := range entries {
		snap.TimeLog = append(snap.TimeLog, snapshotEntryFromDomain(e))
	}
	snap.sort()
	return snap, nil
}

// ImportSnapshot restores trackables that do not exist yet. Existing ids are skipped so
// no ledger is ever rewritten. Restored totals are rebuilt from the imported ledger.
// An imported item under test whose reviewer is already busy in the store fails the whole
// import with a ConflictError before anything is written. snap is not modified.
func (s *Service) ImportSnapshot(ctx context.Context, snap Snapshot) (ImportResult, error) {
	snap = snap.clone()
	if err := snap.Validate(); err != nil {
		return ImportResult{}, err
	}
	snap.sort()

	byTrackable := make(map[string][]domain.TimeLogEntry, len(snap.Trackables))
	for _, e := range snap.TimeLog {
		byTrackable[e.TrackableID] = append(byTrackable[e.TrackableID], e.toDomain())
	}

	result := ImportResult{Imported: []string{}, Skipped: []string{}, Corrected: []string{}}
	pending := make([]domain.Trackable, 0, len(snap.Trackables))
	for _, st := range snap.Trackables {
		t := st.toDomain()
		if _, err := s.repo.GetTrackable(ctx, t.ID); err == nil {
			result.Skipped = append(result.Skipped, t.ID)
			continue
		} else if !errors.Is(err, ErrNotFound) {
			return result, err
		}
		if err := s.checkImportedReviewer(ctx, t); err != nil {
			return result, fmt.Errorf("import trackable %q: %w", t.ID, err)
		}
		pending = append(pending, t)
	}

	now := s.clock()
	for _, t := range pending {
		entries := byTrackable[t.ID]
		for _, rec := range t.Reconcile(entries, true, now) {
			if rec.Applied {
				result.Corrected = append(result.Corrected, t.ID)
				break
			}
		}
		if err := s.repo.ImportTrackable(ctx, t, entries); err != nil {
			return result, fmt.Errorf("import trackable %q: %w", t.ID, err)
		}
		s.invalidate(ctx, t.ID)
		result.Imported = append(result.Imported, t.ID)
		result.Entries += len(entries)
	}
	return result, nil
}

// checkImportedReviewer rejects an item under test whose reviewer already occupies another
// stored trackable.
func (s *Service) checkImportedReviewer(ctx context.Context, t domain.Trackable) error {
	if !t.OccupiesReviewer() {
		return nil
	}
	active, err := s.repo.ListTrackables(ctx, TrackableFilter{
		QAReviewerID: t.QAReviewerID,
		QAStatuses:   domain.ActiveQAStatuses,
	})
	if err != nil {
		return err
	}
	return domain.CheckReviewerAvailable(t.QAReviewerID, t.ID, active)
}

// clone copies the slices Validate and sort rewrite.
func (s Snapshot) clone() Snapshot {
	s.Trackables = slices.Clone(s.Trackables)
	s.TimeLog = slices.Clone(s.TimeLog)
	return s
}

// Validate checks shape, references and reviewer occupancy. Kinds, states and ledger values
// are normalized in place.
func (s *Snapshot) Validate() error {
	if s.Version != "" && s.Version != SnapshotVersion {
		return fmt.Errorf("unsupported snapshot version: %q", s.Version)
	}

	ids := make(map[string]struct{}, len(s.Trackables))
	for i := range s.Trackables {
		t := &s.Trackables[i]
		t.ID = strings.TrimSpace(t.ID)
		if t.ID == "" {
			return fmt.Errorf("trackables[%d].id is required", i)
		}
		if _, exists := ids[t.ID]; exists {
			return fmt.Errorf("duplicate trackable id: %q", t.ID)
		}
		if strings.TrimSpace(t.Title) == "" {
			return fmt.Errorf("trackables[%d].title is required", i)
		}
		if t.CreatedAt.IsZero() || t.UpdatedAt.IsZero() {
			return fmt.Errorf("trackables[%d] timestamps are required", i)
		}
		kind, err := domain.ParseTrackableKind(string(t.Kind))
		if err != nil {
			return fmt.Errorf("trackables[%d].kind: %w", i, err)
		}
		t.Kind = kind
		state, err := domain.ParseWorkState(string(t.WorkState))
		if err != nil {
			return fmt.Errorf("trackables[%d].work_state %q: %w", i, t.WorkState, err)
		}
		t.WorkState = state
		status, err := domain.ParseQAStatus(string(t.QAStatus))
		if err != nil {
			return fmt.Errorf("trackables[%d].qa_status %q: %w", i, t.QAStatus, err)
		}
		t.QAStatus = status
		if t.Work.TotalSeconds < 0 || t.QA.TotalSeconds < 0 {
			return fmt.Errorf("trackables[%d] totals must be >= 0", i)
		}
		if t.WorkState == domain.WorkStateWorking && t.Work.StartedAt == nil {
			return fmt.Errorf("trackables[%d] is working without work.started_at", i)
		}
		if t.QAStatus == domain.QAStatusTesting && t.QA.StartedAt == nil {
			return fmt.Errorf("trackables[%d] is testing without qa.started_at", i)
		}
		if t.QAStatus != domain.QAStatusNone && strings.TrimSpace(t.QAReviewerID) == "" {
			return fmt.Errorf("trackables[%d] has qa_status %q without a reviewer", i, t.QAStatus)
		}
		ids[t.ID] = struct{}{}
	}
	if err := s.checkReviewers(); err != nil {
		return err
	}

	for i := range s.TimeLog {
		e := &s.TimeLog[i]
		e.TrackableID = strings.TrimSpace(e.TrackableID)
		if _, ok := ids[e.TrackableID]; !ok {
			return fmt.Errorf("time_log[%d] references unknown trackable_id %q", i, e.TrackableID)
		}
		timer, err := domain.ParseTimerKind(string(e.Timer))
		if err != nil {
			return fmt.Errorf("time_log[%d].timer: %w", i, err)
		}
		e.Timer = timer
		action, err := domain.ParseTimeLogAction(string(e.Action))
		if err != nil {
			return fmt.Errorf("time_log[%d].action: %w", i, err)
		}
		e.Action = action
		if e.DurationSeconds != nil && *e.DurationSeconds < 0 {
			return fmt.Errorf("time_log[%d].duration_seconds must be >= 0", i)
		}
		if e.OccurredAt.IsZero() {
			return fmt.Errorf("time_log[%d].occurred_at is required", i)
		}
		e.ActorType = domain.NormalizeActorType(e.ActorType)
	}
	return nil
}

// checkReviewers rejects snapshots that put one reviewer on more than one item under test.
func (s *Snapshot) checkReviewers() error {
	busy := make(map[string]domain.Trackable)
	for i, st := range s.Trackables {
		t := st.toDomain()
		if !t.OccupiesReviewer() {
			continue
		}
		if other, ok := busy[t.QAReviewerID]; ok {
			return fmt.Errorf("trackables[%d]: %w", i, domain.NewConflictError(t.QAReviewerID, other))
		}
		busy[t.QAReviewerID] = t
	}
	return nil
}

// sort orders trackables by creation and the ledger by trackable then time.
func (s *Snapshot) sort() {
	sort.SliceStable(s.Trackables, func(i, j int) bool {
		a, b := s.Trackables[i], s.Trackables[j]
		if a.CreatedAt.Equal(b.CreatedAt) {
			return a.ID < b.ID
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})
	sort.SliceStable(s.TimeLog, func(i, j int) bool {
		a, b := s.TimeLog[i], s.TimeLog[j]
		if a.TrackableID != b.TrackableID {
			return a.TrackableID < b.TrackableID
		}
		if !a.OccurredAt.Equal(b.OccurredAt) {
			return a.OccurredAt.Before(b.OccurredAt)
		}
		return a.ID < b.ID
	})
}

func snapshotTrackableFromDomain(t domain.Trackable) SnapshotTrackable {
	return SnapshotTrackable{
		ID:           t.ID,
		Kind:         t.Kind,
		Title:        t.Title,
		Description:  t.Description,
		AssigneeID:   t.AssigneeID,
		WorkState:    t.WorkState,
		Work:         snapshotStopwatchFromDomain(t.Work),
		QAStatus:     t.QAStatus,
		QAReviewerID: t.QAReviewerID,
		QA:           snapshotStopwatchFromDomain(t.QA),
		CreatedAt:    t.CreatedAt.UTC(),
		UpdatedAt:    t.UpdatedAt.UTC(),
	}
}

func snapshotStopwatchFromDomain(sw domain.Stopwatch) SnapshotStopwatch {
	return SnapshotStopwatch{
		TotalSeconds: sw.TotalSeconds,
		StartedAt:    copyTimePtr(sw.StartedAt),
		PausedAt:     copyTimePtr(sw.PausedAt),
		FinishedAt:   copyTimePtr(sw.FinishedAt),
	}
}

func snapshotEntryFromDomain(e domain.TimeLogEntry) SnapshotTimeLogEntry {
	out := SnapshotTimeLogEntry{
		ID:          e.ID,
		TrackableID: e.TrackableID,
		Timer:       e.Timer,
		Action:      e.Action,
		ActorID:     e.ActorID,
		ActorType:   e.ActorType,
		OccurredAt:  e.OccurredAt.UTC(),
	}
	if e.DurationSeconds != nil {
		d := *e.DurationSeconds
		out.DurationSeconds = &d
	}
	return out
}

func (t SnapshotTrackable) toDomain() domain.Trackable {
	return domain.Trackable{
		ID:           t.ID,
		Kind:         t.Kind,
		Title:        strings.TrimSpace(t.Title),
		Description:  strings.TrimSpace(t.Description),
		AssigneeID:   strings.TrimSpace(t.AssigneeID),
		WorkState:    t.WorkState,
		Work:         t.Work.toDomain(),
		QAStatus:     t.QAStatus,
		QAReviewerID: strings.TrimSpace(t.QAReviewerID),
		QA:           t.QA.toDomain(),
		Version:      1,
		CreatedAt:    t.CreatedAt.UTC(),
		UpdatedAt:    t.UpdatedAt.UTC(),
	}
}

func (sw SnapshotStopwatch) toDomain() domain.Stopwatch {
	return domain.Stopwatch{
		TotalSeconds: sw.TotalSeconds,
		StartedAt:    copyTimePtr(sw.StartedAt),
		PausedAt:     copyTimePtr(sw.PausedAt),
		FinishedAt:   copyTimePtr(sw.FinishedAt),
	}
}

func (e SnapshotTimeLogEntry) toDomain() domain.TimeLogEntry {
	out := domain.TimeLogEntry{
		TrackableID: e.TrackableID,
		Timer:       e.Timer,
		Action:      e.Action,
		ActorID:     strings.TrimSpace(e.ActorID),
		ActorType:   e.ActorType,
		OccurredAt:  e.OccurredAt.UTC(),
	}
	if e.DurationSeconds != nil {
		d := *e.DurationSeconds
		out.DurationSeconds = &d
	}
	return out
}

// copyTimePtr deep-copies an optional timestamp.
func copyTimePtr(in *time.Time) *time.Time {
	if in == nil {
		return nil
	}
	ts := in.UTC()
	return &ts
}
