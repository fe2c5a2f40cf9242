package common

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hylla/worktally/internal/app"
	"github.com/hylla/worktally/internal/domain"
)

// AppServiceAdapter maps transport contracts onto app.Service timer APIs.
type AppServiceAdapter struct {
	service *app.Service
}

// NewAppServiceAdapter builds one common adapter over an app.Service instance.
func NewAppServiceAdapter(service *app.Service) *AppServiceAdapter {
	return &AppServiceAdapter{service: service}
}

// CreateTrackable creates one task or bug.
func (a *AppServiceAdapter) CreateTrackable(ctx context.Context, in CreateTrackableRequest) (Trackable, error) {
	if err := a.ready(); err != nil {
		return Trackable{}, err
	}
	t, err := a.service.CreateTrackable(ctx, app.CreateTrackableInput{
		Kind:        domain.TrackableKind(strings.TrimSpace(in.Kind)),
		Title:       in.Title,
		Description: in.Description,
		AssigneeID:  in.AssigneeID,
	})
	if err != nil {
		return Trackable{}, mapAppError("create trackable", err)
	}
	return mapTrackable(t, a.service.Now()), nil
}

// UpdateTrackable applies a partial detail edit.
func (a *AppServiceAdapter) UpdateTrackable(ctx context.Context, in UpdateTrackableRequest) (Trackable, error) {
	if err := a.ready(); err != nil {
		return Trackable{}, err
	}
	t, err := a.service.UpdateTrackableDetails(ctx, app.UpdateTrackableInput{
		TrackableID: in.TrackableID,
		Title:       in.Title,
		Description: in.Description,
		AssigneeID:  in.AssigneeID,
	})
	if err != nil {
		return Trackable{}, mapAppError("update trackable", err)
	}
	return mapTrackable(t, a.service.Now()), nil
}

// GetTrackable returns one trackable with live readings.
func (a *AppServiceAdapter) GetTrackable(ctx context.Context, id string) (Trackable, error) {
	if err := a.ready(); err != nil {
		return Trackable{}, err
	}
	t, err := a.service.GetTrackable(ctx, id)
	if err != nil {
		return Trackable{}, mapAppError("get trackable", err)
	}
	return mapTrackable(t, a.service.Now()), nil
}

// ListTrackables lists trackables matching the request filters.
func (a *AppServiceAdapter) ListTrackables(ctx context.Context, in ListTrackablesRequest) ([]Trackable, error) {
	if err := a.ready(); err != nil {
		return nil, err
	}
	filter, err := normalizeListRequest(in)
	if err != nil {
		return nil, err
	}
	items, err := a.service.ListTrackables(ctx, filter)
	if err != nil {
		return nil, mapAppError("list trackables", err)
	}
	now := a.service.Now()
	out := make([]Trackable, 0, len(items))
	for _, t := range items {
		out = append(out, mapTrackable(t, now))
	}
	return out, nil
}

// ListActive lists trackables with a running or paused timer.
func (a *AppServiceAdapter) ListActive(ctx context.Context) ([]Trackable, error) {
	if err := a.ready(); err != nil {
		return nil, err
	}
	items, err := a.service.ListActive(ctx)
	if err != nil {
		return nil, mapAppError("list active", err)
	}
	out := make([]Trackable, 0, len(items))
	for _, item := range items {
		out = append(out, mapTrackable(item.Trackable, item.Summary.ReadAt))
	}
	return out, nil
}

// TimeSummary returns both readings for one trackable.
func (a *AppServiceAdapter) TimeSummary(ctx context.Context, id string) (TimeSummary, error) {
	if err := a.ready(); err != nil {
		return TimeSummary{}, err
	}
	summary, err := a.service.TimeSummary(ctx, id)
	if err != nil {
		return TimeSummary{}, mapAppError("time summary", err)
	}
	return TimeSummary{
		TrackableID: summary.TrackableID,
		Work:        mapReading(summary.Work),
		QA:          mapReading(summary.QA),
		ReadAt:      summary.ReadAt,
	}, nil
}

// ListTimeLog lists ledger entries for one trackable.
func (a *AppServiceAdapter) ListTimeLog(ctx context.Context, in TimeLogRequest) ([]TimeLogEntry, error) {
	if err := a.ready(); err != nil {
		return nil, err
	}
	var timer domain.TimerKind
	if raw := strings.TrimSpace(in.Timer); raw != "" {
		parsed, err := domain.ParseTimerKind(raw)
		if err != nil {
			return nil, fmt.Errorf("list time log: %w", errors.Join(ErrInvalidRequest, err))
		}
		timer = parsed
	}
	entries, err := a.service.ListTimeLog(ctx, in.TrackableID, timer)
	if err != nil {
		return nil, mapAppError("list time log", err)
	}
	out := make([]TimeLogEntry, 0, len(entries))
	for _, entry := range entries {
		out = append(out, TimeLogEntry{
			ID:              entry.ID,
			TrackableID:     entry.TrackableID,
			Timer:           string(entry.Timer),
			Action:          string(entry.Action),
			DurationSeconds: entry.DurationSeconds,
			ActorID:         entry.ActorID,
			ActorType:       string(entry.ActorType),
			OccurredAt:      entry.OccurredAt,
		})
	}
	return out, nil
}

// Transition dispatches one work or QA transition.
func (a *AppServiceAdapter) Transition(ctx context.Context, in TransitionRequest) (Trackable, error) {
	if err := a.ready(); err != nil {
		return Trackable{}, err
	}
	timer := strings.TrimSpace(strings.ToLower(in.Timer))
	action := strings.TrimSpace(strings.ToLower(in.Action))
	input := app.TransitionInput{
		TrackableID: in.TrackableID,
		ActorID:     in.ActorID,
		ActorType:   domain.ActorType(in.ActorType),
	}
	operation := fmt.Sprintf("%s %s", action, timer)

	var (
		t   domain.Trackable
		err error
	)
	switch timer {
	case TimerWork:
		switch action {
		case ActionStart, ActionPause, ActionResume, ActionFinish:
			t, err = a.service.ApplyWorkAction(ctx, input, domain.TimeLogAction(action))
		default:
			return Trackable{}, fmt.Errorf("unsupported work action %q: %w", in.Action, ErrInvalidRequest)
		}
	case TimerQA:
		switch action {
		case ActionSubmit:
			t, err = a.service.SubmitForQA(ctx, app.SubmitForQAInput{TrackableID: in.TrackableID, ReviewerID: in.ReviewerID})
		case ActionStart:
			t, err = a.service.StartTesting(ctx, input)
		case ActionPause:
			t, err = a.service.PauseTesting(ctx, input)
		case ActionResume:
			t, err = a.service.ResumeTesting(ctx, input)
		case ActionFinish:
			t, err = a.service.FinishTesting(ctx, app.FinishTestingInput{TransitionInput: input, Verdict: domain.QAStatus(in.Verdict)})
		default:
			return Trackable{}, fmt.Errorf("unsupported qa action %q: %w", in.Action, ErrInvalidRequest)
		}
	default:
		return Trackable{}, fmt.Errorf("unsupported timer %q: %w", in.Timer, ErrInvalidRequest)
	}
	if err != nil {
		return Trackable{}, mapAppError(operation, err)
	}
	return mapTrackable(t, a.service.Now()), nil
}

// RecomputeTotal rebuilds one trackable's totals from its ledger.
func (a *AppServiceAdapter) RecomputeTotal(ctx context.Context, id string) ([]Reconciliation, error) {
	if err := a.ready(); err != nil {
		return nil, err
	}
	recs, err := a.service.RecomputeTotal(ctx, id)
	if err != nil {
		return nil, mapAppError("recompute total", err)
	}
	return mapReconciliations(recs), nil
}

// ReconcileAll checks every trackable against its ledger.
func (a *AppServiceAdapter) ReconcileAll(ctx context.Context, dryRun bool) ([]Reconciliation, error) {
	if err := a.ready(); err != nil {
		return nil, err
	}
	recs, err := a.service.ReconcileAll(ctx, dryRun)
	if err != nil {
		return nil, mapAppError("reconcile all", err)
	}
	return mapReconciliations(recs), nil
}

// ready reports whether the adapter has a backing service.
func (a *AppServiceAdapter) ready() error {
	if a == nil || a.service == nil {
		return fmt.Errorf("app service adapter is not configured: %w", ErrServiceUnavailable)
	}
	return nil
}

// normalizeListRequest validates list filters.
func normalizeListRequest(in ListTrackablesRequest) (app.TrackableFilter, error) {
	filter := app.TrackableFilter{
		AssigneeID:   strings.TrimSpace(in.AssigneeID),
		QAReviewerID: strings.TrimSpace(in.QAReviewerID),
	}
	if raw := strings.TrimSpace(in.Kind); raw != "" {
		kind, err := domain.ParseTrackableKind(raw)
		if err != nil {
			return app.TrackableFilter{}, fmt.Errorf("kind %q: %w", raw, errors.Join(ErrInvalidRequest, err))
		}
		filter.Kind = kind
	}
	if raw := strings.TrimSpace(in.WorkState); raw != "" {
		state, err := domain.ParseWorkState(raw)
		if err != nil {
			return app.TrackableFilter{}, fmt.Errorf("work_state %q: %w", raw, ErrInvalidRequest)
		}
		filter.WorkStates = []domain.WorkState{state}
	}
	if raw := strings.TrimSpace(in.QAStatus); raw != "" {
		status, err := domain.ParseQAStatus(raw)
		if err != nil {
			return app.TrackableFilter{}, fmt.Errorf("qa_status %q: %w", raw, ErrInvalidRequest)
		}
		filter.QAStatuses = []domain.QAStatus{status}
	}
	return filter, nil
}

// mapTrackable converts a domain trackable with readings at now.
func mapTrackable(t domain.Trackable, now time.Time) Trackable {
	return Trackable{
		ID:           t.ID,
		Kind:         string(t.Kind),
		Title:        t.Title,
		Description:  t.Description,
		AssigneeID:   t.AssigneeID,
		WorkState:    string(t.WorkState),
		IsWorking:    t.IsWorking(),
		QAStatus:     string(t.QAStatus),
		QAReviewerID: t.QAReviewerID,
		Work:         mapReading(t.WorkReading(now)),
		QA:           mapReading(t.QAReading(now)),
		Version:      t.Version,
		CreatedAt:    t.CreatedAt,
		UpdatedAt:    t.UpdatedAt,
	}
}

func mapReading(r domain.TimerReading) TimerReading {
	return TimerReading{
		Timer:            string(r.Timer),
		State:            r.State,
		Running:          r.Running,
		TotalSeconds:     r.TotalSeconds,
		OpenSeconds:      r.OpenSeconds,
		DisplayedSeconds: r.DisplayedSeconds,
		StartedAt:        r.StartedAt,
		PausedAt:         r.PausedAt,
		FinishedAt:       r.FinishedAt,
		SkewClamped:      r.SkewClamped,
	}
}

func mapReconciliations(recs []domain.Reconciliation) []Reconciliation {
	out := make([]Reconciliation, 0, len(recs))
	for _, rec := range recs {
		out = append(out, Reconciliation{
			TrackableID:      rec.TrackableID,
			Timer:            string(rec.Timer),
			StoredSeconds:    rec.StoredSeconds,
			LedgerSeconds:    rec.LedgerSeconds,
			OpenSeconds:      rec.OpenSeconds,
			DisplayedSeconds: rec.DisplayedSeconds,
			DriftSeconds:     rec.DriftSeconds,
			Applied:          rec.Applied,
		})
	}
	return out
}

// mapAppError maps app and domain failures to transport sentinels.
func mapAppError(operation string, err error) error {
	if err == nil {
		return nil
	}

	var conflict *domain.ConflictError
	switch {
	case errors.As(err, &conflict):
		return fmt.Errorf("%s: %w", operation, NewConflictError(ConflictDetails{
			ReviewerID:    conflict.ReviewerID,
			BlockingID:    conflict.BlockingID,
			BlockingKind:  string(conflict.BlockingKind),
			BlockingTitle: conflict.BlockingTitle,
		}, err))
	case errors.Is(err, app.ErrNotFound):
		return fmt.Errorf("%s: %w", operation, errors.Join(ErrNotFound, err))
	case errors.Is(err, app.ErrConcurrentUpdate):
		return fmt.Errorf("%s: %w", operation, errors.Join(ErrConcurrentUpdate, err))
	case errors.Is(err, domain.ErrInvalidState):
		return fmt.Errorf("%s: %w", operation, errors.Join(ErrInvalidState, err))
	case errors.Is(err, domain.ErrInvalidID),
		errors.Is(err, domain.ErrInvalidTitle),
		errors.Is(err, domain.ErrInvalidKind),
		errors.Is(err, domain.ErrInvalidTimer),
		errors.Is(err, domain.ErrInvalidAction),
		errors.Is(err, domain.ErrInvalidReviewer),
		errors.Is(err, domain.ErrInvalidVerdict),
		errors.Is(err, domain.ErrInvalidActorType):
		return fmt.Errorf("%s: %w", operation, errors.Join(ErrInvalidRequest, err))
	default:
		return fmt.Errorf("%s: %w", operation, err)
	}
}
