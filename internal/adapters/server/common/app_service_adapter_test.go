package common

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/hylla/worktally/internal/adapters/storage/sqlite"
	"github.com/hylla/worktally/internal/app"
)

// newTestAdapter builds an adapter over an in-memory repository and a controllable clock.
func newTestAdapter(t *testing.T) (*AppServiceAdapter, *time.Time) {
	t.Helper()
	repo, err := sqlite.OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory() error = %v", err)
	}
	t.Cleanup(func() {
		_ = repo.Close()
	})
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	n := 0
	svc := app.NewService(repo, func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}, func() time.Time { return now }, app.ServiceConfig{})
	return NewAppServiceAdapter(svc), &now
}

// TestTransitionWorkScenario verifies the 300s + 300s scenario through transport contracts.
func TestTransitionWorkScenario(t *testing.T) {
	ctx := context.Background()
	adapter, now := newTestAdapter(t)
	created, err := adapter.CreateTrackable(ctx, CreateTrackableRequest{Title: "Build login"})
	if err != nil {
		t.Fatalf("CreateTrackable() error = %v", err)
	}
	t0 := *now
	steps := []struct {
		offset time.Duration
		action string
	}{
		{0, ActionStart},
		{300 * time.Second, ActionPause},
		{600 * time.Second, ActionResume},
		{900 * time.Second, ActionFinish},
	}
	var got Trackable
	for _, step := range steps {
		*now = t0.Add(step.offset)
		got, err = adapter.Transition(ctx, TransitionRequest{TrackableID: created.ID, Timer: TimerWork, Action: step.action})
		if err != nil {
			t.Fatalf("Transition(%s) error = %v", step.action, err)
		}
	}
	if got.Work.TotalSeconds != 600 || got.WorkState != "finished" {
		t.Fatalf("unexpected final state %#v", got.Work)
	}
	entries, err := adapter.ListTimeLog(ctx, TimeLogRequest{TrackableID: created.ID, Timer: TimerWork})
	if err != nil {
		t.Fatalf("ListTimeLog() error = %v", err)
	}
	if len(entries) != 4 || entries[0].ActorID != app.DefaultActorID {
		t.Fatalf("unexpected entries %#v", entries)
	}
}

// TestTransitionErrorMapping verifies sentinel mapping for invalid input and state.
func TestTransitionErrorMapping(t *testing.T) {
	ctx := context.Background()
	adapter, _ := newTestAdapter(t)
	created, err := adapter.CreateTrackable(ctx, CreateTrackableRequest{Kind: "bug", Title: "Crash"})
	if err != nil {
		t.Fatalf("CreateTrackable() error = %v", err)
	}

	cases := []struct {
		name string
		req  TransitionRequest
		want error
	}{
		{"pause idle", TransitionRequest{TrackableID: created.ID, Timer: TimerWork, Action: ActionPause}, ErrInvalidState},
		{"unknown timer", TransitionRequest{TrackableID: created.ID, Timer: "break", Action: ActionStart}, ErrInvalidRequest},
		{"unknown action", TransitionRequest{TrackableID: created.ID, Timer: TimerWork, Action: "stop"}, ErrInvalidRequest},
		{"missing trackable", TransitionRequest{TrackableID: "nope", Timer: TimerWork, Action: ActionStart}, ErrNotFound},
		{"submit without reviewer", TransitionRequest{TrackableID: created.ID, Timer: TimerQA, Action: ActionSubmit}, ErrInvalidRequest},
		{"unknown actor type", TransitionRequest{TrackableID: created.ID, Timer: TimerWork, Action: ActionStart, ActorID: "bot", ActorType: "robot"}, ErrInvalidRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := adapter.Transition(ctx, tc.req)
			if !errors.Is(err, tc.want) {
				t.Fatalf("Transition() error = %v, want %v", err, tc.want)
			}
		})
	}
	if _, err := adapter.CreateTrackable(ctx, CreateTrackableRequest{Title: " "}); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("CreateTrackable() blank title error = %v", err)
	}
	if _, err := adapter.ListTrackables(ctx, ListTrackablesRequest{WorkState: "sleeping"}); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("ListTrackables() bad state error = %v", err)
	}
}

// TestUpdateTrackableThroughAdapter verifies partial edits and blank-title mapping.
func TestUpdateTrackableThroughAdapter(t *testing.T) {
	ctx := context.Background()
	adapter, _ := newTestAdapter(t)
	created, err := adapter.CreateTrackable(ctx, CreateTrackableRequest{Title: "Build login", AssigneeID: "dev-1"})
	if err != nil {
		t.Fatalf("CreateTrackable() error = %v", err)
	}
	desc := "use the session cookie"
	got, err := adapter.UpdateTrackable(ctx, UpdateTrackableRequest{TrackableID: created.ID, Description: &desc})
	if err != nil {
		t.Fatalf("UpdateTrackable() error = %v", err)
	}
	if got.Title != "Build login" || got.AssigneeID != "dev-1" || got.Description != desc {
		t.Fatalf("unexpected edited trackable %#v", got)
	}
	blank := " "
	if _, err := adapter.UpdateTrackable(ctx, UpdateTrackableRequest{TrackableID: created.ID, Title: &blank}); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("UpdateTrackable() blank title error = %v", err)
	}
	if _, err := adapter.UpdateTrackable(ctx, UpdateTrackableRequest{TrackableID: "nope", Description: &desc}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("UpdateTrackable() missing id error = %v", err)
	}
}

// TestTransitionConflictCarriesDetails verifies blocking entity details survive mapping.
func TestTransitionConflictCarriesDetails(t *testing.T) {
	ctx := context.Background()
	adapter, now := newTestAdapter(t)
	ids := make([]string, 0, 2)
	for _, title := range []string{"Login crash", "Logout crash"} {
		created, err := adapter.CreateTrackable(ctx, CreateTrackableRequest{Kind: "bug", Title: title})
		if err != nil {
			t.Fatalf("CreateTrackable() error = %v", err)
		}
		for _, action := range []string{ActionStart, ActionFinish} {
			if _, err := adapter.Transition(ctx, TransitionRequest{TrackableID: created.ID, Timer: TimerWork, Action: action}); err != nil {
				t.Fatalf("Transition(work %s) error = %v", action, err)
			}
		}
		if _, err := adapter.Transition(ctx, TransitionRequest{TrackableID: created.ID, Timer: TimerQA, Action: ActionSubmit, ReviewerID: "qa-1"}); err != nil {
			t.Fatalf("Transition(submit) error = %v", err)
		}
		ids = append(ids, created.ID)
	}
	if _, err := adapter.Transition(ctx, TransitionRequest{TrackableID: ids[0], Timer: TimerQA, Action: ActionStart}); err != nil {
		t.Fatalf("Transition(qa start) error = %v", err)
	}
	*now = now.Add(time.Minute)

	_, err := adapter.Transition(ctx, TransitionRequest{TrackableID: ids[1], Timer: TimerQA, Action: ActionStart})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	details, ok := ConflictFrom(err)
	if !ok {
		t.Fatalf("ConflictFrom() expected details for %v", err)
	}
	if details.BlockingID != ids[0] || details.BlockingTitle != "Login crash" || details.BlockingKind != "bug" || details.ReviewerID != "qa-1" {
		t.Fatalf("unexpected details %#v", details)
	}

	active, err := adapter.ListActive(ctx)
	if err != nil {
		t.Fatalf("ListActive() error = %v", err)
	}
	if len(active) != 1 || active[0].ID != ids[0] || active[0].QA.DisplayedSeconds != 60 {
		t.Fatalf("unexpected active list %#v", active)
	}
}

// TestRecomputeThroughAdapter verifies reconciliation reports for both timers.
func TestRecomputeThroughAdapter(t *testing.T) {
	ctx := context.Background()
	adapter, _ := newTestAdapter(t)
	created, err := adapter.CreateTrackable(ctx, CreateTrackableRequest{Title: "x"})
	if err != nil {
		t.Fatalf("CreateTrackable() error = %v", err)
	}
	recs, err := adapter.RecomputeTotal(ctx, created.ID)
	if err != nil {
		t.Fatalf("RecomputeTotal() error = %v", err)
	}
	if len(recs) != 2 || recs[0].Timer != TimerWork || recs[1].Timer != TimerQA || recs[0].Applied {
		t.Fatalf("unexpected reconciliation %#v", recs)
	}
	all, err := adapter.ReconcileAll(ctx, true)
	if err != nil {
		t.Fatalf("ReconcileAll() error = %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 reports, got %d", len(all))
	}
}

// TestNilAdapterIsUnavailable verifies fail-closed behavior without a service.
func TestNilAdapterIsUnavailable(t *testing.T) {
	var adapter *AppServiceAdapter
	if _, err := adapter.GetTrackable(context.Background(), "x"); !errors.Is(err, ErrServiceUnavailable) {
		t.Fatalf("expected ErrServiceUnavailable, got %v", err)
	}
}
