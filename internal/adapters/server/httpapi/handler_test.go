package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hylla/worktally/internal/adapters/server/common"
)

// stubTimerService provides deterministic TimerService responses for handler tests.
type stubTimerService struct {
	trackable      common.Trackable
	items          []common.Trackable
	summary        common.TimeSummary
	entries        []common.TimeLogEntry
	reconciliation []common.Reconciliation
	err            error

	lastCreate     common.CreateTrackableRequest
	lastUpdate     common.UpdateTrackableRequest
	lastList       common.ListTrackablesRequest
	lastTransition common.TransitionRequest
	lastTimeLog    common.TimeLogRequest
	lastGetID      string
	lastRecomputed string
	lastDryRun     *bool
}

// CreateTrackable returns the configured trackable.
func (s *stubTimerService) CreateTrackable(_ context.Context, in common.CreateTrackableRequest) (common.Trackable, error) {
	s.lastCreate = in
	if s.err != nil {
		return common.Trackable{}, s.err
	}
	return s.trackable, nil
}

// UpdateTrackable returns the configured trackable.
func (s *stubTimerService) UpdateTrackable(_ context.Context, in common.UpdateTrackableRequest) (common.Trackable, error) {
	s.lastUpdate = in
	if s.err != nil {
		return common.Trackable{}, s.err
	}
	return s.trackable, nil
}

// GetTrackable returns the configured trackable.
func (s *stubTimerService) GetTrackable(_ context.Context, id string) (common.Trackable, error) {
	s.lastGetID = id
	if s.err != nil {
		return common.Trackable{}, s.err
	}
	return s.trackable, nil
}

// ListTrackables returns the configured items.
func (s *stubTimerService) ListTrackables(_ context.Context, in common.ListTrackablesRequest) ([]common.Trackable, error) {
	s.lastList = in
	if s.err != nil {
		return nil, s.err
	}
	return s.items, nil
}

// ListActive returns the configured items.
func (s *stubTimerService) ListActive(context.Context) ([]common.Trackable, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.items, nil
}

// TimeSummary returns the configured summary.
func (s *stubTimerService) TimeSummary(_ context.Context, id string) (common.TimeSummary, error) {
	s.lastGetID = id
	if s.err != nil {
		return common.TimeSummary{}, s.err
	}
	return s.summary, nil
}

// ListTimeLog returns the configured entries.
func (s *stubTimerService) ListTimeLog(_ context.Context, in common.TimeLogRequest) ([]common.TimeLogEntry, error) {
	s.lastTimeLog = in
	if s.err != nil {
		return nil, s.err
	}
	return s.entries, nil
}

// Transition returns the configured trackable.
func (s *stubTimerService) Transition(_ context.Context, in common.TransitionRequest) (common.Trackable, error) {
	s.lastTransition = in
	if s.err != nil {
		return common.Trackable{}, s.err
	}
	return s.trackable, nil
}

// RecomputeTotal returns the configured reconciliation.
func (s *stubTimerService) RecomputeTotal(_ context.Context, id string) ([]common.Reconciliation, error) {
	s.lastRecomputed = id
	if s.err != nil {
		return nil, s.err
	}
	return s.reconciliation, nil
}

// ReconcileAll returns the configured reconciliation.
func (s *stubTimerService) ReconcileAll(_ context.Context, dryRun bool) ([]common.Reconciliation, error) {
	s.lastDryRun = &dryRun
	if s.err != nil {
		return nil, s.err
	}
	return s.reconciliation, nil
}

// decodeBody decodes one JSON response body for assertions.
func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	return out
}

// sampleTrackable returns a working task fixture.
func sampleTrackable() common.Trackable {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	return common.Trackable{
		ID:        "t-1",
		Kind:      "task",
		Title:     "Build login",
		WorkState: "working",
		IsWorking: true,
		Work: common.TimerReading{
			Timer:            common.TimerWork,
			State:            "working",
			Running:          true,
			TotalSeconds:     300,
			OpenSeconds:      30,
			DisplayedSeconds: 330,
		},
		Version:   3,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// TestHandlerListTrackablesPassesFilters verifies query parameters reach the service.
func TestHandlerListTrackablesPassesFilters(t *testing.T) {
	stub := &stubTimerService{items: []common.Trackable{sampleTrackable()}}
	handler := NewHandler(stub)

	req := httptest.NewRequest(http.MethodGet, "/trackables?kind=bug&assignee_id=dev-1&qa_reviewer_id=qa-1&work_state=finished&qa_status=testing", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	want := common.ListTrackablesRequest{
		Kind:         "bug",
		AssigneeID:   "dev-1",
		QAReviewerID: "qa-1",
		WorkState:    "finished",
		QAStatus:     "testing",
	}
	if stub.lastList != want {
		t.Fatalf("unexpected list request %#v", stub.lastList)
	}
	body := decodeBody[struct {
		Items []common.Trackable `json:"items"`
	}](t, rec)
	if len(body.Items) != 1 || body.Items[0].Work.DisplayedSeconds != 330 {
		t.Fatalf("unexpected items %#v", body.Items)
	}
}

// TestHandlerCreateTrackable verifies POST /trackables returns 201.
func TestHandlerCreateTrackable(t *testing.T) {
	stub := &stubTimerService{trackable: sampleTrackable()}
	handler := NewHandler(stub)

	req := httptest.NewRequest(http.MethodPost, "/trackables", strings.NewReader(`{"kind":"task","title":"Build login","assignee_id":"dev-1"}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusCreated)
	}
	if stub.lastCreate.Title != "Build login" || stub.lastCreate.AssigneeID != "dev-1" {
		t.Fatalf("unexpected create request %#v", stub.lastCreate)
	}
	got := decodeBody[common.Trackable](t, rec)
	if got.ID != "t-1" {
		t.Fatalf("unexpected trackable %#v", got)
	}
}

// TestHandlerPatchTrackableSendsOnlyGivenFields verifies partial detail edits.
func TestHandlerPatchTrackableSendsOnlyGivenFields(t *testing.T) {
	stub := &stubTimerService{trackable: sampleTrackable()}
	req := httptest.NewRequest(http.MethodPatch, "/trackables/t-1", strings.NewReader(`{"title":"Build login v2"}`))
	rec := httptest.NewRecorder()
	NewHandler(stub).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	got := stub.lastUpdate
	if got.TrackableID != "t-1" || got.Title == nil || *got.Title != "Build login v2" {
		t.Fatalf("unexpected update request %#v", got)
	}
	if got.Description != nil || got.AssigneeID != nil {
		t.Fatalf("expected omitted fields to stay nil, got %#v", got)
	}

	rec = httptest.NewRecorder()
	NewHandler(stub).ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/trackables/t-1", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusMethodNotAllowed)
	}
}

// TestHandlerCreateRejectsMalformedJSON verifies strict body decoding.
func TestHandlerCreateRejectsMalformedJSON(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"unknown field", `{"title":"x","priority":"high"}`},
		{"trailing content", `{"title":"x"}{"title":"y"}`},
		{"not json", `title=x`},
		{"empty", ``},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			stub := &stubTimerService{}
			req := httptest.NewRequest(http.MethodPost, "/trackables", strings.NewReader(tc.body))
			rec := httptest.NewRecorder()
			NewHandler(stub).ServeHTTP(rec, req)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
			}
			env := decodeBody[ErrorEnvelope](t, rec)
			if env.Error.Code != "invalid_request" {
				t.Fatalf("unexpected error code %q", env.Error.Code)
			}
		})
	}
}

// TestHandlerTransitionRouting verifies timer and action path segments plus body fields.
func TestHandlerTransitionRouting(t *testing.T) {
	stub := &stubTimerService{trackable: sampleTrackable()}
	handler := NewHandler(stub)

	req := httptest.NewRequest(http.MethodPost, "/trackables/t-1/qa/submit", strings.NewReader(`{"reviewer_id":"qa-1","actor_id":"lead-1"}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	want := common.TransitionRequest{
		TrackableID: "t-1",
		Timer:       common.TimerQA,
		Action:      common.ActionSubmit,
		ReviewerID:  "qa-1",
		ActorID:     "lead-1",
	}
	if stub.lastTransition != want {
		t.Fatalf("unexpected transition request %#v", stub.lastTransition)
	}

	req = httptest.NewRequest(http.MethodPost, "/trackables/t-1/work/pause", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if stub.lastTransition.Timer != common.TimerWork || stub.lastTransition.Action != common.ActionPause {
		t.Fatalf("unexpected transition request %#v", stub.lastTransition)
	}
}

// TestHandlerConflictIncludesBlockingItem verifies 409 responses name the blocking trackable.
func TestHandlerConflictIncludesBlockingItem(t *testing.T) {
	stub := &stubTimerService{
		err: fmt.Errorf("start qa: %w", common.NewConflictError(common.ConflictDetails{
			ReviewerID:    "qa-1",
			BlockingID:    "b-7",
			BlockingKind:  "bug",
			BlockingTitle: "Login crash",
		}, errors.New(`reviewer "qa-1" is already testing bug "b-7"`))),
	}
	req := httptest.NewRequest(http.MethodPost, "/trackables/t-2/qa/start", nil)
	rec := httptest.NewRecorder()
	NewHandler(stub).ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusConflict)
	}
	env := decodeBody[ErrorEnvelope](t, rec)
	if env.Error.Code != "conflict" {
		t.Fatalf("unexpected error code %q", env.Error.Code)
	}
	if env.Error.Context["blocking_id"] != "b-7" || env.Error.Context["blocking_title"] != "Login crash" {
		t.Fatalf("unexpected context %#v", env.Error.Context)
	}
}

// TestHandlerErrorMapping verifies status codes for the service error sentinels.
func TestHandlerErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"invalid state", fmt.Errorf("pause work: %w", common.ErrInvalidState), http.StatusConflict, "invalid_state"},
		{"concurrent update", fmt.Errorf("start work: %w", common.ErrConcurrentUpdate), http.StatusConflict, "concurrent_update"},
		{"not found", fmt.Errorf("get: %w", common.ErrNotFound), http.StatusNotFound, "not_found"},
		{"invalid request", fmt.Errorf("verdict: %w", common.ErrInvalidRequest), http.StatusBadRequest, "invalid_request"},
		{"unavailable", common.ErrServiceUnavailable, http.StatusServiceUnavailable, "service_unavailable"},
		{"unknown", errors.New("disk on fire"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			stub := &stubTimerService{err: tc.err}
			req := httptest.NewRequest(http.MethodPost, "/trackables/t-1/work/pause", nil)
			rec := httptest.NewRecorder()
			NewHandler(stub).ServeHTTP(rec, req)
			if rec.Code != tc.status {
				t.Fatalf("status = %d, want %d", rec.Code, tc.status)
			}
			env := decodeBody[ErrorEnvelope](t, rec)
			if env.Error.Code != tc.code {
				t.Fatalf("code = %q, want %q", env.Error.Code, tc.code)
			}
		})
	}
}

// TestHandlerTrackableSubresources verifies time, time_log, and recompute routes.
func TestHandlerTrackableSubresources(t *testing.T) {
	stub := &stubTimerService{
		summary:        common.TimeSummary{TrackableID: "t-1", Work: common.TimerReading{DisplayedSeconds: 600}},
		entries:        []common.TimeLogEntry{{ID: 1, TrackableID: "t-1", Timer: "work", Action: "start"}},
		reconciliation: []common.Reconciliation{{TrackableID: "t-1", Timer: "work"}, {TrackableID: "t-1", Timer: "qa"}},
	}
	handler := NewHandler(stub)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/trackables/t-1/time", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("time status = %d, want %d", rec.Code, http.StatusOK)
	}
	summary := decodeBody[common.TimeSummary](t, rec)
	if summary.Work.DisplayedSeconds != 600 {
		t.Fatalf("unexpected summary %#v", summary)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/trackables/t-1/time_log?timer=work", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("time_log status = %d, want %d", rec.Code, http.StatusOK)
	}
	if stub.lastTimeLog.TrackableID != "t-1" || stub.lastTimeLog.Timer != "work" {
		t.Fatalf("unexpected time log request %#v", stub.lastTimeLog)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/trackables/t-1/recompute", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("recompute status = %d, want %d", rec.Code, http.StatusOK)
	}
	if stub.lastRecomputed != "t-1" {
		t.Fatalf("unexpected recompute id %q", stub.lastRecomputed)
	}
	body := decodeBody[struct {
		Reconciliations []common.Reconciliation `json:"reconciliations"`
	}](t, rec)
	if len(body.Reconciliations) != 2 {
		t.Fatalf("unexpected reconciliations %#v", body.Reconciliations)
	}
}

// TestHandlerReconcileDefaultsToDryRun verifies POST /reconcile only applies on request.
func TestHandlerReconcileDefaultsToDryRun(t *testing.T) {
	stub := &stubTimerService{}
	handler := NewHandler(stub)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/reconcile", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if stub.lastDryRun == nil || !*stub.lastDryRun {
		t.Fatalf("expected dry run, got %v", stub.lastDryRun)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/reconcile", strings.NewReader(`{"apply":true}`)))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if *stub.lastDryRun {
		t.Fatal("expected apply run")
	}
	body := decodeBody[map[string]any](t, rec)
	if body["dry_run"] != false {
		t.Fatalf("unexpected body %#v", body)
	}
}

// TestHandlerRoutingFailures verifies 404 and 405 responses.
func TestHandlerRoutingFailures(t *testing.T) {
	handler := NewHandler(&stubTimerService{})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/trackables", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusMethodNotAllowed)
	}
	if got := rec.Header().Get("Allow"); got != "GET, POST" {
		t.Fatalf("Allow = %q, want %q", got, "GET, POST")
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/trackables/t-1/work/start", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusMethodNotAllowed)
	}

	for _, path := range []string{"/projects", "/trackables/t-1/break/start", "/trackables/t-1/notes", "/trackables/t-1/work/start/now"} {
		rec = httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, path, nil))
		if rec.Code != http.StatusNotFound {
			t.Fatalf("%s status = %d, want %d", path, rec.Code, http.StatusNotFound)
		}
	}
}

// TestHandlerWithoutServiceIsUnavailable verifies fail-closed behavior with a nil service.
func TestHandlerWithoutServiceIsUnavailable(t *testing.T) {
	rec := httptest.NewRecorder()
	NewHandler(nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/active", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
}
