// Package httpapi provides the REST HTTP adapter for the server surfaces.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/hylla/worktally/internal/adapters/server/common"
)

// maxRequestBodyBytes limits decoded JSON payload size for fail-closed request handling.
const maxRequestBodyBytes int64 = 1 << 20

// Handler serves the versioned API subrouter mounted under `/api/v1`.
type Handler struct {
	timers common.TimerService
}

// APIError represents one structured API failure response.
type APIError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Hint    string         `json:"hint,omitempty"`
	Context map[string]any `json:"context,omitempty"`
}

// ErrorEnvelope wraps one structured API error.
type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

// reconcileRequest is the optional POST `/reconcile` body.
type reconcileRequest struct {
	Apply bool `json:"apply"`
}

// NewHandler constructs one HTTP API adapter over the timer service.
func NewHandler(timers common.TimerService) *Handler {
	return &Handler{timers: timers}
}

// ServeHTTP routes one versioned API request to the matching handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.timers == nil {
		writeJSONError(w, http.StatusServiceUnavailable, APIError{
			Code:    "service_unavailable",
			Message: "timer service is not configured",
		})
		return
	}
	path := normalizePath(r.URL.Path)
	switch path {
	case "trackables":
		switch r.Method {
		case http.MethodGet:
			h.handleListTrackables(w, r)
		case http.MethodPost:
			h.handleCreateTrackable(w, r)
		default:
			writeMethodNotAllowed(w, http.MethodGet, http.MethodPost)
		}
		return
	case "active":
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w, http.MethodGet)
			return
		}
		h.handleListActive(w, r)
		return
	case "reconcile":
		if r.Method != http.MethodPost {
			writeMethodNotAllowed(w, http.MethodPost)
			return
		}
		h.handleReconcile(w, r)
		return
	}

	route, ok := resolveTrackableRoute(path)
	if !ok {
		writeJSONError(w, http.StatusNotFound, APIError{
			Code:    "not_found",
			Message: "endpoint not found",
		})
		return
	}
	switch route.kind {
	case routeTrackable:
		switch r.Method {
		case http.MethodGet:
			h.handleGetTrackable(w, r, route.id)
		case http.MethodPatch:
			h.handleUpdateTrackable(w, r, route.id)
		default:
			writeMethodNotAllowed(w, http.MethodGet, http.MethodPatch)
		}
	case routeTime:
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w, http.MethodGet)
			return
		}
		h.handleTimeSummary(w, r, route.id)
	case routeTimeLog:
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w, http.MethodGet)
			return
		}
		h.handleTimeLog(w, r, route.id)
	case routeRecompute:
		if r.Method != http.MethodPost {
			writeMethodNotAllowed(w, http.MethodPost)
			return
		}
		h.handleRecompute(w, r, route.id)
	case routeTransition:
		if r.Method != http.MethodPost {
			writeMethodNotAllowed(w, http.MethodPost)
			return
		}
		h.handleTransition(w, r, route)
	}
}

// handleListTrackables serves GET `/trackables`.
func (h *Handler) handleListTrackables(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	items, err := h.timers.ListTrackables(r.Context(), common.ListTrackablesRequest{
		Kind:         q.Get("kind"),
		AssigneeID:   q.Get("assignee_id"),
		QAReviewerID: q.Get("qa_reviewer_id"),
		WorkState:    q.Get("work_state"),
		QAStatus:     q.Get("qa_status"),
	})
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": items,
	})
}

// handleCreateTrackable serves POST `/trackables`.
func (h *Handler) handleCreateTrackable(w http.ResponseWriter, r *http.Request) {
	var req common.CreateTrackableRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	item, err := h.timers.CreateTrackable(r.Context(), req)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

// handleUpdateTrackable serves PATCH `/trackables/{id}`.
func (h *Handler) handleUpdateTrackable(w http.ResponseWriter, r *http.Request, id string) {
	var req common.UpdateTrackableRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	req.TrackableID = id
	item, err := h.timers.UpdateTrackable(r.Context(), req)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// handleListActive serves GET `/active`.
func (h *Handler) handleListActive(w http.ResponseWriter, r *http.Request) {
	items, err := h.timers.ListActive(r.Context())
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": items,
	})
}

// handleReconcile serves POST `/reconcile`. Without `{"apply": true}` it is a dry run.
func (h *Handler) handleReconcile(w http.ResponseWriter, r *http.Request) {
	var req reconcileRequest
	if err := decodeOptionalJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	recs, err := h.timers.ReconcileAll(r.Context(), !req.Apply)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"dry_run":         !req.Apply,
		"reconciliations": recs,
	})
}

// handleGetTrackable serves GET `/trackables/{id}`.
func (h *Handler) handleGetTrackable(w http.ResponseWriter, r *http.Request, id string) {
	item, err := h.timers.GetTrackable(r.Context(), id)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// handleTimeSummary serves GET `/trackables/{id}/time`.
func (h *Handler) handleTimeSummary(w http.ResponseWriter, r *http.Request, id string) {
	summary, err := h.timers.TimeSummary(r.Context(), id)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// handleTimeLog serves GET `/trackables/{id}/time_log`.
func (h *Handler) handleTimeLog(w http.ResponseWriter, r *http.Request, id string) {
	entries, err := h.timers.ListTimeLog(r.Context(), common.TimeLogRequest{
		TrackableID: id,
		Timer:       r.URL.Query().Get("timer"),
	})
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
	})
}

// handleRecompute serves POST `/trackables/{id}/recompute`.
func (h *Handler) handleRecompute(w http.ResponseWriter, r *http.Request, id string) {
	recs, err := h.timers.RecomputeTotal(r.Context(), id)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"reconciliations": recs,
	})
}

// handleTransition serves POST `/trackables/{id}/{work|qa}/{action}`.
func (h *Handler) handleTransition(w http.ResponseWriter, r *http.Request, route trackableRoute) {
	var req common.TransitionRequest
	if err := decodeOptionalJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	req.TrackableID = route.id
	req.Timer = route.timer
	req.Action = route.action
	item, err := h.timers.Transition(r.Context(), req)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// routeKind enumerates trackable sub-resources.
type routeKind int

const (
	routeTrackable routeKind = iota
	routeTime
	routeTimeLog
	routeRecompute
	routeTransition
)

// trackableRoute is one parsed `/trackables/{id}/...` path.
type trackableRoute struct {
	kind   routeKind
	id     string
	timer  string
	action string
}

// resolveTrackableRoute parses `/trackables/{id}[/...]`.
func resolveTrackableRoute(path string) (trackableRoute, bool) {
	const prefix = "trackables/"
	if !strings.HasPrefix(path, prefix) {
		return trackableRoute{}, false
	}
	parts := strings.Split(strings.TrimPrefix(path, prefix), "/")
	id := strings.TrimSpace(parts[0])
	if id == "" {
		return trackableRoute{}, false
	}
	route := trackableRoute{id: id}
	switch len(parts) {
	case 1:
		route.kind = routeTrackable
	case 2:
		switch parts[1] {
		case "time":
			route.kind = routeTime
		case "time_log":
			route.kind = routeTimeLog
		case "recompute":
			route.kind = routeRecompute
		default:
			return trackableRoute{}, false
		}
	case 3:
		if parts[1] != common.TimerWork && parts[1] != common.TimerQA {
			return trackableRoute{}, false
		}
		if strings.TrimSpace(parts[2]) == "" {
			return trackableRoute{}, false
		}
		route.kind = routeTransition
		route.timer = parts[1]
		route.action = parts[2]
	default:
		return trackableRoute{}, false
	}
	return route, true
}

// normalizePath canonicalizes one request path for route matching.
func normalizePath(path string) string {
	path = strings.TrimSpace(path)
	path = strings.Trim(path, "/")
	return path
}

// writeErrorFrom maps adapter errors into structured HTTP responses.
func writeErrorFrom(w http.ResponseWriter, err error) {
	if details, ok := common.ConflictFrom(err); ok {
		writeJSONError(w, http.StatusConflict, APIError{
			Code:    "conflict",
			Message: err.Error(),
			Hint:    "Pause or finish the blocking item before starting another test session.",
			Context: map[string]any{
				"reviewer_id":    details.ReviewerID,
				"blocking_id":    details.BlockingID,
				"blocking_kind":  details.BlockingKind,
				"blocking_title": details.BlockingTitle,
			},
		})
		return
	}
	switch {
	case err == nil:
		writeJSONError(w, http.StatusInternalServerError, APIError{
			Code:    "internal_error",
			Message: "unknown error",
		})
	case errors.Is(err, common.ErrInvalidState):
		writeJSONError(w, http.StatusConflict, APIError{
			Code:    "invalid_state",
			Message: err.Error(),
		})
	case errors.Is(err, common.ErrConcurrentUpdate):
		writeJSONError(w, http.StatusConflict, APIError{
			Code:    "concurrent_update",
			Message: err.Error(),
			Hint:    "Reload the trackable and retry.",
		})
	case errors.Is(err, common.ErrNotFound):
		writeJSONError(w, http.StatusNotFound, APIError{
			Code:    "not_found",
			Message: err.Error(),
		})
	case errors.Is(err, common.ErrInvalidRequest):
		writeJSONError(w, http.StatusBadRequest, APIError{
			Code:    "invalid_request",
			Message: err.Error(),
		})
	case errors.Is(err, common.ErrServiceUnavailable):
		writeJSONError(w, http.StatusServiceUnavailable, APIError{
			Code:    "service_unavailable",
			Message: err.Error(),
		})
	default:
		writeJSONError(w, http.StatusInternalServerError, APIError{
			Code:    "internal_error",
			Message: err.Error(),
		})
	}
}

// writeMethodNotAllowed writes a structured 405 response with `Allow` headers.
func writeMethodNotAllowed(w http.ResponseWriter, methods ...string) {
	if len(methods) > 0 {
		w.Header().Set("Allow", strings.Join(methods, ", "))
	}
	writeJSONError(w, http.StatusMethodNotAllowed, APIError{
		Code:    "method_not_allowed",
		Message: "method not allowed",
	})
}

// writeJSONError writes one structured error envelope.
func writeJSONError(w http.ResponseWriter, statusCode int, apiErr APIError) {
	writeJSON(w, statusCode, ErrorEnvelope{Error: apiErr})
}

// writeJSON writes one JSON response envelope.
func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, fmt.Sprintf(`{"error":{"code":"encode_error","message":"%s"}}`, err.Error()), http.StatusInternalServerError)
	}
}

// decodeJSONBody decodes one required JSON request body with strict shape checks.
func decodeJSONBody(ctx context.Context, w http.ResponseWriter, r *http.Request, out any) error {
	reader := http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	defer reader.Close()

	decoder := json.NewDecoder(reader)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(out); err != nil {
		return fmt.Errorf("decode request body: %w", errors.Join(common.ErrInvalidRequest, err))
	}
	// Reject trailing payloads so malformed JSON bodies fail closed.
	if err := decoder.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode request body: trailing content: %w", common.ErrInvalidRequest)
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("request canceled: %w", ctx.Err())
	default:
		return nil
	}
}

// decodeOptionalJSONBody decodes one optional JSON body and ignores empty payloads.
func decodeOptionalJSONBody(ctx context.Context, w http.ResponseWriter, r *http.Request, out any) error {
	reader := http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	defer reader.Close()

	decoder := json.NewDecoder(reader)
	decoder.DisallowUnknownFields()
	err := decoder.Decode(out)
	if err == nil {
		select {
		case <-ctx.Done():
			return fmt.Errorf("request canceled: %w", ctx.Err())
		default:
			return nil
		}
	}
	if errors.Is(err, io.EOF) {
		return nil
	}
	return fmt.Errorf("decode request body: %w", errors.Join(common.ErrInvalidRequest, err))
}
