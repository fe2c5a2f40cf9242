// Package mcpapi provides a stateless MCP streamable-HTTP adapter.
package mcpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/hylla/worktally/internal/adapters/server/common"
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
)

// toolPrefix namespaces every registered tool.
const toolPrefix = "worktally."

// Config captures MCP transport configuration.
type Config struct {
	ServerName    string
	ServerVersion string
	EndpointPath  string
}

// Handler wraps one stateless MCP streamable HTTP handler.
type Handler struct {
	httpHandler http.Handler
}

// NewHandler builds one stateless MCP adapter exposing the timer tools.
func NewHandler(cfg Config, timers common.TimerService) (*Handler, error) {
	if timers == nil {
		return nil, fmt.Errorf("timer service is required")
	}
	cfg = normalizeConfig(cfg)

	mcpSrv := mcpserver.NewMCPServer(
		cfg.ServerName,
		cfg.ServerVersion,
		mcpserver.WithToolCapabilities(false),
	)
	registerTrackableTools(mcpSrv, timers)
	registerTimerTools(mcpSrv, timers)
	registerReconcileTools(mcpSrv, timers)

	streamable := mcpserver.NewStreamableHTTPServer(
		mcpSrv,
		mcpserver.WithEndpointPath(cfg.EndpointPath),
		mcpserver.WithStateLess(true),
	)
	return &Handler{httpHandler: streamable}, nil
}

// ServeHTTP handles one MCP streamable HTTP request.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.httpHandler == nil {
		http.Error(w, "mcp handler unavailable", http.StatusServiceUnavailable)
		return
	}
	h.httpHandler.ServeHTTP(w, r)
}

// normalizeConfig applies deterministic defaults to MCP adapter config.
func normalizeConfig(cfg Config) Config {
	cfg.ServerName = strings.TrimSpace(cfg.ServerName)
	if cfg.ServerName == "" {
		cfg.ServerName = "worktally"
	}
	cfg.ServerVersion = strings.TrimSpace(cfg.ServerVersion)
	if cfg.ServerVersion == "" {
		cfg.ServerVersion = "dev"
	}
	cfg.EndpointPath = strings.TrimSpace(cfg.EndpointPath)
	if cfg.EndpointPath == "" {
		cfg.EndpointPath = "/mcp"
	}
	cfg.EndpointPath = "/" + strings.Trim(cfg.EndpointPath, "/")
	return cfg
}

// registerTrackableTools registers create/get/list/active/summary/log tools.
func registerTrackableTools(srv *mcpserver.MCPServer, timers common.TimerService) {
	srv.AddTool(
		mcp.NewTool(
			toolPrefix+"create_trackable",
			mcp.WithDescription("Create a task or bug with idle timers."),
			mcp.WithString("title", mcp.Required(), mcp.Description("Short title")),
			mcp.WithString("kind", mcp.Description("task or bug (defaults to task)"), mcp.Enum("task", "bug")),
			mcp.WithString("description", mcp.Description("Optional markdown description")),
			mcp.WithString("assignee_id", mcp.Description("Assignee identifier")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			title, err := req.RequireString("title")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			item, err := timers.CreateTrackable(ctx, common.CreateTrackableRequest{
				Kind:        req.GetString("kind", ""),
				Title:       title,
				Description: req.GetString("description", ""),
				AssigneeID:  req.GetString("assignee_id", ""),
			})
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonResult("create_trackable", item)
		},
	)

	srv.AddTool(
		mcp.NewTool(
			toolPrefix+"update_trackable",
			mcp.WithDescription("Edit title, description or assignee. Omitted fields are kept; timers are not touched."),
			mcp.WithString("trackable_id", mcp.Required(), mcp.Description("Trackable identifier")),
			mcp.WithString("title", mcp.Description("New title")),
			mcp.WithString("description", mcp.Description("New markdown description")),
			mcp.WithString("assignee_id", mcp.Description("New assignee identifier (empty clears it)")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			id, err := req.RequireString("trackable_id")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			item, err := timers.UpdateTrackable(ctx, common.UpdateTrackableRequest{
				TrackableID: id,
				Title:       optionalString(req, "title"),
				Description: optionalString(req, "description"),
				AssigneeID:  optionalString(req, "assignee_id"),
			})
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonResult("update_trackable", item)
		},
	)

	srv.AddTool(
		mcp.NewTool(
			toolPrefix+"get_trackable",
			mcp.WithDescription("Return one trackable with live work and QA readings."),
			mcp.WithString("trackable_id", mcp.Required(), mcp.Description("Trackable identifier")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			id, err := req.RequireString("trackable_id")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			item, err := timers.GetTrackable(ctx, id)
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonResult("get_trackable", item)
		},
	)

	srv.AddTool(
		mcp.NewTool(
			toolPrefix+"list_trackables",
			mcp.WithDescription("List trackables, optionally filtered."),
			mcp.WithString("kind", mcp.Description("Filter by kind"), mcp.Enum("task", "bug")),
			mcp.WithString("assignee_id", mcp.Description("Filter by assignee")),
			mcp.WithString("qa_reviewer_id", mcp.Description("Filter by QA reviewer")),
			mcp.WithString("work_state", mcp.Description("Filter by work state"), mcp.Enum("idle", "working", "paused", "finished")),
			mcp.WithString("qa_status", mcp.Description("Filter by QA status"), mcp.Enum("ready_for_test", "testing", "testing_paused", "approved", "rejected")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			items, err := timers.ListTrackables(ctx, common.ListTrackablesRequest{
				Kind:         req.GetString("kind", ""),
				AssigneeID:   req.GetString("assignee_id", ""),
				QAReviewerID: req.GetString("qa_reviewer_id", ""),
				WorkState:    req.GetString("work_state", ""),
				QAStatus:     req.GetString("qa_status", ""),
			})
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonResult("list_trackables", map[string]any{"items": items})
		},
	)

	srv.AddTool(
		mcp.NewTool(
			toolPrefix+"list_active",
			mcp.WithDescription("List trackables with a running or paused timer, longest first."),
		),
		func(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			items, err := timers.ListActive(ctx)
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonResult("list_active", map[string]any{"items": items})
		},
	)

	srv.AddTool(
		mcp.NewTool(
			toolPrefix+"time_summary",
			mcp.WithDescription("Return stored totals, open intervals, and displayed totals for both timers."),
			mcp.WithString("trackable_id", mcp.Required(), mcp.Description("Trackable identifier")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			id, err := req.RequireString("trackable_id")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			summary, err := timers.TimeSummary(ctx, id)
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonResult("time_summary", summary)
		},
	)

	srv.AddTool(
		mcp.NewTool(
			toolPrefix+"list_time_log",
			mcp.WithDescription("List the append-only time log for one trackable in insertion order."),
			mcp.WithString("trackable_id", mcp.Required(), mcp.Description("Trackable identifier")),
			mcp.WithString("timer", mcp.Description("Restrict to one timer"), mcp.Enum(common.TimerWork, common.TimerQA)),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			id, err := req.RequireString("trackable_id")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			entries, err := timers.ListTimeLog(ctx, common.TimeLogRequest{
				TrackableID: id,
				Timer:       req.GetString("timer", ""),
			})
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonResult("list_time_log", map[string]any{"entries": entries})
		},
	)
}

// registerTimerTools registers the work and QA transition tools.
func registerTimerTools(srv *mcpserver.MCPServer, timers common.TimerService) {
	srv.AddTool(
		mcp.NewTool(
			toolPrefix+"work_transition",
			mcp.WithDescription("Start, pause, resume, or finish the work timer."),
			mcp.WithString("trackable_id", mcp.Required(), mcp.Description("Trackable identifier")),
			mcp.WithString("action", mcp.Required(), mcp.Description("Transition to apply"),
				mcp.Enum(common.ActionStart, common.ActionPause, common.ActionResume, common.ActionFinish)),
			mcp.WithString("actor_id", mcp.Description("Acting principal recorded in the time log")),
			mcp.WithString("actor_type", mcp.Description("user, agent, or system"), mcp.Enum("user", "agent", "system")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return callTransition(ctx, timers, req, common.TimerWork)
		},
	)

	srv.AddTool(
		mcp.NewTool(
			toolPrefix+"qa_transition",
			mcp.WithDescription("Submit for QA, or start, pause, resume, or finish a test session. A reviewer may test one item at a time."),
			mcp.WithString("trackable_id", mcp.Required(), mcp.Description("Trackable identifier")),
			mcp.WithString("action", mcp.Required(), mcp.Description("Transition to apply"),
				mcp.Enum(common.ActionSubmit, common.ActionStart, common.ActionPause, common.ActionResume, common.ActionFinish)),
			mcp.WithString("reviewer_id", mcp.Description("Reviewer to assign (submit only)")),
			mcp.WithString("verdict", mcp.Description("Outcome (finish only)"), mcp.Enum("approved", "rejected")),
			mcp.WithString("actor_id", mcp.Description("Acting principal recorded in the time log")),
			mcp.WithString("actor_type", mcp.Description("user, agent, or system"), mcp.Enum("user", "agent", "system")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return callTransition(ctx, timers, req, common.TimerQA)
		},
	)
}

// registerReconcileTools registers recompute and reconcile tools.
func registerReconcileTools(srv *mcpserver.MCPServer, timers common.TimerService) {
	srv.AddTool(
		mcp.NewTool(
			toolPrefix+"recompute_total",
			mcp.WithDescription("Rebuild one trackable's stored totals from its time log. Safe to repeat."),
			mcp.WithString("trackable_id", mcp.Required(), mcp.Description("Trackable identifier")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			id, err := req.RequireString("trackable_id")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			recs, err := timers.RecomputeTotal(ctx, id)
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonResult("recompute_total", map[string]any{"reconciliations": recs})
		},
	)

	srv.AddTool(
		mcp.NewTool(
			toolPrefix+"reconcile_all",
			mcp.WithDescription("Compare every stored total with its time log. Dry run unless apply is true."),
			mcp.WithBoolean("apply", mcp.Description("Write ledger sums back to drifted totals")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			apply := req.GetBool("apply", false)
			recs, err := timers.ReconcileAll(ctx, !apply)
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonResult("reconcile_all", map[string]any{
				"dry_run":         !apply,
				"reconciliations": recs,
			})
		},
	)
}

// callTransition maps one transition tool call onto the service.
func callTransition(ctx context.Context, timers common.TimerService, req mcp.CallToolRequest, timer string) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("trackable_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	action, err := req.RequireString("action")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	actorID := strings.TrimSpace(req.GetString("actor_id", ""))
	actorType := strings.TrimSpace(req.GetString("actor_type", ""))
	if actorID != "" && actorType == "" {
		actorType = "agent"
	}
	item, err := timers.Transition(ctx, common.TransitionRequest{
		TrackableID: id,
		Timer:       timer,
		Action:      action,
		ReviewerID:  req.GetString("reviewer_id", ""),
		Verdict:     req.GetString("verdict", ""),
		ActorID:     actorID,
		ActorType:   actorType,
	})
	if err != nil {
		return toolResultFromError(err), nil
	}
	return jsonResult(timer+"_transition", item)
}

// jsonResult encodes one tool payload.
func jsonResult(tool string, payload any) (*mcp.CallToolResult, error) {
	result, err := mcp.NewToolResultJSON(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s result: %w", tool, err)
	}
	return result, nil
}

// toolResultFromError maps adapter errors into stable tool error prefixes.
func toolResultFromError(err error) *mcp.CallToolResult {
	if details, ok := common.ConflictFrom(err); ok {
		return mcp.NewToolResultError(fmt.Sprintf("conflict: blocking_id=%s blocking_kind=%s: %s", details.BlockingID, details.BlockingKind, err.Error()))
	}
	switch {
	case err == nil:
		return mcp.NewToolResultError("unknown error")
	case errors.Is(err, common.ErrInvalidState):
		return mcp.NewToolResultError("invalid_state: " + err.Error())
	case errors.Is(err, common.ErrConcurrentUpdate):
		return mcp.NewToolResultError("concurrent_update: " + err.Error())
	case errors.Is(err, common.ErrInvalidRequest):
		return mcp.NewToolResultError("invalid_request: " + err.Error())
	case errors.Is(err, common.ErrNotFound):
		return mcp.NewToolResultError("not_found: " + err.Error())
	case errors.Is(err, common.ErrServiceUnavailable):
		return mcp.NewToolResultError("service_unavailable: " + err.Error())
	default:
		return mcp.NewToolResultError("internal_error: " + err.Error())
	}
}

// optionalString returns the named string argument, or nil when the caller omitted it.
func optionalString(req mcp.CallToolRequest, key string) *string {
	v, ok := req.GetArguments()[key].(string)
	if !ok {
		return nil
	}
	return &v
}
