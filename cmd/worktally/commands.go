package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hylla/worktally/internal/adapters/server"
	"github.com/hylla/worktally/internal/adapters/server/common"
	"github.com/hylla/worktally/internal/app"
	"github.com/hylla/worktally/internal/tui"
	"github.com/spf13/cobra"
)

func newPathsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "paths",
		GroupID: "ops",
		Short:   "Print resolved config, data and database paths",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			paths, err := opts.resolvedPaths()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if opts.jsonOut {
				return printJSON(out, map[string]any{
					"app":      paths.AppName,
					"dev_mode": opts.devMode,
					"config":   paths.ConfigPath,
					"data_dir": paths.DataDir,
					"db":       paths.DBPath,
					"log_dir":  paths.LogDir,
				})
			}
			_, _ = fmt.Fprintf(out, "app: %s\n", paths.AppName)
			_, _ = fmt.Fprintf(out, "dev_mode: %t\n", opts.devMode)
			_, _ = fmt.Fprintf(out, "config: %s\n", paths.ConfigPath)
			_, _ = fmt.Fprintf(out, "data_dir: %s\n", paths.DataDir)
			_, _ = fmt.Fprintf(out, "db: %s\n", paths.DBPath)
			_, _ = fmt.Fprintf(out, "log_dir: %s\n", paths.LogDir)
			return nil
		},
	}
}

func newCreateCmd(opts *rootOptions) *cobra.Command {
	var in common.CreateTrackableRequest
	cmd := &cobra.Command{
		Use:     "create",
		GroupID: "items",
		Short:   "Create a task or bug",
		Example: `  worktally create --title "Login form" --assignee dev-1
  worktally create --kind bug --title "Crash on save"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRuntime(cmd, opts, func(ctx context.Context, rt *appRuntime) error {
				created, err := rt.timers.CreateTrackable(ctx, in)
				if err != nil {
					return err
				}
				rt.logger.Info("trackable created", "id", created.ID, "kind", created.Kind)
				return printOne(cmd, opts, created, printTrackable)
			})
		},
	}
	cmd.Flags().StringVar(&in.Kind, "kind", "task", "trackable kind: task or bug")
	cmd.Flags().StringVar(&in.Title, "title", "", "title")
	cmd.Flags().StringVar(&in.Description, "description", "", "markdown description")
	cmd.Flags().StringVar(&in.AssigneeID, "assignee", "", "assignee id")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func newListCmd(opts *rootOptions) *cobra.Command {
	var in common.ListTrackablesRequest
	cmd := &cobra.Command{
		Use:     "list",
		GroupID: "items",
		Short:   "List trackables",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRuntime(cmd, opts, func(ctx context.Context, rt *appRuntime) error {
				items, err := rt.timers.ListTrackables(ctx, in)
				if err != nil {
					return err
				}
				return printOne(cmd, opts, items, printTrackables)
			})
		},
	}
	cmd.Flags().StringVar(&in.Kind, "kind", "", "filter by kind")
	cmd.Flags().StringVar(&in.AssigneeID, "assignee", "", "filter by assignee id")
	cmd.Flags().StringVar(&in.QAReviewerID, "reviewer", "", "filter by QA reviewer id")
	cmd.Flags().StringVar(&in.WorkState, "state", "", "filter by work state")
	cmd.Flags().StringVar(&in.QAStatus, "qa-status", "", "filter by QA status")
	return cmd
}

func newShowCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "show <id>",
		GroupID: "items",
		Short:   "Show one trackable with live timer readings",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, opts, func(ctx context.Context, rt *appRuntime) error {
				t, err := rt.timers.GetTrackable(ctx, args[0])
				if err != nil {
					return err
				}
				return printOne(cmd, opts, t, printTrackable)
			})
		},
	}
}

func newEditCmd(opts *rootOptions) *cobra.Command {
	var title, description, assignee string
	cmd := &cobra.Command{
		Use:     "edit <id>",
		GroupID: "items",
		Short:   "Change the title, description or assignee of a trackable",
		Example: `  worktally edit 3f2a --title "Login form v2"
  worktally edit 3f2a --assignee ""`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := common.UpdateTrackableRequest{TrackableID: args[0]}
			flags := cmd.Flags()
			if flags.Changed("title") {
				in.Title = &title
			}
			if flags.Changed("description") {
				in.Description = &description
			}
			if flags.Changed("assignee") {
				in.AssigneeID = &assignee
			}
			if in.Title == nil && in.Description == nil && in.AssigneeID == nil {
				return errors.New("edit needs at least one of --title, --description or --assignee")
			}
			return withRuntime(cmd, opts, func(ctx context.Context, rt *appRuntime) error {
				updated, err := rt.timers.UpdateTrackable(ctx, in)
				if err != nil {
					return err
				}
				rt.logger.Info("trackable edited", "id", updated.ID, "version", updated.Version)
				return printOne(cmd, opts, updated, printTrackable)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "new title")
	cmd.Flags().StringVar(&description, "description", "", "new markdown description")
	cmd.Flags().StringVar(&assignee, "assignee", "", "new assignee id; empty clears it")
	return cmd
}

func newActiveCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "active",
		GroupID: "items",
		Short:   "List trackables with a running or paused timer",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRuntime(cmd, opts, func(ctx context.Context, rt *appRuntime) error {
				items, err := rt.timers.ListActive(ctx)
				if err != nil {
					return err
				}
				return printOne(cmd, opts, items, printTrackables)
			})
		},
	}
}

// transitionDef describes one timer subcommand.
type transitionDef struct {
	timer  string
	action string
	short  string
}

func newWorkCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "work",
		GroupID: "timers",
		Short:   "Drive the work timer",
	}
	for _, def := range []transitionDef{
		{common.TimerWork, common.ActionStart, "Start working (also accepted while paused)"},
		{common.TimerWork, common.ActionPause, "Pause work and bank the open interval"},
		{common.TimerWork, common.ActionResume, "Resume paused work"},
		{common.TimerWork, common.ActionFinish, "Finish work"},
	} {
		cmd.AddCommand(newTransitionCmd(opts, def, nil))
	}
	return cmd
}

func newQACmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "qa",
		GroupID: "timers",
		Short:   "Drive the QA testing timer",
	}
	var reviewer, verdict string
	submit := newTransitionCmd(opts, transitionDef{common.TimerQA, common.ActionSubmit, "Hand a finished item to a reviewer"}, func(req *common.TransitionRequest) {
		req.ReviewerID = reviewer
	})
	submit.Flags().StringVar(&reviewer, "reviewer", "", "QA reviewer id")
	_ = submit.MarkFlagRequired("reviewer")

	finish := newTransitionCmd(opts, transitionDef{common.TimerQA, common.ActionFinish, "Finish testing with a verdict"}, func(req *common.TransitionRequest) {
		req.Verdict = verdict
	})
	finish.Flags().StringVar(&verdict, "verdict", "", "approved or rejected")
	_ = finish.MarkFlagRequired("verdict")

	cmd.AddCommand(
		submit,
		newTransitionCmd(opts, transitionDef{common.TimerQA, common.ActionStart, "Start testing; fails if the reviewer is testing another item"}, nil),
		newTransitionCmd(opts, transitionDef{common.TimerQA, common.ActionPause, "Pause testing"}, nil),
		newTransitionCmd(opts, transitionDef{common.TimerQA, common.ActionResume, "Resume paused testing"}, nil),
		finish,
	)
	return cmd
}

// newTransitionCmd builds `<timer> <action> <id>`. decorate fills action-specific fields.
func newTransitionCmd(opts *rootOptions, def transitionDef, decorate func(*common.TransitionRequest)) *cobra.Command {
	return &cobra.Command{
		Use:   def.action + " <id>",
		Short: def.short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, opts, func(ctx context.Context, rt *appRuntime) error {
				req := common.TransitionRequest{
					TrackableID: args[0],
					Timer:       def.timer,
					Action:      def.action,
					ActorID:     rt.actor(),
					ActorType:   "user",
				}
				if decorate != nil {
					decorate(&req)
				}
				t, err := rt.timers.Transition(ctx, req)
				if err != nil {
					if details, ok := common.ConflictFrom(err); ok {
						rt.logger.Warn("reviewer busy", "reviewer", details.ReviewerID, "blocking_id", details.BlockingID)
					}
					return err
				}
				rt.logger.Info("timer transition", "id", t.ID, "timer", def.timer, "action", def.action)
				return printOne(cmd, opts, t, printTrackable)
			})
		},
	}
}

func newLogCmd(opts *rootOptions) *cobra.Command {
	var timer string
	cmd := &cobra.Command{
		Use:     "log <id>",
		GroupID: "timers",
		Short:   "Show the time log of one trackable",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, opts, func(ctx context.Context, rt *appRuntime) error {
				entries, err := rt.timers.ListTimeLog(ctx, common.TimeLogRequest{TrackableID: args[0], Timer: timer})
				if err != nil {
					return err
				}
				return printOne(cmd, opts, entries, printTimeLog)
			})
		},
	}
	cmd.Flags().StringVar(&timer, "timer", "", "only entries for work or qa")
	return cmd
}

func newRecomputeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "recompute <id>",
		GroupID: "ops",
		Short:   "Rebuild one trackable's totals from its time log",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, opts, func(ctx context.Context, rt *appRuntime) error {
				recs, err := rt.timers.RecomputeTotal(ctx, args[0])
				if err != nil {
					return err
				}
				return printOne(cmd, opts, recs, printReconciliations)
			})
		},
	}
}

func newReconcileCmd(opts *rootOptions) *cobra.Command {
	var apply bool
	cmd := &cobra.Command{
		Use:     "reconcile",
		GroupID: "ops",
		Short:   "Compare every stored total with the time log",
		Long:    "Reports drift between stored totals and the time log. Nothing is written unless --apply is set.",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRuntime(cmd, opts, func(ctx context.Context, rt *appRuntime) error {
				recs, err := rt.timers.ReconcileAll(ctx, !apply)
				if err != nil {
					return err
				}
				drifted := 0
				for _, rec := range recs {
					if rec.DriftSeconds != 0 {
						drifted++
					}
				}
				rt.logger.Info("reconcile finished", "checked", len(recs), "drifted", drifted, "applied", apply)
				return printOne(cmd, opts, recs, printReconciliations)
			})
		},
	}
	cmd.Flags().BoolVar(&apply, "apply", false, "write corrected totals")
	return cmd
}

func newServeCmd(opts *rootOptions) *cobra.Command {
	var bind, apiEndpoint, mcpEndpoint string
	cmd := &cobra.Command{
		Use:     "serve",
		GroupID: "ops",
		Short:   "Serve the REST API and MCP tools over HTTP",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRuntime(cmd, opts, func(ctx context.Context, rt *appRuntime) error {
				cfg := server.Config{
					HTTPBind:      rt.cfg.Server.HTTPBind,
					APIEndpoint:   rt.cfg.Server.APIEndpoint,
					MCPEndpoint:   rt.cfg.Server.MCPEndpoint,
					ServerName:    rt.paths.AppName,
					ServerVersion: version,
				}
				flags := cmd.Flags()
				if flags.Changed("http") {
					cfg.HTTPBind = bind
				}
				if flags.Changed("api-endpoint") {
					cfg.APIEndpoint = apiEndpoint
				}
				if flags.Changed("mcp-endpoint") {
					cfg.MCPEndpoint = mcpEndpoint
				}
				rt.logger.Info("serving", "addr", cfg.HTTPBind, "api", cfg.APIEndpoint, "mcp", cfg.MCPEndpoint)
				err := server.Run(ctx, cfg, server.Dependencies{
					Timers: rt.timers,
					Checks: rt.checks,
				})
				if err != nil {
					rt.logger.Error("server stopped", "err", err)
					return err
				}
				rt.logger.Info("server stopped")
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&bind, "http", "", "listen address (defaults to server.http_bind)")
	cmd.Flags().StringVar(&apiEndpoint, "api-endpoint", "", "REST base path (defaults to server.api_endpoint)")
	cmd.Flags().StringVar(&mcpEndpoint, "mcp-endpoint", "", "MCP path (defaults to server.mcp_endpoint)")
	return cmd
}

func newWatchCmd(opts *rootOptions) *cobra.Command {
	var assignee, reviewer string
	cmd := &cobra.Command{
		Use:     "watch",
		GroupID: "timers",
		Short:   "Open the live timer board",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRuntime(cmd, opts, func(_ context.Context, rt *appRuntime) error {
				model := tui.NewModel(rt.service,
					tui.WithActorID(rt.actor()),
					tui.WithFilter(filterFor(assignee, reviewer)),
				)
				rt.logger.SetConsoleEnabled(false)
				defer rt.logger.SetConsoleEnabled(true)
				rt.logger.Info("watch board started")
				if _, err := programFactory(model).Run(); err != nil {
					rt.logger.Error("watch board failed", "err", err)
					return fmt.Errorf("run watch board: %w", err)
				}
				rt.logger.Info("watch board closed")
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&assignee, "assignee", "", "only items assigned to this id")
	cmd.Flags().StringVar(&reviewer, "reviewer", "", "only items with this QA reviewer")
	return cmd
}

// filterFor narrows the watch board to one assignee or reviewer.
func filterFor(assignee, reviewer string) app.TrackableFilter {
	return app.TrackableFilter{
		AssigneeID:   strings.TrimSpace(assignee),
		QAReviewerID: strings.TrimSpace(reviewer),
	}
}

// printOne writes v as JSON under --json and through human otherwise.
func printOne[T any](cmd *cobra.Command, opts *rootOptions, v T, human func(*strings.Builder, T)) error {
	out := cmd.OutOrStdout()
	if opts.jsonOut {
		return printJSON(out, v)
	}
	var b strings.Builder
	human(&b, v)
	_, err := fmt.Fprint(out, b.String())
	return err
}
