package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/hylla/worktally/internal/adapters/server/common"
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printTrackable(b *strings.Builder, t common.Trackable) {
	fmt.Fprintf(b, "%s [%s] %s\n", t.ID, t.Kind, t.Title)
	if t.AssigneeID != "" {
		fmt.Fprintf(b, "  assignee  %s\n", t.AssigneeID)
	}
	fmt.Fprintf(b, "  work      %-15s %s%s\n", t.WorkState, formatSeconds(t.Work.DisplayedSeconds), runningMark(t.Work))
	qa := t.QAStatus
	if qa == "" {
		qa = "-"
	}
	fmt.Fprintf(b, "  qa        %-15s %s%s", qa, formatSeconds(t.QA.DisplayedSeconds), runningMark(t.QA))
	if t.QAReviewerID != "" {
		fmt.Fprintf(b, "  reviewer %s", t.QAReviewerID)
	}
	b.WriteString("\n")
}

func printTrackables(b *strings.Builder, items []common.Trackable) {
	if len(items) == 0 {
		b.WriteString("no trackables\n")
		return
	}
	fmt.Fprintf(b, "%-36s  %-4s  %-9s  %8s  %-15s  %8s  %s\n", "ID", "KIND", "WORK", "TIME", "QA", "QA TIME", "TITLE")
	for _, t := range items {
		qa := t.QAStatus
		if qa == "" {
			qa = "-"
		}
		fmt.Fprintf(b, "%-36s  %-4s  %-9s  %8s  %-15s  %8s  %s\n",
			t.ID, t.Kind, t.WorkState, formatSeconds(t.Work.DisplayedSeconds),
			qa, formatSeconds(t.QA.DisplayedSeconds), t.Title)
	}
}

func printTimeLog(b *strings.Builder, entries []common.TimeLogEntry) {
	if len(entries) == 0 {
		b.WriteString("no time log entries\n")
		return
	}
	for _, e := range entries {
		duration := ""
		if e.DurationSeconds != nil {
			duration = formatSeconds(*e.DurationSeconds)
		}
		fmt.Fprintf(b, "#%-4d %s  %-4s  %-6s  %8s  %s (%s)\n",
			e.ID, e.OccurredAt.UTC().Format(time.RFC3339), e.Timer, e.Action, duration, e.ActorID, e.ActorType)
	}
}

func printReconciliations(b *strings.Builder, recs []common.Reconciliation) {
	if len(recs) == 0 {
		b.WriteString("nothing to reconcile\n")
		return
	}
	for _, r := range recs {
		status := "ok"
		switch {
		case r.Applied:
			status = "corrected"
		case r.DriftSeconds != 0:
			status = "drift"
		}
		fmt.Fprintf(b, "%s  %-4s  stored=%s ledger=%s open=%s drift=%+ds  %s\n",
			r.TrackableID, r.Timer,
			formatSeconds(r.StoredSeconds), formatSeconds(r.LedgerSeconds), formatSeconds(r.OpenSeconds),
			r.DriftSeconds, status)
	}
}

func runningMark(r common.TimerReading) string {
	if r.Running {
		return " (running)"
	}
	return ""
}

// formatSeconds renders whole seconds as H:MM:SS.
func formatSeconds(secs int64) string {
	if secs < 0 {
		secs = 0
	}
	return fmt.Sprintf("%d:%02d:%02d", secs/3600, (secs/60)%60, secs%60)
}
