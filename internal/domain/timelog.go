package domain

import (
	"slices"
	"strings"
	"time"
)

// TimerKind identifies which of a trackable's timers an entry belongs to.
type TimerKind string

const (
	TimerWork TimerKind = "work"
	TimerQA   TimerKind = "qa"
)

// TimeLogAction is the transition recorded by a ledger entry.
type TimeLogAction string

const (
	ActionStart  TimeLogAction = "start"
	ActionPause  TimeLogAction = "pause"
	ActionResume TimeLogAction = "resume"
	ActionFinish TimeLogAction = "finish"
)

// ActorType identifies who performed a transition.
type ActorType string

const (
	ActorTypeUser   ActorType = "user"
	ActorTypeAgent  ActorType = "agent"
	ActorTypeSystem ActorType = "system"
)

// ParseTimerKind normalizes raw into a timer kind.
func ParseTimerKind(raw string) (TimerKind, error) {
	timer := TimerKind(strings.TrimSpace(strings.ToLower(raw)))
	if timer != TimerWork && timer != TimerQA {
		return "", ErrInvalidTimer
	}
	return timer, nil
}

// ParseTimeLogAction normalizes raw into a ledger action.
func ParseTimeLogAction(raw string) (TimeLogAction, error) {
	action := TimeLogAction(strings.TrimSpace(strings.ToLower(raw)))
	if !slices.Contains([]TimeLogAction{ActionStart, ActionPause, ActionResume, ActionFinish}, action) {
		return "", ErrInvalidAction
	}
	return action, nil
}

// ParseActorType normalizes raw into a known actor type. Blank input means user.
func ParseActorType(raw string) (ActorType, error) {
	switch actorType := ActorType(strings.TrimSpace(strings.ToLower(raw))); actorType {
	case "":
		return ActorTypeUser, nil
	case ActorTypeUser, ActorTypeAgent, ActorTypeSystem:
		return actorType, nil
	default:
		return "", ErrInvalidActorType
	}
}

// NormalizeActorType lowercases actorType and defaults unknown values to user.
func NormalizeActorType(actorType ActorType) ActorType {
	switch ActorType(strings.TrimSpace(strings.ToLower(string(actorType)))) {
	case ActorTypeAgent:
		return ActorTypeAgent
	case ActorTypeSystem:
		return ActorTypeSystem
	default:
		return ActorTypeUser
	}
}

// TimeLogEntry is one immutable ledger record. DurationSeconds is set on pause and finish
// and holds the length of the interval the event closed.
type TimeLogEntry struct {
	ID              int64
	TrackableID     string
	Timer           TimerKind
	Action          TimeLogAction
	DurationSeconds *int64
	ActorID         string
	ActorType       ActorType
	OccurredAt      time.Time
}

// Actor attributes a transition.
type Actor struct {
	ID   string
	Type ActorType
}

func newEntry(trackableID string, timer TimerKind, action TimeLogAction, actor Actor, now time.Time) TimeLogEntry {
	return TimeLogEntry{
		TrackableID: trackableID,
		Timer:       timer,
		Action:      action,
		ActorID:     strings.TrimSpace(actor.ID),
		ActorType:   NormalizeActorType(actor.Type),
		OccurredAt:  now.UTC(),
	}
}

func newClosingEntry(trackableID string, timer TimerKind, action TimeLogAction, elapsed int64, actor Actor, now time.Time) TimeLogEntry {
	entry := newEntry(trackableID, timer, action, actor, now)
	entry.DurationSeconds = &elapsed
	return entry
}

// LedgerSeconds sums the closed-interval durations recorded for timer.
func LedgerSeconds(entries []TimeLogEntry, timer TimerKind) int64 {
	var total int64
	for _, entry := range entries {
		if entry.Timer != timer || entry.DurationSeconds == nil {
			continue
		}
		if entry.Action != ActionPause && entry.Action != ActionFinish {
			continue
		}
		if *entry.DurationSeconds > 0 {
			total += *entry.DurationSeconds
		}
	}
	return total
}

// Reconciliation reports how a persisted total compares with the ledger.
type Reconciliation struct {
	TrackableID      string
	Timer            TimerKind
	StoredSeconds    int64
	LedgerSeconds    int64
	OpenSeconds      int64
	DisplayedSeconds int64
	DriftSeconds     int64
	Applied          bool
}

// Drifted reports whether the stored total disagrees with the ledger.
func (r Reconciliation) Drifted() bool {
	return r.DriftSeconds != 0
}

// Reconcile compares both stopwatches with entries. When apply is set the totals are
// overwritten with the ledger sums.
func (t *Trackable) Reconcile(entries []TimeLogEntry, apply bool, now time.Time) []Reconciliation {
	out := make([]Reconciliation, 0, 2)
	for _, timer := range []TimerKind{TimerWork, TimerQA} {
		sw := &t.Work
		reading := t.WorkReading(now)
		if timer == TimerQA {
			sw = &t.QA
			reading = t.QAReading(now)
		}
		ledger := LedgerSeconds(entries, timer)
		rec := Reconciliation{
			TrackableID:      t.ID,
			Timer:            timer,
			StoredSeconds:    sw.TotalSeconds,
			LedgerSeconds:    ledger,
			OpenSeconds:      reading.OpenSeconds,
			DisplayedSeconds: ledger + reading.OpenSeconds,
			DriftSeconds:     ledger - sw.TotalSeconds,
		}
		if apply && rec.Drifted() {
			sw.TotalSeconds = ledger
			rec.Applied = true
		}
		out = append(out, rec)
	}
	if apply && (out[0].Applied || out[1].Applied) {
		t.touch(now)
	}
	return out
}
