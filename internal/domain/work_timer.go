package domain

import "time"

// StartWork opens a work interval. It is rejected while working or after finish.
func (t *Trackable) StartWork(actor Actor, now time.Time) (TimeLogEntry, error) {
	if t.IsWorking() || t.WorkState == WorkStateFinished {
		return TimeLogEntry{}, invalidState(TimerWork, ActionStart, string(t.WorkState))
	}
	t.Work.open(now)
	t.Work.PausedAt = nil
	t.WorkState = WorkStateWorking
	t.touch(now)
	return newEntry(t.ID, TimerWork, ActionStart, actor, now), nil
}

// PauseWork closes the open interval and adds it to the total.
func (t *Trackable) PauseWork(actor Actor, now time.Time) (TimeLogEntry, error) {
	if !t.IsWorking() {
		return TimeLogEntry{}, invalidState(TimerWork, ActionPause, string(t.WorkState))
	}
	elapsed := t.Work.close(now)
	t.Work.markPaused(now)
	t.WorkState = WorkStatePaused
	t.touch(now)
	return newClosingEntry(t.ID, TimerWork, ActionPause, elapsed, actor, now), nil
}

// ResumeWork reopens a paused interval. The accumulated total is kept and the
// interval start moves to now.
func (t *Trackable) ResumeWork(actor Actor, now time.Time) (TimeLogEntry, error) {
	if t.WorkState != WorkStatePaused {
		return TimeLogEntry{}, invalidState(TimerWork, ActionResume, string(t.WorkState))
	}
	t.Work.open(now)
	t.WorkState = WorkStateWorking
	t.touch(now)
	return newEntry(t.ID, TimerWork, ActionResume, actor, now), nil
}

// FinishWork completes the work timer from working or paused.
func (t *Trackable) FinishWork(actor Actor, now time.Time) (TimeLogEntry, error) {
	var elapsed int64
	switch t.WorkState {
	case WorkStateWorking:
		elapsed = t.Work.close(now)
	case WorkStatePaused:
	default:
		return TimeLogEntry{}, invalidState(TimerWork, ActionFinish, string(t.WorkState))
	}
	t.Work.markFinished(now)
	t.WorkState = WorkStateFinished
	t.touch(now)
	return newClosingEntry(t.ID, TimerWork, ActionFinish, elapsed, actor, now), nil
}

// ApplyWorkAction dispatches a work transition by action name.
func (t *Trackable) ApplyWorkAction(action TimeLogAction, actor Actor, now time.Time) (TimeLogEntry, error) {
	switch action {
	case ActionStart:
		return t.StartWork(actor, now)
	case ActionPause:
		return t.PauseWork(actor, now)
	case ActionResume:
		return t.ResumeWork(actor, now)
	case ActionFinish:
		return t.FinishWork(actor, now)
	default:
		return TimeLogEntry{}, ErrInvalidAction
	}
}
