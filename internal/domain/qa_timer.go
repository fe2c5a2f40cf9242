package domain

import (
	"strings"
	"time"
)

// SubmitForQA hands a finished trackable to reviewerID. A rejected item may be resubmitted;
// its QA total keeps accumulating across rounds.
func (t *Trackable) SubmitForQA(reviewerID string, now time.Time) error {
	reviewerID = strings.TrimSpace(reviewerID)
	if reviewerID == "" {
		return ErrInvalidReviewer
	}
	if t.WorkState != WorkStateFinished {
		return invalidState(TimerWork, "submit", string(t.WorkState))
	}
	if t.QAStatus != QAStatusNone && t.QAStatus != QAStatusRejected {
		return invalidState(TimerQA, "submit", string(t.QAStatus))
	}
	t.QA.reset()
	t.QAReviewerID = reviewerID
	t.QAStatus = QAStatusReadyForTest
	t.touch(now)
	return nil
}

// StartTesting opens a QA interval. Callers must check the reviewer's other items first;
// see CheckReviewerAvailable.
func (t *Trackable) StartTesting(actor Actor, now time.Time) (TimeLogEntry, error) {
	if t.QAStatus != QAStatusReadyForTest && t.QAStatus != QAStatusTestingPaused {
		return TimeLogEntry{}, invalidState(TimerQA, ActionStart, string(t.QAStatus))
	}
	t.QA.open(now)
	t.QA.PausedAt = nil
	t.QAStatus = QAStatusTesting
	t.touch(now)
	return newEntry(t.ID, TimerQA, ActionStart, actor, now), nil
}

// PauseTesting closes the open QA interval.
func (t *Trackable) PauseTesting(actor Actor, now time.Time) (TimeLogEntry, error) {
	if !t.IsTesting() {
		return TimeLogEntry{}, invalidState(TimerQA, ActionPause, string(t.QAStatus))
	}
	elapsed := t.QA.close(now)
	t.QA.markPaused(now)
	t.QAStatus = QAStatusTestingPaused
	t.touch(now)
	return newClosingEntry(t.ID, TimerQA, ActionPause, elapsed, actor, now), nil
}

// ResumeTesting reopens a paused QA interval.
func (t *Trackable) ResumeTesting(actor Actor, now time.Time) (TimeLogEntry, error) {
	if t.QAStatus != QAStatusTestingPaused {
		return TimeLogEntry{}, invalidState(TimerQA, ActionResume, string(t.QAStatus))
	}
	t.QA.open(now)
	t.QAStatus = QAStatusTesting
	t.touch(now)
	return newEntry(t.ID, TimerQA, ActionResume, actor, now), nil
}

// FinishTesting records the verdict and closes the QA timer.
func (t *Trackable) FinishTesting(verdict QAStatus, actor Actor, now time.Time) (TimeLogEntry, error) {
	if verdict != QAStatusApproved && verdict != QAStatusRejected {
		return TimeLogEntry{}, ErrInvalidVerdict
	}
	var elapsed int64
	switch t.QAStatus {
	case QAStatusTesting:
		elapsed = t.QA.close(now)
	case QAStatusTestingPaused:
	default:
		return TimeLogEntry{}, invalidState(TimerQA, ActionFinish, string(t.QAStatus))
	}
	t.QA.markFinished(now)
	t.QAStatus = verdict
	t.touch(now)
	return newClosingEntry(t.ID, TimerQA, ActionFinish, elapsed, actor, now), nil
}

// ParseVerdict normalizes raw into approved or rejected.
func ParseVerdict(raw string) (QAStatus, error) {
	verdict := QAStatus(strings.TrimSpace(strings.ToLower(raw)))
	if verdict != QAStatusApproved && verdict != QAStatusRejected {
		return "", ErrInvalidVerdict
	}
	return verdict, nil
}

// CheckReviewerAvailable returns a ConflictError naming the first of active that keeps
// reviewerID busy, ignoring selfID.
func CheckReviewerAvailable(reviewerID, selfID string, active []Trackable) error {
	reviewerID = strings.TrimSpace(reviewerID)
	for _, other := range active {
		if other.ID == selfID || other.QAReviewerID != reviewerID {
			continue
		}
		if other.OccupiesReviewer() {
			return NewConflictError(reviewerID, other)
		}
	}
	return nil
}
