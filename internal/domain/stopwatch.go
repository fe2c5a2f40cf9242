package domain

import "time"

// Stopwatch holds the persisted timestamps and closed-interval total of one timer.
// TotalSeconds never includes the interval that is currently open.
type Stopwatch struct {
	StartedAt    *time.Time
	PausedAt     *time.Time
	FinishedAt   *time.Time
	TotalSeconds int64
}

// ElapsedSeconds returns whole seconds between from and now, clamped to zero.
// The second result reports whether clamping happened because from lies in the future.
// Whole seconds are the ledger unit: each closed interval drops its sub-second
// remainder, so totals and time log entries always agree.
func ElapsedSeconds(from *time.Time, now time.Time) (int64, bool) {
	if from == nil {
		return 0, false
	}
	d := now.Sub(*from)
	if d < 0 {
		return 0, true
	}
	return int64(d / time.Second), false
}

// open starts a new interval at now.
func (s *Stopwatch) open(now time.Time) {
	ts := now.UTC()
	s.StartedAt = &ts
}

// close ends the open interval at now and folds it into the total.
func (s *Stopwatch) close(now time.Time) int64 {
	elapsed, _ := ElapsedSeconds(s.StartedAt, now)
	s.TotalSeconds += elapsed
	return elapsed
}

func (s *Stopwatch) markPaused(now time.Time) {
	ts := now.UTC()
	s.PausedAt = &ts
}

func (s *Stopwatch) markFinished(now time.Time) {
	ts := now.UTC()
	s.FinishedAt = &ts
}

// reset clears the boundary timestamps but keeps the accumulated total.
func (s *Stopwatch) reset() {
	s.StartedAt = nil
	s.PausedAt = nil
	s.FinishedAt = nil
}

// Read projects the stopwatch at now. running tells whether the interval from StartedAt is open.
func (s Stopwatch) Read(timer TimerKind, state string, running bool, now time.Time) TimerReading {
	reading := TimerReading{
		Timer:        timer,
		State:        state,
		Running:      running,
		TotalSeconds: s.TotalSeconds,
		StartedAt:    s.StartedAt,
		PausedAt:     s.PausedAt,
		FinishedAt:   s.FinishedAt,
	}
	if running {
		reading.OpenSeconds, reading.SkewClamped = ElapsedSeconds(s.StartedAt, now)
	}
	reading.DisplayedSeconds = reading.TotalSeconds + reading.OpenSeconds
	return reading
}

// TimerReading is the read-time projection of a timer.
type TimerReading struct {
	Timer            TimerKind
	State            string
	Running          bool
	TotalSeconds     int64
	OpenSeconds      int64
	DisplayedSeconds int64
	StartedAt        *time.Time
	PausedAt         *time.Time
	FinishedAt       *time.Time
	SkewClamped      bool
}

// TimeSummary bundles both timer readings of one trackable.
type TimeSummary struct {
	TrackableID string
	Work        TimerReading
	QA          TimerReading
	ReadAt      time.Time
}

// WorkReading projects the work timer at now.
func (t Trackable) WorkReading(now time.Time) TimerReading {
	return t.Work.Read(TimerWork, string(t.WorkState), t.IsWorking(), now)
}

// QAReading projects the QA timer at now.
func (t Trackable) QAReading(now time.Time) TimerReading {
	return t.QA.Read(TimerQA, string(t.QAStatus), t.IsTesting(), now)
}

// DisplayedTotal returns the work total including the open interval.
func (t Trackable) DisplayedTotal(now time.Time) int64 {
	return t.WorkReading(now).DisplayedSeconds
}

// Summary returns both readings at now.
func (t Trackable) Summary(now time.Time) TimeSummary {
	return TimeSummary{
		TrackableID: t.ID,
		Work:        t.WorkReading(now),
		QA:          t.QAReading(now),
		ReadAt:      now.UTC(),
	}
}
