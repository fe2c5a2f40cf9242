package tui

import (
	"time"

	"github.com/hylla/worktally/internal/app"
)

// DefaultRefreshInterval is the live-total redraw cadence.
const DefaultRefreshInterval = time.Second

type Option func(*Model)

// WithActorID attributes board transitions to actorID.
func WithActorID(actorID string) Option {
	return func(m *Model) {
		m.actorID = actorID
	}
}

// WithRefreshInterval sets the redraw cadence. Zero or negative disables ticking.
func WithRefreshInterval(d time.Duration) Option {
	return func(m *Model) {
		m.refresh = d
	}
}

// WithFilter restricts the board to matching trackables.
func WithFilter(filter app.TrackableFilter) Option {
	return func(m *Model) {
		m.filter = filter
	}
}

// WithClipboard replaces the system clipboard writer.
func WithClipboard(write func(string) error) Option {
	return func(m *Model) {
		if write != nil {
			m.copyText = write
		}
	}
}
