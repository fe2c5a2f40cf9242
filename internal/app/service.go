package app

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/hylla/worktally/internal/domain"
	"golang.org/x/sync/singleflight"
)

// ServiceConfig holds configuration for service.
type ServiceConfig struct {
	DefaultActor domain.Actor
	Cache        TrackableCache
	// OnCacheError receives cache failures. Cache errors never fail an operation.
	OnCacheError func(op string, err error)
}

// IDGenerator returns unique identifiers for new entities.
type IDGenerator func() string

// Clock returns the current time.
type Clock func() time.Time

// Service runs timer transitions, reads and reconciliation against a Repository.
type Service struct {
	repo         Repository
	idGen        IDGenerator
	clock        Clock
	defaultActor domain.Actor
	cache        TrackableCache
	onCacheError func(string, error)
	reads        singleflight.Group

	// cacheMu orders cache fills against invalidations. cacheGen counts invalidations per id
	// so a fill whose read began before a commit is dropped instead of caching stale state.
	cacheMu  sync.Mutex
	cacheGen map[string]uint64
}

// NewService wires a service over repo. A nil clock uses time.Now.
func NewService(repo Repository, idGen IDGenerator, clock Clock, cfg ServiceConfig) *Service {
	if idGen == nil {
		idGen = func() string { return "" }
	}
	if clock == nil {
		clock = time.Now
	}
	onCacheError := cfg.OnCacheError
	if onCacheError == nil {
		onCacheError = func(string, error) {}
	}
	return &Service{
		repo:         repo,
		idGen:        idGen,
		clock:        clock,
		defaultActor: cfg.DefaultActor,
		cache:        cfg.Cache,
		onCacheError: onCacheError,
		cacheGen:     map[string]uint64{},
	}
}

// Now returns the service clock reading. Transports use it to project live totals.
func (s *Service) Now() time.Time {
	return s.clock().UTC()
}

// CreateTrackableInput holds input values for create trackable operations.
type CreateTrackableInput struct {
	Kind        domain.TrackableKind
	Title       string
	Description string
	AssigneeID  string
}

// CreateTrackable creates an idle trackable.
func (s *Service) CreateTrackable(ctx context.Context, in CreateTrackableInput) (domain.Trackable, error) {
	t, err := domain.NewTrackable(domain.TrackableInput{
		ID:          s.idGen(),
		Kind:        in.Kind,
		Title:       in.Title,
		Description: in.Description,
		AssigneeID:  in.AssigneeID,
	}, s.clock())
	if err != nil {
		return domain.Trackable{}, err
	}
	if err := s.repo.CreateTrackable(ctx, t); err != nil {
		return domain.Trackable{}, err
	}
	return t, nil
}

// UpdateTrackableInput holds detail edits. Nil fields keep their stored value; timer fields
// are never touched.
type UpdateTrackableInput struct {
	TrackableID string
	Title       *string
	Description *string
	AssigneeID  *string
}

// UpdateTrackableDetails edits title, description and assignee without writing a ledger entry.
func (s *Service) UpdateTrackableDetails(ctx context.Context, in UpdateTrackableInput) (domain.Trackable, error) {
	id, err := normalizeTrackableID(in.TrackableID)
	if err != nil {
		return domain.Trackable{}, err
	}
	if in.Title != nil && strings.TrimSpace(*in.Title) == "" {
		return domain.Trackable{}, domain.ErrInvalidTitle
	}
	return s.transition(ctx, id, func(_ context.Context, _ TransitionReader, t *domain.Trackable) ([]domain.TimeLogEntry, error) {
		before := *t
		if in.Title != nil {
			t.Title = strings.TrimSpace(*in.Title)
		}
		if in.Description != nil {
			t.Description = strings.TrimSpace(*in.Description)
		}
		if in.AssigneeID != nil {
			t.AssigneeID = strings.TrimSpace(*in.AssigneeID)
		}
		if t.Title == before.Title && t.Description == before.Description && t.AssigneeID == before.AssigneeID {
			return nil, ErrNoChange
		}
		t.UpdatedAt = s.clock().UTC()
		return nil, nil
	})
}

// GetTrackable returns one trackable, reading through the cache when configured.
func (s *Service) GetTrackable(ctx context.Context, id string) (domain.Trackable, error) {
	id, err := normalizeTrackableID(id)
	if err != nil {
		return domain.Trackable{}, err
	}
	if s.cache != nil {
		cached, ok, err := s.cache.Get(ctx, id)
		if err != nil {
			s.onCacheError("get", err)
		} else if ok {
			return cached, nil
		}
	}
	// The shared read is detached from ctx so one caller giving up does not fail the others.
	readCtx := context.WithoutCancel(ctx)
	ch := s.reads.DoChan(id, func() (any, error) {
		gen := s.cacheGeneration(id)
		t, err := s.repo.GetTrackable(readCtx, id)
		if err != nil {
			return domain.Trackable{}, err
		}
		s.fillCache(readCtx, gen, t)
		return t, nil
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return domain.Trackable{}, res.Err
		}
		return res.Val.(domain.Trackable), nil
	case <-ctx.Done():
		return domain.Trackable{}, ctx.Err()
	}
}

// ListTrackables lists trackables matching filter.
func (s *Service) ListTrackables(ctx context.Context, filter TrackableFilter) ([]domain.Trackable, error) {
	return s.repo.ListTrackables(ctx, filter)
}

// ActiveItem pairs a trackable with its live readings.
type ActiveItem struct {
	Trackable domain.Trackable
	Summary   domain.TimeSummary
}

// ListActive returns every trackable with a running or paused timer, largest displayed time first.
func (s *Service) ListActive(ctx context.Context) ([]ActiveItem, error) {
	items, err := s.repo.ListTrackables(ctx, TrackableFilter{})
	if err != nil {
		return nil, err
	}
	now := s.clock()
	out := make([]ActiveItem, 0, len(items))
	for _, t := range items {
		if !t.HasOpenTimer() {
			continue
		}
		out = append(out, ActiveItem{Trackable: t, Summary: t.Summary(now)})
	}
	slices.SortStableFunc(out, func(a, b ActiveItem) int {
		da := a.Summary.Work.DisplayedSeconds + a.Summary.QA.DisplayedSeconds
		db := b.Summary.Work.DisplayedSeconds + b.Summary.QA.DisplayedSeconds
		switch {
		case da > db:
			return -1
		case da < db:
			return 1
		default:
			return strings.Compare(a.Trackable.ID, b.Trackable.ID)
		}
	})
	return out, nil
}

// TimeSummary returns both timer readings projected at the service clock.
func (s *Service) TimeSummary(ctx context.Context, id string) (domain.TimeSummary, error) {
	t, err := s.GetTrackable(ctx, id)
	if err != nil {
		return domain.TimeSummary{}, err
	}
	return t.Summary(s.clock()), nil
}

// ListTimeLog lists ledger entries for one trackable, optionally for one timer.
func (s *Service) ListTimeLog(ctx context.Context, id string, timer domain.TimerKind) ([]domain.TimeLogEntry, error) {
	id, err := normalizeTrackableID(id)
	if err != nil {
		return nil, err
	}
	if timer != "" {
		if timer, err = domain.ParseTimerKind(string(timer)); err != nil {
			return nil, err
		}
	}
	if _, err := s.repo.GetTrackable(ctx, id); err != nil {
		return nil, err
	}
	return s.repo.ListTimeLog(ctx, TimeLogFilter{TrackableID: id, Timer: timer})
}

// cacheGeneration returns the invalidation count for id.
func (s *Service) cacheGeneration(id string) uint64 {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	return s.cacheGen[id]
}

// fillCache stores t unless id was invalidated since gen was read.
func (s *Service) fillCache(ctx context.Context, gen uint64, t domain.Trackable) {
	if s.cache == nil {
		return
	}
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	if s.cacheGen[t.ID] != gen {
		return
	}
	if err := s.cache.Set(ctx, t); err != nil {
		s.onCacheError("set", err)
	}
}

// invalidate drops cached copies of ids and any read already in flight for them.
func (s *Service) invalidate(ctx context.Context, ids ...string) {
	if s.cache == nil || len(ids) == 0 {
		return
	}
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	for _, id := range ids {
		s.cacheGen[id]++
		s.reads.Forget(id)
	}
	if err := s.cache.Invalidate(context.WithoutCancel(ctx), ids...); err != nil {
		s.onCacheError("invalidate", err)
	}
}

// normalizeTrackableID trims id and rejects blanks.
func normalizeTrackableID(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", domain.ErrInvalidID
	}
	return id, nil
}
