package app

import (
	"context"

	"github.com/hylla/worktally/internal/domain"
)

// RecomputeTotal rebuilds both persisted totals from the time log. It is idempotent and
// appends no ledger entries. The open interval is reported but never persisted.
func (s *Service) RecomputeTotal(ctx context.Context, id string) ([]domain.Reconciliation, error) {
	return s.reconcile(ctx, id, true)
}

// ReconcileAll compares every trackable with its ledger. Corrections are written unless dryRun is set.
func (s *Service) ReconcileAll(ctx context.Context, dryRun bool) ([]domain.Reconciliation, error) {
	items, err := s.repo.ListTrackables(ctx, TrackableFilter{})
	if err != nil {
		return nil, err
	}
	out := make([]domain.Reconciliation, 0, len(items)*2)
	for _, t := range items {
		recs, err := s.reconcile(ctx, t.ID, !dryRun)
		if err != nil {
			return out, err
		}
		out = append(out, recs...)
	}
	return out, nil
}

func (s *Service) reconcile(ctx context.Context, id string, apply bool) ([]domain.Reconciliation, error) {
	id, err := normalizeTrackableID(id)
	if err != nil {
		return nil, err
	}
	var recs []domain.Reconciliation
	_, _, err = s.repo.ApplyTransition(ctx, id, func(ctx context.Context, tx TransitionReader, t *domain.Trackable) ([]domain.TimeLogEntry, error) {
		entries, err := tx.ListTimeLog(ctx, TimeLogFilter{TrackableID: t.ID})
		if err != nil {
			return nil, err
		}
		recs = t.Reconcile(entries, apply, s.clock())
		for _, rec := range recs {
			if rec.Applied {
				return nil, nil
			}
		}
		return nil, ErrNoChange
	})
	if err != nil {
		return nil, err
	}
	if apply {
		s.invalidate(ctx, id)
	}
	return recs, nil
}
