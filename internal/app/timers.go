package app

import (
	"context"

	"github.com/hylla/worktally/internal/domain"
)

// TransitionInput identifies the trackable and, optionally, the acting identity.
// A blank ActorID falls back to the context actor and then the configured default.
type TransitionInput struct {
	TrackableID string
	ActorID     string
	ActorType   domain.ActorType
}

// StartWork opens a work interval.
func (s *Service) StartWork(ctx context.Context, in TransitionInput) (domain.Trackable, error) {
	return s.workTransition(ctx, in, domain.ActionStart)
}

// PauseWork closes the open work interval and adds it to the total.
func (s *Service) PauseWork(ctx context.Context, in TransitionInput) (domain.Trackable, error) {
	return s.workTransition(ctx, in, domain.ActionPause)
}

// ResumeWork reopens a paused work timer.
func (s *Service) ResumeWork(ctx context.Context, in TransitionInput) (domain.Trackable, error) {
	return s.workTransition(ctx, in, domain.ActionResume)
}

// FinishWork completes the work timer.
func (s *Service) FinishWork(ctx context.Context, in TransitionInput) (domain.Trackable, error) {
	return s.workTransition(ctx, in, domain.ActionFinish)
}

// ApplyWorkAction dispatches a work transition by action.
func (s *Service) ApplyWorkAction(ctx context.Context, in TransitionInput, action domain.TimeLogAction) (domain.Trackable, error) {
	action, err := domain.ParseTimeLogAction(string(action))
	if err != nil {
		return domain.Trackable{}, err
	}
	return s.workTransition(ctx, in, action)
}

func (s *Service) workTransition(ctx context.Context, in TransitionInput, action domain.TimeLogAction) (domain.Trackable, error) {
	actor, err := resolveActor(ctx, in.ActorID, in.ActorType, s.defaultActor)
	if err != nil {
		return domain.Trackable{}, err
	}
	return s.transition(ctx, in.TrackableID, func(_ context.Context, _ TransitionReader, t *domain.Trackable) ([]domain.TimeLogEntry, error) {
		entry, err := t.ApplyWorkAction(action, actor, s.clock())
		if err != nil {
			return nil, err
		}
		return []domain.TimeLogEntry{entry}, nil
	})
}

// SubmitForQAInput holds input values for QA submission.
type SubmitForQAInput struct {
	TrackableID string
	ReviewerID  string
}

// SubmitForQA hands a finished trackable to a reviewer.
func (s *Service) SubmitForQA(ctx context.Context, in SubmitForQAInput) (domain.Trackable, error) {
	return s.transition(ctx, in.TrackableID, func(_ context.Context, _ TransitionReader, t *domain.Trackable) ([]domain.TimeLogEntry, error) {
		return nil, t.SubmitForQA(in.ReviewerID, s.clock())
	})
}

// StartTesting opens a QA interval after checking that the reviewer has no other item under test.
func (s *Service) StartTesting(ctx context.Context, in TransitionInput) (domain.Trackable, error) {
	return s.qaTransition(ctx, in, true, func(t *domain.Trackable, actor domain.Actor) (domain.TimeLogEntry, error) {
		return t.StartTesting(actor, s.clock())
	})
}

// PauseTesting closes the open QA interval.
func (s *Service) PauseTesting(ctx context.Context, in TransitionInput) (domain.Trackable, error) {
	return s.qaTransition(ctx, in, false, func(t *domain.Trackable, actor domain.Actor) (domain.TimeLogEntry, error) {
		return t.PauseTesting(actor, s.clock())
	})
}

// ResumeTesting reopens a paused QA interval after the same reviewer check as StartTesting.
func (s *Service) ResumeTesting(ctx context.Context, in TransitionInput) (domain.Trackable, error) {
	return s.qaTransition(ctx, in, true, func(t *domain.Trackable, actor domain.Actor) (domain.TimeLogEntry, error) {
		return t.ResumeTesting(actor, s.clock())
	})
}

// FinishTestingInput holds input values for the QA verdict.
type FinishTestingInput struct {
	TransitionInput
	Verdict domain.QAStatus
}

// FinishTesting records the verdict and closes the QA timer.
func (s *Service) FinishTesting(ctx context.Context, in FinishTestingInput) (domain.Trackable, error) {
	verdict, err := domain.ParseVerdict(string(in.Verdict))
	if err != nil {
		return domain.Trackable{}, err
	}
	return s.qaTransition(ctx, in.TransitionInput, false, func(t *domain.Trackable, actor domain.Actor) (domain.TimeLogEntry, error) {
		return t.FinishTesting(verdict, actor, s.clock())
	})
}

// qaTransition applies a QA transition. When opens is set and the item can open an
// interval, the reviewer check runs inside the same transaction.
func (s *Service) qaTransition(ctx context.Context, in TransitionInput, opens bool, apply func(*domain.Trackable, domain.Actor) (domain.TimeLogEntry, error)) (domain.Trackable, error) {
	actor, err := resolveActor(ctx, in.ActorID, in.ActorType, s.defaultActor)
	if err != nil {
		return domain.Trackable{}, err
	}
	return s.transition(ctx, in.TrackableID, func(ctx context.Context, tx TransitionReader, t *domain.Trackable) ([]domain.TimeLogEntry, error) {
		canOpen := t.QAStatus == domain.QAStatusReadyForTest || t.QAStatus == domain.QAStatusTestingPaused
		if opens && canOpen {
			if err := checkReviewer(ctx, tx, t); err != nil {
				return nil, err
			}
		}
		entry, err := apply(t, actor)
		if err != nil {
			return nil, err
		}
		return []domain.TimeLogEntry{entry}, nil
	})
}

// checkReviewer fails with a ConflictError when t's reviewer is busy with another trackable.
func checkReviewer(ctx context.Context, tx TransitionReader, t *domain.Trackable) error {
	if t.QAReviewerID == "" {
		return nil
	}
	active, err := tx.ListTrackables(ctx, TrackableFilter{
		QAReviewerID: t.QAReviewerID,
		QAStatuses:   domain.ActiveQAStatuses,
	})
	if err != nil {
		return err
	}
	return domain.CheckReviewerAvailable(t.QAReviewerID, t.ID, active)
}

// transition runs fn atomically and drops the cached copy afterwards.
func (s *Service) transition(ctx context.Context, id string, fn TransitionFunc) (domain.Trackable, error) {
	id, err := normalizeTrackableID(id)
	if err != nil {
		return domain.Trackable{}, err
	}
	t, _, err := s.repo.ApplyTransition(ctx, id, fn)
	s.invalidate(ctx, id)
	if err != nil {
		return domain.Trackable{}, err
	}
	return t, nil
}
