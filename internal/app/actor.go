package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/hylla/worktally/internal/domain"
)

// DefaultActorID is recorded when neither the caller nor the context names an actor.
const DefaultActorID = "worktally-user"

// MutationActor carries normalized caller identity metadata for time log attribution.
type MutationActor struct {
	ActorID   string
	ActorType domain.ActorType
}

// WithMutationActor attaches normalized mutation-actor identity metadata to context.
func WithMutationActor(ctx context.Context, actor MutationActor) context.Context {
	actor = normalizeMutationActor(actor)
	return context.WithValue(ctx, mutationActorContextKey{}, actor)
}

// MutationActorFromContext returns normalized mutation-actor metadata when present.
func MutationActorFromContext(ctx context.Context) (MutationActor, bool) {
	raw := ctx.Value(mutationActorContextKey{})
	actor, ok := raw.(MutationActor)
	if !ok {
		return MutationActor{}, false
	}
	actor = normalizeMutationActor(actor)
	if actor.ActorID == "" {
		return MutationActor{}, false
	}
	return actor, true
}

// mutationActorContextKey stores context keys for mutation actor metadata.
type mutationActorContextKey struct{}

// normalizeMutationActor trims and canonicalizes mutation actor metadata.
func normalizeMutationActor(actor MutationActor) MutationActor {
	actor.ActorID = strings.TrimSpace(actor.ActorID)
	actor.ActorType = domain.NormalizeActorType(actor.ActorType)
	return actor
}

// resolveActor picks the explicit actor first, then the context actor, then fallback.
// An explicit actor type that is not user, agent or system fails with ErrInvalidActorType.
func resolveActor(ctx context.Context, explicitID string, explicitType domain.ActorType, fallback domain.Actor) (domain.Actor, error) {
	actorType, err := domain.ParseActorType(string(explicitType))
	if err != nil {
		return domain.Actor{}, fmt.Errorf("actor type %q: %w", explicitType, err)
	}
	if id := strings.TrimSpace(explicitID); id != "" {
		return domain.Actor{ID: id, Type: actorType}, nil
	}
	if actor, ok := MutationActorFromContext(ctx); ok {
		return domain.Actor{ID: actor.ActorID, Type: actor.ActorType}, nil
	}
	fallback.ID = strings.TrimSpace(fallback.ID)
	if fallback.ID == "" {
		fallback.ID = DefaultActorID
	}
	fallback.Type = domain.NormalizeActorType(fallback.Type)
	return fallback, nil
}
