package app

import (
	"context"
	"errors"
	"testing"

	"github.com/hylla/worktally/internal/domain"
)

// TestMutationActorContextRoundTrip verifies normalization and retrieval from context.
func TestMutationActorContextRoundTrip(t *testing.T) {
	ctx := WithMutationActor(context.Background(), MutationActor{ActorID: " agent-7 ", ActorType: " AGENT "})
	actor, ok := MutationActorFromContext(ctx)
	if !ok {
		t.Fatal("MutationActorFromContext() expected actor")
	}
	if actor.ActorID != "agent-7" {
		t.Fatalf("ActorID = %q, want agent-7", actor.ActorID)
	}
	if actor.ActorType != domain.ActorTypeAgent {
		t.Fatalf("ActorType = %q, want agent", actor.ActorType)
	}
}

// TestMutationActorContextEmpty verifies absent and blank actors are ignored.
func TestMutationActorContextEmpty(t *testing.T) {
	if _, ok := MutationActorFromContext(context.Background()); ok {
		t.Fatal("MutationActorFromContext() expected no actor for empty context")
	}
	blank := WithMutationActor(context.Background(), MutationActor{ActorID: "  "})
	if _, ok := MutationActorFromContext(blank); ok {
		t.Fatal("MutationActorFromContext() expected no actor for blank id")
	}
}

// TestResolveActorPrecedence verifies explicit > context > fallback ordering.
func TestResolveActorPrecedence(t *testing.T) {
	ctx := WithMutationActor(context.Background(), MutationActor{ActorID: "ctx-user", ActorType: domain.ActorTypeAgent})
	cases := []struct {
		name     string
		ctx      context.Context
		id       string
		kind     domain.ActorType
		wantID   string
		wantType domain.ActorType
	}{
		{"explicit", ctx, "explicit", domain.ActorTypeSystem, "explicit", domain.ActorTypeSystem},
		{"explicit default type", ctx, "explicit", "", "explicit", domain.ActorTypeUser},
		{"context", ctx, "", "", "ctx-user", domain.ActorTypeAgent},
		{"fallback", context.Background(), "", "", DefaultActorID, domain.ActorTypeUser},
	}
	for _, tc := range cases {
		got, err := resolveActor(tc.ctx, tc.id, tc.kind, domain.Actor{})
		if err != nil {
			t.Fatalf("%s: resolveActor() error = %v", tc.name, err)
		}
		if got.ID != tc.wantID || got.Type != tc.wantType {
			t.Fatalf("%s: actor = %#v", tc.name, got)
		}
	}
}

// TestResolveActorRejectsUnknownType verifies unknown explicit actor types fail.
func TestResolveActorRejectsUnknownType(t *testing.T) {
	if _, err := resolveActor(context.Background(), "bot-1", "robot", domain.Actor{}); !errors.Is(err, domain.ErrInvalidActorType) {
		t.Fatalf("expected ErrInvalidActorType, got %v", err)
	}
}

// TestTransitionRejectsUnknownActorType verifies no ledger entry is written for a bad actor type.
func TestTransitionRejectsUnknownActorType(t *testing.T) {
	svc, repo, _ := newTestService(t, ServiceConfig{})
	ctx := context.Background()
	tr, _ := svc.CreateTrackable(ctx, CreateTrackableInput{Title: "x"})
	if _, err := svc.StartWork(ctx, TransitionInput{TrackableID: tr.ID, ActorID: "bot-1", ActorType: "robot"}); !errors.Is(err, domain.ErrInvalidActorType) {
		t.Fatalf("expected ErrInvalidActorType, got %v", err)
	}
	if len(repo.entries) != 0 {
		t.Fatalf("expected no ledger entries, got %d", len(repo.entries))
	}
}
