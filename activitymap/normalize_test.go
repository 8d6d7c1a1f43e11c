package activitymap_test

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	teamauth "github.com/teamup-ku/go-teamauth"
	"github.com/teamup-ku/go-teamauth/activitymap"
)

func TestNormalizeDefaults(t *testing.T) {
	t.Parallel()

	ts := time.Date(2026, 1, 10, 9, 30, 0, 0, time.UTC)
	event := teamauth.ActivityEvent{
		EventType: teamauth.ActivityEventFlowTransition,
		Flow:      "signin",
		UserID:    "user-100",
		Email:     "kim@korea.ac.kr",
		FromState: teamauth.FlowExchanging,
		ToState:   teamauth.FlowAuthenticated,
		Metadata: map[string]any{
			"reason": "exchange ok",
		},
		OccurredAt: ts,
	}

	out := activitymap.Normalize(event)

	if out.ActorID != "user-100" {
		t.Fatalf("expected actor_id user-100, got %q", out.ActorID)
	}
	if out.Verb != string(teamauth.ActivityEventFlowTransition) {
		t.Fatalf("expected verb %q, got %q", teamauth.ActivityEventFlowTransition, out.Verb)
	}
	if out.ObjectType != "session" {
		t.Fatalf("expected object_type session, got %q", out.ObjectType)
	}
	if out.ObjectID != "signin" {
		t.Fatalf("expected object_id signin, got %q", out.ObjectID)
	}
	if out.Channel != "auth" {
		t.Fatalf("expected channel auth, got %q", out.Channel)
	}
	if !out.OccurredAt.Equal(ts) {
		t.Fatalf("expected occurred_at %v, got %v", ts, out.OccurredAt)
	}

	if out.Metadata["reason"] != "exchange ok" {
		t.Fatalf("expected metadata reason, got %#v", out.Metadata["reason"])
	}
	if out.Metadata[activitymap.MetadataKeyFromState] != string(teamauth.FlowExchanging) {
		t.Fatalf("expected from_state exchanging, got %#v", out.Metadata[activitymap.MetadataKeyFromState])
	}
	if out.Metadata[activitymap.MetadataKeyToState] != string(teamauth.FlowAuthenticated) {
		t.Fatalf("expected to_state authenticated, got %#v", out.Metadata[activitymap.MetadataKeyToState])
	}
	if out.Metadata[activitymap.MetadataKeyEmail] != "kim@korea.ac.kr" {
		t.Fatalf("expected email metadata, got %#v", out.Metadata[activitymap.MetadataKeyEmail])
	}

	if len(event.Metadata) != 1 {
		t.Fatalf("expected source metadata to remain unchanged, got %+v", event.Metadata)
	}
}

func TestNormalizeOptionOverrides(t *testing.T) {
	t.Parallel()

	fixed := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	event := teamauth.ActivityEvent{
		EventType: teamauth.ActivityEventOAuthStarted,
		Flow:      "callback",
		Metadata: map[string]any{
			"provider":                  "google",
			activitymap.MetadataKeyFlow: "existing",
		},
	}

	out := activitymap.Normalize(
		event,
		activitymap.WithDefaultChannel("security"),
		activitymap.WithDefaultObjectType("oauth"),
		activitymap.WithObjectIDResolver(func(e teamauth.ActivityEvent) string {
			if v, ok := e.Metadata["provider"].(string); ok {
				return v
			}
			return ""
		}),
		activitymap.WithClock(func() time.Time { return fixed }),
	)

	if out.Channel != "security" {
		t.Fatalf("expected channel security, got %q", out.Channel)
	}
	if out.ObjectType != "oauth" {
		t.Fatalf("expected object_type oauth, got %q", out.ObjectType)
	}
	if out.ObjectID != "google" {
		t.Fatalf("expected object_id google, got %q", out.ObjectID)
	}
	if out.Metadata[activitymap.MetadataKeyFlow] != "existing" {
		t.Fatalf("expected existing flow preserved, got %#v", out.Metadata[activitymap.MetadataKeyFlow])
	}
	if !out.OccurredAt.Equal(fixed) {
		t.Fatalf("expected occurred_at from clock, got %v", out.OccurredAt)
	}
}

func TestNormalizeActorFallbackChain(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		event  teamauth.ActivityEvent
		opts   []activitymap.Option
		expect string
	}{
		{
			name:   "uses user id when present",
			event:  teamauth.ActivityEvent{UserID: "user-1", Email: "a@korea.ac.kr"},
			expect: "user-1",
		},
		{
			name:   "uses email when user id missing",
			event:  teamauth.ActivityEvent{Email: "a@korea.ac.kr"},
			expect: "a@korea.ac.kr",
		},
		{
			name:   "uses default fallback when nobody is named",
			event:  teamauth.ActivityEvent{},
			expect: "anonymous",
		},
		{
			name:   "uses configured fallback",
			event:  teamauth.ActivityEvent{},
			opts:   []activitymap.Option{activitymap.WithActorFallback("cli")},
			expect: "cli",
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			out := activitymap.Normalize(tc.event, tc.opts...)
			if out.ActorID != tc.expect {
				t.Fatalf("expected actor_id %q, got %q", tc.expect, out.ActorID)
			}
		})
	}
}

func TestSinkWritesJSONLines(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	sink := activitymap.NewSink(&buf)
	ctx := context.Background()

	if err := sink.Record(ctx, teamauth.ActivityEvent{EventType: teamauth.ActivityEventSignOut, Flow: "signout"}); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := sink.Record(ctx, teamauth.ActivityEvent{EventType: teamauth.ActivityEventSignInSuccess, UserID: "7"}); err != nil {
		t.Fatalf("record: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %q", len(lines), buf.String())
	}

	var second activitymap.Normalized
	if err := json.Unmarshal([]byte(lines[1]), &second); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if second.ActorID != "7" || second.Verb != string(teamauth.ActivityEventSignInSuccess) {
		t.Fatalf("unexpected record %+v", second)
	}
}
