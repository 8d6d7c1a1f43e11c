package teamauth

import (
	"context"
	"errors"
	"time"
)

// ActivityEventType enumerates supported activity categories.
type ActivityEventType string

const (
	ActivityEventFlowTransition      ActivityEventType = "auth.flow.transition"
	ActivityEventSignInSuccess       ActivityEventType = "auth.signin.success"
	ActivityEventSignInFailure       ActivityEventType = "auth.signin.failure"
	ActivityEventSignUpPending       ActivityEventType = "auth.signup.pending"
	ActivityEventOnboardingRequired  ActivityEventType = "auth.onboarding.required"
	ActivityEventOnboardingCompleted ActivityEventType = "auth.onboarding.completed"
	ActivityEventOnboardingFailure   ActivityEventType = "auth.onboarding.failure"
	ActivityEventOAuthStarted        ActivityEventType = "auth.oauth.started"
	ActivityEventSignOut             ActivityEventType = "auth.signout"
	ActivityEventPasswordReset       ActivityEventType = "auth.password.reset"
	ActivityEventPasswordUpdated     ActivityEventType = "auth.password.updated"
)

// ActivityEvent captures audit-friendly information about a flow step.
type ActivityEvent struct {
	EventType  ActivityEventType
	Flow       string
	UserID     string
	Email      string
	FromState  FlowState
	ToState    FlowState
	Metadata   map[string]any
	OccurredAt time.Time
}

// ActivitySink consumes activity events for auditing/telemetry purposes.
// Sinks are best effort: errors are logged and never fail a flow.
type ActivitySink interface {
	Record(ctx context.Context, event ActivityEvent) error
}

// ActivitySinkFunc adapts a function to the ActivitySink interface.
type ActivitySinkFunc func(ctx context.Context, event ActivityEvent) error

// Record implements ActivitySink.
func (f ActivitySinkFunc) Record(ctx context.Context, event ActivityEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

// MultiActivitySink fans events out to every sink and joins their errors.
type MultiActivitySink []ActivitySink

// Record implements ActivitySink.
func (m MultiActivitySink) Record(ctx context.Context, event ActivityEvent) error {
	var errs []error
	for _, sink := range m {
		if sink == nil {
			continue
		}
		if err := sink.Record(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type noopActivitySink struct{}

func (noopActivitySink) Record(context.Context, ActivityEvent) error {
	return nil
}

func normalizeActivitySink(s ActivitySink) ActivitySink {
	if s == nil {
		return noopActivitySink{}
	}
	return s
}
