package teamauth

import (
	"context"
	"sync"
	"time"
)

// FlowState is a step of the sign-in / onboarding handshake.
type FlowState string

const (
	FlowIdle                 FlowState = "idle"
	FlowAuthenticating       FlowState = "authenticating"
	FlowExchanging           FlowState = "exchanging"
	FlowOnboarding           FlowState = "onboarding"
	FlowCompletingOnboarding FlowState = "completing_onboarding"
	FlowAuthenticated        FlowState = "authenticated"
	FlowPendingConfirmation  FlowState = "pending_confirmation"
	FlowFailed               FlowState = "failed"
)

// Terminal reports whether a run ends in s.
func (s FlowState) Terminal() bool {
	switch s {
	case FlowAuthenticated, FlowFailed, FlowPendingConfirmation:
		return true
	}
	return false
}

// TransitionMetadata captures extra context for a transition.
type TransitionMetadata struct {
	Reason   string
	Metadata map[string]any
}

// TransitionOption customizes a single transition.
type TransitionOption func(*transitionOptions)

// StateMachineOption customizes state machine construction.
type StateMachineOption func(*FlowStateMachine)

// WithStateMachineClock injects a custom clock (useful for tests).
func WithStateMachineClock(clock func() time.Time) StateMachineOption {
	return func(sm *FlowStateMachine) {
		if clock != nil {
			sm.now = clock
		}
	}
}

// WithStateMachineActivitySink sets the ActivitySink used to publish transitions.
func WithStateMachineActivitySink(sink ActivitySink) StateMachineOption {
	return func(sm *FlowStateMachine) {
		sm.activitySink = normalizeActivitySink(sink)
	}
}

// WithStateMachineLogger overrides the logger used for sink failures.
func WithStateMachineLogger(logger Logger) StateMachineOption {
	return func(sm *FlowStateMachine) {
		if logger != nil {
			sm.logger = logger
		}
	}
}

// WithTransitionReason sets the human-readable reason for the transition.
func WithTransitionReason(reason string) TransitionOption {
	return func(opts *transitionOptions) {
		opts.metadata.Reason = reason
	}
}

// WithTransitionMetadata merges metadata into the transition event.
func WithTransitionMetadata(metadata map[string]any) TransitionOption {
	return func(opts *transitionOptions) {
		if len(metadata) == 0 {
			return
		}
		if opts.metadata.Metadata == nil {
			opts.metadata.Metadata = make(map[string]any, len(metadata))
		}
		for k, v := range metadata {
			opts.metadata.Metadata[k] = v
		}
	}
}

// WithForceTransition bypasses the transition table (use sparingly).
func WithForceTransition() TransitionOption {
	return func(opts *transitionOptions) {
		opts.force = true
	}
}

// FlowStateMachine validates moves through the handshake against a fixed
// transition table and publishes each accepted move.
type FlowStateMachine struct {
	mu           sync.RWMutex
	state        FlowState
	flow         string
	transitions  map[FlowState]map[FlowState]struct{}
	now          func() time.Time
	activitySink ActivitySink
	logger       Logger
}

type transitionOptions struct {
	metadata TransitionMetadata
	force    bool
}

// NewFlowStateMachine returns a machine in FlowIdle.
func NewFlowStateMachine(opts ...StateMachineOption) *FlowStateMachine {
	sm := &FlowStateMachine{
		state: FlowIdle,
		transitions: map[FlowState]map[FlowState]struct{}{
			FlowIdle: {
				FlowAuthenticating: {},
				FlowFailed:         {},
			},
			FlowAuthenticating: {
				FlowExchanging:          {},
				FlowPendingConfirmation: {},
				FlowFailed:              {},
			},
			FlowExchanging: {
				FlowAuthenticated: {},
				FlowOnboarding:    {},
				FlowFailed:        {},
			},
			FlowOnboarding: {
				FlowCompletingOnboarding: {},
				FlowFailed:               {},
			},
			FlowCompletingOnboarding: {
				FlowAuthenticated: {},
				FlowFailed:        {},
			},
			FlowFailed: {
				FlowOnboarding: {},
				FlowIdle:       {},
			},
			FlowAuthenticated: {
				FlowIdle: {},
			},
			FlowPendingConfirmation: {
				FlowIdle: {},
			},
		},
		now:          time.Now,
		activitySink: noopActivitySink{},
		logger:       defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(sm)
		}
	}

	return sm
}

// Current returns the current state.
func (sm *FlowStateMachine) Current() FlowState {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.state
}

// CanTransition reports whether the table has an edge from -> to.
func (sm *FlowStateMachine) CanTransition(from, to FlowState) bool {
	if allowed, ok := sm.transitions[from]; ok {
		_, exists := allowed[to]
		return exists
	}
	return false
}

// Begin resets the machine to FlowIdle for a new run of flow.
func (sm *FlowStateMachine) Begin(ctx context.Context, flow string) {
	sm.mu.Lock()
	from := sm.state
	sm.state = FlowIdle
	sm.flow = flow
	sm.mu.Unlock()

	if from != FlowIdle {
		sm.recordActivity(ctx, from, FlowIdle, flow, TransitionMetadata{Reason: "reset"})
	}
}

// Transition moves to target. Moving to the current state is a no-op.
func (sm *FlowStateMachine) Transition(ctx context.Context, target FlowState, opts ...TransitionOption) error {
	if target == "" {
		return ErrInvalidTransition.Clone().WithMetadata(map[string]any{
			"reason": "target state is empty",
		})
	}

	options := &transitionOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(options)
		}
	}

	sm.mu.Lock()
	from := sm.state
	if from == target {
		sm.mu.Unlock()
		return nil
	}
	if !options.force && !sm.CanTransition(from, target) {
		sm.mu.Unlock()
		return ErrInvalidTransition.Clone().WithMetadata(map[string]any{
			"from": from,
			"to":   target,
		})
	}
	sm.state = target
	flow := sm.flow
	sm.mu.Unlock()

	sm.recordActivity(ctx, from, target, flow, options.metadata)
	return nil
}

func (sm *FlowStateMachine) recordActivity(ctx context.Context, from, to FlowState, flow string, meta TransitionMetadata) {
	event := ActivityEvent{
		EventType:  ActivityEventFlowTransition,
		Flow:       flow,
		FromState:  from,
		ToState:    to,
		Metadata:   transitionEventMetadata(meta),
		OccurredAt: sm.now(),
	}

	sink := normalizeActivitySink(sm.activitySink)
	if err := sink.Record(ctx, event); err != nil {
		sm.logger.Warn("state machine activity sink error", "error", err)
	}
}

func transitionEventMetadata(meta TransitionMetadata) map[string]any {
	if meta.Reason == "" && len(meta.Metadata) == 0 {
		return nil
	}

	result := map[string]any{}
	if meta.Reason != "" {
		result["reason"] = meta.Reason
	}
	for k, v := range meta.Metadata {
		result[k] = v
	}
	return result
}
