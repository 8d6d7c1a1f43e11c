// Package activitymap turns flow activity events into a flat audit record
// and writes them as JSON lines.
package activitymap

import (
	"context"
	"encoding/json"
	"io"
	"strings"
	"sync"
	"time"

	teamauth "github.com/teamup-ku/go-teamauth"
)

const (
	// MetadataKeyFlow stores the flow that emitted the event.
	MetadataKeyFlow = "flow"
	// MetadataKeyEmail stores the email the flow ran for.
	MetadataKeyEmail = "email"
	// MetadataKeyFromState stores the source state of a transition.
	MetadataKeyFromState = "from_state"
	// MetadataKeyToState stores the target state of a transition.
	MetadataKeyToState = "to_state"
)

const (
	defaultChannel    = "auth"
	defaultObjectType = "session"
	defaultActorID    = "anonymous"
)

// Normalized is a transport-agnostic activity shape for downstream systems.
type Normalized struct {
	ActorID    string         `json:"actor_id"`
	Verb       string         `json:"verb"`
	ObjectType string         `json:"object_type,omitempty"`
	ObjectID   string         `json:"object_id,omitempty"`
	Channel    string         `json:"channel,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// Option customizes normalization behavior.
type Option func(*normalizeOptions)

type normalizeOptions struct {
	channel          string
	objectType       string
	actorFallback    string
	objectIDResolver func(teamauth.ActivityEvent) string
	now              func() time.Time
}

// Normalize converts a flow event into the generic shape. The actor is the
// user id, then the email, then the fallback.
func Normalize(event teamauth.ActivityEvent, opts ...Option) Normalized {
	options := defaultNormalizeOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	actorID := firstNonEmpty(
		strings.TrimSpace(event.UserID),
		strings.TrimSpace(event.Email),
		strings.TrimSpace(options.actorFallback),
	)

	occurredAt := event.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = options.now().UTC()
	}

	return Normalized{
		ActorID:    actorID,
		Verb:       string(event.EventType),
		ObjectType: strings.TrimSpace(options.objectType),
		ObjectID:   resolveObjectID(event, options.objectIDResolver),
		Channel:    strings.TrimSpace(options.channel),
		Metadata:   normalizeMetadata(event),
		OccurredAt: occurredAt,
	}
}

// WithDefaultChannel sets the default channel for normalized records.
func WithDefaultChannel(channel string) Option {
	return func(opts *normalizeOptions) {
		opts.channel = strings.TrimSpace(channel)
	}
}

// WithDefaultObjectType sets the default object type for normalized records.
func WithDefaultObjectType(objectType string) Option {
	return func(opts *normalizeOptions) {
		opts.objectType = strings.TrimSpace(objectType)
	}
}

// WithObjectIDResolver overrides object-id extraction. The default is the
// flow name.
func WithObjectIDResolver(resolver func(teamauth.ActivityEvent) string) Option {
	return func(opts *normalizeOptions) {
		opts.objectIDResolver = resolver
	}
}

// WithActorFallback sets the actor id used when the event names nobody.
func WithActorFallback(actorID string) Option {
	return func(opts *normalizeOptions) {
		opts.actorFallback = strings.TrimSpace(actorID)
	}
}

// WithClock sets the time used for events without a timestamp.
func WithClock(now func() time.Time) Option {
	return func(opts *normalizeOptions) {
		if now != nil {
			opts.now = now
		}
	}
}

func defaultNormalizeOptions() normalizeOptions {
	return normalizeOptions{
		channel:       defaultChannel,
		objectType:    defaultObjectType,
		actorFallback: defaultActorID,
		now:           time.Now,
	}
}

func resolveObjectID(event teamauth.ActivityEvent, resolver func(teamauth.ActivityEvent) string) string {
	if resolver != nil {
		return strings.TrimSpace(resolver(event))
	}
	return strings.TrimSpace(event.Flow)
}

func normalizeMetadata(event teamauth.ActivityEvent) map[string]any {
	metadata := cloneMap(event.Metadata)
	set := func(key, value string) {
		if value == "" {
			return
		}
		if metadata == nil {
			metadata = map[string]any{}
		}
		if _, exists := metadata[key]; !exists {
			metadata[key] = value
		}
	}

	set(MetadataKeyFlow, strings.TrimSpace(event.Flow))
	set(MetadataKeyEmail, strings.TrimSpace(event.Email))
	set(MetadataKeyFromState, string(event.FromState))
	set(MetadataKeyToState, string(event.ToState))
	return metadata
}

func cloneMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}

// Sink writes each event as one normalized JSON line.
type Sink struct {
	mu   sync.Mutex
	enc  *json.Encoder
	opts []Option
}

// NewSink writes to w with the given normalization options.
func NewSink(w io.Writer, opts ...Option) *Sink {
	return &Sink{enc: json.NewEncoder(w), opts: opts}
}

// Record implements teamauth.ActivitySink.
func (s *Sink) Record(_ context.Context, event teamauth.ActivityEvent) error {
	record := Normalize(event, s.opts...)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enc.Encode(record)
}
