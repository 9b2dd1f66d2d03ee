// Package activitymap turns auth activity events into flat records for audit
// logs, queues or analytics pipelines.
package activitymap

import (
	"context"
	"strings"
	"time"

	auth "github.com/goliatone/go-authd"
)

// Metadata keys added from the event's own fields.
const (
	MetadataKeyProvider = "provider"
	MetadataKeyDeviceID = "device_id"
)

// Normalized is a transport-agnostic activity record.
type Normalized struct {
	ActorID    string         `json:"actor_id"`
	Verb       string         `json:"verb"`
	ObjectType string         `json:"object_type,omitempty"`
	ObjectID   string         `json:"object_id,omitempty"`
	Channel    string         `json:"channel,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// Mapper holds the defaults applied while normalizing.
type Mapper struct {
	Channel       string
	ObjectType    string
	ActorFallback string
	ObjectID      func(auth.ActivityEvent) string
	Now           func() time.Time
}

// Option customizes a Mapper.
type Option func(*Mapper)

// NewMapper returns a Mapper for the "auth" channel where accounts act on
// themselves.
func NewMapper(opts ...Option) *Mapper {
	m := &Mapper{
		Channel:       "auth",
		ObjectType:    "account",
		ActorFallback: "system",
		Now:           time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

func WithDefaultChannel(channel string) Option {
	return func(m *Mapper) {
		m.Channel = strings.TrimSpace(channel)
	}
}

func WithDefaultObjectType(objectType string) Option {
	return func(m *Mapper) {
		m.ObjectType = strings.TrimSpace(objectType)
	}
}

// WithObjectIDResolver picks the object id from the event instead of the
// account's opaque id.
func WithObjectIDResolver(resolver func(auth.ActivityEvent) string) Option {
	return func(m *Mapper) {
		m.ObjectID = resolver
	}
}

// WithActorFallback sets the actor id for events without an account.
func WithActorFallback(actorID string) Option {
	return func(m *Mapper) {
		m.ActorFallback = strings.TrimSpace(actorID)
	}
}

// Map converts one event. The event's metadata is copied, never modified.
func (m *Mapper) Map(event auth.ActivityEvent) Normalized {
	opaqueID := strings.TrimSpace(event.OpaqueID)

	out := Normalized{
		ActorID:    opaqueID,
		Verb:       string(event.EventType),
		ObjectType: m.ObjectType,
		ObjectID:   opaqueID,
		Channel:    m.Channel,
		Metadata:   metadataOf(event),
		OccurredAt: event.OccurredAt,
	}

	if out.ActorID == "" {
		out.ActorID = m.ActorFallback
	}
	if m.ObjectID != nil {
		out.ObjectID = strings.TrimSpace(m.ObjectID(event))
	}
	if out.OccurredAt.IsZero() {
		out.OccurredAt = m.Now().UTC()
	}
	return out
}

// Sink returns an auth.ActivitySink that hands every mapped record to record.
func (m *Mapper) Sink(record func(context.Context, Normalized) error) auth.ActivitySink {
	return auth.ActivitySinkFunc(func(ctx context.Context, event auth.ActivityEvent) error {
		if record == nil {
			return nil
		}
		return record(ctx, m.Map(event))
	})
}

// Normalize maps event with a one-off Mapper.
func Normalize(event auth.ActivityEvent, opts ...Option) Normalized {
	return NewMapper(opts...).Map(event)
}

// Sink is shorthand for NewMapper(opts...).Sink(record).
func Sink(record func(context.Context, Normalized) error, opts ...Option) auth.ActivitySink {
	return NewMapper(opts...).Sink(record)
}

// metadataOf copies the event metadata and adds provider and device, keeping
// values the caller already set under those keys.
func metadataOf(event auth.ActivityEvent) map[string]any {
	extra := map[string]string{
		MetadataKeyProvider: string(event.Provider),
		MetadataKeyDeviceID: strings.TrimSpace(event.DeviceID),
	}

	out := make(map[string]any, len(event.Metadata)+len(extra))
	for k, v := range event.Metadata {
		out[k] = v
	}
	for k, v := range extra {
		if _, taken := out[k]; !taken && v != "" {
			out[k] = v
		}
	}

	if len(out) == 0 {
		return nil
	}
	return out
}
