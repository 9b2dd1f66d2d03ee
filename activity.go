package auth

import (
	"context"
	stderrors "errors"
	"time"
)

// ActivityEventType names an auditable auth action.
type ActivityEventType string

const (
	ActivityEventEmailLogin    ActivityEventType = "auth.login.email"
	ActivityEventSocialLogin   ActivityEventType = "auth.login.social"
	ActivityEventSignup        ActivityEventType = "auth.signup"
	ActivityEventRefresh       ActivityEventType = "auth.refresh"
	ActivityEventRefreshReplay ActivityEventType = "auth.refresh.replay"
	ActivityEventLogout        ActivityEventType = "auth.logout"
	ActivityEventLink          ActivityEventType = "auth.link"
	ActivityEventMerge         ActivityEventType = "auth.merge"
)

// ActivityEvent is emitted after a flow commits. Provider is empty for
// refresh and logout, DeviceID for device-less sessions.
type ActivityEvent struct {
	EventType  ActivityEventType
	OpaqueID   string
	Provider   ProviderType
	DeviceID   string
	Metadata   map[string]any
	OccurredAt time.Time
}

// ActivitySink receives activity events. Errors are logged by the caller
// and never fail the flow that produced the event.
type ActivitySink interface {
	Record(ctx context.Context, event ActivityEvent) error
}

type ActivitySinkFunc func(ctx context.Context, event ActivityEvent) error

func (f ActivitySinkFunc) Record(ctx context.Context, event ActivityEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

// MultiSink delivers every event to each sink in order and joins their errors.
func MultiSink(sinks ...ActivitySink) ActivitySink {
	targets := make([]ActivitySink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			targets = append(targets, s)
		}
	}
	return ActivitySinkFunc(func(ctx context.Context, event ActivityEvent) error {
		var errs []error
		for _, s := range targets {
			if err := s.Record(ctx, event); err != nil {
				errs = append(errs, err)
			}
		}
		return stderrors.Join(errs...)
	})
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
