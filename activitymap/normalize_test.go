package activitymap_test

import (
	"context"
	"testing"
	"time"

	auth "github.com/goliatone/go-authd"
	"github.com/goliatone/go-authd/activitymap"
)

func TestNormalizeDefaults(t *testing.T) {
	t.Parallel()

	ts := time.Date(2026, 1, 10, 9, 30, 0, 0, time.UTC)
	event := auth.ActivityEvent{
		EventType: auth.ActivityEventSocialLogin,
		OpaqueID:  "acc-100",
		Provider:  auth.ProviderKakao,
		DeviceID:  "ios-1",
		Metadata: map[string]any{
			"new_account": true,
		},
		OccurredAt: ts,
	}

	out := activitymap.Normalize(event)

	if out.ActorID != "acc-100" {
		t.Fatalf("expected actor_id acc-100, got %q", out.ActorID)
	}
	if out.Verb != string(auth.ActivityEventSocialLogin) {
		t.Fatalf("expected verb %q, got %q", auth.ActivityEventSocialLogin, out.Verb)
	}
	if out.ObjectType != "account" {
		t.Fatalf("expected object_type account, got %q", out.ObjectType)
	}
	if out.ObjectID != "acc-100" {
		t.Fatalf("expected object_id acc-100, got %q", out.ObjectID)
	}
	if out.Channel != "auth" {
		t.Fatalf("expected channel auth, got %q", out.Channel)
	}
	if !out.OccurredAt.Equal(ts) {
		t.Fatalf("expected occurred_at %v, got %v", ts, out.OccurredAt)
	}
	if out.Metadata["new_account"] != true {
		t.Fatalf("expected metadata new_account, got %#v", out.Metadata["new_account"])
	}
	if out.Metadata[activitymap.MetadataKeyProvider] != string(auth.ProviderKakao) {
		t.Fatalf("expected metadata provider kakao, got %#v", out.Metadata[activitymap.MetadataKeyProvider])
	}
	if out.Metadata[activitymap.MetadataKeyDeviceID] != "ios-1" {
		t.Fatalf("expected metadata device_id ios-1, got %#v", out.Metadata[activitymap.MetadataKeyDeviceID])
	}

	if len(event.Metadata) != 1 {
		t.Fatalf("expected source metadata to remain unchanged, got %+v", event.Metadata)
	}
}

func TestNormalizeOptionOverrides(t *testing.T) {
	t.Parallel()

	event := auth.ActivityEvent{
		EventType: auth.ActivityEventMerge,
		OpaqueID:  "acc-200",
		Metadata: map[string]any{
			"merged_from":                   "acc-300",
			activitymap.MetadataKeyProvider: "existing",
		},
		Provider: auth.ProviderGoogle,
	}

	out := activitymap.Normalize(
		event,
		activitymap.WithDefaultChannel("security"),
		activitymap.WithDefaultObjectType("merge"),
		activitymap.WithObjectIDResolver(func(e auth.ActivityEvent) string {
			if v, ok := e.Metadata["merged_from"].(string); ok {
				return v
			}
			return ""
		}),
	)

	if out.Channel != "security" {
		t.Fatalf("expected channel security, got %q", out.Channel)
	}
	if out.ObjectType != "merge" {
		t.Fatalf("expected object_type merge, got %q", out.ObjectType)
	}
	if out.ObjectID != "acc-300" {
		t.Fatalf("expected object_id acc-300, got %q", out.ObjectID)
	}
	if out.Metadata[activitymap.MetadataKeyProvider] != "existing" {
		t.Fatalf("expected existing provider preserved, got %#v", out.Metadata[activitymap.MetadataKeyProvider])
	}
	if _, ok := out.Metadata[activitymap.MetadataKeyDeviceID]; ok {
		t.Fatalf("expected no device_id for blank device")
	}
	if out.OccurredAt.IsZero() {
		t.Fatalf("expected occurred_at to be set when input is zero")
	}
}

func TestNormalizeActorFallback(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		event  auth.ActivityEvent
		opts   []activitymap.Option
		expect string
	}{
		{
			name:   "uses opaque id when present",
			event:  auth.ActivityEvent{OpaqueID: "acc-1"},
			expect: "acc-1",
		},
		{
			name:   "uses default fallback without an account",
			event:  auth.ActivityEvent{},
			expect: "system",
		},
		{
			name:   "uses configured fallback without an account",
			event:  auth.ActivityEvent{},
			opts:   []activitymap.Option{activitymap.WithActorFallback("job")},
			expect: "job",
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

func TestSinkForwardsNormalizedRecords(t *testing.T) {
	t.Parallel()

	var got []activitymap.Normalized
	sink := activitymap.Sink(func(_ context.Context, n activitymap.Normalized) error {
		got = append(got, n)
		return nil
	}, activitymap.WithDefaultChannel("audit"))

	err := sink.Record(context.Background(), auth.ActivityEvent{
		EventType: auth.ActivityEventLogout,
		OpaqueID:  "acc-9",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].Verb != string(auth.ActivityEventLogout) || got[0].Channel != "audit" {
		t.Fatalf("unexpected records: %+v", got)
	}
}

func TestMapperClockForZeroTimestamps(t *testing.T) {
	t.Parallel()

	fixed := time.Date(2025, 3, 1, 12, 0, 0, 0, time.FixedZone("KST", 9*3600))
	mapper := activitymap.NewMapper()
	mapper.Now = func() time.Time { return fixed }

	out := mapper.Map(auth.ActivityEvent{EventType: auth.ActivityEventRefresh, OpaqueID: "acc-1"})
	if !out.OccurredAt.Equal(fixed) || out.OccurredAt.Location() != time.UTC {
		t.Fatalf("expected %v in UTC, got %v", fixed, out.OccurredAt)
	}
	if out.Metadata != nil {
		t.Fatalf("expected nil metadata, got %+v", out.Metadata)
	}
}
