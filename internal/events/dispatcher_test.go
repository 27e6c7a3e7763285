package events

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/spec-kit/family-session/internal/domain"
)

func TestPublishReachesSubscribersInOrder(t *testing.T) {
	t.Parallel()

	d := NewInMemoryDispatcher(zap.NewNop())
	var seen []string
	d.Subscribe(EventSessionStateChanged, func(_ context.Context, ev Event) error {
		seen = append(seen, "first:"+string(ev.State.Phase))
		return nil
	})
	d.Subscribe(EventSessionStateChanged, func(_ context.Context, ev Event) error {
		seen = append(seen, "second:"+string(ev.State.Phase))
		return nil
	})

	err := d.Publish(context.Background(), Event{
		Type:  EventSessionStateChanged,
		State: domain.SessionState{Phase: domain.PhasePrimaryOnly},
	})
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if len(seen) != 2 || seen[0] != "first:primary_only" || seen[1] != "second:primary_only" {
		t.Fatalf("handlers saw %v", seen)
	}
}

func TestHandlerErrorDoesNotStopOthers(t *testing.T) {
	t.Parallel()

	d := NewInMemoryDispatcher(zap.NewNop())
	reached := false
	d.Subscribe(EventTokenInvalidated, func(context.Context, Event) error {
		return errors.New("boom")
	})
	d.Subscribe(EventTokenInvalidated, func(context.Context, Event) error {
		reached = true
		return nil
	})

	if err := d.Publish(context.Background(), Event{Type: EventTokenInvalidated}); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if !reached {
		t.Fatal("second handler not reached after first errored")
	}
}

func TestPublishIgnoresOtherEventTypes(t *testing.T) {
	t.Parallel()

	d := NewInMemoryDispatcher(zap.NewNop())
	called := false
	d.Subscribe(EventProfileEntered, func(context.Context, Event) error {
		called = true
		return nil
	})

	_ = d.Publish(context.Background(), Event{Type: EventProfileExited})
	if called {
		t.Fatal("handler fired for a different event type")
	}
}
