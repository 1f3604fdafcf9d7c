package eventbus

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"uplevel-orchestrator/internal/domain"
)

func testBus() *Bus {
	return New(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestPublishReachesTypedSubscriber(t *testing.T) {
	bus := testBus()
	var got []domain.Event
	bus.Subscribe(domain.EventQueryReceived, func(_ context.Context, e domain.Event) {
		got = append(got, e)
	})

	bus.Publish(context.Background(), domain.Event{Type: domain.EventQueryReceived, SessionID: "s1"})
	bus.Publish(context.Background(), domain.Event{Type: domain.EventAgentResponded})

	if len(got) != 1 {
		t.Fatalf("len(got) = %d, want 1", len(got))
	}
	if got[0].SessionID != "s1" {
		t.Errorf("SessionID = %q", got[0].SessionID)
	}
}

func TestSubscribeAllSeesEverything(t *testing.T) {
	bus := testBus()
	count := 0
	bus.SubscribeAll(func(_ context.Context, e domain.Event) { count++ })

	bus.Publish(context.Background(), domain.Event{Type: domain.EventQueryReceived})
	bus.Publish(context.Background(), domain.Event{Type: domain.EventWorkflowStep})
	bus.Publish(context.Background(), domain.Event{Type: domain.EventStoreDegraded})

	if count != 3 {
		t.Fatalf("count = %d, want 3", count)
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	bus := testBus()
	count := 0
	unsub := bus.Subscribe(domain.EventQueryReceived, func(_ context.Context, e domain.Event) { count++ })

	bus.Publish(context.Background(), domain.Event{Type: domain.EventQueryReceived})
	unsub()
	bus.Publish(context.Background(), domain.Event{Type: domain.EventQueryReceived})

	if count != 1 {
		t.Fatalf("count = %d, want 1", count)
	}
}

func TestPanickingHandlerDoesNotStopOthers(t *testing.T) {
	bus := testBus()
	bus.Subscribe(domain.EventQueryReceived, func(_ context.Context, e domain.Event) {
		panic("bad subscriber")
	})
	delivered := false
	bus.Subscribe(domain.EventQueryReceived, func(_ context.Context, e domain.Event) {
		delivered = true
	})

	bus.Publish(context.Background(), domain.Event{Type: domain.EventQueryReceived})

	if !delivered {
		t.Fatal("panic in one handler blocked delivery to the next")
	}
}
