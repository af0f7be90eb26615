package realtime

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/mizukilab/kaiseki-backend/internal/platform/logger"
)

func testHub(t *testing.T) *Hub {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return NewHub(log)
}

func TestHubBroadcastReachesSubscribers(t *testing.T) {
	hub := testHub(t)
	sessionID := uuid.New()

	c1 := hub.NewClient(uuid.New())
	c2 := hub.NewClient(uuid.New())
	hub.Subscribe(c1, sessionID)
	hub.Subscribe(c2, sessionID)

	other := hub.NewClient(uuid.New())
	hub.Subscribe(other, uuid.New())

	hub.Broadcast(NewEvent(sessionID, EventStepAdded, map[string]any{"step_id": uuid.New()}))

	for _, c := range []*Client{c1, c2} {
		select {
		case ev := <-c.Outbound:
			if ev.Type != EventStepAdded {
				t.Fatalf("unexpected event type %q", ev.Type)
			}
			if ev.SessionID != sessionID {
				t.Fatalf("unexpected session %s", ev.SessionID)
			}
		default:
			t.Fatalf("subscriber did not receive event")
		}
	}
	select {
	case ev := <-other.Outbound:
		t.Fatalf("unsubscribed client received %q", ev.Type)
	default:
	}
}

func TestHubUnsubscribeStopsDelivery(t *testing.T) {
	hub := testHub(t)
	sessionID := uuid.New()

	c := hub.NewClient(uuid.New())
	hub.Subscribe(c, sessionID)
	hub.Unsubscribe(c, sessionID)

	hub.Broadcast(NewEvent(sessionID, EventStepExecuted, nil))

	select {
	case ev := <-c.Outbound:
		t.Fatalf("unsubscribed client received %q", ev.Type)
	default:
	}
}

func TestHubDropsWhenBufferFull(t *testing.T) {
	hub := testHub(t)
	sessionID := uuid.New()

	c := hub.NewClient(uuid.New())
	hub.Subscribe(c, sessionID)

	for i := 0; i < cap(c.Outbound)+5; i++ {
		hub.Broadcast(NewEvent(sessionID, EventChatMessage, i))
	}
	if got := len(c.Outbound); got != cap(c.Outbound) {
		t.Fatalf("expected full buffer %d, got %d", cap(c.Outbound), got)
	}
}

func TestLocalBusPublishesToHub(t *testing.T) {
	hub := testHub(t)
	sessionID := uuid.New()

	c := hub.NewClient(uuid.New())
	hub.Subscribe(c, sessionID)

	bus := NewLocalBus(hub)
	if err := bus.Publish(context.Background(), NewEvent(sessionID, EventSnapshotSaved, nil)); err != nil {
		t.Fatalf("publish: %v", err)
	}
	select {
	case ev := <-c.Outbound:
		if ev.Type != EventSnapshotSaved {
			t.Fatalf("unexpected event type %q", ev.Type)
		}
	default:
		t.Fatalf("event not delivered")
	}
}
