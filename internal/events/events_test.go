package events

import (
	"context"
	"testing"

	"floorpos/backend/internal/domain"
)

func TestLoopbackDeliversInPublishOrder(t *testing.T) {
	ch := NewLoopback()
	var got []string
	ch.Subscribe(func(e domain.Event) {
		got = append(got, e.OrderID)
	})

	for _, id := range []string{"o1", "o2", "o3"} {
		if err := ch.Publish(context.Background(), domain.Event{Type: domain.EventOrderChanged, OrderID: id}); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}

	if len(got) != 3 || got[0] != "o1" || got[1] != "o2" || got[2] != "o3" {
		t.Fatalf("events delivered out of order: %v", got)
	}
}

func TestLoopbackReplaysLastEventToLateSubscriber(t *testing.T) {
	ch := NewLoopback()

	_ = ch.Publish(context.Background(), domain.Event{
		Type:         domain.EventLockedOrdersChanged,
		LockedOrders: map[string]string{"order-1": "station-a"},
	})
	_ = ch.Publish(context.Background(), domain.Event{
		Type:         domain.EventLockedOrdersChanged,
		LockedOrders: map[string]string{"order-1": "station-a", "order-2": "station-b"},
	})

	var snapshots []map[string]string
	ch.Subscribe(func(e domain.Event) {
		snapshots = append(snapshots, e.LockedOrders)
	})

	if len(snapshots) != 1 {
		t.Fatalf("expected exactly the latest snapshot replayed, got %d events", len(snapshots))
	}
	if len(snapshots[0]) != 2 {
		t.Fatalf("late subscriber got stale snapshot: %v", snapshots[0])
	}
}

func TestLoopbackCancelStopsDelivery(t *testing.T) {
	ch := NewLoopback()
	count := 0
	cancel := ch.Subscribe(func(domain.Event) { count++ })

	_ = ch.Publish(context.Background(), domain.Event{Type: domain.EventOrderChanged, OrderID: "o1"})
	cancel()
	_ = ch.Publish(context.Background(), domain.Event{Type: domain.EventOrderChanged, OrderID: "o2"})

	if count != 1 {
		t.Fatalf("expected 1 delivery after cancel, got %d", count)
	}
}
