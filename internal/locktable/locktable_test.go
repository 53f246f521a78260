package locktable

import (
	"context"
	"errors"
	"testing"
	"time"

	"floorpos/backend/internal/domain"
	"floorpos/backend/internal/events"
	"floorpos/backend/internal/store"
	"floorpos/backend/internal/store/memory"
)

func seedOrders(t *testing.T, repo *memory.Store, ids ...string) {
	t.Helper()
	for _, id := range ids {
		order := domain.Order{
			ID:      id,
			StoreID: "main-store",
			Status:  domain.OrderStatusSubmitted,
			Bills: []domain.Bill{{
				ID:    id + "-bill",
				Items: []domain.OrderItem{{ID: id + "-item", Name: "Coffee", UnitCents: 450, Qty: 1}},
			}},
			UpdatedAt: time.Now().UTC(),
		}
		if _, err := repo.SaveOrder(context.Background(), order); err != nil {
			t.Fatalf("seed order %s: %v", id, err)
		}
	}
}

func newTable(t *testing.T) (*Table, *memory.Store) {
	t.Helper()
	repo := memory.NewSeeded()
	return New("main-store", repo, events.NewLoopback()), repo
}

func TestLockMutualExclusion(t *testing.T) {
	table, repo := newTable(t)
	seedOrders(t, repo, "order-1")
	ctx := context.Background()

	if _, err := table.Lock(ctx, "station-a", []string{"order-1"}); err != nil {
		t.Fatalf("first lock failed: %v", err)
	}

	if _, err := table.Lock(ctx, "station-b", []string{"order-1"}); !errors.Is(err, ErrAlreadyLocked) {
		t.Fatalf("second lock error = %v, want ErrAlreadyLocked", err)
	}

	if err := table.UnlockAll(ctx, "station-a"); err != nil {
		t.Fatalf("unlock failed: %v", err)
	}
	if _, err := table.Lock(ctx, "station-b", []string{"order-1"}); err != nil {
		t.Fatalf("lock after unlock failed: %v", err)
	}
}

func TestLockIsReentrantForSameStation(t *testing.T) {
	table, repo := newTable(t)
	seedOrders(t, repo, "order-1")
	ctx := context.Background()

	if _, err := table.Lock(ctx, "station-a", []string{"order-1"}); err != nil {
		t.Fatalf("first lock failed: %v", err)
	}
	if _, err := table.Lock(ctx, "station-a", []string{"order-1"}); err != nil {
		t.Fatalf("re-lock by owner failed: %v", err)
	}
}

func TestLockSetIsAllOrNothing(t *testing.T) {
	table, repo := newTable(t)
	seedOrders(t, repo, "order-1", "order-2", "order-3")
	ctx := context.Background()

	if _, err := table.Lock(ctx, "station-b", []string{"order-2"}); err != nil {
		t.Fatalf("setup lock failed: %v", err)
	}

	_, err := table.Lock(ctx, "station-a", []string{"order-1", "order-2", "order-3"})
	if !errors.Is(err, ErrAlreadyLocked) {
		t.Fatalf("batch lock error = %v, want ErrAlreadyLocked", err)
	}

	snapshot := table.Snapshot()
	if len(snapshot) != 1 || snapshot["order-2"] != "station-b" {
		t.Fatalf("partial lock state observable after failed batch: %v", snapshot)
	}
}

func TestLockMissingOrderLocksNothing(t *testing.T) {
	table, repo := newTable(t)
	seedOrders(t, repo, "order-1")
	ctx := context.Background()

	_, err := table.Lock(ctx, "station-a", []string{"order-1", "order-gone"})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("lock error = %v, want ErrNotFound", err)
	}
	if len(table.Snapshot()) != 0 {
		t.Fatalf("locks held after failed request: %v", table.Snapshot())
	}
}

func TestUnlockAllIsIdempotent(t *testing.T) {
	table, _ := newTable(t)
	ctx := context.Background()

	if err := table.UnlockAll(ctx, "station-a"); err != nil {
		t.Fatalf("unlock with no held locks errored: %v", err)
	}
	if err := table.UnlockAll(ctx, "station-a"); err != nil {
		t.Fatalf("repeated unlock errored: %v", err)
	}
}

func TestLockRepublishesFullSnapshot(t *testing.T) {
	repo := memory.NewSeeded()
	channel := events.NewLoopback()
	table := New("main-store", repo, channel)
	seedOrders(t, repo, "order-1", "order-2")
	ctx := context.Background()

	if _, err := table.Lock(ctx, "station-a", []string{"order-1"}); err != nil {
		t.Fatalf("lock failed: %v", err)
	}
	if _, err := table.Lock(ctx, "station-b", []string{"order-2"}); err != nil {
		t.Fatalf("lock failed: %v", err)
	}

	// A mirror subscribing after both locks must still converge, because the
	// channel retains the last full-snapshot event.
	mirror := NewMirror()
	channel.Subscribe(mirror.Apply)

	snapshot := mirror.Snapshot()
	if snapshot["order-1"] != "station-a" || snapshot["order-2"] != "station-b" {
		t.Fatalf("late mirror did not converge: %v", snapshot)
	}

	if err := table.UnlockAll(ctx, "station-a"); err != nil {
		t.Fatalf("unlock failed: %v", err)
	}
	if owner, held := mirror.Owner("order-1"); held {
		t.Fatalf("mirror still shows order-1 held by %s", owner)
	}
}

func TestMirrorSeedPrimesBeforeFirstEvent(t *testing.T) {
	mirror := NewMirror()
	mirror.Seed(map[string]string{"order-1": "station-a"})

	if owner, held := mirror.Owner("order-1"); !held || owner != "station-a" {
		t.Fatalf("seeded owner = %q/%v, want station-a/true", owner, held)
	}

	// The next push event replaces the seeded view wholesale.
	mirror.Apply(domain.Event{
		Type:         domain.EventLockedOrdersChanged,
		LockedOrders: map[string]string{"order-2": "station-b"},
	})
	if _, held := mirror.Owner("order-1"); held {
		t.Fatalf("stale seeded entry survived a snapshot event")
	}
	if owner, _ := mirror.Owner("order-2"); owner != "station-b" {
		t.Fatalf("mirror did not adopt the event snapshot: %v", mirror.Snapshot())
	}
}

func TestLockReturnsPersistedSnapshots(t *testing.T) {
	table, repo := newTable(t)
	seedOrders(t, repo, "order-1")

	orders, err := table.Lock(context.Background(), "station-a", []string{"order-1"})
	if err != nil {
		t.Fatalf("lock failed: %v", err)
	}
	if len(orders) != 1 || orders[0].ID != "order-1" {
		t.Fatalf("unexpected snapshots: %+v", orders)
	}
	if orders[0].Revision == 0 {
		t.Fatalf("snapshot should carry the persisted revision")
	}
}
