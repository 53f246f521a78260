// Package locktable guarantees single-writer access to an order across the
// stations sharing one store. The authoritative table lives on the main
// station; sub stations hold a receive-only mirror fed by push events and
// take locks through the main station's lock RPC.
package locktable

import (
	"context"
	"errors"
	"log"
	"sync"

	"floorpos/backend/internal/domain"
	"floorpos/backend/internal/events"
	"floorpos/backend/internal/store"
)

var ErrAlreadyLocked = errors.New("order is locked by another station")

// Service is the lock surface used by the mutation pipeline. The main
// station's Table implements it directly; sub stations use the remote client.
type Service interface {
	// Lock is all-or-nothing over the requested set: if any order is held
	// by a different station nothing is locked and ErrAlreadyLocked is
	// returned. On success it returns fresh persisted snapshots of every
	// requested order.
	Lock(ctx context.Context, stationID string, orderIDs []string) ([]domain.Order, error)
	// UnlockAll releases every lock owned by the station. Idempotent.
	UnlockAll(ctx context.Context, stationID string) error
	// Locked returns the current orderID -> stationID table.
	Locked(ctx context.Context) (map[string]string, error)
}

// Table is the authoritative in-memory lock table. Every mutation republishes
// the entire table so late subscribers converge from a single event.
type Table struct {
	storeID string
	repo    store.Repository
	channel events.Channel

	mu      sync.Mutex
	entries map[string]string
}

func New(storeID string, repo store.Repository, channel events.Channel) *Table {
	return &Table{
		storeID: storeID,
		repo:    repo,
		channel: channel,
		entries: make(map[string]string),
	}
}

func (t *Table) Lock(ctx context.Context, stationID string, orderIDs []string) ([]domain.Order, error) {
	if stationID == "" || len(orderIDs) == 0 {
		return nil, store.ErrInvalid
	}

	t.mu.Lock()
	for _, id := range orderIDs {
		if owner, held := t.entries[id]; held && owner != stationID {
			t.mu.Unlock()
			return nil, ErrAlreadyLocked
		}
	}
	for _, id := range orderIDs {
		t.entries[id] = stationID
	}
	t.mu.Unlock()

	orders, err := t.repo.GetOrders(ctx, orderIDs)
	if err == nil && len(orders) != len(orderIDs) {
		err = store.ErrNotFound
	}
	if err != nil {
		// Roll the tentative entries back so a failed request locks nothing.
		t.mu.Lock()
		for _, id := range orderIDs {
			if t.entries[id] == stationID {
				delete(t.entries, id)
			}
		}
		t.mu.Unlock()
		return nil, err
	}

	t.publish(ctx)
	return orders, nil
}

func (t *Table) UnlockAll(ctx context.Context, stationID string) error {
	t.mu.Lock()
	changed := false
	for id, owner := range t.entries {
		if owner == stationID {
			delete(t.entries, id)
			changed = true
		}
	}
	t.mu.Unlock()

	if changed {
		t.publish(ctx)
	}
	return nil
}

func (t *Table) Locked(_ context.Context) (map[string]string, error) {
	return t.Snapshot(), nil
}

// Snapshot returns a copy of the current table.
func (t *Table) Snapshot() map[string]string {
	t.mu.Lock()
	defer t.mu.Unlock()

	snapshot := make(map[string]string, len(t.entries))
	for id, owner := range t.entries {
		snapshot[id] = owner
	}
	return snapshot
}

// publish broadcasts the full table. The local table stays authoritative, so
// a broadcast failure is logged rather than failing the lock operation.
func (t *Table) publish(ctx context.Context) {
	err := t.channel.Publish(ctx, domain.Event{
		Type:         domain.EventLockedOrdersChanged,
		StoreID:      t.storeID,
		LockedOrders: t.Snapshot(),
	})
	if err != nil {
		log.Printf("[locktable] failed to broadcast lock snapshot: %v", err)
	}
}

// Mirror is a sub station's receive-only view of the main station's table.
type Mirror struct {
	mu      sync.RWMutex
	entries map[string]string
}

func NewMirror() *Mirror {
	return &Mirror{entries: make(map[string]string)}
}

// Apply replaces the mirror with the snapshot carried by a
// LockedOrdersChanged event; other event types are ignored.
func (m *Mirror) Apply(event domain.Event) {
	if event.Type != domain.EventLockedOrdersChanged {
		return
	}
	m.Seed(event.LockedOrders)
}

// Seed replaces the mirror wholesale, used at startup to prime it from the
// cached snapshot before the first push event arrives.
func (m *Mirror) Seed(snapshot map[string]string) {
	entries := make(map[string]string, len(snapshot))
	for id, owner := range snapshot {
		entries[id] = owner
	}

	m.mu.Lock()
	m.entries = entries
	m.mu.Unlock()
}

func (m *Mirror) Snapshot() map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snapshot := make(map[string]string, len(m.entries))
	for id, owner := range m.entries {
		snapshot[id] = owner
	}
	return snapshot
}

// Owner returns the station holding the order, if any.
func (m *Mirror) Owner(orderID string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	owner, held := m.entries[orderID]
	return owner, held
}
