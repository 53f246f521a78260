package remote

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"floorpos/backend/internal/domain"
	"floorpos/backend/internal/locktable"
	"floorpos/backend/internal/store"
)

func newFakeMain(t *testing.T, locked map[string]string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("/api/v1/orders/lock", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer station-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var req struct {
			StationID string   `json:"station_id"`
			OrderIDs  []string `json:"order_ids"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		for _, id := range req.OrderIDs {
			if owner, held := locked[id]; held && owner != req.StationID {
				w.WriteHeader(http.StatusConflict)
				json.NewEncoder(w).Encode(map[string]string{"error": "order is locked by another station"})
				return
			}
		}
		orders := make([]domain.Order, 0, len(req.OrderIDs))
		for _, id := range req.OrderIDs {
			if id == "o-missing" {
				w.WriteHeader(http.StatusNotFound)
				json.NewEncoder(w).Encode(map[string]string{"error": "order not found"})
				return
			}
			locked[id] = req.StationID
			orders = append(orders, domain.Order{ID: id, Revision: 3})
		}
		json.NewEncoder(w).Encode(map[string]any{"orders": orders})
	})

	mux.HandleFunc("/api/v1/orders/unlock-all", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			StationID string `json:"station_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		for id, owner := range locked {
			if owner == req.StationID {
				delete(locked, id)
			}
		}
		json.NewEncoder(w).Encode(map[string]bool{"ok": true})
	})

	mux.HandleFunc("/api/v1/orders/locked", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"locked_orders": locked})
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestLockClientRoundTrip(t *testing.T) {
	locked := map[string]string{}
	server := newFakeMain(t, locked)
	client := NewLockClient(server.URL, "station-token")
	ctx := context.Background()

	orders, err := client.Lock(ctx, "station-sub", []string{"o-1", "o-2"})
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	if len(orders) != 2 || orders[0].Revision != 3 {
		t.Fatalf("unexpected snapshots %+v", orders)
	}

	table, err := client.Locked(ctx)
	if err != nil {
		t.Fatalf("locked: %v", err)
	}
	if table["o-1"] != "station-sub" || table["o-2"] != "station-sub" {
		t.Fatalf("unexpected table %v", table)
	}

	if err := client.UnlockAll(ctx, "station-sub"); err != nil {
		t.Fatalf("unlock all: %v", err)
	}
	table, err = client.Locked(ctx)
	if err != nil {
		t.Fatalf("locked after unlock: %v", err)
	}
	if len(table) != 0 {
		t.Fatalf("table not empty after unlock-all: %v", table)
	}
}

func TestStationLocksReadFromMirrorNotWire(t *testing.T) {
	// A server that would fail any table read proves Locked never leaves the
	// station.
	lockedGets := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/orders/locked", func(w http.ResponseWriter, r *http.Request) {
		lockedGets++
		w.WriteHeader(http.StatusInternalServerError)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	mirror := locktable.NewMirror()
	mirror.Seed(map[string]string{"o-9": "station-other"})
	locks := NewStationLocks(NewLockClient(server.URL, "station-token"), mirror)

	table, err := locks.Locked(context.Background())
	if err != nil {
		t.Fatalf("locked: %v", err)
	}
	if table["o-9"] != "station-other" {
		t.Fatalf("mirror read = %v, want o-9 held by station-other", table)
	}
	if lockedGets != 0 {
		t.Fatalf("locked read went over the wire %d times", lockedGets)
	}
}

func TestStationLocksDelegateWritesToMain(t *testing.T) {
	locked := map[string]string{}
	server := newFakeMain(t, locked)
	mirror := locktable.NewMirror()
	locks := NewStationLocks(NewLockClient(server.URL, "station-token"), mirror)
	ctx := context.Background()

	orders, err := locks.Lock(ctx, "station-sub", []string{"o-1"})
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	if len(orders) != 1 || orders[0].ID != "o-1" {
		t.Fatalf("lock snapshots = %+v", orders)
	}
	if locked["o-1"] != "station-sub" {
		t.Fatalf("main station table = %v, want o-1 held by station-sub", locked)
	}

	if err := locks.UnlockAll(ctx, "station-sub"); err != nil {
		t.Fatalf("unlock all: %v", err)
	}
	if len(locked) != 0 {
		t.Fatalf("main station table not emptied: %v", locked)
	}
}

func TestLockClientMapsConflict(t *testing.T) {
	server := newFakeMain(t, map[string]string{"o-1": "station-other"})
	client := NewLockClient(server.URL, "station-token")

	_, err := client.Lock(context.Background(), "station-sub", []string{"o-1"})
	if !errors.Is(err, locktable.ErrAlreadyLocked) {
		t.Fatalf("error = %v, want ErrAlreadyLocked", err)
	}
}

func TestLockClientMapsNotFound(t *testing.T) {
	server := newFakeMain(t, map[string]string{})
	client := NewLockClient(server.URL, "station-token")

	_, err := client.Lock(context.Background(), "station-sub", []string{"o-missing"})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("error = %v, want store.ErrNotFound", err)
	}
}
