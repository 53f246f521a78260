package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"floorpos/backend/internal/domain"
	"floorpos/backend/internal/store"
)

func newIntegrationStore(t *testing.T) *Store {
	t.Helper()
	databaseURL := os.Getenv("FLOORPOS_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set FLOORPOS_TEST_DATABASE_URL to run postgres integration tests")
	}

	s, err := New(context.Background(), databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})
	return s
}

func TestSaveOrderRevisionConflict(t *testing.T) {
	s := newIntegrationStore(t)
	ctx := context.Background()

	stamp := time.Now().UnixNano()
	order := domain.Order{
		ID:      fmt.Sprintf("order-it-%d", stamp),
		StoreID: "main-store",
		Status:  domain.OrderStatusNew,
		Bills:   []domain.Bill{{ID: "bill-1", Items: []domain.OrderItem{{ID: "i1", Name: "Soup", UnitCents: 600, Qty: 1}}}},
	}
	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM orders WHERE id = $1`, order.ID)
	})

	saved, err := s.SaveOrder(ctx, order)
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if saved.Revision != 1 {
		t.Fatalf("revision = %d, want 1", saved.Revision)
	}

	// A save carrying a stale revision must fail and leave the row untouched.
	stale := order
	if _, err := s.SaveOrder(ctx, stale); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("stale save error = %v, want ErrConflict", err)
	}

	fresh := *saved
	fresh.Status = domain.OrderStatusSubmitted
	if _, err := s.SaveOrder(ctx, fresh); err != nil {
		t.Fatalf("fresh save: %v", err)
	}
}

func TestSaveBatchIsAtomic(t *testing.T) {
	s := newIntegrationStore(t)
	ctx := context.Background()

	stamp := time.Now().UnixNano()
	order := domain.Order{
		ID:      fmt.Sprintf("order-batch-it-%d", stamp),
		StoreID: "main-store",
		Status:  domain.OrderStatusSubmitted,
	}
	txID := fmt.Sprintf("tx-batch-it-%d", stamp)
	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM transactions WHERE id = $1`, txID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM orders WHERE id = $1`, order.ID)
	})

	saved, err := s.SaveOrder(ctx, order)
	if err != nil {
		t.Fatalf("create order: %v", err)
	}

	// Batch contains a valid transaction but a stale order: nothing persists.
	badBatch := store.BatchWrite{
		Orders: []domain.Order{order}, // revision 0 but row exists
		Transactions: []domain.Transaction{{
			ID:        txID,
			Type:      domain.TransactionTypeCash,
			StoreID:   "main-store",
			ShiftID:   "shift-it",
			CreatedAt: time.Now().UTC(),
		}},
	}
	if err := s.SaveBatch(ctx, badBatch); err == nil {
		t.Fatalf("expected batch with stale order to fail")
	}
	if _, err := s.GetTransaction(ctx, txID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("transaction should not exist after failed batch, got err=%v", err)
	}

	goodBatch := store.BatchWrite{
		Orders:       []domain.Order{*saved},
		Transactions: badBatch.Transactions,
	}
	if err := s.SaveBatch(ctx, goodBatch); err != nil {
		t.Fatalf("good batch failed: %v", err)
	}
	if _, err := s.GetTransaction(ctx, txID); err != nil {
		t.Fatalf("transaction missing after good batch: %v", err)
	}
}
