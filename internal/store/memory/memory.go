package memory

import (
	"context"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"floorpos/backend/internal/domain"
	"floorpos/backend/internal/store"
	"floorpos/backend/internal/xid"
)

// Store is the in-memory document repository used by the main station in dev
// mode and by tests. All aggregate maps share one mutex so SaveBatch can
// validate and apply atomically.
type Store struct {
	mu               sync.RWMutex
	orders           map[string]domain.Order
	transactionsByID map[string]domain.Transaction
	shiftsByID       map[string]domain.Shift
	activeShiftByKey map[string]string
	devicesByID      map[string]domain.PaymentDevice
	auditLogs        []domain.AuditLog
	usersByUsername  map[string]domain.UserAccount
}

// seedUsers builds the initial in-memory accounts for dev/demo mode.
// Credentials come from SEED_SERVER_PASSWORD and SEED_MANAGER_PASSWORD; if
// unset, hardcoded dev defaults are used with a warning printed to stdout.
func seedUsers() map[string]domain.UserAccount {
	serverPwd := envOr("SEED_SERVER_PASSWORD", "server123")
	managerPwd := envOr("SEED_MANAGER_PASSWORD", "manager123")
	if os.Getenv("SEED_SERVER_PASSWORD") == "" || os.Getenv("SEED_MANAGER_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_SERVER_PASSWORD and SEED_MANAGER_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"manager", managerPwd, "manager"},
		{"server", serverPwd, "server"},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func NewSeeded() *Store {
	devices := []domain.PaymentDevice{
		{ID: "pax-front", Name: "Front Counter Terminal"},
		{ID: "pax-patio", Name: "Patio Terminal"},
		{ID: "pax-bar", Name: "Bar Terminal", Standalone: true},
		{ID: "pax-back", Name: "Back Office Terminal", Disabled: true},
	}

	deviceMap := make(map[string]domain.PaymentDevice, len(devices))
	for _, d := range devices {
		deviceMap[d.ID] = d
	}

	return &Store{
		orders:           make(map[string]domain.Order),
		transactionsByID: make(map[string]domain.Transaction),
		shiftsByID:       make(map[string]domain.Shift),
		activeShiftByKey: make(map[string]string),
		devicesByID:      deviceMap,
		auditLogs:        make([]domain.AuditLog, 0, 128),
		usersByUsername:  seedUsers(),
	}
}

func (s *Store) GetOrder(_ context.Context, id string) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	order, exists := s.orders[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copied := cloneOrder(order)
	return &copied, nil
}

func (s *Store) GetOrders(_ context.Context, ids []string) ([]domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	orders := make([]domain.Order, 0, len(ids))
	for _, id := range ids {
		if order, exists := s.orders[id]; exists {
			orders = append(orders, cloneOrder(order))
		}
	}
	return orders, nil
}

func (s *Store) ListOpenOrders(_ context.Context, storeID string) ([]domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	orders := make([]domain.Order, 0, len(s.orders))
	for _, order := range s.orders {
		if order.StoreID != storeID || order.Status == domain.OrderStatusClosed {
			continue
		}
		orders = append(orders, cloneOrder(order))
	}
	slices.SortFunc(orders, func(a, b domain.Order) int {
		return strings.Compare(a.ID, b.ID)
	})
	return orders, nil
}

func (s *Store) SaveOrder(_ context.Context, order domain.Order) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveOrderLocked(order)
}

func (s *Store) saveOrderLocked(order domain.Order) (*domain.Order, error) {
	if order.ID == "" {
		return nil, store.ErrInvalid
	}
	existing, exists := s.orders[order.ID]
	if order.Revision == 0 {
		if exists {
			return nil, store.ErrConflict
		}
	} else {
		if !exists {
			return nil, store.ErrNotFound
		}
		if existing.Revision != order.Revision {
			return nil, store.ErrConflict
		}
	}

	order.Revision++
	s.orders[order.ID] = cloneOrder(order)
	saved := cloneOrder(order)
	return &saved, nil
}

func (s *Store) DeleteOrder(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.orders[id]; !exists {
		return store.ErrNotFound
	}
	delete(s.orders, id)
	return nil
}

func (s *Store) GetTransaction(_ context.Context, id string) (*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, exists := s.transactionsByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copied := tx
	return &copied, nil
}

func (s *Store) ListUnsettledTransactions(_ context.Context, shiftID string) ([]domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	txs := make([]domain.Transaction, 0, 16)
	for _, tx := range s.transactionsByID {
		if tx.ShiftID != shiftID || tx.Settled || tx.Voided {
			continue
		}
		if tx.Type == domain.TransactionTypeCloseBatch || tx.Type == domain.TransactionTypeVoid {
			continue
		}
		txs = append(txs, tx)
	}
	slices.SortFunc(txs, func(a, b domain.Transaction) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return strings.Compare(a.ID, b.ID)
		}
		if a.CreatedAt.Before(b.CreatedAt) {
			return -1
		}
		return 1
	})
	return txs, nil
}

func (s *Store) SaveTransaction(_ context.Context, tx domain.Transaction) (*domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveTransactionLocked(tx)
}

func (s *Store) saveTransactionLocked(tx domain.Transaction) (*domain.Transaction, error) {
	if tx.ID == "" {
		return nil, store.ErrInvalid
	}
	existing, exists := s.transactionsByID[tx.ID]
	if tx.Revision == 0 {
		if exists {
			return nil, store.ErrConflict
		}
	} else {
		if !exists {
			return nil, store.ErrNotFound
		}
		if existing.Revision != tx.Revision {
			return nil, store.ErrConflict
		}
	}

	tx.Revision++
	s.transactionsByID[tx.ID] = tx
	saved := tx
	return &saved, nil
}

// SaveBatch validates every revision before applying anything, all under one
// lock, so a conflicting aggregate anywhere in the batch persists nothing.
func (s *Store) SaveBatch(_ context.Context, batch store.BatchWrite) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, order := range batch.Orders {
		if err := s.checkOrderRevisionLocked(order); err != nil {
			return err
		}
	}
	for _, tx := range batch.Transactions {
		if err := s.checkTransactionRevisionLocked(tx); err != nil {
			return err
		}
	}

	for _, order := range batch.Orders {
		if _, err := s.saveOrderLocked(order); err != nil {
			return err
		}
	}
	for _, tx := range batch.Transactions {
		if _, err := s.saveTransactionLocked(tx); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) checkOrderRevisionLocked(order domain.Order) error {
	if order.ID == "" {
		return store.ErrInvalid
	}
	existing, exists := s.orders[order.ID]
	if order.Revision == 0 {
		if exists {
			return store.ErrConflict
		}
		return nil
	}
	if !exists {
		return store.ErrNotFound
	}
	if existing.Revision != order.Revision {
		return store.ErrConflict
	}
	return nil
}

func (s *Store) checkTransactionRevisionLocked(tx domain.Transaction) error {
	if tx.ID == "" {
		return store.ErrInvalid
	}
	existing, exists := s.transactionsByID[tx.ID]
	if tx.Revision == 0 {
		if exists {
			return store.ErrConflict
		}
		return nil
	}
	if !exists {
		return store.ErrNotFound
	}
	if existing.Revision != tx.Revision {
		return store.ErrConflict
	}
	return nil
}

func (s *Store) GetActiveShift(_ context.Context, storeID string) (*domain.Shift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	shiftID, exists := s.activeShiftByKey[storeID]
	if !exists {
		return nil, store.ErrNotFound
	}
	shift := s.shiftsByID[shiftID]
	copied := shift
	return &copied, nil
}

func (s *Store) SaveShift(_ context.Context, shift domain.Shift) (*domain.Shift, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if shift.ID == "" {
		return nil, store.ErrInvalid
	}
	existing, exists := s.shiftsByID[shift.ID]
	if shift.Revision == 0 {
		if exists {
			return nil, store.ErrConflict
		}
	} else {
		if !exists {
			return nil, store.ErrNotFound
		}
		if existing.Revision != shift.Revision {
			return nil, store.ErrConflict
		}
	}

	shift.Revision++
	s.shiftsByID[shift.ID] = shift
	if shift.Status == domain.ShiftStatusOpen {
		s.activeShiftByKey[shift.StoreID] = shift.ID
	} else if s.activeShiftByKey[shift.StoreID] == shift.ID {
		delete(s.activeShiftByKey, shift.StoreID)
	}

	saved := shift
	return &saved, nil
}

func (s *Store) GetPaymentDevice(_ context.Context, id string) (*domain.PaymentDevice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	device, exists := s.devicesByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copied := device
	return &copied, nil
}

func (s *Store) ListPaymentDevices(_ context.Context) ([]domain.PaymentDevice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	devices := make([]domain.PaymentDevice, 0, len(s.devicesByID))
	for _, d := range s.devicesByID {
		devices = append(devices, d)
	}
	slices.SortFunc(devices, func(a, b domain.PaymentDevice) int {
		return strings.Compare(a.ID, b.ID)
	})
	return devices, nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, storeID string, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit < 1 {
		limit = 100
	}
	result := make([]domain.AuditLog, 0, limit)
	for i := len(s.auditLogs) - 1; i >= 0 && len(result) < limit; i-- {
		if s.auditLogs[i].StoreID == storeID {
			result = append(result, s.auditLogs[i])
		}
	}
	return result, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if user.Username == "" {
		return store.ErrInvalid
	}
	if _, exists := s.usersByUsername[user.Username]; exists {
		return store.ErrConflict
	}
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, u := range s.usersByUsername {
		users = append(users, u)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return strings.Compare(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

// cloneOrder deep-copies the bills and items so callers cannot mutate stored
// state through returned slices.
func cloneOrder(order domain.Order) domain.Order {
	copied := order
	copied.Bills = make([]domain.Bill, len(order.Bills))
	for i, b := range order.Bills {
		bill := b
		bill.Items = make([]domain.OrderItem, len(b.Items))
		copy(bill.Items, b.Items)
		copied.Bills[i] = bill
	}
	return copied
}
