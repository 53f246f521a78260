package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"floorpos/backend/internal/domain"
	"floorpos/backend/internal/store"
	"floorpos/backend/internal/xid"
)

// Store persists aggregates as jsonb documents with a revision column used
// for optimistic-save checks. SaveBatch runs inside one transaction so the
// settlement coordinator gets all-or-nothing semantics.
type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS orders (
			id text PRIMARY KEY,
			store_id text NOT NULL,
			status text NOT NULL,
			revision bigint NOT NULL,
			updated_at timestamptz NOT NULL,
			body jsonb NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS transactions (
			id text PRIMARY KEY,
			store_id text NOT NULL,
			shift_id text NOT NULL,
			type text NOT NULL,
			settled boolean NOT NULL,
			voided boolean NOT NULL,
			revision bigint NOT NULL,
			created_at timestamptz NOT NULL,
			body jsonb NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS shifts (
			id text PRIMARY KEY,
			store_id text NOT NULL,
			status text NOT NULL,
			revision bigint NOT NULL,
			body jsonb NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS payment_devices (
			id text PRIMARY KEY,
			body jsonb NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS audit_logs (
			id text PRIMARY KEY,
			store_id text NOT NULL,
			actor_username text NOT NULL,
			actor_role text NOT NULL,
			action text NOT NULL,
			entity_type text NOT NULL,
			entity_id text NOT NULL,
			detail text NOT NULL,
			created_at timestamptz NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS users (
			username text PRIMARY KEY,
			password text NOT NULL,
			role text NOT NULL,
			active boolean NOT NULL,
			created_at timestamptz NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_shift ON transactions (shift_id) WHERE NOT settled`,
		`CREATE INDEX IF NOT EXISTS idx_orders_store ON orders (store_id, status)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	var body []byte
	err := s.db.QueryRowContext(ctx, `SELECT body FROM orders WHERE id = $1`, id).Scan(&body)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	var order domain.Order
	if err := json.Unmarshal(body, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

func (s *Store) GetOrders(ctx context.Context, ids []string) ([]domain.Order, error) {
	orders := make([]domain.Order, 0, len(ids))
	if len(ids) == 0 {
		return orders, nil
	}

	rows, err := s.db.QueryContext(ctx, `SELECT body FROM orders WHERE id = ANY($1) ORDER BY id`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		var order domain.Order
		if err := json.Unmarshal(body, &order); err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return orders, nil
}

func (s *Store) ListOpenOrders(ctx context.Context, storeID string) ([]domain.Order, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT body FROM orders
		WHERE store_id = $1 AND status != 'closed'
		ORDER BY id
	`, storeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	orders := make([]domain.Order, 0, 32)
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		var order domain.Order
		if err := json.Unmarshal(body, &order); err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return orders, nil
}

func (s *Store) SaveOrder(ctx context.Context, order domain.Order) (*domain.Order, error) {
	saved, err := saveOrderTx(ctx, s.db, order)
	if err != nil {
		return nil, err
	}
	return saved, nil
}

func saveOrderTx(ctx context.Context, db execer, order domain.Order) (*domain.Order, error) {
	if order.ID == "" {
		return nil, store.ErrInvalid
	}

	next := order
	next.Revision++
	body, err := json.Marshal(next)
	if err != nil {
		return nil, err
	}

	if order.Revision == 0 {
		_, err := db.ExecContext(ctx, `
			INSERT INTO orders (id, store_id, status, revision, updated_at, body)
			VALUES ($1,$2,$3,$4,$5,$6)
		`, next.ID, next.StoreID, next.Status, next.Revision, next.UpdatedAt, body)
		if err != nil {
			if isUniqueViolation(err) {
				return nil, store.ErrConflict
			}
			return nil, err
		}
		return &next, nil
	}

	res, err := db.ExecContext(ctx, `
		UPDATE orders
		SET store_id = $2, status = $3, revision = $4, updated_at = $5, body = $6
		WHERE id = $1 AND revision = $7
	`, next.ID, next.StoreID, next.Status, next.Revision, next.UpdatedAt, body, order.Revision)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		var exists bool
		if err := db.QueryRowContext(ctx, `SELECT true FROM orders WHERE id = $1`, next.ID).Scan(&exists); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, store.ErrNotFound
			}
			return nil, err
		}
		return nil, store.ErrConflict
	}
	return &next, nil
}

func (s *Store) DeleteOrder(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM orders WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) GetTransaction(ctx context.Context, id string) (*domain.Transaction, error) {
	var body []byte
	err := s.db.QueryRowContext(ctx, `SELECT body FROM transactions WHERE id = $1`, id).Scan(&body)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	var tx domain.Transaction
	if err := json.Unmarshal(body, &tx); err != nil {
		return nil, err
	}
	return &tx, nil
}

func (s *Store) ListUnsettledTransactions(ctx context.Context, shiftID string) ([]domain.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT body FROM transactions
		WHERE shift_id = $1 AND NOT settled AND NOT voided
		  AND type NOT IN ('close_batch', 'void')
		ORDER BY created_at, id
	`, shiftID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	txs := make([]domain.Transaction, 0, 32)
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		var tx domain.Transaction
		if err := json.Unmarshal(body, &tx); err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return txs, nil
}

func (s *Store) SaveTransaction(ctx context.Context, tx domain.Transaction) (*domain.Transaction, error) {
	return saveTransactionTx(ctx, s.db, tx)
}

func saveTransactionTx(ctx context.Context, db execer, tx domain.Transaction) (*domain.Transaction, error) {
	if tx.ID == "" {
		return nil, store.ErrInvalid
	}

	next := tx
	next.Revision++
	body, err := json.Marshal(next)
	if err != nil {
		return nil, err
	}

	if tx.Revision == 0 {
		_, err := db.ExecContext(ctx, `
			INSERT INTO transactions (id, store_id, shift_id, type, settled, voided, revision, created_at, body)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		`, next.ID, next.StoreID, next.ShiftID, next.Type, next.Settled, next.Voided, next.Revision, next.CreatedAt, body)
		if err != nil {
			if isUniqueViolation(err) {
				return nil, store.ErrConflict
			}
			return nil, err
		}
		return &next, nil
	}

	res, err := db.ExecContext(ctx, `
		UPDATE transactions
		SET settled = $2, voided = $3, revision = $4, body = $5
		WHERE id = $1 AND revision = $6
	`, next.ID, next.Settled, next.Voided, next.Revision, body, tx.Revision)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		var exists bool
		if err := db.QueryRowContext(ctx, `SELECT true FROM transactions WHERE id = $1`, next.ID).Scan(&exists); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, store.ErrNotFound
			}
			return nil, err
		}
		return nil, store.ErrConflict
	}
	return &next, nil
}

func (s *Store) SaveBatch(ctx context.Context, batch store.BatchWrite) error {
	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = dbTx.Rollback() }()

	for _, order := range batch.Orders {
		if _, err := saveOrderTx(ctx, dbTx, order); err != nil {
			return err
		}
	}
	for _, tx := range batch.Transactions {
		if _, err := saveTransactionTx(ctx, dbTx, tx); err != nil {
			return err
		}
	}

	return dbTx.Commit()
}

func (s *Store) GetActiveShift(ctx context.Context, storeID string) (*domain.Shift, error) {
	var body []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT body FROM shifts WHERE store_id = $1 AND status = 'open'
	`, storeID).Scan(&body)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	var shift domain.Shift
	if err := json.Unmarshal(body, &shift); err != nil {
		return nil, err
	}
	return &shift, nil
}

func (s *Store) SaveShift(ctx context.Context, shift domain.Shift) (*domain.Shift, error) {
	if shift.ID == "" {
		return nil, store.ErrInvalid
	}

	next := shift
	next.Revision++
	body, err := json.Marshal(next)
	if err != nil {
		return nil, err
	}

	if shift.Revision == 0 {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO shifts (id, store_id, status, revision, body)
			VALUES ($1,$2,$3,$4,$5)
		`, next.ID, next.StoreID, next.Status, next.Revision, body)
		if err != nil {
			if isUniqueViolation(err) {
				return nil, store.ErrConflict
			}
			return nil, err
		}
		return &next, nil
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE shifts
		SET status = $2, revision = $3, body = $4
		WHERE id = $1 AND revision = $5
	`, next.ID, next.Status, next.Revision, body, shift.Revision)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrConflict
	}
	return &next, nil
}

func (s *Store) GetPaymentDevice(ctx context.Context, id string) (*domain.PaymentDevice, error) {
	var body []byte
	err := s.db.QueryRowContext(ctx, `SELECT body FROM payment_devices WHERE id = $1`, id).Scan(&body)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	var device domain.PaymentDevice
	if err := json.Unmarshal(body, &device); err != nil {
		return nil, err
	}
	return &device, nil
}

func (s *Store) ListPaymentDevices(ctx context.Context) ([]domain.PaymentDevice, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT body FROM payment_devices ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	devices := make([]domain.PaymentDevice, 0, 8)
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		var device domain.PaymentDevice
		if err := json.Unmarshal(body, &device); err != nil {
			return nil, err
		}
		devices = append(devices, device)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return devices, nil
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, store_id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, entry.ID, entry.StoreID, entry.ActorUsername, entry.ActorRole, entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, storeID string, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, store_id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		WHERE store_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, storeID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.StoreID, &entry.ActorUsername, &entry.ActorRole,
			&entry.Action, &entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return logs, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, password, role, active, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, user.Username, user.Password, user.Role, user.Active, user.CreatedAt)
	if err != nil && isUniqueViolation(err) {
		return store.ErrConflict
	}
	return err
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at FROM users ORDER BY username
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var u domain.UserAccount
		if err := rows.Scan(&u.Username, &u.Password, &u.Role, &u.Active, &u.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET password = $2 WHERE username = $1`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
