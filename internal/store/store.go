package store

import (
	"context"
	"errors"

	"floorpos/backend/internal/domain"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("revision conflict")
	ErrInvalid  = errors.New("invalid document")
)

// BatchWrite is an atomic multi-aggregate write: either every order and
// transaction in it persists, or none do. The settlement coordinator depends
// on this for consistency between a close-batch transaction and the
// transactions it settles.
type BatchWrite struct {
	Orders       []domain.Order
	Transactions []domain.Transaction
}

// Repository is the document store behind the coordination core. Saves are
// optimistic: each aggregate carries a Revision, a save whose revision does
// not match the stored one fails with ErrConflict, and a successful save
// returns the aggregate with the revision bumped. Revision zero means
// "create".
type Repository interface {
	GetOrder(ctx context.Context, id string) (*domain.Order, error)
	GetOrders(ctx context.Context, ids []string) ([]domain.Order, error)
	ListOpenOrders(ctx context.Context, storeID string) ([]domain.Order, error)
	SaveOrder(ctx context.Context, order domain.Order) (*domain.Order, error)
	DeleteOrder(ctx context.Context, id string) error

	GetTransaction(ctx context.Context, id string) (*domain.Transaction, error)
	ListUnsettledTransactions(ctx context.Context, shiftID string) ([]domain.Transaction, error)
	SaveTransaction(ctx context.Context, tx domain.Transaction) (*domain.Transaction, error)

	SaveBatch(ctx context.Context, batch BatchWrite) error

	GetActiveShift(ctx context.Context, storeID string) (*domain.Shift, error)
	SaveShift(ctx context.Context, shift domain.Shift) (*domain.Shift, error)

	GetPaymentDevice(ctx context.Context, id string) (*domain.PaymentDevice, error)
	ListPaymentDevices(ctx context.Context) ([]domain.PaymentDevice, error)

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, storeID string, limit int) ([]domain.AuditLog, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
