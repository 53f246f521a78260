// Package service implements the order mutation pipeline and the payment
// flows built on top of it. Every write to an order goes lock -> task ->
// recompute totals -> save once -> unlock, with no automatic retry: a
// revision conflict surfaces to the operator, who re-reads and decides.
package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"floorpos/backend/internal/domain"
	"floorpos/backend/internal/events"
	"floorpos/backend/internal/locktable"
	"floorpos/backend/internal/payment"
	"floorpos/backend/internal/store"
	"floorpos/backend/internal/xid"
)

var (
	// ErrCancelled means the mutation task chose not to proceed. Nothing was
	// saved and nothing failed; callers treat it as a quiet no-op.
	ErrCancelled = errors.New("operation cancelled")

	ErrNoActiveShift      = errors.New("active shift required")
	ErrShiftAlreadyOpen   = errors.New("a shift is already open")
	ErrUnsettledRemain    = errors.New("unsettled transactions remain; close the batch first")
	ErrInsufficientTender = errors.New("tendered amount is less than the amount due")
	ErrNotAdjustable      = errors.New("transaction tip can no longer be adjusted")
	ErrNotVoidable        = errors.New("transaction can no longer be voided")
	ErrTipUnchanged       = errors.New("tip amount is unchanged")
	ErrManagerRequired    = errors.New("manager role required")
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

// Task mutates an order in place. Returning false cancels the mutation:
// nothing is saved and the pipeline reports ErrCancelled. Returning an error
// aborts it as a failure.
type Task func(order *domain.Order) (bool, error)

type Service struct {
	repo      store.Repository
	locks     locktable.Service
	devices   *payment.Registry
	channel   events.Channel
	storeID   string
	stationID string
}

func New(repo store.Repository, locks locktable.Service, devices *payment.Registry, channel events.Channel, storeID string, stationID string) *Service {
	if storeID == "" {
		storeID = "main-store"
	}

	return &Service{
		repo:      repo,
		locks:     locks,
		devices:   devices,
		channel:   channel,
		storeID:   storeID,
		stationID: stationID,
	}
}

// Modify runs the mutation pipeline against the order's current persisted
// state without taking a lock. Only call sites that already hold the lock
// use it directly; everything else goes through LockAndModify.
func (s *Service) Modify(ctx context.Context, purpose string, orderID string, task Task) (*domain.Order, error) {
	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", purpose, err)
	}
	return s.apply(ctx, purpose, order, task)
}

// LockAndModify locks the order, runs the mutation pipeline against the
// locked snapshot, and releases the lock on every exit path.
func (s *Service) LockAndModify(ctx context.Context, purpose string, orderID string, task Task) (*domain.Order, error) {
	snapshots, err := s.locks.Lock(ctx, s.stationID, []string{orderID})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", purpose, err)
	}
	defer s.unlock(ctx)

	return s.apply(ctx, purpose, &snapshots[0], task)
}

func (s *Service) apply(ctx context.Context, purpose string, order *domain.Order, task Task) (*domain.Order, error) {
	proceed, err := task(order)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", purpose, err)
	}
	if !proceed {
		return nil, ErrCancelled
	}

	order.UpdateCalculatedValues()
	s.stampOrder(order)

	saved, err := s.repo.SaveOrder(ctx, *order)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", purpose, err)
	}

	s.publishOrderChanged(ctx, saved.ID)
	return saved, nil
}

func (s *Service) stampOrder(order *domain.Order) {
	order.UpdatedAt = time.Now().UTC()
	order.UpdatedBy = s.stationID
}

func (s *Service) unlock(ctx context.Context) {
	if err := s.locks.UnlockAll(ctx, s.stationID); err != nil {
		log.Printf("[service] WARN: failed to release locks station=%s: %v", s.stationID, err)
	}
}

func (s *Service) publishOrderChanged(ctx context.Context, orderID string) {
	err := s.channel.Publish(ctx, domain.Event{
		Type:    domain.EventOrderChanged,
		StoreID: s.storeID,
		OrderID: orderID,
	})
	if err != nil {
		log.Printf("[service] WARN: failed to publish order change order=%s: %v", orderID, err)
	}
}

func (s *Service) publishShiftChanged(ctx context.Context, shiftID string) {
	err := s.channel.Publish(ctx, domain.Event{
		Type:    domain.EventActiveShiftChanged,
		StoreID: s.storeID,
		ShiftID: shiftID,
	})
	if err != nil {
		log.Printf("[service] WARN: failed to publish shift change shift=%s: %v", shiftID, err)
	}
}

func (s *Service) logAudit(ctx context.Context, action string, entityType string, entityID string, detail string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:            xid.New("audit"),
		StoreID:       s.storeID,
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     time.Now().UTC(),
	}); err != nil {
		log.Printf("[audit] WARN: failed to write audit log action=%s entity=%s/%s: %v", action, entityType, entityID, err)
	}
}

type CreateOrderRequest struct {
	TableName             string  `json:"table_name"`
	Persons               int     `json:"persons"`
	TaxRatePercent        float64 `json:"tax_rate_percent"`
	ServiceFeeRatePercent float64 `json:"service_fee_rate_percent"`
}

// CreateOrder persists a new order with one empty bill carrying the store's
// rate configuration.
func (s *Service) CreateOrder(ctx context.Context, req CreateOrderRequest) (*domain.Order, error) {
	req.TableName = strings.TrimSpace(req.TableName)
	if req.TableName == "" || req.Persons < 1 {
		return nil, store.ErrInvalid
	}
	if req.TaxRatePercent < 0 || req.TaxRatePercent > 100 || req.ServiceFeeRatePercent < 0 || req.ServiceFeeRatePercent > 100 {
		return nil, store.ErrInvalid
	}

	order := domain.Order{
		ID:                    xid.New("order"),
		StoreID:               s.storeID,
		TableName:             req.TableName,
		Status:                domain.OrderStatusNew,
		Persons:               req.Persons,
		TaxRatePercent:        req.TaxRatePercent,
		ServiceFeeRatePercent: req.ServiceFeeRatePercent,
		Bills: []domain.Bill{{
			ID:                    xid.New("bill"),
			TaxRatePercent:        req.TaxRatePercent,
			ServiceFeeRatePercent: req.ServiceFeeRatePercent,
		}},
	}
	order.UpdateCalculatedValues()
	s.stampOrder(&order)

	saved, err := s.repo.SaveOrder(ctx, order)
	if err != nil {
		return nil, err
	}

	s.publishOrderChanged(ctx, saved.ID)
	s.logAudit(ctx, "order_create", "order", saved.ID, fmt.Sprintf("table=%s,persons=%d", saved.TableName, saved.Persons))
	return saved, nil
}

func (s *Service) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	return s.repo.GetOrder(ctx, orderID)
}

func (s *Service) ListOpenOrders(ctx context.Context) ([]domain.Order, error) {
	return s.repo.ListOpenOrders(ctx, s.storeID)
}

// AddItems appends line items to a bill of the order. An empty billID targets
// the first bill. A new order becomes submitted on its first items.
func (s *Service) AddItems(ctx context.Context, orderID string, billID string, items []domain.OrderItem) (*domain.Order, error) {
	if len(items) == 0 {
		return nil, store.ErrInvalid
	}
	for _, item := range items {
		if strings.TrimSpace(item.Name) == "" || item.UnitCents < 0 || item.Qty < 1 {
			return nil, store.ErrInvalid
		}
	}

	return s.LockAndModify(ctx, "add items", orderID, func(order *domain.Order) (bool, error) {
		bill := targetBill(order, billID)
		if bill == nil {
			return false, fmt.Errorf("bill %s: %w", billID, store.ErrNotFound)
		}
		if bill.Paid {
			return false, domain.ErrBillNotPayable
		}

		for _, item := range items {
			if item.ID == "" {
				item.ID = xid.New("item")
			}
			bill.Items = append(bill.Items, item)
		}
		if order.Status == domain.OrderStatusNew {
			order.Status = domain.OrderStatusSubmitted
		}
		return true, nil
	})
}

// RemoveItem deletes one line item. Cancels quietly when the item is already
// gone, so a double-tap on a stale screen does not fail.
func (s *Service) RemoveItem(ctx context.Context, orderID string, billID string, itemID string) (*domain.Order, error) {
	return s.LockAndModify(ctx, "remove item", orderID, func(order *domain.Order) (bool, error) {
		bill := targetBill(order, billID)
		if bill == nil {
			return false, fmt.Errorf("bill %s: %w", billID, store.ErrNotFound)
		}
		if bill.Paid {
			return false, domain.ErrBillNotPayable
		}

		for i := range bill.Items {
			if bill.Items[i].ID == itemID {
				bill.Items = append(bill.Items[:i], bill.Items[i+1:]...)
				return true, nil
			}
		}
		return false, nil
	})
}

// SetDiscount applies a whole-bill discount in cents. Manager only.
func (s *Service) SetDiscount(ctx context.Context, orderID string, billID string, discountCents int64) (*domain.Order, error) {
	if err := requireManager(ctx); err != nil {
		return nil, err
	}
	if discountCents < 0 {
		return nil, store.ErrInvalid
	}

	order, err := s.LockAndModify(ctx, "set discount", orderID, func(order *domain.Order) (bool, error) {
		bill := targetBill(order, billID)
		if bill == nil {
			return false, fmt.Errorf("bill %s: %w", billID, store.ErrNotFound)
		}
		if bill.Paid {
			return false, domain.ErrBillNotPayable
		}
		bill.DiscountCents = discountCents
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	s.logAudit(ctx, "discount_set", "order", orderID, fmt.Sprintf("bill=%s,discount=%d", billID, discountCents))
	return order, nil
}

// DeleteEmptyOrder removes an order that never accumulated items. A missing
// order is already gone and counts as success.
func (s *Service) DeleteEmptyOrder(ctx context.Context, orderID string) error {
	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return err
	}
	if !order.Empty() {
		return fmt.Errorf("order %s still has items: %w", orderID, store.ErrInvalid)
	}

	if _, err := s.locks.Lock(ctx, s.stationID, []string{orderID}); err != nil {
		return err
	}
	defer s.unlock(ctx)

	if err := s.repo.DeleteOrder(ctx, orderID); err != nil {
		return err
	}
	s.publishOrderChanged(ctx, orderID)
	return nil
}

type SplitMode string

const (
	SplitModeCount   SplitMode = "count"
	SplitModePercent SplitMode = "percent"
	SplitModeAmount  SplitMode = "amount"
)

type SplitRequest struct {
	Mode     SplitMode `json:"mode"`
	Count    int       `json:"count,omitempty"`
	Percents []float64 `json:"percents,omitempty"`
	Amounts  []int64   `json:"amounts,omitempty"`
}

// SplitBill replaces one payable bill with pieces whose totals sum exactly to
// the original's. Pieces are plain payable bills, so each can take its own
// payment afterwards.
func (s *Service) SplitBill(ctx context.Context, orderID string, billID string, req SplitRequest) (*domain.Order, error) {
	return s.LockAndModify(ctx, "split bill", orderID, func(order *domain.Order) (bool, error) {
		bill := targetBill(order, billID)
		if bill == nil {
			return false, fmt.Errorf("bill %s: %w", billID, store.ErrNotFound)
		}

		var pieces []domain.Bill
		var err error
		switch req.Mode {
		case SplitModeCount:
			pieces, err = domain.SplitByCount(*bill, req.Count)
		case SplitModePercent:
			pieces, err = domain.SplitByPercent(*bill, req.Percents)
		case SplitModeAmount:
			pieces, err = domain.SplitByAmounts(*bill, req.Amounts)
		default:
			err = fmt.Errorf("%w: unknown mode %q", domain.ErrBadSplit, req.Mode)
		}
		if err != nil {
			return false, err
		}

		for i := range order.Bills {
			if order.Bills[i].ID == bill.ID {
				rest := append([]domain.Bill{}, order.Bills[i+1:]...)
				order.Bills = append(order.Bills[:i], pieces...)
				order.Bills = append(order.Bills, rest...)
				break
			}
		}
		return true, nil
	})
}

type PayRequest struct {
	OrderID     string                 `json:"order_id"`
	BillID      string                 `json:"bill_id"`
	Type        domain.TransactionType `json:"type"`
	DeviceID    string                 `json:"device_id,omitempty"`
	TenderCents int64                  `json:"tender_cents,omitempty"`
	TipCents    int64                  `json:"tip_cents,omitempty"`
}

// PayBill takes a payment against one bill. Card payments run the terminal
// first and persist nothing on failure; on success the order mutation and the
// transaction commit together in one batch write. When the last bill pays,
// the order closes.
func (s *Service) PayBill(ctx context.Context, req PayRequest) (*domain.Transaction, error) {
	if req.Type != domain.TransactionTypeCash && req.Type != domain.TransactionTypeSale && req.Type != domain.TransactionTypeForce {
		return nil, store.ErrInvalid
	}
	if req.TipCents < 0 {
		return nil, store.ErrInvalid
	}

	shift, err := s.repo.GetActiveShift(ctx, s.storeID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNoActiveShift
		}
		return nil, err
	}

	snapshots, err := s.locks.Lock(ctx, s.stationID, []string{req.OrderID})
	if err != nil {
		return nil, err
	}
	defer s.unlock(ctx)
	order := &snapshots[0]

	bill := order.Bill(req.BillID)
	if bill == nil {
		return nil, fmt.Errorf("bill %s: %w", req.BillID, store.ErrNotFound)
	}
	if !bill.Payable() {
		return nil, domain.ErrBillNotPayable
	}

	order.UpdateCalculatedValues()
	due := bill.TotalCents + req.TipCents

	now := time.Now().UTC()
	tx := domain.Transaction{
		ID:          xid.New("tx"),
		Type:        req.Type,
		StoreID:     s.storeID,
		ShiftID:     shift.ID,
		StationID:   s.stationID,
		OrderID:     order.ID,
		BillID:      bill.ID,
		AmountCents: bill.TotalCents,
		TipCents:    req.TipCents,
		CreatedAt:   now,
		UpdatedAt:   now,
		UpdatedBy:   s.stationID,
	}

	switch req.Type {
	case domain.TransactionTypeCash:
		if req.TenderCents > 0 {
			if req.TenderCents < due {
				return nil, ErrInsufficientTender
			}
			tx.TenderCents = req.TenderCents
			tx.ChangeCents = req.TenderCents - due
		}
	default:
		// Card tender: the terminal approves before anything persists.
		device, client, err := s.devices.Resolve(ctx, req.DeviceID)
		if err != nil {
			return nil, err
		}

		deviceReq := payment.Request{AmountCents: bill.TotalCents, TipCents: req.TipCents}
		var stream <-chan payment.Response
		if req.Type == domain.TransactionTypeForce {
			stream = client.Force(ctx, deviceReq)
		} else {
			stream = client.Sale(ctx, deviceReq)
		}
		result, err := payment.Await(ctx, stream, nil)
		if err != nil {
			return nil, err
		}
		pay, ok := result.(payment.PaymentResult)
		if !ok {
			return nil, fmt.Errorf("%w: %T from %s", payment.ErrInvalidResponse, result, device.ID)
		}
		tx.DeviceID = device.ID
		tx.RefNumber = pay.RefNumber
	}

	bill.Paid = true
	bill.TransactionID = tx.ID
	bill.TipCents = req.TipCents
	if order.AllBillsPaid() {
		order.Status = domain.OrderStatusClosed
	}
	order.UpdateCalculatedValues()
	s.stampOrder(order)

	err = s.repo.SaveBatch(ctx, store.BatchWrite{
		Orders:       []domain.Order{*order},
		Transactions: []domain.Transaction{tx},
	})
	if err != nil {
		return nil, err
	}

	s.publishOrderChanged(ctx, order.ID)
	s.logAudit(ctx, "bill_pay", "transaction", tx.ID, fmt.Sprintf("order=%s,bill=%s,type=%s,amount=%d,tip=%d", order.ID, bill.ID, tx.Type, tx.AmountCents, tx.TipCents))
	return &tx, nil
}

// VoidTransaction reverses an unsettled payment. Manager only. Card payments
// void on the terminal first; a terminal failure aborts with no state change.
// The bill reopens and the order leaves the closed state.
func (s *Service) VoidTransaction(ctx context.Context, transactionID string, reason string) (*domain.Transaction, error) {
	if err := requireManager(ctx); err != nil {
		return nil, err
	}
	if strings.TrimSpace(reason) == "" {
		reason = "unspecified"
	}

	tx, err := s.repo.GetTransaction(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if !tx.CanVoid() {
		return nil, ErrNotVoidable
	}

	snapshots, err := s.locks.Lock(ctx, s.stationID, []string{tx.OrderID})
	if err != nil {
		return nil, err
	}
	defer s.unlock(ctx)
	order := &snapshots[0]

	voidRef := ""
	if tx.DeviceID != "" {
		if tx.RefNumber == "" {
			return nil, fmt.Errorf("%w: transaction %s has no reference number", payment.ErrInvalidRequest, tx.ID)
		}
		_, client, err := s.devices.Resolve(ctx, tx.DeviceID)
		if err != nil {
			return nil, err
		}
		result, err := payment.Await(ctx, client.Void(ctx, payment.Request{
			AmountCents: tx.AmountCents,
			RefNumber:   tx.RefNumber,
		}), nil)
		if err != nil {
			return nil, err
		}
		if pay, ok := result.(payment.PaymentResult); ok {
			voidRef = pay.RefNumber
		}
	}

	now := time.Now().UTC()
	tx.Voided = true
	tx.UpdatedAt = now
	tx.UpdatedBy = s.stationID

	voidTx := domain.Transaction{
		ID:          xid.New("tx"),
		Type:        domain.TransactionTypeVoid,
		StoreID:     s.storeID,
		ShiftID:     tx.ShiftID,
		StationID:   s.stationID,
		OrderID:     tx.OrderID,
		BillID:      tx.BillID,
		AmountCents: tx.AmountCents,
		DeviceID:    tx.DeviceID,
		RefNumber:   voidRef,
		CreatedAt:   now,
		UpdatedAt:   now,
		UpdatedBy:   s.stationID,
	}

	if bill := order.Bill(tx.BillID); bill != nil {
		bill.Paid = false
		bill.TransactionID = ""
		bill.TipCents = 0
	}
	if order.Status == domain.OrderStatusClosed {
		order.Status = domain.OrderStatusSubmitted
	}
	order.UpdateCalculatedValues()
	s.stampOrder(order)

	err = s.repo.SaveBatch(ctx, store.BatchWrite{
		Orders:       []domain.Order{*order},
		Transactions: []domain.Transaction{*tx, voidTx},
	})
	if err != nil {
		return nil, err
	}

	s.publishOrderChanged(ctx, order.ID)
	s.logAudit(ctx, "transaction_void", "transaction", tx.ID, reason)
	return tx, nil
}

// AdjustTip changes the tip on an unsettled tender. Every precondition is
// checked before the terminal is contacted, so a rejected adjustment has no
// side effects anywhere.
func (s *Service) AdjustTip(ctx context.Context, transactionID string, tipCents int64) (*domain.Transaction, error) {
	if tipCents < 0 {
		return nil, store.ErrInvalid
	}

	tx, err := s.repo.GetTransaction(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if !tx.CanAdjust() {
		return nil, ErrNotAdjustable
	}
	if tx.TipCents == tipCents {
		return nil, ErrTipUnchanged
	}
	if tx.DeviceID != "" && tx.RefNumber == "" {
		return nil, fmt.Errorf("%w: transaction %s has no reference number", payment.ErrInvalidRequest, tx.ID)
	}

	snapshots, err := s.locks.Lock(ctx, s.stationID, []string{tx.OrderID})
	if err != nil {
		return nil, err
	}
	defer s.unlock(ctx)
	order := &snapshots[0]

	if tx.DeviceID != "" {
		_, client, err := s.devices.Resolve(ctx, tx.DeviceID)
		if err != nil {
			return nil, err
		}
		result, err := payment.Await(ctx, client.Adjust(ctx, payment.Request{
			AmountCents: tx.AmountCents,
			TipCents:    tipCents,
			RefNumber:   tx.RefNumber,
		}), nil)
		if err != nil {
			return nil, err
		}
		if pay, ok := result.(payment.PaymentResult); ok && pay.RefNumber != "" {
			tx.RefNumber = pay.RefNumber
		}
	}

	previous := tx.TipCents
	tx.TipCents = tipCents
	tx.UpdatedAt = time.Now().UTC()
	tx.UpdatedBy = s.stationID

	if bill := order.Bill(tx.BillID); bill != nil {
		bill.TipCents = tipCents
	}
	order.UpdateCalculatedValues()
	s.stampOrder(order)

	err = s.repo.SaveBatch(ctx, store.BatchWrite{
		Orders:       []domain.Order{*order},
		Transactions: []domain.Transaction{*tx},
	})
	if err != nil {
		return nil, err
	}

	s.publishOrderChanged(ctx, order.ID)
	s.logAudit(ctx, "tip_adjust", "transaction", tx.ID, fmt.Sprintf("from=%d,to=%d", previous, tipCents))
	return tx, nil
}

// OpenShift starts the store's business day. Only one shift can be open.
func (s *Service) OpenShift(ctx context.Context) (*domain.Shift, error) {
	if _, err := s.repo.GetActiveShift(ctx, s.storeID); err == nil {
		return nil, ErrShiftAlreadyOpen
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	actor, _ := ActorFromContext(ctx)
	now := time.Now().UTC()
	shift := domain.Shift{
		ID:        xid.New("shift"),
		StoreID:   s.storeID,
		OpenedBy:  actor.Username,
		Status:    domain.ShiftStatusOpen,
		OpenedAt:  now,
		UpdatedAt: now,
		UpdatedBy: s.stationID,
	}

	saved, err := s.repo.SaveShift(ctx, shift)
	if err != nil {
		return nil, err
	}

	s.publishShiftChanged(ctx, saved.ID)
	s.logAudit(ctx, "shift_open", "shift", saved.ID, actor.Username)
	return saved, nil
}

// CloseShift ends the active shift. Refused while unsettled transactions
// remain; the close-batch flow settles them first.
func (s *Service) CloseShift(ctx context.Context) (*domain.Shift, error) {
	shift, err := s.repo.GetActiveShift(ctx, s.storeID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNoActiveShift
		}
		return nil, err
	}

	unsettled, err := s.repo.ListUnsettledTransactions(ctx, shift.ID)
	if err != nil {
		return nil, err
	}
	if len(unsettled) > 0 {
		return nil, fmt.Errorf("%w: %d remaining", ErrUnsettledRemain, len(unsettled))
	}

	now := time.Now().UTC()
	shift.Status = domain.ShiftStatusClosed
	shift.ClosedAt = &now
	shift.UpdatedAt = now
	shift.UpdatedBy = s.stationID

	saved, err := s.repo.SaveShift(ctx, *shift)
	if err != nil {
		return nil, err
	}

	s.publishShiftChanged(ctx, "")
	s.logAudit(ctx, "shift_close", "shift", saved.ID, "")
	return saved, nil
}

func (s *Service) ActiveShift(ctx context.Context) (*domain.Shift, error) {
	return s.repo.GetActiveShift(ctx, s.storeID)
}

func (s *Service) ListAuditLogs(ctx context.Context, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}
	return s.repo.ListAuditLogs(ctx, s.storeID, limit)
}

func requireManager(ctx context.Context) error {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "manager" {
		return ErrManagerRequired
	}
	return nil
}

// targetBill resolves a bill id, treating "" as the order's first bill.
func targetBill(order *domain.Order, billID string) *domain.Bill {
	if billID == "" {
		if len(order.Bills) == 0 {
			return nil
		}
		return &order.Bills[0]
	}
	return order.Bill(billID)
}
