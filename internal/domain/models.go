package domain

import "time"

type OrderStatus string

const (
	OrderStatusNew       OrderStatus = "new"
	OrderStatusSubmitted OrderStatus = "submitted"
	OrderStatusClosed    OrderStatus = "closed"
)

type TransactionType string

const (
	TransactionTypeCash       TransactionType = "cash"
	TransactionTypeSale       TransactionType = "sale"
	TransactionTypeForce      TransactionType = "force"
	TransactionTypeRefund     TransactionType = "refund"
	TransactionTypeVoid       TransactionType = "void"
	TransactionTypeCloseBatch TransactionType = "close_batch"
)

type StationRole string

const (
	StationRoleMain StationRole = "main"
	StationRoleSub  StationRole = "sub"
)

type Store struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Station struct {
	ID   string      `json:"id"`
	Name string      `json:"name"`
	Role StationRole `json:"role"`
}

// Identity is the signed-in context a station operates under.
type Identity struct {
	Store   Store   `json:"store"`
	Station Station `json:"station"`
	Actor   Actor   `json:"actor"`
}

type OrderItem struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	UnitCents int64  `json:"unit_cents"`
	Qty       int    `json:"qty"`
}

func (i OrderItem) SubtotalCents() int64 {
	return i.UnitCents * int64(i.Qty)
}

// Bill is a payable subdivision of an order's items. The *Cents totals are
// derived and only valid after Order.UpdateCalculatedValues has run.
type Bill struct {
	ID                    string      `json:"id"`
	Items                 []OrderItem `json:"items"`
	TaxRatePercent        float64     `json:"tax_rate_percent"`
	ServiceFeeRatePercent float64     `json:"service_fee_rate_percent"`
	DiscountCents         int64       `json:"discount_cents"`
	Paid                  bool        `json:"paid"`
	Settled               bool        `json:"settled"`
	TransactionID         string      `json:"transaction_id,omitempty"`
	TipCents              int64       `json:"tip_cents"`

	SubtotalCents   int64 `json:"subtotal_cents"`
	TaxCents        int64 `json:"tax_cents"`
	ServiceFeeCents int64 `json:"service_fee_cents"`
	TotalCents      int64 `json:"total_cents"`
}

// Payable reports whether the bill can still accept a payment.
func (b Bill) Payable() bool {
	return !b.Paid && len(b.Items) > 0
}

// Order is the aggregate root for one table or to-go tab. Revision is the
// optimistic-concurrency stamp checked by the repository on save; zero means
// the order was never persisted.
type Order struct {
	ID                    string      `json:"id"`
	StoreID               string      `json:"store_id"`
	TableName             string      `json:"table_name"`
	Status                OrderStatus `json:"status"`
	Persons               int         `json:"persons"`
	TaxRatePercent        float64     `json:"tax_rate_percent"`
	ServiceFeeRatePercent float64     `json:"service_fee_rate_percent"`
	DiscountCents         int64       `json:"discount_cents"`
	Bills                 []Bill      `json:"bills"`

	Revision  int64     `json:"revision"`
	UpdatedAt time.Time `json:"updated_at"`
	UpdatedBy string    `json:"updated_by"`
}

// Empty reports whether the order carries no items on any bill.
func (o Order) Empty() bool {
	for _, b := range o.Bills {
		if len(b.Items) > 0 {
			return false
		}
	}
	return true
}

// Bill returns the bill with the given id, or nil.
func (o *Order) Bill(billID string) *Bill {
	for i := range o.Bills {
		if o.Bills[i].ID == billID {
			return &o.Bills[i]
		}
	}
	return nil
}

// AllBillsPaid reports whether every bill with items has been paid.
func (o Order) AllBillsPaid() bool {
	paidAny := false
	for _, b := range o.Bills {
		if len(b.Items) == 0 {
			continue
		}
		if !b.Paid {
			return false
		}
		paidAny = true
	}
	return paidAny
}

// Transaction records one completed payment, void, force, refund or
// batch-close event. Immutable after creation except for the tip-adjustment
// and settle paths.
type Transaction struct {
	ID          string          `json:"id"`
	Type        TransactionType `json:"type"`
	StoreID     string          `json:"store_id"`
	ShiftID     string          `json:"shift_id"`
	StationID   string          `json:"station_id"`
	OrderID     string          `json:"order_id,omitempty"`
	BillID      string          `json:"bill_id,omitempty"`
	AmountCents int64           `json:"amount_cents"`
	TipCents    int64           `json:"tip_cents"`
	TenderCents int64           `json:"tender_cents,omitempty"`
	ChangeCents int64           `json:"change_cents,omitempty"`
	DeviceID    string          `json:"device_id,omitempty"`
	RefNumber   string          `json:"ref_number,omitempty"`
	Settled     bool            `json:"settled"`
	Voided      bool            `json:"voided"`
	CreatedAt   time.Time       `json:"created_at"`

	// Batch-close fields, set only on close_batch transactions.
	TotalAmountCents int64    `json:"total_amount_cents,omitempty"`
	TotalCount       int      `json:"total_count,omitempty"`
	SettledIDs       []string `json:"settled_ids,omitempty"`

	Revision  int64     `json:"revision"`
	UpdatedAt time.Time `json:"updated_at"`
	UpdatedBy string    `json:"updated_by"`
}

// CanAdjust reports whether the transaction's tip may still be changed:
// unsettled, not voided, and of a tender type that carries a tip.
func (t Transaction) CanAdjust() bool {
	if t.Settled || t.Voided {
		return false
	}
	switch t.Type {
	case TransactionTypeCash, TransactionTypeSale, TransactionTypeForce:
		return true
	}
	return false
}

// CanVoid reports whether the transaction may still be voided.
func (t Transaction) CanVoid() bool {
	if t.Settled || t.Voided {
		return false
	}
	switch t.Type {
	case TransactionTypeCash, TransactionTypeSale, TransactionTypeForce:
		return true
	}
	return false
}

type ShiftStatus string

const (
	ShiftStatusOpen   ShiftStatus = "open"
	ShiftStatusClosed ShiftStatus = "closed"
)

type Shift struct {
	ID       string      `json:"id"`
	StoreID  string      `json:"store_id"`
	OpenedBy string      `json:"opened_by"`
	Status   ShiftStatus `json:"status"`
	OpenedAt time.Time   `json:"opened_at"`
	ClosedAt *time.Time  `json:"closed_at,omitempty"`

	Revision  int64     `json:"revision"`
	UpdatedAt time.Time `json:"updated_at"`
	UpdatedBy string    `json:"updated_by"`
}

// PaymentDevice identifies a card terminal. Standalone terminals batch out on
// the device itself, so close-batch skips talking to them.
type PaymentDevice struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Standalone bool   `json:"standalone"`
	Disabled   bool   `json:"disabled"`
}

type Actor struct {
	Username string
	Role     string
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

type AuditLog struct {
	ID            string    `json:"id"`
	StoreID       string    `json:"store_id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}

type EventType string

const (
	EventLockedOrdersChanged EventType = "LockedOrdersChanged"
	EventOrderChanged        EventType = "OrderChanged"
	EventActiveShiftChanged  EventType = "ActiveShiftChanged"
)

// Event is one push message on the station event channel. LockedOrders
// carries the full lock-table snapshot so late subscribers converge from any
// single message.
type Event struct {
	Type         EventType         `json:"type"`
	StoreID      string            `json:"store_id"`
	LockedOrders map[string]string `json:"locked_orders,omitempty"`
	OrderID      string            `json:"order_id,omitempty"`
	ShiftID      string            `json:"shift_id,omitempty"`
}
