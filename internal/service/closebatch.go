package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"floorpos/backend/internal/domain"
	"floorpos/backend/internal/payment"
	"floorpos/backend/internal/store"
	"floorpos/backend/internal/xid"
)

var (
	ErrJobActive     = errors.New("close-batch job is already running or settled")
	ErrNothingToDo   = errors.New("no unsettled transactions in the active shift")
	ErrBatchRunning  = errors.New("close batch still has running jobs")
	ErrUnknownDevice = errors.New("no close-batch job for that device")
)

type JobStatus string

const (
	JobStatusIdle    JobStatus = "idle"
	JobStatusLoading JobStatus = "loading"
	JobStatusMessage JobStatus = "message"
	JobStatusOK      JobStatus = "ok"
	JobStatusError   JobStatus = "error"
)

// CloseBatchJob is the settlement work for one device bucket. The empty
// device id bucket collects cash and other device-less tenders.
type CloseBatchJob struct {
	DeviceID     string               `json:"device_id"`
	DeviceName   string               `json:"device_name,omitempty"`
	Standalone   bool                 `json:"standalone"`
	Transactions []domain.Transaction `json:"transactions"`
	Status       JobStatus            `json:"status"`
	Message      string               `json:"message,omitempty"`
	Error        string               `json:"error,omitempty"`
}

func (j CloseBatchJob) running() bool {
	return j.Status == JobStatusLoading || j.Status == JobStatusMessage
}

// CloseBatch coordinates settling a shift's unsettled transactions, one job
// per payment device. Jobs are isolated: a terminal failure leaves that job
// in the error state, retryable or force-settleable, without touching the
// others.
type CloseBatch struct {
	repo      store.Repository
	devices   *payment.Registry
	storeID   string
	stationID string
	shift     domain.Shift

	mu   sync.Mutex
	jobs []*CloseBatchJob
}

// NewCloseBatch starts a settlement pass over the service's active shift.
func (s *Service) NewCloseBatch(ctx context.Context) (*CloseBatch, error) {
	return NewCloseBatch(ctx, s.repo, s.devices, s.storeID, s.stationID)
}

// NewCloseBatch loads the active shift's unsettled transactions and buckets
// them by device. Fails when there is no active shift or nothing to settle.
func NewCloseBatch(ctx context.Context, repo store.Repository, devices *payment.Registry, storeID string, stationID string) (*CloseBatch, error) {
	shift, err := repo.GetActiveShift(ctx, storeID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNoActiveShift
		}
		return nil, err
	}

	unsettled, err := repo.ListUnsettledTransactions(ctx, shift.ID)
	if err != nil {
		return nil, err
	}
	if len(unsettled) == 0 {
		return nil, ErrNothingToDo
	}

	c := &CloseBatch{
		repo:      repo,
		devices:   devices,
		storeID:   storeID,
		stationID: stationID,
		shift:     *shift,
	}

	byDevice := make(map[string]*CloseBatchJob)
	for _, tx := range unsettled {
		job, seen := byDevice[tx.DeviceID]
		if !seen {
			job = &CloseBatchJob{DeviceID: tx.DeviceID, Status: JobStatusIdle}
			if tx.DeviceID != "" {
				if device, err := repo.GetPaymentDevice(ctx, tx.DeviceID); err == nil {
					job.DeviceName = device.Name
					job.Standalone = device.Standalone
				}
			}
			byDevice[tx.DeviceID] = job
			c.jobs = append(c.jobs, job)
		}
		job.Transactions = append(job.Transactions, tx)
	}

	return c, nil
}

// Jobs returns a snapshot of every job's current state.
func (c *CloseBatch) Jobs() []CloseBatchJob {
	c.mu.Lock()
	defer c.mu.Unlock()

	jobs := make([]CloseBatchJob, 0, len(c.jobs))
	for _, job := range c.jobs {
		snapshot := *job
		snapshot.Transactions = append([]domain.Transaction(nil), job.Transactions...)
		jobs = append(jobs, snapshot)
	}
	return jobs
}

// Done reports whether every job has settled successfully.
func (c *CloseBatch) Done() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, job := range c.jobs {
		if job.Status != JobStatusOK {
			return false
		}
	}
	return true
}

// Active reports whether any job is mid-run. A batch may only be dismissed
// once every job has come to rest.
func (c *CloseBatch) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, job := range c.jobs {
		if job.running() {
			return true
		}
	}
	return false
}

// Run settles one device bucket. A job that is running or already settled
// refuses to start again; error-state jobs may be retried.
func (c *CloseBatch) Run(ctx context.Context, deviceID string) error {
	c.mu.Lock()
	job := c.find(deviceID)
	if job == nil {
		c.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrUnknownDevice, deviceID)
	}
	if job.running() || job.Status == JobStatusOK {
		c.mu.Unlock()
		return ErrJobActive
	}
	job.Status = JobStatusLoading
	job.Message = ""
	job.Error = ""
	txs := append([]domain.Transaction(nil), job.Transactions...)
	standalone := job.Standalone
	c.mu.Unlock()

	result, err := c.closeDevice(ctx, deviceID, standalone, txs)
	if err != nil {
		c.fail(deviceID, err)
		return err
	}

	settled, err := c.settle(ctx, deviceID, txs, result)
	if err != nil {
		c.fail(deviceID, err)
		return err
	}

	c.finish(deviceID, settled)
	log.Printf("[closebatch] settled device=%q shift=%s count=%d amount=%d", deviceID, c.shift.ID, result.TotalCount, result.TotalAmountCents)
	return nil
}

// ForceSettle settles every error-state job without its terminal, using
// totals computed from the recorded transactions. Manager only; the terminal
// reconciliation happens out of band. Jobs that were never attempted are left
// alone: their terminals still get a real close.
func (c *CloseBatch) ForceSettle(ctx context.Context) error {
	if err := requireManager(ctx); err != nil {
		return err
	}

	c.mu.Lock()
	var pending []*CloseBatchJob
	for _, job := range c.jobs {
		if job.Status == JobStatusError {
			pending = append(pending, job)
		}
	}
	targets := make([]struct {
		deviceID string
		txs      []domain.Transaction
	}, 0, len(pending))
	for _, job := range pending {
		job.Status = JobStatusLoading
		job.Message = ""
		job.Error = ""
		targets = append(targets, struct {
			deviceID string
			txs      []domain.Transaction
		}{job.DeviceID, append([]domain.Transaction(nil), job.Transactions...)})
	}
	c.mu.Unlock()

	var firstErr error
	for _, target := range targets {
		settled, err := c.settle(ctx, target.deviceID, target.txs, synthesizeResult(target.txs))
		if err != nil {
			c.fail(target.deviceID, err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		c.finish(target.deviceID, settled)
		c.logAudit(ctx, "force_settle", "device", target.deviceID, fmt.Sprintf("count=%d", len(target.txs)))
		log.Printf("[closebatch] force-settled device=%q shift=%s count=%d", target.deviceID, c.shift.ID, len(target.txs))
	}
	return firstErr
}

// closeDevice obtains the batch result for a bucket. Device-less and
// standalone buckets never talk to a terminal; their result is synthesized
// from the recorded transactions.
func (c *CloseBatch) closeDevice(ctx context.Context, deviceID string, standalone bool, txs []domain.Transaction) (payment.BatchResult, error) {
	if deviceID == "" || standalone {
		return synthesizeResult(txs), nil
	}

	_, client, err := c.devices.Resolve(ctx, deviceID)
	if err != nil {
		return payment.BatchResult{}, err
	}

	expected := synthesizeResult(txs)
	result, err := payment.Await(ctx, client.CloseBatch(ctx, payment.Request{AmountCents: expected.TotalAmountCents}), func(msg string) {
		c.progress(deviceID, msg)
	})
	if err != nil {
		return payment.BatchResult{}, err
	}

	batch, ok := result.(payment.BatchResult)
	if !ok {
		return payment.BatchResult{}, fmt.Errorf("%w: %T from %s", payment.ErrInvalidResponse, result, deviceID)
	}
	return batch, nil
}

// settle commits the bucket atomically: the close-batch transaction, the
// settled flags on every transaction, and the settled flags on every touched
// bill persist together or not at all.
func (c *CloseBatch) settle(ctx context.Context, deviceID string, txs []domain.Transaction, result payment.BatchResult) ([]domain.Transaction, error) {
	now := time.Now().UTC()

	settledIDs := make([]string, 0, len(txs))
	orderIDs := make([]string, 0, len(txs))
	seenOrders := make(map[string]bool, len(txs))
	for i := range txs {
		txs[i].Settled = true
		txs[i].UpdatedAt = now
		txs[i].UpdatedBy = c.stationID
		settledIDs = append(settledIDs, txs[i].ID)
		if txs[i].OrderID != "" && !seenOrders[txs[i].OrderID] {
			seenOrders[txs[i].OrderID] = true
			orderIDs = append(orderIDs, txs[i].OrderID)
		}
	}

	var orders []domain.Order
	if len(orderIDs) > 0 {
		loaded, err := c.repo.GetOrders(ctx, orderIDs)
		if err != nil {
			return nil, err
		}
		if len(loaded) != len(orderIDs) {
			return nil, fmt.Errorf("settled orders missing: %w", store.ErrNotFound)
		}
		orders = loaded
	}

	billsByTx := make(map[string]string, len(txs))
	for _, tx := range txs {
		if tx.BillID != "" {
			billsByTx[tx.ID] = tx.BillID
		}
	}
	for i := range orders {
		for j := range orders[i].Bills {
			bill := &orders[i].Bills[j]
			if bill.Paid && billsByTx[bill.TransactionID] == bill.ID {
				bill.Settled = true
			}
		}
		orders[i].UpdateCalculatedValues()
		orders[i].UpdatedAt = now
		orders[i].UpdatedBy = c.stationID
	}

	closeTx := domain.Transaction{
		ID:               xid.New("tx"),
		Type:             domain.TransactionTypeCloseBatch,
		StoreID:          c.storeID,
		ShiftID:          c.shift.ID,
		StationID:        c.stationID,
		DeviceID:         deviceID,
		RefNumber:        result.RefNumber,
		Settled:          true,
		TotalAmountCents: result.TotalAmountCents,
		TotalCount:       result.TotalCount,
		SettledIDs:       settledIDs,
		CreatedAt:        now,
		UpdatedAt:        now,
		UpdatedBy:        c.stationID,
	}

	err := c.repo.SaveBatch(ctx, store.BatchWrite{
		Orders:       orders,
		Transactions: append(txs, closeTx),
	})
	if err != nil {
		return nil, err
	}

	c.logAudit(ctx, "close_batch", "transaction", closeTx.ID, fmt.Sprintf("device=%q count=%d amount=%d", deviceID, result.TotalCount, result.TotalAmountCents))
	return txs, nil
}

func (c *CloseBatch) logAudit(ctx context.Context, action string, entityType string, entityID string, detail string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}

	if err := c.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:            xid.New("audit"),
		StoreID:       c.storeID,
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     time.Now().UTC(),
	}); err != nil {
		log.Printf("[audit] WARN: failed to write audit log action=%s entity=transaction/%s: %v", action, entityID, err)
	}
}

func (c *CloseBatch) find(deviceID string) *CloseBatchJob {
	for _, job := range c.jobs {
		if job.DeviceID == deviceID {
			return job
		}
	}
	return nil
}

func (c *CloseBatch) progress(deviceID string, msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if job := c.find(deviceID); job != nil && job.running() {
		job.Status = JobStatusMessage
		job.Message = msg
	}
}

func (c *CloseBatch) fail(deviceID string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if job := c.find(deviceID); job != nil {
		job.Status = JobStatusError
		job.Message = ""
		job.Error = err.Error()
	}
}

func (c *CloseBatch) finish(deviceID string, settled []domain.Transaction) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if job := c.find(deviceID); job != nil {
		job.Status = JobStatusOK
		job.Message = ""
		job.Error = ""
		job.Transactions = settled
	}
}

// synthesizeResult builds a batch result from the recorded transactions, used
// for buckets that never talk to a terminal and for forced settlement.
func synthesizeResult(txs []domain.Transaction) payment.BatchResult {
	var total int64
	for _, tx := range txs {
		total += tx.AmountCents
	}
	return payment.BatchResult{
		RefNumber:        xid.New("batch"),
		TotalAmountCents: total,
		TotalCount:       len(txs),
	}
}
