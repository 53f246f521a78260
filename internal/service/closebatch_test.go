package service

import (
	"context"
	"errors"
	"testing"

	"floorpos/backend/internal/domain"
	"floorpos/backend/internal/payment"
	"floorpos/backend/internal/store"
)

// flakyRepo fails batch writes on demand, for settlement atomicity tests.
type flakyRepo struct {
	store.Repository
	failSaveBatch bool
}

func (f *flakyRepo) SaveBatch(ctx context.Context, batch store.BatchWrite) error {
	if f.failSaveBatch {
		return errors.New("storage down")
	}
	return f.Repository.SaveBatch(ctx, batch)
}

// recordingRepo captures batch writes so tests can inspect what settlement
// actually persisted.
type recordingRepo struct {
	store.Repository
	batches []store.BatchWrite
}

func (r *recordingRepo) SaveBatch(ctx context.Context, batch store.BatchWrite) error {
	r.batches = append(r.batches, batch)
	return r.Repository.SaveBatch(ctx, batch)
}

// plainOrder creates a zero-rate order carrying one 2000-cent item, so the
// recorded transaction amount is exactly 2000.
func (f *fixture) plainOrder(t *testing.T) *domain.Order {
	t.Helper()
	ctx := serverCtx()

	order, err := f.svc.CreateOrder(ctx, CreateOrderRequest{TableName: "T2", Persons: 2})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	order, err = f.svc.AddItems(ctx, order.ID, "", []domain.OrderItem{{Name: "Combo", UnitCents: 2000, Qty: 1}})
	if err != nil {
		t.Fatalf("add items: %v", err)
	}
	return order
}

func (f *fixture) payPlain(t *testing.T, req PayRequest) *domain.Transaction {
	t.Helper()
	order := f.plainOrder(t)
	req.OrderID = order.ID
	req.BillID = order.Bills[0].ID
	tx, err := f.svc.PayBill(serverCtx(), req)
	if err != nil {
		t.Fatalf("pay bill: %v", err)
	}
	return tx
}

func TestCloseBatchRequiresUnsettledWork(t *testing.T) {
	f := newFixture(t)
	f.openShift(t)

	_, err := NewCloseBatch(context.Background(), f.repo, f.svc.devices, "main-store", "station-main")
	if !errors.Is(err, ErrNothingToDo) {
		t.Fatalf("error = %v, want ErrNothingToDo", err)
	}
}

func TestCloseBatchRequiresActiveShift(t *testing.T) {
	f := newFixture(t)

	_, err := NewCloseBatch(context.Background(), f.repo, f.svc.devices, "main-store", "station-main")
	if !errors.Is(err, ErrNoActiveShift) {
		t.Fatalf("error = %v, want ErrNoActiveShift", err)
	}
}

func TestCloseBatchBucketsByDevice(t *testing.T) {
	f := newFixture(t)
	f.openShift(t)
	f.payPlain(t, PayRequest{Type: domain.TransactionTypeCash})
	f.payPlain(t, PayRequest{Type: domain.TransactionTypeSale, DeviceID: "pax-front"})

	batch, err := NewCloseBatch(context.Background(), f.repo, f.svc.devices, "main-store", "station-main")
	if err != nil {
		t.Fatalf("new close batch: %v", err)
	}

	jobs := batch.Jobs()
	if len(jobs) != 2 {
		t.Fatalf("job count = %d, want 2: %+v", len(jobs), jobs)
	}
	for _, job := range jobs {
		if job.Status != JobStatusIdle || len(job.Transactions) != 1 {
			t.Fatalf("unexpected job: %+v", job)
		}
	}
	if batch.Done() {
		t.Fatalf("fresh batch reports done")
	}
}

func TestCloseBatchSettlesCashBucket(t *testing.T) {
	f := newFixture(t)
	f.openShift(t)
	tx := f.payPlain(t, PayRequest{Type: domain.TransactionTypeCash})
	ctx := context.Background()

	recorder := &recordingRepo{Repository: f.repo}
	batch, err := NewCloseBatch(ctx, recorder, f.svc.devices, "main-store", "station-main")
	if err != nil {
		t.Fatalf("new close batch: %v", err)
	}
	if err := batch.Run(ctx, ""); err != nil {
		t.Fatalf("run cash bucket: %v", err)
	}
	if !batch.Done() {
		t.Fatalf("batch not done after settling its only bucket: %+v", batch.Jobs())
	}

	stored, err := f.repo.GetTransaction(ctx, tx.ID)
	if err != nil {
		t.Fatalf("reload transaction: %v", err)
	}
	if !stored.Settled {
		t.Fatalf("transaction not settled: %+v", stored)
	}

	// Exactly one close-batch record, carrying the bucket's totals and the
	// ids it settled.
	var records []domain.Transaction
	for _, write := range recorder.batches {
		for _, written := range write.Transactions {
			if written.Type == domain.TransactionTypeCloseBatch {
				records = append(records, written)
			}
		}
	}
	if len(records) != 1 {
		t.Fatalf("close-batch records = %d, want 1", len(records))
	}
	record := records[0]
	if record.TotalAmountCents != 2000 || record.TotalCount != 1 {
		t.Fatalf("close-batch totals = %d/%d, want 2000/1", record.TotalAmountCents, record.TotalCount)
	}
	if record.DeviceID != "" || len(record.SettledIDs) != 1 || record.SettledIDs[0] != tx.ID {
		t.Fatalf("close-batch record = %+v, want settled ids [%s]", record, tx.ID)
	}
	persisted, err := f.repo.GetTransaction(ctx, record.ID)
	if err != nil {
		t.Fatalf("reload close-batch record: %v", err)
	}
	if !persisted.Settled {
		t.Fatalf("close-batch record not marked settled: %+v", persisted)
	}

	order, _ := f.repo.GetOrder(ctx, tx.OrderID)
	if !order.Bills[0].Settled {
		t.Fatalf("bill not settled: %+v", order.Bills[0])
	}

	// With everything settled the shift can close.
	if _, err := f.svc.CloseShift(managerCtx()); err != nil {
		t.Fatalf("close shift after settlement: %v", err)
	}
}

func TestCloseBatchDeviceTotalsFromTerminal(t *testing.T) {
	f := newFixture(t)
	f.openShift(t)
	f.payPlain(t, PayRequest{Type: domain.TransactionTypeSale, DeviceID: "pax-front"})
	ctx := context.Background()

	batch, err := NewCloseBatch(ctx, f.repo, f.svc.devices, "main-store", "station-main")
	if err != nil {
		t.Fatalf("new close batch: %v", err)
	}
	if err := batch.Run(ctx, "pax-front"); err != nil {
		t.Fatalf("run device bucket: %v", err)
	}

	calls := f.front.Calls()
	if calls[len(calls)-1] != "closeBatch" {
		t.Fatalf("terminal calls = %v, want closeBatch last", calls)
	}
	if !batch.Done() {
		t.Fatalf("batch not done: %+v", batch.Jobs())
	}
}

func TestCloseBatchDeviceFailureIsIsolated(t *testing.T) {
	f := newFixture(t)
	f.openShift(t)
	cashTx := f.payPlain(t, PayRequest{Type: domain.TransactionTypeCash})
	cardTx := f.payPlain(t, PayRequest{Type: domain.TransactionTypeSale, DeviceID: "pax-front"})
	ctx := context.Background()

	batch, err := NewCloseBatch(ctx, f.repo, f.svc.devices, "main-store", "station-main")
	if err != nil {
		t.Fatalf("new close batch: %v", err)
	}

	f.front.FailWith = &payment.TransactionError{Code: "TO", Message: "terminal timeout"}
	if err := batch.Run(ctx, "pax-front"); err == nil {
		t.Fatalf("expected device failure to surface")
	}

	if err := batch.Run(ctx, ""); err != nil {
		t.Fatalf("cash bucket blocked by unrelated device failure: %v", err)
	}

	for _, job := range batch.Jobs() {
		switch job.DeviceID {
		case "pax-front":
			if job.Status != JobStatusError || job.Error == "" {
				t.Fatalf("failed job state: %+v", job)
			}
		case "":
			if job.Status != JobStatusOK {
				t.Fatalf("cash job state: %+v", job)
			}
		}
	}

	stored, _ := f.repo.GetTransaction(ctx, cardTx.ID)
	if stored.Settled {
		t.Fatalf("failed bucket settled its transaction anyway")
	}
	stored, _ = f.repo.GetTransaction(ctx, cashTx.ID)
	if !stored.Settled {
		t.Fatalf("cash transaction not settled")
	}

	// The failed job retries once the terminal recovers.
	f.front.FailWith = nil
	if err := batch.Run(ctx, "pax-front"); err != nil {
		t.Fatalf("retry after recovery: %v", err)
	}
	if !batch.Done() {
		t.Fatalf("batch not done after retry: %+v", batch.Jobs())
	}
}

func TestCloseBatchRefusesRerunAfterSuccess(t *testing.T) {
	f := newFixture(t)
	f.openShift(t)
	f.payPlain(t, PayRequest{Type: domain.TransactionTypeCash})
	ctx := context.Background()

	batch, err := NewCloseBatch(ctx, f.repo, f.svc.devices, "main-store", "station-main")
	if err != nil {
		t.Fatalf("new close batch: %v", err)
	}
	if err := batch.Run(ctx, ""); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if err := batch.Run(ctx, ""); !errors.Is(err, ErrJobActive) {
		t.Fatalf("second run error = %v, want ErrJobActive", err)
	}
}

func TestCloseBatchSettlementIsAtomic(t *testing.T) {
	f := newFixture(t)
	f.openShift(t)
	tx := f.payPlain(t, PayRequest{Type: domain.TransactionTypeCash})
	ctx := context.Background()

	flaky := &flakyRepo{Repository: f.repo, failSaveBatch: true}
	batch, err := NewCloseBatch(ctx, flaky, f.svc.devices, "main-store", "station-main")
	if err != nil {
		t.Fatalf("new close batch: %v", err)
	}
	if err := batch.Run(ctx, ""); err == nil {
		t.Fatalf("expected settlement write to fail")
	}

	stored, _ := f.repo.GetTransaction(ctx, tx.ID)
	if stored.Settled {
		t.Fatalf("failed settlement marked the transaction settled")
	}
	order, _ := f.repo.GetOrder(ctx, tx.OrderID)
	if order.Bills[0].Settled {
		t.Fatalf("failed settlement marked the bill settled")
	}

	jobs := batch.Jobs()
	if jobs[0].Status != JobStatusError {
		t.Fatalf("job state after failed write: %+v", jobs[0])
	}
}

func TestCloseBatchStandaloneSkipsTerminal(t *testing.T) {
	f := newFixture(t)
	f.openShift(t)

	bar := payment.NewFakeClient()
	f.svc.devices.Register("pax-bar", bar)
	f.payPlain(t, PayRequest{Type: domain.TransactionTypeSale, DeviceID: "pax-bar"})
	ctx := context.Background()

	batch, err := NewCloseBatch(ctx, f.repo, f.svc.devices, "main-store", "station-main")
	if err != nil {
		t.Fatalf("new close batch: %v", err)
	}
	if err := batch.Run(ctx, "pax-bar"); err != nil {
		t.Fatalf("run standalone bucket: %v", err)
	}

	// Standalone terminals batch out on the device itself.
	for _, call := range bar.Calls() {
		if call == "closeBatch" {
			t.Fatalf("standalone device received a close-batch call: %v", bar.Calls())
		}
	}
	if !batch.Done() {
		t.Fatalf("batch not done: %+v", batch.Jobs())
	}
}

func TestForceSettleRequiresManager(t *testing.T) {
	f := newFixture(t)
	f.openShift(t)
	f.payPlain(t, PayRequest{Type: domain.TransactionTypeCash})

	batch, err := NewCloseBatch(context.Background(), f.repo, f.svc.devices, "main-store", "station-main")
	if err != nil {
		t.Fatalf("new close batch: %v", err)
	}
	if err := batch.ForceSettle(serverCtx()); !errors.Is(err, ErrManagerRequired) {
		t.Fatalf("error = %v, want ErrManagerRequired", err)
	}
}

func TestForceSettleLeavesIdleJobsAlone(t *testing.T) {
	f := newFixture(t)
	f.openShift(t)
	tx := f.payPlain(t, PayRequest{Type: domain.TransactionTypeSale, DeviceID: "pax-front"})
	ctx := context.Background()

	batch, err := NewCloseBatch(ctx, f.repo, f.svc.devices, "main-store", "station-main")
	if err != nil {
		t.Fatalf("new close batch: %v", err)
	}

	// The bucket was never attempted; forcing must not bypass its terminal.
	if err := batch.ForceSettle(managerCtx()); err != nil {
		t.Fatalf("force settle: %v", err)
	}

	jobs := batch.Jobs()
	if len(jobs) != 1 || jobs[0].Status != JobStatusIdle {
		t.Fatalf("idle job state after force settle: %+v", jobs)
	}
	for _, call := range f.front.Calls() {
		if call == "closeBatch" {
			t.Fatalf("force settle reached the terminal: %v", f.front.Calls())
		}
	}
	stored, _ := f.repo.GetTransaction(ctx, tx.ID)
	if stored.Settled {
		t.Fatalf("force settle settled a never-attempted bucket")
	}
	if batch.Done() {
		t.Fatalf("batch reports done with an idle job")
	}
}

func TestForceSettleRecoversErrorJobs(t *testing.T) {
	f := newFixture(t)
	f.openShift(t)
	tx := f.payPlain(t, PayRequest{Type: domain.TransactionTypeSale, DeviceID: "pax-front"})
	ctx := context.Background()

	batch, err := NewCloseBatch(ctx, f.repo, f.svc.devices, "main-store", "station-main")
	if err != nil {
		t.Fatalf("new close batch: %v", err)
	}

	f.front.FailWith = &payment.TransactionError{Code: "TO", Message: "terminal timeout"}
	if err := batch.Run(ctx, "pax-front"); err == nil {
		t.Fatalf("expected device failure")
	}

	if err := batch.ForceSettle(managerCtx()); err != nil {
		t.Fatalf("force settle: %v", err)
	}
	if !batch.Done() {
		t.Fatalf("batch not done after force settle: %+v", batch.Jobs())
	}

	stored, _ := f.repo.GetTransaction(ctx, tx.ID)
	if !stored.Settled {
		t.Fatalf("force settle did not settle the transaction")
	}
}
