package payment

import (
	"context"
	"sync"

	"floorpos/backend/internal/xid"
)

// FakeClient is a scriptable terminal used in tests and in no-hardware dev
// deployments. By default every request approves; set FailWith to script a
// failure, and Progress to emit intermediate messages first.
type FakeClient struct {
	mu       sync.Mutex
	calls    []string
	Progress []string
	FailWith error

	// Batch totals reported by CloseBatch. When zero the request amounts
	// are echoed back.
	BatchTotalCents int64
	BatchCount      int
}

func NewFakeClient() *FakeClient {
	return &FakeClient{}
}

// Calls returns the method names invoked so far, for zero-side-effect
// assertions.
func (f *FakeClient) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	calls := make([]string, len(f.calls))
	copy(calls, f.calls)
	return calls
}

func (f *FakeClient) record(method string) {
	f.mu.Lock()
	f.calls = append(f.calls, method)
	f.mu.Unlock()
}

func (f *FakeClient) respond(result Result) <-chan Response {
	out := make(chan Response, len(f.Progress)+1)
	for _, msg := range f.Progress {
		out <- Response{Progress: msg}
	}
	if f.FailWith != nil {
		out <- Response{Err: f.FailWith}
	} else {
		out <- Response{Result: result}
	}
	close(out)
	return out
}

func (f *FakeClient) payment(method string, req Request) <-chan Response {
	f.record(method)
	return f.respond(PaymentResult{
		RefNumber:     xid.New("ref"),
		ApprovedCents: req.AmountCents + req.TipCents,
		AuthCode:      "OK" + method,
	})
}

func (f *FakeClient) Sale(_ context.Context, req Request) <-chan Response {
	return f.payment("sale", req)
}

func (f *FakeClient) Refund(_ context.Context, req Request) <-chan Response {
	return f.payment("refund", req)
}

func (f *FakeClient) Force(_ context.Context, req Request) <-chan Response {
	return f.payment("force", req)
}

func (f *FakeClient) Void(_ context.Context, req Request) <-chan Response {
	return f.payment("void", req)
}

func (f *FakeClient) Adjust(_ context.Context, req Request) <-chan Response {
	return f.payment("adjust", req)
}

func (f *FakeClient) CloseBatch(_ context.Context, req Request) <-chan Response {
	f.record("closeBatch")
	total := f.BatchTotalCents
	count := f.BatchCount
	if total == 0 && count == 0 {
		total = req.AmountCents
		count = 1
	}
	return f.respond(BatchResult{
		RefNumber:        xid.New("batch"),
		TotalAmountCents: total,
		TotalCount:       count,
	})
}
