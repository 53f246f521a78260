// Package payment defines the card terminal client surface. Every request
// yields a stream of responses: zero or more progress messages followed by
// exactly one terminal message, either a completed result or an error.
package payment

import (
	"context"
	"errors"
	"fmt"

	"floorpos/backend/internal/domain"
	"floorpos/backend/internal/store"
)

var (
	ErrInvalidDevice   = errors.New("payment device unavailable or disabled")
	ErrInvalidRequest  = errors.New("invalid device request")
	ErrInvalidResponse = errors.New("unexpected device response")
)

// TransactionError is a failure reported by the terminal itself (decline,
// timeout), as opposed to a transport or configuration problem.
type TransactionError struct {
	Code    string
	Message string
}

func (e *TransactionError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("device transaction failed: %s", e.Message)
	}
	return fmt.Sprintf("device transaction failed [%s]: %s", e.Code, e.Message)
}

type Request struct {
	AmountCents int64
	TipCents    int64
	RefNumber   string
}

// Result is a sealed sum: a completed device request produces either a
// PaymentResult or a BatchResult, and consumers switch on the concrete type.
type Result interface {
	isResult()
}

type PaymentResult struct {
	RefNumber     string
	ApprovedCents int64
	AuthCode      string
}

func (PaymentResult) isResult() {}

type BatchResult struct {
	RefNumber        string
	TotalAmountCents int64
	TotalCount       int
}

func (BatchResult) isResult() {}

// Response is one message on a device request stream. Exactly one of the
// three fields is set.
type Response struct {
	Progress string
	Result   Result
	Err      error
}

type Client interface {
	Sale(ctx context.Context, req Request) <-chan Response
	Refund(ctx context.Context, req Request) <-chan Response
	Force(ctx context.Context, req Request) <-chan Response
	Void(ctx context.Context, req Request) <-chan Response
	Adjust(ctx context.Context, req Request) <-chan Response
	CloseBatch(ctx context.Context, req Request) <-chan Response
}

// Await drains a response stream until its terminal message, forwarding
// progress text to onProgress (which may be nil). A stream that closes
// without a terminal message is a protocol violation.
func Await(ctx context.Context, stream <-chan Response, onProgress func(string)) (Result, error) {
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case resp, ok := <-stream:
			if !ok {
				return nil, ErrInvalidResponse
			}
			switch {
			case resp.Err != nil:
				return nil, resp.Err
			case resp.Result != nil:
				return resp.Result, nil
			default:
				if onProgress != nil {
					onProgress(resp.Progress)
				}
			}
		}
	}
}

// Registry resolves a device id to its persisted record and terminal client.
type Registry struct {
	repo    store.Repository
	clients map[string]Client
}

func NewRegistry(repo store.Repository) *Registry {
	return &Registry{repo: repo, clients: make(map[string]Client)}
}

func (r *Registry) Register(deviceID string, client Client) {
	r.clients[deviceID] = client
}

// Resolve returns the device record and client for the id. Unknown or
// disabled devices, and devices without a registered client, all map to
// ErrInvalidDevice.
func (r *Registry) Resolve(ctx context.Context, deviceID string) (*domain.PaymentDevice, Client, error) {
	device, err := r.repo.GetPaymentDevice(ctx, deviceID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil, fmt.Errorf("%w: %s", ErrInvalidDevice, deviceID)
		}
		return nil, nil, err
	}
	if device.Disabled {
		return nil, nil, fmt.Errorf("%w: %s is disabled", ErrInvalidDevice, deviceID)
	}

	client, ok := r.clients[deviceID]
	if !ok {
		return nil, nil, fmt.Errorf("%w: no client for %s", ErrInvalidDevice, deviceID)
	}
	return device, client, nil
}
