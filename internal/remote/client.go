// Package remote is the sub station's client for the main station's lock
// RPC. It satisfies the same lock interface the main station's table does, so
// the mutation pipeline is identical on both roles.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"floorpos/backend/internal/domain"
	"floorpos/backend/internal/locktable"
	"floorpos/backend/internal/store"
)

// LockClient talks to the main station's /api/v1/orders lock endpoints. A 409
// from the main station means some requested order is already held.
type LockClient struct {
	baseURL string
	token   string
	http    *http.Client
}

func NewLockClient(baseURL string, token string) *LockClient {
	return &LockClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

var _ locktable.Service = (*LockClient)(nil)

type lockRequest struct {
	StationID string   `json:"station_id"`
	OrderIDs  []string `json:"order_ids"`
}

type unlockRequest struct {
	StationID string `json:"station_id"`
}

func (c *LockClient) Lock(ctx context.Context, stationID string, orderIDs []string) ([]domain.Order, error) {
	var out struct {
		Orders []domain.Order `json:"orders"`
	}
	err := c.call(ctx, http.MethodPost, "/api/v1/orders/lock", lockRequest{
		StationID: stationID,
		OrderIDs:  orderIDs,
	}, &out)
	if err != nil {
		return nil, err
	}
	return out.Orders, nil
}

func (c *LockClient) UnlockAll(ctx context.Context, stationID string) error {
	return c.call(ctx, http.MethodPost, "/api/v1/orders/unlock-all", unlockRequest{StationID: stationID}, nil)
}

func (c *LockClient) Locked(ctx context.Context) (map[string]string, error) {
	var out struct {
		LockedOrders map[string]string `json:"locked_orders"`
	}
	if err := c.call(ctx, http.MethodGet, "/api/v1/orders/locked", nil, &out); err != nil {
		return nil, err
	}
	if out.LockedOrders == nil {
		out.LockedOrders = map[string]string{}
	}
	return out.LockedOrders, nil
}

func (c *LockClient) call(ctx context.Context, method string, path string, payload any, out any) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("lock rpc %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return statusError(resp)
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// StationLocks is the lock service a sub station runs with: lock and unlock
// go through the main station's RPC, while lock-table reads come from the
// local mirror fed by push events, so list screens never block on the wire.
type StationLocks struct {
	client *LockClient
	mirror *locktable.Mirror
}

func NewStationLocks(client *LockClient, mirror *locktable.Mirror) *StationLocks {
	return &StationLocks{client: client, mirror: mirror}
}

var _ locktable.Service = (*StationLocks)(nil)

func (s *StationLocks) Lock(ctx context.Context, stationID string, orderIDs []string) ([]domain.Order, error) {
	return s.client.Lock(ctx, stationID, orderIDs)
}

func (s *StationLocks) UnlockAll(ctx context.Context, stationID string) error {
	return s.client.UnlockAll(ctx, stationID)
}

func (s *StationLocks) Locked(_ context.Context) (map[string]string, error) {
	return s.mirror.Snapshot(), nil
}

// statusError maps the main station's HTTP statuses back onto the sentinels
// local callers expect.
func statusError(resp *http.Response) error {
	var payload struct {
		Error string `json:"error"`
	}
	_ = json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&payload)
	msg := strings.TrimSpace(payload.Error)
	if msg == "" {
		msg = resp.Status
	}

	switch resp.StatusCode {
	case http.StatusConflict:
		return fmt.Errorf("%w: %s", locktable.ErrAlreadyLocked, msg)
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", store.ErrNotFound, msg)
	case http.StatusBadRequest:
		return fmt.Errorf("%w: %s", store.ErrInvalid, msg)
	default:
		return errors.New(msg)
	}
}
