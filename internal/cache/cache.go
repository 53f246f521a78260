package cache

import (
	"context"

	"floorpos/backend/internal/domain"
)

// SnapshotCache holds the last known lock-table snapshot and active shift per
// store, so a station joining late converges without polling the main
// station. Entries are full replacements, never merges.
type SnapshotCache interface {
	SetLockedOrders(ctx context.Context, storeID string, snapshot map[string]string) error
	GetLockedOrders(ctx context.Context, storeID string) (map[string]string, bool, error)
	SetActiveShift(ctx context.Context, storeID string, shift *domain.Shift) error
	GetActiveShift(ctx context.Context, storeID string) (*domain.Shift, bool, error)
}

type NoopSnapshotCache struct{}

func (NoopSnapshotCache) SetLockedOrders(_ context.Context, _ string, _ map[string]string) error {
	return nil
}

func (NoopSnapshotCache) GetLockedOrders(_ context.Context, _ string) (map[string]string, bool, error) {
	return nil, false, nil
}

func (NoopSnapshotCache) SetActiveShift(_ context.Context, _ string, _ *domain.Shift) error {
	return nil
}

func (NoopSnapshotCache) GetActiveShift(_ context.Context, _ string) (*domain.Shift, bool, error) {
	return nil, false, nil
}
