// Package storage defines the persistence interfaces consumed by the
// core. Absent rows are reported as (nil, nil); coded errors are the
// callers' concern.
package storage

import (
	"context"

	"ammdesk/internal/model"
)

// PoolStore persists pool snapshots.
type PoolStore interface {
	GetPool(ctx context.Context, address string) (*model.Pool, error)
	GetPoolByTokens(ctx context.Context, token0, token1 string) (*model.Pool, error)
	UpsertPool(ctx context.Context, pool model.Pool) error
}

// FarmStore persists farms. Farms are unique per pool.
type FarmStore interface {
	GetFarm(ctx context.Context, id string) (*model.Farm, error)
	GetFarmByPool(ctx context.Context, poolID string) (*model.Farm, error)
	ListFarms(ctx context.Context) ([]model.Farm, error)
	InsertFarm(ctx context.Context, farm model.Farm) error
	// UpdateFarm writes accrual and status fields. It does not touch
	// total_staked; that column moves only through AddTotalStaked.
	UpdateFarm(ctx context.Context, farm model.Farm) error
	// AddTotalStaked applies an atomic delta to the farm's staked total.
	AddTotalStaked(ctx context.Context, farmID string, delta float64) error
}

// PositionStore persists farm positions, unique per (farm, user).
type PositionStore interface {
	GetPosition(ctx context.Context, farmID, userID string) (*model.FarmPosition, error)
	ListPositionsByUser(ctx context.Context, userID string) ([]model.FarmPosition, error)
	UpsertPosition(ctx context.Context, pos model.FarmPosition) error
	DeletePosition(ctx context.Context, id string) error
}

// OperationStore persists submitted operations keyed by tx hash.
type OperationStore interface {
	GetOperation(ctx context.Context, id string) (*model.LiquidityOperation, error)
	ListOperationsByUser(ctx context.Context, userAddress string, limit int) ([]model.LiquidityOperation, error)
	// ListPendingOperations returns operations that have not resolved,
	// oldest first. Used to resume monitoring after a restart.
	ListPendingOperations(ctx context.Context) ([]model.LiquidityOperation, error)
	InsertOperation(ctx context.Context, op model.LiquidityOperation) error
	UpdateOperation(ctx context.Context, op model.LiquidityOperation) error
}
