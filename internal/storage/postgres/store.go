// Package postgres implements the storage interfaces on pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"ammdesk/internal/model"
)

// Store provides Postgres persistence for pools, farms, positions and
// operations.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// GetPool returns the pool snapshot for an address, or nil when absent.
func (s *Store) GetPool(ctx context.Context, address string) (*model.Pool, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT pool_address, token0, token1, reserve0, reserve1, total_supply, fee_bps
		FROM pools WHERE pool_address = $1
	`, address)
	return scanPool(row)
}

// GetPoolByTokens returns the pool for a token pair in either order.
func (s *Store) GetPoolByTokens(ctx context.Context, token0, token1 string) (*model.Pool, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT pool_address, token0, token1, reserve0, reserve1, total_supply, fee_bps
		FROM pools
		WHERE (token0 = $1 AND token1 = $2) OR (token0 = $2 AND token1 = $1)
	`, token0, token1)
	return scanPool(row)
}

func scanPool(row pgx.Row) (*model.Pool, error) {
	var p model.Pool
	err := row.Scan(&p.Address, &p.Token0, &p.Token1, &p.Reserve0, &p.Reserve1, &p.TotalSupply, &p.FeeBps)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

// UpsertPool inserts or refreshes a pool snapshot.
func (s *Store) UpsertPool(ctx context.Context, pool model.Pool) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO pools (
			pool_address, token0, token1, reserve0, reserve1, total_supply, fee_bps, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())
		ON CONFLICT (pool_address)
		DO UPDATE SET
			reserve0 = EXCLUDED.reserve0,
			reserve1 = EXCLUDED.reserve1,
			total_supply = EXCLUDED.total_supply,
			fee_bps = EXCLUDED.fee_bps,
			updated_at = now()
	`, pool.Address, pool.Token0, pool.Token1, pool.Reserve0, pool.Reserve1, pool.TotalSupply, pool.FeeBps)
	return err
}

const farmColumns = `id, pool_id, reward_token, reward_rate, total_rewards, total_staked,
	acc_reward_per_share, last_accrual_at, apr, is_active, starts_at, ends_at`

// GetFarm returns a farm by id, or nil when absent.
func (s *Store) GetFarm(ctx context.Context, id string) (*model.Farm, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+farmColumns+` FROM farms WHERE id = $1`, id)
	return scanFarm(row)
}

// GetFarmByPool returns the farm attached to a pool, or nil when absent.
func (s *Store) GetFarmByPool(ctx context.Context, poolID string) (*model.Farm, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+farmColumns+` FROM farms WHERE pool_id = $1`, poolID)
	return scanFarm(row)
}

func scanFarm(row pgx.Row) (*model.Farm, error) {
	var f model.Farm
	err := row.Scan(&f.ID, &f.PoolID, &f.RewardToken, &f.RewardRate, &f.TotalRewards, &f.TotalStaked,
		&f.AccRewardPerShare, &f.LastAccrualAt, &f.APR, &f.IsActive, &f.StartsAt, &f.EndsAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &f, nil
}

// ListFarms returns all farms.
func (s *Store) ListFarms(ctx context.Context) ([]model.Farm, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+farmColumns+` FROM farms ORDER BY starts_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var farms []model.Farm
	for rows.Next() {
		var f model.Farm
		if err := rows.Scan(&f.ID, &f.PoolID, &f.RewardToken, &f.RewardRate, &f.TotalRewards, &f.TotalStaked,
			&f.AccRewardPerShare, &f.LastAccrualAt, &f.APR, &f.IsActive, &f.StartsAt, &f.EndsAt); err != nil {
			return nil, err
		}
		farms = append(farms, f)
	}
	return farms, rows.Err()
}

// InsertFarm creates a farm. The unique index on pool_id enforces the
// one-farm-per-pool invariant at the storage level.
func (s *Store) InsertFarm(ctx context.Context, farm model.Farm) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO farms (`+farmColumns+`, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,now(),now())
	`, farm.ID, farm.PoolID, farm.RewardToken, farm.RewardRate, farm.TotalRewards, farm.TotalStaked,
		farm.AccRewardPerShare, farm.LastAccrualAt, farm.APR, farm.IsActive, farm.StartsAt, farm.EndsAt)
	return err
}

// UpdateFarm writes accrual and status fields; total_staked is left to
// AddTotalStaked.
func (s *Store) UpdateFarm(ctx context.Context, farm model.Farm) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE farms SET
			reward_rate = $2,
			total_rewards = $3,
			acc_reward_per_share = $4,
			last_accrual_at = $5,
			apr = $6,
			is_active = $7,
			ends_at = $8,
			updated_at = now()
		WHERE id = $1
	`, farm.ID, farm.RewardRate, farm.TotalRewards, farm.AccRewardPerShare, farm.LastAccrualAt,
		farm.APR, farm.IsActive, farm.EndsAt)
	return err
}

// AddTotalStaked applies an atomic delta to the staked total.
func (s *Store) AddTotalStaked(ctx context.Context, farmID string, delta float64) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE farms SET total_staked = GREATEST(total_staked + $2, 0), updated_at = now()
		WHERE id = $1
	`, farmID, delta)
	return err
}

// GetPosition returns the (farm, user) position, or nil when absent.
func (s *Store) GetPosition(ctx context.Context, farmID, userID string) (*model.FarmPosition, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, farm_id, user_id, amount_staked, reward_debt, pending_rewards, apr_at_stake, updated_at
		FROM farm_positions WHERE farm_id = $1 AND user_id = $2
	`, farmID, userID)
	var p model.FarmPosition
	err := row.Scan(&p.ID, &p.FarmID, &p.UserID, &p.AmountStaked, &p.RewardDebt, &p.PendingRewards, &p.APRAtStake, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

// ListPositionsByUser returns every position held by a user.
func (s *Store) ListPositionsByUser(ctx context.Context, userID string) ([]model.FarmPosition, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, farm_id, user_id, amount_staked, reward_debt, pending_rewards, apr_at_stake, updated_at
		FROM farm_positions WHERE user_id = $1
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var positions []model.FarmPosition
	for rows.Next() {
		var p model.FarmPosition
		if err := rows.Scan(&p.ID, &p.FarmID, &p.UserID, &p.AmountStaked, &p.RewardDebt, &p.PendingRewards, &p.APRAtStake, &p.UpdatedAt); err != nil {
			return nil, err
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

// UpsertPosition inserts or updates a position on its (farm, user) key.
func (s *Store) UpsertPosition(ctx context.Context, pos model.FarmPosition) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO farm_positions (
			id, farm_id, user_id, amount_staked, reward_debt, pending_rewards, apr_at_stake, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, now(), $8)
		ON CONFLICT (farm_id, user_id)
		DO UPDATE SET
			amount_staked = EXCLUDED.amount_staked,
			reward_debt = EXCLUDED.reward_debt,
			pending_rewards = EXCLUDED.pending_rewards,
			updated_at = EXCLUDED.updated_at
	`, pos.ID, pos.FarmID, pos.UserID, pos.AmountStaked, pos.RewardDebt, pos.PendingRewards, pos.APRAtStake, pos.UpdatedAt)
	return err
}

// DeletePosition removes a position row on full exit.
func (s *Store) DeletePosition(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM farm_positions WHERE id = $1`, id)
	return err
}

const operationColumns = `id, op_type, user_address, pool_address, amount_a, amount_b, liquidity,
	status, block_number, confirmations, gas_used, created_at, updated_at`

// GetOperation returns an operation by tx hash, or nil when absent.
func (s *Store) GetOperation(ctx context.Context, id string) (*model.LiquidityOperation, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+operationColumns+` FROM liquidity_operations WHERE id = $1`, id)
	var op model.LiquidityOperation
	err := row.Scan(&op.ID, &op.Type, &op.UserAddress, &op.PoolAddress, &op.AmountA, &op.AmountB, &op.Liquidity,
		&op.Status, &op.BlockNumber, &op.Confirmations, &op.GasUsed, &op.CreatedAt, &op.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &op, nil
}

// ListOperationsByUser returns a user's operation history, newest first.
func (s *Store) ListOperationsByUser(ctx context.Context, userAddress string, limit int) ([]model.LiquidityOperation, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+operationColumns+` FROM liquidity_operations
		WHERE user_address = $1 ORDER BY created_at DESC LIMIT $2
	`, userAddress, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ops []model.LiquidityOperation
	for rows.Next() {
		var op model.LiquidityOperation
		if err := rows.Scan(&op.ID, &op.Type, &op.UserAddress, &op.PoolAddress, &op.AmountA, &op.AmountB, &op.Liquidity,
			&op.Status, &op.BlockNumber, &op.Confirmations, &op.GasUsed, &op.CreatedAt, &op.UpdatedAt); err != nil {
			return nil, err
		}
		ops = append(ops, op)
	}
	return ops, rows.Err()
}

// ListPendingOperations returns unresolved operations, oldest first.
func (s *Store) ListPendingOperations(ctx context.Context) ([]model.LiquidityOperation, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+operationColumns+` FROM liquidity_operations
		WHERE status = 'pending' ORDER BY created_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ops []model.LiquidityOperation
	for rows.Next() {
		var op model.LiquidityOperation
		if err := rows.Scan(&op.ID, &op.Type, &op.UserAddress, &op.PoolAddress, &op.AmountA, &op.AmountB, &op.Liquidity,
			&op.Status, &op.BlockNumber, &op.Confirmations, &op.GasUsed, &op.CreatedAt, &op.UpdatedAt); err != nil {
			return nil, err
		}
		ops = append(ops, op)
	}
	return ops, rows.Err()
}

// InsertOperation records a newly submitted operation.
func (s *Store) InsertOperation(ctx context.Context, op model.LiquidityOperation) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO liquidity_operations (`+operationColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
	`, op.ID, op.Type, op.UserAddress, op.PoolAddress, op.AmountA, op.AmountB, op.Liquidity,
		op.Status, op.BlockNumber, op.Confirmations, op.GasUsed, op.CreatedAt, op.UpdatedAt)
	return err
}

// UpdateOperation writes the resolved state of an operation.
func (s *Store) UpdateOperation(ctx context.Context, op model.LiquidityOperation) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE liquidity_operations SET
			status = $2,
			block_number = $3,
			confirmations = $4,
			gas_used = $5,
			updated_at = $6
		WHERE id = $1
	`, op.ID, op.Status, op.BlockNumber, op.Confirmations, op.GasUsed, op.UpdatedAt)
	return err
}
