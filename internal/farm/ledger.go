// Package farm maintains yield farm and stake state with
// reward-per-share accounting.
package farm

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"ammdesk/internal/model"
	"ammdesk/internal/pools"
	"ammdesk/internal/storage"
)

// stakeDust absorbs float residue when deciding whether an unstake is
// a full exit.
const stakeDust = 1e-9

// CreateFarmParams describes a new farm. EndsAt wins over
// DurationDays; with neither, the farm runs one year. TotalRewards of
// zero is derived as rate times duration.
type CreateFarmParams struct {
	PoolID       string
	RewardToken  string
	RewardRate   float64
	TotalRewards float64
	StartsAt     time.Time
	EndsAt       time.Time
	DurationDays int
}

// UnstakeResult reports the outcome of an unstake. On a full exit the
// position is deleted and its accrued rewards are returned here, so no
// value is lost with the row.
type UnstakeResult struct {
	Position    *model.FarmPosition
	RewardsPaid float64
	FullExit    bool
}

// Ledger owns all farm and position mutations. Mutations for a given
// farm are serialized through a per-farm lock; the store additionally
// applies staked-total deltas atomically.
type Ledger struct {
	farms     storage.FarmStore
	positions storage.PositionStore
	pools     pools.Provider
	logger    *zap.Logger
	now       func() time.Time

	mu        sync.Mutex
	farmLocks map[string]*sync.Mutex
}

func NewLedger(farms storage.FarmStore, positions storage.PositionStore, provider pools.Provider, logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{
		farms:     farms,
		positions: positions,
		pools:     provider,
		logger:    logger,
		now:       time.Now,
		farmLocks: make(map[string]*sync.Mutex),
	}
}

// SetClock overrides the ledger's time source. Intended for tests.
func (l *Ledger) SetClock(now func() time.Time) {
	l.now = now
}

func (l *Ledger) lockFarm(farmID string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	lock, ok := l.farmLocks[farmID]
	if !ok {
		lock = &sync.Mutex{}
		l.farmLocks[farmID] = lock
	}
	return lock
}

// CreateFarm creates a farm for a pool. The pool must exist and must
// not already carry an active farm.
func (l *Ledger) CreateFarm(ctx context.Context, params CreateFarmParams) (*model.Farm, error) {
	pool, err := l.pools.GetPool(ctx, params.PoolID)
	if err != nil {
		return nil, err
	}
	if pool == nil {
		return nil, model.Errf(model.CodePoolNotFound, "pool %s", params.PoolID)
	}

	existing, err := l.farms.GetFarmByPool(ctx, params.PoolID)
	if err != nil {
		return nil, err
	}
	if existing != nil && existing.IsActive {
		return nil, model.Errf(model.CodeFarmExists, "pool %s already has an active farm", params.PoolID)
	}

	if params.RewardRate <= 0 {
		return nil, model.Errf(model.CodeInvalidAmount, "reward rate must be positive")
	}

	starts := params.StartsAt
	if starts.IsZero() {
		starts = l.now()
	}
	ends := params.EndsAt
	if ends.IsZero() {
		if params.DurationDays > 0 {
			ends = starts.Add(time.Duration(params.DurationDays) * 24 * time.Hour)
		} else {
			ends = starts.AddDate(1, 0, 0)
		}
	}

	totalRewards := params.TotalRewards
	if totalRewards <= 0 {
		totalRewards = params.RewardRate * ends.Sub(starts).Seconds()
	}

	farm := model.Farm{
		ID:            uuid.NewString(),
		PoolID:        params.PoolID,
		RewardToken:   params.RewardToken,
		RewardRate:    params.RewardRate,
		TotalRewards:  totalRewards,
		TotalStaked:   0,
		APR:           0,
		IsActive:      true,
		StartsAt:      starts,
		EndsAt:        ends,
		LastAccrualAt: starts,
	}
	if err := l.farms.InsertFarm(ctx, farm); err != nil {
		return nil, err
	}

	l.logger.Info("farm created",
		zap.String("farm", farm.ID),
		zap.String("pool", farm.PoolID),
		zap.Float64("reward_rate", farm.RewardRate),
		zap.Time("ends_at", farm.EndsAt),
	)
	return &farm, nil
}

// Stake adds to the caller's position. New positions snapshot the
// farm's pre-stake APR as informational aprAtStake.
func (l *Ledger) Stake(ctx context.Context, farmID, userID string, amount float64) (*model.FarmPosition, error) {
	if amount <= 0 {
		return nil, model.Errf(model.CodeInvalidAmount, "stake amount must be positive")
	}

	lock := l.lockFarm(farmID)
	lock.Lock()
	defer lock.Unlock()

	farm, err := l.farms.GetFarm(ctx, farmID)
	if err != nil {
		return nil, err
	}
	if farm == nil {
		return nil, model.Errf(model.CodeFarmNotFound, "farm %s", farmID)
	}
	now := l.now()
	if !farm.IsActive || farm.Ended(now) {
		return nil, model.Errf(model.CodeFarmInactive, "farm %s is not accepting stakes", farmID)
	}

	accrue(farm, now)

	pos, err := l.positions.GetPosition(ctx, farmID, userID)
	if err != nil {
		return nil, err
	}
	if pos == nil {
		pos = &model.FarmPosition{
			ID:         uuid.NewString(),
			FarmID:     farmID,
			UserID:     userID,
			APRAtStake: farm.APR,
		}
	} else {
		settle(pos, farm)
	}

	pos.AmountStaked += amount
	pos.RewardDebt = pos.AmountStaked * farm.AccRewardPerShare
	pos.UpdatedAt = now
	if err := l.positions.UpsertPosition(ctx, *pos); err != nil {
		return nil, err
	}

	if err := l.applyStakeDelta(ctx, farm, amount); err != nil {
		return nil, err
	}

	l.logger.Info("stake recorded",
		zap.String("farm", farmID),
		zap.String("user", userID),
		zap.Float64("amount", amount),
		zap.Float64("total_staked", farm.TotalStaked),
	)
	return pos, nil
}

// Unstake reduces the caller's position, settling accrued rewards
// before the reduction. Unstaking the full balance deletes the
// position and pays out its accrued rewards in the result.
func (l *Ledger) Unstake(ctx context.Context, farmID, userID string, amount float64) (*UnstakeResult, error) {
	if amount <= 0 {
		return nil, model.Errf(model.CodeInvalidAmount, "unstake amount must be positive")
	}

	lock := l.lockFarm(farmID)
	lock.Lock()
	defer lock.Unlock()

	farm, err := l.farms.GetFarm(ctx, farmID)
	if err != nil {
		return nil, err
	}
	if farm == nil {
		return nil, model.Errf(model.CodeFarmNotFound, "farm %s", farmID)
	}

	pos, err := l.positions.GetPosition(ctx, farmID, userID)
	if err != nil {
		return nil, err
	}
	if pos == nil || pos.AmountStaked < amount-stakeDust {
		return nil, model.Errf(model.CodeInsufficientStake, "staked balance below %v", amount)
	}

	now := l.now()
	accrue(farm, now)
	settle(pos, farm)

	remaining := pos.AmountStaked - amount
	if remaining <= stakeDust {
		rewards := pos.PendingRewards
		if err := l.positions.DeletePosition(ctx, pos.ID); err != nil {
			return nil, err
		}
		if err := l.applyStakeDelta(ctx, farm, -pos.AmountStaked); err != nil {
			return nil, err
		}
		l.logger.Info("full exit",
			zap.String("farm", farmID),
			zap.String("user", userID),
			zap.Float64("rewards_paid", rewards),
		)
		return &UnstakeResult{RewardsPaid: rewards, FullExit: true}, nil
	}

	pos.AmountStaked = remaining
	pos.RewardDebt = remaining * farm.AccRewardPerShare
	pos.UpdatedAt = now
	if err := l.positions.UpsertPosition(ctx, *pos); err != nil {
		return nil, err
	}
	if err := l.applyStakeDelta(ctx, farm, -amount); err != nil {
		return nil, err
	}
	return &UnstakeResult{Position: pos}, nil
}

// Claim collects all accrued rewards for a position and resets its
// pending balance. No reward-token transfer happens here; payment is
// an external collaborator's job.
func (l *Ledger) Claim(ctx context.Context, farmID, userID string) (float64, error) {
	lock := l.lockFarm(farmID)
	lock.Lock()
	defer lock.Unlock()

	farm, err := l.farms.GetFarm(ctx, farmID)
	if err != nil {
		return 0, err
	}
	if farm == nil {
		return 0, model.Errf(model.CodeFarmNotFound, "farm %s", farmID)
	}

	pos, err := l.positions.GetPosition(ctx, farmID, userID)
	if err != nil {
		return 0, err
	}
	if pos == nil {
		return 0, model.Errf(model.CodePositionNotFound, "no position for user %s in farm %s", userID, farmID)
	}

	now := l.now()
	accrue(farm, now)
	settle(pos, farm)

	total := pos.PendingRewards
	if total <= 0 {
		return 0, model.Errf(model.CodeNothingToClaim, "no rewards accrued")
	}

	pos.PendingRewards = 0
	pos.RewardDebt = pos.AmountStaked * farm.AccRewardPerShare
	pos.UpdatedAt = now
	if err := l.positions.UpsertPosition(ctx, *pos); err != nil {
		return 0, err
	}
	if err := l.farms.UpdateFarm(ctx, *farm); err != nil {
		return 0, err
	}

	l.logger.Info("rewards claimed",
		zap.String("farm", farmID),
		zap.String("user", userID),
		zap.Float64("amount", total),
	)
	return total, nil
}

// PendingRewards reports the claimable balance without mutating state.
func (l *Ledger) PendingRewards(ctx context.Context, farmID, userID string) (float64, error) {
	farm, err := l.farms.GetFarm(ctx, farmID)
	if err != nil {
		return 0, err
	}
	if farm == nil {
		return 0, model.Errf(model.CodeFarmNotFound, "farm %s", farmID)
	}
	pos, err := l.positions.GetPosition(ctx, farmID, userID)
	if err != nil {
		return 0, err
	}
	if pos == nil {
		return 0, nil
	}

	preview := *farm
	accrue(&preview, l.now())
	return pos.PendingRewards + pos.AmountStaked*preview.AccRewardPerShare - pos.RewardDebt, nil
}

// FarmByPool resolves the farm attached to a pool.
func (l *Ledger) FarmByPool(ctx context.Context, poolID string) (*model.Farm, error) {
	return l.farms.GetFarmByPool(ctx, poolID)
}

// ListFarms returns all farms. Reads fail soft: errors are logged and
// an empty list returned.
func (l *Ledger) ListFarms(ctx context.Context) []model.Farm {
	farms, err := l.farms.ListFarms(ctx)
	if err != nil {
		l.logger.Error("list farms failed", zap.Error(err))
		return nil
	}
	return farms
}

// ListPositions returns a user's positions. Reads fail soft.
func (l *Ledger) ListPositions(ctx context.Context, userID string) []model.FarmPosition {
	positions, err := l.positions.ListPositionsByUser(ctx, userID)
	if err != nil {
		l.logger.Error("list positions failed", zap.String("user", userID), zap.Error(err))
		return nil
	}
	return positions
}

// applyStakeDelta moves the staked total atomically in the store and
// refreshes the farm's APR from the new total.
func (l *Ledger) applyStakeDelta(ctx context.Context, farm *model.Farm, delta float64) error {
	if err := l.farms.AddTotalStaked(ctx, farm.ID, delta); err != nil {
		return err
	}
	farm.TotalStaked += delta
	if farm.TotalStaked < 0 {
		farm.TotalStaked = 0
	}
	farm.APR = annualizedRate(farm.RewardRate, farm.TotalStaked)
	return l.farms.UpdateFarm(ctx, *farm)
}

// accrue advances the farm's reward-per-share accumulator to now,
// clamped at the farm's end time. An empty farm accrues nothing but
// still advances its clock.
func accrue(farm *model.Farm, now time.Time) {
	if !farm.EndsAt.IsZero() && now.After(farm.EndsAt) {
		now = farm.EndsAt
	}
	if !now.After(farm.LastAccrualAt) {
		return
	}
	dt := now.Sub(farm.LastAccrualAt).Seconds()
	if farm.TotalStaked > 0 {
		farm.AccRewardPerShare += farm.RewardRate * dt / farm.TotalStaked
	}
	farm.LastAccrualAt = now
}

// settle folds a position's newly accrued rewards into its pending
// balance and re-anchors its debt.
func settle(pos *model.FarmPosition, farm *model.Farm) {
	pos.PendingRewards += pos.AmountStaked*farm.AccRewardPerShare - pos.RewardDebt
	pos.RewardDebt = pos.AmountStaked * farm.AccRewardPerShare
}

// annualizedRate is the farm APR: rate over a year relative to the
// staked total, zero for an empty farm.
func annualizedRate(rewardRate, totalStaked float64) float64 {
	if totalStaked <= 0 {
		return 0
	}
	return rewardRate * model.SecondsPerYear / totalStaked * 100
}
