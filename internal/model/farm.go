package model

import "time"

// SecondsPerYear is the annualization factor used for APR math.
const SecondsPerYear = 31536000

// Farm is a yield farm attached to a pool. At most one farm exists per
// pool. RewardRate is reward units per second for the whole farm.
//
// AccRewardPerShare and LastAccrualAt implement reward-per-share
// accounting: the accumulator advances by rate*dt/totalStaked on every
// mutation, and positions settle against it.
type Farm struct {
	ID                string    `json:"id"`
	PoolID            string    `json:"pool_id"`
	RewardToken       string    `json:"reward_token"`
	RewardRate        float64   `json:"reward_rate"`
	TotalRewards      float64   `json:"total_rewards"`
	TotalStaked       float64   `json:"total_staked"`
	AccRewardPerShare float64   `json:"acc_reward_per_share"`
	LastAccrualAt     time.Time `json:"last_accrual_at"`
	APR               float64   `json:"apr"`
	IsActive          bool      `json:"is_active"`
	StartsAt          time.Time `json:"starts_at"`
	EndsAt            time.Time `json:"ends_at"`
}

// Ended reports whether the farm's reward window has closed.
func (f *Farm) Ended(now time.Time) bool {
	return !f.EndsAt.IsZero() && now.After(f.EndsAt)
}

// FarmPosition is one user's stake in a farm. The row is deleted, not
// soft-closed, when the stake reaches zero. APRAtStake is a snapshot
// taken at first stake and is informational only; reward math uses the
// farm's live accumulator.
type FarmPosition struct {
	ID             string    `json:"id"`
	FarmID         string    `json:"farm_id"`
	UserID         string    `json:"user_id"`
	AmountStaked   float64   `json:"amount_staked"`
	RewardDebt     float64   `json:"reward_debt"`
	PendingRewards float64   `json:"pending_rewards"`
	APRAtStake     float64   `json:"apr_at_stake"`
	UpdatedAt      time.Time `json:"updated_at"`
}
