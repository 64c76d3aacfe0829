package model

// Pool is a snapshot of an AMM pair's on-chain state. Reserves and
// supply are mutated by chain state only; this core treats them as
// read-only inputs.
type Pool struct {
	Address     string  `json:"address"`
	Token0      string  `json:"token0"`
	Token1      string  `json:"token1"`
	Reserve0    float64 `json:"reserve0"`
	Reserve1    float64 `json:"reserve1"`
	TotalSupply float64 `json:"total_supply"`
	FeeBps      uint32  `json:"fee_bps"`
}

// Funded reports whether the pool has ever been seeded with liquidity.
func (p Pool) Funded() bool {
	return p.TotalSupply > 0
}

// FarmInfo describes the staking contract attached to a pool.
type FarmInfo struct {
	PoolAddress     string `json:"pool_address"`
	StakingContract string `json:"staking_contract"`
	RewardToken     string `json:"reward_token"`
}
