package model

import "time"

// OperationType identifies the kind of submitted operation.
type OperationType string

const (
	OpAddLiquidity    OperationType = "add"
	OpRemoveLiquidity OperationType = "remove"
	OpStake           OperationType = "stake"
	OpUnstake         OperationType = "unstake"
	OpClaim           OperationType = "claim"
)

// OperationStatus is the lifecycle state of a submitted operation.
// Transitions are pending -> confirmed or pending -> failed, exactly
// once; both targets are terminal.
type OperationStatus string

const (
	StatusPending   OperationStatus = "pending"
	StatusConfirmed OperationStatus = "confirmed"
	StatusFailed    OperationStatus = "failed"
)

// LiquidityOperation is a submitted transaction tracked by the core.
// ID is the transaction hash.
type LiquidityOperation struct {
	ID            string          `json:"id"`
	Type          OperationType   `json:"type"`
	UserAddress   string          `json:"user_address"`
	PoolAddress   string          `json:"pool_address"`
	AmountA       float64         `json:"amount_a"`
	AmountB       float64         `json:"amount_b"`
	Liquidity     float64         `json:"liquidity"`
	Status        OperationStatus `json:"status"`
	BlockNumber   uint64          `json:"block_number"`
	Confirmations int             `json:"confirmations"`
	GasUsed       uint64          `json:"gas_used"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Terminal reports whether the operation has resolved.
func (o *LiquidityOperation) Terminal() bool {
	return o.Status == StatusConfirmed || o.Status == StatusFailed
}
