package model

import "time"

// RiskLevel classifies how aggressive a quoted deposit is relative to
// the pool it targets.
type RiskLevel string

const (
	RiskLow      RiskLevel = "LOW"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskHigh     RiskLevel = "HIGH"
	RiskVeryHigh RiskLevel = "VERY_HIGH"
)

// Warning codes attached to quotes.
const (
	WarningHighPriceImpact = "HIGH_PRICE_IMPACT"
	WarningLowLiquidity    = "LOW_LIQUIDITY"
)

// AddLiquidityQuoteRequest asks for a deposit quote. AmountB of zero
// means "derive the counterpart amount from the current pool ratio".
type AddLiquidityQuoteRequest struct {
	TokenA               string  `json:"token_a"`
	TokenB               string  `json:"token_b"`
	AmountA              float64 `json:"amount_a"`
	AmountB              float64 `json:"amount_b,omitempty"`
	SlippageToleranceBps uint32  `json:"slippage_tolerance_bps"`
	DeadlineMinutes      int     `json:"deadline_minutes"`
}

// RemoveLiquidityQuoteRequest asks for a redemption quote.
type RemoveLiquidityQuoteRequest struct {
	PoolAddress string  `json:"pool_address"`
	Liquidity   float64 `json:"liquidity"`
}

// GasEstimate is produced by the gas estimation collaborator and
// attached to quotes unchanged.
type GasEstimate struct {
	GasLimit            uint64  `json:"gas_limit"`
	GasPriceWei         uint64  `json:"gas_price_wei"`
	MaxFeePerGasWei     uint64  `json:"max_fee_per_gas_wei"`
	MaxPriorityFeeWei   uint64  `json:"max_priority_fee_wei"`
	EstimatedCostNative float64 `json:"estimated_cost_native"`
	EstimatedCostUSD    float64 `json:"estimated_cost_usd"`
}

// LiquidityQuote is the ephemeral result of a quote computation. It is
// never persisted; it expires ExpiresAt regardless of Deadline.
//
// ShareOfPool is a percentage on the add path and a fraction on the
// remove path. Callers depend on the mismatch, so it is kept.
type LiquidityQuote struct {
	PoolAddress          string       `json:"pool_address"`
	TokenA               string       `json:"token_a"`
	TokenB               string       `json:"token_b"`
	AmountA              float64      `json:"amount_a"`
	AmountB              float64      `json:"amount_b"`
	Liquidity            float64      `json:"liquidity"`
	PriceImpact          float64      `json:"price_impact"`
	ShareOfPool          float64      `json:"share_of_pool"`
	RiskLevel            RiskLevel    `json:"risk_level"`
	Warnings             []string     `json:"warnings,omitempty"`
	SlippageToleranceBps uint32       `json:"slippage_tolerance_bps"`
	Deadline             time.Time    `json:"deadline"`
	ExpiresAt            time.Time    `json:"expires_at"`
	Gas                  *GasEstimate `json:"gas,omitempty"`
}

// Expired reports whether the quote's validity window has passed.
func (q *LiquidityQuote) Expired(now time.Time) bool {
	return now.After(q.ExpiresAt)
}
