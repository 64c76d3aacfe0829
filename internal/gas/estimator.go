// Package gas provides the gas estimation collaborator. The quote
// engine attaches estimates without interpreting them.
package gas

import (
	"context"
	"fmt"

	"ammdesk/internal/chain"
	"ammdesk/internal/model"
)

// Operation identifies the call shape being estimated.
type Operation string

const (
	OpAddLiquidity    Operation = "add_liquidity"
	OpRemoveLiquidity Operation = "remove_liquidity"
	OpStake           Operation = "stake"
	OpUnstake         Operation = "unstake"
	OpClaim           Operation = "claim"
	OpApprove         Operation = "approve"
)

// gasLimits are fixed per operation shape; the simplified model does
// not simulate calls.
var gasLimits = map[Operation]uint64{
	OpAddLiquidity:    250_000,
	OpRemoveLiquidity: 220_000,
	OpStake:           180_000,
	OpUnstake:         180_000,
	OpClaim:           150_000,
	OpApprove:         60_000,
}

const defaultGasLimit = 300_000

// Estimator produces gas estimates for swap-like operations.
type Estimator interface {
	Estimate(ctx context.Context, op Operation) (*model.GasEstimate, error)
}

// ChainEstimator derives estimates from node fee suggestions and a
// configured native-asset USD price.
type ChainEstimator struct {
	chain     chain.Client
	nativeUSD float64
}

func NewChainEstimator(client chain.Client, nativeUSD float64) *ChainEstimator {
	return &ChainEstimator{chain: client, nativeUSD: nativeUSD}
}

// Estimate returns the estimate for one operation shape.
func (e *ChainEstimator) Estimate(ctx context.Context, op Operation) (*model.GasEstimate, error) {
	gasPrice, err := e.chain.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("suggest gas price: %w", err)
	}
	tipCap, err := e.chain.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, fmt.Errorf("suggest tip cap: %w", err)
	}

	limit, ok := gasLimits[op]
	if !ok {
		limit = defaultGasLimit
	}

	price := gasPrice.Uint64()
	tip := tipCap.Uint64()
	costNative := float64(limit) * float64(price) / 1e18

	return &model.GasEstimate{
		GasLimit:            limit,
		GasPriceWei:         price,
		MaxFeePerGasWei:     2*price + tip,
		MaxPriorityFeeWei:   tip,
		EstimatedCostNative: costNative,
		EstimatedCostUSD:    costNative * e.nativeUSD,
	}, nil
}
