// Package quote computes liquidity quotes over pool state. The engine
// is pure computation plus collaborator lookups; nothing here mutates
// chain or store state.
package quote

import (
	"context"
	"math"
	"time"

	"go.uber.org/zap"

	"ammdesk/internal/gas"
	"ammdesk/internal/model"
	"ammdesk/internal/pools"
)

// Config tunes quote validation and annotation.
type Config struct {
	// MaxSlippageBps rejects requests above this tolerance. Default 1000.
	MaxSlippageBps uint32
	// MaxPriceImpactPct triggers the HIGH_PRICE_IMPACT warning. Default 5.
	MaxPriceImpactPct float64
	// QuoteTTL is the validity window of a quote, independent of the
	// caller's deadline. Default 5 minutes.
	QuoteTTL time.Duration
	// DefaultDeadline applies when the request carries no deadline.
	DefaultDeadline time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxSlippageBps == 0 {
		c.MaxSlippageBps = 1000
	}
	if c.MaxPriceImpactPct == 0 {
		c.MaxPriceImpactPct = 5
	}
	if c.QuoteTTL == 0 {
		c.QuoteTTL = 5 * time.Minute
	}
	if c.DefaultDeadline == 0 {
		c.DefaultDeadline = 20 * time.Minute
	}
	return c
}

// Engine produces add- and remove-liquidity quotes.
type Engine struct {
	pools  pools.Provider
	gas    gas.Estimator
	cfg    Config
	logger *zap.Logger
	now    func() time.Time
}

func NewEngine(provider pools.Provider, estimator gas.Estimator, cfg Config, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		pools:  provider,
		gas:    estimator,
		cfg:    cfg.withDefaults(),
		logger: logger,
		now:    time.Now,
	}
}

// AddLiquidityQuote quotes a deposit. The pool is created when the
// token pair has none yet. When AmountB is zero the counterpart amount
// is derived from the current pool ratio.
func (e *Engine) AddLiquidityQuote(ctx context.Context, req model.AddLiquidityQuoteRequest) (*model.LiquidityQuote, error) {
	if req.TokenA == "" || req.TokenB == "" || req.AmountA <= 0 {
		return nil, model.Errf(model.CodeInvalidAmount, "token addresses and amountA are required")
	}
	if req.SlippageToleranceBps > e.cfg.MaxSlippageBps {
		return nil, model.Errf(model.CodeSlippageTooHigh, "slippage tolerance %d bps exceeds %d bps",
			req.SlippageToleranceBps, e.cfg.MaxSlippageBps)
	}

	pool, err := e.pools.GetPoolByTokens(ctx, req.TokenA, req.TokenB)
	if err != nil {
		return nil, err
	}
	if pool == nil {
		pool, err = e.pools.CreatePool(ctx, req.TokenA, req.TokenB)
		if err != nil {
			return nil, err
		}
	}

	amountA := req.AmountA
	amountB := req.AmountB
	if amountB <= 0 {
		amountB = counterpartAmount(pool, amountA)
	}

	liquidity := liquidityMinted(pool, amountA, amountB)
	impact := priceImpactPct(pool, amountA, amountB)
	share := sharePct(pool, liquidity)

	var warnings []string
	if impact > e.cfg.MaxPriceImpactPct {
		warnings = append(warnings, model.WarningHighPriceImpact)
	}
	if share > 50 {
		warnings = append(warnings, model.WarningLowLiquidity)
	}

	now := e.now()
	deadline := e.cfg.DefaultDeadline
	if req.DeadlineMinutes > 0 {
		deadline = time.Duration(req.DeadlineMinutes) * time.Minute
	}

	quote := &model.LiquidityQuote{
		PoolAddress:          pool.Address,
		TokenA:               req.TokenA,
		TokenB:               req.TokenB,
		AmountA:              amountA,
		AmountB:              amountB,
		Liquidity:            liquidity,
		PriceImpact:          impact,
		ShareOfPool:          share,
		RiskLevel:            classifyRisk(impact, share),
		Warnings:             warnings,
		SlippageToleranceBps: req.SlippageToleranceBps,
		Deadline:             now.Add(deadline),
		ExpiresAt:            now.Add(e.cfg.QuoteTTL),
	}
	e.attachGas(ctx, quote, gas.OpAddLiquidity)
	return quote, nil
}

// RemoveLiquidityQuote quotes a strictly proportional redemption.
// Price impact is fixed at zero and risk at LOW on this path, and
// ShareOfPool is a fraction rather than a percentage.
func (e *Engine) RemoveLiquidityQuote(ctx context.Context, req model.RemoveLiquidityQuoteRequest) (*model.LiquidityQuote, error) {
	if req.Liquidity <= 0 {
		return nil, model.Errf(model.CodeInvalidAmount, "liquidity must be positive")
	}

	pool, err := e.pools.GetPool(ctx, req.PoolAddress)
	if err != nil {
		return nil, err
	}
	if pool == nil {
		return nil, model.Errf(model.CodePoolNotFound, "pool %s", req.PoolAddress)
	}
	if pool.TotalSupply <= 0 {
		return nil, model.Errf(model.CodeInvalidAmount, "pool %s has no liquidity", req.PoolAddress)
	}

	shareFraction := req.Liquidity / pool.TotalSupply
	now := e.now()

	quote := &model.LiquidityQuote{
		PoolAddress: pool.Address,
		TokenA:      pool.Token0,
		TokenB:      pool.Token1,
		AmountA:     pool.Reserve0 * req.Liquidity / pool.TotalSupply,
		AmountB:     pool.Reserve1 * req.Liquidity / pool.TotalSupply,
		Liquidity:   req.Liquidity,
		PriceImpact: 0,
		ShareOfPool: shareFraction,
		RiskLevel:   model.RiskLow,
		Deadline:    now.Add(e.cfg.DefaultDeadline),
		ExpiresAt:   now.Add(e.cfg.QuoteTTL),
	}
	e.attachGas(ctx, quote, gas.OpRemoveLiquidity)
	return quote, nil
}

// attachGas adds the collaborator's estimate. Quotes are reads, so a
// failed estimate is logged and the quote goes out without one.
func (e *Engine) attachGas(ctx context.Context, quote *model.LiquidityQuote, op gas.Operation) {
	if e.gas == nil {
		return
	}
	estimate, err := e.gas.Estimate(ctx, op)
	if err != nil {
		e.logger.Warn("gas estimate failed", zap.String("op", string(op)), zap.Error(err))
		return
	}
	quote.Gas = estimate
}

// counterpartAmount derives amountB from the pool ratio. A pool with
// no reserves has no ratio, so the derived amount is zero.
func counterpartAmount(pool *model.Pool, amountA float64) float64 {
	if pool.Reserve0 <= 0 {
		return 0
	}
	return amountA * pool.Reserve1 / pool.Reserve0
}

// liquidityMinted computes the LP tokens for a deposit: the geometric
// mean on first deposit, else a proportional mint against reserve0.
// The proportional formula assumes a balanced deposit; no on-chain
// correction is modeled.
func liquidityMinted(pool *model.Pool, amountA, amountB float64) float64 {
	if pool.TotalSupply <= 0 {
		return math.Sqrt(amountA * amountB)
	}
	return pool.TotalSupply * amountA / pool.Reserve0
}

// priceImpactPct is the percentage deviation between the pool's ratio
// before and after the deposit.
func priceImpactPct(pool *model.Pool, amountA, amountB float64) float64 {
	if pool.Reserve0 <= 0 {
		return 0
	}
	current := pool.Reserve1 / pool.Reserve0
	if current == 0 {
		return 0
	}
	updated := (pool.Reserve1 + amountB) / (pool.Reserve0 + amountA)
	return math.Abs(updated-current) / current * 100
}

// sharePct is the depositor's share of the pool as a percentage. The
// first depositor owns the entire pool.
func sharePct(pool *model.Pool, liquidity float64) float64 {
	if pool.TotalSupply <= 0 {
		return 100
	}
	return liquidity / pool.TotalSupply * 100
}

// classifyRisk applies the risk ladder; first match wins.
func classifyRisk(priceImpact, sharePct float64) model.RiskLevel {
	switch {
	case priceImpact > 10 || sharePct > 80:
		return model.RiskVeryHigh
	case priceImpact > 5 || sharePct > 50:
		return model.RiskHigh
	case priceImpact > 2 || sharePct > 25:
		return model.RiskMedium
	default:
		return model.RiskLow
	}
}
