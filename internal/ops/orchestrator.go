// Package ops turns quotes and stake requests into submitted
// transactions and pending operation records.
package ops

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"ammdesk/internal/chain"
	"ammdesk/internal/farm"
	"ammdesk/internal/model"
	"ammdesk/internal/monitor"
	"ammdesk/internal/observability"
	"ammdesk/internal/pools"
	"ammdesk/internal/quote"
	"ammdesk/internal/storage"
)

// Options holds the orchestrator's collaborators.
type Options struct {
	Quotes     *quote.Engine
	Pools      pools.Provider
	Ledger     *farm.Ledger
	Chain      chain.Client
	Operations storage.OperationStore
	Journal    *storage.Journal
	Monitor    *monitor.Monitor
	Metrics    *observability.Metrics
	Logger     *zap.Logger

	// Router receives liquidity calls; Staking receives farm calls.
	Router  common.Address
	Staking common.Address
	// AutoApprove submits a max allowance when the current one is short.
	AutoApprove bool
}

// Orchestrator submits operations and registers liquidity operations
// with the transaction monitor. Farm operations are recorded in the
// ledger at submission time and are not monitored.
type Orchestrator struct {
	quotes      *quote.Engine
	pools       pools.Provider
	ledger      *farm.Ledger
	chain       chain.Client
	operations  storage.OperationStore
	journal     *storage.Journal
	monitor     *monitor.Monitor
	metrics     *observability.Metrics
	logger      *zap.Logger
	router      common.Address
	staking     common.Address
	autoApprove bool
}

func New(opts Options) *Orchestrator {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		quotes:      opts.Quotes,
		pools:       opts.Pools,
		ledger:      opts.Ledger,
		chain:       opts.Chain,
		operations:  opts.Operations,
		journal:     opts.Journal,
		monitor:     opts.Monitor,
		metrics:     opts.Metrics,
		logger:      logger,
		router:      opts.Router,
		staking:     opts.Staking,
		autoApprove: opts.AutoApprove,
	}
}

// AddLiquidityRequest describes a deposit submission.
type AddLiquidityRequest struct {
	UserAddress          string  `json:"user_address"`
	TokenA               string  `json:"token_a"`
	TokenB               string  `json:"token_b"`
	AmountA              float64 `json:"amount_a"`
	AmountB              float64 `json:"amount_b,omitempty"`
	SlippageToleranceBps uint32  `json:"slippage_tolerance_bps"`
	DeadlineMinutes      int     `json:"deadline_minutes"`
	// IsETH selects the native-asset router variant; TokenB is then
	// the native side.
	IsETH bool `json:"is_eth"`
}

// RemoveLiquidityRequest describes a redemption submission.
type RemoveLiquidityRequest struct {
	UserAddress string  `json:"user_address"`
	PoolAddress string  `json:"pool_address"`
	Liquidity   float64 `json:"liquidity"`
	IsETH       bool    `json:"is_eth"`
}

// FarmRequest describes a stake, unstake or claim submission.
type FarmRequest struct {
	UserAddress string  `json:"user_address"`
	PoolAddress string  `json:"pool_address"`
	Amount      float64 `json:"amount,omitempty"`
}

// AddLiquidity quotes, ensures allowances, submits the deposit and
// returns the pending operation. It does not wait for confirmation.
func (o *Orchestrator) AddLiquidity(ctx context.Context, req AddLiquidityRequest) (*model.LiquidityOperation, error) {
	user, err := chain.ParseAddress(req.UserAddress)
	if err != nil {
		return nil, err
	}

	q, err := o.quotes.AddLiquidityQuote(ctx, model.AddLiquidityQuoteRequest{
		TokenA:               req.TokenA,
		TokenB:               req.TokenB,
		AmountA:              req.AmountA,
		AmountB:              req.AmountB,
		SlippageToleranceBps: req.SlippageToleranceBps,
		DeadlineMinutes:      req.DeadlineMinutes,
	})
	if err != nil {
		o.metrics.CountFailure(string(model.OpAddLiquidity))
		return nil, err
	}
	o.metrics.CountQuote("add")

	tokenA, err := chain.ParseAddress(req.TokenA)
	if err != nil {
		return nil, err
	}
	amountAWei := chain.ToWei(q.AmountA)
	amountBWei := chain.ToWei(q.AmountB)

	if err := o.ensureAllowance(ctx, tokenA, user, amountAWei); err != nil {
		o.metrics.CountFailure(string(model.OpAddLiquidity))
		return nil, err
	}

	var data []byte
	var value = chain.ToWei(0)
	if req.IsETH {
		data, err = packAddLiquidityETH(tokenA, user, amountAWei, q.Deadline)
		value = amountBWei
	} else {
		tokenB, parseErr := chain.ParseAddress(req.TokenB)
		if parseErr != nil {
			return nil, parseErr
		}
		if err = o.ensureAllowance(ctx, tokenB, user, amountBWei); err != nil {
			o.metrics.CountFailure(string(model.OpAddLiquidity))
			return nil, err
		}
		data, err = packAddLiquidity(tokenA, tokenB, user, amountAWei, amountBWei, q.Deadline)
	}
	if err != nil {
		return nil, err
	}

	op, err := o.submit(ctx, chain.CallRequest{From: user, To: o.router, Data: data, Value: value},
		model.LiquidityOperation{
			Type:        model.OpAddLiquidity,
			UserAddress: req.UserAddress,
			PoolAddress: q.PoolAddress,
			AmountA:     q.AmountA,
			AmountB:     q.AmountB,
			Liquidity:   q.Liquidity,
		})
	if err != nil {
		return nil, err
	}
	o.monitor.Watch(ctx, *op)
	return op, nil
}

// RemoveLiquidity quotes the redemption, submits it and returns the
// pending operation.
func (o *Orchestrator) RemoveLiquidity(ctx context.Context, req RemoveLiquidityRequest) (*model.LiquidityOperation, error) {
	user, err := chain.ParseAddress(req.UserAddress)
	if err != nil {
		return nil, err
	}

	q, err := o.quotes.RemoveLiquidityQuote(ctx, model.RemoveLiquidityQuoteRequest{
		PoolAddress: req.PoolAddress,
		Liquidity:   req.Liquidity,
	})
	if err != nil {
		o.metrics.CountFailure(string(model.OpRemoveLiquidity))
		return nil, err
	}
	o.metrics.CountQuote("remove")

	tokenA, err := chain.ParseAddress(q.TokenA)
	if err != nil {
		return nil, err
	}
	liquidityWei := chain.ToWei(q.Liquidity)

	var data []byte
	if req.IsETH {
		data, err = packRemoveLiquidityETH(tokenA, user, liquidityWei, q.Deadline)
	} else {
		tokenB, parseErr := chain.ParseAddress(q.TokenB)
		if parseErr != nil {
			return nil, parseErr
		}
		data, err = packRemoveLiquidity(tokenA, tokenB, user, liquidityWei, q.Deadline)
	}
	if err != nil {
		return nil, err
	}

	op, err := o.submit(ctx, chain.CallRequest{From: user, To: o.router, Data: data},
		model.LiquidityOperation{
			Type:        model.OpRemoveLiquidity,
			UserAddress: req.UserAddress,
			PoolAddress: q.PoolAddress,
			AmountA:     q.AmountA,
			AmountB:     q.AmountB,
			Liquidity:   q.Liquidity,
		})
	if err != nil {
		return nil, err
	}
	o.monitor.Watch(ctx, *op)
	return op, nil
}

// StakeInFarm records the stake in the ledger and submits the staking
// deposit. A ledger rejection leaves no chain or store side effects.
func (o *Orchestrator) StakeInFarm(ctx context.Context, req FarmRequest) (*model.LiquidityOperation, error) {
	info, farmRecord, err := o.resolveFarm(ctx, req.PoolAddress)
	if err != nil {
		o.metrics.CountFailure(string(model.OpStake))
		return nil, err
	}
	user, err := chain.ParseAddress(req.UserAddress)
	if err != nil {
		return nil, err
	}
	poolAddr, err := chain.ParseAddress(req.PoolAddress)
	if err != nil {
		return nil, err
	}

	data, err := packDeposit(poolAddr, chain.ToWei(req.Amount))
	if err != nil {
		return nil, err
	}
	staking, err := chain.ParseAddress(info.StakingContract)
	if err != nil {
		return nil, err
	}

	if _, err := o.ledger.Stake(ctx, farmRecord.ID, req.UserAddress, req.Amount); err != nil {
		o.metrics.CountFailure(string(model.OpStake))
		return nil, err
	}

	return o.submit(ctx, chain.CallRequest{From: user, To: staking, Data: data},
		model.LiquidityOperation{
			Type:        model.OpStake,
			UserAddress: req.UserAddress,
			PoolAddress: req.PoolAddress,
			AmountA:     req.Amount,
		})
}

// UnstakeFromFarm records the withdrawal in the ledger and submits the
// staking call. A ledger rejection leaves no chain or store side
// effects.
func (o *Orchestrator) UnstakeFromFarm(ctx context.Context, req FarmRequest) (*model.LiquidityOperation, error) {
	info, farmRecord, err := o.resolveFarm(ctx, req.PoolAddress)
	if err != nil {
		o.metrics.CountFailure(string(model.OpUnstake))
		return nil, err
	}
	user, err := chain.ParseAddress(req.UserAddress)
	if err != nil {
		return nil, err
	}
	poolAddr, err := chain.ParseAddress(req.PoolAddress)
	if err != nil {
		return nil, err
	}

	data, err := packWithdraw(poolAddr, chain.ToWei(req.Amount))
	if err != nil {
		return nil, err
	}
	staking, err := chain.ParseAddress(info.StakingContract)
	if err != nil {
		return nil, err
	}

	result, err := o.ledger.Unstake(ctx, farmRecord.ID, req.UserAddress, req.Amount)
	if err != nil {
		o.metrics.CountFailure(string(model.OpUnstake))
		return nil, err
	}

	op, err := o.submit(ctx, chain.CallRequest{From: user, To: staking, Data: data},
		model.LiquidityOperation{
			Type:        model.OpUnstake,
			UserAddress: req.UserAddress,
			PoolAddress: req.PoolAddress,
			AmountA:     req.Amount,
		})
	if err != nil {
		return nil, err
	}
	if result.FullExit {
		op.AmountB = result.RewardsPaid
		o.metrics.AddRewardsClaimed(result.RewardsPaid)
	}
	return op, nil
}

// ClaimFarmRewards submits a harvest call and settles the ledger. The
// claimed amount is reported in the operation's AmountA.
func (o *Orchestrator) ClaimFarmRewards(ctx context.Context, req FarmRequest) (*model.LiquidityOperation, error) {
	info, farmRecord, err := o.resolveFarm(ctx, req.PoolAddress)
	if err != nil {
		o.metrics.CountFailure(string(model.OpClaim))
		return nil, err
	}
	user, err := chain.ParseAddress(req.UserAddress)
	if err != nil {
		return nil, err
	}
	poolAddr, err := chain.ParseAddress(req.PoolAddress)
	if err != nil {
		return nil, err
	}

	data, err := packHarvest(poolAddr)
	if err != nil {
		return nil, err
	}
	staking, err := chain.ParseAddress(info.StakingContract)
	if err != nil {
		return nil, err
	}

	claimed, err := o.ledger.Claim(ctx, farmRecord.ID, req.UserAddress)
	if err != nil {
		o.metrics.CountFailure(string(model.OpClaim))
		return nil, err
	}

	op, err := o.submit(ctx, chain.CallRequest{From: user, To: staking, Data: data},
		model.LiquidityOperation{
			Type:        model.OpClaim,
			UserAddress: req.UserAddress,
			PoolAddress: req.PoolAddress,
			AmountA:     claimed,
		})
	if err != nil {
		return nil, err
	}
	o.metrics.AddRewardsClaimed(claimed)
	return op, nil
}

// BatchAddLiquidity runs deposits concurrently. Failed items are
// logged and dropped from the result; callers count results to detect
// partial success.
func (o *Orchestrator) BatchAddLiquidity(ctx context.Context, reqs []AddLiquidityRequest) []*model.LiquidityOperation {
	results := make([]*model.LiquidityOperation, 0, len(reqs))
	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, req := range reqs {
		wg.Add(1)
		go func(req AddLiquidityRequest) {
			defer wg.Done()
			op, err := o.AddLiquidity(ctx, req)
			if err != nil {
				o.logger.Warn("batch add item failed",
					zap.String("user", req.UserAddress),
					zap.String("token_a", req.TokenA),
					zap.Error(err),
				)
				return
			}
			mu.Lock()
			results = append(results, op)
			mu.Unlock()
		}(req)
	}
	wg.Wait()
	return results
}

// BatchRemoveLiquidity runs redemptions concurrently with the same
// drop-on-failure join as BatchAddLiquidity.
func (o *Orchestrator) BatchRemoveLiquidity(ctx context.Context, reqs []RemoveLiquidityRequest) []*model.LiquidityOperation {
	results := make([]*model.LiquidityOperation, 0, len(reqs))
	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, req := range reqs {
		wg.Add(1)
		go func(req RemoveLiquidityRequest) {
			defer wg.Done()
			op, err := o.RemoveLiquidity(ctx, req)
			if err != nil {
				o.logger.Warn("batch remove item failed",
					zap.String("user", req.UserAddress),
					zap.String("pool", req.PoolAddress),
					zap.Error(err),
				)
				return
			}
			mu.Lock()
			results = append(results, op)
			mu.Unlock()
		}(req)
	}
	wg.Wait()
	return results
}

// OperationHistory returns a user's past operations. Reads fail soft.
func (o *Orchestrator) OperationHistory(ctx context.Context, userAddress string, limit int) []model.LiquidityOperation {
	ops, err := o.operations.ListOperationsByUser(ctx, userAddress, limit)
	if err != nil {
		o.logger.Error("operation history read failed", zap.String("user", userAddress), zap.Error(err))
		return nil
	}
	return ops
}

// resolveFarm loads the staking metadata and ledger farm for a pool.
func (o *Orchestrator) resolveFarm(ctx context.Context, poolAddress string) (*model.FarmInfo, *model.Farm, error) {
	info, err := o.pools.GetFarmInfo(ctx, poolAddress)
	if err != nil {
		return nil, nil, err
	}
	if info == nil {
		return nil, nil, model.Errf(model.CodeContractError, "pool %s has no farm", poolAddress)
	}
	farmRecord, err := o.ledger.FarmByPool(ctx, poolAddress)
	if err != nil {
		return nil, nil, err
	}
	if farmRecord == nil {
		return nil, nil, model.Errf(model.CodeContractError, "pool %s has no farm", poolAddress)
	}
	return info, farmRecord, nil
}

// ensureAllowance checks the router's spending allowance and, with
// autoApprove, submits a max approval when it is short.
func (o *Orchestrator) ensureAllowance(ctx context.Context, token, owner common.Address, required *big.Int) error {
	allowance, err := o.chain.Allowance(ctx, token, owner, o.router)
	if err != nil {
		return err
	}
	if allowance.Cmp(required) >= 0 {
		return nil
	}
	if !o.autoApprove {
		return model.Errf(model.CodeInsufficientAllowance,
			"token %s allowance below required amount", token.Hex())
	}
	if _, err := o.chain.Approve(ctx, token, owner, o.router, chain.MaxAllowance()); err != nil {
		return err
	}
	o.logger.Info("allowance granted",
		zap.String("token", token.Hex()),
		zap.String("owner", owner.Hex()),
	)
	return nil
}

// submit sends the call and persists the pending operation keyed by
// the returned transaction hash.
func (o *Orchestrator) submit(ctx context.Context, call chain.CallRequest, op model.LiquidityOperation) (*model.LiquidityOperation, error) {
	txHash, err := o.chain.SubmitCall(ctx, call)
	if err != nil {
		o.metrics.CountFailure(string(op.Type))
		return nil, err
	}

	now := time.Now().UTC()
	op.ID = txHash.Hex()
	op.Status = model.StatusPending
	op.CreatedAt = now
	op.UpdatedAt = now

	if err := o.operations.InsertOperation(ctx, op); err != nil {
		return nil, err
	}
	if o.journal != nil {
		if err := o.journal.Append(op); err != nil {
			o.logger.Warn("journal append failed", zap.String("operation", op.ID), zap.Error(err))
		}
	}

	o.metrics.CountSubmitted(string(op.Type))
	o.logger.Info("operation submitted",
		zap.String("operation", op.ID),
		zap.String("type", string(op.Type)),
		zap.String("user", op.UserAddress),
		zap.String("pool", op.PoolAddress),
	)
	return &op, nil
}
