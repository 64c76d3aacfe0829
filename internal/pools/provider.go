// Package pools provides the pool state provider: chain-sourced pool
// snapshots with a redis cache and a persistent fallback.
package pools

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"ammdesk/internal/chain"
	"ammdesk/internal/model"
	"ammdesk/internal/storage"
)

// Provider supplies pool state to the quote engine and orchestrator.
// Absent pools and farms are reported as (nil, nil).
type Provider interface {
	GetPool(ctx context.Context, address string) (*model.Pool, error)
	GetPoolByTokens(ctx context.Context, tokenA, tokenB string) (*model.Pool, error)
	CreatePool(ctx context.Context, tokenA, tokenB string) (*model.Pool, error)
	GetFarmInfo(ctx context.Context, poolAddress string) (*model.FarmInfo, error)
}

// Options holds the collaborators for a ChainProvider.
type Options struct {
	Chain    chain.Client
	Store    storage.PoolStore
	Farms    storage.FarmStore
	Cache    *Cache
	Factory  common.Address
	Staking  common.Address
	Operator common.Address
	Logger   *zap.Logger
}

// ChainProvider reads pool state from the chain, caching snapshots in
// redis and mirroring them into the store. The chain is the source of
// truth; the store is the fallback when the node is unreachable.
type ChainProvider struct {
	chain    chain.Client
	store    storage.PoolStore
	farms    storage.FarmStore
	cache    *Cache
	factory  common.Address
	staking  common.Address
	operator common.Address
	logger   *zap.Logger
}

func NewChainProvider(opts Options) *ChainProvider {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChainProvider{
		chain:    opts.Chain,
		store:    opts.Store,
		farms:    opts.Farms,
		cache:    opts.Cache,
		factory:  opts.Factory,
		staking:  opts.Staking,
		operator: opts.Operator,
		logger:   logger,
	}
}

// GetPool returns the pool at an address, or nil when unknown.
func (p *ChainProvider) GetPool(ctx context.Context, address string) (*model.Pool, error) {
	cached, err := p.cache.GetPool(ctx, address)
	if err != nil {
		p.logger.Warn("pool cache read failed", zap.String("pool", address), zap.Error(err))
	}
	if cached != nil {
		return cached, nil
	}

	pair, err := chain.ParseAddress(address)
	if err != nil {
		return nil, err
	}

	state, err := readPairState(ctx, p.chain, pair)
	if err != nil {
		p.logger.Warn("chain pool read failed, falling back to store", zap.String("pool", address), zap.Error(err))
		return p.store.GetPool(ctx, address)
	}

	pool := model.Pool{
		Address:     address,
		Token0:      state.Token0.Hex(),
		Token1:      state.Token1.Hex(),
		Reserve0:    chain.FromWei(state.Reserve0),
		Reserve1:    chain.FromWei(state.Reserve1),
		TotalSupply: chain.FromWei(state.TotalSupply),
		FeeBps:      30,
	}
	p.remember(ctx, pool)
	return &pool, nil
}

// GetPoolByTokens resolves the pair address through the factory, then
// reads its state. Returns nil when no pair exists for the tokens.
func (p *ChainProvider) GetPoolByTokens(ctx context.Context, tokenA, tokenB string) (*model.Pool, error) {
	addrA, err := chain.ParseAddress(tokenA)
	if err != nil {
		return nil, err
	}
	addrB, err := chain.ParseAddress(tokenB)
	if err != nil {
		return nil, err
	}

	pair, err := getPairAddress(ctx, p.chain, p.factory, addrA, addrB)
	if err != nil {
		p.logger.Warn("factory lookup failed, falling back to store",
			zap.String("token_a", tokenA), zap.String("token_b", tokenB), zap.Error(err))
		return p.store.GetPoolByTokens(ctx, tokenA, tokenB)
	}
	if pair == (common.Address{}) {
		return nil, nil
	}
	return p.GetPool(ctx, pair.Hex())
}

// CreatePool submits a factory createPair call and returns the fresh,
// unfunded pool record.
func (p *ChainProvider) CreatePool(ctx context.Context, tokenA, tokenB string) (*model.Pool, error) {
	addrA, err := chain.ParseAddress(tokenA)
	if err != nil {
		return nil, err
	}
	addrB, err := chain.ParseAddress(tokenB)
	if err != nil {
		return nil, err
	}

	data, err := packCreatePair(addrA, addrB)
	if err != nil {
		return nil, err
	}
	if _, err := p.chain.SubmitCall(ctx, chain.CallRequest{From: p.operator, To: p.factory, Data: data}); err != nil {
		return nil, fmt.Errorf("create pair: %w", err)
	}

	pair, err := getPairAddress(ctx, p.chain, p.factory, addrA, addrB)
	if err != nil {
		return nil, fmt.Errorf("resolve new pair: %w", err)
	}
	if pair == (common.Address{}) {
		return nil, model.Errf(model.CodeContractError, "pair for %s/%s not yet available", tokenA, tokenB)
	}

	pool := model.Pool{
		Address: pair.Hex(),
		Token0:  addrA.Hex(),
		Token1:  addrB.Hex(),
		FeeBps:  30,
	}
	p.remember(ctx, pool)
	return &pool, nil
}

// GetFarmInfo returns the staking metadata for a pool's farm, or nil
// when the pool has no farm.
func (p *ChainProvider) GetFarmInfo(ctx context.Context, poolAddress string) (*model.FarmInfo, error) {
	farm, err := p.farms.GetFarmByPool(ctx, poolAddress)
	if err != nil {
		return nil, err
	}
	if farm == nil {
		return nil, nil
	}
	return &model.FarmInfo{
		PoolAddress:     poolAddress,
		StakingContract: p.staking.Hex(),
		RewardToken:     farm.RewardToken,
	}, nil
}

// remember mirrors a snapshot into the store and cache. Both writes
// fail soft: the snapshot already came from the source of truth.
func (p *ChainProvider) remember(ctx context.Context, pool model.Pool) {
	if err := p.store.UpsertPool(ctx, pool); err != nil {
		p.logger.Warn("pool store write failed", zap.String("pool", pool.Address), zap.Error(err))
	}
	if err := p.cache.SetPool(ctx, pool); err != nil {
		p.logger.Warn("pool cache write failed", zap.String("pool", pool.Address), zap.Error(err))
	}
}
