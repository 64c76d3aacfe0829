package ops

import (
	"context"
	"testing"
	"time"

	"ammdesk/internal/chain"
	"ammdesk/internal/chain/chaintest"
	"ammdesk/internal/farm"
	"ammdesk/internal/model"
	"ammdesk/internal/monitor"
	"ammdesk/internal/quote"
	"ammdesk/internal/storage/memory"
)

const (
	userAddr    = "0x00000000000000000000000000000000000000aa"
	tokenAAddr  = "0x00000000000000000000000000000000000000a1"
	tokenBAddr  = "0x00000000000000000000000000000000000000a2"
	poolAddr    = "0x00000000000000000000000000000000000000b1"
	routerAddr  = "0x00000000000000000000000000000000000000c1"
	stakingAddr = "0x00000000000000000000000000000000000000c2"
	rewardAddr  = "0x00000000000000000000000000000000000000d1"
)

type stubProvider struct {
	pool *model.Pool
	info *model.FarmInfo
}

func (s *stubProvider) GetPool(_ context.Context, address string) (*model.Pool, error) {
	if s.pool != nil && s.pool.Address == address {
		return s.pool, nil
	}
	return nil, nil
}

func (s *stubProvider) GetPoolByTokens(_ context.Context, tokenA, tokenB string) (*model.Pool, error) {
	if s.pool == nil {
		return nil, nil
	}
	if (s.pool.Token0 == tokenA && s.pool.Token1 == tokenB) ||
		(s.pool.Token0 == tokenB && s.pool.Token1 == tokenA) {
		return s.pool, nil
	}
	return nil, nil
}

func (s *stubProvider) CreatePool(context.Context, string, string) (*model.Pool, error) {
	return s.pool, nil
}

func (s *stubProvider) GetFarmInfo(_ context.Context, poolAddress string) (*model.FarmInfo, error) {
	if s.info != nil && s.info.PoolAddress == poolAddress {
		return s.info, nil
	}
	return nil, nil
}

type fixture struct {
	client       *chaintest.FakeClient
	stores       *memory.Stores
	ledger       *farm.Ledger
	monitor      *monitor.Monitor
	orchestrator *Orchestrator
	clock        time.Time
}

func newFixture(t *testing.T, autoApprove bool) *fixture {
	t.Helper()

	client := chaintest.NewFakeClient()
	stores := memory.New()
	provider := &stubProvider{
		pool: &model.Pool{
			Address:     poolAddr,
			Token0:      tokenAAddr,
			Token1:      tokenBAddr,
			Reserve0:    1000,
			Reserve1:    2000,
			TotalSupply: 1000,
			FeeBps:      30,
		},
		info: &model.FarmInfo{
			PoolAddress:     poolAddr,
			StakingContract: stakingAddr,
			RewardToken:     rewardAddr,
		},
	}

	engine := quote.NewEngine(provider, nil, quote.Config{}, nil)
	ledger := farm.NewLedger(stores, stores, provider, nil)

	f := &fixture{
		client: client,
		stores: stores,
		ledger: ledger,
		clock:  time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	}
	ledger.SetClock(func() time.Time { return f.clock })

	mon := monitor.NewMonitor(client, stores, nil, monitor.Config{
		InitialDelay: 50 * time.Millisecond,
		PollInterval: 50 * time.Millisecond,
		MaxAttempts:  100,
	}, nil)
	t.Cleanup(mon.Close)

	router, err := chain.ParseAddress(routerAddr)
	if err != nil {
		t.Fatalf("parse router: %v", err)
	}
	staking, err := chain.ParseAddress(stakingAddr)
	if err != nil {
		t.Fatalf("parse staking: %v", err)
	}

	f.monitor = mon
	f.orchestrator = New(Options{
		Quotes:      engine,
		Pools:       provider,
		Ledger:      ledger,
		Chain:       client,
		Operations:  stores,
		Monitor:     mon,
		Router:      router,
		Staking:     staking,
		AutoApprove: autoApprove,
	})
	return f
}

func (f *fixture) grantAllowances(t *testing.T) {
	t.Helper()
	token, _ := chain.ParseAddress(tokenAAddr)
	tokenB, _ := chain.ParseAddress(tokenBAddr)
	owner, _ := chain.ParseAddress(userAddr)
	router, _ := chain.ParseAddress(routerAddr)
	f.client.SetAllowance(token, owner, router, chain.MaxAllowance())
	f.client.SetAllowance(tokenB, owner, router, chain.MaxAllowance())
}

func (f *fixture) createFarm(t *testing.T) *model.Farm {
	t.Helper()
	created, err := f.ledger.CreateFarm(context.Background(), farm.CreateFarmParams{
		PoolID:      poolAddr,
		RewardToken: rewardAddr,
		RewardRate:  10,
	})
	if err != nil {
		t.Fatalf("create farm: %v", err)
	}
	return created
}

func TestAddLiquiditySubmitsAndWatches(t *testing.T) {
	f := newFixture(t, false)
	f.grantAllowances(t)

	op, err := f.orchestrator.AddLiquidity(context.Background(), AddLiquidityRequest{
		UserAddress: userAddr,
		TokenA:      tokenAAddr,
		TokenB:      tokenBAddr,
		AmountA:     10,
	})
	if err != nil {
		t.Fatalf("add liquidity: %v", err)
	}
	if op.Status != model.StatusPending {
		t.Fatalf("status = %s, want pending", op.Status)
	}
	if op.Liquidity <= 0 || op.AmountB != 20 {
		t.Fatalf("quote not applied: %+v", op)
	}

	stored, err := f.stores.GetOperation(context.Background(), op.ID)
	if err != nil || stored == nil {
		t.Fatalf("operation not persisted: %v", err)
	}

	if len(f.client.Submitted) != 1 {
		t.Fatalf("submitted %d calls, want 1", len(f.client.Submitted))
	}
	router, _ := chain.ParseAddress(routerAddr)
	if f.client.Submitted[0].To != router {
		t.Fatalf("call sent to %s, want router", f.client.Submitted[0].To.Hex())
	}

	if f.monitor.PendingCount() != 1 {
		t.Fatalf("liquidity operation not registered with the monitor")
	}
}

func TestAddLiquidityRejectsLowAllowance(t *testing.T) {
	f := newFixture(t, false)

	_, err := f.orchestrator.AddLiquidity(context.Background(), AddLiquidityRequest{
		UserAddress: userAddr,
		TokenA:      tokenAAddr,
		TokenB:      tokenBAddr,
		AmountA:     10,
	})
	if model.CodeOf(err) != model.CodeInsufficientAllowance {
		t.Fatalf("err = %v, want INSUFFICIENT_ALLOWANCE", err)
	}
	if len(f.client.Submitted) != 0 {
		t.Fatalf("call submitted despite missing allowance")
	}
}

func TestAddLiquidityAutoApproves(t *testing.T) {
	f := newFixture(t, true)

	_, err := f.orchestrator.AddLiquidity(context.Background(), AddLiquidityRequest{
		UserAddress: userAddr,
		TokenA:      tokenAAddr,
		TokenB:      tokenBAddr,
		AmountA:     10,
	})
	if err != nil {
		t.Fatalf("add liquidity: %v", err)
	}

	if len(f.client.Approvals) != 2 {
		t.Fatalf("approvals = %d, want one per token", len(f.client.Approvals))
	}
	if f.client.Approvals[0].Amount.Cmp(chain.MaxAllowance()) != 0 {
		t.Fatalf("approval amount = %s, want max", f.client.Approvals[0].Amount)
	}
}

func TestRemoveLiquiditySubmits(t *testing.T) {
	f := newFixture(t, false)

	op, err := f.orchestrator.RemoveLiquidity(context.Background(), RemoveLiquidityRequest{
		UserAddress: userAddr,
		PoolAddress: poolAddr,
		Liquidity:   100,
	})
	if err != nil {
		t.Fatalf("remove liquidity: %v", err)
	}
	// 10% of supply redeems 10% of each reserve
	if op.AmountA != 100 || op.AmountB != 200 {
		t.Fatalf("redeemed amounts = %v/%v, want 100/200", op.AmountA, op.AmountB)
	}
	if f.monitor.PendingCount() != 1 {
		t.Fatalf("remove operation not registered with the monitor")
	}
}

func TestStakeRecordsLedgerWithoutMonitoring(t *testing.T) {
	f := newFixture(t, false)
	created := f.createFarm(t)

	op, err := f.orchestrator.StakeInFarm(context.Background(), FarmRequest{
		UserAddress: userAddr,
		PoolAddress: poolAddr,
		Amount:      100,
	})
	if err != nil {
		t.Fatalf("stake: %v", err)
	}
	if op.Type != model.OpStake {
		t.Fatalf("type = %s, want stake", op.Type)
	}

	// farm operations resolve through the ledger, not the monitor
	if f.monitor.PendingCount() != 0 {
		t.Fatalf("farm operation registered with the monitor")
	}

	staking, _ := chain.ParseAddress(stakingAddr)
	if f.client.Submitted[0].To != staking {
		t.Fatalf("call sent to %s, want staking contract", f.client.Submitted[0].To.Hex())
	}

	updated, err := f.ledger.FarmByPool(context.Background(), poolAddr)
	if err != nil {
		t.Fatalf("farm by pool: %v", err)
	}
	if updated.ID != created.ID || updated.TotalStaked != 100 {
		t.Fatalf("ledger not updated: %+v", updated)
	}
}

func TestUnstakeFullExitReportsRewards(t *testing.T) {
	f := newFixture(t, false)
	f.createFarm(t)
	ctx := context.Background()

	if _, err := f.orchestrator.StakeInFarm(ctx, FarmRequest{
		UserAddress: userAddr, PoolAddress: poolAddr, Amount: 100,
	}); err != nil {
		t.Fatalf("stake: %v", err)
	}

	op, err := f.orchestrator.UnstakeFromFarm(ctx, FarmRequest{
		UserAddress: userAddr, PoolAddress: poolAddr, Amount: 100,
	})
	if err != nil {
		t.Fatalf("unstake: %v", err)
	}
	if op.Type != model.OpUnstake {
		t.Fatalf("type = %s, want unstake", op.Type)
	}

	updated, _ := f.ledger.FarmByPool(ctx, poolAddr)
	if updated.TotalStaked != 0 {
		t.Fatalf("total staked = %v after full exit", updated.TotalStaked)
	}
}

func TestUnstakeOverdrawLeavesNoSideEffects(t *testing.T) {
	f := newFixture(t, false)
	f.createFarm(t)
	ctx := context.Background()

	if _, err := f.orchestrator.StakeInFarm(ctx, FarmRequest{
		UserAddress: userAddr, PoolAddress: poolAddr, Amount: 10,
	}); err != nil {
		t.Fatalf("stake: %v", err)
	}

	submitted := len(f.client.Submitted)
	recorded := len(f.orchestrator.OperationHistory(ctx, userAddr, 10))

	_, err := f.orchestrator.UnstakeFromFarm(ctx, FarmRequest{
		UserAddress: userAddr, PoolAddress: poolAddr, Amount: 50,
	})
	if model.CodeOf(err) != model.CodeInsufficientStake {
		t.Fatalf("err = %v, want INSUFFICIENT_STAKE", err)
	}
	if len(f.client.Submitted) != submitted {
		t.Fatalf("withdraw submitted despite rejection")
	}
	if got := len(f.orchestrator.OperationHistory(ctx, userAddr, 10)); got != recorded {
		t.Fatalf("operations persisted = %d, want %d after rejection", got, recorded)
	}
}

func TestStakeAfterFarmEndLeavesNoSideEffects(t *testing.T) {
	f := newFixture(t, false)
	f.createFarm(t)
	ctx := context.Background()

	f.clock = f.clock.Add(366 * 24 * time.Hour)

	_, err := f.orchestrator.StakeInFarm(ctx, FarmRequest{
		UserAddress: userAddr, PoolAddress: poolAddr, Amount: 10,
	})
	if model.CodeOf(err) != model.CodeFarmInactive {
		t.Fatalf("err = %v, want FARM_INACTIVE", err)
	}
	if len(f.client.Submitted) != 0 {
		t.Fatalf("deposit submitted despite rejection")
	}
	if got := len(f.orchestrator.OperationHistory(ctx, userAddr, 10)); got != 0 {
		t.Fatalf("operations persisted = %d after rejection", got)
	}
}

func TestClaimSubmitsHarvest(t *testing.T) {
	f := newFixture(t, false)
	f.createFarm(t)
	ctx := context.Background()

	if _, err := f.orchestrator.StakeInFarm(ctx, FarmRequest{
		UserAddress: userAddr, PoolAddress: poolAddr, Amount: 100,
	}); err != nil {
		t.Fatalf("stake: %v", err)
	}

	f.clock = f.clock.Add(100 * time.Second)

	op, err := f.orchestrator.ClaimFarmRewards(ctx, FarmRequest{
		UserAddress: userAddr, PoolAddress: poolAddr,
	})
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if op.Type != model.OpClaim {
		t.Fatalf("type = %s, want claim", op.Type)
	}
	// sole staker collects the full emission: 10/s over 100s
	if op.AmountA != 1000 {
		t.Fatalf("claimed = %v, want 1000", op.AmountA)
	}

	staking, _ := chain.ParseAddress(stakingAddr)
	last := f.client.Submitted[len(f.client.Submitted)-1]
	if last.To != staking {
		t.Fatalf("harvest sent to %s, want staking contract", last.To.Hex())
	}
}

func TestClaimWithNothingAccrued(t *testing.T) {
	f := newFixture(t, false)
	f.createFarm(t)
	ctx := context.Background()

	if _, err := f.orchestrator.StakeInFarm(ctx, FarmRequest{
		UserAddress: userAddr, PoolAddress: poolAddr, Amount: 100,
	}); err != nil {
		t.Fatalf("stake: %v", err)
	}

	submitted := len(f.client.Submitted)
	_, err := f.orchestrator.ClaimFarmRewards(ctx, FarmRequest{
		UserAddress: userAddr, PoolAddress: poolAddr,
	})
	if model.CodeOf(err) != model.CodeNothingToClaim {
		t.Fatalf("err = %v, want NOTHING_TO_CLAIM", err)
	}
	if len(f.client.Submitted) != submitted {
		t.Fatalf("harvest submitted despite empty claim")
	}
}

func TestFarmOpsRequireFarm(t *testing.T) {
	f := newFixture(t, false)

	_, err := f.orchestrator.StakeInFarm(context.Background(), FarmRequest{
		UserAddress: userAddr, PoolAddress: poolAddr, Amount: 10,
	})
	if model.CodeOf(err) != model.CodeContractError {
		t.Fatalf("err = %v, want CONTRACT_ERROR", err)
	}
}

func TestBatchAddDropsFailures(t *testing.T) {
	f := newFixture(t, false)
	f.grantAllowances(t)

	good := AddLiquidityRequest{
		UserAddress: userAddr, TokenA: tokenAAddr, TokenB: tokenBAddr, AmountA: 5,
	}
	bad := AddLiquidityRequest{
		UserAddress: userAddr, TokenA: tokenAAddr, TokenB: tokenBAddr, AmountA: 0,
	}

	results := f.orchestrator.BatchAddLiquidity(context.Background(), []AddLiquidityRequest{good, bad, good})
	if len(results) != 2 {
		t.Fatalf("results = %d, want 2 (failure dropped)", len(results))
	}
	for _, op := range results {
		if op.Status != model.StatusPending {
			t.Fatalf("batch result not pending: %+v", op)
		}
	}
}

func TestOperationHistory(t *testing.T) {
	f := newFixture(t, false)
	f.grantAllowances(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := f.orchestrator.AddLiquidity(ctx, AddLiquidityRequest{
			UserAddress: userAddr, TokenA: tokenAAddr, TokenB: tokenBAddr, AmountA: 1,
		}); err != nil {
			t.Fatalf("add liquidity: %v", err)
		}
	}

	history := f.orchestrator.OperationHistory(ctx, userAddr, 2)
	if len(history) != 2 {
		t.Fatalf("history = %d, want 2", len(history))
	}
}
