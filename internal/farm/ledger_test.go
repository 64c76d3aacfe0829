package farm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"ammdesk/internal/model"
	"ammdesk/internal/storage/memory"
)

type stubProvider struct {
	pool *model.Pool
}

func (s *stubProvider) GetPool(_ context.Context, address string) (*model.Pool, error) {
	if s.pool != nil && s.pool.Address == address {
		return s.pool, nil
	}
	return nil, nil
}

func (s *stubProvider) GetPoolByTokens(context.Context, string, string) (*model.Pool, error) {
	return nil, nil
}

func (s *stubProvider) CreatePool(context.Context, string, string) (*model.Pool, error) {
	return nil, nil
}

func (s *stubProvider) GetFarmInfo(context.Context, string) (*model.FarmInfo, error) {
	return nil, nil
}

// testLedger returns a ledger over in-memory stores with a controllable
// clock starting at epoch.
func testLedger(t *testing.T) (*Ledger, *time.Time) {
	t.Helper()
	clock := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	provider := &stubProvider{pool: &model.Pool{
		Address: "0xpool", Token0: "0xaaa", Token1: "0xbbb",
		Reserve0: 1000, Reserve1: 1000, TotalSupply: 1000,
	}}
	stores := memory.New()
	ledger := NewLedger(stores, stores, provider, nil)
	ledger.now = func() time.Time { return clock }
	return ledger, &clock
}

func createTestFarm(t *testing.T, ledger *Ledger, rate float64) *model.Farm {
	t.Helper()
	farm, err := ledger.CreateFarm(context.Background(), CreateFarmParams{
		PoolID:      "0xpool",
		RewardToken: "0xrwd",
		RewardRate:  rate,
	})
	require.NoError(t, err)
	return farm
}

func TestCreateFarmDefaults(t *testing.T) {
	ledger, clock := testLedger(t)
	farm := createTestFarm(t, ledger, 10)

	require.Equal(t, clock.AddDate(1, 0, 0), farm.EndsAt)
	// budget derived from rate over the default year
	require.InDelta(t, 10*farm.EndsAt.Sub(farm.StartsAt).Seconds(), farm.TotalRewards, 1e-6)
	require.True(t, farm.IsActive)
	require.Zero(t, farm.TotalStaked)
}

func TestCreateFarmRejectsDuplicate(t *testing.T) {
	ledger, _ := testLedger(t)
	createTestFarm(t, ledger, 10)

	_, err := ledger.CreateFarm(context.Background(), CreateFarmParams{
		PoolID: "0xpool", RewardToken: "0xrwd", RewardRate: 5,
	})
	require.Equal(t, model.CodeFarmExists, model.CodeOf(err))
}

func TestCreateFarmUnknownPool(t *testing.T) {
	ledger, _ := testLedger(t)
	_, err := ledger.CreateFarm(context.Background(), CreateFarmParams{
		PoolID: "0xother", RewardToken: "0xrwd", RewardRate: 5,
	})
	require.Equal(t, model.CodePoolNotFound, model.CodeOf(err))
}

func TestSoleStakerAccruesFullRate(t *testing.T) {
	ledger, clock := testLedger(t)
	farm := createTestFarm(t, ledger, 10)
	ctx := context.Background()

	_, err := ledger.Stake(ctx, farm.ID, "alice", 100)
	require.NoError(t, err)

	*clock = clock.Add(100 * time.Second)

	pending, err := ledger.PendingRewards(ctx, farm.ID, "alice")
	require.NoError(t, err)
	// sole staker earns the entire emission: 10/s over 100s
	require.InDelta(t, 1000, pending, 1e-6)

	claimed, err := ledger.Claim(ctx, farm.ID, "alice")
	require.NoError(t, err)
	require.InDelta(t, 1000, claimed, 1e-6)

	// immediately claiming again has nothing to pay
	_, err = ledger.Claim(ctx, farm.ID, "alice")
	require.Equal(t, model.CodeNothingToClaim, model.CodeOf(err))
}

func TestRewardsSplitByStakeWeight(t *testing.T) {
	ledger, clock := testLedger(t)
	farm := createTestFarm(t, ledger, 10)
	ctx := context.Background()

	_, err := ledger.Stake(ctx, farm.ID, "alice", 300)
	require.NoError(t, err)
	_, err = ledger.Stake(ctx, farm.ID, "bob", 100)
	require.NoError(t, err)

	*clock = clock.Add(40 * time.Second)

	alicePending, err := ledger.PendingRewards(ctx, farm.ID, "alice")
	require.NoError(t, err)
	bobPending, err := ledger.PendingRewards(ctx, farm.ID, "bob")
	require.NoError(t, err)

	// 400 emitted over 40s, split 3:1
	require.InDelta(t, 300, alicePending, 1e-6)
	require.InDelta(t, 100, bobPending, 1e-6)
}

func TestAccrualSurvivesRestake(t *testing.T) {
	ledger, clock := testLedger(t)
	farm := createTestFarm(t, ledger, 10)
	ctx := context.Background()

	_, err := ledger.Stake(ctx, farm.ID, "alice", 100)
	require.NoError(t, err)

	*clock = clock.Add(50 * time.Second)
	_, err = ledger.Stake(ctx, farm.ID, "alice", 100)
	require.NoError(t, err)

	*clock = clock.Add(50 * time.Second)

	pending, err := ledger.PendingRewards(ctx, farm.ID, "alice")
	require.NoError(t, err)
	// both halves accrue at the full rate: 500 + 500
	require.InDelta(t, 1000, pending, 1e-6)
}

func TestUnstakePartialKeepsRewards(t *testing.T) {
	ledger, clock := testLedger(t)
	farm := createTestFarm(t, ledger, 10)
	ctx := context.Background()

	_, err := ledger.Stake(ctx, farm.ID, "alice", 200)
	require.NoError(t, err)

	*clock = clock.Add(10 * time.Second)

	result, err := ledger.Unstake(ctx, farm.ID, "alice", 50)
	require.NoError(t, err)
	require.False(t, result.FullExit)
	require.InDelta(t, 150, result.Position.AmountStaked, 1e-9)
	require.InDelta(t, 100, result.Position.PendingRewards, 1e-6)
}

func TestUnstakeFullExitPaysRewards(t *testing.T) {
	ledger, clock := testLedger(t)
	farm := createTestFarm(t, ledger, 10)
	ctx := context.Background()

	_, err := ledger.Stake(ctx, farm.ID, "alice", 100)
	require.NoError(t, err)

	*clock = clock.Add(10 * time.Second)

	result, err := ledger.Unstake(ctx, farm.ID, "alice", 100)
	require.NoError(t, err)
	require.True(t, result.FullExit)
	require.InDelta(t, 100, result.RewardsPaid, 1e-6)

	// the position row is gone with its value already paid out
	_, err = ledger.Claim(ctx, farm.ID, "alice")
	require.Equal(t, model.CodePositionNotFound, model.CodeOf(err))

	updated, err := ledger.FarmByPool(ctx, "0xpool")
	require.NoError(t, err)
	require.Zero(t, updated.TotalStaked)
}

func TestUnstakeRejectsOverdraw(t *testing.T) {
	ledger, _ := testLedger(t)
	farm := createTestFarm(t, ledger, 10)
	ctx := context.Background()

	_, err := ledger.Stake(ctx, farm.ID, "alice", 10)
	require.NoError(t, err)

	_, err = ledger.Unstake(ctx, farm.ID, "alice", 11)
	require.Equal(t, model.CodeInsufficientStake, model.CodeOf(err))
}

func TestStakeRejectedAfterFarmEnds(t *testing.T) {
	ledger, clock := testLedger(t)
	farm, err := ledger.CreateFarm(context.Background(), CreateFarmParams{
		PoolID: "0xpool", RewardToken: "0xrwd", RewardRate: 10, DurationDays: 1,
	})
	require.NoError(t, err)

	*clock = clock.Add(25 * time.Hour)

	_, err = ledger.Stake(context.Background(), farm.ID, "alice", 10)
	require.Equal(t, model.CodeFarmInactive, model.CodeOf(err))
}

func TestAccrualClampsAtFarmEnd(t *testing.T) {
	ledger, clock := testLedger(t)
	farm, err := ledger.CreateFarm(context.Background(), CreateFarmParams{
		PoolID: "0xpool", RewardToken: "0xrwd", RewardRate: 10, DurationDays: 1,
	})
	require.NoError(t, err)
	ctx := context.Background()

	_, err = ledger.Stake(ctx, farm.ID, "alice", 100)
	require.NoError(t, err)

	// a week past the end only the first day pays
	*clock = clock.Add(7 * 24 * time.Hour)

	pending, err := ledger.PendingRewards(ctx, farm.ID, "alice")
	require.NoError(t, err)
	require.InDelta(t, 10*86400, pending, 1e-3)
}

func TestAPRTracksStakedTotal(t *testing.T) {
	ledger, _ := testLedger(t)
	farm := createTestFarm(t, ledger, 10)
	ctx := context.Background()

	_, err := ledger.Stake(ctx, farm.ID, "alice", 1000)
	require.NoError(t, err)

	updated, err := ledger.FarmByPool(ctx, "0xpool")
	require.NoError(t, err)
	// 10/s annualized over 1000 staked
	require.InDelta(t, 10*model.SecondsPerYear/1000*100, updated.APR, 1e-6)
}
