package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"ammdesk/internal/farm"
	"ammdesk/internal/model"
	"ammdesk/internal/ops"
)

// newOperateCmds builds the one-shot submission commands. Each command
// assembles the desk, submits a single operation and prints the
// resulting record.
func newOperateCmds() []*cobra.Command {
	addCmd := &cobra.Command{
		Use:   "add",
		Short: "Add liquidity to a pool",
		RunE:  runAdd,
	}
	addDeskFlags(addCmd.Flags())
	addCmd.Flags().String("user", "", "user address")
	addCmd.Flags().String("token-a", "", "first token address")
	addCmd.Flags().String("token-b", "", "second token address")
	addCmd.Flags().Float64("amount-a", 0, "amount of token A")
	addCmd.Flags().Float64("amount-b", 0, "amount of token B (0 derives it)")
	addCmd.Flags().Uint32("slippage-bps", 50, "slippage tolerance in basis points")
	addCmd.Flags().Int("deadline-min", 0, "deadline in minutes (0 uses the default)")
	addCmd.Flags().Bool("eth", false, "use the native-asset router variant (token B is native)")
	addCmd.Flags().Bool("wait", false, "wait for the transaction to resolve")

	removeCmd := &cobra.Command{
		Use:   "remove",
		Short: "Remove liquidity from a pool",
		RunE:  runRemove,
	}
	addDeskFlags(removeCmd.Flags())
	removeCmd.Flags().String("user", "", "user address")
	removeCmd.Flags().String("pool", "", "pool address")
	removeCmd.Flags().Float64("liquidity", 0, "LP amount to redeem")
	removeCmd.Flags().Bool("eth", false, "use the native-asset router variant")
	removeCmd.Flags().Bool("wait", false, "wait for the transaction to resolve")

	stakeCmd := &cobra.Command{
		Use:   "stake",
		Short: "Stake LP tokens in a pool's farm",
		RunE:  runStake,
	}
	addDeskFlags(stakeCmd.Flags())
	stakeCmd.Flags().String("user", "", "user address")
	stakeCmd.Flags().String("pool", "", "pool address")
	stakeCmd.Flags().Float64("amount", 0, "LP amount to stake")

	unstakeCmd := &cobra.Command{
		Use:   "unstake",
		Short: "Unstake LP tokens from a pool's farm",
		RunE:  runUnstake,
	}
	addDeskFlags(unstakeCmd.Flags())
	unstakeCmd.Flags().String("user", "", "user address")
	unstakeCmd.Flags().String("pool", "", "pool address")
	unstakeCmd.Flags().Float64("amount", 0, "LP amount to unstake")

	claimCmd := &cobra.Command{
		Use:   "claim",
		Short: "Claim accrued farm rewards",
		RunE:  runClaim,
	}
	addDeskFlags(claimCmd.Flags())
	claimCmd.Flags().String("user", "", "user address")
	claimCmd.Flags().String("pool", "", "pool address")

	createFarmCmd := &cobra.Command{
		Use:   "create-farm",
		Short: "Create a yield farm for a pool",
		RunE:  runCreateFarm,
	}
	addDeskFlags(createFarmCmd.Flags())
	createFarmCmd.Flags().String("pool", "", "pool address")
	createFarmCmd.Flags().String("reward-token", "", "reward token address")
	createFarmCmd.Flags().Float64("reward-rate", 0, "reward units per second")
	createFarmCmd.Flags().Float64("total-rewards", 0, "total reward budget (0 derives it from rate and duration)")
	createFarmCmd.Flags().Int("duration-days", 0, "farm duration in days (0 runs one year)")

	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Show a user's operation history",
		RunE:  runHistory,
	}
	addDeskFlags(historyCmd.Flags())
	historyCmd.Flags().String("user", "", "user address")
	historyCmd.Flags().Int("limit", 20, "maximum operations to show")

	return []*cobra.Command{addCmd, removeCmd, stakeCmd, unstakeCmd, claimCmd, createFarmCmd, historyCmd}
}

func withDesk(cmd *cobra.Command, fn func(ctx context.Context, d *desk) error) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	d, err := buildDesk(ctx, cmd)
	if err != nil {
		return err
	}
	defer d.close()
	return fn(ctx, d)
}

func runAdd(cmd *cobra.Command, _ []string) error {
	return withDesk(cmd, func(ctx context.Context, d *desk) error {
		user, _ := cmd.Flags().GetString("user")
		tokenA, _ := cmd.Flags().GetString("token-a")
		tokenB, _ := cmd.Flags().GetString("token-b")
		amountA, _ := cmd.Flags().GetFloat64("amount-a")
		amountB, _ := cmd.Flags().GetFloat64("amount-b")
		slippage, _ := cmd.Flags().GetUint32("slippage-bps")
		deadline, _ := cmd.Flags().GetInt("deadline-min")
		isETH, _ := cmd.Flags().GetBool("eth")

		op, err := d.orchestrator.AddLiquidity(ctx, ops.AddLiquidityRequest{
			UserAddress:          user,
			TokenA:               tokenA,
			TokenB:               tokenB,
			AmountA:              amountA,
			AmountB:              amountB,
			SlippageToleranceBps: slippage,
			DeadlineMinutes:      deadline,
			IsETH:                isETH,
		})
		if err != nil {
			return err
		}
		return finishOperation(ctx, cmd, d, op)
	})
}

func runRemove(cmd *cobra.Command, _ []string) error {
	return withDesk(cmd, func(ctx context.Context, d *desk) error {
		user, _ := cmd.Flags().GetString("user")
		pool, _ := cmd.Flags().GetString("pool")
		liquidity, _ := cmd.Flags().GetFloat64("liquidity")
		isETH, _ := cmd.Flags().GetBool("eth")

		op, err := d.orchestrator.RemoveLiquidity(ctx, ops.RemoveLiquidityRequest{
			UserAddress: user,
			PoolAddress: pool,
			Liquidity:   liquidity,
			IsETH:       isETH,
		})
		if err != nil {
			return err
		}
		return finishOperation(ctx, cmd, d, op)
	})
}

func runStake(cmd *cobra.Command, _ []string) error {
	return withDesk(cmd, func(ctx context.Context, d *desk) error {
		op, err := d.orchestrator.StakeInFarm(ctx, farmRequest(cmd))
		if err != nil {
			return err
		}
		return printJSON(op)
	})
}

func runUnstake(cmd *cobra.Command, _ []string) error {
	return withDesk(cmd, func(ctx context.Context, d *desk) error {
		op, err := d.orchestrator.UnstakeFromFarm(ctx, farmRequest(cmd))
		if err != nil {
			return err
		}
		return printJSON(op)
	})
}

func runClaim(cmd *cobra.Command, _ []string) error {
	return withDesk(cmd, func(ctx context.Context, d *desk) error {
		op, err := d.orchestrator.ClaimFarmRewards(ctx, farmRequest(cmd))
		if err != nil {
			return err
		}
		return printJSON(op)
	})
}

func runCreateFarm(cmd *cobra.Command, _ []string) error {
	return withDesk(cmd, func(ctx context.Context, d *desk) error {
		pool, _ := cmd.Flags().GetString("pool")
		rewardToken, _ := cmd.Flags().GetString("reward-token")
		rewardRate, _ := cmd.Flags().GetFloat64("reward-rate")
		totalRewards, _ := cmd.Flags().GetFloat64("total-rewards")
		durationDays, _ := cmd.Flags().GetInt("duration-days")

		created, err := d.ledger.CreateFarm(ctx, farm.CreateFarmParams{
			PoolID:       pool,
			RewardToken:  rewardToken,
			RewardRate:   rewardRate,
			TotalRewards: totalRewards,
			DurationDays: durationDays,
		})
		if err != nil {
			return err
		}
		return printJSON(created)
	})
}

func runHistory(cmd *cobra.Command, _ []string) error {
	return withDesk(cmd, func(ctx context.Context, d *desk) error {
		user, _ := cmd.Flags().GetString("user")
		limit, _ := cmd.Flags().GetInt("limit")
		return printJSON(d.orchestrator.OperationHistory(ctx, user, limit))
	})
}

func farmRequest(cmd *cobra.Command) ops.FarmRequest {
	user, _ := cmd.Flags().GetString("user")
	pool, _ := cmd.Flags().GetString("pool")
	amount, _ := cmd.Flags().GetFloat64("amount")
	return ops.FarmRequest{UserAddress: user, PoolAddress: pool, Amount: amount}
}

// finishOperation prints the pending record, optionally waiting for the
// monitor to resolve it first. Watch dedupes, so asking again for the
// same id returns the task started at submission.
func finishOperation(ctx context.Context, cmd *cobra.Command, d *desk, op *model.LiquidityOperation) error {
	wait, _ := cmd.Flags().GetBool("wait")
	if !wait {
		return printJSON(op)
	}

	task := d.monitor.Watch(ctx, *op)
	select {
	case <-task.Done():
	case <-ctx.Done():
		return printJSON(op)
	}

	readCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	resolved, err := d.store.GetOperation(readCtx, op.ID)
	if err != nil || resolved == nil {
		return printJSON(op)
	}
	return printJSON(resolved)
}
