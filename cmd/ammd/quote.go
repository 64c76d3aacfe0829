package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"ammdesk/internal/model"
)

func newQuoteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quote",
		Short: "Compute a liquidity quote without submitting anything",
		RunE:  runQuote,
	}
	addDeskFlags(cmd.Flags())
	cmd.Flags().String("token-a", "", "first token address (add side)")
	cmd.Flags().String("token-b", "", "second token address (add side)")
	cmd.Flags().Float64("amount-a", 0, "amount of token A to deposit")
	cmd.Flags().Float64("amount-b", 0, "amount of token B to deposit (0 derives it from the pool ratio)")
	cmd.Flags().Uint32("slippage-bps", 50, "slippage tolerance in basis points")
	cmd.Flags().Int("deadline-min", 0, "transaction deadline in minutes (0 uses the default)")
	cmd.Flags().String("pool", "", "pool address (remove side)")
	cmd.Flags().Float64("liquidity", 0, "LP amount to redeem (remove side)")
	return cmd
}

func runQuote(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	d, err := buildDesk(ctx, cmd)
	if err != nil {
		return err
	}
	defer d.close()

	pool, _ := cmd.Flags().GetString("pool")

	var q *model.LiquidityQuote
	if pool != "" {
		liquidity, _ := cmd.Flags().GetFloat64("liquidity")
		q, err = d.engine.RemoveLiquidityQuote(ctx, model.RemoveLiquidityQuoteRequest{
			PoolAddress: pool,
			Liquidity:   liquidity,
		})
	} else {
		tokenA, _ := cmd.Flags().GetString("token-a")
		tokenB, _ := cmd.Flags().GetString("token-b")
		amountA, _ := cmd.Flags().GetFloat64("amount-a")
		amountB, _ := cmd.Flags().GetFloat64("amount-b")
		slippage, _ := cmd.Flags().GetUint32("slippage-bps")
		deadline, _ := cmd.Flags().GetInt("deadline-min")
		q, err = d.engine.AddLiquidityQuote(ctx, model.AddLiquidityQuoteRequest{
			TokenA:               tokenA,
			TokenB:               tokenB,
			AmountA:              amountA,
			AmountB:              amountB,
			SlippageToleranceBps: slippage,
			DeadlineMinutes:      deadline,
		})
	}
	if err != nil {
		return err
	}
	return printJSON(q)
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
