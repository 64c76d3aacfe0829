package main

import (
	"context"
	"testing"
	"time"

	"ammdesk/internal/chain/chaintest"
	"ammdesk/internal/model"
	"ammdesk/internal/monitor"
	"ammdesk/internal/storage/memory"
)

func TestResumePendingSkipsFarmOperations(t *testing.T) {
	ctx := context.Background()
	stores := memory.New()
	now := time.Now().UTC()
	pending := []model.LiquidityOperation{
		{ID: "0x01", Type: model.OpAddLiquidity, UserAddress: "0xuser", Status: model.StatusPending, CreatedAt: now, UpdatedAt: now},
		{ID: "0x02", Type: model.OpStake, UserAddress: "0xuser", Status: model.StatusPending, CreatedAt: now, UpdatedAt: now},
		{ID: "0x03", Type: model.OpRemoveLiquidity, UserAddress: "0xuser", Status: model.StatusPending, CreatedAt: now, UpdatedAt: now},
		{ID: "0x04", Type: model.OpClaim, UserAddress: "0xuser", Status: model.StatusPending, CreatedAt: now, UpdatedAt: now},
	}
	for _, op := range pending {
		if err := stores.InsertOperation(ctx, op); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	mon := monitor.NewMonitor(chaintest.NewFakeClient(), stores, nil, monitor.Config{
		InitialDelay: 50 * time.Millisecond,
		PollInterval: 50 * time.Millisecond,
		MaxAttempts:  100,
	}, nil)
	t.Cleanup(mon.Close)

	resumed, err := resumePending(ctx, stores, mon)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if resumed != 2 {
		t.Fatalf("resumed = %d, want the two liquidity operations", resumed)
	}
	if mon.PendingCount() != 2 {
		t.Fatalf("pending = %d, want farm operations skipped", mon.PendingCount())
	}
}
