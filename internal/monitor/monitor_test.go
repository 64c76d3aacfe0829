package monitor

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"ammdesk/internal/chain/chaintest"
	"ammdesk/internal/model"
	"ammdesk/internal/storage/memory"
)

func fastConfig(maxAttempts int) Config {
	return Config{
		InitialDelay: time.Millisecond,
		PollInterval: time.Millisecond,
		MaxAttempts:  maxAttempts,
	}
}

func pendingOp(id string) model.LiquidityOperation {
	return model.LiquidityOperation{
		ID:          id,
		Type:        model.OpAddLiquidity,
		UserAddress: "0xuser",
		PoolAddress: "0xpool",
		Status:      model.StatusPending,
		CreatedAt:   time.Now().UTC(),
	}
}

func waitDone(t *testing.T, task *Task) {
	t.Helper()
	select {
	case <-task.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("task did not finish")
	}
}

func TestWatchResolvesConfirmed(t *testing.T) {
	client := chaintest.NewFakeClient()
	stores := memory.New()
	op := pendingOp("0x01")
	if err := stores.InsertOperation(context.Background(), op); err != nil {
		t.Fatalf("insert: %v", err)
	}

	txHash := common.HexToHash(op.ID)
	client.ReceiptDelay[txHash] = 2
	client.Receipts[txHash] = &types.Receipt{
		Status:      types.ReceiptStatusSuccessful,
		BlockNumber: big.NewInt(777),
		GasUsed:     21000,
	}

	mon := NewMonitor(client, stores, nil, fastConfig(10), nil)
	defer mon.Close()

	task := mon.Watch(context.Background(), op)
	waitDone(t, task)

	got, err := stores.GetOperation(context.Background(), op.ID)
	if err != nil {
		t.Fatalf("get operation: %v", err)
	}
	if got.Status != model.StatusConfirmed {
		t.Fatalf("status = %s, want confirmed", got.Status)
	}
	if got.BlockNumber != 777 || got.GasUsed != 21000 {
		t.Fatalf("receipt fields not applied: %+v", got)
	}
	if polls := client.ReceiptPolls[txHash]; polls != 3 {
		t.Fatalf("polls = %d, want 3", polls)
	}
	if mon.PendingCount() != 0 {
		t.Fatalf("task not released")
	}
}

func TestWatchResolvesFailed(t *testing.T) {
	client := chaintest.NewFakeClient()
	stores := memory.New()
	op := pendingOp("0x02")
	if err := stores.InsertOperation(context.Background(), op); err != nil {
		t.Fatalf("insert: %v", err)
	}

	txHash := common.HexToHash(op.ID)
	client.Receipts[txHash] = &types.Receipt{
		Status:      types.ReceiptStatusFailed,
		BlockNumber: big.NewInt(778),
	}

	mon := NewMonitor(client, stores, nil, fastConfig(10), nil)
	defer mon.Close()

	waitDone(t, mon.Watch(context.Background(), op))

	got, _ := stores.GetOperation(context.Background(), op.ID)
	if got.Status != model.StatusFailed {
		t.Fatalf("status = %s, want failed", got.Status)
	}
}

func TestWatchDedupes(t *testing.T) {
	client := chaintest.NewFakeClient()
	stores := memory.New()
	op := pendingOp("0x03")

	// no receipt scripted, so the task stays alive long enough to
	// observe the dedupe
	mon := NewMonitor(client, stores, nil, Config{
		InitialDelay: 50 * time.Millisecond,
		PollInterval: 50 * time.Millisecond,
		MaxAttempts:  100,
	}, nil)
	defer mon.Close()

	first := mon.Watch(context.Background(), op)
	second := mon.Watch(context.Background(), op)
	if first != second {
		t.Fatalf("watching the same operation twice started a second task")
	}
	if mon.PendingCount() != 1 {
		t.Fatalf("pending = %d, want 1", mon.PendingCount())
	}

	first.Cancel()
	waitDone(t, first)
}

func TestWatchGivesUpAndLeavesPending(t *testing.T) {
	client := chaintest.NewFakeClient()
	stores := memory.New()
	op := pendingOp("0x04")
	if err := stores.InsertOperation(context.Background(), op); err != nil {
		t.Fatalf("insert: %v", err)
	}

	mon := NewMonitor(client, stores, nil, fastConfig(3), nil)
	defer mon.Close()

	waitDone(t, mon.Watch(context.Background(), op))

	got, _ := stores.GetOperation(context.Background(), op.ID)
	if got.Status != model.StatusPending {
		t.Fatalf("status = %s, want pending after give-up", got.Status)
	}
	if polls := client.ReceiptPolls[common.HexToHash(op.ID)]; polls != 3 {
		t.Fatalf("polls = %d, want 3", polls)
	}
}

func TestWatchSurvivesCallerCancel(t *testing.T) {
	client := chaintest.NewFakeClient()
	stores := memory.New()
	op := pendingOp("0x05")
	if err := stores.InsertOperation(context.Background(), op); err != nil {
		t.Fatalf("insert: %v", err)
	}

	txHash := common.HexToHash(op.ID)
	client.ReceiptDelay[txHash] = 1
	client.Receipts[txHash] = &types.Receipt{
		Status:      types.ReceiptStatusSuccessful,
		BlockNumber: big.NewInt(779),
	}

	mon := NewMonitor(client, stores, nil, fastConfig(10), nil)
	defer mon.Close()

	ctx, cancel := context.WithCancel(context.Background())
	task := mon.Watch(ctx, op)
	cancel()

	waitDone(t, task)

	got, _ := stores.GetOperation(context.Background(), op.ID)
	if got.Status != model.StatusConfirmed {
		t.Fatalf("status = %s, want confirmed despite caller cancel", got.Status)
	}
}
