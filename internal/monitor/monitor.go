// Package monitor resolves submitted transactions by polling for
// receipts and writing terminal state back to the operation store.
package monitor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"ammdesk/internal/chain"
	"ammdesk/internal/model"
	"ammdesk/internal/observability"
	"ammdesk/internal/storage"
)

// Config tunes the polling loop.
type Config struct {
	// InitialDelay is waited before the first poll. Default 2s.
	InitialDelay time.Duration
	// PollInterval is the first retry delay; it doubles per attempt.
	// Default 3s.
	PollInterval time.Duration
	// MaxAttempts bounds polls per operation. Default 20.
	MaxAttempts int
}

func (c Config) withDefaults() Config {
	if c.InitialDelay == 0 {
		c.InitialDelay = 2 * time.Second
	}
	if c.PollInterval == 0 {
		c.PollInterval = 3 * time.Second
	}
	if c.MaxAttempts == 0 {
		c.MaxAttempts = 20
	}
	return c
}

// Task is one owned polling loop. Callers can select on Done and
// cancel the task without affecting others.
type Task struct {
	OperationID string
	cancel      context.CancelFunc
	done        chan struct{}
}

// Done is closed when the task exits, whatever the outcome.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Cancel stops the task's polling loop.
func (t *Task) Cancel() {
	t.cancel()
}

// Monitor drives pending operations to a terminal status. Each watched
// operation gets exactly one task; watching the same id again returns
// the existing task.
type Monitor struct {
	chain   chain.Client
	ops     storage.OperationStore
	metrics *observability.Metrics
	logger  *zap.Logger
	cfg     Config

	mu      sync.Mutex
	pending map[string]*Task
	wg      sync.WaitGroup
}

func NewMonitor(client chain.Client, ops storage.OperationStore, metrics *observability.Metrics, cfg Config, logger *zap.Logger) *Monitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{
		chain:   client,
		ops:     ops,
		metrics: metrics,
		logger:  logger,
		cfg:     cfg.withDefaults(),
		pending: make(map[string]*Task),
	}
}

// Watch starts (or returns the existing) polling task for an
// operation. The task owns its goroutine and survives the caller.
func (m *Monitor) Watch(ctx context.Context, op model.LiquidityOperation) *Task {
	m.mu.Lock()
	if existing, ok := m.pending[op.ID]; ok {
		m.mu.Unlock()
		return existing
	}

	taskCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	task := &Task{
		OperationID: op.ID,
		cancel:      cancel,
		done:        make(chan struct{}),
	}
	m.pending[op.ID] = task
	m.metrics.SetPending(len(m.pending))
	m.wg.Add(1)
	m.mu.Unlock()

	go m.poll(taskCtx, task, op)
	return task
}

// PendingCount reports how many operations are being watched.
func (m *Monitor) PendingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// Close cancels all tasks and waits for them to exit.
func (m *Monitor) Close() {
	m.mu.Lock()
	for _, task := range m.pending {
		task.cancel()
	}
	m.mu.Unlock()
	m.wg.Wait()
}

func (m *Monitor) poll(ctx context.Context, task *Task, op model.LiquidityOperation) {
	defer m.wg.Done()
	defer close(task.done)
	defer m.release(task.OperationID)

	if !sleep(ctx, m.cfg.InitialDelay) {
		return
	}

	txHash := common.HexToHash(op.ID)
	delay := m.cfg.PollInterval
	for attempt := 1; attempt <= m.cfg.MaxAttempts; attempt++ {
		receipt, err := m.chain.TransactionReceipt(ctx, txHash)
		if err == nil {
			m.resolve(ctx, op, receipt)
			return
		}
		if !errors.Is(err, chain.ErrReceiptNotFound) {
			m.logger.Warn("receipt poll failed",
				zap.String("operation", op.ID),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
		}

		if !sleep(ctx, delay) {
			return
		}
		delay *= 2
	}

	// Poll budget exhausted: the operation stays pending in the store
	// and the task is released.
	m.logger.Warn("giving up on operation",
		zap.String("operation", op.ID),
		zap.Int("attempts", m.cfg.MaxAttempts),
	)
	m.metrics.CountGiveUp()
}

// resolve applies the receipt and writes the single terminal mutation.
func (m *Monitor) resolve(ctx context.Context, op model.LiquidityOperation, receipt *types.Receipt) {
	if receipt.Status == types.ReceiptStatusSuccessful {
		op.Status = model.StatusConfirmed
	} else {
		op.Status = model.StatusFailed
	}
	if receipt.BlockNumber != nil {
		op.BlockNumber = receipt.BlockNumber.Uint64()
	}
	op.GasUsed = receipt.GasUsed
	op.Confirmations = 1
	op.UpdatedAt = time.Now().UTC()

	if err := m.ops.UpdateOperation(ctx, op); err != nil {
		m.logger.Error("operation update failed",
			zap.String("operation", op.ID),
			zap.String("status", string(op.Status)),
			zap.Error(err),
		)
		return
	}

	m.metrics.CountResolved(string(op.Status))
	m.logger.Info("operation resolved",
		zap.String("operation", op.ID),
		zap.String("status", string(op.Status)),
		zap.Uint64("block", op.BlockNumber),
		zap.Uint64("gas_used", op.GasUsed),
	)
}

func (m *Monitor) release(id string) {
	m.mu.Lock()
	delete(m.pending, id)
	m.metrics.SetPending(len(m.pending))
	m.mu.Unlock()
}

// sleep waits for d or context cancellation; it reports false when the
// context ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
