package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"ammdesk/internal/chain"
	"ammdesk/internal/config"
	"ammdesk/internal/farm"
	"ammdesk/internal/gas"
	"ammdesk/internal/model"
	"ammdesk/internal/monitor"
	"ammdesk/internal/observability"
	"ammdesk/internal/ops"
	"ammdesk/internal/pools"
	"ammdesk/internal/quote"
	"ammdesk/internal/storage"
	"ammdesk/internal/storage/postgres"
)

func main() {
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:          "ammd",
		Short:        "AMM liquidity desk",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the desk daemon",
		RunE:  runDesk,
	}
	addDeskFlags(runCmd.Flags())
	root.AddCommand(runCmd)

	root.AddCommand(newQuoteCmd())
	root.AddCommand(newOperateCmds()...)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// addDeskFlags registers the flags shared by every command that
// assembles the desk.
func addDeskFlags(flags *pflag.FlagSet) {
	flags.String("rpc", "", "chain RPC URL")
	flags.String("router", "", "router contract address")
	flags.String("factory", "", "factory contract address")
	flags.String("staking", "", "staking contract address")
	flags.String("operator", "", "operator address for desk-originated calls")
	flags.String("pg-dsn", "", "Postgres DSN")
	flags.String("redis-url", "", "redis URL for the pool cache")
	flags.String("journal", "./data/operations.jsonl", "operation journal JSONL path")
	flags.String("metrics-addr", ":9090", "metrics listen address")
	flags.Bool("auto-approve", false, "submit max approvals when allowance is short")
	flags.Float64("native-usd", 0, "native asset USD price for gas cost estimates")
	flags.Uint32("max-slippage-bps", 1000, "maximum accepted slippage tolerance")
	flags.Float64("max-price-impact", 5, "price impact warning threshold (percent)")
	flags.Duration("quote-ttl", 5*time.Minute, "quote validity window")
	flags.Duration("default-deadline", 20*time.Minute, "default transaction deadline")
	flags.Duration("pool-cache-ttl", 30*time.Second, "pool snapshot cache TTL")
	flags.Duration("monitor-initial-delay", 2*time.Second, "delay before the first receipt poll")
	flags.Duration("monitor-poll-interval", 3*time.Second, "initial receipt poll interval")
	flags.Int("monitor-max-attempts", 20, "receipt polls per operation before giving up")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
}

// desk bundles the assembled components plus their closers.
type desk struct {
	cfg          config.Config
	logger       *zap.Logger
	chain        *chain.RPCClient
	store        *postgres.Store
	engine       *quote.Engine
	ledger       *farm.Ledger
	monitor      *monitor.Monitor
	orchestrator *ops.Orchestrator
}

func (d *desk) close() {
	d.monitor.Close()
	d.store.Close()
	d.chain.Close()
	_ = d.logger.Sync()
}

// buildDesk assembles the full component graph from config.
func buildDesk(ctx context.Context, cmd *cobra.Command) (*desk, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return nil, err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("rpc url is required")
	}
	if cfg.PostgresDSN == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	router, err := chain.ParseAddress(cfg.RouterAddress)
	if err != nil {
		return nil, fmt.Errorf("router address: %w", err)
	}
	factory, err := chain.ParseAddress(cfg.FactoryAddress)
	if err != nil {
		return nil, fmt.Errorf("factory address: %w", err)
	}
	staking, err := chain.ParseAddress(cfg.StakingAddress)
	if err != nil {
		return nil, fmt.Errorf("staking address: %w", err)
	}
	operator, err := chain.ParseAddress(cfg.OperatorAddress)
	if err != nil {
		return nil, fmt.Errorf("operator address: %w", err)
	}

	chainClient, err := chain.NewRPCClient(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("connect rpc: %w", err)
	}

	store, err := postgres.NewStore(ctx, cfg.PostgresDSN)
	if err != nil {
		chainClient.Close()
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	var cache *pools.Cache
	if cfg.RedisURL != "" {
		redisOpts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			store.Close()
			chainClient.Close()
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		cache = pools.NewCache(redis.NewClient(redisOpts), cfg.PoolCacheTTL)
	}

	metrics := observability.NewMetrics("ammdesk")

	provider := pools.NewChainProvider(pools.Options{
		Chain:    chainClient,
		Store:    store,
		Farms:    store,
		Cache:    cache,
		Factory:  factory,
		Staking:  staking,
		Operator: operator,
		Logger:   logger,
	})
	estimator := gas.NewChainEstimator(chainClient, cfg.NativeUSDPrice)
	engine := quote.NewEngine(provider, estimator, quote.Config{
		MaxSlippageBps:    cfg.MaxSlippageBps,
		MaxPriceImpactPct: cfg.MaxPriceImpactPct,
		QuoteTTL:          cfg.QuoteTTL,
		DefaultDeadline:   cfg.DefaultDeadline,
	}, logger)
	ledger := farm.NewLedger(store, store, provider, logger)
	mon := monitor.NewMonitor(chainClient, store, metrics, monitor.Config{
		InitialDelay: cfg.MonitorInitialDelay,
		PollInterval: cfg.MonitorPollInterval,
		MaxAttempts:  cfg.MonitorMaxAttempts,
	}, logger)

	orchestrator := ops.New(ops.Options{
		Quotes:      engine,
		Pools:       provider,
		Ledger:      ledger,
		Chain:       chainClient,
		Operations:  store,
		Journal:     storage.NewJournal(cfg.JournalPath),
		Monitor:     mon,
		Metrics:     metrics,
		Logger:      logger,
		Router:      router,
		Staking:     staking,
		AutoApprove: cfg.AutoApprove,
	})

	return &desk{
		cfg:          cfg,
		logger:       logger,
		chain:        chainClient,
		store:        store,
		engine:       engine,
		ledger:       ledger,
		monitor:      mon,
		orchestrator: orchestrator,
	}, nil
}

func runDesk(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	d, err := buildDesk(ctx, cmd)
	if err != nil {
		return err
	}
	defer d.close()

	resumed, err := resumePending(ctx, d.store, d.monitor)
	if err != nil {
		return err
	}

	server := &http.Server{Addr: d.cfg.MetricsAddr, Handler: metricsMux()}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			d.logger.Error("metrics server failed", zap.Error(err))
		}
	}()

	d.logger.Info("desk start",
		zap.String("rpc", d.cfg.RPCURL),
		zap.String("router", d.cfg.RouterAddress),
		zap.String("staking", d.cfg.StakingAddress),
		zap.String("metrics_addr", d.cfg.MetricsAddr),
		zap.Bool("auto_approve", d.cfg.AutoApprove),
		zap.Int("resumed_operations", resumed),
	)

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
	return nil
}

// resumePending re-watches liquidity operations left pending by a
// previous run. Farm operations resolve through the ledger and are
// never monitored, so they are skipped here too.
func resumePending(ctx context.Context, store storage.OperationStore, mon *monitor.Monitor) (int, error) {
	pending, err := store.ListPendingOperations(ctx)
	if err != nil {
		return 0, fmt.Errorf("list pending operations: %w", err)
	}
	resumed := 0
	for _, op := range pending {
		if op.Type != model.OpAddLiquidity && op.Type != model.OpRemoveLiquidity {
			continue
		}
		mon.Watch(ctx, op)
		resumed++
	}
	return resumed, nil
}

func metricsMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.Handler())
	return mux
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
