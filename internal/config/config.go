package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	RPCURL          string
	RouterAddress   string
	FactoryAddress  string
	StakingAddress  string
	OperatorAddress string

	PostgresDSN string
	RedisURL    string
	JournalPath string

	MetricsAddr string

	AutoApprove    bool
	NativeUSDPrice float64

	MaxSlippageBps    uint32
	MaxPriceImpactPct float64
	QuoteTTL          time.Duration
	DefaultDeadline   time.Duration
	PoolCacheTTL      time.Duration

	MonitorInitialDelay time.Duration
	MonitorPollInterval time.Duration
	MonitorMaxAttempts  int

	LogLevel string
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("AMMD")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("journal", "./data/operations.jsonl")
	v.SetDefault("metrics-addr", ":9090")
	v.SetDefault("auto-approve", false)
	v.SetDefault("native-usd", 0.0)
	v.SetDefault("max-slippage-bps", uint32(1000))
	v.SetDefault("max-price-impact", 5.0)
	v.SetDefault("quote-ttl", 5*time.Minute)
	v.SetDefault("default-deadline", 20*time.Minute)
	v.SetDefault("pool-cache-ttl", 30*time.Second)
	v.SetDefault("monitor-initial-delay", 2*time.Second)
	v.SetDefault("monitor-poll-interval", 3*time.Second)
	v.SetDefault("monitor-max-attempts", 20)
	v.SetDefault("log-level", "info")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := Config{
		RPCURL:              v.GetString("rpc"),
		RouterAddress:       v.GetString("router"),
		FactoryAddress:      v.GetString("factory"),
		StakingAddress:      v.GetString("staking"),
		OperatorAddress:     v.GetString("operator"),
		PostgresDSN:         v.GetString("pg-dsn"),
		RedisURL:            v.GetString("redis-url"),
		JournalPath:         v.GetString("journal"),
		MetricsAddr:         v.GetString("metrics-addr"),
		AutoApprove:         v.GetBool("auto-approve"),
		NativeUSDPrice:      v.GetFloat64("native-usd"),
		MaxSlippageBps:      uint32(v.GetUint32("max-slippage-bps")),
		MaxPriceImpactPct:   v.GetFloat64("max-price-impact"),
		QuoteTTL:            v.GetDuration("quote-ttl"),
		DefaultDeadline:     v.GetDuration("default-deadline"),
		PoolCacheTTL:        v.GetDuration("pool-cache-ttl"),
		MonitorInitialDelay: v.GetDuration("monitor-initial-delay"),
		MonitorPollInterval: v.GetDuration("monitor-poll-interval"),
		MonitorMaxAttempts:  v.GetInt("monitor-max-attempts"),
		LogLevel:            v.GetString("log-level"),
	}

	return cfg, nil
}
