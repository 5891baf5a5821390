// Package config exposes strongly typed application configuration structs loaded from YAML.
package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"swaploop/internal/execution"
)

// App captures process-wide runtime settings such as name, metrics, and logging.
type App struct {
	Name        string `yaml:"name"`
	MetricsAddr string `yaml:"metrics_addr"`
	LogLevel    string `yaml:"log_level"`
	PrettyLog   bool   `yaml:"pretty_log"`
}

// Trade fixes what the loop buys and sells and with which execution-quality knobs.
type Trade struct {
	TokenIn     string  `yaml:"token_in"`  // asset spent on buys, SOL by default
	TokenOut    string  `yaml:"token_out"` // traded token
	BuyAmount   float64 `yaml:"buy_amount"`
	BatchSize   int     `yaml:"buy_batch_size"`
	SlippageBps int     `yaml:"slippage_bps"`
	PriorityFee float64 `yaml:"priority_fee"` // SOL
	Legacy      bool    `yaml:"legacy_transaction"`
}

// Retry bounds the backoff applied to rate-limited swaps. MaxRetries may be fractional; it is floored.
type Retry struct {
	BaseDelayMs int     `yaml:"base_delay_ms"`
	MaxRetries  float64 `yaml:"max_retries"`
}

// BaseDelay returns the first backoff wait.
func (r Retry) BaseDelay() time.Duration { return ms(r.BaseDelayMs) }

// Loop configures the pause between cycles, the wait after a failover and the balance used when lookups fail.
type Loop struct {
	PauseMs         int     `yaml:"pause_ms"`
	RecoveryDelayMs int     `yaml:"recovery_delay_ms"`
	FallbackBalance float64 `yaml:"fallback_balance"`
}

// Pause returns the wait between cycles.
func (l Loop) Pause() time.Duration { return ms(l.PauseMs) }

// RecoveryDelay returns the wait after switching endpoints.
func (l Loop) RecoveryDelay() time.Duration { return ms(l.RecoveryDelayMs) }

// Execution mirrors the submission and confirmation options forwarded to the swap service.
type Execution struct {
	SkipPreflight               bool   `yaml:"skip_preflight"`
	ConfirmationRetries         int    `yaml:"confirmation_retries"`
	ConfirmationRetryTimeoutMs  int    `yaml:"confirmation_retry_timeout_ms"`
	LastValidBlockHeightBuffer  uint64 `yaml:"last_valid_block_height_buffer"`
	ResendIntervalMs            int    `yaml:"resend_interval_ms"`
	ConfirmationCheckIntervalMs int    `yaml:"confirmation_check_interval_ms"`
	SkipConfirmationCheck       bool   `yaml:"skip_confirmation_check"`
}

// Options converts the YAML knobs into the options handed to the swap service.
func (e Execution) Options() execution.Options {
	return execution.Options{
		SkipPreflight:              e.SkipPreflight,
		ConfirmationRetries:        e.ConfirmationRetries,
		ConfirmationRetryTimeout:   ms(e.ConfirmationRetryTimeoutMs),
		LastValidBlockHeightBuffer: e.LastValidBlockHeightBuffer,
		ResendInterval:             ms(e.ResendIntervalMs),
		ConfirmationCheckInterval:  ms(e.ConfirmationCheckIntervalMs),
		SkipConfirmationCheck:      e.SkipConfirmationCheck,
	}
}

// Journal optionally appends every submitted swap to a JSONL file.
type Journal struct {
	Path string `yaml:"path"`
}

// Config collects every configuration leaf for easy marshaling from YAML.
type Config struct {
	App       App       `yaml:"app"`
	RPC       RPC       `yaml:"rpc"`
	Jupiter   Jupiter   `yaml:"jupiter"`
	Wallet    Wallet    `yaml:"wallet"`
	Trade     Trade     `yaml:"trade"`
	Retry     Retry     `yaml:"retry"`
	Loop      Loop      `yaml:"loop"`
	Execution Execution `yaml:"execution"`
	Journal   Journal   `yaml:"journal"`
}

const (
	defaultTokenIn     = "So11111111111111111111111111111111111111112"
	defaultJupiterBase = "https://quote-api.jup.ag"
)

// Load reads a YAML file from disk, hydrates a Config struct and fills unset fields with defaults.
func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var config Config
	if err := yaml.NewDecoder(file).Decode(&config); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	config.ApplyDefaults()
	return &config, nil
}

// ApplyDefaults fills zero values with the stock settings.
// MaxRetries is left alone: zero is a legal (if useless) bound.
func (c *Config) ApplyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "swaploop"
	}
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}
	if c.RPC.Commitment == "" {
		c.RPC.Commitment = "confirmed"
	}
	if c.Jupiter.BaseURL == "" {
		c.Jupiter.BaseURL = defaultJupiterBase
	}
	if c.Jupiter.TimeoutMs == 0 {
		c.Jupiter.TimeoutMs = 8000
	}
	if c.Wallet.PrivateKeyEnv == "" {
		c.Wallet.PrivateKeyEnv = "SOLANA_PRIVATE_KEY_BASE58"
	}
	if c.Trade.TokenIn == "" {
		c.Trade.TokenIn = defaultTokenIn
	}
	if c.Trade.BatchSize == 0 {
		c.Trade.BatchSize = 4
	}
	if c.Retry.BaseDelayMs == 0 {
		c.Retry.BaseDelayMs = 500
	}
	if c.Loop.PauseMs == 0 {
		c.Loop.PauseMs = 2000
	}
	if c.Loop.RecoveryDelayMs == 0 {
		c.Loop.RecoveryDelayMs = 1000
	}
	if c.Execution.ConfirmationRetries == 0 {
		c.Execution.ConfirmationRetries = 30
	}
	if c.Execution.ConfirmationRetryTimeoutMs == 0 {
		c.Execution.ConfirmationRetryTimeoutMs = 1000
	}
	if c.Execution.ConfirmationCheckIntervalMs == 0 {
		c.Execution.ConfirmationCheckIntervalMs = 1000
	}
}

// Validate reports every problem at once rather than stopping at the first.
func (c *Config) Validate() error {
	var err error
	if len(c.RPC.Endpoints) == 0 {
		err = multierr.Append(err, errors.New("rpc.endpoints: at least one endpoint required"))
	}
	for i, e := range c.RPC.Endpoints {
		if strings.TrimSpace(e) == "" {
			err = multierr.Append(err, fmt.Errorf("rpc.endpoints[%d]: blank", i))
		}
	}
	if c.Trade.TokenOut == "" {
		err = multierr.Append(err, errors.New("trade.token_out: required"))
	}
	if c.Trade.TokenOut != "" && c.Trade.TokenOut == c.Trade.TokenIn {
		err = multierr.Append(err, errors.New("trade.token_out: must differ from token_in"))
	}
	if c.Trade.BuyAmount <= 0 {
		err = multierr.Append(err, errors.New("trade.buy_amount: must be positive"))
	}
	if c.Trade.BatchSize < 0 {
		err = multierr.Append(err, errors.New("trade.buy_batch_size: must not be negative"))
	}
	if c.Trade.SlippageBps < 0 || c.Trade.SlippageBps > 10_000 {
		err = multierr.Append(err, fmt.Errorf("trade.slippage_bps: %d out of range", c.Trade.SlippageBps))
	}
	if c.Trade.PriorityFee < 0 {
		err = multierr.Append(err, errors.New("trade.priority_fee: must not be negative"))
	}
	if math.IsNaN(c.Retry.MaxRetries) || c.Retry.MaxRetries < 0 {
		err = multierr.Append(err, errors.New("retry.max_retries: must not be negative"))
	}
	if c.Retry.BaseDelayMs < 0 || c.Loop.PauseMs < 0 || c.Loop.RecoveryDelayMs < 0 {
		err = multierr.Append(err, errors.New("retry.base_delay_ms, loop.pause_ms and loop.recovery_delay_ms must not be negative"))
	}
	if c.Loop.FallbackBalance < 0 {
		err = multierr.Append(err, errors.New("loop.fallback_balance: must not be negative"))
	}
	return err
}

func ms(v int) time.Duration { return time.Duration(v) * time.Millisecond }
