package main

import (
	"context"
	"flag"
	"os"
	ossignal "os/signal"
	"syscall"

	"swaploop/internal/config"
	dex "swaploop/internal/dex/solana"
	"swaploop/internal/endpoint"
	"swaploop/internal/execution"
	"swaploop/internal/journal"
	"swaploop/internal/loop"
	"swaploop/internal/metrics"
	"swaploop/internal/retry"
	"swaploop/internal/util"
)

func main() {
	configPath := flag.String("config", "internal/config/config.yaml", "path to YAML config")
	flag.Parse()

	bootLog := util.NewLogger("info", false)
	cfg, err := config.Load(*configPath)
	if err != nil {
		bootLog.Fatal().Err(err).Msg("load config")
	}
	if urls := config.ParseEndpoints(os.Getenv("SOLANA_RPC_URLS")); len(urls) > 0 {
		cfg.RPC.Endpoints = urls
	}
	cfg.Jupiter.BaseURL = getEnv("JUPITER_BASE_URL", cfg.Jupiter.BaseURL)
	if err := cfg.Validate(); err != nil {
		bootLog.Fatal().Err(err).Msg("invalid config")
	}

	log := util.NewLogger(cfg.App.LogLevel, cfg.App.PrettyLog).With().Str("app", cfg.App.Name).Logger()

	owner, err := dex.LoadPrivateKeyFromEnv(cfg.Wallet.PrivateKeyEnv)
	if err != nil {
		log.Fatal().Err(err).Msg("wallet")
	}

	pool, err := endpoint.New(cfg.RPC.Endpoints)
	if err != nil {
		log.Fatal().Err(err).Msg("endpoints")
	}

	srv := metrics.Serve(cfg.App.MetricsAddr)
	defer srv.Close()
	if cfg.App.MetricsAddr != "" {
		log.Info().Str("addr", cfg.App.MetricsAddr).Msg("metrics up")
	}

	recent := journal.NewLedger(64)
	recorder := journal.Multi{recent}
	if cfg.Journal.Path != "" {
		jsonl, err := journal.NewJSONLRecorder(cfg.Journal.Path, log)
		if err != nil {
			log.Fatal().Err(err).Str("path", cfg.Journal.Path).Msg("open journal")
		}
		defer jsonl.Close()
		recorder = append(recorder, jsonl)
	}

	params := execution.Params{
		Payer:       owner.PublicKey().String(),
		SlippageBps: cfg.Trade.SlippageBps,
		PriorityFee: cfg.Trade.PriorityFee,
		Legacy:      cfg.Trade.Legacy,
		Options:     cfg.Execution.Options(),
	}
	dial := func(url string) loop.Session {
		client := dex.NewJupiterClient(url, cfg.Jupiter.BaseURL, owner, cfg.RPC.Commitment, cfg.Jupiter.Timeout(), log)
		return loop.Session{
			Endpoint: url,
			Swapper:  execution.NewExecutor(client, params, log.With().Str("rpc", endpoint.Redact(url)).Logger()),
			Balances: dex.NewBalances(client.RPC, owner.PublicKey(), client.Commit),
		}
	}

	attempts := retry.Attempts(cfg.Retry.MaxRetries)
	if attempts == 0 {
		log.Warn().Float64("max_retries", cfg.Retry.MaxRetries).Msg("retry bound below one attempt; every swap will fail")
	}
	ctrl, err := loop.New(loop.Config{
		TokenIn:         cfg.Trade.TokenIn,
		TokenOut:        cfg.Trade.TokenOut,
		BuyAmount:       cfg.Trade.BuyAmount,
		BuyBatchSize:    cfg.Trade.BatchSize,
		Pause:           cfg.Loop.Pause(),
		FallbackBalance: cfg.Loop.FallbackBalance,
		MaxAttempts:     attempts,
		BaseDelay:       cfg.Retry.BaseDelay(),
		RecoveryDelay:   cfg.Loop.RecoveryDelay(),
	}, pool, dial, log, loop.WithJournal(recorder))
	if err != nil {
		log.Fatal().Err(err).Msg("controller")
	}

	ctx, cancel := ossignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	_ = ctrl.Run(ctx)

	summary := log.Info().Int("swaps", recent.Total())
	if last := recent.Snapshot(); len(last) > 0 {
		summary = summary.Str("last_sig", last[len(last)-1].Signature)
	}
	summary.Msg("shutting down")
}

func getEnv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
