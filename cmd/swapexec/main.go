// Binary swapexec submits a single swap against the first configured endpoint. Useful to smoke-test a wallet and RPC.
package main

import (
	"context"
	"flag"
	"os"
	"time"

	"swaploop/internal/config"
	dex "swaploop/internal/dex/solana"
	"swaploop/internal/execution"
	"swaploop/internal/retry"
	"swaploop/internal/util"
)

func main() {
	configPath := flag.String("config", "internal/config/config.yaml", "path to YAML config")
	sell := flag.Bool("sell", false, "sell the traded token instead of buying it")
	amount := flag.Float64("amount", 0, "amount of the input token (defaults to trade.buy_amount)")
	flag.Parse()

	log := util.NewLogger("debug", true)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("config")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	owner, err := dex.LoadPrivateKeyFromEnv(cfg.Wallet.PrivateKeyEnv)
	if err != nil {
		log.Fatal().Err(err).Msg("wallet")
	}

	rpcURL := getEnv("SOLANA_RPC_URL", cfg.RPC.Endpoints[0])
	client := dex.NewJupiterClient(rpcURL, getEnv("JUPITER_BASE_URL", cfg.Jupiter.BaseURL), owner, getEnv("SOLANA_COMMITMENT", cfg.RPC.Commitment), cfg.Jupiter.Timeout(), log)
	exec := execution.NewExecutor(client, execution.Params{
		Payer:       owner.PublicKey().String(),
		SlippageBps: cfg.Trade.SlippageBps,
		PriorityFee: cfg.Trade.PriorityFee,
		Legacy:      cfg.Trade.Legacy,
		Options:     cfg.Execution.Options(),
	}, log)

	req := execution.SwapRequest{Side: execution.Buy, TokenIn: cfg.Trade.TokenIn, TokenOut: cfg.Trade.TokenOut, Amount: cfg.Trade.BuyAmount}
	if *sell {
		req = execution.SwapRequest{Side: execution.Sell, TokenIn: cfg.Trade.TokenOut, TokenOut: cfg.Trade.TokenIn}
	}
	if *amount > 0 {
		req.Amount = *amount
	}

	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	if *sell && req.Amount == 0 {
		balance, err := dex.NewBalances(client.RPC, owner.PublicKey(), client.Commit).TokenBalance(ctx, cfg.Trade.TokenOut)
		if err != nil {
			log.Fatal().Err(err).Msg("balance")
		}
		req.Amount = balance
	}

	sig, err := retry.Do(ctx, retry.Policy{
		MaxAttempts: max(retry.Attempts(cfg.Retry.MaxRetries), 1),
		BaseDelay:   cfg.Retry.BaseDelay(),
		Log:         log,
		Label:       string(req.Side),
	}, func(ctx context.Context) (string, error) {
		return exec.Swap(ctx, req)
	})
	if err != nil {
		log.Fatal().Err(err).Msg("swap")
	}
	log.Info().Str("sig", sig).Msg("submitted tx")
}

func getEnv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
