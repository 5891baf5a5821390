// Package execution defines the contract of the external swap service and the executor that drives it.
package execution

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"swaploop/internal/metrics"
)

// Side enumerates swap directions relative to the traded token.
type Side string

const (
	// Buy spends the quote asset for the traded token.
	Buy Side = "BUY"
	// Sell returns the traded token to the quote asset.
	Sell Side = "SELL"
)

// Instructions is the quote request forwarded to the service.
type Instructions struct {
	TokenIn     string
	TokenOut    string
	Amount      float64 // UI units of TokenIn
	SlippageBps int
	Payer       string
	PriorityFee float64 // native units (SOL)
	Legacy      bool
}

// Plan is an executable swap returned by the service, ready to be signed and sent.
type Plan struct {
	TokenIn              string
	TokenOut             string
	InAmount             string
	OutAmount            string
	Transaction          string // base64 wire transaction
	LastValidBlockHeight uint64
}

// Options tune submission and confirmation. They are handed to the service as-is.
type Options struct {
	SkipPreflight              bool
	ConfirmationRetries        int
	ConfirmationRetryTimeout   time.Duration
	LastValidBlockHeightBuffer uint64
	ResendInterval             time.Duration
	ConfirmationCheckInterval  time.Duration
	SkipConfirmationCheck      bool
}

// Service is the external execution backend bound to a single endpoint.
type Service interface {
	GetSwapInstructions(ctx context.Context, in Instructions) (*Plan, error)
	PerformSwap(ctx context.Context, plan *Plan, amount float64, tokenIn string, opts Options) (string, error)
}

// SwapRequest is one swap the loop wants executed.
type SwapRequest struct {
	Side     Side
	TokenIn  string
	TokenOut string
	Amount   float64
}

// Params carries the execution-quality knobs applied to every swap.
type Params struct {
	Payer       string
	SlippageBps int
	PriorityFee float64
	Legacy      bool
	Options     Options
}

// Executor turns swap requests into submitted transactions through one Service.
type Executor struct {
	svc    Service
	params Params
	log    zerolog.Logger
}

// NewExecutor binds an executor to svc. Executors are immutable; a new endpoint gets a new executor.
func NewExecutor(svc Service, params Params, log zerolog.Logger) *Executor {
	return &Executor{svc: svc, params: params, log: log}
}

// Swap quotes and performs a single swap, returning the transaction signature.
// Errors are returned unwrapped so callers can classify rate limiting.
func (executor *Executor) Swap(ctx context.Context, req SwapRequest) (string, error) {
	side := string(req.Side)
	plan, err := executor.svc.GetSwapInstructions(ctx, Instructions{
		TokenIn:     req.TokenIn,
		TokenOut:    req.TokenOut,
		Amount:      req.Amount,
		SlippageBps: executor.params.SlippageBps,
		Payer:       executor.params.Payer,
		PriorityFee: executor.params.PriorityFee,
		Legacy:      executor.params.Legacy,
	})
	if err != nil {
		metrics.SwapsTotal.WithLabelValues(side, "error").Inc()
		executor.log.Debug().Err(err).Str("side", side).Msg("swap instructions failed")
		return "", err
	}

	executor.log.Info().Str("side", side).Float64("amount", req.Amount).Msg("send swap transaction")
	sig, err := executor.svc.PerformSwap(ctx, plan, req.Amount, req.TokenIn, executor.params.Options)
	if err != nil {
		metrics.SwapsTotal.WithLabelValues(side, "error").Inc()
		executor.log.Debug().Err(err).Str("side", side).Msg("error when trying to swap")
		return "", err
	}
	metrics.SwapsTotal.WithLabelValues(side, "ok").Inc()
	executor.log.Info().Str("side", side).Str("sig", sig).Msg("swap sent")
	return sig, nil
}
