// Package loop drives the buy -> balance check -> sell -> pause cycle and fails over between RPC endpoints.
//
// The loop never stops on its own. Every error that escapes a cycle rotates the endpoint pool,
// rebinds the session to the new endpoint, waits Config.RecoveryDelay and starts over at BUYING.
// With a zero RecoveryDelay a pool of dead endpoints is retried back to back without pause.
// Only canceling the context passed to Run ends it; cancellation is checked between states.
//
// Endpoint URLs may embed provider keys, so logs and metrics only ever see endpoint.Redact output
// or the pool index.
package loop

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"swaploop/internal/batch"
	"swaploop/internal/endpoint"
	"swaploop/internal/execution"
	"swaploop/internal/journal"
	"swaploop/internal/metrics"
	"swaploop/internal/retry"
)

// State is a step of the trading cycle.
type State int32

const (
	Idle State = iota
	Buying
	CheckingBalance
	SellingOrSkipping
	Pausing
	Recovering
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "IDLE"
	case Buying:
		return "BUYING"
	case CheckingBalance:
		return "CHECKING_BALANCE"
	case SellingOrSkipping:
		return "SELLING_OR_SKIPPING"
	case Pausing:
		return "PAUSING"
	case Recovering:
		return "RECOVERING"
	case Stopped:
		return "STOPPED"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Swapper executes one swap and returns its transaction signature.
type Swapper interface {
	Swap(ctx context.Context, req execution.SwapRequest) (string, error)
}

// BalanceOracle reads the wallet's balance of a token in UI units.
type BalanceOracle interface {
	TokenBalance(ctx context.Context, mint string) (float64, error)
}

// Session is everything bound to one endpoint. Sessions are never modified, only replaced.
type Session struct {
	Endpoint string
	Swapper  Swapper
	Balances BalanceOracle
}

// Dialer builds a fresh Session for an endpoint.
type Dialer func(endpoint string) Session

// Config is the immutable trading setup handed to the controller.
type Config struct {
	TokenIn         string
	TokenOut        string
	BuyAmount       float64
	BuyBatchSize    int
	Pause           time.Duration
	FallbackBalance float64
	MaxAttempts     int
	BaseDelay       time.Duration
	RecoveryDelay   time.Duration
}

// Option configures Controller construction parameters.
type Option func(*Controller)

// WithSleep replaces the timer used for backoff and the inter-cycle pause.
func WithSleep(sleep retry.SleepFunc) Option {
	return func(c *Controller) {
		if sleep != nil {
			c.sleep = sleep
		}
	}
}

// WithJournal records every successful swap.
func WithJournal(r journal.Recorder) Option {
	return func(c *Controller) {
		if r != nil {
			c.journal = r
		}
	}
}

// Controller owns the cycle state machine. Run, Step and RunCycle must be called from a single goroutine.
type Controller struct {
	cfg     Config
	pool    *endpoint.Pool
	dial    Dialer
	log     zerolog.Logger
	sleep   retry.SleepFunc
	journal journal.Recorder

	session Session
	state   atomic.Int32
}

// New binds the controller to the pool's current endpoint.
func New(cfg Config, pool *endpoint.Pool, dial Dialer, log zerolog.Logger, opts ...Option) (*Controller, error) {
	if pool == nil {
		return nil, errors.New("loop: nil endpoint pool")
	}
	if dial == nil {
		return nil, errors.New("loop: nil dialer")
	}
	if cfg.TokenIn == "" || cfg.TokenOut == "" {
		return nil, errors.New("loop: token_in and token_out are required")
	}
	c := &Controller{
		cfg:     cfg,
		pool:    pool,
		dial:    dial,
		log:     log,
		sleep:   retry.Sleep,
		journal: journal.Discard,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.session = dial(pool.Current())
	return c, nil
}

// State reports the step the controller is in. Safe to call from any goroutine.
func (c *Controller) State() State { return State(c.state.Load()) }

// Session returns the active session. Only meaningful from the Run goroutine or after Run returned.
func (c *Controller) Session() Session { return c.session }

// Run cycles until ctx is canceled and returns ctx.Err().
func (c *Controller) Run(ctx context.Context) error {
	c.log.Info().Str("endpoint", endpoint.Redact(c.session.Endpoint)).Int("endpoints", c.pool.Len()).Msg("swap loop started")
	defer c.setState(Stopped)
	for {
		_ = c.Step(ctx)
		if err := ctx.Err(); err != nil {
			c.log.Info().Msg("swap loop stopped")
			return err
		}
	}
}

// Step runs one cycle and, if it failed for any reason other than cancellation, fails over to the next endpoint
// and waits RecoveryDelay. The cycle error is returned for observation only.
func (c *Controller) Step(ctx context.Context) error {
	err := c.RunCycle(ctx)
	if err == nil {
		metrics.CyclesTotal.WithLabelValues("ok").Inc()
		return nil
	}
	if ctx.Err() != nil {
		return err
	}
	metrics.CyclesTotal.WithLabelValues("failed").Inc()
	c.failover(err)
	if c.cfg.RecoveryDelay > 0 {
		_ = c.sleep(ctx, c.cfg.RecoveryDelay)
	}
	return err
}

// RunCycle performs BUYING, CHECKING_BALANCE, SELLING_OR_SKIPPING and PAUSING once against the active session.
func (c *Controller) RunCycle(ctx context.Context) error {
	sess := c.session
	cycle := uuid.NewString()
	log := c.log.With().Str("cycle", cycle).Str("endpoint", endpoint.Redact(sess.Endpoint)).Logger()

	if err := c.enter(ctx, Buying); err != nil {
		return err
	}
	buy := execution.SwapRequest{Side: execution.Buy, TokenIn: c.cfg.TokenIn, TokenOut: c.cfg.TokenOut, Amount: c.cfg.BuyAmount}
	_, err := batch.Run(ctx, c.cfg.BuyBatchSize, func(ctx context.Context, _ int) (string, error) {
		return c.swap(ctx, sess, cycle, buy, log)
	})
	if err != nil {
		return fmt.Errorf("buy batch: %w", err)
	}

	if err := c.enter(ctx, CheckingBalance); err != nil {
		return err
	}
	balance := math.Round(c.balance(ctx, sess, log))

	if err := c.enter(ctx, SellingOrSkipping); err != nil {
		return err
	}
	if balance > 0 {
		sell := execution.SwapRequest{Side: execution.Sell, TokenIn: c.cfg.TokenOut, TokenOut: c.cfg.TokenIn, Amount: balance}
		if _, err := c.swap(ctx, sess, cycle, sell, log); err != nil {
			return fmt.Errorf("sell: %w", err)
		}
	} else {
		log.Warn().Msg("skipping sell operation due to zero balance")
	}

	if err := c.enter(ctx, Pausing); err != nil {
		return err
	}
	return c.sleep(ctx, c.cfg.Pause)
}

func (c *Controller) swap(ctx context.Context, sess Session, cycle string, req execution.SwapRequest, log zerolog.Logger) (string, error) {
	policy := retry.Policy{
		MaxAttempts: c.cfg.MaxAttempts,
		BaseDelay:   c.cfg.BaseDelay,
		Sleep:       c.sleep,
		Log:         log,
		Label:       string(req.Side),
	}
	sig, err := retry.Do(ctx, policy, func(ctx context.Context) (string, error) {
		return sess.Swapper.Swap(ctx, req)
	})
	if err != nil {
		return "", err
	}
	c.journal.Record(journal.Entry{
		Cycle:     cycle,
		Side:      req.Side,
		TokenIn:   req.TokenIn,
		TokenOut:  req.TokenOut,
		Amount:    req.Amount,
		Signature: sig,
		Endpoint:  endpoint.Redact(sess.Endpoint),
		Ts:        time.Now().UTC(),
	})
	return sig, nil
}

// balance never fails: lookup errors fall back to the configured balance.
func (c *Controller) balance(ctx context.Context, sess Session, log zerolog.Logger) float64 {
	amount, err := sess.Balances.TokenBalance(ctx, c.cfg.TokenOut)
	if err != nil {
		metrics.BalanceFallbacksTotal.Inc()
		log.Error().Err(err).Float64("fallback", c.cfg.FallbackBalance).Msg("error getting token balance")
		return c.cfg.FallbackBalance
	}
	return amount
}

// failover is the only place the session changes; every operation of the failed cycle has settled by now.
func (c *Controller) failover(cause error) {
	c.setState(Recovering)
	c.log.Error().Err(cause).Str("endpoint", endpoint.Redact(c.session.Endpoint)).Msg("error in main loop")
	next := c.pool.Rotate()
	c.session = c.dial(next)
	index := c.pool.Index()
	metrics.RotationsTotal.WithLabelValues(strconv.Itoa(index)).Inc()
	c.log.Warn().Str("endpoint", endpoint.Redact(next)).Int("index", index).Msg("switching rpc endpoint")
}

func (c *Controller) enter(ctx context.Context, s State) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.setState(s)
	c.log.Debug().Stringer("state", s).Msg("state")
	return nil
}

func (c *Controller) setState(s State) { c.state.Store(int32(s)) }
