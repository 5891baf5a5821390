package solana

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	bin "github.com/gagliardetto/binary"
	solana "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
	"github.com/rs/zerolog"

	"swaploop/internal/endpoint"
	"swaploop/internal/execution"
	"swaploop/internal/retry"
)

// NativeMint is the wrapped SOL mint Jupiter uses for the native asset.
const NativeMint = "So11111111111111111111111111111111111111112"

const lamportsPerSOL = 1_000_000_000

// Conn is the subset of the Solana JSON-RPC surface the bot relies on. *rpc.Client satisfies it.
type Conn interface {
	GetTokenSupply(ctx context.Context, mint solana.PublicKey, commitment rpc.CommitmentType) (*rpc.GetTokenSupplyResult, error)
	GetTokenAccountsByOwner(ctx context.Context, owner solana.PublicKey, conf *rpc.GetTokenAccountsConfig, opts *rpc.GetTokenAccountsOpts) (*rpc.GetTokenAccountsResult, error)
	GetTokenAccountBalance(ctx context.Context, account solana.PublicKey, commitment rpc.CommitmentType) (*rpc.GetTokenAccountBalanceResult, error)
	SendTransactionWithOpts(ctx context.Context, tx *solana.Transaction, opts rpc.TransactionOpts) (solana.Signature, error)
	GetSignatureStatuses(ctx context.Context, searchTransactionHistory bool, transactionSignatures ...solana.Signature) (*rpc.GetSignatureStatusesResult, error)
	GetBlockHeight(ctx context.Context, commitment rpc.CommitmentType) (uint64, error)
}

// StatusError reports a non-200 answer from the Jupiter API. A 429 counts as rate limiting.
type StatusError struct {
	Op   string
	Code int
}

func (e *StatusError) Error() string { return fmt.Sprintf("jupiter %s status %d", e.Op, e.Code) }

// Is lets errors.Is(err, retry.ErrRateLimited) match throttled responses.
func (e *StatusError) Is(target error) bool {
	return target == retry.ErrRateLimited && e.Code == http.StatusTooManyRequests
}

// JupiterClient is the execution service for one RPC endpoint. It is never re-pointed; build a new one instead.
type JupiterClient struct {
	Base     string
	Endpoint string
	RPC      Conn
	Owner    solana.PrivateKey
	Commit   rpc.CommitmentType
	Http     *http.Client

	log   zerolog.Logger
	sleep retry.SleepFunc
	now   func() time.Time

	mu       sync.Mutex
	decimals map[string]uint8
}

type Quote struct {
	InputMint      string `json:"inputMint"`
	OutputMint     string `json:"outputMint"`
	InAmount       string `json:"inAmount"`
	OutAmount      string `json:"outAmount"`
	OtherAmount    string `json:"otherAmountThreshold"`
	SlippageBps    int    `json:"slippageBps"`
	RoutePlan      any    `json:"routePlan"`
	PriceImpactPct string `json:"priceImpactPct"`
}

// ParseCommitment maps a config string onto an RPC commitment, defaulting to confirmed.
func ParseCommitment(commit string) rpc.CommitmentType {
	switch strings.ToLower(strings.TrimSpace(commit)) {
	case "processed":
		return rpc.CommitmentProcessed
	case "finalized":
		return rpc.CommitmentFinalized
	default:
		return rpc.CommitmentConfirmed
	}
}

func NewJupiterClient(rpcURL, base string, owner solana.PrivateKey, commit string, timeout time.Duration, log zerolog.Logger) *JupiterClient {
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	return &JupiterClient{
		Base:     strings.TrimSuffix(base, "/"),
		Endpoint: rpcURL,
		RPC:      rpc.New(rpcURL),
		Owner:    owner,
		Commit:   ParseCommitment(commit),
		Http:     &http.Client{Timeout: timeout},
		log:      log.With().Str("rpc", endpoint.Redact(rpcURL)).Logger(),
		sleep:    retry.Sleep,
		now:      time.Now,
		decimals: map[string]uint8{NativeMint: 9},
	}
}

// amount is in smallest units (lamports for SOL; token decimals apply).
func (j *JupiterClient) GetQuote(ctx context.Context, inputMint, outputMint string, amount uint64, slippageBps int) (*Quote, error) {
	q := url.Values{}
	q.Set("inputMint", inputMint)
	q.Set("outputMint", outputMint)
	q.Set("amount", strconv.FormatUint(amount, 10))
	q.Set("slippageBps", strconv.Itoa(slippageBps))
	q.Set("onlyDirectRoutes", "false")
	u := j.Base + "/v6/quote?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := j.Http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Op: "quote", Code: resp.StatusCode}
	}
	var out Quote
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode quote: %w", err)
	}
	return &out, nil
}

// GetSwapInstructions quotes the swap and asks Jupiter for the unsigned transaction that executes it.
func (j *JupiterClient) GetSwapInstructions(ctx context.Context, in execution.Instructions) (*execution.Plan, error) {
	decimals, err := j.mintDecimals(ctx, in.TokenIn)
	if err != nil {
		return nil, err
	}
	quote, err := j.GetQuote(ctx, in.TokenIn, in.TokenOut, toBaseUnits(in.Amount, decimals), in.SlippageBps)
	if err != nil {
		return nil, err
	}

	payer := in.Payer
	if payer == "" {
		payer = j.Owner.PublicKey().String()
	}
	payload := map[string]any{
		"userPublicKey":             payer,
		"wrapAndUnwrapSol":          true,
		"asLegacyTransaction":       in.Legacy,
		"useTokenLedger":            false,
		"prioritizationFeeLamports": toBaseUnits(in.PriorityFee, 9),
		"quoteResponse":             quote,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode swap request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, j.Base+"/v6/swap", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := j.Http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Op: "swap", Code: resp.StatusCode}
	}
	var sr struct {
		SwapTransaction      string `json:"swapTransaction"` // base64-encoded tx (unsigned)
		LastValidBlockHeight uint64 `json:"lastValidBlockHeight"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("decode swap: %w", err)
	}
	return &execution.Plan{
		TokenIn:              in.TokenIn,
		TokenOut:             in.TokenOut,
		InAmount:             quote.InAmount,
		OutAmount:            quote.OutAmount,
		Transaction:          sr.SwapTransaction,
		LastValidBlockHeight: sr.LastValidBlockHeight,
	}, nil
}

// PerformSwap signs the planned transaction locally, submits it via RPC and, unless disabled, waits for confirmation.
func (j *JupiterClient) PerformSwap(ctx context.Context, plan *execution.Plan, amount float64, tokenIn string, opts execution.Options) (string, error) {
	if plan == nil || plan.Transaction == "" {
		return "", errors.New("empty swap plan")
	}
	raw, err := base64.StdEncoding.DecodeString(plan.Transaction)
	if err != nil {
		return "", fmt.Errorf("decode tx: %w", err)
	}
	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(raw))
	if err != nil {
		return "", fmt.Errorf("unmarshal tx: %w", err)
	}

	// tx.Sign returns (signatures, error); the signature we need is read back from tx.
	_, err = tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(j.Owner.PublicKey()) {
			return &j.Owner
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("sign: %w", err)
	}

	sig, err := j.send(ctx, tx, opts)
	if err != nil {
		return "", err
	}
	j.log.Debug().Str("sig", sig.String()).Str("token_in", tokenIn).Float64("amount", amount).Msg("transaction submitted")

	if opts.SkipConfirmationCheck {
		return sig.String(), nil
	}
	if err := j.awaitConfirmation(ctx, tx, sig, plan.LastValidBlockHeight, opts); err != nil {
		return sig.String(), err
	}
	return sig.String(), nil
}

func (j *JupiterClient) send(ctx context.Context, tx *solana.Transaction, opts execution.Options) (solana.Signature, error) {
	sig, err := j.RPC.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		SkipPreflight:       opts.SkipPreflight,
		PreflightCommitment: j.Commit,
	})
	if err != nil {
		return sig, classifyRPC("send transaction", err)
	}
	return sig, nil
}

func (j *JupiterClient) mintDecimals(ctx context.Context, mint string) (uint8, error) {
	j.mu.Lock()
	d, ok := j.decimals[mint]
	j.mu.Unlock()
	if ok {
		return d, nil
	}

	key, err := solana.PublicKeyFromBase58(mint)
	if err != nil {
		return 0, fmt.Errorf("mint %q: %w", mint, err)
	}
	out, err := j.RPC.GetTokenSupply(ctx, key, j.Commit)
	if err != nil {
		return 0, classifyRPC("token supply", err)
	}
	if out == nil || out.Value == nil {
		return 0, fmt.Errorf("token supply for %s: empty response", mint)
	}

	j.mu.Lock()
	j.decimals[mint] = out.Value.Decimals
	j.mu.Unlock()
	return out.Value.Decimals, nil
}

func toBaseUnits(amount float64, decimals uint8) uint64 {
	if amount <= 0 {
		return 0
	}
	return uint64(math.Round(amount * math.Pow10(int(decimals))))
}

// rpcCodeThrottled is the JSON-RPC error code some providers answer with instead of an HTTP 429.
const rpcCodeThrottled = -32429

// classifyRPC tags throttled RPC responses as rate limited. Only the status or JSON-RPC error the
// server sent is inspected, never the error text, which also carries the endpoint URL.
func classifyRPC(op string, err error) error {
	if throttled(err) {
		return fmt.Errorf("%s: %w: %w", op, retry.ErrRateLimited, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func throttled(err error) bool {
	var httpErr *jsonrpc.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Code == http.StatusTooManyRequests
	}
	var rpcErr *jsonrpc.RPCError
	if errors.As(err, &rpcErr) {
		if rpcErr.Code == http.StatusTooManyRequests || rpcErr.Code == rpcCodeThrottled {
			return true
		}
		msg := strings.ToLower(rpcErr.Message)
		return strings.Contains(msg, "too many requests") || strings.Contains(msg, "rate limit")
	}
	return false
}
