package solana

import (
	"context"
	"errors"
	"fmt"
	"time"

	solana "github.com/gagliardetto/solana-go"

	"swaploop/internal/execution"
)

var (
	// ErrNotConfirmed means the polling budget ran out before the cluster confirmed the signature.
	ErrNotConfirmed = errors.New("transaction not confirmed")
	// ErrBlockhashExpired means the transaction can no longer land.
	ErrBlockhashExpired = errors.New("blockhash expired")
)

const (
	defaultConfirmationRetries = 30
	defaultCheckInterval       = time.Second
)

func (j *JupiterClient) awaitConfirmation(ctx context.Context, tx *solana.Transaction, sig solana.Signature, lastValid uint64, opts execution.Options) error {
	retries := opts.ConfirmationRetries
	if retries <= 0 {
		retries = defaultConfirmationRetries
	}
	interval := opts.ConfirmationCheckInterval
	if interval <= 0 {
		interval = defaultCheckInterval
	}
	cutoff := lastValid
	if opts.LastValidBlockHeightBuffer < cutoff {
		cutoff -= opts.LastValidBlockHeightBuffer
	}

	lastSend := j.now()
	for i := 0; i < retries; i++ {
		if err := j.sleep(ctx, interval); err != nil {
			return err
		}

		done, err := j.signatureLanded(ctx, sig, opts.ConfirmationRetryTimeout)
		if err != nil {
			if errors.Is(err, errTxFailed) || ctx.Err() != nil {
				return err
			}
			j.log.Debug().Err(err).Str("sig", sig.String()).Msg("signature status lookup failed")
		}
		if done {
			return nil
		}

		if lastValid > 0 {
			height, err := j.RPC.GetBlockHeight(ctx, j.Commit)
			if err == nil && height > cutoff {
				return fmt.Errorf("%w: %s at height %d", ErrBlockhashExpired, sig, height)
			}
		}

		if opts.ResendInterval > 0 && j.now().Sub(lastSend) >= opts.ResendInterval {
			if _, err := j.send(ctx, tx, execution.Options{SkipPreflight: true}); err != nil {
				j.log.Debug().Err(err).Str("sig", sig.String()).Msg("resend failed")
			}
			lastSend = j.now()
		}
	}
	return fmt.Errorf("%w: %s after %d checks", ErrNotConfirmed, sig, retries)
}

var errTxFailed = errors.New("transaction failed on chain")

func (j *JupiterClient) signatureLanded(ctx context.Context, sig solana.Signature, timeout time.Duration) (bool, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	out, err := j.RPC.GetSignatureStatuses(ctx, false, sig)
	if err != nil {
		return false, classifyRPC("signature status", err)
	}
	if out == nil || len(out.Value) == 0 || out.Value[0] == nil {
		return false, nil
	}
	status := out.Value[0]
	if status.Err != nil {
		return false, fmt.Errorf("%w: %v", errTxFailed, status.Err)
	}
	switch string(status.ConfirmationStatus) {
	case "confirmed", "finalized":
		return true, nil
	case "processed":
		return string(j.Commit) == "processed", nil
	}
	return false, nil
}
