package solana

import (
	"context"
	"errors"
	"fmt"

	solana "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// ErrBalanceUnavailable covers owners without a token account for the mint and accounts without a UI amount.
var ErrBalanceUnavailable = errors.New("token balance unavailable")

// Balances reads SPL token balances for one owner through one RPC connection.
type Balances struct {
	conn   Conn
	owner  solana.PublicKey
	commit rpc.CommitmentType
}

func NewBalances(conn Conn, owner solana.PublicKey, commit rpc.CommitmentType) *Balances {
	return &Balances{conn: conn, owner: owner, commit: commit}
}

// TokenBalance returns the UI amount held in the owner's first token account for mint.
func (b *Balances) TokenBalance(ctx context.Context, mint string) (float64, error) {
	mintKey, err := solana.PublicKeyFromBase58(mint)
	if err != nil {
		return 0, fmt.Errorf("mint %q: %w", mint, err)
	}
	accounts, err := b.conn.GetTokenAccountsByOwner(ctx, b.owner,
		&rpc.GetTokenAccountsConfig{Mint: &mintKey},
		&rpc.GetTokenAccountsOpts{Commitment: b.commit, Encoding: solana.EncodingBase64},
	)
	if err != nil {
		return 0, classifyRPC("token accounts", err)
	}
	if accounts == nil || len(accounts.Value) == 0 || accounts.Value[0] == nil {
		return 0, fmt.Errorf("%w: no token accounts for owner %s and mint %s", ErrBalanceUnavailable, b.owner, mint)
	}

	account := accounts.Value[0].Pubkey
	info, err := b.conn.GetTokenAccountBalance(ctx, account, b.commit)
	if err != nil {
		return 0, classifyRPC("token account balance", err)
	}
	if info == nil || info.Value == nil || info.Value.UiAmount == nil {
		return 0, fmt.Errorf("%w: no balance for account %s", ErrBalanceUnavailable, account)
	}
	return *info.Value.UiAmount, nil
}
