package solana

import (
	"context"
	"errors"
	"sync"

	solana "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

type fakeConn struct {
	mu sync.Mutex

	decimals    uint8
	supplyCalls int
	accounts    []*rpc.TokenAccount
	accountsErr error
	uiAmount    *float64
	balanceErr  error
	sent        []*solana.Transaction
	sendErr     error
	statuses    []*rpc.SignatureStatusesResult // consumed one per poll
	blockHeight uint64
}

func (f *fakeConn) GetTokenSupply(context.Context, solana.PublicKey, rpc.CommitmentType) (*rpc.GetTokenSupplyResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.supplyCalls++
	return &rpc.GetTokenSupplyResult{Value: &rpc.UiTokenAmount{Decimals: f.decimals}}, nil
}

func (f *fakeConn) GetTokenAccountsByOwner(context.Context, solana.PublicKey, *rpc.GetTokenAccountsConfig, *rpc.GetTokenAccountsOpts) (*rpc.GetTokenAccountsResult, error) {
	if f.accountsErr != nil {
		return nil, f.accountsErr
	}
	return &rpc.GetTokenAccountsResult{Value: f.accounts}, nil
}

func (f *fakeConn) GetTokenAccountBalance(context.Context, solana.PublicKey, rpc.CommitmentType) (*rpc.GetTokenAccountBalanceResult, error) {
	if f.balanceErr != nil {
		return nil, f.balanceErr
	}
	return &rpc.GetTokenAccountBalanceResult{Value: &rpc.UiTokenAmount{UiAmount: f.uiAmount}}, nil
}

func (f *fakeConn) SendTransactionWithOpts(_ context.Context, tx *solana.Transaction, _ rpc.TransactionOpts) (solana.Signature, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return solana.Signature{}, f.sendErr
	}
	f.sent = append(f.sent, tx)
	if len(tx.Signatures) == 0 {
		return solana.Signature{}, errors.New("unsigned")
	}
	return tx.Signatures[0], nil
}

func (f *fakeConn) GetSignatureStatuses(context.Context, bool, ...solana.Signature) (*rpc.GetSignatureStatusesResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.statuses) == 0 {
		return &rpc.GetSignatureStatusesResult{Value: []*rpc.SignatureStatusesResult{nil}}, nil
	}
	next := f.statuses[0]
	f.statuses = f.statuses[1:]
	return &rpc.GetSignatureStatusesResult{Value: []*rpc.SignatureStatusesResult{next}}, nil
}

func (f *fakeConn) GetBlockHeight(context.Context, rpc.CommitmentType) (uint64, error) {
	return f.blockHeight, nil
}
