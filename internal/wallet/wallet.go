package wallet

import (
	"context"
	"errors"
)

var (
	// ErrInsufficientBalance is returned by Debit when the wallet holds less
	// than the requested amount. The wallet is left untouched.
	ErrInsufficientBalance = errors.New("wallet_insufficient_balance")

	ErrNotConfigured = errors.New("wallet not configured")
)

// Wallet is the shared spendable-balance store a member transfers dues money
// from. Debit must be conditional: it either removes the full amount or
// nothing, even under concurrent spends against the same wallet.
type Wallet interface {
	Balance(ctx context.Context, subscriberID int64) (int64, error)
	Debit(ctx context.Context, subscriberID int64, amount int64, ref string) error
	Credit(ctx context.Context, subscriberID int64, amount int64, ref string) error
}
