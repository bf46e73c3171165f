package wallet

import (
	"context"
	"sync"
)

// MemoryWallet is an in-process Wallet for tests and local runs without redis.
type MemoryWallet struct {
	mu       sync.Mutex
	balances map[int64]int64
}

func NewMemoryWallet() *MemoryWallet {
	return &MemoryWallet{balances: make(map[int64]int64)}
}

func (w *MemoryWallet) Balance(_ context.Context, subscriberID int64) (int64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.balances[subscriberID], nil
}

func (w *MemoryWallet) Debit(_ context.Context, subscriberID int64, amount int64, _ string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.balances[subscriberID] < amount {
		return ErrInsufficientBalance
	}
	w.balances[subscriberID] -= amount
	return nil
}

func (w *MemoryWallet) Credit(_ context.Context, subscriberID int64, amount int64, _ string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.balances[subscriberID] += amount
	return nil
}
