package wallet

import (
	"context"
	"fmt"
	"strconv"

	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// debitScript removes the amount only when the full amount is present. A
// plain DECRBY could race a concurrent spend below zero; the script makes
// check-and-debit one atomic step on the redis side.
const debitScript = `
local balance = tonumber(redis.call("GET", KEYS[1]) or "0")
local amount = tonumber(ARGV[1])
if balance < amount then
  return -1
end
return redis.call("DECRBY", KEYS[1], amount)
`

type RedisWallet struct {
	client *redis.Client
	script *redis.Script
	log    *zap.Logger
}

func NewRedisWallet(client *redis.Client, log *zap.Logger) *RedisWallet {
	if client == nil {
		return nil
	}
	return &RedisWallet{
		client: client,
		script: redis.NewScript(debitScript),
		log:    log.Named("wallet.redis"),
	}
}

func walletKey(subscriberID int64) string {
	return fmt.Sprintf("wallet:%d", subscriberID)
}

func (w *RedisWallet) Balance(ctx context.Context, subscriberID int64) (int64, error) {
	if w == nil || w.client == nil {
		return 0, ErrNotConfigured
	}
	val, err := w.client.Get(ctx, walletKey(subscriberID)).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(val, 10, 64)
}

func (w *RedisWallet) Debit(ctx context.Context, subscriberID int64, amount int64, ref string) error {
	if w == nil || w.client == nil {
		return ErrNotConfigured
	}
	if amount <= 0 {
		return fmt.Errorf("debit amount must be positive, got %d", amount)
	}

	remaining, err := w.script.Run(ctx, w.client, []string{walletKey(subscriberID)}, amount).Int64()
	if err != nil {
		return err
	}
	if remaining < 0 {
		return ErrInsufficientBalance
	}

	w.log.Info("wallet.debit",
		zap.Int64("subscriber_id", subscriberID),
		zap.Int64("amount", amount),
		zap.Int64("remaining", remaining),
		zap.String("ref", ref),
	)
	return nil
}

func (w *RedisWallet) Credit(ctx context.Context, subscriberID int64, amount int64, ref string) error {
	if w == nil || w.client == nil {
		return ErrNotConfigured
	}
	if amount <= 0 {
		return fmt.Errorf("credit amount must be positive, got %d", amount)
	}

	balance, err := w.client.IncrBy(ctx, walletKey(subscriberID), amount).Result()
	if err != nil {
		return err
	}

	w.log.Info("wallet.credit",
		zap.Int64("subscriber_id", subscriberID),
		zap.Int64("amount", amount),
		zap.Int64("balance", balance),
		zap.String("ref", ref),
	)
	return nil
}
