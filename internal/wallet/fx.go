package wallet

import (
	"github.com/duekeeper/duekeeper/internal/config"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func NewRedisClient(cfg config.Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
}

func NewWallet(client *redis.Client, log *zap.Logger) Wallet {
	return NewRedisWallet(client, log)
}

var Module = fx.Module("wallet",
	fx.Provide(NewRedisClient, NewWallet),
)
