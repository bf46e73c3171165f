package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/duekeeper/duekeeper/internal/clock"
	"github.com/duekeeper/duekeeper/internal/collection"
	"github.com/duekeeper/duekeeper/internal/config"
	"github.com/duekeeper/duekeeper/internal/enforcement"
	"github.com/duekeeper/duekeeper/internal/eviction"
	"github.com/duekeeper/duekeeper/internal/ledger"
	"github.com/duekeeper/duekeeper/internal/logger"
	"github.com/duekeeper/duekeeper/internal/membership"
	"github.com/duekeeper/duekeeper/internal/migration"
	"github.com/duekeeper/duekeeper/internal/notify"
	"github.com/duekeeper/duekeeper/internal/policy"
	"github.com/duekeeper/duekeeper/internal/subscriber"
	"github.com/duekeeper/duekeeper/internal/wallet"
	"github.com/duekeeper/duekeeper/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		logger.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		// External collaborators
		wallet.Module,
		membership.Module,
		notify.Module,

		// Dues domains
		policy.Module,
		subscriber.Module,
		ledger.Module,
		collection.Module,
		eviction.Module,

		// Periodic enforcement tick
		enforcement.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
