package main

import (
	"log"

	"reviewhub/pkg/authz"
	"reviewhub/pkg/config"
	"reviewhub/pkg/db"
	"reviewhub/pkg/health"
	"reviewhub/pkg/logger"
	"reviewhub/pkg/otelcol"
	"reviewhub/pkg/redis"
	"reviewhub/pkg/sequence"
	"reviewhub/pkg/server"
	"reviewhub/pkg/session"
	"reviewhub/pkg/storage"
	"reviewhub/pkg/task"
	"reviewhub/services/identity"
	"reviewhub/services/ledger"
	"reviewhub/services/payment"
	"reviewhub/services/wallet"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

func main() {
	opts := []fx.Option{
		config.Module,
		logger.Module,
		otelcol.Module,
		db.Module,
		redis.Module,
		task.Client,
		sequence.Module,
		storage.Module,
		authz.Module,
		session.Module,
		fx.Provide(provideSnowflakeNode),
		server.ProvideHTTPServer,
		health.Module,
		identity.Module,
		identity.HTTP,
		wallet.Module,
		wallet.HTTP,
		ledger.Module,
		ledger.HTTP,
		payment.Module,
		payment.HTTP,
		fxLogger,
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	app := fx.New(opts...)

	app.Run()
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	return fxevent.NopLogger
})

func provideSnowflakeNode(cfg *config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.Snowflake.Node)
}
