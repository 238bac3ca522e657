package main

import (
	"log"

	"reviewhub/pkg/authz"
	"reviewhub/pkg/config"
	"reviewhub/pkg/db"
	"reviewhub/pkg/logger"
	"reviewhub/pkg/otelcol"
	"reviewhub/pkg/redis"
	"reviewhub/pkg/sequence"
	"reviewhub/pkg/task"
	"reviewhub/services/identity"
	"reviewhub/services/payment"
	"reviewhub/services/wallet"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

// The worker runs payment reconciliation. It shares the database and redis
// with the api but serves no HTTP.
func main() {
	opts := []fx.Option{
		config.Module,
		logger.Module,
		otelcol.Module,
		db.Module,
		redis.Module,
		task.Client,
		task.Server,
		sequence.Module,
		authz.Module,
		fx.Provide(provideSnowflakeNode),
		identity.Module,
		wallet.Module,
		payment.Module,
		payment.Worker,
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
