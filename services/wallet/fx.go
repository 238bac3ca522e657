package wallet

import (
	"reviewhub/pkg/db"
	"reviewhub/pkg/middleware"
	"reviewhub/pkg/session"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("wallet.service",
	fx.Provide(NewService),
	fx.Invoke(migrate),
)

var HTTP = fx.Module("wallet.http",
	fx.Provide(NewHandler),
	fx.Invoke(registerRoutes),
)

func migrate(conn *gorm.DB) error {
	return db.Migrate(conn, &Wallet{}, &Transaction{})
}

type routeParams struct {
	fx.In
	Engine  *gin.Engine
	Session *session.Manager
	Handler *Handler
}

func registerRoutes(p routeParams) {
	v1 := p.Engine.Group("/v1", middleware.Authenticate(p.Session))
	{
		v1.GET("/wallet", p.Handler.GetWallet)
		v1.GET("/wallet/transactions", p.Handler.ListTransactions)
		v1.POST("/wallet/withdrawals", p.Handler.RequestWithdrawal)

		v1.GET("/admin/withdrawals", p.Handler.ListWithdrawals)
		v1.POST("/admin/withdrawals/:id/settle", p.Handler.SettleWithdrawal)
	}
}
