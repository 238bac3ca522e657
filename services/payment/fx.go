package payment

import (
	"reviewhub/pkg/db"
	"reviewhub/pkg/middleware"
	"reviewhub/pkg/session"
	"reviewhub/pkg/taskname"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("payment.service",
	fx.Provide(NewService),
	fx.Invoke(migrate),
)

var HTTP = fx.Module("payment.http",
	fx.Provide(NewHandler),
	fx.Invoke(registerRoutes),
)

// Worker serves the reconcile and sweep tasks and schedules the sweep.
var Worker = fx.Module("payment.worker",
	fx.Provide(NewScheduler),
	fx.Invoke(registerHandlers, StartScheduler),
)

func migrate(conn *gorm.DB) error {
	return db.Migrate(conn, &UnmatchedPayment{})
}

type routeParams struct {
	fx.In
	Engine  *gin.Engine
	Session *session.Manager
	Handler *Handler
}

func registerRoutes(p routeParams) {
	// Authenticated by the shared-secret header, not a session.
	p.Engine.POST("/api/webhooks/payment", p.Handler.Webhook)

	admin := p.Engine.Group("/v1/admin/payments", middleware.Authenticate(p.Session))
	{
		admin.GET("/unmatched", p.Handler.ListUnmatched)
		admin.POST("/unmatched/:id/retry", p.Handler.RetryUnmatched)
	}
}

func registerHandlers(mux *asynq.ServeMux, svc *Service) {
	mux.HandleFunc(taskname.PaymentReconcile, svc.HandleReconcile)
	mux.HandleFunc(taskname.PaymentSweep, svc.HandleSweep)
}
