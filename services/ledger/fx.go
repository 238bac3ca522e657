package ledger

import (
	"reviewhub/pkg/db"
	"reviewhub/pkg/middleware"
	"reviewhub/pkg/session"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("ledger.service",
	fx.Provide(NewService),
	fx.Invoke(migrate),
)

var HTTP = fx.Module("ledger.http",
	fx.Provide(NewHandler),
	fx.Invoke(registerRoutes),
)

func migrate(conn *gorm.DB) error {
	return db.Migrate(conn, &Campaign{}, &Review{})
}

type routeParams struct {
	fx.In
	Engine  *gin.Engine
	Session *session.Manager
	Handler *Handler
}

func registerRoutes(p routeParams) {
	auth := middleware.Authenticate(p.Session)

	api := p.Engine.Group("/api", auth)
	{
		api.POST("/approve-review", p.Handler.ApproveReview)
		api.POST("/reject-review", p.Handler.RejectReview)
	}

	v1 := p.Engine.Group("/v1", auth)
	{
		v1.POST("/campaigns", p.Handler.CreateCampaign)
		v1.GET("/campaigns", p.Handler.ListCampaigns)
		v1.GET("/campaigns/:id", p.Handler.GetCampaign)
		v1.DELETE("/campaigns/:id", p.Handler.DeleteCampaign)
		v1.POST("/campaigns/:id/submit", p.Handler.SubmitCampaign())
		v1.POST("/campaigns/:id/complete", p.Handler.CompleteCampaign())
		v1.POST("/campaigns/:id/reviews", p.Handler.SubmitReview)
		v1.GET("/campaigns/:id/reviews", p.Handler.ListReviews)
		v1.GET("/reviews", p.Handler.ListReviews)

		v1.POST("/admin/campaigns/:id/approve", p.Handler.ApproveCampaign())
		v1.POST("/admin/campaigns/:id/reject", p.Handler.RejectCampaign())
	}
}
