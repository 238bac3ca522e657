package identity

import (
	"reviewhub/pkg/config"
	"reviewhub/pkg/db"
	"reviewhub/pkg/middleware"
	"reviewhub/pkg/session"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("identity.service",
	fx.Provide(NewService),
	fx.Invoke(migrate, seedFirstAdmin),
)

var HTTP = fx.Module("identity.http",
	fx.Provide(NewHandler),
	fx.Invoke(registerRoutes),
)

func migrate(conn *gorm.DB) error {
	return db.Migrate(conn, &User{}, &Business{}, &Reviewer{})
}

type routeParams struct {
	fx.In
	Engine  *gin.Engine
	Config  *config.Config
	Session *session.Manager
	Handler *Handler
}

func registerRoutes(p routeParams) {
	limiter := middleware.NewRateLimiter(p.Config.RateLimit.RPS, p.Config.RateLimit.Burst)
	auth := middleware.Authenticate(p.Session)

	v1 := p.Engine.Group("/v1")
	{
		authGroup := v1.Group("/auth", limiter.Middleware())
		authGroup.POST("/signup", p.Handler.SignUp)
		authGroup.POST("/signin", p.Handler.SignIn)

		v1.GET("/me", auth, p.Handler.Me)
		v1.POST("/businesses/me/documents", auth, p.Handler.UploadDocument)
		v1.POST("/admin/users/:id/verify", auth, p.Handler.Verify)
	}
}
