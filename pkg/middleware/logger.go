package middleware

import (
	"time"

	"reviewhub/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"
)

// Trace starts a server span per request so downstream logs and gorm queries
// carry trace ids.
func Trace(service string) gin.HandlerFunc {
	return otelgin.Middleware(service)
}

func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.FromContext(c.Request.Context()).Info("http.request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.String("client_ip", c.ClientIP()),
			zap.Float64("duration_ms", float64(time.Since(start).Microseconds())/1000),
		)
	}
}
