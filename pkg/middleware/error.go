package middleware

import (
	"errors"

	"reviewhub/pkg/errutil"
	"reviewhub/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Error renders the last error a handler attached with c.Error. Errors that
// are not an errutil.BaseError are reported as a bare internal error.
func Error() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		last := c.Errors.Last()
		if last == nil || c.Writer.Written() {
			return
		}

		var be errutil.BaseError
		if !errors.As(last.Err, &be) {
			be = errutil.Internal("internal server error", last.Err).(errutil.BaseError)
		}

		zapLog := logger.FromContext(c.Request.Context()).With(
			zap.String("path", c.FullPath()),
			zap.String("code", string(be.Code)),
		)
		if be.Code.HTTPStatus() >= 500 {
			zapLog.Error("request failed", zap.Error(last.Err))
		} else {
			zapLog.Debug("request rejected", zap.Error(last.Err))
		}

		c.JSON(be.Code.HTTPStatus(), be.JSON())
	}
}
