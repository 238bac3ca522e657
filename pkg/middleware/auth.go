package middleware

import (
	"strings"

	"reviewhub/pkg/authz"
	"reviewhub/pkg/errutil"
	"reviewhub/pkg/session"

	"github.com/gin-gonic/gin"
)

// Authenticate resolves the bearer token into an authz.Principal on the
// request context. Permission checks stay in the services.
func Authenticate(sm *session.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" || !strings.HasPrefix(header, "Bearer ") {
			c.Error(errutil.Unauthorized("authorization header missing or invalid", nil))
			c.Abort()
			return
		}

		p, err := sm.Parse(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			c.Error(err)
			c.Abort()
			return
		}

		c.Request = c.Request.WithContext(authz.WithPrincipal(c.Request.Context(), p))
		c.Next()
	}
}
