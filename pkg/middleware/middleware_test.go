package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"reviewhub/pkg/authz"
	"reviewhub/pkg/config"
	"reviewhub/pkg/errutil"
	"reviewhub/pkg/session"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
	gin.SetMode(gin.TestMode)
}

type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func do(r http.Handler, req *http.Request) (*httptest.ResponseRecorder, errorBody) {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	var body errorBody
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	return w, body
}

func TestErrorRendersBaseError(t *testing.T) {
	r := gin.New()
	r.Use(Error())
	r.GET("/conflict", func(c *gin.Context) {
		c.Error(errutil.Conflict("review already processed", errors.New("pq: internal detail")))
	})
	r.GET("/plain", func(c *gin.Context) {
		c.Error(errors.New("disk on fire"))
	})
	r.GET("/ok", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"success": true})
	})

	w, body := do(r, httptest.NewRequest(http.MethodGet, "/conflict", nil))
	require.Equal(t, http.StatusConflict, w.Code)
	require.Equal(t, "CONFLICT", body.Error.Code)
	require.NotContains(t, w.Body.String(), "internal detail")

	w, body = do(r, httptest.NewRequest(http.MethodGet, "/plain", nil))
	require.Equal(t, http.StatusInternalServerError, w.Code)
	require.Equal(t, "INTERNAL", body.Error.Code)
	require.NotContains(t, w.Body.String(), "disk on fire")

	w, _ = do(r, httptest.NewRequest(http.MethodGet, "/ok", nil))
	require.Equal(t, http.StatusOK, w.Code)
}

func TestAuthenticate(t *testing.T) {
	cfg := &config.Config{}
	cfg.Session.Secret = "secret"
	cfg.Session.Name = "reviewhub"
	cfg.Session.TTL = time.Hour
	sm, err := session.NewManager(cfg)
	require.NoError(t, err)

	r := gin.New()
	r.Use(Error())
	r.GET("/me", Authenticate(sm), func(c *gin.Context) {
		p, ok := authz.PrincipalFrom(c.Request.Context())
		require.True(t, ok)
		c.JSON(http.StatusOK, gin.H{"id": p.UserID, "role": p.Role})
	})

	w, body := do(r, httptest.NewRequest(http.MethodGet, "/me", nil))
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Equal(t, "UNAUTHORIZED", body.Error.Code)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	w, _ = do(r, req)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	token, _, err := sm.Issue(authz.Principal{UserID: "7", Role: authz.RoleBusiness})
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w, _ = do(r, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"id":"7","role":"business"}`, w.Body.String())
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(1, 2)
	now := time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	r := gin.New()
	r.Use(Error())
	r.POST("/signin", rl.Middleware(), func(c *gin.Context) { c.Status(http.StatusNoContent) })

	send := func() int {
		req := httptest.NewRequest(http.MethodPost, "/signin", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		w, _ := do(r, req)
		return w.Code
	}

	require.Equal(t, http.StatusNoContent, send())
	require.Equal(t, http.StatusNoContent, send())
	require.Equal(t, http.StatusTooManyRequests, send())

	now = now.Add(time.Second)
	require.Equal(t, http.StatusNoContent, send())
}

func TestRateLimiterEvictsIdleVisitors(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	start := time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC)
	now := start
	rl.now = func() time.Time { return now }

	require.True(t, rl.allow("10.0.0.1"))
	require.True(t, rl.allow("10.0.0.2"))

	// Inside the window no sweep runs, even for an idle visitor.
	now = start.Add(time.Minute)
	require.True(t, rl.allow("10.0.0.3"))
	require.Len(t, rl.visitors, 3)

	now = start.Add(rl.ttl + time.Second)
	require.True(t, rl.allow("10.0.0.3"))
	require.Len(t, rl.visitors, 1)
	require.Contains(t, rl.visitors, "10.0.0.3")
	require.Equal(t, now, rl.lastSweep)
}
