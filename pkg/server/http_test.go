package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"reviewhub/pkg/config"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestEngineMethodNotAllowed(t *testing.T) {
	zap.ReplaceGlobals(zap.NewNop())
	gin.SetMode(gin.TestMode)

	r := NewEngine(&config.Config{AppName: "reviewhub-test"})
	r.POST("/api/webhooks/payment", func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, method := range []string{http.MethodGet, http.MethodPut, http.MethodDelete} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(method, "/api/webhooks/payment", nil))
		require.Equal(t, http.StatusMethodNotAllowed, w.Code, method)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nowhere", nil))
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestNewHttpServerAddr(t *testing.T) {
	cfg := &config.Config{}
	cfg.Server.Addr = "9090"

	srv := NewHttpServer(Params{Config: cfg, Engine: gin.New()})
	require.Equal(t, ":9090", srv.server.Addr)
	require.Nil(t, srv.server.TLSConfig)
}
