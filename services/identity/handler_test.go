package identity

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"reviewhub/pkg/config"
	"reviewhub/pkg/server"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T) (*gin.Engine, *Service) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	svc := newTestService(t, &fakeStore{})
	cfg := &config.Config{AppName: "reviewhub-test"}
	cfg.RateLimit.RPS = 100
	cfg.RateLimit.Burst = 100

	r := server.NewEngine(cfg)
	registerRoutes(routeParams{Engine: r, Config: cfg, Session: svc.session, Handler: NewHandler(svc)})
	return r, svc
}

func doJSON(r http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestSignUpSignInMeOverHTTP(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doJSON(r, http.MethodPost, "/v1/auth/signup", "", map[string]string{
		"email": "rev@x.com", "password": "password1", "role": "reviewer",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	require.NotContains(t, w.Body.String(), "password")

	w = doJSON(r, http.MethodPost, "/v1/auth/signup", "", map[string]string{
		"email": "not-an-email", "password": "password1", "role": "reviewer",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(r, http.MethodPost, "/v1/auth/signin", "", map[string]string{
		"email": "rev@x.com", "password": "password1",
	})
	require.Equal(t, http.StatusOK, w.Code)
	var signIn SignInResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &signIn))
	require.NotEmpty(t, signIn.Token)

	w = doJSON(r, http.MethodGet, "/v1/me", signIn.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var profile Profile
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &profile))
	require.Equal(t, "rev@x.com", profile.User.Email)
	require.NotNil(t, profile.Reviewer)

	w = doJSON(r, http.MethodGet, "/v1/me", "", nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestVerifyRequiresAdminOverHTTP(t *testing.T) {
	r, svc := newTestRouter(t)

	w := doJSON(r, http.MethodPost, "/v1/auth/signup", "", map[string]string{
		"email": "biz@x.com", "password": "password1", "role": "business", "company_name": "Acme",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	var user User
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &user))

	w = doJSON(r, http.MethodPost, "/v1/auth/signin", "", map[string]string{"email": "biz@x.com", "password": "password1"})
	var signIn SignInResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &signIn))

	w = doJSON(r, http.MethodPost, "/v1/admin/users/"+user.ID+"/verify", signIn.Token, map[string]bool{"verified": true})
	require.Equal(t, http.StatusForbidden, w.Code)

	require.NoError(t, svc.SeedFirstAdmin(t.Context(), "root@x.com", "password1"))
	w = doJSON(r, http.MethodPost, "/v1/auth/signin", "", map[string]string{"email": "root@x.com", "password": "password1"})
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &signIn))

	w = doJSON(r, http.MethodPost, "/v1/admin/users/"+user.ID+"/verify", signIn.Token, map[string]bool{"verified": true})
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &user))
	require.True(t, user.IsVerified)
}
