package webserver

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/citadelhq/citadel/config"
	"github.com/citadelhq/citadel/internal/app"
	"github.com/citadelhq/citadel/internal/domain"
	"github.com/citadelhq/citadel/internal/ratelimit"
)

func newTestServer(t *testing.T, mutate func(cfg *config.AppConfig)) *WebServer {
	t.Helper()
	cfg := *config.DefaultAppConfig
	if mutate != nil {
		mutate(&cfg)
	}
	a := app.NewApplication(&cfg)
	a.OverrideLimiter(ratelimit.NewMemoryStore())
	ws := New(a)
	ws.api.GET("/ping", func(c echo.Context) error {
		return c.String(http.StatusOK, "pong")
	})
	ws.api.GET("/dashboard", func(c echo.Context) error {
		return c.String(http.StatusOK, "stats")
	})
	return ws
}

func doRequest(ws *WebServer, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	ws.root.ServeHTTP(rec, req)
	return rec
}

func TestRateLimitCeiling(t *testing.T) {
	ws := newTestServer(t, func(cfg *config.AppConfig) {
		cfg.RateLimit.Default = config.RateLimitClassConfig{MaxRequests: 3, WindowSecs: 60}
	})

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/ping", nil)
		req.Header.Set("X-Forwarded-For", "10.0.0.1")
		rec := doRequest(ws, req)
		require.Equal(t, http.StatusOK, rec.Code, "request %d should pass", i+1)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/ping", nil)
	req.Header.Set("X-Forwarded-For", "10.0.0.1")
	rec := doRequest(ws, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), "RATE_LIMITED")
	assert.Contains(t, rec.Body.String(), "retryAfter")

	// A different client keeps its own budget.
	req = httptest.NewRequest(http.MethodGet, "/api/ping", nil)
	req.Header.Set("X-Forwarded-For", "10.0.0.2")
	rec = doRequest(ws, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimitHeadersOnSuccess(t *testing.T) {
	ws := newTestServer(t, func(cfg *config.AppConfig) {
		cfg.RateLimit.Default = config.RateLimitClassConfig{MaxRequests: 5, WindowSecs: 60}
	})

	req := httptest.NewRequest(http.MethodGet, "/api/ping", nil)
	req.Header.Set("X-Forwarded-For", "10.0.0.9")
	rec := doRequest(ws, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "5", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "4", rec.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, rec.Header().Get("X-RateLimit-Reset"))
}

func TestAuthLadder(t *testing.T) {
	ws := newTestServer(t, nil)
	secret := ws.appCtx.Config().Web.Secret

	// No credential.
	req := httptest.NewRequest(http.MethodGet, "/api/dashboard", nil)
	rec := doRequest(ws, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "UNAUTHORIZED")

	// Valid token, wrong role.
	userToken, err := IssueToken(secret, domain.SysUser{
		ID: 2, Name: "Viewer", Email: "viewer@example.com", Role: domain.RoleUser,
	}, time.Hour)
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodGet, "/api/dashboard", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+userToken)
	rec = doRequest(ws, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "FORBIDDEN")

	// Admin role passes.
	adminToken, err := IssueToken(secret, domain.SysUser{
		ID: 1, Name: "Ops", Email: "ops@example.com", Role: domain.RoleAdmin,
	}, time.Hour)
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodGet, "/api/dashboard", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+adminToken)
	rec = doRequest(ws, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSessionCookieAccepted(t *testing.T) {
	ws := newTestServer(t, nil)
	secret := ws.appCtx.Config().Web.Secret

	token, err := IssueToken(secret, domain.SysUser{
		ID: 1, Name: "Ops", Email: "ops@example.com", Role: domain.RoleAdmin,
	}, time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/dashboard", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: token})
	rec := doRequest(ws, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestExpiredTokenRejected(t *testing.T) {
	ws := newTestServer(t, nil)
	secret := ws.appCtx.Config().Web.Secret

	token, err := IssueToken(secret, domain.SysUser{
		ID: 1, Name: "Ops", Email: "ops@example.com", Role: domain.RoleAdmin,
	}, -time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/dashboard", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	rec := doRequest(ws, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCorsPreflight(t *testing.T) {
	ws := newTestServer(t, func(cfg *config.AppConfig) {
		cfg.Web.AllowedOrigins = "https://admin.example.com"
	})

	req := httptest.NewRequest(http.MethodOptions, "/api/ping", nil)
	req.Header.Set("Origin", "https://admin.example.com")
	rec := doRequest(ws, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://admin.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "86400", rec.Header().Get("Access-Control-Max-Age"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
}

func TestCorsDenied(t *testing.T) {
	ws := newTestServer(t, func(cfg *config.AppConfig) {
		cfg.Web.AllowedOrigins = "https://admin.example.com"
	})

	req := httptest.NewRequest(http.MethodGet, "/api/ping", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec := doRequest(ws, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "CORS_DENIED")
}

func TestCorsSameOriginPasses(t *testing.T) {
	ws := newTestServer(t, func(cfg *config.AppConfig) {
		cfg.Web.Production = true
		cfg.Web.AllowedOrigins = ""
	})

	// httptest requests carry Host example.com.
	req := httptest.NewRequest(http.MethodGet, "/api/ping", nil)
	req.Header.Set("Origin", "http://example.com")
	rec := doRequest(ws, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSecurityHeaders(t *testing.T) {
	ws := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/ping", nil)
	rec := doRequest(ws, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Equal(t, "strict-origin-when-cross-origin", rec.Header().Get("Referrer-Policy"))
}

func TestPageGuardRedirect(t *testing.T) {
	ws := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/dashboard/settings", nil)
	rec := doRequest(ws, req)
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/auth/login?callbackUrl=%2Fdashboard%2Fsettings", rec.Header().Get(echo.HeaderLocation))
}

func TestClassify(t *testing.T) {
	assert.Equal(t, ratelimit.ClassAuth, classify("/api/auth/login"))
	assert.Equal(t, ratelimit.ClassAuth, classify("/api/setup"))
	assert.Equal(t, ratelimit.ClassUpload, classify("/api/upload"))
	assert.Equal(t, ratelimit.ClassDefault, classify("/api/products"))
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Forwarded-For", "1.1.1.1, 2.2.2.2")
	assert.Equal(t, "1.1.1.1", clientIP(req))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Real-IP", "3.3.3.3")
	assert.Equal(t, "3.3.3.3", clientIP(req))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Equal(t, "unknown", clientIP(req))
}
