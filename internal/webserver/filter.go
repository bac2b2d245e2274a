package webserver

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/citadelhq/citadel/config"
	"github.com/citadelhq/citadel/internal/domain"
	"github.com/citadelhq/citadel/internal/ratelimit"
	"github.com/citadelhq/citadel/pkg/metrics"
)

// SessionCookieName carries the JWT for browser sessions.
const SessionCookieName = "session-token"

const sessionContextKey = "session"

// SessionClaims is the JWT payload: who the caller is and their role claim.
type SessionClaims struct {
	jwt.RegisteredClaims
	UserID int64  `json:"uid,string"`
	Name   string `json:"name"`
	Role   string `json:"role"`
}

// IssueToken signs a session token for the account, valid for ttl.
func IssueToken(secret string, user domain.SysUser, ttl time.Duration) (string, error) {
	claims := &SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.Email,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
		UserID: user.ID,
		Name:   user.Name,
		Role:   user.Role,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// CurrentSession returns the validated session claims, nil when the request
// did not pass the authentication gate.
func CurrentSession(c echo.Context) *SessionClaims {
	claims, _ := c.Get(sessionContextKey).(*SessionClaims)
	return claims
}

func limitFromConfig(cfg config.RateLimitClassConfig) ratelimit.Limit {
	return ratelimit.Limit{
		MaxRequests: cfg.MaxRequests,
		Window:      time.Duration(cfg.WindowSecs) * time.Second,
	}
}

// isIdentityPath matches the sign-in, registration and first-run setup
// machinery; those establish the credential everything else checks.
func isIdentityPath(path string) bool {
	return strings.HasPrefix(path, "/api/auth/") || path == "/api/setup"
}

func isMutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodPatch:
		return true
	}
	return false
}

// requiresAdmin marks the admin-only path groups plus mutating catalog
// requests.
func requiresAdmin(c echo.Context) bool {
	path := c.Request().URL.Path
	switch {
	case strings.HasPrefix(path, "/api/dashboard"),
		strings.HasPrefix(path, "/api/users"),
		strings.HasPrefix(path, "/api/admin"),
		strings.HasPrefix(path, "/api/upload"),
		strings.HasPrefix(path, "/api/sales"):
		return true
	case strings.HasPrefix(path, "/api/products") && isMutating(c.Request().Method):
		return true
	}
	return false
}

func requiresAuth(c echo.Context) bool {
	path := c.Request().URL.Path
	if isIdentityPath(path) {
		return false
	}
	return requiresAdmin(c) || strings.HasPrefix(path, "/api/profile")
}

// classify picks the rate limit class for a request path.
func classify(path string) string {
	switch {
	case isIdentityPath(path):
		return ratelimit.ClassAuth
	case strings.HasPrefix(path, "/api/upload"):
		return ratelimit.ClassUpload
	}
	return ratelimit.ClassDefault
}

// clientIP derives the limiter identity from proxy headers. Requests with no
// usable header all share the "unknown" bucket.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	if real := r.Header.Get("X-Real-IP"); real != "" {
		return real
	}
	return "unknown"
}

// sameOrigin reports whether the Origin header points back at this host.
func sameOrigin(origin string, r *http.Request) bool {
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return u.Host == r.Host
}

// corsFilter answers preflights and rejects disallowed cross-origin requests.
func (ws *WebServer) corsFilter(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := c.Request()
		origin := req.Header.Get("Origin")

		if req.Method == http.MethodOptions {
			for k, v := range ws.cors.Headers(origin) {
				c.Response().Header().Set(k, v)
			}
			return c.NoContent(http.StatusNoContent)
		}

		// Requests without an Origin header (same-origin navigation or
		// server-to-server) always pass this gate.
		if origin != "" {
			if !sameOrigin(origin, req) && !ws.cors.OriginAllowed(origin) {
				metrics.IncrCounter("api_cors_denied")
				return c.JSON(http.StatusForbidden, map[string]interface{}{
					"code": "CORS_DENIED",
					"error": "Origin not allowed",
				})
			}
			for k, v := range ws.cors.Headers(origin) {
				c.Response().Header().Set(k, v)
			}
		}
		return next(c)
	}
}

// rateLimitFilter applies the per class ceiling keyed by class:clientIP.
func (ws *WebServer) rateLimitFilter(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := c.Request()
		class := classify(req.URL.Path)
		limit := ws.limits[class]
		key := class + ":" + clientIP(req)

		metrics.IncrCounter("api_requests")

		res, err := ws.appCtx.Limiter().Allow(req.Context(), key, limit)
		if err != nil {
			// A broken limiter backend must not take the API down.
			zap.L().Warn("rate limit store error", zap.String("key", key), zap.Error(err))
			return next(c)
		}

		h := c.Response().Header()
		h.Set("X-RateLimit-Limit", strconv.Itoa(limit.MaxRequests))
		h.Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		h.Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetTime.Unix(), 10))

		if !res.Allowed {
			metrics.IncrCounter("api_ratelimited")
			h.Set("Retry-After", strconv.Itoa(res.RetryAfter))
			return c.JSON(http.StatusTooManyRequests, map[string]interface{}{
				"code":       "RATE_LIMITED",
				"error":      "Too many requests",
				"retryAfter": res.RetryAfter,
			})
		}
		return next(c)
	}
}

// authFilter validates the session token on protected paths. Identity routes
// and public reads are skipped.
func (ws *WebServer) authFilter() echo.MiddlewareFunc {
	secret := ws.appCtx.Config().Web.Secret
	return echojwt.WithConfig(echojwt.Config{
		Skipper: func(c echo.Context) bool {
			return !requiresAuth(c)
		},
		SigningKey:  []byte(secret),
		TokenLookup: "header:Authorization:Bearer ,cookie:" + SessionCookieName,
		NewClaimsFunc: func(c echo.Context) jwt.Claims {
			return new(SessionClaims)
		},
		ErrorHandler: func(c echo.Context, err error) error {
			return c.JSON(http.StatusUnauthorized, map[string]interface{}{
				"code": "UNAUTHORIZED",
				"error": "Authentication required",
			})
		},
	})
}

// roleFilter enforces the admin role claim on admin-only requests and exposes
// the session to handlers.
func (ws *WebServer) roleFilter(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if !requiresAuth(c) {
			return next(c)
		}

		token, ok := c.Get("user").(*jwt.Token)
		if !ok {
			return c.JSON(http.StatusUnauthorized, map[string]interface{}{
				"code": "UNAUTHORIZED",
				"error": "Authentication required",
			})
		}
		claims, ok := token.Claims.(*SessionClaims)
		if !ok {
			return c.JSON(http.StatusUnauthorized, map[string]interface{}{
				"code": "UNAUTHORIZED",
				"error": "Authentication required",
			})
		}

		if requiresAdmin(c) && claims.Role != domain.RoleAdmin {
			return c.JSON(http.StatusForbidden, map[string]interface{}{
				"code": "FORBIDDEN",
				"error": "Admin access required",
			})
		}

		c.Set(sessionContextKey, claims)
		return next(c)
	}
}

// securityHeaders stamps the baseline security headers on every response that
// passed the gates above.
func securityHeaders(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		h := c.Response().Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("X-XSS-Protection", "1; mode=block")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		return next(c)
	}
}

// pageGuard is the lightweight cookie presence check for dashboard pages.
// Browsers without a session cookie are sent to the login page with the
// intended destination in callbackUrl.
func (ws *WebServer) pageGuard(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if _, err := c.Cookie(SessionCookieName); err != nil {
			loginURL := "/auth/login?callbackUrl=" + url.QueryEscape(c.Request().URL.Path)
			return c.Redirect(http.StatusFound, loginURL)
		}
		return next(c)
	}
}
