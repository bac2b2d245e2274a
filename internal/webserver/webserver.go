// Package webserver hosts the admin REST API behind the edge request filter:
// path classification, CORS, rate limiting, authentication and role checks run
// before any handler.
package webserver

import (
	"fmt"
	"io"
	"net/http"

	"github.com/go-playground/validator/v10"
	jsoniter "github.com/json-iterator/go"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/citadelhq/citadel/internal/app"
	"github.com/citadelhq/citadel/internal/ratelimit"
)

var server *WebServer

type WebServer struct {
	appCtx app.AppContext
	root   *echo.Echo
	api    *echo.Group
	cors   *CorsPolicy
	limits map[string]ratelimit.Limit
}

// Init builds the package server instance around the application context.
func Init(appCtx app.AppContext) *WebServer {
	server = New(appCtx)
	return server
}

// Instance returns the package server instance.
func Instance() *WebServer {
	return server
}

func New(appCtx app.AppContext) *WebServer {
	cfg := appCtx.Config()

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.JSONSerializer = jsonIterSerializer{}
	e.Validator = &payloadValidator{validate: validator.New()}
	e.HTTPErrorHandler = errorHandler

	ws := &WebServer{
		appCtx: appCtx,
		root:   e,
		cors:   NewCorsPolicy(cfg.Web),
		limits: map[string]ratelimit.Limit{
			ratelimit.ClassAuth:    limitFromConfig(cfg.RateLimit.Auth),
			ratelimit.ClassUpload:  limitFromConfig(cfg.RateLimit.Upload),
			ratelimit.ClassDefault: limitFromConfig(cfg.RateLimit.Default),
		},
	}

	// Page surface: dashboard pages are gated by a session cookie presence
	// check, everything else passes through.
	e.GET("/", indexPage)
	e.GET("/auth/login", loginPage)
	e.GET("/dashboard*", dashboardPage, ws.pageGuard)

	// API surface with the full filter chain, evaluated in order.
	api := e.Group("/api")
	api.Use(ws.bindContext)
	api.Use(ws.corsFilter)
	api.Use(ws.rateLimitFilter)
	api.Use(ws.authFilter())
	api.Use(ws.roleFilter)
	api.Use(securityHeaders)
	ws.api = api

	return ws
}

// Echo exposes the router for tests.
func (ws *WebServer) Echo() *echo.Echo {
	return ws.root
}

// AppCtx exposes the application context bound to this server.
func (ws *WebServer) AppCtx() app.AppContext {
	return ws.appCtx
}

// Listen starts the admin server and blocks.
func Listen() error {
	cfg := server.appCtx.Config()
	addr := fmt.Sprintf("%s:%d", cfg.Web.Host, cfg.Web.Port)
	zap.S().Infof("admin server listening on %s", addr)
	return server.root.Start(addr)
}

// Shutdown stops the admin server.
func Shutdown() error {
	if server == nil {
		return nil
	}
	return server.root.Close()
}

// Route registry used by the API handler packages.

func ApiGET(path string, h echo.HandlerFunc) {
	server.api.GET(path, h)
}

func ApiPOST(path string, h echo.HandlerFunc) {
	server.api.POST(path, h)
}

func ApiPUT(path string, h echo.HandlerFunc) {
	server.api.PUT(path, h)
}

func ApiDELETE(path string, h echo.HandlerFunc) {
	server.api.DELETE(path, h)
}

// jsonIterSerializer swaps encoding/json for json-iterator on the wire.
type jsonIterSerializer struct{}

func (jsonIterSerializer) Serialize(c echo.Context, i interface{}, indent string) error {
	enc := jsoniter.NewEncoder(c.Response())
	if indent != "" {
		enc.SetIndent("", indent)
	}
	return enc.Encode(i)
}

func (jsonIterSerializer) Deserialize(c echo.Context, i interface{}) error {
	err := jsoniter.NewDecoder(c.Request().Body).Decode(i)
	if err == io.EOF {
		return echo.NewHTTPError(http.StatusBadRequest, "Request body is empty").SetInternal(err)
	}
	return err
}

type payloadValidator struct {
	validate *validator.Validate
}

func (v *payloadValidator) Validate(i interface{}) error {
	return v.validate.Struct(i)
}

// errorHandler maps unhandled errors to the JSON envelope without leaking
// internals.
func errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	code := http.StatusInternalServerError
	msg := "Internal server error"
	if he, ok := err.(*echo.HTTPError); ok {
		code = he.Code
		if s, ok := he.Message.(string); ok {
			msg = s
		}
	}
	if code == http.StatusInternalServerError {
		zap.L().Error("request failed",
			zap.String("path", c.Path()),
			zap.Error(err))
		msg = "Internal server error"
	}
	_ = c.JSON(code, map[string]interface{}{"code": "ERROR", "error": msg})
}

// AppContextKey locates the application context in the echo context.
const AppContextKey = "appctx"

// bindContext exposes the application context to handlers.
func (ws *WebServer) bindContext(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		c.Set(AppContextKey, ws.appCtx)
		return next(c)
	}
}
