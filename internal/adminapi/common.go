// Package adminapi implements the REST handlers behind the edge filter.
package adminapi

import (
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/citadelhq/citadel/internal/app"
	"github.com/citadelhq/citadel/internal/webserver"
)

// InitRouter registers all API routes on the package webserver.
func InitRouter() {
	registerAuthRoutes()
	registerUserRoutes()
	registerProductRoutes()
	registerSaleRoutes()
	registerDashboardRoutes()
	registerUploadRoutes()
}

// GetApp returns the application context bound by the webserver.
func GetApp(c echo.Context) app.AppContext {
	return c.Get(webserver.AppContextKey).(app.AppContext)
}

// GetDB returns the database handle for the request.
func GetDB(c echo.Context) *gorm.DB {
	return GetApp(c).DB().WithContext(c.Request().Context())
}

// audit records the operator action asynchronously.
func audit(c echo.Context, action, desc string) {
	oprName := "anonymous"
	if session := webserver.CurrentSession(c); session != nil {
		oprName = session.Subject
	}
	GetApp(c).Audit(oprName, c.RealIP(), action, desc)
}

func ok(c echo.Context, data interface{}) error {
	return c.JSON(http.StatusOK, data)
}

func created(c echo.Context, data interface{}) error {
	return c.JSON(http.StatusCreated, data)
}

func fail(c echo.Context, status int, code, msg string, details interface{}) error {
	body := map[string]interface{}{
		"code":  code,
		"error": msg,
	}
	if details != nil {
		body["details"] = details
	}
	return c.JSON(status, body)
}

type pagination struct {
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
	Total int64 `json:"total"`
	Pages int64 `json:"pages"`
}

func paged(c echo.Context, items interface{}, total int64, page, pageSize int) error {
	pages := total / int64(pageSize)
	if total%int64(pageSize) != 0 {
		pages++
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"items": items,
		"pagination": pagination{
			Page:  page,
			Limit: pageSize,
			Total: total,
			Pages: pages,
		},
	})
}

func parsePagination(c echo.Context) (page, pageSize int) {
	page = 1
	if p, err := strconv.Atoi(c.QueryParam("page")); err == nil && p > 0 {
		page = p
	}
	pageSize = 10
	if ps, err := strconv.Atoi(c.QueryParam("limit")); err == nil && ps > 0 && ps <= 500 {
		pageSize = ps
	}
	return page, pageSize
}

func parseIDParam(c echo.Context, name string) (int64, error) {
	return strconv.ParseInt(c.Param(name), 10, 64)
}

// handleValidationError maps validator failures to a field list the client
// can render.
func handleValidationError(c echo.Context, err error) error {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Validation failed", nil)
	}
	details := make([]map[string]string, 0, len(verrs))
	for _, fe := range verrs {
		details = append(details, map[string]string{
			"field": fe.Field(),
			"rule":  fe.Tag(),
		})
	}
	return fail(c, http.StatusBadRequest, "VALIDATION_FAILED", "Please check the following fields and try again", details)
}
