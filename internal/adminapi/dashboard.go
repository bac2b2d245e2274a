package adminapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/citadelhq/citadel/internal/analytics"
	"github.com/citadelhq/citadel/internal/webserver"
)

func registerDashboardRoutes() {
	webserver.ApiGET("/dashboard", dashboardSummary)
}

// dashboardSummary computes the aggregated dashboard view. The role filter has
// already established the caller as admin; the scope binds that decision to
// the aggregation call.
func dashboardSummary(c echo.Context) error {
	session := webserver.CurrentSession(c)
	if session == nil {
		return fail(c, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required", nil)
	}

	scope := analytics.AdminScope(session.UserID)
	summary, err := analytics.NewAggregator(GetDB(c)).Summary(c.Request().Context(), scope)
	if err != nil {
		zap.L().Error("dashboard aggregation failed", zap.Error(err))
		return fail(c, http.StatusInternalServerError, "DASHBOARD_ERROR", "Failed to fetch dashboard data", nil)
	}
	return ok(c, summary)
}
