package webserver

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// The page surface is a thin shell; the real UI is a separate client
// application that talks to /api.

func indexPage(c echo.Context) error {
	return c.HTML(http.StatusOK,
		`<html><body><h1>Citadel</h1><p><a href="/dashboard">Dashboard</a></p></body></html>`)
}

func loginPage(c echo.Context) error {
	return c.HTML(http.StatusOK,
		`<html><body><h1>Sign in</h1><p>POST /api/auth/login</p></body></html>`)
}

func dashboardPage(c echo.Context) error {
	return c.HTML(http.StatusOK,
		`<html><body><h1>Dashboard</h1><p>See GET /api/dashboard</p></body></html>`)
}
