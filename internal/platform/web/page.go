package web

import (
	"github.com/labstack/echo/v4"

	"github.com/qct/dashboard/internal/platform/auth"
)

// Page is the data every template receives. Data carries the page-specific
// view.
type Page struct {
	Title   string
	Nav     string
	User    *auth.Session
	Palette map[string]string
	Data    interface{}
	Error   string
}

// NewPage builds a Page for the current request, picking up the session set
// by the auth gate.
func NewPage(c echo.Context, title, nav string, data interface{}) Page {
	p := Page{Title: title, Nav: nav, Palette: Palette(), Data: data}
	if sess, ok := auth.SessionFromContext(c.Request().Context()); ok {
		p.User = &sess
	}
	return p
}
