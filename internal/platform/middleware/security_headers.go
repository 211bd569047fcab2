package middleware

import (
	"strings"

	"github.com/labstack/echo/v4"
)

// ContentSecurityPolicy allows the dashboard's own scripts, styles and
// images and nothing else.
const ContentSecurityPolicy = "default-src 'self'; img-src 'self' data:; style-src 'self'; script-src 'self'; object-src 'none'; frame-ancestors 'none'; form-action 'self'"

// SecurityHeaders sets response headers for pages and JSON that may carry
// patient data. Static assets under staticPrefix stay cacheable; everything
// else is no-store. hsts adds Strict-Transport-Security and should only be
// enabled when the dashboard is served over TLS.
func SecurityHeaders(staticPrefix string, hsts bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()

			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("X-XSS-Protection", "0")
			h.Set("Content-Security-Policy", ContentSecurityPolicy)
			h.Set("Referrer-Policy", "same-origin")
			h.Set("Permissions-Policy", "camera=(), microphone=(), geolocation=()")
			if hsts {
				h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
			}

			if staticPrefix == "" || !strings.HasPrefix(c.Request().URL.Path, staticPrefix) {
				h.Set("Cache-Control", "no-store")
			}

			return next(c)
		}
	}
}
