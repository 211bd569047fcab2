package middleware

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// RequestIDHeader is the default header used to carry the request id.
const RequestIDHeader = "X-Request-ID"

// RequestID reuses an inbound request id from header, or generates a UUID,
// stores it under "request_id" and echoes it on the response. An empty
// header falls back to RequestIDHeader.
func RequestID(header ...string) echo.MiddlewareFunc {
	name := RequestIDHeader
	if len(header) > 0 && header[0] != "" {
		name = header[0]
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			rid := c.Request().Header.Get(name)
			if rid == "" || len(rid) > 128 {
				rid = uuid.New().String()
			}
			c.Set("request_id", rid)
			c.Response().Header().Set(name, rid)
			return next(c)
		}
	}
}
