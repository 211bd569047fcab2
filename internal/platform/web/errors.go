package web

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/qct/dashboard/internal/platform/auth"
)

// ErrorHandler answers API-shaped requests with {"error": message} and page
// requests with the "error" template. Internal details of 5xx errors are
// logged, never sent.
func ErrorHandler(renderer *Renderer, logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		code := http.StatusInternalServerError
		msg := http.StatusText(code)
		var he *echo.HTTPError
		if errors.As(err, &he) {
			code = he.Code
			if code < http.StatusInternalServerError {
				if s, ok := he.Message.(string); ok {
					msg = s
				} else {
					msg = http.StatusText(code)
				}
			} else {
				msg = http.StatusText(code)
			}
		}
		if code >= http.StatusInternalServerError {
			logger.Error().Err(err).
				Str("method", c.Request().Method).
				Str("path", c.Request().URL.Path).
				Msg("request failed")
		}

		var werr error
		switch {
		case c.Request().Method == http.MethodHead:
			werr = c.NoContent(code)
		case auth.IsAPIRequest(c.Request()) || renderer == nil || !renderer.Has("error"):
			werr = c.JSON(code, map[string]string{"error": msg})
		default:
			p := NewPage(c, http.StatusText(code), "", map[string]interface{}{"Code": code, "Message": msg})
			werr = c.Render(code, "error", p)
		}
		if werr != nil {
			logger.Error().Err(werr).Msg("write error response")
		}
	}
}
