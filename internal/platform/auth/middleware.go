package auth

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/labstack/echo/v4"
)

type contextKey string

const (
	SessionKey contextKey = "session"
	UserIDKey  contextKey = "user_id"
)

// GateConfig configures RequireSession.
type GateConfig struct {
	Codec     *SessionCodec
	Cookie    CookieConfig
	LoginPath string
	// Skipper returns true for requests that do not need a session.
	Skipper func(echo.Context) bool
}

// RequireSession rejects requests without a valid session cookie. API-shaped
// requests get 401; page requests are redirected to the login page with the
// original path in ?next=. A valid session is stored on the request context
// and on the echo context under "session".
func RequireSession(cfg GateConfig) echo.MiddlewareFunc {
	loginPath := cfg.LoginPath
	if loginPath == "" {
		loginPath = "/login"
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if cfg.Skipper != nil && cfg.Skipper(c) {
				return next(c)
			}

			var token string
			if cookie, err := c.Cookie(cfg.Cookie.Name); err == nil {
				token = cookie.Value
			}

			sess, err := cfg.Codec.Decode(token)
			if err != nil {
				if token != "" {
					ClearSessionCookie(c, cfg.Cookie)
				}
				if IsAPIRequest(c.Request()) {
					return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
				}
				return c.Redirect(http.StatusFound, LoginRedirect(loginPath, c.Request().URL.RequestURI()))
			}

			c.Set(string(SessionKey), sess)
			c.SetRequest(c.Request().WithContext(WithSession(c.Request().Context(), sess)))
			return next(c)
		}
	}
}

// IsAPIRequest reports whether r expects JSON: its path is under /api/ or
// ends in /api, or it accepts application/json.
func IsAPIRequest(r *http.Request) bool {
	path := r.URL.Path
	if strings.HasPrefix(path, "/api/") || strings.HasSuffix(path, "/api") {
		return true
	}
	return strings.Contains(r.Header.Get(echo.HeaderAccept), echo.MIMEApplicationJSON)
}

// LoginRedirect builds the login URL carrying next.
func LoginRedirect(loginPath, next string) string {
	if next == "" || next == loginPath {
		return loginPath
	}
	return loginPath + "?" + url.Values{"next": {next}}.Encode()
}

// SafeNext returns next when it is a same-site absolute path and "/"
// otherwise, so the login form cannot be used as an open redirect.
func SafeNext(next string) string {
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return "/"
	}
	u, err := url.Parse(next)
	if err != nil || u.IsAbs() || u.Host != "" {
		return "/"
	}
	return next
}

// WithSession stores sess on ctx.
func WithSession(ctx context.Context, sess Session) context.Context {
	ctx = context.WithValue(ctx, SessionKey, sess)
	ctx = context.WithValue(ctx, UserIDKey, sess.UserID)
	return ctx
}

// SessionFromContext returns the session stored by RequireSession.
func SessionFromContext(ctx context.Context) (Session, bool) {
	sess, ok := ctx.Value(SessionKey).(Session)
	return sess, ok
}

func UserIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(UserIDKey).(string)
	return v
}
