package account

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/qct/dashboard/internal/platform/auth"
	"github.com/qct/dashboard/internal/platform/web"
)

const loginFailedMessage = "Invalid username or password."

type Handler struct {
	svc    *Service
	codec  *auth.SessionCodec
	cookie auth.CookieConfig
	logger zerolog.Logger
}

func NewHandler(svc *Service, codec *auth.SessionCodec, cookie auth.CookieConfig, logger zerolog.Logger) *Handler {
	return &Handler{svc: svc, codec: codec, cookie: cookie, logger: logger}
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/login", h.LoginPage)
	e.POST("/login", h.Login)
	e.GET("/logout", h.Logout)
}

type loginView struct {
	Username string
	Next     string
}

func (h *Handler) render(c echo.Context, code int, view loginView, msg string) error {
	p := web.NewPage(c, "Sign in", "", view)
	p.Error = msg
	return c.Render(code, "login", p)
}

func (h *Handler) LoginPage(c echo.Context) error {
	return h.render(c, http.StatusOK, loginView{Next: auth.SafeNext(c.QueryParam("next"))}, "")
}

// Login re-renders the form with 401 on bad credentials and redirects to the
// requested page on success.
func (h *Handler) Login(c echo.Context) error {
	username := strings.TrimSpace(c.FormValue("username"))
	password := c.FormValue("password")
	next := auth.SafeNext(c.FormValue("next"))

	sess, err := h.svc.Login(c.Request().Context(), username, password)
	if err != nil {
		if IsInvalidCredentials(err) {
			return h.render(c, http.StatusUnauthorized, loginView{Username: username, Next: next}, loginFailedMessage)
		}
		return err
	}

	token, err := h.codec.Encode(sess)
	if err != nil {
		return err
	}
	auth.SetSessionCookie(c, h.cookie, token)
	return c.Redirect(http.StatusSeeOther, next)
}

// Logout revokes the current session token, if any, and clears the cookie.
func (h *Handler) Logout(c echo.Context) error {
	if cookie, err := c.Cookie(h.cookie.Name); err == nil {
		if sess, err := h.codec.Decode(cookie.Value); err == nil {
			h.codec.Revoke(sess)
			h.logger.Info().Str("username", sess.Username).Msg("session revoked")
		}
	}
	auth.ClearSessionCookie(c, h.cookie)
	return c.Redirect(http.StatusFound, "/login")
}
