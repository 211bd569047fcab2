package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestSkipper_PublicPaths(t *testing.T) {
	skip := NewSkipper("/internal/metrics")
	publicPaths := []string{
		"/login",
		"/logout",
		"/_healthz",
		"/_readyz",
		"/internal/metrics",
		"/static/css/app.css",
	}

	for _, path := range publicPaths {
		t.Run(path, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(http.MethodGet, path, nil)
			c := e.NewContext(req, httptest.NewRecorder())

			if !skip(c) {
				t.Errorf("expected skipper to return true for %s", path)
			}
		})
	}
}

func TestSkipper_ProtectedPaths(t *testing.T) {
	skip := NewSkipper("/metrics")
	protectedPaths := []string{
		"/",
		"/api/overview",
		"/studies",
		"/studies/api",
		"/studies/123",
		"/followups",
		"/ingestion/api",
		"/images/a.png",
		"/login/extra",
		"/static",
	}

	for _, path := range protectedPaths {
		t.Run(path, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(http.MethodGet, path, nil)
			c := e.NewContext(req, httptest.NewRecorder())

			if skip(c) {
				t.Errorf("expected skipper to return false for %s", path)
			}
		})
	}
}

func TestIsPublicPath(t *testing.T) {
	if !IsPublicPath("/_healthz") {
		t.Error("expected /_healthz to be public")
	}
	if IsPublicPath("/metrics") {
		t.Error("metrics path is only public when passed to NewSkipper")
	}
	if IsPublicPath("/studies") {
		t.Error("expected /studies to be protected")
	}
}
