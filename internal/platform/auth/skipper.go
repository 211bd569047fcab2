package auth

import (
	"strings"

	"github.com/labstack/echo/v4"
)

// publicPaths bypass the session gate: the login flow itself and the
// infrastructure probes.
var publicPaths = map[string]bool{
	"/login":    true,
	"/logout":   true,
	"/_healthz": true,
	"/_readyz":  true,
}

var publicPrefixes = []string{
	"/static/",
}

// NewSkipper returns a gate skipper for the public paths plus any extra
// exact paths, such as the metrics endpoint.
func NewSkipper(extra ...string) func(echo.Context) bool {
	paths := make(map[string]bool, len(publicPaths)+len(extra))
	for p := range publicPaths {
		paths[p] = true
	}
	for _, p := range extra {
		if p != "" {
			paths[p] = true
		}
	}

	return func(c echo.Context) bool {
		return isPublic(paths, c.Request().URL.Path)
	}
}

// IsPublicPath reports whether path bypasses the session gate.
func IsPublicPath(path string) bool {
	return isPublic(publicPaths, path)
}

func isPublic(paths map[string]bool, path string) bool {
	if paths[path] {
		return true
	}
	for _, prefix := range publicPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}
