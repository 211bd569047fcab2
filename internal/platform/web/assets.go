package web

import (
	"embed"
	"io/fs"
)

//go:embed templates/*.html static/*
var assets embed.FS

// Templates returns the embedded page templates.
func Templates() fs.FS {
	sub, _ := fs.Sub(assets, "templates")
	return sub
}

// Static returns the embedded CSS and JavaScript served under /static.
func Static() fs.FS {
	sub, _ := fs.Sub(assets, "static")
	return sub
}
