// Package webui serves the embedded caption playground.
package webui

import (
	"embed"
	"io/fs"
	"net/http"

	"github.com/labstack/echo/v5"
)

// Prefix is the URL path the playground is mounted under.
const Prefix = "/ui"

//go:embed static/*
var staticFS embed.FS

// StaticFS returns an http.FileSystem for the embedded static files.
func StaticFS() http.FileSystem {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		// the embed path is fixed at build time
		panic(err)
	}
	return http.FS(sub)
}

// Register mounts the playground under Prefix and redirects / to it.
func Register(e *echo.Echo) {
	files := http.StripPrefix(Prefix, http.FileServer(StaticFS()))
	serve := func(c *echo.Context) error {
		files.ServeHTTP(c.Response(), c.Request())
		return nil
	}
	e.GET(Prefix+"/*", serve)
	e.GET(Prefix, func(c *echo.Context) error {
		return c.Redirect(http.StatusMovedPermanently, Prefix+"/")
	})
	e.GET("/", func(c *echo.Context) error {
		return c.Redirect(http.StatusFound, Prefix+"/")
	})
}
