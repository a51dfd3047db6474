// Package static embeds the admin panel frontend so the server ships
// as a single binary.
package static

import (
	"embed"
	"io/fs"
	"net/http"
)

//go:embed web/*
var content embed.FS

// FileSystem returns an http.FileSystem for the embedded assets with
// the "web" prefix stripped.
func FileSystem() http.FileSystem {
	fsys, err := fs.Sub(content, "web")
	if err != nil {
		panic(err)
	}
	return http.FS(fsys)
}

// Handler serves the embedded assets.
func Handler() http.Handler {
	return http.FileServer(FileSystem())
}
