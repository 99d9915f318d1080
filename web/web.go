// Package web serves the embedded frontend shell. The page presents only the
// task list; everything behind it arrives over the API at runtime.
package web

import (
	"embed"
	"fmt"
	"io/fs"
	"net/http"
	"path"
	"strings"
)

//go:embed static/*
var content embed.FS

// Handler returns an http.Handler serving the embedded assets. Unknown paths
// fall back to index.html so client-side routes survive a reload.
func Handler() (http.Handler, error) {
	fsys, err := fs.Sub(content, "static")
	if err != nil {
		return nil, fmt.Errorf("loading embedded web assets: %w", err)
	}

	indexBytes, err := fs.ReadFile(fsys, "index.html")
	if err != nil {
		return nil, fmt.Errorf("reading embedded index.html: %w", err)
	}

	static := http.FileServer(http.FS(fsys))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := strings.TrimPrefix(path.Clean(r.URL.Path), "/")
		if p != "" {
			if _, err := fs.Stat(fsys, p); err == nil {
				static.ServeHTTP(w, r)
				return
			}
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write(indexBytes)
	}), nil
}
