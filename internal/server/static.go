package server

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gorilla/mux"
)

// mountStatic serves built frontend assets and falls back to index.html so
// client-side routes survive a reload.
func (s *Server) mountStatic(r *mux.Router) {
	index := filepath.Join(s.staticDir, "index.html")
	assets := http.StripPrefix("/assets/", http.FileServer(http.Dir(filepath.Join(s.staticDir, "assets"))))
	r.PathPrefix("/assets/").Handler(assets).Methods(http.MethodGet, http.MethodHead)

	r.PathPrefix("/").HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if strings.HasPrefix(req.URL.Path, "/api/") {
			writeError(w, http.StatusNotFound, "API endpoint not found")
			return
		}
		// real files at the root (favicon, manifest) are served as is
		if name := filepath.Clean(strings.TrimPrefix(req.URL.Path, "/")); name != "." && !strings.HasPrefix(name, "..") {
			path := filepath.Join(s.staticDir, name)
			if fi, err := os.Stat(path); err == nil && !fi.IsDir() {
				http.ServeFile(w, req, path)
				return
			}
		}
		http.ServeFile(w, req, index)
	}).Methods(http.MethodGet, http.MethodHead)
}
