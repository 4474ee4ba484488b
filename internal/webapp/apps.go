package webapp

import (
	"embed"
	"io/fs"
	"mime"
	"net/http"
	"path"
	"strings"
)

//go:embed assets
var assetFS embed.FS

// appsServlet serves the static web applications below /app. The page of an
// application is served for any non-asset path, so /app/cockpit/{engine}/
// loads the cockpit of that engine.
type appsServlet struct {
	files fs.FS
}

func newAppsServlet() *appsServlet {
	sub, err := fs.Sub(assetFS, "assets")
	if err != nil {
		panic(err)
	}
	return &appsServlet{files: sub}
}

func (s *appsServlet) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	rest := strings.Trim(r.URL.Path, "/")
	app, _, _ := strings.Cut(rest, "/")
	if app == "" || strings.Contains(app, ".") {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	name := "index.html"
	if base := path.Base(rest); strings.Contains(base, ".") {
		name = base
	}
	data, err := fs.ReadFile(s.files, app+"/"+name)
	if err != nil {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	ctype := mime.TypeByExtension(path.Ext(name))
	if ctype == "" {
		ctype = "application/octet-stream"
	}
	w.Header().Set("Content-Type", ctype)
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodGet {
		_, _ = w.Write(data)
	}
}
