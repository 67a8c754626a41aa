package api

import (
	"errors"
	"io/fs"
	"mime"
	"net/http"
	"path"
	"strings"
)

const indexPage = "index.html"

func init() {
	// Set correct MIME types for module scripts and WASM regardless of the
	// host's mime database.
	_ = mime.AddExtensionType(".wasm", "application/wasm")
	_ = mime.AddExtensionType(".js", "text/javascript; charset=utf-8")
	_ = mime.AddExtensionType(".mjs", "text/javascript; charset=utf-8")
}

// staticHandler serves files under root with http.FileServer. The one
// exception is a direct request for .../index.html. FileServer would
// redirect that to the directory, but here it is served as the file itself.
type staticHandler struct {
	fs    http.FileSystem
	files http.Handler
}

func newStaticHandler(root string, listing bool) http.Handler {
	var fsys http.FileSystem = http.Dir(root)
	if !listing {
		fsys = noListingFS{fsys}
	}
	return &staticHandler{
		fs:    fsys,
		files: http.FileServer(fsys),
	}
}

func (h *staticHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if strings.HasSuffix(r.URL.Path, "/"+indexPage) && h.serveIndexFile(w, r) {
		return
	}
	h.files.ServeHTTP(w, r)
}

// serveIndexFile reports whether it wrote a response. Directories named
// index.html are left to FileServer.
func (h *staticHandler) serveIndexFile(w http.ResponseWriter, r *http.Request) bool {
	name := path.Clean("/" + r.URL.Path)
	f, err := h.fs.Open(name)
	if err != nil {
		msg, code := toHTTPError(err)
		http.Error(w, msg, code)
		return true
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		msg, code := toHTTPError(err)
		http.Error(w, msg, code)
		return true
	}
	if info.IsDir() {
		return false
	}

	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
	return true
}

// toHTTPError mirrors the status mapping net/http uses for FileServer
func toHTTPError(err error) (string, int) {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return "404 page not found", http.StatusNotFound
	case errors.Is(err, fs.ErrPermission):
		return "403 Forbidden", http.StatusForbidden
	}
	return "500 Internal Server Error", http.StatusInternalServerError
}

// noListingFS hides directories that have no index.html, so FileServer
// answers 404 instead of rendering a listing.
type noListingFS struct {
	http.FileSystem
}

func (n noListingFS) Open(name string) (http.File, error) {
	f, err := n.FileSystem.Open(name)
	if err != nil {
		return nil, err
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if !info.IsDir() {
		return f, nil
	}

	index, err := n.FileSystem.Open(path.Join(name, indexPage))
	if err != nil {
		f.Close()
		return nil, fs.ErrNotExist
	}
	index.Close()
	return f, nil
}
