// Package api provides the HTTP server and handlers.
package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/ransxd/web-download-server/internal/archive"
	"github.com/ransxd/web-download-server/internal/listing"
	"github.com/ransxd/web-download-server/internal/logging"
	"github.com/ransxd/web-download-server/internal/metrics"
	"github.com/ransxd/web-download-server/internal/storage/local"
	"github.com/ransxd/web-download-server/internal/tree"
)

// PageTitle is the heading of every listing page.
const PageTitle = "File Download Server"

// Server is the HTTP server.
type Server struct {
	root     *local.Root
	scanner  *tree.Scanner
	packager *archive.Packager
	renderer *listing.Renderer
	files    http.Handler
	version  string
}

// NewServer creates a new server.
func NewServer(
	root *local.Root,
	scanner *tree.Scanner,
	packager *archive.Packager,
	renderer *listing.Renderer,
	version string,
) *Server {
	return &Server{
		root:     root,
		scanner:  scanner,
		packager: packager,
		renderer: renderer,
		files:    http.FileServer(http.Dir(root.Path())),
		version:  version,
	}
}

// Handler returns the public HTTP handler with logging and metrics middleware.
func (s *Server) Handler() http.Handler {
	return logging.Middleware(metrics.Middleware(s.routeOf)(http.HandlerFunc(s.route)))
}

// AdminHandler serves Prometheus metrics, the health probe and the runtime
// log level.
func (s *Server) AdminHandler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("/loglevel", logging.LevelHandler())
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok", "version": s.version})
}

// route dispatches folder downloads by prefix; everything else is static.
func (s *Server) route(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		s.sendError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	if strings.HasPrefix(r.URL.Path, listing.ZipPrefix) {
		s.handleFolderZip(w, r, zipTarget(r))
		return
	}
	s.handleStatic(w, r)
}

func (s *Server) routeOf(r *http.Request) string {
	switch {
	case strings.HasPrefix(r.URL.Path, listing.ZipPrefix):
		return metrics.RouteZip
	case strings.HasSuffix(r.URL.Path, "/"):
		return metrics.RouteListing
	default:
		return metrics.RouteFile
	}
}

// zipTarget returns the still-escaped folder path after the zip prefix.
func zipTarget(r *http.Request) string {
	if escaped := r.URL.EscapedPath(); strings.HasPrefix(escaped, listing.ZipPrefix) {
		return strings.TrimPrefix(escaped, listing.ZipPrefix)
	}
	return listing.EscapePath(strings.TrimPrefix(r.URL.Path, listing.ZipPrefix))
}

func (s *Server) handleFolderZip(w http.ResponseWriter, r *http.Request, raw string) {
	logger := logging.WithContext(r.Context())

	dir, err := archive.ResolveFolder(s.root, raw)
	if err != nil {
		code, msg, status := zipErrorStatus(err)
		logger.Info("folder download rejected", zap.String("folder", raw), zap.Error(err))
		metrics.RecordZipArchive(status, 0, 0, 0)
		s.sendError(w, code, msg)
		return
	}

	logger.Info("packaging folder", zap.String("dir", dir))
	buf, stats, err := s.packager.Build(r.Context(), dir)
	if err != nil {
		logger.Error("packaging folder failed", zap.String("dir", dir), zap.Error(err))
		metrics.RecordZipArchive("error", 0, 0, 0)
		s.sendError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	name := archive.ArchiveName(dir) + ".zip"
	h := w.Header()
	h.Set("Content-Type", "application/zip")
	h.Set("Content-Disposition", contentDisposition(name))
	h.Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)

	metrics.RecordZipArchive("success", stats.Bytes, stats.Entries, stats.Duration)
	if r.Method == http.MethodHead {
		return
	}
	if _, err := buf.WriteTo(w); err != nil {
		logger.Warn("sending archive failed", zap.String("archive", name), zap.Error(err))
		return
	}
	logger.Info("folder archive sent",
		zap.String("archive", name),
		zap.Int("entries", stats.Entries),
		zap.Int64("bytes", stats.Bytes),
		zap.Duration("build", stats.Duration))
}

func zipErrorStatus(err error) (code int, msg, status string) {
	switch {
	case errors.Is(err, archive.ErrNotFound):
		return http.StatusNotFound, "Folder not found", "not_found"
	case errors.Is(err, archive.ErrNotDirectory):
		return http.StatusBadRequest, "Not a directory", "bad_request"
	case errors.Is(err, archive.ErrBadRequest):
		return http.StatusBadRequest, "Bad request", "bad_request"
	case errors.Is(err, archive.ErrForbidden):
		return http.StatusForbidden, "Forbidden", "forbidden"
	default:
		return http.StatusInternalServerError, "Internal server error", "error"
	}
}

// handleStatic serves files through http.FileServer and directories as
// listing pages, unless the directory has its own index.html.
func (s *Server) handleStatic(w http.ResponseWriter, r *http.Request) {
	upath := r.URL.Path
	if !strings.HasPrefix(upath, "/") {
		upath = "/" + upath
	}
	full, err := s.root.Join(filepath.FromSlash(path.Clean(upath)))
	if err != nil {
		s.sendError(w, http.StatusNotFound, "File not found")
		return
	}
	info, err := os.Stat(full)
	if err != nil {
		s.sendError(w, http.StatusNotFound, "File not found")
		return
	}

	if info.IsDir() {
		if !strings.HasSuffix(r.URL.Path, "/") {
			target := (&url.URL{Path: r.URL.Path + "/"}).EscapedPath()
			if r.URL.RawQuery != "" {
				target += "?" + r.URL.RawQuery
			}
			http.Redirect(w, r, target, http.StatusMovedPermanently)
			return
		}
		if index, err := os.Stat(filepath.Join(full, "index.html")); err == nil && index.Mode().IsRegular() {
			s.serveFile(w, r)
			return
		}
		s.handleListing(w, r, full)
		return
	}
	s.serveFile(w, r)
}

// serveFile hands the request to http.FileServer with range requests
// disabled, so every download is a full 200 response.
func (s *Server) serveFile(w http.ResponseWriter, r *http.Request) {
	r = r.Clone(r.Context())
	r.Header.Del("Range")
	r.Header.Del("If-Range")
	s.files.ServeHTTP(w, r)
}

func (s *Server) handleListing(w http.ResponseWriter, r *http.Request, dir string) {
	logger := logging.WithContext(r.Context())

	t, err := s.scanner.Scan(dir)
	if err != nil {
		logger.Warn("listing directory failed", zap.String("dir", dir), zap.Error(err))
		s.sendError(w, http.StatusNotFound, "No permission to access this directory")
		return
	}
	metrics.RecordListing(t.Count())

	var buf bytes.Buffer
	err = s.renderer.Render(&buf, listing.Page{
		Title: PageTitle,
		Root:  s.root.Path(),
		Tree:  t,
	})
	if err != nil {
		logger.Error("rendering listing failed", zap.String("dir", dir), zap.Error(err))
		s.sendError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	buf.WriteTo(w)
}

func (s *Server) sendError(w http.ResponseWriter, code int, message string) {
	http.Error(w, message, code)
}
