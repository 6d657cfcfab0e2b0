// Package httpserver exposes the omnifs registry and dispatcher over a
// JSON HTTP API.
//
// Routes:
//
//	GET    /livez                         liveness
//	GET    /v1/backends                   list backends
//	POST   /v1/backends                   register a backend
//	GET    /v1/backends/stats             registry statistics
//	POST   /v1/backends/health            probe all backends
//	GET    /v1/backends/{name}            one backend's descriptor and status
//	DELETE /v1/backends/{name}            unregister (?force=true)
//	POST   /v1/backends/{name}/default    make the backend the default
//	POST   /v1/backends/{name}/health     probe one backend
//	GET    /v1/files/entries              list a directory
//	GET    /v1/files/content              read a file (streamed)
//	PUT    /v1/files/content              write a file from the request body
//	DELETE /v1/files/content              delete a file
//	GET    /v1/files/stat                 file metadata
//	GET    /v1/files/exists               existence check
//	POST   /v1/files/mkdir                create a directory
//	POST   /v1/files/rename               rename within a backend
//	POST   /v1/files/copy                 copy, optionally recursive and
//	                                      across backends
//
// File routes select the target with ?backend= (or a JSON field); an empty
// backend means the registry default.
package httpserver

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/grokify/mogo/log/slogutil"

	"github.com/omnifs/omnifs"
)

// Server serves the omnifs HTTP API.
type Server struct {
	disp   *omnifs.Dispatcher
	logger *slog.Logger
	router chi.Router
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server's structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates an HTTP API server over disp.
func New(disp *omnifs.Dispatcher, opts ...Option) *Server {
	s := &Server{
		disp:   disp,
		logger: slogutil.Null(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.router = s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)
	r.Use(compressResponses)

	r.Get("/livez", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Route("/backends", func(r chi.Router) {
			r.Get("/", s.handleListBackends)
			r.Post("/", s.handleRegisterBackend)
			r.Get("/stats", s.handleStats)
			r.Post("/health", s.handleCheckAllHealth)
			r.Route("/{name}", func(r chi.Router) {
				r.Get("/", s.handleGetBackend)
				r.Delete("/", s.handleUnregisterBackend)
				r.Post("/default", s.handleSetDefault)
				r.Post("/health", s.handleCheckHealth)
			})
		})

		r.Route("/files", func(r chi.Router) {
			r.Get("/entries", s.handleList)
			r.Get("/content", s.handleRead)
			r.Put("/content", s.handleWrite)
			r.Delete("/content", s.handleDelete)
			r.Get("/stat", s.handleStat)
			r.Get("/exists", s.handleExists)
			r.Post("/mkdir", s.handleMkdir)
			r.Post("/rename", s.handleRename)
			r.Post("/copy", s.handleCopy)
		})
	})

	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.Duration("duration", time.Since(start)),
		)
	})
}

// registerRequest is the POST /v1/backends body.
type registerRequest struct {
	Name               string `json:"name"`
	URL                string `json:"url"`
	Description        string `json:"description,omitempty"`
	Default            bool   `json:"default,omitempty"`
	ReadOnly           bool   `json:"readonly,omitempty"`
	TimeoutSeconds     int    `json:"timeout_seconds,omitempty"`
	RetryAttempts      int    `json:"retry_attempts,omitempty"`
	ValidateConnection *bool  `json:"validate_connection,omitempty"`
}

func (s *Server) handleRegisterBackend(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}

	desc := omnifs.Descriptor{
		Name:          req.Name,
		URL:           req.URL,
		Description:   req.Description,
		ReadOnly:      req.ReadOnly,
		Timeout:       time.Duration(req.TimeoutSeconds) * time.Second,
		RetryAttempts: req.RetryAttempts,
	}

	var opts []omnifs.RegisterOption
	if req.Default {
		opts = append(opts, omnifs.SetAsDefault())
	}
	if req.ValidateConnection != nil && !*req.ValidateConnection {
		opts = append(opts, omnifs.SkipValidation())
	}

	if err := s.disp.Registry().Register(r.Context(), desc, opts...); err != nil {
		writeError(w, err)
		return
	}

	info, err := s.disp.Registry().Lookup(req.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, info)
}

func (s *Server) handleListBackends(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"backends": s.disp.Registry().ListAll(),
		"default":  s.disp.Registry().DefaultName(),
	})
}

func (s *Server) handleGetBackend(w http.ResponseWriter, r *http.Request) {
	info, err := s.disp.Registry().Lookup(chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleUnregisterBackend(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	force := r.URL.Query().Get("force") == "true"

	if err := s.disp.Registry().Unregister(name, force); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"unregistered": name})
}

func (s *Server) handleSetDefault(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := s.disp.Registry().SetDefault(name); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"default": name})
}

func (s *Server) handleCheckAllHealth(w http.ResponseWriter, r *http.Request) {
	s.checkHealth(w, r, "")
}

func (s *Server) handleCheckHealth(w http.ResponseWriter, r *http.Request) {
	s.checkHealth(w, r, chi.URLParam(r, "name"))
}

func (s *Server) checkHealth(w http.ResponseWriter, r *http.Request, name string) {
	results, err := s.disp.Registry().CheckHealth(r.Context(), name)
	if err != nil {
		writeError(w, err)
		return
	}

	type probeResult struct {
		omnifs.HealthResult
		Error string `json:"error,omitempty"`
	}

	out := make([]probeResult, 0, len(results))
	for _, res := range results {
		pr := probeResult{HealthResult: res}
		if res.Err != nil {
			pr.Error = res.Err.Error()
		}
		out = append(out, pr)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Backend < out[j].Backend })

	writeJSON(w, http.StatusOK, map[string]any{"results": out})
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.disp.Registry().Stats())
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	path := pathParam(r)
	entries, err := s.disp.List(r.Context(), path, r.URL.Query().Get("backend"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"path":    path,
		"entries": entries,
	})
}

func (s *Server) handleRead(w http.ResponseWriter, r *http.Request) {
	rc, err := s.disp.NewReader(r.Context(), pathParam(r), r.URL.Query().Get("backend"))
	if err != nil {
		writeError(w, err)
		return
	}
	defer func() { _ = rc.Close() }()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		s.logger.Warn("streaming response failed", slog.Any("error", err))
	}
}

func (s *Server) handleWrite(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "reading request body: "+err.Error())
		return
	}

	path := pathParam(r)
	if err := s.disp.Write(r.Context(), path, data, r.URL.Query().Get("backend")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"path": path, "bytes": len(data)})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	path := pathParam(r)
	if err := s.disp.Delete(r.Context(), path, r.URL.Query().Get("backend")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"deleted": path})
}

func (s *Server) handleStat(w http.ResponseWriter, r *http.Request) {
	entry, err := s.disp.Stat(r.Context(), pathParam(r), r.URL.Query().Get("backend"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (s *Server) handleExists(w http.ResponseWriter, r *http.Request) {
	path := pathParam(r)
	ok, err := s.disp.Exists(r.Context(), path, r.URL.Query().Get("backend"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"path": path, "exists": ok})
}

func (s *Server) handleMkdir(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Path    string `json:"path"`
		Backend string `json:"backend,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}

	if err := s.disp.Mkdir(r.Context(), req.Path, req.Backend); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"created": req.Path})
}

func (s *Server) handleRename(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Src     string `json:"src"`
		Dst     string `json:"dst"`
		Backend string `json:"backend,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}

	if err := s.disp.Rename(r.Context(), req.Src, req.Dst, req.Backend); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"src": req.Src, "dst": req.Dst})
}

func (s *Server) handleCopy(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Src        string `json:"src"`
		Dst        string `json:"dst"`
		SrcBackend string `json:"src_backend,omitempty"`
		DstBackend string `json:"dst_backend,omitempty"`
		Recursive  bool   `json:"recursive,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}

	if req.Recursive {
		result, err := s.disp.CopyTree(r.Context(), req.Src, req.Dst, req.SrcBackend, req.DstBackend)
		if err != nil {
			writeError(w, err)
			return
		}

		type entryFailure struct {
			Path  string `json:"path"`
			Op    string `json:"op"`
			Error string `json:"error"`
		}
		failed := make([]entryFailure, 0, len(result.Failed))
		for _, f := range result.Failed {
			failed = append(failed, entryFailure{Path: f.Path, Op: f.Op, Error: f.Err.Error()})
		}

		status := http.StatusOK
		if !result.Success() {
			// Partial success is reported, not hidden behind an error status.
			status = http.StatusMultiStatus
		}
		writeJSON(w, status, map[string]any{
			"copied":      result.Copied,
			"failed":      failed,
			"duration_ms": result.Duration.Milliseconds(),
			"success":     result.Success(),
		})
		return
	}

	if err := s.disp.Copy(r.Context(), req.Src, req.Dst, req.SrcBackend, req.DstBackend); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"src": req.Src, "dst": req.Dst})
}

// pathParam returns the ?path= query parameter, defaulting to the root.
func pathParam(r *http.Request) string {
	if p := r.URL.Query().Get("path"); p != "" {
		return p
	}
	return "/"
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps omnifs errors to HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, omnifs.ErrInvalidName),
		errors.Is(err, omnifs.ErrInvalidURL),
		errors.Is(err, omnifs.ErrInvalidPath):
		status = http.StatusBadRequest
	case errors.Is(err, omnifs.ErrNameConflict),
		errors.Is(err, omnifs.ErrDefaultBackendInUse):
		status = http.StatusConflict
	case errors.Is(err, omnifs.ErrNotFound),
		errors.Is(err, omnifs.ErrPathNotFound),
		errors.Is(err, omnifs.ErrNoDefaultBackend):
		status = http.StatusNotFound
	case errors.Is(err, omnifs.ErrReadOnly),
		errors.Is(err, omnifs.ErrPermissionDenied):
		status = http.StatusForbidden
	case errors.Is(err, omnifs.ErrNotSupported):
		status = http.StatusNotImplemented
	case errors.Is(err, omnifs.ErrConnection):
		status = http.StatusBadGateway
	}
	writeErrorMessage(w, status, err.Error())
}

func writeErrorMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
