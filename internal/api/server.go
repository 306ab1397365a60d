// Package api serves the render pipeline over HTTP.
//
// Routes:
//
//	POST /api/render      multipart "files" (+ optional "config" JSON) → SVGs + manifest
//	POST /api/layers      same upload → manifest only, nothing is rendered
//	GET  /api/extensions  effective extension policy
//	GET  /api/renders     recent render history (?limit=n)
//	GET  /healthz         liveness
//
// Uploaded files are spooled by the multipart reader and removed when the
// handler returns, on success and failure alike.
package api

import (
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/stentech/gerberstack/internal/config"
	"github.com/stentech/gerberstack/pkg/history"
	"github.com/stentech/gerberstack/pkg/pipeline"
)

// multipartMemory is the part of an upload kept in memory; the rest is
// spooled to temporary files.
const multipartMemory = 8 << 20

// Server handles API requests. It is safe for concurrent use.
type Server struct {
	runner  *pipeline.Runner
	history history.Store
	opts    pipeline.Options
	cfg     config.ServerConfig
	logger  *log.Logger
}

// New creates a server. store may be nil when history is disabled.
func New(runner *pipeline.Runner, store history.Store, cfg config.Config, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	if store == nil {
		store = history.Null{}
	}
	return &Server{
		runner:  runner,
		history: store,
		opts:    cfg.PipelineOptions(),
		cfg:     cfg.Server,
		logger:  logger,
	}
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Accept"},
		MaxAge:         600,
	}))

	r.Get("/healthz", s.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Post("/render", s.handleRender)
		r.Post("/layers", s.handleLayers)
		r.Get("/extensions", s.handleExtensions)
		r.Get("/renders", s.handleRenders)
	})
	return r
}

// HTTPServer returns an http.Server for addr with the configured timeouts.
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       s.cfg.ReadTimeout,
		WriteTimeout:      s.cfg.WriteTimeout,
	}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", requestID(r))
	})
}

func requestID(r *http.Request) string {
	return middleware.GetReqID(r.Context())
}
