// Package server exposes the extraction engine and title lookups over HTTP
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/lonelymovie/lonelymovie/internal/browser"
	"github.com/lonelymovie/lonelymovie/internal/extract"
	"github.com/lonelymovie/lonelymovie/internal/models"
	"github.com/lonelymovie/lonelymovie/internal/sources"
	"github.com/lonelymovie/lonelymovie/internal/tracking"
	"github.com/lonelymovie/lonelymovie/internal/util"
)

// Extractor runs one extraction. *extract.Engine implements it.
type Extractor interface {
	Extract(ctx context.Context, req extract.Request) (extract.Outcome, error)
}

// Titles answers title searches. *movie.Service implements it.
type Titles interface {
	Search(ctx context.Context, query string, limit int) []models.TitleCandidate
	Autocomplete(ctx context.Context, query string, limit int) []models.Suggestion
	Lookup(ctx context.Context, imdbID string) models.TitleCandidate
}

// Health lists per-source outcome history. *tracking.Ledger implements it.
type Health interface {
	All(ctx context.Context) ([]tracking.SourceHealth, error)
}

// Server routes the public API
type Server struct {
	engine         Extractor
	registry       *sources.Registry
	titles         Titles
	health         Health
	metrics        http.Handler
	poolStats      func() browser.Stats
	staticDir      string
	requestTimeout time.Duration
	retryAfter     time.Duration
	router         *mux.Router
}

// Option configures a Server
type Option func(*Server)

func WithTitles(t Titles) Option { return func(s *Server) { s.titles = t } }

func WithHealth(h Health) Option { return func(s *Server) { s.health = h } }

func WithMetrics(h http.Handler) Option { return func(s *Server) { s.metrics = h } }

func WithPoolStats(fn func() browser.Stats) Option { return func(s *Server) { s.poolStats = fn } }

// WithStaticDir serves a single page app from dir
func WithStaticDir(dir string) Option { return func(s *Server) { s.staticDir = dir } }

// WithRequestTimeout bounds each extraction request
func WithRequestTimeout(d time.Duration) Option { return func(s *Server) { s.requestTimeout = d } }

// WithRetryAfter is the hint sent with 503 responses
func WithRetryAfter(d time.Duration) Option { return func(s *Server) { s.retryAfter = d } }

// New builds the router
func New(engine Extractor, registry *sources.Registry, opts ...Option) *Server {
	s := &Server{
		engine:         engine,
		registry:       registry,
		requestTimeout: 45 * time.Second,
		retryAfter:     5 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.StrictSlash(false)

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("", s.handleIndex).Methods(http.MethodGet)
	api.HandleFunc("/", s.handleIndex).Methods(http.MethodGet)
	api.HandleFunc("/extract-stream/{titleId}", s.handleExtractStream).Methods(http.MethodGet)
	api.HandleFunc("/search/{query}", s.handleSearch).Methods(http.MethodGet)
	api.HandleFunc("/autocomplete/{query}", s.handleAutocomplete).Methods(http.MethodGet)
	api.HandleFunc("/imdb/{imdbId}", s.handleIMDb).Methods(http.MethodGet)
	api.HandleFunc("/sources", s.handleSources).Methods(http.MethodGet)
	api.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "API endpoint not found")
	})

	if s.metrics != nil {
		r.Handle("/metrics", s.metrics).Methods(http.MethodGet)
	}
	if s.staticDir != "" {
		s.mountStatic(r)
	}
	return r
}

// Handler returns the router wrapped in recovery, logging and CORS
func (s *Server) Handler() http.Handler {
	return recoverer(logRequests(cors(s.router)))
}

// ListenAndServe serves until ctx ends, then shuts down gracefully
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      s.requestTimeout + 15*time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		util.Info("Server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	util.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
