package olympus

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/minos-eval/minos/pkg/hermes"
	"github.com/minos-eval/minos/pkg/ingest"
)

// ServerOptions tunes the API surface.
type ServerOptions struct {
	APIKey         string
	RateLimit      float64
	RateBurst      int
	MaxUploadBytes int64
}

// Server exposes the evaluation engine over HTTP.
type Server struct {
	router  *mux.Router
	manager *Manager
	loader  *ingest.Loader
	limiter *ClientLimiter
	logger  hermes.Logger
	opts    ServerOptions
}

// NewServer wires the routes. loader needs a store for the dataset report endpoint;
// metrics may be nil to omit /metrics.
func NewServer(manager *Manager, loader *ingest.Loader, metrics http.Handler, opts ServerOptions, logger hermes.Logger) *Server {
	if logger == nil {
		logger = hermes.NewNoopLogger()
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 32 << 20
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = 5
	}
	if opts.RateBurst <= 0 {
		opts.RateBurst = 10
	}

	s := &Server{
		router:  mux.NewRouter(),
		manager: manager,
		loader:  loader,
		limiter: NewClientLimiter(opts.RateLimit, opts.RateBurst),
		logger:  logger,
		opts:    opts,
	}
	s.routes(metrics)
	return s
}

func (s *Server) routes(metrics http.Handler) {
	s.router.Use(RequestIDMiddleware)
	s.router.Use(AccessLogMiddleware(s.logger))

	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	if metrics != nil {
		s.router.Handle("/metrics", metrics).Methods(http.MethodGet)
	}

	api := s.router.PathPrefix("/").Subrouter()
	api.Use(AuthMiddleware(s.opts.APIKey, s.logger))
	api.Use(RateLimitMiddleware(s.limiter))

	api.HandleFunc("/evaluate", s.handleEvaluate).Methods(http.MethodPost)
	api.HandleFunc("/evaluate/upload", s.handleUpload).Methods(http.MethodPost)
	api.HandleFunc("/datasets/{prefix:.+}/report", s.handleDatasetReport).Methods(http.MethodGet)

	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "not found", RequestID: hermes.RequestID(r.Context())})
	})
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.router }

// Close releases the rate limiter.
func (s *Server) Close() error { return s.limiter.Close() }
