package api

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"business-forecasting-engine/forecast"
	"business-forecasting-engine/monitoring"
)

// ModelStore is the registry surface the server depends on.
type ModelStore interface {
	Ping(ctx context.Context) error
	Put(ctx context.Context, model *forecast.FittedModel) error
	Get(ctx context.Context, id string) (*forecast.FittedModel, error)
	Summary(ctx context.Context, id string) (forecast.ModelSummary, error)
	List(ctx context.Context) ([]forecast.ModelSummary, error)
	Delete(ctx context.Context, id string) error
}

// Options configure the serving surface. The zero value disables auth and
// rate limiting.
type Options struct {
	// SecretKey enables JWT bearer auth on /api/v1 when non-empty.
	SecretKey string
	// TokenTTL bounds issued token lifetime; zero takes the default.
	TokenTTL time.Duration
	// RateLimit is the per-client request rate on /api/v1 in requests per
	// second; zero or negative disables limiting.
	RateLimit float64
	// RateBurst is the token bucket size; zero derives it from RateLimit.
	RateBurst int
}

// Server exposes the forecasting engine over HTTP.
type Server struct {
	router  *mux.Router
	handler http.Handler
	store   ModelStore
	logger  *logrus.Logger
	metrics *monitoring.Metrics
	auth    *Authenticator
	limiter *clientLimiter
	started time.Time
}

// NewServer creates the API server. The store may be nil, in which case
// fitted models are returned but not retained and model lookups report the
// registry as unavailable.
func NewServer(store ModelStore, metrics *monitoring.Metrics, logger *logrus.Logger, opts Options) *Server {
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	if metrics == nil {
		metrics = monitoring.New(nil)
	}

	s := &Server{
		router:  mux.NewRouter(),
		store:   store,
		logger:  logger,
		metrics: metrics,
		auth:    NewAuthenticator(opts.SecretKey, opts.TokenTTL),
		started: time.Now(),
	}
	if opts.RateLimit > 0 {
		s.limiter = newClientLimiter(opts.RateLimit, opts.RateBurst)
	}

	s.setupRoutes()
	s.handler = s.instrument(s.router)
	return s
}

// Authenticator exposes the token issuer so operators can mint tokens for
// clients of a secured deployment.
func (s *Server) Authenticator() *Authenticator { return s.auth }

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Add CORS headers
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

	// Handle preflight requests
	if r.Method == "OPTIONS" {
		w.WriteHeader(http.StatusOK)
		return
	}

	s.handler.ServeHTTP(w, r)
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.Use(s.ratelimit, s.auth.Middleware)

	// Forecasting endpoints
	api.HandleFunc("/forecast/fit", s.fitModel).Methods("POST")
	api.HandleFunc("/forecast/{id}/predict", s.predict).Methods("POST")
	api.HandleFunc("/forecast/cross-validate", s.crossValidate).Methods("POST")

	// Model registry endpoints
	api.HandleFunc("/models", s.listModels).Methods("GET")
	api.HandleFunc("/models/{id}", s.getModel).Methods("GET")
	api.HandleFunc("/models/{id}", s.deleteModel).Methods("DELETE")

	// Health and telemetry
	s.router.HandleFunc("/health", s.healthCheck).Methods("GET")
	s.router.HandleFunc("/health/detailed", s.detailedHealth).Methods("GET")
	s.router.Handle("/metrics", s.metrics.HTTPHandler()).Methods("GET")

	// Root endpoint
	s.router.HandleFunc("/", s.rootHandler).Methods("GET")
}
