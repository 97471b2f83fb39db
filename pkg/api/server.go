package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/platinummonkey/authgate/pkg/httputil"
	"github.com/platinummonkey/authgate/pkg/observability"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// DefaultMaxBodyBytes caps request bodies
const DefaultMaxBodyBytes = 1 << 20

// RouteRegistrar is implemented by handler groups
type RouteRegistrar interface {
	RegisterRoutes(router *mux.Router)
}

// Server is the public HTTP API
type Server struct {
	router       *mux.Router
	handler      http.Handler
	logger       *logrus.Logger
	metrics      *observability.Metrics
	corsOrigins  []string
	maxBodyBytes int64
	tracing      bool
}

// ServerOption configures a Server
type ServerOption func(*Server)

// WithMetrics records per-route HTTP metrics
func WithMetrics(m *observability.Metrics) ServerOption {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithCORSOrigins sets the origins allowed to call the API from a browser
func WithCORSOrigins(origins []string) ServerOption {
	return func(s *Server) {
		s.corsOrigins = origins
	}
}

// WithMaxBodyBytes overrides the request body limit
func WithMaxBodyBytes(n int64) ServerOption {
	return func(s *Server) {
		if n > 0 {
			s.maxBodyBytes = n
		}
	}
}

// WithTracing wraps the router with otelhttp server spans
func WithTracing(enabled bool) ServerOption {
	return func(s *Server) {
		s.tracing = enabled
	}
}

// NewServer builds the router and middleware stack around service
func NewServer(service AuthService, logger *logrus.Logger, opts ...ServerOption) *Server {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	s := &Server{
		router:       mux.NewRouter(),
		logger:       logger,
		maxBodyBytes: DefaultMaxBodyBytes,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.metrics != nil {
		s.router.Use(observability.HTTPMetricsMiddleware(s.metrics))
	}
	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteNotFound(w, "Not found")
	})
	s.RegisterRoutes(NewAuthHandlers(service))

	var handler http.Handler = httputil.Chain(
		httputil.RequestIDMiddleware(logger),
		httputil.RecoveryMiddleware,
		httputil.LoggingMiddleware,
		httputil.CORSMiddleware(s.corsOrigins),
		httputil.MaxBytesMiddleware(s.maxBodyBytes),
	)(s.router)

	if s.tracing {
		handler = otelhttp.NewHandler(handler, "authgate.http")
	}
	s.handler = handler
	return s
}

// RegisterRoutes adds a handler group to the router
func (s *Server) RegisterRoutes(registrar RouteRegistrar) {
	registrar.RegisterRoutes(s.router)
}

// Router exposes the underlying router
func (s *Server) Router() *mux.Router {
	return s.router
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}
