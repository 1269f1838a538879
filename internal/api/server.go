package api

import (
	"context"
	"time"

	"github.com/gorilla/mux"
	"stealthcompany.com/glycorisk/internal/couchbase"
	"stealthcompany.com/glycorisk/internal/metrics"
	"stealthcompany.com/glycorisk/internal/patients"
	"stealthcompany.com/glycorisk/internal/risk"
)

// ReadinessChecker reports whether the patient store has finished loading.
// *couchbase.Client implements it.
type ReadinessChecker interface {
	GetIngestionStatus(ctx context.Context) (*couchbase.IngestionStatus, error)
}

// defaultMaxBodyBytes bounds POST /assessments bodies
const defaultMaxBodyBytes = 8 << 20

// Server serves risk assessments over HTTP
type Server struct {
	engine       *risk.Engine
	source       patients.Source
	readiness    ReadinessChecker
	clock        func() time.Time
	maxBodyBytes int64
}

// Option configures a Server
type Option func(*Server)

// WithReadiness makes /ready follow the ingestion status.
func WithReadiness(rc ReadinessChecker) Option {
	return func(s *Server) { s.readiness = rc }
}

// WithClock replaces time.Now as the evaluation instant when a request
// does not pin one.
func WithClock(clock func() time.Time) Option {
	return func(s *Server) { s.clock = clock }
}

// WithMaxBodyBytes overrides the request body limit of POST /assessments.
func WithMaxBodyBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxBodyBytes = n
		}
	}
}

// NewServer creates a server evaluating patients from source
func NewServer(engine *risk.Engine, source patients.Source, opts ...Option) *Server {
	s := &Server{
		engine:       engine,
		source:       source,
		clock:        time.Now,
		maxBodyBytes: defaultMaxBodyBytes,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Routes configures and returns the HTTP router
func (s *Server) Routes() *mux.Router {
	r := mux.NewRouter()

	r.Use(metrics.MetricsMiddleware)
	r.Use(requestLogger)

	r.HandleFunc("/health", s.healthHandler).Methods("GET")
	r.HandleFunc("/ready", s.readyHandler).Methods("GET")
	r.HandleFunc("/thresholds", s.thresholdsHandler).Methods("GET")

	r.HandleFunc("/patients/ranked", s.rankedHandler).Methods("GET")
	r.HandleFunc("/patients/{id}/assessment", s.assessmentHandler).Methods("GET")
	r.HandleFunc("/assessments", s.evaluatePostedHandler).Methods("POST")

	r.Handle("/metrics", metrics.Handler()).Methods("GET")

	return r
}
