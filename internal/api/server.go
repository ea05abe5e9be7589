// Package api serves decision intake, tender and digest lookups, and
// calibration approval over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/tender-intel/internal/config"
	"github.com/sells-group/tender-intel/internal/feedback"
	"github.com/sells-group/tender-intel/internal/store"
)

// Approver decides calibration recommendations.
type Approver interface {
	Approve(ctx context.Context, id, approver string) (*feedback.ApprovalResult, error)
	Reject(ctx context.Context, id, approver string) error
}

// Server holds the handlers' dependencies.
type Server struct {
	store    store.Store
	approver Approver
	origins  []string
	now      func() time.Time
	log      *zap.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithClock overrides the wall clock used to stamp decisions.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// NewServer creates a Server.
func NewServer(st store.Store, approver Approver, cfg config.ServerConfig, opts ...Option) *Server {
	s := &Server{
		store:    st,
		approver: approver,
		origins:  cfg.AllowedOrigins,
		now:      time.Now,
		log:      zap.L().With(zap.String("component", "api")),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	origins := s.origins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "Authorization"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(api chi.Router) {
		api.Post("/decisions", s.createDecision)
		api.Get("/tenders/{id}", s.getTender)
		api.Get("/digests/latest", s.latestDigest)
		api.Route("/calibration/recommendations", func(rec chi.Router) {
			rec.Get("/", s.listRecommendations)
			rec.Post("/{id}/approve", s.approveRecommendation)
			rec.Post("/{id}/reject", s.rejectRecommendation)
		})
	})
	return r
}
