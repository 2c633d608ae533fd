// Package api exposes the valuation pipeline over HTTP.
package api

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"treasury-valuation/internal/domain"
	"treasury-valuation/internal/observability"
	"treasury-valuation/internal/pipeline"
	"treasury-valuation/internal/storage"
)

// ReportRunner runs one valuation query; satisfied by *pipeline.Runner.
type ReportRunner interface {
	Run(ctx context.Context, query domain.StakeQuery) (*pipeline.Result, error)
}

// Server handles the HTTP API.
type Server struct {
	runner ReportRunner
	store  storage.ValuationRecordStore
	logger *log.Logger
}

// NewServer creates an API server. store may be nil; the records listing
// endpoint then reports that persistence is disabled.
func NewServer(runner ReportRunner, store storage.ValuationRecordStore, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	return &Server{runner: runner, store: store, logger: logger}
}

// Routes builds the router.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(5 * time.Minute))

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", observability.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/reports", s.handleCreateReport)
		r.Get("/records", s.handleListRecords)
	})

	return r
}
