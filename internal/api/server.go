package api

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/selivandex/price-tracker/internal/health"
	"github.com/selivandex/price-tracker/pkg/logger"
	"github.com/selivandex/price-tracker/pkg/models"
)

// Updater triggers one ingestion run
type Updater interface {
	RunUpdate(ctx context.Context) models.UpdateResult
}

// Projector serves derived price views
type Projector interface {
	GetLatestPrices(ctx context.Context) ([]models.LatestPrice, error)
	GetHistory(ctx context.Context, symbol string, days int) ([]models.HistoryPoint, error)
}

// Server exposes the tracker over HTTP
type Server struct {
	server    *http.Server
	updater   Updater
	projector Projector
	health    *health.Checker
}

// NewServer creates new API server
func NewServer(port string, updater Updater, projector Projector, checker *health.Checker) *Server {
	s := &Server{
		updater:   updater,
		projector: projector,
		health:    checker,
	}

	s.server = &http.Server{
		Addr:         ":" + port,
		Handler:      s.routes(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 60 * time.Second, // update runs include outbound retries
		IdleTimeout:  120 * time.Second,
	}

	return s
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start starts the API server
func (s *Server) Start() error {
	logger.Info("api server starting",
		zap.String("addr", s.server.Addr),
	)

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}

	return nil
}

// Stop gracefully stops the server
func (s *Server) Stop(ctx context.Context) error {
	logger.Info("stopping api server...")
	return s.server.Shutdown(ctx)
}
