// Package api provides the HTTP REST API for the document index.
//
// Endpoints:
//
//	POST   /api/documents               upload and index a document
//	GET    /api/documents               list documents
//	GET    /api/documents/{id}          document status
//	DELETE /api/documents/{id}          delete a document and its chunks
//	POST   /api/documents/{id}/resubmit re-index with fresh content
//	POST   /api/documents/{id}/cancel   abort a running ingestion
//	POST   /api/search                  hybrid search, optional context
//	GET    /api/stats                   corpus and pipeline counters
//	GET    /health                      liveness probe
//	GET    /ready                       readiness probe
//
// File structure:
//   - server.go: HTTP server setup and lifecycle
//   - middleware.go: HTTP middleware (request ID, logging, recovery)
//   - health.go: health check endpoints
//   - documents.go: document upload and lifecycle endpoints
//   - search.go: search and stats endpoints
//   - response.go: JSON response helpers
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	// DefaultAddr is the default address for the HTTP server.
	DefaultAddr = "127.0.0.1:3500"

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout = 10 * time.Second

	// ReadHeaderTimeout guards against slow-header connections.
	ReadHeaderTimeout = 10 * time.Second

	// ReadTimeout is the maximum duration for reading the entire request.
	// Uploads can be tens of megabytes, so this is generous.
	ReadTimeout = 120 * time.Second

	// WriteTimeout is the maximum duration for writing the response.
	WriteTimeout = 60 * time.Second

	// IdleTimeout bounds keep-alive connections between requests.
	IdleTimeout = 120 * time.Second
)

// Server is the HTTP server for the document index REST API.
type Server struct {
	mux    *http.ServeMux
	logger *slog.Logger

	health    *HealthHandler
	documents *DocumentsHandler
	search    *SearchHandler
}

// NewServer creates an HTTP server with all routes registered.
func NewServer(pool *pgxpool.Pool, documents *DocumentsHandler, search *SearchHandler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	mux := http.NewServeMux()

	s := &Server{
		mux:       mux,
		logger:    logger,
		health:    NewHealthHandler(pool, logger),
		documents: documents,
		search:    search,
	}

	s.health.RegisterRoutes(mux)
	s.documents.RegisterRoutes(mux)
	s.search.RegisterRoutes(mux)

	return s
}

// Handler returns the HTTP handler with middleware applied.
// Middleware order: recovery -> request ID -> logging -> handler.
func (s *Server) Handler() http.Handler {
	return chain(s.mux,
		recoveryMiddleware(s.logger),
		requestIDMiddleware,
		loggingMiddleware(s.logger))
}

// Run starts the HTTP server and blocks until the context is cancelled,
// then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	if addr == "" {
		addr = DefaultAddr
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: ReadHeaderTimeout,
		ReadTimeout:       ReadTimeout,
		WriteTimeout:      WriteTimeout,
		IdleTimeout:       IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
