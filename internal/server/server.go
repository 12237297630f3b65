package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/voyagen/epgsync/internal/config"
	"github.com/voyagen/epgsync/internal/logging"
	"github.com/voyagen/epgsync/internal/service"
)

// Server holds dependencies for the HTTP API.
type Server struct {
	svc    *service.Service
	rec    *service.Reconciler
	runner *service.Runner
	cfg    *config.Config
	logger *zap.Logger
	mux    *http.ServeMux
}

// New creates a Server and registers routes.
func New(svc *service.Service, rec *service.Reconciler, runner *service.Runner, cfg *config.Config, logger *zap.Logger) *Server {
	srv := &Server{
		svc:    svc,
		rec:    rec,
		runner: runner,
		cfg:    cfg,
		logger: logging.Component(logger, "http"),
		mux:    http.NewServeMux(),
	}
	srv.routes()
	return srv
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /api/health", s.handleHealth)

	// Channels
	s.mux.HandleFunc("GET /api/channels", s.handleListChannels)
	s.mux.HandleFunc("POST /api/channels", s.handleCreateChannel)
	s.mux.HandleFunc("GET /api/channels/{id}", s.handleGetChannel)
	s.mux.HandleFunc("PATCH /api/channels/{id}", s.handleUpdateChannel)
	s.mux.HandleFunc("DELETE /api/channels/{id}", s.handleDeleteChannel)
	s.mux.HandleFunc("PUT /api/channels/{id}/epg", s.handleSetChannelEPG)
	s.mux.HandleFunc("PATCH /api/channels/{id}/protection", s.handleSetChannelProtection)

	// Playlists
	s.mux.HandleFunc("POST /api/playlists/import", s.handleImportPlaylist)
	s.mux.HandleFunc("GET /api/playlist.m3u", s.handleExportPlaylist)

	// EPG sources
	s.mux.HandleFunc("GET /api/epg/sources", s.handleListEPGSources)
	s.mux.HandleFunc("POST /api/epg/sources", s.handleCreateEPGSource)
	s.mux.HandleFunc("PATCH /api/epg/sources/{id}", s.handleUpdateEPGSource)
	s.mux.HandleFunc("DELETE /api/epg/sources/{id}", s.handleDeleteEPGSource)
	s.mux.HandleFunc("POST /api/epg/sources/{id}/refresh", s.handleRefreshEPGSource)
	s.mux.HandleFunc("POST /api/epg/refresh", s.handleRefreshCatalog)

	// Catalog
	s.mux.HandleFunc("GET /api/epg/channels", s.handleListCatalog)
	s.mux.HandleFunc("GET /api/epg/channels/suggest", s.handleSuggestEPG)

	// Pattern mappings
	s.mux.HandleFunc("GET /api/epg/mappings", s.handleListMappings)
	s.mux.HandleFunc("POST /api/epg/mappings", s.handleCreateMapping)
	s.mux.HandleFunc("DELETE /api/epg/mappings/{id}", s.handleDeleteMapping)
	s.mux.HandleFunc("POST /api/epg/mappings/preview", s.handlePreviewMapping)

	// Reconciliation
	s.mux.HandleFunc("POST /api/epg/update-channels", s.handleUpdateChannels)
	s.mux.HandleFunc("POST /api/epg/auto-scan", s.handleAutoScan)
	s.mux.HandleFunc("GET /api/epg/runs/{id}", s.handleGetRun)

	// Docs
	s.mux.HandleFunc("GET /api/docs", handleSwaggerUI)
	s.mux.HandleFunc("GET /api/docs/openapi.yaml", handleOpenAPISpec)
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Handler returns the routes wrapped in the CORS and request logging middleware.
func (s *Server) Handler() http.Handler {
	return withCORS(withLogging(s.logger, s))
}

// ListenAndServe starts the HTTP server on the configured port.
// It blocks until the server is shut down or ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	addr := ":" + s.cfg.ServerPort
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown on context cancellation.
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("server shutdown", zap.Error(err))
		}
	}()

	s.logger.Info("listening", zap.String("addr", addr))
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("ListenAndServe: %w", err)
	}
	return nil
}

type healthResponse struct {
	Status      string `json:"status"`
	PassRunning bool   `json:"pass_running"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok"}
	if s.rec != nil {
		resp.PassRunning = s.rec.Running(r.Context())
	}
	s.writeJSON(w, http.StatusOK, resp)
}
