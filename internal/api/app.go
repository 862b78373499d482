package api

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/nvellon/sidedrop/internal/artifact"
	"github.com/nvellon/sidedrop/internal/config"
	"github.com/nvellon/sidedrop/internal/server"
	"github.com/nvellon/sidedrop/internal/stats"
	"github.com/teris-io/shortid"
)

type SidedropApp struct {
	log            *log.Logger
	rs             *server.RelayServer
	artifacts      *artifact.Registry
	mux            *http.Server
	stats          stats.StatsProvider
	publicDir      string
	allowedOrigins []string

	generateSessionId func() (string, error)
}

func NewSidedropApp(mux *http.ServeMux, logger *log.Logger, rs *server.RelayServer, reg *artifact.Registry, sp stats.StatsProvider, cfg *config.Config) *SidedropApp {
	s := &SidedropApp{
		log:               logger,
		rs:                rs,
		artifacts:         reg,
		stats:             sp,
		publicDir:         cfg.PublicDir,
		allowedOrigins:    cfg.AllowedOrigins,
		generateSessionId: shortid.Generate,
	}

	mux.HandleFunc("GET /ws", s.serveWs)
	mux.HandleFunc("POST /api/upload", s.upload)
	mux.HandleFunc("POST /api/unlock", s.unlock)
	mux.HandleFunc("GET /api/resolve", s.resolve)
	mux.HandleFunc("GET /api/artifacts/owner", s.ownerDownload)
	mux.HandleFunc("GET /api/artifacts/peer", s.peerDownload)
	mux.HandleFunc("GET /api/events", s.poll)
	mux.HandleFunc("GET /api/stream", s.stream)
	mux.HandleFunc("GET /files/{name}", s.publicFile)

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept"}),
		handlers.AllowCredentials(),
	)(mux)

	h = s.errorHandler(h)

	srv := &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: h,
	}

	s.mux = srv
	return s
}

func (s *SidedropApp) Start() error {
	s.log.Printf("starting server on %s\n", s.mux.Addr)
	return s.mux.ListenAndServe()
}

func (s *SidedropApp) Shutdown(ctx context.Context) error {
	s.log.Println("shutting down HTTP server...")
	if err := s.mux.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}
