package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/nvellon/sidedrop/internal/api"
	"github.com/nvellon/sidedrop/internal/artifact"
	"github.com/nvellon/sidedrop/internal/config"
	"github.com/nvellon/sidedrop/internal/server"
	"github.com/nvellon/sidedrop/internal/stats"
)

type stringSliceFlag []string

func (s *stringSliceFlag) String() string {
	return strings.Join(*s, ",")
}

func (s *stringSliceFlag) Set(value string) error {
	*s = append(*s, strings.Split(value, ",")...)
	return nil
}

var (
	addr           string
	publicDir      string
	vaultDir       string
	allowedOrigins stringSliceFlag
)

func main() {
	flag.StringVar(&addr, "addr", "localhost:8000", "server address")
	flag.StringVar(&publicDir, "public-dir", "data/public", "directory for publicly servable files")
	flag.StringVar(&vaultDir, "vault-dir", "data/vault", "directory for restricted files")
	flag.Var(&allowedOrigins, "allowed-origins", "comma-separated list of allowed origins for CORS")
	flag.Parse()

	logger := log.New(os.Stderr, "[sidedrop] ", log.LstdFlags)

	cfg, err := config.NewConfig(addr, publicDir, vaultDir, allowedOrigins)
	if err != nil {
		logger.Fatal("config:", err)
	}

	store, err := artifact.NewStore(cfg.PublicDir, cfg.VaultDir, logger)
	if err != nil {
		logger.Fatal("store:", err)
	}

	mux := http.NewServeMux()

	statsUpdater := stats.NewStatsUpdater(mux)

	registry := artifact.NewRegistry(store, statsUpdater, logger)
	defer registry.Close()

	relayServer, err := server.NewRelayServer(logger, registry, statsUpdater)
	if err != nil {
		logger.Fatal("new relay server:", err)
	}

	srv := api.NewSidedropApp(mux, logger, relayServer, registry, statsUpdater, cfg)

	statsUpdater.Run()
	defer statsUpdater.Stop()

	go relayServer.Run()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		logger.Printf("received signal: %s\n", sig)
	case err := <-errCh:
		logger.Println("server:", err)
	}

	shutDownCtx, cancel := context.WithTimeout(
		context.Background(),
		10*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutDownCtx); err != nil {
		logger.Fatalln("HTTP server shutdown:", err)
	}

	logger.Println("shutting down relay server...")
	if err := relayServer.Shutdown(shutDownCtx); err != nil {
		logger.Fatalln("relay server shutdown:", err)
	}

	logger.Println("shutdown complete")
}
