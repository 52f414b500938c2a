package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"collab-dashboard/internal/auth"
	"collab-dashboard/internal/config"
	"collab-dashboard/internal/db"
	"collab-dashboard/internal/document"
	"collab-dashboard/internal/export"
	"collab-dashboard/internal/hub"
	"collab-dashboard/internal/relay"
	"collab-dashboard/internal/server"

	"github.com/spf13/cobra"
)

var (
	serveAddr string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the document service",
	Long: `Start the HTTP and WebSocket service. The document is stored in Postgres
when DATABASE_URL is set and in a JSON file otherwise. Setting REDIS_URL relays
edits between service instances.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, logger, err := loadServeConfig()
		if err != nil {
			fatal("Error loading config", err)
		}
		slog.SetDefault(logger)
		if err := serve(cfg, logger); err != nil {
			fatal("Error running server", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (overrides API_ADDR)")
}

// loadServeConfig reads the layered config and builds the logger from its
// log_level, so the YAML file and LOG_LEVEL both apply.
func loadServeConfig() (config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, nil, err
	}
	if serveAddr != "" {
		cfg.Addr = serveAddr
	}
	return cfg, newLogger(cfg.LogLevel), nil
}

func serve(cfg config.Config, logger *slog.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var checks []server.Option

	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()
	if database, ok := store.(*db.Database); ok {
		checks = append(checks, server.WithHealthCheck("postgres", database))
	}

	doc, err := document.Seed(ctx, store, logger)
	if err != nil {
		return err
	}

	authenticator := auth.New(cfg.JWTSecret, 0)
	opts := []hub.Option{
		hub.WithLogger(logger),
		hub.WithAuth(authenticator, cfg.RequireToken),
	}
	if strings.TrimSpace(cfg.RedisURL) != "" {
		r, err := relay.NewRedis(cfg.RedisURL, cfg.RelayChannel, logger)
		if err != nil {
			return err
		}
		defer r.Close()
		logger.Info("relaying edits over redis", "channel", cfg.RelayChannel, "origin", r.Origin())
		opts = append(opts, hub.WithRelay(r))
		checks = append(checks, server.WithHealthCheck("redis", r))
	}

	h := hub.New(doc, opts...)
	go h.Run(ctx)

	srv := server.New(h,
		document.NewDocumentHandler(store, authenticator, logger),
		export.NewExportHandler(h.Document, logger),
		cfg.CORSOrigin,
		logger,
		checks...,
	)
	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("collab service listening", "addr", cfg.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.Info("signal caught", "sig", sig)
	case err := <-errCh:
		return err
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown error", "err", err)
	}
	return nil
}

func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (document.Store, func(), error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		logger.Info("using file store", "path", cfg.DataFile)
		return document.NewFileStore(cfg.DataFile), func() {}, nil
	}

	database, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	if err := database.Migrate(ctx); err != nil {
		database.Close()
		return nil, nil, err
	}
	logger.Info("using postgres store")
	return database, func() { database.Close() }, nil
}
