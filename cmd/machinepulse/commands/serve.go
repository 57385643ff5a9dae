package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gorilla/handlers"
	"github.com/spf13/cobra"

	"github.com/machinepulse/machinepulse/internal/alerts"
	"github.com/machinepulse/machinepulse/internal/api"
	"github.com/machinepulse/machinepulse/internal/auth"
	"github.com/machinepulse/machinepulse/internal/compute"
	"github.com/machinepulse/machinepulse/internal/config"
	"github.com/machinepulse/machinepulse/internal/metrics"
	"github.com/machinepulse/machinepulse/internal/monitor"
	"github.com/machinepulse/machinepulse/internal/store"
	"github.com/machinepulse/machinepulse/internal/ws"
)

const (
	// broadcastInterval is how often the WebSocket hub pushes the snapshot.
	broadcastInterval = 5 * time.Second
	shutdownTimeout   = 10 * time.Second
)

type serveOptions struct {
	configPath string
	uiDir      string
}

func newServeCmd() *cobra.Command {
	opts := &serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Monitor the configured lines and serve the API, stream and metrics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			return runServe(ctx, opts)
		},
	}
	cmd.Flags().StringVar(&opts.configPath, "config", "config.yaml", "path to config file")
	cmd.Flags().StringVar(&opts.uiDir, "ui-dir", "", "serve the dashboard static files from this directory; empty disables")
	return cmd
}

func runServe(ctx context.Context, opts *serveOptions) error {
	slog.Info("machinepulse starting", "config", opts.configPath, "version", Version)

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	slog.Info("config loaded",
		"http_port", cfg.Server.HTTPPort,
		"auth_mode", cfg.Server.Auth.Mode,
		"lines", len(cfg.Lines),
		"refresh_interval", cfg.Monitor.RefreshInterval,
		"snapshot_ttl", cfg.Server.Snapshot.TTL,
	)

	st := store.New(cfg.Server.Snapshot.TTL)
	go st.Run(ctx)

	alertEngine := alerts.New(cfg.Alerts)
	var rec *metrics.Recorder
	if cfg.Metrics.Enabled {
		rec = metrics.New()
	}

	runner := monitor.New(st, compute.NewEngine(cfg.Monitor), alertEngine, rec)
	runner.Apply(ctx, cfg)
	if len(runner.Lines()) == 0 {
		slog.Warn("no lines configured, idling until the config changes")
	}
	go runner.Run(ctx)

	go func() {
		if err := config.Watch(ctx, opts.configPath, func(updated *config.Config) {
			runner.Apply(ctx, updated)
		}); err != nil {
			slog.Error("config watcher stopped", "err", err)
		}
	}()

	hub := ws.New(st, alertEngine, broadcastInterval)
	go hub.Run(ctx)

	authMode := cfg.Server.Auth.Mode
	authHeader := cfg.Server.Auth.EffectiveHeader()
	authKey := cfg.Server.Auth.Key()
	if authMode == "apikey" && authKey == "" {
		slog.Warn("server.auth.mode is apikey but the key env var is empty; API is unauthenticated",
			"key_env", cfg.Server.Auth.KeyEnv)
	}

	mux := http.NewServeMux()
	apiHandler := api.New(st, api.WithAlerts(alertEngine), api.WithAnalyzer(runner.Analyze))
	mux.Handle("/api/", auth.APIKeyMiddleware(authMode, authHeader, authKey, apiHandler))
	mux.Handle("/ws/stream", auth.APIKeyMiddleware(authMode, authHeader, authKey, hub))
	if rec != nil {
		mux.Handle(cfg.Metrics.Path, rec.Handler())
	}
	if opts.uiDir != "" {
		mux.Handle("/", spaHandler(opts.uiDir))
		slog.Info("serving UI static files", "dir", opts.uiDir)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:           wrapHandler(cfg.Server, mux, os.Stdout),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "port", cfg.Server.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}

	slog.Info("machinepulse shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("http shutdown", "err", err)
	}
	alertEngine.Wait()
	return nil
}

// wrapHandler adds panic recovery, optional CORS and optional access logging
// around the server mux.
func wrapHandler(sc config.ServerConfig, h http.Handler, accessLog io.Writer) http.Handler {
	if len(sc.CORSOrigins) > 0 {
		h = handlers.CORS(
			handlers.AllowedOrigins(sc.CORSOrigins),
			handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
			handlers.AllowedHeaders([]string{"Content-Type", sc.Auth.EffectiveHeader()}),
		)(h)
	}
	if sc.AccessLog {
		h = handlers.CombinedLoggingHandler(accessLog, h)
	}
	errLog := slog.NewLogLogger(slog.Default().Handler(), slog.LevelError)
	return handlers.RecoveryHandler(
		handlers.RecoveryLogger(errLog),
		handlers.PrintRecoveryStack(true),
	)(h)
}

// spaHandler serves files from dir and falls back to index.html for
// unknown paths so client-side routing works.
func spaHandler(dir string) http.Handler {
	fileServer := http.FileServer(http.Dir(dir))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := filepath.Join(dir, filepath.Clean("/"+r.URL.Path))
		if _, err := os.Stat(path); os.IsNotExist(err) {
			http.ServeFile(w, r, filepath.Join(dir, "index.html"))
			return
		}
		fileServer.ServeHTTP(w, r)
	})
}
