package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/nextintranet/stationlink/server/internal/api"
	"github.com/nextintranet/stationlink/server/internal/auth"
	"github.com/nextintranet/stationlink/server/internal/config"
	"github.com/nextintranet/stationlink/server/internal/metrics"
	"github.com/nextintranet/stationlink/server/internal/store"
	"github.com/nextintranet/stationlink/server/internal/ws"
)

func main() {
	flags := pflag.NewFlagSet("stationlink-server", pflag.ExitOnError)
	configPath := flags.String("config", "config.yaml", "path to config file")
	envFile := flags.String("env-file", "", "load environment variables from this .env file first")
	port := flags.Int("port", 0, "override server.http_port")
	_ = flags.Parse(os.Args[1:])

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if *envFile != "" {
		if err := godotenv.Load(*envFile); err != nil {
			slog.Error("failed to load env file", "path", *envFile, "err", err)
			os.Exit(1)
		}
	}

	slog.Info("stationlink-server starting", "config", *configPath)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	if *port != 0 {
		cfg.Server.HTTPPort = *port
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(cfg.Server.LogLevel)})))

	slog.Info("config loaded",
		"http_port", cfg.Server.HTTPPort,
		"auth_mode", cfg.Server.Auth.Mode,
		"events_ttl", cfg.Server.Events.TTL,
		"events_max", cfg.Server.Events.Max,
	)

	checker := auth.NewChecker(cfg.Server.Auth.Mode, cfg.Server.Auth.Token())
	if checker.Enabled() && cfg.Server.Auth.Token() == "" {
		slog.Warn("auth token is empty, every connection will be rejected",
			"token_env", cfg.Server.Auth.TokenEnv)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Recent-event buffer with background TTL eviction.
	st := store.New(cfg.Server.Events.TTL, cfg.Server.Events.Max)
	go st.Run(ctx)

	m := metrics.New()

	hub := ws.New(ws.Options{
		Auth:       checker,
		Store:      st,
		Metrics:    m,
		SendBuffer: cfg.Server.Hub.SendBuffer,
		ReadLimit:  cfg.Server.Hub.ReadLimit,
	})
	go hub.Run(ctx)

	// One HTTP server: websocket relay, REST API and /metrics.
	router := mux.NewRouter().UseEncodedPath()
	hub.Register(router)
	api.New(st, hub).Register(router, checker.Middleware)
	router.Handle("/metrics", m.Handler()).Methods(http.MethodGet)

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info("HTTP server listening", "port", cfg.Server.HTTPPort)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server stopped", "err", err)
			cancel()
		}
	}()

	<-ctx.Done()
	slog.Info("stationlink-server shutting down")
	shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
	defer done()
	httpSrv.Shutdown(shutdownCtx) //nolint:errcheck
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
