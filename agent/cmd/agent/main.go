package main

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/nextintranet/stationlink/agent/internal/config"
	"github.com/nextintranet/stationlink/agent/internal/security"
	"github.com/nextintranet/stationlink/agent/internal/statestore"
	"github.com/nextintranet/stationlink/pkg/realtime"
	"github.com/nextintranet/stationlink/pkg/types"
)

func main() {
	flags := pflag.NewFlagSet("stationlink-agent", pflag.ExitOnError)
	configPath := flags.String("config", "config.yaml", "path to config file")
	envFile := flags.String("env-file", "", "load environment variables from this .env file first")
	station := flags.String("station", "", "station id (overrides agent.station)")
	typeFilter := flags.StringSlice("types", nil, "only print events of these types")
	fromStdin := flags.Bool("stdin", false, "emit JSON events read line by line from stdin")
	scope := flags.String("scope", string(realtime.ScopeStation), "emit scope for --stdin: station | broadcast")
	_ = flags.Parse(os.Args[1:])

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if *envFile != "" {
		if err := godotenv.Load(*envFile); err != nil {
			slog.Error("failed to load env file", "path", *envFile, "err", err)
			os.Exit(1)
		}
	}

	slog.Info("stationlink-agent starting", "config", *configPath)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	logger = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: parseLevel(cfg.Agent.LogLevel)}))
	slog.SetDefault(logger)

	if *station != "" {
		cfg.Agent.Station = *station
	}
	slog.Info("config loaded",
		"server_url", cfg.Agent.ServerURL,
		"station", cfg.Agent.Station,
		"state_backend", cfg.Agent.State.Backend,
		"backoff", cfg.Agent.Reconnect.Backoff,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if cs := security.Check(ctx, cfg.Agent.ServerURL, cfg.Agent.TLS.InsecureSkipVerify); cs != nil {
		level := slog.LevelInfo
		if cs.Status != "valid" {
			level = slog.LevelWarn
		}
		slog.Log(ctx, level, "relay certificate",
			"status", cs.Status, "issuer", cs.Issuer, "days_left", cs.DaysLeft)
	}

	store, err := statestore.Open(ctx, cfg.Agent.State.Backend, cfg.Agent.State.Path)
	if err != nil {
		slog.Error("failed to open state store", "err", err)
		os.Exit(1)
	}
	defer store.Close()

	client, err := newClient(cfg, store, logger)
	if err != nil {
		slog.Error("failed to build realtime client", "err", err)
		os.Exit(1)
	}
	defer client.Destroy()

	client.OnConnectionState(func(st types.ConnectionState) {
		slog.Info("connection state", "events", st.Events, "station", st.Station)
	})

	out := json.NewEncoder(os.Stdout)
	printEvent := func(ev types.Event) {
		if err := out.Encode(ev); err != nil {
			slog.Warn("write event failed", "type", ev.Type, "err", err)
		}
	}
	if len(*typeFilter) > 0 {
		realtime.OnEventTypes(client, *typeFilter, printEvent)
	} else {
		client.OnMessage(printEvent)
	}

	if err := client.Initialize(); err != nil {
		slog.Error("failed to initialize realtime client", "err", err)
		os.Exit(1)
	}

	// Follow agent.station edits without restarting. A --station flag pins
	// the station and disables this.
	if *station == "" {
		go func() {
			if err := config.WatchStation(ctx, *configPath, client.StationID, client.SetStation); err != nil {
				slog.Error("config watcher stopped", "err", err)
			}
		}()
	}

	if *fromStdin {
		go func() {
			if err := emitLines(ctx, client, os.Stdin, realtime.Scope(*scope)); err != nil {
				slog.Error("stdin emitter stopped", "err", err)
			}
		}()
	}

	<-ctx.Done()
	slog.Info("stationlink-agent shutting down")
}

// newClient builds the realtime client from the agent config.
func newClient(cfg *config.Config, store realtime.Storage, logger *slog.Logger) (*realtime.Client, error) {
	a := cfg.Agent

	delay := realtime.Fixed(a.Reconnect.Delay)
	if a.Reconnect.Backoff == "exponential" {
		delay = realtime.Exponential(a.Reconnect.Delay, a.Reconnect.MaxDelay)
	}

	dialer := &realtime.WebSocketDialer{
		HandshakeTimeout: a.ConnectTimeout,
		ReadTimeout:      a.ReadTimeout,
	}
	if a.TLS.InsecureSkipVerify {
		dialer.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
	}

	opts := []realtime.Option{
		realtime.WithDialer(dialer),
		realtime.WithReconnectDelay(delay),
		realtime.WithStorage(store),
		realtime.WithLogger(logger),
	}
	if a.Station != "" {
		opts = append(opts, realtime.WithQuery(map[string][]string{"station": {a.Station}}))
	}
	return realtime.New(a.ServerURL, a.Auth.Token, opts...)
}

// emitLines reads one JSON event per line from r and emits it until EOF or
// ctx is cancelled. Lines that do not parse are logged and skipped.
func emitLines(ctx context.Context, c *realtime.Client, r io.Reader, scope realtime.Scope) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var ev types.Event
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			slog.Warn("skipping malformed stdin line", "err", err)
			continue
		}
		if ev.Type == "" {
			ev.Type = "event"
		}
		if err := c.Emit(ev, scope); err != nil {
			if errors.Is(err, realtime.ErrDestroyed) {
				return nil
			}
			slog.Warn("emit failed", "type", ev.Type, "err", err)
		}
	}
	return sc.Err()
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
