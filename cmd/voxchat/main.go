// Command voxchat is a terminal voice chat client for a voice bot backend.
//
// It registers a username, opens the streaming session, and then reads
// commands from stdin:
//
//	/record       start streaming the microphone
//	/stop         stop streaming the microphone
//	/connect NAME reconnect under a (new) username
//	/disconnect   close the streaming session
//	/history      print the whole conversation
//	/quit         exit
//
// Any other line is sent as a typed chat message.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/voxchat/internal/app"
	"github.com/MrWong99/voxchat/internal/config"
	"github.com/MrWong99/voxchat/internal/health"
	"github.com/MrWong99/voxchat/internal/observe"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "voxchat.yaml", "path to the YAML configuration file")
	username := flag.String("username", "", "username to register; prompted for when empty")
	showVersion := flag.Bool("version", false, "print the version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("voxchat", version)
		return 0
	}

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, watchable, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "voxchat: %v\n", err)
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	var level slog.LevelVar
	level.Set(slogLevel(cfg.Server.LogLevel))
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: &level}))
	slog.SetDefault(logger)

	slog.Info("voxchat starting",
		"version", version,
		"config", *configPath,
		"api_url", cfg.Server.APIURL,
		"ws_url", cfg.Server.WSURL,
		"capture", cfg.Capture.Driver,
		"playback", cfg.Playback.Driver,
	)

	// ── Telemetry ─────────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceVersion: version,
		InstanceID:     uuid.NewString(),
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(sctx); err != nil {
			slog.Warn("telemetry shutdown", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	// ── Audio drivers ─────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinDrivers(reg, logger)

	devices, err := buildDevices(cfg, reg)
	if err != nil {
		slog.Error("failed to build audio drivers", "err", err)
		return 1
	}

	client, err := app.New(cfg, devices, app.WithMetrics(metrics), app.WithLogger(logger))
	if err != nil {
		slog.Error("failed to initialise client", "err", err)
		return 1
	}
	defer func() {
		if err := client.Close(); err != nil {
			slog.Warn("client close", "err", err)
		}
	}()

	// ── Run group ─────────────────────────────────────────────────────────────
	g, gctx := errgroup.WithContext(ctx)
	con := newConsole(os.Stdin, os.Stdout, client)

	g.Go(func() error { return client.Run(gctx) })
	g.Go(func() error { con.render(gctx); return nil })
	g.Go(func() error {
		err := con.loop(gctx, *username)
		stop() // /quit or EOF ends the program
		return err
	})

	if cfg.Status.ListenAddr != "" {
		srv := health.NewServer(cfg.Status.ListenAddr,
			health.New(health.Connected("session", client.Connected)).WithStatus(func() any { return snapshot(client) }),
			metrics,
		)
		g.Go(func() error {
			slog.Info("status server listening", "addr", cfg.Status.ListenAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("status server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(sctx)
		})
	}

	if watchable {
		w, err := config.NewWatcher(*configPath, func(d config.ConfigDiff) {
			if d.LogLevelChanged {
				level.Set(slogLevel(d.NewLogLevel))
				slog.Info("log level changed", "level", d.NewLogLevel)
			}
			client.ApplyConfig(d)
		}, config.WithWatcherLogger(logger))
		if err != nil {
			slog.Warn("config watcher disabled", "err", err)
		} else {
			g.Go(func() error { return w.Run(gctx) })
		}
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("voxchat stopped")
	return 0
}

// loadConfig loads path. A missing file at the default path falls back to
// the built-in defaults; watchable reports whether path exists.
func loadConfig(path string) (cfg *config.Config, watchable bool, err error) {
	cfg, err = config.Load(path)
	switch {
	case err == nil:
		return cfg, true, nil
	case errors.Is(err, os.ErrNotExist) && !flagSet("config"):
		return config.Default(), false, nil
	case errors.Is(err, os.ErrNotExist):
		return nil, false, fmt.Errorf("config file %q not found", path)
	default:
		return nil, false, err
	}
}

func flagSet(name string) bool {
	set := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ── Status ─────────────────────────────────────────────────────────────────────

type status struct {
	Session   string  `json:"session"`
	Recording bool    `json:"recording"`
	Playback  string  `json:"playback"`
	Entries   int     `json:"entries"`
	Peak      float64 `json:"input_peak"`
	RMS       float64 `json:"input_rms"`
}

func snapshot(c *app.Client) status {
	peak, rms := c.Level()
	return status{
		Session:   c.SessionState().String(),
		Recording: c.Recording(),
		Playback:  c.Playback().String(),
		Entries:   len(c.Conversation()),
		Peak:      peak,
		RMS:       rms,
	}
}
