// Command itterd serves itter.sh: a terminal micro-blog reached over
// SSH. Configuration comes from an optional TOML file with flag
// overrides for the common knobs.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/itter-sh/itter/internal/config"
	"github.com/itter-sh/itter/internal/notify"
	"github.com/itter-sh/itter/internal/sshd"
	"github.com/itter-sh/itter/internal/store"
)

func main() {
	configPath := flag.String("config", "", "Path to TOML config file")
	listen := flag.String("listen", "", "Listen address (overrides config)")
	hostKey := flag.String("host-key", "", "SSH host key path (overrides config)")
	debug := flag.Bool("debug", false, "Enable debug logging")

	flag.Usage = func() {
		fmt.Println("Usage: itterd [options]")
		fmt.Println()
		fmt.Println("Serve the itter.sh terminal feed over SSH.")
		fmt.Println()
		fmt.Println("Options:")
		flag.PrintDefaults()
		fmt.Println()
		fmt.Println("Examples:")
		fmt.Println("  itterd -config /etc/itter/itterd.toml")
		fmt.Println("  itterd -listen 0.0.0.0:22 -host-key /etc/itter/host_key")
	}
	flag.Parse()

	if flag.NArg() > 0 {
		fmt.Fprintf(os.Stderr, "Error: unexpected arguments: %v\n", flag.Args())
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *listen != "" {
		cfg.Listen = *listen
	}
	if *hostKey != "" {
		cfg.HostKeyPath = *hostKey
	}
	if *debug {
		cfg.Debug = true
	}

	logger := newLogger(cfg)
	if err := run(cfg, logger); err != nil {
		logger.Error("itterd exited with error", "error", err)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newLogger(cfg config.Config) *slog.Logger {
	var out io.Writer = os.Stderr
	if cfg.Log.Path != "" {
		out = &lumberjack.Logger{
			Filename:   cfg.Log.Path,
			MaxSize:    cfg.Log.MaxSizeMB,
			MaxBackups: cfg.Log.MaxBackups,
			MaxAge:     cfg.Log.MaxAgeDays,
			Compress:   true,
		}
	}
	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level}))
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.OpenSQLite(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	hub := notify.NewHub(logger)
	announce := func(_ context.Context, ev notify.Event) { hub.Publish(ev) }

	var bridge *notify.Bridge
	if cfg.PubSub.Enabled() {
		bridge, err = notify.NewBridge(ctx, cfg.PubSub, hub, logger)
		if err != nil {
			return fmt.Errorf("pubsub bridge: %w", err)
		}
		defer bridge.Close()
		announce = func(ctx context.Context, ev notify.Event) {
			hub.Publish(ev)
			bridge.Forward(ctx, ev)
		}
		logger.Info("pub/sub bridge enabled",
			"project", cfg.PubSub.ProjectID, "topic", cfg.PubSub.TopicID)
	}

	srv, err := sshd.New(cfg, st, hub, announce, logger)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(srv.ListenAndServe)
	if bridge != nil {
		g.Go(func() error { return bridge.Run(ctx) })
	}
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	logger.Info("itterd started", "listen", cfg.Listen, "store", cfg.Store.Path)
	return g.Wait()
}
