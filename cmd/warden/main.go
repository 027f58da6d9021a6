// ABOUTME: Entry point for the warden chat bot
// ABOUTME: Wires store, plugins, worker pool and the Matrix adapter into one process

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/2389/warden/internal/alerts"
	"github.com/2389/warden/internal/bot"
	"github.com/2389/warden/internal/builtins"
	"github.com/2389/warden/internal/config"
	"github.com/2389/warden/internal/dedupe"
	"github.com/2389/warden/internal/matrix"
	"github.com/2389/warden/internal/plugins"
	"github.com/2389/warden/internal/store"
	"github.com/2389/warden/internal/worker"
)

// Version is set at build time.
var version = "dev"

const banner = `
                          _
 __      ____ _ _ __ __| | ___ _ __
 \ \ /\ / / _' | '__/ _' |/ _ \ '_ \
  \ V  V / (_| | | | (_| |  __/ | | |
   \_/\_/ \__,_|_|  \__,_|\___|_| |_|
`

// metricsShutdownTimeout bounds the metrics server shutdown.
const metricsShutdownTimeout = 5 * time.Second

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: warden <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve     Connect to Matrix and start handling messages")
		fmt.Println("  plugins   List the registered command plugins")
		fmt.Println("  version   Print the version")
		os.Exit(1)
	}

	// A missing .env is normal; anything else is worth knowing about.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Warning: loading .env: %v\n", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "plugins":
		err = runPlugins()
	case "version":
		fmt.Println(version)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	configPath := config.DefaultPath()

	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger, closeLog, err := setupLogger(cfg.Logging)
	if err != nil {
		return err
	}
	defer closeLog()
	slog.SetDefault(logger)

	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("Config:     %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("Database:   %s (%s)\n", cfg.Database.Path, cfg.Database.Driver)
	green.Print("    ▶ ")
	fmt.Printf("Homeserver: %s\n", cfg.Matrix.Homeserver)
	green.Print("    ▶ ")
	fmt.Printf("User:       %s\n", cfg.Matrix.UserID)
	green.Print("    ▶ ")
	fmt.Printf("Workers:    %d\n", cfg.Bot.Workers)
	if cfg.Matrix.Encryption.Enabled {
		green.Print("    ▶ ")
		fmt.Println("Encryption: enabled")
	}
	if cfg.Metrics.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("Metrics:    http://%s%s\n", cfg.Metrics.Addr, cfg.Metrics.Path)
	}
	fmt.Println()

	st, err := store.Open(cfg.Database.Path, cfg.Database.Driver)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	mx, err := matrix.New(matrix.Options{
		Homeserver:  cfg.Matrix.Homeserver,
		UserID:      cfg.Matrix.UserID,
		AccessToken: cfg.Matrix.AccessToken,
		DisplayName: cfg.Matrix.DisplayName,
		Admins:      cfg.Matrix.Admins,
		AutoJoin:    cfg.Matrix.AutoJoin,
		Buffer:      cfg.Bot.Workers * 8,
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	if cfg.Matrix.Encryption.Enabled {
		enc, err := mx.EnableEncryption(ctx, cfg.Matrix.Encryption.RecoveryKey, cfg.Matrix.Encryption.DataDir)
		if err != nil {
			return fmt.Errorf("setting up encryption: %w", err)
		}
		defer enc.Close()
	}

	matcher, err := alerts.New(ctx, st, logger)
	if err != nil {
		return fmt.Errorf("loading alerts: %w", err)
	}

	registry := plugins.NewRegistry(logger)
	if err := builtins.RegisterAll(builtins.Deps{
		Registry: registry,
		Matcher:  matcher,
		Messages: st,
		SQL:      st,
		Inviter:  mx,
	}); err != nil {
		return err
	}
	registry.Seal()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	pool := worker.New(cfg.Bot.Workers,
		worker.WithLogger(logger),
		worker.WithMetrics(worker.NewMetrics(reg)),
	)

	b, err := bot.New(bot.Options{
		Self:            cfg.Matrix.UserID,
		MentionPrefixes: cfg.Bot.MentionPrefixes,
		ShutdownGrace:   cfg.Bot.ShutdownGrace,
		Source:          mx,
		Client:          mx,
		Router:          plugins.NewRouter(registry, logger),
		Matcher:         matcher,
		Pool:            pool,
		Dedupe:          dedupe.New(cfg.Bot.DedupeTTL, cfg.Bot.DedupeSize),
		Logger:          logger,
	})
	if err != nil {
		return fmt.Errorf("creating bot: %w", err)
	}

	logger.Info("starting warden",
		"config", configPath,
		"plugins", registry.Len(),
		"alerts", len(matcher.List()),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return mx.Run(gctx) })
	g.Go(func() error { return b.Run(gctx) })
	if cfg.Metrics.Enabled {
		serveMetrics(gctx, g, cfg.Metrics, reg, logger)
	}

	return g.Wait()
}

// serveMetrics exposes reg on the configured address until ctx is done.
func serveMetrics(ctx context.Context, g *errgroup.Group, cfg config.MetricsConfig, reg *prometheus.Registry, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g.Go(func() error {
		logger.Info("metrics listening", "addr", cfg.Addr, "path", cfg.Path)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}

// runPlugins prints the built-in commands without connecting anywhere.
func runPlugins() error {
	registry := plugins.NewRegistry(slog.New(slog.DiscardHandler))
	if err := builtins.RegisterAll(builtins.Deps{Registry: registry}); err != nil {
		return err
	}

	bold := color.New(color.Bold)
	yellow := color.New(color.FgYellow)
	for _, d := range registry.Descriptors() {
		bold.Printf("%-12s", d.Name)
		if d.Privilege == plugins.PrivilegeAdmin {
			yellow.Print(" [admin]")
		}
		fmt.Printf(" %s\n", d.Description)
		if len(d.Aliases) > 0 {
			color.HiBlack("             aliases: %v", d.Aliases)
		}
	}
	return nil
}
