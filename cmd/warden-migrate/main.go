// ABOUTME: Entry point for warden-migrate, the offline schema migration tool
// ABOUTME: Applies a migration script set to a warden database and reports the result

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"

	"github.com/2389/warden/internal/migrate"
	"github.com/2389/warden/internal/store"
)

func main() {
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: warden-migrate [flags] DB_PATH SCRIPT_SET")
		fmt.Fprintln(os.Stderr)
		fmt.Fprintln(os.Stderr, "SCRIPT_SET is a .toml script set, a directory of NNNN_name.sql files, or one .sql file.")
		fmt.Fprintln(os.Stderr)
		flag.PrintDefaults()
	}
	driver := flag.String("driver", store.DriverModernc, "database driver: sqlite (pure Go) or sqlite3 (cgo)")
	verbose := flag.Bool("v", false, "log every migration step")
	flag.Parse()

	if flag.NArg() != 2 {
		flag.Usage()
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, flag.Arg(0), flag.Arg(1), *driver, *verbose); err != nil {
		red := color.New(color.FgRed, color.Bold)
		red.Fprint(os.Stderr, "    ✗ ")
		fmt.Fprintf(os.Stderr, "%v\n", err)

		var merr *migrate.Error
		if errors.As(err, &merr) && merr.Statement != "" {
			color.New(color.FgHiBlack).Fprintf(os.Stderr, "      %s\n", merr.Statement)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, dbPath, scriptSet, driver string, verbose bool) error {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("Database:   %s (%s)\n", dbPath, driver)
	green.Print("    ▶ ")
	fmt.Printf("Script set: %s\n", scriptSet)

	migrations, err := migrate.Load(scriptSet)
	if err != nil {
		return fmt.Errorf("loading script set: %w", err)
	}

	db, err := store.OpenDB(dbPath, driver)
	if err != nil {
		return err
	}
	defer db.Close()

	engine := migrate.New(db, logger)
	before, err := engine.Version(ctx)
	if err != nil {
		return err
	}

	applied, err := engine.ApplyAll(ctx, migrations)
	if err != nil {
		if applied > 0 {
			color.New(color.FgYellow).Printf("    ! %d migration(s) applied before the failure\n", applied)
		}
		return err
	}

	after, err := engine.Version(ctx)
	if err != nil {
		return err
	}

	green.Print("    ✓ ")
	fmt.Printf("Applied %d migration(s), schema version %d → %d\n", applied, before, after)
	return nil
}
