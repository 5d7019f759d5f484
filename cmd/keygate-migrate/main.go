// Package main is the entry point for the Keygate database migration tool.
// This tool applies the embedded schema to SQLite or PostgreSQL.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/prn-tf/keygate/internal/config"
	"github.com/prn-tf/keygate/internal/database"
)

// Version information (set at build time)
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]

	fs := flag.NewFlagSet(command, flag.ExitOnError)
	configPath := fs.String("config", "", "path to the configuration file")
	timeout := fs.Duration("timeout", time.Minute, "overall timeout")

	switch command {
	case "version":
		fmt.Printf("Keygate Migration Tool\n")
		fmt.Printf("Version: %s\n", Version)
		fmt.Printf("Build Time: %s\n", BuildTime)
		fmt.Printf("Git Commit: %s\n", GitCommit)

	case "up":
		_ = fs.Parse(os.Args[2:])
		if err := migrateUp(*configPath, *timeout); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

	case "status":
		_ = fs.Parse(os.Args[2:])
		if err := status(*configPath, *timeout); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

	case "help", "-h", "--help":
		printUsage()

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func newLogger() zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()
}

func migrateUp(configPath string, timeout time.Duration) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	store, err := database.OpenAndMigrate(ctx, cfg.Database, newLogger())
	if err != nil {
		return err
	}
	defer store.Database.Close()

	version, err := store.Database.SchemaVersion(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Schema is at version %d (%s)\n", version, store.Driver)
	return nil
}

func status(configPath string, timeout time.Duration) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	store, err := database.Open(ctx, cfg.Database, newLogger())
	if err != nil {
		return err
	}
	defer store.Database.Close()

	version, err := store.Database.SchemaVersion(ctx)
	if err != nil {
		return err
	}

	if version == 0 {
		fmt.Printf("No migrations applied (%s)\n", store.Driver)
		return nil
	}
	fmt.Printf("Schema is at version %d (%s)\n", version, store.Driver)
	return nil
}

func printUsage() {
	fmt.Println(`Keygate Migration Tool

Usage:
  keygate-migrate <command> [arguments]

Commands:
  up          Apply all pending migrations
  status      Show the current schema version
  version     Print version information
  help        Show this help message

Flags:
  --config    Path to the configuration file
  --timeout   Overall timeout (default 1m)

Environment Variables:
  KEYGATE_DATABASE_DRIVER   sqlite or postgres
  KEYGATE_DATABASE_PATH     SQLite database file
  KEYGATE_DATABASE_HOST     PostgreSQL host

Examples:
  keygate-migrate up
  keygate-migrate status --config /etc/keygate/config.yaml`)
}
