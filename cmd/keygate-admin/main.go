// Package main is the entry point for the Keygate admin CLI.
// This tool issues keys and inspects the store directly, without going
// through the HTTP endpoint.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog"

	"github.com/prn-tf/keygate/internal/config"
	"github.com/prn-tf/keygate/internal/database"
	"github.com/prn-tf/keygate/internal/domain"
	"github.com/prn-tf/keygate/internal/lock"
	"github.com/prn-tf/keygate/internal/repository"
	"github.com/prn-tf/keygate/internal/service"
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
	args := os.Args[2:]

	var err error
	switch command {
	case "version":
		fmt.Printf("Keygate Admin CLI\n")
		fmt.Printf("Version: %s\n", Version)
		fmt.Printf("Build Time: %s\n", BuildTime)
		fmt.Printf("Git Commit: %s\n", GitCommit)

	case "keys":
		err = runKeys(args)

	case "stats":
		err = runStats(args)

	case "logs":
		err = runLogs(args)

	case "help", "-h", "--help":
		printUsage()

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// app holds the services a command needs.
type app struct {
	keys     *service.KeyService
	stats    *service.StatsService
	audit    *service.AuditService
	shutdown func()
}

func openApp(ctx context.Context, configPath string, verbose bool) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	level := zerolog.WarnLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(level).With().Timestamp().Logger()

	store, err := database.OpenAndMigrate(ctx, cfg.Database, logger)
	if err != nil {
		return nil, err
	}

	locker, closeLocker, err := lock.New(ctx, cfg.Redis, logger)
	if err != nil {
		_ = store.Database.Close()
		return nil, err
	}

	audit := service.NewAuditService(store.Repos.AccessLog, logger)
	return &app{
		keys: service.NewKeyService(store.Repos.Key, audit, locker, service.KeyServiceConfig{
			DefaultPrefix: cfg.Activation.DefaultPrefix,
			LockTTL:       cfg.Activation.LockTTL,
		}, logger),
		stats: service.NewStatsService(store.Repos.Key, store.Repos.Account, logger),
		audit: audit,
		shutdown: func() {
			_ = closeLocker()
			_ = store.Database.Close()
		},
	}, nil
}

// commonFlags registers the flags every subcommand accepts.
func commonFlags(fs *flag.FlagSet) (configPath *string, verbose *bool, asJSON *bool) {
	configPath = fs.String("config", "", "path to the configuration file")
	verbose = fs.Bool("verbose", false, "enable debug logging")
	asJSON = fs.Bool("json", false, "print JSON instead of a table")
	return
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runKeys(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("keys requires a subcommand: generate, list")
	}

	switch args[0] {
	case "generate":
		return runKeysGenerate(args[1:])
	case "list":
		return runKeysList(args[1:])
	default:
		return fmt.Errorf("unknown keys subcommand %q", args[0])
	}
}

func runKeysGenerate(args []string) error {
	fs := flag.NewFlagSet("keys generate", flag.ExitOnError)
	configPath, verbose, asJSON := commonFlags(fs)
	count := fs.Int("count", 1, "number of keys to generate (1-100)")
	prefix := fs.String("prefix", "", "key prefix (default from configuration)")
	_ = fs.Parse(args)

	ctx, cancel := signalContext()
	defer cancel()

	a, err := openApp(ctx, *configPath, *verbose)
	if err != nil {
		return err
	}
	defer a.shutdown()

	input := service.GenerateKeysInput{Count: *count}
	if *prefix != "" {
		input.Prefix = prefix
	}

	out, err := a.keys.Generate(ctx, input)
	if err != nil {
		return err
	}

	if *asJSON {
		return printJSON(out)
	}
	for _, k := range out.Keys {
		fmt.Println(k)
	}
	if out.Skipped > 0 {
		fmt.Fprintf(os.Stderr, "%d key(s) skipped\n", out.Skipped)
	}
	return nil
}

func runKeysList(args []string) error {
	fs := flag.NewFlagSet("keys list", flag.ExitOnError)
	configPath, verbose, asJSON := commonFlags(fs)
	status := fs.String("status", "", "filter by status (unused, used)")
	limit := fs.Int("limit", 50, "maximum number of keys to show")
	offset := fs.Int("offset", 0, "number of keys to skip")
	_ = fs.Parse(args)

	ctx, cancel := signalContext()
	defer cancel()

	a, err := openApp(ctx, *configPath, *verbose)
	if err != nil {
		return err
	}
	defer a.shutdown()

	result, err := a.keys.List(ctx, service.ListKeysInput{
		Status: domain.KeyStatus(*status),
		Limit:  *limit,
		Offset: *offset,
	})
	if err != nil {
		return err
	}

	if *asJSON {
		return printJSON(result.Items)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "KEY\tSTATUS\tHWID\tCREATED\tUSED")
	for _, k := range result.Items {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", k.Value, k.Status, deref(k.HWID), formatTime(&k.CreatedAt), formatTime(k.UsedAt))
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Printf("\n%d of %d key(s)\n", len(result.Items), result.Total)
	return nil
}

func runStats(args []string) error {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	configPath, verbose, asJSON := commonFlags(fs)
	_ = fs.Parse(args)

	ctx, cancel := signalContext()
	defer cancel()

	a, err := openApp(ctx, *configPath, *verbose)
	if err != nil {
		return err
	}
	defer a.shutdown()

	stats, err := a.stats.Get(ctx)
	if err != nil {
		return err
	}

	if *asJSON {
		return printJSON(stats)
	}
	fmt.Printf("Total keys:     %d\n", stats.TotalKeys)
	fmt.Printf("Used keys:      %d\n", stats.UsedKeys)
	fmt.Printf("Unused keys:    %d\n", stats.UnusedKeys)
	fmt.Printf("Total accounts: %d\n", stats.TotalAccounts)
	return nil
}

func runLogs(args []string) error {
	fs := flag.NewFlagSet("logs", flag.ExitOnError)
	configPath, verbose, asJSON := commonFlags(fs)
	limit := fs.Int("limit", 50, "maximum number of entries to show")
	offset := fs.Int("offset", 0, "number of entries to skip")
	_ = fs.Parse(args)

	ctx, cancel := signalContext()
	defer cancel()

	a, err := openApp(ctx, *configPath, *verbose)
	if err != nil {
		return err
	}
	defer a.shutdown()

	result, err := a.audit.List(ctx, repository.ListOptions{Limit: *limit, Offset: *offset})
	if err != nil {
		return err
	}

	if *asJSON {
		return printJSON(result.Items)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tACTION\tUSERNAME\tHWID\tIP\tUSER AGENT")
	for _, e := range result.Items {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", formatTime(&e.CreatedAt), e.Action, deref(e.Username), e.HWID, e.IPAddress, e.UserAgent)
	}
	return w.Flush()
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func deref(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.Local().Format(time.DateTime)
}

func printUsage() {
	fmt.Println(`Keygate Admin CLI

Usage:
  keygate-admin <command> [arguments]

Commands:
  keys generate   Generate activation keys (--count, --prefix)
  keys list       List keys (--status, --limit, --offset)
  stats           Show key and account counters
  logs            Show the access log, newest first (--limit, --offset)
  version         Print version information
  help            Show this help message

Every command accepts --config <path>, --json and --verbose.

Examples:
  keygate-admin keys generate --count 10 --prefix VIP
  keygate-admin keys list --status used
  keygate-admin stats --json
  keygate-admin logs --limit 20`)
}
