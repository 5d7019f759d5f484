// Package main is the entry point for the Keygate server.
// Keygate issues activation keys, binds them to hardware identities and
// manages the accounts those keys unlock.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/prn-tf/keygate/internal/config"
	"github.com/prn-tf/keygate/internal/database"
	"github.com/prn-tf/keygate/internal/handler"
	"github.com/prn-tf/keygate/internal/lock"
	"github.com/prn-tf/keygate/internal/metrics"
	"github.com/prn-tf/keygate/internal/service"
)

// Version information (set at build time)
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to the configuration file")
	showVersion := flag.Bool("version", false, "print version information and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("Keygate Server\n")
		fmt.Printf("Version: %s\n", Version)
		fmt.Printf("Build Time: %s\n", BuildTime)
		fmt.Printf("Git Commit: %s\n", GitCommit)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	setupLogger(cfg.Logging)

	log.Info().
		Str("version", Version).
		Str("build_time", BuildTime).
		Str("git_commit", GitCommit).
		Msg("Starting Keygate Server")

	if err := run(cfg); err != nil {
		log.Fatal().Err(err).Msg("server exited with error")
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := log.Logger

	store, err := database.OpenAndMigrate(ctx, cfg.Database, logger)
	if err != nil {
		return err
	}
	defer store.Database.Close()

	locker, closeLocker, err := lock.New(ctx, cfg.Redis, logger)
	if err != nil {
		return err
	}
	defer closeLocker()

	m := metrics.New()

	audit := service.NewAuditService(store.Repos.AccessLog, logger)
	keyService := service.NewKeyService(store.Repos.Key, audit, locker, service.KeyServiceConfig{
		DefaultPrefix: cfg.Activation.DefaultPrefix,
		LockTTL:       cfg.Activation.LockTTL,
	}, logger)
	accountService := service.NewAccountService(store.Repos.Account, store.Repos.Key, audit, service.AccountServiceConfig{
		BcryptCost:    cfg.Activation.BcryptCost,
		StrictBinding: cfg.Activation.StrictAccountBinding,
	}, logger)
	statsService := service.NewStatsService(store.Repos.Key, store.Repos.Account, logger)

	if !cfg.Auth.AdminEnabled() {
		logger.Warn().Msg("auth.admin_token is empty: generate_keys and get_stats are open to every client")
	}

	actionHandler := handler.NewActionHandler(handler.ActionHandlerConfig{
		KeyService:     keyService,
		AccountService: accountService,
		StatsService:   statsService,
		Database:       store.Database,
		Metrics:        m,
		AdminToken:     cfg.Auth.AdminToken,
		MaxBodySize:    cfg.Server.MaxBodySize,
		Logger:         logger,
	})

	var limiter *handler.RateLimiter
	if cfg.RateLimit.Enabled {
		limiter = handler.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.BurstSize, cfg.RateLimit.ClientTTL, m)
	}

	router := handler.NewRouter(handler.RouterConfig{
		ActionHandler: actionHandler,
		Database:      store.Database,
		RateLimiter:   limiter,
		CORSOrigins:   cfg.Server.CORS.AllowedOrigins,
		Logger:        logger,
	})

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 2)

	go func() {
		logger.Info().Str("addr", server.Addr).Str("driver", store.Driver).Msg("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	var metricsServer *http.Server
	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle(cfg.Metrics.Path, m.Handler())
		metricsServer = &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Metrics.Port),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}

		go func() {
			logger.Info().Str("addr", metricsServer.Addr).Str("path", cfg.Metrics.Path).Msg("metrics server listening")
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("metrics server: %w", err)
			}
		}()
	}

	select {
	case <-ctx.Done():
		logger.Info().Msg("Shutting down server...")
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown failed")
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("metrics server shutdown failed")
		}
	}

	logger.Info().Msg("server stopped")
	return nil
}

// setupLogger configures the global zerolog logger from cfg.
func setupLogger(cfg config.LoggingConfig) {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = cfg.TimeFormat

	var out io.Writer = os.Stdout
	if cfg.Output == "stderr" {
		out = os.Stderr
	}

	if cfg.Format == "console" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	log.Logger = zerolog.New(out).With().Timestamp().Str("service", "keygate").Logger()
}
