package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fleetops/fuelcore/internal/alertdispatch"
	"github.com/fleetops/fuelcore/internal/config"
	"github.com/fleetops/fuelcore/internal/fleethealth"
	"github.com/fleetops/fuelcore/internal/orchestrator"
	"github.com/fleetops/fuelcore/internal/persistence"
	"github.com/fleetops/fuelcore/pkg/httpapi"
)

// Version information (set at build time with -ldflags)
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:     "fuelcore",
	Short:   "fuelcore - fleet fuel analytics and predictive maintenance core",
	Long:    `fuelcore ingests truck telemetry, detects anomalies and refuels, scores risk, and serves the command-center API`,
	Version: Version,
	Run: func(cmd *cobra.Command, args []string) {
		runServer()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("fuelcore %s\n", Version)
		if BuildTime != "unknown" {
			fmt.Printf("Built: %s\n", BuildTime)
		}
		if GitCommit != "unknown" {
			fmt.Printf("Commit: %s\n", GitCommit)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "fuelcore.yaml", "path to the YAML configuration file")
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServer() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	watcher, err := config.NewWatcher(configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	defer watcher.Close()
	cfg := watcher.Current()

	log.Info().Str("version", Version).Msg("Starting fuelcore server")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := persistence.OpenStore(cfg.SQLitePath, cfg.StoreTimeout)
	if err != nil {
		log.Warn().Err(err).Str("path", cfg.SQLitePath).
			Msg("Store unavailable, running with in-memory state only")
		store = nil
	} else {
		defer store.Close()
		// command_center_config table entries beat file values.
		if overrides, err := store.ConfigOverrides(ctx); err != nil {
			log.Warn().Err(err).Msg("config override read failed")
		} else {
			watcher.SetStoreOverrides(overrides)
			cfg = watcher.Current()
		}
	}

	var cache *persistence.Cache
	if cfg.RedisAddr != "" {
		cache = persistence.NewCache(cfg.RedisAddr, cfg.CacheTimeout)
		defer cache.Close()
	}

	thresholdFile := persistence.NewThresholdFile("adaptive_refuel_thresholds.json")
	gateway := persistence.NewGateway(store, cache, thresholdFile)

	var email alertdispatch.EmailSender
	if s := alertdispatch.NewSMTPSender(alertdispatch.SMTPConfigFromEnv()); s != nil {
		email = s
	}
	var sms alertdispatch.SMSSender
	if s := alertdispatch.NewHTTPSMSSender(alertdispatch.HTTPSMSConfigFromEnv()); s != nil {
		sms = s
	}
	dispatcher := alertdispatch.New(email, sms, nil,
		time.Duration(cfg.AlertCooldownMinutes)*time.Minute, cfg.TransportTimeout)

	ring := fleethealth.NewRing()

	orch := orchestrator.New(orchestrator.Options{
		Watcher:    watcher,
		Gateway:    gateway,
		Dispatcher: dispatcher,
		Ring:       ring,
	})

	go func() {
		if err := orch.Run(ctx, 5*time.Minute); err != nil && err != context.Canceled {
			log.Error().Err(err).Msg("Orchestrator stopped")
		}
	}()

	hub := httpapi.NewHub()
	router := httpapi.NewRouter(orch, hub, Version)

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	startMetricsServer(ctx, cfg.MetricsAddr)

	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start HTTP server")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	reloadChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	signal.Notify(reloadChan, syscall.SIGHUP)

	for {
		select {
		case <-reloadChan:
			log.Info().Msg("Received SIGHUP, reloading configuration...")
			watcher.Reload()
		case <-sigChan:
			log.Info().Msg("Shutting down server...")
			goto shutdown
		}
	}

shutdown:
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server shutdown error")
	}
	cancel()

	log.Info().Msg("Server stopped")
}
