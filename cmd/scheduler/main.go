package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sharma-sourabh3435/promptqueue/internal/api"
	"github.com/sharma-sourabh3435/promptqueue/internal/browser"
	"github.com/sharma-sourabh3435/promptqueue/internal/fallback"
	"github.com/sharma-sourabh3435/promptqueue/internal/scheduler"
	"github.com/sharma-sourabh3435/promptqueue/internal/signals"
	"github.com/sharma-sourabh3435/promptqueue/internal/storage"
	"github.com/sharma-sourabh3435/promptqueue/pkg/utils"
)

func main() {
	// Parse command-line flags
	var (
		configPath = flag.String("config", "", "Path to TOML config file")
		logLevel   = flag.String("log-level", "", "Log level override (debug, info, warn, error)")
		port       = flag.Int("port", 0, "API server port override")
	)

	flag.Parse()

	config, err := utils.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *logLevel != "" {
		config.Logging.Level = *logLevel
	}
	if *port != 0 {
		config.Server.Port = *port
	}

	logger := utils.InitLogger(config.Logging)
	logger.Info().
		Str("addr", config.GetServerAddress()).
		Str("storage", config.Storage.Backend).
		Bool("browser", config.Browser.Enabled).
		Msg("Starting prompt queue scheduler")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize storage
	store, err := storage.Open(config.Storage.Backend, config.Storage.SQLitePath, config.Storage.BadgerPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize storage")
	}
	defer store.Close()

	// Event fan-out
	hub := api.NewEventHub(utils.Duration(config.Server.ProgressThrottle), logger)
	notifiers := scheduler.Notifiers{scheduler.LogNotifier{Logger: logger}, hub}
	if config.Fallback.Clipboard {
		if fallback.Available() {
			notifiers = append(notifiers, fallback.NewClipboardNotifier(logger))
		} else {
			logger.Warn().Msg("No clipboard utility found, manual-paste prompts are only logged")
		}
	}

	// Create scheduler
	schedulerConfig := scheduler.Config{
		Storage:                store,
		Notifier:               notifiers,
		Logger:                 logger,
		ThresholdPercent:       config.Scheduler.ThresholdPercent,
		Pipelining:             config.Scheduler.Pipelining,
		GuardCooldown:          utils.Duration(config.Scheduler.GuardCooldown),
		ThresholdDispatchDelay: utils.Duration(config.Scheduler.ThresholdDispatchDelay),
		ErrorRetryDelay:        utils.Duration(config.Scheduler.ErrorRetryDelay),
		SendDelay:              utils.Duration(config.Scheduler.SendDelay),
		SendTimeout:            utils.Duration(config.Scheduler.SendTimeout),
		AutoResetStuck:         config.Scheduler.AutoResetStuck,
	}

	var pool *browser.Pool
	if config.Browser.Enabled {
		pool = browser.NewPool(browser.Config{
			TargetURL:       config.Browser.TargetURL,
			PromptSelector:  config.Browser.PromptSelector,
			SubmitSelector:  config.Browser.SubmitSelector,
			UserAgent:       config.Browser.UserAgent,
			Headless:        config.Browser.Headless,
			NoSandbox:       config.Browser.NoSandbox,
			NavigateTimeout: utils.Duration(config.Browser.LoadTimeout),
			HealthInterval:  utils.Duration(config.Browser.HealthInterval),
		}, logger)
		if err := pool.Start(ctx); err != nil {
			logger.Fatal().Err(err).Msg("Failed to start browser")
		}
		defer pool.Close()

		schedulerConfig.Sender = pool
		schedulerConfig.Opener = pool
	}

	sched := scheduler.NewScheduler(schedulerConfig)

	report, err := sched.Restore(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to restore session")
	}
	for _, stuck := range report.Stuck {
		logger.Warn().
			Str("job_id", stuck.JobID).
			Str("worker_id", stuck.WorkerID).
			Int("sequence", stuck.SequenceNumber).
			Str("status", string(stuck.Status)).
			Msg("Job was in flight before restart, reset it if it never finished")
	}

	if pool != nil {
		pool.OnClosed(func(channelID string) {
			if err := sched.ChannelClosed(ctx, channelID); err != nil {
				logger.Debug().Err(err).Str("channel_id", channelID).Msg("Closed tab not bound to a worker")
			}
		})
		go pool.Monitor(ctx)
	}

	bus, err := signals.NewBus(sched, utils.Duration(config.Scheduler.DedupWindow), logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create signal bus")
	}
	defer bus.Close()

	// Create API server
	apiServer := api.NewServer(sched, bus, hub, config.GetServerAddress(), logger)

	// Start API server in goroutine
	go func() {
		if err := apiServer.Start(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("API server error")
		}
	}()

	logger.Info().Msg("Scheduler started successfully")

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	logger.Info().Msg("Received shutdown signal, shutting down gracefully...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("API server shutdown error")
	}

	cancel()
	sched.Stop()

	logger.Info().Msg("Shutdown complete")
}
