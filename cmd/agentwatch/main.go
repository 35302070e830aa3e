package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"agentwatch/internal/config"
	"agentwatch/internal/events"
	"agentwatch/internal/logger"
	"agentwatch/internal/monitor"
	"agentwatch/internal/notify"
	"agentwatch/internal/server/api"
	"agentwatch/internal/store"
	"agentwatch/internal/version"

	"go.uber.org/zap"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "", "Path to config file")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	// Show version if requested
	if *showVersion {
		info := version.GetInfo()
		fmt.Println(info.String())
		os.Exit(0)
	}

	// Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.New(&cfg.Log)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func(log *zap.Logger) {
		_ = log.Sync()
	}(log)

	if err := run(cfg, log); err != nil {
		log.Error("agentwatch exited with error", zap.Error(err))
		_ = log.Sync()
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log.Info("Starting agentwatch",
		zap.String("version", version.GetInfo().Version),
		zap.Int("agents", len(cfg.Agents)),
		zap.Int("log_sources", len(cfg.LogSources)))

	var opts []monitor.Option

	// Report history
	if cfg.Storage.Enabled {
		s, err := store.NewSQLiteStore(cfg.Storage.Path, log)
		if err != nil {
			return fmt.Errorf("failed to initialize storage: %w", err)
		}
		opts = append(opts, monitor.WithStore(s))
	}

	// Alerting
	if cfg.Notify.Enabled {
		notifier, err := notify.NewManager(&cfg.Notify, log)
		if err != nil {
			return fmt.Errorf("failed to initialize notifier: %w", err)
		}
		defer func() {
			if err := notifier.Stop(); err != nil {
				log.Error("Failed to stop notifier", zap.Error(err))
			}
		}()
		opts = append(opts, monitor.WithAlerter(notifier))
	}

	// Change events
	if cfg.Events.Enabled {
		publisher, err := events.NewRedisPublisher(&cfg.Events, log)
		if err != nil {
			return fmt.Errorf("failed to initialize event publisher: %w", err)
		}
		opts = append(opts, monitor.WithPublisher(publisher))
	}

	mon, err := monitor.New(cfg, log, opts...)
	if err != nil {
		return fmt.Errorf("failed to initialize monitor: %w", err)
	}
	defer func() {
		if err := mon.Close(); err != nil {
			log.Error("Failed to close monitor", zap.Error(err))
		}
	}()

	bootCtx, bootCancel := context.WithTimeout(ctx, 30*time.Second)
	if err := mon.Bootstrap(bootCtx); err != nil {
		log.Warn("Some configured agents failed to register", zap.Error(err))
	}
	bootCancel()

	mon.Start()

	var server *http.Server
	serverErr := make(chan error, 1)
	if cfg.Server.Enabled {
		router := api.NewRouter(cfg, mon, log)
		server = &http.Server{
			Addr:         cfg.Server.Address,
			Handler:      router.Handler(),
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		}

		go func() {
			log.Info("Starting server", zap.String("address", cfg.Server.Address))
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serverErr <- err
			}
		}()
	}

	// Handle signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.Info("Received signal", zap.String("signal", sig.String()))
	case err := <-serverErr:
		return fmt.Errorf("server error: %w", err)
	}

	// Graceful shutdown
	log.Info("Starting graceful shutdown")
	if server != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error("Server shutdown error", zap.Error(err))
		}
	}

	mon.Stop()
	log.Info("Shutdown complete")
	return nil
}
