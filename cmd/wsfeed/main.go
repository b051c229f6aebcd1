package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/feedwire/wsfeed/internal/config"
	"github.com/feedwire/wsfeed/internal/database"
	"github.com/feedwire/wsfeed/internal/pool"
	"github.com/feedwire/wsfeed/internal/recorder"
	"github.com/feedwire/wsfeed/internal/subscription"
	"github.com/feedwire/wsfeed/internal/transport"
	"github.com/feedwire/wsfeed/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/wsfeed.yaml", "path to config file")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	// Set up structured logging
	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	logger.Info("starting wsfeed",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		"instance_id", cfg.Instance.ID,
		"endpoints", len(cfg.Endpoints),
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Set up the optional frame recorder
	var g errgroup.Group
	consumerFor := func(endpoint string) subscription.Consumer {
		return func(msg transport.Message) {
			logger.Debug("frame received", "endpoint", endpoint, "bytes", len(msg.Data))
		}
	}

	if cfg.Recorder.Enabled {
		logger.Info("connecting to database",
			"host", cfg.Database.Postgres.Host,
			"port", cfg.Database.Postgres.Port,
			"database", cfg.Database.Postgres.Name,
		)

		db, err := database.Connect(ctx, cfg.Database.Postgres)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer db.Close()

		logger.Info("database connected")

		rec := recorder.New(cfg.Recorder, db, logger)
		g.Go(func() error {
			return rec.Run(ctx)
		})
		consumerFor = rec.Consumer
	}

	// Connection pool shared by every manager
	connPool := pool.New(ctx, &transport.WSDialer{Logger: logger}, logger)

	// One manager per endpoint
	managers := make([]*subscription.Manager, 0, len(cfg.Endpoints))
	for _, ep := range cfg.Endpoints {
		mgrCfg := subscription.Config{
			Addr:              ep.Addr,
			MaxMultiplex:      ep.MaxMultiplex,
			ConnectTimeout:    ep.ConnectTimeout,
			RetryWait:         ep.RetryWait,
			PollInterval:      ep.PollInterval,
			KeepalivePayload:  []byte(ep.KeepalivePayload),
			KeepaliveInterval: ep.KeepaliveInterval,
			IdleTolerance:     ep.IdleTolerance,
		}
		if ep.KeepalivePayload == "" {
			mgrCfg.KeepalivePayload = nil
		}

		name := ep.Name
		if name == "" {
			name = ep.Addr
		}

		mgr, err := subscription.NewManager(mgrCfg, connPool, consumerFor(name), logger)
		if err != nil {
			logger.Error("failed to create manager", "endpoint", name, "error", err)
			os.Exit(1)
		}

		for _, sub := range ep.Subscriptions {
			mgr.Subscribe([]byte(sub.Subscribe), []byte(sub.Unsubscribe), nil)
		}

		managers = append(managers, mgr)
		logger.Info("endpoint manager started",
			"endpoint", name,
			"subscriptions", len(ep.Subscriptions),
		)
	}

	logger.Info("wsfeed running", "instance_id", cfg.Instance.ID)

	// Wait for shutdown
	<-ctx.Done()

	logger.Info("shutting down...")

	// Kill the pool; every manager observes it and winds down.
	connPool.Kill()

	deadline := time.Now().Add(10 * time.Second)
	for _, mgr := range managers {
		select {
		case <-mgr.Done():
		case <-time.After(time.Until(deadline)):
			logger.Warn("shutdown timeout, forcing exit")
		}
	}

	// Recorder drains its remaining batch on context cancellation.
	if err := g.Wait(); err != nil {
		logger.Error("recorder error", "error", err)
	}

	logger.Info("wsfeed stopped")
}
