package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/mnemoapp/mnemo/internal/bootstrap"
	"github.com/mnemoapp/mnemo/internal/cache"
	"github.com/mnemoapp/mnemo/internal/config"
	"github.com/mnemoapp/mnemo/internal/conflict"
	"github.com/mnemoapp/mnemo/internal/queue"
	"github.com/mnemoapp/mnemo/internal/server"
	"github.com/mnemoapp/mnemo/internal/storage"
	"github.com/mnemoapp/mnemo/internal/syncer"
	"github.com/mnemoapp/mnemo/internal/transport"
)

const connectivityProbeInterval = 15 * time.Second

var configFile string

func main() {
	rootCmd := &cobra.Command{
		Use:           "mnemo-agent",
		Short:         "Offline sync agent and local API for the quiz client",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context())
		},
	}
	rootCmd.Flags().StringVar(&configFile, "config", "", "config file path")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	app := bootstrap.New()
	log := slog.Default()

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loadConfig() > %w", err)
	}

	db, err := storage.Open(cfg.Storage.Path)
	if err != nil {
		return fmt.Errorf("storage.Open(%s) > %w", cfg.Storage.Path, err)
	}
	app.AddShutdownHook("storage", func(ctx context.Context) error {
		return db.Close()
	})
	store := storage.NewStore(db)
	if err := store.Init(ctx); err != nil {
		return fmt.Errorf("store.Init() > %w", err)
	}

	q := queue.New(queueConfig(cfg), queue.WithLogger(log))
	snap, err := store.LoadQueueSnapshot(ctx)
	if err != nil {
		return fmt.Errorf("store.LoadQueueSnapshot() > %w", err)
	}
	if !snap.ExportedAt.IsZero() {
		if err := q.Restore(snap); err != nil {
			return fmt.Errorf("queue.Restore() > %w", err)
		}
		log.Info("restored queue snapshot",
			slog.Int("operations", len(snap.Operations)),
			slog.Time("exported_at", snap.ExportedAt))
	}

	c := cache.New(cache.WithDefaultTTL(cfg.Cache.DefaultTTL))
	client := transport.New(transport.Config{
		BaseURL:       cfg.API.BaseURL,
		AuthToken:     cfg.API.Token,
		Timeout:       cfg.API.Timeout,
		RetryAttempts: cfg.API.RetryAttempts,
	})
	app.AddShutdownHook("transport", func(ctx context.Context) error {
		return client.Close()
	})

	coordinator := syncer.New(q, conflict.NewEngine(), c, client,
		syncer.WithInterval(cfg.Sync.Interval),
		syncer.WithOperationTimeout(cfg.Sync.OperationTimeout),
		syncer.WithMaxConcurrent(cfg.Sync.MaxConcurrent),
		syncer.WithBatchDelay(cfg.Queue.BatchDelay),
	)

	// The snapshot hook runs after the syncer has stopped, so the saved state
	// cannot race an in-flight drain.
	app.AddShutdownHook("queue snapshot", func(ctx context.Context) error {
		snap, err := q.Snapshot()
		if err != nil {
			return fmt.Errorf("queue.Snapshot() > %w", err)
		}
		return store.SaveQueueSnapshot(ctx, snap)
	})
	app.AddShutdownHook("syncer", func(ctx context.Context) error {
		coordinator.Stop()
		return nil
	})

	srv := server.New(cfg.Server.Addr, q, coordinator, c,
		server.WithAllowOrigin(cfg.Server.AllowOrigin))
	app.AddShutdownHook("server", srv.Shutdown)

	return app.Run(ctx, func(ctx context.Context) error {
		coordinator.Start(ctx)
		go probeConnectivity(ctx, client, coordinator)
		return srv.ListenAndServe()
	})
}

func loadConfig() (*config.Config, error) {
	loader, err := config.NewConfigLoader(configFile)
	if err != nil {
		return nil, fmt.Errorf("config.NewConfigLoader() > %w", err)
	}
	return loader.Load()
}

func queueConfig(cfg *config.Config) queue.Config {
	return queue.Config{
		MaxRetries:       cfg.Queue.MaxRetries,
		RetryDelay:       cfg.Queue.RetryDelay,
		MaxRetryDelay:    cfg.Queue.MaxRetryDelay,
		BatchSize:        cfg.Queue.BatchSize,
		BatchDelay:       cfg.Queue.BatchDelay,
		ErrorHistorySize: cfg.Queue.ErrorHistorySize,
	}
}

// probeConnectivity polls the backend health endpoint and reports reachability
// transitions to the coordinator. The coordinator forces a drain when the
// backend comes back.
func probeConnectivity(ctx context.Context, client *transport.Client, coordinator *syncer.Coordinator) {
	ticker := time.NewTicker(connectivityProbeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			online := client.Ping(ctx) == nil
			if online != coordinator.Online() {
				coordinator.SetOnline(online)
			}
		}
	}
}
