package main

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/mnemoapp/mnemo/internal/config"
	"github.com/mnemoapp/mnemo/internal/queue"
	"github.com/mnemoapp/mnemo/internal/storage"
)

func loadConfig() (*config.Config, error) {
	loader, err := config.NewConfigLoader(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to create config loader: %w", err)
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

// openStore opens the local database and ensures the schema exists. The
// caller owns the returned handle and must close it.
func openStore(ctx context.Context, path string) (*sqlx.DB, *storage.Store, error) {
	db, err := storage.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("storage.Open(%s) > %w", path, err)
	}
	store := storage.NewStore(db)
	if err := store.Init(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("store.Init() > %w", err)
	}
	return db, store, nil
}

// loadQueue opens the store and restores the persisted queue state into a
// fresh queue.
func loadQueue(ctx context.Context, cfg *config.Config) (*sqlx.DB, *storage.Store, *queue.Queue, error) {
	db, store, err := openStore(ctx, cfg.Storage.Path)
	if err != nil {
		return nil, nil, nil, err
	}

	q := queue.New(queueConfig(cfg))
	snap, err := store.LoadQueueSnapshot(ctx)
	if err != nil {
		_ = db.Close()
		return nil, nil, nil, fmt.Errorf("store.LoadQueueSnapshot() > %w", err)
	}
	if !snap.ExportedAt.IsZero() {
		if err := q.Restore(snap); err != nil {
			_ = db.Close()
			return nil, nil, nil, fmt.Errorf("queue.Restore() > %w", err)
		}
	}
	return db, store, q, nil
}

// saveQueue writes the queue state back into the store.
func saveQueue(ctx context.Context, store *storage.Store, q *queue.Queue) error {
	snap, err := q.Snapshot()
	if err != nil {
		return fmt.Errorf("queue.Snapshot() > %w", err)
	}
	if err := store.SaveQueueSnapshot(ctx, snap); err != nil {
		return fmt.Errorf("store.SaveQueueSnapshot() > %w", err)
	}
	return nil
}
