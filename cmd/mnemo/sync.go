package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mnemoapp/mnemo/internal/cache"
	"github.com/mnemoapp/mnemo/internal/conflict"
	"github.com/mnemoapp/mnemo/internal/syncer"
	"github.com/mnemoapp/mnemo/internal/transport"
)

func newSyncCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Drain the offline queue against the backend once",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			db, store, q, err := loadQueue(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() {
				_ = db.Close()
			}()

			if q.Len() == 0 {
				fmt.Println("The queue is empty, nothing to sync.")
				return nil
			}

			client := transport.New(transport.Config{
				BaseURL:       cfg.API.BaseURL,
				AuthToken:     cfg.API.Token,
				Timeout:       cfg.API.Timeout,
				RetryAttempts: cfg.API.RetryAttempts,
			})
			defer func() {
				_ = client.Close()
			}()

			coordinator := syncer.New(q, conflict.NewEngine(), cache.New(), client,
				syncer.WithOperationTimeout(cfg.Sync.OperationTimeout),
				syncer.WithMaxConcurrent(cfg.Sync.MaxConcurrent),
				syncer.WithBatchDelay(cfg.Queue.BatchDelay),
			)
			result := coordinator.DrainOnce(ctx)
			fmt.Printf("Synced %d of %d operations (%d failed, %d conflicts resolved)\n",
				result.Succeeded, result.Attempted, result.Failed, result.Conflicts)

			return saveQueue(ctx, store, q)
		},
	}
}
