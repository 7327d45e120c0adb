package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/mnemoapp/mnemo/internal/queue"
)

func newQueueCommand() *cobra.Command {
	queueCommands := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and repair the offline operation queue",
	}

	queueCommands.AddCommand(
		newQueueListCommand(),
		newQueueHealthCommand(),
		newQueueRetryCommand(),
		newQueueCancelCommand(),
		newQueueClearFailedCommand(),
		newQueueClearOldCommand(),
		newQueueExportCommand(),
		newQueueImportCommand(),
	)

	return queueCommands
}

func newQueueListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List pending operations and recent failures",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			db, _, q, err := loadQueue(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() {
				_ = db.Close()
			}()

			ops := q.Operations()
			if len(ops) == 0 {
				fmt.Println("The queue is empty.")
			} else {
				fmt.Printf("%-38s %-22s %-8s %-8s %-7s %s\n",
					"ID", "TYPE", "PRIORITY", "STATUS", "RETRIES", "NEXT ATTEMPT")
				for _, op := range ops {
					fmt.Printf("%-38s %-22s %-8s %-8s %3d/%-3d %s\n",
						op.ID, op.Type, op.Priority, op.Status,
						op.RetryCount, op.MaxRetries, op.NextAttemptAt.Format(time.RFC3339))
				}
			}

			errs := q.Errors()
			if len(errs) > 0 {
				fmt.Printf("\n%d failed operations:\n", len(errs))
				for _, failed := range errs {
					fmt.Printf("  %-38s %s  %s\n",
						failed.Operation.ID, failed.FailedAt.Format(time.RFC3339), failed.Error)
				}
			}
			return nil
		},
	}
}

func newQueueHealthCommand() *cobra.Command {
	var remediate bool

	command := &cobra.Command{
		Use:   "health",
		Short: "Report queue pressure against the warning and critical thresholds",
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

			var health queue.HealthReport
			if remediate {
				health = q.Remediate()
			} else {
				health = q.Health()
			}

			fmt.Printf("Level:             %s\n", health.Level)
			fmt.Printf("Queue size:        %d\n", health.QueueSize)
			fmt.Printf("Error count:       %d\n", health.ErrorCount)
			fmt.Printf("Avg retry count:   %.2f\n", health.AvgRetryCount)
			fmt.Printf("Oldest pending:    %s\n", health.OldestPending)
			fmt.Printf("Batch size boost:  %v\n", health.BatchSizeBoost)
			for _, issue := range health.Issues {
				fmt.Printf("  - %s\n", issue)
			}

			if remediate {
				return saveQueue(ctx, store, q)
			}
			return nil
		},
	}
	command.Flags().BoolVar(&remediate, "remediate", false, "Apply the remediation for the current health level")

	return command
}

func newQueueRetryCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "retry <operation id>",
		Short: "Reset an operation's retry budget and schedule it for an immediate attempt",
		Args:  cobra.ExactArgs(1),
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

			if !q.RetryOperation(args[0]) {
				return fmt.Errorf("operation %q is not in the queue or the error list", args[0])
			}
			fmt.Printf("Operation %s scheduled for an immediate retry\n", args[0])
			return saveQueue(ctx, store, q)
		},
	}
}

func newQueueCancelCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <operation id>",
		Short: "Remove a pending operation from the queue",
		Args:  cobra.ExactArgs(1),
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

			if !q.CancelOperation(args[0]) {
				return fmt.Errorf("operation %q is not in the queue", args[0])
			}
			fmt.Printf("Operation %s cancelled\n", args[0])
			return saveQueue(ctx, store, q)
		},
	}
}

func newQueueClearFailedCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "clear-failed",
		Short: "Empty the failed operation list",
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

			cleared := q.ClearFailedOperations()
			fmt.Printf("Cleared %d failed operations\n", cleared)
			return saveQueue(ctx, store, q)
		},
	}
}

func newQueueClearOldCommand() *cobra.Command {
	var maxAge time.Duration

	command := &cobra.Command{
		Use:   "clear-old",
		Short: "Drop pending operations older than the given age",
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

			removed := q.ClearOldOperations(maxAge)
			fmt.Printf("Removed %d operations older than %s\n", removed, maxAge)
			return saveQueue(ctx, store, q)
		},
	}
	command.Flags().DurationVar(&maxAge, "age", 24*time.Hour, "Age beyond which pending operations are dropped")

	return command
}

func newQueueExportCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "export <file>",
		Short: "Export the queue state to a JSON file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			db, _, q, err := loadQueue(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() {
				_ = db.Close()
			}()

			snap, err := q.Snapshot()
			if err != nil {
				return fmt.Errorf("queue.Snapshot() > %w", err)
			}
			raw, err := json.MarshalIndent(snap, "", "  ")
			if err != nil {
				return fmt.Errorf("json.MarshalIndent() > %w", err)
			}
			if err := os.WriteFile(args[0], raw, 0644); err != nil {
				return fmt.Errorf("os.WriteFile(%s) > %w", args[0], err)
			}
			fmt.Printf("Exported %d operations to %s\n", len(snap.Operations), args[0])
			return nil
		},
	}
}

func newQueueImportCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Import a queue state file, appending to the persisted queue",
		Args:  cobra.ExactArgs(1),
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

			raw, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("os.ReadFile(%s) > %w", args[0], err)
			}
			var snap queue.QueueSnapshot
			if err := json.Unmarshal(raw, &snap); err != nil {
				return fmt.Errorf("json.Unmarshal() > %w", err)
			}
			if err := q.Restore(snap); err != nil {
				return fmt.Errorf("queue.Restore() > %w", err)
			}
			fmt.Printf("Imported %d operations from %s\n", len(snap.Operations), args[0])
			return saveQueue(ctx, store, q)
		},
	}
}
