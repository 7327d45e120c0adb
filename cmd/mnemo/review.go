package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mnemoapp/mnemo/internal/cli"
	"github.com/mnemoapp/mnemo/internal/deck"
	"github.com/mnemoapp/mnemo/internal/fsrs"
)

func newReviewCommand() *cobra.Command {
	command := &cobra.Command{
		Use:   "review <deck file>",
		Short: "Review due cards from a deck interactively",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}

			d, err := deck.LoadFile(args[0])
			if err != nil {
				return fmt.Errorf("deck.LoadFile(%s) > %w", args[0], err)
			}

			db, store, q, err := loadQueue(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() {
				_ = db.Close()
			}()

			cards, err := store.LoadCards(ctx)
			if err != nil {
				return fmt.Errorf("store.LoadCards() > %w", err)
			}

			cardStore := deck.NewStore(fsrs.NewScheduler(cfg.FSRS.Parameters()))
			cardStore.RestoreState(cards)
			now := time.Now()
			if added := cardStore.AddDeck(d, now); added > 0 {
				fmt.Printf("Tracking %d new cards from %s\n", added, d.Name)
			}

			session := cli.NewReviewSession(d, cardStore, q)
			fmt.Printf("Starting review session with %d due cards\n\n", session.Remaining())
			runErr := cli.Run(ctx, session)

			// Reviewed progress is worth keeping even when the session
			// ended with an error.
			if err := store.SaveCards(ctx, cardStore.ExportState()); err != nil {
				return fmt.Errorf("store.SaveCards() > %w", err)
			}
			if err := store.AppendReviewLogs(ctx, cardStore.ReviewLogs()); err != nil {
				return fmt.Errorf("store.AppendReviewLogs() > %w", err)
			}
			if err := saveQueue(ctx, store, q); err != nil {
				return err
			}

			return runErr
		},
	}

	return command
}
