package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mnemoapp/mnemo/internal/cli"
	"github.com/mnemoapp/mnemo/internal/deck"
	"github.com/mnemoapp/mnemo/internal/fsrs"
)

func newPreviewCommand() *cobra.Command {
	command := &cobra.Command{
		Use:   "preview <deck file> <card id>",
		Short: "Preview the four scheduling outcomes for a card without reviewing it",
		Args:  cobra.ExactArgs(2),
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
			cardID := args[1]
			item, ok := d.Item(cardID)
			if !ok {
				return fmt.Errorf("card %q is not in deck %s", cardID, args[0])
			}

			db, store, err := openStore(ctx, cfg.Storage.Path)
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
			cardStore.AddDeck(d, now)

			info, ok := cardStore.Preview(cardID, now)
			if !ok {
				return fmt.Errorf("card %q is not tracked", cardID)
			}
			cli.WritePreview(cmd.OutOrStdout(), item, info, now)
			return nil
		},
	}

	return command
}
