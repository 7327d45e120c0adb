package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mnemoapp/mnemo/internal/deck"
	"github.com/mnemoapp/mnemo/internal/fsrs"
	"github.com/mnemoapp/mnemo/internal/report"
	"github.com/mnemoapp/mnemo/internal/statistics"
)

func newStatsCommand() *cobra.Command {
	var generatePDF bool
	var year, month int

	command := &cobra.Command{
		Use:   "stats",
		Short: "Generate a study report from the review history",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			if month != 0 && year == 0 {
				return fmt.Errorf("--month requires --year")
			}

			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}

			db, store, err := openStore(ctx, cfg.Storage.Path)
			if err != nil {
				return err
			}
			defer func() {
				_ = db.Close()
			}()

			logs, err := store.ReviewLogs(ctx, time.Time{})
			if err != nil {
				return fmt.Errorf("store.ReviewLogs() > %w", err)
			}

			now := time.Now()
			data := report.StudyReport{
				Title:       "Study Report",
				GeneratedAt: now,
				Result:      statistics.CalculateStatistics(logs, year, month),
			}

			cards, err := store.LoadCards(ctx)
			if err != nil {
				return fmt.Errorf("store.LoadCards() > %w", err)
			}
			if len(cards) > 0 {
				cardStore := deck.NewStore(fsrs.NewScheduler(cfg.FSRS.Parameters()))
				cardStore.RestoreState(cards)
				stats := cardStore.StudyStats(now)
				data.Deck = &stats
			}

			outputFilename, err := report.OutputStudyReport(
				data, cfg.Storage.ReportsDirectory, "study-report", cfg.Storage.ReportTemplate, generatePDF)
			if err != nil {
				return fmt.Errorf("report.OutputStudyReport() > %w", err)
			}
			fmt.Printf("Report generated at: %s\n", outputFilename)
			return nil
		},
	}

	command.Flags().BoolVar(&generatePDF, "pdf", false, "Generate PDF output in addition to markdown")
	command.Flags().IntVar(&year, "year", 0, "Limit the report to one year")
	command.Flags().IntVar(&month, "month", 0, "Limit the report to one month, requires --year")

	return command
}
