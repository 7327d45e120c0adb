package statistics

import (
	"fmt"
	"sort"

	"github.com/mnemoapp/mnemo/internal/fsrs"
)

// ReviewStatistics holds statistics for a time period
type ReviewStatistics struct {
	Period      string  // "2025-03" for monthly
	NewCards    int     // Cards reviewed for the first time
	Reviews     int     // Total reviews
	Lapses      int     // Forgotten cards (Again on a previously learned card)
	UniqueCards int     // Distinct cards reviewed
	CorrectRate float64 // Share of reviews rated Hard or better
}

// AggregateStatistics holds totals across all periods with global unique counts
type AggregateStatistics struct {
	NewCards    int
	Reviews     int
	Lapses      int
	UniqueCards int // Distinct cards reviewed (deduplicated across periods)
	CorrectRate float64
}

// StatisticsResult holds both per-period and aggregate statistics
type StatisticsResult struct {
	Periods   []ReviewStatistics
	Aggregate AggregateStatistics
}

// periodData tracks counts per period
type periodData struct {
	newCards int
	reviews  int
	lapses   int
	correct  int
	unique   map[string]struct{}
}

// CalculateStatistics calculates review statistics from the review history.
// It accepts optional year and month filters (0 means no filter).
// A log's State is the card's state before the review, so State New marks a
// first review and Again on any other state marks a lapse.
func CalculateStatistics(logs []fsrs.ReviewLog, year, month int) StatisticsResult {
	stats := make(map[string]*periodData)
	globalUnique := make(map[string]struct{})

	for _, log := range logs {
		if log.ReviewedAt.IsZero() {
			continue
		}

		logYear := log.ReviewedAt.Year()
		logMonth := int(log.ReviewedAt.Month())
		if !matchesFilter(logYear, logMonth, year, month) {
			continue
		}

		period := fmt.Sprintf("%d-%02d", logYear, logMonth)
		ensurePeriodExists(stats, period)
		data := stats[period]

		data.reviews++
		data.unique[log.CardID] = struct{}{}
		globalUnique[log.CardID] = struct{}{}

		if log.State == fsrs.New {
			data.newCards++
		}
		if log.Rating == fsrs.Again {
			if log.State != fsrs.New {
				data.lapses++
			}
		} else {
			data.correct++
		}
	}

	return buildResult(stats, globalUnique)
}

func ensurePeriodExists(stats map[string]*periodData, period string) {
	if stats[period] == nil {
		stats[period] = &periodData{
			unique: make(map[string]struct{}),
		}
	}
}

func matchesFilter(logYear, logMonth, filterYear, filterMonth int) bool {
	if filterYear == 0 {
		return true
	}
	if logYear != filterYear {
		return false
	}
	if filterMonth == 0 {
		return true
	}
	return logMonth == filterMonth
}

func buildResult(stats map[string]*periodData, globalUnique map[string]struct{}) StatisticsResult {
	periods := make([]ReviewStatistics, 0, len(stats))

	var totalNew, totalReviews, totalLapses, totalCorrect int
	for period, data := range stats {
		periods = append(periods, ReviewStatistics{
			Period:      period,
			NewCards:    data.newCards,
			Reviews:     data.reviews,
			Lapses:      data.lapses,
			UniqueCards: len(data.unique),
			CorrectRate: rate(data.correct, data.reviews),
		})
		totalNew += data.newCards
		totalReviews += data.reviews
		totalLapses += data.lapses
		totalCorrect += data.correct
	}

	// Sort by period descending (newest first)
	sort.Slice(periods, func(i, j int) bool {
		return periods[i].Period > periods[j].Period
	})

	return StatisticsResult{
		Periods: periods,
		Aggregate: AggregateStatistics{
			NewCards:    totalNew,
			Reviews:     totalReviews,
			Lapses:      totalLapses,
			UniqueCards: len(globalUnique),
			CorrectRate: rate(totalCorrect, totalReviews),
		},
	}
}

func rate(correct, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(correct) / float64(total)
}
