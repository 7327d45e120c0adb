package statistics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnemoapp/mnemo/internal/fsrs"
)

func reviewLog(cardID string, rating fsrs.Rating, state fsrs.State, at time.Time) fsrs.ReviewLog {
	return fsrs.ReviewLog{
		CardID:     cardID,
		Rating:     rating,
		State:      state,
		ReviewedAt: at,
	}
}

func testLogs() []fsrs.ReviewLog {
	march := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	april := time.Date(2025, 4, 2, 9, 0, 0, 0, time.UTC)

	return []fsrs.ReviewLog{
		reviewLog("q-1", fsrs.Good, fsrs.New, march),
		reviewLog("q-2", fsrs.Again, fsrs.New, march),
		reviewLog("q-1", fsrs.Good, fsrs.Learning, march.AddDate(0, 0, 1)),

		reviewLog("q-1", fsrs.Again, fsrs.Review, april),
		reviewLog("q-1", fsrs.Good, fsrs.Relearning, april.AddDate(0, 0, 1)),
		reviewLog("q-3", fsrs.Easy, fsrs.New, april.AddDate(0, 0, 2)),

		// Zero dates never count.
		reviewLog("q-9", fsrs.Good, fsrs.New, time.Time{}),
	}
}

func TestCalculateStatistics(t *testing.T) {
	result := CalculateStatistics(testLogs(), 0, 0)

	require.Len(t, result.Periods, 2)

	april := result.Periods[0]
	assert.Equal(t, "2025-04", april.Period)
	assert.Equal(t, 1, april.NewCards)
	assert.Equal(t, 3, april.Reviews)
	assert.Equal(t, 1, april.Lapses)
	assert.Equal(t, 2, april.UniqueCards)
	assert.InDelta(t, 2.0/3.0, april.CorrectRate, 0.0001)

	march := result.Periods[1]
	assert.Equal(t, "2025-03", march.Period)
	assert.Equal(t, 2, march.NewCards)
	assert.Equal(t, 3, march.Reviews)
	// Again on an unseen card is a hard start, not a lapse.
	assert.Equal(t, 0, march.Lapses)
	assert.Equal(t, 2, march.UniqueCards)
	assert.InDelta(t, 2.0/3.0, march.CorrectRate, 0.0001)

	assert.Equal(t, 3, result.Aggregate.NewCards)
	assert.Equal(t, 6, result.Aggregate.Reviews)
	assert.Equal(t, 1, result.Aggregate.Lapses)
	assert.Equal(t, 3, result.Aggregate.UniqueCards)
	assert.InDelta(t, 4.0/6.0, result.Aggregate.CorrectRate, 0.0001)
}

func TestCalculateStatistics_Filters(t *testing.T) {
	tests := []struct {
		name        string
		year        int
		month       int
		wantPeriods []string
		wantReviews int
	}{
		{
			name:        "year and month",
			year:        2025,
			month:       4,
			wantPeriods: []string{"2025-04"},
			wantReviews: 3,
		},
		{
			name:        "year only",
			year:        2025,
			wantPeriods: []string{"2025-04", "2025-03"},
			wantReviews: 6,
		},
		{
			name:        "no matching year",
			year:        2024,
			wantPeriods: []string{},
			wantReviews: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := CalculateStatistics(testLogs(), tt.year, tt.month)

			periods := make([]string, 0, len(result.Periods))
			for _, p := range result.Periods {
				periods = append(periods, p.Period)
			}
			assert.Equal(t, tt.wantPeriods, periods)
			assert.Equal(t, tt.wantReviews, result.Aggregate.Reviews)
		})
	}
}

func TestCalculateStatistics_Empty(t *testing.T) {
	result := CalculateStatistics(nil, 0, 0)

	assert.Empty(t, result.Periods)
	assert.Zero(t, result.Aggregate.Reviews)
	assert.Zero(t, result.Aggregate.CorrectRate)
}
