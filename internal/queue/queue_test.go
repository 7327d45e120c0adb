package queue

import (
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestQueue(cfg Config, current *time.Time) *Queue {
	return New(cfg,
		WithClock(func() time.Time { return *current }),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
}

func answerOp(questionID int, priority Priority) Operation {
	return Operation{
		Payload: AnswerPayload{
			QuestionID: questionID,
			IsCorrect:  true,
			AnsweredAt: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC),
			UpdatedAt:  time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC),
		},
		Priority: priority,
		UserID:   "7",
	}
}

func TestQueue_EnqueueStampsDefaults(t *testing.T) {
	current := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	q := newTestQueue(Config{}, &current)

	id := q.Enqueue(answerOp(1, PriorityMedium))
	require.NotEmpty(t, id)

	ops := q.Operations()
	require.Len(t, ops, 1)
	op := ops[0]
	assert.Equal(t, id, op.ID)
	assert.Equal(t, TypeAnswerSubmit, op.Type)
	assert.Equal(t, StatusPending, op.Status)
	assert.Equal(t, current, op.Timestamp)
	assert.Equal(t, current, op.NextAttemptAt)
	assert.Equal(t, 0, op.RetryCount)
	assert.Equal(t, 3, op.MaxRetries)
}

func TestQueue_HighPriorityJumpsQueue(t *testing.T) {
	current := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	q := newTestQueue(Config{}, &current)

	for i := range 5 {
		q.Enqueue(answerOp(i, PriorityMedium))
	}
	highFirst := q.Enqueue(answerOp(100, PriorityHigh))
	highSecond := q.Enqueue(answerOp(101, PriorityHigh))

	ops := q.Operations()
	require.Len(t, ops, 7)
	// Both high-priority operations sit in front of the medium backlog,
	// FIFO between themselves.
	assert.Equal(t, highFirst, ops[0].ID)
	assert.Equal(t, highSecond, ops[1].ID)
	for _, op := range ops[2:] {
		assert.Equal(t, PriorityMedium, op.Priority)
	}

	batch := q.ClaimBatch(current, 1)
	require.Len(t, batch, 1)
	assert.Equal(t, highFirst, batch[0].ID)
}

func TestQueue_ClaimBatch(t *testing.T) {
	current := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	q := newTestQueue(Config{}, &current)

	for i := range 4 {
		q.Enqueue(answerOp(i, PriorityMedium))
	}

	t.Run("respects batch size", func(t *testing.T) {
		batch := q.ClaimBatch(current, 3)
		assert.Len(t, batch, 3)
		for _, op := range batch {
			assert.Equal(t, StatusSyncing, op.Status)
		}
	})

	t.Run("never claims a syncing operation twice", func(t *testing.T) {
		batch := q.ClaimBatch(current, 10)
		require.Len(t, batch, 1)

		assert.Empty(t, q.ClaimBatch(current, 10))
	})
}

func TestQueue_ClaimBatchSkipsBackoff(t *testing.T) {
	current := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	q := newTestQueue(Config{RetryDelay: 2 * time.Second}, &current)

	id := q.Enqueue(answerOp(1, PriorityMedium))
	require.Len(t, q.ClaimBatch(current, 1), 1)
	require.True(t, q.MarkFailed(id, errors.New("network down")))

	// First retry waits RetryDelay x 1.
	assert.Empty(t, q.ClaimBatch(current, 1))
	assert.Empty(t, q.ClaimBatch(current.Add(time.Second), 1))

	batch := q.ClaimBatch(current.Add(2*time.Second), 1)
	require.Len(t, batch, 1)
	assert.Equal(t, 1, batch[0].RetryCount)
	assert.Equal(t, "network down", batch[0].LastError)
}

func TestQueue_MarkCompleted(t *testing.T) {
	current := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	q := newTestQueue(Config{}, &current)

	id := q.Enqueue(answerOp(1, PriorityMedium))
	require.Len(t, q.ClaimBatch(current, 1), 1)

	assert.True(t, q.MarkCompleted(id, 120*time.Millisecond))
	assert.Equal(t, 0, q.Len())
	assert.False(t, q.MarkCompleted(id, 0))

	m := q.Metrics()
	assert.Equal(t, int64(1), m.TotalOperations)
	assert.Equal(t, int64(1), m.SuccessfulSyncs)
	assert.Equal(t, 120*time.Millisecond, m.AverageSyncTime)
}

func TestQueue_RetryExhaustion(t *testing.T) {
	current := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	q := newTestQueue(Config{MaxRetries: 3, RetryDelay: 2 * time.Second}, &current)

	id := q.Enqueue(answerOp(1, PriorityMedium))

	// Attempts one and two go back to pending with a growing delay.
	for attempt := 1; attempt <= 2; attempt++ {
		batch := q.ClaimBatch(current, 1)
		require.Len(t, batch, 1, "attempt %d", attempt)
		require.True(t, q.MarkFailed(id, errors.New("server unavailable")))
		assert.Equal(t, 1, q.Len())

		current = current.Add(time.Minute)
	}

	// The third failed attempt exhausts the budget.
	require.Len(t, q.ClaimBatch(current, 1), 1)
	require.True(t, q.MarkFailed(id, errors.New("server unavailable")))

	assert.Equal(t, 0, q.Len())
	errs := q.Errors()
	require.Len(t, errs, 1)
	assert.Equal(t, id, errs[0].Operation.ID)
	assert.Equal(t, 3, errs[0].Operation.RetryCount)
	assert.Equal(t, StatusFailed, errs[0].Operation.Status)
	assert.Equal(t, "server unavailable", errs[0].Error)
	assert.Equal(t, current, errs[0].FailedAt)
	assert.Equal(t, int64(1), q.Metrics().FailedSyncs)
}

func TestQueue_RetryDelayCapped(t *testing.T) {
	current := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	q := newTestQueue(Config{
		MaxRetries:    10,
		RetryDelay:    2 * time.Second,
		MaxRetryDelay: 3 * time.Second,
	}, &current)

	id := q.Enqueue(answerOp(1, PriorityMedium))

	require.Len(t, q.ClaimBatch(current, 1), 1)
	require.True(t, q.MarkFailed(id, errors.New("boom")))
	assert.Equal(t, current.Add(2*time.Second), q.Operations()[0].NextAttemptAt)

	// The second delay would be 4s but is capped at 3s.
	require.Len(t, q.ClaimBatch(current.Add(2*time.Second), 1), 1)
	require.True(t, q.MarkFailed(id, errors.New("boom")))
	assert.Equal(t, current.Add(3*time.Second), q.Operations()[0].NextAttemptAt)
}

func TestQueue_ErrorHistoryBounded(t *testing.T) {
	current := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	q := newTestQueue(Config{MaxRetries: 1, ErrorHistorySize: 3}, &current)

	var last string
	for i := range 5 {
		id := q.Enqueue(answerOp(i, PriorityMedium))
		require.Len(t, q.ClaimBatch(current, 1), 1)
		require.True(t, q.MarkFailed(id, errors.New("boom")))
		last = id
	}

	errs := q.Errors()
	require.Len(t, errs, 3)
	assert.Equal(t, last, errs[2].Operation.ID)
}

func TestQueue_Requeue(t *testing.T) {
	current := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	q := newTestQueue(Config{}, &current)

	id := q.Enqueue(answerOp(1, PriorityMedium))
	require.Len(t, q.ClaimBatch(current, 1), 1)

	assert.True(t, q.Requeue(id))
	// No retry penalty: immediately claimable again.
	batch := q.ClaimBatch(current, 1)
	require.Len(t, batch, 1)
	assert.Equal(t, 0, batch[0].RetryCount)

	assert.False(t, q.Requeue("missing"))
}

func TestQueue_ClearOldOperations(t *testing.T) {
	current := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	q := newTestQueue(Config{}, &current)

	stale := q.Enqueue(answerOp(1, PriorityMedium))
	current = current.Add(48 * time.Hour)
	fresh := q.Enqueue(answerOp(2, PriorityMedium))

	assert.Equal(t, 1, q.ClearOldOperations(24*time.Hour))

	ops := q.Operations()
	require.Len(t, ops, 1)
	assert.Equal(t, fresh, ops[0].ID)
	assert.NotEqual(t, stale, ops[0].ID)
}

func TestQueue_PrioritizeOperations(t *testing.T) {
	current := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	q := newTestQueue(Config{}, &current)

	a := q.Enqueue(answerOp(1, PriorityMedium))
	goal := 30
	s1 := q.Enqueue(Operation{
		Payload:  SettingsPayload{DailyGoal: &goal, UpdatedAt: current},
		Priority: PriorityLow,
	})
	b := q.Enqueue(answerOp(2, PriorityMedium))
	s2 := q.Enqueue(Operation{
		Payload:  SettingsPayload{DailyGoal: &goal, UpdatedAt: current},
		Priority: PriorityLow,
	})

	assert.Equal(t, 2, q.PrioritizeOperations(TypeSettingsUpdate, PriorityHigh))

	ops := q.Operations()
	require.Len(t, ops, 4)
	// Settings jump to the front, FIFO preserved within each tier.
	assert.Equal(t, []string{s1, s2, a, b},
		[]string{ops[0].ID, ops[1].ID, ops[2].ID, ops[3].ID})

	// Already retagged: nothing left to change.
	assert.Equal(t, 0, q.PrioritizeOperations(TypeSettingsUpdate, PriorityHigh))
}

func TestQueue_RetryOperation(t *testing.T) {
	current := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	q := newTestQueue(Config{MaxRetries: 1}, &current)

	t.Run("restores terminally failed operation", func(t *testing.T) {
		id := q.Enqueue(answerOp(1, PriorityMedium))
		require.Len(t, q.ClaimBatch(current, 1), 1)
		require.True(t, q.MarkFailed(id, errors.New("boom")))
		require.Empty(t, q.Operations())

		assert.True(t, q.RetryOperation(id))

		assert.Empty(t, q.Errors())
		ops := q.Operations()
		require.Len(t, ops, 1)
		assert.Equal(t, id, ops[0].ID)
		assert.Equal(t, 0, ops[0].RetryCount)
		assert.Equal(t, StatusPending, ops[0].Status)
		assert.Empty(t, ops[0].LastError)
	})

	t.Run("moves pending operation to the front", func(t *testing.T) {
		other := q.Enqueue(answerOp(2, PriorityMedium))
		target := q.Enqueue(answerOp(3, PriorityMedium))

		assert.True(t, q.RetryOperation(target))

		ops := q.Operations()
		assert.Equal(t, target, ops[0].ID)
		assert.Equal(t, other, ops[2].ID)
	})

	t.Run("unknown id", func(t *testing.T) {
		assert.False(t, q.RetryOperation("missing"))
	})
}

func TestQueue_DuplicateOperation(t *testing.T) {
	current := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	q := newTestQueue(Config{}, &current)

	id := q.Enqueue(answerOp(1, PriorityHigh))
	require.Len(t, q.ClaimBatch(current, 1), 1)
	require.True(t, q.MarkFailed(id, errors.New("boom")))

	cloneID, ok := q.DuplicateOperation(id)
	require.True(t, ok)
	assert.NotEqual(t, id, cloneID)

	ops := q.Operations()
	require.Len(t, ops, 2)
	clone := ops[1]
	if ops[0].ID == cloneID {
		clone = ops[0]
	}
	assert.Equal(t, 0, clone.RetryCount)
	assert.Equal(t, StatusPending, clone.Status)
	assert.Empty(t, clone.LastError)
	assert.Equal(t, PriorityHigh, clone.Priority)

	_, ok = q.DuplicateOperation("missing")
	assert.False(t, ok)
}

func TestQueue_CancelOperation(t *testing.T) {
	current := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	q := newTestQueue(Config{}, &current)

	id := q.Enqueue(answerOp(1, PriorityMedium))

	assert.True(t, q.CancelOperation(id))
	assert.Equal(t, 0, q.Len())
	assert.False(t, q.CancelOperation(id))
}

func TestQueue_ClearFailedOperations(t *testing.T) {
	current := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	q := newTestQueue(Config{MaxRetries: 1}, &current)

	id := q.Enqueue(answerOp(1, PriorityMedium))
	require.Len(t, q.ClaimBatch(current, 1), 1)
	require.True(t, q.MarkFailed(id, errors.New("boom")))

	assert.Equal(t, 1, q.ClearFailedOperations())
	assert.Empty(t, q.Errors())
	assert.Equal(t, 0, q.ClearFailedOperations())
}

func TestQueue_Metrics(t *testing.T) {
	current := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	q := newTestQueue(Config{}, &current)

	first := q.Enqueue(answerOp(1, PriorityMedium))
	second := q.Enqueue(answerOp(2, PriorityMedium))
	q.Enqueue(answerOp(3, PriorityMedium))

	require.Len(t, q.ClaimBatch(current, 2), 2)
	require.True(t, q.MarkCompleted(first, 100*time.Millisecond))
	require.True(t, q.MarkCompleted(second, 300*time.Millisecond))

	m := q.Metrics()
	assert.Equal(t, int64(3), m.TotalOperations)
	assert.Equal(t, int64(2), m.SuccessfulSyncs)
	assert.Equal(t, int64(0), m.FailedSyncs)
	assert.Equal(t, 200*time.Millisecond, m.AverageSyncTime)
	assert.Equal(t, 1, m.PendingOperations)
}
