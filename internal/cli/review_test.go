package cli

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnemoapp/mnemo/internal/deck"
	"github.com/mnemoapp/mnemo/internal/fsrs"
	"github.com/mnemoapp/mnemo/internal/queue"
)

var testClock = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func testDeck() deck.Deck {
	return deck.Deck{
		Name: "traffic-signs",
		Items: []deck.Item{
			{ID: "101", Front: "What is the default speed limit in town?", Back: "50 km/h"},
			{ID: "102", Front: "Who has right of way at an unmarked crossing?", Back: "Traffic from the right"},
			{ID: "local-note", Front: "Mnemonic for rights of way", Back: "Right before left"},
		},
	}
}

func newTestReviewSession(t *testing.T, input string, cardIDs ...string) (*ReviewSession, *bytes.Buffer) {
	t.Helper()

	d := testDeck()
	store := deck.NewStore(fsrs.NewScheduler(fsrs.DefaultParameters()))
	for _, id := range cardIDs {
		store.AddCard(id, testClock)
	}
	q := queue.New(queue.Config{},
		queue.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))

	var out bytes.Buffer
	session := &ReviewSession{
		deck:         d,
		store:        store,
		queue:        q,
		now:          func() time.Time { return testClock },
		stdinReader:  bufio.NewReader(strings.NewReader(input)),
		stdoutWriter: &out,
		bold:         color.New(color.Bold),
		italic:       color.New(color.Italic),
		green:        color.New(color.FgGreen),
		red:          color.New(color.FgRed),
		pending:      cardIDs,
	}
	return session, &out
}

func TestReviewSession_Session(t *testing.T) {
	t.Run("good rating graduates the card", func(t *testing.T) {
		session, out := newTestReviewSession(t, "\n3\n", "101")

		err := session.Session(context.Background())

		require.NoError(t, err)
		card, ok := session.store.Card("101")
		require.True(t, ok)
		assert.Equal(t, fsrs.Learning, card.State)
		assert.Equal(t, 1, card.Reps)
		assert.Equal(t, 0, session.Remaining())

		ops := session.queue.Operations()
		require.Len(t, ops, 1)
		payload, ok := ops[0].Payload.(queue.AnswerPayload)
		require.True(t, ok)
		assert.Equal(t, 101, payload.QuestionID)
		assert.True(t, payload.IsCorrect)
		assert.Equal(t, 3, payload.Rating)
		assert.Equal(t, testClock, payload.AnsweredAt)
		assert.Equal(t, queue.PriorityHigh, ops[0].Priority)

		assert.Contains(t, out.String(), "50 km/h")
		assert.Contains(t, out.String(), "Rated good, next review in 24h")
	})

	t.Run("empty rating defaults to good", func(t *testing.T) {
		session, _ := newTestReviewSession(t, "\n\n", "101")

		err := session.Session(context.Background())

		require.NoError(t, err)
		card, _ := session.store.Card("101")
		assert.Equal(t, fsrs.Learning, card.State)
		assert.Equal(t, 1, session.correct)
	})

	t.Run("again requeues the card for this session", func(t *testing.T) {
		session, out := newTestReviewSession(t, "\n1\n", "101")

		err := session.Session(context.Background())

		require.NoError(t, err)
		assert.Equal(t, 1, session.Remaining())
		assert.Equal(t, 0, session.correct)

		ops := session.queue.Operations()
		require.Len(t, ops, 1)
		payload := ops[0].Payload.(queue.AnswerPayload)
		assert.False(t, payload.IsCorrect)
		assert.Contains(t, out.String(), "Again, this card comes back")
	})

	t.Run("quit before the reveal keeps the card untouched", func(t *testing.T) {
		session, _ := newTestReviewSession(t, "q\n", "101")

		err := session.Session(context.Background())

		assert.ErrorIs(t, err, errEnd)
		card, _ := session.store.Card("101")
		assert.Equal(t, fsrs.New, card.State)
		assert.Equal(t, 0, session.queue.Len())
	})

	t.Run("invalid rating input reprompts", func(t *testing.T) {
		session, out := newTestReviewSession(t, "\nx\n4\n", "101")

		err := session.Session(context.Background())

		require.NoError(t, err)
		card, _ := session.store.Card("101")
		assert.Equal(t, fsrs.Review, card.State)
		assert.Contains(t, out.String(), "Please answer 1-4")
	})

	t.Run("non-numeric card id is reviewed locally only", func(t *testing.T) {
		session, _ := newTestReviewSession(t, "\n3\n", "local-note")

		err := session.Session(context.Background())

		require.NoError(t, err)
		card, _ := session.store.Card("local-note")
		assert.Equal(t, fsrs.Learning, card.State)
		assert.Equal(t, 0, session.queue.Len())
	})

	t.Run("exhausted input ends the session", func(t *testing.T) {
		session, _ := newTestReviewSession(t, "", "101")

		err := session.Session(context.Background())

		assert.ErrorIs(t, err, errEnd)
	})

	t.Run("summary after the last card", func(t *testing.T) {
		session, out := newTestReviewSession(t, "\n3\n", "101")

		require.NoError(t, session.Session(context.Background()))
		err := session.Session(context.Background())

		assert.ErrorIs(t, err, errEnd)
		assert.Contains(t, out.String(), "Session complete: 1 reviewed, 1 correct.")
	})

	t.Run("no cards due", func(t *testing.T) {
		session, out := newTestReviewSession(t, "")

		err := session.Session(context.Background())

		assert.ErrorIs(t, err, errEnd)
		assert.Contains(t, out.String(), "No cards due")
	})
}

type sessionFunc func(ctx context.Context) error

func (f sessionFunc) Session(ctx context.Context) error { return f(ctx) }

func TestRun(t *testing.T) {
	t.Run("loops until the session ends", func(t *testing.T) {
		calls := 0
		err := Run(context.Background(), sessionFunc(func(ctx context.Context) error {
			calls++
			if calls == 3 {
				return errEnd
			}
			return nil
		}))
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("propagates session errors", func(t *testing.T) {
		want := errors.New("boom")
		err := Run(context.Background(), sessionFunc(func(ctx context.Context) error {
			return want
		}))
		assert.ErrorIs(t, err, want)
	})
}

func TestWritePreview(t *testing.T) {
	scheduler := fsrs.NewScheduler(fsrs.DefaultParameters())
	info := scheduler.Schedule(fsrs.NewCard("101", testClock), testClock)

	var out bytes.Buffer
	WritePreview(&out, deck.Item{ID: "101", Front: "Right of way?"}, info, testClock)

	got := out.String()
	assert.Contains(t, got, "Right of way?")
	for _, rating := range []string{"again", "hard", "good", "easy"} {
		assert.Contains(t, got, rating)
	}
	assert.Contains(t, got, "in 4d")
	assert.Contains(t, got, "in 6d")
}

func TestFormatInterval(t *testing.T) {
	tests := []struct {
		duration time.Duration
		want     string
	}{
		{0, "in 0m"},
		{30 * time.Minute, "in 30m"},
		{24 * time.Hour, "in 24h"},
		{47 * time.Hour, "in 47h"},
		{96 * time.Hour, "in 4d"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatInterval(tt.duration))
	}
}
