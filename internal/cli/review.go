// Package cli implements the interactive terminal sessions of the mnemo
// command.
package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/mnemoapp/mnemo/internal/deck"
	"github.com/mnemoapp/mnemo/internal/fsrs"
	"github.com/mnemoapp/mnemo/internal/queue"
)

var errEnd = errors.New("end")

type Session interface {
	Session(ctx context.Context) error
}

// Run drives a session until it ends, an error occurs or an interrupt
// arrives.
func Run(ctx context.Context, session Session) error {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt)
	defer cancel()

	errCh := make(chan error)
	go func() {
		defer close(errCh)

	LOOP:
		for {
			select {
			case <-ctx.Done():
				break LOOP
			default:
			}

			if err := session.Session(ctx); err != nil {
				if errors.Is(err, errEnd) {
					break
				}
				errCh <- err
				break
			}
		}
	}()
	select {
	case <-ctx.Done():
		fmt.Println("Received interrupt signal, exiting...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("error: %w", err)
		}
	}
	return nil
}

// ReviewSession runs an interactive flashcard review over the due cards of
// one deck. Each pass shows the front, reveals the back and applies the
// user's rating to the store; answers with numeric ids are queued for sync.
type ReviewSession struct {
	deck  deck.Deck
	store *deck.Store
	queue *queue.Queue
	now   func() time.Time

	stdinReader  *bufio.Reader
	stdoutWriter io.Writer
	bold         *color.Color
	italic       *color.Color
	green        *color.Color
	red          *color.Color

	pending  []string
	reviewed int
	correct  int
}

func NewReviewSession(d deck.Deck, store *deck.Store, q *queue.Queue) *ReviewSession {
	r := &ReviewSession{
		deck:         d,
		store:        store,
		queue:        q,
		now:          time.Now,
		stdinReader:  bufio.NewReader(os.Stdin),
		stdoutWriter: os.Stdout,
		bold:         color.New(color.Bold),
		italic:       color.New(color.Italic),
		green:        color.New(color.FgGreen),
		red:          color.New(color.FgRed),
	}
	for _, card := range store.DueCards(r.now()) {
		if _, ok := d.Item(card.ID); ok {
			r.pending = append(r.pending, card.ID)
		}
	}
	return r
}

// Remaining returns the number of cards left in this session.
func (r *ReviewSession) Remaining() int {
	return len(r.pending)
}

func (r *ReviewSession) Session(ctx context.Context) error {
	card, ok := r.nextCard()
	if !ok {
		r.printSummary()
		return errEnd
	}
	item, ok := r.deck.Item(card.ID)
	if !ok {
		r.pending = r.pending[1:]
		return nil
	}

	fmt.Fprintf(r.stdoutWriter, "\n[%d left] ", len(r.pending))
	_, _ = r.bold.Fprintf(r.stdoutWriter, "%s\n", item.Front)
	fmt.Fprint(r.stdoutWriter, "Press enter to reveal the answer (q to quit): ")

	shownAt := r.now()
	line, err := r.readLine()
	if err != nil {
		return err
	}
	if isQuit(line) {
		r.printSummary()
		return errEnd
	}

	if item.Back != "" {
		_, _ = r.italic.Fprintf(r.stdoutWriter, "%s\n", item.Back)
	}

	rating, quit, err := r.readRating()
	if err != nil {
		return err
	}
	if quit {
		r.printSummary()
		return errEnd
	}

	now := r.now()
	updated, ok := r.store.ReviewCard(card.ID, rating, now)
	if !ok {
		return fmt.Errorf("card %s is not in the store", card.ID)
	}

	interval := formatInterval(updated.Due.Sub(now))
	if rating == fsrs.Again {
		fmt.Fprint(r.stdoutWriter, "❌ ")
		_, _ = r.red.Fprintf(r.stdoutWriter, "Again, this card comes back %s\n", interval)
	} else {
		fmt.Fprint(r.stdoutWriter, "✅ ")
		_, _ = r.green.Fprintf(r.stdoutWriter, "Rated %s, next review %s\n", rating, interval)
	}

	r.enqueueAnswer(card.ID, rating, int(now.Sub(shownAt).Milliseconds()), now)

	r.reviewed++
	if rating != fsrs.Again {
		r.correct++
	}
	r.pending = r.pending[1:]
	if rating == fsrs.Again {
		// Lapsed cards return at the end of the session.
		r.pending = append(r.pending, card.ID)
	}
	return nil
}

func (r *ReviewSession) nextCard() (fsrs.Card, bool) {
	for len(r.pending) > 0 {
		card, ok := r.store.Card(r.pending[0])
		if !ok {
			r.pending = r.pending[1:]
			continue
		}
		return card, true
	}
	return fsrs.Card{}, false
}

// enqueueAnswer records the review for sync. Cards whose id is not a backend
// question id stay local.
func (r *ReviewSession) enqueueAnswer(cardID string, rating fsrs.Rating, responseMs int, now time.Time) {
	questionID, err := strconv.Atoi(cardID)
	if err != nil {
		return
	}
	r.queue.Enqueue(queue.Operation{
		Payload: queue.AnswerPayload{
			QuestionID:     questionID,
			IsCorrect:      rating != fsrs.Again,
			ResponseTimeMs: responseMs,
			Rating:         int(rating),
			AnsweredAt:     now,
			UpdatedAt:      now,
		},
		Priority: queue.PriorityHigh,
	})
}

func (r *ReviewSession) readLine() (string, error) {
	line, err := r.stdinReader.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) {
			return "q", nil
		}
		return "", fmt.Errorf("error reading input: %w", err)
	}
	return line, nil
}

func (r *ReviewSession) readRating() (fsrs.Rating, bool, error) {
	for {
		fmt.Fprint(r.stdoutWriter, "Rate your recall [1=again 2=hard 3=good 4=easy, enter=good, q=quit]: ")
		line, err := r.readLine()
		if err != nil {
			return 0, false, err
		}
		if isQuit(line) {
			return 0, true, nil
		}
		if rating, ok := parseRating(line); ok {
			return rating, false, nil
		}
		fmt.Fprintln(r.stdoutWriter, "Please answer 1-4, enter or q.")
	}
}

func (r *ReviewSession) printSummary() {
	if r.reviewed == 0 && len(r.pending) == 0 {
		fmt.Fprintln(r.stdoutWriter, "No cards due. Come back later!")
		return
	}
	fmt.Fprintf(r.stdoutWriter, "\nSession complete: %d reviewed, %d correct.\n", r.reviewed, r.correct)
}

func isQuit(line string) bool {
	trimmed := strings.ToLower(strings.TrimSpace(line))
	return trimmed == "q" || trimmed == "quit"
}

func parseRating(line string) (fsrs.Rating, bool) {
	switch strings.TrimSpace(line) {
	case "":
		return fsrs.Good, true
	case "1":
		return fsrs.Again, true
	case "2":
		return fsrs.Hard, true
	case "3":
		return fsrs.Good, true
	case "4":
		return fsrs.Easy, true
	}
	return 0, false
}

func formatInterval(d time.Duration) string {
	switch {
	case d < time.Hour:
		return fmt.Sprintf("in %dm", int(d.Minutes()))
	case d < 48*time.Hour:
		return fmt.Sprintf("in %dh", int(d.Hours()))
	default:
		return fmt.Sprintf("in %dd", int(d.Hours()/24))
	}
}

// WritePreview renders the four scheduling branches of one card without
// applying any of them.
func WritePreview(w io.Writer, item deck.Item, info fsrs.SchedulingInfo, now time.Time) {
	bold := color.New(color.Bold)
	_, _ = bold.Fprintf(w, "%s\n", item.Front)
	branches := []struct {
		rating  fsrs.Rating
		preview fsrs.Preview
	}{
		{fsrs.Again, info.Again},
		{fsrs.Hard, info.Hard},
		{fsrs.Good, info.Good},
		{fsrs.Easy, info.Easy},
	}
	for _, branch := range branches {
		card := branch.preview.Card
		fmt.Fprintf(w, "  %-5s -> %-10s due %-7s stability %6.2f  difficulty %.2f\n",
			branch.rating, card.State, formatInterval(card.Due.Sub(now)),
			card.Stability, card.Difficulty)
	}
}
