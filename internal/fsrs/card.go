package fsrs

import "time"

// Rating grades one review of a card.
type Rating int

const (
	Again Rating = iota + 1
	Hard
	Good
	Easy
)

func (r Rating) String() string {
	switch r {
	case Again:
		return "again"
	case Hard:
		return "hard"
	case Good:
		return "good"
	case Easy:
		return "easy"
	}
	return "unknown"
}

func (r Rating) Valid() bool {
	return r >= Again && r <= Easy
}

// State is the lifecycle phase of a card. The integer values match the
// backend's state column, so they round-trip through persistence unchanged.
type State int

const (
	New State = iota
	Learning
	Review
	Relearning
)

func (s State) String() string {
	switch s {
	case New:
		return "new"
	case Learning:
		return "learning"
	case Review:
		return "review"
	case Relearning:
		return "relearning"
	}
	return "unknown"
}

// Card is the memory state of one learnable item. Cards are created in state
// New and mutated only by applying a scheduler branch; the scheduler itself
// returns candidates without touching its input.
type Card struct {
	ID            string    `json:"id"`
	Due           time.Time `json:"due"`
	Stability     float64   `json:"stability"`
	Difficulty    float64   `json:"difficulty"`
	ElapsedDays   float64   `json:"elapsed_days"`
	ScheduledDays int       `json:"scheduled_days"`
	Reps          int       `json:"reps"`
	Lapses        int       `json:"lapses"`
	State         State     `json:"state"`
	LastReview    time.Time `json:"last_review,omitzero"`
}

// NewCard returns a card in state New, due immediately.
func NewCard(id string, now time.Time) Card {
	return Card{
		ID:    id,
		Due:   now,
		State: New,
	}
}

// ReviewLog is an immutable record of one rating event. It snapshots the card
// as it was before the review was applied.
type ReviewLog struct {
	CardID        string    `json:"card_id"`
	Rating        Rating    `json:"rating"`
	State         State     `json:"state"`
	Due           time.Time `json:"due"`
	Stability     float64   `json:"stability"`
	Difficulty    float64   `json:"difficulty"`
	ElapsedDays   float64   `json:"elapsed_days"`
	ScheduledDays int       `json:"scheduled_days"`
	ReviewedAt    time.Time `json:"reviewed_at"`
}

// Preview is one scheduling branch: the candidate next card together with the
// review log that applying it would produce.
type Preview struct {
	Card      Card
	ReviewLog ReviewLog
}

// SchedulingInfo holds the four candidate outcomes of reviewing a card now.
type SchedulingInfo struct {
	Again Preview
	Hard  Preview
	Good  Preview
	Easy  Preview
}

// Branch returns the preview matching rating.
func (i SchedulingInfo) Branch(rating Rating) Preview {
	switch rating {
	case Again:
		return i.Again
	case Hard:
		return i.Hard
	case Good:
		return i.Good
	case Easy:
		return i.Easy
	}
	panic("fsrs: invalid rating " + rating.String())
}
