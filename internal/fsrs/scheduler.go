package fsrs

import (
	"math"
	"time"
)

const (
	minStability  = 0.1
	minDifficulty = 1.0
	maxDifficulty = 10.0

	hoursPerDay = 24
)

// Scheduler computes review schedules from card memory state. It is pure:
// Schedule never mutates its input and identical inputs produce identical
// outputs for a given parameter set.
type Scheduler struct {
	params Parameters
}

func NewScheduler(params Parameters) *Scheduler {
	return &Scheduler{params: params}
}

func (s *Scheduler) Parameters() Parameters {
	return s.params
}

// Schedule returns the four candidate next states for reviewing card at now,
// one per rating. The caller applies exactly one branch.
func (s *Scheduler) Schedule(card Card, now time.Time) SchedulingInfo {
	elapsed := 0.0
	if card.State != New && !card.LastReview.IsZero() {
		elapsed = math.Max(0, now.Sub(card.LastReview).Hours()/hoursPerDay)
	}
	return SchedulingInfo{
		Again: s.preview(card, Again, elapsed, now),
		Hard:  s.preview(card, Hard, elapsed, now),
		Good:  s.preview(card, Good, elapsed, now),
		Easy:  s.preview(card, Easy, elapsed, now),
	}
}

// Retrievability estimates the current recall probability of a reviewed card
// on the linear forgetting curve. New or never-reviewed cards report 0.
func (s *Scheduler) Retrievability(card Card, now time.Time) float64 {
	if card.State == New || card.LastReview.IsZero() || card.Stability <= 0 {
		return 0
	}
	elapsed := math.Max(0, now.Sub(card.LastReview).Hours()/hoursPerDay)
	return s.retention(elapsed, card.Stability)
}

func (s *Scheduler) preview(card Card, rating Rating, elapsed float64, now time.Time) Preview {
	return Preview{
		Card: s.next(card, rating, elapsed, now),
		ReviewLog: ReviewLog{
			CardID:        card.ID,
			Rating:        rating,
			State:         card.State,
			Due:           card.Due,
			Stability:     card.Stability,
			Difficulty:    card.Difficulty,
			ElapsedDays:   elapsed,
			ScheduledDays: card.ScheduledDays,
			ReviewedAt:    now,
		},
	}
}

func (s *Scheduler) next(card Card, rating Rating, elapsed float64, now time.Time) Card {
	if card.State == New {
		return s.nextFromNew(card, rating, now)
	}
	return s.nextFromReviewed(card, rating, elapsed, now)
}

// nextFromNew seeds stability and difficulty from the rating-indexed initial
// weights and applies the fixed first-interval offsets: Again and Good retry
// in a day, Hard defers, Easy graduates straight to Review.
func (s *Scheduler) nextFromNew(card Card, rating Rating, now time.Time) Card {
	next := card
	next.Stability = s.initialStability(rating)
	next.Difficulty = s.initialDifficulty(rating)
	next.ElapsedDays = 0
	next.Reps = 1
	next.LastReview = now

	switch rating {
	case Again:
		next.ScheduledDays = 1
		next.State = Learning
	case Hard:
		next.ScheduledDays = 6
		next.State = Learning
	case Good:
		next.ScheduledDays = 1
		next.State = Learning
	case Easy:
		next.ScheduledDays = 4
		next.State = Review
	default:
		panic("fsrs: invalid rating " + rating.String())
	}
	next.Due = now.AddDate(0, 0, next.ScheduledDays)
	return next
}

func (s *Scheduler) nextFromReviewed(card Card, rating Rating, elapsed float64, now time.Time) Card {
	retention := s.retention(elapsed, card.Stability)
	next := card
	next.Difficulty = s.nextDifficulty(card.Difficulty, rating)
	next.ElapsedDays = elapsed
	next.LastReview = now

	if rating == Again {
		next.Stability = s.forgetStability(next.Difficulty, card.Stability, retention)
		next.ScheduledDays = 0
		next.Due = now
		next.State = Relearning
		next.Lapses++
		return next
	}

	next.Stability = s.recallStability(next.Difficulty, card.Stability, retention, rating)
	next.ScheduledDays = s.nextInterval(next.Stability)
	next.Due = now.AddDate(0, 0, next.ScheduledDays)
	next.State = Review
	next.Reps++
	return next
}

func (s *Scheduler) initialStability(rating Rating) float64 {
	return math.Max(s.params.Weights[rating-1], minStability)
}

func (s *Scheduler) initialDifficulty(rating Rating) float64 {
	return clampDifficulty(s.params.Weights[4] - s.params.Weights[5]*float64(rating-Good))
}

// nextDifficulty shifts difficulty by the rating's deviation from Good, then
// mean-reverts toward the initial Good difficulty by w[7].
func (s *Scheduler) nextDifficulty(difficulty float64, rating Rating) float64 {
	w := s.params.Weights
	shifted := difficulty - w[6]*float64(rating-Good)
	reverted := w[7]*w[4] + (1-w[7])*shifted
	return clampDifficulty(reverted)
}

// retention is the linear forgetting-curve estimate of recall probability
// after elapsed days at the given stability, clamped to [0, 1] so that
// overdue reviews never push the stability update backwards.
func (s *Scheduler) retention(elapsed, stability float64) float64 {
	if stability <= 0 {
		return 0
	}
	return math.Min(1, math.Max(0, 1-elapsed/stability))
}

// recallStability grows stability after a successful review. Growth scales
// with how hard the card is (11-D), shrinks as stability accumulates, and is
// damped by the hard penalty or boosted by the easy bonus.
func (s *Scheduler) recallStability(difficulty, stability, retention float64, rating Rating) float64 {
	w := s.params.Weights
	hardPenalty := 1.0
	if rating == Hard {
		hardPenalty = w[15]
	}
	easyBonus := 1.0
	if rating == Easy {
		easyBonus = w[16]
	}
	growth := math.Exp(w[8]) *
		(11 - difficulty) *
		math.Pow(stability, -w[9]) *
		(math.Exp(w[10]*retention) - 1) *
		hardPenalty *
		easyBonus
	return stability * (1 + growth)
}

// forgetStability computes post-lapse stability. The result never exceeds the
// prior stability and never drops below the floor.
func (s *Scheduler) forgetStability(difficulty, stability, retention float64) float64 {
	w := s.params.Weights
	forget := w[11] *
		math.Pow(difficulty, -w[12]) *
		(math.Pow(stability+1, w[13]) - 1) *
		math.Exp(w[14]*retention)
	return math.Max(minStability, math.Min(forget, stability))
}

// nextInterval converts stability to a whole-day interval at the configured
// request retention, clamped to [1, MaximumInterval].
func (s *Scheduler) nextInterval(stability float64) int {
	interval := math.Round(stability * 9 * (1/s.params.RequestRetention - 1))
	if interval < 1 {
		return 1
	}
	if interval > float64(s.params.MaximumInterval) {
		return s.params.MaximumInterval
	}
	return int(interval)
}

func clampDifficulty(d float64) float64 {
	return math.Min(maxDifficulty, math.Max(minDifficulty, d))
}
