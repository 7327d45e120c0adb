package deck

import (
	"sync"
	"time"

	"github.com/mnemoapp/mnemo/internal/fsrs"
)

// Stats is the per-state breakdown of a store, recomputed on demand.
type Stats struct {
	Total      int `json:"total"`
	New        int `json:"new"`
	Learning   int `json:"learning"`
	Review     int `json:"review"`
	Relearning int `json:"relearning"`
	Due        int `json:"due"`
}

// Store owns the authoritative card set. Cards enter in state New and are
// only ever replaced by a scheduler branch; review logs accumulate as an
// append-only audit trail. All methods are safe for concurrent use.
type Store struct {
	mu        sync.RWMutex
	scheduler *fsrs.Scheduler
	cards     map[string]fsrs.Card
	order     []string
	logs      []fsrs.ReviewLog
}

func NewStore(scheduler *fsrs.Scheduler) *Store {
	return &Store{
		scheduler: scheduler,
		cards:     make(map[string]fsrs.Card),
	}
}

// AddCard registers a new card due immediately. Adding an existing id is a
// no-op returning the stored card unchanged.
func (s *Store) AddCard(id string, now time.Time) fsrs.Card {
	s.mu.Lock()
	defer s.mu.Unlock()

	if card, ok := s.cards[id]; ok {
		return card
	}
	card := fsrs.NewCard(id, now)
	s.cards[id] = card
	s.order = append(s.order, id)
	return card
}

// AddDeck registers every deck item, returning the number of cards that were
// actually new.
func (s *Store) AddDeck(deck Deck, now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	added := 0
	for _, item := range deck.Items {
		if _, ok := s.cards[item.ID]; ok {
			continue
		}
		s.cards[item.ID] = fsrs.NewCard(item.ID, now)
		s.order = append(s.order, item.ID)
		added++
	}
	return added
}

func (s *Store) Card(id string) (fsrs.Card, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	card, ok := s.cards[id]
	return card, ok
}

// ReviewCard applies one rating to the card: it schedules the four branches,
// keeps the one matching rating, and records its review log. Unknown ids
// report ok=false without error.
func (s *Store) ReviewCard(id string, rating fsrs.Rating, now time.Time) (fsrs.Card, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	card, ok := s.cards[id]
	if !ok {
		return fsrs.Card{}, false
	}
	branch := s.scheduler.Schedule(card, now).Branch(rating)
	s.cards[id] = branch.Card
	s.logs = append(s.logs, branch.ReviewLog)
	return branch.Card, true
}

// Preview returns all four scheduling branches for a card without applying
// any of them.
func (s *Store) Preview(id string, now time.Time) (fsrs.SchedulingInfo, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	card, ok := s.cards[id]
	if !ok {
		return fsrs.SchedulingInfo{}, false
	}
	return s.scheduler.Schedule(card, now), true
}

// Cards returns every card in insertion order.
func (s *Store) Cards() []fsrs.Card {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cards := make([]fsrs.Card, 0, len(s.order))
	for _, id := range s.order {
		cards = append(cards, s.cards[id])
	}
	return cards
}

// DueCards returns all cards due at now, in insertion order. New cards are
// due from the moment they are added.
func (s *Store) DueCards(now time.Time) []fsrs.Card {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var due []fsrs.Card
	for _, id := range s.order {
		card := s.cards[id]
		if !card.Due.After(now) {
			due = append(due, card)
		}
	}
	return due
}

// NewCards returns up to limit cards still in state New, in insertion order.
func (s *Store) NewCards(limit int) []fsrs.Card {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var cards []fsrs.Card
	for _, id := range s.order {
		if len(cards) == limit {
			break
		}
		if card := s.cards[id]; card.State == fsrs.New {
			cards = append(cards, card)
		}
	}
	return cards
}

func (s *Store) CardsByState(state fsrs.State) []fsrs.Card {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var cards []fsrs.Card
	for _, id := range s.order {
		if card := s.cards[id]; card.State == state {
			cards = append(cards, card)
		}
	}
	return cards
}

func (s *Store) StudyStats(now time.Time) Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := Stats{Total: len(s.cards)}
	for _, card := range s.cards {
		switch card.State {
		case fsrs.New:
			stats.New++
		case fsrs.Learning:
			stats.Learning++
		case fsrs.Review:
			stats.Review++
		case fsrs.Relearning:
			stats.Relearning++
		}
		if !card.Due.After(now) {
			stats.Due++
		}
	}
	return stats
}

// ReviewLogs returns a copy of the logs recorded by this store instance.
func (s *Store) ReviewLogs() []fsrs.ReviewLog {
	s.mu.RLock()
	defer s.mu.RUnlock()

	logs := make([]fsrs.ReviewLog, len(s.logs))
	copy(logs, s.logs)
	return logs
}

// ExportState returns all cards in insertion order for persistence.
func (s *Store) ExportState() []fsrs.Card {
	return s.Cards()
}

// RestoreState replaces the card set with a persisted one. Review logs are
// not restored; they belong to the durable log, not the store.
func (s *Store) RestoreState(cards []fsrs.Card) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cards = make(map[string]fsrs.Card, len(cards))
	s.order = make([]string, 0, len(cards))
	for _, card := range cards {
		if _, ok := s.cards[card.ID]; ok {
			continue
		}
		s.cards[card.ID] = card
		s.order = append(s.order, card.ID)
	}
	s.logs = nil
}
