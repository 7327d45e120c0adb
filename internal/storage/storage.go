// Package storage persists the offline state to a local SQLite file: the
// queue snapshot, the card collection and the review history.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/mnemoapp/mnemo/internal/fsrs"
	"github.com/mnemoapp/mnemo/internal/queue"
)

// Open opens the SQLite database at path, creating the file if needed. WAL
// keeps readers off the writer's lock; a single connection avoids
// SQLITE_BUSY on concurrent writes.
func Open(path string) (*sqlx.DB, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_foreign_keys=on", path)
	db, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlx.Open() > %w", err)
	}
	db.SetMaxOpenConns(1)
	return db, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS operations (
	id TEXT PRIMARY KEY,
	position INTEGER NOT NULL,
	type TEXT NOT NULL,
	payload TEXT NOT NULL,
	priority TEXT NOT NULL,
	status TEXT NOT NULL,
	timestamp DATETIME NOT NULL,
	retry_count INTEGER NOT NULL DEFAULT 0,
	max_retries INTEGER NOT NULL DEFAULT 0,
	user_id TEXT NOT NULL DEFAULT '',
	cache_key TEXT NOT NULL DEFAULT '',
	next_attempt_at DATETIME NOT NULL,
	last_error TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS operation_errors (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	operation TEXT NOT NULL,
	error TEXT NOT NULL,
	failed_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS snapshot_meta (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	exported_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS cards (
	id TEXT PRIMARY KEY,
	due DATETIME NOT NULL,
	stability REAL NOT NULL,
	difficulty REAL NOT NULL,
	elapsed_days REAL NOT NULL,
	scheduled_days INTEGER NOT NULL,
	reps INTEGER NOT NULL,
	lapses INTEGER NOT NULL,
	state INTEGER NOT NULL,
	last_review DATETIME
);

CREATE TABLE IF NOT EXISTS review_logs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	card_id TEXT NOT NULL,
	rating INTEGER NOT NULL,
	state INTEGER NOT NULL,
	due DATETIME NOT NULL,
	stability REAL NOT NULL,
	difficulty REAL NOT NULL,
	elapsed_days REAL NOT NULL,
	scheduled_days INTEGER NOT NULL,
	reviewed_at DATETIME NOT NULL
);
`

// Store reads and writes the local database.
type Store struct {
	db *sqlx.DB
}

// NewStore creates a new Store over an open database.
func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Init creates the tables if they do not exist yet.
func (s *Store) Init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("db.ExecContext(schema) > %w", err)
	}
	return nil
}

// RunInTx runs fn inside a transaction, rolling back when fn errors.
func (s *Store) RunInTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("db.BeginTxx() > %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("tx.Commit() > %w", err)
	}
	return nil
}

type operationRow struct {
	ID            string    `db:"id"`
	Position      int       `db:"position"`
	Type          string    `db:"type"`
	Payload       string    `db:"payload"`
	Priority      string    `db:"priority"`
	Status        string    `db:"status"`
	Timestamp     time.Time `db:"timestamp"`
	RetryCount    int       `db:"retry_count"`
	MaxRetries    int       `db:"max_retries"`
	UserID        string    `db:"user_id"`
	CacheKey      string    `db:"cache_key"`
	NextAttemptAt time.Time `db:"next_attempt_at"`
	LastError     string    `db:"last_error"`
}

type errorRow struct {
	ID        int64     `db:"id"`
	Operation string    `db:"operation"`
	Error     string    `db:"error"`
	FailedAt  time.Time `db:"failed_at"`
}

// SaveQueueSnapshot replaces the persisted queue state with snap in one
// transaction. Operation order is preserved through the position column.
func (s *Store) SaveQueueSnapshot(ctx context.Context, snap queue.QueueSnapshot) error {
	return s.RunInTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM operations"); err != nil {
			return fmt.Errorf("tx.ExecContext(delete operations) > %w", err)
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM operation_errors"); err != nil {
			return fmt.Errorf("tx.ExecContext(delete operation_errors) > %w", err)
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM snapshot_meta"); err != nil {
			return fmt.Errorf("tx.ExecContext(delete snapshot_meta) > %w", err)
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO snapshot_meta (id, exported_at) VALUES (1, ?)",
			snap.ExportedAt); err != nil {
			return fmt.Errorf("tx.ExecContext(insert snapshot_meta) > %w", err)
		}

		for i, op := range snap.Operations {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO operations (id, position, type, payload, priority, status, timestamp, retry_count, max_retries, user_id, cache_key, next_attempt_at, last_error)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				op.ID, i, string(op.Type), string(op.Payload), op.Priority.String(), string(op.Status),
				op.Timestamp, op.RetryCount, op.MaxRetries, op.UserID, op.CacheKey, op.NextAttemptAt, op.LastError)
			if err != nil {
				return fmt.Errorf("tx.ExecContext(insert operation %s) > %w", op.ID, err)
			}
		}

		for _, e := range snap.Errors {
			opRaw, err := json.Marshal(e.Operation)
			if err != nil {
				return fmt.Errorf("json.Marshal(error operation %s) > %w", e.Operation.ID, err)
			}
			_, err = tx.ExecContext(ctx,
				"INSERT INTO operation_errors (operation, error, failed_at) VALUES (?, ?, ?)",
				string(opRaw), e.Error, e.FailedAt)
			if err != nil {
				return fmt.Errorf("tx.ExecContext(insert operation_error) > %w", err)
			}
		}

		return nil
	})
}

// LoadQueueSnapshot returns the persisted queue state. A database that has
// never been saved to yields a zero snapshot and no error.
func (s *Store) LoadQueueSnapshot(ctx context.Context) (queue.QueueSnapshot, error) {
	var meta struct {
		ExportedAt time.Time `db:"exported_at"`
	}
	err := s.db.GetContext(ctx, &meta, "SELECT exported_at FROM snapshot_meta WHERE id = 1")
	if errors.Is(err, sql.ErrNoRows) {
		return queue.QueueSnapshot{}, nil
	}
	if err != nil {
		return queue.QueueSnapshot{}, fmt.Errorf("db.GetContext(snapshot_meta) > %w", err)
	}

	var opRows []operationRow
	if err := s.db.SelectContext(ctx, &opRows, "SELECT * FROM operations ORDER BY position"); err != nil {
		return queue.QueueSnapshot{}, fmt.Errorf("db.SelectContext(operations) > %w", err)
	}

	snap := queue.QueueSnapshot{ExportedAt: meta.ExportedAt}
	for _, row := range opRows {
		priority, err := queue.ParsePriority(row.Priority)
		if err != nil {
			return queue.QueueSnapshot{}, fmt.Errorf("operation %s > %w", row.ID, err)
		}
		snap.Operations = append(snap.Operations, queue.OperationSnapshot{
			ID:            row.ID,
			Type:          queue.Type(row.Type),
			Payload:       json.RawMessage(row.Payload),
			Priority:      priority,
			Status:        queue.Status(row.Status),
			Timestamp:     row.Timestamp,
			RetryCount:    row.RetryCount,
			MaxRetries:    row.MaxRetries,
			UserID:        row.UserID,
			CacheKey:      row.CacheKey,
			NextAttemptAt: row.NextAttemptAt,
			LastError:     row.LastError,
		})
	}

	var errRows []errorRow
	if err := s.db.SelectContext(ctx, &errRows, "SELECT * FROM operation_errors ORDER BY id"); err != nil {
		return queue.QueueSnapshot{}, fmt.Errorf("db.SelectContext(operation_errors) > %w", err)
	}
	for _, row := range errRows {
		var op queue.OperationSnapshot
		if err := json.Unmarshal([]byte(row.Operation), &op); err != nil {
			return queue.QueueSnapshot{}, fmt.Errorf("operation_error %d > %w", row.ID, err)
		}
		snap.Errors = append(snap.Errors, queue.ErrorSnapshot{
			Operation: op,
			Error:     row.Error,
			FailedAt:  row.FailedAt,
		})
	}

	return snap, nil
}

type cardRow struct {
	ID            string       `db:"id"`
	Due           time.Time    `db:"due"`
	Stability     float64      `db:"stability"`
	Difficulty    float64      `db:"difficulty"`
	ElapsedDays   float64      `db:"elapsed_days"`
	ScheduledDays int          `db:"scheduled_days"`
	Reps          int          `db:"reps"`
	Lapses        int          `db:"lapses"`
	State         int          `db:"state"`
	LastReview    sql.NullTime `db:"last_review"`
}

// SaveCards replaces the persisted card collection with cards in one
// transaction.
func (s *Store) SaveCards(ctx context.Context, cards []fsrs.Card) error {
	return s.RunInTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM cards"); err != nil {
			return fmt.Errorf("tx.ExecContext(delete cards) > %w", err)
		}

		for _, card := range cards {
			var lastReview sql.NullTime
			if !card.LastReview.IsZero() {
				lastReview = sql.NullTime{Time: card.LastReview, Valid: true}
			}
			_, err := tx.ExecContext(ctx,
				`INSERT INTO cards (id, due, stability, difficulty, elapsed_days, scheduled_days, reps, lapses, state, last_review)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				card.ID, card.Due, card.Stability, card.Difficulty, card.ElapsedDays,
				card.ScheduledDays, card.Reps, card.Lapses, int(card.State), lastReview)
			if err != nil {
				return fmt.Errorf("tx.ExecContext(insert card %s) > %w", card.ID, err)
			}
		}

		return nil
	})
}

// LoadCards returns all persisted cards ordered by id.
func (s *Store) LoadCards(ctx context.Context) ([]fsrs.Card, error) {
	var rows []cardRow
	if err := s.db.SelectContext(ctx, &rows, "SELECT * FROM cards ORDER BY id"); err != nil {
		return nil, fmt.Errorf("db.SelectContext(cards) > %w", err)
	}

	cards := make([]fsrs.Card, 0, len(rows))
	for _, row := range rows {
		card := fsrs.Card{
			ID:            row.ID,
			Due:           row.Due,
			Stability:     row.Stability,
			Difficulty:    row.Difficulty,
			ElapsedDays:   row.ElapsedDays,
			ScheduledDays: row.ScheduledDays,
			Reps:          row.Reps,
			Lapses:        row.Lapses,
			State:         fsrs.State(row.State),
		}
		if row.LastReview.Valid {
			card.LastReview = row.LastReview.Time
		}
		cards = append(cards, card)
	}
	return cards, nil
}

type reviewLogRow struct {
	ID            int64     `db:"id"`
	CardID        string    `db:"card_id"`
	Rating        int       `db:"rating"`
	State         int       `db:"state"`
	Due           time.Time `db:"due"`
	Stability     float64   `db:"stability"`
	Difficulty    float64   `db:"difficulty"`
	ElapsedDays   float64   `db:"elapsed_days"`
	ScheduledDays int       `db:"scheduled_days"`
	ReviewedAt    time.Time `db:"reviewed_at"`
}

// AppendReviewLogs inserts logs at the end of the review history.
func (s *Store) AppendReviewLogs(ctx context.Context, logs []fsrs.ReviewLog) error {
	if len(logs) == 0 {
		return nil
	}
	const batchSize = 100
	for i := 0; i < len(logs); i += batchSize {
		end := i + batchSize
		if end > len(logs) {
			end = len(logs)
		}
		batch := logs[i:end]

		query := "INSERT INTO review_logs (card_id, rating, state, due, stability, difficulty, elapsed_days, scheduled_days, reviewed_at) VALUES "
		args := make([]interface{}, 0, len(batch)*9)
		for j, log := range batch {
			if j > 0 {
				query += ", "
			}
			query += "(?, ?, ?, ?, ?, ?, ?, ?, ?)"
			args = append(args, log.CardID, int(log.Rating), int(log.State), log.Due,
				log.Stability, log.Difficulty, log.ElapsedDays, log.ScheduledDays, log.ReviewedAt)
		}
		if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("db.ExecContext(batch insert review_logs) > %w", err)
		}
	}
	return nil
}

// ReviewLogs returns the review history in insertion order. A non-zero since
// drops logs reviewed before it.
func (s *Store) ReviewLogs(ctx context.Context, since time.Time) ([]fsrs.ReviewLog, error) {
	query := "SELECT * FROM review_logs ORDER BY id"
	var args []interface{}
	if !since.IsZero() {
		query = "SELECT * FROM review_logs WHERE reviewed_at >= ? ORDER BY id"
		args = append(args, since)
	}

	var rows []reviewLogRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("db.SelectContext(review_logs) > %w", err)
	}

	logs := make([]fsrs.ReviewLog, 0, len(rows))
	for _, row := range rows {
		logs = append(logs, fsrs.ReviewLog{
			CardID:        row.CardID,
			Rating:        fsrs.Rating(row.Rating),
			State:         fsrs.State(row.State),
			Due:           row.Due,
			Stability:     row.Stability,
			Difficulty:    row.Difficulty,
			ElapsedDays:   row.ElapsedDays,
			ScheduledDays: row.ScheduledDays,
			ReviewedAt:    row.ReviewedAt,
		})
	}
	return logs, nil
}
