package queue

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Config tunes queue behavior. Zero values fall back to the defaults.
type Config struct {
	MaxRetries       int
	RetryDelay       time.Duration
	MaxRetryDelay    time.Duration
	BatchSize        int
	BatchDelay       time.Duration
	ErrorHistorySize int
}

func DefaultConfig() Config {
	return Config{
		MaxRetries:       3,
		RetryDelay:       2 * time.Second,
		MaxRetryDelay:    30 * time.Second,
		BatchSize:        10,
		BatchDelay:       200 * time.Millisecond,
		ErrorHistorySize: 50,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.MaxRetries <= 0 {
		c.MaxRetries = defaults.MaxRetries
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = defaults.RetryDelay
	}
	if c.MaxRetryDelay <= 0 {
		c.MaxRetryDelay = defaults.MaxRetryDelay
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	if c.BatchDelay <= 0 {
		c.BatchDelay = defaults.BatchDelay
	}
	if c.ErrorHistorySize <= 0 {
		c.ErrorHistorySize = defaults.ErrorHistorySize
	}
	return c
}

// OperationError is a terminally failed operation kept for inspection.
type OperationError struct {
	Operation Operation `json:"operation"`
	Error     string    `json:"error"`
	FailedAt  time.Time `json:"failed_at"`
}

// Metrics is a point-in-time snapshot of queue accounting.
type Metrics struct {
	TotalOperations   int64         `json:"total_operations"`
	SuccessfulSyncs   int64         `json:"successful_syncs"`
	FailedSyncs       int64         `json:"failed_syncs"`
	AverageSyncTime   time.Duration `json:"average_sync_time"`
	PendingOperations int           `json:"pending_operations"`
}

// Queue is the offline operation queue: a two-tier priority list of pending
// mutations with retry bookkeeping. High-priority operations sit ahead of the
// medium/low backlog; both tiers are FIFO internally.
type Queue struct {
	mu  sync.Mutex
	cfg Config
	now func() time.Time
	log *slog.Logger

	ops    []*Operation
	errors []OperationError

	total         int64
	succeeded     int64
	failed        int64
	syncTimeTotal time.Duration

	boosted bool
}

type Option func(*Queue)

func WithClock(now func() time.Time) Option {
	return func(q *Queue) {
		q.now = now
	}
}

func WithLogger(log *slog.Logger) Option {
	return func(q *Queue) {
		q.log = log
	}
}

func New(cfg Config, opts ...Option) *Queue {
	q := &Queue{
		cfg: cfg.withDefaults(),
		now: time.Now,
		log: slog.Default(),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

func (q *Queue) Config() Config {
	return q.cfg
}

// Enqueue adds an operation and returns its id. Missing fields are stamped:
// id, timestamp, status pending, the configured retry budget. High priority
// inserts at the back of the high tier, ahead of everything else.
func (q *Queue) Enqueue(op Operation) string {
	q.mu.Lock()
	defer q.mu.Unlock()

	if op.ID == "" {
		op.ID = uuid.NewString()
	}
	if op.Type == "" && op.Payload != nil {
		op.Type = op.Payload.OperationType()
	}
	now := q.now()
	op.Timestamp = now
	op.Status = StatusPending
	op.RetryCount = 0
	op.NextAttemptAt = now
	if op.MaxRetries <= 0 {
		op.MaxRetries = q.cfg.MaxRetries
	}

	q.insert(&op)
	q.total++
	q.log.Debug("operation enqueued",
		"id", op.ID,
		"type", op.Type,
		"priority", op.Priority.String(),
		"queue_size", len(q.ops))
	return op.ID
}

// insert places op according to its priority. Callers hold the lock.
func (q *Queue) insert(op *Operation) {
	if op.Priority != PriorityHigh {
		q.ops = append(q.ops, op)
		return
	}
	at := len(q.ops)
	for i, existing := range q.ops {
		if existing.Priority != PriorityHigh {
			at = i
			break
		}
	}
	q.ops = append(q.ops, nil)
	copy(q.ops[at+1:], q.ops[at:])
	q.ops[at] = op
}

// ClaimBatch marks up to n due pending operations as syncing and returns
// copies in queue order. Operations already syncing are never handed out
// twice, and operations waiting on a retry delay are skipped.
func (q *Queue) ClaimBatch(now time.Time, n int) []Operation {
	q.mu.Lock()
	defer q.mu.Unlock()

	var batch []Operation
	for _, op := range q.ops {
		if len(batch) == n {
			break
		}
		if op.Status != StatusPending || op.NextAttemptAt.After(now) {
			continue
		}
		op.Status = StatusSyncing
		batch = append(batch, *op)
	}
	return batch
}

// MarkCompleted removes a successfully synced operation and records its sync
// duration.
func (q *Queue) MarkCompleted(id string, syncTime time.Duration) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	i := q.indexOf(id)
	if i < 0 {
		return false
	}
	q.remove(i)
	q.succeeded++
	q.syncTimeTotal += syncTime
	return true
}

// MarkFailed counts one failed attempt. Within the retry budget the operation
// returns to pending with a growing delay; exhaustion moves it to the error
// list as terminally failed.
func (q *Queue) MarkFailed(id string, cause error) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	i := q.indexOf(id)
	if i < 0 {
		return false
	}
	op := q.ops[i]
	op.RetryCount++
	if cause != nil {
		op.LastError = cause.Error()
	}

	if op.RetryCount < op.MaxRetries {
		op.Status = StatusPending
		delay := q.cfg.RetryDelay * time.Duration(op.RetryCount)
		if delay > q.cfg.MaxRetryDelay {
			delay = q.cfg.MaxRetryDelay
		}
		op.NextAttemptAt = q.now().Add(delay)
		q.log.Debug("operation retry scheduled",
			"id", op.ID,
			"type", op.Type,
			"retry_count", op.RetryCount,
			"delay", delay)
		return true
	}

	op.Status = StatusFailed
	q.remove(i)
	q.failed++
	q.errors = append(q.errors, OperationError{
		Operation: *op,
		Error:     op.LastError,
		FailedAt:  q.now(),
	})
	if len(q.errors) > q.cfg.ErrorHistorySize {
		q.errors = q.errors[len(q.errors)-q.cfg.ErrorHistorySize:]
	}
	q.log.Warn("operation failed terminally",
		"id", op.ID,
		"type", op.Type,
		"retry_count", op.RetryCount,
		"error", op.LastError)
	return true
}

// Requeue returns a syncing operation to pending without a retry penalty,
// for drains interrupted mid-flight.
func (q *Queue) Requeue(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	i := q.indexOf(id)
	if i < 0 || q.ops[i].Status != StatusSyncing {
		return false
	}
	q.ops[i].Status = StatusPending
	return true
}

// ClearOldOperations drops pending operations older than maxAge and returns
// how many were removed.
func (q *Queue) ClearOldOperations(maxAge time.Duration) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	cutoff := q.now().Add(-maxAge)
	kept := q.ops[:0]
	removed := 0
	for _, op := range q.ops {
		if op.Status == StatusPending && op.Timestamp.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, op)
	}
	q.ops = kept
	if removed > 0 {
		q.log.Info("cleared old operations", "removed", removed, "max_age", maxAge)
	}
	return removed
}

// ClearFailedOperations empties the error list.
func (q *Queue) ClearFailedOperations() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	cleared := len(q.errors)
	q.errors = nil
	return cleared
}

// PrioritizeOperations retags every pending operation of type t and reorders
// the queue so the high tier stays in front. FIFO order within each tier is
// preserved.
func (q *Queue) PrioritizeOperations(t Type, priority Priority) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	changed := 0
	for _, op := range q.ops {
		if op.Type == t && op.Status == StatusPending && op.Priority != priority {
			op.Priority = priority
			changed++
		}
	}
	if changed > 0 {
		q.reorder()
	}
	return changed
}

// reorder stable-partitions the high tier to the front. Callers hold the lock.
func (q *Queue) reorder() {
	high := make([]*Operation, 0, len(q.ops))
	rest := make([]*Operation, 0, len(q.ops))
	for _, op := range q.ops {
		if op.Priority == PriorityHigh {
			high = append(high, op)
		} else {
			rest = append(rest, op)
		}
	}
	q.ops = append(high, rest...)
}

// RetryOperation resets an operation's retry budget and schedules it for an
// immediate attempt at the front of its tier. Terminally failed operations
// are restored from the error list.
func (q *Queue) RetryOperation(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if i := q.indexOf(id); i >= 0 {
		op := q.ops[i]
		op.RetryCount = 0
		op.Status = StatusPending
		op.NextAttemptAt = q.now()
		op.LastError = ""
		q.remove(i)
		q.ops = append([]*Operation{op}, q.ops...)
		return true
	}

	for i, failed := range q.errors {
		if failed.Operation.ID != id {
			continue
		}
		op := failed.Operation
		op.RetryCount = 0
		op.Status = StatusPending
		op.NextAttemptAt = q.now()
		op.LastError = ""
		q.errors = append(q.errors[:i], q.errors[i+1:]...)
		q.ops = append([]*Operation{&op}, q.ops...)
		return true
	}
	return false
}

// DuplicateOperation clones an active operation under a fresh id with a clean
// retry budget and enqueues the clone by its priority.
func (q *Queue) DuplicateOperation(id string) (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	i := q.indexOf(id)
	if i < 0 {
		return "", false
	}
	clone := *q.ops[i]
	clone.ID = uuid.NewString()
	now := q.now()
	clone.Timestamp = now
	clone.Status = StatusPending
	clone.RetryCount = 0
	clone.NextAttemptAt = now
	clone.LastError = ""
	q.insert(&clone)
	q.total++
	return clone.ID, true
}

// CancelOperation removes an active operation on explicit caller intent.
func (q *Queue) CancelOperation(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	i := q.indexOf(id)
	if i < 0 {
		return false
	}
	q.remove(i)
	return true
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.ops)
}

// Operations returns copies of every active operation in queue order.
func (q *Queue) Operations() []Operation {
	q.mu.Lock()
	defer q.mu.Unlock()

	ops := make([]Operation, 0, len(q.ops))
	for _, op := range q.ops {
		ops = append(ops, *op)
	}
	return ops
}

// Errors returns a copy of the terminal failure list, oldest first.
func (q *Queue) Errors() []OperationError {
	q.mu.Lock()
	defer q.mu.Unlock()

	errs := make([]OperationError, len(q.errors))
	copy(errs, q.errors)
	return errs
}

func (q *Queue) Metrics() Metrics {
	q.mu.Lock()
	defer q.mu.Unlock()

	m := Metrics{
		TotalOperations:   q.total,
		SuccessfulSyncs:   q.succeeded,
		FailedSyncs:       q.failed,
		PendingOperations: len(q.ops),
	}
	if q.succeeded > 0 {
		m.AverageSyncTime = q.syncTimeTotal / time.Duration(q.succeeded)
	}
	return m
}

// indexOf finds an active operation by id. Callers hold the lock.
func (q *Queue) indexOf(id string) int {
	for i, op := range q.ops {
		if op.ID == id {
			return i
		}
	}
	return -1
}

// remove deletes the operation at index i. Callers hold the lock.
func (q *Queue) remove(i int) {
	q.ops = append(q.ops[:i], q.ops[i+1:]...)
}
