package queue

import (
	"encoding/json"
	"fmt"
	"time"
)

// OperationSnapshot is the persisted form of an Operation. The payload is
// carried as a typed JSON envelope so it can be decoded back into its
// concrete type on restore.
type OperationSnapshot struct {
	ID            string          `json:"id"`
	Type          Type            `json:"type"`
	Payload       json.RawMessage `json:"payload"`
	Priority      Priority        `json:"priority"`
	Status        Status          `json:"status"`
	Timestamp     time.Time       `json:"timestamp"`
	RetryCount    int             `json:"retry_count"`
	MaxRetries    int             `json:"max_retries"`
	UserID        string          `json:"user_id,omitempty"`
	CacheKey      string          `json:"cache_key,omitempty"`
	NextAttemptAt time.Time       `json:"next_attempt_at"`
	LastError     string          `json:"last_error,omitempty"`
}

type ErrorSnapshot struct {
	Operation OperationSnapshot `json:"operation"`
	Error     string            `json:"error"`
	FailedAt  time.Time         `json:"failed_at"`
}

// QueueSnapshot is the full queue state as written to disk between sessions.
type QueueSnapshot struct {
	ExportedAt time.Time           `json:"exported_at"`
	Operations []OperationSnapshot `json:"operations"`
	Errors     []ErrorSnapshot     `json:"errors"`
}

// Snapshot exports the active operations and the error list in queue order.
func (q *Queue) Snapshot() (QueueSnapshot, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	snap := QueueSnapshot{ExportedAt: q.now()}
	for _, op := range q.ops {
		os, err := snapshotOperation(*op)
		if err != nil {
			return QueueSnapshot{}, err
		}
		snap.Operations = append(snap.Operations, os)
	}
	for _, failed := range q.errors {
		os, err := snapshotOperation(failed.Operation)
		if err != nil {
			return QueueSnapshot{}, err
		}
		snap.Errors = append(snap.Errors, ErrorSnapshot{
			Operation: os,
			Error:     failed.Error,
			FailedAt:  failed.FailedAt,
		})
	}
	return snap, nil
}

func snapshotOperation(op Operation) (OperationSnapshot, error) {
	raw, err := MarshalPayload(op.Payload)
	if err != nil {
		return OperationSnapshot{}, fmt.Errorf("snapshot operation %s > %w", op.ID, err)
	}
	return OperationSnapshot{
		ID:            op.ID,
		Type:          op.Type,
		Payload:       raw,
		Priority:      op.Priority,
		Status:        op.Status,
		Timestamp:     op.Timestamp,
		RetryCount:    op.RetryCount,
		MaxRetries:    op.MaxRetries,
		UserID:        op.UserID,
		CacheKey:      op.CacheKey,
		NextAttemptAt: op.NextAttemptAt,
		LastError:     op.LastError,
	}, nil
}

// Restore loads a snapshot into the queue. Every entry is validated before
// anything is applied, so a corrupt snapshot never leaves the queue half
// restored. Operations caught mid-sync by the exporting process come back as
// pending; ids already present in the queue reject the whole snapshot.
func (q *Queue) Restore(snap QueueSnapshot) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	seen := make(map[string]struct{}, len(q.ops))
	for _, op := range q.ops {
		seen[op.ID] = struct{}{}
	}

	restored := make([]*Operation, 0, len(snap.Operations))
	for _, os := range snap.Operations {
		op, err := restoreOperation(os, seen)
		if err != nil {
			return err
		}
		if op.Status == StatusSyncing {
			op.Status = StatusPending
		}
		if op.Status != StatusPending {
			return fmt.Errorf("restore operation %s: unexpected status %q", os.ID, os.Status)
		}
		restored = append(restored, op)
	}

	restoredErrors := make([]OperationError, 0, len(snap.Errors))
	for _, failed := range snap.Errors {
		op, err := restoreOperation(failed.Operation, seen)
		if err != nil {
			return err
		}
		restoredErrors = append(restoredErrors, OperationError{
			Operation: *op,
			Error:     failed.Error,
			FailedAt:  failed.FailedAt,
		})
	}

	q.ops = append(q.ops, restored...)
	q.reorder()
	q.errors = append(q.errors, restoredErrors...)
	if len(q.errors) > q.cfg.ErrorHistorySize {
		q.errors = q.errors[len(q.errors)-q.cfg.ErrorHistorySize:]
	}
	q.total += int64(len(restored))
	q.failed += int64(len(restoredErrors))
	q.log.Info("queue restored",
		"operations", len(restored),
		"errors", len(restoredErrors),
		"exported_at", snap.ExportedAt)
	return nil
}

func restoreOperation(os OperationSnapshot, seen map[string]struct{}) (*Operation, error) {
	if os.ID == "" {
		return nil, fmt.Errorf("restore operation: empty id")
	}
	if _, dup := seen[os.ID]; dup {
		return nil, fmt.Errorf("restore operation %s: duplicate id", os.ID)
	}
	if !os.Type.Valid() {
		return nil, fmt.Errorf("restore operation %s: unknown type %q", os.ID, os.Type)
	}
	payload, err := UnmarshalPayload(os.Payload)
	if err != nil {
		return nil, fmt.Errorf("restore operation %s > %w", os.ID, err)
	}
	if payload.OperationType() != os.Type {
		return nil, fmt.Errorf("restore operation %s: payload type %q does not match %q",
			os.ID, payload.OperationType(), os.Type)
	}
	seen[os.ID] = struct{}{}
	return &Operation{
		ID:            os.ID,
		Type:          os.Type,
		Payload:       payload,
		Priority:      os.Priority,
		Status:        os.Status,
		Timestamp:     os.Timestamp,
		RetryCount:    os.RetryCount,
		MaxRetries:    os.MaxRetries,
		UserID:        os.UserID,
		CacheKey:      os.CacheKey,
		NextAttemptAt: os.NextAttemptAt,
		LastError:     os.LastError,
	}, nil
}
