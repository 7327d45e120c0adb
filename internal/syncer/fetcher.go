package syncer

import (
	"context"
	"fmt"

	"github.com/mnemoapp/mnemo/internal/conflict"
	"github.com/mnemoapp/mnemo/internal/queue"
)

//go:generate mockgen -source=fetcher.go -destination=../mocks/syncer/mock_fetcher.go -package=mock_syncer

// Result is the server's reply to one synced operation.
type Result struct {
	Document   conflict.Document
	StatusCode int
}

// Fetcher ships one queued operation to the backend and returns the server's
// version of the affected document.
type Fetcher interface {
	Send(ctx context.Context, op queue.Operation) (Result, error)
}

// NetworkError is a failure to reach the backend or a retryable server-side
// status. The coordinator reads it as a connectivity signal and goes offline;
// any other error is treated as a rejected operation, not a broken link.
type NetworkError struct {
	Op         string
	URL        string
	StatusCode int
	Err        error
}

func (e *NetworkError) Error() string {
	msg := fmt.Sprintf("%s %s", e.Op, e.URL)
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s: status %d", msg, e.StatusCode)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}
