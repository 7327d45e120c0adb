// Package conflict decides what a locally queued document and the server's
// copy of the same record should merge into when both changed while the
// client was offline.
package conflict

import (
	"reflect"
	"time"

	"github.com/mnemoapp/mnemo/internal/queue"
)

// Document is the JSON document shape both the client and the server speak.
type Document = map[string]any

// Data describes one detected conflict handed to the resolvers.
type Data struct {
	OperationID   string
	OperationType queue.Type
	Local         Document
	Server        Document
	DetectedAt    time.Time
}

// Resolution is the outcome of resolving one conflict.
type Resolution struct {
	Strategy string            `json:"strategy"`
	Data     Document          `json:"data"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Record is one entry of the bounded resolution history.
type Record struct {
	OperationID   string     `json:"operation_id"`
	OperationType queue.Type `json:"operation_type"`
	Strategy      string     `json:"strategy"`
	ResolvedAt    time.Time  `json:"resolved_at"`
}

// Resolver turns one conflict into a merged document. Resolvers are consulted
// in descending Priority order; the first one whose CanResolve and Resolve
// both succeed wins.
type Resolver interface {
	Name() string
	Priority() int
	CanResolve(Data) bool
	Resolve(Data) (Resolution, error)
}

// keyFields are the per-type fields whose divergence marks a real conflict
// even when timestamps agree.
var keyFields = map[queue.Type][]string{
	queue.TypeAnswerSubmit:       {"is_correct", "selected_option"},
	queue.TypeAnswerBatch:        {"is_correct", "selected_option"},
	queue.TypeSettingsUpdate:     {"exam_country", "exam_language", "ui_language", "exam_date", "daily_goal"},
	queue.TypeExamSettingsUpdate: {"exam_country", "exam_language", "ui_language", "exam_date", "daily_goal"},
	queue.TypeProgressSync:       {"answered", "correct"},
}

// Detect reports whether the local and server documents genuinely diverge.
// Both sides must exist; a missing side means there is nothing to merge and
// the caller passes the present document through unchanged.
func Detect(opType queue.Type, local, server Document) bool {
	if local == nil || server == nil {
		return false
	}
	if fieldDiffers(local, server, "updated_at") {
		return true
	}
	for _, field := range keyFields[opType] {
		if fieldDiffers(local, server, field) {
			return true
		}
	}
	return false
}

// fieldDiffers treats a field present on one side only as divergence;
// absent on both sides is agreement.
func fieldDiffers(local, server Document, field string) bool {
	lv, lok := local[field]
	sv, sok := server[field]
	if lok != sok {
		return true
	}
	if !lok {
		return false
	}
	return !reflect.DeepEqual(lv, sv)
}

// clone shallow-copies a document so resolutions never alias their inputs.
func clone(doc Document) Document {
	if doc == nil {
		return nil
	}
	out := make(Document, len(doc))
	for k, v := range doc {
		out[k] = v
	}
	return out
}

// numeric reads a JSON number regardless of how it was decoded.
func numeric(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// timestamp reads an updated_at style value from a document.
func timestamp(doc Document, field string) (time.Time, bool) {
	switch v := doc[field].(type) {
	case time.Time:
		return v, true
	case string:
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return time.Time{}, false
		}
		return ts, true
	}
	return time.Time{}, false
}
