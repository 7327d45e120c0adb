package queue

import (
	"encoding/json"
	"fmt"
	"time"
)

// Type identifies what a queued operation mutates on the server.
type Type string

const (
	TypeAnswerSubmit       Type = "answer_submit"
	TypeAnswerBatch        Type = "answer_batch"
	TypeSettingsUpdate     Type = "settings_update"
	TypeExamSettingsUpdate Type = "exam_settings_update"
	TypeProgressSync       Type = "progress_sync"
)

func (t Type) Valid() bool {
	switch t {
	case TypeAnswerSubmit, TypeAnswerBatch, TypeSettingsUpdate, TypeExamSettingsUpdate, TypeProgressSync:
		return true
	}
	return false
}

// Priority orders operations in the queue. High-priority operations jump the
// backlog; medium and low share one FIFO tier.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityMedium
	PriorityHigh
)

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityMedium:
		return "medium"
	case PriorityHigh:
		return "high"
	}
	return "unknown"
}

func ParsePriority(s string) (Priority, error) {
	switch s {
	case "low":
		return PriorityLow, nil
	case "medium":
		return PriorityMedium, nil
	case "high":
		return PriorityHigh, nil
	}
	return 0, fmt.Errorf("unknown priority %q", s)
}

func (p Priority) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

func (p *Priority) UnmarshalJSON(raw []byte) error {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return err
	}
	parsed, err := ParsePriority(s)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// Status is the lifecycle phase of a queued operation:
// pending -> syncing -> completed, pending (retry) or failed.
type Status string

const (
	StatusPending   Status = "pending"
	StatusSyncing   Status = "syncing"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Payload is the typed body of one operation. Each variant mirrors the
// backend schema for its operation type; Document renders the JSON view used
// for conflict comparison against server responses.
type Payload interface {
	OperationType() Type
	Document() map[string]any
}

type AnswerPayload struct {
	QuestionID     int       `json:"question_id"`
	IsCorrect      bool      `json:"is_correct"`
	SelectedOption string    `json:"selected_option,omitempty"`
	ResponseTimeMs int       `json:"response_time,omitempty"`
	Rating         int       `json:"difficulty_rating,omitempty"`
	AnsweredAt     time.Time `json:"answered_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (AnswerPayload) OperationType() Type { return TypeAnswerSubmit }

func (p AnswerPayload) Document() map[string]any { return toDocument(p) }

type AnswerBatchPayload struct {
	Answers   []AnswerPayload `json:"answers"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func (AnswerBatchPayload) OperationType() Type { return TypeAnswerBatch }

func (p AnswerBatchPayload) Document() map[string]any { return toDocument(p) }

// SettingsPayload carries a partial user-settings update. Nil fields were not
// modified locally and must not overwrite the server's values on merge.
type SettingsPayload struct {
	ExamCountry          *string   `json:"exam_country,omitempty"`
	ExamLanguage         *string   `json:"exam_language,omitempty"`
	UILanguage           *string   `json:"ui_language,omitempty"`
	ExamDate             *string   `json:"exam_date,omitempty"`
	DailyGoal            *int      `json:"daily_goal,omitempty"`
	NotificationsEnabled *bool     `json:"notifications_enabled,omitempty"`
	UpdatedAt            time.Time `json:"updated_at"`
}

func (SettingsPayload) OperationType() Type { return TypeSettingsUpdate }

func (p SettingsPayload) Document() map[string]any { return toDocument(p) }

type ExamSettingsPayload struct {
	ExamDate  string    `json:"exam_date"`
	DailyGoal int       `json:"daily_goal"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (ExamSettingsPayload) OperationType() Type { return TypeExamSettingsUpdate }

func (p ExamSettingsPayload) Document() map[string]any { return toDocument(p) }

// ProgressPayload carries cumulative counters. They only ever grow, which is
// what makes the max-merge conflict policy safe.
type ProgressPayload struct {
	Answered  int       `json:"answered"`
	Correct   int       `json:"correct"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (ProgressPayload) OperationType() Type { return TypeProgressSync }

func (p ProgressPayload) Document() map[string]any { return toDocument(p) }

func toDocument(payload any) map[string]any {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil
	}
	return doc
}

// payloadEnvelope is the serialized form of a Payload: the type tag picks the
// concrete variant on decode.
type payloadEnvelope struct {
	Type Type            `json:"type"`
	Data json.RawMessage `json:"data"`
}

func MarshalPayload(payload Payload) ([]byte, error) {
	if payload == nil {
		return nil, fmt.Errorf("payload is nil")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("json.Marshal() > %w", err)
	}
	return json.Marshal(payloadEnvelope{
		Type: payload.OperationType(),
		Data: data,
	})
}

func UnmarshalPayload(raw []byte) (Payload, error) {
	var envelope payloadEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("json.Unmarshal() > %w", err)
	}

	switch envelope.Type {
	case TypeAnswerSubmit:
		return decodePayload[AnswerPayload](envelope)
	case TypeAnswerBatch:
		return decodePayload[AnswerBatchPayload](envelope)
	case TypeSettingsUpdate:
		return decodePayload[SettingsPayload](envelope)
	case TypeExamSettingsUpdate:
		return decodePayload[ExamSettingsPayload](envelope)
	case TypeProgressSync:
		return decodePayload[ProgressPayload](envelope)
	}
	return nil, fmt.Errorf("unknown payload type %q", envelope.Type)
}

func decodePayload[T Payload](envelope payloadEnvelope) (Payload, error) {
	var payload T
	if err := json.Unmarshal(envelope.Data, &payload); err != nil {
		return nil, fmt.Errorf("decode %s payload > %w", envelope.Type, err)
	}
	return payload, nil
}

// Operation is one pending mutation. Value copies cross the queue boundary;
// the queue alone mutates its stored operations.
type Operation struct {
	ID         string
	Type       Type
	Payload    Payload
	Priority   Priority
	Status     Status
	Timestamp  time.Time
	RetryCount int
	MaxRetries int
	UserID     string
	// CacheKey names the cache entry this operation's optimistic update
	// wrote, so sync resolution knows where to write the outcome back.
	CacheKey      string
	NextAttemptAt time.Time
	LastError     string
}
