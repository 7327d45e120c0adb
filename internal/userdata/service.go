// Package userdata is the typed facade over the sync stack: reads come from
// the backend through the cache, writes update the cache immediately and are
// queued for background sync. The cache holds raw JSON documents for these
// keys so that resolved server state written back after a sync is
// indistinguishable from a fresh fetch; this package decodes documents into
// structs at its boundary.
package userdata

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/mnemoapp/mnemo/internal/cache"
	"github.com/mnemoapp/mnemo/internal/conflict"
	"github.com/mnemoapp/mnemo/internal/queue"
)

//go:generate mockgen -source=service.go -destination=../mocks/userdata/mock_service.go -package=mock_userdata

// Getter fetches JSON resources from the backend.
type Getter interface {
	GetJSON(ctx context.Context, path string, out any) error
}

type Service struct {
	client  Getter
	cache   *cache.Cache
	queue   *queue.Queue
	session Session
	ttl     TTLConfig
	now     func() time.Time
	log     *slog.Logger
}

type Option func(*Service)

func WithTTLs(ttl TTLConfig) Option {
	return func(s *Service) {
		s.ttl = ttl.withDefaults()
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func WithLogger(log *slog.Logger) Option {
	return func(s *Service) {
		s.log = log
	}
}

func New(client Getter, c *cache.Cache, q *queue.Queue, session Session, opts ...Option) *Service {
	s := &Service{
		client:  client,
		cache:   c,
		queue:   q,
		session: session,
		ttl:     DefaultTTLConfig(),
		now:     time.Now,
		log:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) userKey() string     { return "user:" + s.session.UserID }
func (s *Service) settingsKey() string { return "settings:" + s.session.UserID }
func (s *Service) statsKey() string    { return "stats:" + s.session.UserID }
func (s *Service) progressKey() string { return "progress:" + s.session.UserID }

// User returns the profile of the session user, served from cache while
// fresh. The backend looks profiles up by telegram id.
func (s *Service) User(ctx context.Context) (User, error) {
	path := fmt.Sprintf("/users/by-telegram-id/%d", s.session.TelegramID)
	doc, err := s.fetchDocument(ctx, s.userKey(), path, s.ttl.User)
	if err != nil {
		return User{}, fmt.Errorf("Service.User() > %w", err)
	}
	return decodeAs[User](doc)
}

func (s *Service) ExamSettings(ctx context.Context) (ExamSettings, error) {
	path := "/users/" + s.session.UserID + "/exam-settings"
	doc, err := s.fetchDocument(ctx, s.settingsKey(), path, s.ttl.Settings)
	if err != nil {
		return ExamSettings{}, fmt.Errorf("Service.ExamSettings() > %w", err)
	}
	return decodeAs[ExamSettings](doc)
}

func (s *Service) Stats(ctx context.Context) (DashboardStats, error) {
	path := "/users/" + s.session.UserID + "/stats"
	doc, err := s.fetchDocument(ctx, s.statsKey(), path, s.ttl.Stats)
	if err != nil {
		return DashboardStats{}, fmt.Errorf("Service.Stats() > %w", err)
	}
	return decodeAs[DashboardStats](doc)
}

func (s *Service) DailyProgress(ctx context.Context) (DailyProgress, error) {
	path := "/users/" + s.session.UserID + "/daily-progress"
	doc, err := s.fetchDocument(ctx, s.progressKey(), path, s.ttl.Progress)
	if err != nil {
		return DailyProgress{}, fmt.Errorf("Service.DailyProgress() > %w", err)
	}
	return decodeAs[DailyProgress](doc)
}

// SubmitAnswer records an answered question. The cached stats are bumped
// right away so the UI reflects the answer before the server has seen it,
// and the submission is queued at high priority. The returned stats are the
// optimistic view; they are zero when nothing was cached yet.
func (s *Service) SubmitAnswer(ctx context.Context, sub AnswerSubmission) (DashboardStats, error) {
	now := s.now()
	payload := queue.AnswerPayload{
		QuestionID:     sub.QuestionID,
		IsCorrect:      sub.IsCorrect,
		SelectedOption: sub.SelectedOption,
		ResponseTimeMs: sub.ResponseTimeMs,
		Rating:         sub.Rating,
		AnsweredAt:     now,
		UpdatedAt:      now,
	}

	stats := s.bumpCachedStats(sub.IsCorrect, now)

	id := s.queue.Enqueue(queue.Operation{
		Payload:  payload,
		Priority: queue.PriorityHigh,
		UserID:   s.session.UserID,
		CacheKey: s.statsKey(),
	})
	s.log.DebugContext(ctx, "answer queued",
		slog.String("operation_id", id),
		slog.Int("question_id", sub.QuestionID))
	return stats, nil
}

// UpdateSettings applies a partial profile update. Changed fields land in
// the cached profile immediately; the patch is queued at medium priority so
// answer submissions go out first.
func (s *Service) UpdateSettings(ctx context.Context, change SettingsChange) (User, error) {
	now := s.now()
	payload := queue.SettingsPayload{
		ExamCountry:          change.ExamCountry,
		ExamLanguage:         change.ExamLanguage,
		UILanguage:           change.UILanguage,
		ExamDate:             change.ExamDate,
		DailyGoal:            change.DailyGoal,
		NotificationsEnabled: change.NotificationsEnabled,
		UpdatedAt:            now,
	}

	var optimistic User
	if doc, ok := s.cachedDocument(s.userKey()); ok {
		updated := cloneDocument(doc)
		applySettings(updated, change)
		updated["updated_at"] = now.UTC().Format(time.RFC3339)
		s.cache.Set(s.userKey(), updated, s.ttl.User)
		optimistic, _ = decodeAs[User](updated)
	}

	id := s.queue.Enqueue(queue.Operation{
		Payload:  payload,
		Priority: queue.PriorityMedium,
		UserID:   s.session.UserID,
		CacheKey: s.userKey(),
	})
	s.log.DebugContext(ctx, "settings update queued", slog.String("operation_id", id))
	return optimistic, nil
}

// UpdateExamSettings replaces the exam plan and queues the change at medium
// priority. The derived fields are recomputed locally so the optimistic view
// is complete.
func (s *Service) UpdateExamSettings(ctx context.Context, change ExamSettingsChange) (ExamSettings, error) {
	now := s.now()
	payload := queue.ExamSettingsPayload{
		ExamDate:  change.ExamDate,
		DailyGoal: change.DailyGoal,
		UpdatedAt: now,
	}

	optimistic := ExamSettings{
		ExamDate:      change.ExamDate,
		DailyGoal:     change.DailyGoal,
		DaysUntilExam: daysUntil(change.ExamDate, now),
	}
	doc := conflict.Document{}
	if cached, ok := s.cachedDocument(s.settingsKey()); ok {
		doc = cloneDocument(cached)
	}
	doc["exam_date"] = change.ExamDate
	doc["daily_goal"] = change.DailyGoal
	doc["days_until_exam"] = optimistic.DaysUntilExam
	doc["updated_at"] = now.UTC().Format(time.RFC3339)
	s.cache.Set(s.settingsKey(), doc, s.ttl.Settings)

	id := s.queue.Enqueue(queue.Operation{
		Payload:  payload,
		Priority: queue.PriorityMedium,
		UserID:   s.session.UserID,
		CacheKey: s.settingsKey(),
	})
	s.log.DebugContext(ctx, "exam settings update queued", slog.String("operation_id", id))
	return optimistic, nil
}

// SyncProgress queues the cumulative answer counters at low priority. The
// server response carries the authoritative stats, which the sync loop
// writes back over the stats key.
func (s *Service) SyncProgress(ctx context.Context, answered, correct int) error {
	now := s.now()
	id := s.queue.Enqueue(queue.Operation{
		Payload: queue.ProgressPayload{
			Answered:  answered,
			Correct:   correct,
			UpdatedAt: now,
		},
		Priority: queue.PriorityLow,
		UserID:   s.session.UserID,
		CacheKey: s.statsKey(),
	})
	s.log.DebugContext(ctx, "progress sync queued",
		slog.String("operation_id", id),
		slog.Int("answered", answered),
		slog.Int("correct", correct))
	return nil
}

// Invalidate drops every cached read for the session user and returns how
// many entries were removed. The next read of each kind goes to the backend.
func (s *Service) Invalidate() int {
	removed := 0
	for _, key := range []string{s.userKey(), s.settingsKey(), s.statsKey(), s.progressKey()} {
		removed += s.cache.Invalidate(key)
	}
	return removed
}

func (s *Service) fetchDocument(ctx context.Context, key, path string, ttl time.Duration) (conflict.Document, error) {
	return cache.Fetch(ctx, s.cache, key, ttl, func(ctx context.Context) (conflict.Document, error) {
		var doc conflict.Document
		if err := s.client.GetJSON(ctx, path, &doc); err != nil {
			return nil, fmt.Errorf("client.GetJSON(%s) > %w", path, err)
		}
		return doc, nil
	})
}

func (s *Service) cachedDocument(key string) (conflict.Document, bool) {
	cached, ok := s.cache.Get(key)
	if !ok {
		return nil, false
	}
	doc, ok := cached.(conflict.Document)
	return doc, ok
}

func (s *Service) bumpCachedStats(correct bool, now time.Time) DashboardStats {
	doc, ok := s.cachedDocument(s.statsKey())
	if !ok {
		return DashboardStats{}
	}
	updated := cloneDocument(doc)
	updated["answered"] = asInt(updated["answered"]) + 1
	if correct {
		updated["correct"] = asInt(updated["correct"]) + 1
	}
	updated["updated_at"] = now.UTC().Format(time.RFC3339)
	s.cache.Set(s.statsKey(), updated, s.ttl.Stats)

	stats, err := decodeAs[DashboardStats](updated)
	if err != nil {
		return DashboardStats{}
	}
	return stats
}

func applySettings(doc conflict.Document, change SettingsChange) {
	if change.ExamCountry != nil {
		doc["exam_country"] = *change.ExamCountry
	}
	if change.ExamLanguage != nil {
		doc["exam_language"] = *change.ExamLanguage
	}
	if change.UILanguage != nil {
		doc["ui_language"] = *change.UILanguage
	}
	if change.ExamDate != nil {
		doc["exam_date"] = *change.ExamDate
	}
	if change.DailyGoal != nil {
		doc["daily_goal"] = *change.DailyGoal
	}
	if change.NotificationsEnabled != nil {
		doc["notifications_enabled"] = *change.NotificationsEnabled
	}
}

func cloneDocument(doc conflict.Document) conflict.Document {
	out := make(conflict.Document, len(doc))
	for k, v := range doc {
		out[k] = v
	}
	return out
}

func decodeAs[T any](doc conflict.Document) (T, error) {
	var out T
	raw, err := json.Marshal(doc)
	if err != nil {
		return out, fmt.Errorf("json.Marshal() > %w", err)
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("json.Unmarshal() > %w", err)
	}
	return out, nil
}

func asInt(v any) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	case int64:
		return int(n)
	}
	return 0
}

// daysUntil counts whole days from now to an ISO date, never below zero.
func daysUntil(isoDate string, now time.Time) int {
	date, err := time.Parse("2006-01-02", isoDate)
	if err != nil {
		return 0
	}
	days := int(date.Sub(now.UTC().Truncate(24*time.Hour)).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}
