package userdata

import (
	"time"
)

// Session identifies the signed-in user a Service instance works for. The
// backend addresses users by internal id on most routes and by telegram id
// on the profile lookup.
type Session struct {
	UserID     string
	TelegramID int64
}

// TTLConfig sets how long each kind of read stays fresh.
type TTLConfig struct {
	User     time.Duration
	Settings time.Duration
	Stats    time.Duration
	Progress time.Duration
}

func DefaultTTLConfig() TTLConfig {
	return TTLConfig{
		User:     5 * time.Minute,
		Settings: 10 * time.Minute,
		Stats:    2 * time.Minute,
		Progress: time.Minute,
	}
}

func (c TTLConfig) withDefaults() TTLConfig {
	defaults := DefaultTTLConfig()
	if c.User <= 0 {
		c.User = defaults.User
	}
	if c.Settings <= 0 {
		c.Settings = defaults.Settings
	}
	if c.Stats <= 0 {
		c.Stats = defaults.Stats
	}
	if c.Progress <= 0 {
		c.Progress = defaults.Progress
	}
	return c
}

// User is the backend user profile.
type User struct {
	ID           string    `json:"id"`
	TelegramID   int64     `json:"telegram_id,omitempty"`
	Username     string    `json:"username,omitempty"`
	FirstName    string    `json:"first_name,omitempty"`
	LastName     string    `json:"last_name,omitempty"`
	ExamCountry  string    `json:"exam_country,omitempty"`
	ExamLanguage string    `json:"exam_language,omitempty"`
	UILanguage   string    `json:"ui_language,omitempty"`
	ExamDate     string    `json:"exam_date,omitempty"`
	DailyGoal    int       `json:"daily_goal,omitempty"`
	CreatedAt    time.Time `json:"created_at,omitzero"`
	UpdatedAt    time.Time `json:"updated_at,omitzero"`
}

// ExamSettings is the exam plan the backend derives for a user.
type ExamSettings struct {
	ExamDate             string `json:"exam_date,omitempty"`
	DailyGoal            int    `json:"daily_goal,omitempty"`
	DaysUntilExam        int    `json:"days_until_exam,omitempty"`
	RecommendedDailyGoal int    `json:"recommended_daily_goal,omitempty"`
}

// DashboardStats is the study overview shown on the home screen.
type DashboardStats struct {
	TotalQuestions int     `json:"total_questions"`
	Answered       int     `json:"answered"`
	Correct        int     `json:"correct"`
	FSRSEnabled    bool    `json:"fsrs_enabled,omitempty"`
	AvgRetention   float64 `json:"avg_retention,omitempty"`
	CardsDueToday  int     `json:"cards_due_today,omitempty"`
	CardsLearning  int     `json:"cards_learning,omitempty"`
	CardsReview    int     `json:"cards_review,omitempty"`
}

// DailyProgress is today's mastery count.
type DailyProgress struct {
	QuestionsMasteredToday int    `json:"questions_mastered_today"`
	Date                   string `json:"date"`
}

// AnswerSubmission is one answered question, as captured by the UI.
type AnswerSubmission struct {
	QuestionID     int
	IsCorrect      bool
	SelectedOption string
	ResponseTimeMs int
	Rating         int
}

// SettingsChange is a partial profile update; nil fields stay untouched.
type SettingsChange struct {
	ExamCountry          *string
	ExamLanguage         *string
	UILanguage           *string
	ExamDate             *string
	DailyGoal            *int
	NotificationsEnabled *bool
}

// ExamSettingsChange replaces the exam plan.
type ExamSettingsChange struct {
	ExamDate  string
	DailyGoal int
}
