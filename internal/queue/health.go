package queue

import (
	"time"
)

type HealthLevel string

const (
	HealthHealthy  HealthLevel = "healthy"
	HealthWarning  HealthLevel = "warning"
	HealthCritical HealthLevel = "critical"
)

// Thresholds that push the queue out of the healthy state. A single breached
// critical threshold trumps any number of warnings.
const (
	criticalErrorCount = 10
	criticalQueueSize  = 100
	criticalAvgRetries = 2.0
	criticalOldestAge  = 24 * time.Hour

	warningErrorCount = 5
	warningQueueSize  = 50
	warningAvgRetries = 1.0
	warningOldestAge  = 6 * time.Hour
)

// errorRetention is how long terminal failures stay on the error list before
// Remediate drops them.
const errorRetention = 24 * time.Hour

// HealthReport describes queue pressure at one point in time.
type HealthReport struct {
	Level           HealthLevel   `json:"level"`
	QueueSize       int           `json:"queue_size"`
	ErrorCount      int           `json:"error_count"`
	AvgRetryCount   float64       `json:"avg_retry_count"`
	OldestPending   time.Duration `json:"oldest_pending"`
	Issues          []string      `json:"issues,omitempty"`
	BatchSizeBoost  bool          `json:"batch_size_boost"`
	CheckedAt       time.Time     `json:"checked_at"`
}

// Health evaluates the queue against the warning and critical thresholds.
func (q *Queue) Health() HealthReport {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	report := HealthReport{
		Level:          HealthHealthy,
		QueueSize:      len(q.ops),
		ErrorCount:     len(q.errors),
		BatchSizeBoost: q.boosted,
		CheckedAt:      now,
	}

	if len(q.ops) > 0 {
		retries := 0
		for _, op := range q.ops {
			retries += op.RetryCount
		}
		report.AvgRetryCount = float64(retries) / float64(len(q.ops))

		oldest := now
		for _, op := range q.ops {
			if op.Status == StatusPending && op.Timestamp.Before(oldest) {
				oldest = op.Timestamp
			}
		}
		report.OldestPending = now.Sub(oldest)
	}

	type check struct {
		critical bool
		issue    string
	}
	var checks []check
	switch {
	case report.ErrorCount > criticalErrorCount:
		checks = append(checks, check{true, "error count above critical threshold"})
	case report.ErrorCount > warningErrorCount:
		checks = append(checks, check{false, "error count above warning threshold"})
	}
	switch {
	case report.QueueSize > criticalQueueSize:
		checks = append(checks, check{true, "queue size above critical threshold"})
	case report.QueueSize > warningQueueSize:
		checks = append(checks, check{false, "queue size above warning threshold"})
	}
	switch {
	case report.AvgRetryCount > criticalAvgRetries:
		checks = append(checks, check{true, "average retry count above critical threshold"})
	case report.AvgRetryCount > warningAvgRetries:
		checks = append(checks, check{false, "average retry count above warning threshold"})
	}
	switch {
	case report.OldestPending > criticalOldestAge:
		checks = append(checks, check{true, "oldest pending operation above critical age"})
	case report.OldestPending > warningOldestAge:
		checks = append(checks, check{false, "oldest pending operation above warning age"})
	}

	for _, c := range checks {
		report.Issues = append(report.Issues, c.issue)
		if c.critical {
			report.Level = HealthCritical
		} else if report.Level == HealthHealthy {
			report.Level = HealthWarning
		}
	}
	return report
}

// Remediate reacts to the current health level. While critical it doubles the
// effective batch size to drain the backlog faster and drops stale entries
// from the error list; once the queue recovers the boost is lifted. Calling
// it repeatedly at the same level is a no-op.
func (q *Queue) Remediate() HealthReport {
	report := q.Health()

	q.mu.Lock()
	defer q.mu.Unlock()

	switch report.Level {
	case HealthCritical:
		if !q.boosted {
			q.boosted = true
			q.log.Warn("queue critical, boosting batch size",
				"batch_size", q.cfg.BatchSize*2,
				"issues", report.Issues)
		}
		cutoff := q.now().Add(-errorRetention)
		kept := q.errors[:0]
		for _, failed := range q.errors {
			if failed.FailedAt.Before(cutoff) {
				continue
			}
			kept = append(kept, failed)
		}
		q.errors = kept
	default:
		if q.boosted {
			q.boosted = false
			q.log.Info("queue recovered, batch size restored",
				"batch_size", q.cfg.BatchSize)
		}
	}
	report.BatchSizeBoost = q.boosted
	return report
}

// EffectiveBatchSize is the configured batch size, doubled while the critical
// remediation boost is active.
func (q *Queue) EffectiveBatchSize() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.boosted {
		return q.cfg.BatchSize * 2
	}
	return q.cfg.BatchSize
}
