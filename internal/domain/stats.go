package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"sync/atomic"
	"time"
)

// RunStats accumulates per-token outcomes for one refresh run.
// Record is safe for concurrent use by dispatcher workers.
type RunStats struct {
	total   int64
	success atomic.Int64
	warning atomic.Int64
	errors  atomic.Int64
	start   time.Time
	now     func() time.Time
}

// NewRunStats starts a run over total tokens
func NewRunStats(total int) *RunStats {
	return newRunStatsAt(total, time.Now)
}

func newRunStatsAt(total int, now func() time.Time) *RunStats {
	return &RunStats{
		total: int64(total),
		start: now().UTC(),
		now:   now,
	}
}

// Record counts one token outcome
func (s *RunStats) Record(r TokenResult) {
	switch r.Status {
	case StatusSuccess:
		s.success.Add(1)
	case StatusWarning:
		s.warning.Add(1)
	default:
		s.errors.Add(1)
	}
}

func (s *RunStats) Total() int64   { return s.total }
func (s *RunStats) Success() int64 { return s.success.Load() }
func (s *RunStats) Warning() int64 { return s.warning.Load() }
func (s *RunStats) Error() int64   { return s.errors.Load() }

// StartedAt returns the run start time
func (s *RunStats) StartedAt() time.Time {
	return s.start
}

// Duration returns the time elapsed since the run started
func (s *RunStats) Duration() time.Duration {
	return s.now().UTC().Sub(s.start)
}

// SuccessRate returns success/total as a percentage, 0 when total is 0
func (s *RunStats) SuccessRate() float64 {
	if s.total == 0 {
		return 0
	}
	return float64(s.Success()) / float64(s.total) * 100
}

// SuccessRateString formats the success rate with one decimal, e.g. "33.3%"
func (s *RunStats) SuccessRateString() string {
	return fmt.Sprintf("%.1f%%", s.SuccessRate())
}

// DurationSeconds returns the run duration rounded to two decimals
func (s *RunStats) DurationSeconds() float64 {
	return math.Round(s.Duration().Seconds()*100) / 100
}

// Summary renders the completed run summary
func (s *RunStats) Summary() *RunSummary {
	return &RunSummary{
		Status:          RunCompleted,
		Total:           s.Total(),
		Success:         s.Success(),
		Warning:         s.Warning(),
		Error:           s.Error(),
		SuccessRate:     s.SuccessRateString(),
		DurationSeconds: s.DurationSeconds(),
		Timestamp:       s.now().UTC(),
	}
}

// RunStatus is the terminal state of a refresh run
type RunStatus string

const (
	RunCompleted RunStatus = "completed"
	RunSkipped   RunStatus = "skipped"
)

// SkipReasonLocked is reported when another run holds the lock
const SkipReasonLocked = "Task already running (lock held)"

// RunSummary is returned by every refresh run
type RunSummary struct {
	Status          RunStatus `json:"status"`
	Reason          string    `json:"reason,omitempty"`
	Message         string    `json:"message,omitempty"`
	Total           int64     `json:"total"`
	Success         int64     `json:"success"`
	Warning         int64     `json:"warning"`
	Error           int64     `json:"error"`
	SuccessRate     string    `json:"success_rate,omitempty"`
	DurationSeconds float64   `json:"duration_seconds"`
	Timestamp       time.Time `json:"timestamp"`
}

// SkippedSummary is returned when the lock is already held
func SkippedSummary() *RunSummary {
	return &RunSummary{Status: RunSkipped, Reason: SkipReasonLocked}
}

// EmptySummary is returned when there are no tokens to refresh
func EmptySummary() *RunSummary {
	return &RunSummary{
		Status:    RunCompleted,
		Message:   "No tokens to update",
		Timestamp: time.Now().UTC(),
	}
}

// MarshalJSON drops counters from skipped summaries
func (s RunSummary) MarshalJSON() ([]byte, error) {
	if s.Status == RunSkipped {
		return json.Marshal(struct {
			Status RunStatus `json:"status"`
			Reason string    `json:"reason"`
		}{s.Status, s.Reason})
	}

	type plain RunSummary
	return json.Marshal(plain(s))
}

// RunMetrics is the persisted view of refresh statistics
type RunMetrics struct {
	Cumulative RunCounters       `json:"cumulative"`
	LastRun    map[string]string `json:"last_run"`
}

// RunCounters are counts accumulated across runs
type RunCounters struct {
	Total   int64 `json:"total"`
	Success int64 `json:"success"`
	Warning int64 `json:"warning"`
	Error   int64 `json:"error"`
}
