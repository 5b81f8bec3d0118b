package models

import (
	"encoding/json"
	"time"
)

// Entry is one logged health event. Array fields are nil when the
// extraction could not determine them; Severity is nil or in [1,10].
type Entry struct {
	ID                string    `json:"id"`
	UserID            string    `json:"user_id"`
	RawTranscript     string    `json:"raw_transcript,omitempty"`
	Symptoms          []string  `json:"symptoms"`
	Severity          *int      `json:"severity"`
	PotentialTriggers []string  `json:"potential_triggers"`
	Mood              string    `json:"mood,omitempty"`
	BodyLocation      []string  `json:"body_location,omitempty"`
	TimeContext       string    `json:"time_context,omitempty"`
	Notes             string    `json:"notes,omitempty"`
	Error             string    `json:"error,omitempty"`
	LoggedAt          time.Time `json:"logged_at"`
}

// ExtractedEntry holds the partial fields produced by one extraction
// pass. Empty slices and nil severity mean "unknown", not "none".
type ExtractedEntry struct {
	Symptoms          []string `json:"symptoms"`
	Severity          *int     `json:"severity"`
	PotentialTriggers []string `json:"potential_triggers"`
	Mood              string   `json:"mood"`
	BodyLocation      []string `json:"body_location"`
	TimeContext       string   `json:"time_context"`
	Notes             string   `json:"notes"`
	Error             string   `json:"error,omitempty"`
}

type CorrelationResult struct {
	Symptom    string  `json:"symptom"`
	Trigger    string  `json:"trigger"`
	Score      float64 `json:"score"`
	SampleSize int     `json:"sample_size"`
}

type TemporalPattern struct {
	Symptom   string `json:"symptom"`
	PeakDay   string `json:"peak_day"`
	PeakTime  string `json:"peak_time"`
	Frequency int    `json:"frequency"`
}

type TrendDirection string

const (
	TrendImproving TrendDirection = "improving"
	TrendWorsening TrendDirection = "worsening"
	TrendStable    TrendDirection = "stable"
)

type SeverityTrend struct {
	Symptom    string         `json:"symptom"`
	Trend      TrendDirection `json:"trend"`
	Slope      float64        `json:"slope"`
	DataPoints int            `json:"data_points"`
}

// StatsBundle is the ephemeral output of one analysis pass. A non-empty
// Message marks the low-sample mode; callers branch on it rather than
// treating it as a failure.
type StatsBundle struct {
	Message             string              `json:"message,omitempty"`
	TriggerCorrelations []CorrelationResult `json:"trigger_correlations,omitempty"`
	TemporalPatterns    []TemporalPattern   `json:"temporal_patterns,omitempty"`
	SeverityTrends      []SeverityTrend     `json:"severity_trends,omitempty"`
	TotalEntries        int                 `json:"total_entries"`
	DateRangeDays       int                 `json:"date_range_days,omitempty"`
}

// Insufficient reports whether the bundle carries signal worth
// generating insights from.
func (b *StatsBundle) Insufficient() bool {
	return b == nil || b.Message != "" || b.TotalEntries == 0
}

type Insight struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	Icon  string `json:"icon"`
}

type Prediction struct {
	Title     string `json:"title"`
	Body      string `json:"body"`
	RiskLevel string `json:"risk_level"`
}

// InsightPayload is the opaque structured payload the dashboard reads.
// Either Insights/Prediction are populated, or Message carries the
// "not enough data" text.
type InsightPayload struct {
	Insights     []Insight   `json:"insights"`
	Prediction   *Prediction `json:"prediction,omitempty"`
	Message      string      `json:"message,omitempty"`
	TotalEntries int         `json:"total_entries,omitempty"`
}

// InsightsCacheRecord is the durable per-user cache row the dashboard
// read path depends on. EntryCountAtComputation only ever grows for a
// given user (stale background recomputes are skipped).
type InsightsCacheRecord struct {
	ID                      string          `json:"id"`
	UserID                  string          `json:"user_id"`
	InsightsJSON            json.RawMessage `json:"insights_json"`
	EntryCountAtComputation int             `json:"entry_count_at_computation"`
	CreatedAt               time.Time       `json:"created_at"`
}
