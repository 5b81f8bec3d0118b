package analysis

import (
	"sort"
	"strings"
	"time"

	"github.com/voicehealth/backend/internal/storage/models"
)

// InsufficientDataMessage marks the explicit low-sample mode. It is a
// shape callers branch on, not an error.
const InsufficientDataMessage = "Insufficient data"

// Config holds the analysis thresholds. Zero values fall back to the
// defaults so tests can tune individual knobs.
type Config struct {
	MinSampleSize            int
	TrendEpsilon             float64
	TrendWindowDays          int
	CorrelationLookbackHours int
}

func DefaultConfig() Config {
	return Config{
		MinSampleSize:            5,
		TrendEpsilon:             0.05,
		TrendWindowDays:          14,
		CorrelationLookbackHours: 24,
	}
}

// Engine derives correlation, temporal and trend signals from a user's
// entry history. It is pure computation: no I/O, no suspension.
type Engine struct {
	cfg Config
}

func NewEngine(cfg Config) *Engine {
	def := DefaultConfig()
	if cfg.MinSampleSize == 0 {
		cfg.MinSampleSize = def.MinSampleSize
	}
	if cfg.TrendEpsilon == 0 {
		cfg.TrendEpsilon = def.TrendEpsilon
	}
	if cfg.TrendWindowDays == 0 {
		cfg.TrendWindowDays = def.TrendWindowDays
	}
	if cfg.CorrelationLookbackHours == 0 {
		cfg.CorrelationLookbackHours = def.CorrelationLookbackHours
	}
	return &Engine{cfg: cfg}
}

// ComputeAllStats runs the three sub-analyses over the given history.
// Zero entries yields an empty bundle; fewer than MinSampleSize yields
// the insufficient-data shape without attempting any aggregation.
func (e *Engine) ComputeAllStats(entries []models.Entry) *models.StatsBundle {
	if len(entries) == 0 {
		return &models.StatsBundle{TotalEntries: 0}
	}

	sorted := make([]models.Entry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].LoggedAt.Before(sorted[j].LoggedAt)
	})

	dateRangeDays := int(sorted[len(sorted)-1].LoggedAt.Sub(sorted[0].LoggedAt).Hours() / 24)

	if len(sorted) < e.cfg.MinSampleSize {
		return &models.StatsBundle{
			Message:       InsufficientDataMessage,
			TotalEntries:  len(sorted),
			DateRangeDays: dateRangeDays,
		}
	}

	return &models.StatsBundle{
		TriggerCorrelations: e.computeTriggerCorrelations(sorted),
		TemporalPatterns:    e.computeTemporalPatterns(sorted),
		SeverityTrends:      e.computeSeverityTrends(sorted),
		TotalEntries:        len(sorted),
		DateRangeDays:       dateRangeDays,
	}
}

type symptomTrigger struct {
	symptom string
	trigger string
}

// computeTriggerCorrelations estimates, for each (symptom, trigger)
// pair, the conditional probability that the trigger was logged within
// the lookback window preceding an entry containing the symptom. This
// is deliberately not a Pearson correlation: conditional probability is
// directionally interpretable ("trigger precedes symptom") without
// variance estimation on small samples. Pairs below MinSampleSize
// qualifying co-occurrences are omitted entirely.
func (e *Engine) computeTriggerCorrelations(entries []models.Entry) []models.CorrelationResult {
	lookback := time.Duration(e.cfg.CorrelationLookbackHours) * time.Hour

	triggerTotals := make(map[string]int)
	for _, entry := range entries {
		for _, trigger := range entry.PotentialTriggers {
			triggerTotals[trigger]++
		}
	}

	pairCounts := make(map[symptomTrigger]int)

	for i, current := range entries {
		if len(current.Symptoms) == 0 {
			continue
		}

		// Triggers seen in the lookback window, including the entry itself.
		seenTriggers := make(map[string]struct{})
		for _, trigger := range current.PotentialTriggers {
			seenTriggers[trigger] = struct{}{}
		}
		for j := i - 1; j >= 0; j-- {
			if current.LoggedAt.Sub(entries[j].LoggedAt) > lookback {
				break
			}
			for _, trigger := range entries[j].PotentialTriggers {
				seenTriggers[trigger] = struct{}{}
			}
		}

		for _, symptom := range current.Symptoms {
			for trigger := range seenTriggers {
				pairCounts[symptomTrigger{symptom, trigger}]++
			}
		}
	}

	var results []models.CorrelationResult
	for pair, count := range pairCounts {
		if count < e.cfg.MinSampleSize {
			continue
		}
		total := triggerTotals[pair.trigger]
		if total == 0 {
			continue
		}
		score := float64(count) / float64(total)
		if score > 1.0 {
			score = 1.0
		}
		results = append(results, models.CorrelationResult{
			Symptom:    pair.symptom,
			Trigger:    pair.trigger,
			Score:      score,
			SampleSize: count,
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if results[i].Symptom != results[j].Symptom {
			return results[i].Symptom < results[j].Symptom
		}
		return results[i].Trigger < results[j].Trigger
	})

	return results
}

type timeBucket struct {
	day  string
	slot string
}

// computeTemporalPatterns buckets symptom occurrences by (weekday,
// time-of-day) and reports each symptom's busiest bucket. Ties keep the
// first-seen bucket so the output is deterministic.
func (e *Engine) computeTemporalPatterns(entries []models.Entry) []models.TemporalPattern {
	bucketCounts := make(map[string]map[timeBucket]int)
	bucketOrder := make(map[string][]timeBucket)
	totals := make(map[string]int)
	var symptomOrder []string

	for _, entry := range entries {
		if len(entry.Symptoms) == 0 {
			continue
		}
		bucket := timeBucket{
			day:  entry.LoggedAt.Weekday().String(),
			slot: timeOfDay(entry.TimeContext),
		}
		for _, symptom := range entry.Symptoms {
			if _, ok := bucketCounts[symptom]; !ok {
				bucketCounts[symptom] = make(map[timeBucket]int)
				symptomOrder = append(symptomOrder, symptom)
			}
			if _, ok := bucketCounts[symptom][bucket]; !ok {
				bucketOrder[symptom] = append(bucketOrder[symptom], bucket)
			}
			bucketCounts[symptom][bucket]++
			totals[symptom]++
		}
	}

	var results []models.TemporalPattern
	for _, symptom := range symptomOrder {
		if totals[symptom] < e.cfg.MinSampleSize {
			continue
		}

		var peak timeBucket
		peakCount := 0
		for _, bucket := range bucketOrder[symptom] {
			if bucketCounts[symptom][bucket] > peakCount {
				peak = bucket
				peakCount = bucketCounts[symptom][bucket]
			}
		}

		results = append(results, models.TemporalPattern{
			Symptom:   symptom,
			PeakDay:   peak.day,
			PeakTime:  peak.slot,
			Frequency: totals[symptom],
		})
	}

	return results
}

// timeOfDay maps a free-text time context onto a fixed slot. "All day"
// maps to afternoon as a deliberate default, as does anything the
// mapping does not recognize.
func timeOfDay(timeContext string) string {
	tc := strings.ToLower(strings.TrimSpace(timeContext))
	switch {
	case strings.Contains(tc, "morning"):
		return "morning"
	case strings.Contains(tc, "evening"):
		return "evening"
	case strings.Contains(tc, "night"):
		return "night"
	default:
		return "afternoon"
	}
}

// computeSeverityTrends fits an ordinary-least-squares line over each
// symptom's severity readings within the trailing trend window,
// measured against the newest entry so the engine stays a pure function
// of its input. The fit is against index order, not elapsed time.
func (e *Engine) computeSeverityTrends(entries []models.Entry) []models.SeverityTrend {
	cutoff := entries[len(entries)-1].LoggedAt.AddDate(0, 0, -e.cfg.TrendWindowDays)

	series := make(map[string][]float64)
	var symptomOrder []string

	for _, entry := range entries {
		if entry.Severity == nil || entry.LoggedAt.Before(cutoff) {
			continue
		}
		for _, symptom := range entry.Symptoms {
			if _, ok := series[symptom]; !ok {
				symptomOrder = append(symptomOrder, symptom)
			}
			series[symptom] = append(series[symptom], float64(*entry.Severity))
		}
	}

	var results []models.SeverityTrend
	for _, symptom := range symptomOrder {
		points := series[symptom]
		if len(points) < e.cfg.MinSampleSize {
			continue
		}

		slope := olsSlope(points)

		trend := models.TrendStable
		if slope > e.cfg.TrendEpsilon {
			trend = models.TrendWorsening
		} else if slope < -e.cfg.TrendEpsilon {
			trend = models.TrendImproving
		}

		results = append(results, models.SeverityTrend{
			Symptom:    symptom,
			Trend:      trend,
			Slope:      slope,
			DataPoints: len(points),
		})
	}

	return results
}

// olsSlope returns the least-squares slope of ys against 0..n-1.
func olsSlope(ys []float64) float64 {
	n := float64(len(ys))
	var sumX, sumY, sumXY, sumXX float64
	for i, y := range ys {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}

	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0
	}
	return (n*sumXY - sumX*sumY) / denom
}
