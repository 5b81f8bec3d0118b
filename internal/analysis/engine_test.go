package analysis

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voicehealth/backend/internal/storage/models"
)

func entryAt(loggedAt time.Time, symptoms, triggers []string, severity int) models.Entry {
	e := models.Entry{
		Symptoms:          symptoms,
		PotentialTriggers: triggers,
		LoggedAt:          loggedAt,
	}
	if severity > 0 {
		e.Severity = &severity
	}
	return e
}

func TestComputeAllStatsEmpty(t *testing.T) {
	engine := NewEngine(Config{})

	bundle := engine.ComputeAllStats(nil)

	require.NotNil(t, bundle)
	assert.Equal(t, 0, bundle.TotalEntries)
	assert.Empty(t, bundle.Message)
	assert.True(t, bundle.Insufficient())
}

func TestComputeAllStatsBelowThreshold(t *testing.T) {
	engine := NewEngine(Config{})
	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	var entries []models.Entry
	for i := 0; i < 3; i++ {
		entries = append(entries, entryAt(base.AddDate(0, 0, i), []string{"headache"}, []string{"caffeine"}, 6))
	}

	bundle := engine.ComputeAllStats(entries)

	assert.Equal(t, InsufficientDataMessage, bundle.Message)
	assert.Equal(t, 3, bundle.TotalEntries)
	assert.Equal(t, 2, bundle.DateRangeDays)
	assert.Empty(t, bundle.TriggerCorrelations)
	assert.Empty(t, bundle.TemporalPatterns)
	assert.Empty(t, bundle.SeverityTrends)
	assert.True(t, bundle.Insufficient())
}

// Twenty caffeine entries, fifteen of which are followed by a headache
// an hour later. Pairs are spaced two days apart so lookback windows
// never overlap: the conditional probability must come out at exactly
// 15/20.
func TestTriggerCorrelationConditionalProbability(t *testing.T) {
	engine := NewEngine(Config{})
	base := time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC)

	var entries []models.Entry
	for i := 0; i < 20; i++ {
		at := base.AddDate(0, 0, 2*i)
		entries = append(entries, entryAt(at, nil, []string{"caffeine"}, 0))
		if i < 15 {
			entries = append(entries, entryAt(at.Add(time.Hour), []string{"headache"}, nil, 6))
		}
	}

	bundle := engine.ComputeAllStats(entries)

	require.False(t, bundle.Insufficient())
	require.Len(t, bundle.TriggerCorrelations, 1)

	corr := bundle.TriggerCorrelations[0]
	assert.Equal(t, "headache", corr.Symptom)
	assert.Equal(t, "caffeine", corr.Trigger)
	assert.InDelta(t, 0.75, corr.Score, 1e-9)
	assert.Equal(t, 15, corr.SampleSize)
}

func TestTriggerCorrelationOmitsSmallSamples(t *testing.T) {
	engine := NewEngine(Config{})
	base := time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC)

	// Only four qualifying co-occurrences, one below the threshold.
	var entries []models.Entry
	for i := 0; i < 4; i++ {
		at := base.AddDate(0, 0, 2*i)
		entries = append(entries, entryAt(at, []string{"nausea"}, []string{"dairy"}, 4))
	}
	entries = append(entries, entryAt(base.AddDate(0, 0, 30), []string{"nausea"}, nil, 4))
	entries = append(entries, entryAt(base.AddDate(0, 0, 32), []string{"nausea"}, nil, 4))

	bundle := engine.ComputeAllStats(entries)

	require.False(t, bundle.Insufficient())
	assert.Empty(t, bundle.TriggerCorrelations)
}

// A single trigger log can precede many symptom entries inside one
// lookback window; the raw ratio exceeds 1 and must be clamped.
func TestTriggerCorrelationScoreClamped(t *testing.T) {
	engine := NewEngine(Config{})
	base := time.Date(2026, 2, 1, 18, 0, 0, 0, time.UTC)

	entries := []models.Entry{entryAt(base, nil, []string{"red wine"}, 0)}
	for i := 1; i <= 5; i++ {
		entries = append(entries, entryAt(base.Add(time.Duration(i)*2*time.Hour), []string{"headache"}, nil, 7))
	}

	bundle := engine.ComputeAllStats(entries)

	require.Len(t, bundle.TriggerCorrelations, 1)
	assert.Equal(t, 1.0, bundle.TriggerCorrelations[0].Score)
	assert.Equal(t, 5, bundle.TriggerCorrelations[0].SampleSize)
}

func TestTriggerCorrelationLookbackBoundary(t *testing.T) {
	engine := NewEngine(Config{CorrelationLookbackHours: 24})
	base := time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC)

	// Trigger logged 25 hours before each symptom entry: outside the
	// window, so no pair ever forms.
	var entries []models.Entry
	for i := 0; i < 5; i++ {
		at := base.AddDate(0, 0, 3*i)
		entries = append(entries, entryAt(at, nil, []string{"stress"}, 0))
		entries = append(entries, entryAt(at.Add(25*time.Hour), []string{"back pain"}, nil, 5))
	}

	bundle := engine.ComputeAllStats(entries)

	require.False(t, bundle.Insufficient())
	assert.Empty(t, bundle.TriggerCorrelations)
}

func TestTemporalPatternPeakBucket(t *testing.T) {
	engine := NewEngine(Config{})

	monday := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	tuesday := time.Date(2026, 3, 10, 19, 0, 0, 0, time.UTC)

	var entries []models.Entry
	for i := 0; i < 3; i++ {
		e := entryAt(monday.AddDate(0, 0, 7*i), []string{"migraine"}, nil, 8)
		e.TimeContext = "this morning"
		entries = append(entries, e)
	}
	for i := 0; i < 2; i++ {
		e := entryAt(tuesday.AddDate(0, 0, 7*i), []string{"migraine"}, nil, 7)
		e.TimeContext = "in the evening"
		entries = append(entries, e)
	}

	bundle := engine.ComputeAllStats(entries)

	require.Len(t, bundle.TemporalPatterns, 1)
	pattern := bundle.TemporalPatterns[0]
	assert.Equal(t, "migraine", pattern.Symptom)
	assert.Equal(t, "Monday", pattern.PeakDay)
	assert.Equal(t, "morning", pattern.PeakTime)
	assert.Equal(t, 5, pattern.Frequency)
}

// Equal bucket counts keep the earliest-seen bucket so repeated runs
// over the same history report the same peak.
func TestTemporalPatternTieKeepsFirstSeen(t *testing.T) {
	engine := NewEngine(Config{})

	monday := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	tuesday := time.Date(2026, 3, 17, 19, 0, 0, 0, time.UTC)
	wednesday := time.Date(2026, 4, 1, 23, 0, 0, 0, time.UTC)

	var entries []models.Entry
	for i := 0; i < 2; i++ {
		e := entryAt(monday.AddDate(0, 0, 7*i), []string{"fatigue"}, nil, 5)
		e.TimeContext = "morning"
		entries = append(entries, e)
	}
	for i := 0; i < 2; i++ {
		e := entryAt(tuesday.AddDate(0, 0, 7*i), []string{"fatigue"}, nil, 5)
		e.TimeContext = "evening"
		entries = append(entries, e)
	}
	e := entryAt(wednesday, []string{"fatigue"}, nil, 5)
	e.TimeContext = "at night"
	entries = append(entries, e)

	bundle := engine.ComputeAllStats(entries)

	require.Len(t, bundle.TemporalPatterns, 1)
	assert.Equal(t, "Monday", bundle.TemporalPatterns[0].PeakDay)
	assert.Equal(t, "morning", bundle.TemporalPatterns[0].PeakTime)
}

func TestTimeOfDayMapping(t *testing.T) {
	cases := map[string]string{
		"this morning":     "morning",
		"Early Morning":    "morning",
		"in the evening":   "evening",
		"late at night":    "night",
		"around lunchtime": "afternoon",
		"All day":          "afternoon",
		"":                 "afternoon",
	}

	for input, want := range cases {
		assert.Equal(t, want, timeOfDay(input), "input %q", input)
	}
}

func TestSeverityTrendWorsening(t *testing.T) {
	engine := NewEngine(Config{})
	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	var entries []models.Entry
	for i, severity := range []int{2, 3, 4, 5, 6, 7, 8} {
		entries = append(entries, entryAt(base.AddDate(0, 0, i), []string{"headache"}, nil, severity))
	}

	bundle := engine.ComputeAllStats(entries)

	require.Len(t, bundle.SeverityTrends, 1)
	trend := bundle.SeverityTrends[0]
	assert.Equal(t, models.TrendWorsening, trend.Trend)
	assert.InDelta(t, 1.0, trend.Slope, 1e-9)
	assert.Equal(t, 7, trend.DataPoints)
}

func TestSeverityTrendImproving(t *testing.T) {
	engine := NewEngine(Config{})
	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	var entries []models.Entry
	for i, severity := range []int{9, 8, 6, 5, 3, 2} {
		entries = append(entries, entryAt(base.AddDate(0, 0, i), []string{"headache"}, nil, severity))
	}

	bundle := engine.ComputeAllStats(entries)

	require.Len(t, bundle.SeverityTrends, 1)
	assert.Equal(t, models.TrendImproving, bundle.SeverityTrends[0].Trend)
}

func TestSeverityTrendStable(t *testing.T) {
	engine := NewEngine(Config{})
	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	var entries []models.Entry
	for i := 0; i < 6; i++ {
		entries = append(entries, entryAt(base.AddDate(0, 0, i), []string{"headache"}, nil, 5))
	}

	bundle := engine.ComputeAllStats(entries)

	require.Len(t, bundle.SeverityTrends, 1)
	trend := bundle.SeverityTrends[0]
	assert.Equal(t, models.TrendStable, trend.Trend)
	assert.InDelta(t, 0.0, trend.Slope, 1e-9)
}

// Entries older than the trend window relative to the newest entry do
// not contribute points; a symptom left with too few recent readings
// reports no trend at all.
func TestSeverityTrendWindowExcludesOldEntries(t *testing.T) {
	engine := NewEngine(Config{})
	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	var entries []models.Entry
	for i := 0; i < 3; i++ {
		entries = append(entries, entryAt(base.AddDate(0, 0, -30+i), []string{"headache"}, nil, 9))
	}
	for i := 0; i < 4; i++ {
		entries = append(entries, entryAt(base.AddDate(0, 0, i), []string{"headache"}, nil, 3))
	}

	bundle := engine.ComputeAllStats(entries)

	require.False(t, bundle.Insufficient())
	assert.Empty(t, bundle.SeverityTrends)
}

func TestSeverityTrendSkipsMissingSeverity(t *testing.T) {
	engine := NewEngine(Config{})
	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	var entries []models.Entry
	for i := 0; i < 4; i++ {
		entries = append(entries, entryAt(base.AddDate(0, 0, i), []string{"headache"}, nil, 5))
	}
	entries = append(entries, entryAt(base.AddDate(0, 0, 4), []string{"headache"}, nil, 0))

	bundle := engine.ComputeAllStats(entries)

	// Four severity readings, below the sample threshold.
	require.False(t, bundle.Insufficient())
	assert.Empty(t, bundle.SeverityTrends)
}

func TestComputeAllStatsDoesNotMutateInput(t *testing.T) {
	engine := NewEngine(Config{})
	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	entries := []models.Entry{
		entryAt(base.AddDate(0, 0, 2), []string{"headache"}, nil, 5),
		entryAt(base, []string{"headache"}, nil, 5),
		entryAt(base.AddDate(0, 0, 1), []string{"headache"}, nil, 5),
	}

	engine.ComputeAllStats(entries)

	assert.Equal(t, base.AddDate(0, 0, 2), entries[0].LoggedAt)
	assert.Equal(t, base, entries[1].LoggedAt)
}

func TestOLSSlopeDegenerate(t *testing.T) {
	assert.Equal(t, 0.0, olsSlope([]float64{5}))
	assert.Equal(t, 0.0, olsSlope(nil))
}
