package sqlite

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voicehealth/backend/internal/storage/models"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()

	client, err := NewClient(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	require.NoError(t, client.InitSchema())
	return client
}

func testEntry(userID string, loggedAt time.Time, severity int) *models.Entry {
	return &models.Entry{
		ID:                "entry-" + loggedAt.Format("20060102T150405"),
		UserID:            userID,
		RawTranscript:     "pounding headache after coffee",
		Symptoms:          []string{"headache"},
		Severity:          &severity,
		PotentialTriggers: []string{"caffeine"},
		Mood:              "tired",
		BodyLocation:      []string{"temples"},
		TimeContext:       "this morning",
		LoggedAt:          loggedAt,
	}
}

func TestInsertAndReadEntry(t *testing.T) {
	client := newTestClient(t)
	loggedAt := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	require.NoError(t, client.InsertEntry(testEntry("user-1", loggedAt, 7)))

	entries, err := client.EntriesByUser("user-1")
	require.NoError(t, err)
	require.Len(t, entries, 1)

	got := entries[0]
	assert.Equal(t, "user-1", got.UserID)
	assert.Equal(t, []string{"headache"}, got.Symptoms)
	assert.Equal(t, []string{"caffeine"}, got.PotentialTriggers)
	assert.Equal(t, []string{"temples"}, got.BodyLocation)
	require.NotNil(t, got.Severity)
	assert.Equal(t, 7, *got.Severity)
	assert.Equal(t, loggedAt.Unix(), got.LoggedAt.Unix())
	assert.Empty(t, got.Error)
}

func TestEntriesByUserOrderedOldestFirst(t *testing.T) {
	client := newTestClient(t)
	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	for _, offset := range []int{2, 0, 1} {
		require.NoError(t, client.InsertEntry(testEntry("user-1", base.AddDate(0, 0, offset), 5)))
	}

	entries, err := client.EntriesByUser("user-1")
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.True(t, entries[0].LoggedAt.Before(entries[1].LoggedAt))
	assert.True(t, entries[1].LoggedAt.Before(entries[2].LoggedAt))
}

func TestEntriesByUserPageNewestFirst(t *testing.T) {
	client := newTestClient(t)
	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		require.NoError(t, client.InsertEntry(testEntry("user-1", base.AddDate(0, 0, i), 5)))
	}

	page, err := client.EntriesByUserPage("user-1", 2, 0)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, base.AddDate(0, 0, 4).Unix(), page[0].LoggedAt.Unix())

	count, err := client.CountEntries("user-1")
	require.NoError(t, err)
	assert.Equal(t, 5, count)
}

func TestEntryWithErrorMarker(t *testing.T) {
	client := newTestClient(t)
	severity := 5

	entry := &models.Entry{
		ID:                "degraded-1",
		UserID:            "user-1",
		RawTranscript:     "dizzy all afternoon",
		Symptoms:          []string{},
		Severity:          &severity,
		PotentialTriggers: []string{},
		Notes:             "Extraction failed; please edit manually",
		Error:             "extraction_failed",
		LoggedAt:          time.Now(),
	}
	require.NoError(t, client.InsertEntry(entry))

	entries, err := client.EntriesByUser("user-1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "extraction_failed", entries[0].Error)
	assert.Equal(t, "Extraction failed; please edit manually", entries[0].Notes)
}

func TestGetInsightsCacheMissing(t *testing.T) {
	client := newTestClient(t)

	record, err := client.GetInsightsCache("user-1")
	require.NoError(t, err)
	assert.Nil(t, record)
}

func TestUpsertInsightsCacheOverwrites(t *testing.T) {
	client := newTestClient(t)

	first, _ := json.Marshal(&models.InsightPayload{Message: "first"})
	require.NoError(t, client.UpsertInsightsCache(&models.InsightsCacheRecord{
		ID:                      "rec-1",
		UserID:                  "user-1",
		InsightsJSON:            first,
		EntryCountAtComputation: 5,
		CreatedAt:               time.Now(),
	}))

	second, _ := json.Marshal(&models.InsightPayload{Message: "second"})
	require.NoError(t, client.UpsertInsightsCache(&models.InsightsCacheRecord{
		ID:                      "rec-2",
		UserID:                  "user-1",
		InsightsJSON:            second,
		EntryCountAtComputation: 8,
		CreatedAt:               time.Now(),
	}))

	record, err := client.GetInsightsCache("user-1")
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, 8, record.EntryCountAtComputation)

	var payload models.InsightPayload
	require.NoError(t, json.Unmarshal(record.InsightsJSON, &payload))
	assert.Equal(t, "second", payload.Message)
}
