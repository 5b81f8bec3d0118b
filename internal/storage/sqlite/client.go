package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/voicehealth/backend/internal/storage/models"
	"github.com/voicehealth/backend/pkg/logger"
)

type Client struct {
	db *sql.DB
}

func NewClient(dbPath string) (*Client, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	_, err = db.Exec("PRAGMA foreign_keys = ON")
	if err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	_, err = db.Exec("PRAGMA journal_mode = WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	logger.Info("SQLite client initialized", zap.String("path", dbPath))

	return &Client{db: db}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS entries (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		raw_transcript TEXT,
		symptoms TEXT,
		severity INTEGER CHECK (severity >= 1 AND severity <= 10),
		potential_triggers TEXT,
		mood TEXT,
		body_location TEXT,
		time_context TEXT,
		notes TEXT,
		error TEXT,
		logged_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_entries_user ON entries(user_id);
	CREATE INDEX IF NOT EXISTS idx_entries_logged ON entries(logged_at);

	CREATE TABLE IF NOT EXISTS insights_cache (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL UNIQUE,
		insights_json TEXT NOT NULL,
		entry_count_at_computation INTEGER NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_insights_user ON insights_cache(user_id);
	`

	_, err := c.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("SQLite schema initialized")
	return nil
}

// InsertEntry appends one entry. Entries are immutable after insert.
func (c *Client) InsertEntry(entry *models.Entry) error {
	query := `
		INSERT INTO entries (id, user_id, raw_transcript, symptoms, severity,
			potential_triggers, mood, body_location, time_context, notes, error, logged_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	var severity interface{}
	if entry.Severity != nil {
		severity = *entry.Severity
	}

	_, err := c.db.Exec(
		query,
		entry.ID,
		entry.UserID,
		entry.RawTranscript,
		marshalStrings(entry.Symptoms),
		severity,
		marshalStrings(entry.PotentialTriggers),
		entry.Mood,
		marshalStrings(entry.BodyLocation),
		entry.TimeContext,
		entry.Notes,
		entry.Error,
		entry.LoggedAt.Unix(),
	)

	if err != nil {
		return fmt.Errorf("failed to insert entry: %w", err)
	}

	logger.Debug("Entry inserted",
		zap.String("entry_id", entry.ID),
		zap.String("user_id", entry.UserID),
	)
	return nil
}

// EntriesByUser returns the user's full history, oldest first, the
// order the analysis engine expects.
func (c *Client) EntriesByUser(userID string) ([]models.Entry, error) {
	query := `
		SELECT id, user_id, raw_transcript, symptoms, severity, potential_triggers,
			mood, body_location, time_context, notes, error, logged_at
		FROM entries
		WHERE user_id = ?
		ORDER BY logged_at ASC
	`

	rows, err := c.db.Query(query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// EntriesByUserPage returns a page of the user's history, newest first,
// for the log view.
func (c *Client) EntriesByUserPage(userID string, limit, offset int) ([]models.Entry, error) {
	query := `
		SELECT id, user_id, raw_transcript, symptoms, severity, potential_triggers,
			mood, body_location, time_context, notes, error, logged_at
		FROM entries
		WHERE user_id = ?
		ORDER BY logged_at DESC
		LIMIT ? OFFSET ?
	`

	rows, err := c.db.Query(query, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries page: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

func (c *Client) CountEntries(userID string) (int, error) {
	var count int
	err := c.db.QueryRow(`SELECT COUNT(*) FROM entries WHERE user_id = ?`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count entries: %w", err)
	}
	return count, nil
}

func (c *Client) GetInsightsCache(userID string) (*models.InsightsCacheRecord, error) {
	query := `
		SELECT id, user_id, insights_json, entry_count_at_computation, created_at
		FROM insights_cache
		WHERE user_id = ?
	`

	var record models.InsightsCacheRecord
	var insightsJSON string
	var createdAt int64

	err := c.db.QueryRow(query, userID).Scan(
		&record.ID,
		&record.UserID,
		&insightsJSON,
		&record.EntryCountAtComputation,
		&createdAt,
	)
	if err == sql.ErrNoRows {
		// No record yet is not an error; the caller decides how to
		// surface the eventual-consistency window.
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get insights cache: %w", err)
	}

	record.InsightsJSON = json.RawMessage(insightsJSON)
	record.CreatedAt = time.Unix(createdAt, 0)

	return &record, nil
}

// UpsertInsightsCache overwrites the user's cache row. Freshness
// checking belongs to the caller; this is a plain write.
func (c *Client) UpsertInsightsCache(record *models.InsightsCacheRecord) error {
	query := `
		INSERT INTO insights_cache (id, user_id, insights_json, entry_count_at_computation, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			insights_json = excluded.insights_json,
			entry_count_at_computation = excluded.entry_count_at_computation,
			created_at = excluded.created_at
	`

	_, err := c.db.Exec(
		query,
		record.ID,
		record.UserID,
		string(record.InsightsJSON),
		record.EntryCountAtComputation,
		record.CreatedAt.Unix(),
	)

	if err != nil {
		return fmt.Errorf("failed to upsert insights cache: %w", err)
	}

	logger.Debug("Insights cache written",
		zap.String("user_id", record.UserID),
		zap.Int("entry_count", record.EntryCountAtComputation),
	)
	return nil
}

func scanEntries(rows *sql.Rows) ([]models.Entry, error) {
	var entries []models.Entry
	for rows.Next() {
		var e models.Entry
		var symptoms, triggers, bodyLocation sql.NullString
		var rawTranscript, mood, timeContext, notes, extractErr sql.NullString
		var severity sql.NullInt64
		var loggedAt int64

		err := rows.Scan(
			&e.ID,
			&e.UserID,
			&rawTranscript,
			&symptoms,
			&severity,
			&triggers,
			&mood,
			&bodyLocation,
			&timeContext,
			&notes,
			&extractErr,
			&loggedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		e.RawTranscript = rawTranscript.String
		e.Symptoms = unmarshalStrings(symptoms.String)
		e.PotentialTriggers = unmarshalStrings(triggers.String)
		e.BodyLocation = unmarshalStrings(bodyLocation.String)
		e.Mood = mood.String
		e.TimeContext = timeContext.String
		e.Notes = notes.String
		e.Error = extractErr.String
		if severity.Valid {
			v := int(severity.Int64)
			e.Severity = &v
		}
		e.LoggedAt = time.Unix(loggedAt, 0)

		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rows: %w", err)
	}

	return entries, nil
}

func marshalStrings(values []string) string {
	if len(values) == 0 {
		return "[]"
	}
	data, _ := json.Marshal(values)
	return string(data)
}

func unmarshalStrings(data string) []string {
	if data == "" {
		return nil
	}
	var values []string
	json.Unmarshal([]byte(data), &values)
	if len(values) == 0 {
		return nil
	}
	return values
}
