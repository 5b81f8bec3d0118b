package guided

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/voicehealth/backend/internal/metrics"
	"github.com/voicehealth/backend/internal/storage/models"
	"github.com/voicehealth/backend/pkg/logger"
	"github.com/voicehealth/backend/pkg/validate"
)

const (
	defaultSeverity    = 5
	degradedEntryNotes = "Extraction failed; please edit manually"
	degradedEntryError = "extraction_failed"
)

type Extractor interface {
	Extract(ctx context.Context, text string) (*models.ExtractedEntry, error)
	UpdateExtract(ctx context.Context, state *models.ExtractedEntry, newText string) (*models.ExtractedEntry, error)
}

type EntryWriter interface {
	InsertEntry(entry *models.Entry) error
}

type Scheduler interface {
	ScheduleRecompute(userID string)
}

// Merger drives both log modes. Quick mode is a single extract-and-save
// pass; guided mode keeps a server-side session open, asks follow-up
// questions for the fields the first pass left blank, and merges the
// answers back with a narrower incremental extraction.
type Merger struct {
	store        Store
	extractor    Extractor
	writer       EntryWriter
	scheduler    Scheduler
	maxQuestions int
}

type Config struct {
	MaxQuestions int
}

func NewMerger(store Store, extractor Extractor, writer EntryWriter, scheduler Scheduler, cfg Config) *Merger {
	if cfg.MaxQuestions == 0 {
		cfg.MaxQuestions = 3
	}
	return &Merger{
		store:        store,
		extractor:    extractor,
		writer:       writer,
		scheduler:    scheduler,
		maxQuestions: cfg.MaxQuestions,
	}
}

// QuickLog runs the single-shot mode: extract, persist, schedule a
// recompute. An extraction failure never loses the transcript; a
// degraded entry with neutral severity is written instead.
func (m *Merger) QuickLog(ctx context.Context, userID, transcript string) (*models.Entry, error) {
	extracted, err := m.extractor.Extract(ctx, transcript)
	if err != nil {
		logger.Warn("Quick log extraction failed, saving degraded entry",
			zap.String("user_id", userID),
			zap.Error(err),
		)
		metrics.ExtractionFailures.WithLabelValues("quick").Inc()
		extracted = degradedExtraction()
	}

	entry, err := m.persist(userID, transcript, extracted)
	if err != nil {
		return nil, err
	}

	metrics.EntriesLogged.WithLabelValues("quick").Inc()
	m.scheduler.ScheduleRecompute(userID)

	return entry, nil
}

// Start opens a guided session: run the first extraction pass, find the
// gaps, generate follow-up questions. A session with no gaps completes
// immediately and the caller should finalize right away.
func (m *Merger) Start(ctx context.Context, userID, transcript string) (*Session, error) {
	extracted, err := m.extractor.Extract(ctx, transcript)
	if err != nil {
		logger.Warn("Guided session extraction failed, starting with empty state",
			zap.String("user_id", userID),
			zap.Error(err),
		)
		metrics.ExtractionFailures.WithLabelValues("guided_start").Inc()
		extracted = &models.ExtractedEntry{Error: degradedEntryError}
	}

	session := &Session{
		ID:         uuid.New().String(),
		UserID:     userID,
		Transcript: transcript,
		State:      *extracted,
		Questions:  gapQuestions(extracted, m.maxQuestions),
		Status:     StatusStarted,
		CreatedAt:  time.Now(),
	}
	if len(session.Questions) > 0 {
		session.Status = StatusAwaitingAnswer
	} else {
		session.Status = StatusComplete
	}

	if err := m.store.Put(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to store session: %w", err)
	}

	metrics.GuidedSessionsStarted.Inc()
	logger.Info("Guided session started",
		zap.String("session_id", session.ID),
		zap.String("user_id", userID),
		zap.Int("questions", len(session.Questions)),
	)

	return session, nil
}

// Answer records one reply and advances the session. Transitions are
// forward-only: answering a complete session is an error, never a
// rewind.
func (m *Merger) Answer(ctx context.Context, sessionID, answer string) (*Session, error) {
	session, err := m.store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if session.Status == StatusComplete {
		return nil, fmt.Errorf("session %s is already complete", sessionID)
	}

	question, ok := session.CurrentQuestion()
	if !ok {
		return nil, fmt.Errorf("session %s has no outstanding question", sessionID)
	}

	session.QA = append(session.QA, QAPair{Question: question, Answer: answer})
	if session.AllAnswered() {
		session.Status = StatusComplete
	} else {
		session.Status = StatusAwaitingAnswer
	}

	if err := m.store.Put(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to store session: %w", err)
	}

	return session, nil
}

// Finalize merges the collected answers into the extraction state via
// one incremental pass, persists the entry, and tears the session down.
// It accepts sessions in any state; unanswered questions are simply
// dropped.
func (m *Merger) Finalize(ctx context.Context, sessionID string) (*models.Entry, error) {
	session, err := m.store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	state := session.State
	if len(session.QA) > 0 {
		merged, err := m.extractor.UpdateExtract(ctx, &state, followUpText(session))
		if err != nil {
			logger.Warn("Incremental extraction failed, keeping first-pass state",
				zap.String("session_id", sessionID),
				zap.Error(err),
			)
			metrics.ExtractionFailures.WithLabelValues("guided_merge").Inc()
		} else {
			state = *mergeExtracted(&session.State, merged)
		}
	}

	entry, err := m.persist(session.UserID, session.Transcript, &state)
	if err != nil {
		metrics.GuidedSessionsCompleted.WithLabelValues("error").Inc()
		return nil, err
	}

	if err := m.store.Delete(ctx, sessionID); err != nil {
		logger.Warn("Failed to delete finalized session",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
	}

	metrics.EntriesLogged.WithLabelValues("guided").Inc()
	metrics.GuidedSessionsCompleted.WithLabelValues("success").Inc()
	m.scheduler.ScheduleRecompute(session.UserID)

	logger.Info("Guided session finalized",
		zap.String("session_id", sessionID),
		zap.String("entry_id", entry.ID),
	)

	return entry, nil
}

// persist normalizes the extraction into a storable entry, gates it
// through the shape check, and writes it.
func (m *Merger) persist(userID, transcript string, extracted *models.ExtractedEntry) (*models.Entry, error) {
	entry := toEntry(userID, transcript, extracted)

	shape, err := json.Marshal(map[string]interface{}{
		"symptoms":           entry.Symptoms,
		"severity":           *entry.Severity,
		"potential_triggers": entry.PotentialTriggers,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal entry shape: %w", err)
	}
	if result := validate.EntryShape(string(shape)); !result.Valid {
		return nil, fmt.Errorf("extraction produced invalid entry: %s", result.Reason)
	}

	if err := m.writer.InsertEntry(entry); err != nil {
		return nil, fmt.Errorf("failed to persist entry: %w", err)
	}

	return entry, nil
}

// toEntry applies the persistence defaults: severity clamped to [1,10]
// with 5 as the neutral fallback, nil slices normalized to empty so the
// stored JSON always carries arrays.
func toEntry(userID, transcript string, extracted *models.ExtractedEntry) *models.Entry {
	severity := defaultSeverity
	if extracted.Severity != nil {
		severity = *extracted.Severity
		if severity < 1 {
			severity = 1
		}
		if severity > 10 {
			severity = 10
		}
	}

	notes := extracted.Notes
	if extracted.Error != "" && notes == "" {
		notes = degradedEntryNotes
	}

	return &models.Entry{
		ID:                uuid.New().String(),
		UserID:            userID,
		RawTranscript:     transcript,
		Symptoms:          emptyIfNil(extracted.Symptoms),
		Severity:          &severity,
		PotentialTriggers: emptyIfNil(extracted.PotentialTriggers),
		Mood:              extracted.Mood,
		BodyLocation:      emptyIfNil(extracted.BodyLocation),
		TimeContext:       extracted.TimeContext,
		Notes:             notes,
		Error:             extracted.Error,
		LoggedAt:          time.Now(),
	}
}

func degradedExtraction() *models.ExtractedEntry {
	severity := defaultSeverity
	return &models.ExtractedEntry{
		Symptoms:          []string{},
		Severity:          &severity,
		PotentialTriggers: []string{},
		BodyLocation:      []string{},
		Notes:             degradedEntryNotes,
		Error:             degradedEntryError,
	}
}

// gapQuestions generates follow-ups for blank fields in a fixed
// priority order, severity first because the trend analysis depends on
// it most.
func gapQuestions(extracted *models.ExtractedEntry, max int) []string {
	var questions []string

	if extracted.Severity == nil {
		questions = append(questions, "On a scale of 1 to 10, how severe is it?")
	}
	if len(extracted.PotentialTriggers) == 0 {
		questions = append(questions, "Did anything happen before this that might have triggered it? Food, stress, sleep, weather?")
	}
	if extracted.TimeContext == "" {
		questions = append(questions, "When did this start?")
	}
	if len(extracted.BodyLocation) == 0 {
		questions = append(questions, "Where in your body do you feel it?")
	}
	if extracted.Mood == "" {
		questions = append(questions, "How is this affecting your mood?")
	}

	if len(questions) > max {
		questions = questions[:max]
	}
	return questions
}

// followUpText flattens the Q/A turns into one block for the
// incremental extraction pass.
func followUpText(session *Session) string {
	var b strings.Builder
	for _, qa := range session.QA {
		fmt.Fprintf(&b, "Q: %s\nA: %s\n", qa.Question, qa.Answer)
	}
	return b.String()
}

// mergeExtracted fills blanks in the base state from the updated pass.
// Populated base fields win, so a confused second pass can never erase
// what the first pass found.
func mergeExtracted(base, updated *models.ExtractedEntry) *models.ExtractedEntry {
	merged := *base

	if merged.Severity == nil {
		merged.Severity = updated.Severity
	}
	if len(merged.Symptoms) == 0 {
		merged.Symptoms = updated.Symptoms
	}
	if len(merged.PotentialTriggers) == 0 {
		merged.PotentialTriggers = updated.PotentialTriggers
	}
	if len(merged.BodyLocation) == 0 {
		merged.BodyLocation = updated.BodyLocation
	}
	if merged.Mood == "" {
		merged.Mood = updated.Mood
	}
	if merged.TimeContext == "" {
		merged.TimeContext = updated.TimeContext
	}
	if merged.Notes == "" {
		merged.Notes = updated.Notes
	}

	return &merged
}

func emptyIfNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
