package guided

import (
	"time"

	"github.com/voicehealth/backend/internal/storage/models"
)

type Status string

const (
	StatusStarted        Status = "started"
	StatusAwaitingAnswer Status = "awaiting_answer"
	StatusComplete       Status = "complete"
)

type QAPair struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// Session holds a partially extracted entry across follow-up turns.
// It lives server-side, keyed by an opaque id, so the client never
// resubmits state it could tamper with. Transitions are forward-only:
// started -> awaiting_answer* -> complete.
type Session struct {
	ID         string                `json:"session_id"`
	UserID     string                `json:"user_id"`
	Transcript string                `json:"original_transcript"`
	State      models.ExtractedEntry `json:"extracted_state"`
	Questions  []string              `json:"questions"`
	QA         []QAPair              `json:"qa_pairs"`
	Status     Status                `json:"status"`
	CreatedAt  time.Time             `json:"created_at"`
}

// CurrentQuestion returns the outstanding question, if any.
func (s *Session) CurrentQuestion() (string, bool) {
	if len(s.QA) < len(s.Questions) {
		return s.Questions[len(s.QA)], true
	}
	return "", false
}

// AllAnswered reports whether every generated question has an answer.
func (s *Session) AllAnswered() bool {
	return len(s.QA) >= len(s.Questions)
}
