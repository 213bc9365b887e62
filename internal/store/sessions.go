package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/lazypower/tmebrain/internal/textutil"
)

// DefaultQuestionWindow is how many recent questions a session keeps.
const DefaultQuestionWindow = 10

const (
	maxContextChars  = 500
	maxSummaryChars  = 200
	contextQuestions = 3
)

// SessionContext is the conversational state of one session.
type SessionContext struct {
	SessionID       string
	CurrentTopic    string
	RecentQuestions []string
	Summary         string
	CreatedAt       int64
	UpdatedAt       int64
}

// ContextString renders the session for prompt injection: topic, the three
// most recent questions, then a summary slice, capped at 500 characters.
func (s *SessionContext) ContextString() string {
	if s == nil {
		return ""
	}

	var parts []string
	if s.CurrentTopic != "" {
		parts = append(parts, "Current topic: "+s.CurrentTopic)
	}
	if n := len(s.RecentQuestions); n > 0 {
		recent := s.RecentQuestions[max(0, n-contextQuestions):]
		parts = append(parts, "Recent questions: "+strings.Join(recent, "; "))
	}
	if s.Summary != "" {
		parts = append(parts, "Summary: "+textutil.Truncate(s.Summary, maxSummaryChars))
	}
	return textutil.Truncate(strings.Join(parts, "\n"), maxContextChars)
}

// SessionRepo stores SessionContext rows. Updates are read-modify-write
// without version checks; concurrent writers to one session race.
type SessionRepo struct {
	db     *DB
	window int
}

// Sessions returns the session repository backed by db. A non-positive
// window selects DefaultQuestionWindow.
func (db *DB) Sessions(window int) *SessionRepo {
	if window <= 0 {
		window = DefaultQuestionWindow
	}
	return &SessionRepo{db: db, window: window}
}

// Get returns a session by id, or nil when it does not exist.
func (r *SessionRepo) Get(ctx context.Context, sessionID string) (*SessionContext, error) {
	var s SessionContext
	var questions string
	err := r.db.QueryRowContext(ctx, `
		SELECT session_id, current_topic, recent_questions, summary, created_at, updated_at
		FROM session WHERE session_id = ?
	`, sessionID).Scan(&s.SessionID, &s.CurrentTopic, &questions, &s.Summary, &s.CreatedAt, &s.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	if err := json.Unmarshal([]byte(questions), &s.RecentQuestions); err != nil {
		return nil, fmt.Errorf("decode recent questions for %s: %w", sessionID, err)
	}
	return &s, nil
}

// GetOrCreate returns the session, creating an empty one on first reference.
// Calling it repeatedly for the same id is a no-op after the first insert.
func (r *SessionRepo) GetOrCreate(ctx context.Context, sessionID string) (*SessionContext, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("session id required")
	}

	now := r.db.now().UnixMilli()
	if _, err := r.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO session (session_id, recent_questions, created_at, updated_at)
		VALUES (?, '[]', ?, ?)
	`, sessionID, now, now); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	s, err := r.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, fmt.Errorf("session %s vanished after create", sessionID)
	}
	return s, nil
}

// AppendQuestion records q as the newest question, keeping only the last
// window entries in arrival order.
func (r *SessionRepo) AppendQuestion(ctx context.Context, sessionID, q string) error {
	s, err := r.GetOrCreate(ctx, sessionID)
	if err != nil {
		return err
	}

	questions := append(s.RecentQuestions, q)
	if len(questions) > r.window {
		questions = questions[len(questions)-r.window:]
	}

	encoded, err := json.Marshal(questions)
	if err != nil {
		return fmt.Errorf("encode recent questions: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		UPDATE session SET recent_questions = ?, updated_at = ? WHERE session_id = ?
	`, string(encoded), r.db.now().UnixMilli(), sessionID)
	if err != nil {
		return fmt.Errorf("append question: %w", err)
	}
	return nil
}

// SetTopic overwrites the session's current topic.
func (r *SessionRepo) SetTopic(ctx context.Context, sessionID, topic string) error {
	return r.setColumn(ctx, "current_topic", sessionID, topic)
}

// SetSummary overwrites the session's conversation summary.
func (r *SessionRepo) SetSummary(ctx context.Context, sessionID, summary string) error {
	return r.setColumn(ctx, "summary", sessionID, summary)
}

func (r *SessionRepo) setColumn(ctx context.Context, column, sessionID, value string) error {
	_, err := r.db.ExecContext(ctx,
		"UPDATE session SET "+column+" = ?, updated_at = ? WHERE session_id = ?",
		value, r.db.now().UnixMilli(), sessionID)
	if err != nil {
		return fmt.Errorf("set session %s: %w", column, err)
	}
	return nil
}

// Delete removes a session. Missing sessions are not an error.
func (r *SessionRepo) Delete(ctx context.Context, sessionID string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM session WHERE session_id = ?", sessionID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// PruneBefore deletes every session last updated strictly before cutoff.
func (r *SessionRepo) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, "DELETE FROM session WHERE updated_at < ?", cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("prune sessions: %w", err)
	}
	return result.RowsAffected()
}
