package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// HistoryRecord is one answered question. Records are append-only.
type HistoryRecord struct {
	ID        int64
	Question  string
	Answer    string
	Source    string
	Timestamp int64
}

// HistoryRepo is the append-only question/answer log.
type HistoryRepo struct {
	db *DB
}

// History returns the history repository backed by db.
func (db *DB) History() *HistoryRepo {
	return &HistoryRepo{db: db}
}

// Save appends a question/answer pair.
func (h *HistoryRepo) Save(ctx context.Context, question, answer, source string) error {
	_, err := h.db.ExecContext(ctx, `
		INSERT INTO history (question, answer, source, timestamp)
		VALUES (?, ?, ?, ?)
	`, question, answer, source, h.db.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("save history: %w", err)
	}
	return nil
}

// FindByQuestion returns the oldest record whose question contains query as a
// substring, or nil when nothing matches. Matching is exact and case-sensitive.
func (h *HistoryRepo) FindByQuestion(ctx context.Context, query string) (*HistoryRecord, error) {
	if query == "" {
		return nil, nil
	}

	var r HistoryRecord
	err := h.db.QueryRowContext(ctx, `
		SELECT id, question, answer, source, timestamp
		FROM history WHERE instr(question, ?) > 0
		ORDER BY id LIMIT 1
	`, query).Scan(&r.ID, &r.Question, &r.Answer, &r.Source, &r.Timestamp)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find history: %w", err)
	}
	return &r, nil
}

// ForQuestions returns records whose question is one of questions, newest first.
func (h *HistoryRepo) ForQuestions(ctx context.Context, questions []string, limit int) ([]HistoryRecord, error) {
	if len(questions) == 0 {
		return nil, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(questions)), ",")
	args := make([]any, 0, len(questions)+1)
	for _, q := range questions {
		args = append(args, q)
	}
	args = append(args, limit)

	rows, err := h.db.QueryContext(ctx, `
		SELECT id, question, answer, source, timestamp
		FROM history WHERE question IN (`+placeholders+`)
		ORDER BY timestamp DESC, id DESC LIMIT ?
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("history for questions: %w", err)
	}
	defer rows.Close()

	var records []HistoryRecord
	for rows.Next() {
		var r HistoryRecord
		if err := rows.Scan(&r.ID, &r.Question, &r.Answer, &r.Source, &r.Timestamp); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// PruneBefore deletes every record written strictly before cutoff.
func (h *HistoryRepo) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := h.db.ExecContext(ctx, "DELETE FROM history WHERE timestamp < ?", cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("prune history: %w", err)
	}
	return result.RowsAffected()
}
