package brain

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"

	"github.com/lazypower/tmebrain/internal/index"
	"github.com/lazypower/tmebrain/internal/retention"
	"github.com/lazypower/tmebrain/internal/store"
	"github.com/lazypower/tmebrain/internal/textutil"
)

var (
	// ErrNoIndex is returned by document operations when no index is configured.
	ErrNoIndex = errors.New("similarity index not configured")
	// ErrNoRetention is returned by storage operations when no retention service is configured.
	ErrNoRetention = errors.New("retention service not configured")
)

const (
	DefaultSessionHistoryLimit = 5
	DefaultNewsLimit           = 5

	newsSnippetChars = 200
)

// AddDocuments indexes texts. metadata, when given, is matched to texts by
// position; every document also records when it was added.
func (b *Brain) AddDocuments(ctx context.Context, texts []string, metadata []map[string]any) ([]int64, error) {
	if b.index == nil {
		return nil, ErrNoIndex
	}
	if len(metadata) > 0 && len(metadata) != len(texts) {
		return nil, fmt.Errorf("got %d metadata entries for %d texts", len(metadata), len(texts))
	}

	now := nowUnix()
	ids := make([]int64, 0, len(texts))
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			continue
		}
		meta := map[string]any{}
		if len(metadata) > 0 {
			maps.Copy(meta, metadata[i])
		}
		meta["timestamp"] = now

		id, err := b.index.Add(ctx, text, meta)
		if err != nil {
			return ids, fmt.Errorf("add document %d: %w", i, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// NewsItem is a news document surfaced by LatestNews.
type NewsItem struct {
	Title    string `json:"title"`
	Source   string `json:"source"`
	Category string `json:"category"`
	URL      string `json:"url"`
	Content  string `json:"content"`
}

// LatestNews returns indexed documents of type "news", optionally limited to
// one category, ranked against a generic latest-news query.
func (b *Brain) LatestNews(ctx context.Context, category string, limit int) ([]NewsItem, error) {
	if b.index == nil {
		return nil, ErrNoIndex
	}
	if limit <= 0 {
		limit = DefaultNewsLimit
	}

	query := "tin tức mới nhất hôm nay"
	filter := map[string]string{"type": "news"}
	if category != "" {
		query = "tin tức mới nhất " + category
		filter["category"] = category
	}

	matches, err := b.index.Find(ctx, query, index.FindOpts{Limit: limit, Filter: filter})
	if err != nil {
		return nil, fmt.Errorf("find news: %w", err)
	}

	items := make([]NewsItem, 0, len(matches))
	for _, m := range matches {
		meta := m.Document.Metadata
		items = append(items, NewsItem{
			Title:    metaString(meta, "title"),
			Source:   metaString(meta, "source"),
			Category: metaString(meta, "category"),
			URL:      metaString(meta, "url"),
			Content:  textutil.Truncate(m.Document.Content, newsSnippetChars),
		})
	}
	return items, nil
}

// Stats reports storage usage.
func (b *Brain) Stats(ctx context.Context) (*retention.Stats, error) {
	if b.retention == nil {
		return nil, ErrNoRetention
	}
	return b.retention.Stats(ctx)
}

// ForceCleanup deletes rows older than days regardless of the footprint.
func (b *Brain) ForceCleanup(ctx context.Context, days int) (*retention.CleanupResult, error) {
	if b.retention == nil {
		return nil, ErrNoRetention
	}
	return b.retention.Cleanup(ctx, days)
}

// CheckStorage sweeps only if the footprint exceeds the ceiling.
func (b *Brain) CheckStorage(ctx context.Context) (*retention.CleanupResult, error) {
	if b.retention == nil {
		return nil, ErrNoRetention
	}
	return b.retention.CheckAndCleanup(ctx)
}

// Session returns a session, or nil when it does not exist.
func (b *Brain) Session(ctx context.Context, sessionID string) (*store.SessionContext, error) {
	return b.sessions.Get(ctx, sessionID)
}

// DeleteSession forgets a session.
func (b *Brain) DeleteSession(ctx context.Context, sessionID string) error {
	return b.sessions.Delete(ctx, sessionID)
}

// SetSessionSummary stores a conversation summary, creating the session if needed.
func (b *Brain) SetSessionSummary(ctx context.Context, sessionID, summary string) error {
	if _, err := b.sessions.GetOrCreate(ctx, sessionID); err != nil {
		return err
	}
	return b.sessions.SetSummary(ctx, sessionID, summary)
}

// SessionHistory returns the answered questions among the session's recent
// questions, newest first. Unknown sessions have no history.
func (b *Brain) SessionHistory(ctx context.Context, sessionID string, limit int) ([]store.HistoryRecord, error) {
	if limit <= 0 {
		limit = DefaultSessionHistoryLimit
	}
	session, err := b.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, nil
	}
	return b.history.ForQuestions(ctx, session.RecentQuestions, limit)
}

func metaString(meta map[string]any, key string) string {
	s, _ := meta[key].(string)
	return s
}
