// Package search is the web search fallback used when nothing local answers
// a query.
package search

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/lazypower/tmebrain/internal/textutil"
)

// MaxQueryChars caps the query payload sent upstream.
const MaxQueryChars = 500

// UnsearchableText is returned in place of results when the provider rejects
// the query itself.
const UnsearchableText = "Không thể tìm kiếm với câu hỏi này. Vui lòng thử câu hỏi khác."

// Searcher runs a web search.
type Searcher interface {
	Search(ctx context.Context, query string) (*Result, error)
}

// Item is one structured search hit.
type Item struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

// Result is either plain text or a list of items, depending on what the
// provider produced.
type Result struct {
	Text  string
	Items []Item
}

// Normalize flattens a result to plain text: text as-is, items one per line.
func Normalize(r *Result) string {
	if r == nil {
		return ""
	}
	if r.Text != "" {
		return r.Text
	}

	lines := make([]string, 0, len(r.Items))
	for _, it := range r.Items {
		var line string
		switch {
		case it.Title != "" && it.Content != "":
			line = it.Title + ": " + it.Content
		case it.Content != "":
			line = it.Content
		default:
			line = it.Title
		}
		if it.URL != "" {
			line += " (" + it.URL + ")"
		}
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}

// StatusError reports a non-2xx response from the provider.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("search api status %d: %s", e.Code, e.Body)
}

// DegradedText is the text that stands in for results after err.
// A rejected query (HTTP 400) yields UnsearchableText, anything else nothing.
func DegradedText(err error) string {
	var se *StatusError
	if errors.As(err, &se) && se.Code == 400 {
		return UnsearchableText
	}
	return ""
}

// TruncateQuery cuts query to MaxQueryChars characters.
func TruncateQuery(query string) string {
	return textutil.Truncate(query, MaxQueryChars)
}
