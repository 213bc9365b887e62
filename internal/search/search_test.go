package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   *Result
		want string
	}{
		{"nil", nil, ""},
		{"text", &Result{Text: "plain answer"}, "plain answer"},
		{
			"items",
			&Result{Items: []Item{
				{Title: "SJC", Content: "120 triệu", URL: "https://a.vn"},
				{Content: "only content"},
				{Title: "only title"},
				{},
			}},
			"SJC: 120 triệu (https://a.vn)\nonly content\nonly title",
		},
		{"empty items", &Result{Items: []Item{}}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestDegradedText(t *testing.T) {
	assert.Equal(t, UnsearchableText, DegradedText(&StatusError{Code: 400}))
	assert.Equal(t, UnsearchableText, DegradedText(fmt.Errorf("wrapped: %w", &StatusError{Code: 400})))
	assert.Equal(t, "", DegradedText(&StatusError{Code: 500}))
	assert.Equal(t, "", DegradedText(errors.New("connection refused")))
}

func TestTruncateQuery(t *testing.T) {
	short := "giá vàng hôm nay"
	assert.Equal(t, short, TruncateQuery(short))

	long := strings.Repeat("ă", 800)
	got := TruncateQuery(long)
	assert.Equal(t, MaxQueryChars, utf8.RuneCountInString(got))
	assert.True(t, utf8.ValidString(got))
}

func TestTavilySearch(t *testing.T) {
	var got struct {
		Query      string `json:"query"`
		MaxResults int    `json:"max_results"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer tvly-key", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))

		io.WriteString(w, `{"query": "x", "results": [
			{"title": "Giá vàng", "url": "https://x.vn", "content": "SJC 120 triệu", "score": 0.9}
		]}`)
	}))
	defer srv.Close()

	client := NewTavily("tvly-key", srv.URL, 0, 0)
	res, err := client.Search(context.Background(), strings.Repeat("q", 700))
	require.NoError(t, err)

	assert.Len(t, got.Query, MaxQueryChars)
	assert.Equal(t, 2, got.MaxResults)
	require.Len(t, res.Items, 1)
	assert.Equal(t, "Giá vàng: SJC 120 triệu (https://x.vn)", Normalize(res))
}

func TestTavilySearchAnswerOnly(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"answer": "short answer", "results": []}`)
	}))
	defer srv.Close()

	res, err := NewTavily("k", srv.URL, 2, 0).Search(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, "short answer", Normalize(res))
}

func TestTavilySearchBadRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail": "query too long"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := NewTavily("k", srv.URL, 2, 0).Search(context.Background(), "q")
	require.Error(t, err)

	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusBadRequest, se.Code)
	assert.Equal(t, UnsearchableText, DegradedText(err))
}
