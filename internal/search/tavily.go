package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultTavilyURL is the Tavily search endpoint.
const DefaultTavilyURL = "https://api.tavily.com/search"

// Tavily calls the Tavily search API.
type Tavily struct {
	apiKey     string
	url        string
	maxResults int
	client     *http.Client
}

// NewTavily creates a Tavily client. Zero values select the defaults.
func NewTavily(apiKey, url string, maxResults int, timeout time.Duration) *Tavily {
	if url == "" {
		url = DefaultTavilyURL
	}
	if maxResults <= 0 {
		maxResults = 2
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Tavily{
		apiKey:     apiKey,
		url:        url,
		maxResults: maxResults,
		client:     &http.Client{Timeout: timeout},
	}
}

// Search queries Tavily with the query cut to MaxQueryChars.
func (t *Tavily) Search(ctx context.Context, query string) (*Result, error) {
	reqBody := map[string]any{
		"query":       TruncateQuery(query),
		"max_results": t.maxResults,
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal search request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+t.apiKey)

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tavily api: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read search response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Code: resp.StatusCode, Body: string(respBody)}
	}

	var result struct {
		Answer  string `json:"answer"`
		Results []Item `json:"results"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	if len(result.Results) == 0 {
		return &Result{Text: result.Answer}, nil
	}
	return &Result{Items: result.Results}, nil
}
