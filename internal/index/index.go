// Package index is the built-in similarity index over stored reference
// documents.
package index

import (
	"context"
	"fmt"
	"sort"

	"github.com/lazypower/tmebrain/internal/store"
)

// DocumentStore persists documents and their embeddings.
type DocumentStore interface {
	Add(ctx context.Context, content string, metadata map[string]any, embedding []float64, model string) (int64, error)
	Vectors(ctx context.Context, model string) ([]store.DocumentVector, error)
	GetByIDs(ctx context.Context, ids []int64) (map[int64]store.Document, error)
}

// Match is a document scored against a query.
type Match struct {
	Document   store.Document `json:"document"`
	Similarity float64        `json:"similarity"`
}

// FindOpts controls a similarity search.
type FindOpts struct {
	Limit  int               // max results (default 2)
	Filter map[string]string // metadata key/value pairs every match must carry
}

func (o FindOpts) limit() int {
	if o.Limit <= 0 {
		return 2
	}
	return o.Limit
}

// Index scores stored documents against queries with one embedder.
// Only vectors produced by that embedder's model are considered.
type Index struct {
	docs     DocumentStore
	embedder Embedder
}

// New creates an index over docs.
func New(docs DocumentStore, embedder Embedder) *Index {
	return &Index{docs: docs, embedder: embedder}
}

// Model returns the embedding model the index reads and writes.
func (ix *Index) Model() string {
	return ix.embedder.Model()
}

// Add embeds content and stores it.
func (ix *Index) Add(ctx context.Context, content string, metadata map[string]any) (int64, error) {
	vec, err := ix.embedder.Embed(ctx, content)
	if err != nil {
		return 0, fmt.Errorf("embed document: %w", err)
	}
	id, err := ix.docs.Add(ctx, content, metadata, vec, ix.embedder.Model())
	if err != nil {
		return 0, fmt.Errorf("add document: %w", err)
	}
	return id, nil
}

// Similar returns the contents of the k most similar documents, best first.
func (ix *Index) Similar(ctx context.Context, query string, k int) ([]string, error) {
	matches, err := ix.Find(ctx, query, FindOpts{Limit: k})
	if err != nil {
		return nil, err
	}
	out := make([]string, len(matches))
	for i, m := range matches {
		out[i] = m.Document.Content
	}
	return out, nil
}

// Find performs a brute-force cosine search. Documents with no positive
// similarity never match.
func (ix *Index) Find(ctx context.Context, query string, opts FindOpts) ([]Match, error) {
	queryVec, err := ix.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	vectors, err := ix.docs.Vectors(ctx, ix.embedder.Model())
	if err != nil {
		return nil, fmt.Errorf("load vectors: %w", err)
	}
	if len(vectors) == 0 {
		return nil, nil
	}

	type scored struct {
		id  int64
		sim float64
	}
	var candidates []scored
	for _, v := range vectors {
		if sim := CosineSimilarity(queryVec, v.Embedding); sim > 0 {
			candidates = append(candidates, scored{v.DocID, sim})
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].sim == candidates[j].sim {
			return candidates[i].id < candidates[j].id
		}
		return candidates[i].sim > candidates[j].sim
	})

	// Without a filter only the top slice needs loading.
	if len(opts.Filter) == 0 && len(candidates) > opts.limit() {
		candidates = candidates[:opts.limit()]
	}

	ids := make([]int64, len(candidates))
	for i, c := range candidates {
		ids[i] = c.id
	}
	docs, err := ix.docs.GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("get documents: %w", err)
	}

	var results []Match
	for _, c := range candidates {
		doc, ok := docs[c.id]
		if !ok || !matchesFilter(doc.Metadata, opts.Filter) {
			continue
		}
		results = append(results, Match{Document: doc, Similarity: c.sim})
		if len(results) == opts.limit() {
			break
		}
	}
	return results, nil
}

func matchesFilter(metadata map[string]any, filter map[string]string) bool {
	for k, want := range filter {
		got, ok := metadata[k].(string)
		if !ok || got != want {
			return false
		}
	}
	return true
}
