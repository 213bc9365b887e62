package store

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// Document is a piece of reference text served by the similarity index.
type Document struct {
	ID        int64
	Content   string
	Metadata  map[string]any
	CreatedAt int64
}

// DocumentVector holds the embedding of one document.
type DocumentVector struct {
	DocID      int64
	Embedding  []float64
	Model      string
	Dimensions int
}

// DocumentRepo stores the similarity index corpus and its embeddings.
type DocumentRepo struct {
	db *DB
}

// Documents returns the document repository backed by db.
func (db *DB) Documents() *DocumentRepo {
	return &DocumentRepo{db: db}
}

// encodeEmbedding converts a []float64 to a binary BLOB (8 bytes per float64).
func encodeEmbedding(vec []float64) []byte {
	buf := make([]byte, len(vec)*8)
	for i, v := range vec {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(v))
	}
	return buf
}

// decodeEmbedding converts a binary BLOB back to []float64.
func decodeEmbedding(buf []byte) []float64 {
	n := len(buf) / 8
	vec := make([]float64, n)
	for i := 0; i < n; i++ {
		vec[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[i*8:]))
	}
	return vec
}

// Add stores a document together with its embedding in one transaction and
// returns the new document id.
func (r *DocumentRepo) Add(ctx context.Context, content string, metadata map[string]any, embedding []float64, model string) (int64, error) {
	if metadata == nil {
		metadata = map[string]any{}
	}
	meta, err := json.Marshal(metadata)
	if err != nil {
		return 0, fmt.Errorf("encode metadata: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin add document: %w", err)
	}
	defer tx.Rollback()

	now := r.db.now().UnixMilli()
	result, err := tx.ExecContext(ctx, `
		INSERT INTO documents (content, metadata, created_at) VALUES (?, ?, ?)
	`, content, string(meta), now)
	if err != nil {
		return 0, fmt.Errorf("insert document: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("document id: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO document_vectors (doc_id, embedding, model, dimensions, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, id, encodeEmbedding(embedding), model, len(embedding), now); err != nil {
		return 0, fmt.Errorf("insert document vector: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit document: %w", err)
	}
	return id, nil
}

// Vectors returns every stored embedding produced by model.
func (r *DocumentRepo) Vectors(ctx context.Context, model string) ([]DocumentVector, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT doc_id, embedding, model, dimensions
		FROM document_vectors WHERE model = ?
	`, model)
	if err != nil {
		return nil, fmt.Errorf("document vectors: %w", err)
	}
	defer rows.Close()

	var vectors []DocumentVector
	for rows.Next() {
		var v DocumentVector
		var blob []byte
		if err := rows.Scan(&v.DocID, &blob, &v.Model, &v.Dimensions); err != nil {
			return nil, fmt.Errorf("scan vector: %w", err)
		}
		v.Embedding = decodeEmbedding(blob)
		vectors = append(vectors, v)
	}
	return vectors, rows.Err()
}

// GetByIDs returns the documents with the given ids, keyed by id.
func (r *DocumentRepo) GetByIDs(ctx context.Context, ids []int64) (map[int64]Document, error) {
	docs := make(map[int64]Document, len(ids))
	if len(ids) == 0 {
		return docs, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, content, metadata, created_at
		FROM documents WHERE id IN (`+placeholders+`)
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("get documents: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var d Document
		var meta string
		if err := rows.Scan(&d.ID, &d.Content, &meta, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		if err := json.Unmarshal([]byte(meta), &d.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata for document %d: %w", d.ID, err)
		}
		docs[d.ID] = d
	}
	return docs, rows.Err()
}
