package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeEmbedding(t *testing.T) {
	vec := []float64{0.5, -1.25, 3.0, 0}
	assert.Equal(t, vec, decodeEmbedding(encodeEmbedding(vec)))
	assert.Empty(t, decodeEmbedding(nil))
}

func TestDocumentsAddAndFetch(t *testing.T) {
	ctx := context.Background()
	db, _ := testDB(t)
	docs := db.Documents()

	id1, err := docs.Add(ctx, "Hà Nội mùa thu", map[string]any{"source": "wiki"}, []float64{1, 0}, "hash")
	require.NoError(t, err)
	id2, err := docs.Add(ctx, "Sài Gòn nắng", nil, []float64{0, 1}, "hash")
	require.NoError(t, err)
	_, err = docs.Add(ctx, "other model", nil, []float64{1, 1, 1}, "ollama")
	require.NoError(t, err)

	vectors, err := docs.Vectors(ctx, "hash")
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	for _, v := range vectors {
		assert.Equal(t, 2, v.Dimensions)
		assert.Len(t, v.Embedding, 2)
	}

	got, err := docs.GetByIDs(ctx, []int64{id1, id2, 999})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Hà Nội mùa thu", got[id1].Content)
	assert.Equal(t, "wiki", got[id1].Metadata["source"])
	assert.Empty(t, got[id2].Metadata)
}

func TestDocumentsGetByIDsEmpty(t *testing.T) {
	db, _ := testDB(t)

	got, err := db.Documents().GetByIDs(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestDocumentVectorsCascade(t *testing.T) {
	ctx := context.Background()
	db, _ := testDB(t)

	id, err := db.Documents().Add(ctx, "text", nil, []float64{1}, "hash")
	require.NoError(t, err)

	_, err = db.Exec("DELETE FROM documents WHERE id = ?", id)
	require.NoError(t, err)

	vectors, err := db.Documents().Vectors(ctx, "hash")
	require.NoError(t, err)
	assert.Empty(t, vectors)
}
