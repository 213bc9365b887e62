package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHistoryFindByQuestion(t *testing.T) {
	ctx := context.Background()
	db, clock := testDB(t)
	history := db.History()

	require.NoError(t, history.Save(ctx, "giá vàng hôm nay", "first", "search"))
	clock.Advance(time.Second)
	require.NoError(t, history.Save(ctx, "giá vàng hôm nay bao nhiêu", "second", "search"))

	tests := []struct {
		name   string
		query  string
		answer string
	}{
		{"exact", "giá vàng hôm nay", "first"},
		{"substring", "vàng", "first"},
		{"only longer question", "bao nhiêu", "second"},
		{"case sensitive miss", "GIÁ VÀNG", ""},
		{"no match", "thời tiết", ""},
		{"empty query", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := history.FindByQuestion(ctx, tt.query)
			require.NoError(t, err)
			if tt.answer == "" {
				assert.Nil(t, r)
				return
			}
			require.NotNil(t, r)
			assert.Equal(t, tt.answer, r.Answer)
		})
	}
}

func TestHistoryForQuestions(t *testing.T) {
	ctx := context.Background()
	db, clock := testDB(t)
	history := db.History()

	for _, q := range []string{"a", "b", "c"} {
		require.NoError(t, history.Save(ctx, q, "answer "+q, "generated"))
		clock.Advance(time.Second)
	}

	records, err := history.ForQuestions(ctx, []string{"a", "c", "missing"}, 10)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "c", records[0].Question)
	assert.Equal(t, "a", records[1].Question)

	limited, err := history.ForQuestions(ctx, []string{"a", "b", "c"}, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "c", limited[0].Question)

	none, err := history.ForQuestions(ctx, nil, 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestHistoryPruneBefore(t *testing.T) {
	ctx := context.Background()
	db, clock := testDB(t)
	history := db.History()

	require.NoError(t, history.Save(ctx, "old", "1", "search"))
	clock.Advance(31 * 24 * time.Hour)
	require.NoError(t, history.Save(ctx, "new", "2", "search"))

	n, err := history.PruneBefore(ctx, clock.Now().Add(-30*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	r, err := history.FindByQuestion(ctx, "new")
	require.NoError(t, err)
	assert.NotNil(t, r)
}
