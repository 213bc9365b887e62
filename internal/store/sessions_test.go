package store

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionGetMissing(t *testing.T) {
	db, _ := testDB(t)

	s, err := db.Sessions(0).Get(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, s)
}

func TestSessionGetOrCreateIdempotent(t *testing.T) {
	ctx := context.Background()
	db, clock := testDB(t)
	sessions := db.Sessions(0)

	first, err := sessions.GetOrCreate(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "s1", first.SessionID)
	assert.Empty(t, first.RecentQuestions)
	assert.Empty(t, first.CurrentTopic)

	clock.Advance(time.Minute)
	second, err := sessions.GetOrCreate(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, first.CreatedAt, second.CreatedAt)

	var n int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM session").Scan(&n))
	assert.Equal(t, 1, n)
}

func TestSessionGetOrCreateEmptyID(t *testing.T) {
	db, _ := testDB(t)

	_, err := db.Sessions(0).GetOrCreate(context.Background(), "")
	assert.Error(t, err)
}

func TestSessionAppendQuestionWindow(t *testing.T) {
	ctx := context.Background()
	db, _ := testDB(t)
	sessions := db.Sessions(0)

	for i := 1; i <= 15; i++ {
		require.NoError(t, sessions.AppendQuestion(ctx, "s1", fmt.Sprintf("q%d", i)))
	}

	s, err := sessions.Get(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, s.RecentQuestions, DefaultQuestionWindow)
	assert.Equal(t, "q6", s.RecentQuestions[0])
	assert.Equal(t, "q15", s.RecentQuestions[DefaultQuestionWindow-1])
}

func TestSessionAppendQuestionCustomWindow(t *testing.T) {
	ctx := context.Background()
	db, _ := testDB(t)
	sessions := db.Sessions(2)

	for _, q := range []string{"a", "b", "c"} {
		require.NoError(t, sessions.AppendQuestion(ctx, "s1", q))
	}

	s, err := sessions.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, s.RecentQuestions)
}

func TestSessionTopicAndSummary(t *testing.T) {
	ctx := context.Background()
	db, clock := testDB(t)
	sessions := db.Sessions(0)

	created, err := sessions.GetOrCreate(ctx, "s1")
	require.NoError(t, err)

	clock.Advance(time.Second)
	require.NoError(t, sessions.SetTopic(ctx, "s1", "tài chính"))
	require.NoError(t, sessions.SetSummary(ctx, "s1", "asked about gold"))

	s, err := sessions.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "tài chính", s.CurrentTopic)
	assert.Equal(t, "asked about gold", s.Summary)
	assert.Greater(t, s.UpdatedAt, created.UpdatedAt)
}

func TestSessionDelete(t *testing.T) {
	ctx := context.Background()
	db, _ := testDB(t)
	sessions := db.Sessions(0)

	_, err := sessions.GetOrCreate(ctx, "s1")
	require.NoError(t, err)
	require.NoError(t, sessions.Delete(ctx, "s1"))
	require.NoError(t, sessions.Delete(ctx, "s1"))

	s, err := sessions.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Nil(t, s)
}

func TestSessionPruneBefore(t *testing.T) {
	ctx := context.Background()
	db, clock := testDB(t)
	sessions := db.Sessions(0)

	_, err := sessions.GetOrCreate(ctx, "stale")
	require.NoError(t, err)
	_, err = sessions.GetOrCreate(ctx, "active")
	require.NoError(t, err)

	clock.Advance(48 * time.Hour)
	require.NoError(t, sessions.AppendQuestion(ctx, "active", "still here"))

	n, err := sessions.PruneBefore(ctx, clock.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	s, err := sessions.Get(ctx, "active")
	require.NoError(t, err)
	assert.NotNil(t, s)
}

func TestContextString(t *testing.T) {
	tests := []struct {
		name string
		in   *SessionContext
		want string
	}{
		{"nil", nil, ""},
		{"empty", &SessionContext{}, ""},
		{
			"topic only",
			&SessionContext{CurrentTopic: "thời tiết"},
			"Current topic: thời tiết",
		},
		{
			"last three questions",
			&SessionContext{
				CurrentTopic:    "tin tức",
				RecentQuestions: []string{"a", "b", "c", "d"},
			},
			"Current topic: tin tức\nRecent questions: b; c; d",
		},
		{
			"summary",
			&SessionContext{Summary: "short"},
			"Summary: short",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.in.ContextString())
		})
	}
}

func TestContextStringBounded(t *testing.T) {
	s := &SessionContext{
		CurrentTopic:    strings.Repeat("đ", 300),
		RecentQuestions: []string{strings.Repeat("ư", 300)},
		Summary:         strings.Repeat("s", 1000),
	}

	got := s.ContextString()
	assert.Equal(t, 500, utf8.RuneCountInString(got))
	assert.True(t, utf8.ValidString(got))
}
