package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) Store {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestUserRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	got, err := s.GetUser(ctx, 42)
	require.NoError(t, err)
	require.Nil(t, got)

	u := &User{ChatID: 42, Name: "Masha", Age: 9}
	require.NoError(t, s.SaveUser(ctx, u))

	got, err = s.GetUser(ctx, 42)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, "Masha", got.Name)
	require.Equal(t, 9, got.Age)
	require.False(t, got.Premium)

	// Upsert updates in place.
	u.Age = 10
	u.Premium = true
	require.NoError(t, s.SaveUser(ctx, u))
	got, err = s.GetUser(ctx, 42)
	require.NoError(t, err)
	require.Equal(t, 10, got.Age)
	require.True(t, got.Premium)

	n, err := s.CountUsers(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
}

func TestHistory(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AppendMessage(ctx, 7, "user", "what is 2+2?"))
	require.NoError(t, s.AppendMessage(ctx, 7, "assistant", "It's 4! Great question."))
	require.NoError(t, s.AppendMessage(ctx, 7, "user", "and 3+3?"))
	require.NoError(t, s.AppendMessage(ctx, 8, "user", "unrelated chat"))

	msgs, err := s.RecentMessages(ctx, 7, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	require.Equal(t, "user", msgs[0].Role)
	require.Equal(t, "what is 2+2?", msgs[0].Content)
	require.Equal(t, "and 3+3?", msgs[2].Content)

	// Limit keeps the most recent, still chronological.
	msgs, err = s.RecentMessages(ctx, 7, 2)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	require.Equal(t, "It's 4! Great question.", msgs[0].Content)

	n, err := s.CountUserMessagesSince(ctx, 7, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	require.Equal(t, 2, n)

	n, err = s.CountUserMessagesSince(ctx, 7, time.Now().Add(time.Hour))
	require.NoError(t, err)
	require.Equal(t, 0, n)
}

func TestPurgeOlderThan(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AppendMessage(ctx, 1, "user", "old enough"))
	time.Sleep(10 * time.Millisecond)
	cutoff := time.Now()
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, s.AppendMessage(ctx, 1, "user", "fresh"))

	removed, err := s.PurgeOlderThan(ctx, cutoff)
	require.NoError(t, err)
	require.Equal(t, int64(1), removed)

	msgs, err := s.RecentMessages(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, "fresh", msgs[0].Content)
}

func TestQuizScores(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	correct, total, err := s.QuizTotals(ctx, 5)
	require.NoError(t, err)
	require.Zero(t, correct)
	require.Zero(t, total)

	require.NoError(t, s.RecordQuizAnswer(ctx, 5, true))
	require.NoError(t, s.RecordQuizAnswer(ctx, 5, false))
	require.NoError(t, s.RecordQuizAnswer(ctx, 5, true))

	correct, total, err = s.QuizTotals(ctx, 5)
	require.NoError(t, err)
	require.Equal(t, int64(2), correct)
	require.Equal(t, int64(3), total)
}

func TestDeleteUserCascades(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveUser(ctx, &User{ChatID: 9, Name: "Petya", Age: 8}))
	require.NoError(t, s.AppendMessage(ctx, 9, "user", "hi"))
	require.NoError(t, s.RecordQuizAnswer(ctx, 9, true))

	require.NoError(t, s.DeleteUser(ctx, 9))

	u, err := s.GetUser(ctx, 9)
	require.NoError(t, err)
	require.Nil(t, u)
	msgs, err := s.RecentMessages(ctx, 9, 10)
	require.NoError(t, err)
	require.Empty(t, msgs)
	_, total, err := s.QuizTotals(ctx, 9)
	require.NoError(t, err)
	require.Zero(t, total)
}
