package tutor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"pandapal_bot/internal/ai"
	"pandapal_bot/internal/aigate"
	"pandapal_bot/internal/storage"
)

type fakeAI struct {
	mu       sync.Mutex
	received [][]ai.Message
	reply    string
	err      error
}

func (f *fakeAI) Chat(ctx context.Context, messages []ai.Message) (ai.Result, error) {
	f.mu.Lock()
	f.received = append(f.received, messages)
	f.mu.Unlock()
	if f.err != nil {
		return ai.Result{}, f.err
	}
	return ai.Result{Text: f.reply}, nil
}

type memHistory struct {
	mu   sync.Mutex
	msgs map[int64][]storage.ChatMessage
}

func newMemHistory() *memHistory {
	return &memHistory{msgs: make(map[int64][]storage.ChatMessage)}
}

func (m *memHistory) AppendMessage(_ context.Context, chatID int64, role, content string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.msgs[chatID] = append(m.msgs[chatID], storage.ChatMessage{Role: role, Content: content, CreatedAt: time.Now()})
	return nil
}

func (m *memHistory) RecentMessages(_ context.Context, chatID int64, limit int) ([]storage.ChatMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msgs := m.msgs[chatID]
	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return append([]storage.ChatMessage(nil), msgs...), nil
}

func (m *memHistory) CountUserMessagesSince(_ context.Context, chatID int64, since time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, msg := range m.msgs[chatID] {
		if msg.Role == ai.RoleUser && !msg.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (m *memHistory) PurgeOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

func newTestService(t *testing.T, client *fakeAI, history storage.HistoryStore, freeLimit int) *Service {
	t.Helper()
	gate, err := aigate.New(2)
	require.NoError(t, err)
	return New(client, gate, history, nil, 10, freeLimit)
}

func TestReply_BuildsConversation(t *testing.T) {
	client := &fakeAI{reply: "4! You got it."}
	history := newMemHistory()
	svc := newTestService(t, client, history, 0)
	user := &storage.User{ChatID: 1, Name: "Lena", Age: 8}

	require.NoError(t, history.AppendMessage(context.Background(), 1, ai.RoleUser, "hi!"))
	require.NoError(t, history.AppendMessage(context.Background(), 1, ai.RoleAssistant, "Hello Lena!"))

	got, err := svc.Reply(context.Background(), user, "what is 2+2?")
	require.NoError(t, err)
	require.Equal(t, "4! You got it.", got)

	require.Len(t, client.received, 1)
	msgs := client.received[0]
	require.Equal(t, ai.RoleSystem, msgs[0].Role)
	require.Contains(t, msgs[0].Content, "Lena")
	require.Contains(t, msgs[0].Content, "8 years old")
	require.Equal(t, "hi!", msgs[1].Content)
	require.Equal(t, "Hello Lena!", msgs[2].Content)
	require.Equal(t, ai.RoleUser, msgs[3].Role)
	require.Equal(t, "what is 2+2?", msgs[3].Content)

	// Both sides of the new exchange were persisted.
	stored, err := history.RecentMessages(context.Background(), 1, 10)
	require.NoError(t, err)
	require.Len(t, stored, 4)
	require.Equal(t, "4! You got it.", stored[3].Content)
}

func TestReply_AIErrorNotPersisted(t *testing.T) {
	errProvider := errors.New("provider down")
	client := &fakeAI{err: errProvider}
	history := newMemHistory()
	svc := newTestService(t, client, history, 0)

	_, err := svc.Reply(context.Background(), &storage.User{ChatID: 2}, "hello?")
	require.ErrorIs(t, err, errProvider)

	stored, err := history.RecentMessages(context.Background(), 2, 10)
	require.NoError(t, err)
	require.Empty(t, stored)
}

func TestReply_DailyQuota(t *testing.T) {
	client := &fakeAI{reply: "ok"}
	history := newMemHistory()
	svc := newTestService(t, client, history, 2)
	user := &storage.User{ChatID: 3}

	for i := 0; i < 2; i++ {
		_, err := svc.Reply(context.Background(), user, "question")
		require.NoError(t, err)
	}

	_, err := svc.Reply(context.Background(), user, "one too many")
	require.ErrorIs(t, err, ErrDailyLimitReached)

	// Premium users are not limited.
	user.Premium = true
	_, err = svc.Reply(context.Background(), user, "still fine")
	require.NoError(t, err)
}
