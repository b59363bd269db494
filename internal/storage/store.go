package storage

import (
	"context"
	"time"
)

// User is a child profile keyed by the Telegram chat ID.
type User struct {
	ChatID    int64
	Name      string
	Age       int
	Premium   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ChatMessage is one side of a tutor conversation exchange.
type ChatMessage struct {
	Role      string // "user" or "assistant"
	Content   string
	CreatedAt time.Time
}

// UserStore persists child profiles.
// GetUser returns (nil, nil) when the profile does not exist.
// SaveUser upserts; DeleteUser also removes the user's history and scores.
type UserStore interface {
	GetUser(ctx context.Context, chatID int64) (*User, error)
	SaveUser(ctx context.Context, u *User) error
	DeleteUser(ctx context.Context, chatID int64) error
	CountUsers(ctx context.Context) (int64, error)
}

// HistoryStore persists tutor conversation history.
// RecentMessages returns up to limit messages in chronological order.
// CountUserMessagesSince counts only "user" role messages, for quota checks.
type HistoryStore interface {
	AppendMessage(ctx context.Context, chatID int64, role, content string) error
	RecentMessages(ctx context.Context, chatID int64, limit int) ([]ChatMessage, error)
	CountUserMessagesSince(ctx context.Context, chatID int64, since time.Time) (int, error)
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// ScoreStore persists mini-game results.
type ScoreStore interface {
	RecordQuizAnswer(ctx context.Context, chatID int64, correct bool) error
	QuizTotals(ctx context.Context, chatID int64) (correct, total int64, err error)
}

// Store aggregates every persistence concern of the bot.
// Implementations must be safe for concurrent use by multiple goroutines.
// Close frees resources; after Close, the Store should not be used.
type Store interface {
	UserStore
	HistoryStore
	ScoreStore
	Close() error
}
