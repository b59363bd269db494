package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// sqliteStore is a lightweight implementation based on SQLite.
// We rely on SQLite's implicit WAL-mode concurrency. For write-heavy loads
// consider moving to Postgres (see NewPostgreSQL), but for a single bot
// process it is sufficient and easy to embed.
//
// Uses modernc.org/sqlite driver — pure Go, so no CGO headaches in CI/CD.
type sqliteStore struct {
	db *sql.DB
}

// NewSQLite opens (or creates) the database at the given path and ensures the
// schema exists. Caller is responsible for calling Close() when done.
func NewSQLite(path string) (Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// Single writer keeps SQLite happy; reads still interleave under WAL.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := migrateSQLite(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &sqliteStore{db: db}, nil
}

func migrateSQLite(db *sql.DB) error {
	const stmt = `
	CREATE TABLE IF NOT EXISTS users (
		chat_id INTEGER PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		age INTEGER NOT NULL DEFAULT 0,
		premium INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		chat_id INTEGER NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_messages_chat_created ON messages(chat_id, created_at);
	CREATE TABLE IF NOT EXISTS quiz_scores (
		chat_id INTEGER PRIMARY KEY,
		correct INTEGER NOT NULL DEFAULT 0,
		total INTEGER NOT NULL DEFAULT 0
	);`
	_, err := db.Exec(stmt)
	return err
}

// GetUser fetches a profile; returns (nil, nil) when absent.
func (s *sqliteStore) GetUser(ctx context.Context, chatID int64) (*User, error) {
	var u User
	var premium int
	err := s.db.QueryRowContext(ctx,
		`SELECT chat_id, name, age, premium, created_at, updated_at FROM users WHERE chat_id = ? LIMIT 1;`,
		chatID).Scan(&u.ChatID, &u.Name, &u.Age, &premium, &u.CreatedAt, &u.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	u.Premium = premium == 1
	return &u, nil
}

// SaveUser upserts the profile, refreshing updated_at.
func (s *sqliteStore) SaveUser(ctx context.Context, u *User) error {
	premium := 0
	if u.Premium {
		premium = 1
	}
	now := time.Now()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users(chat_id, name, age, premium, created_at, updated_at)
		VALUES(?, ?, ?, ?, ?, ?)
		ON CONFLICT(chat_id) DO UPDATE SET
			name = excluded.name,
			age = excluded.age,
			premium = excluded.premium,
			updated_at = excluded.updated_at;`,
		u.ChatID, u.Name, u.Age, premium, now, now)
	return err
}

// DeleteUser removes the profile together with history and scores.
func (s *sqliteStore) DeleteUser(ctx context.Context, chatID int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range []string{
		`DELETE FROM messages WHERE chat_id = ?;`,
		`DELETE FROM quiz_scores WHERE chat_id = ?;`,
		`DELETE FROM users WHERE chat_id = ?;`,
	} {
		if _, err := tx.ExecContext(ctx, stmt, chatID); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// CountUsers returns the number of stored profiles.
func (s *sqliteStore) CountUsers(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users;`).Scan(&n)
	return n, err
}

// AppendMessage stores one side of an exchange.
func (s *sqliteStore) AppendMessage(ctx context.Context, chatID int64, role, content string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages(chat_id, role, content, created_at) VALUES(?, ?, ?, ?);`,
		chatID, role, content, time.Now())
	return err
}

// RecentMessages returns up to limit latest messages in chronological order.
func (s *sqliteStore) RecentMessages(ctx context.Context, chatID int64, limit int) ([]ChatMessage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT role, content, created_at FROM (
			SELECT id, role, content, created_at FROM messages
			WHERE chat_id = ? ORDER BY id DESC LIMIT ?
		) ORDER BY id ASC;`, chatID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []ChatMessage
	for rows.Next() {
		var m ChatMessage
		if err := rows.Scan(&m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// CountUserMessagesSince counts "user" messages newer than since.
func (s *sqliteStore) CountUserMessagesSince(ctx context.Context, chatID int64, since time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages WHERE chat_id = ? AND role = 'user' AND created_at >= ?;`,
		chatID, since).Scan(&n)
	return n, err
}

// PurgeOlderThan deletes history older than cutoff; returns rows removed.
func (s *sqliteStore) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE created_at < ?;`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// RecordQuizAnswer bumps the per-user tallies.
func (s *sqliteStore) RecordQuizAnswer(ctx context.Context, chatID int64, correct bool) error {
	inc := 0
	if correct {
		inc = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO quiz_scores(chat_id, correct, total) VALUES(?, ?, 1)
		ON CONFLICT(chat_id) DO UPDATE SET
			correct = correct + excluded.correct,
			total = total + 1;`,
		chatID, inc)
	return err
}

// QuizTotals returns the per-user tallies; zeros when the user never played.
func (s *sqliteStore) QuizTotals(ctx context.Context, chatID int64) (int64, int64, error) {
	var correct, total int64
	err := s.db.QueryRowContext(ctx,
		`SELECT correct, total FROM quiz_scores WHERE chat_id = ? LIMIT 1;`,
		chatID).Scan(&correct, &total)
	if err == sql.ErrNoRows {
		return 0, 0, nil
	}
	return correct, total, err
}

// Close closes the underlying *sql.DB.
func (s *sqliteStore) Close() error {
	return s.db.Close()
}
