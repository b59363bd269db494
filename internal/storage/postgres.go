package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// postgresStore is a PostgreSQL implementation of Store.
// It supports multiple concurrent connections and is the recommended backend
// for hosted deployments where the SQLite file would not survive restarts.
type postgresStore struct {
	db *sql.DB
}

// NewPostgreSQL opens a PostgreSQL connection and ensures the schema exists.
// dsn should be in format: "host=localhost port=5432 user=postgres password=postgres dbname=pandapal sslmode=disable"
func NewPostgreSQL(dsn string) (Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres connection: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	if err := migratePostgres(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate postgres schema: %w", err)
	}

	return &postgresStore{db: db}, nil
}

func migratePostgres(db *sql.DB) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS users (
		chat_id BIGINT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		age INT NOT NULL DEFAULT 0,
		premium BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	CREATE TABLE IF NOT EXISTS messages (
		id BIGSERIAL PRIMARY KEY,
		chat_id BIGINT NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_messages_chat_created ON messages(chat_id, created_at);
	CREATE TABLE IF NOT EXISTS quiz_scores (
		chat_id BIGINT PRIMARY KEY,
		correct BIGINT NOT NULL DEFAULT 0,
		total BIGINT NOT NULL DEFAULT 0
	);`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("create tables: %w", err)
	}
	return nil
}

// GetUser fetches a profile; returns (nil, nil) when absent.
func (s *postgresStore) GetUser(ctx context.Context, chatID int64) (*User, error) {
	var u User
	err := s.db.QueryRowContext(ctx,
		`SELECT chat_id, name, age, premium, created_at, updated_at FROM users WHERE chat_id = $1 LIMIT 1`,
		chatID).Scan(&u.ChatID, &u.Name, &u.Age, &u.Premium, &u.CreatedAt, &u.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// SaveUser upserts the profile, refreshing updated_at.
func (s *postgresStore) SaveUser(ctx context.Context, u *User) error {
	now := time.Now()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (chat_id, name, age, premium, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (chat_id) DO UPDATE SET
			name = EXCLUDED.name,
			age = EXCLUDED.age,
			premium = EXCLUDED.premium,
			updated_at = EXCLUDED.updated_at`,
		u.ChatID, u.Name, u.Age, u.Premium, now)
	return err
}

// DeleteUser removes the profile together with history and scores.
func (s *postgresStore) DeleteUser(ctx context.Context, chatID int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range []string{
		`DELETE FROM messages WHERE chat_id = $1`,
		`DELETE FROM quiz_scores WHERE chat_id = $1`,
		`DELETE FROM users WHERE chat_id = $1`,
	} {
		if _, err := tx.ExecContext(ctx, stmt, chatID); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// CountUsers returns the number of stored profiles.
func (s *postgresStore) CountUsers(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n)
	return n, err
}

// AppendMessage stores one side of an exchange.
func (s *postgresStore) AppendMessage(ctx context.Context, chatID int64, role, content string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (chat_id, role, content, created_at) VALUES ($1, $2, $3, $4)`,
		chatID, role, content, time.Now())
	return err
}

// RecentMessages returns up to limit latest messages in chronological order.
func (s *postgresStore) RecentMessages(ctx context.Context, chatID int64, limit int) ([]ChatMessage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT role, content, created_at FROM (
			SELECT id, role, content, created_at FROM messages
			WHERE chat_id = $1 ORDER BY id DESC LIMIT $2
		) latest ORDER BY latest.id ASC`, chatID, limit)
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
func (s *postgresStore) CountUserMessagesSince(ctx context.Context, chatID int64, since time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages WHERE chat_id = $1 AND role = 'user' AND created_at >= $2`,
		chatID, since).Scan(&n)
	return n, err
}

// PurgeOlderThan deletes history older than cutoff; returns rows removed.
func (s *postgresStore) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// RecordQuizAnswer bumps the per-user tallies.
func (s *postgresStore) RecordQuizAnswer(ctx context.Context, chatID int64, correct bool) error {
	inc := 0
	if correct {
		inc = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO quiz_scores (chat_id, correct, total) VALUES ($1, $2, 1)
		ON CONFLICT (chat_id) DO UPDATE SET
			correct = quiz_scores.correct + EXCLUDED.correct,
			total = quiz_scores.total + 1`,
		chatID, inc)
	return err
}

// QuizTotals returns the per-user tallies; zeros when the user never played.
func (s *postgresStore) QuizTotals(ctx context.Context, chatID int64) (int64, int64, error) {
	var correct, total int64
	err := s.db.QueryRowContext(ctx,
		`SELECT correct, total FROM quiz_scores WHERE chat_id = $1 LIMIT 1`,
		chatID).Scan(&correct, &total)
	if err == sql.ErrNoRows {
		return 0, 0, nil
	}
	return correct, total, err
}

// Close closes the underlying *sql.DB.
func (s *postgresStore) Close() error {
	return s.db.Close()
}
