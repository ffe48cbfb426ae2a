package storage

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS irc_messages (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	nickname      TEXT NOT NULL,
	message       TEXT NOT NULL,
	server        TEXT NOT NULL,
	channel       TEXT NOT NULL,
	message_time  TIMESTAMP NOT NULL,
	join_or_leave BOOLEAN NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_irc_messages_time ON irc_messages(message_time);
`

// SQLiteStore keeps messages in a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens the database at path and creates the schema.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One writer; sqlite serializes writes anyway.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Save(ctx context.Context, msg Message) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO irc_messages (nickname, message, server, channel, message_time, join_or_leave)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		msg.Nickname, msg.Text, msg.Server, msg.Channel, msg.Time.UTC(), msg.JoinOrLeave)
	return err
}

// Count returns the number of stored messages.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM irc_messages`).Scan(&n)
	return n, err
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
