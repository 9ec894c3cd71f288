// ABOUTME: SQLite-backed local cache using modernc.org/sqlite
// ABOUTME: Persists last-known-good snapshots and small key/value client state

package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/skillforge/skillforge-client/internal/model"
)

// Cache is the client's local SQLite database. It holds the last
// successfully fetched conversation and notification snapshots, used when
// the server is unreachable at startup, plus a small key/value table for
// client state (selected conversation, stored credential path and the
// like).
type Cache struct {
	db     *sql.DB
	logger *slog.Logger
}

// New opens (or creates) the cache database at the given path. Parent
// directories are created if needed; the schema is created on first open.
func New(path string, logger *slog.Logger) (*Cache, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "cache")

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening cache database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	c := &Cache{db: db, logger: logger}
	if err := c.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("cache initialized", "path", path)
	return c, nil
}

// createSchema creates the cache tables if they don't exist.
func (c *Cache) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS conversations (
			id TEXT PRIMARY KEY,
			participant_id TEXT NOT NULL,
			participant_name TEXT NOT NULL,
			last_message_text TEXT NOT NULL,
			last_message_at DATETIME NOT NULL,
			unread_count INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS notifications (
			id TEXT PRIMARY KEY,
			type TEXT NOT NULL,
			title TEXT NOT NULL,
			message TEXT NOT NULL,
			read INTEGER NOT NULL,
			created_at DATETIME NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_notifications_created
			ON notifications(created_at);

		CREATE TABLE IF NOT EXISTS kv (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at DATETIME NOT NULL
		);
	`

	_, err := c.db.Exec(schema)
	return err
}

// SaveConversations replaces the stored conversation snapshot.
func (c *Cache) SaveConversations(ctx context.Context, convs []model.Conversation) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM conversations"); err != nil {
		return fmt.Errorf("clearing conversation snapshot: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO conversations
			(id, participant_id, participant_name, last_message_text, last_message_at, unread_count)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for _, conv := range convs {
		_, err := stmt.ExecContext(ctx,
			conv.ID, conv.ParticipantID, conv.ParticipantName,
			conv.LastMessageText, conv.LastMessageAt.UTC(), conv.UnreadCount)
		if err != nil {
			return fmt.Errorf("inserting conversation %s: %w", conv.ID, err)
		}
	}

	return tx.Commit()
}

// LoadConversations returns the stored conversation snapshot, most recent
// first. Presence is push-derived and never cached: everything loads as
// offline until the channel says otherwise.
func (c *Cache) LoadConversations(ctx context.Context) ([]model.Conversation, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, participant_id, participant_name, last_message_text, last_message_at, unread_count
		FROM conversations
		ORDER BY last_message_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("querying conversation snapshot: %w", err)
	}
	defer rows.Close()

	var convs []model.Conversation
	for rows.Next() {
		var conv model.Conversation
		err := rows.Scan(&conv.ID, &conv.ParticipantID, &conv.ParticipantName,
			&conv.LastMessageText, &conv.LastMessageAt, &conv.UnreadCount)
		if err != nil {
			return nil, fmt.Errorf("scanning conversation: %w", err)
		}
		conv.Presence = model.PresenceOffline
		convs = append(convs, conv)
	}
	return convs, rows.Err()
}

// SaveNotifications replaces the stored notification snapshot.
func (c *Cache) SaveNotifications(ctx context.Context, ns []model.Notification) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM notifications"); err != nil {
		return fmt.Errorf("clearing notification snapshot: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO notifications (id, type, title, message, read, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for _, n := range ns {
		_, err := stmt.ExecContext(ctx, n.ID, n.Type, n.Title, n.Message, n.Read, n.CreatedAt.UTC())
		if err != nil {
			return fmt.Errorf("inserting notification %s: %w", n.ID, err)
		}
	}

	return tx.Commit()
}

// LoadNotifications returns the stored notification snapshot, newest first.
func (c *Cache) LoadNotifications(ctx context.Context) ([]model.Notification, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, type, title, message, read, created_at
		FROM notifications
		ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("querying notification snapshot: %w", err)
	}
	defer rows.Close()

	var ns []model.Notification
	for rows.Next() {
		var n model.Notification
		if err := rows.Scan(&n.ID, &n.Type, &n.Title, &n.Message, &n.Read, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning notification: %w", err)
		}
		ns = append(ns, n)
	}
	return ns, rows.Err()
}

// Get returns the value for a key. ok is false when the key is absent.
func (c *Cache) Get(ctx context.Context, key string) (value string, ok bool, err error) {
	row := c.db.QueryRowContext(ctx, "SELECT value FROM kv WHERE key = ?", key)
	if err := row.Scan(&value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("reading key %s: %w", key, err)
	}
	return value, true, nil
}

// Set stores a key/value pair, replacing any existing value.
func (c *Cache) Set(ctx context.Context, key, value string) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("writing key %s: %w", key, err)
	}
	return nil
}

// Delete removes a key. Deleting an absent key is not an error.
func (c *Cache) Delete(ctx context.Context, key string) error {
	if _, err := c.db.ExecContext(ctx, "DELETE FROM kv WHERE key = ?", key); err != nil {
		return fmt.Errorf("deleting key %s: %w", key, err)
	}
	return nil
}

// Close closes the underlying database.
func (c *Cache) Close() error {
	return c.db.Close()
}
