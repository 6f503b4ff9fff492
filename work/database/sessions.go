package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SaveSession remembers the source a client last configured.
func (db *DB) SaveSession(ctx context.Context, clientID, sourceURL string) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO sessions (client_id, source_url, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(client_id) DO UPDATE SET
			source_url = excluded.source_url,
			updated_at = excluded.updated_at
	`, clientID, sourceURL, db.now().Unix())
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// LoadSession returns the remembered source of a client, or ErrNotFound.
func (db *DB) LoadSession(ctx context.Context, clientID string) (string, error) {
	var source string
	err := db.QueryRowContext(ctx, "SELECT source_url FROM sessions WHERE client_id = ?", clientID).Scan(&source)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to load session: %w", err)
	}
	return source, nil
}

// CleanupSessions deletes sessions not updated within olderThan and returns
// how many were removed.
func (db *DB) CleanupSessions(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := db.now().Add(-olderThan).Unix()

	res, err := db.ExecContext(ctx, "DELETE FROM sessions WHERE updated_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to clean up sessions: %w", err)
	}

	n, _ := res.RowsAffected()
	return n, nil
}
