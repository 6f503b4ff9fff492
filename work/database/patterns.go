package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/grafana/regexp"
)

// PatternTable names one of the regex tables. Only the constants below are
// valid, so the value can be placed into SQL text safely.
type PatternTable string

const (
	PlaceholderPatterns PatternTable = "placeholder_patterns" // status videos replaced by the fallback
	AllowedHosts        PatternTable = "allowed_hosts"        // hosts /proxy may redirect to
)

var (
	ErrUnknownTable  = errors.New("unknown pattern table")
	ErrInvalidRegex  = errors.New("invalid pattern")
	ErrPatternExists = errors.New("pattern already exists")
	ErrNotFound      = errors.New("not found")
)

// PatternRow is a stored regex with an operator note.
type PatternRow struct {
	ID        int64     `json:"id"`
	Pattern   string    `json:"pattern"`
	Note      string    `json:"note"`
	CreatedAt time.Time `json:"createdAt"`
}

func (t PatternTable) valid() bool {
	return t == PlaceholderPatterns || t == AllowedHosts
}

// ListPatterns returns every row of table in insertion order.
func (db *DB) ListPatterns(ctx context.Context, table PatternTable) ([]PatternRow, error) {
	if !table.valid() {
		return nil, ErrUnknownTable
	}

	rows, err := db.QueryContext(ctx, "SELECT id, pattern, note, created_at FROM "+string(table)+" ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", table, err)
	}
	defer rows.Close()

	var out []PatternRow
	for rows.Next() {
		var row PatternRow
		var created int64
		if err := rows.Scan(&row.ID, &row.Pattern, &row.Note, &created); err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", table, err)
		}
		row.CreatedAt = time.Unix(created, 0).UTC()
		out = append(out, row)
	}

	return out, rows.Err()
}

// PatternStrings returns only the pattern text of table.
func (db *DB) PatternStrings(ctx context.Context, table PatternTable) ([]string, error) {
	rows, err := db.ListPatterns(ctx, table)
	if err != nil {
		return nil, err
	}

	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.Pattern
	}
	return out, nil
}

// AddPattern validates and stores a regex.
func (db *DB) AddPattern(ctx context.Context, table PatternTable, pattern, note string) (PatternRow, error) {
	if !table.valid() {
		return PatternRow{}, ErrUnknownTable
	}

	pattern = strings.TrimSpace(pattern)
	if pattern == "" {
		return PatternRow{}, fmt.Errorf("%w: empty", ErrInvalidRegex)
	}
	if _, err := regexp.Compile(pattern); err != nil {
		return PatternRow{}, fmt.Errorf("%w: %v", ErrInvalidRegex, err)
	}

	now := db.now().UTC()
	res, err := db.ExecContext(ctx,
		"INSERT INTO "+string(table)+" (pattern, note, created_at) VALUES (?, ?, ?) ON CONFLICT(pattern) DO NOTHING",
		pattern, note, now.Unix())
	if err != nil {
		return PatternRow{}, fmt.Errorf("failed to insert into %s: %w", table, err)
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return PatternRow{}, ErrPatternExists
	}

	id, err := res.LastInsertId()
	if err != nil {
		return PatternRow{}, fmt.Errorf("failed to read id: %w", err)
	}

	return PatternRow{ID: id, Pattern: pattern, Note: note, CreatedAt: time.Unix(now.Unix(), 0).UTC()}, nil
}

// DeletePattern removes the row with id from table.
func (db *DB) DeletePattern(ctx context.Context, table PatternTable, id int64) error {
	if !table.valid() {
		return ErrUnknownTable
	}

	res, err := db.ExecContext(ctx, "DELETE FROM "+string(table)+" WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete from %s: %w", table, err)
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}
