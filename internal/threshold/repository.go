package threshold

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Repository persists threshold values.
type Repository interface {
	Load(ctx context.Context) (map[Kind]string, error)
	Save(ctx context.Context, kind Kind, value string) error
}

// SQLiteRepository stores thresholds in the thresholds table.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a repository over an open database.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Load returns every stored threshold.
func (r *SQLiteRepository) Load(ctx context.Context) (map[Kind]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT kind, value FROM thresholds`)
	if err != nil {
		return nil, fmt.Errorf("querying thresholds: %w", err)
	}
	defer rows.Close()

	out := make(map[Kind]string)
	for rows.Next() {
		var kind, value string
		if err := rows.Scan(&kind, &value); err != nil {
			return nil, fmt.Errorf("scanning threshold: %w", err)
		}
		out[Kind(kind)] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating thresholds: %w", err)
	}
	return out, nil
}

// Save upserts one threshold.
func (r *SQLiteRepository) Save(ctx context.Context, kind Kind, value string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO thresholds (kind, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(kind) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		string(kind), value, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("saving threshold: %w", err)
	}
	return nil
}
