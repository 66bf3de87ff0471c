package credential

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Repository persists credentials.
type Repository interface {
	// List returns every stored credential.
	List(ctx context.Context) ([]Credential, error)

	// Create inserts a credential.
	// Returns ErrAliasExists or ErrMACExists on a uniqueness conflict.
	Create(ctx context.Context, c Credential) error

	// Delete removes a credential by alias.
	// Returns ErrNotFound if the alias does not exist.
	Delete(ctx context.Context, alias string) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// List returns every stored credential ordered by alias.
func (r *SQLiteRepository) List(ctx context.Context) ([]Credential, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT alias, mac, passcode, created_at FROM credentials ORDER BY alias`)
	if err != nil {
		return nil, fmt.Errorf("querying credentials: %w", err)
	}
	defer rows.Close()

	var out []Credential
	for rows.Next() {
		var (
			c       Credential
			created string
		)
		if err := rows.Scan(&c.Alias, &c.MAC, &c.Passcode, &created); err != nil {
			return nil, fmt.Errorf("scanning credential: %w", err)
		}
		if t, err := time.Parse(time.RFC3339, created); err == nil {
			c.CreatedAt = t
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating credentials: %w", err)
	}
	return out, nil
}

// Create inserts a credential.
func (r *SQLiteRepository) Create(ctx context.Context, c Credential) error {
	created := c.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO credentials (alias, mac, passcode, created_at) VALUES (?, ?, ?, ?)`,
		c.Alias, c.MAC, c.Passcode, created.Format(time.RFC3339))
	if err != nil {
		if isUniqueConstraintError(err) {
			if strings.Contains(err.Error(), "credentials.mac") {
				return ErrMACExists
			}
			return ErrAliasExists
		}
		return fmt.Errorf("inserting credential: %w", err)
	}
	return nil
}

// Delete removes a credential by alias.
func (r *SQLiteRepository) Delete(ctx context.Context, alias string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM credentials WHERE alias = ?`, alias)
	if err != nil {
		return fmt.Errorf("deleting credential: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// isUniqueConstraintError checks if an error is a SQLite unique constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "unique constraint")
}
