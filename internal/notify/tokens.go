package notify

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// PushToken is one registered mobile observer endpoint.
type PushToken struct {
	ID        string    `json:"id"`
	Token     string    `json:"token"`
	CreatedAt time.Time `json:"created_at"`
}

// Repository defines the interface for push token persistence.
type Repository interface {
	Save(ctx context.Context, token string) error
	List(ctx context.Context) ([]PushToken, error)
	Delete(ctx context.Context, token string) error
}

// SQLiteRepository stores push tokens in SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new push token repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// IsExpoPushToken reports whether a string looks like an Expo push token.
// Expo issues tokens as ExponentPushToken[...] (current) or
// ExpoPushToken[...] (legacy).
func IsExpoPushToken(token string) bool {
	if !strings.HasSuffix(token, "]") {
		return false
	}
	return strings.HasPrefix(token, "ExponentPushToken[") ||
		strings.HasPrefix(token, "ExpoPushToken[")
}

// Save upserts a push token. Registering the same token twice is a no-op
// on the stored row, so handsets can re-announce on every app start.
func (r *SQLiteRepository) Save(ctx context.Context, token string) error {
	if !IsExpoPushToken(token) {
		return fmt.Errorf("%w: %q", ErrInvalidToken, token)
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO push_tokens (id, token, created_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT(token) DO NOTHING`,
		"tok-"+uuid.NewString()[:8],
		token,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting push token: %w", err)
	}
	return nil
}

// List returns all registered push tokens, oldest first.
func (r *SQLiteRepository) List(ctx context.Context) ([]PushToken, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, token, created_at FROM push_tokens ORDER BY created_at ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("querying push tokens: %w", err)
	}
	defer rows.Close()

	var tokens []PushToken
	for rows.Next() {
		var t PushToken
		var createdAt string
		if err := rows.Scan(&t.ID, &t.Token, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning push token: %w", err)
		}
		ts, err := time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing push token timestamp %q: %w", createdAt, err)
		}
		t.CreatedAt = ts
		tokens = append(tokens, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating push tokens: %w", err)
	}

	return tokens, nil
}

// Delete removes a push token. Used to drop endpoints the gateway reports
// as no longer registered.
func (r *SQLiteRepository) Delete(ctx context.Context, token string) error {
	if _, err := r.db.ExecContext(ctx,
		`DELETE FROM push_tokens WHERE token = ?`, token,
	); err != nil {
		return fmt.Errorf("deleting push token: %w", err)
	}
	return nil
}
