package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrNoCredentials is returned when no session is stored.
var ErrNoCredentials = errors.New("no stored credentials")

// Credentials is the stored auth session: the bearer tokens, the role and
// the id of the signed-in user. Tokens are opaque strings.
type Credentials struct {
	UserID       int
	Role         string
	AccessToken  string
	RefreshToken string
	UpdatedAt    time.Time
}

// SaveCredentials replaces the stored session.
func (db *DB) SaveCredentials(ctx context.Context, c Credentials) error {
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = time.Now()
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO credentials (id, user_id, role, access_token, refresh_token, updated_at)
		VALUES (1, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			user_id = excluded.user_id,
			role = excluded.role,
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			updated_at = excluded.updated_at`,
		c.UserID, c.Role, c.AccessToken, c.RefreshToken, c.UpdatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("save credentials: %w", err)
	}
	return nil
}

// LoadCredentials returns the stored session or ErrNoCredentials.
func (db *DB) LoadCredentials(ctx context.Context) (*Credentials, error) {
	var c Credentials
	var updated int64
	err := db.QueryRowContext(ctx, `
		SELECT user_id, role, access_token, refresh_token, updated_at
		FROM credentials WHERE id = 1`).
		Scan(&c.UserID, &c.Role, &c.AccessToken, &c.RefreshToken, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("load credentials: %w", err)
	}
	c.UpdatedAt = time.UnixMilli(updated)
	return &c, nil
}

// UpdateTokens rotates the token pair of the stored session.
func (db *DB) UpdateTokens(ctx context.Context, access, refresh string) error {
	res, err := db.ExecContext(ctx, `
		UPDATE credentials SET access_token = ?, refresh_token = ?, updated_at = ?
		WHERE id = 1`, access, refresh, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("update tokens: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNoCredentials
	}
	return nil
}

// ClearCredentials removes the stored session.
func (db *DB) ClearCredentials(ctx context.Context) error {
	if _, err := db.ExecContext(ctx, `DELETE FROM credentials`); err != nil {
		return fmt.Errorf("clear credentials: %w", err)
	}
	return nil
}
