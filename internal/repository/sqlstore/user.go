package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sakif/contacts-api/internal/apperror"
	"github.com/sakif/contacts-api/internal/model"
	"github.com/sakif/contacts-api/internal/repository"
)

// compile-time check that *UserStore implements repository.UserRepository
var _ repository.UserRepository = (*UserStore)(nil)

const userColumns = `id, email, password_hash, is_verified, avatar_url, created_at, updated_at`

// Create inserts a new user. The email's UNIQUE index is the single source
// of truth for duplicates: there is no check-then-insert race, the second of
// two concurrent signups simply fails with apperror.ErrConflict.
func (s *UserStore) Create(ctx context.Context, user *model.User) error {
	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now

	err := s.db.conn.QueryRowxContext(ctx, s.db.conn.Rebind(
		`INSERT INTO users (email, password_hash, is_verified, avatar_url, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 RETURNING id`),
		user.Email,
		user.PasswordHash,
		user.IsVerified,
		user.AvatarURL,
		user.CreatedAt,
		user.UpdatedAt,
	).Scan(&user.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("user", user.Email)
		}
		return fmt.Errorf("sqlstore: inserting user: %w", err)
	}

	return nil
}

// GetByEmail looks a user up by login email (exact match).
func (s *UserStore) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	var u model.User

	err := s.db.conn.GetContext(ctx, &u, s.db.conn.Rebind(
		`SELECT `+userColumns+` FROM users WHERE email = ?`), email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", email)
		}
		return nil, fmt.Errorf("sqlstore: getting user by email: %w", err)
	}

	return &u, nil
}

// MarkVerified flips is_verified to true. Verifying twice is harmless.
func (s *UserStore) MarkVerified(ctx context.Context, email string) error {
	result, err := s.db.conn.ExecContext(ctx, s.db.conn.Rebind(
		`UPDATE users SET is_verified = ?, updated_at = ? WHERE email = ?`),
		true, time.Now().UTC(), email,
	)
	if err != nil {
		return fmt.Errorf("sqlstore: marking user verified: %w", err)
	}

	return requireRow(result, apperror.NotFound("user", email))
}

// SetAvatar overwrites the user's avatar URL.
func (s *UserStore) SetAvatar(ctx context.Context, userID int64, url string) error {
	result, err := s.db.conn.ExecContext(ctx, s.db.conn.Rebind(
		`UPDATE users SET avatar_url = ?, updated_at = ? WHERE id = ?`),
		url, time.Now().UTC(), userID,
	)
	if err != nil {
		return fmt.Errorf("sqlstore: setting avatar for user %d: %w", userID, err)
	}

	return requireRow(result, apperror.NotFound("user", userID))
}

// requireRow turns "0 rows affected" into notFound.
func requireRow(result sql.Result, notFound error) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlstore: checking rows affected: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}
