// Package repository declares the storage interfaces the services depend on.
// The sqlstore package implements them for SQLite and PostgreSQL.
package repository

import (
	"context"

	"github.com/sakif/contacts-api/internal/model"
)

// UserRepository is the credential store.
type UserRepository interface {
	// Create inserts a user and fills in ID and timestamps.
	// Returns apperror.ErrConflict when the email is already registered.
	Create(ctx context.Context, user *model.User) error
	// GetByEmail returns apperror.ErrNotFound when no user has that email.
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	// MarkVerified sets is_verified. Returns apperror.ErrNotFound for an
	// unknown email.
	MarkVerified(ctx context.Context, email string) error
	// SetAvatar overwrites avatar_url.
	SetAvatar(ctx context.Context, userID int64, url string) error
}

// ContactRepository is the contact store. Every method takes the owner's
// user ID and only ever touches rows owned by that user; a row owned by
// someone else behaves exactly like a row that does not exist.
type ContactRepository interface {
	Create(ctx context.Context, contact *model.Contact) error
	GetByID(ctx context.Context, ownerID, id int64) (*model.Contact, error)
	List(ctx context.Context, ownerID int64) ([]model.Contact, error)
	// Update applies patch to the contact inside one transaction and returns
	// the stored result.
	Update(ctx context.Context, ownerID, id int64, patch model.ContactPatch) (*model.Contact, error)
	Delete(ctx context.Context, ownerID, id int64) error
	// Search matches query case-insensitively as a substring of first name,
	// last name or email.
	Search(ctx context.Context, ownerID int64, query string) ([]model.Contact, error)
	// ListWithBirthday returns the owner's contacts that have a birthday set.
	ListWithBirthday(ctx context.Context, ownerID int64) ([]model.Contact, error)
}
