// Package model defines the data structures used throughout the application.
package model

import "time"

// User is a registered account and the owner of an address book.
//
// The email is the login identifier and the subject of every access token,
// so it is unique at the store level. It is stored exactly as the user typed
// it at signup.
//
// PasswordHash carries the `json:"-"` tag: the bcrypt digest never leaves the
// server, not even for the user it belongs to.
//
// AvatarURL is a pointer because "no avatar yet" is a real state and should
// serialize as null rather than an empty string.
type User struct {
	ID           int64     `json:"id"          db:"id"`
	Email        string    `json:"email"       db:"email"`
	PasswordHash string    `json:"-"           db:"password_hash"`
	IsVerified   bool      `json:"is_verified" db:"is_verified"`
	AvatarURL    *string   `json:"avatar_url"  db:"avatar_url"`
	CreatedAt    time.Time `json:"created_at"  db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"  db:"updated_at"`
}
