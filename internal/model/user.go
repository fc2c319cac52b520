// Package model defines the data structures used throughout the application.
package model

import "time"

// User represents a registered account.
//
// An account is reachable through at least one identity path:
//   - Username + PasswordHash (credential registration)
//   - GoogleID (Google sign-in, no password)
//
// OPTIONAL STRINGS:
// Username, Email and GoogleID are plain strings where "" means "absent".
// The repositories store "" as NULL so the UNIQUE constraints on username and
// google_id only apply to accounts that actually have one.
//
// SERIALIZATION CONTRACT:
// PasswordHash is tagged `json:"-"`. Every response that embeds a User goes
// through encoding/json, so the hash can never reach the wire; handlers do
// not have to remember to strip it.
type User struct {
	ID           string     `json:"id"`
	Username     string     `json:"username,omitempty"`
	Email        string     `json:"email,omitempty"`
	PasswordHash string     `json:"-"`
	GoogleID     string     `json:"googleId,omitempty"`
	FirstName    string     `json:"firstName"`
	LastName     string     `json:"lastName,omitempty"`
	Birthday     *time.Time `json:"birthday,omitempty"`
	Avatar       string     `json:"avatar,omitempty"` // public URL of the stored avatar file
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// Identity returns the value embedded in access tokens next to the subject:
// the username for credential accounts, the email (or Google ID) otherwise.
func (u *User) Identity() string {
	switch {
	case u.Username != "":
		return u.Username
	case u.Email != "":
		return u.Email
	default:
		return u.GoogleID
	}
}

// UserPatch carries a partial profile update. nil fields are left unchanged.
// Password is the plaintext; the service hashes it before it reaches a store.
type UserPatch struct {
	Password  *string
	FirstName *string
	LastName  *string
	Birthday  *time.Time
}

// UserChanges is a UserPatch as a store applies it: the password is already
// hashed and a replacement avatar URL may be set. nil fields keep whatever the
// row holds at write time, so concurrent updates of different fields do not
// undo each other.
type UserChanges struct {
	PasswordHash *string
	FirstName    *string
	LastName     *string
	Birthday     *time.Time
	Avatar       *string
}
