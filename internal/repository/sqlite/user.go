package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sakif/media-backend/internal/apperror"
	"github.com/sakif/media-backend/internal/model"
)

// userColumns is the column list shared by every user SELECT.
// The "u." prefix lets the same list appear in the video JOIN queries.
const userColumns = `u.id, u.username, u.email, u.password, u.google_id,
	u.first_name, u.last_name, u.birthday, u.avatar, u.created_at, u.updated_at`

// CreateUser inserts a new user and fills in ID and timestamps.
//
// The UNIQUE constraints on username and google_id are the final word on
// duplicates: a concurrent registration that slipped past the service's
// lookup comes back here as apperror.ErrConflict.
func (db *DB) CreateUser(ctx context.Context, user *model.User) error {
	now := time.Now().UTC()
	user.ID = uuid.NewString()
	user.CreatedAt = now
	user.UpdatedAt = now

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO users (id, username, email, password, google_id,
			first_name, last_name, birthday, avatar, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID,
		nullString(user.Username),
		nullString(user.Email),
		user.PasswordHash,
		nullString(user.GoogleID),
		user.FirstName,
		user.LastName,
		nullTime(user.Birthday),
		user.Avatar,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("user already exists")
		}
		return fmt.Errorf("sqlite: inserting user: %w", err)
	}

	return nil
}

// FindUserByID looks up a user by internal ID.
func (db *DB) FindUserByID(ctx context.Context, id string) (*model.User, bool, error) {
	return db.findUser(ctx, "u.id = ?", id)
}

// FindUserByUsername looks up a credential account. Matching is exact.
func (db *DB) FindUserByUsername(ctx context.Context, username string) (*model.User, bool, error) {
	return db.findUser(ctx, "u.username = ?", username)
}

// FindUserByGoogleID looks up an account created through Google sign-in.
func (db *DB) FindUserByGoogleID(ctx context.Context, googleID string) (*model.User, bool, error) {
	return db.findUser(ctx, "u.google_id = ?", googleID)
}

func (db *DB) findUser(ctx context.Context, where string, arg string) (*model.User, bool, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users u WHERE `+where, arg)

	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("sqlite: finding user (%s): %w", where, err)
	}
	return u, true, nil
}

// UpdateUser applies the non-nil changes and reads the row back in one
// transaction. COALESCE keeps every column the caller did not set at its
// current value, so two PATCHes of different fields both survive.
// Identity fields (username, google_id) are never rewritten here.
func (db *DB) UpdateUser(ctx context.Context, id string, changes model.UserChanges) (*model.User, string, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, "", fmt.Errorf("sqlite: beginning tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after Commit

	var previousAvatar string
	err = tx.QueryRowContext(ctx, `SELECT avatar FROM users WHERE id = ?`, id).Scan(&previousAvatar)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, "", apperror.NotFound("user", id)
	}
	if err != nil {
		return nil, "", fmt.Errorf("sqlite: reading avatar of user %s: %w", id, err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE users SET
			password   = COALESCE(?, password),
			first_name = COALESCE(?, first_name),
			last_name  = COALESCE(?, last_name),
			birthday   = COALESCE(?, birthday),
			avatar     = COALESCE(?, avatar),
			updated_at = ?
		 WHERE id = ?`,
		nullPatch(changes.PasswordHash),
		nullPatch(changes.FirstName),
		nullPatch(changes.LastName),
		nullTime(changes.Birthday),
		nullPatch(changes.Avatar),
		time.Now().UTC(),
		id,
	)
	if err != nil {
		return nil, "", fmt.Errorf("sqlite: updating user %s: %w", id, err)
	}

	u, err := scanUser(tx.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users u WHERE u.id = ?`, id))
	if err != nil {
		return nil, "", fmt.Errorf("sqlite: reading updated user %s: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, "", fmt.Errorf("sqlite: committing user update: %w", err)
	}
	return u, previousAvatar, nil
}

// DeleteUser removes a user. ON DELETE CASCADE removes their videos in the
// same statement.
func (db *DB) DeleteUser(ctx context.Context, id string) error {
	result, err := db.conn.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting user %s: %w", id, err)
	}

	return checkAffected(result, "user", id)
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// userFields holds the nullable columns of a user row while scanning.
type userFields struct {
	username sql.NullString
	email    sql.NullString
	googleID sql.NullString
	birthday sql.NullTime
}

func (f *userFields) targets(u *model.User) []any {
	return []any{
		&u.ID, &f.username, &f.email, &u.PasswordHash, &f.googleID,
		&u.FirstName, &u.LastName, &f.birthday, &u.Avatar, &u.CreatedAt, &u.UpdatedAt,
	}
}

func (f *userFields) apply(u *model.User) {
	u.Username = f.username.String
	u.Email = f.email.String
	u.GoogleID = f.googleID.String
	if f.birthday.Valid {
		b := f.birthday.Time
		u.Birthday = &b
	}
}

func scanUser(s scanner) (*model.User, error) {
	var (
		u model.User
		f userFields
	)
	if err := s.Scan(f.targets(&u)...); err != nil {
		return nil, err
	}
	f.apply(&u)
	return &u, nil
}
