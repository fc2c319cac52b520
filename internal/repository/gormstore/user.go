package gormstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/sakif/media-backend/internal/apperror"
	"github.com/sakif/media-backend/internal/model"
)

func (s *Store) CreateUser(ctx context.Context, user *model.User) error {
	row := fromUser(user)
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("username or google account already exists")
		}
		return fmt.Errorf("gormstore: creating user: %w", err)
	}

	user.ID = row.ID.String()
	user.CreatedAt = row.CreatedAt.UTC()
	user.UpdatedAt = row.UpdatedAt.UTC()
	return nil
}

func (s *Store) FindUserByID(ctx context.Context, id string) (*model.User, bool, error) {
	uid, ok := parseID(id)
	if !ok {
		return nil, false, nil
	}
	return s.findUser(ctx, "id = ?", uid)
}

func (s *Store) FindUserByUsername(ctx context.Context, username string) (*model.User, bool, error) {
	return s.findUser(ctx, "username = ?", username)
}

func (s *Store) FindUserByGoogleID(ctx context.Context, googleID string) (*model.User, bool, error) {
	return s.findUser(ctx, "google_id = ?", googleID)
}

func (s *Store) findUser(ctx context.Context, cond string, arg any) (*model.User, bool, error) {
	var row userRow
	err := s.db.WithContext(ctx).Where(cond, arg).Take(&row).Error
	if isNotFound(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("gormstore: finding user: %w", err)
	}
	return row.toModel(), true, nil
}

// UpdateUser writes only the columns named in changes. The row is locked
// while the previous avatar is read so the URL handed back for cleanup is the
// one this write replaced.
func (s *Store) UpdateUser(ctx context.Context, id string, changes model.UserChanges) (*model.User, string, error) {
	uid, ok := parseID(id)
	if !ok {
		return nil, "", apperror.NotFound("user", id)
	}

	updates := map[string]any{"updated_at": time.Now().UTC()}
	if changes.PasswordHash != nil {
		updates["password"] = *changes.PasswordHash
	}
	if changes.FirstName != nil {
		updates["first_name"] = *changes.FirstName
	}
	if changes.LastName != nil {
		updates["last_name"] = *changes.LastName
	}
	if changes.Birthday != nil {
		updates["birthday"] = datatypes.Date(*changes.Birthday)
	}
	if changes.Avatar != nil {
		updates["avatar"] = *changes.Avatar
	}

	var (
		out            *model.User
		previousAvatar string
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var before userRow
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Select("avatar").Where("id = ?", uid).Take(&before).Error
		if isNotFound(err) {
			return apperror.NotFound("user", id)
		}
		if err != nil {
			return err
		}
		previousAvatar = before.Avatar

		if err := tx.Model(&userRow{}).Where("id = ?", uid).Updates(updates).Error; err != nil {
			return err
		}

		var after userRow
		if err := tx.Where("id = ?", uid).Take(&after).Error; err != nil {
			return err
		}
		out = after.toModel()
		return nil
	})
	if err != nil {
		var appErr *apperror.AppError
		if errors.As(err, &appErr) {
			return nil, "", err
		}
		return nil, "", fmt.Errorf("gormstore: updating user %s: %w", id, err)
	}
	return out, previousAvatar, nil
}

func (s *Store) DeleteUser(ctx context.Context, id string) error {
	uid, ok := parseID(id)
	if !ok {
		return apperror.NotFound("user", id)
	}

	res := s.db.WithContext(ctx).Delete(&userRow{}, "id = ?", uid)
	if res.Error != nil {
		return fmt.Errorf("gormstore: deleting user %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return apperror.NotFound("user", id)
	}
	return nil
}
