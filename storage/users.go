package storage

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm/clause"
)

// SyncUser upserts a user row from the identity provider's token claims. It
// runs on every login so renamed accounts converge; admin status is managed
// out of band and left untouched on update.
func (s *Store) SyncUser(ctx context.Context, id, email, username string) (User, error) {
	id = strings.TrimSpace(id)
	email = strings.TrimSpace(email)
	if id == "" || email == "" {
		return User{}, fmt.Errorf("user id and email are required: %w", ErrInvalid)
	}

	user := User{ID: id, Email: email, Username: username}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"email", "username", "updated_at"}),
	}).Create(&user).Error
	if err != nil {
		return User{}, fmt.Errorf("syncing user %s: %w", id, err)
	}
	return s.UserByID(ctx, id)
}

// UserByID returns one user.
func (s *Store) UserByID(ctx context.Context, id string) (User, error) {
	var user User
	if err := s.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		return User{}, notFound(err, "user "+id)
	}
	return user, nil
}

// ListUsers returns all users, for the admin member-management view.
func (s *Store) ListUsers(ctx context.Context) ([]User, error) {
	var users []User
	if err := s.db.WithContext(ctx).Order("username").Find(&users).Error; err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	return users, nil
}

// SetAdmin flips a user's admin flag. Deliberately absent from the API
// surface; the operator grants admin at the command line.
func (s *Store) SetAdmin(ctx context.Context, id string, admin bool) error {
	res := s.db.WithContext(ctx).Model(&User{}).Where("id = ?", id).Update("is_admin", admin)
	if res.Error != nil {
		return fmt.Errorf("setting admin for user %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	return nil
}

// requireAdmin loads the actor and fails unless they are an admin.
func (s *Store) requireAdmin(ctx context.Context, actorID string) error {
	actor, err := s.UserByID(ctx, actorID)
	if err != nil {
		return err
	}
	if !actor.IsAdmin {
		return fmt.Errorf("user %s is not an admin: %w", actorID, ErrForbidden)
	}
	return nil
}
