package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/jmcleod/taskveil/crypto"
	"github.com/jmcleod/taskveil/internal/util"
	"github.com/jmcleod/taskveil/internal/uuid"
)

// CreateRoom creates a room with a freshly generated encryption key and adds
// the creator as its first member. Admin only.
func (s *Store) CreateRoom(ctx context.Context, creatorID, name, description string) (Room, error) {
	name = util.Normalize(strings.TrimSpace(name))
	if name == "" {
		return Room{}, fmt.Errorf("room name is required: %w", ErrInvalid)
	}
	if err := s.requireAdmin(ctx, creatorID); err != nil {
		return Room{}, err
	}

	key, err := crypto.GenerateKey()
	if err != nil {
		return Room{}, fmt.Errorf("generating room key: %w", err)
	}

	room := Room{
		ID:            uuid.New(),
		Name:          name,
		Description:   description,
		CreatedByID:   creatorID,
		EncryptionKey: crypto.EncodeKey(key),
		IsActive:      true,
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&room).Error; err != nil {
			return err
		}
		member := RoomMember{RoomID: room.ID, UserID: creatorID, JoinedAt: time.Now()}
		return tx.Create(&member).Error
	})
	if err != nil {
		return Room{}, fmt.Errorf("creating room: %w", err)
	}
	return room, nil
}

// DeactivateRoom soft-deactivates a room. Its history stays in place but the
// room drops out of every listing. Admin only.
func (s *Store) DeactivateRoom(ctx context.Context, actorID, roomID string) error {
	if err := s.requireAdmin(ctx, actorID); err != nil {
		return err
	}
	res := s.db.WithContext(ctx).Model(&Room{}).
		Where("id = ? AND is_active", roomID).
		Update("is_active", false)
	if res.Error != nil {
		return fmt.Errorf("deactivating room %s: %w", roomID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("room %s: %w", roomID, ErrNotFound)
	}
	return nil
}

// AddMember adds a user to a room. A banned membership row blocks re-adding;
// the ban has to be lifted explicitly. Admin only.
func (s *Store) AddMember(ctx context.Context, actorID, roomID, userID string) error {
	if err := s.requireAdmin(ctx, actorID); err != nil {
		return err
	}
	if _, err := s.activeRoom(ctx, roomID); err != nil {
		return err
	}
	if _, err := s.UserByID(ctx, userID); err != nil {
		return err
	}

	var existing RoomMember
	err := s.db.WithContext(ctx).
		First(&existing, "room_id = ? AND user_id = ?", roomID, userID).Error
	switch {
	case err == nil:
		if existing.IsBanned {
			return fmt.Errorf("user %s is banned from room %s: %w", userID, roomID, ErrForbidden)
		}
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		member := RoomMember{RoomID: roomID, UserID: userID, JoinedAt: time.Now()}
		if err := s.db.WithContext(ctx).Create(&member).Error; err != nil {
			return fmt.Errorf("adding member: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("adding member: %w", err)
	}
}

// BanMember marks a membership banned. The row is kept so the ban holds.
// Admin only.
func (s *Store) BanMember(ctx context.Context, actorID, roomID, userID string) error {
	if err := s.requireAdmin(ctx, actorID); err != nil {
		return err
	}
	res := s.db.WithContext(ctx).Model(&RoomMember{}).
		Where("room_id = ? AND user_id = ?", roomID, userID).
		Update("is_banned", true)
	if res.Error != nil {
		return fmt.Errorf("banning member: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("membership %s/%s: %w", roomID, userID, ErrNotFound)
	}
	return nil
}

// UnbanMember lifts a ban. Admin only.
func (s *Store) UnbanMember(ctx context.Context, actorID, roomID, userID string) error {
	if err := s.requireAdmin(ctx, actorID); err != nil {
		return err
	}
	res := s.db.WithContext(ctx).Model(&RoomMember{}).
		Where("room_id = ? AND user_id = ? AND is_banned", roomID, userID).
		Update("is_banned", false)
	if res.Error != nil {
		return fmt.Errorf("unbanning member: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("banned membership %s/%s: %w", roomID, userID, ErrNotFound)
	}
	return nil
}

// RemoveMember deletes a membership row outright. Admin only.
func (s *Store) RemoveMember(ctx context.Context, actorID, roomID, userID string) error {
	if err := s.requireAdmin(ctx, actorID); err != nil {
		return err
	}
	res := s.db.WithContext(ctx).
		Delete(&RoomMember{}, "room_id = ? AND user_id = ?", roomID, userID)
	if res.Error != nil {
		return fmt.Errorf("removing member: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("membership %s/%s: %w", roomID, userID, ErrNotFound)
	}
	return nil
}

// RoomsForUser returns the active rooms where the user holds an unbanned
// membership. This is the key distribution point: each row carries the room's
// encryption key.
func (s *Store) RoomsForUser(ctx context.Context, userID string) ([]Room, error) {
	var rooms []Room
	err := s.db.WithContext(ctx).
		Joins("JOIN room_members ON room_members.room_id = rooms.id").
		Where("room_members.user_id = ? AND NOT room_members.is_banned AND rooms.is_active", userID).
		Order("rooms.created_at").
		Find(&rooms).Error
	if err != nil {
		return nil, fmt.Errorf("listing rooms for user %s: %w", userID, err)
	}
	return rooms, nil
}

// IsMember reports whether the user holds an unbanned membership in an active
// room. Every message path checks this server-side.
func (s *Store) IsMember(ctx context.Context, roomID, userID string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&RoomMember{}).
		Joins("JOIN rooms ON rooms.id = room_members.room_id").
		Where("room_members.room_id = ? AND room_members.user_id = ? AND NOT room_members.is_banned AND rooms.is_active", roomID, userID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("checking membership: %w", err)
	}
	return count > 0, nil
}

// Members returns a room's membership rows, for the admin view.
func (s *Store) Members(ctx context.Context, actorID, roomID string) ([]RoomMember, error) {
	if err := s.requireAdmin(ctx, actorID); err != nil {
		return nil, err
	}
	var members []RoomMember
	err := s.db.WithContext(ctx).
		Where("room_id = ?", roomID).Order("joined_at").Find(&members).Error
	if err != nil {
		return nil, fmt.Errorf("listing members of room %s: %w", roomID, err)
	}
	return members, nil
}

func (s *Store) activeRoom(ctx context.Context, roomID string) (Room, error) {
	var room Room
	err := s.db.WithContext(ctx).First(&room, "id = ? AND is_active", roomID).Error
	if err != nil {
		return Room{}, notFound(err, "room "+roomID)
	}
	return room, nil
}
