// Package storage is the server's relational store: users, rooms,
// memberships, messages, and todos on sqlite via gorm. Message content is
// stored exactly as received; the server never holds a decryption key for it.
package storage

import (
	"errors"
	"fmt"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrForbidden is returned when the acting user is not allowed to
	// perform the operation.
	ErrForbidden = errors.New("operation not permitted")
	// ErrInvalid is returned when input fails validation.
	ErrInvalid = errors.New("invalid input")
)

// Store wraps the gorm handle with the application's operations.
type Store struct {
	db *gorm.DB
}

// Open opens (creating if needed) a sqlite database at path and migrates the
// schema.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}
	if path == ":memory:" {
		// An in-memory sqlite database exists per connection; pin the
		// pool to one so every query sees the same database.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}
	return New(db)
}

// OpenInMemory opens a private in-memory database, used by tests and the
// embedded example.
func OpenInMemory() (*Store, error) {
	return Open(":memory:")
}

// New migrates the schema on an existing gorm handle.
func New(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&User{}, &Room{}, &RoomMember{}, &Message{}, &Todo{}); err != nil {
		return nil, fmt.Errorf("migrating schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// notFound rewraps gorm's sentinel so callers match on the package's own.
func notFound(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return fmt.Errorf("%s: %w", what, err)
}
