// Package media stores uploaded image blobs in a bbolt bucket, keyed by a
// generated ID. Images are bounded in size, validated by MIME type, and
// recompressed before storage.
package media

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.etcd.io/bbolt"

	"github.com/jmcleod/taskveil/internal/uuid"
)

// MaxBlobBytes bounds an accepted upload.
const MaxBlobBytes = 4 << 20

var bucketBlobs = []byte("blobs")

var (
	// ErrNotFound is returned when no blob exists under the ID.
	ErrNotFound = errors.New("blob not found")
	// ErrTooLarge is returned when an upload exceeds MaxBlobBytes.
	ErrTooLarge = errors.New("blob too large")
	// ErrUnsupportedType is returned for non-image uploads.
	ErrUnsupportedType = errors.New("unsupported content type")
)

// Blob is a stored upload.
type Blob struct {
	Data        []byte `json:"data"`
	ContentType string `json:"content_type"`
}

// Store is a bbolt-backed blob store.
type Store struct {
	db *bbolt.DB
}

// Open opens a bbolt database at the given path and prepares the bucket.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("opening media db: %w", err)
	}
	return NewStore(db)
}

// NewStore prepares the bucket on an existing bbolt database.
func NewStore(db *bbolt.DB) (*Store, error) {
	err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketBlobs)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("creating media bucket: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Put validates, compresses, and stores an image, returning its ID.
func (s *Store) Put(data []byte, contentType string) (string, error) {
	if !strings.HasPrefix(contentType, "image/") {
		return "", fmt.Errorf("%s: %w", contentType, ErrUnsupportedType)
	}
	if len(data) > MaxBlobBytes {
		return "", fmt.Errorf("%d bytes: %w", len(data), ErrTooLarge)
	}

	data, contentType, err := Compress(data, contentType)
	if err != nil {
		return "", fmt.Errorf("compressing image: %w", err)
	}

	id := uuid.New()
	encoded, err := json.Marshal(Blob{Data: data, ContentType: contentType})
	if err != nil {
		return "", fmt.Errorf("encoding blob: %w", err)
	}
	err = s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketBlobs).Put([]byte(id), encoded)
	})
	if err != nil {
		return "", fmt.Errorf("storing blob: %w", err)
	}
	return id, nil
}

// Get returns the blob stored under the ID.
func (s *Store) Get(id string) (Blob, error) {
	var blob Blob
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketBlobs).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("%s: %w", id, ErrNotFound)
		}
		return json.Unmarshal(data, &blob)
	})
	if err != nil {
		return Blob{}, err
	}
	return blob, nil
}

// Delete removes the blob stored under the ID.
func (s *Store) Delete(id string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketBlobs)
		if b.Get([]byte(id)) == nil {
			return fmt.Errorf("%s: %w", id, ErrNotFound)
		}
		return b.Delete([]byte(id))
	})
}
