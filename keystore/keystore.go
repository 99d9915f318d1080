// Package keystore is the sole session holder of the RoomId -> RoomKey
// mapping. Keys are wrapped under a lazily created session master key before
// touching tab-scoped storage, so the plaintext key material never leaves
// process memory, and purging the master key makes every wrapped entry
// permanently unrecoverable.
package keystore

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/jmcleod/taskveil/crypto"
	"github.com/jmcleod/taskveil/internal/util"
)

const keyPrefix = "room_key_"

// Store wraps and holds per-room keys for the lifetime of the current tab.
type Store struct {
	mu     sync.Mutex
	tab    TabStorage
	legacy TabStorage
	master masterKey
}

// Option configures the Store.
type Option func(*Store)

// WithLegacyStorage registers a persistent storage location that earlier
// builds wrote room keys to. It is purge-only: PurgeAll scrubs matching
// entries from it, but Get never reads it.
func WithLegacyStorage(legacy TabStorage) Option {
	return func(s *Store) {
		s.legacy = legacy
	}
}

// New creates a Store over the given tab-scoped storage.
func New(tab TabStorage, opts ...Option) *Store {
	s := &Store{tab: tab}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Put wraps rawKey under the session master key and writes the wrapped entry
// into tab storage. The master key is created on first use.
func (s *Store) Put(roomID string, rawKey *[crypto.KeySize]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, err := s.master.wrap(rawKey[:])
	if err != nil {
		return fmt.Errorf("wrapping key for room %s: %w", roomID, err)
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encoding wrapped key: %w", err)
	}
	s.tab.Set(keyPrefix+roomID, string(data))
	return nil
}

// Get returns the room key, or false if no entry exists or the entry can no
// longer be unwrapped. An unreadable entry is not an error: it is how stale
// wrapped material looks after a master key reset.
func (s *Store) Get(roomID string) (*[crypto.KeySize]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, ok := s.tab.Get(keyPrefix + roomID)
	if !ok {
		return nil, false
	}
	var entry wrappedEntry
	if err := json.Unmarshal([]byte(data), &entry); err != nil {
		return nil, false
	}
	raw, ok := s.master.unwrap(entry)
	if !ok {
		return nil, false
	}
	defer util.WipeBytes(raw)

	if len(raw) != crypto.KeySize {
		return nil, false
	}
	var key [crypto.KeySize]byte
	copy(key[:], raw)
	return &key, true
}

// PurgeAll removes every room key entry from tab storage, scrubs matching
// entries from the legacy persistent location, and discards the master key so
// any entry the removal missed is unrecoverable anyway. It is idempotent.
func (s *Store) PurgeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	purgePrefix(s.tab)
	if s.legacy != nil {
		purgePrefix(s.legacy)
	}
	s.master.reset()
}

func purgePrefix(storage TabStorage) {
	for _, k := range storage.Keys() {
		if strings.HasPrefix(k, keyPrefix) {
			storage.Remove(k)
		}
	}
}
