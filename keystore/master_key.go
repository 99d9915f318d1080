package keystore

import (
	"crypto/rand"
	"fmt"
	"io"

	"github.com/awnumar/memguard"
	"golang.org/x/crypto/nacl/secretbox"

	"github.com/jmcleod/taskveil/crypto"
	"github.com/jmcleod/taskveil/internal/util"
)

// wrappedEntry is the at-rest form of a room key inside tab storage: the room
// key bytes sealed under the session master key.
type wrappedEntry struct {
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"`
}

// masterKey is the session-only wrapping key. It lives in a memguard
// LockedBuffer (guarded, mlocked memory), is created lazily on first wrap,
// and is never serialized. reset destroys the buffer in place, so previously
// wrapped entries are permanently unrecoverable.
type masterKey struct {
	buf *memguard.LockedBuffer
}

func (m *masterKey) materialize() *memguard.LockedBuffer {
	if m.buf == nil || !m.buf.IsAlive() {
		m.buf = memguard.NewBufferRandom(crypto.KeySize)
	}
	return m.buf
}

func (m *masterKey) wrap(raw []byte) (wrappedEntry, error) {
	buf := m.materialize()

	var key [crypto.KeySize]byte
	copy(key[:], buf.Bytes())
	defer util.WipeArray32(&key)

	var nonce [crypto.NonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return wrappedEntry{}, fmt.Errorf("generating wrap nonce: %w", err)
	}

	sealed := secretbox.Seal(nil, raw, &nonce, &key)
	return wrappedEntry{
		Nonce:      util.Base64Encode(nonce[:]),
		Ciphertext: util.Base64Encode(sealed),
	}, nil
}

// unwrap recovers the raw key bytes from an entry. A false return means the
// entry is unreadable, which callers treat as "key unavailable" rather than a
// fatal error: after a master key reset that is exactly the intended outcome.
func (m *masterKey) unwrap(entry wrappedEntry) ([]byte, bool) {
	if m.buf == nil || !m.buf.IsAlive() {
		return nil, false
	}

	var key [crypto.KeySize]byte
	copy(key[:], m.buf.Bytes())
	defer util.WipeArray32(&key)

	nonceBytes, err := util.Base64Decode(entry.Nonce)
	if err != nil || len(nonceBytes) != crypto.NonceSize {
		return nil, false
	}
	sealed, err := util.Base64Decode(entry.Ciphertext)
	if err != nil {
		return nil, false
	}

	var nonce [crypto.NonceSize]byte
	copy(nonce[:], nonceBytes)
	raw, ok := secretbox.Open(nil, sealed, &nonce, &key)
	if !ok {
		return nil, false
	}
	return raw, true
}

// reset wipes and frees the key material immediately rather than leaving it
// to the collector. A later wrap creates a fresh key.
func (m *masterKey) reset() {
	if m.buf != nil {
		m.buf.Destroy()
		m.buf = nil
	}
}
