package crypt

import (
	"crypto/hmac"
	"crypto/sha256"

	"github.com/juju/errors"
)

const MacKeySize = 32

// Mac authenticates frames with HMAC-SHA256 over iv|ciphertext.
// The key is independent from the cipher key; never derive one from
// the other.
type Mac struct {
	key []byte
}

func NewMac(key []byte) (*Mac, error) {
	if len(key) != MacKeySize {
		return nil, errors.Errorf("mac key must be %d bytes got=%d", MacKeySize, len(key))
	}
	return &Mac{key: append([]byte(nil), key...)}, nil
}

// Tag is deterministic for identical key and input.
func (m *Mac) Tag(iv, ciphertext []byte) [TagSize]byte {
	h := hmac.New(sha256.New, m.key)
	_, _ = h.Write(iv)
	_, _ = h.Write(ciphertext)
	var out [TagSize]byte
	h.Sum(out[:0])
	return out
}

// Verify recomputes the tag and compares in constant time. Timing must
// not depend on where the first difference is, an observer probing the
// command topic would learn tag bytes otherwise. Never panics, false on
// any mismatch including wrong tag length.
func (m *Mac) Verify(iv, ciphertext, tag []byte) bool {
	if len(tag) != TagSize {
		return false
	}
	expect := m.Tag(iv, ciphertext)
	return hmac.Equal(expect[:], tag)
}

// Seal attaches a tag to a frame produced by Cipher.Encrypt.
func (m *Mac) Seal(f *Frame) {
	f.Tag = m.Tag(f.IV[:], f.Ciphertext)
}
