// Package crypt turns serialized commands into authenticated encrypted
// frames and back. Pure transforms, no IO, no session state.
//
// Wire contract with deployed firmware:
//   iv(16) | ciphertext(N, N%16==0, N>=16) | tag(32)
// tag is HMAC-SHA256 over iv|ciphertext under a key independent from the
// cipher key. Both keys are loaded once at process start.
package crypt

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"

	"github.com/juju/errors"
)

const (
	BlockSize = aes.BlockSize

	// MaxPlaintext bounds buffer sizing on the embedded peer.
	MaxPlaintext = 128

	CipherKeySize = 16
)

var (
	ErrPayloadTooLarge     = fmt.Errorf("payload is too large")
	ErrMalformedCiphertext = fmt.Errorf("ciphertext length must be positive multiple of block size")
	ErrInvalidPadding      = fmt.Errorf("invalid padding")
)

// Cipher is AES-128-CBC with per-message random IV and PKCS#7 padding.
// Stateless after New, safe for concurrent use.
type Cipher struct {
	block cipher.Block
}

func NewCipher(key []byte) (*Cipher, error) {
	if len(key) != CipherKeySize {
		return nil, errors.Errorf("cipher key must be %d bytes got=%d", CipherKeySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errors.Annotate(err, "aes")
	}
	return &Cipher{block: block}, nil
}

// Encrypt pads to a positive multiple of the block size and encrypts
// under a fresh random IV. Input already aligned to the block size gets
// a full extra padding block so the decoder can always strip the last
// byte. IV is never supplied by the caller and never reused.
func (c *Cipher) Encrypt(plaintext []byte) (*Frame, error) {
	if len(plaintext) > MaxPlaintext {
		return nil, ErrPayloadTooLarge
	}
	pad := BlockSize - len(plaintext)%BlockSize
	buf := make([]byte, len(plaintext)+pad)
	copy(buf, plaintext)
	for i := len(plaintext); i < len(buf); i++ {
		buf[i] = byte(pad)
	}

	f := &Frame{Ciphertext: buf}
	if _, err := io.ReadFull(rand.Reader, f.IV[:]); err != nil {
		return nil, errors.Annotate(err, "iv")
	}
	cipher.NewCBCEncrypter(c.block, f.IV[:]).CryptBlocks(buf, buf)
	return f, nil
}

// Decrypt reverses Encrypt. Padding check is length-only per the wire
// contract; the MAC must have been verified before calling this.
func (c *Cipher) Decrypt(iv, ciphertext []byte) ([]byte, error) {
	if len(iv) != BlockSize {
		return nil, ErrMalformedCiphertext
	}
	if len(ciphertext) == 0 || len(ciphertext)%BlockSize != 0 {
		return nil, ErrMalformedCiphertext
	}
	buf := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(c.block, iv).CryptBlocks(buf, ciphertext)
	pad := int(buf[len(buf)-1])
	if pad == 0 || pad > BlockSize {
		return nil, ErrInvalidPadding
	}
	return buf[:len(buf)-pad], nil
}
