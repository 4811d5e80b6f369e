package crypt

import "fmt"

const (
	IVSize  = 16
	TagSize = 32

	// MinFrameSize is iv + one ciphertext block + tag.
	MinFrameSize = IVSize + BlockSize + TagSize
)

var ErrFrameTooShort = fmt.Errorf("frame is too short")

// Frame is the wire unit. Constructed right before publish or right
// after receive, never stored.
type Frame struct {
	IV         [IVSize]byte
	Ciphertext []byte
	Tag        [TagSize]byte
}

// Marshal concatenates iv | ciphertext | tag.
func (f *Frame) Marshal() []byte {
	b := make([]byte, 0, IVSize+len(f.Ciphertext)+TagSize)
	b = append(b, f.IV[:]...)
	b = append(b, f.Ciphertext...)
	b = append(b, f.Tag[:]...)
	return b
}

// FrameUnmarshal splits a raw payload by fixed offsets: iv is the first
// 16 bytes, tag is the last 32, ciphertext is everything between.
// Ciphertext block alignment is checked later by Decrypt.
func FrameUnmarshal(b []byte) (*Frame, error) {
	if len(b) < MinFrameSize {
		return nil, ErrFrameTooShort
	}
	f := &Frame{Ciphertext: append([]byte(nil), b[IVSize:len(b)-TagSize]...)}
	copy(f.IV[:], b[:IVSize])
	copy(f.Tag[:], b[len(b)-TagSize:])
	return f, nil
}
