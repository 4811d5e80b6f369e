package crypt

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameMarshalOffsets(t *testing.T) {
	t.Parallel()
	f := &Frame{Ciphertext: bytes.Repeat([]byte{0xcc}, 32)}
	for i := range f.IV {
		f.IV[i] = byte(i)
	}
	for i := range f.Tag {
		f.Tag[i] = byte(0x80 + i)
	}
	b := f.Marshal()
	require.Equal(t, IVSize+32+TagSize, len(b))
	assert.Equal(t, f.IV[:], b[:IVSize])
	assert.Equal(t, f.Ciphertext, b[IVSize:IVSize+32])
	assert.Equal(t, f.Tag[:], b[IVSize+32:])

	back, err := FrameUnmarshal(b)
	require.NoError(t, err)
	assert.Equal(t, f.IV, back.IV)
	assert.Equal(t, f.Ciphertext, back.Ciphertext)
	assert.Equal(t, f.Tag, back.Tag)
}

func TestFrameTooShort(t *testing.T) {
	t.Parallel()
	for _, n := range []int{0, 1, 16, 48, MinFrameSize - 1} {
		_, err := FrameUnmarshal(make([]byte, n))
		assert.Equal(t, ErrFrameTooShort, err, "len=%d", n)
	}
	_, err := FrameUnmarshal(make([]byte, MinFrameSize))
	assert.NoError(t, err)
}

func TestFrameUnmarshalCopies(t *testing.T) {
	t.Parallel()
	b := make([]byte, MinFrameSize)
	f, err := FrameUnmarshal(b)
	require.NoError(t, err)
	b[IVSize] = 0xff
	assert.Equal(t, byte(0), f.Ciphertext[0], "must not alias caller buffer")
}
