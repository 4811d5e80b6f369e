package crypt

import (
	"bytes"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// matches device test firmware
var testMacKey = bytes.Repeat([]byte{0x0b}, 32)

func testMac(t testing.TB) *Mac {
	m, err := NewMac(testMacKey)
	require.NoError(t, err)
	return m
}

func TestNewMacKeySize(t *testing.T) {
	t.Parallel()
	for _, n := range []int{0, 16, 31, 33} {
		_, err := NewMac(make([]byte, n))
		assert.Error(t, err, "key len=%d", n)
	}
}

func TestTagDeterministic(t *testing.T) {
	t.Parallel()
	m := testMac(t)
	iv := bytes.Repeat([]byte{0x42}, IVSize)
	ct := bytes.Repeat([]byte{0x17}, 32)
	t1 := m.Tag(iv, ct)
	t2 := m.Tag(iv, ct)
	assert.Equal(t, t1, t2)
	assert.True(t, m.Verify(iv, ct, t1[:]))
}

func TestVerifyWrongTagLength(t *testing.T) {
	t.Parallel()
	m := testMac(t)
	iv := make([]byte, IVSize)
	ct := make([]byte, 16)
	tag := m.Tag(iv, ct)
	assert.False(t, m.Verify(iv, ct, tag[:31]))
	assert.False(t, m.Verify(iv, ct, append(tag[:], 0)))
	assert.False(t, m.Verify(iv, ct, nil))
}

// Any single flipped bit in iv, ciphertext or tag must fail verification.
func TestTamperSingleBit(t *testing.T) {
	t.Parallel()
	m := testMac(t)
	iv := []byte("0123456789abcdef")
	ct := bytes.Repeat([]byte{0xa5}, 16)
	tag := m.Tag(iv, ct)
	raw := append(append(append([]byte(nil), iv...), ct...), tag[:]...)

	for bit := 0; bit < len(raw)*8; bit++ {
		mut := append([]byte(nil), raw...)
		mut[bit/8] ^= 1 << (bit % 8)
		mi := mut[:IVSize]
		mc := mut[IVSize : len(mut)-TagSize]
		mt := mut[len(mut)-TagSize:]
		require.False(t, m.Verify(mi, mc, mt), "bit=%d", bit)
	}
}

// Statistical check that comparison time does not depend on which tag
// byte differs. Medians over many trials, loose tolerance: this guards
// against gross regressions like bytes.Equal, not nanosecond noise.
func TestVerifyConstantTime(t *testing.T) {
	if testing.Short() {
		t.Skip("timing test")
	}
	m := testMac(t)
	iv := make([]byte, IVSize)
	ct := make([]byte, 64)
	good := m.Tag(iv, ct)

	first := append([]byte(nil), good[:]...)
	first[0] ^= 0xff
	last := append([]byte(nil), good[:]...)
	last[TagSize-1] ^= 0xff

	measure := func(tag []byte) time.Duration {
		const trials = 2000
		samples := make([]time.Duration, trials)
		for i := 0; i < trials; i++ {
			begin := time.Now()
			if m.Verify(iv, ct, tag) {
				t.Fatal("tampered tag verified")
			}
			samples[i] = time.Since(begin)
		}
		sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
		return samples[trials/2]
	}

	mFirst := measure(first)
	mLast := measure(last)
	ratio := float64(mFirst) / float64(mLast)
	if ratio < 1 {
		ratio = 1 / ratio
	}
	assert.Less(t, ratio, 3.0, "first=%v last=%v", mFirst, mLast)
}

func TestSeal(t *testing.T) {
	t.Parallel()
	m := testMac(t)
	f := &Frame{Ciphertext: make([]byte, 16)}
	m.Seal(f)
	assert.True(t, m.Verify(f.IV[:], f.Ciphertext, f.Tag[:]))
}
