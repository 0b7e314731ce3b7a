package buf

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEndianHelpers(t *testing.T) {
	data := []byte{0x01, 0x23, 0x45, 0x67, 0x89, 0xab, 0xcd, 0xef}

	require.Equal(t, uint64(0xefcdab8967452301), U64LE(data))

	short := []byte{0xAA}
	require.Zero(t, U64LE(short))
}

func TestPutU64LE(t *testing.T) {
	b := make([]byte, 16)
	require.True(t, PutU64LE(b, 0x1122334455667788))
	require.Equal(t, uint64(0x1122334455667788), U64LE(b))
	require.Equal(t, byte(0x88), b[0])
	require.Equal(t, byte(0x11), b[7])
	require.Zero(t, b[8], "bytes past the word must be untouched")

	short := []byte{0xAA, 0xBB}
	require.False(t, PutU64LE(short, 1))
	require.Equal(t, []byte{0xAA, 0xBB}, short)
}
