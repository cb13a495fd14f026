package substrate

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/parity-bridges/finality-relayer/relayer/finality"
)

func TestEncodeCompact(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		n    uint64
		want []byte
	}{
		{n: 0, want: []byte{0x00}},
		{n: 1, want: []byte{0x04}},
		{n: 63, want: []byte{0xfc}},
		{n: 64, want: []byte{0x01, 0x01}},
		{n: 16383, want: []byte{0xfd, 0xff}},
		{n: 16384, want: []byte{0x02, 0x00, 0x01, 0x00}},
		{n: 1<<30 - 1, want: []byte{0xfe, 0xff, 0xff, 0xff}},
		{n: 1 << 30, want: []byte{0x03, 0x00, 0x00, 0x00, 0x40}},
		{n: 1 << 32, want: []byte{0x07, 0x00, 0x00, 0x00, 0x00, 0x01}},
	} {
		require.Equal(t, tc.want, encodeCompact(tc.n), "n=%d", tc.n)
	}
}

func testHeaderFixture(t *testing.T) *Header {
	t.Helper()

	hash, err := finality.HashFromHex("0x4444444444444444444444444444444444444444444444444444444444444444")
	require.NoError(t, err)
	parent, err := finality.HashFromHex("0x1111111111111111111111111111111111111111111111111111111111111111")
	require.NoError(t, err)
	state, err := finality.HashFromHex("0x2222222222222222222222222222222222222222222222222222222222222222")
	require.NoError(t, err)
	extrinsics, err := finality.HashFromHex("0x3333333333333333333333333333333333333333333333333333333333333333")
	require.NoError(t, err)

	return &Header{
		hash:           hash,
		parentHash:     parent,
		stateRoot:      state,
		extrinsicsRoot: extrinsics,
		number:         100,
		digestLogs:     [][]byte{{0x06, 0xaa}, {0x04, 0xbb, 0xcc}},
	}
}

func TestHeaderEncodeSCALE(t *testing.T) {
	t.Parallel()

	h := testHeaderFixture(t)
	enc := h.encodeSCALE()

	require.Equal(t, h.parentHash[:], enc[:32])
	// 100 compact-encodes into two bytes.
	require.Equal(t, encodeCompact(100), enc[32:34])
	require.Equal(t, h.stateRoot[:], enc[34:66])
	require.Equal(t, h.extrinsicsRoot[:], enc[66:98])
	// Two digest logs, raw bytes appended after the count.
	require.Equal(t, byte(2<<2), enc[98])
	require.Equal(t, []byte{0x06, 0xaa, 0x04, 0xbb, 0xcc}, enc[99:])
}

func TestEncodeSubmitFinalityProof(t *testing.T) {
	t.Parallel()

	h := testHeaderFixture(t)
	justification := []byte{0xde, 0xad, 0xbe, 0xef}
	enc := encodeSubmitFinalityProof([2]byte{0x07, 0x01}, h, justification)

	// Outer compact length prefix covers everything after itself.
	innerLen, consumed, ok := splitCompact(enc)
	require.True(t, ok)
	inner := enc[consumed:]
	require.Len(t, inner, innerLen)

	require.Equal(t, byte(0x04), inner[0], "unsigned extrinsic version")
	require.Equal(t, []byte{0x07, 0x01}, inner[1:3], "call index")

	header := h.encodeSCALE()
	require.Equal(t, header, inner[3:3+len(header)])

	rest := inner[3+len(header):]
	require.Equal(t, append(encodeCompact(4), justification...), rest)
}

// splitCompact decodes the leading compact integer of b for assertions.
func splitCompact(b []byte) (value, consumed int, ok bool) {
	if len(b) == 0 {
		return 0, 0, false
	}
	switch b[0] & 0x03 {
	case 0:
		return int(b[0] >> 2), 1, true
	case 1:
		return int(uint16(b[0])|uint16(b[1])<<8) >> 2, 2, true
	default:
		return 0, 0, false
	}
}

func TestEncodeParachainHeadsCall(t *testing.T) {
	t.Parallel()

	hash, err := finality.HashFromHex("0x5555555555555555555555555555555555555555555555555555555555555555")
	require.NoError(t, err)
	at := finality.HeaderID{Number: 0x01020304, Hash: hash}
	head := []byte{0xaa, 0xbb}
	proof := [][]byte{{0x01}, {0x02, 0x03}}

	enc := EncodeParachainHeadsCall(at, 2000, head, proof)

	require.Equal(t, []byte{0x04, 0x03, 0x02, 0x01}, enc[:4], "relay number LE")
	require.Equal(t, hash[:], enc[4:36])

	rest := enc[36:]
	require.Equal(t, byte(1<<2), rest[0], "one (para, head) pair")
	require.Equal(t, []byte{0xd0, 0x07, 0x00, 0x00}, rest[1:5], "para id LE")
	require.Equal(t, append(encodeCompact(2), head...), rest[5:8])

	rest = rest[8:]
	require.Equal(t, byte(2<<2), rest[0], "two proof nodes")
	require.Equal(t, append(encodeCompact(1), 0x01), rest[1:3])
	require.Equal(t, append(encodeCompact(2), 0x02, 0x03), rest[3:])
}
