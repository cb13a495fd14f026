package grandpa

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/parity-bridges/finality-relayer/relayer/finality"
)

type stubHeader struct {
	logs [][]byte
}

func (h stubHeader) ID() finality.HeaderID     { return finality.HeaderID{} }
func (h stubHeader) ParentHash() finality.Hash { return finality.Hash{} }
func (h stubHeader) DigestLogs() [][]byte      { return h.logs }

func encodeJustification(round uint64, hash finality.Hash, number uint32, precommits []byte) []byte {
	out := make([]byte, minJustification, minJustification+len(precommits))
	binary.LittleEndian.PutUint64(out[:roundLength], round)
	copy(out[roundLength:], hash[:])
	binary.LittleEndian.PutUint32(out[roundLength+finality.HashLength:], number)
	return append(out, precommits...)
}

func TestDecodeProof(t *testing.T) {
	t.Parallel()

	var hash finality.Hash
	hash[0] = 0xab
	hash[31] = 0xcd
	raw := encodeJustification(17, hash, 4242, []byte{1, 2, 3, 4})

	proof, err := NewEngine().DecodeProof(raw)
	require.NoError(t, err)

	j, ok := proof.(*Justification)
	require.True(t, ok)
	require.Equal(t, uint64(17), j.Round)
	require.Equal(t, hash, j.TargetHash)
	require.Equal(t, uint32(4242), j.TargetNumber)

	id := proof.Target()
	require.Equal(t, uint64(4242), id.Number)
	require.Equal(t, hash, id.Hash)

	// Re-submission must carry the original wire bytes untouched.
	require.Equal(t, raw, proof.Encode())
}

func TestDecodeProofTooShort(t *testing.T) {
	t.Parallel()

	_, err := NewEngine().DecodeProof(make([]byte, minJustification-1))
	require.Error(t, err)
}

func TestDecodeProofCopiesInput(t *testing.T) {
	t.Parallel()

	raw := encodeJustification(1, finality.Hash{}, 10, nil)
	proof, err := NewEngine().DecodeProof(raw)
	require.NoError(t, err)

	raw[0] = 0xff
	require.Equal(t, uint64(1), proof.(*Justification).Round)
}

// consensusLog builds a DigestItem::Consensus with the given engine id
// and payload.
func consensusLog(engineID string, payload []byte) []byte {
	out := []byte{digestItemConsensus}
	out = append(out, engineID...)
	out = append(out, byte(len(payload))<<2)
	return append(out, payload...)
}

func TestMandatoryDetection(t *testing.T) {
	t.Parallel()

	engine := NewEngine()

	for name, tc := range map[string]struct {
		logs      [][]byte
		mandatory bool
	}{
		"no digest": {
			logs: nil,
		},
		"scheduled change": {
			logs:      [][]byte{consensusLog(ConsensusEngineID, []byte{logScheduledChange, 9, 9})},
			mandatory: true,
		},
		"forced change": {
			logs:      [][]byte{consensusLog(ConsensusEngineID, []byte{logForcedChange, 9, 9})},
			mandatory: true,
		},
		"other grandpa log": {
			logs: [][]byte{consensusLog(ConsensusEngineID, []byte{0x03})},
		},
		"other engine": {
			logs: [][]byte{consensusLog("BABE", []byte{logScheduledChange})},
		},
		"non-consensus item": {
			logs: [][]byte{{0x06, 'F', 'R', 'N', 'K', 0x04, logScheduledChange}},
		},
		"change after unrelated logs": {
			logs: [][]byte{
				consensusLog("BABE", []byte{0x01}),
				consensusLog(ConsensusEngineID, []byte{logScheduledChange}),
			},
			mandatory: true,
		},
		"truncated item": {
			logs: [][]byte{{digestItemConsensus, 'F', 'R'}},
		},
		"empty payload": {
			logs: [][]byte{consensusLog(ConsensusEngineID, nil)},
		},
	} {
		tc := tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.mandatory, engine.Mandatory(stubHeader{logs: tc.logs}))
		})
	}
}

func TestDecodeCompactLen(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		in       []byte
		length   int
		consumed int
		ok       bool
	}{
		{in: []byte{0x00}, length: 0, consumed: 1, ok: true},
		{in: []byte{0x04}, length: 1, consumed: 1, ok: true},
		{in: []byte{0xfc}, length: 63, consumed: 1, ok: true},
		{in: []byte{0x01, 0x01}, length: 64, consumed: 2, ok: true},
		{in: []byte{0xfd, 0xff}, length: 16383, consumed: 2, ok: true},
		{in: []byte{0x02, 0x00, 0x01, 0x00}, length: 16384, consumed: 4, ok: true},
		{in: []byte{0x03}, ok: false}, // bignum mode
		{in: nil, ok: false},
		{in: []byte{0x01}, ok: false}, // truncated two-byte mode
	} {
		length, consumed, ok := decodeCompactLen(tc.in)
		require.Equal(t, tc.ok, ok, "input %x", tc.in)
		if tc.ok {
			require.Equal(t, tc.length, length, "input %x", tc.in)
			require.Equal(t, tc.consumed, consumed, "input %x", tc.in)
		}
	}
}
