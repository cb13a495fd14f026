package substrate

import (
	"encoding/binary"

	"github.com/parity-bridges/finality-relayer/relayer/finality"
)

// encodeCompact SCALE compact-encodes an unsigned integer.
func encodeCompact(n uint64) []byte {
	switch {
	case n < 1<<6:
		return []byte{byte(n) << 2}
	case n < 1<<14:
		var out [2]byte
		binary.LittleEndian.PutUint16(out[:], uint16(n)<<2|0x01)
		return out[:]
	case n < 1<<30:
		var out [4]byte
		binary.LittleEndian.PutUint32(out[:], uint32(n)<<2|0x02)
		return out[:]
	default:
		var tmp [8]byte
		binary.LittleEndian.PutUint64(tmp[:], n)
		length := 8
		for length > 4 && tmp[length-1] == 0 {
			length--
		}
		out := make([]byte, 0, length+1)
		out = append(out, byte(length-4)<<2|0x03)
		return append(out, tmp[:length]...)
	}
}

// encodeSCALE re-encodes the header in the source chain's wire format:
// parent hash, compact number, state root, extrinsics root, then the
// compact-prefixed digest log vector.
func (h *Header) encodeSCALE() []byte {
	out := make([]byte, 0, 3*32+16)
	out = append(out, h.parentHash[:]...)
	out = append(out, encodeCompact(h.number)...)
	out = append(out, h.stateRoot[:]...)
	out = append(out, h.extrinsicsRoot[:]...)
	out = append(out, encodeCompact(uint64(len(h.digestLogs)))...)
	for _, l := range h.digestLogs {
		out = append(out, l...)
	}
	return out
}

// encodeSubmitFinalityProof builds the unsigned bridge extrinsic
// carrying a finalized header and its justification: the compact
// length prefix, the extrinsic version byte, the configured call
// index, the SCALE header, and the compact-prefixed justification.
func encodeSubmitFinalityProof(callIndex [2]byte, header *Header, justification []byte) []byte {
	inner := make([]byte, 0, len(justification)+128)
	inner = append(inner, 0x04) // unsigned extrinsic, format version 4
	inner = append(inner, callIndex[:]...)
	inner = append(inner, header.encodeSCALE()...)
	inner = append(inner, encodeCompact(uint64(len(justification)))...)
	inner = append(inner, justification...)

	out := append(encodeCompact(uint64(len(inner))), inner...)
	return out
}

// EncodeParachainHeadsCall builds the argument payload of the bridge
// parachains pallet's submit-heads call: the proved relay-chain block
// reference, the single (para id, head) pair, and the storage read
// proof nodes.
func EncodeParachainHeadsCall(at finality.HeaderID, paraID uint32, head []byte, proof [][]byte) []byte {
	out := make([]byte, 0, 64+len(head))

	var num [4]byte
	binary.LittleEndian.PutUint32(num[:], uint32(at.Number))
	out = append(out, num[:]...)
	out = append(out, at.Hash[:]...)

	out = append(out, encodeCompact(1)...)
	var para [4]byte
	binary.LittleEndian.PutUint32(para[:], paraID)
	out = append(out, para[:]...)
	out = append(out, encodeCompact(uint64(len(head)))...)
	out = append(out, head...)

	out = append(out, encodeCompact(uint64(len(proof)))...)
	for _, node := range proof {
		out = append(out, encodeCompact(uint64(len(node)))...)
		out = append(out, node...)
	}
	return out
}
