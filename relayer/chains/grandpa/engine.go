// Package grandpa implements the finality engine for GRANDPA, the
// finality gadget used by Polkadot-family relay chains. GRANDPA
// justifications are cumulative: a justification for block N also
// finalizes every ancestor of N.
package grandpa

import (
	"encoding/binary"
	"fmt"

	"github.com/parity-bridges/finality-relayer/relayer/finality"
)

// EngineName is the identifier used in chain configuration.
const EngineName = "grandpa"

// ConsensusEngineID tags GRANDPA consensus digest items.
const ConsensusEngineID = "FRNK"

// Digest item and consensus-log discriminants from the source chain's
// SCALE encoding.
const (
	digestItemConsensus = 0x04

	logScheduledChange = 0x01
	logForcedChange    = 0x02
)

// Justification layout: round (u64 LE), target hash (32 bytes), target
// number (u32 LE), followed by the precommits, which the relay treats
// as opaque.
const (
	roundLength      = 8
	numberLength     = 4
	minJustification = roundLength + finality.HashLength + numberLength
)

// Justification is a decoded GRANDPA justification. Only the identity
// of the finalized header is interpreted; the full vote set is carried
// opaquely for re-submission.
type Justification struct {
	Round        uint64
	TargetHash   finality.Hash
	TargetNumber uint32

	raw []byte
}

// Target implements finality.Proof.
func (j *Justification) Target() finality.HeaderID {
	return finality.HeaderID{Number: uint64(j.TargetNumber), Hash: j.TargetHash}
}

// Encode implements finality.Proof, returning the original wire bytes.
func (j *Justification) Encode() []byte {
	return j.raw
}

// Engine implements finality.Engine for GRANDPA.
type Engine struct{}

func NewEngine() Engine {
	return Engine{}
}

func (Engine) Name() string {
	return EngineName
}

func (Engine) CumulativeProofs() bool {
	return true
}

// DecodeProof parses a raw GRANDPA justification.
func (Engine) DecodeProof(data []byte) (finality.Proof, error) {
	if len(data) < minJustification {
		return nil, fmt.Errorf("justification too short: %d bytes, need at least %d", len(data), minJustification)
	}
	j := &Justification{
		Round: binary.LittleEndian.Uint64(data[:roundLength]),
		raw:   append([]byte(nil), data...),
	}
	copy(j.TargetHash[:], data[roundLength:roundLength+finality.HashLength])
	j.TargetNumber = binary.LittleEndian.Uint32(data[roundLength+finality.HashLength : minJustification])
	return j, nil
}

// Mandatory reports whether the header schedules a GRANDPA authority
// set change. Such headers must be individually relayed: proofs for
// blocks produced under the new set cannot be validated on the target
// until the new set is installed.
func (Engine) Mandatory(header finality.Header) bool {
	for _, item := range header.DigestLogs() {
		if isAuthoritySetChange(item) {
			return true
		}
	}
	return false
}

// isAuthoritySetChange matches a SCALE-encoded DigestItem::Consensus
// carrying a GRANDPA ScheduledChange or ForcedChange log.
func isAuthoritySetChange(item []byte) bool {
	if len(item) < 6 || item[0] != digestItemConsensus {
		return false
	}
	if string(item[1:5]) != ConsensusEngineID {
		return false
	}
	payload, ok := compactPrefixedBytes(item[5:])
	if !ok || len(payload) == 0 {
		return false
	}
	return payload[0] == logScheduledChange || payload[0] == logForcedChange
}

// compactPrefixedBytes reads a SCALE compact length prefix and returns
// the bytes it covers.
func compactPrefixedBytes(b []byte) ([]byte, bool) {
	length, consumed, ok := decodeCompactLen(b)
	if !ok || len(b) < consumed+length {
		return nil, false
	}
	return b[consumed : consumed+length], true
}

// decodeCompactLen decodes a SCALE compact-encoded unsigned integer.
// Big-integer mode is rejected; digest payloads never need it.
func decodeCompactLen(b []byte) (length, consumed int, ok bool) {
	if len(b) == 0 {
		return 0, 0, false
	}
	switch b[0] & 0x03 {
	case 0:
		return int(b[0] >> 2), 1, true
	case 1:
		if len(b) < 2 {
			return 0, 0, false
		}
		return int(binary.LittleEndian.Uint16(b[:2]) >> 2), 2, true
	case 2:
		if len(b) < 4 {
			return 0, 0, false
		}
		return int(binary.LittleEndian.Uint32(b[:4]) >> 2), 4, true
	default:
		return 0, 0, false
	}
}
