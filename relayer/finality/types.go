package finality

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// HashLength is the length of source-chain block hashes in bytes.
const HashLength = 32

// Hash is a source-chain block hash.
type Hash [HashLength]byte

func (h Hash) String() string {
	return "0x" + hex.EncodeToString(h[:])
}

// HashFromHex parses a 0x-prefixed or bare hex string into a Hash.
func HashFromHex(s string) (Hash, error) {
	var h Hash
	s = strings.TrimPrefix(s, "0x")
	b, err := hex.DecodeString(s)
	if err != nil {
		return h, fmt.Errorf("invalid hash hex %q: %w", s, err)
	}
	if len(b) != HashLength {
		return h, fmt.Errorf("invalid hash length %d, expected %d", len(b), HashLength)
	}
	copy(h[:], b)
	return h, nil
}

// HeaderID identifies a source-chain header by number and hash.
// Numbers are totally ordered; the hash pins the exact header at that height.
type HeaderID struct {
	Number uint64
	Hash   Hash
}

func (id HeaderID) String() string {
	return fmt.Sprintf("%d (%s)", id.Number, id.Hash)
}

// Header is a source-chain header as seen by the relay. Implementations
// are provided by the chain-specific client packages.
type Header interface {
	// ID returns the number and hash identifying this header.
	ID() HeaderID

	// ParentHash returns the hash of the parent header.
	ParentHash() Hash

	// DigestLogs returns the raw digest items attached to the header.
	// The finality engine scans these for consensus-relevant events.
	DigestLogs() [][]byte
}

// Proof is opaque evidence that a given source-chain header is finalized.
// The only structure the sync loop relies on is the identity of the
// finalized header; everything else is engine-specific.
type Proof interface {
	// Target returns the header this proof finalizes.
	Target() HeaderID

	// Encode returns the proof in the wire format expected by the
	// target chain's bridge.
	Encode() []byte
}

// Engine abstracts the consensus-specific parts of finality proof
// handling. One implementation exists per consensus engine (GRANDPA,
// etc.), selected when the pipeline is constructed.
type Engine interface {
	// Name returns the engine identifier used in configuration.
	Name() string

	// DecodeProof parses raw bytes received from the source chain into
	// a Proof.
	DecodeProof(data []byte) (Proof, error)

	// Mandatory reports whether the header carries a consensus event,
	// such as an authority-set change, that must be individually
	// relayed. Skipping past a mandatory header breaks the target's
	// ability to validate any later proof.
	Mandatory(header Header) bool

	// CumulativeProofs reports whether a proof for a later header also
	// finalizes every earlier header. True for GRANDPA.
	CumulativeProofs() bool
}
