package substrate

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/parity-bridges/finality-relayer/relayer/finality"
)

// Header is a source-chain header decoded from the node's JSON-RPC
// representation. It retains enough structure to be re-encoded in
// SCALE for inclusion in a bridge call.
type Header struct {
	hash           finality.Hash
	parentHash     finality.Hash
	stateRoot      finality.Hash
	extrinsicsRoot finality.Hash
	number         uint64
	digestLogs     [][]byte
}

func (h *Header) ID() finality.HeaderID {
	return finality.HeaderID{Number: h.number, Hash: h.hash}
}

func (h *Header) ParentHash() finality.Hash {
	return h.parentHash
}

func (h *Header) DigestLogs() [][]byte {
	return h.digestLogs
}

// headerJSON mirrors the chain_getHeader response shape.
type headerJSON struct {
	ParentHash     string `json:"parentHash"`
	Number         string `json:"number"`
	StateRoot      string `json:"stateRoot"`
	ExtrinsicsRoot string `json:"extrinsicsRoot"`
	Digest         struct {
		Logs []string `json:"logs"`
	} `json:"digest"`
}

func decodeHeader(hash finality.Hash, hj headerJSON) (*Header, error) {
	parentHash, err := finality.HashFromHex(hj.ParentHash)
	if err != nil {
		return nil, fmt.Errorf("parent hash: %w", err)
	}
	stateRoot, err := finality.HashFromHex(hj.StateRoot)
	if err != nil {
		return nil, fmt.Errorf("state root: %w", err)
	}
	extrinsicsRoot, err := finality.HashFromHex(hj.ExtrinsicsRoot)
	if err != nil {
		return nil, fmt.Errorf("extrinsics root: %w", err)
	}
	number, err := parseHexUint64(hj.Number)
	if err != nil {
		return nil, fmt.Errorf("number: %w", err)
	}

	logs := make([][]byte, 0, len(hj.Digest.Logs))
	for i, l := range hj.Digest.Logs {
		b, err := decodeHexBytes(l)
		if err != nil {
			return nil, fmt.Errorf("digest log %d: %w", i, err)
		}
		logs = append(logs, b)
	}

	return &Header{
		hash:           hash,
		parentHash:     parentHash,
		stateRoot:      stateRoot,
		extrinsicsRoot: extrinsicsRoot,
		number:         number,
		digestLogs:     logs,
	}, nil
}

func parseHexUint64(s string) (uint64, error) {
	s = strings.TrimPrefix(s, "0x")
	if s == "" {
		return 0, fmt.Errorf("empty hex number")
	}
	n, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid hex number %q: %w", s, err)
	}
	return n, nil
}

func decodeHexBytes(s string) ([]byte, error) {
	s = strings.TrimPrefix(s, "0x")
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex %q: %w", s, err)
	}
	return b, nil
}

func encodeHex(b []byte) string {
	return "0x" + hex.EncodeToString(b)
}
