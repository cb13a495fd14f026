package substrate

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/parity-bridges/finality-relayer/relayer/finality"
)

const sampleHeaderJSON = `{
  "parentHash": "0x1111111111111111111111111111111111111111111111111111111111111111",
  "number": "0x1a2b",
  "stateRoot": "0x2222222222222222222222222222222222222222222222222222222222222222",
  "extrinsicsRoot": "0x3333333333333333333333333333333333333333333333333333333333333333",
  "digest": {
    "logs": [
      "0x0642414245aa",
      "0x04465248cc"
    ]
  }
}`

func TestDecodeHeader(t *testing.T) {
	t.Parallel()

	var hj headerJSON
	require.NoError(t, json.Unmarshal([]byte(sampleHeaderJSON), &hj))

	hash, err := finality.HashFromHex("0x4444444444444444444444444444444444444444444444444444444444444444")
	require.NoError(t, err)

	h, err := decodeHeader(hash, hj)
	require.NoError(t, err)

	require.Equal(t, finality.HeaderID{Number: 0x1a2b, Hash: hash}, h.ID())
	require.Equal(t, "0x1111111111111111111111111111111111111111111111111111111111111111", h.ParentHash().String())
	require.Len(t, h.DigestLogs(), 2)
	require.Equal(t, byte(0x06), h.DigestLogs()[0][0])
}

func TestDecodeHeaderRejectsMalformedFields(t *testing.T) {
	t.Parallel()

	var hj headerJSON
	require.NoError(t, json.Unmarshal([]byte(sampleHeaderJSON), &hj))

	bad := hj
	bad.Number = "0xzz"
	_, err := decodeHeader(finality.Hash{}, bad)
	require.Error(t, err)

	bad = hj
	bad.ParentHash = "0x1234"
	_, err = decodeHeader(finality.Hash{}, bad)
	require.Error(t, err)

	bad = hj
	bad.Digest.Logs = []string{"not-hex"}
	_, err = decodeHeader(finality.Hash{}, bad)
	require.Error(t, err)
}

func TestParseHexUint64(t *testing.T) {
	t.Parallel()

	n, err := parseHexUint64("0x0")
	require.NoError(t, err)
	require.Zero(t, n)

	n, err = parseHexUint64("0xff")
	require.NoError(t, err)
	require.Equal(t, uint64(255), n)

	_, err = parseHexUint64("")
	require.Error(t, err)

	_, err = parseHexUint64("0x")
	require.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	valid := Config{
		ChainName: "westend",
		Endpoint:  "wss://westend-rpc.example:443",
		Engine:    "grandpa",
	}
	require.NoError(t, valid.Validate())

	bad := valid
	bad.Endpoint = "https://westend-rpc.example"
	require.Error(t, bad.Validate(), "only websocket endpoints are supported")

	bad = valid
	bad.ChainName = ""
	require.Error(t, bad.Validate())

	bad = valid
	bad.Timeout = "not-a-duration"
	require.Error(t, bad.Validate())
}

func TestSubmitCallIndex(t *testing.T) {
	t.Parallel()

	cfg := Config{ChainName: "millau", SubmitCallIndex: "0x0701"}
	idx, err := cfg.submitCallIndex()
	require.NoError(t, err)
	require.Equal(t, [2]byte{0x07, 0x01}, idx)

	cfg.SubmitCallIndex = ""
	_, err = cfg.submitCallIndex()
	require.Error(t, err)

	cfg.SubmitCallIndex = "0x070102"
	_, err = cfg.submitCallIndex()
	require.Error(t, err)
}
