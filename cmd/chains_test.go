package cmd_test

import (
	"encoding/json"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/parity-bridges/finality-relayer/relayer/chains/substrate"
)

func westendConfig() substrate.Config {
	return substrate.Config{
		ChainName:       "westend",
		Endpoint:        "wss://westend-rpc.example:443",
		Engine:          "grandpa",
		SubmitCallIndex: "0x0701",
	}
}

func TestChainsListEmpty(t *testing.T) {
	t.Parallel()

	sys := setupRelayer(t)

	res := sys.MustRun(t, "chains", "list")
	require.Empty(t, res.Stdout.String())
	require.Empty(t, res.Stderr.String())
}

func TestChainsAddAndList(t *testing.T) {
	t.Parallel()

	sys := setupRelayer(t)
	sys.MustAddChain(t, "westend", westendConfig())

	res := sys.MustRun(t, "chains", "list")
	require.Contains(t, res.Stdout.String(), "westend")
	require.Contains(t, res.Stdout.String(), "engine(grandpa)")
}

func TestChainsAddRejectsDuplicate(t *testing.T) {
	t.Parallel()

	sys := setupRelayer(t)
	sys.MustAddChain(t, "westend", westendConfig())

	res := sys.Run(zaptest.NewLogger(t), "chains", "add", "westend", "--file", "/nonexistent")
	require.Error(t, res.Err)
	require.Contains(t, res.Err.Error(), "already exists")
}

func TestChainsAddRejectsInvalidEndpoint(t *testing.T) {
	t.Parallel()

	sys := setupRelayer(t)

	cfg := westendConfig()
	cfg.Endpoint = "https://not-a-websocket.example"

	f, err := os.CreateTemp(t.TempDir(), "chain*.json")
	require.NoError(t, err)
	require.NoError(t, json.NewEncoder(f).Encode(cfg))
	require.NoError(t, f.Close())

	res := sys.Run(zaptest.NewLogger(t), "chains", "add", "broken", "--file", f.Name())
	require.Error(t, res.Err)
	require.Contains(t, res.Err.Error(), "ws:// or wss://")
}

func TestChainsDelete(t *testing.T) {
	t.Parallel()

	sys := setupRelayer(t)
	sys.MustAddChain(t, "westend", westendConfig())

	_ = sys.MustRun(t, "chains", "delete", "westend")

	config := sys.MustGetConfig(t)
	require.Empty(t, config.Chains)

	res := sys.Run(zaptest.NewLogger(t), "chains", "delete", "westend")
	require.Error(t, res.Err)
	require.Contains(t, res.Err.Error(), "not found")
}

func TestChainsDeleteRefusedWhileReferenced(t *testing.T) {
	t.Parallel()

	sys := setupRelayer(t)
	sys.MustAddChain(t, "westend", westendConfig())

	millau := westendConfig()
	millau.ChainName = "millau"
	millau.Endpoint = "ws://127.0.0.1:9944"
	sys.MustAddChain(t, "millau", millau)

	_ = sys.MustRun(t, "paths", "add", "westend", "millau", "westend-to-millau")

	res := sys.Run(zaptest.NewLogger(t), "chains", "delete", "westend")
	require.Error(t, res.Err)
	require.Contains(t, res.Err.Error(), "used by path")

	_ = sys.MustRun(t, "paths", "delete", "westend-to-millau")
	_ = sys.MustRun(t, "chains", "delete", "westend")
}

func TestChainsShow(t *testing.T) {
	t.Parallel()

	sys := setupRelayer(t)
	sys.MustAddChain(t, "westend", westendConfig())

	res := sys.MustRun(t, "chains", "show", "westend", "--json")
	require.Contains(t, res.Stdout.String(), `"chain-name": "westend"`)
}
