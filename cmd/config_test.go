package cmd_test

import (
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/parity-bridges/finality-relayer/internal/relayertest"
	"github.com/parity-bridges/finality-relayer/relayer/chains/substrate"
)

func setupRelayer(t *testing.T) *relayertest.System {
	t.Helper()

	sys := relayertest.NewSystem(t)
	_ = sys.MustRun(t, "config", "init")
	return sys
}

func TestConfigInit(t *testing.T) {
	t.Parallel()

	sys := setupRelayer(t)

	tests := []struct {
		setting       string
		wantedPresent bool
	}{
		{
			"metrics-listen-addr: 127.0.0.1:5184",
			true,
		},
		{
			"debug-listen-addr: 127.0.0.1:7597",
			true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.setting, func(t *testing.T) {
			configFile := fmt.Sprintf("%s/config/config.yaml", sys.HomeDir)
			data, err := os.ReadFile(configFile)
			require.NoError(t, err)
			config := string(data)

			require.Contains(t, config, tt.setting)
		})
	}
}

func TestConfigInitTwiceFails(t *testing.T) {
	t.Parallel()

	sys := setupRelayer(t)

	res := sys.Run(zaptest.NewLogger(t), "config", "init")
	require.Error(t, res.Err)
	require.Contains(t, res.Err.Error(), "config already exists")
}

func TestConfigShow(t *testing.T) {
	t.Parallel()

	sys := setupRelayer(t)

	res := sys.MustRun(t, "config", "show")
	require.Contains(t, res.Stdout.String(), "global:")
	require.Contains(t, res.Stdout.String(), "chains: {}")
	require.Contains(t, res.Stdout.String(), "paths: {}")
}

func TestConfigRoundTripsChainAndPath(t *testing.T) {
	t.Parallel()

	sys := setupRelayer(t)

	sys.MustAddChain(t, "westend", substrate.Config{
		ChainName:       "westend",
		Endpoint:        "wss://westend-rpc.example:443",
		Engine:          "grandpa",
		Timeout:         "10s",
		GenesisHash:     "0xe143f23803ac50e8f6f8e62695d1ce9e4e1d68aa36c1cd2cfd15340213f3423e",
		SubmitCallIndex: "0x0701",
	})
	sys.MustAddChain(t, "millau", substrate.Config{
		ChainName:       "millau",
		Endpoint:        "ws://127.0.0.1:9944",
		Engine:          "grandpa",
		SubmitCallIndex: "0x0d00",
	})

	_ = sys.MustRun(t, "paths", "add", "westend", "millau", "westend-to-millau",
		"--only-mandatory",
		"--poll-interval", "12s",
	)

	config := sys.MustGetConfig(t)
	require.Len(t, config.Chains, 2)
	require.Equal(t, "wss://westend-rpc.example:443", config.Chains["westend"].Endpoint)

	require.Len(t, config.Paths, 1)
	p := config.Paths["westend-to-millau"]
	require.Equal(t, "westend", p.Src)
	require.Equal(t, "millau", p.Dst)
	require.True(t, p.OnlyMandatory)
	require.Equal(t, "12s", p.PollInterval)
}
