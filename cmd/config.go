package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/parity-bridges/finality-relayer/relayer/chains/substrate"
)

// Config is the on-disk configuration: global server settings, chain
// connections keyed by name, and relay paths keyed by name.
type Config struct {
	Global GlobalConfig                `json:"global" yaml:"global"`
	Chains map[string]substrate.Config `json:"chains" yaml:"chains"`
	Paths  map[string]PathConfig       `json:"paths" yaml:"paths"`
}

// GlobalConfig describes any global relayer settings.
type GlobalConfig struct {
	MetricsListenPort string `json:"metrics-listen-addr" yaml:"metrics-listen-addr"`
	DebugListenPort   string `json:"debug-listen-addr" yaml:"debug-listen-addr"`
	Timeout           string `json:"timeout" yaml:"timeout"`
}

// PathConfig describes one source-to-target relay pipeline.
type PathConfig struct {
	Src string `json:"src" yaml:"src"`
	Dst string `json:"dst" yaml:"dst"`

	PollInterval     string `json:"poll-interval,omitempty" yaml:"poll-interval,omitempty"`
	InclusionTimeout string `json:"inclusion-timeout,omitempty" yaml:"inclusion-timeout,omitempty"`
	BufferSize       int    `json:"buffer-size,omitempty" yaml:"buffer-size,omitempty"`
	ReconnectBudget  string `json:"reconnect-budget,omitempty" yaml:"reconnect-budget,omitempty"`
	OnlyMandatory    bool   `json:"only-mandatory,omitempty" yaml:"only-mandatory,omitempty"`

	// Optional on-demand parachain head relay riding on this pipeline.
	ParaHeadKey string `json:"para-head-key,omitempty" yaml:"para-head-key,omitempty"`
	ParaID      uint32 `json:"para-id,omitempty" yaml:"para-id,omitempty"`
}

func (p PathConfig) validate() error {
	if p.Src == "" || p.Dst == "" {
		return errors.New("both src and dst chain names must be set")
	}
	if p.Src == p.Dst {
		return fmt.Errorf("src and dst must differ, both are %q", p.Src)
	}
	for flag, value := range map[string]string{
		"poll-interval":     p.PollInterval,
		"inclusion-timeout": p.InclusionTimeout,
		"reconnect-budget":  p.ReconnectBudget,
	} {
		if value == "" {
			continue
		}
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid %s: %w", flag, err)
		}
	}
	if p.ParaHeadKey != "" && !strings.HasPrefix(p.ParaHeadKey, "0x") {
		return fmt.Errorf("para-head-key must be a 0x-prefixed hex storage key, got %q", p.ParaHeadKey)
	}
	return nil
}

// duration returns an already validated duration string, or zero when
// unset so the pipeline default applies.
func duration(s string) time.Duration {
	if s == "" {
		return 0
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0
	}
	return d
}

func defaultConfig() *Config {
	return &Config{
		Global: GlobalConfig{
			MetricsListenPort: defaultMetricsAddr,
			DebugListenPort:   defaultDebugListenAddr,
			Timeout:           "10s",
		},
		Chains: map[string]substrate.Config{},
		Paths:  map[string]PathConfig{},
	}
}

func (c *Config) validate() error {
	for name, chain := range c.Chains {
		if err := chain.Validate(); err != nil {
			return fmt.Errorf("chain %s: %w", name, err)
		}
	}
	for name, p := range c.Paths {
		if err := p.validate(); err != nil {
			return fmt.Errorf("path %s: %w", name, err)
		}
		if _, ok := c.Chains[p.Src]; !ok {
			return fmt.Errorf("path %s: src chain %q is not configured", name, p.Src)
		}
		if _, ok := c.Chains[p.Dst]; !ok {
			return fmt.Errorf("path %s: dst chain %q is not configured", name, p.Dst)
		}
	}
	return nil
}

func configCmd(a *appState) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "config",
		Aliases: []string{"cfg"},
		Short:   "Manage configuration file",
	}

	cmd.AddCommand(
		configShowCmd(a),
		configInitCmd(a),
	)

	return cmd
}

// configShowCmd returns the configuration file in json or yaml format.
func configShowCmd(a *appState) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "show",
		Aliases: []string{"s", "list", "l"},
		Short:   "Prints current configuration",
		Args:    withUsage(cobra.NoArgs),
		Example: strings.TrimSpace(fmt.Sprintf(`
$ %s config show --home %s
$ %s cfg list`, appName, defaultHome, appName)),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.loadConfigFile(); err != nil {
				return err
			}

			jsn, err := cmd.Flags().GetBool(flagJSON)
			if err != nil {
				return err
			}
			if jsn {
				out, err := json.MarshalIndent(a.Config, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(out))
				return nil
			}
			out, err := yaml.Marshal(a.Config)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}

	return yamlFlag(a.Viper, jsonFlag(a.Viper, cmd))
}

// configInitCmd returns the commands that initializes an empty config at the --home location.
func configInitCmd(a *appState) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "init",
		Aliases: []string{"i"},
		Short:   "Creates a default home directory at path defined by --home",
		Args:    withUsage(cobra.NoArgs),
		Example: strings.TrimSpace(fmt.Sprintf(`
$ %s config init --home %s
$ %s cfg i`, appName, defaultHome, appName)),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgDir := path.Join(a.HomePath, "config")
			cfgPath := path.Join(cfgDir, "config.yaml")

			if _, err := os.Stat(cfgPath); err == nil {
				return fmt.Errorf("config already exists: %s", cfgPath)
			}

			if err := os.MkdirAll(cfgDir, 0755); err != nil {
				return err
			}

			f, err := os.Create(cfgPath)
			if err != nil {
				return err
			}
			defer f.Close()

			out, err := yaml.Marshal(defaultConfig())
			if err != nil {
				return err
			}
			if _, err = f.Write(out); err != nil {
				return err
			}
			return nil
		},
	}
	return cmd
}
