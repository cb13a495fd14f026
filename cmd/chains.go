package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/parity-bridges/finality-relayer/relayer/chains/substrate"
)

func chainsCmd(a *appState) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "chains",
		Aliases: []string{"ch"},
		Short:   "Manage chain configurations",
	}

	cmd.AddCommand(
		chainsAddCmd(a),
		chainsListCmd(a),
		chainsShowCmd(a),
		chainsDeleteCmd(a),
	)

	return cmd
}

func chainsAddCmd(a *appState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add chain_name",
		Short: "Add a new chain to the configuration file from a json file",
		Args:  withUsage(cobra.ExactArgs(1)),
		Example: strings.TrimSpace(fmt.Sprintf(`
$ %s chains add westend --file westend.json`, appName)),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.loadConfigFile(); err != nil {
				return err
			}
			name := args[0]
			if _, ok := a.Config.Chains[name]; ok {
				return fmt.Errorf("chain %q already exists in config", name)
			}

			file, err := cmd.Flags().GetString(flagFile)
			if err != nil {
				return err
			}
			if file == "" {
				return fmt.Errorf("--%s is required", flagFile)
			}

			byt, err := os.ReadFile(file)
			if err != nil {
				return err
			}
			var chain substrate.Config
			if err := json.Unmarshal(byt, &chain); err != nil {
				return fmt.Errorf("failed to unmarshal chain file %s: %w", file, err)
			}
			if chain.ChainName == "" {
				chain.ChainName = name
			}
			if err := chain.Validate(); err != nil {
				return fmt.Errorf("chain %q: %w", name, err)
			}

			a.Config.Chains[name] = chain
			return a.OverwriteConfig(a.Config)
		},
	}
	return fileFlag(a.Viper, cmd)
}

func chainsListCmd(a *appState) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"l"},
		Short:   "Returns chain configuration data",
		Args:    withUsage(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.loadConfigFile(); err != nil {
				return err
			}
			names := make([]string, 0, len(a.Config.Chains))
			for name := range a.Config.Chains {
				names = append(names, name)
			}
			sort.Strings(names)
			for i, name := range names {
				chain := a.Config.Chains[name]
				fmt.Fprintf(cmd.OutOrStdout(), "%2d: %-20s -> engine(%s) endpoint(%s)\n",
					i+1, name, chain.Engine, chain.Endpoint)
			}
			return nil
		},
	}
	return cmd
}

func chainsShowCmd(a *appState) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "show chain_name",
		Aliases: []string{"s"},
		Short:   "Returns a chain's configuration data",
		Args:    withUsage(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.loadConfigFile(); err != nil {
				return err
			}
			chain, ok := a.Config.Chains[args[0]]
			if !ok {
				return fmt.Errorf("chain %s not found in config", args[0])
			}
			jsn, err := cmd.Flags().GetBool(flagJSON)
			if err != nil {
				return err
			}
			if jsn {
				out, err := json.MarshalIndent(chain, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(out))
				return nil
			}
			out, err := yaml.Marshal(chain)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
	return jsonFlag(a.Viper, cmd)
}

func chainsDeleteCmd(a *appState) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "delete chain_name",
		Aliases: []string{"d"},
		Short:   "Removes chain from config based on chain name",
		Args:    withUsage(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.loadConfigFile(); err != nil {
				return err
			}
			name := args[0]
			if _, ok := a.Config.Chains[name]; !ok {
				return fmt.Errorf("chain %s not found in config", name)
			}
			for pathName, p := range a.Config.Paths {
				if p.Src == name || p.Dst == name {
					return fmt.Errorf("chain %s is used by path %s, delete the path first", name, pathName)
				}
			}
			delete(a.Config.Chains, name)
			return a.OverwriteConfig(a.Config)
		},
	}
	return cmd
}
