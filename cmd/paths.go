package cmd

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func pathsCmd(a *appState) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "paths",
		Aliases: []string{"pth"},
		Short:   "Manage relay path configurations",
	}

	cmd.AddCommand(
		pathsAddCmd(a),
		pathsListCmd(a),
		pathsShowCmd(a),
		pathsDeleteCmd(a),
	)

	return cmd
}

func pathsAddCmd(a *appState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add src_chain_name dst_chain_name path_name",
		Short: "Add a path to the configuration file",
		Args:  withUsage(cobra.ExactArgs(3)),
		Example: strings.TrimSpace(fmt.Sprintf(`
$ %s paths add westend millau westend-to-millau
$ %s paths add rococo wococo rococo-to-wococo --only-mandatory`, appName, appName)),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.loadConfigFile(); err != nil {
				return err
			}
			src, dst, name := args[0], args[1], args[2]
			if _, ok := a.Config.Paths[name]; ok {
				return fmt.Errorf("path %q already exists in config", name)
			}

			p := PathConfig{Src: src, Dst: dst}
			var err error
			if p.OnlyMandatory, err = cmd.Flags().GetBool(flagOnlyMandatory); err != nil {
				return err
			}
			if p.BufferSize, err = cmd.Flags().GetInt(flagBufferSize); err != nil {
				return err
			}
			if p.ParaHeadKey, err = cmd.Flags().GetString(flagParachainHeadKey); err != nil {
				return err
			}
			if p.ParaID, err = cmd.Flags().GetUint32(flagParachainID); err != nil {
				return err
			}
			for flag, field := range map[string]*string{
				flagPollInterval:     &p.PollInterval,
				flagInclusionTimeout: &p.InclusionTimeout,
				flagReconnectBudget:  &p.ReconnectBudget,
			} {
				d, err := cmd.Flags().GetDuration(flag)
				if err != nil {
					return err
				}
				if d > 0 {
					*field = d.String()
				}
			}
			if err := p.validate(); err != nil {
				return fmt.Errorf("path %q: %w", name, err)
			}

			a.Config.Paths[name] = p
			return a.OverwriteConfig(a.Config)
		},
	}
	return pathOptionFlags(a.Viper, cmd)
}

func pathsListCmd(a *appState) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"l"},
		Short:   "Print out configured paths",
		Args:    withUsage(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.loadConfigFile(); err != nil {
				return err
			}
			names := make([]string, 0, len(a.Config.Paths))
			for name := range a.Config.Paths {
				names = append(names, name)
			}
			sort.Strings(names)
			for i, name := range names {
				p := a.Config.Paths[name]
				mode := "all-headers"
				if p.OnlyMandatory {
					mode = "only-mandatory"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%2d: %-24s %s -> %s (%s)\n", i+1, name, p.Src, p.Dst, mode)
			}
			return nil
		},
	}
	return cmd
}

func pathsShowCmd(a *appState) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "show path_name",
		Aliases: []string{"s"},
		Short:   "Show a path's configuration data",
		Args:    withUsage(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.loadConfigFile(); err != nil {
				return err
			}
			p, ok := a.Config.Paths[args[0]]
			if !ok {
				return fmt.Errorf("path %s not found in config", args[0])
			}
			out, err := yaml.Marshal(p)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
	return cmd
}

func pathsDeleteCmd(a *appState) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "delete path_name",
		Aliases: []string{"d"},
		Short:   "Removes path from config based on path name",
		Args:    withUsage(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.loadConfigFile(); err != nil {
				return err
			}
			if _, ok := a.Config.Paths[args[0]]; !ok {
				return fmt.Errorf("path %s not found in config", args[0])
			}
			delete(a.Config.Paths, args[0])
			return a.OverwriteConfig(a.Config)
		},
	}
	return cmd
}
