package cmd

import (
	"encoding/json"
	"fmt"
	"runtime"
	"strings"

	"github.com/spf13/cobra"

	"github.com/parity-bridges/finality-relayer/internal/relaydebug"
)

// Version defines the application version (defined at compile time).
var Version = ""

// Commit defines the application commit hash (defined at compile time).
var Commit = ""

type versionInfo struct {
	Version  string `json:"version" yaml:"version"`
	Commit   string `json:"commit" yaml:"commit"`
	Go       string `json:"go" yaml:"go"`
	Compiler string `json:"compiler" yaml:"compiler"`
	Platform string `json:"platform" yaml:"platform"`
}

// versionCmd represents the version command
func versionCmd(a *appState) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "version",
		Aliases: []string{"v"},
		Short:   "Print the relayer version info",
		Args:    withUsage(cobra.NoArgs),
		Example: strings.TrimSpace(fmt.Sprintf(`
$ %s version
$ %s v`, appName, appName)),
		RunE: func(cmd *cobra.Command, args []string) error {
			commit := Commit
			if commit == "" {
				commit = relaydebug.BuildCommit()
			}

			verInfo := versionInfo{
				Version:  Version,
				Commit:   commit,
				Go:       runtime.Version(),
				Compiler: runtime.Compiler,
				Platform: fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
			}

			jsn, err := cmd.Flags().GetBool(flagJSON)
			if err != nil {
				return err
			}
			if jsn {
				out, err := json.Marshal(verInfo)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(out))
				return nil
			}

			fmt.Fprintf(cmd.OutOrStdout(), "version: %s\n", verInfo.Version)
			fmt.Fprintf(cmd.OutOrStdout(), "commit: %s\n", verInfo.Commit)
			fmt.Fprintf(cmd.OutOrStdout(), "go: %s %s\n", verInfo.Go, verInfo.Platform)
			return nil
		},
	}

	return jsonFlag(a.Viper, cmd)
}
