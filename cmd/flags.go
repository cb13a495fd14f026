package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	flagHome               = "home"
	flagDebug              = "debug"
	flagLogFormat          = "log-format"
	flagFile               = "file"
	flagJSON               = "json"
	flagYAML               = "yaml"
	flagEnableMetrics      = "enable-metrics-server"
	flagEnableDebugServer  = "enable-debug-server"
	flagMetricsListenAddr  = "metrics-listen-addr"
	flagDebugListenAddr    = "debug-listen-addr"
	flagOnlyMandatory      = "only-mandatory"
	flagPollInterval       = "poll-interval"
	flagInclusionTimeout   = "inclusion-timeout"
	flagBufferSize         = "buffer-size"
	flagReconnectBudget    = "reconnect-budget"
	flagParachainHeadKey   = "para-head-key"
	flagParachainID        = "para-id"
	defaultMetricsAddr     = "127.0.0.1:5184"
	defaultDebugListenAddr = "127.0.0.1:7597"
)

func fileFlag(v *viper.Viper, cmd *cobra.Command) *cobra.Command {
	cmd.Flags().StringP(flagFile, "f", "", "fetch json data from specified file")
	if err := v.BindPFlag(flagFile, cmd.Flags().Lookup(flagFile)); err != nil {
		panic(err)
	}
	return cmd
}

func jsonFlag(v *viper.Viper, cmd *cobra.Command) *cobra.Command {
	cmd.Flags().BoolP(flagJSON, "j", false, "returns the response in json format")
	if err := v.BindPFlag(flagJSON, cmd.Flags().Lookup(flagJSON)); err != nil {
		panic(err)
	}
	return cmd
}

func yamlFlag(v *viper.Viper, cmd *cobra.Command) *cobra.Command {
	cmd.Flags().BoolP(flagYAML, "y", false, "returns the response in yaml format")
	if err := v.BindPFlag(flagYAML, cmd.Flags().Lookup(flagYAML)); err != nil {
		panic(err)
	}
	return cmd
}

func metricsServerFlags(v *viper.Viper, cmd *cobra.Command) *cobra.Command {
	cmd.Flags().Bool(flagEnableMetrics, false, "enables the prometheus metrics server")
	cmd.Flags().String(flagMetricsListenAddr, "", "address to use for the prometheus metrics server")
	if err := v.BindPFlag(flagEnableMetrics, cmd.Flags().Lookup(flagEnableMetrics)); err != nil {
		panic(err)
	}
	if err := v.BindPFlag(flagMetricsListenAddr, cmd.Flags().Lookup(flagMetricsListenAddr)); err != nil {
		panic(err)
	}
	return cmd
}

func debugServerFlags(v *viper.Viper, cmd *cobra.Command) *cobra.Command {
	cmd.Flags().Bool(flagEnableDebugServer, false, "enables the debug/pprof/health server")
	cmd.Flags().String(flagDebugListenAddr, "", "address to use for the debug server")
	if err := v.BindPFlag(flagEnableDebugServer, cmd.Flags().Lookup(flagEnableDebugServer)); err != nil {
		panic(err)
	}
	if err := v.BindPFlag(flagDebugListenAddr, cmd.Flags().Lookup(flagDebugListenAddr)); err != nil {
		panic(err)
	}
	return cmd
}

func pathOptionFlags(v *viper.Viper, cmd *cobra.Command) *cobra.Command {
	cmd.Flags().Bool(flagOnlyMandatory, false, "relay only mandatory (authority-set-change) headers")
	cmd.Flags().Duration(flagPollInterval, 0, "interval between target best-finalized polls")
	cmd.Flags().Duration(flagInclusionTimeout, 0, "how long to wait for a submitted proof before re-selecting")
	cmd.Flags().Int(flagBufferSize, 0, "proof buffer capacity")
	cmd.Flags().Duration(flagReconnectBudget, 0, "total backoff budget before a pipeline reports itself unhealthy")
	cmd.Flags().String(flagParachainHeadKey, "", "storage key of the paras heads entry to relay on demand")
	cmd.Flags().Uint32(flagParachainID, 0, "parachain id whose head is relayed on demand")
	for _, f := range []string{
		flagOnlyMandatory, flagPollInterval, flagInclusionTimeout,
		flagBufferSize, flagReconnectBudget, flagParachainHeadKey, flagParachainID,
	} {
		if err := v.BindPFlag(f, cmd.Flags().Lookup(f)); err != nil {
			panic(err)
		}
	}
	return cmd
}

// withUsage wraps a PositionalArgs to display usage only when the PositionalArgs
// variant is violated.
func withUsage(inner cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := inner(cmd, args); err != nil {
			cmd.Root().SilenceUsage = false
			cmd.SilenceUsage = false
			return err
		}

		return nil
	}
}
