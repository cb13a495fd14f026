package cmd

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/parity-bridges/finality-relayer/internal/relaydebug"
	"github.com/parity-bridges/finality-relayer/internal/relayermetrics"
	"github.com/parity-bridges/finality-relayer/relayer/chains/grandpa"
	"github.com/parity-bridges/finality-relayer/relayer/chains/substrate"
	"github.com/parity-bridges/finality-relayer/relayer/finality"
	"github.com/parity-bridges/finality-relayer/relayer/ondemand"
)

// healthCheckInterval is how often the per-pipeline supervisor inspects
// loop health and recycles connections for degraded pipelines.
const healthCheckInterval = 30 * time.Second

// startCmd represents the start command
func startCmd(a *appState) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "start path_name [path_name...]",
		Aliases: []string{"st"},
		Short:   "Start relaying finality proofs on the given paths",
		Args:    withUsage(cobra.MinimumNArgs(1)),
		Example: strings.TrimSpace(fmt.Sprintf(`
$ %s start westend-to-millau
$ %s start westend-to-millau rococo-to-wococo --enable-metrics-server`, appName, appName)),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.loadConfigFile(); err != nil {
				return err
			}

			metrics := finality.NewPrometheusMetrics()

			pipelines := make([]*pipelineRuntime, 0, len(args))
			for _, pathName := range args {
				p, err := buildPipeline(cmd.Context(), a, pathName, metrics)
				if err != nil {
					return fmt.Errorf("failed to build pipeline for path %q: %w", pathName, err)
				}
				pipelines = append(pipelines, p)
			}

			if err := startMetricsServer(cmd, a, metrics); err != nil {
				return err
			}
			if err := startDebugServer(cmd, a, pipelines); err != nil {
				return err
			}

			eg, egCtx := errgroup.WithContext(cmd.Context())
			for _, p := range pipelines {
				p := p
				eg.Go(func() error {
					return p.loop.Run(egCtx)
				})
				eg.Go(func() error {
					return superviseReconnects(egCtx, a.Log, p)
				})
			}

			// Block until the first pipeline returns an error. The
			// context being canceled will cause the loops to stop, so we
			// don't separately monitor ctx.Done; that would risk
			// returning before the loops clean up.
			if err := eg.Wait(); err != nil && !errors.Is(err, context.Canceled) {
				a.Log.Warn(
					"Relayer start error",
					zap.Error(err),
				)
				return err
			}
			return nil
		},
	}
	return debugServerFlags(a.Viper, metricsServerFlags(a.Viper, cmd))
}

// pipelineRuntime groups one path's sync loop with its on-demand
// facade, which acts as the reconnect handle for supervision.
type pipelineRuntime struct {
	loop  *finality.SyncLoop
	relay *ondemand.Relay
}

// buildPipeline connects both chains of a configured path and wires
// them into a ready-to-run sync loop plus its on-demand relay.
func buildPipeline(ctx context.Context, a *appState, pathName string, metrics *finality.PrometheusMetrics) (*pipelineRuntime, error) {
	p, ok := a.Config.Paths[pathName]
	if !ok {
		return nil, fmt.Errorf("path %s not found in config", pathName)
	}
	srcCfg := a.Config.Chains[p.Src]
	dstCfg := a.Config.Chains[p.Dst]

	engine, err := engineByName(srcCfg.Engine)
	if err != nil {
		return nil, err
	}

	srcClient, err := substrate.NewClient(a.Log, srcCfg)
	if err != nil {
		return nil, err
	}
	if err := srcClient.Connect(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect to source chain %s: %w", p.Src, err)
	}

	dstClient, err := substrate.NewClient(a.Log, dstCfg)
	if err != nil {
		return nil, err
	}
	if err := dstClient.Connect(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect to target chain %s: %w", p.Dst, err)
	}

	source, err := substrate.NewSource(a.Log, srcClient, engine)
	if err != nil {
		return nil, err
	}
	target, err := substrate.NewTarget(a.Log, dstClient)
	if err != nil {
		return nil, err
	}

	loop, err := finality.NewSyncLoop(a.Log, finality.Pipeline{
		Name:             pathName,
		Source:           source,
		Target:           target,
		Engine:           engine,
		PollInterval:     duration(p.PollInterval),
		InclusionTimeout: duration(p.InclusionTimeout),
		BufferSize:       p.BufferSize,
		ReconnectBudget:  duration(p.ReconnectBudget),
		OnlyMandatory:    p.OnlyMandatory,
	}, metrics)
	if err != nil {
		return nil, err
	}

	var builder ondemand.CallBuilder
	if p.ParaHeadKey != "" {
		key, err := hex.DecodeString(strings.TrimPrefix(p.ParaHeadKey, "0x"))
		if err != nil {
			return nil, fmt.Errorf("path %s: invalid para-head-key: %w", pathName, err)
		}
		builder = ondemand.NewParachainHeadBuilder(a.Log, source, key, p.ParaID)
	}

	return &pipelineRuntime{
		loop:  loop,
		relay: ondemand.NewRelay(a.Log, loop, builder, source, target),
	}, nil
}

// superviseReconnects periodically inspects pipeline health and
// recycles both chain connections when the loop reports itself
// degraded. Fatal pipelines are left alone; the loop's own error
// handles those.
func superviseReconnects(ctx context.Context, log *zap.Logger, p *pipelineRuntime) error {
	ticker := time.NewTicker(healthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			h := p.loop.Health()
			if h.Fatal {
				return nil
			}
			if !h.Degraded {
				continue
			}
			log.Info("Pipeline degraded, recycling chain connections",
				zap.String("path_name", p.loop.Name()),
				zap.String("last_error", h.LastError),
			)
			if err := p.relay.Reconnect(ctx); err != nil {
				log.Warn("Failed to recycle chain connections",
					zap.String("path_name", p.loop.Name()),
					zap.Error(err),
				)
			}
		}
	}
}

func engineByName(name string) (finality.Engine, error) {
	switch name {
	case "", grandpa.EngineName:
		return grandpa.NewEngine(), nil
	default:
		return nil, fmt.Errorf("unknown finality engine %q", name)
	}
}

func startMetricsServer(cmd *cobra.Command, a *appState, metrics *finality.PrometheusMetrics) error {
	enabled, err := cmd.Flags().GetBool(flagEnableMetrics)
	if err != nil {
		return err
	}
	if !enabled {
		a.Log.Debug("Skipping metrics server, not enabled")
		return nil
	}

	addr, err := cmd.Flags().GetString(flagMetricsListenAddr)
	if err != nil {
		return err
	}
	if addr == "" {
		addr = a.Config.Global.MetricsListenPort
	}
	if addr == "" {
		a.Log.Info("Skipping metrics server due to empty metrics address flag")
		return nil
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		a.Log.Error("Failed to listen on metrics address. If you have another relayer process open, use --" + flagMetricsListenAddr + " to pick a different address.")
		return fmt.Errorf("failed to listen on metrics address %q: %w", addr, err)
	}
	log := a.Log.With(zap.String("sys", "metricshttp"))
	log.Info("Metrics server listening", zap.String("addr", addr))
	relayermetrics.StartMetricsServer(cmd.Context(), log, ln, metrics.Registry)
	return nil
}

func startDebugServer(cmd *cobra.Command, a *appState, pipelines []*pipelineRuntime) error {
	enabled, err := cmd.Flags().GetBool(flagEnableDebugServer)
	if err != nil {
		return err
	}
	if !enabled {
		a.Log.Debug("Skipping debug server, not enabled")
		return nil
	}

	addr, err := cmd.Flags().GetString(flagDebugListenAddr)
	if err != nil {
		return err
	}
	if addr == "" {
		addr = a.Config.Global.DebugListenPort
	}
	if addr == "" {
		a.Log.Info("Skipping debug server due to empty debug address flag")
		return nil
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		a.Log.Error("Failed to listen on debug address. If you have another relayer process open, use --" + flagDebugListenAddr + " to pick a different address.")
		return fmt.Errorf("failed to listen on debug address %q: %w", addr, err)
	}
	log := a.Log.With(zap.String("sys", "debughttp"))
	log.Info("Debug server listening", zap.String("addr", addr))

	reporters := make([]relaydebug.HealthReporter, len(pipelines))
	for i, p := range pipelines {
		reporters[i] = p.loop
	}
	relaydebug.StartDebugServer(cmd.Context(), log, ln, reporters)
	return nil
}
