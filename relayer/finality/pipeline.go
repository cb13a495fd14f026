package finality

import (
	"errors"
	"time"
)

const (
	// Default interval between best-finalized polls on the target.
	defaultPollInterval = 6 * time.Second

	// Default time to wait for a submitted proof to show up in the
	// target's bridge state before re-selecting.
	defaultInclusionTimeout = 2 * time.Minute

	// Default capacity of the proof candidate buffer.
	defaultBufferSize = 64

	// Default total backoff budget for reconnect attempts before the
	// pipeline reports itself unhealthy. The loop keeps retrying past
	// this point; only its health status and pending waiters give up.
	defaultReconnectBudget = 5 * time.Minute
)

// Pipeline statically describes one (source, target) relay direction:
// the chain clients, the consensus engine, and the loop tuning knobs.
type Pipeline struct {
	// Name identifies the pipeline in logs and metrics,
	// e.g. "westend-to-millau".
	Name string

	Source SourceClient
	Target TargetClient
	Engine Engine

	// PollInterval is the delay between best-finalized checks on the
	// target chain.
	PollInterval time.Duration

	// InclusionTimeout bounds how long a submitted proof may stay
	// unconfirmed before the loop re-selects.
	InclusionTimeout time.Duration

	// BufferSize caps the number of buffered proof candidates.
	BufferSize int

	// ReconnectBudget bounds the total exponential backoff spent on a
	// single reconnect sequence before the pipeline is reported
	// unhealthy and pending on-demand waiters are failed.
	ReconnectBudget time.Duration

	// OnlyMandatory restricts the pipeline to relaying mandatory
	// headers, minimizing target-chain costs for pipelines that exist
	// purely to keep the bridge able to validate future proofs.
	OnlyMandatory bool
}

// Validate checks the descriptor and fills in defaults.
func (p *Pipeline) Validate() error {
	if p.Name == "" {
		return errors.New("pipeline name must be set")
	}
	if p.Source == nil {
		return errors.New("pipeline source client must be set")
	}
	if p.Target == nil {
		return errors.New("pipeline target client must be set")
	}
	if p.Engine == nil {
		return errors.New("pipeline finality engine must be set")
	}
	if p.PollInterval <= 0 {
		p.PollInterval = defaultPollInterval
	}
	if p.InclusionTimeout <= 0 {
		p.InclusionTimeout = defaultInclusionTimeout
	}
	if p.BufferSize <= 0 {
		p.BufferSize = defaultBufferSize
	}
	if p.ReconnectBudget <= 0 {
		p.ReconnectBudget = defaultReconnectBudget
	}
	return nil
}
