// Package ondemand relays finality on request rather than
// continuously: a downstream consumer declares which source header it
// needs provable on the target, then waits until the background sync
// loop has covered it.
package ondemand

import (
	"context"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/parity-bridges/finality-relayer/relayer/finality"
)

// TargetCall is a target-chain dispatch a caller submits itself,
// already encoded for the bridge pallet.
type TargetCall struct {
	Method string
	Args   []byte
}

// CallBuilder derives the target-chain calls a caller needs on top of
// an already-proved source header, e.g. a parachain-heads update
// chained off a relay-chain finality proof.
type CallBuilder interface {
	ProveHeaderCalls(ctx context.Context, at finality.HeaderID) ([]TargetCall, error)
}

// HeaderProver is the sync-loop handle the relay drives. Satisfied by
// *finality.SyncLoop.
type HeaderProver interface {
	Name() string
	RequireHeader(number uint64)
	WaitHeader(ctx context.Context, number uint64) (finality.HeaderID, error)
}

// Reconnector recycles a chain connection. Satisfied by the substrate
// source and target clients.
type Reconnector interface {
	Name() string
	Reconnect(ctx context.Context) error
}

// Relay is the on-demand facade over one finality pipeline.
type Relay struct {
	log     *zap.Logger
	prover  HeaderProver
	builder CallBuilder
	source  Reconnector
	target  Reconnector
}

// NewRelay wires the facade. builder may be nil for headers-only
// pipelines; ProveHeader then returns no extra calls.
func NewRelay(log *zap.Logger, prover HeaderProver, builder CallBuilder, source, target Reconnector) *Relay {
	if builder == nil {
		builder = HeadersOnlyBuilder{}
	}
	return &Relay{
		log:     log.With(zap.String("path_name", prover.Name())),
		prover:  prover,
		builder: builder,
		source:  source,
		target:  target,
	}
}

// RequireMoreHeaders records that the caller needs the given source
// header provable on target. Non-blocking; repeated calls keep only
// the maximum outstanding number.
func (r *Relay) RequireMoreHeaders(number uint64) {
	r.log.Debug("Headers required on target", zap.Uint64("header_number", number))
	r.prover.RequireHeader(number)
}

// ProveHeader blocks until the target's best finalized source header
// reaches number, then returns the header actually proved (>= number
// when proofs are cumulative) and the calls the caller must submit to
// prove anything chained off it. Fails when the pipeline's reconnect
// budget is exhausted or the loop halts.
func (r *Relay) ProveHeader(ctx context.Context, number uint64) (finality.HeaderID, []TargetCall, error) {
	r.prover.RequireHeader(number)
	proved, err := r.prover.WaitHeader(ctx, number)
	if err != nil {
		return finality.HeaderID{}, nil, err
	}
	calls, err := r.builder.ProveHeaderCalls(ctx, proved)
	if err != nil {
		return finality.HeaderID{}, nil, err
	}
	r.log.Debug("Header proved on target",
		zap.Uint64("requested_number", number),
		zap.Uint64("proved_number", proved.Number),
		zap.Int("calls", len(calls)),
	)
	return proved, calls, nil
}

// Reconnect recycles both chain connections. Both sides are attempted
// even if the first fails.
func (r *Relay) Reconnect(ctx context.Context) error {
	return multierr.Append(r.source.Reconnect(ctx), r.target.Reconnect(ctx))
}

// HeadersOnlyBuilder is the no-op strategy for pipelines where the
// finality proof alone is what callers need.
type HeadersOnlyBuilder struct{}

func (HeadersOnlyBuilder) ProveHeaderCalls(context.Context, finality.HeaderID) ([]TargetCall, error) {
	return nil, nil
}
