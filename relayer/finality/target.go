package finality

import "context"

// TargetClient is the capability boundary to the chain that receives
// finality proofs.
type TargetClient interface {
	// Name returns the chain name for logging and metrics.
	Name() string

	// BestFinalizedSourceHeader queries the target chain's on-chain
	// bridge state for the last source header it considers finalized.
	// This is the authoritative ground truth the loop synchronizes
	// against; it is re-read every tick rather than cached, to stay
	// consistent with concurrent submitters.
	BestFinalizedSourceHeader(ctx context.Context) (HeaderID, error)

	// SubmitFinalityProof submits a transaction carrying a finality
	// proof for the given header. Returns ErrProofRejected if the
	// target refuses the proof (non-fatal, triggers re-selection) or
	// ErrConnection on transport failure.
	SubmitFinalityProof(ctx context.Context, header Header, proof Proof) error

	// Reconnect recycles the node connection.
	Reconnect(ctx context.Context) error
}
