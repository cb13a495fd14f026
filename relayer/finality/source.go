package finality

import "context"

// SourceClient is the capability boundary to the chain whose finality
// is being relayed. Implementations hold the node connection; they keep
// no relay state of their own.
type SourceClient interface {
	// Name returns the chain name for logging and metrics.
	Name() string

	// SubscribeFinalityProofs opens a finality proof subscription.
	// The stream is a hint, not a ledger: proofs for some headers may
	// never be delivered, and the channel closes when the underlying
	// subscription drops. Returns ErrConnection if the subscription
	// cannot be established.
	SubscribeFinalityProofs(ctx context.Context) (<-chan Proof, error)

	// Header fetches a specific header on demand, used to backfill
	// headers implied but not directly streamed. Returns ErrNotFound
	// if pruned or not yet produced.
	Header(ctx context.Context, number uint64) (Header, error)

	// FinalityProof requests a proof finalizing at least the given
	// number, for catch-up when the subscription stream has nothing
	// usable. Returns ErrNotFound if the source cannot prove it yet.
	FinalityProof(ctx context.Context, number uint64) (Proof, error)

	// Reconnect recycles the node connection.
	Reconnect(ctx context.Context) error
}
