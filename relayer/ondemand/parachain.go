package ondemand

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/parity-bridges/finality-relayer/relayer/chains/substrate"
	"github.com/parity-bridges/finality-relayer/relayer/finality"
)

// ParaHeadSource reads parachain heads from the relay chain. Satisfied
// by *substrate.Source.
type ParaHeadSource interface {
	ParachainHead(ctx context.Context, at finality.Hash, storageKey []byte) (head []byte, proof [][]byte, err error)
}

// ParachainHeadBuilder derives the submit-parachain-heads call chained
// off a proved relay-chain block: the head stored at the configured
// paras storage key plus its storage read proof.
type ParachainHeadBuilder struct {
	log        *zap.Logger
	source     ParaHeadSource
	storageKey []byte
	paraID     uint32
}

func NewParachainHeadBuilder(log *zap.Logger, source ParaHeadSource, storageKey []byte, paraID uint32) *ParachainHeadBuilder {
	return &ParachainHeadBuilder{
		log:        log.With(zap.Uint32("para_id", paraID)),
		source:     source,
		storageKey: storageKey,
		paraID:     paraID,
	}
}

func (b *ParachainHeadBuilder) ProveHeaderCalls(ctx context.Context, at finality.HeaderID) ([]TargetCall, error) {
	head, proof, err := b.source.ParachainHead(ctx, at.Hash, b.storageKey)
	if err != nil {
		return nil, fmt.Errorf("proving parachain %d head at %s: %w", b.paraID, at, err)
	}
	b.log.Debug("Proved parachain head",
		zap.Uint64("relay_number", at.Number),
		zap.Int("head_len", len(head)),
		zap.Int("proof_nodes", len(proof)),
	)
	return []TargetCall{{
		Method: "submit_parachain_heads",
		Args:   substrate.EncodeParachainHeadsCall(at, b.paraID, head, proof),
	}}, nil
}
