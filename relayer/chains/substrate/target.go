package substrate

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/parity-bridges/finality-relayer/relayer/finality"
)

const defaultBestFinalizedMethod = "bridge_bestFinalizedSourceHeader"

// Target submits finality proofs to the bridge pallet of the chain
// that tracks the source's finality. It implements
// finality.TargetClient.
type Target struct {
	log        *zap.Logger
	client     *Client
	bestMethod string
	callIndex  [2]byte
}

// NewTarget wraps a connected client. The submit call index must be
// configured to the bridge pallet's submit_finality_proof dispatch.
func NewTarget(log *zap.Logger, client *Client) (*Target, error) {
	callIndex, err := client.cfg.submitCallIndex()
	if err != nil {
		return nil, err
	}
	bestMethod := client.cfg.BestFinalizedMethod
	if bestMethod == "" {
		bestMethod = defaultBestFinalizedMethod
	}
	return &Target{
		log:        log.With(zap.String("chain_name", client.ChainName())),
		client:     client,
		bestMethod: bestMethod,
		callIndex:  callIndex,
	}, nil
}

func (t *Target) Name() string {
	return t.client.ChainName()
}

// BestFinalizedSourceHeader reads the bridge pallet's view of the best
// finalized source header.
func (t *Target) BestFinalizedSourceHeader(ctx context.Context) (finality.HeaderID, error) {
	var best struct {
		Number uint64 `json:"number"`
		Hash   string `json:"hash"`
	}
	if err := t.client.call(ctx, t.bestMethod, nil, &best); err != nil {
		return finality.HeaderID{}, fmt.Errorf("%s: %w", t.bestMethod, err)
	}
	hash, err := finality.HashFromHex(best.Hash)
	if err != nil {
		return finality.HeaderID{}, fmt.Errorf("%s returned malformed hash: %w", t.bestMethod, err)
	}
	return finality.HeaderID{Number: best.Number, Hash: hash}, nil
}

// SubmitFinalityProof encodes and submits the bridge pallet call
// carrying the header and its proof. A node-side rejection of the
// extrinsic maps to finality.ErrProofRejected so the sync loop can
// re-select without backing off.
func (t *Target) SubmitFinalityProof(ctx context.Context, header finality.Header, proof finality.Proof) error {
	h, ok := header.(*Header)
	if !ok {
		return fmt.Errorf("cannot encode header of type %T", header)
	}
	extrinsic := encodeSubmitFinalityProof(t.callIndex, h, proof.Encode())

	var txHash string
	err := t.client.call(ctx, "author_submitExtrinsic", []interface{}{encodeHex(extrinsic)}, &txHash)
	if err != nil {
		var rpcErr *RPCError
		if errors.As(err, &rpcErr) {
			return fmt.Errorf("extrinsic rejected: %v: %w", rpcErr, finality.ErrProofRejected)
		}
		return err
	}
	t.log.Debug("Submitted finality proof extrinsic",
		zap.Uint64("header_number", header.ID().Number),
		zap.String("tx_hash", txHash),
	)
	return nil
}

func (t *Target) Reconnect(ctx context.Context) error {
	return t.client.Reconnect(ctx)
}
