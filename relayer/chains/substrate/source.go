package substrate

import (
	"context"
	"encoding/json"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/parity-bridges/finality-relayer/relayer/finality"
)

// Finalized headers never change, so the backfill cache needs no
// invalidation, only bounded size.
const headerCacheSize = 512

// Source reads headers and finality proofs from the chain whose
// finality is being relayed. It implements finality.SourceClient.
type Source struct {
	log    *zap.Logger
	client *Client
	engine finality.Engine

	headers *lru.Cache[uint64, finality.Header]
}

// NewSource wraps a connected client and the pipeline's finality
// engine.
func NewSource(log *zap.Logger, client *Client, engine finality.Engine) (*Source, error) {
	headers, err := lru.New[uint64, finality.Header](headerCacheSize)
	if err != nil {
		return nil, err
	}
	return &Source{
		log:     log.With(zap.String("chain_name", client.ChainName())),
		client:  client,
		engine:  engine,
		headers: headers,
	}, nil
}

func (s *Source) Name() string {
	return s.client.ChainName()
}

// SubscribeFinalityProofs opens the node's justification subscription
// and decodes each notification through the engine. The returned
// channel closes when the underlying connection drops.
func (s *Source) SubscribeFinalityProofs(ctx context.Context) (<-chan finality.Proof, error) {
	method := fmt.Sprintf("%s_subscribeJustifications", s.engine.Name())
	subID, raw, err := s.client.subscribe(ctx, method, nil)
	if err != nil {
		return nil, fmt.Errorf("subscribing to %s: %w", method, err)
	}
	s.log.Debug("Subscribed to finality proofs", zap.String("subscription", subID))

	out := make(chan finality.Proof)
	go func() {
		defer close(out)
		defer func() {
			unsubMethod := fmt.Sprintf("%s_unsubscribeJustifications", s.engine.Name())
			if err := s.client.unsubscribe(context.Background(), unsubMethod, subID); err != nil {
				s.log.Debug("Failed to unsubscribe from finality proofs", zap.Error(err))
			}
		}()
		for msg := range raw {
			var hexProof string
			if err := json.Unmarshal(msg, &hexProof); err != nil {
				s.log.Warn("Discarding unparseable justification notification", zap.Error(err))
				continue
			}
			data, err := decodeHexBytes(hexProof)
			if err != nil {
				s.log.Warn("Discarding malformed justification", zap.Error(err))
				continue
			}
			proof, err := s.engine.DecodeProof(data)
			if err != nil {
				s.log.Warn("Discarding undecodable justification", zap.Error(err))
				continue
			}
			select {
			case out <- proof:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Header fetches the finalized header at the given number.
func (s *Source) Header(ctx context.Context, number uint64) (finality.Header, error) {
	if header, ok := s.headers.Get(number); ok {
		return header, nil
	}

	var hashHex string
	if err := s.client.call(ctx, "chain_getBlockHash", []interface{}{number}, &hashHex); err != nil {
		return nil, fmt.Errorf("querying block hash at %d: %w", number, err)
	}
	if hashHex == "" {
		return nil, fmt.Errorf("block %d: %w", number, finality.ErrNotFound)
	}
	hash, err := finality.HashFromHex(hashHex)
	if err != nil {
		return nil, err
	}

	var hj *headerJSON
	if err := s.client.call(ctx, "chain_getHeader", []interface{}{hashHex}, &hj); err != nil {
		return nil, fmt.Errorf("querying header %s: %w", hashHex, err)
	}
	if hj == nil {
		return nil, fmt.Errorf("header %s: %w", hashHex, finality.ErrNotFound)
	}

	header, err := decodeHeader(hash, *hj)
	if err != nil {
		return nil, fmt.Errorf("decoding header %s: %w", hashHex, err)
	}
	s.headers.Add(number, header)
	return header, nil
}

// FinalityProof asks the node to prove finality of the given block for
// catch-up outside the subscription stream.
func (s *Source) FinalityProof(ctx context.Context, number uint64) (finality.Proof, error) {
	method := fmt.Sprintf("%s_proveFinality", s.engine.Name())
	var hexProof string
	if err := s.client.call(ctx, method, []interface{}{number}, &hexProof); err != nil {
		return nil, fmt.Errorf("%s at %d: %w", method, number, err)
	}
	if hexProof == "" {
		return nil, fmt.Errorf("no finality proof for %d yet: %w", number, finality.ErrNotFound)
	}
	data, err := decodeHexBytes(hexProof)
	if err != nil {
		return nil, err
	}
	return s.engine.DecodeProof(data)
}

// ParachainHead reads a parachain head and its storage read proof at a
// finalized relay-chain block. The storage key of the paras heads
// entry is supplied by configuration.
func (s *Source) ParachainHead(ctx context.Context, at finality.Hash, storageKey []byte) (head []byte, proof [][]byte, err error) {
	keyHex := encodeHex(storageKey)

	var headHex string
	if err := s.client.call(ctx, "state_getStorage", []interface{}{keyHex, at.String()}, &headHex); err != nil {
		return nil, nil, fmt.Errorf("querying parachain head at %s: %w", at, err)
	}
	if headHex == "" {
		return nil, nil, fmt.Errorf("parachain head at %s: %w", at, finality.ErrNotFound)
	}
	head, err = decodeHexBytes(headHex)
	if err != nil {
		return nil, nil, err
	}

	var rp struct {
		At    string   `json:"at"`
		Proof []string `json:"proof"`
	}
	if err := s.client.call(ctx, "state_getReadProof", []interface{}{[]string{keyHex}, at.String()}, &rp); err != nil {
		return nil, nil, fmt.Errorf("querying read proof at %s: %w", at, err)
	}
	proof = make([][]byte, 0, len(rp.Proof))
	for _, p := range rp.Proof {
		b, err := decodeHexBytes(p)
		if err != nil {
			return nil, nil, err
		}
		proof = append(proof, b)
	}
	return head, proof, nil
}

func (s *Source) Reconnect(ctx context.Context) error {
	return s.client.Reconnect(ctx)
}
