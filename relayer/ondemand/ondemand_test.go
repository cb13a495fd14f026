package ondemand_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/parity-bridges/finality-relayer/relayer/finality"
	"github.com/parity-bridges/finality-relayer/relayer/ondemand"
)

// stubProver satisfies immediately at a fixed proved number and records
// every required number.
type stubProver struct {
	mu       sync.Mutex
	required []uint64
	proved   finality.HeaderID
	waitErr  error
}

func (p *stubProver) Name() string { return "testpath" }

func (p *stubProver) RequireHeader(number uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.required = append(p.required, number)
}

func (p *stubProver) WaitHeader(ctx context.Context, number uint64) (finality.HeaderID, error) {
	if p.waitErr != nil {
		return finality.HeaderID{}, p.waitErr
	}
	return p.proved, nil
}

type stubReconnector struct {
	name string
	err  error
	n    int
}

func (r *stubReconnector) Name() string { return r.name }

func (r *stubReconnector) Reconnect(ctx context.Context) error {
	r.n++
	return r.err
}

type stubBuilder struct {
	calls []ondemand.TargetCall
	at    finality.HeaderID
	err   error
}

func (b *stubBuilder) ProveHeaderCalls(ctx context.Context, at finality.HeaderID) ([]ondemand.TargetCall, error) {
	b.at = at
	return b.calls, b.err
}

func headerID(number uint64) finality.HeaderID {
	return finality.HeaderID{Number: number}
}

func TestProveHeaderReturnsProvedNumberAndCalls(t *testing.T) {
	t.Parallel()

	prover := &stubProver{proved: headerID(35)}
	builder := &stubBuilder{calls: []ondemand.TargetCall{{Method: "submit_parachain_heads", Args: []byte{1}}}}
	relay := ondemand.NewRelay(zaptest.NewLogger(t), prover, builder, &stubReconnector{name: "src"}, &stubReconnector{name: "dst"})

	proved, calls, err := relay.ProveHeader(context.Background(), 30)
	require.NoError(t, err)
	require.Equal(t, uint64(35), proved.Number, "cumulative proofs may prove past the request")
	require.Equal(t, builder.calls, calls)
	require.Equal(t, proved, builder.at, "builder sees the header actually proved")
	require.Equal(t, []uint64{30}, prover.required)
}

func TestProveHeaderSurfacesWaitFailure(t *testing.T) {
	t.Parallel()

	prover := &stubProver{waitErr: finality.ErrConnection}
	relay := ondemand.NewRelay(zaptest.NewLogger(t), prover, nil, &stubReconnector{name: "src"}, &stubReconnector{name: "dst"})

	_, _, err := relay.ProveHeader(context.Background(), 30)
	require.ErrorIs(t, err, finality.ErrConnection)
}

func TestProveHeaderSurfacesBuilderFailure(t *testing.T) {
	t.Parallel()

	wantErr := errors.New("storage proof unavailable")
	prover := &stubProver{proved: headerID(30)}
	relay := ondemand.NewRelay(zaptest.NewLogger(t), prover, &stubBuilder{err: wantErr}, &stubReconnector{name: "src"}, &stubReconnector{name: "dst"})

	_, _, err := relay.ProveHeader(context.Background(), 30)
	require.ErrorIs(t, err, wantErr)
}

func TestHeadersOnlyPipelineReturnsNoCalls(t *testing.T) {
	t.Parallel()

	prover := &stubProver{proved: headerID(30)}
	relay := ondemand.NewRelay(zaptest.NewLogger(t), prover, nil, &stubReconnector{name: "src"}, &stubReconnector{name: "dst"})

	_, calls, err := relay.ProveHeader(context.Background(), 30)
	require.NoError(t, err)
	require.Empty(t, calls)
}

func TestRequireMoreHeadersIsNonBlocking(t *testing.T) {
	t.Parallel()

	prover := &stubProver{}
	relay := ondemand.NewRelay(zaptest.NewLogger(t), prover, nil, &stubReconnector{name: "src"}, &stubReconnector{name: "dst"})

	relay.RequireMoreHeaders(10)
	relay.RequireMoreHeaders(30)
	relay.RequireMoreHeaders(20)

	require.Equal(t, []uint64{10, 30, 20}, prover.required)
}

func TestReconnectRecyclesBothSides(t *testing.T) {
	t.Parallel()

	src := &stubReconnector{name: "src", err: errors.New("src dial failed")}
	dst := &stubReconnector{name: "dst"}
	relay := ondemand.NewRelay(zaptest.NewLogger(t), &stubProver{}, nil, src, dst)

	err := relay.Reconnect(context.Background())
	require.Error(t, err)
	require.Equal(t, 1, src.n)
	require.Equal(t, 1, dst.n, "target is recycled even when source fails")
}
