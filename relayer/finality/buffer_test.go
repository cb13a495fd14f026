package finality_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/parity-bridges/finality-relayer/relayer/finality"
)

type testProof struct {
	id finality.HeaderID
}

func (p testProof) Target() finality.HeaderID { return p.id }

func (p testProof) Encode() []byte { return []byte{byte(p.id.Number)} }

type testHeader struct {
	id        finality.HeaderID
	mandatory bool
}

func (h testHeader) ID() finality.HeaderID { return h.id }

func (h testHeader) ParentHash() finality.Hash { return testHash(h.id.Number - 1) }

func (h testHeader) DigestLogs() [][]byte {
	if h.mandatory {
		return [][]byte{{0xff}}
	}
	return nil
}

func testHash(number uint64) finality.Hash {
	var h finality.Hash
	copy(h[:], fmt.Sprintf("header-%d", number))
	return h
}

func testID(number uint64) finality.HeaderID {
	return finality.HeaderID{Number: number, Hash: testHash(number)}
}

func candidate(number uint64, mandatory bool) finality.Candidate {
	id := testID(number)
	return finality.Candidate{
		Header:    testHeader{id: id, mandatory: mandatory},
		Proof:     testProof{id: id},
		Mandatory: mandatory,
	}
}

func TestProofBufferSelectCumulative(t *testing.T) {
	t.Parallel()

	b := finality.NewProofBuffer(16, true)
	b.Put(candidate(10, false))
	b.Put(candidate(15, false))
	b.Put(candidate(20, false))

	// The highest candidate subsumes the rest.
	c, ok := b.Select(5, false)
	require.True(t, ok)
	require.Equal(t, uint64(20), c.Proof.Target().Number)
}

func TestProofBufferSelectNonCumulative(t *testing.T) {
	t.Parallel()

	b := finality.NewProofBuffer(16, false)
	b.Put(candidate(10, false))
	b.Put(candidate(15, false))
	b.Put(candidate(20, false))

	c, ok := b.Select(5, false)
	require.True(t, ok)
	require.Equal(t, uint64(10), c.Proof.Target().Number)
}

func TestProofBufferMandatoryFirst(t *testing.T) {
	t.Parallel()

	b := finality.NewProofBuffer(16, true)
	b.Put(candidate(10, false))
	b.Put(candidate(15, true))
	b.Put(candidate(18, true))
	b.Put(candidate(20, false))

	// Lowest mandatory wins over everything, including a higher
	// cumulative candidate.
	c, ok := b.Select(5, false)
	require.True(t, ok)
	require.Equal(t, uint64(15), c.Proof.Target().Number)
	require.True(t, c.Mandatory)
}

func TestProofBufferOnlyMandatory(t *testing.T) {
	t.Parallel()

	b := finality.NewProofBuffer(16, true)
	b.Put(candidate(10, false))
	b.Put(candidate(20, false))

	_, ok := b.Select(5, true)
	require.False(t, ok)

	b.Put(candidate(15, true))
	c, ok := b.Select(5, true)
	require.True(t, ok)
	require.Equal(t, uint64(15), c.Proof.Target().Number)
}

func TestProofBufferPrunesStale(t *testing.T) {
	t.Parallel()

	b := finality.NewProofBuffer(16, true)
	b.Put(candidate(10, false))
	b.Put(candidate(15, true))
	b.Put(candidate(20, false))

	// Everything at or below best is already known to the target,
	// mandatory or not.
	_, ok := b.Select(20, false)
	require.False(t, ok)
	require.Zero(t, b.Len())
}

func TestProofBufferEvictsLowestNonMandatory(t *testing.T) {
	t.Parallel()

	b := finality.NewProofBuffer(3, true)
	b.Put(candidate(10, true))
	b.Put(candidate(11, false))
	b.Put(candidate(12, false))
	b.Put(candidate(13, false))

	require.Equal(t, 3, b.Len())

	// 11 was evicted; the mandatory 10 survives a full buffer.
	c, ok := b.Select(5, false)
	require.True(t, ok)
	require.Equal(t, uint64(10), c.Proof.Target().Number)

	b.Drop(10)
	c, ok = b.Select(5, false)
	require.True(t, ok)
	require.Equal(t, uint64(13), c.Proof.Target().Number)
}

func TestProofBufferGrowsPastCapacityForMandatory(t *testing.T) {
	t.Parallel()

	b := finality.NewProofBuffer(2, true)
	b.Put(candidate(10, true))
	b.Put(candidate(11, true))
	b.Put(candidate(12, true))

	require.Equal(t, 3, b.Len())
}
