package finality

// Candidate pairs a finality proof with the header it finalizes and
// the engine's verdict on whether that header is mandatory.
type Candidate struct {
	Header    Header
	Proof     Proof
	Mandatory bool
}

// ProofBuffer holds recent finality proof candidates keyed by the
// number they finalize. It is not safe for concurrent use; the sync
// loop owns it exclusively.
type ProofBuffer struct {
	capacity   int
	cumulative bool
	candidates map[uint64]Candidate
}

// NewProofBuffer returns a buffer holding at most capacity candidates.
// cumulative selects the subsumption rule: when true, a proof for a
// later header also finalizes every earlier one.
func NewProofBuffer(capacity int, cumulative bool) *ProofBuffer {
	return &ProofBuffer{
		capacity:   capacity,
		cumulative: cumulative,
		candidates: make(map[uint64]Candidate),
	}
}

// Len returns the number of buffered candidates.
func (b *ProofBuffer) Len() int {
	return len(b.candidates)
}

// Put stores a candidate, replacing any existing candidate for the same
// number. When full, the lowest-numbered non-mandatory candidate is
// evicted; mandatory candidates are never evicted because dropping one
// would let the loop skip past it.
func (b *ProofBuffer) Put(c Candidate) {
	number := c.Proof.Target().Number
	if _, exists := b.candidates[number]; !exists && len(b.candidates) >= b.capacity {
		b.evict()
	}
	b.candidates[number] = c
}

func (b *ProofBuffer) evict() {
	var (
		lowest uint64
		found  bool
	)
	for number, c := range b.candidates {
		if c.Mandatory {
			continue
		}
		if !found || number < lowest {
			lowest = number
			found = true
		}
	}
	// All candidates mandatory: let the buffer grow past capacity.
	// Mandatory headers are rare (one per authority-set change).
	if found {
		delete(b.candidates, lowest)
	}
}

// Prune discards every candidate finalizing a number at or below best,
// which the target chain already knows about.
func (b *ProofBuffer) Prune(best uint64) {
	for number := range b.candidates {
		if number <= best {
			delete(b.candidates, number)
		}
	}
}

// Drop removes the candidate for the given number, used after the
// target rejects its proof.
func (b *ProofBuffer) Drop(number uint64) {
	delete(b.candidates, number)
}

// Select prunes against best and picks the next candidate to submit:
//
//   - mandatory candidates always win, lowest number first, since a
//     proof past an unrelayed authority-set change cannot be validated;
//   - otherwise, with cumulative proofs the highest candidate subsumes
//     the rest, so it is chosen;
//   - otherwise the smallest number above best is chosen, bounding the
//     catch-up gap covered by a single submission.
//
// When onlyMandatory is set, non-mandatory candidates are never
// selected (they still serve as catch-up fodder once pruned).
func (b *ProofBuffer) Select(best uint64, onlyMandatory bool) (Candidate, bool) {
	b.Prune(best)

	var (
		selected  Candidate
		haveMand  bool
		havePlain bool
	)
	for number, c := range b.candidates {
		if c.Mandatory {
			if !haveMand || number < selected.Proof.Target().Number {
				selected = c
				haveMand = true
			}
			continue
		}
		if haveMand || onlyMandatory {
			continue
		}
		if !havePlain {
			selected = c
			havePlain = true
			continue
		}
		current := selected.Proof.Target().Number
		if b.cumulative && number > current {
			selected = c
		} else if !b.cumulative && number < current {
			selected = c
		}
	}
	return selected, haveMand || havePlain
}
