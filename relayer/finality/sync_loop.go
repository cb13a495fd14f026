package finality

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/cenkalti/backoff/v4"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const (
	// Timeout for a single best-finalized query on the target.
	bestQueryTimeout = 10 * time.Second

	// Timeout for a single header backfill query on the source.
	headerQueryTimeout = 10 * time.Second

	// Bounded per-tick retries before a query failure is treated as a
	// connection problem and handed to the reconnect path.
	queryRetries = 3

	// Delay between per-tick query retry attempts.
	queryRetryDelay = time.Second
)

// loopState tracks where the engine is in its submission cycle. The
// states enforce that at most one submission is ever in flight.
type loopState int

const (
	stateIdle loopState = iota
	stateProofSelected
	stateSubmitting
	stateAwaitingInclusion
	stateHalted
)

func (s loopState) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateProofSelected:
		return "proof_selected"
	case stateSubmitting:
		return "submitting"
	case stateAwaitingInclusion:
		return "awaiting_inclusion"
	case stateHalted:
		return "halted"
	default:
		return "unknown"
	}
}

// Health is a point-in-time snapshot of loop health, served by the
// debug server's health endpoint.
type Health struct {
	State      string `json:"state"`
	BestSource uint64 `json:"best_source"`
	BestTarget uint64 `json:"best_target"`
	Degraded   bool   `json:"degraded"`
	Fatal      bool   `json:"fatal"`
	LastError  string `json:"last_error,omitempty"`
}

type waitResult struct {
	id  HeaderID
	err error
}

type waiter struct {
	number uint64
	ch     chan waitResult
}

// SyncLoop is the engine relaying finality proofs for one pipeline. It
// owns all mutable sync state exclusively; on-demand consumers hold a
// handle to query and drive it but never mutate it directly.
//
// The loop keeps no persistent state. After a restart the ground-truth
// re-read of the target's best finalized header re-establishes a
// correct view, so cancellation at any await point is safe.
type SyncLoop struct {
	log     *zap.Logger
	metrics *PrometheusMetrics

	pipeline Pipeline
	buffer   *ProofBuffer

	// Touched only from Run's goroutine.
	state       loopState
	selected    *Candidate
	submittedAt time.Time

	// Shared with on-demand consumers.
	mu         sync.Mutex
	stateView  loopState
	bestSource uint64
	bestTarget HeaderID
	bestKnown  bool
	required   uint64
	waiters    []waiter
	degraded   bool
	lastErr    error

	done     chan struct{}
	doneOnce sync.Once
}

// NewSyncLoop validates the pipeline descriptor and returns a loop
// ready to Run. metrics may be nil to disable metric updates.
func NewSyncLoop(log *zap.Logger, pipeline Pipeline, metrics *PrometheusMetrics) (*SyncLoop, error) {
	if err := pipeline.Validate(); err != nil {
		return nil, err
	}
	return &SyncLoop{
		log: log.With(
			zap.String("pipeline", pipeline.Name),
			zap.String("source", pipeline.Source.Name()),
			zap.String("target", pipeline.Target.Name()),
		),
		metrics:  metrics,
		pipeline: pipeline,
		buffer:   NewProofBuffer(pipeline.BufferSize, pipeline.Engine.CumulativeProofs()),
		done:     make(chan struct{}),
	}, nil
}

// Name returns the pipeline name.
func (l *SyncLoop) Name() string {
	return l.pipeline.Name
}

// BestFinalizedOnTarget returns the last best finalized source header
// observed on the target, and whether one has been observed yet.
func (l *SyncLoop) BestFinalizedOnTarget() (HeaderID, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.bestTarget, l.bestKnown
}

// RequireHeader raises the outstanding header number a downstream
// consumer needs provable on the target. Non-blocking; multiple calls
// keep only the maximum, so repeated or lower requests are no-ops.
func (l *SyncLoop) RequireHeader(number uint64) {
	l.mu.Lock()
	if number > l.required {
		l.required = number
	}
	l.mu.Unlock()
}

// WaitHeader blocks until the target's best finalized source header
// reaches number, ctx ends, the loop's reconnect budget is exhausted,
// or the loop halts. It does not raise the required number itself;
// callers pair it with RequireHeader.
func (l *SyncLoop) WaitHeader(ctx context.Context, number uint64) (HeaderID, error) {
	l.mu.Lock()
	if l.bestKnown && l.bestTarget.Number >= number {
		best := l.bestTarget
		l.mu.Unlock()
		return best, nil
	}
	w := waiter{number: number, ch: make(chan waitResult, 1)}
	l.waiters = append(l.waiters, w)
	l.mu.Unlock()

	select {
	case <-ctx.Done():
		return HeaderID{}, ctx.Err()
	case <-l.done:
		select {
		case res := <-w.ch:
			if res.err != nil {
				return HeaderID{}, res.err
			}
			return res.id, nil
		default:
			return HeaderID{}, ErrHalted
		}
	case res := <-w.ch:
		if res.err != nil {
			return HeaderID{}, res.err
		}
		return res.id, nil
	}
}

// Health returns a snapshot for health reporting.
func (l *SyncLoop) Health() Health {
	l.mu.Lock()
	defer l.mu.Unlock()
	h := Health{
		State:      l.stateView.String(),
		BestSource: l.bestSource,
		BestTarget: l.bestTarget.Number,
		Degraded:   l.degraded,
		Fatal:      l.stateView == stateHalted,
	}
	if l.lastErr != nil {
		h.LastError = l.lastErr.Error()
	}
	return h
}

// Run executes the sync loop until ctx is canceled or a fatal
// invariant violation is detected. Transient connection failures are
// absorbed with exponential backoff; the loop itself never gives up on
// them, though its health status and pending waiters do once the
// reconnect budget is spent.
func (l *SyncLoop) Run(ctx context.Context) error {
	defer l.finish()

	proofs, err := l.subscribeWithBackoff(ctx)
	if err != nil {
		return err
	}

	ticker := time.NewTicker(l.pipeline.PollInterval)
	defer ticker.Stop()

	l.log.Info("Entering finality sync loop",
		zap.Duration("poll_interval", l.pipeline.PollInterval),
		zap.Bool("only_mandatory", l.pipeline.OnlyMandatory),
	)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case proof, ok := <-proofs:
			if !ok {
				l.log.Warn("Finality proof subscription dropped, resubscribing")
				proofs, err = l.resubscribe(ctx)
				if err != nil {
					return err
				}
				continue
			}
			l.ingest(ctx, proof)

		case <-ticker.C:
			err := l.tick(ctx)
			switch {
			case err == nil:
				l.setDegraded(false, nil)

			case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
				return ctx.Err()

			default:
				var inv *InvariantError
				if errors.As(err, &inv) {
					l.setState(stateHalted)
					l.setDegraded(true, err)
					l.log.Error("Best finalized header regressed on target, halting sync loop",
						zap.Uint64("previous_best", inv.Previous.Number),
						zap.Uint64("observed_best", inv.Observed.Number),
					)
					return err
				}

				l.log.Warn("Transient failure in sync tick", zap.Error(err))
				if rerr := l.reconnectWithBackoff(ctx); rerr != nil {
					if ctx.Err() != nil {
						return ctx.Err()
					}
					l.setDegraded(true, rerr)
					l.failWaiters(fmt.Errorf("reconnect budget exhausted: %w", ErrConnection))
					l.log.Error("Reconnect budget exhausted, pipeline unhealthy", zap.Error(rerr))
				}
			}
		}
	}
}

func (l *SyncLoop) finish() {
	l.doneOnce.Do(func() { close(l.done) })
	l.failWaiters(ErrHalted)
}

func (l *SyncLoop) setState(s loopState) {
	l.state = s
	l.mu.Lock()
	l.stateView = s
	l.mu.Unlock()
}

func (l *SyncLoop) setDegraded(degraded bool, err error) {
	l.mu.Lock()
	l.degraded = degraded
	if err != nil {
		l.lastErr = err
	}
	l.mu.Unlock()
}

func (l *SyncLoop) requiredHeader() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.required
}

// ingest backfills the header for a streamed proof, asks the engine
// whether it is mandatory, and buffers the candidate.
func (l *SyncLoop) ingest(ctx context.Context, proof Proof) {
	target := proof.Target()

	header, err := l.headerWithRetry(ctx, target.Number)
	if err != nil {
		// The stream is a hint, not a ledger; skip what cannot be
		// backfilled and rely on later proofs or on-demand catch-up.
		l.log.Warn("Failed to backfill header for streamed proof",
			zap.Uint64("number", target.Number),
			zap.Error(err),
		)
		return
	}
	if header.ID().Hash != target.Hash {
		l.log.Warn("Streamed proof does not match canonical header, skipping",
			zap.Uint64("number", target.Number),
			zap.String("proof_hash", target.Hash.String()),
			zap.String("header_hash", header.ID().Hash.String()),
		)
		return
	}

	mandatory := l.pipeline.Engine.Mandatory(header)
	l.buffer.Put(Candidate{Header: header, Proof: proof, Mandatory: mandatory})

	l.mu.Lock()
	if target.Number > l.bestSource {
		l.bestSource = target.Number
	}
	bestSource := l.bestSource
	l.mu.Unlock()
	if l.metrics != nil {
		l.metrics.SetBestSourceBlock(l.pipeline.Name, bestSource)
	}

	if mandatory {
		if l.metrics != nil {
			l.metrics.IncMandatoryHeadersSeen(l.pipeline.Name)
		}
		l.log.Info("Observed mandatory header", zap.Uint64("number", target.Number))
	}
	l.log.Debug("Buffered finality proof candidate",
		zap.Uint64("number", target.Number),
		zap.Bool("mandatory", mandatory),
		zap.Int("buffered", l.buffer.Len()),
	)
}

// tick runs one poll cycle: re-read ground truth, check the
// monotonicity invariant, settle any in-flight submission, then select
// and submit the next candidate.
func (l *SyncLoop) tick(ctx context.Context) error {
	best, err := l.bestWithRetry(ctx)
	if err != nil {
		if l.metrics != nil {
			l.metrics.IncConnectionErrors(l.pipeline.Name, l.pipeline.Target.Name())
		}
		return fmt.Errorf("querying best finalized header on target: %w", err)
	}

	if prev, known := l.BestFinalizedOnTarget(); known && best.Number < prev.Number {
		return &InvariantError{Previous: prev, Observed: best}
	}
	l.setBestTarget(best)

	l.buffer.Prune(best.Number)

	if l.state == stateAwaitingInclusion {
		switch {
		case best.Number >= l.selected.Proof.Target().Number:
			l.log.Info("Finality proof confirmed on target",
				zap.Uint64("submitted", l.selected.Proof.Target().Number),
				zap.Uint64("best_target", best.Number),
			)
			l.selected = nil
			l.setState(stateIdle)
		case time.Since(l.submittedAt) > l.pipeline.InclusionTimeout:
			l.log.Warn("Submitted proof not included before timeout, re-selecting",
				zap.Uint64("submitted", l.selected.Proof.Target().Number),
			)
			l.selected = nil
			l.setState(stateIdle)
		default:
			return nil
		}
	}

	if l.state == stateIdle {
		cand, ok := l.buffer.Select(best.Number, l.pipeline.OnlyMandatory)
		if !ok {
			if req := l.requiredHeader(); req > best.Number {
				if err := l.catchUp(ctx, req); err != nil {
					l.log.Debug("On-demand proof catch-up failed",
						zap.Uint64("required", req),
						zap.Error(err),
					)
					if errors.Is(err, ErrConnection) {
						return err
					}
				}
				cand, ok = l.buffer.Select(best.Number, l.pipeline.OnlyMandatory)
			}
		}
		if !ok {
			return nil
		}
		l.selected = &cand
		l.setState(stateProofSelected)
		l.log.Debug("Selected finality proof candidate",
			zap.Uint64("number", cand.Proof.Target().Number),
			zap.Bool("mandatory", cand.Mandatory),
		)
	}

	if l.state != stateProofSelected {
		return nil
	}

	cand := *l.selected
	l.setState(stateSubmitting)
	err = l.pipeline.Target.SubmitFinalityProof(ctx, cand.Header, cand.Proof)
	switch {
	case err == nil:
		l.submittedAt = time.Now()
		l.setState(stateAwaitingInclusion)
		if l.metrics != nil {
			l.metrics.IncSubmittedProofs(l.pipeline.Name, cand.Mandatory)
		}
		l.log.Info("Submitted finality proof",
			zap.Uint64("number", cand.Proof.Target().Number),
			zap.Bool("mandatory", cand.Mandatory),
		)
		return nil

	case errors.Is(err, ErrProofRejected):
		// Superseded or invalid: drop it and re-select next tick,
		// without backoff.
		if l.metrics != nil {
			l.metrics.IncRejectedProofs(l.pipeline.Name)
		}
		l.log.Warn("Target rejected finality proof, re-selecting",
			zap.Uint64("number", cand.Proof.Target().Number),
			zap.Error(err),
		)
		l.buffer.Drop(cand.Proof.Target().Number)
		l.selected = nil
		l.setState(stateIdle)
		return nil

	default:
		// Transport failure: keep the candidate so nothing is lost
		// across transient errors.
		l.setState(stateProofSelected)
		if l.metrics != nil {
			l.metrics.IncConnectionErrors(l.pipeline.Name, l.pipeline.Target.Name())
		}
		return fmt.Errorf("submitting finality proof for %s: %w", cand.Proof.Target(), err)
	}
}

// catchUp requests a proof reaching number directly from the source,
// for when the subscription stream has nothing a consumer needs.
func (l *SyncLoop) catchUp(ctx context.Context, number uint64) error {
	proof, err := l.pipeline.Source.FinalityProof(ctx, number)
	if err != nil {
		return err
	}
	l.ingest(ctx, proof)
	return nil
}

// setBestTarget records the new ground truth and wakes any waiters it
// satisfies.
func (l *SyncLoop) setBestTarget(best HeaderID) {
	l.mu.Lock()
	l.bestTarget = best
	l.bestKnown = true
	var woken []waiter
	remaining := l.waiters[:0]
	for _, w := range l.waiters {
		if best.Number >= w.number {
			woken = append(woken, w)
		} else {
			remaining = append(remaining, w)
		}
	}
	l.waiters = remaining
	l.mu.Unlock()

	for _, w := range woken {
		w.ch <- waitResult{id: best}
	}
	if l.metrics != nil {
		l.metrics.SetBestTargetBlock(l.pipeline.Name, best.Number)
	}
}

func (l *SyncLoop) failWaiters(err error) {
	l.mu.Lock()
	waiters := l.waiters
	l.waiters = nil
	l.mu.Unlock()
	for _, w := range waiters {
		w.ch <- waitResult{err: err}
	}
}

func (l *SyncLoop) bestWithRetry(ctx context.Context) (best HeaderID, err error) {
	return best, retry.Do(func() error {
		queryCtx, cancel := context.WithTimeout(ctx, bestQueryTimeout)
		defer cancel()
		best, err = l.pipeline.Target.BestFinalizedSourceHeader(queryCtx)
		return err
	}, retry.Context(ctx), retry.Attempts(queryRetries), retry.Delay(queryRetryDelay), retry.LastErrorOnly(true), retry.OnRetry(func(n uint, err error) {
		l.log.Info("Failed to query best finalized header on target",
			zap.Uint("attempt", n+1),
			zap.Uint("max_attempts", queryRetries),
			zap.Error(err),
		)
	}))
}

func (l *SyncLoop) headerWithRetry(ctx context.Context, number uint64) (header Header, err error) {
	return header, retry.Do(func() error {
		queryCtx, cancel := context.WithTimeout(ctx, headerQueryTimeout)
		defer cancel()
		header, err = l.pipeline.Source.Header(queryCtx, number)
		return err
	}, retry.Context(ctx), retry.Attempts(queryRetries), retry.Delay(queryRetryDelay), retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			// Pruned or unproduced headers are permanent for this request.
			return !errors.Is(err, ErrNotFound)
		}))
}

// subscribeWithBackoff establishes the proof subscription, retrying
// forever with exponential backoff. Only context cancellation stops it.
func (l *SyncLoop) subscribeWithBackoff(ctx context.Context) (<-chan Proof, error) {
	var proofs <-chan Proof
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 0
	err := backoff.Retry(func() error {
		var err error
		proofs, err = l.pipeline.Source.SubscribeFinalityProofs(ctx)
		if err != nil {
			if l.metrics != nil {
				l.metrics.IncConnectionErrors(l.pipeline.Name, l.pipeline.Source.Name())
			}
			l.log.Warn("Failed to subscribe to finality proofs, backing off", zap.Error(err))
		}
		return err
	}, backoff.WithContext(bo, ctx))
	if err != nil {
		return nil, err
	}
	return proofs, nil
}

func (l *SyncLoop) resubscribe(ctx context.Context) (<-chan Proof, error) {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 0
	err := backoff.Retry(func() error {
		return l.pipeline.Source.Reconnect(ctx)
	}, backoff.WithContext(bo, ctx))
	if err != nil {
		return nil, err
	}
	return l.subscribeWithBackoff(ctx)
}

// reconnectWithBackoff recycles both chain connections, bounded by the
// pipeline's reconnect budget.
func (l *SyncLoop) reconnectWithBackoff(ctx context.Context) error {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = l.pipeline.ReconnectBudget
	attempt := 0
	return backoff.Retry(func() error {
		attempt++
		err := multierr.Append(
			l.pipeline.Source.Reconnect(ctx),
			l.pipeline.Target.Reconnect(ctx),
		)
		if err != nil {
			l.log.Warn("Reconnect attempt failed",
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
		}
		return err
	}, backoff.WithContext(bo, ctx))
}
