// Package executor consumes trade candidates from the signal generator,
// sizes them against the current regime permissions and account state, and
// opens approved positions through the trade manager.
package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/knoxfield/regimebot/internal/domain"
	"github.com/knoxfield/regimebot/internal/risk"
)

// candidateMaxAge drops candidates that sat in the channel too long; the
// market has moved on and the entry price is no longer honest.
const candidateMaxAge = 2 * time.Minute

// RegimeSource supplies the current regime snapshot.
type RegimeSource interface {
	Current() domain.RegimeOutput
}

// PositionOpener opens approved positions and reports account state. It is
// implemented by the trade manager.
type PositionOpener interface {
	Open(ctx context.Context, c domain.TradeCandidate, d domain.SizingDecision) (domain.Position, error)
	Account() domain.AccountState
	OpenPositions() []domain.Position
}

// Executor reads candidates from a channel, applies deduplication and
// staleness checks, sizes them, and opens positions. The last evaluated
// candidate and its decision are kept for the query surface.
type Executor struct {
	candidates <-chan domain.TradeCandidate
	regime     RegimeSource
	sizer      *risk.Sizer
	manager    PositionOpener
	bus        domain.EventBus // may be nil
	dedup      *Dedup
	logger     *slog.Logger

	cleanupInterval time.Duration

	mu         sync.RWMutex
	lastRecord domain.CandidateRecord
	hasRecord  bool
}

// NewExecutor creates an Executor that reads candidates from candidates and
// opens positions via manager.
func NewExecutor(
	candidates <-chan domain.TradeCandidate,
	regime RegimeSource,
	sizer *risk.Sizer,
	manager PositionOpener,
	bus domain.EventBus,
	logger *slog.Logger,
) *Executor {
	return &Executor{
		candidates:      candidates,
		regime:          regime,
		sizer:           sizer,
		manager:         manager,
		bus:             bus,
		dedup:           NewDedup(15 * time.Minute),
		logger:          logger.With(slog.String("component", "executor")),
		cleanupInterval: 30 * time.Second,
	}
}

// Run starts the executor's main loop. It processes candidates until the
// context is cancelled, at which point it drains any remaining candidates
// in the channel and returns.
func (e *Executor) Run(ctx context.Context) error {
	e.logger.Info("executor started")
	defer e.logger.Info("executor stopped")

	cleanupTicker := time.NewTicker(e.cleanupInterval)
	defer cleanupTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.drain()
			return ctx.Err()

		case c, ok := <-e.candidates:
			if !ok {
				// Channel closed; shut down.
				return nil
			}
			e.process(ctx, c)

		case <-cleanupTicker.C:
			e.dedup.Cleanup()
		}
	}
}

// LastRecord returns the most recently evaluated candidate with its sizing
// decision. ok is false until the first candidate arrives.
func (e *Executor) LastRecord() (domain.CandidateRecord, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastRecord, e.hasRecord
}

// process handles a single candidate through the full sizing and execution
// pipeline.
func (e *Executor) process(ctx context.Context, c domain.TradeCandidate) {
	log := e.logger.With(
		slog.String("candidate_id", c.ID),
		slog.String("symbol", c.Symbol),
		slog.String("direction", string(c.Direction)),
		slog.Float64("confidence", c.Confidence),
	)

	// 1. Deduplication on the setup fingerprint: the generator re-emits a
	// live setup every cycle.
	if e.dedup.IsDuplicate(fingerprint(c)) {
		log.Debug("candidate deduplicated, skipping")
		return
	}

	// 2. Staleness check.
	if age := time.Since(c.CreatedAt); age > candidateMaxAge {
		log.Warn("candidate stale, skipping", slog.Duration("age", age))
		return
	}

	// 3. Size against the current regime and account.
	regime := e.regime.Current()
	account := e.manager.Account()
	decision := e.sizer.Evaluate(c, regime.Permissions, account)

	if !decision.Approved {
		log.Info("candidate rejected",
			slog.String("reason", decision.RejectReason),
		)
		e.record(c, decision, "rejected")
		e.publish(ctx, "candidate_rejected", c, decision)
		return
	}

	// 4. Open the position.
	if _, err := e.manager.Open(ctx, c, decision); err != nil {
		log.Error("position open failed",
			slog.String("error", err.Error()),
		)
		e.record(c, decision, "error")
		return
	}

	log.Info("position opened",
		slog.Float64("size", decision.Size),
		slog.Float64("risk_amount", decision.RiskAmount),
	)
	e.record(c, decision, "opened")
	e.publish(ctx, "candidate_opened", c, decision)
}

// record keeps the last candidate/decision pair for the query surface.
func (e *Executor) record(c domain.TradeCandidate, d domain.SizingDecision, outcome string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastRecord = domain.CandidateRecord{
		Candidate: c,
		Decision:  d,
		Outcome:   outcome,
		Timestamp: time.Now().UTC(),
	}
	e.hasRecord = true
}

// publish emits a candidate event on the bus. Publishing is best-effort.
func (e *Executor) publish(ctx context.Context, event string, c domain.TradeCandidate, d domain.SizingDecision) {
	if e.bus == nil {
		return
	}

	payload, err := json.Marshal(map[string]any{
		"event":      event,
		"candidate":  c,
		"decision":   d,
		"emitted_at": time.Now().UTC(),
	})
	if err != nil {
		return
	}
	if err := e.bus.Publish(ctx, "events", payload); err != nil {
		e.logger.Debug("event publish failed", slog.String("error", err.Error()))
	}
}

// drain processes any candidates already buffered in the channel after
// context cancellation so in-flight setups are not silently dropped.
func (e *Executor) drain() {
	for {
		select {
		case c, ok := <-e.candidates:
			if !ok {
				return
			}
			e.logger.Warn("draining candidate after shutdown",
				slog.String("candidate_id", c.ID),
			)
			// Short-lived context so shutdown cannot hang on external calls.
			drainCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			e.process(drainCtx, c)
			cancel()
		default:
			return
		}
	}
}

// SetDedupTTL replaces the dedup instance with a new one using the given
// TTL. Must be called before Run.
func (e *Executor) SetDedupTTL(ttl time.Duration) {
	e.dedup = NewDedup(ttl)
}

// SetCleanupInterval changes how often the dedup map is garbage-collected.
// Must be called before Run.
func (e *Executor) SetCleanupInterval(d time.Duration) {
	e.cleanupInterval = d
}

// fingerprint identifies a setup independent of the candidate ID: same
// symbol, direction, and invalidation level means the same trade.
func fingerprint(c domain.TradeCandidate) string {
	return fmt.Sprintf("%s:%s:%.4f", c.Symbol, c.Direction, c.StopPrice)
}
