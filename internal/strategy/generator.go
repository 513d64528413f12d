// Package strategy holds the signal generator: the periodic evaluation that
// turns regime permissions plus price-action context into trade candidates
// for the executor.
package strategy

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/knoxfield/regimebot/internal/domain"
)

// RegimeSource supplies the current regime snapshot.
type RegimeSource interface {
	Current() domain.RegimeOutput
}

// StructureSource supplies the structural trend and the most recent
// break-of-structure / change-of-character event.
type StructureSource interface {
	Trend() domain.StructureTrend
	LastEvent() (*domain.StructureEvent, time.Time)
}

// LiquiditySource supplies tracked liquidity levels and the most recent
// sweep.
type LiquiditySource interface {
	NearestAbove(price float64) (domain.LiquidityLevel, bool)
	NearestBelow(price float64) (domain.LiquidityLevel, bool)
	LastSweep() (*domain.LiquiditySweep, time.Time)
}

// OrderFlowSource supplies the signed buy/sell imbalance in [-1, 1].
type OrderFlowSource interface {
	Imbalance() float64
}

// CapitalFlowSource supplies the dominance-rotation read.
type CapitalFlowSource interface {
	Flow(now time.Time) domain.CapitalFlow
}

// PriceSource supplies the last traded price for the symbol.
type PriceSource interface {
	LastPrice(symbol string) (float64, time.Time, bool)
}

// Config holds the generator tuning.
type Config struct {
	Symbol            string
	Interval          time.Duration // evaluation cadence
	MinConfidence     float64       // emission threshold
	TriggerMaxAge     time.Duration // how recent a structural trigger must be
	PriceMaxAge       time.Duration // last price staleness window
	StopBufferPercent float64       // stop placed this far beyond the invalidation level
	OrderFlowVeto     float64       // opposing imbalance beyond this vetoes the candidate
	FallbackTargetR   float64       // target in R when no opposing liquidity level exists
	ProximityMaxPct   float64       // anchor distance (% of entry) where proximity confidence hits zero
}

// DefaultConfig returns the production tuning for one symbol.
func DefaultConfig(symbol string) Config {
	return Config{
		Symbol:            symbol,
		Interval:          30 * time.Second,
		MinConfidence:     0.50,
		TriggerMaxAge:     15 * time.Minute,
		PriceMaxAge:       time.Minute,
		StopBufferPercent: 0.1,
		OrderFlowVeto:     0.3,
		FallbackTargetR:   2.0,
		ProximityMaxPct:   1.0,
	}
}

// Confidence weights. Trigger quality and regime conviction dominate;
// stop-anchor proximity, order flow and capital rotation adjust at the
// margin.
const (
	wTrigger     = 0.30
	wRegime      = 0.25
	wOrderFlow   = 0.20
	wProximity   = 0.15
	wCapitalFlow = 0.10
)

// Generator evaluates the gating chain on a fixed cadence and emits
// candidates to the executor channel. One instance per symbol.
type Generator struct {
	cfg       Config
	regime    RegimeSource
	structure StructureSource
	liquidity LiquiditySource
	orderflow OrderFlowSource
	flow      CapitalFlowSource
	prices    PriceSource
	out       chan<- domain.TradeCandidate
	logger    *slog.Logger

	mu     sync.Mutex
	recent []domain.TradeCandidate
}

// NewGenerator wires a generator from its data sources. out is consumed by
// the executor.
func NewGenerator(
	cfg Config,
	regime RegimeSource,
	structure StructureSource,
	liquidity LiquiditySource,
	orderflow OrderFlowSource,
	flow CapitalFlowSource,
	prices PriceSource,
	out chan<- domain.TradeCandidate,
	logger *slog.Logger,
) *Generator {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.ProximityMaxPct <= 0 {
		cfg.ProximityMaxPct = 1.0
	}
	return &Generator{
		cfg:       cfg,
		regime:    regime,
		structure: structure,
		liquidity: liquidity,
		orderflow: orderflow,
		flow:      flow,
		prices:    prices,
		out:       out,
		logger:    logger.With(slog.String("component", "signal_generator"), slog.String("symbol", cfg.Symbol)),
	}
}

// Run evaluates on the configured cadence until the context is cancelled.
func (g *Generator) Run(ctx context.Context) error {
	g.logger.Info("signal generator started", slog.Duration("interval", g.cfg.Interval))
	defer g.logger.Info("signal generator stopped")

	ticker := time.NewTicker(g.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			candidate, veto := g.Evaluate(time.Now().UTC())
			if candidate == nil {
				g.logger.Debug("no candidate", slog.String("veto", veto))
				continue
			}
			select {
			case g.out <- *candidate:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// Evaluate runs the gating chain once. Returns the emitted candidate, or nil
// with the reason the chain stopped.
func (g *Generator) Evaluate(now time.Time) (*domain.TradeCandidate, string) {
	regime := g.regime.Current()
	if !regime.Permissions.TradingEnabled {
		return nil, "trading disabled in current regime"
	}

	price, priceAt, ok := g.prices.LastPrice(g.cfg.Symbol)
	if !ok || now.Sub(priceAt) > g.cfg.PriceMaxAge {
		return nil, "no fresh price"
	}

	trigger, vetoReason := g.findTrigger(now)
	if trigger == nil {
		return nil, vetoReason
	}

	if !regime.Permissions.Allows(trigger.direction) {
		return nil, fmt.Sprintf("direction %s not preferred in %s", trigger.direction, regime.State)
	}

	imbalance := g.orderflow.Imbalance()
	if opposes(imbalance, trigger.direction, g.cfg.OrderFlowVeto) {
		return nil, fmt.Sprintf("order flow %.2f opposes %s", imbalance, trigger.direction)
	}

	stop := g.stopPrice(trigger, price)
	target, targetReason := g.targetPrice(trigger.direction, price, stop)

	candidate := domain.TradeCandidate{
		ID:          uuid.New().String(),
		Symbol:      g.cfg.Symbol,
		Direction:   trigger.direction,
		EntryPrice:  price,
		StopPrice:   stop,
		TargetPrice: target,
		CreatedAt:   now,
		Reasons:     []string{trigger.reason, targetReason},
	}
	candidate.Confidence = g.confidence(trigger, regime, imbalance, price, now)

	if candidate.Confidence < g.cfg.MinConfidence {
		return nil, fmt.Sprintf("confidence %.2f below %.2f", candidate.Confidence, g.cfg.MinConfidence)
	}

	g.remember(candidate)
	g.logger.Info("candidate emitted",
		slog.String("id", candidate.ID),
		slog.String("direction", string(candidate.Direction)),
		slog.Float64("entry", candidate.EntryPrice),
		slog.Float64("stop", candidate.StopPrice),
		slog.Float64("target", candidate.TargetPrice),
		slog.Float64("confidence", candidate.Confidence),
	)
	return &candidate, ""
}

// RecentCandidates returns up to limit recent candidates, newest first.
func (g *Generator) RecentCandidates(limit int) []domain.TradeCandidate {
	if limit <= 0 {
		limit = 20
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	n := len(g.recent)
	if limit > n {
		limit = n
	}
	out := make([]domain.TradeCandidate, 0, limit)
	for i := n - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, g.recent[i])
	}
	return out
}

func (g *Generator) remember(c domain.TradeCandidate) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.recent = append(g.recent, c)
	if len(g.recent) > 100 {
		g.recent = g.recent[len(g.recent)-100:]
	}
}

// trigger is the structural entry reason found by the gating chain.
type trigger struct {
	direction domain.TradeDirection
	level     float64 // invalidation level the stop goes beyond
	strength  float64 // [0, 1]
	reason    string
}

// findTrigger prefers the most recent of: a structure break (BOS stronger
// than CHOCH) or a liquidity sweep reversal inside the trigger window.
func (g *Generator) findTrigger(now time.Time) (*trigger, string) {
	var best *trigger
	var bestAt time.Time

	if event, at := g.structure.LastEvent(); event != nil && now.Sub(at) <= g.cfg.TriggerMaxAge {
		strength := 0.6
		if event.Kind == domain.StructureBOS {
			strength = 0.8
		}
		best = &trigger{
			direction: event.Direction,
			level:     event.Level,
			strength:  strength,
			reason:    string(event.Kind) + ": " + event.Reason,
		}
		bestAt = at
	}

	if sweep, at := g.liquidity.LastSweep(); sweep != nil && now.Sub(at) <= g.cfg.TriggerMaxAge && at.After(bestAt) {
		best = &trigger{
			direction: sweep.Direction,
			level:     sweep.Level.Price,
			strength:  0.5 + 0.3*sweep.Level.Strength,
			reason:    "sweep: " + sweep.Reason,
		}
	}

	if best == nil {
		return nil, "no structural trigger"
	}
	return best, ""
}

func opposes(imbalance float64, dir domain.TradeDirection, tolerance float64) bool {
	if dir == domain.DirectionLong {
		return imbalance < -tolerance
	}
	return imbalance > tolerance
}

// stopPrice places the stop beyond the invalidation level with the configured
// buffer. The stop never lands on the wrong side of the entry.
func (g *Generator) stopPrice(t *trigger, entry float64) float64 {
	buffer := t.level * g.cfg.StopBufferPercent / 100
	if t.direction == domain.DirectionLong {
		stop := t.level - buffer
		if stop >= entry {
			stop = entry - buffer
		}
		return stop
	}
	stop := t.level + buffer
	if stop <= entry {
		stop = entry + buffer
	}
	return stop
}

// targetPrice aims at the next opposing liquidity level; without one it falls
// back to a fixed multiple of the stop distance.
func (g *Generator) targetPrice(dir domain.TradeDirection, entry, stop float64) (float64, string) {
	risk := entry - stop
	if risk < 0 {
		risk = -risk
	}

	if dir == domain.DirectionLong {
		if level, ok := g.liquidity.NearestAbove(entry); ok {
			return level.Price, "target at " + string(level.Kind)
		}
		return entry + g.cfg.FallbackTargetR*risk, "target at fallback R multiple"
	}
	if level, ok := g.liquidity.NearestBelow(entry); ok {
		return level.Price, "target at " + string(level.Kind)
	}
	return entry - g.cfg.FallbackTargetR*risk, "target at fallback R multiple"
}

// confidence blends trigger quality, stop-anchor proximity, regime
// conviction, order-flow alignment and capital rotation into [0, 1].
func (g *Generator) confidence(t *trigger, regime domain.RegimeOutput, imbalance, entry float64, now time.Time) float64 {
	aligned := imbalance
	if t.direction == domain.DirectionShort {
		aligned = -imbalance
	}
	orderFlowScore := (aligned + 1) / 2

	// Entry close to the invalidation level keeps the stop tight; score
	// decays linearly to zero at ProximityMaxPct away.
	proximityScore := 0.0
	if entry > 0 {
		dist := (entry - t.level) / entry * 100
		if dist < 0 {
			dist = -dist
		}
		proximityScore = 1 - dist/g.cfg.ProximityMaxPct
		if proximityScore < 0 {
			proximityScore = 0
		}
	}

	flowScore := 0.5
	if g.flow != nil {
		f := g.flow.Flow(now)
		switch {
		case f.Direction == domain.FlowNeutral:
			flowScore = 0.5
		case (f.Direction == domain.FlowBTCInflow) == (t.direction == domain.DirectionLong):
			flowScore = 0.5 + 0.5*f.Strength
		default:
			flowScore = 0.5 - 0.5*f.Strength
		}
	}

	score := wTrigger*t.strength +
		wRegime*regime.Confidence +
		wOrderFlow*orderFlowScore +
		wProximity*proximityScore +
		wCapitalFlow*flowScore
	if score > 1 {
		score = 1
	}
	if score < 0 {
		score = 0
	}
	return score
}
