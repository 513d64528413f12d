// Package regime implements the macro regime state machine and its trend
// scoring. The engine aggregates DXY and BTC-dominance trends with the news
// risk signal into one of four regime states, applying anti-flip hysteresis
// before accepting a transition.
package regime

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/knoxfield/regimebot/internal/domain"
)

// Input weights of the regime score. Fixed, not learned.
const (
	weightDXY    = 0.40
	weightBTCDom = 0.30
	weightNews   = 0.30
)

// stateOrder is the deterministic tie-break: earlier states win equal scores.
var stateOrder = []domain.RegimeState{
	domain.RegimeRiskOn,
	domain.RegimeRiskOff,
	domain.RegimeDecoupled,
	domain.RegimeChop,
}

// Config holds the tunable parameters of the regime engine.
type Config struct {
	ConfidenceThreshold float64       // minimum confidence to accept a transition
	MinTimeInState      time.Duration // minimum dwell time before a transition
	MaxTransitions      int           // transition history ring capacity
	MaxSamples          int           // per-indicator sample window capacity
	MacroMaxAge         time.Duration // macro samples older than this are ignored
	NewsMaxAge          time.Duration // news signals older than this are ignored
	DXY                 TrendThresholds
	BTCDominance        TrendThresholds
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		ConfidenceThreshold: 0.60,
		MinTimeInState:      time.Hour,
		MaxTransitions:      50,
		MaxSamples:          100,
		MacroMaxAge:         3 * time.Hour,
		NewsMaxAge:          time.Hour,
		DXY:                 TrendThresholds{Weak: 0.1, Strong: 0.5, Lookback: 24},
		BTCDominance:        TrendThresholds{Weak: 0.2, Strong: 0.5, Lookback: 24},
	}
}

// Engine is the regime state machine. It is the single writer of the current
// RegimeOutput; feed goroutines append samples, and all other components read
// copied snapshots.
type Engine struct {
	cfg        Config
	dxyScorer  *TrendScorer
	btcdScorer *TrendScorer
	logger     *slog.Logger

	mu          sync.RWMutex
	dxySamples  []domain.IndicatorPoint
	btcdSamples []domain.IndicatorPoint
	news        *domain.NewsSignal

	state       domain.RegimeState
	enteredAt   time.Time
	current     domain.RegimeOutput
	transitions []domain.RegimeTransition
}

// NewEngine creates an Engine in the initial CHOP state.
func NewEngine(cfg Config, logger *slog.Logger) *Engine {
	now := time.Now().UTC()
	e := &Engine{
		cfg:        cfg,
		dxyScorer:  NewTrendScorer(cfg.DXY),
		btcdScorer: NewTrendScorer(cfg.BTCDominance),
		logger:     logger.With(slog.String("component", "regime_engine")),
		state:      domain.RegimeChop,
		enteredAt:  now,
	}
	e.current = domain.RegimeOutput{
		State:       e.state,
		Permissions: domain.PermissionsFor(e.state),
		Timestamp:   now,
	}
	return e
}

// AddDXYSample appends a DXY observation to the bounded sample window.
func (e *Engine) AddDXYSample(p domain.IndicatorPoint) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.dxySamples = appendBounded(e.dxySamples, p, e.cfg.MaxSamples)
}

// AddBTCDominanceSample appends a BTC-dominance observation.
func (e *Engine) AddBTCDominanceSample(p domain.IndicatorPoint) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.btcdSamples = appendBounded(e.btcdSamples, p, e.cfg.MaxSamples)
}

// SetNewsSignal replaces the latest aggregated news signal.
func (e *Engine) SetNewsSignal(s domain.NewsSignal) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.news = &s
}

// Evaluate recomputes the regime from the cached inputs at time now. It
// always produces a RegimeOutput; a transition is returned only when both
// hysteresis conditions held and the state actually changed. Stale inputs
// contribute a zero sub-score instead of aborting the evaluation.
func (e *Engine) Evaluate(now time.Time) (domain.RegimeOutput, *domain.RegimeTransition) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.evaluateLocked(e.buildInputLocked(now))
}

// EvaluateInput runs one evaluation against an explicit input snapshot. The
// HTTP surface and tests use this for on-demand evaluation.
func (e *Engine) EvaluateInput(input domain.RegimeInput) (domain.RegimeOutput, *domain.RegimeTransition) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.evaluateLocked(input)
}

func (e *Engine) buildInputLocked(now time.Time) domain.RegimeInput {
	input := domain.RegimeInput{Timestamp: now}

	if pts := freshPoints(e.dxySamples, now, e.cfg.MacroMaxAge); len(pts) >= 2 {
		r := e.dxyScorer.Score(pts, now)
		input.DXYTrend = &r
	}
	if pts := freshPoints(e.btcdSamples, now, e.cfg.MacroMaxAge); len(pts) >= 2 {
		r := e.btcdScorer.Score(pts, now)
		input.BTCDomTrend = &r
	}
	if e.news != nil && (e.cfg.NewsMaxAge <= 0 || now.Sub(e.news.AsOf) <= e.cfg.NewsMaxAge) {
		n := *e.news
		input.News = &n
	}
	return input
}

func (e *Engine) evaluateLocked(input domain.RegimeInput) (domain.RegimeOutput, *domain.RegimeTransition) {
	now := input.Timestamp
	if now.IsZero() {
		now = time.Now().UTC()
	}

	scores := scoreStates(input)
	candidate, confidence := bestState(scores)

	var accepted *domain.RegimeTransition
	if e.shouldTransitionLocked(candidate, confidence, now) {
		t := domain.RegimeTransition{
			From:       e.state,
			To:         candidate,
			Confidence: confidence,
			Reason:     transitionReason(input),
			Timestamp:  now,
		}
		e.transitions = appendBounded(e.transitions, t, e.cfg.MaxTransitions)
		e.state = candidate
		e.enteredAt = now
		accepted = &t
		e.logger.Info("regime transition",
			slog.String("from", string(t.From)),
			slog.String("to", string(t.To)),
			slog.Float64("confidence", confidence),
			slog.String("reason", t.Reason),
		)
	}

	// The output always reflects the held state, but carries the freshly
	// recomputed confidence and contributions so the hysteresis is
	// observable without changing state.
	out := domain.RegimeOutput{
		State:         e.state,
		Confidence:    confidence,
		Contributions: contributionsFor(input, candidate),
		Permissions:   domain.PermissionsFor(e.state),
		Timestamp:     now,
		TimeInState:   now.Sub(e.enteredAt),
	}
	e.current = out
	return out, accepted
}

// shouldTransitionLocked applies the anti-flip rule: both the confidence
// threshold and the minimum dwell time must hold.
func (e *Engine) shouldTransitionLocked(candidate domain.RegimeState, confidence float64, now time.Time) bool {
	if candidate == e.state {
		return false
	}
	if confidence < e.cfg.ConfidenceThreshold {
		return false
	}
	if now.Sub(e.enteredAt) < e.cfg.MinTimeInState {
		return false
	}
	return true
}

// ForceState overrides the current state, recording a transition. Used by the
// operator surface; bypasses hysteresis.
func (e *Engine) ForceState(state domain.RegimeState, reason string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if state == e.state {
		return
	}
	now := time.Now().UTC()
	t := domain.RegimeTransition{
		From:       e.state,
		To:         state,
		Confidence: 1.0,
		Reason:     reason,
		Timestamp:  now,
	}
	e.transitions = appendBounded(e.transitions, t, e.cfg.MaxTransitions)
	e.state = state
	e.enteredAt = now
	e.current.State = state
	e.current.Permissions = domain.PermissionsFor(state)
	e.current.TimeInState = 0
	e.logger.Warn("regime state forced",
		slog.String("to", string(state)),
		slog.String("reason", reason),
	)
}

// Current returns a copy of the latest RegimeOutput.
func (e *Engine) Current() domain.RegimeOutput {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.current
}

// Transitions returns a copy of the bounded transition history, oldest first.
func (e *Engine) Transitions() []domain.RegimeTransition {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]domain.RegimeTransition, len(e.transitions))
	copy(out, e.transitions)
	return out
}

// DXYTrend scores the current DXY window. Returns a NONE reading when fewer
// than two fresh samples exist.
func (e *Engine) DXYTrend(now time.Time) domain.TrendReading {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.dxyScorer.Score(freshPoints(e.dxySamples, now, e.cfg.MacroMaxAge), now)
}

// BTCDominanceTrend scores the current BTC-dominance window.
func (e *Engine) BTCDominanceTrend(now time.Time) domain.TrendReading {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.btcdScorer.Score(freshPoints(e.btcdSamples, now, e.cfg.MacroMaxAge), now)
}

// ---------------------------------------------------------------------------
// Scoring tables
// ---------------------------------------------------------------------------

type stateScores map[domain.RegimeState]float64

// scoreStates computes the weighted per-state aggregate in [0,1] after
// normalization. Missing inputs contribute nothing.
func scoreStates(input domain.RegimeInput) stateScores {
	scores := stateScores{}
	if input.DXYTrend != nil {
		addScaled(scores, dxyContribution(*input.DXYTrend), weightDXY)
	}
	if input.BTCDomTrend != nil {
		addScaled(scores, btcDomContribution(*input.BTCDomTrend), weightBTCDom)
	}
	if input.News != nil {
		addScaled(scores, newsContribution(*input.News), weightNews)
	}

	var total float64
	for _, v := range scores {
		if v > 0 {
			total += v
		}
	}
	if total > 0 {
		for k, v := range scores {
			scores[k] = v / total
		}
	}
	return scores
}

// dxyContribution: dollar strength is risk-off for crypto, dollar weakness
// risk-on; a flat dollar reads as chop.
func dxyContribution(t domain.TrendReading) stateScores {
	m := t.Multiplier()
	switch t.Direction {
	case domain.TrendUp:
		return stateScores{domain.RegimeRiskOff: m}
	case domain.TrendDown:
		return stateScores{domain.RegimeRiskOn: m}
	default:
		return stateScores{domain.RegimeChop: 0.5}
	}
}

// btcDomContribution: rising dominance favors DECOUPLED (BTC outperforming)
// with a risk-off lean; falling dominance is alt-season risk-on.
func btcDomContribution(t domain.TrendReading) stateScores {
	m := t.Multiplier()
	switch t.Direction {
	case domain.TrendUp:
		return stateScores{
			domain.RegimeDecoupled: 0.6 * m,
			domain.RegimeRiskOff:   0.4 * m,
		}
	case domain.TrendDown:
		return stateScores{
			domain.RegimeRiskOn:    0.7 * m,
			domain.RegimeDecoupled: 0.3 * m,
		}
	default:
		return stateScores{domain.RegimeChop: 0.5}
	}
}

// newsContribution maps the aggregated news signal. Alignment reinforces the
// risk read, decoupling shifts weight to DECOUPLED, and high-impact items
// suppress the chop score.
func newsContribution(n domain.NewsSignal) stateScores {
	scores := stateScores{}
	if n.SampleCount == 0 {
		scores[domain.RegimeChop] = 0.3
		return scores
	}

	switch n.RiskSignal {
	case domain.RiskSignalOff:
		scores[domain.RegimeRiskOff] = 0.8
	case domain.RiskSignalOn:
		scores[domain.RegimeRiskOn] = 0.8
	default:
		scores[domain.RegimeChop] = 0.3
	}

	switch n.Alignment {
	case domain.AlignmentDecoupled:
		scores[domain.RegimeDecoupled] += 0.5
	case domain.AlignmentAligned:
		switch n.RiskSignal {
		case domain.RiskSignalOff:
			scores[domain.RegimeRiskOff] += 0.2
		case domain.RiskSignalOn:
			scores[domain.RegimeRiskOn] += 0.2
		}
	}

	if n.HighImpactCount > 0 {
		scores[domain.RegimeChop] *= 0.5
	}
	return scores
}

func addScaled(dst stateScores, src stateScores, weight float64) {
	for k, v := range src {
		dst[k] += v * weight
	}
}

// bestState picks the highest-scoring state using the fixed preference order
// for ties.
func bestState(scores stateScores) (domain.RegimeState, float64) {
	best := domain.RegimeChop
	bestScore := -1.0
	for _, s := range stateOrder {
		if v := scores[s]; v > bestScore {
			best = s
			bestScore = v
		}
	}
	if bestScore < 0 {
		bestScore = 0
	}
	if bestScore > 1 {
		bestScore = 1
	}
	return best, bestScore
}

// contributionsFor reports each input's sub-score toward the winning state.
func contributionsFor(input domain.RegimeInput, winner domain.RegimeState) domain.RegimeContributions {
	var c domain.RegimeContributions
	if input.DXYTrend != nil {
		c.DXY = dxyContribution(*input.DXYTrend)[winner]
	}
	if input.BTCDomTrend != nil {
		c.BTCDom = btcDomContribution(*input.BTCDomTrend)[winner]
	}
	if input.News != nil {
		c.News = newsContribution(*input.News)[winner]
	}
	return c
}

func transitionReason(input domain.RegimeInput) string {
	var parts []string
	if t := input.DXYTrend; t != nil {
		parts = append(parts, fmt.Sprintf("DXY %s (%s)", t.Direction, t.Strength))
	}
	if t := input.BTCDomTrend; t != nil {
		parts = append(parts, fmt.Sprintf("BTC.D %s (%s)", t.Direction, t.Strength))
	}
	if n := input.News; n != nil && n.RiskSignal != domain.RiskSignalNeutral {
		parts = append(parts, fmt.Sprintf("news %s", n.RiskSignal))
	}
	if len(parts) == 0 {
		return "low conviction"
	}
	return strings.Join(parts, " | ")
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func appendBounded[T any](s []T, v T, max int) []T {
	s = append(s, v)
	if max > 0 && len(s) > max {
		s = append([]T(nil), s[len(s)-max:]...)
	}
	return s
}

func freshPoints(points []domain.IndicatorPoint, now time.Time, maxAge time.Duration) []domain.IndicatorPoint {
	if maxAge <= 0 {
		return points
	}
	cutoff := now.Add(-maxAge)
	for i, p := range points {
		if !p.Timestamp.Before(cutoff) {
			return points[i:]
		}
	}
	return nil
}
