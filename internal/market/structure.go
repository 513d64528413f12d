// Package market holds the price-action analyzers feeding the signal
// generator: market structure (swings, BOS/CHOCH), liquidity levels, order
// flow and capital flow. Each tracker owns its window behind its own mutex
// and exposes copying snapshot reads.
package market

import (
	"sync"
	"time"

	"github.com/knoxfield/regimebot/internal/domain"
)

// swingPoint is a confirmed local extreme of the candle window.
type swingPoint struct {
	price  float64
	isHigh bool
	time   time.Time
}

// StructureTracker detects swing highs/lows over the candle window and emits
// break-of-structure (continuation) and change-of-character (reversal)
// events as confirmed candles arrive.
type StructureTracker struct {
	symbol      string
	maxCandles  int
	swingWindow int // candles each side required to confirm a swing

	mu      sync.Mutex
	candles []domain.Candle
	swings  []swingPoint
	trend   domain.StructureTrend

	lastEvent   *domain.StructureEvent
	lastEventAt time.Time
}

// NewStructureTracker creates a tracker over a bounded candle window. A
// non-positive maxCandles defaults to 100, swingWindow to 2.
func NewStructureTracker(symbol string, maxCandles, swingWindow int) *StructureTracker {
	if maxCandles <= 0 {
		maxCandles = 100
	}
	if swingWindow <= 0 {
		swingWindow = 2
	}
	return &StructureTracker{
		symbol:      symbol,
		maxCandles:  maxCandles,
		swingWindow: swingWindow,
		trend:       domain.StructureNeutral,
	}
}

// AddCandle ingests one confirmed candle and returns a structure event if the
// close broke a tracked swing level. Unconfirmed candles are ignored.
func (t *StructureTracker) AddCandle(c domain.Candle) *domain.StructureEvent {
	if !c.Confirmed {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	t.candles = append(t.candles, c)
	if len(t.candles) > t.maxCandles {
		t.candles = t.candles[len(t.candles)-t.maxCandles:]
	}

	t.detectSwingsLocked()
	t.updateTrendLocked()
	return t.detectBreakLocked(c)
}

// Trend returns the current structural trend.
func (t *StructureTracker) Trend() domain.StructureTrend {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.trend
}

// LastEvent returns the most recent structure event and its time, or nil if
// none occurred yet.
func (t *StructureTracker) LastEvent() (*domain.StructureEvent, time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.lastEvent == nil {
		return nil, time.Time{}
	}
	e := *t.lastEvent
	return &e, t.lastEventAt
}

// detectSwingsLocked confirms the candle swingWindow bars back as a swing
// high/low if it is the extreme of its neighborhood.
func (t *StructureTracker) detectSwingsLocked() {
	w := t.swingWindow
	i := len(t.candles) - 1 - w
	if i < w {
		return
	}
	pivot := t.candles[i]

	isHigh, isLow := true, true
	for j := i - w; j <= i+w; j++ {
		if j == i {
			continue
		}
		if t.candles[j].High >= pivot.High {
			isHigh = false
		}
		if t.candles[j].Low <= pivot.Low {
			isLow = false
		}
	}
	if isHigh {
		t.appendSwingLocked(swingPoint{price: pivot.High, isHigh: true, time: pivot.OpenTime})
	}
	if isLow {
		t.appendSwingLocked(swingPoint{price: pivot.Low, isHigh: false, time: pivot.OpenTime})
	}
}

func (t *StructureTracker) appendSwingLocked(s swingPoint) {
	if n := len(t.swings); n > 0 && t.swings[n-1].time.Equal(s.time) && t.swings[n-1].isHigh == s.isHigh {
		return
	}
	t.swings = append(t.swings, s)
	if len(t.swings) > 20 {
		t.swings = t.swings[len(t.swings)-20:]
	}
}

// updateTrendLocked reads the last two swing highs and lows: higher highs and
// higher lows is bullish, lower highs and lower lows bearish.
func (t *StructureTracker) updateTrendLocked() {
	var highs, lows []float64
	for i := len(t.swings) - 1; i >= 0 && (len(highs) < 2 || len(lows) < 2); i-- {
		s := t.swings[i]
		if s.isHigh && len(highs) < 2 {
			highs = append(highs, s.price)
		} else if !s.isHigh && len(lows) < 2 {
			lows = append(lows, s.price)
		}
	}
	if len(highs) < 2 || len(lows) < 2 {
		t.trend = domain.StructureNeutral
		return
	}
	// Index 0 is the most recent.
	switch {
	case highs[0] > highs[1] && lows[0] > lows[1]:
		t.trend = domain.StructureBullish
	case highs[0] < highs[1] && lows[0] < lows[1]:
		t.trend = domain.StructureBearish
	default:
		t.trend = domain.StructureNeutral
	}
}

// detectBreakLocked checks whether the candle closed through the most recent
// swing on either side. A close with the prevailing trend is a BOS; against
// it, a CHOCH.
func (t *StructureTracker) detectBreakLocked(c domain.Candle) *domain.StructureEvent {
	lastHigh, lastLow := t.recentSwingsLocked()

	var event *domain.StructureEvent
	switch {
	case lastHigh != nil && c.Close > lastHigh.price:
		kind := domain.StructureCHOCH
		reason := "close above swing high against bearish structure"
		if t.trend == domain.StructureBullish {
			kind = domain.StructureBOS
			reason = "close above swing high continuing bullish structure"
		}
		event = &domain.StructureEvent{
			Kind:      kind,
			Direction: domain.DirectionLong,
			Level:     lastHigh.price,
			Reason:    reason,
		}
	case lastLow != nil && c.Close < lastLow.price:
		kind := domain.StructureCHOCH
		reason := "close below swing low against bullish structure"
		if t.trend == domain.StructureBearish {
			kind = domain.StructureBOS
			reason = "close below swing low continuing bearish structure"
		}
		event = &domain.StructureEvent{
			Kind:      kind,
			Direction: domain.DirectionShort,
			Level:     lastLow.price,
			Reason:    reason,
		}
	}
	if event != nil {
		t.lastEvent = event
		t.lastEventAt = c.OpenTime
		t.pruneBrokenSwingLocked(event)
	}
	return event
}

func (t *StructureTracker) recentSwingsLocked() (high, low *swingPoint) {
	for i := len(t.swings) - 1; i >= 0; i-- {
		s := t.swings[i]
		if s.isHigh && high == nil {
			high = &t.swings[i]
		} else if !s.isHigh && low == nil {
			low = &t.swings[i]
		}
		if high != nil && low != nil {
			break
		}
	}
	return high, low
}

// pruneBrokenSwingLocked removes the broken swing so one break does not fire
// on every subsequent candle.
func (t *StructureTracker) pruneBrokenSwingLocked(e *domain.StructureEvent) {
	wantHigh := e.Direction == domain.DirectionLong
	for i := len(t.swings) - 1; i >= 0; i-- {
		if t.swings[i].isHigh == wantHigh && t.swings[i].price == e.Level {
			t.swings = append(t.swings[:i], t.swings[i+1:]...)
			return
		}
	}
}
