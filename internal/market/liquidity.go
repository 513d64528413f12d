package market

import (
	"sync"
	"time"

	"github.com/knoxfield/regimebot/internal/domain"
)

// Trading sessions in UTC hours. New York deliberately overlaps London.
type sessionDef struct {
	name  string
	start int // inclusive
	end   int // exclusive
}

var sessions = []sessionDef{
	{name: "asia", start: 0, end: 8},
	{name: "london", start: 8, end: 16},
	{name: "new_york", start: 13, end: 21},
}

const (
	rangeWindow = 20 // candles in the visible-range high/low

	zoneDepthLevels    = 20  // book levels per side scanned for zones
	zoneImbalanceRatio = 1.5 // level size vs side average to qualify as a zone
)

// LiquidityTracker maintains the set of levels where resting stop liquidity
// is assumed: prior-day high/low, per-session highs/lows, the visible range
// of the recent window, and order-book imbalance zones. It also detects
// sweeps (a wick through a level with a close back on the original side).
type LiquidityTracker struct {
	symbol string

	mu      sync.Mutex
	candles []domain.Candle

	day        time.Time // UTC midnight of the day being accumulated
	dayHigh    float64
	dayLow     float64
	priorHigh  float64
	priorLow   float64
	sessHighs  map[string]float64
	sessLows   map[string]float64
	sessDay    map[string]time.Time
	zones      []domain.LiquidityLevel
	lastSweep  *domain.LiquiditySweep
	lastSweepT time.Time
}

// NewLiquidityTracker creates an empty tracker for one symbol.
func NewLiquidityTracker(symbol string) *LiquidityTracker {
	return &LiquidityTracker{
		symbol:    symbol,
		sessHighs: make(map[string]float64),
		sessLows:  make(map[string]float64),
		sessDay:   make(map[string]time.Time),
	}
}

// AddCandle ingests one confirmed candle, rolling day and session extremes,
// and returns a sweep event if the candle swept a tracked level.
func (t *LiquidityTracker) AddCandle(c domain.Candle) *domain.LiquiditySweep {
	if !c.Confirmed {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	// Sweep detection runs against the levels as they stood before this
	// candle extended them.
	sweep := t.detectSweepLocked(c)

	t.rollDayLocked(c)
	t.rollSessionsLocked(c)

	t.candles = append(t.candles, c)
	if len(t.candles) > rangeWindow {
		t.candles = t.candles[len(t.candles)-rangeWindow:]
	}

	if sweep != nil {
		t.lastSweep = sweep
		t.lastSweepT = c.OpenTime
	}
	return sweep
}

// UpdateOrderbook replaces the order-book zones with the levels on each side
// whose resting size stands out against the side average. A zone holds at
// least zoneImbalanceRatio times the average size over the scanned depth.
func (t *LiquidityTracker) UpdateOrderbook(snap domain.OrderbookSnapshot) {
	if len(snap.Bids) == 0 || len(snap.Asks) == 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	t.zones = t.zones[:0]
	t.zones = appendZones(t.zones, snap.Bids, domain.LiquidityBidZone, snap.Timestamp)
	t.zones = appendZones(t.zones, snap.Asks, domain.LiquidityAskZone, snap.Timestamp)
}

func appendZones(zones []domain.LiquidityLevel, side []domain.PriceLevel, kind domain.LiquidityKind, ts time.Time) []domain.LiquidityLevel {
	if len(side) > zoneDepthLevels {
		side = side[:zoneDepthLevels]
	}
	var total float64
	for _, l := range side {
		total += l.Size
	}
	if total <= 0 {
		return zones
	}
	avg := total / float64(len(side))

	for _, l := range side {
		ratio := l.Size / avg
		if ratio < zoneImbalanceRatio {
			continue
		}
		strength := ratio / 3
		if strength > 1 {
			strength = 1
		}
		zones = append(zones, domain.LiquidityLevel{
			Price:     l.Price,
			Kind:      kind,
			Strength:  strength,
			Timestamp: ts,
		})
	}
	return zones
}

// Levels returns a copy of all currently tracked levels.
func (t *LiquidityTracker) Levels() []domain.LiquidityLevel {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.levelsLocked()
}

// NearestAbove returns the closest tracked level above price, or false.
func (t *LiquidityTracker) NearestAbove(price float64) (domain.LiquidityLevel, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var best domain.LiquidityLevel
	found := false
	for _, l := range t.levelsLocked() {
		if l.Price > price && (!found || l.Price < best.Price) {
			best, found = l, true
		}
	}
	return best, found
}

// NearestBelow returns the closest tracked level below price, or false.
func (t *LiquidityTracker) NearestBelow(price float64) (domain.LiquidityLevel, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var best domain.LiquidityLevel
	found := false
	for _, l := range t.levelsLocked() {
		if l.Price < price && (!found || l.Price > best.Price) {
			best, found = l, true
		}
	}
	return best, found
}

// LastSweep returns the most recent sweep and its candle time, or nil.
func (t *LiquidityTracker) LastSweep() (*domain.LiquiditySweep, time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.lastSweep == nil {
		return nil, time.Time{}
	}
	s := *t.lastSweep
	return &s, t.lastSweepT
}

func (t *LiquidityTracker) levelsLocked() []domain.LiquidityLevel {
	var levels []domain.LiquidityLevel
	if t.priorHigh > 0 {
		levels = append(levels,
			domain.LiquidityLevel{Price: t.priorHigh, Kind: domain.LiquidityPriorDayHigh, Strength: 1.0},
			domain.LiquidityLevel{Price: t.priorLow, Kind: domain.LiquidityPriorDayLow, Strength: 1.0},
		)
	}
	for name, high := range t.sessHighs {
		levels = append(levels, domain.LiquidityLevel{
			Price: high, Kind: domain.LiquiditySessionHigh, Session: name, Strength: 0.7,
		})
	}
	for name, low := range t.sessLows {
		levels = append(levels, domain.LiquidityLevel{
			Price: low, Kind: domain.LiquiditySessionLow, Session: name, Strength: 0.7,
		})
	}
	if high, low, ok := t.visibleRangeLocked(); ok {
		levels = append(levels,
			domain.LiquidityLevel{Price: high, Kind: domain.LiquidityRangeHigh, Strength: 0.5},
			domain.LiquidityLevel{Price: low, Kind: domain.LiquidityRangeLow, Strength: 0.5},
		)
	}
	levels = append(levels, t.zones...)
	return levels
}

func (t *LiquidityTracker) visibleRangeLocked() (high, low float64, ok bool) {
	if len(t.candles) == 0 {
		return 0, 0, false
	}
	high, low = t.candles[0].High, t.candles[0].Low
	for _, c := range t.candles[1:] {
		if c.High > high {
			high = c.High
		}
		if c.Low < low {
			low = c.Low
		}
	}
	return high, low, true
}

func (t *LiquidityTracker) rollDayLocked(c domain.Candle) {
	day := c.OpenTime.UTC().Truncate(24 * time.Hour)
	if !day.Equal(t.day) {
		if !t.day.IsZero() {
			t.priorHigh = t.dayHigh
			t.priorLow = t.dayLow
		}
		t.day = day
		t.dayHigh = c.High
		t.dayLow = c.Low
		return
	}
	if c.High > t.dayHigh {
		t.dayHigh = c.High
	}
	if c.Low < t.dayLow {
		t.dayLow = c.Low
	}
}

func (t *LiquidityTracker) rollSessionsLocked(c domain.Candle) {
	hour := c.OpenTime.UTC().Hour()
	day := c.OpenTime.UTC().Truncate(24 * time.Hour)
	for _, s := range sessions {
		if hour < s.start || hour >= s.end {
			continue
		}
		if !day.Equal(t.sessDay[s.name]) {
			t.sessDay[s.name] = day
			t.sessHighs[s.name] = c.High
			t.sessLows[s.name] = c.Low
			continue
		}
		if c.High > t.sessHighs[s.name] {
			t.sessHighs[s.name] = c.High
		}
		if c.Low < t.sessLows[s.name] {
			t.sessLows[s.name] = c.Low
		}
	}
}

// detectSweepLocked looks for a wick through a level with a close back on the
// original side. Sweeping a high pool and closing back below it is a short
// trigger; the mirror case a long trigger.
func (t *LiquidityTracker) detectSweepLocked(c domain.Candle) *domain.LiquiditySweep {
	for _, l := range t.levelsLocked() {
		if l.Kind.IsHigh() {
			if c.High > l.Price && c.Close < l.Price {
				return &domain.LiquiditySweep{
					Level:     l,
					Direction: domain.DirectionShort,
					Reason:    "wick through " + string(l.Kind) + " with close back below",
				}
			}
		} else {
			if c.Low < l.Price && c.Close > l.Price {
				return &domain.LiquiditySweep{
					Level:     l,
					Direction: domain.DirectionLong,
					Reason:    "wick through " + string(l.Kind) + " with close back above",
				}
			}
		}
	}
	return nil
}
