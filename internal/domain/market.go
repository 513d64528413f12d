package domain

import "time"

// Candle is one OHLCV bar from the market-data feed.
type Candle struct {
	Symbol    string
	Interval  string
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
	OpenTime  time.Time
	Confirmed bool
}

// MarketTrade is a single public trade print used for order-flow analysis and
// position monitoring.
type MarketTrade struct {
	Symbol    string
	Price     float64
	Quantity  float64
	Side      string // "Buy" or "Sell" (taker side)
	Timestamp time.Time
}

// PriceLevel is one side/level of an order book.
type PriceLevel struct {
	Price float64
	Size  float64
}

// OrderbookSnapshot is a depth snapshot from the feed.
type OrderbookSnapshot struct {
	Symbol    string
	Bids      []PriceLevel
	Asks      []PriceLevel
	Timestamp time.Time
}

// StructureTrend is the higher-high/lower-low read of recent swings.
type StructureTrend string

const (
	StructureBullish StructureTrend = "BULLISH"
	StructureBearish StructureTrend = "BEARISH"
	StructureNeutral StructureTrend = "NEUTRAL"
)

// StructureEventKind tags a break-of-structure (continuation) or
// change-of-character (reversal) event.
type StructureEventKind string

const (
	StructureBOS   StructureEventKind = "BOS"
	StructureCHOCH StructureEventKind = "CHOCH"
)

// StructureEvent is a price-action trigger emitted by the structure tracker.
type StructureEvent struct {
	Kind      StructureEventKind
	Direction TradeDirection
	Level     float64 // the swing level that was broken
	Reason    string
}

// LiquidityKind names the origin of a liquidity level.
type LiquidityKind string

const (
	LiquidityPriorDayHigh LiquidityKind = "PDH"
	LiquidityPriorDayLow  LiquidityKind = "PDL"
	LiquiditySessionHigh  LiquidityKind = "SESSION_HIGH"
	LiquiditySessionLow   LiquidityKind = "SESSION_LOW"
	LiquidityRangeHigh    LiquidityKind = "RANGE_HIGH"
	LiquidityRangeLow     LiquidityKind = "RANGE_LOW"
	LiquidityAskZone      LiquidityKind = "ASK_ZONE"
	LiquidityBidZone      LiquidityKind = "BID_ZONE"
)

// IsHigh reports whether the level sits above price action (a pool of
// buy-side stops).
func (k LiquidityKind) IsHigh() bool {
	switch k {
	case LiquidityPriorDayHigh, LiquiditySessionHigh, LiquidityRangeHigh, LiquidityAskZone:
		return true
	}
	return false
}

// LiquidityLevel is a tracked level where resting liquidity is assumed.
type LiquidityLevel struct {
	Price     float64
	Kind      LiquidityKind
	Session   string // set for session levels: "asia", "london", "new_york"
	Strength  float64
	Timestamp time.Time
}

// LiquiditySweep is a wick through a level followed by a close back on the
// original side, used as an entry trigger.
type LiquiditySweep struct {
	Level     LiquidityLevel
	Direction TradeDirection // direction of the reversal trade
	Reason    string
}

// FlowDirection describes capital rotation seen in BTC dominance.
type FlowDirection string

const (
	FlowBTCInflow  FlowDirection = "BTC_INFLOW"
	FlowBTCOutflow FlowDirection = "BTC_OUTFLOW"
	FlowNeutral    FlowDirection = "NEUTRAL"
)

// CapitalFlow is the dominance-rotation read used as a small confidence
// adjunct by the signal generator.
type CapitalFlow struct {
	Direction FlowDirection
	Strength  float64 // [0, 1]
	Momentum  float64
	AsOf      time.Time
}
