package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/knoxfield/regimebot/internal/domain"
)

// StructureSource supplies the market-structure read.
type StructureSource interface {
	Trend() domain.StructureTrend
	LastEvent() (*domain.StructureEvent, time.Time)
}

// LiquiditySource supplies the tracked liquidity levels.
type LiquiditySource interface {
	Levels() []domain.LiquidityLevel
	LastSweep() (*domain.LiquiditySweep, time.Time)
}

// OrderFlowSource supplies the current order-flow imbalance.
type OrderFlowSource interface {
	Imbalance() float64
	SampleCount() int
}

// CapitalFlowSource supplies the dominance-rotation read.
type CapitalFlowSource interface {
	Flow(now time.Time) domain.CapitalFlow
}

// OrderbookSource supplies the last depth snapshot.
type OrderbookSource interface {
	LastOrderbook() (domain.OrderbookSnapshot, bool)
}

// MarketHandler serves the tracker snapshots for one symbol.
type MarketHandler struct {
	symbol    string
	structure StructureSource
	liquidity LiquiditySource
	orderflow OrderFlowSource
	flow      CapitalFlowSource
	prices    LastPriceSource
	book      OrderbookSource
	logger    *slog.Logger
}

// NewMarketHandler creates a MarketHandler over the trackers for symbol.
func NewMarketHandler(
	symbol string,
	structure StructureSource,
	liquidity LiquiditySource,
	orderflow OrderFlowSource,
	flow CapitalFlowSource,
	prices LastPriceSource,
	book OrderbookSource,
	logger *slog.Logger,
) *MarketHandler {
	return &MarketHandler{
		symbol:    symbol,
		structure: structure,
		liquidity: liquidity,
		orderflow: orderflow,
		flow:      flow,
		prices:    prices,
		book:      book,
		logger:    logger,
	}
}

// GetMarket responds with the combined market read: structure trend, last
// structural event, liquidity levels, order-flow imbalance, capital flow,
// last price, and top of book.
// GET /api/market
func (h *MarketHandler) GetMarket(w http.ResponseWriter, r *http.Request) {
	now := time.Now().UTC()
	resp := map[string]any{"symbol": h.symbol}

	if h.structure != nil {
		resp["trend"] = h.structure.Trend()
		if event, at := h.structure.LastEvent(); event != nil {
			resp["last_event"] = map[string]any{
				"kind":      event.Kind,
				"direction": event.Direction,
				"level":     event.Level,
				"reason":    event.Reason,
				"at":        at,
			}
		}
	}

	if h.liquidity != nil {
		resp["liquidity_levels"] = h.liquidity.Levels()
		if sweep, at := h.liquidity.LastSweep(); sweep != nil {
			resp["last_sweep"] = map[string]any{
				"kind":      sweep.Level.Kind,
				"level":     sweep.Level.Price,
				"direction": sweep.Direction,
				"at":        at,
			}
		}
	}

	if h.orderflow != nil {
		resp["orderflow"] = map[string]any{
			"imbalance": h.orderflow.Imbalance(),
			"samples":   h.orderflow.SampleCount(),
		}
	}

	if h.flow != nil {
		resp["capital_flow"] = h.flow.Flow(now)
	}

	if h.prices != nil {
		if price, at, ok := h.prices.LastPrice(h.symbol); ok {
			resp["last_price"] = map[string]any{"price": price, "at": at}
		}
	}

	if h.book != nil {
		if snap, ok := h.book.LastOrderbook(); ok {
			top := map[string]any{"at": snap.Timestamp}
			if len(snap.Bids) > 0 {
				top["best_bid"] = snap.Bids[0]
			}
			if len(snap.Asks) > 0 {
				top["best_ask"] = snap.Asks[0]
			}
			resp["orderbook"] = top
		}
	}

	writeJSON(w, http.StatusOK, resp)
}
