package market

import (
	"sync"

	"github.com/knoxfield/regimebot/internal/domain"
)

const flowTradeWindow = 20

// OrderFlowTracker computes a signed buy/sell imbalance over the most recent
// trade prints. Score +1 is all taker buying, -1 all taker selling.
type OrderFlowTracker struct {
	symbol string

	mu     sync.Mutex
	trades []domain.MarketTrade
}

// NewOrderFlowTracker creates an empty tracker for one symbol.
func NewOrderFlowTracker(symbol string) *OrderFlowTracker {
	return &OrderFlowTracker{symbol: symbol}
}

// AddTrade ingests one public trade print.
func (t *OrderFlowTracker) AddTrade(tr domain.MarketTrade) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.trades = append(t.trades, tr)
	if len(t.trades) > flowTradeWindow {
		t.trades = t.trades[len(t.trades)-flowTradeWindow:]
	}
}

// Imbalance returns the volume-weighted signed score in [-1, 1]. Zero with
// no trades in the window.
func (t *OrderFlowTracker) Imbalance() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	var buy, sell float64
	for _, tr := range t.trades {
		if tr.Side == "Buy" {
			buy += tr.Quantity
		} else {
			sell += tr.Quantity
		}
	}
	total := buy + sell
	if total == 0 {
		return 0
	}
	return (buy - sell) / total
}

// SampleCount returns the number of trades currently in the window.
func (t *OrderFlowTracker) SampleCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.trades)
}
