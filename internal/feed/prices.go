// Package feed connects the exchange and macro data sources to the in-memory
// trackers the pipeline reads: candles and trades into the market trackers,
// macro indicator samples into the regime engine, and headlines into the
// news classifier.
package feed

import (
	"sync"
	"time"
)

// PriceBook holds the last traded price per symbol. It satisfies the signal
// generator's price source.
type PriceBook struct {
	mu     sync.RWMutex
	prices map[string]pricePoint
}

type pricePoint struct {
	price float64
	ts    time.Time
}

// NewPriceBook creates an empty price book.
func NewPriceBook() *PriceBook {
	return &PriceBook{
		prices: make(map[string]pricePoint),
	}
}

// Update records the last traded price for a symbol.
func (b *PriceBook) Update(symbol string, price float64, ts time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.prices[symbol] = pricePoint{price: price, ts: ts}
}

// LastPrice returns the last traded price and its observation time. ok is
// false when the symbol has never traded.
func (b *PriceBook) LastPrice(symbol string) (float64, time.Time, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	p, ok := b.prices[symbol]
	if !ok {
		return 0, time.Time{}, false
	}
	return p.price, p.ts, true
}
