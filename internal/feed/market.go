package feed

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/knoxfield/regimebot/internal/domain"
	"github.com/knoxfield/regimebot/internal/market"
	"github.com/knoxfield/regimebot/internal/platform/bybit"
)

// cacheWriteInterval throttles last-price writes to the shared cache; trade
// prints arrive far faster than any cache reader polls.
const cacheWriteInterval = time.Second

// PriceMonitor receives every trade price for stop/target monitoring.
type PriceMonitor interface {
	OnPrice(ctx context.Context, symbol string, price float64, now time.Time)
}

// MarketFeedConfig holds the market feed settings.
type MarketFeedConfig struct {
	Symbol        string
	Interval      string // kline interval, e.g. "5"
	BackfillLimit int
}

// DefaultMarketFeedConfig returns the BTCUSDT 5-minute defaults.
func DefaultMarketFeedConfig() MarketFeedConfig {
	return MarketFeedConfig{
		Symbol:        "BTCUSDT",
		Interval:      "5",
		BackfillLimit: 200,
	}
}

// MarketFeed backfills candle history over REST and then streams candles,
// trades, and orderbook snapshots into the market trackers, the price book,
// and the position monitor.
type MarketFeed struct {
	cfg    MarketFeedConfig
	ws     *bybit.WSClient
	rest   *bybit.Client
	logger *slog.Logger

	structure *market.StructureTracker
	liquidity *market.LiquidityTracker
	orderflow *market.OrderFlowTracker
	prices    *PriceBook
	monitor   PriceMonitor      // may be nil when execution is disabled
	cache     domain.PriceCache // may be nil when Redis is not configured

	mu             sync.Mutex
	lastBook       domain.OrderbookSnapshot
	hasBook        bool
	lastCacheWrite time.Time
}

// NewMarketFeed creates a MarketFeed over the given trackers and sinks.
func NewMarketFeed(
	cfg MarketFeedConfig,
	ws *bybit.WSClient,
	rest *bybit.Client,
	structure *market.StructureTracker,
	liquidity *market.LiquidityTracker,
	orderflow *market.OrderFlowTracker,
	prices *PriceBook,
	monitor PriceMonitor,
	cache domain.PriceCache,
	logger *slog.Logger,
) *MarketFeed {
	return &MarketFeed{
		cfg:       cfg,
		ws:        ws,
		rest:      rest,
		structure: structure,
		liquidity: liquidity,
		orderflow: orderflow,
		prices:    prices,
		monitor:   monitor,
		cache:     cache,
		logger:    logger.With(slog.String("component", "market_feed")),
	}
}

// Run backfills history, connects the stream, and blocks until the context
// is cancelled.
func (f *MarketFeed) Run(ctx context.Context) error {
	if err := f.Backfill(ctx); err != nil {
		return err
	}

	f.ws.OnCandle(func(c domain.Candle) { f.handleCandle(ctx, c) })
	f.ws.OnTrade(func(t domain.MarketTrade) { f.handleTrade(ctx, t) })
	f.ws.OnOrderbook(f.handleOrderbook)

	if err := f.ws.Connect(ctx); err != nil {
		return fmt.Errorf("feed: market stream connect: %w", err)
	}
	defer f.ws.Close()

	topics := []string{
		fmt.Sprintf("kline.%s.%s", f.cfg.Interval, f.cfg.Symbol),
		fmt.Sprintf("publicTrade.%s", f.cfg.Symbol),
		fmt.Sprintf("orderbook.50.%s", f.cfg.Symbol),
	}
	if err := f.ws.Subscribe(ctx, topics...); err != nil {
		return fmt.Errorf("feed: market stream subscribe: %w", err)
	}

	f.logger.Info("market feed started",
		slog.String("symbol", f.cfg.Symbol),
		slog.String("interval", f.cfg.Interval),
	)
	defer f.logger.Info("market feed stopped")

	<-ctx.Done()
	return ctx.Err()
}

// Backfill seeds the trackers with recent confirmed candles so structure and
// liquidity reads are meaningful from the first evaluation tick.
func (f *MarketFeed) Backfill(ctx context.Context) error {
	candles, err := f.rest.GetKlines(ctx, f.cfg.Symbol, f.cfg.Interval, f.cfg.BackfillLimit)
	if err != nil {
		return fmt.Errorf("feed: backfill: %w", err)
	}

	confirmed := 0
	for _, c := range candles {
		if !c.Confirmed {
			continue
		}
		f.structure.AddCandle(c)
		f.liquidity.AddCandle(c)
		confirmed++
	}

	f.logger.Info("backfill complete",
		slog.String("symbol", f.cfg.Symbol),
		slog.Int("candles", confirmed),
	)
	return nil
}

// LastOrderbook returns the most recent depth snapshot.
func (f *MarketFeed) LastOrderbook() (domain.OrderbookSnapshot, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastBook, f.hasBook
}

func (f *MarketFeed) handleCandle(ctx context.Context, c domain.Candle) {
	if c.Symbol != f.cfg.Symbol {
		return
	}

	if event := f.structure.AddCandle(c); event != nil {
		f.logger.Info("structure event",
			slog.String("kind", string(event.Kind)),
			slog.String("direction", string(event.Direction)),
			slog.Float64("level", event.Level),
		)
	}
	if sweep := f.liquidity.AddCandle(c); sweep != nil {
		f.logger.Info("liquidity sweep",
			slog.String("kind", string(sweep.Level.Kind)),
			slog.String("direction", string(sweep.Direction)),
			slog.Float64("level", sweep.Level.Price),
		)
	}
}

func (f *MarketFeed) handleTrade(ctx context.Context, t domain.MarketTrade) {
	if t.Symbol != f.cfg.Symbol {
		return
	}

	f.orderflow.AddTrade(t)
	f.prices.Update(t.Symbol, t.Price, t.Timestamp)

	if f.monitor != nil {
		f.monitor.OnPrice(ctx, t.Symbol, t.Price, t.Timestamp)
	}

	f.writeCache(ctx, t)
}

func (f *MarketFeed) handleOrderbook(snap domain.OrderbookSnapshot) {
	if snap.Symbol != f.cfg.Symbol {
		return
	}
	f.liquidity.UpdateOrderbook(snap)
	f.mu.Lock()
	f.lastBook = snap
	f.hasBook = true
	f.mu.Unlock()
}

// writeCache pushes the last price to the shared cache at most once per
// cacheWriteInterval.
func (f *MarketFeed) writeCache(ctx context.Context, t domain.MarketTrade) {
	if f.cache == nil {
		return
	}

	f.mu.Lock()
	due := time.Since(f.lastCacheWrite) >= cacheWriteInterval
	if due {
		f.lastCacheWrite = time.Now()
	}
	f.mu.Unlock()
	if !due {
		return
	}

	if err := f.cache.Set(ctx, "price:"+t.Symbol, t.Price, t.Timestamp); err != nil {
		f.logger.Debug("price cache write failed", slog.String("error", err.Error()))
	}
}
