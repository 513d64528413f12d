package feed

import (
	"context"
	"log/slog"
	"time"

	"github.com/knoxfield/regimebot/internal/domain"
	"github.com/knoxfield/regimebot/internal/market"
	"github.com/knoxfield/regimebot/internal/platform/macro"
	"github.com/knoxfield/regimebot/internal/regime"
)

// MacroFeed polls the macro indicators and feeds samples into the regime
// engine and the capital-flow analyzer. One bad poll is logged and retried
// on the next tick; consumers degrade on their own freshness windows.
type MacroFeed struct {
	client   *macro.Client
	engine   *regime.Engine
	flow     *market.FlowAnalyzer
	cache    domain.PriceCache // may be nil
	interval time.Duration
	logger   *slog.Logger
}

// NewMacroFeed creates a MacroFeed polling at the given interval (hourly
// when zero).
func NewMacroFeed(client *macro.Client, engine *regime.Engine, flow *market.FlowAnalyzer, cache domain.PriceCache, interval time.Duration, logger *slog.Logger) *MacroFeed {
	if interval <= 0 {
		interval = time.Hour
	}
	return &MacroFeed{
		client:   client,
		engine:   engine,
		flow:     flow,
		cache:    cache,
		interval: interval,
		logger:   logger.With(slog.String("component", "macro_feed")),
	}
}

// Run polls immediately and then on every tick until the context is
// cancelled.
func (f *MacroFeed) Run(ctx context.Context) error {
	f.logger.Info("macro feed started", slog.Duration("interval", f.interval))
	defer f.logger.Info("macro feed stopped")

	f.Poll(ctx)

	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			f.Poll(ctx)
		}
	}
}

// Poll fetches both indicators once. Each indicator fails independently.
func (f *MacroFeed) Poll(ctx context.Context) {
	if point, err := f.client.FetchDXY(ctx); err != nil {
		f.logger.Warn("dxy poll failed", slog.String("error", err.Error()))
	} else {
		f.engine.AddDXYSample(point)
		f.cacheSet(ctx, "macro:dxy", point)
		f.logger.Debug("dxy sample", slog.Float64("value", point.Value))
	}

	if point, err := f.client.FetchBTCDominance(ctx); err != nil {
		f.logger.Warn("btc dominance poll failed", slog.String("error", err.Error()))
	} else {
		f.engine.AddBTCDominanceSample(point)
		if f.flow != nil {
			f.flow.AddSample(point)
		}
		f.cacheSet(ctx, "macro:btc_dominance", point)
		f.logger.Debug("btc dominance sample", slog.Float64("value", point.Value))
	}
}

func (f *MacroFeed) cacheSet(ctx context.Context, key string, point domain.IndicatorPoint) {
	if f.cache == nil {
		return
	}
	if err := f.cache.Set(ctx, key, point.Value, point.Timestamp); err != nil {
		f.logger.Debug("macro cache write failed",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
	}
}
