package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/knoxfield/regimebot/internal/crypto"
	"github.com/knoxfield/regimebot/internal/domain"
	"github.com/knoxfield/regimebot/internal/executor"
	"github.com/knoxfield/regimebot/internal/feed"
	"github.com/knoxfield/regimebot/internal/market"
	"github.com/knoxfield/regimebot/internal/news"
	"github.com/knoxfield/regimebot/internal/notify"
	"github.com/knoxfield/regimebot/internal/platform/bybit"
	"github.com/knoxfield/regimebot/internal/platform/macro"
	"github.com/knoxfield/regimebot/internal/platform/newsapi"
	"github.com/knoxfield/regimebot/internal/regime"
	"github.com/knoxfield/regimebot/internal/risk"
	"github.com/knoxfield/regimebot/internal/server"
	"github.com/knoxfield/regimebot/internal/server/handler"
	"github.com/knoxfield/regimebot/internal/strategy"
	"github.com/knoxfield/regimebot/internal/trade"
)

// pipeline bundles the components built for one run. Trading fields are nil
// in monitor mode.
type pipeline struct {
	engine    *regime.Engine
	structure *market.StructureTracker
	liquidity *market.LiquidityTracker
	orderflow *market.OrderFlowTracker
	flow      *market.FlowAnalyzer
	prices    *feed.PriceBook

	marketFeed *feed.MarketFeed
	macroFeed  *feed.MacroFeed
	newsFeed   *feed.NewsFeed // nil when no news API key is configured

	events *notify.PipelineEvents

	manager   *trade.Manager
	generator *strategy.Generator
	exec      *executor.Executor
}

// TradeMode runs the full trading pipeline: feeds, regime engine, signal
// generation, sizing, and execution.
func (a *App) TradeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting trade mode")
	return a.runPipeline(ctx, deps, true, false)
}

// MonitorMode runs the feeds, trackers, and regime engine without signal
// generation or execution. The HTTP surface serves the regime and market
// reads; no orders are placed and no positions are managed.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting monitor mode")
	return a.runPipeline(ctx, deps, false, false)
}

// FullMode runs the trading pipeline plus the daily archiver.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")
	return a.runPipeline(ctx, deps, true, true)
}

func (a *App) runPipeline(ctx context.Context, deps *Dependencies, trading, archive bool) error {
	g, ctx := errgroup.WithContext(ctx)

	p, err := a.buildPipeline(deps, trading)
	if err != nil {
		return err
	}

	// Feeds.
	g.Go(func() error { return p.marketFeed.Run(ctx) })
	g.Go(func() error { return p.macroFeed.Run(ctx) })
	if p.newsFeed != nil {
		g.Go(func() error { return p.newsFeed.Run(ctx) })
	} else {
		a.logger.InfoContext(ctx, "news.api_key not set, regime runs on macro inputs only")
	}

	// Regime evaluation cadence.
	g.Go(func() error { return a.runRegimeLoop(ctx, p, deps) })

	// Trading pipeline.
	if trading {
		g.Go(func() error { return p.generator.Run(ctx) })
		g.Go(func() error { return p.exec.Run(ctx) })
		g.Go(func() error { return a.runLimitGuard(ctx, p) })
	}

	// Daily archive.
	if archive {
		if deps.Archiver != nil {
			g.Go(func() error { return deps.Archiver.Run(ctx) })
		} else {
			a.logger.WarnContext(ctx, "archiver disabled: requires both postgres and s3 to be enabled")
		}
	}

	// HTTP surface.
	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, p, trading)
	}

	return g.Wait()
}

// buildPipeline constructs the trackers, engine, feeds, and (when trading)
// the manager/generator/executor chain.
func (a *App) buildPipeline(deps *Dependencies, trading bool) (*pipeline, error) {
	symbol := a.cfg.Strategy.Symbol

	auth, err := a.buildAuth()
	if err != nil {
		return nil, fmt.Errorf("app: credentials: %w", err)
	}
	rest := bybit.NewClient(a.cfg.Bybit.BaseURL, auth)
	ws := bybit.NewWSClient(a.cfg.Bybit.WSURL)

	p := &pipeline{
		structure: market.NewStructureTracker(symbol, 100, 2),
		liquidity: market.NewLiquidityTracker(symbol),
		orderflow: market.NewOrderFlowTracker(symbol),
		flow:      market.NewFlowAnalyzer(),
		prices:    feed.NewPriceBook(),
	}

	regCfg := regime.DefaultConfig()
	regCfg.ConfidenceThreshold = a.cfg.Regime.ConfidenceThreshold
	regCfg.MinTimeInState = a.cfg.Regime.MinTimeInState.Duration
	p.engine = regime.NewEngine(regCfg, a.logger)

	p.events = notify.NewPipelineEvents(deps.Notifier, deps.EventBus, a.logger)

	var monitor feed.PriceMonitor
	if trading {
		p.manager = trade.NewManager(trade.Config{
			InitialBalance:   a.cfg.Trade.InitialBalance,
			DryRun:           a.cfg.Trade.DryRun,
			MaxClosedHistory: a.cfg.Trade.MaxClosedHistory,
		}, rest, deps.PositionStore, a.logger)
		p.manager.SetEvents(p.events)
		monitor = p.manager

		sizer := risk.NewSizer(risk.Config{
			BaseRiskPercent:     a.cfg.Risk.BaseRiskPercent,
			MinRiskReward:       a.cfg.Risk.MinRiskReward,
			MaxOpenPositions:    a.cfg.Risk.MaxOpenPositions,
			MaxDailyLossPercent: a.cfg.Risk.MaxDailyLossPercent,
			ConfidenceFloor:     a.cfg.Risk.ConfidenceFloor,
		})

		candidates := make(chan domain.TradeCandidate, 32)
		genCfg := strategy.DefaultConfig(symbol)
		genCfg.Interval = a.cfg.Strategy.EvalInterval.Duration
		genCfg.MinConfidence = a.cfg.Strategy.MinConfidence
		genCfg.TriggerMaxAge = a.cfg.Strategy.TriggerMaxAge.Duration
		genCfg.StopBufferPercent = a.cfg.Strategy.StopBufferPercent
		genCfg.OrderFlowVeto = a.cfg.Strategy.OrderFlowVeto
		genCfg.FallbackTargetR = a.cfg.Strategy.FallbackTargetR
		genCfg.ProximityMaxPct = a.cfg.Strategy.ProximityMaxPct
		p.generator = strategy.NewGenerator(
			genCfg, p.engine, p.structure, p.liquidity, p.orderflow, p.flow, p.prices,
			candidates, a.logger,
		)

		p.exec = executor.NewExecutor(candidates, p.engine, sizer, p.manager, deps.EventBus, a.logger)
	}

	feedCfg := feed.MarketFeedConfig{
		Symbol:        symbol,
		Interval:      a.cfg.Strategy.KlineInterval,
		BackfillLimit: a.cfg.Strategy.BackfillCandles,
	}
	p.marketFeed = feed.NewMarketFeed(
		feedCfg, ws, rest,
		p.structure, p.liquidity, p.orderflow, p.prices,
		monitor, deps.PriceCache, a.logger,
	)

	macroClient := macro.NewClient(a.cfg.Macro.DXYURL, a.cfg.Macro.GlobalURL)
	p.macroFeed = feed.NewMacroFeed(macroClient, p.engine, p.flow, deps.PriceCache,
		a.cfg.Macro.PollInterval.Duration, a.logger)

	if a.cfg.News.ApiKey != "" {
		newsClient := newsapi.NewClient(a.cfg.News.BaseURL, a.cfg.News.ApiKey)
		classifier := news.NewClassifier(a.logger)
		p.newsFeed = feed.NewNewsFeed(newsClient, classifier, p.engine, a.cfg.News.Query,
			a.cfg.News.PollInterval.Duration, a.logger)
	}

	return p, nil
}

// buildAuth loads the exchange credentials. It returns nil when no
// credentials are configured; the REST client then serves public market data
// only, which is all that dry-run and monitor operation need.
func (a *App) buildAuth() (*crypto.HMACAuth, error) {
	c := a.cfg.Bybit
	if c.ApiKey == "" && c.EncryptedKeyPath == "" {
		return nil, nil
	}
	creds, err := crypto.LoadCredentials(crypto.CredentialsConfig{
		APIKey:        c.ApiKey,
		APISecret:     c.ApiSecret,
		EncryptedPath: c.EncryptedKeyPath,
		Password:      c.KeyPassword,
	})
	if err != nil {
		return nil, err
	}
	return &crypto.HMACAuth{
		Key:        creds.APIKey,
		Secret:     creds.APISecret,
		RecvWindow: c.RecvWindowMs,
	}, nil
}

// runRegimeLoop re-evaluates the regime on the configured cadence, records
// transitions, and notifies.
func (a *App) runRegimeLoop(ctx context.Context, p *pipeline, deps *Dependencies) error {
	interval := a.cfg.Regime.EvalInterval.Duration
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	a.logger.InfoContext(ctx, "regime evaluation started", slog.Duration("interval", interval))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			_, tr := p.engine.Evaluate(now.UTC())
			if tr == nil {
				continue
			}
			if deps.RegimeStore != nil {
				if err := deps.RegimeStore.RecordTransition(ctx, *tr); err != nil {
					a.logger.ErrorContext(ctx, "record regime transition failed",
						slog.String("error", err.Error()),
					)
				}
			}
			p.events.RegimeTransition(*tr)
		}
	}
}

// runLimitGuard watches the daily realized loss and raises a limit-breach
// notification once per trading day when the stop-out level is crossed. The
// sizer independently rejects new candidates past the same limit; this loop
// only makes the breach visible.
func (a *App) runLimitGuard(ctx context.Context, p *pipeline) error {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	var firedFor time.Time

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			account := p.manager.Account()
			if account.DayStartBalance <= 0 {
				continue
			}
			lossPct := -account.DailyRealizedPnL / account.DayStartBalance * 100
			if lossPct >= a.cfg.Risk.MaxDailyLossPercent && !firedFor.Equal(account.DayStart) {
				firedFor = account.DayStart
				p.events.LimitBreach(
					fmt.Sprintf("daily loss %.2f%% reached the %.2f%% stop-out", lossPct, a.cfg.Risk.MaxDailyLossPercent),
					account,
				)
			}
		}
	}
}

// startHTTPServer registers the handlers available for the current mode and
// adds the server goroutines to the errgroup. In monitor mode the position,
// account, and signal routes stay unregistered.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, p *pipeline, trading bool) {
	handlers := server.Handlers{
		Health: handler.NewHealthHandler(a.cfg.Mode, a.logger),
		Regime: handler.NewRegimeHandler(p.engine, deps.RegimeStore, a.logger),
		Market: handler.NewMarketHandler(
			a.cfg.Strategy.Symbol,
			p.structure, p.liquidity, p.orderflow, p.flow, p.prices, p.marketFeed,
			a.logger,
		),
	}
	if trading {
		handlers.Signal = handler.NewSignalHandler(p.exec, p.generator, a.logger)
		handlers.Positions = handler.NewPositionHandler(p.manager, deps.PositionStore, p.prices, a.logger)
		handlers.Account = handler.NewAccountHandler(p.manager, a.logger)
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
	}, handlers, a.logger)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}
