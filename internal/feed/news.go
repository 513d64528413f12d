package feed

import (
	"context"
	"log/slog"
	"time"

	"github.com/knoxfield/regimebot/internal/news"
	"github.com/knoxfield/regimebot/internal/platform/newsapi"
	"github.com/knoxfield/regimebot/internal/regime"
)

// fetchOverlap widens each poll window backwards so slow-to-index articles
// are not missed; the classifier dedups repeats by ID.
const fetchOverlap = 5 * time.Minute

// NewsFeed polls headlines, classifies them, and pushes the aggregated
// signal into the regime engine.
type NewsFeed struct {
	client     *newsapi.Client
	classifier *news.Classifier
	engine     *regime.Engine
	query      string
	pageSize   int
	interval   time.Duration
	logger     *slog.Logger

	lastPoll time.Time
}

// NewNewsFeed creates a NewsFeed polling at the given interval (10 minutes
// when zero).
func NewNewsFeed(client *newsapi.Client, classifier *news.Classifier, engine *regime.Engine, query string, interval time.Duration, logger *slog.Logger) *NewsFeed {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &NewsFeed{
		client:     client,
		classifier: classifier,
		engine:     engine,
		query:      query,
		pageSize:   50,
		interval:   interval,
		logger:     logger.With(slog.String("component", "news_feed")),
	}
}

// Run polls immediately and then on every tick until the context is
// cancelled.
func (f *NewsFeed) Run(ctx context.Context) error {
	f.logger.Info("news feed started", slog.Duration("interval", f.interval))
	defer f.logger.Info("news feed stopped")

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

// Poll fetches one page of headlines and refreshes the engine's news
// signal. A failed fetch keeps the previous signal; the engine's freshness
// window handles prolonged outages.
func (f *NewsFeed) Poll(ctx context.Context) {
	now := time.Now().UTC()

	since := f.lastPoll
	if !since.IsZero() {
		since = since.Add(-fetchOverlap)
	}

	items, err := f.client.FetchHeadlines(ctx, f.query, since, f.pageSize)
	if err != nil {
		f.logger.Warn("news poll failed", slog.String("error", err.Error()))
		return
	}
	f.lastPoll = now

	admitted := f.classifier.Ingest(items)
	signal := f.classifier.Signal(now)
	f.engine.SetNewsSignal(signal)

	f.logger.Debug("news poll complete",
		slog.Int("fetched", len(items)),
		slog.Int("admitted", admitted),
		slog.String("risk_signal", string(signal.RiskSignal)),
		slog.Int("samples", signal.SampleCount),
	)
}
