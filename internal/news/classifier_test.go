package news

import (
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/knoxfield/regimebot/internal/domain"
)

func newTestClassifier() *Classifier {
	return NewClassifier(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func headline(id, title string, publishedAt time.Time) domain.NewsItem {
	return domain.NewsItem{ID: id, Title: title, Source: "test", PublishedAt: publishedAt}
}

func TestClassifierEmptyWindowIsNeutral(t *testing.T) {
	c := newTestClassifier()
	s := c.Signal(time.Now().UTC())
	assert.Zero(t, s.SampleCount)
	assert.Equal(t, domain.RiskSignalNeutral, s.RiskSignal)
	assert.Equal(t, domain.AlignmentNeutral, s.Alignment)
}

func TestClassifierRiskOffAggregation(t *testing.T) {
	c := newTestClassifier()
	now := time.Now().UTC()

	n := c.Ingest([]domain.NewsItem{
		headline("1", "Fed signals another rate hike as inflation surges", now.Add(-10*time.Minute)),
		headline("2", "Major exchange hack triggers liquidation cascade", now.Add(-20*time.Minute)),
		headline("3", "Regional bank failure sparks contagion fears", now.Add(-30*time.Minute)),
	})
	require.Equal(t, 3, n)

	s := c.Signal(now)
	assert.Equal(t, 3, s.SampleCount)
	assert.Equal(t, domain.RiskSignalOff, s.RiskSignal)
	assert.Equal(t, domain.AlignmentAligned, s.Alignment)
	assert.Equal(t, 3, s.HighImpactCount)
	assert.Negative(t, s.AverageSentiment)
}

func TestClassifierRiskOnAggregation(t *testing.T) {
	c := newTestClassifier()
	now := time.Now().UTC()

	c.Ingest([]domain.NewsItem{
		headline("1", "Fed cuts rates after soft CPI print", now.Add(-5*time.Minute)),
		headline("2", "Spot ETF approval drives record inflows", now.Add(-15*time.Minute)),
	})

	s := c.Signal(now)
	assert.Equal(t, domain.RiskSignalOn, s.RiskSignal)
	assert.Equal(t, domain.AlignmentAligned, s.Alignment)
	assert.Positive(t, s.AverageSentiment)
}

func TestClassifierDecoupledAlignment(t *testing.T) {
	c := newTestClassifier()
	now := time.Now().UTC()

	c.Ingest([]domain.NewsItem{
		headline("1", "Bitcoin decouples from equities in risk rout", now.Add(-time.Minute)),
		headline("2", "Crypto rallies despite stock market slide, seen as safe haven", now.Add(-2*time.Minute)),
	})

	s := c.Signal(now)
	assert.Equal(t, domain.AlignmentDecoupled, s.Alignment)
}

func TestClassifierDropsUnmatchedAndDuplicates(t *testing.T) {
	c := newTestClassifier()
	now := time.Now().UTC()

	n := c.Ingest([]domain.NewsItem{
		headline("1", "Celebrity launches new cooking show", now),
		headline("2", "Fed signals rate cut", now),
		headline("2", "Fed signals rate cut", now),
	})
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, c.Signal(now).SampleCount)
}

func TestClassifierImpactExpiry(t *testing.T) {
	c := newTestClassifier()
	now := time.Now().UTC()

	c.Ingest([]domain.NewsItem{
		// LOW expires after 1h, MEDIUM after 2h, HIGH after 4h.
		headline("low", "Altcoin rally continues", now.Add(-90*time.Minute)),
		headline("med", "Hawkish Fed minutes rattle markets", now.Add(-90*time.Minute)),
		headline("high", "Surprise rate hike announced", now.Add(-5*time.Hour)),
	})

	s := c.Signal(now)
	assert.Equal(t, 1, s.SampleCount)
	assert.Equal(t, domain.RiskSignalOff, s.RiskSignal)
	assert.Zero(t, s.HighImpactCount)
}

func TestClassifierExpiryAllowsReingest(t *testing.T) {
	c := newTestClassifier()
	now := time.Now().UTC()

	c.Ingest([]domain.NewsItem{headline("1", "Market rally broadens", now.Add(-2*time.Hour))})
	assert.Zero(t, c.Signal(now).SampleCount)

	// After expiry the same ID may be ingested again.
	n := c.Ingest([]domain.NewsItem{headline("1", "Market rally broadens", now)})
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, c.Signal(now).SampleCount)
}

func TestClassifierSentimentClamped(t *testing.T) {
	item := headline("1", "Bank failure, credit crisis, exchange hack and liquidation amid sell-off", time.Now().UTC())
	scored, ok := classifyItem(item)
	require.True(t, ok)
	assert.Equal(t, -1.0, scored.sentiment)
	assert.Equal(t, domain.ImpactHigh, scored.impact)
}

func TestClassifierConcurrentIngest(t *testing.T) {
	c := newTestClassifier()
	now := time.Now().UTC()

	done := make(chan struct{})
	for g := 0; g < 4; g++ {
		go func(g int) {
			defer func() { done <- struct{}{} }()
			for i := 0; i < 25; i++ {
				c.Ingest([]domain.NewsItem{
					headline(fmt.Sprintf("%d-%d", g, i), "ETF inflows accelerate", now),
				})
				c.Signal(now)
			}
		}(g)
	}
	for g := 0; g < 4; g++ {
		<-done
	}
	assert.Equal(t, 100, c.Signal(now).SampleCount)
}
