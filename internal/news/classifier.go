// Package news turns raw headlines into the aggregated risk signal the
// regime engine consumes. Classification is keyword-driven: each headline
// gets a sentiment score, an impact level and an alignment read, then the
// classifier aggregates every item still inside its impact-dependent expiry
// window.
package news

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/knoxfield/regimebot/internal/domain"
)

// Sentiment cutoffs for the aggregated risk read.
const (
	riskOnThreshold  = 0.2
	riskOffThreshold = -0.2
)

// scoredItem is a classified headline held in the rolling window.
type scoredItem struct {
	item      domain.NewsItem
	sentiment float64
	impact    domain.ImpactLevel
	decoupled bool
}

// Classifier scores headlines and maintains the rolling aggregation window.
// Safe for concurrent use: the news poller writes, the regime loop reads.
type Classifier struct {
	logger *slog.Logger

	mu    sync.Mutex
	items []scoredItem
	seen  map[string]struct{}
}

// NewClassifier creates an empty classifier.
func NewClassifier(logger *slog.Logger) *Classifier {
	return &Classifier{
		logger: logger.With(slog.String("component", "news_classifier")),
		seen:   make(map[string]struct{}),
	}
}

// Ingest classifies and stores a batch of headlines. Duplicate IDs and items
// with no keyword match are dropped. Returns the number of items admitted.
func (c *Classifier) Ingest(items []domain.NewsItem) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	admitted := 0
	for _, item := range items {
		if _, dup := c.seen[item.ID]; dup {
			continue
		}
		scored, ok := classifyItem(item)
		if !ok {
			continue
		}
		c.seen[item.ID] = struct{}{}
		c.items = append(c.items, scored)
		admitted++
		c.logger.Debug("headline classified",
			slog.String("source", item.Source),
			slog.Float64("sentiment", scored.sentiment),
			slog.String("impact", string(scored.impact)),
		)
	}
	return admitted
}

// Signal aggregates the non-expired window into a NewsSignal at time now.
// An empty window yields a NEUTRAL signal with SampleCount zero.
func (c *Classifier) Signal(now time.Time) domain.NewsSignal {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.expireLocked(now)

	signal := domain.NewsSignal{
		RiskSignal: domain.RiskSignalNeutral,
		Alignment:  domain.AlignmentNeutral,
		AsOf:       now,
	}
	if len(c.items) == 0 {
		return signal
	}

	var sum float64
	decoupledCount := 0
	for _, it := range c.items {
		sum += it.sentiment
		if it.impact == domain.ImpactHigh {
			signal.HighImpactCount++
		}
		if it.decoupled {
			decoupledCount++
		}
	}
	signal.SampleCount = len(c.items)
	signal.AverageSentiment = sum / float64(len(c.items))

	switch {
	case signal.AverageSentiment >= riskOnThreshold:
		signal.RiskSignal = domain.RiskSignalOn
	case signal.AverageSentiment <= riskOffThreshold:
		signal.RiskSignal = domain.RiskSignalOff
	}

	// Alignment: a third of the window flagging decoupling outweighs the
	// directional read; otherwise a non-neutral read is aligned.
	switch {
	case decoupledCount*3 >= len(c.items):
		signal.Alignment = domain.AlignmentDecoupled
	case signal.RiskSignal != domain.RiskSignalNeutral:
		signal.Alignment = domain.AlignmentAligned
	}
	return signal
}

// expireLocked drops items past their impact-dependent window and prunes the
// dedup set alongside.
func (c *Classifier) expireLocked(now time.Time) {
	kept := c.items[:0]
	for _, it := range c.items {
		if now.Sub(it.item.PublishedAt) <= it.impact.ExpiryWindow() {
			kept = append(kept, it)
		} else {
			delete(c.seen, it.item.ID)
		}
	}
	c.items = kept
}

// classifyItem scores one headline. The strongest matching rule on each side
// contributes; an item matching nothing is not admitted.
func classifyItem(item domain.NewsItem) (scoredItem, bool) {
	text := strings.ToLower(item.Title + " " + item.Description)

	scored := scoredItem{item: item, impact: domain.ImpactLow}
	matched := false

	for _, rule := range riskOffRules {
		if strings.Contains(text, rule.phrase) {
			scored.sentiment += rule.sentiment
			scored.impact = maxImpact(scored.impact, rule.impact)
			matched = true
		}
	}
	for _, rule := range riskOnRules {
		if strings.Contains(text, rule.phrase) {
			scored.sentiment += rule.sentiment
			scored.impact = maxImpact(scored.impact, rule.impact)
			matched = true
		}
	}
	for _, phrase := range decoupledRules {
		if strings.Contains(text, phrase) {
			scored.decoupled = true
			matched = true
		}
	}
	if !matched {
		return scoredItem{}, false
	}

	if scored.sentiment > 1 {
		scored.sentiment = 1
	} else if scored.sentiment < -1 {
		scored.sentiment = -1
	}
	return scored, true
}

func maxImpact(a, b domain.ImpactLevel) domain.ImpactLevel {
	rank := func(l domain.ImpactLevel) int {
		switch l {
		case domain.ImpactHigh:
			return 2
		case domain.ImpactMedium:
			return 1
		default:
			return 0
		}
	}
	if rank(b) > rank(a) {
		return b
	}
	return a
}
