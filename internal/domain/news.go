package domain

import "time"

// RiskSignal is the aggregated macro read of recent news.
type RiskSignal string

const (
	RiskSignalOn      RiskSignal = "RISK_ON"
	RiskSignalOff     RiskSignal = "RISK_OFF"
	RiskSignalNeutral RiskSignal = "NEUTRAL"
)

// Alignment describes whether crypto is trading with or against the macro
// tape according to the news flow.
type Alignment string

const (
	AlignmentAligned   Alignment = "ALIGNED"
	AlignmentDecoupled Alignment = "DECOUPLED"
	AlignmentNeutral   Alignment = "NEUTRAL"
)

// ImpactLevel ranks how market-moving a news item is. It also determines how
// long the item stays in the rolling aggregation window.
type ImpactLevel string

const (
	ImpactHigh   ImpactLevel = "HIGH"
	ImpactMedium ImpactLevel = "MEDIUM"
	ImpactLow    ImpactLevel = "LOW"
)

// ExpiryWindow returns how long an item of this impact level contributes to
// the aggregated signal (HIGH 4h, MEDIUM 2h, LOW 1h).
func (l ImpactLevel) ExpiryWindow() time.Duration {
	switch l {
	case ImpactHigh:
		return 4 * time.Hour
	case ImpactMedium:
		return 2 * time.Hour
	default:
		return time.Hour
	}
}

// NewsItem is one raw headline from the news feed.
type NewsItem struct {
	ID          string
	Title       string
	Description string
	Source      string
	PublishedAt time.Time
}

// NewsSignal is the point-in-time aggregate the regime engine consumes. It is
// produced by the classifier over its rolling expiry window and never
// mutated afterwards.
type NewsSignal struct {
	SampleCount      int
	AverageSentiment float64 // [-1, 1]
	RiskSignal       RiskSignal
	Alignment        Alignment
	HighImpactCount  int
	AsOf             time.Time
}
