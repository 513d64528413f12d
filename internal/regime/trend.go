package regime

import (
	"time"

	"github.com/knoxfield/regimebot/internal/domain"
)

// TrendThresholds hold the per-indicator slope cutoffs, expressed in percent
// change per period after mean-normalization.
type TrendThresholds struct {
	Weak     float64 // direction epsilon and WEAK strength floor
	Strong   float64 // STRONG strength floor
	Lookback int     // number of most recent samples scored
}

// TrendScorer converts a bounded indicator series into a TrendReading. It is
// a pure function of its inputs: no side effects, never fails. Fewer than two
// samples degrade to a FLAT/NONE reading.
type TrendScorer struct {
	thresholds TrendThresholds
}

// NewTrendScorer creates a scorer with the given thresholds. A non-positive
// lookback defaults to 24 periods.
func NewTrendScorer(t TrendThresholds) *TrendScorer {
	if t.Lookback <= 0 {
		t.Lookback = 24
	}
	return &TrendScorer{thresholds: t}
}

// Score fits an ordinary least-squares line to the last Lookback samples and
// classifies the normalized slope. Samples must be ordered time-ascending.
func (s *TrendScorer) Score(points []domain.IndicatorPoint, now time.Time) domain.TrendReading {
	reading := domain.TrendReading{
		Direction: domain.TrendFlat,
		Strength:  domain.StrengthNone,
		AsOf:      now,
	}
	if len(points) == 0 {
		return reading
	}
	reading.CurrentValue = points[len(points)-1].Value
	if len(points) < 2 {
		return reading
	}

	window := points
	if len(window) > s.thresholds.Lookback {
		window = window[len(window)-s.thresholds.Lookback:]
	}
	reading.LookbackPeriods = len(window)

	slope := olsSlope(window)

	// Normalize by the window mean so the slope is a scale-independent
	// percent rate, comparable across indicators.
	mean := windowMean(window)
	if mean != 0 {
		slope = slope / mean * 100
	}
	reading.Slope = slope

	abs := slope
	if abs < 0 {
		abs = -abs
	}
	switch {
	case slope > s.thresholds.Weak:
		reading.Direction = domain.TrendUp
	case slope < -s.thresholds.Weak:
		reading.Direction = domain.TrendDown
	}
	switch {
	case abs >= s.thresholds.Strong:
		reading.Strength = domain.StrengthStrong
	case abs >= s.thresholds.Weak:
		reading.Strength = domain.StrengthWeak
	}
	return reading
}

// olsSlope returns the least-squares slope of value against sample index.
func olsSlope(points []domain.IndicatorPoint) float64 {
	n := float64(len(points))
	var sumX, sumY, sumXY, sumXX float64
	for i, p := range points {
		x := float64(i)
		sumX += x
		sumY += p.Value
		sumXY += x * p.Value
		sumXX += x * x
	}
	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0
	}
	return (n*sumXY - sumX*sumY) / denom
}

func windowMean(points []domain.IndicatorPoint) float64 {
	var sum float64
	for _, p := range points {
		sum += p.Value
	}
	return sum / float64(len(points))
}
