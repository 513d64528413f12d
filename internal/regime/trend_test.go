package regime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/knoxfield/regimebot/internal/domain"
)

func seriesFrom(values []float64, start time.Time, step time.Duration) []domain.IndicatorPoint {
	points := make([]domain.IndicatorPoint, len(values))
	for i, v := range values {
		points[i] = domain.IndicatorPoint{Value: v, Timestamp: start.Add(time.Duration(i) * step)}
	}
	return points
}

func TestTrendScorerInsufficientData(t *testing.T) {
	scorer := NewTrendScorer(TrendThresholds{Weak: 0.1, Strong: 0.5})
	now := time.Now().UTC()

	r := scorer.Score(nil, now)
	assert.Equal(t, domain.TrendFlat, r.Direction)
	assert.Equal(t, domain.StrengthNone, r.Strength)
	assert.Zero(t, r.Slope)

	r = scorer.Score([]domain.IndicatorPoint{{Value: 104.2, Timestamp: now}}, now)
	assert.Equal(t, domain.TrendFlat, r.Direction)
	assert.Equal(t, domain.StrengthNone, r.Strength)
	assert.Equal(t, 104.2, r.CurrentValue)
}

func TestTrendScorerDirection(t *testing.T) {
	scorer := NewTrendScorer(TrendThresholds{Weak: 0.1, Strong: 0.5, Lookback: 24})
	now := time.Now().UTC()

	tests := []struct {
		name      string
		values    []float64
		direction domain.TrendDirection
		strength  domain.TrendStrength
	}{
		{
			name:      "strong up",
			values:    []float64{100, 101, 102, 103, 104, 105},
			direction: domain.TrendUp,
			strength:  domain.StrengthStrong,
		},
		{
			name:      "strong down",
			values:    []float64{105, 104, 103, 102, 101, 100},
			direction: domain.TrendDown,
			strength:  domain.StrengthStrong,
		},
		{
			name:      "weak down",
			values:    []float64{100.0, 99.8, 99.7, 99.5, 99.4, 99.2},
			direction: domain.TrendDown,
			strength:  domain.StrengthWeak,
		},
		{
			name:      "flat",
			values:    []float64{100, 100.01, 99.99, 100, 100.02, 99.98},
			direction: domain.TrendFlat,
			strength:  domain.StrengthNone,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := scorer.Score(seriesFrom(tt.values, now.Add(-6*time.Hour), time.Hour), now)
			assert.Equal(t, tt.direction, r.Direction)
			assert.Equal(t, tt.strength, r.Strength)
			assert.Equal(t, tt.values[len(tt.values)-1], r.CurrentValue)
		})
	}
}

func TestTrendScorerLookbackWindow(t *testing.T) {
	scorer := NewTrendScorer(TrendThresholds{Weak: 0.1, Strong: 0.5, Lookback: 4})
	now := time.Now().UTC()

	// A long decline followed by four rising samples: only the recent
	// window should count.
	values := []float64{110, 108, 106, 104, 100, 101, 102, 103}
	r := scorer.Score(seriesFrom(values, now.Add(-8*time.Hour), time.Hour), now)
	assert.Equal(t, domain.TrendUp, r.Direction)
	assert.Equal(t, 4, r.LookbackPeriods)
}

func TestTrendScorerSlopeIsMeanNormalized(t *testing.T) {
	scorer := NewTrendScorer(TrendThresholds{Weak: 0.1, Strong: 0.5, Lookback: 24})
	now := time.Now().UTC()

	// Same relative move at different scales must classify identically.
	small := scorer.Score(seriesFrom([]float64{10, 10.1, 10.2, 10.3}, now.Add(-4*time.Hour), time.Hour), now)
	large := scorer.Score(seriesFrom([]float64{1000, 1010, 1020, 1030}, now.Add(-4*time.Hour), time.Hour), now)
	assert.InDelta(t, small.Slope, large.Slope, 1e-9)
	assert.Equal(t, small.Direction, large.Direction)
	assert.Equal(t, small.Strength, large.Strength)
}

func TestTrendReadingMultiplier(t *testing.T) {
	assert.Equal(t, 1.0, domain.TrendReading{Strength: domain.StrengthStrong}.Multiplier())
	assert.Equal(t, 0.5, domain.TrendReading{Strength: domain.StrengthWeak}.Multiplier())
	assert.Equal(t, 0.0, domain.TrendReading{Strength: domain.StrengthNone}.Multiplier())
}
