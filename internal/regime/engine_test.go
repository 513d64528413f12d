package regime

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/knoxfield/regimebot/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEngine(t *testing.T, mutate func(*Config)) *Engine {
	t.Helper()
	cfg := DefaultConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	return NewEngine(cfg, testLogger())
}

func reading(dir domain.TrendDirection, strength domain.TrendStrength) *domain.TrendReading {
	return &domain.TrendReading{Direction: dir, Strength: strength, AsOf: time.Now().UTC()}
}

func TestEngineStartsInChop(t *testing.T) {
	e := newTestEngine(t, nil)
	out := e.Current()
	assert.Equal(t, domain.RegimeChop, out.State)
	assert.False(t, out.Permissions.TradingEnabled)
	assert.Zero(t, out.Permissions.SizeMultiplier)
}

// A weak falling dollar, weakly falling dominance and aligned risk-on news
// should flip the engine out of CHOP once the dwell time has elapsed.
func TestEngineRiskOnAlignment(t *testing.T) {
	e := newTestEngine(t, nil)
	now := time.Now().UTC().Add(2 * time.Hour)

	input := domain.RegimeInput{
		DXYTrend:    reading(domain.TrendDown, domain.StrengthWeak),
		BTCDomTrend: reading(domain.TrendDown, domain.StrengthWeak),
		News: &domain.NewsSignal{
			SampleCount: 5,
			RiskSignal:  domain.RiskSignalOn,
			Alignment:   domain.AlignmentAligned,
			AsOf:        now,
		},
		Timestamp: now,
	}

	out, transition := e.EvaluateInput(input)
	require.NotNil(t, transition)
	assert.Equal(t, domain.RegimeChop, transition.From)
	assert.Equal(t, domain.RegimeRiskOn, transition.To)
	assert.Equal(t, domain.RegimeRiskOn, out.State)
	assert.Greater(t, out.Confidence, 0.6)
	assert.True(t, out.Permissions.TradingEnabled)
	assert.Equal(t, 1.0, out.Permissions.SizeMultiplier)
	assert.True(t, out.Permissions.Allows(domain.DirectionLong))
	assert.False(t, out.Permissions.Allows(domain.DirectionShort))
}

func TestEngineHysteresisBlocksLowConfidence(t *testing.T) {
	e := newTestEngine(t, nil)
	now := time.Now().UTC().Add(2 * time.Hour)

	// Conflicting inputs: strong dollar argues risk-off while the news
	// says risk-on. No state clears the confidence threshold.
	input := domain.RegimeInput{
		DXYTrend:    reading(domain.TrendUp, domain.StrengthStrong),
		BTCDomTrend: reading(domain.TrendDown, domain.StrengthStrong),
		News: &domain.NewsSignal{
			SampleCount: 3,
			RiskSignal:  domain.RiskSignalOn,
			Alignment:   domain.AlignmentNeutral,
			AsOf:        now,
		},
		Timestamp: now,
	}

	out, transition := e.EvaluateInput(input)
	assert.Nil(t, transition)
	assert.Equal(t, domain.RegimeChop, out.State)
	assert.Less(t, out.Confidence, 0.6)
}

func TestEngineHysteresisBlocksEarlyTransition(t *testing.T) {
	e := newTestEngine(t, nil)

	// Strong unambiguous risk-on read, but only 10 minutes into the
	// current state: the dwell rule must hold it back.
	early := time.Now().UTC().Add(10 * time.Minute)
	input := domain.RegimeInput{
		DXYTrend:    reading(domain.TrendDown, domain.StrengthStrong),
		BTCDomTrend: reading(domain.TrendDown, domain.StrengthStrong),
		Timestamp:   early,
	}
	out, transition := e.EvaluateInput(input)
	assert.Nil(t, transition)
	assert.Equal(t, domain.RegimeChop, out.State)
	assert.Greater(t, out.Confidence, 0.6, "confidence is reported even while the transition is held")

	// Same read after the dwell time elapses goes through.
	input.Timestamp = time.Now().UTC().Add(2 * time.Hour)
	out, transition = e.EvaluateInput(input)
	require.NotNil(t, transition)
	assert.Equal(t, domain.RegimeRiskOn, out.State)
}

func TestEngineStableInputNoRepeatTransitions(t *testing.T) {
	e := newTestEngine(t, nil)
	base := time.Now().UTC().Add(2 * time.Hour)

	input := domain.RegimeInput{
		DXYTrend:  reading(domain.TrendUp, domain.StrengthStrong),
		Timestamp: base,
	}
	_, transition := e.EvaluateInput(input)
	require.NotNil(t, transition)
	assert.Equal(t, domain.RegimeRiskOff, transition.To)

	for i := 1; i <= 5; i++ {
		input.Timestamp = base.Add(time.Duration(i) * 2 * time.Hour)
		out, tr := e.EvaluateInput(input)
		assert.Nil(t, tr)
		assert.Equal(t, domain.RegimeRiskOff, out.State)
	}
	assert.Len(t, e.Transitions(), 1)
}

func TestEngineMissingInputsDegradeToChop(t *testing.T) {
	e := newTestEngine(t, nil)
	now := time.Now().UTC().Add(2 * time.Hour)

	out, transition := e.EvaluateInput(domain.RegimeInput{Timestamp: now})
	assert.Nil(t, transition)
	assert.Equal(t, domain.RegimeChop, out.State)
	assert.Zero(t, out.Confidence)
}

func TestEngineHighImpactNewsSuppressesChop(t *testing.T) {
	now := time.Now().UTC()
	quiet := newsContribution(domain.NewsSignal{
		SampleCount: 2,
		RiskSignal:  domain.RiskSignalNeutral,
		Alignment:   domain.AlignmentNeutral,
		AsOf:        now,
	})
	loud := newsContribution(domain.NewsSignal{
		SampleCount:     2,
		RiskSignal:      domain.RiskSignalNeutral,
		Alignment:       domain.AlignmentNeutral,
		HighImpactCount: 1,
		AsOf:            now,
	})
	assert.Equal(t, quiet[domain.RegimeChop]/2, loud[domain.RegimeChop])
}

func TestEngineDecoupledNews(t *testing.T) {
	e := newTestEngine(t, nil)
	now := time.Now().UTC().Add(2 * time.Hour)

	// Rising dominance plus decoupled news: BTC trading on its own.
	input := domain.RegimeInput{
		BTCDomTrend: reading(domain.TrendUp, domain.StrengthStrong),
		News: &domain.NewsSignal{
			SampleCount: 4,
			RiskSignal:  domain.RiskSignalNeutral,
			Alignment:   domain.AlignmentDecoupled,
			AsOf:        now,
		},
		Timestamp: now,
	}
	out, transition := e.EvaluateInput(input)
	require.NotNil(t, transition)
	assert.Equal(t, domain.RegimeDecoupled, out.State)
	assert.Equal(t, 0.75, out.Permissions.SizeMultiplier)
	assert.True(t, out.Permissions.Allows(domain.DirectionLong))
	assert.True(t, out.Permissions.Allows(domain.DirectionShort))
}

func TestEngineTransitionHistoryBounded(t *testing.T) {
	e := newTestEngine(t, func(c *Config) {
		c.MinTimeInState = 0
		c.MaxTransitions = 3
	})
	base := time.Now().UTC().Add(time.Hour)

	inputs := []domain.RegimeInput{
		{DXYTrend: reading(domain.TrendDown, domain.StrengthStrong)},
		{DXYTrend: reading(domain.TrendUp, domain.StrengthStrong)},
	}
	for i := 0; i < 10; i++ {
		in := inputs[i%2]
		in.Timestamp = base.Add(time.Duration(i) * time.Minute)
		e.EvaluateInput(in)
	}

	history := e.Transitions()
	require.Len(t, history, 3)
	// Oldest first, most recent last.
	assert.True(t, history[0].Timestamp.Before(history[2].Timestamp))
}

func TestEngineForceState(t *testing.T) {
	e := newTestEngine(t, nil)
	e.ForceState(domain.RegimeRiskOff, "manual override")

	out := e.Current()
	assert.Equal(t, domain.RegimeRiskOff, out.State)
	assert.Equal(t, 0.5, out.Permissions.SizeMultiplier)

	history := e.Transitions()
	require.Len(t, history, 1)
	assert.Equal(t, domain.RegimeChop, history[0].From)
	assert.Equal(t, domain.RegimeRiskOff, history[0].To)
	assert.Equal(t, "manual override", history[0].Reason)
}

func TestEngineSampleWindowAndFreshness(t *testing.T) {
	e := newTestEngine(t, func(c *Config) {
		c.MaxSamples = 5
		c.MacroMaxAge = 2 * time.Hour
	})
	now := time.Now().UTC()

	// Stale samples only: the trend must degrade to NONE.
	for i := 0; i < 5; i++ {
		e.AddDXYSample(domain.IndicatorPoint{
			Value:     104 + float64(i),
			Timestamp: now.Add(-6 * time.Hour).Add(time.Duration(i) * time.Minute),
		})
	}
	r := e.DXYTrend(now)
	assert.Equal(t, domain.StrengthNone, r.Strength)

	// Fresh samples displace the stale ones past the window cap.
	for i := 0; i < 5; i++ {
		e.AddDXYSample(domain.IndicatorPoint{
			Value:     104 + float64(i),
			Timestamp: now.Add(-time.Hour).Add(time.Duration(i) * time.Minute),
		})
	}
	r = e.DXYTrend(now)
	assert.Equal(t, domain.TrendUp, r.Direction)
	assert.Equal(t, 5, r.LookbackPeriods)
}

// Score table sanity: the normalized winner for each canonical single-input
// read matches the fixed mapping.
func TestScoreTableMapping(t *testing.T) {
	tests := []struct {
		name   string
		input  domain.RegimeInput
		winner domain.RegimeState
	}{
		{
			name:   "dollar up means risk off",
			input:  domain.RegimeInput{DXYTrend: reading(domain.TrendUp, domain.StrengthStrong)},
			winner: domain.RegimeRiskOff,
		},
		{
			name:   "dollar down means risk on",
			input:  domain.RegimeInput{DXYTrend: reading(domain.TrendDown, domain.StrengthStrong)},
			winner: domain.RegimeRiskOn,
		},
		{
			name:   "dominance up means decoupled",
			input:  domain.RegimeInput{BTCDomTrend: reading(domain.TrendUp, domain.StrengthStrong)},
			winner: domain.RegimeDecoupled,
		},
		{
			name:   "dominance down means risk on",
			input:  domain.RegimeInput{BTCDomTrend: reading(domain.TrendDown, domain.StrengthStrong)},
			winner: domain.RegimeRiskOn,
		},
		{
			name:   "flat everything means chop",
			input:  domain.RegimeInput{DXYTrend: reading(domain.TrendFlat, domain.StrengthNone), BTCDomTrend: reading(domain.TrendFlat, domain.StrengthNone)},
			winner: domain.RegimeChop,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			winner, confidence := bestState(scoreStates(tt.input))
			assert.Equal(t, tt.winner, winner)
			assert.GreaterOrEqual(t, confidence, 0.0)
			assert.LessOrEqual(t, confidence, 1.0)
		})
	}
}
