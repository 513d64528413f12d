package market

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/knoxfield/regimebot/internal/domain"
)

func candle(high, low, close float64, at time.Time) domain.Candle {
	return domain.Candle{
		Symbol:    "BTCUSDT",
		Interval:  "5",
		Open:      close,
		High:      high,
		Low:       low,
		Close:     close,
		OpenTime:  at,
		Confirmed: true,
	}
}

func feed(t *StructureTracker, candles []domain.Candle) []*domain.StructureEvent {
	var events []*domain.StructureEvent
	for _, c := range candles {
		if e := t.AddCandle(c); e != nil {
			events = append(events, e)
		}
	}
	return events
}

func mkCandles(bars [][3]float64) []domain.Candle {
	start := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	out := make([]domain.Candle, len(bars))
	for i, b := range bars {
		out[i] = candle(b[0], b[1], b[2], start.Add(time.Duration(i)*5*time.Minute))
	}
	return out
}

func TestStructureIgnoresUnconfirmedCandles(t *testing.T) {
	tr := NewStructureTracker("BTCUSDT", 100, 2)
	c := candle(100, 95, 98, time.Now().UTC())
	c.Confirmed = false
	assert.Nil(t, tr.AddCandle(c))
	assert.Equal(t, domain.StructureNeutral, tr.Trend())
}

func TestStructureSwingHighBreakIsLongTrigger(t *testing.T) {
	tr := NewStructureTracker("BTCUSDT", 100, 2)

	events := feed(tr, mkCandles([][3]float64{
		{100, 95, 98},
		{101, 96, 99},
		{105, 97, 100}, // swing high 105
		{103, 96, 98},
		{102, 95, 97},
		{106, 100, 105.5}, // close through the swing high
	}))

	require.Len(t, events, 1)
	e := events[0]
	assert.Equal(t, domain.StructureCHOCH, e.Kind) // no established trend yet
	assert.Equal(t, domain.DirectionLong, e.Direction)
	assert.Equal(t, 105.0, e.Level)

	last, at := tr.LastEvent()
	require.NotNil(t, last)
	assert.Equal(t, e.Level, last.Level)
	assert.False(t, at.IsZero())
}

func TestStructureSwingLowBreakIsShortTrigger(t *testing.T) {
	tr := NewStructureTracker("BTCUSDT", 100, 2)

	events := feed(tr, mkCandles([][3]float64{
		{105, 100, 102},
		{104, 99, 101},
		{103, 95, 100}, // swing low 95
		{104, 97, 102},
		{105, 98, 103},
		{100, 92, 94}, // close through the swing low
	}))

	require.Len(t, events, 1)
	assert.Equal(t, domain.DirectionShort, events[0].Direction)
	assert.Equal(t, 95.0, events[0].Level)
}

// A full uptrend leg: higher high and higher low confirm BULLISH structure,
// so the subsequent break of the swing high is a continuation (BOS).
func TestStructureBullishContinuationBOS(t *testing.T) {
	tr := NewStructureTracker("BTCUSDT", 100, 2)

	events := feed(tr, mkCandles([][3]float64{
		{96, 92, 94},
		{95, 91, 93},
		{94, 90, 92}, // swing low 90
		{97, 93, 96},
		{99, 95, 98},
		{100, 96, 99}, // swing high 100
		{99, 95.5, 97},
		{98, 95.2, 96},
		{97.5, 95, 96.5}, // swing low 95 (higher low)
		{97, 95.5, 96},
		{99.5, 96, 98},
		{104, 97, 99.8}, // swing high 104 (higher high)
		{101, 97, 98},
		{100, 96.5, 97},
		{106, 101, 105}, // close through 104 with bullish structure
	}))

	require.Len(t, events, 1)
	e := events[0]
	assert.Equal(t, domain.StructureBOS, e.Kind)
	assert.Equal(t, domain.DirectionLong, e.Direction)
	assert.Equal(t, 104.0, e.Level)
	assert.Equal(t, domain.StructureBullish, tr.Trend())
}

func TestStructureBrokenSwingDoesNotRefire(t *testing.T) {
	tr := NewStructureTracker("BTCUSDT", 100, 2)

	events := feed(tr, mkCandles([][3]float64{
		{100, 95, 98},
		{101, 96, 99},
		{105, 97, 100}, // swing high 105
		{103, 96, 98},
		{102, 95, 97},
		{106, 100, 105.5}, // break
		{107, 104, 106},   // still above: must not fire again
		{108, 105, 107},
	}))

	assert.Len(t, events, 1)
}
