package domain

import "time"

// TrendDirection classifies the sign of a normalized slope.
type TrendDirection string

const (
	TrendUp   TrendDirection = "UP"
	TrendDown TrendDirection = "DOWN"
	TrendFlat TrendDirection = "FLAT"
)

// TrendStrength classifies the magnitude of a normalized slope.
type TrendStrength string

const (
	StrengthStrong TrendStrength = "STRONG"
	StrengthWeak   TrendStrength = "WEAK"
	StrengthNone   TrendStrength = "NONE"
)

// TrendReading is the result of scoring a bounded indicator series. It is
// immutable: recomputed on every evaluation tick, never mutated after
// creation.
type TrendReading struct {
	CurrentValue    float64
	Slope           float64 // percent change per period, normalized by mean
	Direction       TrendDirection
	Strength        TrendStrength
	LookbackPeriods int
	AsOf            time.Time
}

// Multiplier returns the strength scaling used by the regime score tables
// (STRONG=1.0, WEAK=0.5, NONE=0.0).
func (t TrendReading) Multiplier() float64 {
	switch t.Strength {
	case StrengthStrong:
		return 1.0
	case StrengthWeak:
		return 0.5
	default:
		return 0.0
	}
}

// IndicatorPoint is a single sample of a scalar macro series (DXY, BTC
// dominance).
type IndicatorPoint struct {
	Value     float64
	Timestamp time.Time
}
