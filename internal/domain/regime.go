package domain

import "time"

// RegimeState is the coarse market-environment classification that gates
// trading permissions.
type RegimeState string

const (
	RegimeRiskOn    RegimeState = "RISK_ON"
	RegimeRiskOff   RegimeState = "RISK_OFF"
	RegimeDecoupled RegimeState = "DECOUPLED"
	RegimeChop      RegimeState = "CHOP"
)

// TradeDirection is the side of a candidate or position.
type TradeDirection string

const (
	DirectionLong  TradeDirection = "LONG"
	DirectionShort TradeDirection = "SHORT"
)

// Permissions gate what the execution pipeline may do in a given regime
// state. They are a pure function of the state (see PermissionsFor).
type Permissions struct {
	TradingEnabled      bool
	SizeMultiplier      float64
	PreferredDirections []TradeDirection
	AllowRunners        bool
}

// Allows reports whether the given direction is in the preferred set.
func (p Permissions) Allows(d TradeDirection) bool {
	for _, pd := range p.PreferredDirections {
		if pd == d {
			return true
		}
	}
	return false
}

// regimePermissions is the fixed permission table. RISK_ON trades longs at
// full size, RISK_OFF shorts at half size, DECOUPLED both at 0.75, CHOP is
// flat.
var regimePermissions = map[RegimeState]Permissions{
	RegimeRiskOn: {
		TradingEnabled:      true,
		SizeMultiplier:      1.0,
		PreferredDirections: []TradeDirection{DirectionLong},
		AllowRunners:        true,
	},
	RegimeRiskOff: {
		TradingEnabled:      true,
		SizeMultiplier:      0.5,
		PreferredDirections: []TradeDirection{DirectionShort},
		AllowRunners:        false,
	},
	RegimeDecoupled: {
		TradingEnabled:      true,
		SizeMultiplier:      0.75,
		PreferredDirections: []TradeDirection{DirectionLong, DirectionShort},
		AllowRunners:        false,
	},
	RegimeChop: {
		TradingEnabled:      false,
		SizeMultiplier:      0.0,
		PreferredDirections: nil,
		AllowRunners:        false,
	},
}

// PermissionsFor returns the permission set for a regime state. Unknown
// states map to the CHOP (flat) permissions.
func PermissionsFor(state RegimeState) Permissions {
	if p, ok := regimePermissions[state]; ok {
		return p
	}
	return regimePermissions[RegimeChop]
}

// RegimeContributions carries the per-input sub-scores toward the winning
// state, for observability.
type RegimeContributions struct {
	DXY    float64 `json:"dxy"`
	BTCDom float64 `json:"btc_dominance"`
	News   float64 `json:"news"`
}

// RegimeOutput is the full result of one regime evaluation. Exactly one live
// instance exists; the engine replaces it atomically on each evaluation.
type RegimeOutput struct {
	State         RegimeState
	Confidence    float64
	Contributions RegimeContributions
	Permissions   Permissions
	Timestamp     time.Time
	TimeInState   time.Duration
}

// RegimeTransition records one accepted state change.
type RegimeTransition struct {
	From       RegimeState
	To         RegimeState
	Confidence float64
	Reason     string
	Timestamp  time.Time
}

// RegimeInput bundles the point-in-time inputs of one evaluation. Nil
// pointers mean the input is unavailable and must contribute a zero
// sub-score.
type RegimeInput struct {
	DXYTrend    *TrendReading
	BTCDomTrend *TrendReading
	News        *NewsSignal
	Timestamp   time.Time
}
