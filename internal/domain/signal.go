package domain

import "time"

// TradeCandidate is a scored trade setup emitted by the signal generator. It
// is ephemeral: produced and consumed within one execution cycle.
type TradeCandidate struct {
	ID          string
	Symbol      string
	Direction   TradeDirection
	EntryPrice  float64
	StopPrice   float64
	TargetPrice float64
	Confidence  float64
	Reasons     []string
	CreatedAt   time.Time
}

// RiskReward returns the reward distance divided by the risk distance. Zero
// when the stop distance is degenerate.
func (c TradeCandidate) RiskReward() float64 {
	risk := c.EntryPrice - c.StopPrice
	if risk < 0 {
		risk = -risk
	}
	if risk == 0 {
		return 0
	}
	reward := c.TargetPrice - c.EntryPrice
	if reward < 0 {
		reward = -reward
	}
	return reward / risk
}

// SizingDecision is the sizer's verdict on a candidate. Derived, not stored
// beyond the action that consumes it.
type SizingDecision struct {
	Approved     bool
	Size         float64
	RiskAmount   float64
	RiskPercent  float64
	RewardRatio  float64
	RejectReason string
}

// CandidateRecord pairs the last evaluated candidate with what was decided
// about it, for the read-only query surface.
type CandidateRecord struct {
	Candidate TradeCandidate
	Decision  SizingDecision
	Outcome   string // "opened", "rejected", "no_candidate"
	Timestamp time.Time
}
