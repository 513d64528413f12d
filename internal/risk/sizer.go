// Package risk holds the position sizer: a pure pre-trade gate that turns an
// approved candidate into a position size, or a rejection with a reason.
package risk

import (
	"fmt"

	"github.com/knoxfield/regimebot/internal/domain"
)

// Config holds the sizer limits. Percentages are whole numbers (1.0 = 1%).
type Config struct {
	BaseRiskPercent     float64 // account risked per trade at full size
	MinRiskReward       float64 // candidates below this ratio are rejected
	MaxOpenPositions    int
	MaxDailyLossPercent float64 // stop-out for the day, vs day-start balance
	ConfidenceFloor     float64 // candidates below this confidence are rejected
}

// DefaultConfig returns the production limits.
func DefaultConfig() Config {
	return Config{
		BaseRiskPercent:     1.0,
		MinRiskReward:       1.5,
		MaxOpenPositions:    3,
		MaxDailyLossPercent: 5.0,
		ConfidenceFloor:     0.5,
	}
}

// Sizer evaluates candidates against the account and regime permissions. It
// holds no mutable state: every decision is a pure function of its inputs.
type Sizer struct {
	cfg Config
}

// NewSizer creates a Sizer with the given limits.
func NewSizer(cfg Config) *Sizer {
	return &Sizer{cfg: cfg}
}

// Evaluate sizes a candidate or rejects it. Risk scales linearly with both
// the regime size multiplier and the candidate confidence:
//
//	risk = balance × base_risk% × multiplier × confidence
//	size = risk / |entry − stop|
//
// Rejections carry a reason and never an error: a rejected candidate is a
// normal outcome, not a failure.
func (s *Sizer) Evaluate(c domain.TradeCandidate, perms domain.Permissions, account domain.AccountState) domain.SizingDecision {
	if !perms.TradingEnabled || perms.SizeMultiplier <= 0 {
		return reject("trading disabled in current regime")
	}
	if c.StopPrice <= 0 || c.TargetPrice <= 0 {
		return reject("candidate missing stop or target")
	}

	stopDistance := c.EntryPrice - c.StopPrice
	if stopDistance < 0 {
		stopDistance = -stopDistance
	}
	if stopDistance == 0 {
		return reject("zero stop distance")
	}

	rr := c.RiskReward()
	if rr < s.cfg.MinRiskReward {
		return reject(fmt.Sprintf("reward ratio %.2f below minimum %.2f", rr, s.cfg.MinRiskReward))
	}
	if c.Confidence < s.cfg.ConfidenceFloor {
		return reject(fmt.Sprintf("confidence %.2f below floor %.2f", c.Confidence, s.cfg.ConfidenceFloor))
	}
	if account.OpenPositionCount >= s.cfg.MaxOpenPositions {
		return reject(fmt.Sprintf("open position limit %d reached", s.cfg.MaxOpenPositions))
	}

	if account.DayStartBalance > 0 {
		lossLimit := -s.cfg.MaxDailyLossPercent / 100 * account.DayStartBalance
		if account.DailyRealizedPnL <= lossLimit {
			return reject(fmt.Sprintf("daily loss limit %.1f%% reached", s.cfg.MaxDailyLossPercent))
		}
	}
	if account.Balance <= 0 {
		return reject("no account balance")
	}

	riskAmount := account.Balance * s.cfg.BaseRiskPercent / 100 * perms.SizeMultiplier * c.Confidence
	return domain.SizingDecision{
		Approved:    true,
		Size:        riskAmount / stopDistance,
		RiskAmount:  riskAmount,
		RiskPercent: riskAmount / account.Balance * 100,
		RewardRatio: rr,
	}
}

func reject(reason string) domain.SizingDecision {
	return domain.SizingDecision{Approved: false, RejectReason: reason}
}
