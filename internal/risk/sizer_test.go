package risk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/knoxfield/regimebot/internal/domain"
)

func longCandidate(entry, stop, target, confidence float64) domain.TradeCandidate {
	return domain.TradeCandidate{
		ID:          "c1",
		Symbol:      "BTCUSDT",
		Direction:   domain.DirectionLong,
		EntryPrice:  entry,
		StopPrice:   stop,
		TargetPrice: target,
		Confidence:  confidence,
		CreatedAt:   time.Now().UTC(),
	}
}

func healthyAccount(balance float64) domain.AccountState {
	return domain.AccountState{
		Balance:         balance,
		DayStartBalance: balance,
		DayStart:        time.Now().UTC().Truncate(24 * time.Hour),
	}
}

func TestSizerApprovedSizing(t *testing.T) {
	s := NewSizer(DefaultConfig())
	perms := domain.PermissionsFor(domain.RegimeRiskOn)

	// 10000 balance, 1% base risk, 1.0 multiplier, 0.78 confidence,
	// 150 stop distance.
	c := longCandidate(50000, 49850, 50300, 0.78)
	d := s.Evaluate(c, perms, healthyAccount(10000))

	require.True(t, d.Approved, d.RejectReason)
	assert.InDelta(t, 78.0, d.RiskAmount, 1e-9)
	assert.InDelta(t, 0.52, d.Size, 1e-9)
	assert.InDelta(t, 0.78, d.RiskPercent, 1e-9)
	assert.InDelta(t, 2.0, d.RewardRatio, 1e-9)
}

func TestSizerRegimeMultiplierScalesRisk(t *testing.T) {
	s := NewSizer(DefaultConfig())
	c := longCandidate(50000, 49850, 50300, 0.78)
	account := healthyAccount(10000)

	riskOff := s.Evaluate(c, domain.PermissionsFor(domain.RegimeRiskOff), account)
	require.True(t, riskOff.Approved)
	assert.InDelta(t, 39.0, riskOff.RiskAmount, 1e-9) // half of full size

	decoupled := s.Evaluate(c, domain.PermissionsFor(domain.RegimeDecoupled), account)
	require.True(t, decoupled.Approved)
	assert.InDelta(t, 58.5, decoupled.RiskAmount, 1e-9)
}

func TestSizerRejections(t *testing.T) {
	s := NewSizer(DefaultConfig())
	riskOn := domain.PermissionsFor(domain.RegimeRiskOn)
	good := longCandidate(50000, 49850, 50300, 0.78)

	tests := []struct {
		name      string
		candidate domain.TradeCandidate
		perms     domain.Permissions
		account   domain.AccountState
		reason    string
	}{
		{
			name:      "chop regime disables trading",
			candidate: good,
			perms:     domain.PermissionsFor(domain.RegimeChop),
			account:   healthyAccount(10000),
			reason:    "trading disabled",
		},
		{
			name:      "missing stop",
			candidate: longCandidate(50000, 0, 50300, 0.78),
			perms:     riskOn,
			account:   healthyAccount(10000),
			reason:    "missing stop or target",
		},
		{
			name:      "missing target",
			candidate: longCandidate(50000, 49850, 0, 0.78),
			perms:     riskOn,
			account:   healthyAccount(10000),
			reason:    "missing stop or target",
		},
		{
			name:      "reward ratio below minimum",
			candidate: longCandidate(50000, 49850, 50150, 0.78), // 1:1
			perms:     riskOn,
			account:   healthyAccount(10000),
			reason:    "reward ratio",
		},
		{
			name:      "confidence below floor",
			candidate: longCandidate(50000, 49850, 50300, 0.4),
			perms:     riskOn,
			account:   healthyAccount(10000),
			reason:    "confidence",
		},
		{
			name:      "open position limit",
			candidate: good,
			perms:     riskOn,
			account: domain.AccountState{
				Balance: 10000, DayStartBalance: 10000, OpenPositionCount: 3,
			},
			reason: "position limit",
		},
		{
			name:      "daily loss limit",
			candidate: good,
			perms:     riskOn,
			account: domain.AccountState{
				Balance: 9500, DayStartBalance: 10000, DailyRealizedPnL: -500,
			},
			reason: "daily loss limit",
		},
		{
			name:      "no balance",
			candidate: good,
			perms:     riskOn,
			account:   domain.AccountState{},
			reason:    "no account balance",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := s.Evaluate(tt.candidate, tt.perms, tt.account)
			assert.False(t, d.Approved)
			assert.Contains(t, d.RejectReason, tt.reason)
			assert.Zero(t, d.Size)
		})
	}
}

func TestSizerShortCandidate(t *testing.T) {
	s := NewSizer(DefaultConfig())
	c := domain.TradeCandidate{
		Symbol:      "BTCUSDT",
		Direction:   domain.DirectionShort,
		EntryPrice:  50000,
		StopPrice:   50200,
		TargetPrice: 49500,
		Confidence:  0.6,
	}
	d := s.Evaluate(c, domain.PermissionsFor(domain.RegimeRiskOff), healthyAccount(10000))
	require.True(t, d.Approved, d.RejectReason)
	assert.InDelta(t, 2.5, d.RewardRatio, 1e-9)
	assert.InDelta(t, 30.0, d.RiskAmount, 1e-9) // 10000 × 1% × 0.5 × 0.6
	assert.InDelta(t, 0.15, d.Size, 1e-9)
}

func TestSizerDailyLossBoundary(t *testing.T) {
	s := NewSizer(DefaultConfig())
	c := longCandidate(50000, 49850, 50300, 0.78)
	perms := domain.PermissionsFor(domain.RegimeRiskOn)

	// Just inside the limit still trades.
	inside := domain.AccountState{Balance: 9501, DayStartBalance: 10000, DailyRealizedPnL: -499}
	assert.True(t, s.Evaluate(c, perms, inside).Approved)

	// Exactly at the limit does not.
	at := domain.AccountState{Balance: 9500, DayStartBalance: 10000, DailyRealizedPnL: -500}
	assert.False(t, s.Evaluate(c, perms, at).Approved)
}
