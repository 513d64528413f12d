package market

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/knoxfield/regimebot/internal/domain"
)

func trade(side string, qty float64) domain.MarketTrade {
	return domain.MarketTrade{
		Symbol:    "BTCUSDT",
		Price:     50000,
		Quantity:  qty,
		Side:      side,
		Timestamp: time.Now().UTC(),
	}
}

func TestOrderFlowEmptyWindow(t *testing.T) {
	tr := NewOrderFlowTracker("BTCUSDT")
	assert.Zero(t, tr.Imbalance())
	assert.Zero(t, tr.SampleCount())
}

func TestOrderFlowImbalance(t *testing.T) {
	tests := []struct {
		name string
		buys float64
		sell float64
		want float64
	}{
		{name: "all buying", buys: 10, sell: 0, want: 1},
		{name: "all selling", buys: 0, sell: 10, want: -1},
		{name: "balanced", buys: 5, sell: 5, want: 0},
		{name: "buy skew", buys: 7.5, sell: 2.5, want: 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := NewOrderFlowTracker("BTCUSDT")
			if tt.buys > 0 {
				tr.AddTrade(trade("Buy", tt.buys))
			}
			if tt.sell > 0 {
				tr.AddTrade(trade("Sell", tt.sell))
			}
			assert.InDelta(t, tt.want, tr.Imbalance(), 1e-9)
		})
	}
}

func TestOrderFlowWindowEviction(t *testing.T) {
	tr := NewOrderFlowTracker("BTCUSDT")

	// 10 sells followed by 20 buys: only the buys remain in the window.
	for i := 0; i < 10; i++ {
		tr.AddTrade(trade("Sell", 1))
	}
	for i := 0; i < 20; i++ {
		tr.AddTrade(trade("Buy", 1))
	}
	assert.Equal(t, flowTradeWindow, tr.SampleCount())
	assert.InDelta(t, 1.0, tr.Imbalance(), 1e-9)
}

func TestFlowAnalyzerNeutralWithoutData(t *testing.T) {
	a := NewFlowAnalyzer()
	f := a.Flow(time.Now().UTC())
	assert.Equal(t, domain.FlowNeutral, f.Direction)
	assert.Zero(t, f.Strength)
}

func TestFlowAnalyzerRotation(t *testing.T) {
	now := time.Now().UTC()

	tests := []struct {
		name   string
		values []float64
		want   domain.FlowDirection
	}{
		{name: "rising dominance", values: []float64{54, 54.5, 55, 55.5, 56}, want: domain.FlowBTCInflow},
		{name: "falling dominance", values: []float64{56, 55.5, 55, 54.5, 54}, want: domain.FlowBTCOutflow},
		{name: "flat dominance", values: []float64{55, 55.001, 54.999, 55, 55.001}, want: domain.FlowNeutral},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewFlowAnalyzer()
			for i, v := range tt.values {
				a.AddSample(domain.IndicatorPoint{Value: v, Timestamp: now.Add(time.Duration(i) * time.Hour)})
			}
			f := a.Flow(now)
			assert.Equal(t, tt.want, f.Direction)
			if tt.want != domain.FlowNeutral {
				assert.Greater(t, f.Strength, 0.0)
				assert.LessOrEqual(t, f.Strength, 1.0)
			}
		})
	}
}

func TestFlowAnalyzerStrengthSaturates(t *testing.T) {
	a := NewFlowAnalyzer()
	now := time.Now().UTC()
	for i := 0; i < 10; i++ {
		a.AddSample(domain.IndicatorPoint{Value: 50 + float64(i)*2, Timestamp: now})
	}
	f := a.Flow(now)
	assert.Equal(t, domain.FlowBTCInflow, f.Direction)
	assert.Equal(t, 1.0, f.Strength)
}

func TestOrderFlowConcurrentAccess(t *testing.T) {
	tr := NewOrderFlowTracker("BTCUSDT")
	done := make(chan struct{})
	for g := 0; g < 4; g++ {
		go func(g int) {
			defer func() { done <- struct{}{} }()
			for i := 0; i < 50; i++ {
				side := "Buy"
				if i%2 == 0 {
					side = "Sell"
				}
				tr.AddTrade(trade(side, float64(i%5)+1))
				_ = tr.Imbalance()
			}
		}(g)
	}
	for g := 0; g < 4; g++ {
		<-done
	}
	assert.Equal(t, flowTradeWindow, tr.SampleCount())
	score := tr.Imbalance()
	assert.GreaterOrEqual(t, score, -1.0)
	assert.LessOrEqual(t, score, 1.0)
}
