package market

import (
	"sync"
	"time"

	"github.com/knoxfield/regimebot/internal/domain"
)

// Dominance-slope cutoffs, percent per period.
const (
	flowWeakSlope   = 0.05
	flowStrongSlope = 0.25
	flowWindow      = 24
)

// FlowAnalyzer reads capital rotation from the BTC-dominance series: rising
// dominance is capital flowing into BTC (alts bleed), falling dominance is
// capital rotating out into alts.
type FlowAnalyzer struct {
	mu      sync.Mutex
	samples []domain.IndicatorPoint
}

// NewFlowAnalyzer creates an empty analyzer.
func NewFlowAnalyzer() *FlowAnalyzer {
	return &FlowAnalyzer{}
}

// AddSample appends a dominance observation to the bounded window.
func (a *FlowAnalyzer) AddSample(p domain.IndicatorPoint) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.samples = append(a.samples, p)
	if len(a.samples) > flowWindow {
		a.samples = a.samples[len(a.samples)-flowWindow:]
	}
}

// Flow computes the current rotation read. Fewer than two samples yields a
// NEUTRAL flow with zero strength.
func (a *FlowAnalyzer) Flow(now time.Time) domain.CapitalFlow {
	a.mu.Lock()
	defer a.mu.Unlock()

	flow := domain.CapitalFlow{Direction: domain.FlowNeutral, AsOf: now}
	if len(a.samples) < 2 {
		return flow
	}

	slope := indicatorSlope(a.samples)
	if mean := indicatorMean(a.samples); mean != 0 {
		slope = slope / mean * 100
	}
	flow.Momentum = slope

	abs := slope
	if abs < 0 {
		abs = -abs
	}
	if abs < flowWeakSlope {
		return flow
	}

	if slope > 0 {
		flow.Direction = domain.FlowBTCInflow
	} else {
		flow.Direction = domain.FlowBTCOutflow
	}
	flow.Strength = abs / flowStrongSlope
	if flow.Strength > 1 {
		flow.Strength = 1
	}
	return flow
}

func indicatorSlope(points []domain.IndicatorPoint) float64 {
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

func indicatorMean(points []domain.IndicatorPoint) float64 {
	var sum float64
	for _, p := range points {
		sum += p.Value
	}
	return sum / float64(len(points))
}
