package domain

import "time"

// PositionStatus tracks a position through its lifecycle.
type PositionStatus string

const (
	PositionOpen   PositionStatus = "OPEN"
	PositionClosed PositionStatus = "CLOSED"
	PositionError  PositionStatus = "ERROR"
)

// Position is an open or historical trade. The lifecycle manager owns it
// exclusively until closed; every position in the open set carries a
// non-zero stop price.
type Position struct {
	ID          string
	Symbol      string
	Direction   TradeDirection
	EntryPrice  float64
	StopPrice   float64
	TargetPrice float64
	Size        float64
	RiskAmount  float64
	Status      PositionStatus
	Reason      string
	OpenedAt    time.Time
	ClosedAt    *time.Time
	ExitPrice   *float64
	RealizedPnL float64
	ErrorDetail string
}

// RMultiple returns the realized PnL expressed in risk units. Zero for open
// positions or when the position was sized with zero risk.
func (p Position) RMultiple() float64 {
	if p.Status != PositionClosed || p.RiskAmount == 0 {
		return 0
	}
	return p.RealizedPnL / p.RiskAmount
}

// AccountState is the process-wide account summary, reset at each UTC day
// boundary. Mutated only by the trade lifecycle manager.
type AccountState struct {
	Balance           float64
	DayStartBalance   float64
	DailyRealizedPnL  float64
	DayStart          time.Time
	OpenPositionCount int
}

// TradeStats summarizes the bounded closed-trade history.
type TradeStats struct {
	TotalTrades int
	Wins        int
	Losses      int
	WinRate     float64
	AverageR    float64
	TotalPnL    float64
}
