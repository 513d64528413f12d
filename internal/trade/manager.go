// Package trade holds the position lifecycle manager: opening approved
// candidates, monitoring stop/target levels on every price tick, closing and
// settling against the account, and tracking closed-trade statistics.
package trade

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/knoxfield/regimebot/internal/domain"
)

// OrderPlacer submits market orders to the exchange in live mode. Dry-run
// mode never touches it.
type OrderPlacer interface {
	PlaceMarketOrder(ctx context.Context, symbol string, dir domain.TradeDirection, size float64) error
	CloseMarketOrder(ctx context.Context, symbol string, dir domain.TradeDirection, size float64) error
}

// Events receives lifecycle notifications. Implementations must not call
// back into the Manager. All methods are optional no-ops for a nil Events.
type Events interface {
	PositionOpened(p domain.Position)
	PositionClosed(p domain.Position)
	PlacementError(p domain.Position, err error)
}

// Config holds the manager settings.
type Config struct {
	InitialBalance   float64
	DryRun           bool
	MaxClosedHistory int
}

// DefaultConfig returns dry-run defaults with a paper balance.
func DefaultConfig() Config {
	return Config{
		InitialBalance:   10000,
		DryRun:           true,
		MaxClosedHistory: 200,
	}
}

// Manager owns every position and the account state. One mutex guards the
// pair so a close and its account settlement are observed atomically.
type Manager struct {
	placer OrderPlacer
	store  domain.PositionStore
	events Events
	logger *slog.Logger

	maxClosed int

	mu      sync.Mutex
	dryRun  bool
	open    map[string]*domain.Position
	closed  []domain.Position
	account domain.AccountState
}

// NewManager creates a Manager. placer may be nil when the manager will only
// ever run dry; store may be nil to disable persistence.
func NewManager(cfg Config, placer OrderPlacer, store domain.PositionStore, logger *slog.Logger) *Manager {
	now := time.Now().UTC()
	return &Manager{
		placer:    placer,
		store:     store,
		logger:    logger.With(slog.String("component", "trade_manager")),
		maxClosed: cfg.MaxClosedHistory,
		dryRun:    cfg.DryRun,
		open:      make(map[string]*domain.Position),
		account: domain.AccountState{
			Balance:         cfg.InitialBalance,
			DayStartBalance: cfg.InitialBalance,
			DayStart:        now.Truncate(24 * time.Hour),
		},
	}
}

// SetEvents installs the lifecycle listener. Call before the pipeline starts.
func (m *Manager) SetEvents(e Events) {
	m.events = e
}

// SetDryRun toggles between paper and live execution. Open positions are
// unaffected; the new mode applies from the next order.
func (m *Manager) SetDryRun(dry bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dryRun != dry {
		m.dryRun = dry
		m.logger.Warn("execution mode changed", slog.Bool("dry_run", dry))
	}
}

// DryRun reports the current execution mode.
func (m *Manager) DryRun() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dryRun
}

// Open turns an approved candidate into an OPEN position. In live mode the
// entry order is placed first; a placement failure records the position in
// ERROR state and returns ErrPlacementFailed.
func (m *Manager) Open(ctx context.Context, c domain.TradeCandidate, d domain.SizingDecision) (domain.Position, error) {
	if !d.Approved {
		return domain.Position{}, fmt.Errorf("trade: open: candidate %s was not approved", c.ID)
	}

	now := time.Now().UTC()
	p := domain.Position{
		ID:          uuid.New().String(),
		Symbol:      c.Symbol,
		Direction:   c.Direction,
		EntryPrice:  c.EntryPrice,
		StopPrice:   c.StopPrice,
		TargetPrice: c.TargetPrice,
		Size:        d.Size,
		RiskAmount:  d.RiskAmount,
		Status:      domain.PositionOpen,
		Reason:      firstReason(c.Reasons),
		OpenedAt:    now,
	}

	m.mu.Lock()
	m.resetDayLocked(now)
	dry := m.dryRun
	m.mu.Unlock()

	if !dry {
		if m.placer == nil {
			return domain.Position{}, fmt.Errorf("trade: open: live mode with no order placer")
		}
		if err := m.placer.PlaceMarketOrder(ctx, p.Symbol, p.Direction, p.Size); err != nil {
			p.Status = domain.PositionError
			p.ErrorDetail = err.Error()
			m.persist(ctx, p, true)
			if m.events != nil {
				m.events.PlacementError(p, err)
			}
			m.logger.Error("entry order failed",
				slog.String("position_id", p.ID),
				slog.String("symbol", p.Symbol),
				slog.String("error", err.Error()),
			)
			return p, fmt.Errorf("trade: open %s: %w: %w", p.Symbol, domain.ErrPlacementFailed, err)
		}
	}

	m.mu.Lock()
	stored := p
	m.open[p.ID] = &stored
	m.account.OpenPositionCount = len(m.open)
	m.mu.Unlock()

	m.persist(ctx, p, true)
	if m.events != nil {
		m.events.PositionOpened(p)
	}
	m.logger.Info("position opened",
		slog.String("position_id", p.ID),
		slog.String("symbol", p.Symbol),
		slog.String("direction", string(p.Direction)),
		slog.Float64("entry", p.EntryPrice),
		slog.Float64("stop", p.StopPrice),
		slog.Float64("target", p.TargetPrice),
		slog.Float64("size", p.Size),
		slog.Bool("dry_run", dry),
	)
	return p, nil
}

// OnPrice checks every open position in the symbol against its stop and
// target. The stop is checked first: a candle that crosses both settles as a
// loss.
func (m *Manager) OnPrice(ctx context.Context, symbol string, price float64, now time.Time) {
	m.mu.Lock()
	m.resetDayLocked(now)

	type exit struct {
		p      domain.Position
		price  float64
		reason string
	}
	var exits []exit
	for _, p := range m.open {
		if p.Symbol != symbol {
			continue
		}
		if hit, exitPrice, reason := stopOrTarget(*p, price); hit {
			exits = append(exits, exit{p: *p, price: exitPrice, reason: reason})
		}
	}
	m.mu.Unlock()

	for _, e := range exits {
		if err := m.close(ctx, e.p.ID, e.price, e.reason, now); err != nil {
			m.logger.Error("close failed",
				slog.String("position_id", e.p.ID),
				slog.String("error", err.Error()),
			)
		}
	}
}

// CloseManual closes one open position at the given price.
func (m *Manager) CloseManual(ctx context.Context, id string, price float64, reason string) error {
	if reason == "" {
		reason = "manual close"
	}
	return m.close(ctx, id, price, reason, time.Now().UTC())
}

// close settles one position: exchange exit in live mode, then the position
// removal, PnL and account mutation under a single lock hold.
func (m *Manager) close(ctx context.Context, id string, price float64, reason string, now time.Time) error {
	m.mu.Lock()
	p, ok := m.open[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("trade: close %s: %w", id, domain.ErrNotFound)
	}
	snapshot := *p
	dry := m.dryRun
	m.mu.Unlock()

	if !dry && m.placer != nil {
		if err := m.placer.CloseMarketOrder(ctx, snapshot.Symbol, snapshot.Direction, snapshot.Size); err != nil {
			m.mu.Lock()
			p.Status = domain.PositionError
			p.ErrorDetail = err.Error()
			errored := *p
			delete(m.open, id)
			m.account.OpenPositionCount = len(m.open)
			m.mu.Unlock()
			m.persist(ctx, errored, false)
			if m.events != nil {
				m.events.PlacementError(errored, err)
			}
			return fmt.Errorf("trade: close %s: %w: %w", id, domain.ErrPlacementFailed, err)
		}
	}

	pnl := realizedPnL(snapshot, price)

	m.mu.Lock()
	if _, still := m.open[id]; !still {
		m.mu.Unlock()
		return fmt.Errorf("trade: close %s: %w", id, domain.ErrPositionClosed)
	}
	delete(m.open, id)
	p.Status = domain.PositionClosed
	p.ClosedAt = &now
	p.ExitPrice = &price
	p.RealizedPnL = pnl
	p.Reason = reason
	closed := *p

	m.account.Balance += pnl
	m.account.DailyRealizedPnL += pnl
	m.account.OpenPositionCount = len(m.open)

	m.closed = append(m.closed, closed)
	if len(m.closed) > m.maxClosed {
		m.closed = m.closed[len(m.closed)-m.maxClosed:]
	}
	m.mu.Unlock()

	m.persist(ctx, closed, false)
	if m.events != nil {
		m.events.PositionClosed(closed)
	}
	m.logger.Info("position closed",
		slog.String("position_id", closed.ID),
		slog.String("symbol", closed.Symbol),
		slog.String("reason", reason),
		slog.Float64("exit", price),
		slog.Float64("pnl", pnl),
		slog.Float64("balance", m.Account().Balance),
	)
	return nil
}

// Account returns a copy of the account state.
func (m *Manager) Account() domain.AccountState {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resetDayLocked(time.Now().UTC())
	return m.account
}

// OpenPositions returns copies of all open positions.
func (m *Manager) OpenPositions() []domain.Position {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Position, 0, len(m.open))
	for _, p := range m.open {
		out = append(out, *p)
	}
	return out
}

// ClosedPositions returns up to limit closed positions, newest first.
func (m *Manager) ClosedPositions(limit int) []domain.Position {
	if limit <= 0 {
		limit = 50
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.closed)
	if limit > n {
		limit = n
	}
	out := make([]domain.Position, 0, limit)
	for i := n - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.closed[i])
	}
	return out
}

// Stats summarizes the bounded closed-trade history.
func (m *Manager) Stats() domain.TradeStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	var s domain.TradeStats
	var rSum float64
	for _, p := range m.closed {
		s.TotalTrades++
		s.TotalPnL += p.RealizedPnL
		rSum += p.RMultiple()
		if p.RealizedPnL >= 0 {
			s.Wins++
		} else {
			s.Losses++
		}
	}
	if s.TotalTrades > 0 {
		s.WinRate = float64(s.Wins) / float64(s.TotalTrades)
		s.AverageR = rSum / float64(s.TotalTrades)
	}
	return s
}

// resetDayLocked rolls the daily counters at the UTC midnight boundary.
func (m *Manager) resetDayLocked(now time.Time) {
	day := now.UTC().Truncate(24 * time.Hour)
	if day.After(m.account.DayStart) {
		m.logger.Info("daily reset",
			slog.Float64("day_pnl", m.account.DailyRealizedPnL),
			slog.Float64("balance", m.account.Balance),
		)
		m.account.DayStart = day
		m.account.DayStartBalance = m.account.Balance
		m.account.DailyRealizedPnL = 0
	}
}

func (m *Manager) persist(ctx context.Context, p domain.Position, create bool) {
	if m.store == nil {
		return
	}
	var err error
	if create {
		err = m.store.Create(ctx, p)
	} else {
		err = m.store.Update(ctx, p)
	}
	if err != nil {
		m.logger.Warn("position persist failed",
			slog.String("position_id", p.ID),
			slog.String("error", err.Error()),
		)
	}
}

// stopOrTarget reports whether the price crossed the position's stop or
// target, and the settlement price. Settlement assumes the level fills at its
// price, not the tick that crossed it.
func stopOrTarget(p domain.Position, price float64) (bool, float64, string) {
	if p.Direction == domain.DirectionLong {
		if price <= p.StopPrice {
			return true, p.StopPrice, "stop hit"
		}
		if p.TargetPrice > 0 && price >= p.TargetPrice {
			return true, p.TargetPrice, "target hit"
		}
		return false, 0, ""
	}
	if price >= p.StopPrice {
		return true, p.StopPrice, "stop hit"
	}
	if p.TargetPrice > 0 && price <= p.TargetPrice {
		return true, p.TargetPrice, "target hit"
	}
	return false, 0, ""
}

func realizedPnL(p domain.Position, exit float64) float64 {
	if p.Direction == domain.DirectionLong {
		return (exit - p.EntryPrice) * p.Size
	}
	return (p.EntryPrice - exit) * p.Size
}

func firstReason(reasons []string) string {
	if len(reasons) == 0 {
		return ""
	}
	return reasons[0]
}
