package trade

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/knoxfield/regimebot/internal/domain"
)

type fakePlacer struct {
	mu        sync.Mutex
	placed    []string
	closedOut []string
	failPlace error
	failClose error
}

func (f *fakePlacer) PlaceMarketOrder(_ context.Context, symbol string, dir domain.TradeDirection, size float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failPlace != nil {
		return f.failPlace
	}
	f.placed = append(f.placed, fmt.Sprintf("%s/%s/%.2f", symbol, dir, size))
	return nil
}

func (f *fakePlacer) CloseMarketOrder(_ context.Context, symbol string, dir domain.TradeDirection, size float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failClose != nil {
		return f.failClose
	}
	f.closedOut = append(f.closedOut, fmt.Sprintf("%s/%s/%.2f", symbol, dir, size))
	return nil
}

type recordingEvents struct {
	mu     sync.Mutex
	opened []domain.Position
	closed []domain.Position
	errors []domain.Position
}

func (r *recordingEvents) PositionOpened(p domain.Position) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.opened = append(r.opened, p)
}

func (r *recordingEvents) PositionClosed(p domain.Position) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = append(r.closed, p)
}

func (r *recordingEvents) PlacementError(p domain.Position, _ error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors = append(r.errors, p)
}

func newTestManager(cfg Config, placer OrderPlacer) *Manager {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewManager(cfg, placer, nil, logger)
}

func approvedLong() (domain.TradeCandidate, domain.SizingDecision) {
	c := domain.TradeCandidate{
		ID:          "cand-1",
		Symbol:      "BTCUSDT",
		Direction:   domain.DirectionLong,
		EntryPrice:  50000,
		StopPrice:   49850,
		TargetPrice: 50300,
		Confidence:  0.78,
		Reasons:     []string{"BOS: close above swing high"},
	}
	d := domain.SizingDecision{Approved: true, Size: 0.52, RiskAmount: 78, RewardRatio: 2.0}
	return c, d
}

func TestManagerDryRunOpen(t *testing.T) {
	m := newTestManager(DefaultConfig(), nil)
	c, d := approvedLong()

	p, err := m.Open(context.Background(), c, d)
	require.NoError(t, err)
	assert.Equal(t, domain.PositionOpen, p.Status)
	assert.NotEmpty(t, p.ID)
	assert.Equal(t, 49850.0, p.StopPrice)

	open := m.OpenPositions()
	require.Len(t, open, 1)
	assert.Equal(t, 1, m.Account().OpenPositionCount)
}

func TestManagerRejectsUnapprovedCandidate(t *testing.T) {
	m := newTestManager(DefaultConfig(), nil)
	c, _ := approvedLong()
	_, err := m.Open(context.Background(), c, domain.SizingDecision{Approved: false})
	assert.Error(t, err)
	assert.Empty(t, m.OpenPositions())
}

func TestManagerStopHitSettlesLoss(t *testing.T) {
	m := newTestManager(DefaultConfig(), nil)
	c, d := approvedLong()
	p, err := m.Open(context.Background(), c, d)
	require.NoError(t, err)

	now := time.Now().UTC()
	m.OnPrice(context.Background(), "BTCUSDT", 49840, now)

	assert.Empty(t, m.OpenPositions())
	account := m.Account()
	// Settled at the stop price: (49850 - 50000) × 0.52 = -78.
	assert.InDelta(t, -78.0, account.DailyRealizedPnL, 1e-9)
	assert.InDelta(t, 10000-78, account.Balance, 1e-9)
	assert.Zero(t, account.OpenPositionCount)

	closed := m.ClosedPositions(10)
	require.Len(t, closed, 1)
	assert.Equal(t, p.ID, closed[0].ID)
	assert.Equal(t, domain.PositionClosed, closed[0].Status)
	assert.Equal(t, "stop hit", closed[0].Reason)
	require.NotNil(t, closed[0].ExitPrice)
	assert.Equal(t, 49850.0, *closed[0].ExitPrice)
	assert.InDelta(t, -1.0, closed[0].RMultiple(), 1e-9)
}

func TestManagerTargetHitSettlesWin(t *testing.T) {
	m := newTestManager(DefaultConfig(), nil)
	c, d := approvedLong()
	_, err := m.Open(context.Background(), c, d)
	require.NoError(t, err)

	m.OnPrice(context.Background(), "BTCUSDT", 50310, time.Now().UTC())

	account := m.Account()
	// (50300 - 50000) × 0.52 = 156.
	assert.InDelta(t, 156.0, account.DailyRealizedPnL, 1e-9)
	closed := m.ClosedPositions(1)
	require.Len(t, closed, 1)
	assert.Equal(t, "target hit", closed[0].Reason)
	assert.InDelta(t, 2.0, closed[0].RMultiple(), 1e-9)
}

func TestManagerShortLifecycle(t *testing.T) {
	m := newTestManager(DefaultConfig(), nil)
	c := domain.TradeCandidate{
		Symbol:      "BTCUSDT",
		Direction:   domain.DirectionShort,
		EntryPrice:  50000,
		StopPrice:   50200,
		TargetPrice: 49500,
	}
	d := domain.SizingDecision{Approved: true, Size: 0.15, RiskAmount: 30}
	_, err := m.Open(context.Background(), c, d)
	require.NoError(t, err)

	// Above the entry but below the stop: stays open.
	m.OnPrice(context.Background(), "BTCUSDT", 50100, time.Now().UTC())
	assert.Len(t, m.OpenPositions(), 1)

	m.OnPrice(context.Background(), "BTCUSDT", 49490, time.Now().UTC())
	account := m.Account()
	// (50000 - 49500) × 0.15 = 75.
	assert.InDelta(t, 75.0, account.DailyRealizedPnL, 1e-9)
}

func TestManagerIgnoresOtherSymbols(t *testing.T) {
	m := newTestManager(DefaultConfig(), nil)
	c, d := approvedLong()
	_, err := m.Open(context.Background(), c, d)
	require.NoError(t, err)

	m.OnPrice(context.Background(), "ETHUSDT", 1, time.Now().UTC())
	assert.Len(t, m.OpenPositions(), 1)
}

func TestManagerManualClose(t *testing.T) {
	m := newTestManager(DefaultConfig(), nil)
	c, d := approvedLong()
	p, err := m.Open(context.Background(), c, d)
	require.NoError(t, err)

	require.NoError(t, m.CloseManual(context.Background(), p.ID, 50100, ""))
	closed := m.ClosedPositions(1)
	require.Len(t, closed, 1)
	assert.Equal(t, "manual close", closed[0].Reason)
	assert.InDelta(t, 52.0, closed[0].RealizedPnL, 1e-9) // 100 × 0.52

	err = m.CloseManual(context.Background(), p.ID, 50100, "")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestManagerLivePlacement(t *testing.T) {
	placer := &fakePlacer{}
	cfg := DefaultConfig()
	cfg.DryRun = false
	m := newTestManager(cfg, placer)

	c, d := approvedLong()
	p, err := m.Open(context.Background(), c, d)
	require.NoError(t, err)
	require.Len(t, placer.placed, 1)
	assert.Equal(t, "BTCUSDT/LONG/0.52", placer.placed[0])

	require.NoError(t, m.CloseManual(context.Background(), p.ID, 50100, "take profit"))
	require.Len(t, placer.closedOut, 1)
}

func TestManagerLivePlacementFailure(t *testing.T) {
	placer := &fakePlacer{failPlace: errors.New("rate limited")}
	cfg := DefaultConfig()
	cfg.DryRun = false
	m := newTestManager(cfg, placer)
	events := &recordingEvents{}
	m.SetEvents(events)

	c, d := approvedLong()
	p, err := m.Open(context.Background(), c, d)
	assert.ErrorIs(t, err, domain.ErrPlacementFailed)
	assert.Equal(t, domain.PositionError, p.Status)
	assert.Contains(t, p.ErrorDetail, "rate limited")
	assert.Empty(t, m.OpenPositions())
	assert.Len(t, events.errors, 1)
}

func TestManagerDryRunToggle(t *testing.T) {
	placer := &fakePlacer{}
	m := newTestManager(DefaultConfig(), placer)
	assert.True(t, m.DryRun())

	c, d := approvedLong()
	_, err := m.Open(context.Background(), c, d)
	require.NoError(t, err)
	assert.Empty(t, placer.placed) // dry run never touches the exchange

	m.SetDryRun(false)
	_, err = m.Open(context.Background(), c, d)
	require.NoError(t, err)
	assert.Len(t, placer.placed, 1)
}

func TestManagerEvents(t *testing.T) {
	m := newTestManager(DefaultConfig(), nil)
	events := &recordingEvents{}
	m.SetEvents(events)

	c, d := approvedLong()
	p, err := m.Open(context.Background(), c, d)
	require.NoError(t, err)
	require.NoError(t, m.CloseManual(context.Background(), p.ID, 50300, "target hit"))

	require.Len(t, events.opened, 1)
	require.Len(t, events.closed, 1)
	assert.Equal(t, p.ID, events.closed[0].ID)
	assert.Equal(t, domain.PositionClosed, events.closed[0].Status)
}

func TestManagerStats(t *testing.T) {
	m := newTestManager(DefaultConfig(), nil)
	ctx := context.Background()

	c, d := approvedLong()
	p1, err := m.Open(ctx, c, d)
	require.NoError(t, err)
	require.NoError(t, m.CloseManual(ctx, p1.ID, 50300, "target hit")) // +156, +2R

	p2, err := m.Open(ctx, c, d)
	require.NoError(t, err)
	require.NoError(t, m.CloseManual(ctx, p2.ID, 49850, "stop hit")) // -78, -1R

	s := m.Stats()
	assert.Equal(t, 2, s.TotalTrades)
	assert.Equal(t, 1, s.Wins)
	assert.Equal(t, 1, s.Losses)
	assert.InDelta(t, 0.5, s.WinRate, 1e-9)
	assert.InDelta(t, 0.5, s.AverageR, 1e-9)
	assert.InDelta(t, 78.0, s.TotalPnL, 1e-9)
}

func TestManagerDailyReset(t *testing.T) {
	m := newTestManager(DefaultConfig(), nil)
	ctx := context.Background()

	c, d := approvedLong()
	p, err := m.Open(ctx, c, d)
	require.NoError(t, err)
	require.NoError(t, m.CloseManual(ctx, p.ID, 49850, "stop hit"))

	before := m.Account()
	assert.InDelta(t, -78.0, before.DailyRealizedPnL, 1e-9)

	// A tick on the next UTC day rolls the counters.
	tomorrow := time.Now().UTC().Add(24 * time.Hour)
	m.OnPrice(ctx, "BTCUSDT", 50000, tomorrow)

	after := m.Account()
	assert.Zero(t, after.DailyRealizedPnL)
	assert.InDelta(t, after.Balance, after.DayStartBalance, 1e-9)
	assert.InDelta(t, before.Balance, after.Balance, 1e-9)
}

// A close racing a reader never exposes a half-settled account: the position
// removal, balance credit and PnL land in the same snapshot.
func TestManagerConcurrentCloseKeepsAccountConsistent(t *testing.T) {
	cfg := DefaultConfig()
	m := newTestManager(cfg, nil)
	ctx := context.Background()

	const n = 50
	const pnlPerClose = 156.0 // (50300 - 50000) × 0.52

	c, d := approvedLong()
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		p, err := m.Open(ctx, c, d)
		require.NoError(t, err)
		ids = append(ids, p.ID)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for _, id := range ids {
			assert.NoError(t, m.CloseManual(ctx, id, 50300, "target hit"))
		}
	}()

	closing := true
	for closing {
		select {
		case <-done:
			closing = false
		default:
		}

		open := m.OpenPositions()
		for _, p := range open {
			assert.Equal(t, domain.PositionOpen, p.Status)
		}

		acc := m.Account()
		gain := acc.Balance - cfg.InitialBalance
		k := int(math.Round(gain / pnlPerClose))
		require.GreaterOrEqual(t, k, 0)
		require.LessOrEqual(t, k, n)
		// Balance only moves by whole settlements.
		assert.InDelta(t, float64(k)*pnlPerClose, gain, 1e-6)
		assert.Equal(t, n-k, acc.OpenPositionCount)
		// Closes only shrink the open set between the two reads.
		assert.GreaterOrEqual(t, len(open), acc.OpenPositionCount)
	}

	final := m.Account()
	assert.InDelta(t, cfg.InitialBalance+n*pnlPerClose, final.Balance, 1e-6)
	assert.Zero(t, final.OpenPositionCount)
	assert.Empty(t, m.OpenPositions())
	assert.Equal(t, n, m.Stats().TotalTrades)
}

func TestManagerClosedHistoryBounded(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxClosedHistory = 5
	m := newTestManager(cfg, nil)
	ctx := context.Background()

	c, d := approvedLong()
	for i := 0; i < 8; i++ {
		p, err := m.Open(ctx, c, d)
		require.NoError(t, err)
		require.NoError(t, m.CloseManual(ctx, p.ID, 50300, "target hit"))
	}
	assert.Len(t, m.ClosedPositions(100), 5)
	assert.Equal(t, 5, m.Stats().TotalTrades)
}
