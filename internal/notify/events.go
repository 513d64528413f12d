package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/knoxfield/regimebot/internal/domain"
)

// Event types the notifier filter understands.
const (
	EventRegimeTransition = "regime_transition"
	EventPositionOpened   = "position_opened"
	EventPositionClosed   = "position_closed"
	EventPlacementError   = "placement_error"
	EventLimitBreach      = "limit_breach"
)

// sendTimeout bounds each asynchronous delivery.
const sendTimeout = 10 * time.Second

// PipelineEvents turns pipeline lifecycle callbacks into operator
// notifications and bus events. It satisfies the trade manager's Events
// interface. Deliveries run asynchronously so callbacks never block the
// price-monitoring path.
type PipelineEvents struct {
	notifier *Notifier
	bus      domain.EventBus // may be nil
	logger   *slog.Logger
}

// NewPipelineEvents creates a PipelineEvents dispatcher.
func NewPipelineEvents(notifier *Notifier, bus domain.EventBus, logger *slog.Logger) *PipelineEvents {
	return &PipelineEvents{
		notifier: notifier,
		bus:      bus,
		logger:   logger.With(slog.String("component", "events")),
	}
}

// PositionOpened announces a newly opened position.
func (e *PipelineEvents) PositionOpened(p domain.Position) {
	title := fmt.Sprintf("Position opened: %s %s", p.Symbol, p.Direction)
	message := fmt.Sprintf(
		"Entry %.2f | Stop %.2f | Target %.2f\nSize %.6f | Risk %.2f\n%s",
		p.EntryPrice, p.StopPrice, p.TargetPrice, p.Size, p.RiskAmount, p.Reason,
	)
	e.deliver(EventPositionOpened, title, message, p)
}

// PositionClosed announces a settled position with its realized PnL.
func (e *PipelineEvents) PositionClosed(p domain.Position) {
	title := fmt.Sprintf("Position closed: %s %s", p.Symbol, p.Direction)
	message := fmt.Sprintf("PnL %+.2f (%.2fR)\n%s", p.RealizedPnL, p.RMultiple(), p.Reason)
	e.deliver(EventPositionClosed, title, message, p)
}

// PlacementError announces a live order that the exchange refused.
func (e *PipelineEvents) PlacementError(p domain.Position, err error) {
	title := fmt.Sprintf("Order placement failed: %s %s", p.Symbol, p.Direction)
	message := fmt.Sprintf("Size %.6f at %.2f\nError: %v", p.Size, p.EntryPrice, err)
	e.deliver(EventPlacementError, title, message, p)
}

// RegimeTransition announces an accepted regime change.
func (e *PipelineEvents) RegimeTransition(t domain.RegimeTransition) {
	title := fmt.Sprintf("Regime: %s → %s", t.From, t.To)
	message := fmt.Sprintf("Confidence %.2f\n%s", t.Confidence, t.Reason)
	e.deliver(EventRegimeTransition, title, message, t)
}

// LimitBreach announces that a risk limit stopped trading for the day.
func (e *PipelineEvents) LimitBreach(reason string, account domain.AccountState) {
	title := "Risk limit breached"
	message := fmt.Sprintf(
		"%s\nBalance %.2f | Daily PnL %+.2f",
		reason, account.Balance, account.DailyRealizedPnL,
	)
	e.deliver(EventLimitBreach, title, message, map[string]any{
		"reason":  reason,
		"account": account,
	})
}

// deliver fans the event out to the notifier and the bus without blocking
// the caller.
func (e *PipelineEvents) deliver(event, title, message string, payload any) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		defer cancel()

		if e.notifier != nil {
			if err := e.notifier.Notify(ctx, event, title, message); err != nil {
				e.logger.Warn("notification failed",
					slog.String("event", event),
					slog.String("error", err.Error()),
				)
			}
		}

		if e.bus != nil {
			data, err := json.Marshal(map[string]any{
				"event":      event,
				"payload":    payload,
				"emitted_at": time.Now().UTC(),
			})
			if err != nil {
				return
			}
			if err := e.bus.Publish(ctx, "events", data); err != nil {
				e.logger.Debug("event publish failed",
					slog.String("event", event),
					slog.String("error", err.Error()),
				)
			}
		}
	}()
}
