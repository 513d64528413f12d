package domain

import (
	"context"
	"time"
)

// ListOpts carries pagination and time filtering for history queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// PositionStore persists positions.
type PositionStore interface {
	Create(ctx context.Context, p Position) error
	Update(ctx context.Context, p Position) error
	GetByID(ctx context.Context, id string) (Position, error)
	GetOpen(ctx context.Context, symbol string) ([]Position, error)
	ListHistory(ctx context.Context, symbol string, opts ListOpts) ([]Position, error)
	ListClosedBefore(ctx context.Context, cutoff time.Time, limit int) ([]Position, error)
}

// RegimeStore persists accepted regime transitions.
type RegimeStore interface {
	RecordTransition(ctx context.Context, t RegimeTransition) error
	ListTransitions(ctx context.Context, opts ListOpts) ([]RegimeTransition, error)
}

// PriceCache caches the latest observed value of a scalar series (prices,
// macro indicators) together with its observation time so readers can apply
// freshness windows.
type PriceCache interface {
	Set(ctx context.Context, key string, value float64, ts time.Time) error
	Get(ctx context.Context, key string) (float64, time.Time, error)
}

// EventBus is a fire-and-forget pub/sub channel for pipeline events (regime
// transitions, candidates, position opens/closes) consumed by dashboards.
type EventBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// BlobWriter writes archive objects to blob storage.
type BlobWriter interface {
	Write(ctx context.Context, key string, data []byte, contentType string) error
}
