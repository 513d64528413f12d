package domain

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrInsufficientData = errors.New("insufficient data")
	ErrStaleData        = errors.New("stale data")
	ErrPositionClosed   = errors.New("position not open")
	ErrPlacementFailed  = errors.New("order placement failed")
	ErrWSDisconnect     = errors.New("websocket disconnected")
)
