package macro

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/knoxfield/regimebot/internal/domain"
)

// FetchDXY returns the latest dollar-index quote. The endpoint serves one
// CSV data row:
//
//	Symbol,Date,Time,Open,High,Low,Close,Volume
//	DX.F,2026-08-28,14:00:04,97.85,98.12,97.60,98.02,...
func (c *Client) FetchDXY(ctx context.Context) (domain.IndicatorPoint, error) {
	body, err := c.get(ctx, c.dxyURL)
	if err != nil {
		return domain.IndicatorPoint{}, fmt.Errorf("macro: fetch dxy: %w", err)
	}

	point, err := parseDXYCSV(string(body), time.Now().UTC())
	if err != nil {
		return domain.IndicatorPoint{}, fmt.Errorf("macro: parse dxy: %w", err)
	}
	return point, nil
}

// parseDXYCSV extracts the close price and quote time from the CSV payload.
// A missing or unparseable quote time falls back to now.
func parseDXYCSV(csv string, now time.Time) (domain.IndicatorPoint, error) {
	lines := strings.Split(strings.TrimSpace(csv), "\n")
	if len(lines) < 2 {
		return domain.IndicatorPoint{}, fmt.Errorf("expected header and data row, got %d lines", len(lines))
	}

	fields := strings.Split(strings.TrimSpace(lines[1]), ",")
	if len(fields) < 7 {
		return domain.IndicatorPoint{}, fmt.Errorf("expected at least 7 fields, got %d", len(fields))
	}

	// "N/D" means no quote (market closed and no last value available).
	closeField := fields[6]
	value, err := strconv.ParseFloat(closeField, 64)
	if err != nil {
		return domain.IndicatorPoint{}, fmt.Errorf("close field %q: %w", closeField, err)
	}

	ts := now
	if quoted, err := time.Parse("2006-01-02 15:04:05", fields[1]+" "+fields[2]); err == nil {
		ts = quoted.UTC()
	}

	return domain.IndicatorPoint{Value: value, Timestamp: ts}, nil
}
