package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/knoxfield/regimebot/internal/domain"
)

// Archiver uploads the previous day's settled trades and regime transitions
// as JSONL objects, one file per UTC day:
//
//	archive/trades/2026-08-27.jsonl
//	archive/transitions/2026-08-27.jsonl
//
// Deletion of archived rows from the primary store is intentionally not done
// here; that is a separate step after the archive is verified.
type Archiver struct {
	writer      domain.BlobWriter
	positions   domain.PositionStore
	transitions domain.RegimeStore
	logger      *slog.Logger
}

// NewArchiver creates an Archiver over the given stores.
func NewArchiver(writer domain.BlobWriter, positions domain.PositionStore, transitions domain.RegimeStore, logger *slog.Logger) *Archiver {
	return &Archiver{
		writer:      writer,
		positions:   positions,
		transitions: transitions,
		logger:      logger.With(slog.String("component", "archiver")),
	}
}

// Run uploads one archive shortly after each UTC midnight until the context
// is cancelled.
func (a *Archiver) Run(ctx context.Context) error {
	a.logger.Info("archiver started")
	defer a.logger.Info("archiver stopped")

	for {
		next := nextMidnight(time.Now().UTC()).Add(5 * time.Minute)
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		day := time.Now().UTC().Truncate(24 * time.Hour).Add(-24 * time.Hour)
		if err := a.ArchiveDay(ctx, day); err != nil {
			a.logger.Error("daily archive failed",
				slog.String("day", day.Format("2006-01-02")),
				slog.String("error", err.Error()),
			)
		}
	}
}

// ArchiveDay uploads the trades closed and the transitions recorded on the
// given UTC day. Empty datasets produce no object.
func (a *Archiver) ArchiveDay(ctx context.Context, day time.Time) error {
	day = day.UTC().Truncate(24 * time.Hour)
	cutoff := day.Add(24 * time.Hour)

	tradeCount, err := a.archiveTrades(ctx, day, cutoff)
	if err != nil {
		return err
	}
	transitionCount, err := a.archiveTransitions(ctx, day, cutoff)
	if err != nil {
		return err
	}

	a.logger.Info("daily archive complete",
		slog.String("day", day.Format("2006-01-02")),
		slog.Int("trades", tradeCount),
		slog.Int("transitions", transitionCount),
	)
	return nil
}

func (a *Archiver) archiveTrades(ctx context.Context, day, cutoff time.Time) (int, error) {
	closed, err := a.positions.ListClosedBefore(ctx, cutoff, 0)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive trades query: %w", err)
	}
	var dayTrades []domain.Position
	for _, p := range closed {
		if p.ClosedAt != nil && !p.ClosedAt.Before(day) {
			dayTrades = append(dayTrades, p)
		}
	}
	if len(dayTrades) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(dayTrades)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive trades marshal: %w", err)
	}
	key := archiveKey("trades", day)
	if err := a.writer.Write(ctx, key, buf, "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive trades upload: %w", err)
	}
	return len(dayTrades), nil
}

func (a *Archiver) archiveTransitions(ctx context.Context, day, cutoff time.Time) (int, error) {
	transitions, err := a.transitions.ListTransitions(ctx, domain.ListOpts{
		Since: &day,
		Until: &cutoff,
	})
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive transitions query: %w", err)
	}
	if len(transitions) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(transitions)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive transitions marshal: %w", err)
	}
	key := archiveKey("transitions", day)
	if err := a.writer.Write(ctx, key, buf, "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive transitions upload: %w", err)
	}
	return len(transitions), nil
}

func archiveKey(kind string, day time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, day.Format("2006-01-02"))
}

func nextMidnight(now time.Time) time.Time {
	return now.Truncate(24 * time.Hour).Add(24 * time.Hour)
}

// marshalJSONL serialises records as newline-delimited JSON, one compact
// line per record.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
