package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/knoxfield/regimebot/internal/domain"
)

// RegimeStore implements domain.RegimeStore using PostgreSQL. Transitions are
// append-only.
type RegimeStore struct {
	pool *pgxpool.Pool
}

// NewRegimeStore creates a RegimeStore backed by the given connection pool.
func NewRegimeStore(pool *pgxpool.Pool) *RegimeStore {
	return &RegimeStore{pool: pool}
}

// RecordTransition appends one accepted regime transition.
func (s *RegimeStore) RecordTransition(ctx context.Context, t domain.RegimeTransition) error {
	const query = `
		INSERT INTO regime_transitions (from_state, to_state, confidence, reason, occurred_at)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := s.pool.Exec(ctx, query,
		string(t.From), string(t.To), t.Confidence, t.Reason, t.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("postgres: record transition %s->%s: %w", t.From, t.To, err)
	}
	return nil
}

// ListTransitions returns transitions newest first with pagination and
// optional time filtering.
func (s *RegimeStore) ListTransitions(ctx context.Context, opts domain.ListOpts) ([]domain.RegimeTransition, error) {
	query := `SELECT from_state, to_state, confidence, reason, occurred_at
		FROM regime_transitions WHERE TRUE`
	var args []any
	argIdx := 1

	if opts.Since != nil {
		query += fmt.Sprintf(" AND occurred_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND occurred_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY occurred_at DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list transitions: %w", err)
	}
	defer rows.Close()

	var transitions []domain.RegimeTransition
	for rows.Next() {
		var t domain.RegimeTransition
		var from, to string
		if err := rows.Scan(&from, &to, &t.Confidence, &t.Reason, &t.Timestamp); err != nil {
			return nil, fmt.Errorf("postgres: scan transition: %w", err)
		}
		t.From = domain.RegimeState(from)
		t.To = domain.RegimeState(to)
		transitions = append(transitions, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list transitions: %w", err)
	}
	return transitions, nil
}

// Compile-time interface check.
var _ domain.RegimeStore = (*RegimeStore)(nil)
