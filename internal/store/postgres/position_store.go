package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/knoxfield/regimebot/internal/domain"
)

// PositionStore implements domain.PositionStore using PostgreSQL.
type PositionStore struct {
	pool *pgxpool.Pool
}

// NewPositionStore creates a PositionStore backed by the given connection pool.
func NewPositionStore(pool *pgxpool.Pool) *PositionStore {
	return &PositionStore{pool: pool}
}

const positionSelectCols = `id, symbol, direction, entry_price, stop_price,
	target_price, size, risk_amount, status, reason, error_detail,
	realized_pnl, opened_at, closed_at, exit_price`

func scanPosition(row pgx.Row) (domain.Position, error) {
	var p domain.Position
	var direction, status string

	err := row.Scan(
		&p.ID, &p.Symbol, &direction,
		&p.EntryPrice, &p.StopPrice, &p.TargetPrice,
		&p.Size, &p.RiskAmount,
		&status, &p.Reason, &p.ErrorDetail,
		&p.RealizedPnL,
		&p.OpenedAt, &p.ClosedAt, &p.ExitPrice,
	)
	if err != nil {
		return domain.Position{}, err
	}
	p.Direction = domain.TradeDirection(direction)
	p.Status = domain.PositionStatus(status)
	return p, nil
}

func scanPositions(rows pgx.Rows) ([]domain.Position, error) {
	var positions []domain.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

// Create inserts a new position.
func (s *PositionStore) Create(ctx context.Context, p domain.Position) error {
	const query = `
		INSERT INTO positions (
			id, symbol, direction, entry_price, stop_price, target_price,
			size, risk_amount, status, reason, error_detail, realized_pnl,
			opened_at, closed_at, exit_price, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10, $11, $12,
			$13, $14, $15, NOW()
		)`

	_, err := s.pool.Exec(ctx, query,
		p.ID, p.Symbol, string(p.Direction),
		p.EntryPrice, p.StopPrice, p.TargetPrice,
		p.Size, p.RiskAmount,
		string(p.Status), p.Reason, p.ErrorDetail, p.RealizedPnL,
		p.OpenedAt, p.ClosedAt, p.ExitPrice,
	)
	if err != nil {
		return fmt.Errorf("postgres: create position %s: %w", p.ID, err)
	}
	return nil
}

// Update replaces all mutable fields of a position.
func (s *PositionStore) Update(ctx context.Context, p domain.Position) error {
	const query = `
		UPDATE positions SET
			status       = $2,
			reason       = $3,
			error_detail = $4,
			stop_price   = $5,
			target_price = $6,
			realized_pnl = $7,
			closed_at    = $8,
			exit_price   = $9,
			updated_at   = NOW()
		WHERE id = $1`

	tag, err := s.pool.Exec(ctx, query,
		p.ID,
		string(p.Status), p.Reason, p.ErrorDetail,
		p.StopPrice, p.TargetPrice,
		p.RealizedPnL, p.ClosedAt, p.ExitPrice,
	)
	if err != nil {
		return fmt.Errorf("postgres: update position %s: %w", p.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// GetByID retrieves a single position by its ID.
func (s *PositionStore) GetByID(ctx context.Context, id string) (domain.Position, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+positionSelectCols+` FROM positions WHERE id = $1`, id)

	p, err := scanPosition(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Position{}, domain.ErrNotFound
		}
		return domain.Position{}, fmt.Errorf("postgres: get position %s: %w", id, err)
	}
	return p, nil
}

// GetOpen returns all open positions for a symbol, newest first.
func (s *PositionStore) GetOpen(ctx context.Context, symbol string) ([]domain.Position, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+positionSelectCols+` FROM positions
		 WHERE symbol = $1 AND status = 'OPEN'
		 ORDER BY opened_at DESC`, symbol)
	if err != nil {
		return nil, fmt.Errorf("postgres: get open positions: %w", err)
	}
	defer rows.Close()

	positions, err := scanPositions(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan open positions: %w", err)
	}
	return positions, nil
}

// ListHistory returns positions for a symbol with pagination and optional
// time filtering.
func (s *PositionStore) ListHistory(ctx context.Context, symbol string, opts domain.ListOpts) ([]domain.Position, error) {
	query := `SELECT ` + positionSelectCols + ` FROM positions WHERE symbol = $1`
	args := []any{symbol}
	argIdx := 2

	if opts.Since != nil {
		query += fmt.Sprintf(" AND opened_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND opened_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY opened_at DESC"

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
		return nil, fmt.Errorf("postgres: list position history: %w", err)
	}
	defer rows.Close()

	positions, err := scanPositions(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan position history: %w", err)
	}
	return positions, nil
}

// ListClosedBefore returns closed positions whose close time precedes cutoff,
// oldest first. The archiver uses this to page through settled trades.
func (s *PositionStore) ListClosedBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.Position, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+positionSelectCols+` FROM positions
		 WHERE status = 'CLOSED' AND closed_at < $1
		 ORDER BY closed_at ASC
		 LIMIT $2`, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list closed positions: %w", err)
	}
	defer rows.Close()

	positions, err := scanPositions(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan closed positions: %w", err)
	}
	return positions, nil
}

// Compile-time interface check.
var _ domain.PositionStore = (*PositionStore)(nil)
