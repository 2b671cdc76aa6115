package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"solana-sniper/internal/domain"
	"solana-sniper/internal/storage"
)

// PositionStore implements storage.PositionStore using PostgreSQL.
type PositionStore struct {
	pool *Pool
}

// NewPositionStore creates a new PositionStore.
func NewPositionStore(pool *Pool) *PositionStore {
	return &PositionStore{pool: pool}
}

// Compile-time interface check.
var _ storage.PositionStore = (*PositionStore)(nil)

// rungRow is the JSONB representation of one ladder rung.
type rungRow struct {
	GainPercentThreshold float64 `json:"gain_percent_threshold"`
	ReleaseFraction      float64 `json:"release_fraction"`
	Hit                  bool    `json:"hit"`
}

func encodeLadder(ladder []domain.LadderRung) ([]byte, error) {
	rows := make([]rungRow, len(ladder))
	for i, r := range ladder {
		rows[i] = rungRow{GainPercentThreshold: r.GainPercentThreshold, ReleaseFraction: r.ReleaseFraction, Hit: r.Hit}
	}
	return json.Marshal(rows)
}

func decodeLadder(b []byte) ([]domain.LadderRung, error) {
	var rows []rungRow
	if err := json.Unmarshal(b, &rows); err != nil {
		return nil, err
	}
	ladder := make([]domain.LadderRung, len(rows))
	for i, r := range rows {
		ladder[i] = domain.LadderRung{GainPercentThreshold: r.GainPercentThreshold, ReleaseFraction: r.ReleaseFraction, Hit: r.Hit}
	}
	return ladder, nil
}

const positionColumns = `
	position_id, candidate_id, network, address,
	entry_price, size, remaining_fraction, opened_at,
	profit_ladder, stop_loss_price, initial_stop_price,
	trailing_enabled, trailing_percent, max_hold_seconds,
	status, peak_price, consecutive_failures, closed_at, close_reason
`

// SaveTrade inserts or replaces a position.
func (s *PositionStore) SaveTrade(ctx context.Context, p *domain.Position) error {
	if err := storage.ValidatePosition(p); err != nil {
		return err
	}
	ladder, err := encodeLadder(p.ProfitLadder)
	if err != nil {
		return fmt.Errorf("encode ladder: %w", err)
	}

	query := `
		INSERT INTO positions (` + positionColumns + `) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7, $8,
			$9, $10, $11,
			$12, $13, $14,
			$15, $16, $17, $18, $19
		)
		ON CONFLICT (position_id) DO UPDATE SET
			remaining_fraction   = EXCLUDED.remaining_fraction,
			profit_ladder        = EXCLUDED.profit_ladder,
			stop_loss_price      = EXCLUDED.stop_loss_price,
			status               = EXCLUDED.status,
			peak_price           = EXCLUDED.peak_price,
			consecutive_failures = EXCLUDED.consecutive_failures,
			closed_at            = EXCLUDED.closed_at,
			close_reason         = EXCLUDED.close_reason,
			updated_at           = now()
	`

	_, err = s.pool.Exec(ctx, query,
		p.ID, p.CandidateID, string(p.Network), p.Address,
		p.EntryPrice, p.Size, p.RemainingFraction, p.OpenedAt,
		ladder, p.StopLossPrice, p.InitialStopPrice,
		p.TrailingEnabled, p.TrailingPercent, p.MaxHoldSeconds,
		string(p.Status), p.PeakPrice, p.ConsecutiveFailures, p.ClosedAt, p.CloseReason,
	)
	return classify("save position", err)
}

// GetPosition retrieves a position by ID. Returns ErrNotFound if not exists.
func (s *PositionStore) GetPosition(ctx context.Context, positionID string) (*domain.Position, error) {
	query := `SELECT ` + positionColumns + ` FROM positions WHERE position_id = $1`

	p, err := scanPosition(s.pool.QueryRow(ctx, query, positionID))
	if err != nil {
		return nil, classify("get position by id", err)
	}
	return p, nil
}

// LoadOpenPositions returns active positions ordered by opened_at ASC.
func (s *PositionStore) LoadOpenPositions(ctx context.Context) ([]*domain.Position, error) {
	query := `
		SELECT ` + positionColumns + `
		FROM positions
		WHERE status <> 'CLOSED'
		ORDER BY opened_at ASC, position_id ASC
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, classify("load open positions", err)
	}
	defer rows.Close()

	var positions []*domain.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("scan position row: %w", err)
		}
		positions = append(positions, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate position rows: %w", err)
	}
	return positions, nil
}

// scanPosition scans a single row into a Position.
func scanPosition(row pgx.Row) (*domain.Position, error) {
	var (
		p       domain.Position
		network string
		status  string
		ladder  []byte
	)

	err := row.Scan(
		&p.ID, &p.CandidateID, &network, &p.Address,
		&p.EntryPrice, &p.Size, &p.RemainingFraction, &p.OpenedAt,
		&ladder, &p.StopLossPrice, &p.InitialStopPrice,
		&p.TrailingEnabled, &p.TrailingPercent, &p.MaxHoldSeconds,
		&status, &p.PeakPrice, &p.ConsecutiveFailures, &p.ClosedAt, &p.CloseReason,
	)
	if err != nil {
		return nil, err
	}

	p.Network = domain.Network(network)
	p.Status = domain.PositionStatus(status)
	if p.ProfitLadder, err = decodeLadder(ladder); err != nil {
		return nil, fmt.Errorf("decode ladder: %w", err)
	}
	return &p, nil
}

// SaveFill appends a fill. Returns ErrDuplicateKey if fill_id exists.
func (s *PositionStore) SaveFill(ctx context.Context, f *domain.Fill) error {
	if err := storage.ValidateFill(f); err != nil {
		return err
	}

	query := `
		INSERT INTO fills (
			fill_id, position_id, side, reason,
			fraction, price, quote_amount, tx_ref, executed_at
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7::text::numeric, $8, $9
		)
	`

	_, err := s.pool.Exec(ctx, query,
		f.ID, f.PositionID, string(f.Side), f.Reason,
		f.Fraction, f.Price, f.QuoteAmount.String(), f.TxRef, f.ExecutedAt,
	)
	return classify("insert fill", err)
}

// GetFills retrieves all fills for a position, ordered by executed_at ASC.
func (s *PositionStore) GetFills(ctx context.Context, positionID string) ([]*domain.Fill, error) {
	query := `
		SELECT
			fill_id, position_id, side, reason,
			fraction, price, quote_amount::text, tx_ref, executed_at
		FROM fills
		WHERE position_id = $1
		ORDER BY executed_at ASC, fill_id ASC
	`

	rows, err := s.pool.Query(ctx, query, positionID)
	if err != nil {
		return nil, classify("get fills by position id", err)
	}
	defer rows.Close()

	var fills []*domain.Fill
	for rows.Next() {
		var (
			f      domain.Fill
			side   string
			amount string
		)
		err := rows.Scan(
			&f.ID, &f.PositionID, &side, &f.Reason,
			&f.Fraction, &f.Price, &amount, &f.TxRef, &f.ExecutedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan fill row: %w", err)
		}
		f.Side = domain.Side(side)
		if f.QuoteAmount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("parse quote amount %q: %w", amount, err)
		}
		fills = append(fills, &f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate fill rows: %w", err)
	}
	return fills, nil
}
