package clickhouse

import (
	"context"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"solana-sniper/internal/domain"
	"solana-sniper/internal/storage"
)

// PriceTickStore implements storage.PriceTickStore using ClickHouse.
type PriceTickStore struct {
	conn *Conn
}

// NewPriceTickStore creates a new PriceTickStore.
func NewPriceTickStore(conn *Conn) *PriceTickStore {
	return &PriceTickStore{conn: conn}
}

// Compile-time interface check.
var _ storage.PriceTickStore = (*PriceTickStore)(nil)

// InsertBulk adds multiple ticks. Fails entire batch on duplicate (position_id, observed_at).
// MergeTree does not enforce uniqueness, so duplicates are checked before the insert.
func (s *PriceTickStore) InsertBulk(ctx context.Context, ticks []*domain.PriceTick) error {
	if len(ticks) == 0 {
		return nil
	}

	type key struct {
		positionID string
		observedAt int64
	}
	seen := make(map[key]struct{}, len(ticks))
	for _, t := range ticks {
		if t == nil || t.PositionID == "" {
			return storage.ErrInvalidInput
		}
		k := key{t.PositionID, t.ObservedAt}
		if _, exists := seen[k]; exists {
			return storage.ErrDuplicateKey
		}
		seen[k] = struct{}{}
	}

	for _, t := range ticks {
		exists, err := s.exists(ctx, t.PositionID, t.ObservedAt)
		if err != nil {
			return fmt.Errorf("check exists: %w", err)
		}
		if exists {
			return storage.ErrDuplicateKey
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO price_ticks (position_id, network, address, price, observed_at)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, t := range ticks {
		err = batch.Append(t.PositionID, string(t.Network), t.Address, t.Price, uint64(t.ObservedAt))
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetByPosition retrieves all ticks for a position, ordered by observed_at ASC.
func (s *PriceTickStore) GetByPosition(ctx context.Context, positionID string) ([]*domain.PriceTick, error) {
	query := `
		SELECT position_id, network, address, price, observed_at
		FROM price_ticks
		WHERE position_id = ?
		ORDER BY observed_at ASC
	`

	rows, err := s.conn.Query(ctx, query, positionID)
	if err != nil {
		return nil, fmt.Errorf("query by position id: %w", err)
	}
	defer rows.Close()

	return scanPriceTicks(rows)
}

// GetByTimeRange retrieves ticks for a position within [start, end] (inclusive).
func (s *PriceTickStore) GetByTimeRange(ctx context.Context, positionID string, start, end int64) ([]*domain.PriceTick, error) {
	query := `
		SELECT position_id, network, address, price, observed_at
		FROM price_ticks
		WHERE position_id = ? AND observed_at >= ? AND observed_at <= ?
		ORDER BY observed_at ASC
	`

	rows, err := s.conn.Query(ctx, query, positionID, uint64(start), uint64(end))
	if err != nil {
		return nil, fmt.Errorf("query by time range: %w", err)
	}
	defer rows.Close()

	return scanPriceTicks(rows)
}

func (s *PriceTickStore) exists(ctx context.Context, positionID string, observedAt int64) (bool, error) {
	query := `
		SELECT count(*) FROM price_ticks
		WHERE position_id = ? AND observed_at = ?
	`

	var count uint64
	if err := s.conn.QueryRow(ctx, query, positionID, uint64(observedAt)).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

func scanPriceTicks(rows driver.Rows) ([]*domain.PriceTick, error) {
	var ticks []*domain.PriceTick

	for rows.Next() {
		var (
			t          domain.PriceTick
			network    string
			observedAt uint64
		)
		if err := rows.Scan(&t.PositionID, &network, &t.Address, &t.Price, &observedAt); err != nil {
			return nil, fmt.Errorf("scan price tick row: %w", err)
		}
		t.Network = domain.Network(network)
		t.ObservedAt = int64(observedAt)
		ticks = append(ticks, &t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate price tick rows: %w", err)
	}
	return ticks, nil
}
