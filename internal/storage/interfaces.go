package storage

import (
	"context"

	"solana-sniper/internal/domain"
)

// PositionStore persists position state and the fills executed against it.
// Positions are upserted on every state change; fills are append-only.
type PositionStore interface {
	// SaveTrade inserts or replaces the full state of a position.
	SaveTrade(ctx context.Context, p *domain.Position) error

	// GetPosition retrieves a position by ID. Returns ErrNotFound if not exists.
	GetPosition(ctx context.Context, positionID string) (*domain.Position, error)

	// LoadOpenPositions returns every OPEN or PARTIALLY_CLOSED position,
	// ordered by opened_at ASC.
	LoadOpenPositions(ctx context.Context) ([]*domain.Position, error)

	// SaveFill appends a fill. Returns ErrDuplicateKey if fill_id exists.
	SaveFill(ctx context.Context, f *domain.Fill) error

	// GetFills retrieves all fills for a position, ordered by executed_at ASC.
	GetFills(ctx context.Context, positionID string) ([]*domain.Fill, error)
}

// PriceTickStore provides access to price_ticks storage.
type PriceTickStore interface {
	// InsertBulk adds multiple ticks. Fails entire batch on duplicate (position_id, observed_at).
	InsertBulk(ctx context.Context, ticks []*domain.PriceTick) error

	// GetByPosition retrieves all ticks for a position, ordered by observed_at ASC.
	GetByPosition(ctx context.Context, positionID string) ([]*domain.PriceTick, error)

	// GetByTimeRange retrieves ticks for a position within [start, end] (inclusive).
	GetByTimeRange(ctx context.Context, positionID string, start, end int64) ([]*domain.PriceTick, error)
}

// ValidatePosition checks the fields every backend requires.
func ValidatePosition(p *domain.Position) error {
	if p == nil || p.ID == "" || p.Address == "" || !p.Network.IsValid() {
		return ErrInvalidInput
	}
	return nil
}

// ValidateFill checks the fields every backend requires.
func ValidateFill(f *domain.Fill) error {
	if f == nil || f.ID == "" || f.PositionID == "" {
		return ErrInvalidInput
	}
	if f.Side != domain.SideBuy && f.Side != domain.SideSell {
		return ErrInvalidInput
	}
	return nil
}
