package memory

import (
	"context"
	"sort"
	"sync"

	"solana-sniper/internal/domain"
	"solana-sniper/internal/storage"
)

// PositionStore is an in-memory implementation of storage.PositionStore.
type PositionStore struct {
	mu        sync.RWMutex
	positions map[string]*domain.Position // keyed by position_id
	fills     map[string]*domain.Fill     // keyed by fill_id
}

// NewPositionStore creates a new in-memory position store.
func NewPositionStore() *PositionStore {
	return &PositionStore{
		positions: make(map[string]*domain.Position),
		fills:     make(map[string]*domain.Fill),
	}
}

// SaveTrade inserts or replaces a position.
func (s *PositionStore) SaveTrade(_ context.Context, p *domain.Position) error {
	if err := storage.ValidatePosition(p); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.positions[p.ID] = p.Clone()
	return nil
}

// GetPosition retrieves a position by ID. Returns ErrNotFound if not exists.
func (s *PositionStore) GetPosition(_ context.Context, positionID string) (*domain.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, exists := s.positions[positionID]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return p.Clone(), nil
}

// LoadOpenPositions returns active positions ordered by opened_at ASC.
func (s *PositionStore) LoadOpenPositions(_ context.Context) ([]*domain.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Position
	for _, p := range s.positions {
		if p.Status.IsActive() {
			result = append(result, p.Clone())
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].OpenedAt != result[j].OpenedAt {
			return result[i].OpenedAt < result[j].OpenedAt
		}
		return result[i].ID < result[j].ID
	})

	return result, nil
}

// SaveFill appends a fill. Returns ErrDuplicateKey if fill_id exists.
func (s *PositionStore) SaveFill(_ context.Context, f *domain.Fill) error {
	if err := storage.ValidateFill(f); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.fills[f.ID]; exists {
		return storage.ErrDuplicateKey
	}

	copy := *f
	s.fills[f.ID] = &copy
	return nil
}

// GetFills retrieves all fills for a position, ordered by executed_at ASC.
func (s *PositionStore) GetFills(_ context.Context, positionID string) ([]*domain.Fill, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Fill
	for _, f := range s.fills {
		if f.PositionID == positionID {
			copy := *f
			result = append(result, &copy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].ExecutedAt != result[j].ExecutedAt {
			return result[i].ExecutedAt < result[j].ExecutedAt
		}
		return result[i].ID < result[j].ID
	})

	return result, nil
}

var _ storage.PositionStore = (*PositionStore)(nil)
