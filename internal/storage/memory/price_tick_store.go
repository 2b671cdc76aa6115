package memory

import (
	"context"
	"sort"
	"sync"

	"solana-sniper/internal/domain"
	"solana-sniper/internal/storage"
)

type tickKey struct {
	positionID string
	observedAt int64
}

// PriceTickStore is an in-memory implementation of storage.PriceTickStore.
type PriceTickStore struct {
	mu   sync.RWMutex
	data map[tickKey]*domain.PriceTick
}

// NewPriceTickStore creates a new in-memory price tick store.
func NewPriceTickStore() *PriceTickStore {
	return &PriceTickStore{
		data: make(map[tickKey]*domain.PriceTick),
	}
}

// InsertBulk adds multiple ticks atomically. Fails entire batch on any duplicate.
func (s *PriceTickStore) InsertBulk(_ context.Context, ticks []*domain.PriceTick) error {
	if len(ticks) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batchKeys := make(map[tickKey]struct{}, len(ticks))
	for _, t := range ticks {
		if t == nil || t.PositionID == "" {
			return storage.ErrInvalidInput
		}
		k := tickKey{t.PositionID, t.ObservedAt}
		if _, exists := s.data[k]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[k]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[k] = struct{}{}
	}

	for _, t := range ticks {
		copy := *t
		s.data[tickKey{t.PositionID, t.ObservedAt}] = &copy
	}

	return nil
}

// GetByPosition retrieves all ticks for a position, ordered by observed_at ASC.
func (s *PriceTickStore) GetByPosition(ctx context.Context, positionID string) ([]*domain.PriceTick, error) {
	return s.filter(positionID, func(*domain.PriceTick) bool { return true }), nil
}

// GetByTimeRange retrieves ticks for a position within [start, end] (inclusive).
func (s *PriceTickStore) GetByTimeRange(_ context.Context, positionID string, start, end int64) ([]*domain.PriceTick, error) {
	return s.filter(positionID, func(t *domain.PriceTick) bool {
		return t.ObservedAt >= start && t.ObservedAt <= end
	}), nil
}

func (s *PriceTickStore) filter(positionID string, keep func(*domain.PriceTick) bool) []*domain.PriceTick {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.PriceTick
	for k, t := range s.data {
		if k.positionID == positionID && keep(t) {
			copy := *t
			result = append(result, &copy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].ObservedAt < result[j].ObservedAt
	})

	return result
}

var _ storage.PriceTickStore = (*PriceTickStore)(nil)
