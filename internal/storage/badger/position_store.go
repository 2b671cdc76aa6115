package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	badgerdb "github.com/dgraph-io/badger/v4"

	"solana-sniper/internal/domain"
	"solana-sniper/internal/storage"
)

// Key layout:
//
//	pos/<position_id>                              -> position JSON
//	fill/<position_id>/<executed_at:020d>/<fill_id> -> fill JSON
//	fillid/<fill_id>                               -> empty (uniqueness marker)
const (
	positionPrefix = "pos/"
	fillPrefix     = "fill/"
	fillIDPrefix   = "fillid/"
)

// PositionStore implements storage.PositionStore on Badger.
type PositionStore struct {
	db *DB
}

// NewPositionStore creates a new PositionStore.
func NewPositionStore(db *DB) *PositionStore {
	return &PositionStore{db: db}
}

// Compile-time interface check.
var _ storage.PositionStore = (*PositionStore)(nil)

func positionKey(id string) []byte {
	return []byte(positionPrefix + id)
}

func fillKey(f *domain.Fill) []byte {
	return []byte(fmt.Sprintf("%s%s/%020d/%s", fillPrefix, f.PositionID, f.ExecutedAt, f.ID))
}

// SaveTrade inserts or replaces a position.
func (s *PositionStore) SaveTrade(_ context.Context, p *domain.Position) error {
	if err := storage.ValidatePosition(p); err != nil {
		return err
	}
	err := s.db.db.Update(func(txn *badgerdb.Txn) error {
		return setJSON(txn, positionKey(p.ID), p)
	})
	if err != nil {
		return fmt.Errorf("save position %s: %w", p.ID, err)
	}
	return nil
}

// GetPosition retrieves a position by ID. Returns ErrNotFound if not exists.
func (s *PositionStore) GetPosition(_ context.Context, positionID string) (*domain.Position, error) {
	var p domain.Position
	err := s.db.db.View(func(txn *badgerdb.Txn) error {
		return getJSON(txn, positionKey(positionID), &p)
	})
	if err != nil {
		if errors.Is(err, badgerdb.ErrKeyNotFound) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get position %s: %w", positionID, err)
	}
	return &p, nil
}

// LoadOpenPositions returns active positions ordered by opened_at ASC.
func (s *PositionStore) LoadOpenPositions(_ context.Context) ([]*domain.Position, error) {
	var result []*domain.Position
	err := s.db.db.View(func(txn *badgerdb.Txn) error {
		return scanPrefix(txn, []byte(positionPrefix), func(val []byte) error {
			var p domain.Position
			if err := json.Unmarshal(val, &p); err != nil {
				return err
			}
			if p.Status.IsActive() {
				result = append(result, &p)
			}
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("load open positions: %w", err)
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
	err := s.db.db.Update(func(txn *badgerdb.Txn) error {
		marker := []byte(fillIDPrefix + f.ID)
		if _, err := txn.Get(marker); err == nil {
			return storage.ErrDuplicateKey
		} else if !errors.Is(err, badgerdb.ErrKeyNotFound) {
			return err
		}
		if err := txn.Set(marker, nil); err != nil {
			return err
		}
		return setJSON(txn, fillKey(f), f)
	})
	if err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			return err
		}
		return fmt.Errorf("save fill %s: %w", f.ID, err)
	}
	return nil
}

// GetFills retrieves all fills for a position, ordered by executed_at ASC.
func (s *PositionStore) GetFills(_ context.Context, positionID string) ([]*domain.Fill, error) {
	var result []*domain.Fill
	err := s.db.db.View(func(txn *badgerdb.Txn) error {
		return scanPrefix(txn, []byte(fillPrefix+positionID+"/"), func(val []byte) error {
			var f domain.Fill
			if err := json.Unmarshal(val, &f); err != nil {
				return err
			}
			result = append(result, &f)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("get fills for %s: %w", positionID, err)
	}
	return result, nil
}
