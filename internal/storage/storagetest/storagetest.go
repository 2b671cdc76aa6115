// Package storagetest holds behavioural tests shared by every storage backend.
package storagetest

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"solana-sniper/internal/domain"
	"solana-sniper/internal/storage"
)

// SamplePosition returns a valid open position for tests.
func SamplePosition(id string, openedAt int64) *domain.Position {
	return &domain.Position{
		ID:                id,
		CandidateID:       "cand-" + id,
		Network:           domain.NetworkSolana,
		Address:           "Mint" + id,
		EntryPrice:        0.002,
		Size:              0.75,
		RemainingFraction: 1,
		OpenedAt:          openedAt,
		ProfitLadder: []domain.LadderRung{
			{GainPercentThreshold: 50, ReleaseFraction: 0.3},
			{GainPercentThreshold: 70, ReleaseFraction: 0.3},
			{GainPercentThreshold: 100, ReleaseFraction: 0.4},
		},
		StopLossPrice:    0.0014,
		InitialStopPrice: 0.0014,
		TrailingEnabled:  true,
		TrailingPercent:  0.15,
		MaxHoldSeconds:   3600,
		Status:           domain.PositionOpen,
		PeakPrice:        0.002,
	}
}

// RunPositionStore exercises the storage.PositionStore contract.
func RunPositionStore(t *testing.T, newStore func(t *testing.T) storage.PositionStore) {
	t.Run("SaveAndGet", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		p := SamplePosition("p1", 1000)
		if err := store.SaveTrade(ctx, p); err != nil {
			t.Fatalf("SaveTrade failed: %v", err)
		}

		got, err := store.GetPosition(ctx, "p1")
		if err != nil {
			t.Fatalf("GetPosition failed: %v", err)
		}
		if got.EntryPrice != p.EntryPrice || got.Size != p.Size {
			t.Errorf("price/size mismatch: got %v/%v", got.EntryPrice, got.Size)
		}
		if len(got.ProfitLadder) != 3 || got.ProfitLadder[2].ReleaseFraction != 0.4 {
			t.Errorf("ladder mismatch: %+v", got.ProfitLadder)
		}
		if got.ClosedAt != nil {
			t.Errorf("expected nil ClosedAt, got %v", *got.ClosedAt)
		}
	})

	t.Run("SaveTradeReplaces", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		p := SamplePosition("p1", 1000)
		if err := store.SaveTrade(ctx, p); err != nil {
			t.Fatalf("SaveTrade failed: %v", err)
		}

		closedAt := int64(5000)
		p.ProfitLadder[0].Hit = true
		p.RemainingFraction = 0
		p.Status = domain.PositionClosed
		p.ClosedAt = &closedAt
		p.CloseReason = domain.ExitReasonStopLoss
		if err := store.SaveTrade(ctx, p); err != nil {
			t.Fatalf("second SaveTrade failed: %v", err)
		}

		got, err := store.GetPosition(ctx, "p1")
		if err != nil {
			t.Fatalf("GetPosition failed: %v", err)
		}
		if got.Status != domain.PositionClosed || got.CloseReason != domain.ExitReasonStopLoss {
			t.Errorf("status not replaced: %s/%s", got.Status, got.CloseReason)
		}
		if got.ClosedAt == nil || *got.ClosedAt != 5000 {
			t.Errorf("ClosedAt not persisted: %v", got.ClosedAt)
		}
		if !got.ProfitLadder[0].Hit {
			t.Error("rung hit flag not persisted")
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		store := newStore(t)

		_, err := store.GetPosition(context.Background(), "nonexistent")
		if !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
	})

	t.Run("InvalidInput", func(t *testing.T) {
		store := newStore(t)

		err := store.SaveTrade(context.Background(), &domain.Position{ID: "x"})
		if !errors.Is(err, storage.ErrInvalidInput) {
			t.Errorf("Expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("LoadOpenPositions", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		open := SamplePosition("p2", 2000)
		partial := SamplePosition("p1", 1000)
		partial.Status = domain.PositionPartiallyClosed
		partial.RemainingFraction = 0.7
		closed := SamplePosition("p3", 500)
		closed.Status = domain.PositionClosed
		closed.RemainingFraction = 0

		for _, p := range []*domain.Position{open, partial, closed} {
			if err := store.SaveTrade(ctx, p); err != nil {
				t.Fatalf("SaveTrade %s failed: %v", p.ID, err)
			}
		}

		got, err := store.LoadOpenPositions(ctx)
		if err != nil {
			t.Fatalf("LoadOpenPositions failed: %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("Expected 2 open positions, got %d", len(got))
		}
		if got[0].ID != "p1" || got[1].ID != "p2" {
			t.Errorf("Expected order p1,p2; got %s,%s", got[0].ID, got[1].ID)
		}
		if got[0].RemainingFraction != 0.7 {
			t.Errorf("RemainingFraction mismatch: %v", got[0].RemainingFraction)
		}
	})

	t.Run("Fills", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		fills := []*domain.Fill{
			{ID: "f2", PositionID: "p1", Side: domain.SideSell, Reason: "RUNG_1", Fraction: 0.3, Price: 0.0031, QuoteAmount: decimal.RequireFromString("0.348"), TxRef: "tx2", ExecutedAt: 2000},
			{ID: "f1", PositionID: "p1", Side: domain.SideBuy, Reason: domain.FillReasonEntry, Fraction: 1, Price: 0.002, QuoteAmount: decimal.RequireFromString("0.75"), TxRef: "tx1", ExecutedAt: 1000},
			{ID: "f3", PositionID: "other", Side: domain.SideBuy, Reason: domain.FillReasonEntry, Fraction: 1, Price: 1, QuoteAmount: decimal.NewFromInt(1), ExecutedAt: 1500},
		}
		for _, f := range fills {
			if err := store.SaveFill(ctx, f); err != nil {
				t.Fatalf("SaveFill %s failed: %v", f.ID, err)
			}
		}

		got, err := store.GetFills(ctx, "p1")
		if err != nil {
			t.Fatalf("GetFills failed: %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("Expected 2 fills, got %d", len(got))
		}
		if got[0].ID != "f1" || got[1].ID != "f2" {
			t.Errorf("Expected order f1,f2; got %s,%s", got[0].ID, got[1].ID)
		}
		if !got[1].QuoteAmount.Equal(decimal.RequireFromString("0.348")) {
			t.Errorf("QuoteAmount mismatch: %s", got[1].QuoteAmount)
		}
		if got[0].Side != domain.SideBuy || got[0].TxRef != "tx1" {
			t.Errorf("entry fill mismatch: %+v", got[0])
		}

		err = store.SaveFill(ctx, fills[0])
		if !errors.Is(err, storage.ErrDuplicateKey) {
			t.Errorf("Expected ErrDuplicateKey, got %v", err)
		}
	})

	t.Run("FillInvalidSide", func(t *testing.T) {
		store := newStore(t)

		err := store.SaveFill(context.Background(), &domain.Fill{ID: "f", PositionID: "p", Side: "HOLD"})
		if !errors.Is(err, storage.ErrInvalidInput) {
			t.Errorf("Expected ErrInvalidInput, got %v", err)
		}
	})
}

// RunPriceTickStore exercises the storage.PriceTickStore contract.
func RunPriceTickStore(t *testing.T, newStore func(t *testing.T) storage.PriceTickStore) {
	t.Run("InsertAndQuery", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		ticks := []*domain.PriceTick{
			{PositionID: "p1", Network: domain.NetworkSolana, Address: "MintA", Price: 1.2, ObservedAt: 3000},
			{PositionID: "p1", Network: domain.NetworkSolana, Address: "MintA", Price: 1.0, ObservedAt: 1000},
			{PositionID: "p1", Network: domain.NetworkSolana, Address: "MintA", Price: 1.1, ObservedAt: 2000},
			{PositionID: "p2", Network: domain.NetworkSolana, Address: "MintB", Price: 9, ObservedAt: 1000},
		}
		if err := store.InsertBulk(ctx, ticks); err != nil {
			t.Fatalf("InsertBulk failed: %v", err)
		}

		got, err := store.GetByPosition(ctx, "p1")
		if err != nil {
			t.Fatalf("GetByPosition failed: %v", err)
		}
		if len(got) != 3 {
			t.Fatalf("Expected 3 ticks, got %d", len(got))
		}
		for i, want := range []float64{1.0, 1.1, 1.2} {
			if got[i].Price != want {
				t.Errorf("tick %d price: got %v, want %v", i, got[i].Price, want)
			}
		}

		ranged, err := store.GetByTimeRange(ctx, "p1", 1500, 3000)
		if err != nil {
			t.Fatalf("GetByTimeRange failed: %v", err)
		}
		if len(ranged) != 2 {
			t.Errorf("Expected 2 ticks in range, got %d", len(ranged))
		}
	})

	t.Run("DuplicateRejectsBatch", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		first := []*domain.PriceTick{{PositionID: "p1", Network: domain.NetworkSolana, Address: "MintA", Price: 1, ObservedAt: 1000}}
		if err := store.InsertBulk(ctx, first); err != nil {
			t.Fatalf("InsertBulk failed: %v", err)
		}

		batch := []*domain.PriceTick{
			{PositionID: "p1", Network: domain.NetworkSolana, Address: "MintA", Price: 2, ObservedAt: 2000},
			{PositionID: "p1", Network: domain.NetworkSolana, Address: "MintA", Price: 3, ObservedAt: 1000},
		}
		if err := store.InsertBulk(ctx, batch); !errors.Is(err, storage.ErrDuplicateKey) {
			t.Fatalf("Expected ErrDuplicateKey, got %v", err)
		}

		got, err := store.GetByPosition(ctx, "p1")
		if err != nil {
			t.Fatalf("GetByPosition failed: %v", err)
		}
		if len(got) != 1 {
			t.Errorf("failed batch must not be partially applied, got %d ticks", len(got))
		}
	})
}
