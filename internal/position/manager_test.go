package position

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"solana-sniper/internal/config"
	"solana-sniper/internal/domain"
	"solana-sniper/internal/execution"
	"solana-sniper/internal/idhash"
	"solana-sniper/internal/logging"
	"solana-sniper/internal/notify"
	"solana-sniper/internal/storage/memory"
)

type fakeGateway struct {
	price   float64
	err     error
	release chan struct{} // when set, Buy blocks until closed
	calls   atomic.Int32
}

func (g *fakeGateway) Buy(ctx context.Context, _ domain.Network, _ string, size float64, _ execution.BuyOptions) (execution.Result, error) {
	g.calls.Add(1)
	if g.release != nil {
		select {
		case <-g.release:
		case <-ctx.Done():
			return execution.Result{}, ctx.Err()
		}
	}
	if g.err != nil {
		return execution.Result{}, g.err
	}
	return execution.Result{
		TxRef:       fmt.Sprintf("tx-%d", g.calls.Load()),
		Price:       g.price,
		QuoteAmount: decimal.NewFromFloat(size),
		ExecutedAt:  time.Now().UnixMilli(),
	}, nil
}

func (g *fakeGateway) Sell(context.Context, domain.Network, string, float64, execution.SellOptions) (execution.Result, error) {
	return execution.Result{}, errors.New("not used")
}

var quiet = logging.Component(logging.Discard(), "position")

func testConfig(maxOpen int) Config {
	cfg := ConfigFrom(config.Default())
	cfg.MaxOpenPositions = maxOpen
	return cfg
}

func candidate(address string) *domain.Candidate {
	return &domain.Candidate{
		ID:           idhash.ComputeCandidateID(domain.NetworkSolana, address),
		Network:      domain.NetworkSolana,
		Address:      address,
		DiscoveredAt: 1000,
	}
}

func goodAssessment() *domain.Assessment {
	return &domain.Assessment{RiskScore: 20, ProfitPotentialPercent: 600}
}

func newManager(maxOpen int, gw execution.Gateway) (*Manager, *memory.PositionStore, *notify.Recorder) {
	store := memory.NewPositionStore()
	rec := &notify.Recorder{}
	return New(testConfig(maxOpen), gw, store, rec, quiet), store, rec
}

func TestOpen_BuildsExitPlan(t *testing.T) {
	ctx := context.Background()
	m, store, rec := newManager(5, &fakeGateway{price: 0.002})

	p, err := m.Open(ctx, candidate("MintA"), goodAssessment())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	if p.Status != domain.PositionOpen || p.RemainingFraction != 1 {
		t.Errorf("unexpected state %s remaining=%v", p.Status, p.RemainingFraction)
	}
	if p.EntryPrice != 0.002 || p.PeakPrice != 0.002 {
		t.Errorf("expected entry and peak 0.002, got %v/%v", p.EntryPrice, p.PeakPrice)
	}
	if math.Abs(p.StopLossPrice-0.0014) > 1e-12 || p.InitialStopPrice != p.StopLossPrice {
		t.Errorf("expected stop 0.0014, got %v (initial %v)", p.StopLossPrice, p.InitialStopPrice)
	}
	// pp 600 -> expected gain 500%: rungs at 250, 350, 500.
	want := []float64{250, 350, 500}
	if len(p.ProfitLadder) != len(want) {
		t.Fatalf("expected %d rungs, got %d", len(want), len(p.ProfitLadder))
	}
	for i, r := range p.ProfitLadder {
		if math.Abs(r.GainPercentThreshold-want[i]) > 1e-9 || r.Hit {
			t.Errorf("rung %d: got %+v, want threshold %v", i, r, want[i])
		}
	}
	// pp 600 -> x1.5, risk 20 -> x1.2.
	if math.Abs(p.Size-0.9) > 1e-9 {
		t.Errorf("expected size 0.9, got %v", p.Size)
	}

	saved, err := store.GetPosition(ctx, p.ID)
	if err != nil {
		t.Fatalf("position not persisted: %v", err)
	}
	if saved.Address != "MintA" {
		t.Errorf("unexpected persisted address %s", saved.Address)
	}
	fills, _ := store.GetFills(ctx, p.ID)
	if len(fills) != 1 || fills[0].Side != domain.SideBuy || fills[0].Reason != domain.FillReasonEntry {
		t.Errorf("expected one entry fill, got %+v", fills)
	}
	if len(rec.OfKind(notify.KindPositionOpened)) != 1 {
		t.Error("expected PositionOpened event")
	}
	if !m.HasOpen(domain.NetworkSolana, "MintA") {
		t.Error("HasOpen should report the held asset")
	}
}

func TestOpen_CapacityAndDuplicate(t *testing.T) {
	ctx := context.Background()
	m, _, rec := newManager(1, &fakeGateway{price: 1})

	if _, err := m.Open(ctx, candidate("MintA"), goodAssessment()); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if _, err := m.Open(ctx, candidate("MintA"), goodAssessment()); !errors.Is(err, domain.ErrDuplicate) {
		t.Errorf("expected ErrDuplicate, got %v", err)
	}
	if _, err := m.Open(ctx, candidate("MintB"), goodAssessment()); !errors.Is(err, domain.ErrAtCapacity) {
		t.Errorf("expected ErrAtCapacity, got %v", err)
	}
	if len(rec.OfKind(notify.KindCapacityReached)) != 1 {
		t.Error("expected CapacityReached event")
	}
}

func TestOpen_ReservationCountsTowardCapacity(t *testing.T) {
	ctx := context.Background()
	gw := &fakeGateway{price: 1, release: make(chan struct{})}
	m, _, _ := newManager(1, gw)

	done := make(chan error, 1)
	go func() {
		_, err := m.Open(ctx, candidate("MintA"), goodAssessment())
		done <- err
	}()

	deadline := time.Now().Add(time.Second)
	for m.OpenCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("reservation never taken")
		}
		time.Sleep(time.Millisecond)
	}

	if !m.HasOpen(domain.NetworkSolana, "MintA") {
		t.Error("pending buy should count as held")
	}
	if _, err := m.Open(ctx, candidate("MintB"), goodAssessment()); !errors.Is(err, domain.ErrAtCapacity) {
		t.Errorf("expected ErrAtCapacity while buy in flight, got %v", err)
	}

	close(gw.release)
	if err := <-done; err != nil {
		t.Fatalf("first Open failed: %v", err)
	}
	if m.OpenCount() != 1 {
		t.Errorf("expected 1 open, got %d", m.OpenCount())
	}
}

func TestOpen_BuyFailureReleasesReservation(t *testing.T) {
	ctx := context.Background()
	gw := &fakeGateway{err: domain.Transient(errors.New("venue down"))}
	m, store, rec := newManager(1, gw)

	_, err := m.Open(ctx, candidate("MintA"), goodAssessment())
	if !domain.IsTransient(err) {
		t.Fatalf("expected transient error, got %v", err)
	}
	if gw.calls.Load() != 1 {
		t.Errorf("buy must not be retried, got %d calls", gw.calls.Load())
	}
	if m.OpenCount() != 0 || m.HasOpen(domain.NetworkSolana, "MintA") {
		t.Error("reservation should be released")
	}
	open, _ := store.LoadOpenPositions(ctx)
	if len(open) != 0 {
		t.Errorf("no position should be persisted, got %d", len(open))
	}
	if len(rec.OfKind(notify.KindExecutionFailed)) != 1 {
		t.Error("expected ExecutionFailed event")
	}
}

func TestOpen_ConcurrentNeverExceedsCapacity(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newManager(5, &fakeGateway{price: 1})

	var (
		wg      sync.WaitGroup
		success atomic.Int32
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := m.Open(ctx, candidate(fmt.Sprintf("Mint%d", i)), goodAssessment()); err == nil {
				success.Add(1)
			}
		}(i)
	}
	wg.Wait()

	if success.Load() != 5 {
		t.Errorf("expected exactly 5 opens, got %d", success.Load())
	}
	if len(m.Active()) != 5 {
		t.Errorf("expected 5 active, got %d", len(m.Active()))
	}
}

func TestUpdate_EnforcesInvariants(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newManager(5, &fakeGateway{price: 1})
	p, err := m.Open(ctx, candidate("MintA"), goodAssessment())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	if _, err := m.Update(ctx, p.ID, func(p *domain.Position) {
		p.RemainingFraction = 0.7
		p.Status = domain.PositionPartiallyClosed
		p.ProfitLadder[0].Hit = true
	}); err != nil {
		t.Fatalf("valid update failed: %v", err)
	}

	tests := []struct {
		name string
		fn   func(p *domain.Position)
	}{
		{"remaining increases", func(p *domain.Position) { p.RemainingFraction = 0.9 }},
		{"stop moves down", func(p *domain.Position) { p.StopLossPrice -= 0.1 }},
		{"back to OPEN", func(p *domain.Position) { p.Status = domain.PositionOpen }},
		{"rung un-hit", func(p *domain.Position) { p.ProfitLadder[0].Hit = false }},
		{"empty but not closed", func(p *domain.Position) { p.RemainingFraction = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := m.Update(ctx, p.ID, tt.fn); !errors.Is(err, ErrInvariant) {
				t.Errorf("expected ErrInvariant, got %v", err)
			}
		})
	}

	got, _ := m.Get(p.ID)
	if got.RemainingFraction != 0.7 {
		t.Errorf("rejected updates must not apply, remaining=%v", got.RemainingFraction)
	}
}

func TestClose_RemovesFromRegistry(t *testing.T) {
	ctx := context.Background()
	m, store, _ := newManager(1, &fakeGateway{price: 1})
	p, _ := m.Open(ctx, candidate("MintA"), goodAssessment())

	closed, err := m.Close(ctx, p.ID, domain.ExitReasonManual)
	if err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if closed.Status != domain.PositionClosed || closed.ClosedAt == nil || closed.CloseReason != domain.ExitReasonManual {
		t.Errorf("unexpected closed state %+v", closed)
	}
	if _, ok := m.Get(p.ID); ok {
		t.Error("closed position should leave the registry")
	}
	if m.HasOpen(domain.NetworkSolana, "MintA") {
		t.Error("closed asset should not be held")
	}
	if _, err := m.Close(ctx, p.ID, domain.ExitReasonManual); !errors.Is(err, ErrNotActive) {
		t.Errorf("expected ErrNotActive on second close, got %v", err)
	}
	saved, _ := store.GetPosition(ctx, p.ID)
	if saved.Status != domain.PositionClosed {
		t.Errorf("expected persisted CLOSED, got %s", saved.Status)
	}

	// Capacity freed.
	if _, err := m.Open(ctx, candidate("MintB"), goodAssessment()); err != nil {
		t.Errorf("Open after close failed: %v", err)
	}
}

func TestRestore(t *testing.T) {
	m, _, _ := newManager(5, &fakeGateway{price: 1})
	closedAt := int64(5)

	n := m.Restore([]*domain.Position{
		{ID: "p1", Network: domain.NetworkSolana, Address: "MintA", Status: domain.PositionOpen, OpenedAt: 2},
		{ID: "p2", Network: domain.NetworkSolana, Address: "MintB", Status: domain.PositionPartiallyClosed, OpenedAt: 1},
		{ID: "p3", Network: domain.NetworkSolana, Address: "MintC", Status: domain.PositionClosed, ClosedAt: &closedAt},
		{ID: "p4", Network: domain.NetworkSolana, Address: "MintA", Status: domain.PositionOpen},
	})

	if n != 2 {
		t.Fatalf("expected 2 restored, got %d", n)
	}
	active := m.Active()
	if len(active) != 2 || active[0].ID != "p2" || active[1].ID != "p1" {
		t.Errorf("unexpected active order: %+v", active)
	}
	if !m.HasOpen(domain.NetworkSolana, "MintB") {
		t.Error("restored asset should be held")
	}
}
