package intake

import (
	"errors"
	"testing"
	"time"

	"solana-sniper/internal/domain"
)

type openSet map[string]bool

func (o openSet) HasOpen(network domain.Network, address string) bool {
	return o[domain.CandidateKey(network, address)]
}

func candidate(addr string, score float64, discoveredAt int64) *domain.Candidate {
	return &domain.Candidate{
		Network:      domain.NetworkSolana,
		Address:      addr,
		QuickScore:   score,
		DiscoveredAt: discoveredAt,
	}
}

func TestQueue_CapacityRejectsThird(t *testing.T) {
	q := New(2, nil)

	if err := q.Submit(candidate("A", 0, 1)); err != nil {
		t.Fatalf("Submit A: %v", err)
	}
	if err := q.Submit(candidate("B", 0, 2)); err != nil {
		t.Fatalf("Submit B: %v", err)
	}

	err := q.Submit(candidate("C", 0, 3))
	if !errors.Is(err, domain.ErrAtCapacity) {
		t.Fatalf("expected ErrAtCapacity, got %v", err)
	}
	if q.Len() != 2 {
		t.Fatalf("expected 2 pending, got %d", q.Len())
	}

	got, ok := q.DequeueNext()
	if !ok || got.Address != "A" {
		t.Fatalf("expected A first, got %+v", got)
	}
	got, ok = q.DequeueNext()
	if !ok || got.Address != "B" {
		t.Fatalf("expected B second, got %+v", got)
	}
	if _, ok := q.DequeueNext(); ok {
		t.Error("queue should be empty")
	}
}

func TestQueue_Full(t *testing.T) {
	q := New(1, nil)
	if q.Full() {
		t.Fatal("empty queue reported full")
	}
	if err := q.Submit(candidate("A", 0, 1)); err != nil {
		t.Fatalf("Submit A: %v", err)
	}
	if !q.Full() {
		t.Fatal("expected full queue")
	}
	q.DequeueNext()
	if q.Full() {
		t.Error("dequeue should free capacity")
	}
}

func TestQueue_PriorityOrder(t *testing.T) {
	q := New(10, nil)

	for _, c := range []*domain.Candidate{
		candidate("low", 10, 1),
		candidate("high-late", 90, 5),
		candidate("high-early", 90, 2),
		candidate("mid", 50, 0),
	} {
		if err := q.Submit(c); err != nil {
			t.Fatalf("Submit %s: %v", c.Address, err)
		}
	}

	want := []string{"high-early", "high-late", "mid", "low"}
	for i, addr := range want {
		got, ok := q.DequeueNext()
		if !ok {
			t.Fatalf("dequeue %d: empty", i)
		}
		if got.Address != addr {
			t.Errorf("dequeue %d: got %s, want %s", i, got.Address, addr)
		}
	}
}

func TestQueue_TiesFallBackToSubmissionOrder(t *testing.T) {
	q := New(10, nil)
	for _, addr := range []string{"x", "y", "z"} {
		if err := q.Submit(candidate(addr, 40, 100)); err != nil {
			t.Fatalf("Submit %s: %v", addr, err)
		}
	}
	for _, addr := range []string{"x", "y", "z"} {
		got, _ := q.DequeueNext()
		if got.Address != addr {
			t.Errorf("got %s, want %s", got.Address, addr)
		}
	}
}

func TestQueue_Duplicates(t *testing.T) {
	q := New(10, openSet{domain.CandidateKey(domain.NetworkSolana, "held"): true})

	if err := q.Submit(candidate("A", 0, 1)); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if err := q.Submit(candidate("A", 99, 2)); !errors.Is(err, domain.ErrDuplicate) {
		t.Errorf("expected ErrDuplicate for pending asset, got %v", err)
	}
	if err := q.Submit(candidate("held", 0, 3)); !errors.Is(err, domain.ErrDuplicate) {
		t.Errorf("expected ErrDuplicate for held asset, got %v", err)
	}

	q.DequeueNext()
	if err := q.Submit(candidate("A", 0, 4)); err != nil {
		t.Errorf("asset should be admissible again after dequeue: %v", err)
	}
}

func TestQueue_InvalidCandidate(t *testing.T) {
	q := New(10, nil)

	tests := []*domain.Candidate{
		nil,
		{Network: domain.NetworkSolana},
		{Network: "dogechain", Address: "A"},
	}
	for i, c := range tests {
		err := q.Submit(c)
		if !errors.Is(err, ErrInvalidCandidate) || !errors.Is(err, domain.ErrValidation) {
			t.Errorf("case %d: expected ErrInvalidCandidate, got %v", i, err)
		}
		if !IsRejection(err) {
			t.Errorf("case %d: expected rejection classification", i)
		}
	}
}

func TestQueue_ReadySignal(t *testing.T) {
	q := New(10, nil)

	select {
	case <-q.Ready():
		t.Fatal("empty queue should not be ready")
	default:
	}

	if err := q.Submit(candidate("A", 0, 1)); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	select {
	case <-q.Ready():
	case <-time.After(time.Second):
		t.Fatal("expected ready signal")
	}
}

func TestQueue_SubmitCopiesCandidate(t *testing.T) {
	q := New(10, nil)
	c := candidate("A", 10, 1)
	if err := q.Submit(c); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	c.QuickScore = 0

	got, _ := q.DequeueNext()
	if got.QuickScore != 10 {
		t.Errorf("queued candidate aliased caller: score %v", got.QuickScore)
	}
}
