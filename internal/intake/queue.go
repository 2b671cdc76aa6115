// Package intake holds candidates awaiting screening in priority order.
package intake

import (
	"container/heap"
	"errors"
	"fmt"
	"sync"

	"solana-sniper/internal/domain"
)

// ErrInvalidCandidate is returned for a candidate without network or address.
var ErrInvalidCandidate = fmt.Errorf("%w: candidate requires network and address", domain.ErrValidation)

// OpenChecker reports whether an asset already has a live or reserved position.
type OpenChecker interface {
	HasOpen(network domain.Network, address string) bool
}

// Queue is a bounded, deduplicating priority queue of candidates.
// Highest QuickScore first; ties by earliest DiscoveredAt, then submission order.
// A full queue rejects new submissions instead of evicting pending ones.
type Queue struct {
	mu       sync.Mutex
	items    candidateHeap
	pending  map[string]struct{}
	capacity int
	seq      uint64
	open     OpenChecker
	ready    chan struct{}
}

// New creates a queue holding at most capacity candidates.
// open may be nil when no positions can exist.
func New(capacity int, open OpenChecker) *Queue {
	if capacity <= 0 {
		capacity = 1
	}
	return &Queue{
		pending:  make(map[string]struct{}),
		capacity: capacity,
		open:     open,
		ready:    make(chan struct{}, 1),
	}
}

// Submit admits a candidate.
// Returns domain.ErrAtCapacity when full, domain.ErrDuplicate when the asset is
// already pending or held, and ErrInvalidCandidate for malformed input.
func (q *Queue) Submit(c *domain.Candidate) error {
	if c == nil || c.Address == "" || !c.Network.IsValid() {
		return ErrInvalidCandidate
	}
	key := c.Key()

	q.mu.Lock()
	defer q.mu.Unlock()

	if _, exists := q.pending[key]; exists {
		return fmt.Errorf("%w: %s already pending", domain.ErrDuplicate, key)
	}
	if q.open != nil && q.open.HasOpen(c.Network, c.Address) {
		return fmt.Errorf("%w: %s already held", domain.ErrDuplicate, key)
	}
	if len(q.items) >= q.capacity {
		return fmt.Errorf("%w: %d candidates pending", domain.ErrAtCapacity, len(q.items))
	}

	q.seq++
	cp := *c
	heap.Push(&q.items, &entry{candidate: &cp, seq: q.seq})
	q.pending[key] = struct{}{}

	select {
	case q.ready <- struct{}{}:
	default:
	}
	return nil
}

// DequeueNext removes and returns the highest-priority candidate.
func (q *Queue) DequeueNext() (*domain.Candidate, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return nil, false
	}
	e := heap.Pop(&q.items).(*entry)
	delete(q.pending, e.candidate.Key())

	if len(q.items) > 0 {
		select {
		case q.ready <- struct{}{}:
		default:
		}
	}
	return e.candidate, true
}

// Len returns the number of pending candidates.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Full reports whether Submit would refuse a new candidate for capacity.
func (q *Queue) Full() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) >= q.capacity
}

// Ready is signalled whenever the queue becomes non-empty.
// A receive does not guarantee a candidate; DequeueNext may still return false.
func (q *Queue) Ready() <-chan struct{} {
	return q.ready
}

// IsRejection reports whether err is a normal admission refusal
// (full, duplicate or invalid) rather than an unexpected failure.
func IsRejection(err error) bool {
	return errors.Is(err, domain.ErrAtCapacity) ||
		errors.Is(err, domain.ErrDuplicate) ||
		errors.Is(err, domain.ErrValidation)
}

type entry struct {
	candidate *domain.Candidate
	seq       uint64
}

// candidateHeap implements heap.Interface.
type candidateHeap []*entry

func (h candidateHeap) Len() int { return len(h) }

func (h candidateHeap) Less(i, j int) bool {
	a, b := h[i], h[j]
	if a.candidate.QuickScore != b.candidate.QuickScore {
		return a.candidate.QuickScore > b.candidate.QuickScore
	}
	if a.candidate.DiscoveredAt != b.candidate.DiscoveredAt {
		return a.candidate.DiscoveredAt < b.candidate.DiscoveredAt
	}
	return a.seq < b.seq
}

func (h candidateHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
}

func (h *candidateHeap) Push(x any) {
	*h = append(*h, x.(*entry))
}

func (h *candidateHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}
