// Package discovery produces new-asset candidates for the intake queue.
package discovery

import (
	"context"
	"iter"
	"sync"

	"solana-sniper/internal/domain"
)

// Source yields the candidates discovered since the previous Scan. Each call
// is finite and lazy: it stops when the source has nothing buffered or the
// consumer stops ranging. Per-item failures are yielded as errors and do not
// end the sequence.
type Source interface {
	Scan(ctx context.Context, network domain.Network) iter.Seq2[*domain.Candidate, error]
}

// Returner is implemented by sources that accept back a candidate the
// consumer could not admit. A returned candidate is yielded again by the
// next Scan for its network.
type Returner interface {
	Return(c *domain.Candidate)
}

// StaticSource serves a fixed list of candidates, each exactly once.
type StaticSource struct {
	mu      sync.Mutex
	pending []*domain.Candidate
}

// Compile-time interface checks.
var (
	_ Source = (*StaticSource)(nil)
	_ Source = (*LogSource)(nil)

	_ Returner = (*StaticSource)(nil)
	_ Returner = (*LogSource)(nil)
)

// NewStaticSource creates a source preloaded with candidates.
func NewStaticSource(candidates ...*domain.Candidate) *StaticSource {
	s := &StaticSource{}
	s.Add(candidates...)
	return s
}

// Add appends candidates for a later Scan.
func (s *StaticSource) Add(candidates ...*domain.Candidate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range candidates {
		cp := *c
		s.pending = append(s.pending, &cp)
	}
}

// Return puts c back at the front of the pending list.
func (s *StaticSource) Return(c *domain.Candidate) {
	if c == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = append([]*domain.Candidate{c}, s.pending...)
}

// Pending returns the number of candidates not yet scanned.
func (s *StaticSource) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Scan yields pending candidates for network in insertion order.
func (s *StaticSource) Scan(ctx context.Context, network domain.Network) iter.Seq2[*domain.Candidate, error] {
	return func(yield func(*domain.Candidate, error) bool) {
		for ctx.Err() == nil {
			c, ok := s.next(network)
			if !ok || !yield(c, nil) {
				return
			}
		}
	}
}

func (s *StaticSource) next(network domain.Network) (*domain.Candidate, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, c := range s.pending {
		if c.Network == network {
			s.pending = append(s.pending[:i], s.pending[i+1:]...)
			return c, true
		}
	}
	return nil, false
}
