// Package position owns the registry of open positions: admission control,
// sizing, exit-plan construction and the entry buy.
package position

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"solana-sniper/internal/bounded"
	"solana-sniper/internal/config"
	"solana-sniper/internal/domain"
	"solana-sniper/internal/execution"
	"solana-sniper/internal/idhash"
	"solana-sniper/internal/logging"
	"solana-sniper/internal/notify"
	"solana-sniper/internal/storage"
)

var (
	// ErrNotActive is returned when a position is unknown or already closed.
	ErrNotActive = errors.New("position not active")

	// ErrInvariant is returned when an update would violate a position invariant.
	ErrInvariant = errors.New("position invariant violated")
)

// remainingEpsilon absorbs float residue when fractions are subtracted.
const remainingEpsilon = 1e-9

// Config controls admission, sizing and the exit plan.
type Config struct {
	MaxOpenPositions int
	BaseSize         float64
	MinSize          float64
	MaxSize          float64
	Ladder           []config.LadderTemplateRung
	StopLossPercent  float64
	TrailingEnabled  bool
	TrailingPercent  float64
	MaxHoldSeconds   int64
	Buy              execution.BuyOptions
	ExecutionTimeout time.Duration
}

// ConfigFrom maps the configuration document onto Config.
func ConfigFrom(c config.Config) Config {
	p := c.Positions
	return Config{
		MaxOpenPositions: p.MaxOpenPositions,
		BaseSize:         p.BaseSize,
		MinSize:          p.MinSize,
		MaxSize:          p.MaxSize,
		Ladder:           p.ProfitLadderTemplate,
		StopLossPercent:  p.StopLossPercent,
		TrailingEnabled:  p.TrailingEnabled,
		TrailingPercent:  p.TrailingPercent,
		MaxHoldSeconds:   p.MaxHoldSeconds,
		Buy: execution.BuyOptions{
			Slippage:  c.Execution.Slippage,
			GasPolicy: c.Execution.GasPolicy,
			Deadline:  config.Millis(c.Execution.BuyDeadlineMs),
		},
		ExecutionTimeout: config.Millis(c.Execution.TimeoutMs),
	}
}

// Manager is the single owner of active position state. All registry
// mutations happen under one mutex; gateway and store calls happen outside it.
type Manager struct {
	cfg     Config
	gateway execution.Gateway
	store   storage.PositionStore
	sink    notify.Sink
	log     *logrus.Entry
	now     func() time.Time

	mu        sync.Mutex
	positions map[string]*domain.Position // active, by id
	byAsset   map[string]string           // asset key -> position id
	reserved  map[string]struct{}         // asset keys with a buy in flight
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// New creates a Manager.
func New(cfg Config, gateway execution.Gateway, store storage.PositionStore, sink notify.Sink, log *logrus.Entry, opts ...Option) *Manager {
	if log == nil {
		log = logging.Component(nil, "position")
	}
	if sink == nil {
		sink = notify.Multi{}
	}
	m := &Manager{
		cfg:       cfg,
		gateway:   gateway,
		store:     store,
		sink:      sink,
		log:       log,
		now:       time.Now,
		positions: make(map[string]*domain.Position),
		byAsset:   make(map[string]string),
		reserved:  make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Open reserves capacity, executes the entry buy and registers the position.
// The buy is attempted once.
func (m *Manager) Open(ctx context.Context, c *domain.Candidate, a *domain.Assessment) (*domain.Position, error) {
	key := c.Key()

	m.mu.Lock()
	if _, ok := m.byAsset[key]; ok {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: position already open for %s", domain.ErrDuplicate, key)
	}
	if _, ok := m.reserved[key]; ok {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: buy already in flight for %s", domain.ErrDuplicate, key)
	}
	if len(m.positions)+len(m.reserved) >= m.cfg.MaxOpenPositions {
		m.mu.Unlock()
		m.sink.Notify(notify.CapacityReached{Resource: "positions", Limit: m.cfg.MaxOpenPositions, Address: c.Address, At: m.now().UnixMilli()})
		return nil, fmt.Errorf("%w: %d positions open or pending", domain.ErrAtCapacity, m.cfg.MaxOpenPositions)
	}
	m.reserved[key] = struct{}{}
	m.mu.Unlock()

	size := m.cfg.Size(a)
	res, err := bounded.Call(ctx, m.cfg.ExecutionTimeout, func(ctx context.Context) (execution.Result, error) {
		return m.gateway.Buy(ctx, c.Network, c.Address, size, m.cfg.Buy)
	})
	if err == nil && res.Price <= 0 {
		err = fmt.Errorf("%w: fill without price", execution.ErrRejected)
	}
	if err != nil {
		m.release(key)
		m.sink.Notify(notify.ExecutionFailed{Address: c.Address, Action: "buy", Attempts: 1, Error: err.Error(), At: m.now().UnixMilli()})
		return nil, fmt.Errorf("open %s: buy: %w", c.Address, err)
	}

	p := m.build(c, a, size, res)
	fill := &domain.Fill{
		ID:          idhash.ComputeFillID(p.ID, domain.SideBuy, domain.FillReasonEntry, res.ExecutedAt),
		PositionID:  p.ID,
		Side:        domain.SideBuy,
		Reason:      domain.FillReasonEntry,
		Fraction:    1,
		Price:       res.Price,
		QuoteAmount: res.QuoteAmount,
		TxRef:       res.TxRef,
		ExecutedAt:  res.ExecutedAt,
	}

	m.mu.Lock()
	delete(m.reserved, key)
	m.positions[p.ID] = p
	m.byAsset[key] = p.ID
	out := p.Clone()
	m.mu.Unlock()

	// The venue holds the asset now, so persistence failures are logged
	// rather than unwinding the position.
	m.persist(ctx, out)
	if err := m.store.SaveFill(ctx, fill); err != nil {
		m.log.WithError(err).WithField("position_id", p.ID).Error("persist entry fill")
	}

	m.log.WithFields(logrus.Fields{
		"position_id": p.ID,
		"address":     p.Address,
		"size":        p.Size,
		"entry":       p.EntryPrice,
		"stop":        p.StopLossPrice,
	}).Info("position opened")
	m.sink.Notify(notify.PositionOpened{
		PositionID: p.ID,
		Network:    p.Network.String(),
		Address:    p.Address,
		EntryPrice: p.EntryPrice,
		Size:       p.Size,
		StopLoss:   p.StopLossPrice,
		TxRef:      res.TxRef,
		At:         p.OpenedAt,
	})
	return out, nil
}

func (m *Manager) build(c *domain.Candidate, a *domain.Assessment, size float64, res execution.Result) *domain.Position {
	openedAt := res.ExecutedAt
	if openedAt == 0 {
		openedAt = m.now().UnixMilli()
	}
	stop := StopLoss(res.Price, m.cfg.StopLossPercent)
	return &domain.Position{
		ID:                idhash.ComputePositionID(c.ID, openedAt),
		CandidateID:       c.ID,
		Network:           c.Network,
		Address:           c.Address,
		EntryPrice:        res.Price,
		Size:              size,
		RemainingFraction: 1,
		OpenedAt:          openedAt,
		ProfitLadder:      BuildLadder(m.cfg.Ladder, a.ProfitPotentialPercent),
		StopLossPrice:     stop,
		InitialStopPrice:  stop,
		TrailingEnabled:   m.cfg.TrailingEnabled,
		TrailingPercent:   m.cfg.TrailingPercent,
		MaxHoldSeconds:    m.cfg.MaxHoldSeconds,
		Status:            domain.PositionOpen,
		PeakPrice:         res.Price,
	}
}

func (m *Manager) release(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.reserved, key)
}

// Update applies fn to a copy of the active position and commits it if the
// result keeps every invariant. A position moved to CLOSED leaves the registry.
func (m *Manager) Update(ctx context.Context, id string, fn func(p *domain.Position)) (*domain.Position, error) {
	m.mu.Lock()
	cur, ok := m.positions[id]
	if !ok {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrNotActive, id)
	}
	next := cur.Clone()
	fn(next)
	if next.RemainingFraction < remainingEpsilon {
		next.RemainingFraction = 0
	}
	if err := checkTransition(cur, next); err != nil {
		m.mu.Unlock()
		return nil, err
	}
	if next.Status == domain.PositionClosed {
		m.removeLocked(next)
	} else {
		m.positions[id] = next
	}
	out := next.Clone()
	m.mu.Unlock()

	m.persist(ctx, out)
	return out, nil
}

// Close moves an active position to CLOSED with the given reason.
func (m *Manager) Close(ctx context.Context, id, reason string) (*domain.Position, error) {
	closedAt := m.now().UnixMilli()
	return m.Update(ctx, id, func(p *domain.Position) {
		p.RemainingFraction = 0
		p.Status = domain.PositionClosed
		p.ClosedAt = &closedAt
		p.CloseReason = reason
		p.ConsecutiveFailures = 0
	})
}

// RecordFill persists an executed fill.
func (m *Manager) RecordFill(ctx context.Context, f *domain.Fill) {
	if err := m.store.SaveFill(ctx, f); err != nil {
		m.log.WithError(err).WithField("position_id", f.PositionID).Error("persist fill")
	}
}

// Get returns a copy of an active position.
func (m *Manager) Get(id string) (*domain.Position, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.positions[id]
	if !ok {
		return nil, false
	}
	return p.Clone(), true
}

// Active returns copies of all active positions ordered by OpenedAt.
func (m *Manager) Active() []*domain.Position {
	m.mu.Lock()
	out := make([]*domain.Position, 0, len(m.positions))
	for _, p := range m.positions {
		out = append(out, p.Clone())
	}
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].OpenedAt != out[j].OpenedAt {
			return out[i].OpenedAt < out[j].OpenedAt
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// HasOpen reports whether the asset is held or has a buy in flight.
func (m *Manager) HasOpen(network domain.Network, address string) bool {
	key := domain.CandidateKey(network, address)
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byAsset[key]; ok {
		return true
	}
	_, ok := m.reserved[key]
	return ok
}

// OpenCount returns the number of active positions plus pending buys.
func (m *Manager) OpenCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.positions) + len(m.reserved)
}

// Restore registers positions loaded from the store. Inactive positions and
// second positions on an already held asset are skipped.
func (m *Manager) Restore(positions []*domain.Position) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	restored := 0
	for _, p := range positions {
		if p == nil || !p.Status.IsActive() {
			continue
		}
		key := domain.CandidateKey(p.Network, p.Address)
		if _, ok := m.byAsset[key]; ok {
			m.log.WithField("position_id", p.ID).Warn("skip restore: asset already held")
			continue
		}
		m.positions[p.ID] = p.Clone()
		m.byAsset[key] = p.ID
		restored++
	}
	if len(m.positions) > m.cfg.MaxOpenPositions {
		m.log.WithField("open", len(m.positions)).Warn("restored positions exceed max_open_positions")
	}
	return restored
}

func (m *Manager) removeLocked(p *domain.Position) {
	delete(m.positions, p.ID)
	key := domain.CandidateKey(p.Network, p.Address)
	if m.byAsset[key] == p.ID {
		delete(m.byAsset, key)
	}
}

func (m *Manager) persist(ctx context.Context, p *domain.Position) {
	if err := m.store.SaveTrade(ctx, p); err != nil {
		m.log.WithError(err).WithField("position_id", p.ID).Error("persist position")
	}
}

func checkTransition(cur, next *domain.Position) error {
	switch {
	case next.ID != cur.ID || next.Address != cur.Address || next.Network != cur.Network:
		return fmt.Errorf("%w: identity changed", ErrInvariant)
	case next.RemainingFraction > cur.RemainingFraction:
		return fmt.Errorf("%w: remaining fraction increased from %v to %v", ErrInvariant, cur.RemainingFraction, next.RemainingFraction)
	case next.StopLossPrice < cur.StopLossPrice:
		return fmt.Errorf("%w: stop moved down from %v to %v", ErrInvariant, cur.StopLossPrice, next.StopLossPrice)
	case next.StopLossPrice > cur.StopLossPrice && !cur.TrailingEnabled:
		return fmt.Errorf("%w: stop moved without trailing", ErrInvariant)
	case next.Status == domain.PositionOpen && cur.Status != domain.PositionOpen:
		return fmt.Errorf("%w: %s cannot return to OPEN", ErrInvariant, cur.Status)
	case next.RemainingFraction == 0 && next.Status != domain.PositionClosed:
		return fmt.Errorf("%w: empty position must be CLOSED", ErrInvariant)
	case len(next.ProfitLadder) != len(cur.ProfitLadder):
		return fmt.Errorf("%w: ladder length changed", ErrInvariant)
	}
	for i := range cur.ProfitLadder {
		if cur.ProfitLadder[i].Hit && !next.ProfitLadder[i].Hit {
			return fmt.Errorf("%w: rung %d un-hit", ErrInvariant, i)
		}
	}
	return nil
}
