// Package lifecycle drives open positions through their exit plan: ladder
// take-profits, stop-loss, trailing stop and time exit.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
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

// ErrBusy is returned by Evaluate when the position already has an
// evaluation in flight.
var ErrBusy = errors.New("evaluation in flight")

// Positions is the slice of position.Manager the monitor depends on.
type Positions interface {
	Get(id string) (*domain.Position, bool)
	Active() []*domain.Position
	Update(ctx context.Context, id string, fn func(p *domain.Position)) (*domain.Position, error)
	Close(ctx context.Context, id, reason string) (*domain.Position, error)
	RecordFill(ctx context.Context, f *domain.Fill)
}

// Config tunes the monitor.
type Config struct {
	Interval              time.Duration
	PriceTimeout          time.Duration
	FlushTimeout          time.Duration
	ExecutionTimeout      time.Duration
	FailureAlertThreshold int
	Sell                  execution.SellOptions
}

// ConfigFrom maps the configuration document onto Config.
func ConfigFrom(c config.Config) Config {
	return Config{
		Interval:              c.MonitorInterval(),
		PriceTimeout:          config.Millis(c.Monitor.PriceTimeoutMs),
		FlushTimeout:          config.Millis(c.Monitor.FlushTimeoutMs),
		ExecutionTimeout:      config.Millis(c.Execution.TimeoutMs),
		FailureAlertThreshold: c.Monitor.FailureAlertThreshold,
		Sell: execution.SellOptions{
			Slippage:  c.Execution.Slippage,
			GasPolicy: c.Execution.GasPolicy,
		},
	}
}

// Observer receives the latency of each evaluation.
type Observer func(d time.Duration, err error)

// Monitor evaluates tracked positions. Evaluations are serialized per
// position and run concurrently across positions.
type Monitor struct {
	cfg       Config
	positions Positions
	prices    execution.PriceSource
	gateway   execution.Gateway
	ticks     storage.PriceTickStore
	sink      notify.Sink
	log       *logrus.Entry
	now       func() time.Time
	observe   Observer

	mu            sync.Mutex
	guards        map[string]*sync.Mutex // one per tracked position
	priceFailures map[string]int
	pending       []*domain.PriceTick

	wg sync.WaitGroup
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) { m.now = now }
}

// WithTickStore records every observed price.
func WithTickStore(s storage.PriceTickStore) Option {
	return func(m *Monitor) { m.ticks = s }
}

// WithObserver registers an evaluation observer.
func WithObserver(o Observer) Option {
	return func(m *Monitor) { m.observe = o }
}

// New creates a Monitor.
func New(cfg Config, positions Positions, prices execution.PriceSource, gateway execution.Gateway, sink notify.Sink, log *logrus.Entry, opts ...Option) *Monitor {
	if log == nil {
		log = logging.Component(nil, "lifecycle")
	}
	if sink == nil {
		sink = notify.Multi{}
	}
	m := &Monitor{
		cfg:       cfg,
		positions: positions,
		prices:    prices,
		gateway:   gateway,
		sink:      sink,
		log:       log,
		now:       time.Now,

		guards:        make(map[string]*sync.Mutex),
		priceFailures: make(map[string]int),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Track adds a position to the evaluation set.
func (m *Monitor) Track(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.guards[id]; !ok {
		m.guards[id] = &sync.Mutex{}
	}
}

// Untrack removes a position from the evaluation set and forgets its state.
func (m *Monitor) Untrack(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.guards, id)
	delete(m.priceFailures, id)
}

// Tracked returns the number of tracked positions.
func (m *Monitor) Tracked() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.guards)
}

func (m *Monitor) guard(id string) (*sync.Mutex, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.guards[id]
	return g, ok
}

func (m *Monitor) isTracked(id string) bool {
	_, ok := m.guard(id)
	return ok
}

// Run ticks every Interval until ctx is cancelled. Evaluations already
// started finish under their own timeouts; use Wait to join them.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Tick(ctx)
		}
	}
}

// Tick flushes recorded prices and starts one evaluation per tracked
// position. Positions still busy from the previous tick are skipped.
func (m *Monitor) Tick(ctx context.Context) {
	m.Flush(ctx)

	m.mu.Lock()
	ids := make([]string, 0, len(m.guards))
	for id := range m.guards {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	work := context.WithoutCancel(ctx)
	for _, id := range ids {
		m.wg.Add(1)
		go func(id string) {
			defer m.wg.Done()
			if err := m.Evaluate(work, id); err != nil && !errors.Is(err, ErrBusy) {
				m.log.WithError(err).WithField("position_id", id).Debug("evaluation incomplete")
			}
		}(id)
	}
}

// Wait blocks until evaluations started by Tick have returned.
func (m *Monitor) Wait() {
	m.wg.Wait()
}

// Flush writes buffered price ticks to the tick store. A write that outlasts
// FlushTimeout is abandoned and its batch dropped.
func (m *Monitor) Flush(ctx context.Context) {
	if m.ticks == nil {
		return
	}
	m.mu.Lock()
	batch := m.pending
	m.pending = nil
	m.mu.Unlock()

	if len(batch) == 0 {
		return
	}
	_, err := bounded.Call(ctx, m.cfg.FlushTimeout, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, m.ticks.InsertBulk(ctx, batch)
	})
	if err != nil {
		m.log.WithError(err).WithField("ticks", len(batch)).Warn("persist price ticks")
	}
}

// Evaluate runs a single evaluation of one position. It returns ErrBusy
// without doing anything if another evaluation holds the position.
// Untracked positions are ignored.
func (m *Monitor) Evaluate(ctx context.Context, id string) error {
	g, ok := m.guard(id)
	if !ok {
		return nil
	}
	if !g.TryLock() {
		return ErrBusy
	}
	defer g.Unlock()

	start := time.Now()
	err := m.evaluate(ctx, id)
	if m.observe != nil {
		m.observe(time.Since(start), err)
	}
	return err
}

func (m *Monitor) evaluate(ctx context.Context, id string) error {
	if !m.isTracked(id) {
		return nil
	}
	p, ok := m.positions.Get(id)
	if !ok || !p.Status.IsActive() {
		m.Untrack(id)
		return nil
	}

	price, err := bounded.Call(ctx, m.cfg.PriceTimeout, func(ctx context.Context) (float64, error) {
		return m.prices.Price(ctx, p.Network, p.Address)
	})
	if err == nil && price <= 0 {
		err = fmt.Errorf("%w: non-positive price %v", domain.ErrTransient, price)
	}
	if err != nil {
		err = m.priceFailed(p, err)
		// Time exit needs no price; the gateway prices the sell itself.
		if p.HoldExceeded(m.now().UnixMilli()) {
			return m.liquidate(ctx, p, 0, domain.ExitReasonTimeExit)
		}
		return err
	}
	m.priceRecovered(id)
	m.record(p, price)

	gain := p.GainPercent(price)
	for i, rung := range p.ProfitLadder {
		if rung.Hit {
			continue
		}
		if gain < rung.GainPercentThreshold {
			break
		}
		closed, err := m.takeProfit(ctx, p, i, price)
		if err != nil {
			return err
		}
		if closed {
			return nil
		}
		if p, ok = m.positions.Get(id); !ok {
			return nil
		}
	}

	if price <= p.StopLossPrice {
		reason := domain.ExitReasonStopLoss
		if p.StopTrailed() {
			reason = domain.ExitReasonTrailingStop
		}
		return m.liquidate(ctx, p, price, reason)
	}

	if p, err = m.ratchet(ctx, p, price); err != nil {
		return err
	}

	if p.HoldExceeded(m.now().UnixMilli()) {
		return m.liquidate(ctx, p, price, domain.ExitReasonTimeExit)
	}
	return nil
}

// priceFailed counts consecutive price failures for p. An alert goes out each
// time the count reaches a multiple of the alert threshold.
func (m *Monitor) priceFailed(p *domain.Position, cause error) error {
	m.mu.Lock()
	attempts := 0
	if _, ok := m.guards[p.ID]; ok {
		m.priceFailures[p.ID]++
		attempts = m.priceFailures[p.ID]
	}
	m.mu.Unlock()

	if threshold := max(m.cfg.FailureAlertThreshold, 1); attempts > 0 && attempts%threshold == 0 {
		m.sink.Notify(notify.PriceUnavailable{
			PositionID: p.ID,
			Address:    p.Address,
			Attempts:   attempts,
			Error:      cause.Error(),
			At:         m.now().UnixMilli(),
		})
	}
	return fmt.Errorf("price %s: %w", p.Address, cause)
}

func (m *Monitor) priceRecovered(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.priceFailures, id)
}

func (m *Monitor) record(p *domain.Position, price float64) {
	if m.ticks == nil {
		return
	}
	tick := &domain.PriceTick{
		PositionID: p.ID,
		Network:    p.Network,
		Address:    p.Address,
		Price:      price,
		ObservedAt: m.now().UnixMilli(),
	}
	m.mu.Lock()
	m.pending = append(m.pending, tick)
	m.mu.Unlock()
}

// takeProfit sells one rung. The rung is marked hit only after the sell fills.
func (m *Monitor) takeProfit(ctx context.Context, p *domain.Position, idx int, price float64) (bool, error) {
	rung := p.ProfitLadder[idx]
	fraction := min(rung.ReleaseFraction, p.RemainingFraction)
	label := fmt.Sprintf("%s_%d", domain.ExitReasonTakeProfit, idx+1)

	res, err := m.sell(ctx, p, fraction, label)
	if err != nil {
		return false, m.failed(ctx, p, "sell "+label, err)
	}

	closedAt := res.ExecutedAt
	updated, err := m.positions.Update(ctx, p.ID, func(p *domain.Position) {
		p.ProfitLadder[idx].Hit = true
		p.RemainingFraction -= fraction
		p.ConsecutiveFailures = 0
		p.PeakPrice = max(p.PeakPrice, price)
		if p.RemainingFraction < 1e-9 {
			p.RemainingFraction = 0
			p.Status = domain.PositionClosed
			p.ClosedAt = &closedAt
			p.CloseReason = domain.ExitReasonTakeProfit
		} else {
			p.Status = domain.PositionPartiallyClosed
		}
	})
	if err != nil {
		return false, fmt.Errorf("commit %s for %s: %w", label, p.ID, err)
	}
	m.fill(ctx, p.ID, label, fraction, res)

	m.sink.Notify(notify.RungExecuted{
		PositionID:  p.ID,
		Address:     p.Address,
		Rung:        idx,
		GainPercent: p.GainPercent(price),
		Price:       res.Price,
		Released:    fraction,
		Remaining:   updated.RemainingFraction,
		TxRef:       res.TxRef,
		At:          res.ExecutedAt,
	})

	if updated.Status == domain.PositionClosed {
		m.closed(updated, res.Price)
		return true, nil
	}
	return false, nil
}

// liquidate sells everything that remains and closes the position.
func (m *Monitor) liquidate(ctx context.Context, p *domain.Position, price float64, reason string) error {
	if p.RemainingFraction <= 0 {
		return nil
	}
	res, err := m.sell(ctx, p, p.RemainingFraction, reason)
	if err != nil {
		return m.failed(ctx, p, "sell "+reason, err)
	}

	updated, err := m.positions.Close(ctx, p.ID, reason)
	if err != nil {
		return fmt.Errorf("close %s: %w", p.ID, err)
	}
	m.fill(ctx, p.ID, reason, p.RemainingFraction, res)
	m.closed(updated, res.Price)
	return nil
}

// ratchet raises the trailing stop and the observed peak.
func (m *Monitor) ratchet(ctx context.Context, p *domain.Position, price float64) (*domain.Position, error) {
	stop := p.StopLossPrice
	if p.TrailingEnabled {
		stop = max(stop, price*(1-p.TrailingPercent))
	}
	peak := max(p.PeakPrice, price)
	if stop == p.StopLossPrice && peak == p.PeakPrice {
		return p, nil
	}
	updated, err := m.positions.Update(ctx, p.ID, func(p *domain.Position) {
		p.StopLossPrice = stop
		p.PeakPrice = peak
	})
	if err != nil {
		return p, fmt.Errorf("ratchet %s: %w", p.ID, err)
	}
	return updated, nil
}

// sell releases fraction of p. Retries of the same exit reuse one client
// order id, so a venue that filled an abandoned attempt can refuse the repeat.
func (m *Monitor) sell(ctx context.Context, p *domain.Position, fraction float64, reason string) (execution.Result, error) {
	opts := m.cfg.Sell
	opts.ClientOrderID = idhash.ComputeOrderID(p.ID, domain.SideSell, reason)
	return bounded.Call(ctx, m.cfg.ExecutionTimeout, func(ctx context.Context) (execution.Result, error) {
		return m.gateway.Sell(ctx, p.Network, p.Address, fraction, opts)
	})
}

// failed counts a gateway failure and alerts. The exit condition stays unmet
// so the next tick retries it.
func (m *Monitor) failed(ctx context.Context, p *domain.Position, action string, cause error) error {
	attempts := p.ConsecutiveFailures + 1
	if updated, err := m.positions.Update(ctx, p.ID, func(p *domain.Position) {
		p.ConsecutiveFailures++
	}); err == nil {
		attempts = updated.ConsecutiveFailures
	}

	persistent := m.cfg.FailureAlertThreshold > 0 && attempts >= m.cfg.FailureAlertThreshold
	m.sink.Notify(notify.ExecutionFailed{
		PositionID: p.ID,
		Address:    p.Address,
		Action:     action,
		Attempts:   attempts,
		Persistent: persistent,
		Error:      cause.Error(),
		At:         m.now().UnixMilli(),
	})
	return fmt.Errorf("%s %s: %w", action, p.ID, cause)
}

func (m *Monitor) fill(ctx context.Context, positionID, reason string, fraction float64, res execution.Result) {
	m.positions.RecordFill(ctx, &domain.Fill{
		ID:          idhash.ComputeFillID(positionID, domain.SideSell, reason, res.ExecutedAt),
		PositionID:  positionID,
		Side:        domain.SideSell,
		Reason:      reason,
		Fraction:    fraction,
		Price:       res.Price,
		QuoteAmount: res.QuoteAmount,
		TxRef:       res.TxRef,
		ExecutedAt:  res.ExecutedAt,
	})
}

func (m *Monitor) closed(p *domain.Position, price float64) {
	m.Untrack(p.ID)
	m.log.WithFields(logrus.Fields{
		"position_id": p.ID,
		"address":     p.Address,
		"reason":      p.CloseReason,
		"price":       price,
	}).Info("position closed")
	var at int64
	if p.ClosedAt != nil {
		at = *p.ClosedAt
	}
	m.sink.Notify(notify.PositionClosed{
		PositionID:  p.ID,
		Address:     p.Address,
		Reason:      p.CloseReason,
		Price:       price,
		GainPercent: p.GainPercent(price),
		At:          at,
	})
}

// LiquidateAll sells every active position with the given reason. Each
// position waits for its in-flight evaluation before selling. Failures are
// joined into the returned error.
func (m *Monitor) LiquidateAll(ctx context.Context, reason string) error {
	active := m.positions.Active()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, p := range active {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if err := m.liquidateOne(ctx, id, reason); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}(p.ID)
	}
	wg.Wait()
	return errors.Join(errs...)
}

func (m *Monitor) liquidateOne(ctx context.Context, id, reason string) error {
	g, ok := m.guard(id)
	if !ok {
		// Nothing evaluates an untracked position.
		g = &sync.Mutex{}
	}
	for !g.TryLock() {
		select {
		case <-ctx.Done():
			return fmt.Errorf("liquidate %s: %w", id, ctx.Err())
		case <-time.After(10 * time.Millisecond):
		}
	}
	defer g.Unlock()

	p, ok := m.positions.Get(id)
	if !ok || !p.Status.IsActive() {
		return nil
	}
	price, err := bounded.Call(ctx, m.cfg.PriceTimeout, func(ctx context.Context) (float64, error) {
		return m.prices.Price(ctx, p.Network, p.Address)
	})
	if err != nil {
		price = 0
	}
	return m.liquidate(ctx, p, price, reason)
}
