// Package sniper wires discovery, screening, analysis, the decision gate and
// the position lifecycle into one running engine.
package sniper

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"solana-sniper/internal/cache"
	"solana-sniper/internal/config"
	"solana-sniper/internal/decision"
	"solana-sniper/internal/discovery"
	"solana-sniper/internal/domain"
	"solana-sniper/internal/idhash"
	"solana-sniper/internal/intake"
	"solana-sniper/internal/lifecycle"
	"solana-sniper/internal/logging"
	"solana-sniper/internal/notify"
	"solana-sniper/internal/observability"
	"solana-sniper/internal/position"
	"solana-sniper/internal/scheduler"
	"solana-sniper/internal/screen"
	"solana-sniper/internal/storage"
)

// Engine errors.
var (
	ErrAlreadyStarted   = errors.New("engine already started")
	ErrNotStarted       = errors.New("engine not started")
	ErrShutdownDeadline = errors.New("shutdown deadline exceeded")
)

// Screener is the quick screen used by workers.
type Screener interface {
	Screen(ctx context.Context, c *domain.Candidate) screen.Result
}

// Analyzer produces a full Assessment. It never fails.
type Analyzer interface {
	Assess(ctx context.Context, c *domain.Candidate) *domain.Assessment
}

// HoldingRestorer is implemented by gateways that track holdings themselves
// and need them seeded from rehydrated positions.
type HoldingRestorer interface {
	Restore(positions []*domain.Position) int
}

// Config tunes the engine's loops and pools.
type Config struct {
	Networks              []domain.Network
	ScanInterval          time.Duration
	MonitorInterval       time.Duration
	Workers               int
	MaxConcurrentAnalyses int
	MaxPendingCandidates  int
	PassScore             float64
	QuickScoreTTL         time.Duration
	LiquidateOnShutdown   bool
	ShutdownTimeout       time.Duration
}

// ConfigFrom extracts the engine settings from the application config.
func ConfigFrom(c config.Config) Config {
	return Config{
		Networks:              c.Networks,
		ScanInterval:          c.ScanInterval(),
		MonitorInterval:       c.MonitorInterval(),
		Workers:               c.Workers.Size,
		MaxConcurrentAnalyses: c.Workers.MaxConcurrentAnalyses,
		MaxPendingCandidates:  c.Intake.MaxPendingCandidates,
		PassScore:             c.Screen.PassScore,
		QuickScoreTTL:         time.Duration(c.Intake.QuickScoreTTLSec) * time.Second,
		LiquidateOnShutdown:   c.Shutdown.LiquidateOnShutdown,
		ShutdownTimeout:       c.ShutdownTimeout(),
	}
}

// Options for creating an Engine.
type Options struct {
	Config Config

	// Required collaborators
	Sources   []discovery.Source
	Screener  Screener
	Analyzer  Analyzer
	Gate      *decision.Gate
	Positions *position.Manager
	Monitor   *lifecycle.Monitor
	Store     storage.PositionStore

	// Optional
	Sink     notify.Sink            // nil discards events
	Metrics  *observability.Metrics // nil disables metrics
	Holdings HoldingRestorer        // seeded with rehydrated positions
	Logger   *logrus.Entry
	Now      func() time.Time
}

// Engine is the process-wide owner of the pipeline's loops and pools.
type Engine struct {
	cfg       Config
	sources   []discovery.Source
	screener  Screener
	analyzer  Analyzer
	gate      *decision.Gate
	positions *position.Manager
	monitor   *lifecycle.Monitor
	store     storage.PositionStore
	holdings  HoldingRestorer
	sink      notify.Sink
	metrics   *observability.Metrics
	log       *logrus.Entry
	now       func() time.Time

	queue    *intake.Queue
	analyses *semaphore.Weighted
	quick    *cache.TTL[screen.Result]

	mu    sync.Mutex
	sched *scheduler.Scheduler
}

// New creates an Engine. Zero pool sizes default to one.
func New(opts Options) *Engine {
	cfg := opts.Config
	cfg.Workers = max(cfg.Workers, 1)
	cfg.MaxConcurrentAnalyses = max(cfg.MaxConcurrentAnalyses, 1)
	if cfg.QuickScoreTTL <= 0 {
		cfg.QuickScoreTTL = 10 * time.Minute
	}

	e := &Engine{
		cfg:       cfg,
		sources:   opts.Sources,
		screener:  opts.Screener,
		analyzer:  opts.Analyzer,
		gate:      opts.Gate,
		positions: opts.Positions,
		monitor:   opts.Monitor,
		store:     opts.Store,
		holdings:  opts.Holdings,
		sink:      opts.Sink,
		metrics:   opts.Metrics,
		log:       opts.Logger,
		now:       opts.Now,
		analyses:  semaphore.NewWeighted(int64(cfg.MaxConcurrentAnalyses)),
	}
	if e.sink == nil {
		e.sink = notify.Multi(nil)
	}
	if e.log == nil {
		e.log = logging.Component(nil, "engine")
	}
	if e.now == nil {
		e.now = time.Now
	}
	e.queue = intake.New(cfg.MaxPendingCandidates, e.positions)
	e.quick = cache.New[screen.Result](cfg.QuickScoreTTL, cache.WithClock(e.now))
	return e
}

// Queue exposes the intake queue.
func (e *Engine) Queue() *intake.Queue {
	return e.queue
}

// Start rehydrates open positions and launches the scan, dispatch and monitor
// loops. It returns once everything is scheduled.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sched != nil {
		return ErrAlreadyStarted
	}

	restored, err := e.rehydrate(ctx)
	if err != nil {
		return err
	}

	sched := scheduler.New(ctx, e.log)
	abort := func(err error) error {
		if stopErr := sched.Stop(context.WithoutCancel(ctx)); stopErr != nil {
			e.log.WithError(stopErr).Warn("stop partially started scheduler")
		}
		return err
	}
	for _, network := range e.cfg.Networks {
		if err := sched.Every("scan:"+string(network), e.cfg.ScanInterval, func(ctx context.Context) {
			e.Scan(ctx, network)
		}); err != nil {
			return abort(err)
		}
	}
	tasks := map[string]func(context.Context){
		"dispatch":          e.dispatch,
		"quick-score-sweep": func(ctx context.Context) { e.quick.Run(ctx, e.cfg.QuickScoreTTL) },
	}
	for name, fn := range tasks {
		if err := sched.Go(name, fn); err != nil {
			return abort(err)
		}
	}
	if err := sched.Every("monitor", e.cfg.MonitorInterval, e.tick); err != nil {
		return abort(err)
	}
	e.sched = sched

	e.log.WithFields(logrus.Fields{
		"networks": e.cfg.Networks,
		"restored": restored,
		"workers":  e.cfg.Workers,
	}).Info("engine started")
	return nil
}

// rehydrate loads persisted OPEN and PARTIALLY_CLOSED positions into the
// manager and the monitor.
func (e *Engine) rehydrate(ctx context.Context) (int, error) {
	open, err := e.store.LoadOpenPositions(ctx)
	if err != nil {
		return 0, fmt.Errorf("load open positions: %w", err)
	}
	n := e.positions.Restore(open)
	active := e.positions.Active()
	if e.holdings != nil {
		seeded := e.holdings.Restore(active)
		e.log.WithField("holdings", seeded).Debug("gateway holdings restored")
	}
	for _, p := range active {
		e.monitor.Track(p.ID)
	}
	return n, nil
}

// Scan drains every source for network into the intake queue. Once the
// queue is full the scan stops pulling and the refused candidate goes back to
// its source for a later cycle.
func (e *Engine) Scan(ctx context.Context, network domain.Network) {
	var (
		discovered, failed int
		deferred           *domain.Candidate
	)
	for _, src := range e.sources {
		if deferred != nil || e.queue.Full() {
			break
		}
		for c, err := range src.Scan(ctx, network) {
			if err != nil {
				failed++
				e.log.WithError(err).WithField("network", network).Warn("discovery item failed")
				continue
			}
			if !e.admit(c) {
				if r, ok := src.(discovery.Returner); ok {
					r.Return(c)
				}
				deferred = c
				break
			}
			discovered++
		}
	}
	if deferred != nil {
		e.sink.Notify(notify.CapacityReached{Resource: "intake", Limit: e.cfg.MaxPendingCandidates, Address: deferred.Address, At: e.now().UnixMilli()})
		e.log.WithField("network", network).Debug("intake full, deferring discovery")
	}
	if e.metrics != nil {
		e.metrics.RecordScan(string(network), discovered, failed)
		e.metrics.IntakePending.Set(float64(e.queue.Len()))
	}
}

// admit submits a candidate, skipping assets that screened poorly recently.
// It returns false only when the queue had no room for c.
func (e *Engine) admit(c *domain.Candidate) bool {
	if c.ID == "" {
		c.ID = idhash.ComputeCandidateID(c.Network, c.Address)
	}
	if c.DiscoveredAt == 0 {
		c.DiscoveredAt = e.now().UnixMilli()
	}
	if res, ok := e.quick.Get(c.Key()); ok {
		if !res.Admit {
			e.log.WithField("address", c.Address).Debug("skipping asset that failed screening recently")
			return true
		}
		c.QuickScore = res.QuickScore
	}

	err := e.queue.Submit(c)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrDuplicate):
		e.log.WithField("address", c.Address).Debug("duplicate candidate")
	case errors.Is(err, domain.ErrAtCapacity):
		return false
	default:
		e.reject(c, notify.StageIntake, err.Error(), "")
	}
	return true
}

// dispatch feeds queued candidates to a bounded worker pool until ctx ends,
// then waits for in-flight workers.
func (e *Engine) dispatch(ctx context.Context) {
	var g errgroup.Group
	g.SetLimit(e.cfg.Workers)
	defer g.Wait()

	for {
		c, ok := e.queue.DequeueNext()
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-e.queue.Ready():
				continue
			}
		}
		if ctx.Err() != nil {
			return
		}
		g.Go(func() error {
			e.Process(ctx, c)
			return nil
		})
	}
}

// Process runs one candidate through screen, analysis, the gate and entry.
// Collaborator calls finish under their own timeouts even after ctx is
// cancelled; no new position is opened once it is.
func (e *Engine) Process(ctx context.Context, c *domain.Candidate) {
	work := context.WithoutCancel(ctx)
	log := e.log.WithFields(logrus.Fields{"candidate_id": c.ID, "address": c.Address})

	start := time.Now()
	res := e.screener.Screen(work, c)
	if e.metrics != nil {
		e.metrics.ObserveScreen(time.Since(start))
	}
	e.quick.Set(c.Key(), res)
	if !res.Admit {
		e.reject(c, notify.StageScreen, screenReason(res, e.cfg.PassScore), "")
		return
	}
	c.QuickScore = res.QuickScore

	if err := e.analyses.Acquire(ctx, 1); err != nil {
		log.Debug("shutdown before analysis")
		return
	}
	a := e.analyzer.Assess(work, c)
	e.analyses.Release(1)

	if a.IsDegraded() {
		e.sink.Notify(notify.AnalysisDegraded{CandidateID: c.ID, Address: c.Address, Analyses: a.Degraded, At: e.now().UnixMilli()})
	}

	d := e.gate.Decide(a)
	if e.metrics != nil {
		e.metrics.RecordDecision(d.Trade)
	}
	if !d.Trade {
		e.reject(c, notify.StageDecision, d.Reason, decision.RenderMarkdown(c.Address, &d))
		return
	}
	if ctx.Err() != nil {
		log.Info("shutdown before entry, skipping trade")
		return
	}

	p, err := e.positions.Open(work, c, a)
	if err != nil {
		// Open reports capacity and buy failures through the sink itself.
		if errors.Is(err, domain.ErrAtCapacity) || errors.Is(err, domain.ErrDuplicate) {
			e.reject(c, notify.StageOpen, err.Error(), "")
		}
		log.WithError(err).Warn("open position")
		return
	}
	e.quick.Delete(c.Key())
	e.monitor.Track(p.ID)
}

func (e *Engine) reject(c *domain.Candidate, stage, reason, checklist string) {
	e.sink.Notify(notify.CandidateRejected{
		Network:   c.Network.String(),
		Address:   c.Address,
		Stage:     stage,
		Reason:    reason,
		Checklist: checklist,
		At:        e.now().UnixMilli(),
	})
}

// screenReason names the first rule that blocked admission.
func screenReason(res screen.Result, passScore float64) string {
	switch {
	case res.Honeypot:
		return screen.CheckHoneypot
	case !res.HasLiquidity:
		return screen.CheckLiquidity
	default:
		return fmt.Sprintf("quick_score %.0f < %.0f", res.QuickScore, passScore)
	}
}

func (e *Engine) tick(ctx context.Context) {
	e.monitor.Tick(ctx)
	if e.metrics != nil {
		e.metrics.RecordMonitorTick(e.positions.OpenCount())
		e.metrics.IntakePending.Set(float64(e.queue.Len()))
	}
}

// Shutdown stops scheduling new scans and ticks, waits for in-flight work,
// and optionally liquidates every active position. The whole sequence is
// bounded by the configured timeout; ErrShutdownDeadline is returned when
// it fires first.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	sched := e.sched
	e.mu.Unlock()
	if sched == nil {
		return ErrNotStarted
	}

	if e.cfg.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.ShutdownTimeout)
		defer cancel()
	}

	var errs []error
	if err := sched.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("stop loops: %w", err))
	}
	if err := waitFor(ctx, e.monitor.Wait); err != nil {
		errs = append(errs, fmt.Errorf("wait for ticks: %w", err))
	}
	e.monitor.Flush(ctx)

	if e.cfg.LiquidateOnShutdown {
		active := e.positions.OpenCount()
		e.log.WithField("positions", active).Info("liquidating on shutdown")
		if err := e.monitor.LiquidateAll(ctx, domain.ExitReasonShutdown); err != nil {
			errs = append(errs, fmt.Errorf("liquidate: %w", err))
		}
		e.monitor.Flush(ctx)
	}

	if ctx.Err() != nil {
		errs = append([]error{ErrShutdownDeadline}, errs...)
	}
	err := errors.Join(errs...)
	if err != nil {
		e.log.WithError(err).Error("shutdown incomplete")
	} else {
		e.log.Info("engine stopped")
	}
	return err
}

// waitFor runs wait in the background and returns early if ctx ends.
func waitFor(ctx context.Context, wait func()) error {
	done := make(chan struct{})
	go func() {
		wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
