package execution

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"solana-sniper/internal/domain"
)

// PaperConfig configures simulated fills.
type PaperConfig struct {
	Slippage  float64 // applied against the order side
	FeeBps    int
	StartCash float64
}

type holding struct {
	original  decimal.Decimal // tokens bought
	remaining decimal.Decimal
}

// PaperGateway fills orders at the observed price without touching a venue.
// Cash and holdings are tracked with exact decimal arithmetic.
type PaperGateway struct {
	mu       sync.Mutex
	prices   PriceSource
	cfg      PaperConfig
	cash     decimal.Decimal
	holdings map[string]*holding
	now      func() time.Time
}

var _ Gateway = (*PaperGateway)(nil)

// NewPaperGateway creates a paper gateway funded with cfg.StartCash.
func NewPaperGateway(prices PriceSource, cfg PaperConfig) *PaperGateway {
	return &PaperGateway{
		prices:   prices,
		cfg:      cfg,
		cash:     decimal.NewFromFloat(cfg.StartCash),
		holdings: make(map[string]*holding),
		now:      time.Now,
	}
}

// Buy implements Gateway.
func (g *PaperGateway) Buy(ctx context.Context, network domain.Network, address string, size float64, opts BuyOptions) (Result, error) {
	if size <= 0 {
		return Result{}, fmt.Errorf("%w: size must be positive", ErrRejected)
	}
	price, err := g.prices.Price(ctx, network, address)
	if err != nil {
		return Result{}, domain.Transient(fmt.Errorf("paper buy price: %w", err))
	}
	if price <= 0 {
		return Result{}, fmt.Errorf("%w: no price for %s", ErrRejected, address)
	}

	fillPrice := decimal.NewFromFloat(price).Mul(decimal.NewFromFloat(1 + g.slippage(opts.Slippage)))
	spend := decimal.NewFromFloat(size)
	fee := g.fee(spend)
	tokens := spend.Div(fillPrice)

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.cash.LessThan(spend.Add(fee)) {
		return Result{}, fmt.Errorf("%w: need %s, have %s", ErrInsufficientFunds, spend.Add(fee), g.cash)
	}
	g.cash = g.cash.Sub(spend).Sub(fee)

	key := domain.CandidateKey(network, address)
	h, ok := g.holdings[key]
	if !ok {
		h = &holding{}
		g.holdings[key] = h
	}
	h.original = h.original.Add(tokens)
	h.remaining = h.remaining.Add(tokens)

	return Result{
		TxRef:       "paper-" + uuid.NewString(),
		Price:       fillPrice.InexactFloat64(),
		QuoteAmount: spend.Add(fee),
		ExecutedAt:  g.now().UnixMilli(),
	}, nil
}

// Sell implements Gateway.
func (g *PaperGateway) Sell(ctx context.Context, network domain.Network, address string, fraction float64, opts SellOptions) (Result, error) {
	if fraction <= 0 || fraction > 1 {
		return Result{}, fmt.Errorf("%w: fraction %v out of (0,1]", ErrRejected, fraction)
	}
	price, err := g.prices.Price(ctx, network, address)
	if err != nil {
		return Result{}, domain.Transient(fmt.Errorf("paper sell price: %w", err))
	}
	if price <= 0 {
		return Result{}, fmt.Errorf("%w: no price for %s", ErrRejected, address)
	}
	fillPrice := decimal.NewFromFloat(price).Mul(decimal.NewFromFloat(1 - g.slippage(opts.Slippage)))

	g.mu.Lock()
	defer g.mu.Unlock()

	key := domain.CandidateKey(network, address)
	h, ok := g.holdings[key]
	if !ok || !h.remaining.IsPositive() {
		return Result{}, fmt.Errorf("%w: %s", ErrNoHolding, key)
	}

	qty := decimal.Min(h.original.Mul(decimal.NewFromFloat(fraction)), h.remaining)
	gross := qty.Mul(fillPrice)
	proceeds := gross.Sub(g.fee(gross))

	h.remaining = h.remaining.Sub(qty)
	if !h.remaining.IsPositive() {
		delete(g.holdings, key)
	}
	g.cash = g.cash.Add(proceeds)

	return Result{
		TxRef:       "paper-" + uuid.NewString(),
		Price:       fillPrice.InexactFloat64(),
		QuoteAmount: proceeds,
		ExecutedAt:  g.now().UnixMilli(),
	}, nil
}

// Restore seeds holdings for positions opened before a restart. The bought
// quantity is Size/EntryPrice and what remains follows RemainingFraction.
// Assets already held are left alone. It returns the number seeded.
func (g *PaperGateway) Restore(positions []*domain.Position) int {
	g.mu.Lock()
	defer g.mu.Unlock()

	n := 0
	for _, p := range positions {
		if p == nil || p.EntryPrice <= 0 || p.Size <= 0 || p.RemainingFraction <= 0 {
			continue
		}
		key := domain.CandidateKey(p.Network, p.Address)
		if _, ok := g.holdings[key]; ok {
			continue
		}
		original := decimal.NewFromFloat(p.Size).Div(decimal.NewFromFloat(p.EntryPrice))
		g.holdings[key] = &holding{
			original:  original,
			remaining: original.Mul(decimal.NewFromFloat(p.RemainingFraction)),
		}
		n++
	}
	return n
}

// Cash returns the current simulated cash balance.
func (g *PaperGateway) Cash() decimal.Decimal {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.cash
}

// Holding returns the remaining simulated token quantity for an asset.
func (g *PaperGateway) Holding(network domain.Network, address string) decimal.Decimal {
	g.mu.Lock()
	defer g.mu.Unlock()
	if h, ok := g.holdings[domain.CandidateKey(network, address)]; ok {
		return h.remaining
	}
	return decimal.Zero
}

func (g *PaperGateway) slippage(requested float64) float64 {
	if g.cfg.Slippage > 0 {
		return g.cfg.Slippage
	}
	return requested
}

func (g *PaperGateway) fee(amount decimal.Decimal) decimal.Decimal {
	return amount.Mul(decimal.NewFromInt(int64(g.cfg.FeeBps))).Div(decimal.NewFromInt(10_000))
}
