package execution

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"solana-sniper/internal/domain"
)

type fixedPrices struct {
	mu     sync.Mutex
	prices map[string]float64
	err    error
}

func (f *fixedPrices) Price(_ context.Context, network domain.Network, address string) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	return f.prices[domain.CandidateKey(network, address)], nil
}

func (f *fixedPrices) set(address string, price float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prices[domain.CandidateKey(domain.NetworkSolana, address)] = price
}

func newPaper(startCash float64, feeBps int) (*PaperGateway, *fixedPrices) {
	prices := &fixedPrices{prices: map[string]float64{}}
	return NewPaperGateway(prices, PaperConfig{FeeBps: feeBps, StartCash: startCash}), prices
}

func TestPaperGateway_BuyThenSell(t *testing.T) {
	ctx := context.Background()
	g, prices := newPaper(10, 0)
	prices.set("MintA", 1)

	buy, err := g.Buy(ctx, domain.NetworkSolana, "MintA", 2, BuyOptions{})
	if err != nil {
		t.Fatalf("Buy failed: %v", err)
	}
	if buy.Price != 1 {
		t.Errorf("expected fill price 1, got %v", buy.Price)
	}
	if buy.TxRef == "" {
		t.Error("expected tx ref")
	}
	if !g.Cash().Equal(decimal.NewFromInt(8)) {
		t.Errorf("expected cash 8, got %s", g.Cash())
	}
	if !g.Holding(domain.NetworkSolana, "MintA").Equal(decimal.NewFromInt(2)) {
		t.Errorf("expected 2 tokens, got %s", g.Holding(domain.NetworkSolana, "MintA"))
	}

	prices.set("MintA", 3)
	sell, err := g.Sell(ctx, domain.NetworkSolana, "MintA", 0.5, SellOptions{})
	if err != nil {
		t.Fatalf("Sell failed: %v", err)
	}
	if !sell.QuoteAmount.Equal(decimal.NewFromInt(3)) {
		t.Errorf("expected proceeds 3, got %s", sell.QuoteAmount)
	}
	if !g.Cash().Equal(decimal.NewFromInt(11)) {
		t.Errorf("expected cash 11, got %s", g.Cash())
	}

	// Remaining half is sold by fraction of the original quantity.
	if _, err := g.Sell(ctx, domain.NetworkSolana, "MintA", 0.5, SellOptions{}); err != nil {
		t.Fatalf("second Sell failed: %v", err)
	}
	if !g.Holding(domain.NetworkSolana, "MintA").IsZero() {
		t.Errorf("expected empty holding, got %s", g.Holding(domain.NetworkSolana, "MintA"))
	}
	if _, err := g.Sell(ctx, domain.NetworkSolana, "MintA", 0.1, SellOptions{}); !errors.Is(err, ErrNoHolding) {
		t.Errorf("expected ErrNoHolding, got %v", err)
	}
}

func TestPaperGateway_SlippageAndFees(t *testing.T) {
	ctx := context.Background()
	g, prices := newPaper(100, 100) // 1% fee
	prices.set("MintA", 2)

	buy, err := g.Buy(ctx, domain.NetworkSolana, "MintA", 10, BuyOptions{Slippage: 0.05})
	if err != nil {
		t.Fatalf("Buy failed: %v", err)
	}
	if buy.Price != 2.1 {
		t.Errorf("expected fill price 2.1, got %v", buy.Price)
	}
	if !buy.QuoteAmount.Equal(decimal.RequireFromString("10.1")) {
		t.Errorf("expected spend 10.1, got %s", buy.QuoteAmount)
	}
	if !g.Cash().Equal(decimal.RequireFromString("89.9")) {
		t.Errorf("expected cash 89.9, got %s", g.Cash())
	}
}

func TestPaperGateway_InsufficientFunds(t *testing.T) {
	g, prices := newPaper(1, 0)
	prices.set("MintA", 1)

	_, err := g.Buy(context.Background(), domain.NetworkSolana, "MintA", 2, BuyOptions{})
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if domain.IsTransient(err) {
		t.Error("insufficient funds must not be transient")
	}
}

func TestPaperGateway_PriceFailureIsTransient(t *testing.T) {
	g, prices := newPaper(10, 0)
	prices.err = errors.New("feed down")

	_, err := g.Buy(context.Background(), domain.NetworkSolana, "MintA", 1, BuyOptions{})
	if !domain.IsTransient(err) {
		t.Fatalf("expected transient error, got %v", err)
	}
}

func TestPaperGateway_RejectsBadInput(t *testing.T) {
	ctx := context.Background()
	g, prices := newPaper(10, 0)
	prices.set("MintA", 1)

	if _, err := g.Buy(ctx, domain.NetworkSolana, "MintA", 0, BuyOptions{}); !errors.Is(err, ErrRejected) {
		t.Errorf("expected ErrRejected for zero size, got %v", err)
	}
	if _, err := g.Sell(ctx, domain.NetworkSolana, "MintA", 1.5, SellOptions{}); !errors.Is(err, ErrRejected) {
		t.Errorf("expected ErrRejected for fraction > 1, got %v", err)
	}
	if _, err := g.Buy(ctx, domain.NetworkSolana, "Unpriced", 1, BuyOptions{}); !errors.Is(err, ErrRejected) {
		t.Errorf("expected ErrRejected without a price, got %v", err)
	}
}

func TestPaperGateway_RestoreSeedsHoldings(t *testing.T) {
	ctx := context.Background()
	g, prices := newPaper(10, 0)
	prices.set("MintA", 3)

	restored := []*domain.Position{
		{Network: domain.NetworkSolana, Address: "MintA", EntryPrice: 2, Size: 4, RemainingFraction: 0.5},
		{Network: domain.NetworkSolana, Address: "Spent", EntryPrice: 2, Size: 4, RemainingFraction: 0},
		{Network: domain.NetworkSolana, Address: "NoEntry", Size: 4, RemainingFraction: 1},
	}
	if n := g.Restore(restored); n != 1 {
		t.Fatalf("expected 1 holding seeded, got %d", n)
	}
	if !g.Holding(domain.NetworkSolana, "MintA").Equal(decimal.NewFromInt(1)) {
		t.Fatalf("expected 1 token remaining, got %s", g.Holding(domain.NetworkSolana, "MintA"))
	}
	if n := g.Restore(restored); n != 0 {
		t.Errorf("restore must not overwrite existing holdings, seeded %d", n)
	}

	// Fractions stay relative to the original quantity.
	sell, err := g.Sell(ctx, domain.NetworkSolana, "MintA", 0.5, SellOptions{})
	if err != nil {
		t.Fatalf("Sell failed: %v", err)
	}
	if !sell.QuoteAmount.Equal(decimal.NewFromInt(3)) {
		t.Errorf("expected proceeds 3, got %s", sell.QuoteAmount)
	}
	if !g.Holding(domain.NetworkSolana, "MintA").IsZero() {
		t.Errorf("expected empty holding, got %s", g.Holding(domain.NetworkSolana, "MintA"))
	}
	if !g.Cash().Equal(decimal.NewFromInt(13)) {
		t.Errorf("expected cash 13, got %s", g.Cash())
	}
}
