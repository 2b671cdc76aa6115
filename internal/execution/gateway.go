// Package execution submits buy and sell orders to a trading venue.
package execution

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"solana-sniper/internal/domain"
)

var (
	// ErrRejected is returned when the venue refuses an order. Not transient.
	ErrRejected = errors.New("order rejected")

	// ErrNoHolding is returned when selling an asset that is not held.
	ErrNoHolding = errors.New("no holding for asset")

	// ErrInsufficientFunds is returned when a buy exceeds available cash.
	ErrInsufficientFunds = errors.New("insufficient funds")
)

// BuyOptions carries per-order execution parameters for a buy.
type BuyOptions struct {
	Slippage  float64
	GasPolicy string
	Deadline  time.Duration
}

// SellOptions carries per-order execution parameters for a sell.
type SellOptions struct {
	Slippage  float64
	GasPolicy string

	// ClientOrderID identifies the order to the venue. Repeating it marks a
	// retry of the same exit. Empty means a fresh id per call.
	ClientOrderID string
}

// Result describes a filled order.
type Result struct {
	TxRef       string
	Price       float64         // average fill price
	QuoteAmount decimal.Decimal // quote spent on a buy, received on a sell
	ExecutedAt  int64           // Unix ms
}

// Gateway executes orders. A nil error means the order filled.
// Transient failures wrap domain.ErrTransient.
type Gateway interface {
	// Buy spends size quote units on the asset.
	Buy(ctx context.Context, network domain.Network, address string, size float64, opts BuyOptions) (Result, error)

	// Sell releases fraction of the originally bought quantity.
	Sell(ctx context.Context, network domain.Network, address string, fraction float64, opts SellOptions) (Result, error)
}

// PriceSource returns the current quote price of an asset.
type PriceSource interface {
	Price(ctx context.Context, network domain.Network, address string) (float64, error)
}
