package domain

import "github.com/shopspring/decimal"

// Side is the direction of an executed order.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Fill records one executed buy or sell against a position.
type Fill struct {
	ID          string  // deterministic hash
	PositionID  string  // owning position
	Side        Side    // BUY | SELL
	Reason      string  // ENTRY, rung label or exit reason code
	Fraction    float64 // fraction of the original size
	Price       float64 // execution price
	QuoteAmount decimal.Decimal
	TxRef       string // venue transaction reference
	ExecutedAt  int64  // Unix ms
}

// FillReasonEntry marks the opening buy.
const FillReasonEntry = "ENTRY"

// PriceTick is one price observation taken by the lifecycle monitor.
type PriceTick struct {
	PositionID string
	Network    Network
	Address    string
	Price      float64
	ObservedAt int64 // Unix ms
}
