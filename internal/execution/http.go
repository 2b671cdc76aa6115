package execution

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"solana-sniper/internal/domain"
)

// HTTPConfig configures the venue client.
type HTTPConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// orderRequest is the venue order payload.
type orderRequest struct {
	ClientOrderID string  `json:"client_order_id"`
	Side          string  `json:"side"`
	Network       string  `json:"network"`
	Address       string  `json:"address"`
	Size          float64 `json:"size,omitempty"`
	Fraction      float64 `json:"fraction,omitempty"`
	Slippage      float64 `json:"slippage"`
	GasPolicy     string  `json:"gas_policy,omitempty"`
	DeadlineMs    int64   `json:"deadline_ms,omitempty"`
}

// orderResponse is the venue reply.
type orderResponse struct {
	Status      string          `json:"status"` // filled | rejected
	TxRef       string          `json:"tx_ref"`
	Price       float64         `json:"price"`
	QuoteAmount decimal.Decimal `json:"quote_amount"`
	Reason      string          `json:"reason"`
	ExecutedAt  int64           `json:"executed_at"`
}

// HTTPGateway submits orders to a venue over a JSON HTTP API. Orders are
// never retried by the client: a buy is not idempotent.
type HTTPGateway struct {
	client *resty.Client
	now    func() time.Time
}

var _ Gateway = (*HTTPGateway)(nil)

// NewHTTPGateway creates a venue client.
func NewHTTPGateway(cfg HTTPConfig) *HTTPGateway {
	client := resty.New().
		SetBaseURL(strings.TrimSuffix(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetRetryCount(0).
		SetHeader("Content-Type", "application/json").
		SetHeader("User-Agent", "solana-sniper")
	if cfg.APIKey != "" {
		client.SetHeader("X-API-Key", cfg.APIKey)
	}
	return &HTTPGateway{client: client, now: time.Now}
}

// Buy implements Gateway.
func (g *HTTPGateway) Buy(ctx context.Context, network domain.Network, address string, size float64, opts BuyOptions) (Result, error) {
	return g.submit(ctx, orderRequest{
		Side:       string(domain.SideBuy),
		Network:    network.String(),
		Address:    address,
		Size:       size,
		Slippage:   opts.Slippage,
		GasPolicy:  opts.GasPolicy,
		DeadlineMs: opts.Deadline.Milliseconds(),
	})
}

// Sell implements Gateway.
func (g *HTTPGateway) Sell(ctx context.Context, network domain.Network, address string, fraction float64, opts SellOptions) (Result, error) {
	return g.submit(ctx, orderRequest{
		ClientOrderID: opts.ClientOrderID,
		Side:          string(domain.SideSell),
		Network:       network.String(),
		Address:       address,
		Fraction:      fraction,
		Slippage:      opts.Slippage,
		GasPolicy:     opts.GasPolicy,
	})
}

func (g *HTTPGateway) submit(ctx context.Context, req orderRequest) (Result, error) {
	if req.ClientOrderID == "" {
		req.ClientOrderID = uuid.NewString()
	}

	var out orderResponse
	resp, err := g.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&out).
		Post("/orders")
	if err != nil {
		return Result{}, domain.Transient(fmt.Errorf("%s order %s: %w", strings.ToLower(req.Side), req.ClientOrderID, err))
	}

	switch code := resp.StatusCode(); {
	case code == http.StatusTooManyRequests || code >= 500:
		return Result{}, domain.Transient(fmt.Errorf("venue status %d: %s", code, resp.String()))
	case code >= 400:
		return Result{}, fmt.Errorf("%w: venue status %d: %s", ErrRejected, code, resp.String())
	}

	if out.Status != "filled" {
		return Result{}, fmt.Errorf("%w: %s", ErrRejected, out.Reason)
	}
	executedAt := out.ExecutedAt
	if executedAt == 0 {
		executedAt = g.now().UnixMilli()
	}
	return Result{
		TxRef:       out.TxRef,
		Price:       out.Price,
		QuoteAmount: out.QuoteAmount,
		ExecutedAt:  executedAt,
	}, nil
}
