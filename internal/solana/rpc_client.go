package solana

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"

	"solana-sniper/internal/domain"
)

// Client defaults. Discovery and analysis calls sit on the hot path, so
// the per-request timeout is short and retries stay few.
const (
	DefaultTimeout    = 10 * time.Second
	DefaultMaxRetries = 2
	DefaultRetryDelay = 250 * time.Millisecond
	DefaultMaxDelay   = 2 * time.Second
	DefaultCommitment = "confirmed"
)

// HTTPClient speaks JSON-RPC 2.0 to a single node. Transport failures, 429
// and 5xx responses are retried with exponential backoff and end up as
// domain.ErrTransient. Node errors (*RPCError) and other statuses fail at
// once.
type HTTPClient struct {
	endpoint   string
	httpc      *http.Client
	commitment string
	retry      retryPolicy
	seq        atomic.Uint64
	observe    func(method string, d time.Duration)
}

type retryPolicy struct {
	attempts int // retries after the first try
	initial  time.Duration
	ceiling  time.Duration
}

func (p retryPolicy) backOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.initial
	b.MaxInterval = p.ceiling
	b.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(p.attempts)), ctx)
}

// Option customizes an HTTPClient.
type Option func(*HTTPClient)

// WithTimeout bounds each HTTP round trip. Non-positive values are ignored.
func WithTimeout(d time.Duration) Option {
	return func(c *HTTPClient) {
		if d > 0 {
			c.httpc.Timeout = d
		}
	}
}

// WithRetry sets how many times a retryable failure is retried and the
// backoff interval bounds.
func WithRetry(retries int, initial, ceiling time.Duration) Option {
	return func(c *HTTPClient) {
		c.retry = retryPolicy{attempts: retries, initial: initial, ceiling: ceiling}
	}
}

// WithCommitment sets the commitment level sent with read requests.
func WithCommitment(commitment string) Option {
	return func(c *HTTPClient) {
		if commitment != "" {
			c.commitment = commitment
		}
	}
}

// WithHTTPClient replaces the underlying transport.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *HTTPClient) { c.httpc = hc }
}

// WithLatencyObserver is called once per method call, retries included.
func WithLatencyObserver(fn func(method string, d time.Duration)) Option {
	return func(c *HTTPClient) { c.observe = fn }
}

func NewHTTPClient(endpoint string, opts ...Option) *HTTPClient {
	c := &HTTPClient{
		endpoint:   endpoint,
		httpc:      &http.Client{Timeout: DefaultTimeout},
		commitment: DefaultCommitment,
		retry: retryPolicy{
			attempts: DefaultMaxRetries,
			initial:  DefaultRetryDelay,
			ceiling:  DefaultMaxDelay,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ RPCClient = (*HTTPClient)(nil)

// RPCError is an error object returned by the node. It is never retried.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// StatusError is a non-200 HTTP response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.Code, e.Body)
}

func (e *StatusError) retryable() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= 500
}

// envelope is both sides of the JSON-RPC exchange.
type envelope struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Method  string          `json:"method,omitempty"`
	Params  []any           `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// call invokes method and decodes the result into out.
func (c *HTTPClient) call(ctx context.Context, method string, out any, params ...any) error {
	payload, err := json.Marshal(envelope{JSONRPC: "2.0", ID: c.seq.Add(1), Method: method, Params: params})
	if err != nil {
		return fmt.Errorf("%s: encode: %w", method, err)
	}
	if c.observe != nil {
		defer func(start time.Time) { c.observe(method, time.Since(start)) }(time.Now())
	}

	var result json.RawMessage
	err = backoff.Retry(func() error {
		var err error
		result, err = c.post(ctx, payload)
		return err
	}, c.retry.backOff(ctx))

	var (
		rpcErr    *RPCError
		statusErr *StatusError
	)
	switch {
	case err == nil:
	case errors.As(err, &rpcErr):
		return rpcErr
	case errors.As(err, &statusErr) && !statusErr.retryable():
		return fmt.Errorf("%s: %w", method, err)
	default:
		return domain.Transient(fmt.Errorf("%s: %w", method, err))
	}

	if out == nil || len(result) == 0 {
		return nil
	}
	if err := json.Unmarshal(result, out); err != nil {
		return fmt.Errorf("%s: decode result: %w", method, err)
	}
	return nil
}

// post is one HTTP round trip. Errors that must not be retried are wrapped
// in backoff.Permanent.
func (c *HTTPClient) post(ctx context.Context, payload []byte) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		statusErr := &StatusError{Code: resp.StatusCode, Body: string(snippet)}
		if statusErr.retryable() {
			return nil, statusErr
		}
		return nil, backoff.Permanent(statusErr)
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if env.Error != nil {
		return nil, backoff.Permanent(env.Error)
	}
	return env.Result, nil
}

// opts builds the trailing config object of a read request.
func (c *HTTPClient) opts(extra map[string]any) map[string]any {
	cfg := map[string]any{"commitment": c.commitment}
	for k, v := range extra {
		cfg[k] = v
	}
	return cfg
}

func (c *HTTPClient) GetTransaction(ctx context.Context, signature string) (*Transaction, error) {
	var wire *struct {
		Slot        int64            `json:"slot"`
		BlockTime   *int64           `json:"blockTime"`
		Meta        *TransactionMeta `json:"meta"`
		Transaction *struct {
			Message *TransactionMessage `json:"message"`
		} `json:"transaction"`
	}
	cfg := c.opts(map[string]any{"encoding": "json", "maxSupportedTransactionVersion": 0})
	if err := c.call(ctx, "getTransaction", &wire, signature, cfg); err != nil {
		return nil, err
	}
	if wire == nil {
		return nil, nil
	}

	tx := &Transaction{Signature: signature, Slot: wire.Slot, Meta: wire.Meta}
	if wire.BlockTime != nil {
		tx.BlockTime = *wire.BlockTime
	}
	if wire.Transaction != nil {
		tx.Message = wire.Transaction.Message
	}
	return tx, nil
}

func (c *HTTPClient) GetSignaturesForAddress(ctx context.Context, address string, opts *SignaturesOpts) ([]SignatureInfo, error) {
	paging := map[string]any{}
	if opts != nil {
		for k, v := range map[string]string{"before": opts.Before, "until": opts.Until} {
			if v != "" {
				paging[k] = v
			}
		}
		if opts.Limit > 0 {
			paging["limit"] = opts.Limit
		}
	}

	var sigs []SignatureInfo
	if err := c.call(ctx, "getSignaturesForAddress", &sigs, address, c.opts(paging)); err != nil {
		return nil, err
	}
	return sigs, nil
}

func (c *HTTPClient) GetAccountInfo(ctx context.Context, pubkey string) (*AccountInfo, error) {
	var wire struct {
		Value *struct {
			Lamports   uint64   `json:"lamports"`
			Owner      string   `json:"owner"`
			Data       []string `json:"data"` // [payload, encoding]
			Executable bool     `json:"executable"`
			RentEpoch  uint64   `json:"rentEpoch"`
		} `json:"value"`
	}
	if err := c.call(ctx, "getAccountInfo", &wire, pubkey, c.opts(map[string]any{"encoding": "base64"})); err != nil {
		return nil, err
	}
	v := wire.Value
	if v == nil {
		return nil, nil
	}

	info := &AccountInfo{Lamports: v.Lamports, Owner: v.Owner, Executable: v.Executable, RentEpoch: v.RentEpoch}
	if len(v.Data) > 0 {
		info.Data = v.Data[0]
	}
	return info, nil
}

func (c *HTTPClient) GetTokenLargestAccounts(ctx context.Context, mint string) ([]TokenAccountBalance, error) {
	var wire struct {
		Value []TokenAccountBalance `json:"value"`
	}
	if err := c.call(ctx, "getTokenLargestAccounts", &wire, mint, c.opts(nil)); err != nil {
		return nil, err
	}
	return wire.Value, nil
}

func (c *HTTPClient) GetTokenSupply(ctx context.Context, mint string) (*TokenAmount, error) {
	var wire struct {
		Value *TokenAmount `json:"value"`
	}
	if err := c.call(ctx, "getTokenSupply", &wire, mint, c.opts(nil)); err != nil {
		return nil, err
	}
	if wire.Value == nil {
		return nil, fmt.Errorf("getTokenSupply %s: empty result", mint)
	}
	return wire.Value, nil
}
