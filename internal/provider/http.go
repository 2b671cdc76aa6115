// Package provider implements the analysis, screening and price
// collaborators over Solana RPC and HTTP data APIs.
package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	"solana-sniper/internal/domain"
)

// ErrUnsupportedNetwork is returned for networks a provider cannot serve.
var ErrUnsupportedNetwork = errors.New("unsupported network")

// HTTPConfig configures a rate-limited JSON API client.
type HTTPConfig struct {
	BaseURL           string
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
}

// apiClient wraps resty with a token-bucket limiter and error classification.
type apiClient struct {
	client  *resty.Client
	limiter *rate.Limiter
}

func newAPIClient(cfg HTTPConfig) *apiClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := max(cfg.Burst, 1)
	return &apiClient{
		client: resty.New().
			SetBaseURL(strings.TrimSuffix(cfg.BaseURL, "/")).
			SetTimeout(cfg.Timeout).
			SetHeader("Accept", "application/json").
			SetHeader("User-Agent", "solana-sniper"),
		limiter: rate.NewLimiter(limit, burst),
	}
}

// get fetches path into out. It returns found=false on 404.
// Rate limiting, transport errors and 5xx wrap domain.ErrTransient.
func (c *apiClient) get(ctx context.Context, path string, out any) (bool, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return false, domain.Transient(fmt.Errorf("rate limit wait: %w", err))
	}
	resp, err := c.client.R().SetContext(ctx).SetResult(out).Get(path)
	if err != nil {
		return false, domain.Transient(fmt.Errorf("GET %s: %w", path, err))
	}
	switch code := resp.StatusCode(); {
	case code == http.StatusNotFound:
		return false, nil
	case code == http.StatusTooManyRequests || code >= 500:
		return false, domain.Transient(fmt.Errorf("GET %s: status %d", path, code))
	case code >= 400:
		return false, fmt.Errorf("GET %s: status %d: %s", path, code, resp.String())
	}
	return true, nil
}
