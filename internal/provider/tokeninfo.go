package provider

import (
	"context"
	"fmt"
	"net/url"

	"solana-sniper/internal/domain"
)

// TokenInfo is the verification record served by a token-info API.
type TokenInfo struct {
	Verified   bool     `json:"verified"`
	Audited    bool     `json:"audited"`
	AuditScore float64  `json:"audit_score"`
	Honeypot   bool     `json:"honeypot"`
	RiskFlags  []string `json:"risk_flags"`
}

// TokenInfoClient queries GET /tokens/{network}/{address}.
type TokenInfoClient struct {
	api *apiClient
}

// NewTokenInfoClient creates a TokenInfoClient.
func NewTokenInfoClient(cfg HTTPConfig) *TokenInfoClient {
	return &TokenInfoClient{api: newAPIClient(cfg)}
}

// Lookup returns the record for an asset, or nil when the API has none.
func (c *TokenInfoClient) Lookup(ctx context.Context, network domain.Network, address string) (*TokenInfo, error) {
	var info TokenInfo
	found, err := c.api.get(ctx, fmt.Sprintf("/tokens/%s/%s", network, url.PathEscape(address)), &info)
	if err != nil || !found {
		return nil, err
	}
	return &info, nil
}
