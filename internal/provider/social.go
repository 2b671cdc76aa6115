package provider

import (
	"context"
	"fmt"
	"net/url"

	"solana-sniper/internal/domain"
)

// SocialScore queries GET /score/{network}/{address} for a [0,100] score.
type SocialScore struct {
	api *apiClient
}

// NewSocialScore creates a social score client.
func NewSocialScore(cfg HTTPConfig) *SocialScore {
	return &SocialScore{api: newAPIClient(cfg)}
}

// Social implements analysis.SocialProvider. Unknown assets score 0.
func (s *SocialScore) Social(ctx context.Context, network domain.Network, address string) (domain.SocialAnalysis, error) {
	var body struct {
		Score float64 `json:"score"`
	}
	found, err := s.api.get(ctx, fmt.Sprintf("/score/%s/%s", network, url.PathEscape(address)), &body)
	if err != nil {
		return domain.SocialAnalysis{}, err
	}
	if !found {
		return domain.SocialAnalysis{}, nil
	}
	return domain.SocialAnalysis{Score: max(0, min(100, body.Score))}, nil
}

// NoSocial scores every asset 0. Used when no social endpoint is configured.
type NoSocial struct{}

// Social implements analysis.SocialProvider.
func (NoSocial) Social(context.Context, domain.Network, string) (domain.SocialAnalysis, error) {
	return domain.SocialAnalysis{}, nil
}
