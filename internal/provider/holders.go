package provider

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"solana-sniper/internal/domain"
	"solana-sniper/internal/solana"
)

// Holder risk factors.
const (
	FactorTopHolderConcentration = "top_holder_concentration"
	FactorTop10Concentration     = "top10_concentration"
	FactorFewHolders             = "few_holders"
	FactorZeroSupply             = "zero_supply"
)

// HolderThresholds tunes concentration risk.
type HolderThresholds struct {
	TopHolderShare float64 // fraction of supply
	Top10Share     float64
	MinHolders     int
}

// DefaultHolderThresholds returns the default concentration limits.
func DefaultHolderThresholds() HolderThresholds {
	return HolderThresholds{TopHolderShare: 0.2, Top10Share: 0.5, MinHolders: 10}
}

// SolanaHolders reports holder-distribution risk from the largest token
// accounts of a mint.
type SolanaHolders struct {
	rpc solana.RPCClient
	t   HolderThresholds
}

// NewSolanaHolders creates a holder-risk provider.
func NewSolanaHolders(rpc solana.RPCClient, t HolderThresholds) *SolanaHolders {
	return &SolanaHolders{rpc: rpc, t: t}
}

// HolderRisk implements analysis.HolderRiskProvider.
func (h *SolanaHolders) HolderRisk(ctx context.Context, network domain.Network, mint string) ([]string, error) {
	if network != domain.NetworkSolana {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedNetwork, network)
	}

	supply, err := h.rpc.GetTokenSupply(ctx, mint)
	if err != nil {
		return nil, fmt.Errorf("token supply %s: %w", mint, err)
	}
	accounts, err := h.rpc.GetTokenLargestAccounts(ctx, mint)
	if err != nil {
		return nil, fmt.Errorf("largest accounts %s: %w", mint, err)
	}

	total, err := decimal.NewFromString(supply.Amount)
	if err != nil {
		return nil, fmt.Errorf("%w: supply amount %q: %v", domain.ErrValidation, supply.Amount, err)
	}
	if !total.IsPositive() {
		return []string{FactorZeroSupply}, nil
	}

	var factors []string
	top10 := decimal.Zero
	holders := 0
	for i, a := range accounts {
		amount, err := decimal.NewFromString(a.Amount)
		if err != nil {
			return nil, fmt.Errorf("%w: holder amount %q: %v", domain.ErrValidation, a.Amount, err)
		}
		if amount.IsPositive() {
			holders++
		}
		if i == 0 && amount.Div(total).InexactFloat64() > h.t.TopHolderShare {
			factors = append(factors, FactorTopHolderConcentration)
		}
		if i < 10 {
			top10 = top10.Add(amount)
		}
	}
	if top10.Div(total).InexactFloat64() > h.t.Top10Share {
		factors = append(factors, FactorTop10Concentration)
	}
	if holders < h.t.MinHolders {
		factors = append(factors, FactorFewHolders)
	}
	return factors, nil
}
