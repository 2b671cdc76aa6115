package provider

import (
	"context"
	"fmt"

	"solana-sniper/internal/domain"
)

// ScreenAdapter answers the quick-screen questions from the contract and
// liquidity providers, sharing their caches with the deep analysis.
type ScreenAdapter struct {
	contract  *SolanaContract
	liquidity *DexScreener
}

// NewScreenAdapter creates a screen.Provider.
func NewScreenAdapter(contract *SolanaContract, liquidity *DexScreener) *ScreenAdapter {
	return &ScreenAdapter{contract: contract, liquidity: liquidity}
}

func solanaOnly(network domain.Network) error {
	if network != domain.NetworkSolana {
		return fmt.Errorf("%w: %s", ErrUnsupportedNetwork, network)
	}
	return nil
}

// Honeypot reports a live freeze authority.
func (a *ScreenAdapter) Honeypot(ctx context.Context, network domain.Network, mint string) (bool, error) {
	if err := solanaOnly(network); err != nil {
		return true, err
	}
	m, err := a.contract.Mint(ctx, mint)
	if err != nil {
		return true, err
	}
	return m.FreezeAuthority != nil, nil
}

// HasLiquidity reports whether any pool holds liquidity.
func (a *ScreenAdapter) HasLiquidity(ctx context.Context, network domain.Network, address string) (bool, error) {
	l, err := a.liquidity.Liquidity(ctx, network, address)
	if err != nil {
		return false, err
	}
	return l.AmountUSD > 0, nil
}

// ContractAgeSeconds returns the mint's age.
func (a *ScreenAdapter) ContractAgeSeconds(ctx context.Context, network domain.Network, mint string) (int64, error) {
	if err := solanaOnly(network); err != nil {
		return 0, err
	}
	return a.contract.AgeSeconds(ctx, mint)
}

// OwnershipRenounced reports a revoked mint authority.
func (a *ScreenAdapter) OwnershipRenounced(ctx context.Context, network domain.Network, mint string) (bool, error) {
	if err := solanaOnly(network); err != nil {
		return false, err
	}
	m, err := a.contract.Mint(ctx, mint)
	if err != nil {
		return false, err
	}
	return m.MintAuthority == nil, nil
}
