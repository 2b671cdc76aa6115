package provider

import (
	"context"
	"fmt"
	"time"

	"solana-sniper/internal/address"
	"solana-sniper/internal/cache"
	"solana-sniper/internal/domain"
	"solana-sniper/internal/solana"
)

// Contract risk factors.
const (
	FactorFreezeAuthority  = "freeze_authority"
	FactorMintAuthority    = "mint_authority_active"
	FactorMintAuthorityPDA = "mint_authority_pda"
	FactorToken2022        = "token_2022"
	FactorNoMetadata       = "no_metadata"
)

const (
	signatureHistoryLimit   = 1000
	defaultContractCacheTTL = 30 * time.Second
)

// SolanaContract inspects SPL mints over RPC. A live freeze authority is
// treated as a honeypot: it can block holders from selling.
type SolanaContract struct {
	rpc   solana.RPCClient
	info  *TokenInfoClient
	mints *cache.TTL[*solana.Mint]
	ages  *cache.TTL[int64] // first-seen Unix seconds
	now   func() time.Time
}

// ContractOption configures a SolanaContract.
type ContractOption func(*SolanaContract)

// WithTokenInfo adds verified/audited flags from a token-info API.
func WithTokenInfo(info *TokenInfoClient) ContractOption {
	return func(c *SolanaContract) { c.info = info }
}

// WithContractClock overrides the time source.
func WithContractClock(now func() time.Time) ContractOption {
	return func(c *SolanaContract) { c.now = now }
}

// WithContractCacheTTL sets how long mint state is reused.
func WithContractCacheTTL(ttl time.Duration) ContractOption {
	return func(c *SolanaContract) {
		c.mints = cache.New[*solana.Mint](ttl)
	}
}

// NewSolanaContract creates a contract provider.
func NewSolanaContract(rpc solana.RPCClient, opts ...ContractOption) *SolanaContract {
	c := &SolanaContract{
		rpc:   rpc,
		mints: cache.New[*solana.Mint](defaultContractCacheTTL),
		ages:  cache.New[int64](24 * time.Hour),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Mint returns the decoded mint account, cached.
func (c *SolanaContract) Mint(ctx context.Context, mint string) (*solana.Mint, error) {
	return c.mints.GetOrLoad(ctx, mint, func(ctx context.Context) (*solana.Mint, error) {
		acct, err := c.rpc.GetAccountInfo(ctx, mint)
		if err != nil {
			return nil, fmt.Errorf("get mint %s: %w", mint, err)
		}
		if acct == nil {
			return nil, fmt.Errorf("%w: mint %s not found", domain.ErrValidation, mint)
		}
		if !solana.IsTokenProgram(acct.Owner) {
			return nil, fmt.Errorf("%w: %s is owned by %s, not a token program", domain.ErrValidation, mint, acct.Owner)
		}
		m, err := solana.ParseMint(acct.Data)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
		}
		m.Program = acct.Owner
		return m, nil
	})
}

// AgeSeconds returns the time since the oldest known transaction touching
// the mint. Mints with more history than one page are at least that old.
func (c *SolanaContract) AgeSeconds(ctx context.Context, mint string) (int64, error) {
	first, err := c.ages.GetOrLoad(ctx, mint, func(ctx context.Context) (int64, error) {
		sigs, err := c.rpc.GetSignaturesForAddress(ctx, mint, &solana.SignaturesOpts{Limit: signatureHistoryLimit})
		if err != nil {
			return 0, fmt.Errorf("signatures for %s: %w", mint, err)
		}
		oldest := int64(0)
		for _, s := range sigs {
			if s.BlockTime != nil && (oldest == 0 || *s.BlockTime < oldest) {
				oldest = *s.BlockTime
			}
		}
		if oldest == 0 {
			oldest = c.now().Unix()
		}
		return oldest, nil
	})
	if err != nil {
		return 0, err
	}
	return max(c.now().Unix()-first, 0), nil
}

// Contract implements analysis.ContractProvider.
func (c *SolanaContract) Contract(ctx context.Context, network domain.Network, mint string) (domain.ContractAnalysis, error) {
	if network != domain.NetworkSolana {
		return domain.ContractAnalysis{}, fmt.Errorf("%w: %s", ErrUnsupportedNetwork, network)
	}

	m, err := c.Mint(ctx, mint)
	if err != nil {
		return domain.ContractAnalysis{}, err
	}
	age, err := c.AgeSeconds(ctx, mint)
	if err != nil {
		return domain.ContractAnalysis{}, err
	}

	out := domain.ContractAnalysis{
		Honeypot:           m.FreezeAuthority != nil,
		OwnershipRenounced: m.MintAuthority == nil,
		AgeSeconds:         age,
	}
	if m.FreezeAuthority != nil {
		out.RiskFactors = append(out.RiskFactors, FactorFreezeAuthority)
	}
	if m.MintAuthority != nil {
		out.RiskFactors = append(out.RiskFactors, FactorMintAuthority)
		if address.IsProgramDerived(*m.MintAuthority) {
			out.RiskFactors = append(out.RiskFactors, FactorMintAuthorityPDA)
		}
	}
	if m.Program == solana.Token2022Program {
		out.RiskFactors = append(out.RiskFactors, FactorToken2022)
	}

	if c.info != nil {
		info, err := c.info.Lookup(ctx, network, mint)
		if err != nil {
			return domain.ContractAnalysis{}, err
		}
		if info != nil {
			out.Verified = info.Verified
			out.Audited = info.Audited
			out.AuditScore = info.AuditScore
			out.Honeypot = out.Honeypot || info.Honeypot
			out.RiskFactors = append(out.RiskFactors, info.RiskFlags...)
			return out, nil
		}
	}

	// Without a token-info record, Metaplex metadata counts as verification.
	meta, err := address.MetadataAddress(mint)
	if err != nil {
		return domain.ContractAnalysis{}, err
	}
	acct, err := c.rpc.GetAccountInfo(ctx, meta)
	if err != nil {
		return domain.ContractAnalysis{}, fmt.Errorf("get metadata %s: %w", meta, err)
	}
	out.Verified = acct != nil
	if acct == nil {
		out.RiskFactors = append(out.RiskFactors, FactorNoMetadata)
	}
	return out, nil
}
