package provider

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"solana-sniper/internal/cache"
	"solana-sniper/internal/domain"
)

// ErrNoPrice is returned when no pool quotes the asset.
var ErrNoPrice = errors.New("no price available")

// dexPair is the subset of a DexScreener pair the sniper reads.
type dexPair struct {
	ChainID     string `json:"chainId"`
	DexID       string `json:"dexId"`
	PairAddress string `json:"pairAddress"`
	PriceNative string `json:"priceNative"`
	PriceUSD    string `json:"priceUsd"`
	Liquidity   struct {
		USD float64 `json:"usd"`
	} `json:"liquidity"`
}

type dexResponse struct {
	Pairs []dexPair `json:"pairs"`
}

// DexScreener reads pool liquidity and prices from the DexScreener API.
// Liquidity and price lookups are cached separately; prices use a shorter TTL.
type DexScreener struct {
	api    *apiClient
	pairs  *cache.TTL[*dexPair]
	prices *cache.TTL[float64]
}

// NewDexScreener creates a DexScreener client.
func NewDexScreener(cfg HTTPConfig, pairTTL, priceTTL time.Duration) *DexScreener {
	return &DexScreener{
		api:    newAPIClient(cfg),
		pairs:  cache.New[*dexPair](pairTTL),
		prices: cache.New[float64](priceTTL),
	}
}

// chainID maps a network to its DexScreener chain id.
func chainID(n domain.Network) string {
	if n == domain.NetworkBSC {
		return "bsc"
	}
	return string(n)
}

// deepestPair returns the pool with the most USD liquidity on the network,
// or nil when none exists. Results are cached.
func (d *DexScreener) deepestPair(ctx context.Context, network domain.Network, address string) (*dexPair, error) {
	return d.pairs.GetOrLoad(ctx, domain.CandidateKey(network, address), func(ctx context.Context) (*dexPair, error) {
		return d.fetchPair(ctx, network, address)
	})
}

func (d *DexScreener) fetchPair(ctx context.Context, network domain.Network, address string) (*dexPair, error) {
	var resp dexResponse
	found, err := d.api.get(ctx, "/latest/dex/tokens/"+url.PathEscape(address), &resp)
	if err != nil || !found {
		return nil, err
	}
	var best *dexPair
	for i := range resp.Pairs {
		p := &resp.Pairs[i]
		if p.ChainID != chainID(network) {
			continue
		}
		if best == nil || p.Liquidity.USD > best.Liquidity.USD {
			best = p
		}
	}
	return best, nil
}

// Liquidity implements analysis.LiquidityProvider. An asset without pools
// reports zero liquidity rather than an error.
func (d *DexScreener) Liquidity(ctx context.Context, network domain.Network, address string) (domain.LiquidityAnalysis, error) {
	p, err := d.deepestPair(ctx, network, address)
	if err != nil {
		return domain.LiquidityAnalysis{}, err
	}
	if p == nil {
		return domain.LiquidityAnalysis{}, nil
	}
	return domain.LiquidityAnalysis{AmountUSD: p.Liquidity.USD}, nil
}

// Price returns the native-quote price of the deepest pool. Prices have their
// own short-lived cache; a fetch also refreshes the pair cache.
func (d *DexScreener) Price(ctx context.Context, network domain.Network, address string) (float64, error) {
	return d.prices.GetOrLoad(ctx, domain.CandidateKey(network, address), func(ctx context.Context) (float64, error) {
		p, err := d.fetchPair(ctx, network, address)
		if err != nil {
			return 0, err
		}
		if p == nil {
			return 0, fmt.Errorf("%w: %s", ErrNoPrice, address)
		}
		d.pairs.Set(domain.CandidateKey(network, address), p)
		price, err := strconv.ParseFloat(p.PriceNative, 64)
		if err != nil || price <= 0 {
			return 0, fmt.Errorf("%w: bad price %q for %s", ErrNoPrice, p.PriceNative, address)
		}
		return price, nil
	})
}
