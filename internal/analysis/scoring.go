package analysis

import (
	"math"

	"solana-sniper/internal/config"
	"solana-sniper/internal/domain"
)

// Profit potential bounds, in percent of the position (100 = break-even).
const (
	MinProfitPotential = 100
	MaxProfitPotential = 2000
)

// Risk score contributions.
const (
	riskHoneypot        = 50
	riskNotRenounced    = 20
	riskYoungContract   = 15
	riskNoLiquidity     = 30
	riskPoorLiquidity   = 20
	riskPerFactorPoints = 5
)

// Weights parameterizes the scoring formulas.
type Weights struct {
	Contract          float64
	Liquidity         float64
	Social            float64
	Safety            float64
	RiskFactorPenalty float64

	FairLiquidityUSD      float64
	GoodLiquidityUSD      float64
	ExcellentLiquidityUSD float64

	YoungContractSec    int64
	BaseProfitPotential float64
}

// WeightsFromConfig maps the scoring section onto Weights.
func WeightsFromConfig(s config.Scoring) Weights {
	return Weights{
		Contract:              s.ContractWeight,
		Liquidity:             s.LiquidityWeight,
		Social:                s.SocialWeight,
		Safety:                s.SafetyWeight,
		RiskFactorPenalty:     s.RiskFactorPenalty,
		FairLiquidityUSD:      s.FairLiquidityUSD,
		GoodLiquidityUSD:      s.GoodLiquidityUSD,
		ExcellentLiquidityUSD: s.ExcellentLiquidityUSD,
		YoungContractSec:      s.YoungContractSec,
		BaseProfitPotential:   s.BaseProfitPotential,
	}
}

// DefaultWeights returns the weights of the default configuration.
func DefaultWeights() Weights {
	return WeightsFromConfig(config.Default().Scoring)
}

// Tier classifies a liquidity amount.
func (w Weights) Tier(amountUSD float64) domain.LiquidityTier {
	switch {
	case amountUSD < w.FairLiquidityUSD:
		return domain.LiquidityPoor
	case amountUSD < w.GoodLiquidityUSD:
		return domain.LiquidityFair
	case amountUSD < w.ExcellentLiquidityUSD:
		return domain.LiquidityGood
	default:
		return domain.LiquidityExcellent
	}
}

func tierFactor(t domain.LiquidityTier) float64 {
	switch t {
	case domain.LiquidityFair:
		return 0.4
	case domain.LiquidityGood:
		return 0.7
	case domain.LiquidityExcellent:
		return 1.0
	default:
		return 0
	}
}

// RiskScore is the additive risk formula, clamped to [0,100].
func (w Weights) RiskScore(c domain.ContractAnalysis, l domain.LiquidityAnalysis, factors []string) float64 {
	var risk float64
	if c.Honeypot {
		risk += riskHoneypot
	}
	if !c.OwnershipRenounced {
		risk += riskNotRenounced
	}
	if c.AgeSeconds < w.YoungContractSec {
		risk += riskYoungContract
	}
	switch {
	case l.AmountUSD <= 0:
		risk += riskNoLiquidity
	case l.Tier == domain.LiquidityPoor:
		risk += riskPoorLiquidity
	}
	risk += riskPerFactorPoints * float64(len(factors))
	return clamp(risk, 0, 100)
}

// CompositeScore is the weighted quality score, clamped to [0,100].
//
// Contract integrity splits its weight 40/20/20/20 across honeypot-free,
// verified, audited and renounced. Liquidity gives a third of its weight for
// presence and scales the rest by tier.
func (w Weights) CompositeScore(c domain.ContractAnalysis, l domain.LiquidityAnalysis, s domain.SocialAnalysis, riskScore float64, factors []string) float64 {
	var contract float64
	if !c.Honeypot {
		contract += 0.4
	}
	if c.Verified {
		contract += 0.2
	}
	if c.Audited {
		contract += 0.2
	}
	if c.OwnershipRenounced {
		contract += 0.2
	}

	var liquidity float64
	if l.AmountUSD > 0 {
		liquidity = 1.0/3 + 2.0/3*tierFactor(l.Tier)
	}

	score := w.Contract*contract +
		w.Liquidity*liquidity +
		w.Social*clamp(s.Score, 0, 100)/100 +
		w.Safety*(1-clamp(riskScore, 0, 100)/100) -
		w.RiskFactorPenalty*float64(len(factors))
	return clamp(score, 0, 100)
}

// ProfitPotential scales the baseline by quality and risk tiers, clamped to
// [MinProfitPotential, MaxProfitPotential].
func (w Weights) ProfitPotential(composite, risk float64) float64 {
	pp := w.BaseProfitPotential
	switch {
	case composite >= 80:
		pp *= 3
	case composite >= 60:
		pp *= 1.5
	}
	switch {
	case risk < 20:
		pp *= 2
	case risk < 40:
		pp *= 1.25
	}
	switch {
	case risk > 60:
		pp *= 0.5
	case risk > 40:
		pp *= 0.75
	}
	return clamp(pp, MinProfitPotential, MaxProfitPotential)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
