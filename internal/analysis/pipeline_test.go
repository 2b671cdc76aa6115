package analysis

import (
	"context"
	"errors"
	"reflect"
	"sync/atomic"
	"testing"
	"time"

	"solana-sniper/internal/domain"
	"solana-sniper/internal/logging"
)

type contractFunc func(ctx context.Context) (domain.ContractAnalysis, error)

func (f contractFunc) Contract(ctx context.Context, _ domain.Network, _ string) (domain.ContractAnalysis, error) {
	return f(ctx)
}

type liquidityFunc func(ctx context.Context) (domain.LiquidityAnalysis, error)

func (f liquidityFunc) Liquidity(ctx context.Context, _ domain.Network, _ string) (domain.LiquidityAnalysis, error) {
	return f(ctx)
}

type socialFunc func(ctx context.Context) (domain.SocialAnalysis, error)

func (f socialFunc) Social(ctx context.Context, _ domain.Network, _ string) (domain.SocialAnalysis, error) {
	return f(ctx)
}

type holdersFunc func(ctx context.Context) ([]string, error)

func (f holdersFunc) HolderRisk(ctx context.Context, _ domain.Network, _ string) ([]string, error) {
	return f(ctx)
}

func healthyProviders() Providers {
	return Providers{
		Contract: contractFunc(func(context.Context) (domain.ContractAnalysis, error) {
			return domain.ContractAnalysis{Verified: true, OwnershipRenounced: true, AgeSeconds: 3600}, nil
		}),
		Liquidity: liquidityFunc(func(context.Context) (domain.LiquidityAnalysis, error) {
			return domain.LiquidityAnalysis{AmountUSD: 50_000}, nil
		}),
		Social: socialFunc(func(context.Context) (domain.SocialAnalysis, error) {
			return domain.SocialAnalysis{Score: 60}, nil
		}),
		Holders: holdersFunc(func(context.Context) ([]string, error) {
			return nil, nil
		}),
	}
}

func testConfig() Config {
	return Config{
		Timeout:    100 * time.Millisecond,
		MaxRetries: 2,
		RetryBase:  time.Millisecond,
		Weights:    DefaultWeights(),
	}
}

var (
	quiet = logging.Component(logging.Discard(), "analysis")
	cand  = &domain.Candidate{ID: "cand1", Network: domain.NetworkSolana, Address: "Mint111"}
)

func TestPipeline_HealthyAssessment(t *testing.T) {
	fixed := time.UnixMilli(1_700_000_000_000)
	p := New(healthyProviders(), testConfig(), quiet, WithClock(func() time.Time { return fixed }))

	a := p.Assess(context.Background(), cand)

	if a.IsDegraded() {
		t.Fatalf("unexpected degradation: %v", a.Degraded)
	}
	if a.CandidateID != "cand1" || a.Address != "Mint111" || a.Network != domain.NetworkSolana {
		t.Errorf("identity not carried: %+v", a)
	}
	if a.Liquidity.Tier != domain.LiquidityGood {
		t.Errorf("expected tier derived from amount, got %s", a.Liquidity.Tier)
	}
	if a.RiskScore != 0 || !approx(a.CompositeScore, 78) || !approx(a.ProfitPotentialPercent, 600) {
		t.Errorf("unexpected scores: risk=%v composite=%v pp=%v", a.RiskScore, a.CompositeScore, a.ProfitPotentialPercent)
	}
	if a.AssessedAt != fixed.UnixMilli() {
		t.Errorf("AssessedAt = %d", a.AssessedAt)
	}
}

func TestPipeline_ContractFailureUsesPessimisticDefaults(t *testing.T) {
	providers := healthyProviders()
	providers.Contract = contractFunc(func(context.Context) (domain.ContractAnalysis, error) {
		return domain.ContractAnalysis{}, errors.New("malformed account data")
	})
	p := New(providers, testConfig(), quiet)

	a := p.Assess(context.Background(), cand)

	if !reflect.DeepEqual(a.Degraded, []string{domain.AnalysisContract}) {
		t.Fatalf("expected contract degraded, got %v", a.Degraded)
	}
	if !a.Contract.Honeypot || a.Contract.Verified || a.Contract.Audited || a.Contract.AuditScore != 0 {
		t.Errorf("contract fallback not pessimistic: %+v", a.Contract)
	}
	if !reflect.DeepEqual(a.RiskFactors, []string{domain.RiskFactorAnalysisFailed}) {
		t.Errorf("expected analysis_failed factor, got %v", a.RiskFactors)
	}
	if a.Liquidity.AmountUSD != 50_000 {
		t.Error("other sub-analyses must survive a contract failure")
	}
}

func TestPipeline_AllFailuresStillComplete(t *testing.T) {
	boom := errors.New("down")
	p := New(Providers{
		Contract:  contractFunc(func(context.Context) (domain.ContractAnalysis, error) { return domain.ContractAnalysis{}, boom }),
		Liquidity: liquidityFunc(func(context.Context) (domain.LiquidityAnalysis, error) { return domain.LiquidityAnalysis{}, boom }),
		Social:    socialFunc(func(context.Context) (domain.SocialAnalysis, error) { return domain.SocialAnalysis{}, boom }),
		Holders:   holdersFunc(func(context.Context) ([]string, error) { return nil, boom }),
	}, testConfig(), quiet)

	a := p.Assess(context.Background(), cand)

	want := []string{domain.AnalysisContract, domain.AnalysisLiquidity, domain.AnalysisSocial, domain.AnalysisHolders}
	if !reflect.DeepEqual(a.Degraded, want) {
		t.Errorf("Degraded = %v, want %v", a.Degraded, want)
	}
	if a.RiskScore != 100 || a.CompositeScore != 0 || a.ProfitPotentialPercent != MinProfitPotential {
		t.Errorf("expected worst-case scores, got risk=%v composite=%v pp=%v", a.RiskScore, a.CompositeScore, a.ProfitPotentialPercent)
	}
	if a.Liquidity.Tier != domain.LiquidityPoor {
		t.Errorf("expected poor tier, got %s", a.Liquidity.Tier)
	}
}

func TestPipeline_NilProviderFallsBack(t *testing.T) {
	providers := healthyProviders()
	providers.Social = nil
	p := New(providers, testConfig(), quiet)

	a := p.Assess(context.Background(), cand)
	if !reflect.DeepEqual(a.Degraded, []string{domain.AnalysisSocial}) {
		t.Errorf("expected social degraded, got %v", a.Degraded)
	}
}

func TestPipeline_RetriesTransientErrors(t *testing.T) {
	var calls atomic.Int32
	providers := healthyProviders()
	providers.Liquidity = liquidityFunc(func(context.Context) (domain.LiquidityAnalysis, error) {
		if calls.Add(1) < 3 {
			return domain.LiquidityAnalysis{}, domain.Transient(errors.New("429"))
		}
		return domain.LiquidityAnalysis{AmountUSD: 200_000}, nil
	})
	p := New(providers, testConfig(), quiet)

	a := p.Assess(context.Background(), cand)

	if calls.Load() != 3 {
		t.Errorf("expected 3 attempts, got %d", calls.Load())
	}
	if a.IsDegraded() || a.Liquidity.Tier != domain.LiquidityExcellent {
		t.Errorf("expected recovered liquidity, got %+v degraded=%v", a.Liquidity, a.Degraded)
	}
}

func TestPipeline_DoesNotRetryPermanentErrors(t *testing.T) {
	var calls atomic.Int32
	providers := healthyProviders()
	providers.Holders = holdersFunc(func(context.Context) ([]string, error) {
		calls.Add(1)
		return nil, errors.New("unsupported network")
	})
	p := New(providers, testConfig(), quiet)

	a := p.Assess(context.Background(), cand)

	if calls.Load() != 1 {
		t.Errorf("expected 1 attempt, got %d", calls.Load())
	}
	if !reflect.DeepEqual(a.RiskFactors, []string{domain.RiskFactorHolderAnalysisFailed}) {
		t.Errorf("expected holder_analysis_failed, got %v", a.RiskFactors)
	}
}

func TestPipeline_TimeoutFallsBack(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	providers := healthyProviders()
	providers.Social = socialFunc(func(context.Context) (domain.SocialAnalysis, error) {
		<-release
		return domain.SocialAnalysis{Score: 100}, nil
	})

	var observed atomic.Int32
	p := New(providers, testConfig(), quiet, WithObserver(func(name string, _ time.Duration, err error) {
		if name == domain.AnalysisSocial && err != nil {
			observed.Add(1)
		}
	}))

	start := time.Now()
	a := p.Assess(context.Background(), cand)
	if time.Since(start) > time.Second {
		t.Fatal("stalled provider blocked the pipeline")
	}
	if a.Social.Score != 0 || !reflect.DeepEqual(a.Degraded, []string{domain.AnalysisSocial}) {
		t.Errorf("expected social fallback, got %+v degraded=%v", a.Social, a.Degraded)
	}
	if observed.Load() != 1 {
		t.Errorf("observer should see the social failure once, got %d", observed.Load())
	}
}
