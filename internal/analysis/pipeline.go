// Package analysis runs the deep sub-analyses for a screened candidate and
// aggregates them into a domain.Assessment.
package analysis

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"solana-sniper/internal/bounded"
	"solana-sniper/internal/domain"
	"solana-sniper/internal/logging"
)

// ContractProvider inspects contract integrity.
type ContractProvider interface {
	Contract(ctx context.Context, network domain.Network, address string) (domain.ContractAnalysis, error)
}

// LiquidityProvider reports pool liquidity. The pipeline derives the tier
// from AmountUSD.
type LiquidityProvider interface {
	Liquidity(ctx context.Context, network domain.Network, address string) (domain.LiquidityAnalysis, error)
}

// SocialProvider reports a social signal score in [0,100].
type SocialProvider interface {
	Social(ctx context.Context, network domain.Network, address string) (domain.SocialAnalysis, error)
}

// HolderRiskProvider reports holder-distribution risk factors.
type HolderRiskProvider interface {
	HolderRisk(ctx context.Context, network domain.Network, address string) ([]string, error)
}

// Providers groups the four collaborators. A nil provider always falls back.
type Providers struct {
	Contract  ContractProvider
	Liquidity LiquidityProvider
	Social    SocialProvider
	Holders   HolderRiskProvider
}

// Config tunes timeouts, retries and scoring.
type Config struct {
	Timeout    time.Duration // per sub-analysis, retries included
	MaxRetries int
	RetryBase  time.Duration
	Weights    Weights
}

// Observer receives the latency and outcome of every sub-analysis.
type Observer func(analysis string, d time.Duration, err error)

var errNoProvider = errors.New("no provider configured")

// Pipeline fans out the sub-analyses and aggregates them.
type Pipeline struct {
	providers Providers
	cfg       Config
	log       *logrus.Entry
	observe   Observer
	now       func() time.Time
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithObserver registers a per-sub-analysis observer.
func WithObserver(o Observer) Option {
	return func(p *Pipeline) { p.observe = o }
}

// WithClock overrides the assessment timestamp source.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// New creates a Pipeline.
func New(providers Providers, cfg Config, log *logrus.Entry, opts ...Option) *Pipeline {
	if log == nil {
		log = logging.Component(nil, "analysis")
	}
	p := &Pipeline{providers: providers, cfg: cfg, log: log, now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Assess runs all sub-analyses in parallel and always returns a complete
// Assessment. A failed sub-analysis is replaced by its pessimistic default and
// named in Assessment.Degraded.
func (p *Pipeline) Assess(ctx context.Context, c *domain.Candidate) *domain.Assessment {
	var (
		wg       sync.WaitGroup
		contract domain.ContractAnalysis
		liq      domain.LiquidityAnalysis
		social   domain.SocialAnalysis
		holders  []string
		failed   [4]bool
	)

	wg.Add(4)
	go func() {
		defer wg.Done()
		v, err := run(ctx, p, domain.AnalysisContract, p.providers.Contract != nil, func(ctx context.Context) (domain.ContractAnalysis, error) {
			return p.providers.Contract.Contract(ctx, c.Network, c.Address)
		})
		contract, failed[0] = v, err != nil
	}()
	go func() {
		defer wg.Done()
		v, err := run(ctx, p, domain.AnalysisLiquidity, p.providers.Liquidity != nil, func(ctx context.Context) (domain.LiquidityAnalysis, error) {
			return p.providers.Liquidity.Liquidity(ctx, c.Network, c.Address)
		})
		liq, failed[1] = v, err != nil
	}()
	go func() {
		defer wg.Done()
		v, err := run(ctx, p, domain.AnalysisSocial, p.providers.Social != nil, func(ctx context.Context) (domain.SocialAnalysis, error) {
			return p.providers.Social.Social(ctx, c.Network, c.Address)
		})
		social, failed[2] = v, err != nil
	}()
	go func() {
		defer wg.Done()
		v, err := run(ctx, p, domain.AnalysisHolders, p.providers.Holders != nil, func(ctx context.Context) ([]string, error) {
			return p.providers.Holders.HolderRisk(ctx, c.Network, c.Address)
		})
		holders, failed[3] = v, err != nil
	}()
	wg.Wait()

	var degraded []string
	if failed[0] {
		contract = FallbackContract()
		degraded = append(degraded, domain.AnalysisContract)
	}
	if failed[1] {
		liq = FallbackLiquidity()
		degraded = append(degraded, domain.AnalysisLiquidity)
	}
	if failed[2] {
		social = FallbackSocial()
		degraded = append(degraded, domain.AnalysisSocial)
	}
	if failed[3] {
		holders = FallbackHolderRisk()
		degraded = append(degraded, domain.AnalysisHolders)
	}

	return p.aggregate(c, contract, liq, social, holders, degraded)
}

func (p *Pipeline) aggregate(c *domain.Candidate, contract domain.ContractAnalysis, liq domain.LiquidityAnalysis, social domain.SocialAnalysis, holders, degraded []string) *domain.Assessment {
	w := p.cfg.Weights
	liq.Tier = w.Tier(liq.AmountUSD)
	factors := mergeFactors(contract.RiskFactors, holders)

	risk := w.RiskScore(contract, liq, factors)
	composite := w.CompositeScore(contract, liq, social, risk, factors)

	return &domain.Assessment{
		CandidateID:            c.ID,
		Network:                c.Network,
		Address:                c.Address,
		Contract:               contract,
		Liquidity:              liq,
		Social:                 social,
		RiskFactors:            factors,
		RiskScore:              risk,
		ProfitPotentialPercent: w.ProfitPotential(composite, risk),
		CompositeScore:         composite,
		Degraded:               degraded,
		AssessedAt:             p.now().UnixMilli(),
	}
}

// run executes one sub-analysis under the pipeline timeout, retrying
// transient errors with exponential backoff.
func run[T any](ctx context.Context, p *Pipeline, name string, available bool, fn func(context.Context) (T, error)) (T, error) {
	start := time.Now()

	var (
		v   T
		err error
	)
	if !available {
		err = errNoProvider
	} else {
		v, err = bounded.Call(ctx, p.cfg.Timeout, func(ctx context.Context) (T, error) {
			var out T
			op := func() error {
				r, err := fn(ctx)
				if err != nil {
					if domain.IsTransient(err) {
						return err
					}
					return backoff.Permanent(err)
				}
				out = r
				return nil
			}
			err := backoff.Retry(op, p.retryPolicy(ctx))
			return out, err
		})
	}

	if p.observe != nil {
		p.observe(name, time.Since(start), err)
	}
	if err != nil {
		p.log.WithFields(logrus.Fields{
			"analysis": name,
		}).WithError(err).Warn("sub-analysis fell back to defaults")
	}
	return v, err
}

func (p *Pipeline) retryPolicy(ctx context.Context) backoff.BackOffContext {
	b := backoff.NewExponentialBackOff()
	if p.cfg.RetryBase > 0 {
		b.InitialInterval = p.cfg.RetryBase
	}
	b.MaxElapsedTime = 0
	retries := p.cfg.MaxRetries
	if retries < 0 {
		retries = 0
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(retries)), ctx)
}

// FallbackContract assumes the worst about an unanalyzable contract.
func FallbackContract() domain.ContractAnalysis {
	return domain.ContractAnalysis{
		Honeypot:    true,
		RiskFactors: []string{domain.RiskFactorAnalysisFailed},
	}
}

// FallbackLiquidity assumes no liquidity.
func FallbackLiquidity() domain.LiquidityAnalysis {
	return domain.LiquidityAnalysis{Tier: domain.LiquidityPoor}
}

// FallbackSocial assumes no social signal.
func FallbackSocial() domain.SocialAnalysis {
	return domain.SocialAnalysis{}
}

// FallbackHolderRisk flags the holder distribution as unknown.
func FallbackHolderRisk() []string {
	return []string{domain.RiskFactorHolderAnalysisFailed}
}

// mergeFactors returns the distinct, sorted union of the factor lists.
func mergeFactors(lists ...[]string) []string {
	var out []string
	for _, l := range lists {
		out = append(out, l...)
	}
	slices.Sort(out)
	return slices.Compact(out)
}
