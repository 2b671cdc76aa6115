// Package screen implements the cheap pre-analysis filter.
package screen

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"solana-sniper/internal/bounded"
	"solana-sniper/internal/domain"
	"solana-sniper/internal/logging"
)

// Check names reported in Result.Failed.
const (
	CheckHoneypot  = "honeypot"
	CheckLiquidity = "liquidity"
	CheckAge       = "age"
	CheckOwnership = "ownership"
)

// Score contributions of each passing check.
const (
	scoreNotHoneypot  = 30
	scoreHasLiquidity = 30
	scoreMatureAge    = 20
	scoreRenounced    = 20
)

// Provider answers the four cheap screening questions.
type Provider interface {
	Honeypot(ctx context.Context, network domain.Network, address string) (bool, error)
	HasLiquidity(ctx context.Context, network domain.Network, address string) (bool, error)
	ContractAgeSeconds(ctx context.Context, network domain.Network, address string) (int64, error)
	OwnershipRenounced(ctx context.Context, network domain.Network, address string) (bool, error)
}

// Config tunes the screen.
type Config struct {
	Timeout           time.Duration // per check
	MinContractAgeSec int64
	PassScore         float64
}

// Result is the outcome of screening one candidate.
type Result struct {
	Admit        bool
	QuickScore   float64
	Honeypot     bool
	HasLiquidity bool
	AgeSeconds   int64
	Renounced    bool
	Failed       []string // checks that errored or timed out, in check order
}

// Screener runs the checks concurrently.
type Screener struct {
	provider Provider
	cfg      Config
	log      *logrus.Entry
}

// New creates a Screener.
func New(provider Provider, cfg Config, log *logrus.Entry) *Screener {
	if log == nil {
		log = logging.Component(nil, "screen")
	}
	return &Screener{provider: provider, cfg: cfg, log: log}
}

// Screen evaluates a candidate. It never returns an error: a check that fails
// or times out takes its pessimistic value (honeypot, no liquidity, age zero,
// not renounced).
func (s *Screener) Screen(ctx context.Context, c *domain.Candidate) Result {
	var (
		wg     sync.WaitGroup
		failed [4]bool
		res    = Result{Honeypot: true}
	)

	run := func(i int, name string, fn func(ctx context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil {
				failed[i] = true
				s.log.WithFields(logrus.Fields{
					"check":   name,
					"address": c.Address,
				}).WithError(err).Debug("screen check failed closed")
			}
		}()
	}

	run(0, CheckHoneypot, func(ctx context.Context) error {
		v, err := bounded.Call(ctx, s.cfg.Timeout, func(ctx context.Context) (bool, error) {
			return s.provider.Honeypot(ctx, c.Network, c.Address)
		})
		if err == nil {
			res.Honeypot = v
		}
		return err
	})
	run(1, CheckLiquidity, func(ctx context.Context) error {
		v, err := bounded.Call(ctx, s.cfg.Timeout, func(ctx context.Context) (bool, error) {
			return s.provider.HasLiquidity(ctx, c.Network, c.Address)
		})
		if err == nil {
			res.HasLiquidity = v
		}
		return err
	})
	run(2, CheckAge, func(ctx context.Context) error {
		v, err := bounded.Call(ctx, s.cfg.Timeout, func(ctx context.Context) (int64, error) {
			return s.provider.ContractAgeSeconds(ctx, c.Network, c.Address)
		})
		if err == nil {
			res.AgeSeconds = v
		}
		return err
	})
	run(3, CheckOwnership, func(ctx context.Context) error {
		v, err := bounded.Call(ctx, s.cfg.Timeout, func(ctx context.Context) (bool, error) {
			return s.provider.OwnershipRenounced(ctx, c.Network, c.Address)
		})
		if err == nil {
			res.Renounced = v
		}
		return err
	})

	wg.Wait()

	for i, name := range []string{CheckHoneypot, CheckLiquidity, CheckAge, CheckOwnership} {
		if failed[i] {
			res.Failed = append(res.Failed, name)
		}
	}

	res.QuickScore = Score(res.Honeypot, res.HasLiquidity, res.AgeSeconds >= s.cfg.MinContractAgeSec, res.Renounced)
	res.Admit = res.QuickScore >= s.cfg.PassScore && !res.Honeypot && res.HasLiquidity
	return res
}

// Score sums the check contributions.
func Score(honeypot, hasLiquidity, mature, renounced bool) float64 {
	var score float64
	if !honeypot {
		score += scoreNotHoneypot
	}
	if hasLiquidity {
		score += scoreHasLiquidity
	}
	if mature {
		score += scoreMatureAge
	}
	if renounced {
		score += scoreRenounced
	}
	return score
}
