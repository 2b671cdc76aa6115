package config

import (
	"errors"
	"fmt"
	"math"

	"solana-sniper/internal/domain"
)

// ladderSumTolerance absorbs float rounding in YAML fractions such as 0.3/0.3/0.4.
const ladderSumTolerance = 1e-9

// Validate checks invariants that must hold before the engine starts.
// Every returned error wraps domain.ErrFatalConfig.
func (c *Config) Validate() error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{domain.ErrFatalConfig}, args...)...))
	}

	if len(c.Networks) == 0 {
		fail("at least one network is required")
	}
	for _, n := range c.Networks {
		if !n.IsValid() {
			fail("unsupported network %q", n)
		}
	}

	positive := map[string]int{
		"intake.max_pending_candidates":   c.Intake.MaxPendingCandidates,
		"intake.scan_interval_ms":         c.Intake.ScanIntervalMs,
		"workers.size":                    c.Workers.Size,
		"workers.max_concurrent_analyses": c.Workers.MaxConcurrentAnalyses,
		"screen.timeout_ms":               c.Screen.TimeoutMs,
		"analysis.timeout_ms":             c.Analysis.TimeoutMs,
		"positions.max_open_positions":    c.Positions.MaxOpenPositions,
		"monitor.interval_ms":             c.Monitor.IntervalMs,
		"monitor.price_timeout_ms":        c.Monitor.PriceTimeoutMs,
		"monitor.flush_timeout_ms":        c.Monitor.FlushTimeoutMs,
		"monitor.failure_alert_threshold": c.Monitor.FailureAlertThreshold,
		"execution.timeout_ms":            c.Execution.TimeoutMs,
		"shutdown.timeout_ms":             c.Shutdown.TimeoutMs,
	}
	for name, v := range positive {
		if v <= 0 {
			fail("%s must be positive, got %d", name, v)
		}
	}
	if c.Analysis.MaxRetries < 0 {
		fail("analysis.max_retries must not be negative")
	}

	if c.Positions.MinSize <= 0 || c.Positions.MaxSize < c.Positions.MinSize {
		fail("positions sizing bounds invalid: min=%v max=%v", c.Positions.MinSize, c.Positions.MaxSize)
	}
	if c.Positions.BaseSize <= 0 {
		fail("positions.base_size must be positive")
	}
	if !openUnit(c.Positions.StopLossPercent) {
		fail("positions.stop_loss_percent must be in (0,1), got %v", c.Positions.StopLossPercent)
	}
	if c.Positions.TrailingEnabled && !openUnit(c.Positions.TrailingPercent) {
		fail("positions.trailing_percent must be in (0,1), got %v", c.Positions.TrailingPercent)
	}
	if c.Positions.MaxHoldSeconds <= 0 {
		fail("positions.max_hold_seconds must be positive")
	}
	if err := ValidateLadder(c.Positions.ProfitLadderTemplate); err != nil {
		errs = append(errs, err)
	}

	if c.Decision.RiskRejectThreshold < 0 || c.Decision.RiskRejectThreshold > 100 {
		fail("decision.risk_reject_threshold must be in [0,100]")
	}
	if c.Decision.MinProfitPotentialPercent < 100 {
		fail("decision.min_profit_potential_percent must be at least 100")
	}
	s := c.Scoring
	if !(s.FairLiquidityUSD < s.GoodLiquidityUSD && s.GoodLiquidityUSD < s.ExcellentLiquidityUSD) {
		fail("scoring liquidity bands must be strictly ascending")
	}
	if s.ContractWeight < 0 || s.LiquidityWeight < 0 || s.SocialWeight < 0 || s.SafetyWeight < 0 {
		fail("scoring weights must not be negative")
	}
	if c.Execution.Slippage < 0 || c.Execution.Slippage >= 1 {
		fail("execution.slippage must be in [0,1)")
	}

	switch c.Execution.Mode {
	case "paper":
	case "http":
		if c.Execution.VenueURL == "" {
			fail("execution.venue_url is required in http mode")
		}
	default:
		fail("unknown execution.mode %q", c.Execution.Mode)
	}

	switch c.Storage.Backend {
	case "memory":
	case "badger":
		if c.Storage.BadgerPath == "" {
			fail("storage.badger_path is required for the badger backend")
		}
	case "postgres":
		if c.Storage.PostgresDSN == "" {
			fail("storage.postgres_dsn is required for the postgres backend")
		}
	default:
		fail("unknown storage.backend %q", c.Storage.Backend)
	}

	return errors.Join(errs...)
}

// ValidateLadder checks that release fractions sum to one and rung
// thresholds are strictly ascending.
func ValidateLadder(rungs []LadderTemplateRung) error {
	if len(rungs) == 0 {
		return fmt.Errorf("%w: profit ladder template is empty", domain.ErrFatalConfig)
	}
	var sum float64
	prev := 0.0
	for i, r := range rungs {
		if r.ReleaseFraction <= 0 || r.ReleaseFraction > 1 {
			return fmt.Errorf("%w: ladder rung %d release fraction %v out of (0,1]", domain.ErrFatalConfig, i, r.ReleaseFraction)
		}
		if r.PotentialFraction <= prev {
			return fmt.Errorf("%w: ladder rung %d threshold %v not above %v", domain.ErrFatalConfig, i, r.PotentialFraction, prev)
		}
		prev = r.PotentialFraction
		sum += r.ReleaseFraction
	}
	if math.Abs(sum-1) > ladderSumTolerance {
		return fmt.Errorf("%w: ladder release fractions sum to %.6f, want 1", domain.ErrFatalConfig, sum)
	}
	return nil
}

func openUnit(v float64) bool {
	return v > 0 && v < 1
}
