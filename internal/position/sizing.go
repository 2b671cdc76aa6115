package position

import (
	"solana-sniper/internal/config"
	"solana-sniper/internal/domain"
)

// minExpectedGain keeps ladder thresholds strictly ascending when the
// assessed upside is at or below break-even.
const minExpectedGain = 10.0

// Size returns the quote amount to commit for an assessment.
func (c Config) Size(a *domain.Assessment) float64 {
	size := c.BaseSize

	switch {
	case a.ProfitPotentialPercent > 1000:
		size *= 2
	case a.ProfitPotentialPercent > 500:
		size *= 1.5
	}

	switch {
	case a.RiskScore < 30:
		size *= 1.2
	case a.RiskScore > 50:
		size *= 0.8
	}

	return max(c.MinSize, min(c.MaxSize, size))
}

// BuildLadder scales the template to the assessed upside. Each rung sits at
// PotentialFraction of the expected gain (profitPotential - 100).
func BuildLadder(template []config.LadderTemplateRung, profitPotential float64) []domain.LadderRung {
	expected := max(profitPotential-100, minExpectedGain)

	rungs := make([]domain.LadderRung, len(template))
	for i, t := range template {
		rungs[i] = domain.LadderRung{
			GainPercentThreshold: t.PotentialFraction * expected,
			ReleaseFraction:      t.ReleaseFraction,
		}
	}
	return rungs
}

// StopLoss returns the initial stop price for an entry.
func StopLoss(entry, stopLossPercent float64) float64 {
	return entry * (1 - stopLossPercent)
}
