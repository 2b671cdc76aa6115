package position

import (
	"math"
	"testing"

	"solana-sniper/internal/config"
	"solana-sniper/internal/domain"
)

func TestSize(t *testing.T) {
	cfg := ConfigFrom(config.Default()) // base 0.5, [0.1, 2.0]

	tests := []struct {
		name   string
		profit float64
		risk   float64
		want   float64
	}{
		{"base", 300, 40, 0.5},
		{"high potential", 1200, 40, 1.0},
		{"medium potential", 600, 40, 0.75},
		{"low risk", 300, 20, 0.6},
		{"high risk", 300, 60, 0.4},
		{"best case", 1500, 10, 1.2},
		{"boundary 1000 is medium", 1000, 40, 0.75},
		{"boundary 500 is base", 500, 40, 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := cfg.Size(&domain.Assessment{ProfitPotentialPercent: tt.profit, RiskScore: tt.risk})
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSize_Clamped(t *testing.T) {
	cfg := ConfigFrom(config.Default())
	cfg.BaseSize = 5
	if got := cfg.Size(&domain.Assessment{ProfitPotentialPercent: 300, RiskScore: 40}); got != cfg.MaxSize {
		t.Errorf("expected clamp to %v, got %v", cfg.MaxSize, got)
	}
	cfg.BaseSize = 0.01
	if got := cfg.Size(&domain.Assessment{ProfitPotentialPercent: 300, RiskScore: 40}); got != cfg.MinSize {
		t.Errorf("expected clamp to %v, got %v", cfg.MinSize, got)
	}
}

func TestBuildLadder(t *testing.T) {
	template := config.Default().Positions.ProfitLadderTemplate

	rungs := BuildLadder(template, 300)
	want := []float64{100, 140, 200}
	var sum float64
	for i, r := range rungs {
		if math.Abs(r.GainPercentThreshold-want[i]) > 1e-9 {
			t.Errorf("rung %d: got %v, want %v", i, r.GainPercentThreshold, want[i])
		}
		sum += r.ReleaseFraction
	}
	if math.Abs(sum-1) > 1e-9 {
		t.Errorf("release fractions sum to %v", sum)
	}

	// Break-even potential still yields strictly ascending thresholds.
	flat := BuildLadder(template, 100)
	for i := 1; i < len(flat); i++ {
		if flat[i].GainPercentThreshold <= flat[i-1].GainPercentThreshold {
			t.Errorf("thresholds not ascending: %+v", flat)
		}
	}
}

func TestStopLoss(t *testing.T) {
	if got := StopLoss(1.0, 0.3); math.Abs(got-0.7) > 1e-12 {
		t.Errorf("got %v, want 0.7", got)
	}
}
