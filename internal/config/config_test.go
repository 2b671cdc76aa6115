package config

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"solana-sniper/internal/domain"
)

func TestDefault_IsValid(t *testing.T) {
	c := Default()
	if err := c.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestExampleConfigMatchesDefaults(t *testing.T) {
	for _, key := range []string{"SNIPER_RPC_URL", "SNIPER_WS_URL", "SNIPER_STORAGE_BACKEND", "SNIPER_EXECUTION_MODE", "SNIPER_DEXSCREENER_URL", "SNIPER_LOG_LEVEL"} {
		t.Setenv(key, "")
	}
	c, err := Load(filepath.Join("..", "..", "configs", "sniper.example.yaml"))
	if err != nil {
		t.Fatalf("Load example: %v", err)
	}
	if want := Default(); !reflect.DeepEqual(c, want) {
		t.Errorf("example config drifted from defaults:\n got  %+v\n want %+v", c, want)
	}
}

func TestLoad_OverlaysDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sniper.yaml")
	doc := `
intake:
  max_pending_candidates: 2
positions:
  trailing_enabled: false
storage:
  backend: memory
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Intake.MaxPendingCandidates != 2 {
		t.Errorf("MaxPendingCandidates = %d, want 2", c.Intake.MaxPendingCandidates)
	}
	if c.Positions.TrailingEnabled {
		t.Error("TrailingEnabled should be overridden to false")
	}
	if c.Decision.RiskRejectThreshold != 70 {
		t.Errorf("RiskRejectThreshold = %v, want default 70", c.Decision.RiskRejectThreshold)
	}
	if len(c.Positions.ProfitLadderTemplate) != 3 {
		t.Errorf("ladder template = %d rungs, want 3", len(c.Positions.ProfitLadderTemplate))
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("SNIPER_STORAGE_BACKEND", "memory")
	t.Setenv("SNIPER_RPC_URL", "http://localhost:8899")

	c, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Storage.Backend != "memory" {
		t.Errorf("Backend = %q, want memory", c.Storage.Backend)
	}
	if c.Solana.RPCURL != "http://localhost:8899" {
		t.Errorf("RPCURL = %q", c.Solana.RPCURL)
	}
}

func TestLoad_MissingFileIsFatal(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if !errors.Is(err, domain.ErrFatalConfig) {
		t.Fatalf("expected ErrFatalConfig, got %v", err)
	}
}

func TestValidateLadder(t *testing.T) {
	tests := []struct {
		name    string
		rungs   []LadderTemplateRung
		wantErr bool
	}{
		{
			name: "valid three rungs",
			rungs: []LadderTemplateRung{
				{PotentialFraction: 0.5, ReleaseFraction: 0.3},
				{PotentialFraction: 0.7, ReleaseFraction: 0.3},
				{PotentialFraction: 1.0, ReleaseFraction: 0.4},
			},
		},
		{
			name: "sum below one",
			rungs: []LadderTemplateRung{
				{PotentialFraction: 0.5, ReleaseFraction: 0.3},
				{PotentialFraction: 1.0, ReleaseFraction: 0.3},
			},
			wantErr: true,
		},
		{
			name: "thresholds not ascending",
			rungs: []LadderTemplateRung{
				{PotentialFraction: 0.5, ReleaseFraction: 0.3},
				{PotentialFraction: 1.0, ReleaseFraction: 0.3},
				{PotentialFraction: 0.7, ReleaseFraction: 0.4},
			},
			wantErr: true,
		},
		{
			name:    "empty",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateLadder(tt.rungs)
			if tt.wantErr {
				if !errors.Is(err, domain.ErrFatalConfig) {
					t.Errorf("expected ErrFatalConfig, got %v", err)
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestValidate_CollectsProblems(t *testing.T) {
	c := Default()
	c.Positions.StopLossPercent = 1.5
	c.Intake.MaxPendingCandidates = 0
	c.Storage.Backend = "sqlite"

	err := c.Validate()
	if !errors.Is(err, domain.ErrFatalConfig) {
		t.Fatalf("expected ErrFatalConfig, got %v", err)
	}
	var joined interface{ Unwrap() []error }
	if !errors.As(err, &joined) || len(joined.Unwrap()) != 3 {
		t.Errorf("expected 3 problems, got %v", err)
	}
}
