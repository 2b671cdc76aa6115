// Package config loads and validates sniper configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"solana-sniper/internal/domain"
)

// LadderTemplateRung defines one take-profit rung relative to the assessed upside.
type LadderTemplateRung struct {
	// PotentialFraction scales the expected gain (profitPotential - 100).
	// 0.5 with a 600% potential puts the rung at +250%.
	PotentialFraction float64 `yaml:"potential_fraction"`
	// ReleaseFraction is the share of the original size sold at this rung.
	ReleaseFraction float64 `yaml:"release_fraction"`
}

// Intake configures candidate admission.
type Intake struct {
	MaxPendingCandidates int `yaml:"max_pending_candidates"`
	ScanIntervalMs       int `yaml:"scan_interval_ms"`
	// QuickScoreTTLSec is how long a screened asset's quick score is kept to
	// order or skip rediscoveries.
	QuickScoreTTLSec int `yaml:"quick_score_ttl_sec"`
}

// Workers configures the bounded worker pool.
type Workers struct {
	Size                  int `yaml:"size"`
	MaxConcurrentAnalyses int `yaml:"max_concurrent_analyses"`
}

// Screen configures the quick heuristic filter.
type Screen struct {
	TimeoutMs         int     `yaml:"timeout_ms"`
	MinContractAgeSec int64   `yaml:"min_contract_age_sec"`
	PassScore         float64 `yaml:"pass_score"`
}

// Analysis configures the deep analysis pipeline.
type Analysis struct {
	TimeoutMs   int `yaml:"timeout_ms"`
	MaxRetries  int `yaml:"max_retries"`
	RetryBaseMs int `yaml:"retry_base_ms"`
}

// Scoring holds the weights and bands used by the scoring formulas.
type Scoring struct {
	ContractWeight        float64 `yaml:"contract_weight"`
	LiquidityWeight       float64 `yaml:"liquidity_weight"`
	SocialWeight          float64 `yaml:"social_weight"`
	SafetyWeight          float64 `yaml:"safety_weight"`
	RiskFactorPenalty     float64 `yaml:"risk_factor_penalty"`
	FairLiquidityUSD      float64 `yaml:"fair_liquidity_usd"`
	GoodLiquidityUSD      float64 `yaml:"good_liquidity_usd"`
	ExcellentLiquidityUSD float64 `yaml:"excellent_liquidity_usd"`
	YoungContractSec      int64   `yaml:"young_contract_sec"`
	BaseProfitPotential   float64 `yaml:"base_profit_potential"`
}

// Decision configures the trade/no-trade gate.
type Decision struct {
	RiskRejectThreshold       float64 `yaml:"risk_reject_threshold"`
	MinProfitPotentialPercent float64 `yaml:"min_profit_potential_percent"`
	MinLiquidityUSD           float64 `yaml:"min_liquidity_usd"`
}

// Positions configures admission, sizing and exit templates.
type Positions struct {
	MaxOpenPositions     int                  `yaml:"max_open_positions"`
	BaseSize             float64              `yaml:"base_size"`
	MinSize              float64              `yaml:"min_size"`
	MaxSize              float64              `yaml:"max_size"`
	ProfitLadderTemplate []LadderTemplateRung `yaml:"profit_ladder_template"`
	StopLossPercent      float64              `yaml:"stop_loss_percent"`
	TrailingEnabled      bool                 `yaml:"trailing_enabled"`
	TrailingPercent      float64              `yaml:"trailing_percent"`
	MaxHoldSeconds       int64                `yaml:"max_hold_seconds"`
}

// Monitor configures the lifecycle monitor.
type Monitor struct {
	IntervalMs            int `yaml:"interval_ms"`
	PriceTimeoutMs        int `yaml:"price_timeout_ms"`
	FlushTimeoutMs        int `yaml:"flush_timeout_ms"` // price tick persistence
	FailureAlertThreshold int `yaml:"failure_alert_threshold"`
}

// Execution configures the execution gateway.
type Execution struct {
	Mode           string  `yaml:"mode"` // paper | http
	VenueURL       string  `yaml:"venue_url"`
	APIKey         string  `yaml:"api_key"`
	Slippage       float64 `yaml:"slippage"`
	GasPolicy      string  `yaml:"gas_policy"`
	BuyDeadlineMs  int     `yaml:"buy_deadline_ms"`
	TimeoutMs      int     `yaml:"timeout_ms"`
	PaperSlippage  float64 `yaml:"paper_slippage"`
	PaperFeeBps    int     `yaml:"paper_fee_bps"`
	PaperStartCash float64 `yaml:"paper_start_cash"`
}

// Shutdown configures graceful termination.
type Shutdown struct {
	LiquidateOnShutdown bool `yaml:"liquidate_on_shutdown"`
	TimeoutMs           int  `yaml:"timeout_ms"`
}

// Solana configures chain access.
type Solana struct {
	RPCURL   string   `yaml:"rpc_url"`
	WSURL    string   `yaml:"ws_url"`
	Programs []string `yaml:"programs"` // DEX aliases or program ids
	Buffer   int      `yaml:"buffer"`

	Commitment   string `yaml:"commitment"`
	RPCTimeoutMs int    `yaml:"rpc_timeout_ms"`
}

// Providers configures the HTTP analysis collaborators.
type Providers struct {
	DexScreenerURL    string  `yaml:"dexscreener_url"`
	TokenInfoURL      string  `yaml:"token_info_url"`
	SocialURL         string  `yaml:"social_url"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
	CacheTTLSec       int     `yaml:"cache_ttl_sec"`
	PriceCacheTTLMs   int     `yaml:"price_cache_ttl_ms"`
}

// Storage configures persistence backends.
type Storage struct {
	Backend       string `yaml:"backend"` // memory | badger | postgres
	BadgerPath    string `yaml:"badger_path"`
	PostgresDSN   string `yaml:"postgres_dsn"`
	ClickhouseDSN string `yaml:"clickhouse_dsn"`
}

// Notify configures notification sinks.
type Notify struct {
	WebhookURL    string  `yaml:"webhook_url"`
	QueueSize     int     `yaml:"queue_size"`
	RatePerSecond float64 `yaml:"rate_per_second"`
	MaxAttempts   int     `yaml:"max_attempts"`
}

// Logging configures the process logger.
type Logging struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"` // text | json
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// Config is the root configuration document.
type Config struct {
	Networks    []domain.Network `yaml:"networks"`
	Intake      Intake           `yaml:"intake"`
	Workers     Workers          `yaml:"workers"`
	Screen      Screen           `yaml:"screen"`
	Analysis    Analysis         `yaml:"analysis"`
	Scoring     Scoring          `yaml:"scoring"`
	Decision    Decision         `yaml:"decision"`
	Positions   Positions        `yaml:"positions"`
	Monitor     Monitor          `yaml:"monitor"`
	Execution   Execution        `yaml:"execution"`
	Shutdown    Shutdown         `yaml:"shutdown"`
	Solana      Solana           `yaml:"solana"`
	Providers   Providers        `yaml:"providers"`
	Storage     Storage          `yaml:"storage"`
	Notify      Notify           `yaml:"notify"`
	Logging     Logging          `yaml:"logging"`
	MetricsAddr string           `yaml:"metrics_addr"`
}

// Default returns the configuration used when no file overrides a value.
func Default() Config {
	return Config{
		Networks: []domain.Network{domain.NetworkSolana},
		Intake: Intake{
			MaxPendingCandidates: 100,
			ScanIntervalMs:       2000,
			QuickScoreTTLSec:     600,
		},
		Workers: Workers{
			Size:                  8,
			MaxConcurrentAnalyses: 4,
		},
		Screen: Screen{
			TimeoutMs:         1500,
			MinContractAgeSec: 300,
			PassScore:         70,
		},
		Analysis: Analysis{
			TimeoutMs:   5000,
			MaxRetries:  2,
			RetryBaseMs: 200,
		},
		Scoring: Scoring{
			ContractWeight:        40,
			LiquidityWeight:       30,
			SocialWeight:          20,
			SafetyWeight:          10,
			RiskFactorPenalty:     2,
			FairLiquidityUSD:      5_000,
			GoodLiquidityUSD:      25_000,
			ExcellentLiquidityUSD: 100_000,
			YoungContractSec:      300,
			BaseProfitPotential:   200,
		},
		Decision: Decision{
			RiskRejectThreshold:       70,
			MinProfitPotentialPercent: 200,
			MinLiquidityUSD:           10_000,
		},
		Positions: Positions{
			MaxOpenPositions: 5,
			BaseSize:         0.5,
			MinSize:          0.1,
			MaxSize:          2.0,
			ProfitLadderTemplate: []LadderTemplateRung{
				{PotentialFraction: 0.5, ReleaseFraction: 0.3},
				{PotentialFraction: 0.7, ReleaseFraction: 0.3},
				{PotentialFraction: 1.0, ReleaseFraction: 0.4},
			},
			StopLossPercent: 0.30,
			TrailingEnabled: true,
			TrailingPercent: 0.15,
			MaxHoldSeconds:  3600,
		},
		Monitor: Monitor{
			IntervalMs:            1000,
			PriceTimeoutMs:        2000,
			FlushTimeoutMs:        2000,
			FailureAlertThreshold: 3,
		},
		Execution: Execution{
			Mode:           "paper",
			Slippage:       0.05,
			GasPolicy:      "priority",
			BuyDeadlineMs:  10_000,
			TimeoutMs:      8000,
			PaperSlippage:  0.005,
			PaperFeeBps:    25,
			PaperStartCash: 10,
		},
		Shutdown: Shutdown{
			LiquidateOnShutdown: true,
			TimeoutMs:           30_000,
		},
		Solana: Solana{
			RPCURL:   "https://api.mainnet-beta.solana.com",
			WSURL:    "wss://api.mainnet-beta.solana.com",
			Programs: []string{"raydium", "pumpfun"},
			Buffer:   1000,

			Commitment:   "confirmed",
			RPCTimeoutMs: 10_000,
		},
		Providers: Providers{
			DexScreenerURL:    "https://api.dexscreener.com",
			RequestsPerSecond: 4,
			Burst:             4,
			CacheTTLSec:       15,
			PriceCacheTTLMs:   500,
		},
		Storage: Storage{
			Backend:    "badger",
			BadgerPath: "data/positions",
		},
		Notify: Notify{
			QueueSize:     1000,
			RatePerSecond: 1,
			MaxAttempts:   3,
		},
		Logging: Logging{
			Level:      "info",
			Format:     "text",
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 14,
		},
		MetricsAddr: ":9090",
	}
}

// Load reads a YAML file over the defaults, applies environment overrides
// and validates the result.
func Load(path string) (Config, error) {
	c := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return c, fmt.Errorf("%w: read config %s: %v", domain.ErrFatalConfig, path, err)
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return c, fmt.Errorf("%w: parse config %s: %v", domain.ErrFatalConfig, path, err)
		}
	}
	c.ApplyEnv()
	if err := c.Validate(); err != nil {
		return c, err
	}
	return c, nil
}

// ApplyEnv overrides endpoints and credentials from SNIPER_* variables.
func (c *Config) ApplyEnv() {
	overrides := map[string]*string{
		"SNIPER_RPC_URL":         &c.Solana.RPCURL,
		"SNIPER_WS_URL":          &c.Solana.WSURL,
		"SNIPER_POSTGRES_DSN":    &c.Storage.PostgresDSN,
		"SNIPER_CLICKHOUSE_DSN":  &c.Storage.ClickhouseDSN,
		"SNIPER_STORAGE_BACKEND": &c.Storage.Backend,
		"SNIPER_WEBHOOK_URL":     &c.Notify.WebhookURL,
		"SNIPER_VENUE_URL":       &c.Execution.VenueURL,
		"SNIPER_VENUE_API_KEY":   &c.Execution.APIKey,
		"SNIPER_EXECUTION_MODE":  &c.Execution.Mode,
		"SNIPER_DEXSCREENER_URL": &c.Providers.DexScreenerURL,
		"SNIPER_TOKEN_INFO_URL":  &c.Providers.TokenInfoURL,
		"SNIPER_SOCIAL_URL":      &c.Providers.SocialURL,
		"SNIPER_LOG_LEVEL":       &c.Logging.Level,
	}
	for key, field := range overrides {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*field = v
		}
	}
}

// ScanInterval returns the candidate scan period.
func (c *Config) ScanInterval() time.Duration {
	return time.Duration(c.Intake.ScanIntervalMs) * time.Millisecond
}

// MonitorInterval returns the lifecycle tick period.
func (c *Config) MonitorInterval() time.Duration {
	return time.Duration(c.Monitor.IntervalMs) * time.Millisecond
}

// ShutdownTimeout returns the hard shutdown deadline.
func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.Shutdown.TimeoutMs) * time.Millisecond
}

// Millis converts a millisecond setting to a duration.
func Millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
