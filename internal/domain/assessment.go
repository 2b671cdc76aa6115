package domain

// LiquidityTier is the qualitative band of a pool's liquidity.
type LiquidityTier string

const (
	LiquidityPoor      LiquidityTier = "poor"
	LiquidityFair      LiquidityTier = "fair"
	LiquidityGood      LiquidityTier = "good"
	LiquidityExcellent LiquidityTier = "excellent"
)

// Sub-analysis names, used in Assessment.Degraded and in notifications.
const (
	AnalysisContract  = "contract"
	AnalysisLiquidity = "liquidity"
	AnalysisSocial    = "social"
	AnalysisHolders   = "holders"
)

// Risk factor markers added when a sub-analysis falls back to defaults.
const (
	RiskFactorAnalysisFailed       = "analysis_failed"
	RiskFactorHolderAnalysisFailed = "holder_analysis_failed"
)

// ContractAnalysis is the contract-integrity part of an assessment.
type ContractAnalysis struct {
	Honeypot           bool
	Verified           bool
	Audited            bool
	OwnershipRenounced bool
	AgeSeconds         int64
	AuditScore         float64  // [0,100]
	RiskFactors        []string // contract-level findings
}

// LiquidityLock describes locked liquidity reported by a lock provider.
type LiquidityLock struct {
	Provider  string
	AmountUSD float64
	UnlockAt  int64 // Unix ms
}

// LiquidityAnalysis is the liquidity part of an assessment.
type LiquidityAnalysis struct {
	AmountUSD float64
	Tier      LiquidityTier
	Locks     []LiquidityLock
}

// SocialAnalysis is the social-signal part of an assessment.
type SocialAnalysis struct {
	Score float64 // [0,100]
}

// Assessment is the aggregated, immutable output of the analysis pipeline.
type Assessment struct {
	CandidateID string
	Network     Network
	Address     string

	Contract  ContractAnalysis
	Liquidity LiquidityAnalysis
	Social    SocialAnalysis

	RiskFactors            []string // distinct, sorted
	RiskScore              float64  // [0,100]
	ProfitPotentialPercent float64  // [100,2000]; 100 = break-even
	CompositeScore         float64  // [0,100]

	Degraded   []string // sub-analyses that fell back to defaults
	AssessedAt int64    // Unix ms
}

// IsDegraded reports whether any sub-analysis used fallback defaults.
func (a *Assessment) IsDegraded() bool {
	return len(a.Degraded) > 0
}
