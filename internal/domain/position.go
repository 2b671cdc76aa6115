package domain

// PositionStatus is the lifecycle state of a position.
type PositionStatus string

const (
	PositionOpen            PositionStatus = "OPEN"
	PositionPartiallyClosed PositionStatus = "PARTIALLY_CLOSED"
	PositionClosed          PositionStatus = "CLOSED"
)

// IsActive reports whether the position still holds exposure.
func (s PositionStatus) IsActive() bool {
	return s == PositionOpen || s == PositionPartiallyClosed
}

// Exit reason codes
const (
	ExitReasonTakeProfit   = "TAKE_PROFIT"
	ExitReasonStopLoss     = "STOP_LOSS"
	ExitReasonTrailingStop = "TRAILING_STOP"
	ExitReasonTimeExit     = "TIME_EXIT"
	ExitReasonShutdown     = "SHUTDOWN"
	ExitReasonManual       = "MANUAL"
)

// LadderRung is one take-profit step.
type LadderRung struct {
	GainPercentThreshold float64 // gain over entry, in percent (50 = +50%)
	ReleaseFraction      float64 // fraction of the original size sold at this rung
	Hit                  bool
}

// Position represents an open or historical holding in one asset.
type Position struct {
	ID          string
	CandidateID string
	Network     Network
	Address     string

	EntryPrice        float64
	Size              float64 // quote units committed at entry
	RemainingFraction float64 // [0,1], never increases
	OpenedAt          int64   // Unix ms

	ProfitLadder     []LadderRung // thresholds strictly ascending
	StopLossPrice    float64
	InitialStopPrice float64 // stop at creation; used to label trailing exits
	TrailingEnabled  bool
	TrailingPercent  float64 // (0,1)
	MaxHoldSeconds   int64

	Status              PositionStatus
	PeakPrice           float64
	ConsecutiveFailures int
	ClosedAt            *int64 // Unix ms (nullable)
	CloseReason         string
}

// Clone returns a deep copy of the position.
func (p *Position) Clone() *Position {
	if p == nil {
		return nil
	}
	c := *p
	c.ProfitLadder = append([]LadderRung(nil), p.ProfitLadder...)
	if p.ClosedAt != nil {
		closedAt := *p.ClosedAt
		c.ClosedAt = &closedAt
	}
	return &c
}

// GainPercent returns the gain of price over entry, in percent.
func (p *Position) GainPercent(price float64) float64 {
	if p.EntryPrice <= 0 {
		return 0
	}
	return (price/p.EntryPrice - 1) * 100
}

// HoldExceeded reports whether the position has been held longer than MaxHoldSeconds.
func (p *Position) HoldExceeded(nowMs int64) bool {
	if p.MaxHoldSeconds <= 0 {
		return false
	}
	return nowMs-p.OpenedAt > p.MaxHoldSeconds*1000
}

// StopTrailed reports whether the stop has been ratcheted above its initial level.
func (p *Position) StopTrailed() bool {
	return p.StopLossPrice > p.InitialStopPrice
}
