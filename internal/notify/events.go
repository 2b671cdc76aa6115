// Package notify delivers operator notifications for pipeline and lifecycle
// events. Sinks never block the caller.
package notify

import (
	"fmt"
	"strings"
)

// Kind names an event type on the wire.
type Kind string

const (
	KindCandidateRejected Kind = "candidate_rejected"
	KindPositionOpened    Kind = "position_opened"
	KindRungExecuted      Kind = "rung_executed"
	KindPositionClosed    Kind = "position_closed"
	KindExecutionFailed   Kind = "execution_failed"
	KindAnalysisDegraded  Kind = "analysis_degraded"
	KindCapacityReached   Kind = "capacity_reached"
	KindPriceUnavailable  Kind = "price_unavailable"
)

// Rejection stages.
const (
	StageIntake   = "intake"
	StageScreen   = "screen"
	StageDecision = "decision"
	StageOpen     = "open"
)

// Event is the closed set of notifications. Only types in this package
// implement it.
type Event interface {
	Kind() Kind
	Message() string
	isEvent()
}

// CandidateRejected is emitted when a candidate leaves the pipeline without a trade.
type CandidateRejected struct {
	Network   string `json:"network"`
	Address   string `json:"address"`
	Stage     string `json:"stage"`
	Reason    string `json:"reason"`
	Checklist string `json:"checklist,omitempty"` // Markdown decision table
	At        int64  `json:"at"`
}

// PositionOpened is emitted after a successful entry buy.
type PositionOpened struct {
	PositionID string  `json:"position_id"`
	Network    string  `json:"network"`
	Address    string  `json:"address"`
	EntryPrice float64 `json:"entry_price"`
	Size       float64 `json:"size"`
	StopLoss   float64 `json:"stop_loss"`
	TxRef      string  `json:"tx_ref"`
	At         int64   `json:"at"`
}

// RungExecuted is emitted after a take-profit rung sells.
type RungExecuted struct {
	PositionID  string  `json:"position_id"`
	Address     string  `json:"address"`
	Rung        int     `json:"rung"`
	GainPercent float64 `json:"gain_percent"`
	Price       float64 `json:"price"`
	Released    float64 `json:"released"`
	Remaining   float64 `json:"remaining"`
	TxRef       string  `json:"tx_ref"`
	At          int64   `json:"at"`
}

// PositionClosed is emitted when a position reaches CLOSED.
type PositionClosed struct {
	PositionID  string  `json:"position_id"`
	Address     string  `json:"address"`
	Reason      string  `json:"reason"`
	Price       float64 `json:"price"`
	GainPercent float64 `json:"gain_percent"`
	At          int64   `json:"at"`
}

// ExecutionFailed is emitted when a gateway call fails. Persistent is set once
// consecutive failures reach the alert threshold.
type ExecutionFailed struct {
	PositionID string `json:"position_id,omitempty"`
	Address    string `json:"address"`
	Action     string `json:"action"`
	Attempts   int    `json:"attempts"`
	Persistent bool   `json:"persistent"`
	Error      string `json:"error"`
	At         int64  `json:"at"`
}

// AnalysisDegraded is emitted when sub-analyses fell back to defaults.
type AnalysisDegraded struct {
	CandidateID string   `json:"candidate_id"`
	Address     string   `json:"address"`
	Analyses    []string `json:"analyses"`
	At          int64    `json:"at"`
}

// CapacityReached is emitted when a bounded resource turns work away.
type CapacityReached struct {
	Resource string `json:"resource"`
	Limit    int    `json:"limit"`
	Address  string `json:"address,omitempty"`
	At       int64  `json:"at"`
}

// PriceUnavailable is emitted when a held position could not be priced on
// Attempts consecutive evaluations.
type PriceUnavailable struct {
	PositionID string `json:"position_id"`
	Address    string `json:"address"`
	Attempts   int    `json:"attempts"`
	Error      string `json:"error"`
	At         int64  `json:"at"`
}

func (CandidateRejected) Kind() Kind { return KindCandidateRejected }
func (PositionOpened) Kind() Kind    { return KindPositionOpened }
func (RungExecuted) Kind() Kind      { return KindRungExecuted }
func (PositionClosed) Kind() Kind    { return KindPositionClosed }
func (ExecutionFailed) Kind() Kind   { return KindExecutionFailed }
func (AnalysisDegraded) Kind() Kind  { return KindAnalysisDegraded }
func (CapacityReached) Kind() Kind   { return KindCapacityReached }
func (PriceUnavailable) Kind() Kind  { return KindPriceUnavailable }

func (CandidateRejected) isEvent() {}
func (PositionOpened) isEvent()    {}
func (RungExecuted) isEvent()      {}
func (PositionClosed) isEvent()    {}
func (ExecutionFailed) isEvent()   {}
func (AnalysisDegraded) isEvent()  {}
func (CapacityReached) isEvent()   {}
func (PriceUnavailable) isEvent()  {}

func (e CandidateRejected) Message() string {
	return fmt.Sprintf("rejected %s at %s: %s", e.Address, e.Stage, e.Reason)
}

func (e PositionOpened) Message() string {
	return fmt.Sprintf("opened %s size=%.4f entry=%.8g stop=%.8g tx=%s", e.Address, e.Size, e.EntryPrice, e.StopLoss, e.TxRef)
}

func (e RungExecuted) Message() string {
	return fmt.Sprintf("rung %d hit on %s at %+.1f%%: released %.2f, remaining %.2f", e.Rung+1, e.Address, e.GainPercent, e.Released, e.Remaining)
}

func (e PositionClosed) Message() string {
	return fmt.Sprintf("closed %s (%s) at %.8g, %+.1f%%", e.Address, e.Reason, e.Price, e.GainPercent)
}

func (e ExecutionFailed) Message() string {
	prefix := "execution failed"
	if e.Persistent {
		prefix = "PERSISTENT execution failure"
	}
	return fmt.Sprintf("%s: %s %s (attempt %d): %s", prefix, e.Action, e.Address, e.Attempts, e.Error)
}

func (e AnalysisDegraded) Message() string {
	return fmt.Sprintf("analysis degraded for %s: %s", e.Address, strings.Join(e.Analyses, ", "))
}

func (e CapacityReached) Message() string {
	return fmt.Sprintf("%s at capacity (%d)", e.Resource, e.Limit)
}

func (e PriceUnavailable) Message() string {
	return fmt.Sprintf("no price for %s after %d attempts: %s", e.Address, e.Attempts, e.Error)
}
