// Package signal standardizes payloads shared between the webhook pipeline and delivery layers.
package signal

import "time"

// Action enumerates what a TradingView alert asks the bot to do.
type Action string

const (
	// ActionEntry opens a new position.
	ActionEntry Action = "entry"
	// ActionSL closes an open position after an upstream stop condition fired.
	ActionSL Action = "sl"
	// ActionTP references a previously communicated take-profit target index.
	ActionTP Action = "tp"
	// ActionExit closes a position without a stop trigger.
	ActionExit Action = "exit"
)

// Side enumerates position directions.
type Side string

const (
	SideLong  Side = "long"
	SideShort Side = "short"
)

// SizeType qualifies how Signal.Size is denominated.
type SizeType string

const (
	SizePercent SizeType = "percent"
	SizeUSD     SizeType = "usd"
)

// MaxTargets is the number of take-profit slots Cornix accepts per signal.
const MaxTargets = 5

// Signal is a validated, case-normalized trade signal. Optional fields are
// pointers so that "not supplied" stays distinguishable from a zero value
// all the way down to the formatter. Immutable once produced by the validator.
type Signal struct {
	Action   Action
	Side     Side
	Symbol   string // uppercased, may still carry exchange prefix / contract suffix
	Tag      string // uppercased with single leading '#', empty if absent
	SizeType SizeType
	Size     *float64
	Leverage *float64
	TPNumber *int
	TPs      [MaxTargets]*float64 // TPs[0] is TP1
	StopLoss *float64

	// Passthrough metadata from the wire shape, kept for diagnostics.
	OriginalFormat string
	EntryType      string
	Exchange       string
	Trailing       any
}

// TP returns the target price for 1-based index n, or nil when out of
// range or not supplied.
func (s *Signal) TP(n int) *float64 {
	if n < 1 || n > MaxTargets {
		return nil
	}
	return s.TPs[n-1]
}

// Record is the persisted trace of one successfully relayed webhook.
type Record struct {
	ID            string    `json:"id"`
	Timestamp     time.Time `json:"timestamp"`
	Symbol        string    `json:"symbol"`
	Side          string    `json:"side"`
	Action        string    `json:"action"`
	Size          float64   `json:"size,omitempty"`
	SizeType      string    `json:"sizeType,omitempty"`
	CornixCommand string    `json:"cornixCommand"`
	Status        string    `json:"status"`
}
