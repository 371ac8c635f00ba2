package event

import (
	"time"
)

// Type discriminator for event payloads
type Type int32

const (
	TypeUnknown Type = iota
	TypePositionChanged
	TypePositionAdjusted
	TypePositionSettled
	TypePositionLiquidated
	TypeMarginChanged
	TypeRestrictionModeEntered
	TypeFundingSettled
	TypeRiskParamChanged
	TypeDepositReceived
)

func (t Type) String() string {
	switch t {
	case TypePositionChanged:
		return "PositionChanged"
	case TypePositionAdjusted:
		return "PositionAdjusted"
	case TypePositionSettled:
		return "PositionSettled"
	case TypePositionLiquidated:
		return "PositionLiquidated"
	case TypeMarginChanged:
		return "MarginChanged"
	case TypeRestrictionModeEntered:
		return "RestrictionModeEntered"
	case TypeFundingSettled:
		return "FundingSettled"
	case TypeRiskParamChanged:
		return "RiskParamChanged"
	case TypeDepositReceived:
		return "DepositReceived"
	default:
		return "Unknown"
	}
}

// Event is the interface all audit event payloads implement.
type Event interface {
	// EventType returns the discriminator.
	EventType() Type

	// MarketID returns the market context (empty for global events).
	MarketID() string
}

// Envelope wraps every emitted event. The engine assigns the sequence and
// block; each logical operation emits its events exactly once.
type Envelope struct {
	// Global monotonic sequence assigned by the engine
	Sequence int64

	// Ordering unit (block height) the operation executed in
	Block uint64

	// Event type discriminator
	EventType Type

	// Market context (empty for global events)
	MarketID string

	// Wall-clock emission time, informational only
	Timestamp time.Time

	// The typed payload
	Payload Event
}
