package event

import (
	"clearinghouse/internal/num"
)

// RestrictionModeEntered is emitted when a market enters per-block
// restriction mode after a destabilizing event.
type RestrictionModeEntered struct {
	Market string
	Block  uint64
}

func (e *RestrictionModeEntered) EventType() Type  { return TypeRestrictionModeEntered }
func (e *RestrictionModeEntered) MarketID() string { return e.Market }

// FundingSettled is emitted once per funding period settlement.
type FundingSettled struct {
	Market          string
	PremiumFraction num.Dec
	BaseAssetDelta  num.Dec
	FundingCost     num.Dec
}

func (e *FundingSettled) EventType() Type  { return TypeFundingSettled }
func (e *FundingSettled) MarketID() string { return e.Market }

// RiskParamChanged is emitted when a governance-mutable ratio changes.
type RiskParamChanged struct {
	Param string
	Ratio num.UDec
}

func (e *RiskParamChanged) EventType() Type  { return TypeRiskParamChanged }
func (e *RiskParamChanged) MarketID() string { return "" }
