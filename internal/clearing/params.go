package clearing

import (
	"fmt"

	"clearinghouse/internal/num"
)

// RiskParams are the governance-mutable solvency ratios. The authorization
// gate in front of the setters is an external concern; the engine only
// validates and applies.
type RiskParams struct {
	// InitMarginRatio bounds leverage on open and margin withdrawal.
	InitMarginRatio num.UDec

	// MaintenanceMarginRatio is the liquidation threshold.
	MaintenanceMarginRatio num.UDec

	// LiquidationFeeRatio prices the liquidator's fee on the closed notional.
	LiquidationFeeRatio num.UDec
}

// DefaultRiskParams mirrors a 10x-leverage venue: 10% initial margin,
// 6.25% maintenance, 1.25% liquidation fee.
func DefaultRiskParams() RiskParams {
	return RiskParams{
		InitMarginRatio:        num.MustUFromString("0.1"),
		MaintenanceMarginRatio: num.MustUFromString("0.0625"),
		LiquidationFeeRatio:    num.MustUFromString("0.0125"),
	}
}

// Validate checks the ratios are individually sane and mutually ordered.
func (p RiskParams) Validate() error {
	one := num.UOne()

	if p.InitMarginRatio.IsZero() || !p.InitMarginRatio.LessThan(one) {
		return fmt.Errorf("init margin ratio must be in (0, 1), got %s", p.InitMarginRatio)
	}
	if p.MaintenanceMarginRatio.IsZero() || !p.MaintenanceMarginRatio.LessThan(p.InitMarginRatio) {
		return fmt.Errorf("maintenance margin ratio must be in (0, init), got %s", p.MaintenanceMarginRatio)
	}
	if !p.LiquidationFeeRatio.LessThan(one) {
		return fmt.Errorf("liquidation fee ratio must be < 1, got %s", p.LiquidationFeeRatio)
	}
	return nil
}
