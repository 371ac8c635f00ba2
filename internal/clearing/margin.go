package clearing

import (
	"fmt"

	"clearinghouse/internal/ledger"
	"clearinghouse/internal/market"
	"clearinghouse/internal/num"
)

// RemainMargin bundles the outputs of the margin & funding calculation.
type RemainMargin struct {
	// Margin is the remaining margin, clamped at zero.
	Margin num.UDec

	// BadDebt is the pre-clamp shortfall: exactly |remainMargin| whenever
	// the raw remaining margin was negative, zero otherwise.
	BadDebt num.UDec

	// FundingPayment settled into the position by this calculation.
	// Positive increases margin.
	FundingPayment num.Dec

	// LatestPremiumFraction becomes the position's new funding checkpoint.
	LatestPremiumFraction num.Dec
}

// calcRemainMargin settles pending funding against a position and applies a
// margin delta. The delta's meaning is the caller's: added/removed margin,
// required margin on an increase, or realized PnL on a reduce/close. The
// function is pure; the caller persists.
func calcRemainMargin(pos ledger.Position, latestPremiumFraction, marginDelta num.Dec) RemainMargin {
	fundingPayment := num.Zero()
	if !pos.Size.IsZero() {
		fundingPayment = latestPremiumFraction.
			Sub(pos.LastPremiumFraction).
			Mul(pos.Size).
			Neg()
	}

	remain := fundingPayment.Add(pos.Margin.Dec()).Add(marginDelta)

	out := RemainMargin{
		FundingPayment:        fundingPayment,
		LatestPremiumFraction: latestPremiumFraction,
	}
	if remain.IsNegative() {
		out.BadDebt = remain.Abs()
		return out
	}
	out.Margin, _ = remain.ToUnsigned()
	return out
}

// PnlOption selects the valuation source for unrealized PnL.
type PnlOption int

const (
	// PnlSpot values the position at current spot reserves.
	PnlSpot PnlOption = iota
	// PnlTwap values the position over the AMM's time-weighted window.
	PnlTwap
)

// positionNotionalAndUnrealizedPnl values a position: the quote amount its
// full size would fetch, and the PnL against its cost basis.
func positionNotionalAndUnrealizedPnl(amm market.Amm, pos ledger.Position, opt PnlOption) (num.UDec, num.Dec, error) {
	if pos.IsFlat() {
		return num.UZero(), num.Zero(), nil
	}

	// Closing a long adds base to the pool; closing a short removes it.
	dir := market.AddToAmm
	if pos.Size.IsNegative() {
		dir = market.RemoveFromAmm
	}

	var notional num.UDec
	var err error
	switch opt {
	case PnlTwap:
		notional, err = amm.GetOutputTwap(dir, pos.Size.Abs())
	default:
		notional, err = amm.GetOutputPrice(dir, pos.Size.Abs())
	}
	if err != nil {
		return num.UZero(), num.Zero(), fmt.Errorf("value position: %w", err)
	}

	var pnl num.Dec
	if pos.Size.IsPositive() {
		pnl = notional.Dec().Sub(pos.OpenNotional.Dec())
	} else {
		pnl = pos.OpenNotional.Dec().Sub(notional.Dec())
	}
	return notional, pnl, nil
}

// preferencePositionNotionalAndUnrealizedPnl values the position at
// whichever of spot and TWAP yields the higher PnL. Solvency checks use
// this so a momentary reserve imbalance cannot by itself flip a healthy
// position into liquidation territory.
func preferencePositionNotionalAndUnrealizedPnl(amm market.Amm, pos ledger.Position) (num.UDec, num.Dec, error) {
	spotNotional, spotPnl, err := positionNotionalAndUnrealizedPnl(amm, pos, PnlSpot)
	if err != nil {
		return num.UZero(), num.Zero(), err
	}
	twapNotional, twapPnl, err := positionNotionalAndUnrealizedPnl(amm, pos, PnlTwap)
	if err != nil {
		return num.UZero(), num.Zero(), err
	}

	if spotPnl.GreaterThan(twapPnl) {
		return spotNotional, spotPnl, nil
	}
	return twapNotional, twapPnl, nil
}

// marginRatio is (remainMargin - badDebt) / openNotional after settling
// funding and the position's unrealized PnL.
func marginRatio(pos ledger.Position, latestPremiumFraction, unrealizedPnl num.Dec) (num.Dec, error) {
	if pos.IsFlat() {
		return num.Zero(), ErrZeroPosition
	}

	rm := calcRemainMargin(pos, latestPremiumFraction, unrealizedPnl)
	net := rm.Margin.Dec().Sub(rm.BadDebt.Dec())
	return net.Div(pos.OpenNotional.Dec())
}
