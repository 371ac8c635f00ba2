package clearing

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"clearinghouse/internal/event"
	"clearinghouse/internal/market"
	"clearinghouse/internal/num"
)

// closePositionLeg flattens the whole position against the AMM and clears
// the ledger record. It moves no tokens; MarginToVault in the result tells
// the caller what to pay out.
func (e *Engine) closePositionLeg(amm market.Amm, trader uuid.UUID, quoteLimit num.UDec, skipFluctuationCheck bool) (TradeResult, error) {
	pos, err := e.getAdjusted(amm, trader)
	if err != nil {
		return TradeResult{}, err
	}
	if pos.IsFlat() {
		return TradeResult{}, fmt.Errorf("%w: %s/%s", ErrZeroPosition, amm.ID(), trader)
	}

	_, unrealizedPnl, err := positionNotionalAndUnrealizedPnl(amm, pos, PnlSpot)
	if err != nil {
		return TradeResult{}, err
	}
	rm := calcRemainMargin(pos, e.ledger.LatestPremiumFraction(amm.ID()), unrealizedPnl)

	// Closing a long sells base into the pool; a short buys it back.
	dir := market.AddToAmm
	if pos.Size.IsNegative() {
		dir = market.RemoveFromAmm
	}
	exchangedQuote, err := amm.SwapOutput(dir, pos.Size.Abs(), quoteLimit, skipFluctuationCheck)
	if err != nil {
		return TradeResult{}, fmt.Errorf("swap output: %w", err)
	}

	e.ledger.Clear(amm.ID(), trader, e.block)

	return TradeResult{
		Position:       e.ledger.Get(amm, trader),
		ExchangedQuote: exchangedQuote,
		ExchangedSize:  pos.Size.Neg(),
		RealizedPnl:    unrealizedPnl,
		BadDebt:        rm.BadDebt,
		FundingPayment: rm.FundingPayment,
		MarginToVault:  rm.Margin.Dec().Neg(),
	}, nil
}

// ClosePosition flattens the trader's position and pays out the remaining
// margin. A close that leaves margin short is not refused: the shortfall is
// realized against the reserve and the market enters restriction mode.
func (e *Engine) ClosePosition(amm market.Amm, trader uuid.UUID, quoteLimit num.UDec) (res TradeResult, err error) {
	start := time.Now()
	defer func() { e.observe("close_position", start, err) }()

	e.mu.Lock()
	defer e.mu.Unlock()

	if err = e.requireAmm(amm, true); err != nil {
		return TradeResult{}, err
	}
	if err = e.requireNotRestricted(amm, trader); err != nil {
		return TradeResult{}, err
	}

	res, err = e.closePositionLeg(amm, trader, quoteLimit, false)
	if err != nil {
		return TradeResult{}, err
	}

	if !res.BadDebt.IsZero() {
		e.enterRestrictionMode(amm.ID())
		if err = e.realizeBadDebt(amm, res.BadDebt); err != nil {
			return TradeResult{}, err
		}
	}
	if res.MarginToVault.IsNegative() {
		if err = e.withdraw(amm, trader, res.MarginToVault.Abs()); err != nil {
			return TradeResult{}, err
		}
	}

	res.Fee, err = e.transferFee(amm, trader, res.ExchangedQuote)
	if err != nil {
		return TradeResult{}, err
	}

	side := market.SideSell
	if res.ExchangedSize.IsPositive() {
		side = market.SideBuy
	}
	quoteReserve, baseReserve := amm.GetReserves()
	e.emit(&event.PositionChanged{
		Trader:            trader,
		Market:            amm.ID(),
		Side:              side,
		ExchangedNotional: res.ExchangedQuote,
		ExchangedSize:     res.ExchangedSize,
		Fee:               res.Fee,
		RealizedPnl:       res.RealizedPnl,
		BadDebt:           res.BadDebt,
		FundingPayment:    res.FundingPayment,
		QuoteReserve:      quoteReserve,
		BaseReserve:       baseReserve,
	})
	return res, nil
}

// Liquidate force-closes a position whose margin ratio, valued at the more
// favorable of spot and TWAP, fell below maintenance. The liquidator earns
// a fee on the closed notional out of the seized margin; any shortfall is
// bad debt on the reserve, any remainder goes to it as surplus.
func (e *Engine) Liquidate(amm market.Amm, trader, liquidator uuid.UUID) (res TradeResult, err error) {
	start := time.Now()
	defer func() { e.observe("liquidate", start, err) }()

	e.mu.Lock()
	defer e.mu.Unlock()

	if err = e.requireAmm(amm, true); err != nil {
		return TradeResult{}, err
	}

	ratio, err := e.marginRatioLocked(amm, trader)
	if err != nil {
		return TradeResult{}, err
	}
	if !ratio.LessThan(e.params.MaintenanceMarginRatio.Dec()) {
		return TradeResult{}, fmt.Errorf("%w: ratio %s, maintenance %s",
			ErrNotLiquidatable, ratio, e.params.MaintenanceMarginRatio)
	}

	res, err = e.closePositionLeg(amm, trader, num.UZero(), true)
	if err != nil {
		return TradeResult{}, err
	}
	// The seized margin stays in custody; the trader is paid nothing.
	seizedMargin := res.MarginToVault.Abs()
	res.MarginToVault = num.Zero()

	feeToLiquidator := res.ExchangedQuote.Mul(e.params.LiquidationFeeRatio)
	totalBadDebt := res.BadDebt

	if feeToLiquidator.GreaterThan(seizedMargin) {
		// Fee exceeds what the position had left: the difference is more
		// bad debt.
		feeShortfall, serr := feeToLiquidator.Sub(seizedMargin)
		if serr != nil {
			return TradeResult{}, serr
		}
		totalBadDebt = totalBadDebt.Add(feeShortfall)
	} else {
		surplus, serr := seizedMargin.Sub(feeToLiquidator)
		if serr != nil {
			return TradeResult{}, serr
		}
		if err = e.transferToInsurance(amm, surplus); err != nil {
			return TradeResult{}, err
		}
	}

	if !totalBadDebt.IsZero() {
		if err = e.realizeBadDebt(amm, totalBadDebt); err != nil {
			return TradeResult{}, err
		}
	}
	if err = e.withdraw(amm, liquidator, feeToLiquidator); err != nil {
		return TradeResult{}, err
	}

	e.enterRestrictionMode(amm.ID())

	if e.metrics != nil {
		e.metrics.Liquidations.WithLabelValues(amm.ID()).Inc()
		e.metrics.LiquidationFees.WithLabelValues(amm.ID()).Add(feeToLiquidator.Float64())
	}

	e.emit(&event.PositionLiquidated{
		Trader:          trader,
		Liquidator:      liquidator,
		Market:          amm.ID(),
		ClosedNotional:  res.ExchangedQuote,
		ClosedSize:      res.ExchangedSize.Abs(),
		FeeToLiquidator: feeToLiquidator,
		BadDebt:         totalBadDebt,
	})

	side := market.SideSell
	if res.ExchangedSize.IsPositive() {
		side = market.SideBuy
	}
	quoteReserve, baseReserve := amm.GetReserves()
	e.emit(&event.PositionChanged{
		Trader:             trader,
		Market:             amm.ID(),
		Side:               side,
		ExchangedNotional:  res.ExchangedQuote,
		ExchangedSize:      res.ExchangedSize,
		RealizedPnl:        res.RealizedPnl,
		BadDebt:            totalBadDebt,
		LiquidationPenalty: feeToLiquidator,
		FundingPayment:     res.FundingPayment,
		QuoteReserve:       quoteReserve,
		BaseReserve:        baseReserve,
	})

	res.BadDebt = totalBadDebt
	return res, nil
}

// SettlePosition pays a trader out of a shut-down market at its recorded
// settlement price. A zero settlement price returns exactly the margin.
func (e *Engine) SettlePosition(amm market.Amm, trader uuid.UUID) (err error) {
	start := time.Now()
	defer func() { e.observe("settle_position", start, err) }()

	e.mu.Lock()
	defer e.mu.Unlock()

	if err = e.requireAmm(amm, false); err != nil {
		return err
	}

	pos, err := e.getAdjusted(amm, trader)
	if err != nil {
		return err
	}
	if pos.IsFlat() {
		return fmt.Errorf("%w: %s/%s", ErrZeroPosition, amm.ID(), trader)
	}

	settlementPrice := amm.SettlementPrice()
	settledValue := pos.Margin
	if !settlementPrice.IsZero() {
		openPrice, perr := pos.OpenNotional.Div(pos.Size.Abs())
		if perr != nil {
			return perr
		}
		returned := pos.Size.
			Mul(settlementPrice.Dec().Sub(openPrice.Dec())).
			Add(pos.Margin.Dec())
		// A position whose loss exceeded its margin settles to nothing.
		settledValue = num.UZero()
		if returned.IsPositive() {
			settledValue = returned.Abs()
		}
	}

	e.ledger.Clear(amm.ID(), trader, e.block)

	if !settledValue.IsZero() {
		if err = e.withdraw(amm, trader, settledValue); err != nil {
			return err
		}
	}

	e.emit(&event.PositionSettled{Trader: trader, Market: amm.ID(), ValueMoved: settledValue})
	return nil
}

// PayFunding settles the market's funding period: the AMM computes the
// premium fraction, the cumulative history grows by it, and the system's
// net funding flow is squared against the backing reserve.
func (e *Engine) PayFunding(amm market.Amm) (err error) {
	start := time.Now()
	defer func() { e.observe("pay_funding", start, err) }()

	e.mu.Lock()
	defer e.mu.Unlock()

	if err = e.requireAmm(amm, true); err != nil {
		return err
	}

	premium, err := amm.SettleFunding()
	if err != nil {
		return fmt.Errorf("settle funding: %w", err)
	}

	cumulative := e.ledger.LatestPremiumFraction(amm.ID()).Add(premium)
	e.ledger.AppendPremiumFraction(amm.ID(), cumulative)

	// Net trader size x premium is what traders pay in aggregate. Positive
	// is system surplus, negative the reserve must cover.
	baseAssetDelta := amm.GetBaseAssetDelta()
	fundingCost := premium.Mul(baseAssetDelta)

	switch {
	case fundingCost.IsPositive():
		if err = e.transferToInsurance(amm, fundingCost.Abs()); err != nil {
			return err
		}
	case fundingCost.IsNegative():
		if err = e.insurance.Withdraw(amm.QuoteAsset(), fundingCost.Abs()); err != nil {
			return fmt.Errorf("reserve cover of funding cost: %w", err)
		}
	}

	if e.metrics != nil {
		e.metrics.FundingSettled.WithLabelValues(amm.ID()).Inc()
	}

	e.emit(&event.FundingSettled{
		Market:          amm.ID(),
		PremiumFraction: premium,
		BaseAssetDelta:  baseAssetDelta,
		FundingCost:     fundingCost,
	})

	e.log.Info().
		Str("market", amm.ID()).
		Str("premium_fraction", premium.String()).
		Str("funding_cost", fundingCost.String()).
		Msg("funding period settled")
	return nil
}
