package clearing

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"clearinghouse/internal/event"
	"clearinghouse/internal/ledger"
	"clearinghouse/internal/market"
	"clearinghouse/internal/num"
)

// TradeResult carries the computed values of one position transition.
// Helper legs build partial results; the public operations merge and
// persist them.
type TradeResult struct {
	// Position is the record after the transition (flat after a close).
	Position ledger.Position

	// ExchangedQuote is the quote notional traded against the AMM.
	ExchangedQuote num.UDec

	// ExchangedSize is the signed base size traded: positive bought,
	// negative sold.
	ExchangedSize num.Dec

	// RealizedPnl realized by the reduced or closed portion.
	RealizedPnl num.Dec

	// UnrealizedPnlAfter remains on the surviving portion.
	UnrealizedPnlAfter num.Dec

	// BadDebt is margin shortfall the reserve must cover.
	BadDebt num.UDec

	// FundingPayment settled into the position by this transition.
	FundingPayment num.Dec

	// MarginToVault is the signed custody movement: positive pulls from the
	// trader, negative pays out.
	MarginToVault num.Dec

	// Fee is the total toll+spread charged.
	Fee num.UDec
}

func swapDirection(side market.Side) market.Direction {
	if side == market.SideBuy {
		return market.RemoveFromAmm
	}
	return market.AddToAmm
}

func signedSize(side market.Side, base num.UDec) num.Dec {
	if side == market.SideBuy {
		return base.Dec()
	}
	return base.Dec().Neg()
}

// OpenPosition opens, increases, reduces, or reverses the trader's position.
// quoteMargin is the collateral committed; the traded notional is
// quoteMargin x leverage. baseLimit bounds the base amount received (opens)
// or sold (reductions); zero disables the bound.
func (e *Engine) OpenPosition(amm market.Amm, side market.Side, trader uuid.UUID, quoteMargin, leverage, baseLimit num.UDec) (res TradeResult, err error) {
	start := time.Now()
	defer func() { e.observe("open_position", start, err) }()

	e.mu.Lock()
	defer e.mu.Unlock()

	if err = e.requireAmm(amm, true); err != nil {
		return TradeResult{}, err
	}
	if err = requireNonZero(quoteMargin, "quote margin"); err != nil {
		return TradeResult{}, err
	}
	if err = requireNonZero(leverage, "leverage"); err != nil {
		return TradeResult{}, err
	}
	// 1/leverage is the margin ratio the trade opens at; it may not start
	// below the initial requirement.
	openRatio, err := num.UOne().Div(leverage)
	if err != nil {
		return TradeResult{}, err
	}
	if openRatio.LessThan(e.params.InitMarginRatio) {
		return TradeResult{}, fmt.Errorf("%w: leverage %s exceeds cap %s",
			ErrInsufficientMargin, leverage, e.params.InitMarginRatio)
	}
	if err = e.requireNotRestricted(amm, trader); err != nil {
		return TradeResult{}, err
	}
	// Catch a missing fee pool before anything mutates; transferFee rechecks
	// against the actual traded notional.
	if e.feePool == nil {
		toll, _, ferr := amm.CalcFee(quoteMargin.Mul(leverage))
		if ferr == nil && !toll.IsZero() {
			return TradeResult{}, ErrNoFeePool
		}
	}

	prior, err := e.getAdjusted(amm, trader)
	if err != nil {
		return TradeResult{}, err
	}
	isNewPosition := prior.IsFlat()
	sameSide := (prior.Size.IsPositive() && side == market.SideBuy) ||
		(prior.Size.IsNegative() && side == market.SideSell)

	if isNewPosition || sameSide {
		openNotional := quoteMargin.Mul(leverage)
		res, err = e.increasePosition(amm, side, trader, openNotional, baseLimit, leverage)
	} else {
		res, err = e.openReversePosition(amm, side, trader, quoteMargin, leverage, baseLimit)
	}
	if err != nil {
		return TradeResult{}, err
	}

	// Both refusal checks run on the computed result, before the ledger
	// write: a refused trade must leave the stored position untouched.
	//
	// A reduce that leaves exposure must stay solvent; a fresh open already
	// proved its ratio via the leverage cap.
	if !isNewPosition && !res.Position.IsFlat() {
		_, pnl, perr := preferencePositionNotionalAndUnrealizedPnl(amm, res.Position)
		if perr != nil {
			return TradeResult{}, perr
		}
		ratio, rerr := marginRatio(res.Position, e.ledger.LatestPremiumFraction(amm.ID()), pnl)
		if rerr != nil {
			return TradeResult{}, rerr
		}
		if ratio.LessThan(e.params.MaintenanceMarginRatio.Dec()) {
			return TradeResult{}, fmt.Errorf("%w: ratio %s after trade, need %s",
				ErrInsufficientMargin, ratio, e.params.MaintenanceMarginRatio)
		}
	}

	// Trades never mint bad debt; only liquidations and forced closes may.
	if !res.BadDebt.IsZero() {
		return TradeResult{}, fmt.Errorf("%w: %s", ErrBadDebt, res.BadDebt)
	}

	if res.Position.IsFlat() {
		e.ledger.Clear(amm.ID(), trader, e.block)
	} else {
		e.ledger.Set(amm.ID(), trader, res.Position)
	}

	token := amm.QuoteAsset()
	switch {
	case res.MarginToVault.IsPositive():
		pull, _ := res.MarginToVault.ToUnsigned()
		if err = e.vault.PullFromTrader(token, trader, pull); err != nil {
			return TradeResult{}, fmt.Errorf("pull margin from trader: %w", err)
		}
		e.emit(&event.DepositReceived{Trader: trader, Market: amm.ID(), Token: token, Amount: pull})
	case res.MarginToVault.IsNegative():
		if err = e.withdraw(amm, trader, res.MarginToVault.Abs()); err != nil {
			return TradeResult{}, err
		}
	}

	res.Fee, err = e.transferFee(amm, trader, res.ExchangedQuote)
	if err != nil {
		return TradeResult{}, err
	}

	quoteReserve, baseReserve := amm.GetReserves()
	e.emit(&event.PositionChanged{
		Trader:             trader,
		Market:             amm.ID(),
		Side:               side,
		Margin:             res.Position.Margin,
		ExchangedNotional:  res.ExchangedQuote,
		ExchangedSize:      res.ExchangedSize,
		Fee:                res.Fee,
		PositionSizeAfter:  res.Position.Size,
		RealizedPnl:        res.RealizedPnl,
		UnrealizedPnlAfter: res.UnrealizedPnlAfter,
		BadDebt:            res.BadDebt,
		FundingPayment:     res.FundingPayment,
		QuoteReserve:       quoteReserve,
		BaseReserve:        baseReserve,
	})
	return res, nil
}

// increasePosition adds exposure on the position's side (or opens a fresh
// one). openNotional is already levered; the margin pulled from the trader
// is openNotional / leverage.
func (e *Engine) increasePosition(amm market.Amm, side market.Side, trader uuid.UUID, openNotional, baseLimit, leverage num.UDec) (TradeResult, error) {
	pos := e.ledger.Get(amm, trader)

	baseOut, err := amm.SwapInput(swapDirection(side), openNotional, baseLimit)
	if err != nil {
		return TradeResult{}, fmt.Errorf("swap input: %w", err)
	}
	exchangedSize := signedSize(side, baseOut)
	newSize := pos.Size.Add(exchangedSize)

	if cap := amm.GetMaxHoldingBaseAsset(); !cap.IsZero() && !e.isUnlimited(trader) {
		if newSize.Abs().GreaterThan(cap) {
			return TradeResult{}, fmt.Errorf("%w: %s > %s", ErrOverHoldingCap, newSize.Abs(), cap)
		}
	}

	marginDelta, err := openNotional.Div(leverage)
	if err != nil {
		return TradeResult{}, err
	}
	rm := calcRemainMargin(pos, e.ledger.LatestPremiumFraction(amm.ID()), marginDelta.Dec())

	_, unrealizedPnl, err := positionNotionalAndUnrealizedPnl(amm, pos, PnlSpot)
	if err != nil {
		return TradeResult{}, err
	}

	return TradeResult{
		Position: ledger.Position{
			Size:                newSize,
			Margin:              rm.Margin,
			OpenNotional:        pos.OpenNotional.Add(openNotional),
			LastPremiumFraction: rm.LatestPremiumFraction,
			LiquidityBasis:      pos.LiquidityBasis,
			BlockTag:            e.block,
		},
		ExchangedQuote:     openNotional,
		ExchangedSize:      exchangedSize,
		UnrealizedPnlAfter: unrealizedPnl,
		BadDebt:            rm.BadDebt,
		FundingPayment:     rm.FundingPayment,
		MarginToVault:      marginDelta.Dec(),
	}, nil
}

// openReversePosition trades against the position's side: a partial fill
// reduces it, a larger one closes and re-opens on the other side.
func (e *Engine) openReversePosition(amm market.Amm, side market.Side, trader uuid.UUID, quoteMargin, leverage, baseLimit num.UDec) (TradeResult, error) {
	openNotional := quoteMargin.Mul(leverage)

	pos := e.ledger.Get(amm, trader)
	oldNotional, unrealizedPnl, err := positionNotionalAndUnrealizedPnl(amm, pos, PnlSpot)
	if err != nil {
		return TradeResult{}, err
	}

	if !oldNotional.GreaterThan(openNotional) {
		return e.closeAndOpenReverse(amm, side, trader, quoteMargin, leverage, baseLimit)
	}

	// Reduce: trade the requested notional against the position.
	baseOut, err := amm.SwapInput(swapDirection(side), openNotional, baseLimit)
	if err != nil {
		return TradeResult{}, fmt.Errorf("swap input: %w", err)
	}
	exchangedSize := signedSize(side, baseOut)

	// Realize PnL pro rata to the share of the position sold off.
	realizedPnl := num.Zero()
	if !pos.Size.IsZero() {
		realizedPnl, err = unrealizedPnl.Mul(exchangedSize.Abs().Dec()).Div(pos.Size.Abs().Dec())
		if err != nil {
			return TradeResult{}, err
		}
	}

	rm := calcRemainMargin(pos, e.ledger.LatestPremiumFraction(amm.ID()), realizedPnl)
	unrealizedPnlAfter := unrealizedPnl.Sub(realizedPnl)

	// The surviving cost basis backs out the traded notional and the PnL
	// still unrealized; the formula differs by side because notional and
	// PnL point in opposite directions on a short.
	var remainNotional num.Dec
	if pos.Size.IsPositive() {
		remainNotional = oldNotional.Dec().Sub(openNotional.Dec()).Sub(unrealizedPnlAfter)
	} else {
		remainNotional = unrealizedPnlAfter.Add(oldNotional.Dec()).Sub(openNotional.Dec())
	}
	if !remainNotional.IsPositive() {
		return TradeResult{}, fmt.Errorf("%w: %s", ErrNonPositiveNotional, remainNotional)
	}

	return TradeResult{
		Position: ledger.Position{
			Size:                pos.Size.Add(exchangedSize),
			Margin:              rm.Margin,
			OpenNotional:        remainNotional.Abs(),
			LastPremiumFraction: rm.LatestPremiumFraction,
			LiquidityBasis:      pos.LiquidityBasis,
			BlockTag:            e.block,
		},
		ExchangedQuote:     openNotional,
		ExchangedSize:      exchangedSize,
		RealizedPnl:        realizedPnl,
		UnrealizedPnlAfter: unrealizedPnlAfter,
		BadDebt:            rm.BadDebt,
		FundingPayment:     rm.FundingPayment,
	}, nil
}

// closeAndOpenReverse closes the whole position and opens the leftover
// notional on the opposite side. The close leg must be clean: reversing an
// underwater position is refused.
func (e *Engine) closeAndOpenReverse(amm market.Amm, side market.Side, trader uuid.UUID, quoteMargin, leverage, baseLimit num.UDec) (TradeResult, error) {
	closeRes, err := e.closePositionLeg(amm, trader, num.UZero(), true)
	if err != nil {
		return TradeResult{}, err
	}
	if !closeRes.BadDebt.IsZero() {
		return TradeResult{}, fmt.Errorf("%w: cannot reverse an underwater position", ErrBadDebt)
	}

	openNotional, err := quoteMargin.Mul(leverage).Sub(closeRes.ExchangedQuote)
	if err != nil {
		return TradeResult{}, fmt.Errorf("close leg notional exceeds order notional: %w", err)
	}
	leftoverMargin, err := openNotional.Div(leverage)
	if err != nil {
		return TradeResult{}, err
	}
	// A leftover too small to fund any margin is dust: stop at the close.
	if leftoverMargin.IsZero() {
		return closeRes, nil
	}

	// The close leg already consumed part of the caller's base bound.
	openLimit := num.UZero()
	if !baseLimit.IsZero() {
		openLimit, err = baseLimit.Sub(closeRes.ExchangedSize.Abs())
		if err != nil {
			openLimit = num.UZero()
		}
	}

	openRes, err := e.increasePosition(amm, side, trader, openNotional, openLimit, leverage)
	if err != nil {
		return TradeResult{}, err
	}

	return TradeResult{
		Position:           openRes.Position,
		ExchangedQuote:     closeRes.ExchangedQuote.Add(openRes.ExchangedQuote),
		ExchangedSize:      closeRes.ExchangedSize.Add(openRes.ExchangedSize),
		RealizedPnl:        closeRes.RealizedPnl,
		UnrealizedPnlAfter: num.Zero(),
		BadDebt:            closeRes.BadDebt.Add(openRes.BadDebt),
		FundingPayment:     closeRes.FundingPayment.Add(openRes.FundingPayment),
		MarginToVault:      closeRes.MarginToVault.Add(openRes.MarginToVault),
	}, nil
}
