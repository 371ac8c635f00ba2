package clearing

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"clearinghouse/internal/event"
	"clearinghouse/internal/market"
	"clearinghouse/internal/num"
)

// AddMargin moves collateral from the trader into an existing position.
// Pending funding settles first; if the funding loss alone exceeds the
// position's margin plus the added amount, the call fails rather than
// booking bad debt on a deposit.
func (e *Engine) AddMargin(amm market.Amm, trader uuid.UUID, amount num.UDec) (err error) {
	start := time.Now()
	defer func() { e.observe("add_margin", start, err) }()

	e.mu.Lock()
	defer e.mu.Unlock()

	if err = e.requireAmm(amm, true); err != nil {
		return err
	}
	if err = requireNonZero(amount, "margin"); err != nil {
		return err
	}

	pos, err := e.getAdjusted(amm, trader)
	if err != nil {
		return err
	}
	if pos.IsFlat() {
		return fmt.Errorf("%w: %s/%s", ErrZeroPosition, amm.ID(), trader)
	}

	rm := calcRemainMargin(pos, e.ledger.LatestPremiumFraction(amm.ID()), amount.Dec())
	if !rm.BadDebt.IsZero() {
		return fmt.Errorf("%w: funding loss %s exceeds margin", ErrBadDebt, rm.FundingPayment)
	}

	token := amm.QuoteAsset()
	if err = e.vault.PullFromTrader(token, trader, amount); err != nil {
		return fmt.Errorf("pull margin from trader: %w", err)
	}

	pos.Margin = rm.Margin
	pos.LastPremiumFraction = rm.LatestPremiumFraction
	pos.BlockTag = e.block
	e.ledger.Set(amm.ID(), trader, pos)

	e.emit(&event.DepositReceived{Trader: trader, Market: amm.ID(), Token: token, Amount: amount})
	e.emit(&event.MarginChanged{
		Trader:         trader,
		Market:         amm.ID(),
		Amount:         amount.Dec(),
		FundingPayment: rm.FundingPayment,
	})
	return nil
}

// RemoveMargin returns collateral to the trader. The withdrawal must leave
// the position at or above the initial margin requirement, valued at the
// more favorable of spot and TWAP.
func (e *Engine) RemoveMargin(amm market.Amm, trader uuid.UUID, amount num.UDec) (err error) {
	start := time.Now()
	defer func() { e.observe("remove_margin", start, err) }()

	e.mu.Lock()
	defer e.mu.Unlock()

	if err = e.requireAmm(amm, true); err != nil {
		return err
	}
	if err = requireNonZero(amount, "margin"); err != nil {
		return err
	}

	pos, err := e.getAdjusted(amm, trader)
	if err != nil {
		return err
	}
	if pos.IsFlat() {
		return fmt.Errorf("%w: %s/%s", ErrZeroPosition, amm.ID(), trader)
	}

	rm := calcRemainMargin(pos, e.ledger.LatestPremiumFraction(amm.ID()), amount.Dec().Neg())
	if !rm.BadDebt.IsZero() {
		return fmt.Errorf("%w: withdrawal of %s exceeds remaining margin", ErrBadDebt, amount)
	}

	pos.Margin = rm.Margin
	pos.LastPremiumFraction = rm.LatestPremiumFraction

	_, pnl, err := preferencePositionNotionalAndUnrealizedPnl(amm, pos)
	if err != nil {
		return err
	}
	ratio, err := marginRatio(pos, rm.LatestPremiumFraction, pnl)
	if err != nil {
		return err
	}
	if ratio.LessThan(e.params.InitMarginRatio.Dec()) {
		return fmt.Errorf("%w: ratio %s after withdrawal, need %s",
			ErrInsufficientMargin, ratio, e.params.InitMarginRatio)
	}

	if err = e.withdraw(amm, trader, amount); err != nil {
		return err
	}

	pos.BlockTag = e.block
	e.ledger.Set(amm.ID(), trader, pos)

	e.emit(&event.MarginChanged{
		Trader:         trader,
		Market:         amm.ID(),
		Amount:         amount.Dec().Neg(),
		FundingPayment: rm.FundingPayment,
	})
	return nil
}
