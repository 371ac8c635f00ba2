package clearing

import (
	"fmt"

	"github.com/google/uuid"

	"clearinghouse/internal/market"
	"clearinghouse/internal/num"
)

// The helpers in this file are the engine's only token-movement paths.
// All run with the write lock held.

// transferFee charges the AMM's toll and spread on a trade notional. The
// trader pays both into custody; the spread is forwarded to the backing
// reserve and the toll to the fee pool. Returns the total fee charged.
func (e *Engine) transferFee(amm market.Amm, trader uuid.UUID, notional num.UDec) (num.UDec, error) {
	toll, spread, err := amm.CalcFee(notional)
	if err != nil {
		return num.UZero(), fmt.Errorf("calc fee: %w", err)
	}

	total := toll.Add(spread)
	if total.IsZero() {
		return num.UZero(), nil
	}
	// A non-zero toll with no pool configured must fail before any token
	// moves.
	if !toll.IsZero() && e.feePool == nil {
		return num.UZero(), ErrNoFeePool
	}

	token := amm.QuoteAsset()
	if err := e.vault.PullFromTrader(token, trader, total); err != nil {
		return num.UZero(), fmt.Errorf("pull fee from trader: %w", err)
	}

	if !spread.IsZero() {
		if err := e.vault.PushToInsurance(token, spread); err != nil {
			return num.UZero(), fmt.Errorf("route spread to reserve: %w", err)
		}
	}
	if !toll.IsZero() {
		if err := e.vault.PushToFeePool(token, toll); err != nil {
			return num.UZero(), fmt.Errorf("route toll to fee pool: %w", err)
		}
		if err := e.feePool.NotifyFeeReceived(token, toll); err != nil {
			return num.UZero(), fmt.Errorf("notify fee pool: %w", err)
		}
	}
	return total, nil
}

// withdraw pays a trader out of custody. A custody shortfall is fronted by
// the backing reserve and remembered as prepaid bad debt, to be offset
// against the next realized shortfall instead of hitting the reserve twice.
func (e *Engine) withdraw(amm market.Amm, trader uuid.UUID, amount num.UDec) error {
	if amount.IsZero() {
		return nil
	}
	token := amm.QuoteAsset()

	if bal := e.vault.Balance(token); bal.LessThan(amount) {
		shortfall, err := amount.Sub(bal)
		if err != nil {
			return err
		}
		if err := e.insurance.Withdraw(token, shortfall); err != nil {
			return fmt.Errorf("reserve front of %s %s: %w", shortfall, token, err)
		}
		e.setPrepaidBadDebt(token, e.prepaidBadDebt[token].Add(shortfall))
		e.log.Warn().
			Str("token", token).
			Str("shortfall", shortfall.String()).
			Str("trader", trader.String()).
			Msg("custody shortfall fronted by reserve")
	}

	if err := e.vault.PushToTrader(token, trader, amount); err != nil {
		return fmt.Errorf("push to trader: %w", err)
	}
	return nil
}

// realizeBadDebt funds a realized shortfall: offset against the token's
// prepaid bad-debt balance first, pull only the remainder from the reserve.
func (e *Engine) realizeBadDebt(amm market.Amm, badDebt num.UDec) error {
	if badDebt.IsZero() {
		return nil
	}
	token := amm.QuoteAsset()

	prepaid := e.prepaidBadDebt[token]
	if !prepaid.LessThan(badDebt) {
		rest, err := prepaid.Sub(badDebt)
		if err != nil {
			return err
		}
		e.setPrepaidBadDebt(token, rest)
	} else {
		need, err := badDebt.Sub(prepaid)
		if err != nil {
			return err
		}
		e.setPrepaidBadDebt(token, num.UZero())
		if err := e.insurance.Withdraw(token, need); err != nil {
			return fmt.Errorf("reserve cover of %s %s: %w", need, token, err)
		}
	}

	if e.metrics != nil {
		e.metrics.BadDebtRealized.WithLabelValues(token).Add(badDebt.Float64())
	}
	e.log.Warn().
		Str("token", token).
		Str("bad_debt", badDebt.String()).
		Msg("bad debt realized")
	return nil
}

// transferToInsurance moves surplus to the backing reserve, capped at the
// custody balance so rounding dust never turns a surplus sweep into a failure.
func (e *Engine) transferToInsurance(amm market.Amm, amount num.UDec) error {
	if amount.IsZero() {
		return nil
	}
	token := amm.QuoteAsset()

	capped := num.MinU(amount, e.vault.Balance(token))
	if capped.IsZero() {
		return nil
	}
	if err := e.vault.PushToInsurance(token, capped); err != nil {
		return fmt.Errorf("push to reserve: %w", err)
	}
	return nil
}

func (e *Engine) setPrepaidBadDebt(token string, v num.UDec) {
	e.prepaidBadDebt[token] = v
	if e.metrics != nil {
		e.metrics.PrepaidBadDebt.WithLabelValues(token).Set(v.Float64())
	}
}
