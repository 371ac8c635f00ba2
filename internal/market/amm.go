package market

import (
	"clearinghouse/internal/num"
)

// Direction is the trade direction relative to the AMM's base-asset pool.
type Direction int32

const (
	// AddToAmm sells base asset into the pool (short opens, long closes).
	AddToAmm Direction = iota
	// RemoveFromAmm buys base asset out of the pool (long opens, short closes).
	RemoveFromAmm
)

func (d Direction) String() string {
	switch d {
	case AddToAmm:
		return "AddToAmm"
	case RemoveFromAmm:
		return "RemoveFromAmm"
	default:
		return "Unknown"
	}
}

// Side is the trader-facing direction of an order.
type Side int32

const (
	SideBuy Side = iota
	SideSell
)

func (s Side) String() string {
	switch s {
	case SideBuy:
		return "Buy"
	case SideSell:
		return "Sell"
	default:
		return "Unknown"
	}
}

// Amm is the pricing/liquidity engine a market clears against. The engine
// consumes this contract; it never implements swap or curve math itself.
type Amm interface {
	// ID uniquely identifies the market this AMM backs.
	ID() string

	// QuoteAsset returns the quote token symbol (margin denomination).
	QuoteAsset() string

	// Open reports whether the market accepts trades. A shut-down market
	// only supports settlement.
	Open() bool

	// SettlementPrice is the fixed price recorded at shutdown; zero means
	// traders recover exactly their margin.
	SettlementPrice() num.UDec

	// SwapInput trades an exact quote amount for base asset. baseLimit is
	// the trader's slippage bound on the base amount received (zero = no
	// bound).
	SwapInput(dir Direction, quoteAmount, baseLimit num.UDec) (num.UDec, error)

	// SwapOutput trades an exact base amount for quote asset. quoteLimit is
	// the trader's slippage bound; skipFluctuationCheck bypasses the AMM's
	// per-block price-fluctuation guard (liquidation and reversal paths).
	SwapOutput(dir Direction, baseAmount, quoteLimit num.UDec, skipFluctuationCheck bool) (num.UDec, error)

	// GetOutputPrice quotes, without trading, the quote amount a base-asset
	// swap would produce at the current spot reserves.
	GetOutputPrice(dir Direction, baseAmount num.UDec) (num.UDec, error)

	// GetOutputTwap is GetOutputPrice over the AMM's time-weighted window.
	GetOutputTwap(dir Direction, baseAmount num.UDec) (num.UDec, error)

	// GetCumulativePositionMultiplier returns the current liquidity-rebasing
	// multiplier. Stored position sizes are relative to the multiplier value
	// captured when they were last written.
	GetCumulativePositionMultiplier() num.UDec

	// GetMaxHoldingBaseAsset returns the per-trader position cap in base
	// asset; zero means uncapped.
	GetMaxHoldingBaseAsset() num.UDec

	// CalcFee splits the fee on a trade notional into toll and spread.
	CalcFee(notional num.UDec) (toll, spread num.UDec, err error)

	// GetReserves returns the current (quote, base) pool reserves.
	GetReserves() (quote, base num.UDec)

	// SettleFunding closes the current funding period and returns its
	// premium fraction.
	SettleFunding() (num.Dec, error)

	// GetBaseAssetDelta returns the net signed trader position size
	// accumulated this funding period.
	GetBaseAssetDelta() num.Dec
}
