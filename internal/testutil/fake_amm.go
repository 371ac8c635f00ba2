package testutil

import (
	"fmt"

	"clearinghouse/internal/market"
	"clearinghouse/internal/num"
)

// FakeAmm is a fixed-price AMM for engine tests. Swaps convert between
// quote and base at Price with no slippage, so expected values in tests are
// exact. Mutate the public fields between operations to simulate price
// moves, funding periods, and liquidity rebasing.
type FakeAmm struct {
	MarketID string
	Quote    string
	IsOpen   bool

	// Price is quote per base at spot. TwapPrice zero means TWAP == spot.
	Price     num.UDec
	TwapPrice num.UDec

	TollRatio   num.UDec
	SpreadRatio num.UDec

	Multiplier num.UDec
	MaxHolding num.UDec
	Settlement num.UDec

	// Premium is returned by the next SettleFunding call.
	Premium   num.Dec
	BaseDelta num.Dec

	QuoteRes num.UDec
	BaseRes  num.UDec

	// SwapErr, when set, fails the next swap.
	SwapErr error
}

func NewFakeAmm(marketID, quote, price string) *FakeAmm {
	return &FakeAmm{
		MarketID:   marketID,
		Quote:      quote,
		IsOpen:     true,
		Price:      num.MustUFromString(price),
		Multiplier: num.UOne(),
	}
}

func (a *FakeAmm) ID() string                       { return a.MarketID }
func (a *FakeAmm) QuoteAsset() string               { return a.Quote }
func (a *FakeAmm) Open() bool                       { return a.IsOpen }
func (a *FakeAmm) SettlementPrice() num.UDec        { return a.Settlement }
func (a *FakeAmm) GetBaseAssetDelta() num.Dec       { return a.BaseDelta }
func (a *FakeAmm) GetMaxHoldingBaseAsset() num.UDec { return a.MaxHolding }

func (a *FakeAmm) GetCumulativePositionMultiplier() num.UDec { return a.Multiplier }

func (a *FakeAmm) SwapInput(dir market.Direction, quoteAmount, baseLimit num.UDec) (num.UDec, error) {
	if a.SwapErr != nil {
		return num.UZero(), a.SwapErr
	}
	base, err := quoteAmount.Div(a.Price)
	if err != nil {
		return num.UZero(), err
	}
	if !baseLimit.IsZero() {
		// Buying base: the limit is the least acceptable fill. Selling: the
		// most base the trader will part with.
		if dir == market.RemoveFromAmm && base.LessThan(baseLimit) {
			return num.UZero(), fmt.Errorf("base out %s below limit %s", base, baseLimit)
		}
		if dir == market.AddToAmm && base.GreaterThan(baseLimit) {
			return num.UZero(), fmt.Errorf("base in %s above limit %s", base, baseLimit)
		}
	}
	return base, nil
}

func (a *FakeAmm) SwapOutput(dir market.Direction, baseAmount, quoteLimit num.UDec, _ bool) (num.UDec, error) {
	if a.SwapErr != nil {
		return num.UZero(), a.SwapErr
	}
	quote := baseAmount.Mul(a.Price)
	if !quoteLimit.IsZero() {
		// Selling base: the limit is the least quote acceptable. Buying base
		// back: the most quote the trader will pay.
		if dir == market.AddToAmm && quote.LessThan(quoteLimit) {
			return num.UZero(), fmt.Errorf("quote out %s below limit %s", quote, quoteLimit)
		}
		if dir == market.RemoveFromAmm && quote.GreaterThan(quoteLimit) {
			return num.UZero(), fmt.Errorf("quote in %s above limit %s", quote, quoteLimit)
		}
	}
	return quote, nil
}

func (a *FakeAmm) GetOutputPrice(_ market.Direction, baseAmount num.UDec) (num.UDec, error) {
	return baseAmount.Mul(a.Price), nil
}

func (a *FakeAmm) GetOutputTwap(_ market.Direction, baseAmount num.UDec) (num.UDec, error) {
	price := a.TwapPrice
	if price.IsZero() {
		price = a.Price
	}
	return baseAmount.Mul(price), nil
}

func (a *FakeAmm) CalcFee(notional num.UDec) (num.UDec, num.UDec, error) {
	return notional.Mul(a.TollRatio), notional.Mul(a.SpreadRatio), nil
}

func (a *FakeAmm) GetReserves() (num.UDec, num.UDec) {
	return a.QuoteRes, a.BaseRes
}

func (a *FakeAmm) SettleFunding() (num.Dec, error) {
	return a.Premium, nil
}
