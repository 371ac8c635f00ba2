package event

import (
	"github.com/google/uuid"

	"clearinghouse/internal/market"
	"clearinghouse/internal/num"
)

// PositionChanged is emitted on every open, increase, reduce, close, and
// reverse. It carries the literal computed values of the transition so the
// event stream alone reconstructs the trade.
type PositionChanged struct {
	Trader             uuid.UUID
	Market             string
	Side               market.Side
	Margin             num.UDec
	ExchangedNotional  num.UDec
	ExchangedSize      num.Dec
	Fee                num.UDec
	PositionSizeAfter  num.Dec
	RealizedPnl        num.Dec
	UnrealizedPnlAfter num.Dec
	BadDebt            num.UDec
	LiquidationPenalty num.UDec
	FundingPayment     num.Dec
	QuoteReserve       num.UDec
	BaseReserve        num.UDec
}

func (e *PositionChanged) EventType() Type  { return TypePositionChanged }
func (e *PositionChanged) MarketID() string { return e.Market }

// PositionAdjusted is emitted when a stored position size is rescaled to the
// AMM's current liquidity multiplier.
type PositionAdjusted struct {
	Trader            uuid.UUID
	Market            string
	NewPositionSize   num.Dec
	OldLiquidityBasis num.UDec
	NewLiquidityBasis num.UDec
}

func (e *PositionAdjusted) EventType() Type  { return TypePositionAdjusted }
func (e *PositionAdjusted) MarketID() string { return e.Market }

// PositionSettled is emitted when a position is settled after market
// shutdown.
type PositionSettled struct {
	Trader     uuid.UUID
	Market     string
	ValueMoved num.UDec
}

func (e *PositionSettled) EventType() Type  { return TypePositionSettled }
func (e *PositionSettled) MarketID() string { return e.Market }

// PositionLiquidated is emitted once per liquidation, after the close.
type PositionLiquidated struct {
	Trader          uuid.UUID
	Liquidator      uuid.UUID
	Market          string
	ClosedNotional  num.UDec
	ClosedSize      num.UDec
	FeeToLiquidator num.UDec
	BadDebt         num.UDec
}

func (e *PositionLiquidated) EventType() Type  { return TypePositionLiquidated }
func (e *PositionLiquidated) MarketID() string { return e.Market }
