package ledger

import (
	"github.com/google/uuid"

	"clearinghouse/internal/num"
)

// Position is a trader's isolated-margin exposure in one market.
type Position struct {
	// Size in base-asset units. Positive = long, negative = short, zero = flat.
	Size num.Dec

	// Margin is the collateral currently allocated to the position.
	Margin num.UDec

	// OpenNotional is the quote-asset cost basis.
	OpenNotional num.UDec

	// LastPremiumFraction is the cumulative funding value recorded at the
	// last mutation.
	LastPremiumFraction num.Dec

	// LiquidityBasis is the AMM's cumulative position multiplier captured at
	// the last mutation. Size is expressed relative to it.
	LiquidityBasis num.UDec

	// BlockTag is the block height of the last mutation. Survives Clear so
	// restriction-mode checks remain accurate after a close.
	BlockTag uint64
}

// IsFlat returns true if the position has no exposure.
func (p Position) IsFlat() bool {
	return p.Size.IsZero()
}

// SideSign returns +1 for long, -1 for short, 0 for flat.
func (p Position) SideSign() int {
	switch {
	case p.Size.IsPositive():
		return 1
	case p.Size.IsNegative():
		return -1
	default:
		return 0
	}
}

// Key identifies a position record.
type Key struct {
	Market string
	Trader uuid.UUID
}
