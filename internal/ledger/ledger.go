package ledger

import (
	"fmt"

	"github.com/google/uuid"

	"clearinghouse/internal/event"
	"clearinghouse/internal/market"
	"clearinghouse/internal/num"
)

// PositionLedger owns every Position record and each market's funding
// history and restriction marker. It is not synchronized; the clearing
// engine serializes all access.
type PositionLedger struct {
	positions map[Key]Position
	markets   map[string]*marketState
}

// marketState is the per-market funding and restriction bookkeeping.
type marketState struct {
	// restrictionBlock is the last block in which a bad-debt-producing
	// close or a liquidation occurred. Zero = none.
	restrictionBlock uint64

	// premiumFractions is the append-only cumulative funding history.
	premiumFractions []num.Dec
}

func NewPositionLedger() *PositionLedger {
	return &PositionLedger{
		positions: make(map[Key]Position),
		markets:   make(map[string]*marketState),
	}
}

func (l *PositionLedger) market(id string) *marketState {
	ms := l.markets[id]
	if ms == nil {
		ms = &marketState{}
		l.markets[id] = ms
	}
	return ms
}

// Get returns the stored record, or a fresh flat record whose liquidity
// basis is the AMM's current multiplier. Initializing the basis on first
// read keeps brand-new positions out of the rebasing math entirely. Flat
// stored records also get their basis refreshed, since their size carries
// no scale to migrate.
func (l *PositionLedger) Get(amm market.Amm, trader uuid.UUID) Position {
	key := Key{Market: amm.ID(), Trader: trader}
	pos, ok := l.positions[key]
	if !ok || pos.IsFlat() {
		pos.LiquidityBasis = amm.GetCumulativePositionMultiplier()
	}
	return pos
}

// AdjustedView returns the position rescaled to the AMM's current liquidity
// multiplier without persisting anything. Query paths use this directly.
func (l *PositionLedger) AdjustedView(amm market.Amm, trader uuid.UUID) (Position, bool, error) {
	pos := l.Get(amm, trader)
	if pos.IsFlat() {
		return pos, false, nil
	}

	current := amm.GetCumulativePositionMultiplier()
	if current.Equal(pos.LiquidityBasis) {
		return pos, false, nil
	}
	if pos.LiquidityBasis.IsZero() {
		return Position{}, false, fmt.Errorf("position %s/%s has zero liquidity basis", amm.ID(), trader)
	}

	newSize, err := pos.Size.Mul(current.Dec()).Div(pos.LiquidityBasis.Dec())
	if err != nil {
		return Position{}, false, err
	}

	pos.Size = newSize
	pos.LiquidityBasis = current
	return pos, true, nil
}

// GetAdjusted is the ledger's mutating read path: it applies any pending
// liquidity rescaling, persists the corrected record immediately, and
// returns the adjustment notification for the caller to emit. Later margin
// and PnL math in the same call depends on the corrected size, so the write
// cannot be left to the caller.
func (l *PositionLedger) GetAdjusted(amm market.Amm, trader uuid.UUID) (Position, *event.PositionAdjusted, error) {
	old := l.Get(amm, trader)

	pos, changed, err := l.AdjustedView(amm, trader)
	if err != nil {
		return Position{}, nil, err
	}
	if !changed {
		return pos, nil, nil
	}

	l.positions[Key{Market: amm.ID(), Trader: trader}] = pos

	return pos, &event.PositionAdjusted{
		Trader:            trader,
		Market:            amm.ID(),
		NewPositionSize:   pos.Size,
		OldLiquidityBasis: old.LiquidityBasis,
		NewLiquidityBasis: pos.LiquidityBasis,
	}, nil
}

// Set overwrites the stored record.
func (l *PositionLedger) Set(marketID string, trader uuid.UUID, pos Position) {
	l.positions[Key{Market: marketID, Trader: trader}] = pos
}

// Clear resets the record to flat but stamps the clearing block, so
// restriction checks still see the mutation.
func (l *PositionLedger) Clear(marketID string, trader uuid.UUID, block uint64) {
	l.positions[Key{Market: marketID, Trader: trader}] = Position{BlockTag: block}
}

// BlockTag returns the stored record's last-mutation block, zero if none.
func (l *PositionLedger) BlockTag(marketID string, trader uuid.UUID) uint64 {
	return l.positions[Key{Market: marketID, Trader: trader}].BlockTag
}

// LatestPremiumFraction returns the last cumulative funding value for the
// market, zero if no funding period has settled yet.
func (l *PositionLedger) LatestPremiumFraction(marketID string) num.Dec {
	ms := l.markets[marketID]
	if ms == nil || len(ms.premiumFractions) == 0 {
		return num.Zero()
	}
	return ms.premiumFractions[len(ms.premiumFractions)-1]
}

// AppendPremiumFraction appends a settled funding value. History only grows.
func (l *PositionLedger) AppendPremiumFraction(marketID string, f num.Dec) {
	ms := l.market(marketID)
	ms.premiumFractions = append(ms.premiumFractions, f)
}

// PremiumFractionCount returns the funding history length for a market.
func (l *PositionLedger) PremiumFractionCount(marketID string) int {
	ms := l.markets[marketID]
	if ms == nil {
		return 0
	}
	return len(ms.premiumFractions)
}

// RestrictionBlock returns the market's restriction marker, zero if unset.
func (l *PositionLedger) RestrictionBlock(marketID string) uint64 {
	ms := l.markets[marketID]
	if ms == nil {
		return 0
	}
	return ms.restrictionBlock
}

// SetRestrictionBlock marks the market restricted for the given block.
// Idempotent within a block.
func (l *PositionLedger) SetRestrictionBlock(marketID string, block uint64) bool {
	ms := l.market(marketID)
	if ms.restrictionBlock == block {
		return false
	}
	ms.restrictionBlock = block
	return true
}
