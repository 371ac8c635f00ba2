package clearing

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"clearinghouse/internal/event"
	"clearinghouse/internal/ledger"
	"clearinghouse/internal/market"
	"clearinghouse/internal/num"
	"clearinghouse/internal/observability"
)

// Engine is the position transition state machine. Every mutating call
// takes the write lock for its full duration, so each operation is atomic
// and totally ordered with respect to all others over the shared ledger.
// Queries take the read lock and never observe a half-applied transition.
type Engine struct {
	mu sync.RWMutex

	params    RiskParams
	unlimited map[uuid.UUID]struct{} // traders exempt from the holding cap

	ledger    *ledger.PositionLedger
	vault     market.Vault
	insurance market.InsuranceFund
	feePool   market.FeePool

	// prepaidBadDebt avoids a reserve round-trip per shortfall: once the
	// reserve has fronted a withdrawal, later bad debt is offset against
	// this balance first.
	prepaidBadDebt map[string]num.UDec

	block uint64
	seq   int64

	// persistCh gets a blocking send per event: no audit event is lost.
	// publishCh gets a non-blocking send: downstream consumers can rebuild
	// from the persisted log if they fall behind.
	persistCh chan<- event.Envelope
	publishCh chan<- event.Envelope

	log     zerolog.Logger
	metrics *observability.Metrics
}

// Config carries the engine's constructor dependencies.
type Config struct {
	Params    RiskParams
	Vault     market.Vault
	Insurance market.InsuranceFund
	FeePool   market.FeePool

	PersistCh chan<- event.Envelope
	PublishCh chan<- event.Envelope

	Logger  zerolog.Logger
	Metrics *observability.Metrics
}

func New(cfg Config) (*Engine, error) {
	if err := cfg.Params.Validate(); err != nil {
		return nil, fmt.Errorf("risk params: %w", err)
	}
	if cfg.Vault == nil || cfg.Insurance == nil {
		return nil, fmt.Errorf("vault and insurance fund are required")
	}

	return &Engine{
		params:         cfg.Params,
		unlimited:      make(map[uuid.UUID]struct{}),
		ledger:         ledger.NewPositionLedger(),
		vault:          cfg.Vault,
		insurance:      cfg.Insurance,
		feePool:        cfg.FeePool,
		prepaidBadDebt: make(map[string]num.UDec),
		persistCh:      cfg.PersistCh,
		publishCh:      cfg.PublishCh,
		log:            cfg.Logger,
		metrics:        cfg.Metrics,
	}, nil
}

// SetBlockHeight advances the ordering unit. The engine never reads a
// clock for ordering; the caller owns the notion of a block.
func (e *Engine) SetBlockHeight(h uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.block = h
	if e.metrics != nil {
		e.metrics.BlockHeight.Set(float64(h))
	}
}

// BlockHeight returns the current ordering unit.
func (e *Engine) BlockHeight() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.block
}

// emit wraps a payload in an envelope and fans it out. Called with the
// write lock held, so sequences are strictly increasing per operation order.
func (e *Engine) emit(evt event.Event) {
	e.seq++
	env := event.Envelope{
		Sequence:  e.seq,
		Block:     e.block,
		EventType: evt.EventType(),
		MarketID:  evt.MarketID(),
		Timestamp: time.Now(),
		Payload:   evt,
	}

	if e.metrics != nil {
		e.metrics.EventSeq.Set(float64(e.seq))
	}

	if e.persistCh != nil {
		e.persistCh <- env
	}
	if e.publishCh != nil {
		select {
		case e.publishCh <- env:
		default:
			if e.metrics != nil {
				e.metrics.PublishDrops.Inc()
			}
		}
	}
}

// getAdjusted is the engine's mutating position read: any pending
// liquidity rescaling is persisted and announced before the caller's math
// runs against the corrected size.
func (e *Engine) getAdjusted(amm market.Amm, trader uuid.UUID) (ledger.Position, error) {
	pos, adj, err := e.ledger.GetAdjusted(amm, trader)
	if err != nil {
		return ledger.Position{}, err
	}
	if adj != nil {
		e.emit(adj)
		if e.metrics != nil {
			e.metrics.PositionsAdjusted.WithLabelValues(amm.ID()).Inc()
		}
	}
	return pos, nil
}

// requireAmm validates the market's registration and open/closed state.
func (e *Engine) requireAmm(amm market.Amm, expectOpen bool) error {
	if !e.insurance.IsRegisteredMarket(amm.ID()) {
		return fmt.Errorf("%w: %s", ErrMarketNotRegistered, amm.ID())
	}
	if expectOpen && !amm.Open() {
		return fmt.Errorf("%w: %s", ErrMarketNotOpen, amm.ID())
	}
	if !expectOpen && amm.Open() {
		return fmt.Errorf("%w: %s", ErrMarketStillOpen, amm.ID())
	}
	return nil
}

func requireNonZero(v num.UDec, what string) error {
	if v.IsZero() {
		return fmt.Errorf("%w: %s", ErrZeroInput, what)
	}
	return nil
}

// requireNotRestricted blocks a trader's second sensitive action within the
// restriction block. Unrelated traders act normally.
func (e *Engine) requireNotRestricted(amm market.Amm, trader uuid.UUID) error {
	if e.ledger.RestrictionBlock(amm.ID()) != e.block {
		return nil
	}
	if e.ledger.BlockTag(amm.ID(), trader) == e.block {
		return fmt.Errorf("%w: trader %s, market %s, block %d", ErrRestricted, trader, amm.ID(), e.block)
	}
	return nil
}

// enterRestrictionMode marks the market restricted for the current block.
// Idempotent within a block; the event fires once.
func (e *Engine) enterRestrictionMode(marketID string) {
	if !e.ledger.SetRestrictionBlock(marketID, e.block) {
		return
	}
	e.emit(&event.RestrictionModeEntered{Market: marketID, Block: e.block})
	if e.metrics != nil {
		e.metrics.RestrictionMode.WithLabelValues(marketID).Inc()
	}
	e.log.Warn().Str("market", marketID).Uint64("block", e.block).
		Msg("market entered restriction mode")
}

func (e *Engine) observe(op string, start time.Time, err error) {
	if e.metrics == nil {
		return
	}
	e.metrics.OpDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err != nil {
		e.metrics.OpsRejected.WithLabelValues(op, rejectReason(err)).Inc()
	} else {
		e.metrics.OpsApplied.WithLabelValues(op).Inc()
	}
}

func rejectReason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrZeroInput):
		return "zero_input"
	case errors.Is(err, ErrMarketNotOpen), errors.Is(err, ErrMarketStillOpen), errors.Is(err, ErrMarketNotRegistered):
		return "market_state"
	case errors.Is(err, ErrZeroPosition):
		return "zero_position"
	case errors.Is(err, ErrBadDebt):
		return "bad_debt"
	case errors.Is(err, ErrInsufficientMargin):
		return "insufficient_margin"
	case errors.Is(err, ErrNotLiquidatable):
		return "not_liquidatable"
	case errors.Is(err, ErrOverHoldingCap):
		return "holding_cap"
	case errors.Is(err, ErrNonPositiveNotional):
		return "non_positive_notional"
	case errors.Is(err, ErrRestricted):
		return "restricted"
	case errors.Is(err, ErrNoFeePool):
		return "no_fee_pool"
	default:
		return "other"
	}
}

// --- Governance setters ---

// SetInitMarginRatio updates the leverage bound.
func (e *Engine) SetInitMarginRatio(r num.UDec) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	next := e.params
	next.InitMarginRatio = r
	if err := next.Validate(); err != nil {
		return err
	}
	e.params = next
	e.emit(&event.RiskParamChanged{Param: "init_margin_ratio", Ratio: r})
	return nil
}

// SetMaintenanceMarginRatio updates the liquidation threshold.
func (e *Engine) SetMaintenanceMarginRatio(r num.UDec) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	next := e.params
	next.MaintenanceMarginRatio = r
	if err := next.Validate(); err != nil {
		return err
	}
	e.params = next
	e.emit(&event.RiskParamChanged{Param: "maintenance_margin_ratio", Ratio: r})
	return nil
}

// SetLiquidationFeeRatio updates the liquidator's fee.
func (e *Engine) SetLiquidationFeeRatio(r num.UDec) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	next := e.params
	next.LiquidationFeeRatio = r
	if err := next.Validate(); err != nil {
		return err
	}
	e.params = next
	e.emit(&event.RiskParamChanged{Param: "liquidation_fee_ratio", Ratio: r})
	return nil
}

// SetUnlimitedHolding exempts (or re-subjects) a trader to the per-trader
// holding cap.
func (e *Engine) SetUnlimitedHolding(trader uuid.UUID, unlimited bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if unlimited {
		e.unlimited[trader] = struct{}{}
	} else {
		delete(e.unlimited, trader)
	}
}

func (e *Engine) isUnlimited(trader uuid.UUID) bool {
	_, ok := e.unlimited[trader]
	return ok
}

// Params returns a copy of the current risk parameters.
func (e *Engine) Params() RiskParams {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.params
}

// --- Queries (shared lock, never concurrent with a write) ---

// GetPosition returns the trader's position rescaled to the current
// liquidity multiplier, without persisting the adjustment.
func (e *Engine) GetPosition(amm market.Amm, trader uuid.UUID) (ledger.Position, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	pos, _, err := e.ledger.AdjustedView(amm, trader)
	return pos, err
}

// GetMarginRatio values the trader's position at the more favorable of
// spot and TWAP and returns its solvency ratio.
func (e *Engine) GetMarginRatio(amm market.Amm, trader uuid.UUID) (num.Dec, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.marginRatioLocked(amm, trader)
}

func (e *Engine) marginRatioLocked(amm market.Amm, trader uuid.UUID) (num.Dec, error) {
	pos, _, err := e.ledger.AdjustedView(amm, trader)
	if err != nil {
		return num.Zero(), err
	}
	if pos.IsFlat() {
		return num.Zero(), fmt.Errorf("%w: %s/%s", ErrZeroPosition, amm.ID(), trader)
	}

	_, pnl, err := preferencePositionNotionalAndUnrealizedPnl(amm, pos)
	if err != nil {
		return num.Zero(), err
	}
	return marginRatio(pos, e.ledger.LatestPremiumFraction(amm.ID()), pnl)
}

// GetPositionNotionalAndUnrealizedPnl values a position with the given
// option.
func (e *Engine) GetPositionNotionalAndUnrealizedPnl(amm market.Amm, trader uuid.UUID, opt PnlOption) (num.UDec, num.Dec, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	pos, _, err := e.ledger.AdjustedView(amm, trader)
	if err != nil {
		return num.UZero(), num.Zero(), err
	}
	return positionNotionalAndUnrealizedPnl(amm, pos, opt)
}

// GetPrepaidBadDebt returns the prepaid bad-debt balance for a token.
func (e *Engine) GetPrepaidBadDebt(token string) num.UDec {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.prepaidBadDebt[token]
}

// LatestPremiumFraction returns a market's current cumulative funding value.
func (e *Engine) LatestPremiumFraction(marketID string) num.Dec {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.ledger.LatestPremiumFraction(marketID)
}
