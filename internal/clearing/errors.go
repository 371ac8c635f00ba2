package clearing

import "errors"

// Every failure aborts the whole operation; callers match these with
// errors.Is. None are retried internally.
var (
	// Input validation
	ErrZeroInput           = errors.New("input amount is zero")
	ErrMarketNotOpen       = errors.New("market is not open")
	ErrMarketStillOpen     = errors.New("market is still open")
	ErrMarketNotRegistered = errors.New("market is not registered with the insurance fund")
	ErrZeroPosition        = errors.New("position size is zero")

	// Margin
	ErrBadDebt             = errors.New("operation produces bad debt")
	ErrInsufficientMargin  = errors.New("margin ratio below requirement")
	ErrNotLiquidatable     = errors.New("margin ratio above maintenance requirement")
	ErrOverHoldingCap      = errors.New("position exceeds max holding cap")
	ErrNonPositiveNotional = errors.New("residual open notional is not positive")

	// Ordering / abuse
	ErrRestricted = errors.New("market in restriction mode: position already mutated this block")

	// Collaborators
	ErrNoFeePool = errors.New("fee pool is unset")
)
