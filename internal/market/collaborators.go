package market

import (
	"github.com/google/uuid"

	"clearinghouse/internal/num"
)

// InsuranceFund is the backing reserve that absorbs bad debt and funding
// losses.
type InsuranceFund interface {
	// Withdraw moves amount of token from the reserve into the vault.
	Withdraw(token string, amount num.UDec) error

	// IsRegisteredMarket reports whether the reserve backs the given market.
	IsRegisteredMarket(marketID string) bool
}

// FeePool receives toll fees. It may be unset; charging a non-zero toll
// with no pool configured is an error.
type FeePool interface {
	NotifyFeeReceived(token string, amount num.UDec) error
}

// Vault moves tokens between traders, the engine's custody balance, and the
// system collaborators. All amounts use the 18-digit fixed-point convention;
// implementations convert to native token precision.
type Vault interface {
	// Balance returns the engine's custody balance for token.
	Balance(token string) num.UDec

	// PullFromTrader moves amount from the trader into custody.
	PullFromTrader(token string, trader uuid.UUID, amount num.UDec) error

	// PushToTrader moves amount from custody to the trader.
	PushToTrader(token string, trader uuid.UUID, amount num.UDec) error

	// PushToInsurance moves amount from custody to the backing reserve.
	PushToInsurance(token string, amount num.UDec) error

	// PushToFeePool moves amount from custody to the fee pool.
	PushToFeePool(token string, amount num.UDec) error
}
