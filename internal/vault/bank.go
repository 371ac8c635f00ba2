// Package vault provides an in-process token custody backing the engine's
// Vault, InsuranceFund, and FeePool contracts. It is the deployment used by
// tests and single-process setups; a production deployment would put a real
// asset bridge behind the same interfaces.
package vault

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"clearinghouse/internal/num"
)

// ErrInsufficientFunds is returned when a movement exceeds the source
// balance.
var ErrInsufficientFunds = fmt.Errorf("insufficient funds")

type account struct {
	token  string
	trader uuid.UUID
}

// Bank keeps every balance the engine moves tokens between: per-trader
// wallets, the engine's custody, the backing reserve, and the fee pool.
// One Bank instance is wired into the engine as all three collaborators.
type Bank struct {
	mu sync.Mutex

	traders   map[account]num.UDec
	custody   map[string]num.UDec
	insurance map[string]num.UDec
	feePool   map[string]num.UDec

	// markets the reserve is willing to back
	markets map[string]struct{}
}

func NewBank() *Bank {
	return &Bank{
		traders:   make(map[account]num.UDec),
		custody:   make(map[string]num.UDec),
		insurance: make(map[string]num.UDec),
		feePool:   make(map[string]num.UDec),
		markets:   make(map[string]struct{}),
	}
}

// --- Funding and registration (operator surface) ---

// FundTrader credits a trader's wallet.
func (b *Bank) FundTrader(token string, trader uuid.UUID, amount num.UDec) {
	b.mu.Lock()
	defer b.mu.Unlock()
	key := account{token: token, trader: trader}
	b.traders[key] = b.traders[key].Add(amount)
}

// FundInsurance credits the backing reserve.
func (b *Bank) FundInsurance(token string, amount num.UDec) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.insurance[token] = b.insurance[token].Add(amount)
}

// RegisterMarket marks a market as backed by the reserve.
func (b *Bank) RegisterMarket(marketID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.markets[marketID] = struct{}{}
}

// --- market.Vault ---

func (b *Bank) Balance(token string) num.UDec {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.custody[token]
}

func (b *Bank) PullFromTrader(token string, trader uuid.UUID, amount num.UDec) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	key := account{token: token, trader: trader}
	rest, err := b.traders[key].Sub(amount)
	if err != nil {
		return fmt.Errorf("%w: trader %s has %s %s, need %s",
			ErrInsufficientFunds, trader, b.traders[key], token, amount)
	}
	b.traders[key] = rest
	b.custody[token] = b.custody[token].Add(amount)
	return nil
}

func (b *Bank) PushToTrader(token string, trader uuid.UUID, amount num.UDec) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	rest, err := b.custody[token].Sub(amount)
	if err != nil {
		return fmt.Errorf("%w: custody has %s %s, need %s",
			ErrInsufficientFunds, b.custody[token], token, amount)
	}
	b.custody[token] = rest
	key := account{token: token, trader: trader}
	b.traders[key] = b.traders[key].Add(amount)
	return nil
}

func (b *Bank) PushToInsurance(token string, amount num.UDec) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	rest, err := b.custody[token].Sub(amount)
	if err != nil {
		return fmt.Errorf("%w: custody has %s %s, need %s",
			ErrInsufficientFunds, b.custody[token], token, amount)
	}
	b.custody[token] = rest
	b.insurance[token] = b.insurance[token].Add(amount)
	return nil
}

func (b *Bank) PushToFeePool(token string, amount num.UDec) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	rest, err := b.custody[token].Sub(amount)
	if err != nil {
		return fmt.Errorf("%w: custody has %s %s, need %s",
			ErrInsufficientFunds, b.custody[token], token, amount)
	}
	b.custody[token] = rest
	b.feePool[token] = b.feePool[token].Add(amount)
	return nil
}

// --- market.InsuranceFund ---

// Withdraw moves reserve funds into the engine's custody.
func (b *Bank) Withdraw(token string, amount num.UDec) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	rest, err := b.insurance[token].Sub(amount)
	if err != nil {
		return fmt.Errorf("%w: reserve has %s %s, need %s",
			ErrInsufficientFunds, b.insurance[token], token, amount)
	}
	b.insurance[token] = rest
	b.custody[token] = b.custody[token].Add(amount)
	return nil
}

func (b *Bank) IsRegisteredMarket(marketID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.markets[marketID]
	return ok
}

// --- market.FeePool ---

// NotifyFeeReceived acknowledges a toll transfer. The balance has already
// moved via PushToFeePool.
func (b *Bank) NotifyFeeReceived(token string, amount num.UDec) error {
	return nil
}

// --- Inspection ---

func (b *Bank) TraderBalance(token string, trader uuid.UUID) num.UDec {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.traders[account{token: token, trader: trader}]
}

func (b *Bank) InsuranceBalance(token string) num.UDec {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.insurance[token]
}

func (b *Bank) FeePoolBalance(token string) num.UDec {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.feePool[token]
}
