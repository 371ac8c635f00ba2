package vault_test

import (
	"errors"
	"testing"

	"github.com/google/uuid"

	"clearinghouse/internal/num"
	"clearinghouse/internal/vault"
)

func TestPullAndPushTrader(t *testing.T) {
	b := vault.NewBank()
	trader := uuid.New()
	b.FundTrader("USDC", trader, num.MustUFromString("100"))

	if err := b.PullFromTrader("USDC", trader, num.MustUFromString("60")); err != nil {
		t.Fatalf("PullFromTrader: %v", err)
	}
	if got := b.TraderBalance("USDC", trader); got.String() != "40" {
		t.Errorf("trader balance = %s, want 40", got)
	}
	if got := b.Balance("USDC"); got.String() != "60" {
		t.Errorf("custody = %s, want 60", got)
	}

	if err := b.PushToTrader("USDC", trader, num.MustUFromString("25")); err != nil {
		t.Fatalf("PushToTrader: %v", err)
	}
	if got := b.TraderBalance("USDC", trader); got.String() != "65" {
		t.Errorf("trader balance = %s, want 65", got)
	}
	if got := b.Balance("USDC"); got.String() != "35" {
		t.Errorf("custody = %s, want 35", got)
	}
}

func TestMovementsFailOnInsufficientFunds(t *testing.T) {
	b := vault.NewBank()
	trader := uuid.New()
	b.FundTrader("USDC", trader, num.MustUFromString("10"))

	if err := b.PullFromTrader("USDC", trader, num.MustUFromString("11")); !errors.Is(err, vault.ErrInsufficientFunds) {
		t.Errorf("over-pull error = %v, want ErrInsufficientFunds", err)
	}
	if err := b.PushToTrader("USDC", trader, num.MustUFromString("1")); !errors.Is(err, vault.ErrInsufficientFunds) {
		t.Errorf("empty-custody push error = %v, want ErrInsufficientFunds", err)
	}
	if err := b.PushToInsurance("USDC", num.MustUFromString("1")); !errors.Is(err, vault.ErrInsufficientFunds) {
		t.Errorf("empty-custody insurance push error = %v, want ErrInsufficientFunds", err)
	}
	if err := b.Withdraw("USDC", num.MustUFromString("1")); !errors.Is(err, vault.ErrInsufficientFunds) {
		t.Errorf("empty-reserve withdraw error = %v, want ErrInsufficientFunds", err)
	}

	// Failed movements leave balances intact.
	if got := b.TraderBalance("USDC", trader); got.String() != "10" {
		t.Errorf("trader balance = %s, want 10", got)
	}
	if !b.Balance("USDC").IsZero() {
		t.Errorf("custody = %s, want 0", b.Balance("USDC"))
	}
}

func TestReserveWithdrawMovesIntoCustody(t *testing.T) {
	b := vault.NewBank()
	b.FundInsurance("USDC", num.MustUFromString("100"))

	if err := b.Withdraw("USDC", num.MustUFromString("30")); err != nil {
		t.Fatalf("Withdraw: %v", err)
	}
	if got := b.InsuranceBalance("USDC"); got.String() != "70" {
		t.Errorf("reserve = %s, want 70", got)
	}
	if got := b.Balance("USDC"); got.String() != "30" {
		t.Errorf("custody = %s, want 30", got)
	}
}

func TestFeePoolTransfer(t *testing.T) {
	b := vault.NewBank()
	trader := uuid.New()
	b.FundTrader("USDC", trader, num.MustUFromString("5"))

	if err := b.PullFromTrader("USDC", trader, num.MustUFromString("5")); err != nil {
		t.Fatalf("PullFromTrader: %v", err)
	}
	if err := b.PushToFeePool("USDC", num.MustUFromString("2")); err != nil {
		t.Fatalf("PushToFeePool: %v", err)
	}
	if err := b.NotifyFeeReceived("USDC", num.MustUFromString("2")); err != nil {
		t.Fatalf("NotifyFeeReceived: %v", err)
	}
	if got := b.FeePoolBalance("USDC"); got.String() != "2" {
		t.Errorf("fee pool = %s, want 2", got)
	}
	if got := b.Balance("USDC"); got.String() != "3" {
		t.Errorf("custody = %s, want 3", got)
	}
}

func TestMarketRegistration(t *testing.T) {
	b := vault.NewBank()

	if b.IsRegisteredMarket("BTC-PERP") {
		t.Error("unregistered market reported registered")
	}
	b.RegisterMarket("BTC-PERP")
	if !b.IsRegisteredMarket("BTC-PERP") {
		t.Error("registered market reported unregistered")
	}
	if b.IsRegisteredMarket("ETH-PERP") {
		t.Error("other market reported registered")
	}
}

func TestBalancesIsolatedPerToken(t *testing.T) {
	b := vault.NewBank()
	trader := uuid.New()
	b.FundTrader("USDC", trader, num.MustUFromString("100"))
	b.FundTrader("USDT", trader, num.MustUFromString("7"))

	if err := b.PullFromTrader("USDC", trader, num.MustUFromString("100")); err != nil {
		t.Fatalf("PullFromTrader: %v", err)
	}
	if got := b.TraderBalance("USDT", trader); got.String() != "7" {
		t.Errorf("USDT balance = %s, want 7", got)
	}
	if !b.Balance("USDT").IsZero() {
		t.Errorf("USDT custody = %s, want 0", b.Balance("USDT"))
	}
}
