package event

import (
	"github.com/google/uuid"

	"clearinghouse/internal/num"
)

// MarginChanged is emitted on margin add/remove. Amount is signed: positive
// for added margin, negative for removed. FundingPayment is the funding
// settled into the position by the same call.
type MarginChanged struct {
	Trader         uuid.UUID
	Market         string
	Amount         num.Dec
	FundingPayment num.Dec
}

func (e *MarginChanged) EventType() Type  { return TypeMarginChanged }
func (e *MarginChanged) MarketID() string { return e.Market }

// DepositReceived is emitted when trader funds are pulled into custody.
type DepositReceived struct {
	Trader uuid.UUID
	Market string
	Token  string
	Amount num.UDec
}

func (e *DepositReceived) EventType() Type  { return TypeDepositReceived }
func (e *DepositReceived) MarketID() string { return e.Market }
