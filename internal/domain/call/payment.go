package call

import (
	"github.com/dispatch-ledger/internal/domain/shared"
)

// PaymentMethod is how the customer settled the fare
type PaymentMethod string

const (
	PaymentCash     PaymentMethod = "CASH"
	PaymentCard     PaymentMethod = "CARD"
	PaymentTransfer PaymentMethod = "TRANSFER"
	PaymentCredit   PaymentMethod = "CREDIT"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCash, PaymentCard, PaymentTransfer, PaymentCredit:
		return true
	}
	return false
}

// FareBreakdown is attached to a call when settlement is requested.
// Fare overrides the dispatched fare when positive.
type FareBreakdown struct {
	Method       PaymentMethod `json:"payment_method"`
	Fare         int64         `json:"fare"`
	CashAmount   int64         `json:"cash_amount"`
	CardAmount   int64         `json:"card_amount"`
	CreditAmount int64         `json:"credit_amount"`
}

// Provided reports whether any component amount was supplied
func (b FareBreakdown) Provided() bool {
	return b.CashAmount != 0 || b.CardAmount != 0 || b.CreditAmount != 0
}

func (b FareBreakdown) Total() int64 {
	return b.CashAmount + b.CardAmount + b.CreditAmount
}

// Resolve validates the breakdown against fare and fills the bucket implied
// by the payment method when no components were supplied. A fare carried in
// the breakdown must equal fare when fare is known.
func (b FareBreakdown) Resolve(fare int64) (FareBreakdown, error) {
	if !b.Method.Valid() {
		return b, shared.ValidationError{Field: "payment_method", Message: "unknown payment method " + string(b.Method)}
	}
	if b.Fare > 0 {
		if fare > 0 && b.Fare != fare {
			return b, shared.FareMismatchError{Fare: fare, Total: b.Fare}
		}
		fare = b.Fare
	}
	if fare <= 0 {
		return b, shared.ValidationError{Field: "fare", Message: "must be positive"}
	}
	if b.CashAmount < 0 || b.CardAmount < 0 || b.CreditAmount < 0 {
		return b, shared.ValidationError{Field: "fare_breakdown", Message: "amounts cannot be negative"}
	}

	resolved := b
	resolved.Fare = fare
	if b.Provided() {
		if b.Total() != fare {
			return b, shared.FareMismatchError{Fare: fare, Total: b.Total()}
		}
		return resolved, nil
	}

	switch b.Method {
	case PaymentCash:
		resolved.CashAmount = fare
	case PaymentCard:
		resolved.CardAmount = fare
	case PaymentCredit:
		resolved.CreditAmount = fare
	}
	return resolved, nil
}
