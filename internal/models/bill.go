package models

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/trivia-pay/internal/types"
)

// ShareDecimalPlaces is the precision of a bill share (one micro-unit)
const ShareDecimalPlaces = 6

// Payee is one participant of a bill
type Payee struct {
	ID      string            `json:"id"`
	Name    string            `json:"name"`
	Address string            `json:"address"`
	Status  types.PayeeStatus `json:"status"`
}

// IsPaid reports whether the payee has settled their share
func (p Payee) IsPaid() bool {
	return p.Status == types.PayeePaid
}

// Bill is a shared expense split equally among its payees
type Bill struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	Note           string          `json:"note"`
	Total          decimal.Decimal `json:"total"`
	Share          decimal.Decimal `json:"share"`
	Date           time.Time       `json:"date"`
	CreatorAddress string          `json:"creatorAddress"`
	Payees         []Payee         `json:"payees"`
}

// EqualShare splits total across n payees, rounded to one micro-unit.
// The n shares may differ from total by at most n micro-units.
func EqualShare(total decimal.Decimal, n int) decimal.Decimal {
	if n <= 0 {
		return decimal.Zero
	}
	return total.DivRound(decimal.NewFromInt(int64(n)), ShareDecimalPlaces)
}

// PaidCount returns the number of payees that have paid
func (b *Bill) PaidCount() int {
	count := 0
	for _, p := range b.Payees {
		if p.IsPaid() {
			count++
		}
	}
	return count
}

// Progress returns the paid percentage rounded to the nearest integer
func (b *Bill) Progress() int {
	if len(b.Payees) == 0 {
		return 0
	}
	pct := decimal.NewFromInt(int64(b.PaidCount()*100)).
		Div(decimal.NewFromInt(int64(len(b.Payees)))).
		Round(0)
	return int(pct.IntPart())
}

// IsSettled reports whether every payee has paid
func (b *Bill) IsSettled() bool {
	return len(b.Payees) > 0 && b.PaidCount() == len(b.Payees)
}

// FindPayee returns the index of the payee with the given id, or -1
func (b *Bill) FindPayee(payeeID string) int {
	for i, p := range b.Payees {
		if p.ID == payeeID {
			return i
		}
	}
	return -1
}

// Clone returns a copy of the bill that shares no slices with the original
func (b Bill) Clone() Bill {
	payees := make([]Payee, len(b.Payees))
	copy(payees, b.Payees)
	b.Payees = payees
	return b
}
