package models

import (
	"github.com/shopspring/decimal"

	"github.com/trivia-pay/internal/types"
)

// DefaultBillName is used when a request payload carries no bill name
const DefaultBillName = "Payment Request"

// UnknownCreator is used when neither payload nor transaction names a sender
const UnknownCreator = "Unknown"

// Notification is an inbound bill request surfaced from the ledger.
// Its ID is the id of the transaction that carried it.
type Notification struct {
	ID             string                 `json:"id"`
	Type           types.NotificationType `json:"type"`
	BillID         string                 `json:"billId"`
	BillName       string                 `json:"billName"`
	BillNote       string                 `json:"billNote"`
	PayeeName      string                 `json:"payeeName"`
	PayeeAddress   string                 `json:"payeeAddress"`
	Share          decimal.Decimal        `json:"share"`
	Total          decimal.Decimal        `json:"total"`
	CreatorAddress string                 `json:"creatorAddress"`
	Date           string                 `json:"date"`
	Read           bool                   `json:"read"`
	OnChain        bool                   `json:"onChain"`
}
