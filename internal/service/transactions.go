package service

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/trivia-pay/internal/models"
	"github.com/trivia-pay/internal/types"
)

// TransactionFilter narrows the merged transaction list. Empty fields match everything.
type TransactionFilter struct {
	Type   types.TransactionType
	Status types.TransactionStatus
	// Search matches a case-insensitive substring of the id, sender or receiver
	Search string
}

// TransactionPage is a filtered view of the merged transaction list
type TransactionPage struct {
	Transactions []models.TransactionRecord `json:"transactions"`
	Shown        int                        `json:"shown"`
	Total        int                        `json:"total"`
	Volume       decimal.Decimal            `json:"volume"`
	Pending      int                        `json:"pending"`
}

func (f TransactionFilter) matches(tx *models.TransactionRecord) bool {
	if f.Type != "" && tx.Type != f.Type {
		return false
	}
	if f.Status != "" && tx.Status != f.Status {
		return false
	}
	if f.Search == "" {
		return true
	}
	q := strings.ToLower(f.Search)
	return strings.Contains(strings.ToLower(tx.ID), q) ||
		strings.Contains(strings.ToLower(tx.Sender), q) ||
		strings.Contains(strings.ToLower(tx.Receiver), q)
}

// FilterTransactions applies f to txs. Volume sums the successful matches and
// Pending counts pending records of the whole list.
func FilterTransactions(txs []models.TransactionRecord, f TransactionFilter) TransactionPage {
	page := TransactionPage{
		Transactions: []models.TransactionRecord{},
		Total:        len(txs),
		Volume:       decimal.Zero,
	}
	for i := range txs {
		tx := &txs[i]
		if tx.Status == types.StatusPending {
			page.Pending++
		}
		if !f.matches(tx) {
			continue
		}
		page.Transactions = append(page.Transactions, *tx)
		if tx.Status == types.StatusSuccess {
			page.Volume = page.Volume.Add(tx.Amount)
		}
	}
	page.Shown = len(page.Transactions)
	return page
}
