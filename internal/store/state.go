// Package store holds the organizer's single shared application state.
//
// State only changes through Reduce, a pure and total transition function
// over a closed set of actions. The Controller owns the live value and applies
// batches of actions atomically.
package store

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/trivia-pay/internal/models"
	"github.com/trivia-pay/internal/types"
)

// State is the complete application state of one organizer session
type State struct {
	// Network / contract
	Network       types.Network `json:"network"`
	AppID         uint64        `json:"appId"`
	EscrowAddress string        `json:"escrowAddress"`

	// Wallet
	WalletConnected bool             `json:"walletConnected"`
	Address         string           `json:"address"`
	Balance         *decimal.Decimal `json:"balance"`
	EscrowBalance   *decimal.Decimal `json:"escrowBalance"`

	// On-chain data
	RecentTransactions []models.TransactionRecord `json:"recentTxs"`
	AppGlobalState     []models.GlobalStateEntry  `json:"appGlobalState"`
	Stats              models.Stats               `json:"stats"`

	// Local user data, kept across disconnects
	Bills         []models.Bill         `json:"bills"`
	Notifications []models.Notification `json:"notifications"`
	Goals         []models.Goal         `json:"goals"`

	// Refresh metadata
	Loading       bool       `json:"loading"`
	LastRefreshed *time.Time `json:"lastRefreshed"`
	FetchError    string     `json:"fetchError"`
}

// Initial returns the state of a fresh session
func Initial(network types.Network, appID uint64, escrow string) State {
	return State{
		Network:            network,
		AppID:              appID,
		EscrowAddress:      escrow,
		RecentTransactions: []models.TransactionRecord{},
		AppGlobalState:     []models.GlobalStateEntry{},
		Stats:              emptyStats(),
		Bills:              []models.Bill{},
		Notifications:      []models.Notification{},
		Goals:              []models.Goal{},
	}
}

func emptyStats() models.Stats {
	return models.Stats{PoolBalance: decimal.Zero, TotalDeposited: decimal.Zero}
}

// Clone returns a deep copy of the state. Callers may modify the copy freely.
func (s State) Clone() State {
	out := s
	out.Balance = cloneDecimal(s.Balance)
	out.EscrowBalance = cloneDecimal(s.EscrowBalance)
	if s.LastRefreshed != nil {
		t := *s.LastRefreshed
		out.LastRefreshed = &t
	}

	out.RecentTransactions = make([]models.TransactionRecord, len(s.RecentTransactions))
	for i, tx := range s.RecentTransactions {
		if tx.Note != nil {
			tx.Note = append([]byte(nil), tx.Note...)
		}
		out.RecentTransactions[i] = tx
	}
	out.AppGlobalState = append([]models.GlobalStateEntry{}, s.AppGlobalState...)

	out.Bills = make([]models.Bill, len(s.Bills))
	for i, b := range s.Bills {
		out.Bills[i] = b.Clone()
	}
	out.Notifications = append([]models.Notification{}, s.Notifications...)

	out.Goals = make([]models.Goal, len(s.Goals))
	for i, g := range s.Goals {
		if g.Deadline != nil {
			d := *g.Deadline
			g.Deadline = &d
		}
		out.Goals[i] = g
	}
	return out
}

// FindBill returns the bill with the given id
func (s *State) FindBill(id string) (models.Bill, bool) {
	for _, b := range s.Bills {
		if b.ID == id {
			return b, true
		}
	}
	return models.Bill{}, false
}

// FindGoal returns the goal with the given id
func (s *State) FindGoal(id string) (models.Goal, bool) {
	for _, g := range s.Goals {
		if g.ID == id {
			return g, true
		}
	}
	return models.Goal{}, false
}

// HasNotification reports whether a notification with the given id is present
func (s *State) HasNotification(id string) bool {
	for _, n := range s.Notifications {
		if n.ID == id {
			return true
		}
	}
	return false
}

// UnreadNotifications counts notifications not yet marked read
func (s *State) UnreadNotifications() int {
	count := 0
	for _, n := range s.Notifications {
		if !n.Read {
			count++
		}
	}
	return count
}

// PendingPayees counts unpaid payees across all bills
func (s *State) PendingPayees() int {
	count := 0
	for _, b := range s.Bills {
		count += len(b.Payees) - b.PaidCount()
	}
	return count
}

func cloneDecimal(d *decimal.Decimal) *decimal.Decimal {
	if d == nil {
		return nil
	}
	v := *d
	return &v
}
