package store

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/trivia-pay/internal/models"
	"github.com/trivia-pay/internal/types"
)

// Action is a named state transition. The set is closed: only the types in
// this file implement it.
type Action interface {
	// Name identifies the action in logs and metrics
	Name() string
	apply(s State) State
}

// Reduce returns the state that results from applying action to s.
// It never mutates s and is total: unknown ids leave the state unchanged.
func Reduce(s State, action Action) State {
	if action == nil {
		return s
	}
	return action.apply(s)
}

// ConnectWallet marks a wallet as connected. It does not fetch anything.
type ConnectWallet struct {
	Address string
}

func (ConnectWallet) Name() string { return "CONNECT_WALLET" }

func (a ConnectWallet) apply(s State) State {
	s.WalletConnected = true
	s.Address = a.Address
	return s
}

// DisconnectWallet clears every wallet-derived field and keeps local user data
type DisconnectWallet struct{}

func (DisconnectWallet) Name() string { return "DISCONNECT_WALLET" }

func (DisconnectWallet) apply(s State) State {
	s.WalletConnected = false
	s.Address = ""
	s.Balance = nil
	s.EscrowBalance = nil
	s.RecentTransactions = []models.TransactionRecord{}
	s.AppGlobalState = []models.GlobalStateEntry{}
	s.Stats = emptyStats()
	s.LastRefreshed = nil
	s.FetchError = ""
	return s
}

// SetNetwork selects the ledger network
type SetNetwork struct {
	Network types.Network
}

func (SetNetwork) Name() string { return "SET_NETWORK" }

func (a SetNetwork) apply(s State) State {
	s.Network = a.Network
	return s
}

// SetAppID selects the contract whose global state is tracked; 0 clears it
type SetAppID struct {
	AppID uint64
}

func (SetAppID) Name() string { return "SET_APP_ID" }

func (a SetAppID) apply(s State) State {
	s.AppID = a.AppID
	return s
}

// SetEscrowAddress selects the pool account; empty clears it
type SetEscrowAddress struct {
	Address string
}

func (SetEscrowAddress) Name() string { return "SET_ESCROW_ADDRESS" }

func (a SetEscrowAddress) apply(s State) State {
	s.EscrowAddress = a.Address
	return s
}

// SetBalance records the wallet balance in display units
type SetBalance struct {
	Balance decimal.Decimal
}

func (SetBalance) Name() string { return "SET_BALANCE" }

func (a SetBalance) apply(s State) State {
	v := a.Balance
	s.Balance = &v
	return s
}

// SetEscrowBalance records the escrow balance in display units
type SetEscrowBalance struct {
	Balance decimal.Decimal
}

func (SetEscrowBalance) Name() string { return "SET_ESCROW_BALANCE" }

func (a SetEscrowBalance) apply(s State) State {
	v := a.Balance
	s.EscrowBalance = &v
	return s
}

// SetRecentTransactions replaces the merged transaction list
type SetRecentTransactions struct {
	Transactions []models.TransactionRecord
}

func (SetRecentTransactions) Name() string { return "SET_RECENT_TXS" }

func (a SetRecentTransactions) apply(s State) State {
	s.RecentTransactions = append([]models.TransactionRecord{}, a.Transactions...)
	return s
}

// SetAppGlobalState replaces the decoded contract global state
type SetAppGlobalState struct {
	Entries []models.GlobalStateEntry
}

func (SetAppGlobalState) Name() string { return "SET_APP_GLOBAL_STATE" }

func (a SetAppGlobalState) apply(s State) State {
	s.AppGlobalState = append([]models.GlobalStateEntry{}, a.Entries...)
	return s
}

// SetLoading toggles the refresh-in-progress flag
type SetLoading struct {
	Loading bool
}

func (SetLoading) Name() string { return "SET_LOADING" }

func (a SetLoading) apply(s State) State {
	s.Loading = a.Loading
	return s
}

// SetLastRefreshed records when the last refresh pass completed
type SetLastRefreshed struct {
	At time.Time
}

func (SetLastRefreshed) Name() string { return "SET_LAST_REFRESHED" }

func (a SetLastRefreshed) apply(s State) State {
	at := a.At
	s.LastRefreshed = &at
	return s
}

// SetFetchError sets the user-visible refresh error; empty clears it
type SetFetchError struct {
	Message string
}

func (SetFetchError) Name() string { return "SET_FETCH_ERROR" }

func (a SetFetchError) apply(s State) State {
	s.FetchError = a.Message
	return s
}

// UpdateStats replaces the derived statistics
type UpdateStats struct {
	Stats models.Stats
}

func (UpdateStats) Name() string { return "UPDATE_STATS" }

func (a UpdateStats) apply(s State) State {
	s.Stats = a.Stats
	return s
}

// AddBill prepends a bill so the list stays most-recent-first
type AddBill struct {
	Bill models.Bill
}

func (AddBill) Name() string { return "ADD_BILL" }

func (a AddBill) apply(s State) State {
	bills := make([]models.Bill, 0, len(s.Bills)+1)
	bills = append(bills, a.Bill.Clone())
	s.Bills = append(bills, s.Bills...)
	return s
}

// DeleteBill removes a bill by id
type DeleteBill struct {
	BillID string
}

func (DeleteBill) Name() string { return "DELETE_BILL" }

func (a DeleteBill) apply(s State) State {
	bills := make([]models.Bill, 0, len(s.Bills))
	for _, b := range s.Bills {
		if b.ID != a.BillID {
			bills = append(bills, b)
		}
	}
	s.Bills = bills
	return s
}

// UpdatePayeeStatus changes the status of one payee of one bill.
// A paid payee stays paid.
type UpdatePayeeStatus struct {
	BillID  string
	PayeeID string
	Status  types.PayeeStatus
}

func (UpdatePayeeStatus) Name() string { return "UPDATE_PAYEE_STATUS" }

func (a UpdatePayeeStatus) apply(s State) State {
	if !a.Status.IsValid() {
		return s
	}
	for i, b := range s.Bills {
		if b.ID != a.BillID {
			continue
		}
		idx := b.FindPayee(a.PayeeID)
		if idx < 0 || b.Payees[idx].Status == a.Status || b.Payees[idx].IsPaid() {
			return s
		}
		updated := b.Clone()
		updated.Payees[idx].Status = a.Status

		bills := append([]models.Bill{}, s.Bills...)
		bills[i] = updated
		s.Bills = bills
		return s
	}
	return s
}

// AddNotification prepends an inbound notification
type AddNotification struct {
	Notification models.Notification
}

func (AddNotification) Name() string { return "ADD_NOTIFICATION" }

func (a AddNotification) apply(s State) State {
	notifications := make([]models.Notification, 0, len(s.Notifications)+1)
	notifications = append(notifications, a.Notification)
	s.Notifications = append(notifications, s.Notifications...)
	return s
}

// DismissNotification removes a notification by id
type DismissNotification struct {
	ID string
}

func (DismissNotification) Name() string { return "DISMISS_NOTIFICATION" }

func (a DismissNotification) apply(s State) State {
	notifications := make([]models.Notification, 0, len(s.Notifications))
	for _, n := range s.Notifications {
		if n.ID != a.ID {
			notifications = append(notifications, n)
		}
	}
	s.Notifications = notifications
	return s
}

// MarkNotificationRead flags a notification as read
type MarkNotificationRead struct {
	ID string
}

func (MarkNotificationRead) Name() string { return "MARK_NOTIFICATION_READ" }

func (a MarkNotificationRead) apply(s State) State {
	for i, n := range s.Notifications {
		if n.ID != a.ID || n.Read {
			continue
		}
		notifications := append([]models.Notification{}, s.Notifications...)
		notifications[i].Read = true
		s.Notifications = notifications
		return s
	}
	return s
}

// AddGoal prepends a savings goal
type AddGoal struct {
	Goal models.Goal
}

func (AddGoal) Name() string { return "ADD_GOAL" }

func (a AddGoal) apply(s State) State {
	goals := make([]models.Goal, 0, len(s.Goals)+1)
	goals = append(goals, a.Goal)
	s.Goals = append(goals, s.Goals...)
	return s
}

// DeleteGoal removes a goal by id
type DeleteGoal struct {
	GoalID string
}

func (DeleteGoal) Name() string { return "DELETE_GOAL" }

func (a DeleteGoal) apply(s State) State {
	goals := make([]models.Goal, 0, len(s.Goals))
	for _, g := range s.Goals {
		if g.ID != a.GoalID {
			goals = append(goals, g)
		}
	}
	s.Goals = goals
	return s
}

// DepositToGoal adds to a goal's current amount, clamped at its target
type DepositToGoal struct {
	GoalID string
	Amount decimal.Decimal
}

func (DepositToGoal) Name() string { return "DEPOSIT_TO_GOAL" }

func (a DepositToGoal) apply(s State) State {
	for i, g := range s.Goals {
		if g.ID != a.GoalID {
			continue
		}
		goals := append([]models.Goal{}, s.Goals...)
		goals[i].Current = g.Deposit(a.Amount)
		s.Goals = goals
		return s
	}
	return s
}
