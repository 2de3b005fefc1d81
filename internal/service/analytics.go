package service

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/trivia-pay/internal/errors"
	"github.com/trivia-pay/internal/models"
	"github.com/trivia-pay/internal/storage"
	"github.com/trivia-pay/internal/store"
	"github.com/trivia-pay/internal/types"
)

const (
	unknownDay        = "unknown"
	noCategory        = "—"
	maxCounterparties = 10
	recentOnDashboard = 5
)

// VolumeSource provides archived per-day payment volume
type VolumeSource interface {
	DailyVolume(ctx context.Context, owner string, days int) ([]storage.DailyVolume, error)
}

// DailyAmount is the payment total of one UTC day
type DailyAmount struct {
	Day    string          `json:"day"`
	Label  string          `json:"label,omitempty"`
	Amount decimal.Decimal `json:"amount"`
}

// TypeTotal is the amount moved by one transaction type
type TypeTotal struct {
	Type   types.TransactionType `json:"type"`
	Amount decimal.Decimal       `json:"amount"`
}

// Counterparty aggregates the transactions exchanged with one address
type Counterparty struct {
	Address      string                `json:"address"`
	Short        string                `json:"short"`
	TotalAmount  decimal.Decimal       `json:"totalAmount"`
	TxCount      int                   `json:"txCount"`
	DominantType types.TransactionType `json:"dominantType"`
}

// TransactionAnalytics summarizes the merged transaction list
type TransactionAnalytics struct {
	TotalSpent        decimal.Decimal `json:"totalSpent"`
	AvgDaily          decimal.Decimal `json:"avgDaily"`
	ByDay             []DailyAmount   `json:"byDay"`
	ByType            []TypeTotal     `json:"byType"`
	TotalByType       decimal.Decimal `json:"totalByType"`
	MostSpentCategory string          `json:"mostSpentCategory"`
	MostSpentAmount   decimal.Decimal `json:"mostSpentAmount"`
	Last7Days         []DailyAmount   `json:"last7Days"`
	TxCount           int             `json:"txCount"`
	PaymentCount      int             `json:"paymentCount"`
	Counterparties    []Counterparty  `json:"counterparties"`
}

// BillAnalytics summarizes bills from the connected address's point of view
type BillAnalytics struct {
	BillsCreated  int             `json:"billsCreated"`
	TotalValue    decimal.Decimal `json:"totalValue"`
	PaidAmount    decimal.Decimal `json:"paidAmount"`
	PendingAmount decimal.Decimal `json:"pendingAmount"`
	OwedPending   decimal.Decimal `json:"owedPending"`
	OwedPaid      decimal.Decimal `json:"owedPaid"`
}

// GoalAnalytics summarizes savings goals
type GoalAnalytics struct {
	Total     int             `json:"total"`
	Completed int             `json:"completed"`
	Allocated decimal.Decimal `json:"allocated"`
	Available decimal.Decimal `json:"available"`
}

// Analytics bundles every analytics view
type Analytics struct {
	Transactions TransactionAnalytics `json:"transactions"`
	Bills        BillAnalytics        `json:"bills"`
	Goals        GoalAnalytics        `json:"goals"`
}

// Dashboard is the overview of the current session
type Dashboard struct {
	Connected           bool                       `json:"connected"`
	Address             string                     `json:"address,omitempty"`
	Network             types.Network              `json:"network"`
	Balance             *decimal.Decimal           `json:"balance"`
	EscrowBalance       *decimal.Decimal           `json:"escrowBalance"`
	Available           *decimal.Decimal           `json:"available"`
	Stats               models.Stats               `json:"stats"`
	PendingPayees       int                        `json:"pendingPayees"`
	UnreadNotifications int                        `json:"unreadNotifications"`
	ActiveBills         int                        `json:"activeBills"`
	Goals               int                        `json:"goals"`
	RecentTransactions  []models.TransactionRecord `json:"recentTransactions"`
	LastRefreshed       *time.Time                 `json:"lastRefreshed"`
	Loading             bool                       `json:"loading"`
	FetchError          string                     `json:"fetchError,omitempty"`
}

// AnalyticsService derives read-only views from the store
type AnalyticsService struct {
	store   *store.Controller
	archive VolumeSource
	now     func() time.Time
}

// NewAnalyticsService creates an analytics service. archive may be nil.
func NewAnalyticsService(st *store.Controller, archive VolumeSource) *AnalyticsService {
	return &AnalyticsService{store: st, archive: archive, now: time.Now}
}

// Overview computes every analytics view from one snapshot
func (s *AnalyticsService) Overview() Analytics {
	st := s.store.State()
	return Analytics{
		Transactions: TransactionStats(st.RecentTransactions, st.Address, s.now()),
		Bills:        BillStats(st.Bills, st.Address),
		Goals:        GoalStats(st),
	}
}

// Dashboard returns the session overview
func (s *AnalyticsService) Dashboard() Dashboard {
	st := s.store.State()
	recent := st.RecentTransactions
	if len(recent) > recentOnDashboard {
		recent = recent[:recentOnDashboard]
	}
	active := 0
	for i := range st.Bills {
		if !st.Bills[i].IsSettled() {
			active++
		}
	}
	return Dashboard{
		Connected:           st.WalletConnected,
		Address:             st.Address,
		Network:             st.Network,
		Balance:             st.Balance,
		EscrowBalance:       st.EscrowBalance,
		Available:           AvailableBalance(st),
		Stats:               st.Stats,
		PendingPayees:       st.PendingPayees(),
		UnreadNotifications: st.UnreadNotifications(),
		ActiveBills:         active,
		Goals:               len(st.Goals),
		RecentTransactions:  recent,
		LastRefreshed:       st.LastRefreshed,
		Loading:             st.Loading,
		FetchError:          st.FetchError,
	}
}

// History returns archived daily volume of the connected address
func (s *AnalyticsService) History(ctx context.Context, days int) ([]storage.DailyVolume, error) {
	if s.archive == nil {
		return nil, errors.NewServiceUnavailableError("transaction archive")
	}
	st := s.store.State()
	if st.Address == "" {
		return nil, types.NewServiceError("WALLET_NOT_CONNECTED", "connect a wallet first", nil)
	}
	if days <= 0 {
		days = 30
	}
	return s.archive.DailyVolume(ctx, st.Address, days)
}

func dayKey(t time.Time) string {
	if t.IsZero() {
		return unknownDay
	}
	return t.UTC().Format("2006-01-02")
}

// TransactionStats aggregates txs as seen by address. now anchors the
// seven-day series.
func TransactionStats(txs []models.TransactionRecord, address string, now time.Time) TransactionAnalytics {
	out := TransactionAnalytics{
		TotalSpent:        decimal.Zero,
		AvgDaily:          decimal.Zero,
		TotalByType:       decimal.Zero,
		MostSpentCategory: noCategory,
		MostSpentAmount:   decimal.Zero,
		TxCount:           len(txs),
		ByDay:             []DailyAmount{},
		ByType:            []TypeTotal{},
	}

	byDay := make(map[string]decimal.Decimal)
	byType := make(map[types.TransactionType]decimal.Decimal)
	for i := range txs {
		tx := &txs[i]
		byType[tx.Type] = byType[tx.Type].Add(tx.Amount)
		if tx.Type != types.TxTypePayment {
			continue
		}
		out.PaymentCount++
		out.TotalSpent = out.TotalSpent.Add(tx.Amount)
		key := dayKey(tx.Timestamp)
		byDay[key] = byDay[key].Add(tx.Amount)
	}

	if len(byDay) > 0 {
		out.AvgDaily = out.TotalSpent.Div(decimal.NewFromInt(int64(len(byDay))))
	}
	for day, amount := range byDay {
		out.ByDay = append(out.ByDay, DailyAmount{Day: day, Amount: amount})
	}
	sort.Slice(out.ByDay, func(i, j int) bool { return out.ByDay[i].Day < out.ByDay[j].Day })

	for t, amount := range byType {
		out.ByType = append(out.ByType, TypeTotal{Type: t, Amount: amount})
		out.TotalByType = out.TotalByType.Add(amount)
	}
	sort.Slice(out.ByType, func(i, j int) bool {
		if c := out.ByType[i].Amount.Cmp(out.ByType[j].Amount); c != 0 {
			return c > 0
		}
		return out.ByType[i].Type < out.ByType[j].Type
	})
	if len(out.ByType) > 0 {
		out.MostSpentCategory = string(out.ByType[0].Type)
		out.MostSpentAmount = out.ByType[0].Amount
	}

	today := now.UTC()
	for i := 6; i >= 0; i-- {
		d := today.AddDate(0, 0, -i)
		key := d.Format("2006-01-02")
		out.Last7Days = append(out.Last7Days, DailyAmount{
			Day:    key,
			Label:  d.Format("Mon"),
			Amount: byDay[key],
		})
	}

	out.Counterparties = Counterparties(txs, address)
	return out
}

// Counterparties ranks the addresses address exchanged value with, largest
// total first
func Counterparties(txs []models.TransactionRecord, address string) []Counterparty {
	type acc struct {
		Counterparty
		types map[types.TransactionType]int
	}
	byAddr := make(map[string]*acc)
	for i := range txs {
		tx := &txs[i]
		for _, party := range []string{tx.Sender, tx.Receiver} {
			if party == "" || party == address || !models.IsValidAddressLength(party) {
				continue
			}
			a, ok := byAddr[party]
			if !ok {
				a = &acc{
					Counterparty: Counterparty{Address: party, Short: models.ShortenAddress(party), TotalAmount: decimal.Zero},
					types:        make(map[types.TransactionType]int),
				}
				byAddr[party] = a
			}
			a.TotalAmount = a.TotalAmount.Add(tx.Amount)
			a.TxCount++
			a.types[tx.Type]++
		}
	}

	out := make([]Counterparty, 0, len(byAddr))
	for _, a := range byAddr {
		best, bestN := types.TxTypePayment, 0
		for t, n := range a.types {
			if n > bestN || (n == bestN && t < best) {
				best, bestN = t, n
			}
		}
		a.DominantType = best
		out = append(out, a.Counterparty)
	}
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].TotalAmount.Cmp(out[j].TotalAmount); c != 0 {
			return c > 0
		}
		return out[i].Address < out[j].Address
	})
	if len(out) > maxCounterparties {
		out = out[:maxCounterparties]
	}
	return out
}

// BillStats summarizes bills created by address and the shares it owes
func BillStats(bills []models.Bill, address string) BillAnalytics {
	out := BillAnalytics{
		TotalValue:  decimal.Zero,
		PaidAmount:  decimal.Zero,
		OwedPending: decimal.Zero,
		OwedPaid:    decimal.Zero,
	}
	for i := range bills {
		b := &bills[i]
		if address != "" && b.CreatorAddress == address {
			out.BillsCreated++
			out.TotalValue = out.TotalValue.Add(b.Total)
			out.PaidAmount = out.PaidAmount.Add(b.Share.Mul(decimal.NewFromInt(int64(b.PaidCount()))))
		}
		for _, p := range b.Payees {
			if address == "" || p.Address != address {
				continue
			}
			if p.IsPaid() {
				out.OwedPaid = out.OwedPaid.Add(b.Share)
			} else {
				out.OwedPending = out.OwedPending.Add(b.Share)
			}
		}
	}
	out.PendingAmount = out.TotalValue.Sub(out.PaidAmount)
	return out
}

// GoalStats summarizes the goals of a snapshot
func GoalStats(st store.State) GoalAnalytics {
	out := GoalAnalytics{
		Total:     len(st.Goals),
		Allocated: TotalAllocated(st.Goals),
		Available: decimal.Zero,
	}
	for _, g := range st.Goals {
		if g.IsComplete() {
			out.Completed++
		}
	}
	if available := AvailableBalance(st); available != nil {
		out.Available = *available
	}
	return out
}
