package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	algotypes "github.com/algorand/go-algorand-sdk/v2/types"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/trivia-pay/internal/adapter"
	"github.com/trivia-pay/internal/errors"
	"github.com/trivia-pay/internal/logging"
	"github.com/trivia-pay/internal/metrics"
	"github.com/trivia-pay/internal/models"
	"github.com/trivia-pay/internal/notify"
	"github.com/trivia-pay/internal/paymenturi"
	"github.com/trivia-pay/internal/store"
	"github.com/trivia-pay/internal/types"
)

// Notification batch messages shown to the bill creator
const (
	msgNotifySent    = "On-chain notifications sent. Payees will see a payment request when they open Trivia Pay."
	msgNotifySkipped = "Bill created locally. On-chain notifications were skipped (wallet not connected or signing cancelled)."
	msgNotifyFailed  = "Bill saved. Failed to send on-chain notifications."
)

// Settled is the outcome of one item of a batch: either a value or an error
type Settled[T any] struct {
	Value T
	Err   error
}

// OK reports whether the item succeeded
func (s Settled[T]) OK() bool {
	return s.Err == nil
}

// PayeeInput is one payee row of a new bill
type PayeeInput struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

// CreateBillInput describes a new bill
type CreateBillInput struct {
	Name   string          `json:"name"`
	Note   string          `json:"note"`
	Total  decimal.Decimal `json:"total"`
	Payees []PayeeInput    `json:"payees"`
}

// PayeeNotification is the result of notifying one payee
type PayeeNotification struct {
	PayeeID string                         `json:"payeeId"`
	Address string                         `json:"address"`
	TxID    string                         `json:"txId,omitempty"`
	Error   string                         `json:"error,omitempty"`
	Result  Settled[*adapter.SubmitResult] `json:"-"`
}

// NotifyResult summarizes a bill's notification batch. It is transient and
// never stored with the bill.
type NotifyResult struct {
	Outcome types.NotifyOutcome `json:"outcome"`
	Message string              `json:"message"`
	Payees  []PayeeNotification `json:"payees,omitempty"`
}

// CreateBillResult is the created bill and how its payees were notified
type CreateBillResult struct {
	Bill   models.Bill  `json:"bill"`
	Notify NotifyResult `json:"notify"`
}

// BalanceCheck tells whether a payee can cover their share
type BalanceCheck struct {
	Balance decimal.Decimal `json:"balance"`
	Share   decimal.Decimal `json:"share"`
	CanPay  bool            `json:"canPay"`
}

// PaymentRequest is a scannable request for one payee's share
type PaymentRequest struct {
	BillName  string          `json:"billName"`
	PayeeName string          `json:"payeeName"`
	Share     decimal.Decimal `json:"share"`
	URI       string          `json:"uri"`
}

// BillService implements the bill-split lifecycle: create, notify, mark paid
type BillService struct {
	ledger  adapter.Ledger
	wallet  adapter.WalletProvider
	store   *store.Controller
	metrics *metrics.Metrics
	now     func() time.Time
	newID   func() string
	logger  *logging.Logger
}

// NewBillService creates a bill service
func NewBillService(ledger adapter.Ledger, wallet adapter.WalletProvider, st *store.Controller, m *metrics.Metrics) *BillService {
	return &BillService{
		ledger:  ledger,
		wallet:  wallet,
		store:   st,
		metrics: m,
		now:     time.Now,
		newID:   uuid.NewString,
		logger:  logging.WithComponent("bills"),
	}
}

// List returns every bill, newest first
func (s *BillService) List() []models.Bill {
	return s.store.State().Bills
}

// Get returns one bill
func (s *BillService) Get(billID string) (models.Bill, error) {
	st := s.store.State()
	bill, ok := st.FindBill(billID)
	if !ok {
		return models.Bill{}, billNotFound(billID)
	}
	return bill, nil
}

// ValidateBill checks the input and returns the payees that take part.
// Rows missing a name or an address are ignored.
func ValidateBill(input CreateBillInput) ([]PayeeInput, error) {
	if strings.TrimSpace(input.Name) == "" {
		return nil, invalidInput("name", "Bill name is required.")
	}
	if !input.Total.IsPositive() {
		return nil, invalidInput("total", "Enter a valid ALGO amount.")
	}

	var rows []PayeeInput
	for _, p := range input.Payees {
		row := PayeeInput{Name: strings.TrimSpace(p.Name), Address: strings.TrimSpace(p.Address)}
		if row.Name == "" || row.Address == "" {
			continue
		}
		if !models.IsValidAddressLength(row.Address) {
			return nil, types.NewServiceError("INVALID_ADDRESS",
				fmt.Sprintf("%q has an invalid Algorand address (must be 58 characters).", row.Name),
				map[string]interface{}{"payee": row.Name, "length": len(row.Address)})
		}
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		return nil, invalidInput("payees", "Add at least one payee with a name and address.")
	}
	return rows, nil
}

// CreateBill validates and stores a bill, then notifies its payees on-chain
// when a wallet session is active. The bill stays regardless of the
// notification outcome.
func (s *BillService) CreateBill(ctx context.Context, input CreateBillInput) (*CreateBillResult, error) {
	rows, err := ValidateBill(input)
	if err != nil {
		return nil, err
	}

	st := s.store.State()
	bill := models.Bill{
		ID:             s.newID(),
		Name:           strings.TrimSpace(input.Name),
		Note:           strings.TrimSpace(input.Note),
		Total:          input.Total,
		Share:          models.EqualShare(input.Total, len(rows)),
		Date:           s.now(),
		CreatorAddress: st.Address,
	}
	for _, row := range rows {
		bill.Payees = append(bill.Payees, models.Payee{
			ID:      s.newID(),
			Name:    row.Name,
			Address: row.Address,
			Status:  types.PayeeNotified,
		})
	}

	s.store.Dispatch(store.AddBill{Bill: bill})
	log := s.logger.WithFields(map[string]interface{}{
		"bill_id": bill.ID,
		"payees":  len(bill.Payees),
		"share":   bill.Share.String(),
	})
	log.Info("Bill created")

	result := &CreateBillResult{Bill: bill}
	if !st.WalletConnected || st.Address == "" {
		result.Notify = NotifyResult{Outcome: types.NotifySkipped, Message: msgNotifySkipped}
		return result, nil
	}

	result.Notify = s.notifyPayees(ctx, st.Address, bill)
	log.WithField("outcome", result.Notify.Outcome).Info("Bill notifications finished")
	return result, nil
}

// notifyPayees sends one zero-value request transaction per payee, signed as
// one batch and submitted concurrently
func (s *BillService) notifyPayees(ctx context.Context, from string, bill models.Bill) NotifyResult {
	txns := make([]algotypes.Transaction, 0, len(bill.Payees))
	for _, p := range bill.Payees {
		note, err := notify.Encode(notify.NotePayload{
			BillID:         bill.ID,
			BillName:       bill.Name,
			BillNote:       bill.Note,
			Share:          bill.Share,
			Total:          bill.Total,
			PayeeName:      p.Name,
			PayeeAddress:   p.Address,
			CreatorAddress: from,
			Date:           bill.Date.UTC().Format("Jan 2, 2006"),
		})
		if err != nil {
			return notifyError(err)
		}
		txn, err := s.ledger.BuildPaymentTransaction(ctx, from, p.Address, decimal.Zero, note)
		if err != nil {
			return notifyError(err)
		}
		txns = append(txns, txn)
	}

	signed, err := s.wallet.SignTransactions(ctx, txns)
	if err != nil {
		if errors.IsUserCancellation(err) {
			return NotifyResult{Outcome: types.NotifySkipped, Message: msgNotifySkipped}
		}
		return notifyError(err)
	}
	if len(signed) != len(txns) {
		return notifyError(fmt.Errorf("wallet returned %d signatures for %d transactions", len(signed), len(txns)))
	}

	results := make([]PayeeNotification, len(bill.Payees))
	var wg sync.WaitGroup
	for i, p := range bill.Payees {
		results[i] = PayeeNotification{PayeeID: p.ID, Address: p.Address}
		wg.Add(1)
		go func(i int, blob []byte) {
			defer wg.Done()
			res, err := s.ledger.SubmitSignedTransaction(ctx, blob)
			results[i].Result = Settled[*adapter.SubmitResult]{Value: res, Err: err}
		}(i, signed[i])
	}
	wg.Wait()

	failed := 0
	for i := range results {
		r := &results[i]
		s.metrics.NotificationSent(r.Result.OK())
		if r.Result.OK() {
			r.TxID = r.Result.Value.TransactionID
			continue
		}
		failed++
		r.Error = r.Result.Err.Error()
		s.logger.WithError(r.Result.Err).WithField("payee_id", r.PayeeID).Warn("Notification submission failed")
	}

	switch {
	case failed == 0:
		return NotifyResult{Outcome: types.NotifySent, Message: msgNotifySent, Payees: results}
	case failed == len(results):
		return NotifyResult{Outcome: types.NotifyFailed, Message: msgNotifyFailed, Payees: results}
	default:
		return NotifyResult{
			Outcome: types.NotifyPartial,
			Message: fmt.Sprintf("Bill saved. %d of %d notifications could not be sent.", failed, len(results)),
			Payees:  results,
		}
	}
}

func notifyError(err error) NotifyResult {
	msg := err.Error()
	if msg == "" {
		msg = "Failed to send on-chain notifications"
	}
	return NotifyResult{Outcome: types.NotifyError, Message: "Bill saved. " + msg}
}

// MarkPaid settles one payee. Paying twice is harmless.
func (s *BillService) MarkPaid(billID, payeeID string) (models.Bill, error) {
	bill, err := s.Get(billID)
	if err != nil {
		return models.Bill{}, err
	}
	if bill.FindPayee(payeeID) < 0 {
		return models.Bill{}, payeeNotFound(billID, payeeID)
	}

	st := s.store.Dispatch(store.UpdatePayeeStatus{BillID: billID, PayeeID: payeeID, Status: types.PayeePaid})
	updated, _ := st.FindBill(billID)
	s.logger.WithFields(map[string]interface{}{
		"bill_id":  billID,
		"payee_id": payeeID,
		"progress": updated.Progress(),
	}).Info("Payee marked paid")
	return updated, nil
}

// DeleteBill removes a bill
func (s *BillService) DeleteBill(billID string) error {
	if _, err := s.Get(billID); err != nil {
		return err
	}
	s.store.Dispatch(store.DeleteBill{BillID: billID})
	return nil
}

// CheckPayeeBalance compares a payee's ledger balance with their share
func (s *BillService) CheckPayeeBalance(ctx context.Context, billID, payeeID string) (*BalanceCheck, error) {
	bill, err := s.Get(billID)
	if err != nil {
		return nil, err
	}
	idx := bill.FindPayee(payeeID)
	if idx < 0 {
		return nil, payeeNotFound(billID, payeeID)
	}

	balance, err := s.ledger.GetBalance(ctx, bill.Payees[idx].Address)
	if err != nil {
		return nil, errors.NewLedgerError("balance", err)
	}
	return &BalanceCheck{
		Balance: balance,
		Share:   bill.Share,
		CanPay:  balance.GreaterThanOrEqual(bill.Share),
	}, nil
}

// PaymentRequest builds a payment URI asking a payee to send their share to
// the connected address
func (s *BillService) PaymentRequest(billID, payeeID string) (*PaymentRequest, error) {
	st := s.store.State()
	if st.Address == "" {
		return nil, types.NewServiceError("WALLET_NOT_CONNECTED", "connect a wallet first", nil)
	}
	bill, ok := st.FindBill(billID)
	if !ok {
		return nil, billNotFound(billID)
	}
	idx := bill.FindPayee(payeeID)
	if idx < 0 {
		return nil, payeeNotFound(billID, payeeID)
	}

	return &PaymentRequest{
		BillName:  bill.Name,
		PayeeName: bill.Payees[idx].Name,
		Share:     bill.Share,
		URI:       paymenturi.Build(st.Address, bill.Share, "Bill: "+bill.Name),
	}, nil
}

func invalidInput(field, message string) error {
	return types.NewServiceError("INVALID_INPUT", message, map[string]interface{}{"field": field})
}

func billNotFound(billID string) error {
	return types.NewServiceError("BILL_NOT_FOUND", "bill not found: "+billID, map[string]interface{}{"billId": billID})
}

func payeeNotFound(billID, payeeID string) error {
	return types.NewServiceError("PAYEE_NOT_FOUND", "payee not found: "+payeeID,
		map[string]interface{}{"billId": billID, "payeeId": payeeID})
}
