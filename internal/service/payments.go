package service

import (
	"context"
	"strings"

	algotypes "github.com/algorand/go-algorand-sdk/v2/types"
	"github.com/shopspring/decimal"

	"github.com/trivia-pay/internal/adapter"
	"github.com/trivia-pay/internal/errors"
	"github.com/trivia-pay/internal/logging"
	"github.com/trivia-pay/internal/metrics"
	"github.com/trivia-pay/internal/models"
	"github.com/trivia-pay/internal/paymenturi"
	"github.com/trivia-pay/internal/store"
	"github.com/trivia-pay/internal/types"
)

// Default transaction notes
const (
	DefaultPaymentNote = "Trivia Pay QR payment"
	DepositNote        = "Trivia Pay deposit"
)

// Payment kinds used in metrics
const (
	kindSend    = "send"
	kindDeposit = "deposit"
)

// Receipt describes a confirmed payment
type Receipt struct {
	TxID           string          `json:"txId"`
	ConfirmedRound uint64          `json:"confirmedRound"`
	Receiver       string          `json:"receiver"`
	Amount         decimal.Decimal `json:"amount"`
	Note           string          `json:"note"`
	ExplorerURL    string          `json:"explorerUrl,omitempty"`
}

// PaymentService signs and submits payments from the connected wallet
type PaymentService struct {
	ledger       adapter.Ledger
	wallet       adapter.WalletProvider
	store        *store.Controller
	refresh      func() bool
	metrics      *metrics.Metrics
	explorerBase string
	logger       *logging.Logger
}

// NewPaymentService creates a payment service. refresh is called after every
// confirmed payment and may be nil.
func NewPaymentService(ledger adapter.Ledger, wallet adapter.WalletProvider, st *store.Controller, refresh func() bool, m *metrics.Metrics, explorerBase string) *PaymentService {
	return &PaymentService{
		ledger:       ledger,
		wallet:       wallet,
		store:        st,
		refresh:      refresh,
		metrics:      m,
		explorerBase: explorerBase,
		logger:       logging.WithComponent("payments"),
	}
}

// Send pays amount to receiver. A blank note becomes DefaultPaymentNote.
func (s *PaymentService) Send(ctx context.Context, receiver string, amount decimal.Decimal, note string) (*Receipt, error) {
	receiver = strings.TrimSpace(receiver)
	if !models.IsValidAddressLength(receiver) {
		return nil, errors.NewInvalidAddressError(receiver)
	}
	if strings.TrimSpace(note) == "" {
		note = DefaultPaymentNote
	}
	return s.pay(ctx, kindSend, receiver, amount, note)
}

// PayRequest pays a scanned payment request. amount overrides the requested
// amount when positive.
func (s *PaymentService) PayRequest(ctx context.Context, raw string, amount decimal.Decimal, note string) (*Receipt, error) {
	req, err := paymenturi.Parse(raw)
	if err != nil {
		return nil, types.NewServiceError("INVALID_PAYMENT_REQUEST", err.Error(), nil)
	}
	if !amount.IsPositive() {
		amount = req.Amount
	}
	if strings.TrimSpace(note) == "" {
		note = req.Note
	}
	return s.Send(ctx, req.Address, amount, note)
}

// DepositToEscrow pays amount into the configured escrow account
func (s *PaymentService) DepositToEscrow(ctx context.Context, amount decimal.Decimal) (*Receipt, error) {
	escrow := s.store.State().EscrowAddress
	if escrow == "" {
		return nil, types.NewServiceError("ESCROW_NOT_SET",
			"Escrow address not set. Go to Settings and enter the escrow address.", nil)
	}
	return s.pay(ctx, kindDeposit, escrow, amount, DepositNote)
}

func (s *PaymentService) pay(ctx context.Context, kind, receiver string, amount decimal.Decimal, note string) (*Receipt, error) {
	if !amount.IsPositive() {
		return nil, types.NewServiceError("INVALID_AMOUNT", "Enter a valid ALGO amount greater than 0.",
			map[string]interface{}{"field": "amount"})
	}
	st := s.store.State()
	if !st.WalletConnected || st.Address == "" {
		return nil, types.NewServiceError("WALLET_NOT_CONNECTED", "Connect your wallet first.", nil)
	}

	log := s.logger.WithFields(map[string]interface{}{
		"kind":     kind,
		"receiver": models.ShortenAddress(receiver),
		"amount":   amount.String(),
	})

	receipt, err := s.submit(ctx, st.Address, receiver, amount, note)
	s.metrics.PaymentSubmitted(kind, err == nil)
	if err != nil {
		if errors.IsUserCancellation(err) {
			log.Info("Payment cancelled in wallet")
		} else {
			log.WithError(err).Warn("Payment failed")
		}
		return nil, err
	}

	log.WithField("tx_id", receipt.TxID).Info("Payment confirmed")
	if s.refresh != nil {
		s.refresh()
	}
	return receipt, nil
}

func (s *PaymentService) submit(ctx context.Context, from, receiver string, amount decimal.Decimal, note string) (*Receipt, error) {
	txn, err := s.ledger.BuildPaymentTransaction(ctx, from, receiver, amount, []byte(note))
	if err != nil {
		return nil, errors.NewLedgerError("build", err)
	}

	signed, err := s.wallet.SignTransactions(ctx, []algotypes.Transaction{txn})
	if err != nil {
		if errors.IsUserCancellation(err) {
			return nil, errors.NewCancelledError("payment")
		}
		return nil, errors.NewWalletError("sign", err)
	}
	if len(signed) != 1 {
		return nil, errors.NewWalletError("sign", errors.NewInternalError("unexpected signature count", nil))
	}

	res, err := s.ledger.SubmitSignedTransaction(ctx, signed[0])
	if err != nil {
		return nil, errors.NewLedgerError("submit", err)
	}
	return &Receipt{
		TxID:           res.TransactionID,
		ConfirmedRound: res.ConfirmedRound,
		Receiver:       receiver,
		Amount:         amount,
		Note:           note,
		ExplorerURL:    adapter.ExplorerLink(s.explorerBase, res.TransactionID),
	}, nil
}
