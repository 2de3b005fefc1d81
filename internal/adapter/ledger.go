package adapter

import (
	"context"
	"fmt"

	algotypes "github.com/algorand/go-algorand-sdk/v2/types"
	"github.com/shopspring/decimal"

	"github.com/trivia-pay/internal/models"
)

// Ledger is the organizer's view of the Algorand network
type Ledger interface {
	// GetBalance returns the account balance in display units
	GetBalance(ctx context.Context, address string) (decimal.Decimal, error)

	// GetAccountTransactions returns up to limit of the account's most recent
	// transactions, normalized for display
	GetAccountTransactions(ctx context.Context, address string, limit int) ([]models.TransactionRecord, error)

	// GetAppGlobalState returns the decoded global state of an application
	GetAppGlobalState(ctx context.Context, appID uint64) ([]models.GlobalStateEntry, error)

	// BuildPaymentTransaction builds an unsigned payment of amount display units
	BuildPaymentTransaction(ctx context.Context, from, to string, amount decimal.Decimal, note []byte) (algotypes.Transaction, error)

	// SubmitSignedTransaction broadcasts a signed transaction and waits for it to be confirmed
	SubmitSignedTransaction(ctx context.Context, signed []byte) (*SubmitResult, error)
}

// SubmitResult identifies a confirmed transaction
type SubmitResult struct {
	TransactionID  string `json:"txId"`
	ConfirmedRound uint64 `json:"confirmedRound"`
}

// Lookup names used for errors, breakers and metrics
const (
	OpBalance      = "balance"
	OpTransactions = "transactions"
	OpAppState     = "app_state"
	OpBuild        = "build"
	OpSubmit       = "submit"
)

// LedgerOpError wraps a failed ledger call with the operation and subject
type LedgerOpError struct {
	Op      string
	Subject string
	Err     error
}

func (e *LedgerOpError) Error() string {
	if e.Subject != "" {
		return fmt.Sprintf("ledger %s [%s]: %v", e.Op, e.Subject, e.Err)
	}
	return fmt.Sprintf("ledger %s: %v", e.Op, e.Err)
}

func (e *LedgerOpError) Unwrap() error {
	return e.Err
}

func opError(op, subject string, err error) error {
	if err == nil {
		return nil
	}
	return &LedgerOpError{Op: op, Subject: subject, Err: err}
}

// ExplorerLink returns the block explorer URL of a transaction, or an empty
// string when no explorer is configured
func ExplorerLink(base, txID string) string {
	if base == "" || txID == "" {
		return ""
	}
	return base + txID
}
