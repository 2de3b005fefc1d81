package models

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/trivia-pay/internal/types"
)

// MicroUnitsPerAlgo is the number of ledger micro-units in one display unit
const MicroUnitsPerAlgo = 1_000_000

// AddressLength is the length of a base32 Algorand account address
const AddressLength = 58

// TransactionRecord is a normalized ledger transaction as shown in history views
type TransactionRecord struct {
	ID            string                  `json:"id" ch:"tx_id"`
	Type          types.TransactionType   `json:"type" ch:"tx_type"`
	Amount        decimal.Decimal         `json:"amount" ch:"amount"` // display units, 4 dp
	Sender        string                  `json:"senderFull" ch:"sender"`
	SenderShort   string                  `json:"sender"`
	Receiver      string                  `json:"receiverFull" ch:"receiver"`
	ReceiverShort string                  `json:"receiver"`
	Status        types.TransactionStatus `json:"status" ch:"status"`
	Timestamp     time.Time               `json:"timestamp" ch:"timestamp"`
	Round         uint64                  `json:"round" ch:"round"`
	Note          []byte                  `json:"-" ch:"note"`
}

// Date is the human readable date of the transaction, or its round when the
// ledger did not report a round time.
func (t *TransactionRecord) Date() string {
	if t.Timestamp.IsZero() {
		return "Round " + strconv.FormatUint(t.Round, 10)
	}
	return t.Timestamp.UTC().Format("Jan 2, 2006")
}

// IsSuccessfulPayment reports whether the record counts toward deposit totals
func (t *TransactionRecord) IsSuccessfulPayment() bool {
	return t.Type == types.TxTypePayment && t.Status == types.StatusSuccess
}

// AccountSnapshot is the balance view of the connected account and the escrow.
// Nil balances mean "not fetched yet".
type AccountSnapshot struct {
	Address       string           `json:"address"`
	Balance       *decimal.Decimal `json:"balance"`
	EscrowBalance *decimal.Decimal `json:"escrowBalance"`
}

// GlobalStateEntry is one decoded key/value of the application's global state.
// Exactly one of Uint or Bytes is meaningful, selected by IsUint.
type GlobalStateEntry struct {
	Key    string `json:"key"`
	IsUint bool   `json:"-"`
	Uint   uint64 `json:"-"`
	Bytes  string `json:"-"`
}

// Value returns the entry's value as either a uint64 or a string
func (e GlobalStateEntry) Value() interface{} {
	if e.IsUint {
		return e.Uint
	}
	return e.Bytes
}

// MarshalJSON renders the entry as {"key":..,"value":..}
func (e GlobalStateEntry) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Key   string      `json:"key"`
		Value interface{} `json:"value"`
	}{Key: e.Key, Value: e.Value()})
}

// Stats are the aggregate figures derived from the merged transaction list
type Stats struct {
	PoolBalance    decimal.Decimal `json:"poolBalance"`
	TotalDeposited decimal.Decimal `json:"totalDeposited"`
	TxCount        int             `json:"txCount"`
}

// MicroToDisplay converts ledger micro-units to display units
func MicroToDisplay(micro uint64) decimal.Decimal {
	return decimal.NewFromInt(int64(micro)).Shift(-6)
}

// DisplayToMicro converts display units to ledger micro-units, rounding to the
// nearest micro-unit. Negative amounts convert to zero.
func DisplayToMicro(amount decimal.Decimal) uint64 {
	if !amount.IsPositive() {
		return 0
	}
	return uint64(amount.Shift(6).Round(0).IntPart())
}

// ShortenAddress renders an address as its first 6 and last 4 characters
func ShortenAddress(addr string) string {
	if len(addr) <= 10 {
		return addr
	}
	return addr[:6] + "…" + addr[len(addr)-4:]
}

// IsValidAddressLength reports whether addr has the length of an account address
func IsValidAddressLength(addr string) bool {
	return len(addr) == AddressLength
}
