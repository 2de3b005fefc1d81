// Package adaptertest provides in-memory Ledger and WalletProvider fakes for tests.
package adaptertest

import (
	"context"
	"crypto/sha512"
	"fmt"
	"sync"
	"sync/atomic"

	algotypes "github.com/algorand/go-algorand-sdk/v2/types"
	"github.com/shopspring/decimal"

	"github.com/trivia-pay/internal/adapter"
	"github.com/trivia-pay/internal/errors"
	"github.com/trivia-pay/internal/models"
)

// Ledger is a scriptable adapter.Ledger. Zero values succeed with empty data.
type Ledger struct {
	mu sync.Mutex

	Balances     map[string]decimal.Decimal
	Transactions map[string][]models.TransactionRecord
	GlobalState  map[uint64][]models.GlobalStateEntry
	// Errs fails the named operation ("balance:<addr>", "transactions:<addr>",
	// "app_state", "build", "submit") with the given error
	Errs map[string]error
	// SubmitErrs fails the n-th submission (0-based)
	SubmitErrs map[int]error
	// Gate, when set, blocks every lookup until it is closed or ctx ends
	Gate chan struct{}

	Built     []algotypes.Transaction
	Submitted [][]byte
	calls     map[string]int
	submits   int64
}

// NewLedger creates an empty fake ledger
func NewLedger() *Ledger {
	return &Ledger{
		Balances:     make(map[string]decimal.Decimal),
		Transactions: make(map[string][]models.TransactionRecord),
		GlobalState:  make(map[uint64][]models.GlobalStateEntry),
		Errs:         make(map[string]error),
		SubmitErrs:   make(map[int]error),
		calls:        make(map[string]int),
	}
}

// SetErr fails key until cleared with a nil error
func (l *Ledger) SetErr(key string, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err == nil {
		delete(l.Errs, key)
		return
	}
	l.Errs[key] = err
}

// SetBalance sets the balance returned for address
func (l *Ledger) SetBalance(address string, balance decimal.Decimal) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Balances[address] = balance
}

// SetGate replaces the gate for lookups that have not started yet
func (l *Ledger) SetGate(gate chan struct{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Gate = gate
}

// SetTransactions replaces the history returned for address
func (l *Ledger) SetTransactions(address string, txs []models.TransactionRecord) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Transactions[address] = txs
}

// Calls returns how often op was invoked
func (l *Ledger) Calls(op string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls[op]
}

func (l *Ledger) enter(ctx context.Context, op, key string) error {
	l.mu.Lock()
	l.calls[op]++
	gate := l.Gate
	err := l.Errs[key]
	l.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

// GetBalance implements adapter.Ledger
func (l *Ledger) GetBalance(ctx context.Context, address string) (decimal.Decimal, error) {
	if err := l.enter(ctx, adapter.OpBalance, adapter.OpBalance+":"+address); err != nil {
		return decimal.Zero, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.Balances[address], nil
}

// GetAccountTransactions implements adapter.Ledger
func (l *Ledger) GetAccountTransactions(ctx context.Context, address string, limit int) ([]models.TransactionRecord, error) {
	if err := l.enter(ctx, adapter.OpTransactions, adapter.OpTransactions+":"+address); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	txs := l.Transactions[address]
	if limit > 0 && len(txs) > limit {
		txs = txs[:limit]
	}
	return append([]models.TransactionRecord{}, txs...), nil
}

// GetAppGlobalState implements adapter.Ledger
func (l *Ledger) GetAppGlobalState(ctx context.Context, appID uint64) ([]models.GlobalStateEntry, error) {
	if err := l.enter(ctx, adapter.OpAppState, adapter.OpAppState); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]models.GlobalStateEntry{}, l.GlobalState[appID]...), nil
}

// BuildPaymentTransaction implements adapter.Ledger without contacting a node
func (l *Ledger) BuildPaymentTransaction(ctx context.Context, from, to string, amount decimal.Decimal, note []byte) (algotypes.Transaction, error) {
	l.mu.Lock()
	l.calls[adapter.OpBuild]++
	err := l.Errs[adapter.OpBuild]
	l.mu.Unlock()
	if err != nil {
		return algotypes.Transaction{}, err
	}

	sender, err := algotypes.DecodeAddress(from)
	if err != nil {
		return algotypes.Transaction{}, err
	}
	receiver, err := algotypes.DecodeAddress(to)
	if err != nil {
		return algotypes.Transaction{}, err
	}
	txn := algotypes.Transaction{
		Type: algotypes.PaymentTx,
		Header: algotypes.Header{
			Sender:     sender,
			Fee:        1000,
			FirstValid: 1,
			LastValid:  1001,
			Note:       note,
			GenesisID:  "testnet-v1.0",
		},
		PaymentTxnFields: algotypes.PaymentTxnFields{
			Receiver: receiver,
			Amount:   algotypes.MicroAlgos(models.DisplayToMicro(amount)),
		},
	}

	l.mu.Lock()
	l.Built = append(l.Built, txn)
	l.mu.Unlock()
	return txn, nil
}

// SubmitSignedTransaction implements adapter.Ledger; submissions may run concurrently
func (l *Ledger) SubmitSignedTransaction(ctx context.Context, signed []byte) (*adapter.SubmitResult, error) {
	n := int(atomic.AddInt64(&l.submits, 1) - 1)

	l.mu.Lock()
	l.calls[adapter.OpSubmit]++
	l.Submitted = append(l.Submitted, signed)
	err := l.SubmitErrs[n]
	if err == nil {
		err = l.Errs[adapter.OpSubmit]
	}
	l.mu.Unlock()

	if err != nil {
		return nil, err
	}
	return &adapter.SubmitResult{TransactionID: fmt.Sprintf("TX%04d", n), ConfirmedRound: uint64(1000 + n)}, nil
}

// Wallet is a scriptable adapter.WalletProvider that returns placeholder signatures
type Wallet struct {
	mu sync.Mutex

	Accounts []string
	// Restorable makes ReconnectSession return Accounts
	Restorable bool
	// ConnectErr and SignErr fail the corresponding calls
	ConnectErr error
	SignErr    error
	// Cancel makes signing fail as if the user dismissed the prompt
	Cancel bool

	Connected  bool
	SignCalls  int
	listeners  []func()
	signedTxns []algotypes.Transaction
}

// NewWallet creates a fake wallet holding the given accounts
func NewWallet(accounts ...string) *Wallet {
	return &Wallet{Accounts: accounts}
}

// Connect implements adapter.WalletProvider
func (w *Wallet) Connect(ctx context.Context) ([]string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.ConnectErr != nil {
		return nil, w.ConnectErr
	}
	w.Connected = true
	return append([]string{}, w.Accounts...), nil
}

// ReconnectSession implements adapter.WalletProvider
func (w *Wallet) ReconnectSession(ctx context.Context) ([]string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.Restorable {
		return nil, nil
	}
	w.Connected = true
	return append([]string{}, w.Accounts...), nil
}

// Disconnect implements adapter.WalletProvider
func (w *Wallet) Disconnect(ctx context.Context) error {
	w.mu.Lock()
	w.Connected = false
	listeners := append([]func(){}, w.listeners...)
	w.mu.Unlock()
	for _, fn := range listeners {
		fn()
	}
	return nil
}

// OnDisconnect implements adapter.WalletProvider
func (w *Wallet) OnDisconnect(fn func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.listeners = append(w.listeners, fn)
}

// SignTransactions implements adapter.WalletProvider
func (w *Wallet) SignTransactions(ctx context.Context, txns []algotypes.Transaction) ([][]byte, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.SignCalls++
	if !w.Connected {
		return nil, adapter.ErrNoSession
	}
	if w.Cancel {
		return nil, errors.NewCancelledError("signing")
	}
	if w.SignErr != nil {
		return nil, w.SignErr
	}
	out := make([][]byte, len(txns))
	for i, txn := range txns {
		out[i] = []byte(fmt.Sprintf("signed:%d:%s", i, txn.Receiver.String()))
	}
	w.signedTxns = append(w.signedTxns, txns...)
	return out, nil
}

// SignedTransactions returns every transaction signed so far
func (w *Wallet) SignedTransactions() []algotypes.Transaction {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]algotypes.Transaction{}, w.signedTxns...)
}

// Address derives a valid 58-character account address from seed
func Address(seed string) string {
	sum := sha512.Sum512_256([]byte(seed))
	var addr algotypes.Address
	copy(addr[:], sum[:])
	return addr.String()
}
