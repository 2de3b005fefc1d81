package adapter

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"sync"

	"github.com/algorand/go-algorand-sdk/v2/crypto"
	"github.com/algorand/go-algorand-sdk/v2/mnemonic"
	algotypes "github.com/algorand/go-algorand-sdk/v2/types"

	"github.com/trivia-pay/internal/errors"
	"github.com/trivia-pay/internal/logging"
)

// WalletProvider connects an account and signs transactions on its behalf
type WalletProvider interface {
	// Connect opens a session and returns the session's accounts
	Connect(ctx context.Context) ([]string, error)
	// Disconnect closes the session and notifies disconnect listeners
	Disconnect(ctx context.Context) error
	// ReconnectSession restores a previous session; no accounts means none
	ReconnectSession(ctx context.Context) ([]string, error)
	// SignTransactions signs a batch; it fails with errors.ErrSigningCancelled
	// when the user declines
	SignTransactions(ctx context.Context, txns []algotypes.Transaction) ([][]byte, error)
	// OnDisconnect registers a listener fired when the session ends
	OnDisconnect(fn func())
}

// ErrNoSession is returned when signing without a connected session
var ErrNoSession = fmt.Errorf("wallet session not connected")

// Approver decides whether a signing request goes ahead. It stands in for
// the confirmation prompt of an interactive wallet.
type Approver func(ctx context.Context, txns []algotypes.Transaction) bool

// KeyWallet is a WalletProvider backed by a single private key
type KeyWallet struct {
	account  crypto.Account
	approver Approver

	mu        sync.Mutex
	connected bool
	listeners []func()
	logger    *logging.Logger
}

// NewKeyWallet creates a wallet from a 25-word account mnemonic
func NewKeyWallet(phrase string) (*KeyWallet, error) {
	sk, err := mnemonic.ToPrivateKey(phrase)
	if err != nil {
		return nil, fmt.Errorf("invalid wallet mnemonic: %w", err)
	}
	return NewKeyWalletFromKey(sk)
}

// NewKeyWalletFromKey creates a wallet from an ed25519 private key
func NewKeyWalletFromKey(sk ed25519.PrivateKey) (*KeyWallet, error) {
	account, err := crypto.AccountFromPrivateKey(sk)
	if err != nil {
		return nil, fmt.Errorf("invalid wallet key: %w", err)
	}
	return &KeyWallet{
		account: account,
		logger:  logging.WithComponent("wallet"),
	}, nil
}

// SetApprover installs a confirmation hook; nil approves everything
func (w *KeyWallet) SetApprover(a Approver) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.approver = a
}

// Address returns the wallet's account address
func (w *KeyWallet) Address() string {
	return w.account.Address.String()
}

// Connect opens the session
func (w *KeyWallet) Connect(ctx context.Context) ([]string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.connected = true
	w.logger.WithField("address", w.Address()).Info("Wallet connected")
	return []string{w.Address()}, nil
}

// ReconnectSession restores the session; a key wallet can always do so
func (w *KeyWallet) ReconnectSession(ctx context.Context) ([]string, error) {
	return w.Connect(ctx)
}

// Disconnect closes the session and fires listeners outside the lock
func (w *KeyWallet) Disconnect(ctx context.Context) error {
	w.mu.Lock()
	wasConnected := w.connected
	w.connected = false
	listeners := append([]func(){}, w.listeners...)
	w.mu.Unlock()

	if !wasConnected {
		return nil
	}
	w.logger.Info("Wallet disconnected")
	for _, fn := range listeners {
		fn()
	}
	return nil
}

// OnDisconnect registers a disconnect listener
func (w *KeyWallet) OnDisconnect(fn func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.listeners = append(w.listeners, fn)
}

// SignTransactions signs every transaction, which must all be sent by this wallet
func (w *KeyWallet) SignTransactions(ctx context.Context, txns []algotypes.Transaction) ([][]byte, error) {
	w.mu.Lock()
	connected, approver := w.connected, w.approver
	w.mu.Unlock()

	if !connected {
		return nil, ErrNoSession
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.NewCancelledError("signing")
	}
	if approver != nil && !approver(ctx, txns) {
		return nil, errors.NewCancelledError("signing")
	}

	signed := make([][]byte, 0, len(txns))
	for i, txn := range txns {
		if txn.Sender != w.account.Address {
			return nil, fmt.Errorf("transaction %d is not sent by %s", i, w.Address())
		}
		_, blob, err := crypto.SignTransaction(w.account.PrivateKey, txn)
		if err != nil {
			return nil, fmt.Errorf("failed to sign transaction %d: %w", i, err)
		}
		signed = append(signed, blob)
	}
	return signed, nil
}
