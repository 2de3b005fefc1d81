package adapter

import (
	"context"
	stderrors "errors"
	"strconv"

	algotypes "github.com/algorand/go-algorand-sdk/v2/types"
	"github.com/shopspring/decimal"

	"github.com/trivia-pay/internal/circuitbreaker"
	"github.com/trivia-pay/internal/errors"
	"github.com/trivia-pay/internal/models"
)

// GuardedLedger puts a circuit breaker in front of each lookup of an inner
// Ledger, so a data source that is down fails fast instead of stalling every
// refresh pass. Account lookups get one breaker per address: a broken escrow
// account must not trip the wallet's own balance and history.
type GuardedLedger struct {
	inner    Ledger
	breakers *circuitbreaker.Registry
}

// NewGuardedLedger wraps inner; breakers may be shared with other components
func NewGuardedLedger(inner Ledger, breakers *circuitbreaker.Registry) *GuardedLedger {
	if breakers == nil {
		breakers = circuitbreaker.NewRegistry(nil)
	}
	return &GuardedLedger{inner: inner, breakers: breakers}
}

// Breakers exposes the registry for health reporting
func (g *GuardedLedger) Breakers() *circuitbreaker.Registry {
	return g.breakers
}

// BreakerName is the registry key guarding op for subject
func BreakerName(op, subject string) string {
	if subject == "" {
		return op
	}
	return op + ":" + subject
}

func (g *GuardedLedger) guard(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	err := g.breakers.Get(name).Execute(ctx, fn)
	if stderrors.Is(err, circuitbreaker.ErrCircuitOpen) || stderrors.Is(err, circuitbreaker.ErrTooManyProbes) {
		unavailable := errors.NewServiceUnavailableError("ledger " + name)
		unavailable.Cause = err
		return unavailable
	}
	return err
}

// GetBalance implements Ledger
func (g *GuardedLedger) GetBalance(ctx context.Context, address string) (decimal.Decimal, error) {
	balance := decimal.Zero
	err := g.guard(ctx, BreakerName(OpBalance, address), func(ctx context.Context) error {
		var err error
		balance, err = g.inner.GetBalance(ctx, address)
		return err
	})
	return balance, err
}

// GetAccountTransactions implements Ledger
func (g *GuardedLedger) GetAccountTransactions(ctx context.Context, address string, limit int) ([]models.TransactionRecord, error) {
	var txs []models.TransactionRecord
	err := g.guard(ctx, BreakerName(OpTransactions, address), func(ctx context.Context) error {
		var err error
		txs, err = g.inner.GetAccountTransactions(ctx, address, limit)
		return err
	})
	return txs, err
}

// GetAppGlobalState implements Ledger
func (g *GuardedLedger) GetAppGlobalState(ctx context.Context, appID uint64) ([]models.GlobalStateEntry, error) {
	var entries []models.GlobalStateEntry
	err := g.guard(ctx, BreakerName(OpAppState, strconv.FormatUint(appID, 10)), func(ctx context.Context) error {
		var err error
		entries, err = g.inner.GetAppGlobalState(ctx, appID)
		return err
	})
	return entries, err
}

// BuildPaymentTransaction implements Ledger. Suggested params come from the
// node, not the sender, so one breaker covers every build.
func (g *GuardedLedger) BuildPaymentTransaction(ctx context.Context, from, to string, amount decimal.Decimal, note []byte) (algotypes.Transaction, error) {
	var txn algotypes.Transaction
	err := g.guard(ctx, OpBuild, func(ctx context.Context) error {
		var err error
		txn, err = g.inner.BuildPaymentTransaction(ctx, from, to, amount, note)
		return err
	})
	return txn, err
}

// SubmitSignedTransaction is not guarded: a rejected transaction says nothing
// about the health of the node.
func (g *GuardedLedger) SubmitSignedTransaction(ctx context.Context, signed []byte) (*SubmitResult, error) {
	return g.inner.SubmitSignedTransaction(ctx, signed)
}
