// Package reconcile refreshes the organizer's view of the ledger.
//
// A pass queries balances, history and application state in parallel, merges
// and aggregates the results, scans inbound payments for bill requests and
// applies everything to the store in one atomic batch. Individual lookups may
// fail without failing the pass.
package reconcile

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/trivia-pay/internal/adapter"
	"github.com/trivia-pay/internal/logging"
	"github.com/trivia-pay/internal/metrics"
	"github.com/trivia-pay/internal/models"
	"github.com/trivia-pay/internal/storage"
	"github.com/trivia-pay/internal/store"
)

// DefaultHistoryLimit is the number of transactions fetched per account
const DefaultHistoryLimit = 50

// Lookup names used in reports and metrics
const (
	LookupBalance        = "balance"
	LookupEscrowBalance  = "escrow_balance"
	LookupWalletHistory  = "wallet_transactions"
	LookupEscrowHistory  = "escrow_transactions"
	LookupAppGlobalState = "app_state"
)

// Archiver receives the merged history of every applied pass
type Archiver interface {
	Archive(ctx context.Context, owner string, txs []models.TransactionRecord) error
}

// Options configures an Engine
type Options struct {
	HistoryLimit int
	Archiver     Archiver
	Metrics      *metrics.Metrics
}

// Report describes one reconciliation pass
type Report struct {
	Generation uint64
	Address    string
	// Skipped is set when there was no address to refresh
	Skipped bool
	// Stale is set when a newer pass was applied first or the session
	// changed while the lookups were in flight; nothing was applied
	Stale            bool
	Balance          decimal.Decimal
	Transactions     int
	Stats            models.Stats
	NewNotifications []models.Notification
	Failures         map[string]error
	FetchError       string
	Duration         time.Duration
}

// Engine runs reconciliation passes against a ledger and a store
type Engine struct {
	ledger       adapter.Ledger
	store        *store.Controller
	seen         *storage.SeenStore
	archiver     Archiver
	metrics      *metrics.Metrics
	historyLimit int
	now          func() time.Time
	logger       *logging.Logger

	mu          sync.Mutex
	issued      uint64
	lastApplied uint64
	inFlight    int
}

// NewEngine creates an engine. seen must already be loaded.
func NewEngine(ledger adapter.Ledger, st *store.Controller, seen *storage.SeenStore, opts Options) *Engine {
	limit := opts.HistoryLimit
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if seen == nil {
		seen = storage.NewSeenStore(storage.NewMemoryKV(), storage.DefaultSeenCapacity)
	}
	return &Engine{
		ledger:       ledger,
		store:        st,
		seen:         seen,
		archiver:     opts.Archiver,
		metrics:      opts.Metrics,
		historyLimit: limit,
		now:          time.Now,
		logger:       logging.WithComponent("reconcile"),
	}
}

// lookups holds the settled results of one pass
type lookups struct {
	balance       decimal.Decimal
	escrowBalance *decimal.Decimal
	walletTxs     []models.TransactionRecord
	escrowTxs     []models.TransactionRecord
	globalState   []models.GlobalStateEntry
	stateFetched  bool
	failures      map[string]error
}

// Refresh runs one pass for addressOverride, or for the connected address
// when the override is empty. Without any address it does nothing.
func (e *Engine) Refresh(ctx context.Context, addressOverride string) (*Report, error) {
	started := e.now()
	snapshot := e.store.State()

	address := addressOverride
	if address == "" {
		address = snapshot.Address
	}
	if address == "" {
		e.metrics.ObserveRefresh(metrics.OutcomeSkipped, 0)
		return &Report{Skipped: true}, nil
	}

	e.mu.Lock()
	e.issued++
	gen := e.issued
	e.inFlight++
	e.mu.Unlock()

	log := e.logger.WithFields(map[string]interface{}{"address": address, "generation": gen})
	log.Debug("Refresh started")

	e.store.Dispatch(store.SetLoading{Loading: true}, store.SetFetchError{Message: ""})

	res := e.fetch(ctx, address, snapshot.EscrowAddress, snapshot.AppID)

	report := &Report{
		Generation: gen,
		Address:    address,
		Balance:    res.balance,
		Failures:   res.failures,
	}
	for name, err := range res.failures {
		e.metrics.LookupFailed(name)
		log.WithError(err).WithField("lookup", name).Warn("Lookup failed")
	}

	if err := ctx.Err(); err != nil {
		report.Stale = true
		e.finish()
		report.Duration = e.now().Sub(started)
		e.metrics.ObserveRefresh(metrics.OutcomeStale, report.Duration)
		return report, err
	}

	merged := MergeTransactions(res.walletTxs, res.escrowTxs)
	pool := decimal.Zero
	if res.escrowBalance != nil {
		pool = *res.escrowBalance
	}
	report.Stats = DeriveStats(merged, pool)
	report.Transactions = len(merged)
	report.FetchError = FetchErrorMessage(res.failures[LookupWalletHistory], res.failures[LookupAppGlobalState])

	e.store.Apply(func(current store.State) []store.Action {
		e.mu.Lock()
		defer e.mu.Unlock()
		e.inFlight--
		loading := store.SetLoading{Loading: e.inFlight > 0}

		if gen <= e.lastApplied || current.Address != snapshot.Address {
			report.Stale = true
			return []store.Action{loading}
		}
		e.lastApplied = gen

		report.NewNotifications = ScanNotifications(merged, address, e.seen.Contains, current.HasNotification)

		actions := []store.Action{store.SetBalance{Balance: res.balance}}
		if res.escrowBalance != nil {
			actions = append(actions, store.SetEscrowBalance{Balance: *res.escrowBalance})
		}
		actions = append(actions,
			store.SetRecentTransactions{Transactions: merged},
			store.UpdateStats{Stats: report.Stats},
		)
		if res.stateFetched {
			actions = append(actions, store.SetAppGlobalState{Entries: res.globalState})
		}
		actions = append(actions, store.SetLastRefreshed{At: e.now()})
		for _, n := range report.NewNotifications {
			actions = append(actions, store.AddNotification{Notification: n})
		}
		if report.FetchError != "" {
			actions = append(actions, store.SetFetchError{Message: report.FetchError})
		}
		return append(actions, loading)
	})

	report.Duration = e.now().Sub(started)
	if report.Stale {
		log.Debug("Discarded stale refresh")
		e.metrics.ObserveRefresh(metrics.OutcomeStale, report.Duration)
		return report, nil
	}

	e.afterApply(ctx, log, address, merged, report)
	e.metrics.ObserveRefresh(metrics.OutcomeApplied, report.Duration)
	log.WithFields(map[string]interface{}{
		"transactions":  report.Transactions,
		"notifications": len(report.NewNotifications),
		"failures":      len(report.Failures),
		"duration_ms":   report.Duration.Milliseconds(),
	}).Info("Refresh applied")
	return report, nil
}

// finish closes an in-flight pass that applies nothing
func (e *Engine) finish() {
	e.store.Apply(func(store.State) []store.Action {
		e.mu.Lock()
		defer e.mu.Unlock()
		e.inFlight--
		return []store.Action{store.SetLoading{Loading: e.inFlight > 0}}
	})
}

// afterApply persists seen ids and archives history; both are best effort
func (e *Engine) afterApply(ctx context.Context, log *logging.Logger, address string, merged []models.TransactionRecord, report *Report) {
	if n := len(report.NewNotifications); n > 0 {
		ids := make([]string, 0, n)
		for _, note := range report.NewNotifications {
			ids = append(ids, note.ID)
		}
		if err := e.seen.Record(ctx, ids...); err != nil {
			log.WithError(err).Warn("Failed to persist seen notifications")
		}
		e.metrics.NotificationsFound(n)
	}

	if e.archiver != nil && len(merged) > 0 {
		if err := e.archiver.Archive(ctx, address, merged); err != nil {
			log.WithError(err).Warn("Failed to archive transactions")
		}
	}
}

// fetch runs every lookup concurrently and waits for all of them
func (e *Engine) fetch(ctx context.Context, address, escrow string, appID uint64) *lookups {
	res := &lookups{failures: make(map[string]error)}
	var mu sync.Mutex
	var wg sync.WaitGroup

	run := func(name string, fn func() error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(); err != nil {
				mu.Lock()
				res.failures[name] = err
				mu.Unlock()
			}
		}()
	}

	run(LookupBalance, func() error {
		bal, err := e.ledger.GetBalance(ctx, address)
		if err != nil {
			return err
		}
		mu.Lock()
		res.balance = bal
		mu.Unlock()
		return nil
	})
	run(LookupWalletHistory, func() error {
		txs, err := e.ledger.GetAccountTransactions(ctx, address, e.historyLimit)
		if err != nil {
			return err
		}
		mu.Lock()
		res.walletTxs = txs
		mu.Unlock()
		return nil
	})

	if escrow != "" {
		run(LookupEscrowBalance, func() error {
			bal, err := e.ledger.GetBalance(ctx, escrow)
			if err != nil {
				return err
			}
			mu.Lock()
			res.escrowBalance = &bal
			mu.Unlock()
			return nil
		})
		run(LookupEscrowHistory, func() error {
			txs, err := e.ledger.GetAccountTransactions(ctx, escrow, e.historyLimit)
			if err != nil {
				return err
			}
			mu.Lock()
			res.escrowTxs = txs
			mu.Unlock()
			return nil
		})
	}

	if appID != 0 {
		run(LookupAppGlobalState, func() error {
			entries, err := e.ledger.GetAppGlobalState(ctx, appID)
			if err != nil {
				return err
			}
			mu.Lock()
			res.globalState = entries
			res.stateFetched = true
			mu.Unlock()
			return nil
		})
	} else {
		res.globalState = []models.GlobalStateEntry{}
		res.stateFetched = true
	}

	wg.Wait()
	return res
}

// IsCancelled reports whether err ended a pass because its context was done
func IsCancelled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
