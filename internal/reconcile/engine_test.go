package reconcile

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trivia-pay/internal/adapter"
	"github.com/trivia-pay/internal/adapter/adaptertest"
	"github.com/trivia-pay/internal/circuitbreaker"
	"github.com/trivia-pay/internal/models"
	"github.com/trivia-pay/internal/notify"
	"github.com/trivia-pay/internal/storage"
	"github.com/trivia-pay/internal/store"
	"github.com/trivia-pay/internal/types"
)

const testAppID = 755792571

var (
	wallet  = adaptertest.Address("wallet")
	escrow  = adaptertest.Address("escrow")
	creator = adaptertest.Address("creator")
	day     = time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC)
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func payment(id string, at time.Time, amount, from, to string) models.TransactionRecord {
	return models.TransactionRecord{
		ID:        id,
		Type:      types.TxTypePayment,
		Amount:    dec(amount),
		Sender:    from,
		Receiver:  to,
		Status:    types.StatusSuccess,
		Timestamp: at,
	}
}

func requestNote(t *testing.T, billName string) []byte {
	t.Helper()
	note, err := notify.Encode(notify.NotePayload{
		BillID:         "b1",
		BillName:       billName,
		Share:          dec("2.5"),
		Total:          dec("5"),
		PayeeName:      "Bob",
		PayeeAddress:   wallet,
		CreatorAddress: creator,
		Date:           "Mar 5, 2024",
	})
	require.NoError(t, err)
	return note
}

type fixture struct {
	ledger *adaptertest.Ledger
	store  *store.Controller
	kv     *storage.MemoryKV
	seen   *storage.SeenStore
	engine *Engine
}

func newFixture(t *testing.T, appID uint64, escrowAddr string) *fixture {
	t.Helper()
	f := &fixture{
		ledger: adaptertest.NewLedger(),
		kv:     storage.NewMemoryKV(),
	}
	f.store = store.NewController(store.Initial(types.NetworkTestnet, appID, escrowAddr))
	f.store.Dispatch(store.ConnectWallet{Address: wallet})
	f.seen = storage.NewSeenStore(f.kv, storage.DefaultSeenCapacity)
	require.NoError(t, f.seen.Load(context.Background()))
	f.engine = NewEngine(f.ledger, f.store, f.seen, Options{})
	return f
}

func TestRefreshMergesAndAggregates(t *testing.T) {
	f := newFixture(t, testAppID, escrow)
	t1 := payment("t1", day, "2.5", wallet, escrow)
	t2 := payment("t2", day.Add(-time.Hour), "1", wallet, escrow)
	f.ledger.Balances[wallet] = dec("12.5")
	f.ledger.Balances[escrow] = dec("40")
	f.ledger.SetTransactions(wallet, []models.TransactionRecord{t1, t2})
	f.ledger.SetTransactions(escrow, []models.TransactionRecord{t1})
	f.ledger.GlobalState[testAppID] = []models.GlobalStateEntry{{Key: "deposits", IsUint: true, Uint: 2}}

	report, err := f.engine.Refresh(context.Background(), "")
	require.NoError(t, err)
	assert.False(t, report.Stale)
	assert.Empty(t, report.Failures)

	s := f.store.State()
	require.Len(t, s.RecentTransactions, 2)
	assert.Equal(t, "t1", s.RecentTransactions[0].ID)
	assert.Equal(t, "t2", s.RecentTransactions[1].ID)
	assert.True(t, s.Stats.TotalDeposited.Equal(dec("3.5")))
	assert.Equal(t, 2, s.Stats.TxCount)
	assert.True(t, s.Stats.PoolBalance.Equal(dec("40")))
	require.NotNil(t, s.Balance)
	assert.True(t, s.Balance.Equal(dec("12.5")))
	require.NotNil(t, s.EscrowBalance)
	assert.True(t, s.EscrowBalance.Equal(dec("40")))
	assert.Len(t, s.AppGlobalState, 1)
	assert.NotNil(t, s.LastRefreshed)
	assert.False(t, s.Loading)
	assert.Empty(t, s.FetchError)
}

func TestRefreshWithoutAddressDoesNothing(t *testing.T) {
	f := newFixture(t, 0, "")
	f.store.Dispatch(store.DisconnectWallet{})
	before := f.store.Version()

	report, err := f.engine.Refresh(context.Background(), "")
	require.NoError(t, err)
	assert.True(t, report.Skipped)
	assert.Equal(t, before, f.store.Version())
	assert.Zero(t, f.ledger.Calls("balance"))
}

func TestRefreshSkipsUnconfiguredLookups(t *testing.T) {
	f := newFixture(t, 0, "")
	f.ledger.SetTransactions(wallet, []models.TransactionRecord{payment("t1", day, "1", wallet, creator)})

	_, err := f.engine.Refresh(context.Background(), "")
	require.NoError(t, err)

	assert.Equal(t, 1, f.ledger.Calls("balance"))
	assert.Equal(t, 1, f.ledger.Calls("transactions"))
	assert.Zero(t, f.ledger.Calls("app_state"))

	s := f.store.State()
	assert.Nil(t, s.EscrowBalance)
	assert.Empty(t, s.AppGlobalState)
	assert.True(t, s.Stats.PoolBalance.IsZero())
}

func TestRefreshIsolatesFailures(t *testing.T) {
	f := newFixture(t, testAppID, escrow)
	f.store.Dispatch(
		store.SetEscrowBalance{Balance: dec("7")},
		store.SetAppGlobalState{Entries: []models.GlobalStateEntry{{Key: "old"}}},
	)
	f.ledger.SetErr("balance:"+wallet, fmt.Errorf("node down"))
	f.ledger.SetErr("balance:"+escrow, fmt.Errorf("node down"))
	f.ledger.SetErr("app_state", fmt.Errorf("no such app"))
	f.ledger.SetTransactions(escrow, []models.TransactionRecord{payment("e1", day, "4", creator, escrow)})

	report, err := f.engine.Refresh(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, report.Failures, 3)

	s := f.store.State()
	require.NotNil(t, s.Balance)
	assert.True(t, s.Balance.IsZero(), "failed balance reads as zero")
	assert.True(t, s.EscrowBalance.Equal(dec("7")), "failed escrow balance keeps the previous value")
	assert.Equal(t, "old", s.AppGlobalState[0].Key, "failed global state keeps the previous value")
	assert.True(t, s.Stats.PoolBalance.IsZero())
	assert.Len(t, s.RecentTransactions, 1)
	assert.Equal(t, "App state fetch failed: no such app", s.FetchError)
}

func TestRefreshBrokenEscrowKeepsWalletData(t *testing.T) {
	f := newFixture(t, testAppID, escrow)
	guarded := adapter.NewGuardedLedger(f.ledger, circuitbreaker.NewRegistry(circuitbreaker.DefaultConfig))
	f.engine = NewEngine(guarded, f.store, f.seen, Options{})

	f.ledger.Balances[wallet] = dec("10")
	f.ledger.SetTransactions(wallet, []models.TransactionRecord{payment("w1", day, "1", wallet, creator)})
	f.ledger.SetErr("balance:"+escrow, fmt.Errorf("account not found"))
	f.ledger.SetErr("transactions:"+escrow, fmt.Errorf("account not found"))

	for pass := 1; pass <= 8; pass++ {
		_, err := f.engine.Refresh(context.Background(), "")
		require.NoError(t, err)

		s := f.store.State()
		require.NotNil(t, s.Balance, "pass %d", pass)
		assert.True(t, s.Balance.Equal(dec("10")), "pass %d: balance %s", pass, s.Balance)
		assert.Len(t, s.RecentTransactions, 1, "pass %d", pass)
		assert.Empty(t, s.FetchError, "pass %d", pass)
	}

	breaker, err := guarded.Breakers().Lookup(adapter.BreakerName(adapter.OpTransactions, escrow))
	require.NoError(t, err)
	assert.Equal(t, circuitbreaker.StateOpen, breaker.State())
}

func TestFetchErrorPriority(t *testing.T) {
	f := newFixture(t, testAppID, "")
	f.ledger.SetErr("transactions:"+wallet, fmt.Errorf("indexer down"))
	f.ledger.SetErr("app_state", fmt.Errorf("no such app"))

	report, err := f.engine.Refresh(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "Transaction fetch failed: indexer down", report.FetchError)
	assert.Equal(t, report.FetchError, f.store.State().FetchError)

	f.ledger.SetErr("transactions:"+wallet, nil)
	f.ledger.SetErr("app_state", nil)
	_, err = f.engine.Refresh(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, f.store.State().FetchError, "a clean pass clears the error")
}

func TestFetchErrorMessage(t *testing.T) {
	assert.Empty(t, FetchErrorMessage(nil, nil))
	assert.Equal(t, "App state fetch failed: x", FetchErrorMessage(nil, fmt.Errorf("x")))
	assert.Equal(t, "Transaction fetch failed: y", FetchErrorMessage(fmt.Errorf("y"), fmt.Errorf("x")))
}

func TestRefreshSurfacesNotificationsOnce(t *testing.T) {
	f := newFixture(t, 0, "")
	req := payment("n1", day, "0", creator, wallet)
	req.Note = requestNote(t, "Dinner")
	outbound := payment("n2", day, "0", wallet, creator)
	outbound.Note = requestNote(t, "Ours")
	f.ledger.SetTransactions(wallet, []models.TransactionRecord{req, outbound})

	report, err := f.engine.Refresh(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, report.NewNotifications, 1)

	s := f.store.State()
	require.Len(t, s.Notifications, 1)
	n := s.Notifications[0]
	assert.Equal(t, "n1", n.ID)
	assert.Equal(t, "Dinner", n.BillName)
	assert.Equal(t, creator, n.CreatorAddress)
	assert.True(t, n.Share.Equal(dec("2.5")))
	assert.True(t, n.OnChain)
	assert.True(t, f.seen.Contains("n1"))

	raw, err := f.kv.Get(context.Background(), storage.KeySeenNotifications)
	require.NoError(t, err)
	assert.JSONEq(t, `["n1"]`, raw)

	report, err = f.engine.Refresh(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, report.NewNotifications)
	assert.Len(t, f.store.State().Notifications, 1)
}

func TestDismissedNotificationStaysDismissed(t *testing.T) {
	f := newFixture(t, 0, "")
	req := payment("n1", day, "0", creator, wallet)
	req.Note = requestNote(t, "Dinner")
	f.ledger.SetTransactions(wallet, []models.TransactionRecord{req})

	_, err := f.engine.Refresh(context.Background(), "")
	require.NoError(t, err)
	f.store.Dispatch(store.DismissNotification{ID: "n1"})

	reloaded := storage.NewSeenStore(f.kv, storage.DefaultSeenCapacity)
	require.NoError(t, reloaded.Load(context.Background()))
	engine := NewEngine(f.ledger, f.store, reloaded, Options{})

	_, err = engine.Refresh(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, f.store.State().Notifications)
}

func TestMalformedNoteIsSkipped(t *testing.T) {
	f := newFixture(t, 0, "")
	bad := payment("bad", day, "0", creator, wallet)
	bad.Note = []byte(notify.Prefix + "{not json")
	f.ledger.SetTransactions(wallet, []models.TransactionRecord{bad})

	report, err := f.engine.Refresh(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, report.NewNotifications)
	assert.Empty(t, f.store.State().Notifications)
	assert.False(t, f.seen.Contains("bad"))
}

func TestStalePassIsDiscarded(t *testing.T) {
	f := newFixture(t, 0, "")
	gate := make(chan struct{})
	f.ledger.SetGate(gate)
	f.ledger.SetBalance(wallet, dec("1"))

	var slow *Report
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		r, err := f.engine.Refresh(context.Background(), "")
		assert.NoError(t, err)
		slow = r
	}()

	require.Eventually(t, func() bool {
		return f.ledger.Calls("balance") == 1 && f.ledger.Calls("transactions") == 1
	}, time.Second, 5*time.Millisecond)

	f.ledger.SetGate(nil)
	f.ledger.SetBalance(wallet, dec("2"))

	fast, err := f.engine.Refresh(context.Background(), "")
	require.NoError(t, err)
	assert.False(t, fast.Stale)
	assert.True(t, f.store.State().Loading, "older pass still in flight")

	close(gate)
	wg.Wait()

	require.NotNil(t, slow)
	assert.True(t, slow.Stale)
	assert.Less(t, slow.Generation, fast.Generation)

	s := f.store.State()
	assert.True(t, s.Balance.Equal(dec("2")), "newer pass wins")
	assert.False(t, s.Loading)
}

func TestDisconnectDuringRefreshDiscardsPass(t *testing.T) {
	f := newFixture(t, 0, "")
	gate := make(chan struct{})
	f.ledger.Gate = gate
	f.ledger.Balances[wallet] = dec("5")

	done := make(chan *Report, 1)
	go func() {
		r, _ := f.engine.Refresh(context.Background(), "")
		done <- r
	}()
	require.Eventually(t, func() bool {
		return f.ledger.Calls("balance") == 1 && f.ledger.Calls("transactions") == 1
	}, time.Second, 5*time.Millisecond)

	f.store.Dispatch(store.DisconnectWallet{})
	close(gate)

	r := <-done
	assert.True(t, r.Stale)
	s := f.store.State()
	assert.Nil(t, s.Balance)
	assert.False(t, s.Loading)
}

func TestCancelledRefresh(t *testing.T) {
	f := newFixture(t, 0, "")
	f.ledger.Gate = make(chan struct{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := f.engine.Refresh(ctx, "")
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, IsCancelled(err))
	assert.True(t, report.Stale)
	assert.False(t, f.store.State().Loading)
	assert.Nil(t, f.store.State().LastRefreshed)
}

type recordingArchiver struct {
	mu    sync.Mutex
	owner string
	txs   []models.TransactionRecord
}

func (a *recordingArchiver) Archive(_ context.Context, owner string, txs []models.TransactionRecord) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.owner = owner
	a.txs = txs
	return nil
}

func TestRefreshArchivesMergedHistory(t *testing.T) {
	f := newFixture(t, 0, "")
	archiver := &recordingArchiver{}
	f.engine = NewEngine(f.ledger, f.store, f.seen, Options{Archiver: archiver, HistoryLimit: 1})
	f.ledger.SetTransactions(wallet, []models.TransactionRecord{
		payment("t1", day, "1", wallet, creator),
		payment("t2", day, "1", wallet, creator),
	})

	_, err := f.engine.Refresh(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, wallet, archiver.owner)
	assert.Len(t, archiver.txs, 1, "history limit applies per account")
}

func TestDeriveStatsCountsOnlySuccessfulPayments(t *testing.T) {
	txs := []models.TransactionRecord{
		payment("a", day, "1.23456", wallet, creator),
		payment("b", day, "2", wallet, creator),
		{ID: "c", Type: types.TxTypeAppCall, Amount: dec("9"), Status: types.StatusSuccess},
		{ID: "d", Type: types.TxTypePayment, Amount: dec("9"), Status: types.StatusFailed},
	}
	stats := DeriveStats(txs, dec("3"))
	assert.True(t, stats.TotalDeposited.Equal(dec("3.235")), stats.TotalDeposited.String())
	assert.Equal(t, 4, stats.TxCount)
	assert.True(t, stats.PoolBalance.Equal(dec("3")))
}

func TestMergeProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	genTxs := gen.SliceOf(gen.IntRange(0, 15)).Map(func(ids []int) []models.TransactionRecord {
		out := make([]models.TransactionRecord, len(ids))
		for i, id := range ids {
			out[i] = payment(fmt.Sprintf("t%d", id), day.Add(time.Duration(id%5)*time.Minute), "1", wallet, escrow)
		}
		return out
	})

	properties.Property("merged ids are unique and cover both inputs", prop.ForAll(
		func(a, b []models.TransactionRecord) bool {
			merged := MergeTransactions(a, b)
			want := make(map[string]bool)
			for _, tx := range append(append([]models.TransactionRecord{}, a...), b...) {
				want[tx.ID] = true
			}
			got := make(map[string]bool)
			for _, tx := range merged {
				if got[tx.ID] {
					return false
				}
				got[tx.ID] = true
			}
			return len(got) == len(want)
		},
		genTxs, genTxs,
	))

	properties.Property("merged list is newest first", prop.ForAll(
		func(a, b []models.TransactionRecord) bool {
			merged := MergeTransactions(a, b)
			for i := 1; i < len(merged); i++ {
				if merged[i].Timestamp.After(merged[i-1].Timestamp) {
					return false
				}
			}
			return true
		},
		genTxs, genTxs,
	))

	properties.TestingRun(t)
}

func TestMergePrefersWalletRecord(t *testing.T) {
	w := payment("t1", day, "1", wallet, escrow)
	e := w
	e.Amount = dec("99")

	merged := MergeTransactions([]models.TransactionRecord{w}, []models.TransactionRecord{e})
	require.Len(t, merged, 1)
	assert.True(t, merged[0].Amount.Equal(dec("1")))
}
