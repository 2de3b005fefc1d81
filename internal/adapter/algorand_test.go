package adapter

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trivia-pay/internal/config"
	"github.com/trivia-pay/internal/types"
)

// newFakeNode serves the handful of algod and indexer routes the ledger uses
func newFakeNode(t *testing.T) *httptest.Server {
	t.Helper()
	b64 := func(s string) string { return base64.StdEncoding.EncodeToString([]byte(s)) }

	mux := http.NewServeMux()
	mux.HandleFunc("/v2/accounts/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if strings.HasSuffix(r.URL.Path, "/transactions") {
			assert.Equal(t, "2", r.URL.Query().Get("limit"))
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"current-round": 100,
				"transactions": []map[string]interface{}{
					{
						"id":              "PAY1",
						"tx-type":         "pay",
						"sender":          bob,
						"confirmed-round": 90,
						"round-time":      1709596800,
						"note":            b64("TRIVIA_PAY_REQUEST:{}"),
						"payment-transaction": map[string]interface{}{
							"amount":   2500000,
							"receiver": alice,
						},
					},
					{
						"id":              "APP1",
						"tx-type":         "appl",
						"sender":          alice,
						"confirmed-round": 91,
						"application-transaction": map[string]interface{}{
							"application-id": 755792571,
						},
					},
				},
			})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"address": alice,
			"amount":  12345678,
		})
	})
	mux.HandleFunc("/v2/applications/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"id": 755792571,
			"params": map[string]interface{}{
				"creator": alice,
				"global-state": []map[string]interface{}{
					{"key": b64("deposits"), "value": map[string]interface{}{"type": 2, "uint": 3}},
					{"key": b64("name"), "value": map[string]interface{}{"type": 1, "bytes": b64("Trivia")}},
				},
			},
		})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestLedger(t *testing.T) *AlgorandLedger {
	t.Helper()
	srv := newFakeNode(t)
	l, err := NewAlgorandLedger(&config.LedgerConfig{
		Network:    types.NetworkLocalnet,
		AlgodURL:   srv.URL,
		IndexerURL: srv.URL,
		Timeout:    5 * time.Second,
	})
	require.NoError(t, err)
	return l
}

func TestAlgorandLedgerBalance(t *testing.T) {
	l := newTestLedger(t)

	bal, err := l.GetBalance(context.Background(), alice)
	require.NoError(t, err)
	assert.True(t, bal.Equal(decimal.RequireFromString("12.345678")), bal.String())
}

func TestAlgorandLedgerTransactions(t *testing.T) {
	l := newTestLedger(t)

	txs, err := l.GetAccountTransactions(context.Background(), alice, 2)
	require.NoError(t, err)
	require.Len(t, txs, 2)

	assert.Equal(t, "PAY1", txs[0].ID)
	assert.Equal(t, types.TxTypePayment, txs[0].Type)
	assert.True(t, txs[0].Amount.Equal(decimal.RequireFromString("2.5")))
	assert.Equal(t, alice, txs[0].Receiver)
	assert.Equal(t, []byte("TRIVIA_PAY_REQUEST:{}"), txs[0].Note)

	assert.Equal(t, types.TxTypeAppCall, txs[1].Type)
	assert.Equal(t, "App #755792571", txs[1].ReceiverShort)
}

func TestAlgorandLedgerGlobalState(t *testing.T) {
	l := newTestLedger(t)

	entries, err := l.GetAppGlobalState(context.Background(), 755792571)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "deposits", entries[0].Key)
	assert.Equal(t, uint64(3), entries[0].Value())
	assert.Equal(t, "Trivia", entries[1].Value())
}

func TestAlgorandLedgerReportsFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"unavailable"}`, http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	l, err := NewAlgorandLedger(&config.LedgerConfig{AlgodURL: srv.URL, IndexerURL: srv.URL, Timeout: time.Second})
	require.NoError(t, err)
	l.retry.InitialDelay = time.Millisecond

	_, err = l.GetBalance(context.Background(), alice)
	require.Error(t, err)
	var opErr *LedgerOpError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, OpBalance, opErr.Op)
}

func TestAlgorandLedgerRetriesOnlyTransientFailures(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		attempts int32
	}{
		{"bad request", http.StatusBadRequest, 1},
		{"invalid token", http.StatusUnauthorized, 1},
		{"not found", http.StatusNotFound, 1},
		{"rate limited", http.StatusTooManyRequests, 3},
		{"internal error", http.StatusInternalServerError, 3},
		{"unavailable", http.StatusServiceUnavailable, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var hits int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&hits, 1)
				http.Error(w, `{"message":"nope"}`, tt.status)
			}))
			defer srv.Close()

			l, err := NewAlgorandLedger(&config.LedgerConfig{AlgodURL: srv.URL, IndexerURL: srv.URL, Timeout: time.Second})
			require.NoError(t, err)
			l.retry.InitialDelay = time.Millisecond

			_, err = l.GetBalance(context.Background(), alice)
			require.Error(t, err)
			assert.Equal(t, tt.attempts, atomic.LoadInt32(&hits))
		})
	}
}

func TestClassifyNodeError(t *testing.T) {
	notFound := classifyNodeError("indexer", fmt.Errorf("HTTP 404: {\"message\":\"no accounts found\"}"))
	assert.Equal(t, http.StatusNotFound, notFound.StatusCode)
	assert.Contains(t, notFound.Error(), "no accounts found")

	assert.Equal(t, "LEDGER_ERROR", classifyNodeError("algod", fmt.Errorf("dial tcp: connection refused")).Code)
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", classifyNodeError("algod", fmt.Errorf("HTTP 429: slow down")).Code)

	assert.True(t, retryableNodeError(fmt.Errorf("dial tcp: connection refused")))
	assert.False(t, retryableNodeError(fmt.Errorf("HTTP 400: bad address")))
	assert.False(t, retryableNodeError(context.DeadlineExceeded))
}
