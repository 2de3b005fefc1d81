package api

import (
	"bytes"
	"fmt"
	"image/png"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trivia-pay/internal/models"
	"github.com/trivia-pay/internal/service"
	"github.com/trivia-pay/internal/store"
	"github.com/trivia-pay/internal/types"
)

func billBody() map[string]interface{} {
	return map[string]interface{}{
		"name":  "Dinner",
		"note":  "Friday",
		"total": "10",
		"payees": []map[string]string{
			{"name": "Alice", "address": alice},
			{"name": "Bob", "address": bob},
			{"name": "", "address": ""},
		},
	}
}

func TestCreateBill_Flow(t *testing.T) {
	env := newTestEnv(t)
	env.connect(t)

	w := env.do(t, "POST", "/api/bills", billBody())
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var created service.CreateBillResult
	decodeBody(t, w, &created)
	assert.Equal(t, types.NotifySent, created.Notify.Outcome)
	require.Len(t, created.Bill.Payees, 2)
	assert.True(t, dec("5").Equal(created.Bill.Share))

	billID := created.Bill.ID
	payeeID := created.Bill.Payees[0].ID

	w = env.do(t, "POST", fmt.Sprintf("/api/bills/%s/payees/%s/paid", billID, payeeID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var paid struct {
		Progress int  `json:"progress"`
		Settled  bool `json:"settled"`
	}
	decodeBody(t, w, &paid)
	assert.Equal(t, 50, paid.Progress)
	assert.False(t, paid.Settled)

	w = env.do(t, "GET", "/api/bills/"+billID, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, "DELETE", "/api/bills/"+billID, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = env.do(t, "GET", "/api/bills/"+billID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "BILL_NOT_FOUND", errorCode(t, w))
}

func TestCreateBill_Errors(t *testing.T) {
	env := newTestEnv(t)

	body := billBody()
	body["payees"] = []map[string]string{{"name": "Alice", "address": "ABC"}}
	w := env.do(t, "POST", "/api/bills", body)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_ADDRESS", errorCode(t, w))

	w = env.do(t, "POST", "/api/bills", "not an object")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Without a session the bill is kept and notifications are skipped
	w = env.do(t, "POST", "/api/bills", billBody())
	require.Equal(t, http.StatusCreated, w.Code)
	var created service.CreateBillResult
	decodeBody(t, w, &created)
	assert.Equal(t, types.NotifySkipped, created.Notify.Outcome)
}

func TestPayeeEndpoints(t *testing.T) {
	env := newTestEnv(t)
	env.connect(t)
	env.ledger.SetBalance(bob, dec("1"))

	w := env.do(t, "POST", "/api/bills", billBody())
	require.Equal(t, http.StatusCreated, w.Code)
	var created service.CreateBillResult
	decodeBody(t, w, &created)
	payee := created.Bill.Payees[1]

	w = env.do(t, "GET", fmt.Sprintf("/api/bills/%s/payees/%s/balance", created.Bill.ID, payee.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var check service.BalanceCheck
	decodeBody(t, w, &check)
	assert.False(t, check.CanPay)

	w = env.do(t, "GET", fmt.Sprintf("/api/bills/%s/payees/%s/request", created.Bill.ID, payee.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var req service.PaymentRequest
	decodeBody(t, w, &req)
	assert.Contains(t, req.URI, "algorand://"+me)

	w = env.do(t, "GET", fmt.Sprintf("/api/bills/%s/payees/%s/request?format=png", created.Bill.ID, payee.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	_, err := png.Decode(bytes.NewReader(w.Body.Bytes()))
	assert.NoError(t, err)

	w = env.do(t, "POST", fmt.Sprintf("/api/bills/%s/payees/missing/paid", created.Bill.ID), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "PAYEE_NOT_FOUND", errorCode(t, w))
}

func TestGoalEndpoints(t *testing.T) {
	env := newTestEnv(t)
	env.store.Dispatch(store.SetBalance{Balance: dec("10")})

	w := env.do(t, "POST", "/api/goals", map[string]interface{}{"name": "Trip", "target": "8"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var goal models.Goal
	decodeBody(t, w, &goal)
	assert.Equal(t, models.DefaultGoalIcon, goal.Icon)

	w = env.do(t, "POST", "/api/goals/"+goal.ID+"/deposit", map[string]interface{}{"amount": 20})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "INSUFFICIENT_BALANCE", errorCode(t, w))

	w = env.do(t, "POST", "/api/goals/"+goal.ID+"/deposit", map[string]interface{}{"amount": "6"})
	require.Equal(t, http.StatusOK, w.Code)
	var deposited struct {
		Percent int `json:"percent"`
	}
	decodeBody(t, w, &deposited)
	assert.Equal(t, 75, deposited.Percent)

	w = env.do(t, "GET", "/api/goals", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"available":"4"`)

	w = env.do(t, "DELETE", "/api/goals/"+goal.ID, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = env.do(t, "DELETE", "/api/goals/"+goal.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestNotificationEndpoints(t *testing.T) {
	env := newTestEnv(t)
	env.store.Dispatch(
		store.AddNotification{Notification: models.Notification{ID: "n1", BillName: "Dinner", Share: dec("2"), CreatorAddress: alice}},
		store.AddNotification{Notification: models.Notification{ID: "n2", BillName: "Taxi", Share: dec("1"), CreatorAddress: bob}},
	)

	w := env.do(t, "POST", "/api/notifications/n1/read", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = env.do(t, "GET", "/api/notifications?unread=true", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Notifications []models.Notification `json:"notifications"`
		Unread        int                   `json:"unread"`
	}
	decodeBody(t, w, &list)
	require.Len(t, list.Notifications, 1)
	assert.Equal(t, "n2", list.Notifications[0].ID)
	assert.Equal(t, 1, list.Unread)

	w = env.do(t, "GET", "/api/notifications/n1/request", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), alice)

	w = env.do(t, "DELETE", "/api/notifications/n1", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = env.do(t, "DELETE", "/api/notifications/n1", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOTIFICATION_NOT_FOUND", errorCode(t, w))

	w = env.do(t, "DELETE", "/api/notifications", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, env.store.State().Notifications)
}

func TestPaymentEndpoints(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, "POST", "/api/payments", map[string]interface{}{"receiver": alice, "amount": "1"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "WALLET_NOT_CONNECTED", errorCode(t, w))

	env.connect(t)

	w = env.do(t, "POST", "/api/payments", map[string]interface{}{"receiver": alice, "amount": "1.5", "note": "lunch"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var receipt service.Receipt
	decodeBody(t, w, &receipt)
	assert.Equal(t, alice, receipt.Receiver)
	assert.Equal(t, "lunch", receipt.Note)

	w = env.do(t, "POST", "/api/payments", map[string]interface{}{"uri": "algorand://" + bob + "?amount=250000&note=Coffee"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	decodeBody(t, w, &receipt)
	assert.True(t, dec("0.25").Equal(receipt.Amount))
	assert.Equal(t, "Coffee", receipt.Note)

	w = env.do(t, "POST", "/api/payments", map[string]interface{}{"amount": "1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, "POST", "/api/payments", map[string]interface{}{"receiver": alice, "amount": "-1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_AMOUNT", errorCode(t, w))

	env.wallet.Cancel = true
	w = env.do(t, "POST", "/api/payments", map[string]interface{}{"receiver": alice, "amount": "1"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "SIGNING_CANCELLED", errorCode(t, w))
}

func TestDepositEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.connect(t)

	w := env.do(t, "POST", "/api/deposits", map[string]interface{}{"amount": "2"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var receipt service.Receipt
	decodeBody(t, w, &receipt)
	assert.Equal(t, vault, receipt.Receiver)
	assert.Equal(t, service.DepositNote, receipt.Note)
}

func TestReceiveAndScan(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, "GET", "/api/receive", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	env.connect(t)
	w = env.do(t, "GET", "/api/receive?amount=1.25&note=Rent", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var req service.PaymentRequest
	decodeBody(t, w, &req)
	assert.Equal(t, "algorand://"+me+"?amount=1250000&note=Rent", req.URI)

	w = env.do(t, "GET", "/api/receive?amount=abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, "GET", "/api/receive/qr?amount=1.25", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	_, err := png.Decode(bytes.NewReader(w.Body.Bytes()))
	assert.NoError(t, err)

	w = env.do(t, "POST", "/api/scan", map[string]string{"data": req.URI})
	require.Equal(t, http.StatusOK, w.Code)
	var scanned struct {
		Address   string `json:"address"`
		Amount    string `json:"amount"`
		Note      string `json:"note"`
		HasAmount bool   `json:"hasAmount"`
	}
	decodeBody(t, w, &scanned)
	assert.Equal(t, me, scanned.Address)
	assert.Equal(t, "1.25", scanned.Amount)
	assert.Equal(t, "Rent", scanned.Note)
	assert.True(t, scanned.HasAmount)

	w = env.do(t, "POST", "/api/scan", map[string]string{"data": "hello"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_PAYMENT_REQUEST", errorCode(t, w))
}

func TestTransactionsAndAnalytics(t *testing.T) {
	env := newTestEnv(t)
	now := time.Now().UTC()
	env.store.Dispatch(
		store.ConnectWallet{Address: me},
		store.SetRecentTransactions{Transactions: []models.TransactionRecord{
			{ID: "t1", Type: types.TxTypePayment, Amount: dec("2"), Sender: me, Receiver: alice, Status: types.StatusSuccess, Timestamp: now},
			{ID: "t2", Type: types.TxTypeAppCall, Amount: dec("0"), Sender: me, Status: types.StatusSuccess, Timestamp: now},
			{ID: "t3", Type: types.TxTypePayment, Amount: dec("1"), Sender: bob, Receiver: me, Status: types.StatusPending, Timestamp: now},
		}},
	)

	w := env.do(t, "GET", "/api/transactions?type=Payment&status=All", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var page service.TransactionPage
	decodeBody(t, w, &page)
	assert.Equal(t, 2, page.Shown)
	assert.Equal(t, 3, page.Total)
	assert.Equal(t, 1, page.Pending)
	assert.True(t, dec("2").Equal(page.Volume))

	w = env.do(t, "GET", "/api/transactions?limit=1", nil)
	decodeBody(t, w, &page)
	assert.Len(t, page.Transactions, 1)

	w = env.do(t, "GET", "/api/analytics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var overview service.Analytics
	decodeBody(t, w, &overview)
	assert.Equal(t, 2, overview.Transactions.PaymentCount)
	assert.True(t, dec("3").Equal(overview.Transactions.TotalSpent))

	w = env.do(t, "GET", "/api/dashboard", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var dash service.Dashboard
	decodeBody(t, w, &dash)
	assert.True(t, dash.Connected)
	assert.Len(t, dash.RecentTransactions, 3)

	w = env.do(t, "GET", "/api/analytics/history", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = env.do(t, "GET", "/api/analytics/history?days=0", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
