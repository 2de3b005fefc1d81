package service

import (
	"context"
	"fmt"
	"testing"

	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trivia-pay/internal/adapter/adaptertest"
	"github.com/trivia-pay/internal/errors"
	"github.com/trivia-pay/internal/metrics"
	"github.com/trivia-pay/internal/paymenturi"
)

const testExplorer = "https://testnet.explorer.perawallet.app/tx/"

type paymentFixture struct {
	svc       *PaymentService
	ledger    *adaptertest.Ledger
	wallet    *adaptertest.Wallet
	metrics   *metrics.Metrics
	refreshes int
}

func newPaymentFixture(t *testing.T, escrow string) *paymentFixture {
	t.Helper()
	st, w := connectedStore(t, escrow)
	f := &paymentFixture{
		ledger:  adaptertest.NewLedger(),
		wallet:  w,
		metrics: metrics.New(),
	}
	f.svc = NewPaymentService(f.ledger, w, st, func() bool {
		f.refreshes++
		return true
	}, f.metrics, testExplorer)
	return f
}

func TestSend(t *testing.T) {
	f := newPaymentFixture(t, "")

	receipt, err := f.svc.Send(context.Background(), " "+alice+" ", dec("1.5"), "")
	require.NoError(t, err)
	assert.Equal(t, "TX0000", receipt.TxID)
	assert.Equal(t, uint64(1000), receipt.ConfirmedRound)
	assert.Equal(t, alice, receipt.Receiver)
	assert.Equal(t, DefaultPaymentNote, receipt.Note)
	assert.Equal(t, testExplorer+"TX0000", receipt.ExplorerURL)

	signed := f.wallet.SignedTransactions()
	require.Len(t, signed, 1)
	assert.Equal(t, uint64(1_500_000), uint64(signed[0].Amount))
	assert.Equal(t, []byte(DefaultPaymentNote), signed[0].Note)

	assert.Equal(t, 1, f.refreshes)
	assert.Equal(t, float64(1), promtestutil.ToFloat64(f.metrics.PaymentsSubmitted.WithLabelValues(kindSend, "success")))
}

func TestSend_Validation(t *testing.T) {
	f := newPaymentFixture(t, "")

	_, err := f.svc.Send(context.Background(), "not-an-address", dec("1"), "")
	requireCode(t, err, "INVALID_ADDRESS")

	_, err = f.svc.Send(context.Background(), alice, dec("0"), "")
	requireCode(t, err, "INVALID_AMOUNT")

	assert.Zero(t, f.wallet.SignCalls)
	assert.Zero(t, f.refreshes)
}

func TestSend_RequiresSession(t *testing.T) {
	svc := NewPaymentService(adaptertest.NewLedger(), adaptertest.NewWallet(), newStore(""), nil, nil, "")
	_, err := svc.Send(context.Background(), alice, dec("1"), "lunch")
	requireCode(t, err, "WALLET_NOT_CONNECTED")
}

func TestSend_Failures(t *testing.T) {
	t.Run("cancelled in wallet", func(t *testing.T) {
		f := newPaymentFixture(t, "")
		f.wallet.Cancel = true

		_, err := f.svc.Send(context.Background(), alice, dec("1"), "")
		require.Error(t, err)
		assert.True(t, errors.IsUserCancellation(err))
		assert.Zero(t, f.refreshes)
		assert.Equal(t, float64(1), promtestutil.ToFloat64(f.metrics.PaymentsSubmitted.WithLabelValues(kindSend, "failure")))
	})

	t.Run("signing fails", func(t *testing.T) {
		f := newPaymentFixture(t, "")
		f.wallet.SignErr = fmt.Errorf("ledger device locked")

		_, err := f.svc.Send(context.Background(), alice, dec("1"), "")
		requireCode(t, err, "WALLET_ERROR")
	})

	t.Run("submission fails", func(t *testing.T) {
		f := newPaymentFixture(t, "")
		f.ledger.SetErr("submit", fmt.Errorf("overspend"))

		_, err := f.svc.Send(context.Background(), alice, dec("1"), "")
		requireCode(t, err, "LEDGER_ERROR")
		assert.Contains(t, err.Error(), "overspend")
		assert.Zero(t, f.refreshes)
	})
}

func TestPayRequest(t *testing.T) {
	f := newPaymentFixture(t, "")
	uri := paymenturi.Build(bob, dec("2.25"), "Bill: Dinner")

	receipt, err := f.svc.PayRequest(context.Background(), uri, dec("0"), "")
	require.NoError(t, err)
	assert.Equal(t, bob, receipt.Receiver)
	assertDecimal(t, "2.25", receipt.Amount)
	assert.Equal(t, "Bill: Dinner", receipt.Note)

	receipt, err = f.svc.PayRequest(context.Background(), bob, dec("4"), "coffee")
	require.NoError(t, err)
	assertDecimal(t, "4", receipt.Amount)
	assert.Equal(t, "coffee", receipt.Note)
}

func TestPayRequest_Invalid(t *testing.T) {
	f := newPaymentFixture(t, "")

	_, err := f.svc.PayRequest(context.Background(), "bitcoin:xyz", dec("1"), "")
	requireCode(t, err, "INVALID_PAYMENT_REQUEST")

	// A bare address carries no amount
	_, err = f.svc.PayRequest(context.Background(), bob, dec("0"), "")
	requireCode(t, err, "INVALID_AMOUNT")
}

func TestDepositToEscrow(t *testing.T) {
	f := newPaymentFixture(t, vault)

	receipt, err := f.svc.DepositToEscrow(context.Background(), dec("3"))
	require.NoError(t, err)
	assert.Equal(t, vault, receipt.Receiver)
	assert.Equal(t, DepositNote, receipt.Note)
	assert.Equal(t, float64(1), promtestutil.ToFloat64(f.metrics.PaymentsSubmitted.WithLabelValues(kindDeposit, "success")))
}

func TestDepositToEscrow_NotConfigured(t *testing.T) {
	f := newPaymentFixture(t, "")

	_, err := f.svc.DepositToEscrow(context.Background(), dec("3"))
	requireCode(t, err, "ESCROW_NOT_SET")
	assert.Zero(t, f.wallet.SignCalls)
}
