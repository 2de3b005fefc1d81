package service

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trivia-pay/internal/adapter/adaptertest"
	"github.com/trivia-pay/internal/errors"
	"github.com/trivia-pay/internal/store"
	"github.com/trivia-pay/internal/types"
)

var (
	me    = adaptertest.Address("me")
	alice = adaptertest.Address("alice")
	bob   = adaptertest.Address("bob")
	carol = adaptertest.Address("carol")
	vault = adaptertest.Address("escrow")
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func assertDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, dec(want).Equal(got), "want %s, got %s", want, got)
}

func requireCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, code, errors.Categorize(err).Code)
}

func newStore(escrow string) *store.Controller {
	return store.NewController(store.Initial(types.NetworkTestnet, 0, escrow))
}

// connectedStore returns a store with me connected and a wallet holding me
func connectedStore(t *testing.T, escrow string) (*store.Controller, *adaptertest.Wallet) {
	t.Helper()
	w := adaptertest.NewWallet(me)
	_, err := w.Connect(context.Background())
	require.NoError(t, err)
	st := newStore(escrow)
	st.Dispatch(store.ConnectWallet{Address: me})
	return st, w
}
