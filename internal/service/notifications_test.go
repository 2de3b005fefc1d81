package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trivia-pay/internal/models"
	"github.com/trivia-pay/internal/paymenturi"
	"github.com/trivia-pay/internal/store"
)

func notificationStore() *store.Controller {
	st := newStore("")
	st.Dispatch(
		store.AddNotification{Notification: models.Notification{ID: "n1", BillName: "Dinner", Share: dec("2.5"), CreatorAddress: alice}},
		store.AddNotification{Notification: models.Notification{ID: "n2", BillName: "Taxi", Share: dec("1"), CreatorAddress: models.UnknownCreator}},
	)
	return st
}

func TestNotifications_ReadAndDismiss(t *testing.T) {
	st := notificationStore()
	svc := NewNotificationService(st)

	assert.Len(t, svc.List(true), 2)

	require.NoError(t, svc.MarkRead("n1"))
	unread := svc.List(true)
	require.Len(t, unread, 1)
	assert.Equal(t, "n2", unread[0].ID)
	requireCode(t, svc.MarkRead("missing"), "NOTIFICATION_NOT_FOUND")

	require.NoError(t, svc.Dismiss("n2"))
	assert.Len(t, svc.List(false), 1)
	requireCode(t, svc.Dismiss("n2"), "NOTIFICATION_NOT_FOUND")
}

func TestNotifications_Bulk(t *testing.T) {
	st := notificationStore()
	svc := NewNotificationService(st)

	assert.Equal(t, 2, svc.MarkAllRead())
	before := st.Version()
	assert.Zero(t, svc.MarkAllRead())
	assert.Equal(t, before, st.Version(), "nothing to change must not bump the version")

	assert.Equal(t, 2, svc.DismissAll())
	assert.Empty(t, svc.List(false))
}

func TestNotifications_PaymentRequest(t *testing.T) {
	svc := NewNotificationService(notificationStore())

	req, err := svc.PaymentRequest("n1")
	require.NoError(t, err)
	parsed, err := paymenturi.Parse(req.URI)
	require.NoError(t, err)
	assert.Equal(t, alice, parsed.Address)
	assertDecimal(t, "2.5", parsed.Amount)
	assert.Equal(t, "Bill: Dinner", parsed.Note)

	_, err = svc.PaymentRequest("n2")
	requireCode(t, err, "INVALID_PAYMENT_REQUEST")

	_, err = svc.PaymentRequest("missing")
	requireCode(t, err, "NOTIFICATION_NOT_FOUND")
}
