package notify

import (
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trivia-pay/internal/models"
	"github.com/trivia-pay/internal/types"
)

const (
	creator = "ER745AB7H64MC7RO5PEL7YCDQ245JOHVPHN5WHO3FCGPI5Y7GHL5QGAT64"
	payee   = "BOBBOBBOBBOBBOBBOBBOBBOBBOBBOBBOBBOBBOBBOBBOBBOBBOBBOBBOBB"
)

func samplePayload() NotePayload {
	return NotePayload{
		BillID:         "bill-1",
		BillName:       "Dinner",
		BillNote:       "Friday night",
		Share:          models.EqualShare(decimal.NewFromInt(10), 3),
		Total:          decimal.NewFromInt(10),
		PayeeName:      "Bob",
		PayeeAddress:   payee,
		CreatorAddress: creator,
		Date:           "Mar 5, 2024",
	}
}

func TestEncodeGolden(t *testing.T) {
	note, err := Encode(samplePayload())
	require.NoError(t, err)

	g := goldie.New(t, goldie.WithFixtureDir("testdata/golden"), goldie.WithNameSuffix(".golden"))
	g.Assert(t, "bill_request_note", note)
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	in := samplePayload()
	note, err := Encode(in)
	require.NoError(t, err)

	out, ok := Decode(note)
	require.True(t, ok)
	assert.Equal(t, in.BillID, out.BillID)
	assert.Equal(t, in.BillName, out.BillName)
	assert.Equal(t, in.PayeeAddress, out.PayeeAddress)
	assert.True(t, in.Share.Equal(out.Share))
	assert.True(t, in.Total.Equal(out.Total))
	assert.True(t, out.Has("share"))
}

func TestDecodeFailsOpen(t *testing.T) {
	tests := []struct {
		name string
		note string
	}{
		{"empty", ""},
		{"no prefix", `{"billId":"x"}`},
		{"wrong prefix", `TRIVIA_PAY:{"billId":"x"}`},
		{"truncated json", Prefix + `{"billId":`},
		{"not an object", Prefix + `[1,2,3]`},
		{"null body", Prefix + `null`},
		{"bad number", Prefix + `{"share":"lots"}`},
		{"prefix only", Prefix},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotPanics(t, func() {
				p, ok := Decode([]byte(tt.note))
				assert.False(t, ok)
				assert.Nil(t, p)
			})
		})
	}
}

func TestDecodeRecordsPresence(t *testing.T) {
	p, ok := Decode([]byte(Prefix + `{"billName":"Rent","share":12.5}`))
	require.True(t, ok)
	assert.True(t, p.Has("billName"))
	assert.True(t, p.Has("share"))
	assert.False(t, p.Has("billId"))
	assert.False(t, p.Has("creatorAddress"))
	assert.True(t, p.Share.Equal(decimal.RequireFromString("12.5")))
}

func TestToNotificationDefaults(t *testing.T) {
	tx := models.TransactionRecord{
		ID:        "TX123",
		Type:      types.TxTypePayment,
		Sender:    creator,
		Receiver:  payee,
		Timestamp: time.Date(2024, time.March, 5, 0, 0, 0, 0, time.UTC),
	}

	p, ok := Decode([]byte(Prefix + `{}`))
	require.True(t, ok)

	n := ToNotification(p, tx, payee)
	assert.Equal(t, "TX123", n.ID)
	assert.Equal(t, "TX123", n.BillID)
	assert.Equal(t, models.DefaultBillName, n.BillName)
	assert.Equal(t, creator, n.CreatorAddress)
	assert.Equal(t, "Mar 5, 2024", n.Date)
	assert.Equal(t, payee, n.PayeeAddress)
	assert.Equal(t, types.NotificationBillRequest, n.Type)
	assert.False(t, n.Read)
	assert.True(t, n.OnChain)

	tx.Sender = ""
	assert.Equal(t, models.UnknownCreator, ToNotification(p, tx, payee).CreatorAddress)
}

func TestToNotificationUsesPayload(t *testing.T) {
	note, err := Encode(samplePayload())
	require.NoError(t, err)
	p, ok := Decode(note)
	require.True(t, ok)

	n := ToNotification(p, models.TransactionRecord{ID: "TX9", Sender: "SOMEONE"}, payee)
	assert.Equal(t, "bill-1", n.BillID)
	assert.Equal(t, "Dinner", n.BillName)
	assert.Equal(t, creator, n.CreatorAddress)
	assert.Equal(t, "Mar 5, 2024", n.Date)
	assert.Equal(t, "Bob", n.PayeeName)
}
