// Package notify encodes and decodes bill requests carried in the note field
// of zero-value payment transactions.
package notify

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/trivia-pay/internal/models"
	"github.com/trivia-pay/internal/types"
)

// Prefix marks a transaction note as a bill request
const Prefix = "TRIVIA_PAY_REQUEST:"

// NotePayload is the bill request carried after Prefix in a transaction note.
// Share and Total travel as JSON numbers.
type NotePayload struct {
	BillID         string
	BillName       string
	BillNote       string
	Share          decimal.Decimal
	Total          decimal.Decimal
	PayeeName      string
	PayeeAddress   string
	CreatorAddress string
	Date           string

	// fields present in a decoded note; nil for payloads built locally
	present map[string]bool
}

type wirePayload struct {
	BillID         *string      `json:"billId,omitempty"`
	BillName       *string      `json:"billName,omitempty"`
	BillNote       *string      `json:"billNote,omitempty"`
	Share          *json.Number `json:"share,omitempty"`
	Total          *json.Number `json:"total,omitempty"`
	PayeeName      *string      `json:"payeeName,omitempty"`
	PayeeAddress   *string      `json:"payeeAddress,omitempty"`
	CreatorAddress *string      `json:"creatorAddress,omitempty"`
	Date           *string      `json:"date,omitempty"`
}

// Has reports whether a decoded payload carried the named JSON field.
// Locally built payloads report every field as present.
func (p *NotePayload) Has(field string) bool {
	if p.present == nil {
		return true
	}
	return p.present[field]
}

// MarshalJSON renders every field, with amounts as JSON numbers
func (p NotePayload) MarshalJSON() ([]byte, error) {
	share := json.Number(p.Share.String())
	total := json.Number(p.Total.String())
	return json.Marshal(wirePayload{
		BillID:         &p.BillID,
		BillName:       &p.BillName,
		BillNote:       &p.BillNote,
		Share:          &share,
		Total:          &total,
		PayeeName:      &p.PayeeName,
		PayeeAddress:   &p.PayeeAddress,
		CreatorAddress: &p.CreatorAddress,
		Date:           &p.Date,
	})
}

// UnmarshalJSON decodes a payload and records which fields were present.
// Amounts that are not valid numbers are rejected.
func (p *NotePayload) UnmarshalJSON(data []byte) error {
	var w wirePayload
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	*p = NotePayload{present: make(map[string]bool)}
	str := func(field string, src *string, dst *string) {
		if src != nil {
			*dst = *src
			p.present[field] = true
		}
	}
	str("billId", w.BillID, &p.BillID)
	str("billName", w.BillName, &p.BillName)
	str("billNote", w.BillNote, &p.BillNote)
	str("payeeName", w.PayeeName, &p.PayeeName)
	str("payeeAddress", w.PayeeAddress, &p.PayeeAddress)
	str("creatorAddress", w.CreatorAddress, &p.CreatorAddress)
	str("date", w.Date, &p.Date)

	if w.Share != nil {
		d, err := decimal.NewFromString(w.Share.String())
		if err != nil {
			return fmt.Errorf("share: %w", err)
		}
		p.Share = d
		p.present["share"] = true
	}
	if w.Total != nil {
		d, err := decimal.NewFromString(w.Total.String())
		if err != nil {
			return fmt.Errorf("total: %w", err)
		}
		p.Total = d
		p.present["total"] = true
	}
	return nil
}

// Encode prepends Prefix to the JSON form of the payload
func Encode(payload NotePayload) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode bill request: %w", err)
	}
	note := make([]byte, 0, len(Prefix)+len(body))
	note = append(note, Prefix...)
	return append(note, body...), nil
}

// HasPrefix reports whether a note is marked as a bill request
func HasPrefix(note []byte) bool {
	return bytes.HasPrefix(note, []byte(Prefix))
}

// Decode extracts the payload from a note. It never fails loudly: a missing
// prefix or malformed JSON yields ok == false.
func Decode(note []byte) (payload *NotePayload, ok bool) {
	if !HasPrefix(note) {
		return nil, false
	}
	body := bytes.TrimSpace(note[len(Prefix):])
	if len(body) == 0 || body[0] != '{' {
		return nil, false
	}
	var p NotePayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, false
	}
	return &p, true
}

// ToNotification builds the notification surfaced to the payee at address
// from a decoded payload and the transaction that carried it. Fields missing
// from the payload fall back to the transaction's own values.
func ToNotification(p *NotePayload, tx models.TransactionRecord, address string) models.Notification {
	n := models.Notification{
		ID:             tx.ID,
		Type:           types.NotificationBillRequest,
		BillID:         tx.ID,
		BillName:       models.DefaultBillName,
		BillNote:       p.BillNote,
		PayeeName:      p.PayeeName,
		PayeeAddress:   address,
		Share:          p.Share,
		Total:          p.Total,
		CreatorAddress: tx.Sender,
		Date:           tx.Date(),
		OnChain:        true,
	}
	if p.Has("billId") {
		n.BillID = p.BillID
	}
	if p.Has("billName") {
		n.BillName = p.BillName
	}
	if p.Has("creatorAddress") {
		n.CreatorAddress = p.CreatorAddress
	}
	if n.CreatorAddress == "" && !p.Has("creatorAddress") {
		n.CreatorAddress = models.UnknownCreator
	}
	if p.Has("date") {
		n.Date = p.Date
	}
	return n
}
