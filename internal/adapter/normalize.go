package adapter

import (
	"encoding/base64"
	"strconv"
	"time"

	sdkmodels "github.com/algorand/go-algorand-sdk/v2/client/v2/common/models"

	"github.com/trivia-pay/internal/models"
	"github.com/trivia-pay/internal/types"
)

// displayPlaces is the precision of amounts in history views
const displayPlaces = 4

// tealUintType marks a uint value in application state
const tealUintType = 2

const placeholder = "—"

// NormalizeTransaction converts an indexer transaction into a TransactionRecord.
// Indexer results are confirmed, so every record has status success.
func NormalizeTransaction(tx sdkmodels.Transaction) models.TransactionRecord {
	rec := models.TransactionRecord{
		ID:       tx.Id,
		Type:     types.TransactionTypeFromLedger(tx.Type),
		Amount:   models.MicroToDisplay(tx.PaymentTransaction.Amount).Round(displayPlaces),
		Sender:   tx.Sender,
		Receiver: tx.PaymentTransaction.Receiver,
		Status:   types.StatusSuccess,
		Round:    tx.ConfirmedRound,
		Note:     tx.Note,
	}
	if rec.ID == "" {
		rec.ID = placeholder
	}
	if tx.RoundTime > 0 {
		rec.Timestamp = time.Unix(int64(tx.RoundTime), 0).UTC()
	}

	rec.SenderShort = placeholder
	if rec.Sender != "" {
		rec.SenderShort = models.ShortenAddress(rec.Sender)
	}

	switch {
	case rec.Receiver != "":
		rec.ReceiverShort = models.ShortenAddress(rec.Receiver)
	case rec.Type == types.TxTypeAppCall:
		rec.ReceiverShort = "App #" + strconv.FormatUint(tx.ApplicationTransaction.ApplicationId, 10)
	default:
		rec.ReceiverShort = placeholder
	}
	return rec
}

// NormalizeTransactions converts a page of indexer results
func NormalizeTransactions(txs []sdkmodels.Transaction) []models.TransactionRecord {
	out := make([]models.TransactionRecord, 0, len(txs))
	for _, tx := range txs {
		out = append(out, NormalizeTransaction(tx))
	}
	return out
}

// DecodeGlobalState decodes base64 keys and byte values of application state
func DecodeGlobalState(kvs []sdkmodels.TealKeyValue) []models.GlobalStateEntry {
	out := make([]models.GlobalStateEntry, 0, len(kvs))
	for _, kv := range kvs {
		entry := models.GlobalStateEntry{Key: decodeBase64Text(kv.Key)}
		if kv.Value.Type == tealUintType {
			entry.IsUint = true
			entry.Uint = kv.Value.Uint
		} else {
			entry.Bytes = decodeBase64Text(kv.Value.Bytes)
		}
		out = append(out, entry)
	}
	return out
}

func decodeBase64Text(s string) string {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return s
	}
	return string(raw)
}
