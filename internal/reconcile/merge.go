package reconcile

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/trivia-pay/internal/models"
	"github.com/trivia-pay/internal/notify"
	"github.com/trivia-pay/internal/types"
)

// totalPlaces is the precision of the deposited total
const totalPlaces = 3

// MergeTransactions concatenates wallet and escrow history, keeps the first
// record of every id (wallet wins) and orders the result newest first.
// Records with equal timestamps keep their relative order.
func MergeTransactions(wallet, escrow []models.TransactionRecord) []models.TransactionRecord {
	seen := make(map[string]struct{}, len(wallet)+len(escrow))
	merged := make([]models.TransactionRecord, 0, len(wallet)+len(escrow))

	for _, list := range [][]models.TransactionRecord{wallet, escrow} {
		for _, tx := range list {
			if _, dup := seen[tx.ID]; dup {
				continue
			}
			seen[tx.ID] = struct{}{}
			merged = append(merged, tx)
		}
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Timestamp.After(merged[j].Timestamp)
	})
	return merged
}

// DeriveStats computes the summary figures of a merged transaction list
func DeriveStats(merged []models.TransactionRecord, poolBalance decimal.Decimal) models.Stats {
	total := decimal.Zero
	for _, tx := range merged {
		if tx.IsSuccessfulPayment() {
			total = total.Add(tx.Amount)
		}
	}
	return models.Stats{
		PoolBalance:    poolBalance,
		TotalDeposited: total.Round(totalPlaces),
		TxCount:        len(merged),
	}
}

// ScanNotifications returns a notification for every payment to address whose
// note carries a bill request and whose id is neither seen nor known.
// Malformed notes are skipped.
func ScanNotifications(merged []models.TransactionRecord, address string, seen, known func(id string) bool) []models.Notification {
	var found []models.Notification
	for _, tx := range merged {
		if tx.Type != types.TxTypePayment || tx.Receiver != address || !notify.HasPrefix(tx.Note) {
			continue
		}
		if seen(tx.ID) || known(tx.ID) {
			continue
		}
		payload, ok := notify.Decode(tx.Note)
		if !ok {
			continue
		}
		found = append(found, notify.ToNotification(payload, tx, address))
	}
	return found
}

// FetchErrorMessage picks the user-visible refresh error. A failed wallet
// history lookup takes priority over a failed application state lookup.
func FetchErrorMessage(walletTxErr, appStateErr error) string {
	switch {
	case walletTxErr != nil:
		return "Transaction fetch failed: " + walletTxErr.Error()
	case appStateErr != nil:
		return "App state fetch failed: " + appStateErr.Error()
	default:
		return ""
	}
}
