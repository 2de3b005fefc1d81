package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/trivia-pay/internal/models"
)

// DailyVolume is the archived payment activity of one UTC day
type DailyVolume struct {
	Day      time.Time       `json:"day"`
	Payments decimal.Decimal `json:"payments"`
	TxCount  uint64          `json:"txCount"`
}

// TransactionArchive keeps every reconciled transaction in ClickHouse so that
// analytics can look past the ledger's recent-history window.
type TransactionArchive struct {
	db *ClickHouseDB
}

// NewTransactionArchive creates an archive on an open ClickHouse connection
func NewTransactionArchive(db *ClickHouseDB) *TransactionArchive {
	return &TransactionArchive{db: db}
}

// Archive inserts the records observed for owner. The table is a
// ReplacingMergeTree keyed by (owner, tx_id) so re-inserting the same
// transaction on every pass collapses on merge.
func (a *TransactionArchive) Archive(ctx context.Context, owner string, txs []models.TransactionRecord) error {
	if len(txs) == 0 {
		return nil
	}

	batch, err := a.db.Conn().PrepareBatch(ctx, `
		INSERT INTO transaction_archive (
			owner, tx_id, tx_type, amount, sender, receiver, status, timestamp, round, note
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}

	for _, tx := range txs {
		if err := batch.Append(
			owner,
			tx.ID,
			string(tx.Type),
			tx.Amount,
			tx.Sender,
			tx.Receiver,
			string(tx.Status),
			tx.Timestamp.UTC(),
			tx.Round,
			string(tx.Note),
		); err != nil {
			return fmt.Errorf("failed to append tx %s: %w", tx.ID, err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send batch: %w", err)
	}
	return nil
}

// DailyVolume returns per-day successful payment totals for owner over the
// last days days, oldest first.
func (a *TransactionArchive) DailyVolume(ctx context.Context, owner string, days int) ([]DailyVolume, error) {
	if days <= 0 {
		days = 30
	}

	rows, err := a.db.Conn().Query(ctx, `
		SELECT
			toStartOfDay(timestamp) AS day,
			sumIf(amount, tx_type = 'Payment' AND status = 'success') AS payments,
			count() AS tx_count
		FROM transaction_archive FINAL
		WHERE owner = ? AND timestamp >= now() - toIntervalDay(?)
		GROUP BY day
		ORDER BY day ASC
	`, owner, days)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily volume: %w", err)
	}
	defer rows.Close()

	var out []DailyVolume
	for rows.Next() {
		var v DailyVolume
		if err := rows.Scan(&v.Day, &v.Payments, &v.TxCount); err != nil {
			return nil, fmt.Errorf("failed to scan daily volume: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
