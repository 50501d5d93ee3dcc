package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/septivank/utility-billing-service/internal/db"
)

// InsertTransaction persists a transaction and fills in its generated id
func (r *Repository) InsertTransaction(ctx context.Context, txn *db.Transaction) error {
	query := `
		INSERT INTO transactions (
			transaction_number, user_id, meter_id, bill_id, transaction_type,
			amount, payment_method, payment_reference, status, transaction_date, notes
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id
	`

	err := r.pool.QueryRow(ctx, query,
		txn.TransactionNumber,
		txn.UserID,
		txn.MeterID,
		txn.BillID,
		txn.TransactionType,
		txn.Amount,
		txn.PaymentMethod,
		txn.PaymentReference,
		txn.Status,
		txn.TransactionDate,
		txn.Notes,
	).Scan(&txn.ID)

	if err != nil {
		return fmt.Errorf("failed to insert transaction: %w", err)
	}

	return nil
}

// GetTransactionsForBills fetches all transactions referencing the given
// bills, most recent first
func (r *Repository) GetTransactionsForBills(ctx context.Context, billIDs []uuid.UUID) ([]db.Transaction, error) {
	if len(billIDs) == 0 {
		return nil, nil
	}

	query := `
		SELECT id, transaction_number, user_id, meter_id, bill_id, transaction_type,
		       amount, payment_method, payment_reference, status, transaction_date, notes
		FROM transactions
		WHERE bill_id = ANY($1)
		ORDER BY transaction_date DESC
	`

	rows, err := r.pool.Query(ctx, query, billIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	return scanTransactions(rows)
}

// GetUserTransactionsInPeriod fetches a user's transactions within
// [start, end], optionally filtered by type, most recent first
func (r *Repository) GetUserTransactionsInPeriod(ctx context.Context, userID uuid.UUID, start, end time.Time, transactionType string) ([]db.Transaction, error) {
	query := `
		SELECT id, transaction_number, user_id, meter_id, bill_id, transaction_type,
		       amount, payment_method, payment_reference, status, transaction_date, notes
		FROM transactions
		WHERE user_id = $1
		  AND transaction_date >= $2
		  AND transaction_date <= $3
		  AND ($4 = '' OR transaction_type = $4)
		ORDER BY transaction_date DESC
	`

	rows, err := r.pool.Query(ctx, query, userID, start, end, transactionType)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	return scanTransactions(rows)
}

type pgxRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanTransactions(rows pgxRows) ([]db.Transaction, error) {
	var txns []db.Transaction
	for rows.Next() {
		var txn db.Transaction
		if err := rows.Scan(
			&txn.ID,
			&txn.TransactionNumber,
			&txn.UserID,
			&txn.MeterID,
			&txn.BillID,
			&txn.TransactionType,
			&txn.Amount,
			&txn.PaymentMethod,
			&txn.PaymentReference,
			&txn.Status,
			&txn.TransactionDate,
			&txn.Notes,
		); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txns = append(txns, txn)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return txns, nil
}
