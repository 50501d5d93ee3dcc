package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/septivank/utility-billing-service/internal/db"
)

// InsertBill persists a bill and fills in its generated id and creation time
func (r *Repository) InsertBill(ctx context.Context, bill *db.Bill) error {
	query := `
		INSERT INTO bills (
			meter_id, bill_number, billing_period_start, billing_period_end,
			previous_reading, current_reading, consumption, rate,
			amount, tax_amount, total_amount, due_date, status
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id, created_at
	`

	err := r.pool.QueryRow(ctx, query,
		bill.MeterID,
		bill.BillNumber,
		bill.BillingPeriodStart,
		bill.BillingPeriodEnd,
		bill.PreviousReading,
		bill.CurrentReading,
		bill.Consumption,
		bill.Rate,
		bill.Amount,
		bill.TaxAmount,
		bill.TotalAmount,
		bill.DueDate,
		bill.Status,
	).Scan(&bill.ID, &bill.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to insert bill: %w", err)
	}

	return nil
}

// GetBillWithOwner fetches a bill joined with the owning user of its meter,
// returning nil when absent
func (r *Repository) GetBillWithOwner(ctx context.Context, billID uuid.UUID) (*db.BillWithOwner, error) {
	query := `
		SELECT b.id, b.meter_id, b.bill_number, b.billing_period_start, b.billing_period_end,
		       b.previous_reading, b.current_reading, b.consumption, b.rate,
		       b.amount, b.tax_amount, b.total_amount, b.due_date, b.status, b.created_at,
		       m.user_id
		FROM bills b
		JOIN meters m ON m.id = b.meter_id
		WHERE b.id = $1
	`

	var bill db.BillWithOwner
	err := r.pool.QueryRow(ctx, query, billID).Scan(
		&bill.ID,
		&bill.MeterID,
		&bill.BillNumber,
		&bill.BillingPeriodStart,
		&bill.BillingPeriodEnd,
		&bill.PreviousReading,
		&bill.CurrentReading,
		&bill.Consumption,
		&bill.Rate,
		&bill.Amount,
		&bill.TaxAmount,
		&bill.TotalAmount,
		&bill.DueDate,
		&bill.Status,
		&bill.CreatedAt,
		&bill.OwnerID,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query bill: %w", err)
	}
	return &bill, nil
}

// GetBillsForUserInPeriod fetches bills for a user's meters whose billing
// period falls within [start, end], most recent first
func (r *Repository) GetBillsForUserInPeriod(ctx context.Context, userID uuid.UUID, start, end time.Time) ([]db.Bill, error) {
	query := `
		SELECT b.id, b.meter_id, b.bill_number, b.billing_period_start, b.billing_period_end,
		       b.previous_reading, b.current_reading, b.consumption, b.rate,
		       b.amount, b.tax_amount, b.total_amount, b.due_date, b.status, b.created_at
		FROM bills b
		JOIN meters m ON m.id = b.meter_id
		WHERE m.user_id = $1
		  AND b.billing_period_start >= $2
		  AND b.billing_period_end <= $3
		ORDER BY b.created_at DESC
	`

	rows, err := r.pool.Query(ctx, query, userID, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query bills: %w", err)
	}
	defer rows.Close()

	var bills []db.Bill
	for rows.Next() {
		var bill db.Bill
		if err := rows.Scan(
			&bill.ID,
			&bill.MeterID,
			&bill.BillNumber,
			&bill.BillingPeriodStart,
			&bill.BillingPeriodEnd,
			&bill.PreviousReading,
			&bill.CurrentReading,
			&bill.Consumption,
			&bill.Rate,
			&bill.Amount,
			&bill.TaxAmount,
			&bill.TotalAmount,
			&bill.DueDate,
			&bill.Status,
			&bill.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan bill: %w", err)
		}
		bills = append(bills, bill)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return bills, nil
}
