package repository

import (
	"context"
	"fmt"

	"github.com/septivank/utility-billing-service/internal/db"
)

// InsertNotification persists a notification row
func (r *Repository) InsertNotification(ctx context.Context, notification *db.Notification) error {
	query := `
		INSERT INTO notifications (user_id, meter_id, title, message, notification_type)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`

	err := r.pool.QueryRow(ctx, query,
		notification.UserID,
		notification.MeterID,
		notification.Title,
		notification.Message,
		notification.NotificationType,
	).Scan(&notification.ID, &notification.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to insert notification: %w", err)
	}

	return nil
}

// InsertReport records that a report was assembled and fills in the audit
// row's id
func (r *Repository) InsertReport(ctx context.Context, report *db.Report) error {
	query := `
		INSERT INTO reports (user_id, report_type, parameters)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`

	err := r.pool.QueryRow(ctx, query,
		report.UserID,
		report.ReportType,
		report.Parameters,
	).Scan(&report.ID, &report.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to insert report: %w", err)
	}

	return nil
}
