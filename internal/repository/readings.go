package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/septivank/utility-billing-service/internal/db"
)

// GetReadingsInPeriod fetches all readings for a meter within [start, end],
// ordered by reading date ascending
func (r *Repository) GetReadingsInPeriod(ctx context.Context, meterID uuid.UUID, start, end time.Time) ([]db.MeterReading, error) {
	query := `
		SELECT id, meter_id, reading, reading_date, is_manual, validation_status, anomaly_reason, notes
		FROM meter_readings
		WHERE meter_id = $1 AND reading_date >= $2 AND reading_date <= $3
		ORDER BY reading_date ASC
	`

	rows, err := r.pool.Query(ctx, query, meterID, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query readings: %w", err)
	}
	defer rows.Close()

	var readings []db.MeterReading
	for rows.Next() {
		var reading db.MeterReading
		if err := rows.Scan(
			&reading.ID,
			&reading.MeterID,
			&reading.Reading,
			&reading.ReadingDate,
			&reading.IsManual,
			&reading.ValidationStatus,
			&reading.AnomalyReason,
			&reading.Notes,
		); err != nil {
			return nil, fmt.Errorf("failed to scan reading: %w", err)
		}
		readings = append(readings, reading)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return readings, nil
}

// GetRecentReadingValues returns the latest reading values for a meter,
// most recent first, for anomaly screening
func (r *Repository) GetRecentReadingValues(ctx context.Context, meterID uuid.UUID, limit int) ([]float64, error) {
	query := `
		SELECT reading
		FROM meter_readings
		WHERE meter_id = $1 AND validation_status = $2
		ORDER BY reading_date DESC
		LIMIT $3
	`

	rows, err := r.pool.Query(ctx, query, meterID, db.ReadingStatusValid, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent readings: %w", err)
	}
	defer rows.Close()

	var values []float64
	for rows.Next() {
		var value float64
		if err := rows.Scan(&value); err != nil {
			return nil, fmt.Errorf("failed to scan value: %w", err)
		}
		values = append(values, value)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return values, nil
}

// InsertMeterReading inserts a meter reading and fills in its generated id
func (r *Repository) InsertMeterReading(ctx context.Context, reading *db.MeterReading) error {
	query := `
		INSERT INTO meter_readings (meter_id, reading, reading_date, is_manual, validation_status, anomaly_reason, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`

	err := r.pool.QueryRow(ctx, query,
		reading.MeterID,
		reading.Reading,
		reading.ReadingDate,
		reading.IsManual,
		reading.ValidationStatus,
		reading.AnomalyReason,
		reading.Notes,
	).Scan(&reading.ID)

	if err != nil {
		return fmt.Errorf("failed to insert meter reading: %w", err)
	}

	return nil
}
