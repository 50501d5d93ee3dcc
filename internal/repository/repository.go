package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/septivank/utility-billing-service/internal/db"
)

// Repository handles database operations
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetSessionUser resolves an active session by token hash
func (r *Repository) GetSessionUser(ctx context.Context, tokenHash string) (uuid.UUID, bool, error) {
	query := `
		SELECT user_id
		FROM api_sessions
		WHERE token_hash = $1 AND expires_at > now()
	`

	var userID uuid.UUID
	err := r.pool.QueryRow(ctx, query, tokenHash).Scan(&userID)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, false, nil
	}
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("failed to query session: %w", err)
	}
	return userID, true, nil
}

// GetProfileRole looks up the role of a user's profile
func (r *Repository) GetProfileRole(ctx context.Context, userID uuid.UUID) (string, bool, error) {
	query := `
		SELECT role
		FROM profiles
		WHERE id = $1
	`

	var role string
	err := r.pool.QueryRow(ctx, query, userID).Scan(&role)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to query profile: %w", err)
	}
	return role, true, nil
}

// GetMeter fetches a meter by id, returning nil when absent
func (r *Repository) GetMeter(ctx context.Context, meterID uuid.UUID) (*db.Meter, error) {
	query := `
		SELECT id, user_id, meter_number, meter_type, billing_type, status, tariff_rate, balance, created_at
		FROM meters
		WHERE id = $1
	`

	var meter db.Meter
	err := r.pool.QueryRow(ctx, query, meterID).Scan(
		&meter.ID,
		&meter.UserID,
		&meter.MeterNumber,
		&meter.MeterType,
		&meter.BillingType,
		&meter.Status,
		&meter.TariffRate,
		&meter.Balance,
		&meter.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query meter: %w", err)
	}
	return &meter, nil
}

// GetPostpaidMetersByIDs fetches the postpaid meters among the given ids.
// Prepaid meters are filtered out here so bill generation skips them.
func (r *Repository) GetPostpaidMetersByIDs(ctx context.Context, meterIDs []uuid.UUID) ([]db.Meter, error) {
	query := `
		SELECT id, user_id, meter_number, meter_type, billing_type, status, tariff_rate, balance, created_at
		FROM meters
		WHERE id = ANY($1) AND billing_type = $2
	`

	rows, err := r.pool.Query(ctx, query, meterIDs, db.BillingTypePostpaid)
	if err != nil {
		return nil, fmt.Errorf("failed to query meters: %w", err)
	}
	defer rows.Close()

	var meters []db.Meter
	for rows.Next() {
		var meter db.Meter
		if err := rows.Scan(
			&meter.ID,
			&meter.UserID,
			&meter.MeterNumber,
			&meter.MeterType,
			&meter.BillingType,
			&meter.Status,
			&meter.TariffRate,
			&meter.Balance,
			&meter.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan meter: %w", err)
		}
		meters = append(meters, meter)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return meters, nil
}
