package db

import (
	"time"

	"github.com/google/uuid"
)

// Meter billing modes
const (
	BillingTypePrepaid  = "prepaid"
	BillingTypePostpaid = "postpaid"
)

// Bill statuses
const (
	BillStatusPending   = "pending"
	BillStatusCompleted = "completed"
	BillStatusFailed    = "failed"
)

// Transaction types
const (
	TransactionTypeRecharge = "recharge"
	TransactionTypePayment  = "payment"
	TransactionTypeRefund   = "refund"
)

// Transaction statuses
const (
	TransactionStatusPending   = "pending"
	TransactionStatusCompleted = "completed"
	TransactionStatusFailed    = "failed"
)

// Reading validation statuses
const (
	ReadingStatusValid   = "valid"
	ReadingStatusFlagged = "flagged"
)

// RoleAdmin is the administrative profile role. Any other role, or a
// missing profile row, is treated as an ordinary user.
const RoleAdmin = "admin"

// Meter represents a physical utility connection
type Meter struct {
	ID          uuid.UUID `json:"id"`
	UserID      uuid.UUID `json:"user_id"`
	MeterNumber string    `json:"meter_number"`
	MeterType   string    `json:"meter_type"`
	BillingType string    `json:"billing_type"`
	Status      string    `json:"status"`
	TariffRate  float64   `json:"tariff_rate"`
	// Balance is only meaningful for prepaid meters.
	Balance   float64   `json:"balance"`
	CreatedAt time.Time `json:"created_at"`
}

// MeterReading represents a timestamped measurement for a meter
type MeterReading struct {
	ID               uuid.UUID `json:"id"`
	MeterID          uuid.UUID `json:"meter_id"`
	Reading          float64   `json:"reading"`
	ReadingDate      time.Time `json:"reading_date"`
	IsManual         bool      `json:"is_manual"`
	ValidationStatus string    `json:"validation_status"`
	AnomalyReason    *string   `json:"anomaly_reason,omitempty"`
	Notes            string    `json:"notes,omitempty"`
}

// Bill represents a computed invoice for a postpaid meter over a billing period
type Bill struct {
	ID                 uuid.UUID `json:"id"`
	MeterID            uuid.UUID `json:"meter_id"`
	BillNumber         string    `json:"bill_number"`
	BillingPeriodStart time.Time `json:"billing_period_start"`
	BillingPeriodEnd   time.Time `json:"billing_period_end"`
	PreviousReading    float64   `json:"previous_reading"`
	CurrentReading     float64   `json:"current_reading"`
	Consumption        float64   `json:"consumption"`
	Rate               float64   `json:"rate"`
	Amount             float64   `json:"amount"`
	TaxAmount          float64   `json:"tax_amount"`
	TotalAmount        float64   `json:"total_amount"`
	DueDate            time.Time `json:"due_date"`
	Status             string    `json:"status"`
	CreatedAt          time.Time `json:"created_at"`
}

// BillWithOwner carries a bill together with the owning user of its meter,
// resolved through the meter join for ownership checks.
type BillWithOwner struct {
	Bill
	OwnerID uuid.UUID `json:"-"`
}

// Transaction represents a recorded movement of funds
type Transaction struct {
	ID                uuid.UUID  `json:"id"`
	TransactionNumber string     `json:"transaction_number"`
	UserID            uuid.UUID  `json:"user_id"`
	MeterID           *uuid.UUID `json:"meter_id,omitempty"`
	BillID            *uuid.UUID `json:"bill_id,omitempty"`
	TransactionType   string     `json:"transaction_type"`
	Amount            float64    `json:"amount"`
	PaymentMethod     string     `json:"payment_method"`
	PaymentReference  string     `json:"payment_reference,omitempty"`
	Status            string     `json:"status"`
	TransactionDate   time.Time  `json:"transaction_date"`
	Notes             string     `json:"notes,omitempty"`
}

// Notification is an informational record tied to a user and optionally a meter
type Notification struct {
	ID               uuid.UUID  `json:"id"`
	UserID           uuid.UUID  `json:"user_id"`
	MeterID          *uuid.UUID `json:"meter_id,omitempty"`
	Title            string     `json:"title"`
	Message          string     `json:"message"`
	NotificationType string     `json:"notification_type"`
	CreatedAt        time.Time  `json:"created_at"`
}

// Report is an audit row recording that a report was assembled
type Report struct {
	ID         uuid.UUID `json:"id"`
	UserID     uuid.UUID `json:"user_id"`
	ReportType string    `json:"report_type"`
	Parameters []byte    `json:"-"`
	CreatedAt  time.Time `json:"created_at"`
}
