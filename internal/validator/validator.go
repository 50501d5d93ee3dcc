package validator

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/septivank/utility-billing-service/internal/db"
	"github.com/septivank/utility-billing-service/tools/datewindow"
)

// ErrInvalidTransactionType rejects unrecognized transaction kinds
var ErrInvalidTransactionType = errors.New("invalid transaction_type, must be one of: recharge, payment, refund")

// ValidationError lists the missing or invalid fields of a request
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("missing or invalid fields: %s", strings.Join(e.Fields, ", "))
}

// MissingReferenceError means a transaction type lacks its required resource reference
type MissingReferenceError struct {
	Field           string
	TransactionType string
}

func (e *MissingReferenceError) Error() string {
	return fmt.Sprintf("%s is required for %s transactions", e.Field, e.TransactionType)
}

// UnsupportedReportTypeError rejects unrecognized report types
type UnsupportedReportTypeError struct {
	ReportType string
}

func (e *UnsupportedReportTypeError) Error() string {
	return fmt.Sprintf("unsupported report type: %s", e.ReportType)
}

// IDList unmarshals from either a single JSON string or an array of
// strings, so bulk endpoints accept both shapes interchangeably.
type IDList []string

// UnmarshalJSON implements json.Unmarshaler
func (l *IDList) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*l = IDList{single}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("expected a string or an array of strings")
	}
	*l = IDList(many)
	return nil
}

// GenerateBillsRequest is the bill generation request body
type GenerateBillsRequest struct {
	MeterIDs           IDList `json:"meter_ids"`
	BillingPeriodStart string `json:"billing_period_start"`
	BillingPeriodEnd   string `json:"billing_period_end"`
	DueDate            string `json:"due_date"`
}

// GenerateBillsInput is a validated bill generation request
type GenerateBillsInput struct {
	MeterIDs []uuid.UUID
	Period   datewindow.Window
	DueDate  time.Time
}

// ValidateGenerateBills validates a bill generation request and reports
// every offending field at once.
func ValidateGenerateBills(req GenerateBillsRequest) (GenerateBillsInput, error) {
	var input GenerateBillsInput
	var fields []string

	if len(req.MeterIDs) == 0 {
		fields = append(fields, "meter_ids")
	} else {
		for _, raw := range req.MeterIDs {
			id, err := uuid.Parse(raw)
			if err != nil {
				fields = append(fields, "meter_ids")
				input.MeterIDs = nil
				break
			}
			input.MeterIDs = append(input.MeterIDs, id)
		}
	}

	if req.BillingPeriodStart == "" {
		fields = append(fields, "billing_period_start")
	}
	if req.BillingPeriodEnd == "" {
		fields = append(fields, "billing_period_end")
	}
	if req.BillingPeriodStart != "" && req.BillingPeriodEnd != "" {
		window, err := datewindow.New(req.BillingPeriodStart, req.BillingPeriodEnd)
		if err != nil {
			fields = append(fields, "billing_period_start", "billing_period_end")
		} else {
			input.Period = window
		}
	}

	if req.DueDate == "" {
		fields = append(fields, "due_date")
	} else {
		due, err := datewindow.ParseBound(req.DueDate)
		if err != nil {
			fields = append(fields, "due_date")
		} else {
			input.DueDate = due
		}
	}

	if len(fields) > 0 {
		return GenerateBillsInput{}, &ValidationError{Fields: fields}
	}
	return input, nil
}

// PaymentRequest is the payment processing request body
type PaymentRequest struct {
	TransactionType  string  `json:"transaction_type"`
	MeterID          string  `json:"meter_id,omitempty"`
	BillID           string  `json:"bill_id,omitempty"`
	Amount           float64 `json:"amount"`
	PaymentMethod    string  `json:"payment_method"`
	PaymentReference string  `json:"payment_reference,omitempty"`
	Notes            string  `json:"notes,omitempty"`
}

// PaymentInput is a validated payment request
type PaymentInput struct {
	TransactionType  string
	MeterID          *uuid.UUID
	BillID           *uuid.UUID
	Amount           float64
	PaymentMethod    string
	PaymentReference string
	Notes            string
}

// ValidatePayment validates a payment request. Field presence is checked
// before the transaction type, and the type before its required reference,
// matching the order failures surface to callers.
func ValidatePayment(req PaymentRequest) (PaymentInput, error) {
	var fields []string
	if req.TransactionType == "" {
		fields = append(fields, "transaction_type")
	}
	if req.Amount <= 0 {
		fields = append(fields, "amount")
	}
	if req.PaymentMethod == "" {
		fields = append(fields, "payment_method")
	}
	if req.MeterID != "" {
		if _, err := uuid.Parse(req.MeterID); err != nil {
			fields = append(fields, "meter_id")
		}
	}
	if req.BillID != "" {
		if _, err := uuid.Parse(req.BillID); err != nil {
			fields = append(fields, "bill_id")
		}
	}
	if len(fields) > 0 {
		return PaymentInput{}, &ValidationError{Fields: fields}
	}

	switch req.TransactionType {
	case db.TransactionTypeRecharge, db.TransactionTypePayment, db.TransactionTypeRefund:
	default:
		return PaymentInput{}, ErrInvalidTransactionType
	}

	if req.TransactionType == db.TransactionTypeRecharge && req.MeterID == "" {
		return PaymentInput{}, &MissingReferenceError{Field: "meter_id", TransactionType: req.TransactionType}
	}
	if req.TransactionType == db.TransactionTypePayment && req.BillID == "" {
		return PaymentInput{}, &MissingReferenceError{Field: "bill_id", TransactionType: req.TransactionType}
	}

	input := PaymentInput{
		TransactionType:  req.TransactionType,
		Amount:           req.Amount,
		PaymentMethod:    req.PaymentMethod,
		PaymentReference: req.PaymentReference,
		Notes:            req.Notes,
	}
	if req.MeterID != "" {
		id, _ := uuid.Parse(req.MeterID)
		input.MeterID = &id
	}
	if req.BillID != "" {
		id, _ := uuid.Parse(req.BillID)
		input.BillID = &id
	}
	return input, nil
}

// Report types
const (
	ReportTypeConsumption  = "consumption"
	ReportTypeBilling      = "billing"
	ReportTypeTransactions = "transactions"
)

// ReportParameters is the type-specific parameter object of a report request
type ReportParameters struct {
	MeterID            string `json:"meter_id,omitempty"`
	UserID             string `json:"user_id,omitempty"`
	StartDate          string `json:"start_date,omitempty"`
	EndDate            string `json:"end_date,omitempty"`
	BillingPeriodStart string `json:"billing_period_start,omitempty"`
	BillingPeriodEnd   string `json:"billing_period_end,omitempty"`
	TransactionType    string `json:"transaction_type,omitempty"`
}

// ReportRequest is the report generation request body
type ReportRequest struct {
	ReportType string           `json:"report_type"`
	Parameters ReportParameters `json:"parameters"`
	SendEmail  bool             `json:"send_email,omitempty"`
}

// ReportInput is a validated report request
type ReportInput struct {
	ReportType      string
	MeterID         uuid.UUID
	TargetUserID    *uuid.UUID
	Window          datewindow.Window
	TransactionType string
	SendEmail       bool
}

// ValidateReport validates a report request against the parameter set its
// report type requires.
func ValidateReport(req ReportRequest) (ReportInput, error) {
	if req.ReportType == "" {
		return ReportInput{}, &ValidationError{Fields: []string{"report_type"}}
	}

	input := ReportInput{ReportType: req.ReportType, SendEmail: req.SendEmail}
	var fields []string

	switch req.ReportType {
	case ReportTypeConsumption:
		if req.Parameters.MeterID == "" {
			fields = append(fields, "meter_id")
		} else if id, err := uuid.Parse(req.Parameters.MeterID); err != nil {
			fields = append(fields, "meter_id")
		} else {
			input.MeterID = id
		}
		window, windowFields := parseWindow(req.Parameters.StartDate, req.Parameters.EndDate, "start_date", "end_date")
		fields = append(fields, windowFields...)
		input.Window = window

	case ReportTypeBilling:
		window, windowFields := parseWindow(req.Parameters.BillingPeriodStart, req.Parameters.BillingPeriodEnd,
			"billing_period_start", "billing_period_end")
		fields = append(fields, windowFields...)
		input.Window = window
		if req.Parameters.UserID != "" {
			id, err := uuid.Parse(req.Parameters.UserID)
			if err != nil {
				fields = append(fields, "user_id")
			} else {
				input.TargetUserID = &id
			}
		}

	case ReportTypeTransactions:
		window, windowFields := parseWindow(req.Parameters.StartDate, req.Parameters.EndDate, "start_date", "end_date")
		fields = append(fields, windowFields...)
		input.Window = window
		if req.Parameters.TransactionType != "" {
			switch req.Parameters.TransactionType {
			case db.TransactionTypeRecharge, db.TransactionTypePayment, db.TransactionTypeRefund:
				input.TransactionType = req.Parameters.TransactionType
			default:
				return ReportInput{}, ErrInvalidTransactionType
			}
		}

	default:
		return ReportInput{}, &UnsupportedReportTypeError{ReportType: req.ReportType}
	}

	if len(fields) > 0 {
		return ReportInput{}, &ValidationError{Fields: fields}
	}
	return input, nil
}

// ReadingRequest is the manual meter reading submission body
type ReadingRequest struct {
	MeterID     string   `json:"meter_id"`
	Reading     *float64 `json:"reading"`
	ReadingDate string   `json:"reading_date,omitempty"`
	IsManual    bool     `json:"is_manual,omitempty"`
	Notes       string   `json:"notes,omitempty"`
}

// ReadingInput is a validated reading submission
type ReadingInput struct {
	MeterID     uuid.UUID
	Reading     float64
	ReadingDate time.Time
	IsManual    bool
	Notes       string
}

// ValidateReading validates a reading submission. A zero ReadingDate means
// the caller did not supply one and the service should stamp receipt time.
func ValidateReading(req ReadingRequest) (ReadingInput, error) {
	var input ReadingInput
	var fields []string

	if req.MeterID == "" {
		fields = append(fields, "meter_id")
	} else if id, err := uuid.Parse(req.MeterID); err != nil {
		fields = append(fields, "meter_id")
	} else {
		input.MeterID = id
	}

	if req.Reading == nil {
		fields = append(fields, "reading")
	} else {
		input.Reading = *req.Reading
	}

	if req.ReadingDate != "" {
		t, err := datewindow.ParseBound(req.ReadingDate)
		if err != nil {
			fields = append(fields, "reading_date")
		} else {
			input.ReadingDate = t
		}
	}

	if len(fields) > 0 {
		return ReadingInput{}, &ValidationError{Fields: fields}
	}
	input.IsManual = req.IsManual
	input.Notes = req.Notes
	return input, nil
}

func parseWindow(startStr, endStr, startField, endField string) (datewindow.Window, []string) {
	var fields []string
	if startStr == "" {
		fields = append(fields, startField)
	}
	if endStr == "" {
		fields = append(fields, endField)
	}
	if len(fields) > 0 {
		return datewindow.Window{}, fields
	}
	window, err := datewindow.New(startStr, endStr)
	if err != nil {
		return datewindow.Window{}, []string{startField, endField}
	}
	return window, nil
}
