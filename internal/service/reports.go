package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/septivank/utility-billing-service/internal/auth"
	"github.com/septivank/utility-billing-service/internal/config"
	"github.com/septivank/utility-billing-service/internal/db"
	"github.com/septivank/utility-billing-service/internal/money"
	"github.com/septivank/utility-billing-service/internal/mq"
	"github.com/septivank/utility-billing-service/internal/validator"
	"go.uber.org/zap"
)

// ReportStore is the data access the report assembler needs
type ReportStore interface {
	GetMeter(ctx context.Context, meterID uuid.UUID) (*db.Meter, error)
	GetReadingsInPeriod(ctx context.Context, meterID uuid.UUID, start, end time.Time) ([]db.MeterReading, error)
	GetBillsForUserInPeriod(ctx context.Context, userID uuid.UUID, start, end time.Time) ([]db.Bill, error)
	GetTransactionsForBills(ctx context.Context, billIDs []uuid.UUID) ([]db.Transaction, error)
	GetUserTransactionsInPeriod(ctx context.Context, userID uuid.UUID, start, end time.Time, transactionType string) ([]db.Transaction, error)
	InsertReport(ctx context.Context, report *db.Report) error
}

// PeriodRange echoes the requested date range back in report payloads
type PeriodRange struct {
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

// DailyConsumption is the delta between two consecutive readings
type DailyConsumption struct {
	Date            string  `json:"date"`
	Consumption     float64 `json:"consumption"`
	Reading         float64 `json:"reading"`
	PreviousReading float64 `json:"previous_reading"`
}

// ConsumptionReport summarizes one meter's usage over a date range
type ConsumptionReport struct {
	Meter                   *db.Meter          `json:"meter"`
	Period                  PeriodRange        `json:"period"`
	Readings                int                `json:"readings"`
	DailyConsumption        []DailyConsumption `json:"daily_consumption"`
	TotalConsumption        float64            `json:"total_consumption"`
	AverageDailyConsumption float64            `json:"average_daily_consumption"`
}

// BillingReport summarizes billed versus paid amounts for one user
type BillingReport struct {
	Period           PeriodRange      `json:"period"`
	Bills            []db.Bill        `json:"bills"`
	Transactions     []db.Transaction `json:"transactions"`
	TotalBilled      float64          `json:"total_billed"`
	TotalPaid        float64          `json:"total_paid"`
	TotalOutstanding float64          `json:"total_outstanding"`
}

// TransactionsReport summarizes a user's transactions by type
type TransactionsReport struct {
	Period       PeriodRange        `json:"period"`
	Transactions []db.Transaction   `json:"transactions"`
	Totals       map[string]float64 `json:"totals"`
	Count        int                `json:"count"`
}

// ReportService assembles summary reports from existing rows
type ReportService struct {
	store      ReportStore
	events     EventPublisher
	routingKey string
	logger     *zap.Logger
}

// NewReportService creates a new report service
func NewReportService(store ReportStore, events EventPublisher, cfg *config.Config, logger *zap.Logger) *ReportService {
	return &ReportService{
		store:      store,
		events:     events,
		routingKey: cfg.RabbitMQ.ReportRoutingKey,
		logger:     logger,
	}
}

// GenerateReport assembles the requested report and writes an audit row.
// The returned report value is one of ConsumptionReport, BillingReport or
// TransactionsReport.
func (s *ReportService) GenerateReport(ctx context.Context, caller auth.Identity, input validator.ReportInput) (any, *db.Report, error) {
	var report any
	var err error

	switch input.ReportType {
	case validator.ReportTypeConsumption:
		report, err = s.consumptionReport(ctx, caller, input)
	case validator.ReportTypeBilling:
		report, err = s.billingReport(ctx, caller, input)
	case validator.ReportTypeTransactions:
		report, err = s.transactionsReport(ctx, caller, input)
	default:
		return nil, nil, &validator.UnsupportedReportTypeError{ReportType: input.ReportType}
	}
	if err != nil {
		return nil, nil, err
	}

	audit, err := s.recordReport(ctx, caller, input)
	if err != nil {
		// The assembled data is fine, only the audit trail is degraded
		s.logger.Warn("failed to record report audit row",
			zap.Error(err),
			zap.String("report_type", input.ReportType),
		)
	}

	if input.SendEmail {
		// Email delivery is an external collaborator, not part of this core
		s.logger.Info("email delivery requested for report",
			zap.String("report_type", input.ReportType),
		)
	}

	if audit != nil {
		event := mq.ReportGeneratedEvent{
			ReportID:   audit.ID.String(),
			ReportType: input.ReportType,
			UserID:     caller.UserID.String(),
		}
		if err := s.events.Publish(ctx, s.routingKey, event); err != nil {
			s.logger.Warn("failed to publish report event", zap.Error(err))
		}
	}

	return report, audit, nil
}

func (s *ReportService) consumptionReport(ctx context.Context, caller auth.Identity, input validator.ReportInput) (*ConsumptionReport, error) {
	meter, err := s.store.GetMeter(ctx, input.MeterID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch meter: %w", err)
	}
	if meter == nil {
		return nil, &NotFoundError{Resource: "meter"}
	}
	if !caller.CanAccess(meter.UserID) {
		return nil, auth.ErrForbidden
	}

	readings, err := s.store.GetReadingsInPeriod(ctx, input.MeterID, input.Window.Start, input.Window.End)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch meter readings: %w", err)
	}

	var daily []DailyConsumption
	total := money.FromFloat(0)
	for i := 1; i < len(readings); i++ {
		previous := readings[i-1]
		current := readings[i]
		delta := money.FromFloat(current.Reading).Sub(money.FromFloat(previous.Reading))
		daily = append(daily, DailyConsumption{
			Date:            current.ReadingDate.Format("2006-01-02"),
			Consumption:     delta.Float64(),
			Reading:         current.Reading,
			PreviousReading: previous.Reading,
		})
		total = total.Add(delta)
	}

	average := 0.0
	if len(daily) > 0 {
		average = total.Float64() / float64(len(daily))
	}

	return &ConsumptionReport{
		Meter:                   meter,
		Period:                  periodOf(input.Window.Start, input.Window.End),
		Readings:                len(readings),
		DailyConsumption:        daily,
		TotalConsumption:        total.Float64(),
		AverageDailyConsumption: average,
	}, nil
}

func (s *ReportService) billingReport(ctx context.Context, caller auth.Identity, input validator.ReportInput) (*BillingReport, error) {
	// Admins may report on any user, everyone else only on themselves
	targetUserID := caller.UserID
	if input.TargetUserID != nil && *input.TargetUserID != caller.UserID {
		if !caller.IsAdmin() {
			return nil, auth.ErrForbidden
		}
		targetUserID = *input.TargetUserID
	}

	bills, err := s.store.GetBillsForUserInPeriod(ctx, targetUserID, input.Window.Start, input.Window.End)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch bills: %w", err)
	}

	billIDs := make([]uuid.UUID, 0, len(bills))
	for _, bill := range bills {
		billIDs = append(billIDs, bill.ID)
	}

	transactions, err := s.store.GetTransactionsForBills(ctx, billIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch transactions: %w", err)
	}

	totalBilled := money.FromFloat(0)
	for _, bill := range bills {
		totalBilled = totalBilled.Add(money.FromFloat(bill.TotalAmount))
	}
	totalPaid := money.FromFloat(0)
	for _, txn := range transactions {
		if txn.Status == db.TransactionStatusCompleted {
			totalPaid = totalPaid.Add(money.FromFloat(txn.Amount))
		}
	}
	totalOutstanding := totalBilled.Sub(totalPaid)

	return &BillingReport{
		Period:           periodOf(input.Window.Start, input.Window.End),
		Bills:            bills,
		Transactions:     transactions,
		TotalBilled:      totalBilled.Float64(),
		TotalPaid:        totalPaid.Float64(),
		TotalOutstanding: totalOutstanding.Float64(),
	}, nil
}

func (s *ReportService) transactionsReport(ctx context.Context, caller auth.Identity, input validator.ReportInput) (*TransactionsReport, error) {
	transactions, err := s.store.GetUserTransactionsInPeriod(ctx, caller.UserID,
		input.Window.Start, input.Window.End, input.TransactionType)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch transactions: %w", err)
	}

	totals := map[string]float64{
		db.TransactionTypeRecharge: 0,
		db.TransactionTypePayment:  0,
		db.TransactionTypeRefund:   0,
	}
	for _, txn := range transactions {
		if txn.Status != db.TransactionStatusCompleted {
			continue
		}
		if _, ok := totals[txn.TransactionType]; ok {
			totals[txn.TransactionType] += txn.Amount
		}
	}

	return &TransactionsReport{
		Period:       periodOf(input.Window.Start, input.Window.End),
		Transactions: transactions,
		Totals:       totals,
		Count:        len(transactions),
	}, nil
}

func (s *ReportService) recordReport(ctx context.Context, caller auth.Identity, input validator.ReportInput) (*db.Report, error) {
	params := map[string]any{
		"start_date": input.Window.Start.Format(time.RFC3339),
		"end_date":   input.Window.End.Format(time.RFC3339),
	}
	if input.MeterID != uuid.Nil {
		params["meter_id"] = input.MeterID.String()
	}
	if input.TargetUserID != nil {
		params["user_id"] = input.TargetUserID.String()
	}
	if input.TransactionType != "" {
		params["transaction_type"] = input.TransactionType
	}
	encoded, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal report parameters: %w", err)
	}

	report := &db.Report{
		UserID:     caller.UserID,
		ReportType: input.ReportType,
		Parameters: encoded,
	}
	if err := s.store.InsertReport(ctx, report); err != nil {
		return nil, err
	}
	return report, nil
}

func periodOf(start, end time.Time) PeriodRange {
	return PeriodRange{
		StartDate: start.Format("2006-01-02"),
		EndDate:   end.Format("2006-01-02"),
	}
}
