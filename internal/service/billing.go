package service

import (
	"context"
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

// BillingStore is the data access the billing calculator needs
type BillingStore interface {
	GetPostpaidMetersByIDs(ctx context.Context, meterIDs []uuid.UUID) ([]db.Meter, error)
	GetReadingsInPeriod(ctx context.Context, meterID uuid.UUID, start, end time.Time) ([]db.MeterReading, error)
	InsertBill(ctx context.Context, bill *db.Bill) error
	InsertNotification(ctx context.Context, notification *db.Notification) error
}

// PerMeterError reports a failure for one meter of a bill generation batch
type PerMeterError struct {
	MeterID string `json:"meter_id"`
	Error   string `json:"error"`
}

// BillingService computes and persists bills for postpaid meters
type BillingService struct {
	store      BillingStore
	events     EventPublisher
	taxRate    money.Amount
	routingKey string
	logger     *zap.Logger
	now        func() time.Time
}

// NewBillingService creates a new billing service
func NewBillingService(store BillingStore, events EventPublisher, cfg *config.Config, logger *zap.Logger) (*BillingService, error) {
	taxRate, err := money.Parse(cfg.Billing.TaxRate)
	if err != nil {
		return nil, fmt.Errorf("invalid tax rate %q: %w", cfg.Billing.TaxRate, err)
	}
	return &BillingService{
		store:      store,
		events:     events,
		taxRate:    taxRate,
		routingKey: cfg.RabbitMQ.BillRoutingKey,
		logger:     logger,
		now:        time.Now,
	}, nil
}

// GenerateBills runs a billing batch over the requested meters. A failure
// on one meter never aborts the batch: the bills that could be created are
// returned together with the per-meter errors.
func (s *BillingService) GenerateBills(ctx context.Context, caller auth.Identity, input validator.GenerateBillsInput) ([]db.Bill, []PerMeterError, error) {
	meters, err := s.store.GetPostpaidMetersByIDs(ctx, input.MeterIDs)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to fetch meters: %w", err)
	}
	if len(meters) == 0 {
		return nil, nil, &NotFoundError{Resource: "valid postpaid meters for the provided ids"}
	}

	var bills []db.Bill
	var meterErrors []PerMeterError

	for _, meter := range meters {
		bill, err := s.generateForMeter(ctx, caller, meter, input)
		if err != nil {
			meterErrors = append(meterErrors, PerMeterError{
				MeterID: meter.ID.String(),
				Error:   err.Error(),
			})
			continue
		}
		bills = append(bills, *bill)
	}

	s.logger.Info("billing batch completed",
		zap.Int("requested", len(input.MeterIDs)),
		zap.Int("bills", len(bills)),
		zap.Int("errors", len(meterErrors)),
	)

	return bills, meterErrors, nil
}

func (s *BillingService) generateForMeter(ctx context.Context, caller auth.Identity, meter db.Meter, input validator.GenerateBillsInput) (*db.Bill, error) {
	if !caller.CanAccess(meter.UserID) {
		return nil, auth.ErrForbidden
	}

	readings, err := s.store.GetReadingsInPeriod(ctx, meter.ID, input.Period.Start, input.Period.End)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch readings: %w", err)
	}
	if len(readings) == 0 {
		return nil, fmt.Errorf("no readings found for the billing period")
	}

	firstReading := readings[0]
	lastReading := readings[len(readings)-1]

	consumption := money.FromFloat(lastReading.Reading).Sub(money.FromFloat(firstReading.Reading))
	if consumption.IsNegative() {
		// Counter rollover or out-of-order data. The bill is still written
		// with the negative amount rather than silently corrected.
		s.logger.Warn("negative consumption for billing period",
			zap.String("meter_id", meter.ID.String()),
			zap.Float64("first_reading", firstReading.Reading),
			zap.Float64("last_reading", lastReading.Reading),
		)
	}

	amount := consumption.Mul(money.FromFloat(meter.TariffRate)).Round2()
	taxAmount := amount.Mul(s.taxRate).Round2()
	totalAmount := amount.Add(taxAmount)

	billNumber := fmt.Sprintf("BILL-%s-%d", meter.MeterNumber, s.now().UnixMilli())

	bill := &db.Bill{
		MeterID:            meter.ID,
		BillNumber:         billNumber,
		BillingPeriodStart: input.Period.Start,
		BillingPeriodEnd:   input.Period.End,
		PreviousReading:    firstReading.Reading,
		CurrentReading:     lastReading.Reading,
		Consumption:        consumption.Float64(),
		Rate:               meter.TariffRate,
		Amount:             amount.Float64(),
		TaxAmount:          taxAmount.Float64(),
		TotalAmount:        totalAmount.Float64(),
		DueDate:            input.DueDate,
		Status:             db.BillStatusPending,
	}

	if err := s.store.InsertBill(ctx, bill); err != nil {
		return nil, fmt.Errorf("failed to create bill: %w", err)
	}

	meterID := meter.ID
	notification := &db.Notification{
		UserID:  meter.UserID,
		MeterID: &meterID,
		Title:   "New Bill Generated",
		Message: fmt.Sprintf("A new bill (%s) has been generated for your %s meter. Amount: %.2f. Due date: %s",
			billNumber, meter.MeterType, bill.TotalAmount, input.DueDate.Format("2006-01-02")),
		NotificationType: "info",
	}
	if err := s.store.InsertNotification(ctx, notification); err != nil {
		// The bill exists, the missed notification is not worth failing the meter
		s.logger.Warn("failed to create bill notification",
			zap.Error(err),
			zap.String("bill_number", billNumber),
		)
	}

	event := mq.BillGeneratedEvent{
		BillNumber:  billNumber,
		MeterID:     meter.ID.String(),
		UserID:      meter.UserID.String(),
		Consumption: bill.Consumption,
		TotalAmount: bill.TotalAmount,
		DueDate:     input.DueDate.Format("2006-01-02"),
	}
	if err := s.events.Publish(ctx, s.routingKey, event); err != nil {
		s.logger.Warn("failed to publish bill event",
			zap.Error(err),
			zap.String("bill_number", billNumber),
		)
	}

	return bill, nil
}
