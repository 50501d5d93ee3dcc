package service

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/septivank/utility-billing-service/internal/auth"
	"github.com/septivank/utility-billing-service/internal/config"
	"github.com/septivank/utility-billing-service/internal/db"
	"github.com/septivank/utility-billing-service/internal/mq"
	"github.com/septivank/utility-billing-service/internal/validator"
	"go.uber.org/zap"
)

// PaymentStore is the data access the payment recorder needs
type PaymentStore interface {
	GetMeter(ctx context.Context, meterID uuid.UUID) (*db.Meter, error)
	GetBillWithOwner(ctx context.Context, billID uuid.UUID) (*db.BillWithOwner, error)
	InsertTransaction(ctx context.Context, txn *db.Transaction) error
	InsertNotification(ctx context.Context, notification *db.Notification) error
}

// PaymentService records money movements against meters and bills
type PaymentService struct {
	store      PaymentStore
	events     EventPublisher
	routingKey string
	logger     *zap.Logger
	now        func() time.Time
}

// NewPaymentService creates a new payment service
func NewPaymentService(store PaymentStore, events EventPublisher, cfg *config.Config, logger *zap.Logger) *PaymentService {
	return &PaymentService{
		store:      store,
		events:     events,
		routingKey: cfg.RabbitMQ.PaymentRoutingKey,
		logger:     logger,
		now:        time.Now,
	}
}

// ProcessPayment validates ownership of the referenced resources and
// persists the transaction. There is no payment gateway behind this: the
// capture is simulated and the transaction lands as completed. Balance
// deduction and bill status transitions belong to the data store's
// triggers, so the only postcondition here is that a transaction row
// exists.
func (s *PaymentService) ProcessPayment(ctx context.Context, caller auth.Identity, input validator.PaymentInput) (*db.Transaction, error) {
	var billNumber string

	if input.MeterID != nil {
		meter, err := s.store.GetMeter(ctx, *input.MeterID)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch meter: %w", err)
		}
		if meter == nil {
			return nil, &NotFoundError{Resource: "meter"}
		}
		if !caller.CanAccess(meter.UserID) {
			return nil, auth.ErrForbidden
		}
	}

	if input.BillID != nil {
		bill, err := s.store.GetBillWithOwner(ctx, *input.BillID)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch bill: %w", err)
		}
		if bill == nil {
			return nil, &NotFoundError{Resource: "bill"}
		}
		if !caller.CanAccess(bill.OwnerID) {
			return nil, auth.ErrForbidden
		}
		billNumber = bill.BillNumber
	}

	now := s.now()
	// Random suffix keeps same-millisecond submissions apart
	transactionNumber := fmt.Sprintf("TXN-%d-%d", now.UnixMilli(), rand.Intn(1000))

	txn := &db.Transaction{
		TransactionNumber: transactionNumber,
		UserID:            caller.UserID,
		MeterID:           input.MeterID,
		BillID:            input.BillID,
		TransactionType:   input.TransactionType,
		Amount:            input.Amount,
		PaymentMethod:     input.PaymentMethod,
		PaymentReference:  input.PaymentReference,
		Status:            db.TransactionStatusCompleted,
		TransactionDate:   now,
		Notes:             input.Notes,
	}

	if err := s.store.InsertTransaction(ctx, txn); err != nil {
		return nil, fmt.Errorf("failed to create transaction: %w", err)
	}

	message := fmt.Sprintf("Your %s of %.2f was processed successfully. Transaction ID: %s",
		input.TransactionType, input.Amount, transactionNumber)
	if billNumber != "" {
		message = fmt.Sprintf("Your %s of %.2f for bill %s was processed successfully. Transaction ID: %s",
			input.TransactionType, input.Amount, billNumber, transactionNumber)
	}

	notification := &db.Notification{
		UserID:           caller.UserID,
		MeterID:          input.MeterID,
		Title:            titleFor(input.TransactionType),
		Message:          message,
		NotificationType: "info",
	}
	if err := s.store.InsertNotification(ctx, notification); err != nil {
		s.logger.Warn("failed to create payment notification",
			zap.Error(err),
			zap.String("transaction_number", transactionNumber),
		)
	}

	event := mq.PaymentCompletedEvent{
		TransactionNumber: transactionNumber,
		TransactionType:   input.TransactionType,
		UserID:            caller.UserID.String(),
		Amount:            input.Amount,
		PaymentMethod:     input.PaymentMethod,
	}
	if err := s.events.Publish(ctx, s.routingKey, event); err != nil {
		s.logger.Warn("failed to publish payment event",
			zap.Error(err),
			zap.String("transaction_number", transactionNumber),
		)
	}

	s.logger.Info("transaction recorded",
		zap.String("transaction_number", transactionNumber),
		zap.String("transaction_type", input.TransactionType),
		zap.Float64("amount", input.Amount),
	)

	return txn, nil
}

func titleFor(transactionType string) string {
	switch transactionType {
	case db.TransactionTypeRecharge:
		return "Recharge Successful"
	case db.TransactionTypePayment:
		return "Payment Successful"
	case db.TransactionTypeRefund:
		return "Refund Successful"
	default:
		return "Transaction Successful"
	}
}
