package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/septivank/utility-billing-service/internal/anomaly"
	"github.com/septivank/utility-billing-service/internal/auth"
	"github.com/septivank/utility-billing-service/internal/config"
	"github.com/septivank/utility-billing-service/internal/db"
	"github.com/septivank/utility-billing-service/internal/logging"
	"github.com/septivank/utility-billing-service/internal/mq"
	"github.com/septivank/utility-billing-service/internal/validator"
	"go.uber.org/zap"
)

// ReadingStore is the data access reading ingestion needs
type ReadingStore interface {
	GetMeter(ctx context.Context, meterID uuid.UUID) (*db.Meter, error)
	GetRecentReadingValues(ctx context.Context, meterID uuid.UUID, limit int) ([]float64, error)
	InsertMeterReading(ctx context.Context, reading *db.MeterReading) error
}

// recentReadingsForScreening is how much history feeds the anomaly detector
const recentReadingsForScreening = 10

// IngestMessage is an automatic meter reading arriving over RabbitMQ
type IngestMessage struct {
	RequestID   string   `json:"request_id"`
	MeterID     string   `json:"meter_id"`
	Reading     *float64 `json:"reading"`
	ReadingDate string   `json:"reading_date"`
	IsManual    bool     `json:"is_manual"`
}

// ReadingService stores meter readings from both the HTTP path and the
// RabbitMQ ingest queue
type ReadingService struct {
	store      ReadingStore
	detector   *anomaly.Detector
	events     EventPublisher
	routingKey string
	logger     *zap.Logger
	now        func() time.Time
}

// NewReadingService creates a new reading service
func NewReadingService(store ReadingStore, detector *anomaly.Detector, events EventPublisher, cfg *config.Config, logger *zap.Logger) *ReadingService {
	return &ReadingService{
		store:      store,
		detector:   detector,
		events:     events,
		routingKey: cfg.RabbitMQ.ReadingRoutingKey,
		logger:     logger,
		now:        time.Now,
	}
}

// SubmitReading stores a manually submitted reading for a meter the caller
// may access, then re-fetches the meter so the caller sees any trigger-side
// balance or consumption updates.
func (s *ReadingService) SubmitReading(ctx context.Context, caller auth.Identity, input validator.ReadingInput) (*db.MeterReading, *db.Meter, error) {
	meter, err := s.store.GetMeter(ctx, input.MeterID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to fetch meter: %w", err)
	}
	if meter == nil {
		return nil, nil, &NotFoundError{Resource: "meter"}
	}
	if !caller.CanAccess(meter.UserID) {
		return nil, nil, auth.ErrForbidden
	}

	reading, err := s.storeReading(ctx, input)
	if err != nil {
		return nil, nil, err
	}

	updatedMeter, err := s.store.GetMeter(ctx, input.MeterID)
	if err != nil {
		s.logger.Warn("failed to re-fetch meter after reading insert", zap.Error(err))
		updatedMeter = meter
	}

	return reading, updatedMeter, nil
}

// ProcessMessage handles one reading message from the ingest queue. A
// returned error sends the message to the DLQ.
func (s *ReadingService) ProcessMessage(ctx context.Context, body []byte) error {
	var msg IngestMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return fmt.Errorf("failed to unmarshal message: %w", err)
	}

	reqLogger := logging.WithRequestID(s.logger, msg.RequestID)

	input, err := validator.ValidateReading(validator.ReadingRequest{
		MeterID:     msg.MeterID,
		Reading:     msg.Reading,
		ReadingDate: msg.ReadingDate,
		IsManual:    msg.IsManual,
	})
	if err != nil {
		return fmt.Errorf("invalid reading message: %w", err)
	}

	meter, err := s.store.GetMeter(ctx, input.MeterID)
	if err != nil {
		return fmt.Errorf("failed to fetch meter: %w", err)
	}
	if meter == nil {
		return fmt.Errorf("meter %s not found", input.MeterID)
	}

	reading, err := s.storeReading(ctx, input)
	if err != nil {
		return err
	}

	reqLogger.Info("reading ingested",
		zap.String("meter_id", input.MeterID.String()),
		zap.Float64("reading", reading.Reading),
		zap.String("validation_status", reading.ValidationStatus),
	)

	return nil
}

func (s *ReadingService) storeReading(ctx context.Context, input validator.ReadingInput) (*db.MeterReading, error) {
	readingDate := input.ReadingDate
	if readingDate.IsZero() {
		readingDate = s.now()
	}

	validationStatus := db.ReadingStatusValid
	var anomalyReason *string

	recentValues, err := s.store.GetRecentReadingValues(ctx, input.MeterID, recentReadingsForScreening)
	if err != nil {
		s.logger.Warn("failed to get recent readings for anomaly screening",
			zap.Error(err),
			zap.String("meter_id", input.MeterID.String()),
		)
	} else {
		flagged, reason := s.detector.ScreenReading(input.Reading, recentValues)
		if flagged {
			validationStatus = db.ReadingStatusFlagged
			anomalyReason = &reason
		}
	}

	reading := &db.MeterReading{
		MeterID:          input.MeterID,
		Reading:          input.Reading,
		ReadingDate:      readingDate,
		IsManual:         input.IsManual,
		ValidationStatus: validationStatus,
		AnomalyReason:    anomalyReason,
		Notes:            input.Notes,
	}

	if err := s.store.InsertMeterReading(ctx, reading); err != nil {
		return nil, fmt.Errorf("failed to store reading: %w", err)
	}

	event := mq.ReadingAcceptedEvent{
		MeterID:          input.MeterID.String(),
		Reading:          input.Reading,
		ReadingTimestamp: readingDate.Format(time.RFC3339),
		ValidationStatus: validationStatus,
	}
	if err := s.events.Publish(ctx, s.routingKey, event); err != nil {
		s.logger.Warn("failed to publish reading event",
			zap.Error(err),
			zap.String("meter_id", input.MeterID.String()),
		)
	}

	return reading, nil
}
