package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/septivank/utility-billing-service/internal/anomaly"
	"github.com/septivank/utility-billing-service/internal/auth"
	"github.com/septivank/utility-billing-service/internal/db"
	"github.com/septivank/utility-billing-service/internal/service"
	"github.com/septivank/utility-billing-service/internal/validator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newReadingService(store *fakeStore, events *fakePublisher) *service.ReadingService {
	cfg := testConfig()
	detector := anomaly.NewDetector(cfg.Anomaly.SpikeThreshold, cfg.Anomaly.MinDataPointsForDetection)
	return service.NewReadingService(store, detector, events, cfg, zaptestLogger())
}

func TestSubmitReading_Valid(t *testing.T) {
	store := newFakeStore()
	events := &fakePublisher{}
	userID := uuid.New()
	meterID := addPostpaidMeter(store, userID, "M-R1", 1.0)
	store.recentValues[meterID] = []float64{150, 140, 130}

	svc := newReadingService(store, events)
	caller := auth.Identity{UserID: userID, Role: "user"}

	reading, meter, err := svc.SubmitReading(context.Background(), caller, validator.ReadingInput{
		MeterID:     meterID,
		Reading:     160,
		ReadingDate: time.Date(2025, 6, 15, 8, 0, 0, 0, time.UTC),
		IsManual:    true,
	})
	require.NoError(t, err)
	require.NotNil(t, meter)
	assert.Equal(t, db.ReadingStatusValid, reading.ValidationStatus)
	assert.Nil(t, reading.AnomalyReason)
	assert.True(t, reading.IsManual)

	require.Len(t, store.insertedReadings, 1)
	require.Len(t, events.events, 1)
	assert.Equal(t, "meter.reading.accepted", events.events[0].routingKey)
}

func TestSubmitReading_RegressionFlagged(t *testing.T) {
	store := newFakeStore()
	userID := uuid.New()
	meterID := addPostpaidMeter(store, userID, "M-R2", 1.0)
	store.recentValues[meterID] = []float64{200}

	svc := newReadingService(store, &fakePublisher{})
	caller := auth.Identity{UserID: userID, Role: "user"}

	reading, _, err := svc.SubmitReading(context.Background(), caller, validator.ReadingInput{
		MeterID: meterID,
		Reading: 180,
	})
	require.NoError(t, err)
	// Flagged readings are stored anyway, with the reason attached
	assert.Equal(t, db.ReadingStatusFlagged, reading.ValidationStatus)
	require.NotNil(t, reading.AnomalyReason)
	assert.Len(t, store.insertedReadings, 1)
}

func TestSubmitReading_ZeroDateDefaultsToNow(t *testing.T) {
	store := newFakeStore()
	userID := uuid.New()
	meterID := addPostpaidMeter(store, userID, "M-R3", 1.0)

	svc := newReadingService(store, &fakePublisher{})
	caller := auth.Identity{UserID: userID, Role: "user"}

	before := time.Now()
	reading, _, err := svc.SubmitReading(context.Background(), caller, validator.ReadingInput{
		MeterID: meterID,
		Reading: 42,
	})
	require.NoError(t, err)
	assert.False(t, reading.ReadingDate.Before(before))
}

func TestSubmitReading_Forbidden(t *testing.T) {
	store := newFakeStore()
	meterID := addPostpaidMeter(store, uuid.New(), "M-R4", 1.0)

	svc := newReadingService(store, &fakePublisher{})
	stranger := auth.Identity{UserID: uuid.New(), Role: "user"}

	_, _, err := svc.SubmitReading(context.Background(), stranger, validator.ReadingInput{
		MeterID: meterID,
		Reading: 10,
	})
	assert.True(t, errors.Is(err, auth.ErrForbidden))
	assert.Empty(t, store.insertedReadings)
}

func TestProcessMessage_Valid(t *testing.T) {
	store := newFakeStore()
	userID := uuid.New()
	meterID := addPostpaidMeter(store, userID, "M-R5", 1.0)

	svc := newReadingService(store, &fakePublisher{})

	body := []byte(`{"request_id":"req-1","meter_id":"` + meterID.String() + `","reading":75.5,"reading_date":"2025-06-10","is_manual":false}`)
	err := svc.ProcessMessage(context.Background(), body)
	require.NoError(t, err)

	require.Len(t, store.insertedReadings, 1)
	stored := store.insertedReadings[0]
	assert.Equal(t, 75.5, stored.Reading)
	assert.False(t, stored.IsManual)
}

func TestProcessMessage_Rejected(t *testing.T) {
	store := newFakeStore()
	svc := newReadingService(store, &fakePublisher{})

	// Malformed JSON, missing reading, and unknown meter all bounce to the DLQ
	cases := map[string][]byte{
		"malformed":      []byte(`{`),
		"missing fields": []byte(`{"meter_id":"` + uuid.NewString() + `"}`),
		"unknown meter":  []byte(`{"meter_id":"` + uuid.NewString() + `","reading":10}`),
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			err := svc.ProcessMessage(context.Background(), body)
			assert.Error(t, err)
		})
	}
	assert.Empty(t, store.insertedReadings)
}
