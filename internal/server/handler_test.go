package server_test

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/septivank/utility-billing-service/internal/anomaly"
	"github.com/septivank/utility-billing-service/internal/auth"
	"github.com/septivank/utility-billing-service/internal/config"
	"github.com/septivank/utility-billing-service/internal/db"
	"github.com/septivank/utility-billing-service/internal/server"
	"github.com/septivank/utility-billing-service/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// apiStore backs every service with in-memory maps so the handler can be
// exercised end to end without Postgres.
type apiStore struct {
	sessions  map[string]uuid.UUID
	roles     map[uuid.UUID]string
	meters    map[uuid.UUID]*db.Meter
	readings  map[uuid.UUID][]db.MeterReading
	billsByID map[uuid.UUID]*db.BillWithOwner

	insertedBills        []db.Bill
	insertedTransactions []db.Transaction
	insertedReadings     []db.MeterReading
	insertedReports      []db.Report
}

func newAPIStore() *apiStore {
	return &apiStore{
		sessions:  make(map[string]uuid.UUID),
		roles:     make(map[uuid.UUID]string),
		meters:    make(map[uuid.UUID]*db.Meter),
		readings:  make(map[uuid.UUID][]db.MeterReading),
		billsByID: make(map[uuid.UUID]*db.BillWithOwner),
	}
}

func (s *apiStore) addSession(token string, userID uuid.UUID) {
	sum := sha256.Sum256([]byte(token))
	s.sessions[hex.EncodeToString(sum[:])] = userID
}

func (s *apiStore) GetSessionUser(_ context.Context, tokenHash string) (uuid.UUID, bool, error) {
	userID, ok := s.sessions[tokenHash]
	return userID, ok, nil
}

func (s *apiStore) GetProfileRole(_ context.Context, userID uuid.UUID) (string, bool, error) {
	role, ok := s.roles[userID]
	return role, ok, nil
}

func (s *apiStore) GetPostpaidMetersByIDs(_ context.Context, meterIDs []uuid.UUID) ([]db.Meter, error) {
	var meters []db.Meter
	for _, id := range meterIDs {
		if meter, ok := s.meters[id]; ok && meter.BillingType == db.BillingTypePostpaid {
			meters = append(meters, *meter)
		}
	}
	return meters, nil
}

func (s *apiStore) GetMeter(_ context.Context, meterID uuid.UUID) (*db.Meter, error) {
	meter, ok := s.meters[meterID]
	if !ok {
		return nil, nil
	}
	copied := *meter
	return &copied, nil
}

func (s *apiStore) GetBillWithOwner(_ context.Context, billID uuid.UUID) (*db.BillWithOwner, error) {
	bill, ok := s.billsByID[billID]
	if !ok {
		return nil, nil
	}
	copied := *bill
	return &copied, nil
}

func (s *apiStore) GetReadingsInPeriod(_ context.Context, meterID uuid.UUID, start, end time.Time) ([]db.MeterReading, error) {
	return s.readings[meterID], nil
}

func (s *apiStore) GetRecentReadingValues(_ context.Context, meterID uuid.UUID, limit int) ([]float64, error) {
	return nil, nil
}

func (s *apiStore) GetBillsForUserInPeriod(_ context.Context, userID uuid.UUID, start, end time.Time) ([]db.Bill, error) {
	return nil, nil
}

func (s *apiStore) GetTransactionsForBills(_ context.Context, billIDs []uuid.UUID) ([]db.Transaction, error) {
	return nil, nil
}

func (s *apiStore) GetUserTransactionsInPeriod(_ context.Context, userID uuid.UUID, start, end time.Time, transactionType string) ([]db.Transaction, error) {
	return nil, nil
}

func (s *apiStore) InsertBill(_ context.Context, bill *db.Bill) error {
	bill.ID = uuid.New()
	bill.CreatedAt = time.Now()
	s.insertedBills = append(s.insertedBills, *bill)
	return nil
}

func (s *apiStore) InsertTransaction(_ context.Context, txn *db.Transaction) error {
	txn.ID = uuid.New()
	s.insertedTransactions = append(s.insertedTransactions, *txn)
	return nil
}

func (s *apiStore) InsertNotification(_ context.Context, notification *db.Notification) error {
	notification.ID = uuid.New()
	return nil
}

func (s *apiStore) InsertReport(_ context.Context, report *db.Report) error {
	report.ID = uuid.New()
	s.insertedReports = append(s.insertedReports, *report)
	return nil
}

func (s *apiStore) InsertMeterReading(_ context.Context, reading *db.MeterReading) error {
	reading.ID = uuid.New()
	s.insertedReadings = append(s.insertedReadings, *reading)
	return nil
}

type nopPublisher struct{}

func (nopPublisher) Publish(_ context.Context, _ string, _ any) error { return nil }

func newTestHandler(t *testing.T, store *apiStore) http.Handler {
	t.Helper()
	cfg := &config.Config{
		Billing: config.BillingConfig{TaxRate: "0.05"},
		RabbitMQ: config.RabbitMQConfig{
			BillRoutingKey:    "bill.generated",
			PaymentRoutingKey: "payment.completed",
			ReportRoutingKey:  "report.generated",
			ReadingRoutingKey: "meter.reading.accepted",
		},
		Anomaly: config.AnomalyConfig{SpikeThreshold: 3.0, MinDataPointsForDetection: 3},
	}
	logger := zap.NewNop()
	events := nopPublisher{}

	billing, err := service.NewBillingService(store, events, cfg, logger)
	require.NoError(t, err)
	payments := service.NewPaymentService(store, events, cfg, logger)
	reports := service.NewReportService(store, events, cfg, logger)
	detector := anomaly.NewDetector(cfg.Anomaly.SpikeThreshold, cfg.Anomaly.MinDataPointsForDetection)
	readings := service.NewReadingService(store, detector, events, cfg, logger)
	authenticator := auth.NewAuthenticator(store, logger)

	return server.NewHandler(authenticator, billing, payments, reports, readings, logger).Routes()
}

func doRequest(t *testing.T, handler http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, req)
	return recorder
}

func decodeBody(t *testing.T, recorder *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &payload))
	return payload
}

func TestHandler_Health(t *testing.T) {
	handler := newTestHandler(t, newAPIStore())
	recorder := doRequest(t, handler, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, recorder.Code)
}

func TestHandler_CORSPreflight(t *testing.T) {
	handler := newTestHandler(t, newAPIStore())
	recorder := doRequest(t, handler, http.MethodOptions, "/v1/payments", "", nil)

	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, "*", recorder.Header().Get("Access-Control-Allow-Origin"))
	assert.NotEmpty(t, recorder.Header().Get("Access-Control-Allow-Headers"))
}

func TestHandler_MethodNotAllowed(t *testing.T) {
	handler := newTestHandler(t, newAPIStore())
	recorder := doRequest(t, handler, http.MethodGet, "/v1/payments", "", nil)

	assert.Equal(t, http.StatusMethodNotAllowed, recorder.Code)
	payload := decodeBody(t, recorder)
	assert.Equal(t, false, payload["success"])
	assert.NotEmpty(t, payload["error"])
}

func TestHandler_ValidationRunsBeforeAuth(t *testing.T) {
	handler := newTestHandler(t, newAPIStore())
	// No token at all, but the malformed body must win with a 400
	recorder := doRequest(t, handler, http.MethodPost, "/v1/payments", "", map[string]any{
		"transaction_type": "recharge",
	})
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestHandler_Unauthenticated(t *testing.T) {
	store := newAPIStore()
	handler := newTestHandler(t, store)
	meterID := uuid.New()

	body := map[string]any{
		"transaction_type": "recharge",
		"meter_id":         meterID.String(),
		"amount":           50.0,
		"payment_method":   "card",
	}

	// Missing header
	recorder := doRequest(t, handler, http.MethodPost, "/v1/payments", "", body)
	assert.Equal(t, http.StatusUnauthorized, recorder.Code)

	// Unknown token
	recorder = doRequest(t, handler, http.MethodPost, "/v1/payments", "not-a-session", body)
	assert.Equal(t, http.StatusUnauthorized, recorder.Code)
}

func TestHandler_PaymentSuccess(t *testing.T) {
	store := newAPIStore()
	userID := uuid.New()
	store.addSession("tok-user", userID)
	meterID := uuid.New()
	store.meters[meterID] = &db.Meter{
		ID:          meterID,
		UserID:      userID,
		MeterNumber: "M-9",
		BillingType: db.BillingTypePrepaid,
	}

	handler := newTestHandler(t, store)
	recorder := doRequest(t, handler, http.MethodPost, "/v1/payments", "tok-user", map[string]any{
		"transaction_type": "recharge",
		"meter_id":         meterID.String(),
		"amount":           50.0,
		"payment_method":   "card",
	})

	require.Equal(t, http.StatusOK, recorder.Code)
	assert.NotEmpty(t, recorder.Header().Get("X-Request-Id"))

	payload := decodeBody(t, recorder)
	assert.Equal(t, true, payload["success"])
	txn, ok := payload["transaction"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, db.TransactionStatusCompleted, txn["status"])
	require.Len(t, store.insertedTransactions, 1)
}

func TestHandler_PaymentForbidden(t *testing.T) {
	store := newAPIStore()
	callerID := uuid.New()
	store.addSession("tok-user", callerID)
	meterID := uuid.New()
	store.meters[meterID] = &db.Meter{ID: meterID, UserID: uuid.New(), BillingType: db.BillingTypePrepaid}

	handler := newTestHandler(t, store)
	recorder := doRequest(t, handler, http.MethodPost, "/v1/payments", "tok-user", map[string]any{
		"transaction_type": "recharge",
		"meter_id":         meterID.String(),
		"amount":           50.0,
		"payment_method":   "card",
	})

	assert.Equal(t, http.StatusForbidden, recorder.Code)
	assert.Empty(t, store.insertedTransactions)
}

func TestHandler_GenerateBills(t *testing.T) {
	store := newAPIStore()
	userID := uuid.New()
	store.addSession("tok-user", userID)
	meterID := uuid.New()
	store.meters[meterID] = &db.Meter{
		ID:          meterID,
		UserID:      userID,
		MeterNumber: "M-10",
		BillingType: db.BillingTypePostpaid,
		TariffRate:  8.0,
	}
	store.readings[meterID] = []db.MeterReading{
		{MeterID: meterID, Reading: 100, ReadingDate: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)},
		{MeterID: meterID, Reading: 150, ReadingDate: time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC)},
	}

	handler := newTestHandler(t, store)
	recorder := doRequest(t, handler, http.MethodPost, "/v1/bills/generate", "tok-user", map[string]any{
		"meter_ids":            meterID.String(),
		"billing_period_start": "2025-06-01",
		"billing_period_end":   "2025-06-30",
		"due_date":             "2025-07-15",
	})

	require.Equal(t, http.StatusOK, recorder.Code)
	payload := decodeBody(t, recorder)
	assert.Equal(t, "Generated 1 bills", payload["message"])
	require.Len(t, store.insertedBills, 1)
	assert.Equal(t, 420.0, store.insertedBills[0].TotalAmount)
}

func TestHandler_GenerateBillsAllMetersFail(t *testing.T) {
	store := newAPIStore()
	userID := uuid.New()
	store.addSession("tok-user", userID)
	meterID := uuid.New()
	// Postpaid meter with no readings: the batch runs but produces no bills
	store.meters[meterID] = &db.Meter{
		ID:          meterID,
		UserID:      userID,
		MeterNumber: "M-EMPTY",
		BillingType: db.BillingTypePostpaid,
		TariffRate:  8.0,
	}

	handler := newTestHandler(t, store)
	recorder := doRequest(t, handler, http.MethodPost, "/v1/bills/generate", "tok-user", map[string]any{
		"meter_ids":            meterID.String(),
		"billing_period_start": "2025-06-01",
		"billing_period_end":   "2025-06-30",
		"due_date":             "2025-07-15",
	})

	require.Equal(t, http.StatusOK, recorder.Code)
	payload := decodeBody(t, recorder)

	// An empty batch still serializes bills as an array, never null
	bills, ok := payload["bills"].([]any)
	require.True(t, ok, "bills must serialize as a JSON array")
	assert.Empty(t, bills)

	errs, ok := payload["errors"].([]any)
	require.True(t, ok)
	assert.Len(t, errs, 1)
}

func TestHandler_UnsupportedReportType(t *testing.T) {
	store := newAPIStore()
	store.addSession("tok-user", uuid.New())

	handler := newTestHandler(t, store)
	recorder := doRequest(t, handler, http.MethodPost, "/v1/reports", "tok-user", map[string]any{
		"report_type": "weather",
		"parameters": map[string]any{
			"start_date": "2025-06-01",
			"end_date":   "2025-06-30",
		},
	})

	assert.Equal(t, http.StatusBadRequest, recorder.Code)
	payload := decodeBody(t, recorder)
	assert.Equal(t, false, payload["success"])
}

func TestHandler_SubmitReading(t *testing.T) {
	store := newAPIStore()
	userID := uuid.New()
	store.addSession("tok-user", userID)
	meterID := uuid.New()
	store.meters[meterID] = &db.Meter{ID: meterID, UserID: userID, MeterNumber: "M-11"}

	handler := newTestHandler(t, store)
	recorder := doRequest(t, handler, http.MethodPost, "/v1/readings", "tok-user", map[string]any{
		"meter_id":  meterID.String(),
		"reading":   77.5,
		"is_manual": true,
	})

	require.Equal(t, http.StatusOK, recorder.Code)
	require.Len(t, store.insertedReadings, 1)
	assert.Equal(t, 77.5, store.insertedReadings[0].Reading)
}

func TestHandler_MalformedJSON(t *testing.T) {
	handler := newTestHandler(t, newAPIStore())
	req := httptest.NewRequest(http.MethodPost, "/v1/payments", bytes.NewBufferString("{"))
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, req)

	assert.Equal(t, http.StatusBadRequest, recorder.Code)
	payload := decodeBody(t, recorder)
	assert.Equal(t, false, payload["success"])
}
