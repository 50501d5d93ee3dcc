package service_test

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/septivank/utility-billing-service/internal/config"
	"github.com/septivank/utility-billing-service/internal/db"
	"go.uber.org/zap"
)

func zaptestLogger() *zap.Logger {
	return zap.NewNop()
}

// fakeStore is an in-memory stand-in for the repository, implementing the
// per-service store interfaces.
type fakeStore struct {
	meters       map[uuid.UUID]*db.Meter
	readings     map[uuid.UUID][]db.MeterReading
	billsByID    map[uuid.UUID]*db.BillWithOwner
	userBills    map[uuid.UUID][]db.Bill
	txnsForBills []db.Transaction
	userTxns     []db.Transaction
	recentValues map[uuid.UUID][]float64

	insertedBills         []db.Bill
	insertedTransactions  []db.Transaction
	insertedNotifications []db.Notification
	insertedReports       []db.Report
	insertedReadings      []db.MeterReading
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		meters:       make(map[uuid.UUID]*db.Meter),
		readings:     make(map[uuid.UUID][]db.MeterReading),
		billsByID:    make(map[uuid.UUID]*db.BillWithOwner),
		userBills:    make(map[uuid.UUID][]db.Bill),
		recentValues: make(map[uuid.UUID][]float64),
	}
}

func (f *fakeStore) GetPostpaidMetersByIDs(_ context.Context, meterIDs []uuid.UUID) ([]db.Meter, error) {
	var meters []db.Meter
	for _, id := range meterIDs {
		if meter, ok := f.meters[id]; ok && meter.BillingType == db.BillingTypePostpaid {
			meters = append(meters, *meter)
		}
	}
	return meters, nil
}

func (f *fakeStore) GetMeter(_ context.Context, meterID uuid.UUID) (*db.Meter, error) {
	meter, ok := f.meters[meterID]
	if !ok {
		return nil, nil
	}
	copied := *meter
	return &copied, nil
}

func (f *fakeStore) GetReadingsInPeriod(_ context.Context, meterID uuid.UUID, start, end time.Time) ([]db.MeterReading, error) {
	var result []db.MeterReading
	for _, reading := range f.readings[meterID] {
		if !reading.ReadingDate.Before(start) && !reading.ReadingDate.After(end) {
			result = append(result, reading)
		}
	}
	return result, nil
}

func (f *fakeStore) GetRecentReadingValues(_ context.Context, meterID uuid.UUID, limit int) ([]float64, error) {
	values := f.recentValues[meterID]
	if len(values) > limit {
		values = values[:limit]
	}
	return values, nil
}

func (f *fakeStore) GetBillWithOwner(_ context.Context, billID uuid.UUID) (*db.BillWithOwner, error) {
	bill, ok := f.billsByID[billID]
	if !ok {
		return nil, nil
	}
	copied := *bill
	return &copied, nil
}

func (f *fakeStore) GetBillsForUserInPeriod(_ context.Context, userID uuid.UUID, start, end time.Time) ([]db.Bill, error) {
	return f.userBills[userID], nil
}

func (f *fakeStore) GetTransactionsForBills(_ context.Context, billIDs []uuid.UUID) ([]db.Transaction, error) {
	return f.txnsForBills, nil
}

func (f *fakeStore) GetUserTransactionsInPeriod(_ context.Context, userID uuid.UUID, start, end time.Time, transactionType string) ([]db.Transaction, error) {
	if transactionType == "" {
		return f.userTxns, nil
	}
	var filtered []db.Transaction
	for _, txn := range f.userTxns {
		if txn.TransactionType == transactionType {
			filtered = append(filtered, txn)
		}
	}
	return filtered, nil
}

func (f *fakeStore) InsertBill(_ context.Context, bill *db.Bill) error {
	bill.ID = uuid.New()
	bill.CreatedAt = time.Now()
	f.insertedBills = append(f.insertedBills, *bill)
	return nil
}

func (f *fakeStore) InsertTransaction(_ context.Context, txn *db.Transaction) error {
	txn.ID = uuid.New()
	f.insertedTransactions = append(f.insertedTransactions, *txn)
	return nil
}

func (f *fakeStore) InsertNotification(_ context.Context, notification *db.Notification) error {
	notification.ID = uuid.New()
	notification.CreatedAt = time.Now()
	f.insertedNotifications = append(f.insertedNotifications, *notification)
	return nil
}

func (f *fakeStore) InsertReport(_ context.Context, report *db.Report) error {
	report.ID = uuid.New()
	report.CreatedAt = time.Now()
	f.insertedReports = append(f.insertedReports, *report)
	return nil
}

func (f *fakeStore) InsertMeterReading(_ context.Context, reading *db.MeterReading) error {
	reading.ID = uuid.New()
	f.insertedReadings = append(f.insertedReadings, *reading)
	return nil
}

// fakePublisher records published events
type fakePublisher struct {
	events []publishedEvent
}

type publishedEvent struct {
	routingKey string
	payload    any
}

func (f *fakePublisher) Publish(_ context.Context, routingKey string, payload any) error {
	f.events = append(f.events, publishedEvent{routingKey: routingKey, payload: payload})
	return nil
}

func testConfig() *config.Config {
	return &config.Config{
		Billing: config.BillingConfig{TaxRate: "0.05"},
		RabbitMQ: config.RabbitMQConfig{
			BillRoutingKey:    "bill.generated",
			PaymentRoutingKey: "payment.completed",
			ReportRoutingKey:  "report.generated",
			ReadingRoutingKey: "meter.reading.accepted",
		},
		Anomaly: config.AnomalyConfig{SpikeThreshold: 3.0, MinDataPointsForDetection: 3},
	}
}
