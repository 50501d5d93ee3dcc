package mq

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Publisher handles domain event publishing to RabbitMQ
type Publisher struct {
	conn     *Connection
	channel  *amqp.Channel
	exchange string
	logger   *zap.Logger
}

// NewPublisher creates a new RabbitMQ publisher
func NewPublisher(conn *Connection, exchange string, logger *zap.Logger) (*Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to create channel: %w", err)
	}

	// Declare exchange
	err = ch.ExchangeDeclare(
		exchange,
		"topic",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		ch.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	return &Publisher{
		conn:     conn,
		channel:  ch,
		exchange: exchange,
		logger:   logger,
	}, nil
}

// BillGeneratedEvent is published after a bill row is created
type BillGeneratedEvent struct {
	BillNumber  string  `json:"bill_number"`
	MeterID     string  `json:"meter_id"`
	UserID      string  `json:"user_id"`
	Consumption float64 `json:"consumption"`
	TotalAmount float64 `json:"total_amount"`
	DueDate     string  `json:"due_date"`
}

// PaymentCompletedEvent is published after a transaction row is created
type PaymentCompletedEvent struct {
	TransactionNumber string  `json:"transaction_number"`
	TransactionType   string  `json:"transaction_type"`
	UserID            string  `json:"user_id"`
	Amount            float64 `json:"amount"`
	PaymentMethod     string  `json:"payment_method"`
}

// ReportGeneratedEvent is published after a report audit row is created
type ReportGeneratedEvent struct {
	ReportID   string `json:"report_id"`
	ReportType string `json:"report_type"`
	UserID     string `json:"user_id"`
}

// ReadingAcceptedEvent is published after a meter reading is stored
type ReadingAcceptedEvent struct {
	MeterID          string  `json:"meter_id"`
	Reading          float64 `json:"reading"`
	ReadingTimestamp string  `json:"reading_timestamp"`
	ValidationStatus string  `json:"validation_status"`
}

// Publish marshals the payload and publishes it under the routing key
func (p *Publisher) Publish(ctx context.Context, routingKey string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	err = p.channel.PublishWithContext(
		ctx,
		p.exchange,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
		},
	)

	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	p.logger.Debug("published event",
		zap.String("routing_key", routingKey),
		zap.Int("body_size", len(body)),
	)

	return nil
}

// Close closes the publisher channel
func (p *Publisher) Close() error {
	if p.channel != nil {
		return p.channel.Close()
	}
	return nil
}
