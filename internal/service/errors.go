package service

import (
	"context"
	"fmt"
)

// NotFoundError means a referenced resource does not exist
type NotFoundError struct {
	Resource string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found", e.Resource)
}

// EventPublisher publishes domain events after persistence. A publish
// failure is logged by the caller and never fails the request.
type EventPublisher interface {
	Publish(ctx context.Context, routingKey string, payload any) error
}
