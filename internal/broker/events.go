package broker

import (
	"context"
	"fmt"

	"chemsus-backend/internal/models"
)

// EventPublisher publishes typed domain events keyed by order
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

// PublishOrderCreated publishes an OrderCreated event
func (ep *EventPublisher) PublishOrderCreated(ctx context.Context, event *models.OrderCreatedEvent) error {
	return ep.producer.PublishEvent(ctx, orderKey(event.OrderID), event)
}

// PublishReceiptSubmitted publishes a ReceiptSubmitted event
func (ep *EventPublisher) PublishReceiptSubmitted(ctx context.Context, event *models.ReceiptSubmittedEvent) error {
	return ep.producer.PublishEvent(ctx, orderKey(event.OrderID), event)
}

// PublishPaymentDecided publishes a PaymentDecided event
func (ep *EventPublisher) PublishPaymentDecided(ctx context.Context, event *models.PaymentDecidedEvent) error {
	return ep.producer.PublishEvent(ctx, orderKey(event.OrderID), event)
}

func orderKey(orderID int64) string {
	return fmt.Sprintf("order-%d", orderID)
}
