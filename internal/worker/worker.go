package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"chemsus-backend/internal/broker"
	"chemsus-backend/internal/models"
	"chemsus-backend/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// MailSender delivers operator notification email.
type MailSender interface {
	Send(to, subject, body string) error
}

// NotifyWorker consumes order events and emails the shop operator about new
// orders and submitted receipts. Entirely best-effort and outside the
// request path.
type NotifyWorker struct {
	consumer *broker.Consumer
	sender   MailSender
	operator string
	logger   *zap.Logger
}

// NewNotifyWorker creates a notification worker
func NewNotifyWorker(consumer *broker.Consumer, sender MailSender, operatorEmail string) *NotifyWorker {
	return &NotifyWorker{
		consumer: consumer,
		sender:   sender,
		operator: operatorEmail,
		logger:   util.NamedLogger("notify"),
	}
}

// Start consumes events until ctx is cancelled
func (w *NotifyWorker) Start(ctx context.Context) error {
	return w.consumer.StartConsuming(ctx, w.handle)
}

// Stop closes the underlying consumer
func (w *NotifyWorker) Stop() {
	if err := w.consumer.Close(); err != nil {
		w.logger.Warn("Error closing consumer", zap.Error(err))
	}
}

func (w *NotifyWorker) handle(ctx context.Context, msg kafka.Message) error {
	var base models.BaseEvent
	if err := json.Unmarshal(msg.Value, &base); err != nil {
		w.logger.Warn("Skipping undecodable event", zap.Error(err))
		return nil
	}

	switch base.EventType {
	case models.EventTypeOrderCreated:
		var event models.OrderCreatedEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			return nil
		}
		w.notify(
			fmt.Sprintf("New order #%d", event.OrderID),
			fmt.Sprintf("Order #%d placed by %s <%s>.\nProduct: %s\nTotal: %.2f",
				event.OrderID, event.CustomerName, event.Email, event.ProductName, event.TotalPrice))

	case models.EventTypeReceiptSubmitted:
		var event models.ReceiptSubmittedEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			return nil
		}
		w.notify(
			fmt.Sprintf("Receipt submitted for order #%d", event.OrderID),
			fmt.Sprintf("Payment #%d claims %.2f for order #%d.\nReceipt: %s\nPlease verify it in the admin panel.",
				event.PaymentID, event.Amount, event.OrderID, event.ReceiptRef))
	}

	return nil
}

func (w *NotifyWorker) notify(subject, body string) {
	if err := w.sender.Send(w.operator, subject, body); err != nil {
		w.logger.Warn("Operator notification failed",
			zap.String("subject", subject),
			zap.Error(err))
	}
}
