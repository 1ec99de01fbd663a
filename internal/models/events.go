package models

import "time"

// Event types published to the order-events topic
const (
	EventTypeOrderCreated     = "ORDER_CREATED"
	EventTypeReceiptSubmitted = "RECEIPT_SUBMITTED"
	EventTypePaymentDecided   = "PAYMENT_DECIDED"
)

// BaseEvent contains common event fields
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderCreatedEvent is published after an order commits
type OrderCreatedEvent struct {
	BaseEvent
	OrderID      int64               `json:"order_id"`
	CustomerName string              `json:"customer_name"`
	Email        string              `json:"email"`
	ProductName  string              `json:"product_name"`
	TotalPrice   float64             `json:"total_price"`
	Items        []OrderItemSnapshot `json:"items"`
}

// OrderItemSnapshot is the event-payload view of an order line
type OrderItemSnapshot struct {
	ShopItemID int64   `json:"shop_item_id"`
	PackSize   string  `json:"pack_size,omitempty"`
	UnitPrice  float64 `json:"unit_price"`
	Quantity   float64 `json:"quantity"`
	TotalPrice float64 `json:"total_price"`
}

// ReceiptSubmittedEvent is published after a receipt is recorded
type ReceiptSubmittedEvent struct {
	BaseEvent
	OrderID    int64   `json:"order_id"`
	PaymentID  int64   `json:"payment_id"`
	Amount     float64 `json:"amount"`
	ReceiptRef string  `json:"receipt_ref"`
}

// PaymentDecidedEvent is published after an admin verdict is applied
type PaymentDecidedEvent struct {
	BaseEvent
	OrderID     int64  `json:"order_id"`
	PaymentID   int64  `json:"payment_id"`
	Status      string `json:"status"`
	OrderStatus string `json:"order_status"`
}
