package models

import "time"

// Event types
const (
	EventTypeOrderCreated = "ORDER_CREATED"
	EventTypeOrderPaid    = "ORDER_PAID"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderCreatedEvent published when a pending order is created
type OrderCreatedEvent struct {
	BaseEvent
	OrderID     string          `json:"order_id"`
	UserID      string          `json:"user_id"`
	TotalAmount float64         `json:"total_amount"`
	Items       []OrderItemData `json:"items"`
}

// OrderPaidEvent published when payment is reconciled. The notification
// worker consumes it to re-drive the (idempotent) confirmation mailer.
type OrderPaidEvent struct {
	BaseEvent
	OrderID         string  `json:"order_id"`
	UserID          string  `json:"user_id"`
	TotalAmount     float64 `json:"total_amount"`
	PaymentIntentID string  `json:"payment_intent_id"`
	Source          string  `json:"source"`
}

// Paid-event sources
const (
	PaidSourceClient  = "client-confirm"
	PaidSourceWebhook = "webhook"
)

// OrderItemData represents item data in events
type OrderItemData struct {
	ProductID string  `json:"product_id"`
	Quantity  int     `json:"quantity"`
	Price     float64 `json:"price"`
}
