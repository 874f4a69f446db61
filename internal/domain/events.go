package domain

import "time"

// OrderPlacedEvent is published after the order transaction commits. The
// worker fans it out to the notification pipeline.
type OrderPlacedEvent struct {
	OrderNumber string      `json:"order_number"`
	UserID      int64       `json:"user_id"`
	Items       []OrderItem `json:"items"`
	TotalAmount int64       `json:"total_amount"`
	Timestamp   time.Time   `json:"timestamp"`
}
