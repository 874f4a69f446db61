package domain

import "time"

type OrderStatus string

const (
	OrderStatusConfirmed  OrderStatus = "CONFIRMED"
	OrderStatusPending    OrderStatus = "PENDING"
	OrderStatusProcessing OrderStatus = "PROCESSING"
	OrderStatusShipped    OrderStatus = "SHIPPED"
	OrderStatusDelivered  OrderStatus = "DELIVERED"
	OrderStatusCancelled  OrderStatus = "CANCELLED"
)

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusConfirmed, OrderStatusPending, OrderStatusProcessing,
		OrderStatusShipped, OrderStatusDelivered, OrderStatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further transitions are allowed.
// DELIVERED is terminal by convention only; CANCELLED is enforced.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusCancelled
}

// CanTransitionTo enforces the order lifecycle: admin-driven forward states
// are freely reachable, CANCELLED is reachable from any non-terminal state,
// and nothing leaves CANCELLED.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	if !next.Valid() || s.Terminal() {
		return false
	}
	return s != next
}

type PaymentStatus string

const (
	PaymentStatusPaid PaymentStatus = "PAID"
)

// OrderItem is a purchased line. Price is the unit price captured at
// checkout time and is never recomputed from the catalog.
type OrderItem struct {
	ID          int64  `json:"id"`
	OrderID     int64  `json:"order_id"`
	ProductID   int64  `json:"product_id"`
	ProductSlug string `json:"product_slug"`
	Quantity    int    `json:"quantity"`
	Price       int64  `json:"price"`
	Size        string `json:"size,omitempty"`
	Color       string `json:"color,omitempty"`
}

type Order struct {
	ID              int64         `json:"id"`
	OrderNumber     string        `json:"order_number"`
	PaymentIntentID string        `json:"payment_intent_id"`
	UserID          int64         `json:"user_id"`
	AddressID       int64         `json:"address_id"`
	Items           []OrderItem   `json:"items"`
	TotalAmount     int64         `json:"total_amount"`
	PaymentStatus   PaymentStatus `json:"payment_status"`
	PaymentMethod   string        `json:"payment_method"`
	Status          OrderStatus   `json:"status"`
	CreatedAt       time.Time     `json:"created_at"`
}
