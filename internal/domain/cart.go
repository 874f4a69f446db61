package domain

import "time"

// DefaultSize is applied when an add-to-cart request carries no size.
const DefaultSize = "M"

// CartLine is one product+size selection for a cart owner. For authenticated
// owners it is a persisted row; for guests it lives in the snapshot store and
// ProductID/UserID stay zero until the login-time merge resolves them.
type CartLine struct {
	ID          int64     `json:"id"`
	UserID      int64     `json:"user_id,omitempty"`
	ProductID   int64     `json:"product_id,omitempty"`
	ProductSlug string    `json:"product_slug"`
	Quantity    int       `json:"quantity"`
	Size        string    `json:"size"`
	Color       string    `json:"color,omitempty"`
	AddedAt     time.Time `json:"added_at"`

	// Display fields joined from the catalog for authenticated carts.
	ProductName string `json:"product_name,omitempty"`
	UnitPrice   int64  `json:"unit_price,omitempty"`
	MainImage   string `json:"main_image,omitempty"`
}

// Subtotal is quantity times the captured unit price, in minor units.
func (l CartLine) Subtotal() int64 {
	return int64(l.Quantity) * l.UnitPrice
}
