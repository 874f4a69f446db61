package payment

import (
	"context"
	"errors"
)

// IntentStatus is the gateway-side state of a payment intent. Only the
// statuses the checkout flow branches on are modeled.
type IntentStatus string

const (
	StatusSucceeded      IntentStatus = "succeeded"
	StatusRequiresAction IntentStatus = "requires_action"
	StatusFailed         IntentStatus = "failed"
	StatusCanceled       IntentStatus = "canceled"
)

var ErrIntentNotFound = errors.New("payment intent not found")

// Intent is the slice of the gateway object this core stores: the id goes on
// the order, the client secret goes to the payment form.
type Intent struct {
	ID           string
	ClientSecret string
	Amount       int64
	Currency     string
	Status       IntentStatus
}

// Gateway abstracts the payment processor. Amounts are minor units.
type Gateway interface {
	CreateIntent(ctx context.Context, amount int64, currency string, metadata map[string]string) (*Intent, error)
	Retrieve(ctx context.Context, intentID string) (*Intent, error)
}
