package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/hanbokmall/checkout/internal/cart"
	"github.com/hanbokmall/checkout/internal/domain"
	"github.com/hanbokmall/checkout/internal/orders"
	"github.com/hanbokmall/checkout/internal/payment"
)

const (
	// ShippingFee is the flat shipping charge in minor units.
	ShippingFee int64 = 1000
	// TaxRatePercent is applied to the subtotal.
	TaxRatePercent int64 = 10

	Currency = "usd"
)

var (
	ErrEmptyCart           = errors.New("cart is empty")
	ErrPaymentNotConfirmed = errors.New("payment not confirmed")
	// ErrChargedNotRecorded marks the operationally significant divergence:
	// the gateway reports a successful charge but the order transaction
	// failed. Requires manual reconciliation; never silently swallowed.
	ErrChargedNotRecorded = errors.New("payment succeeded but order was not recorded")
)

// CartStore is the slice of the cart service the orchestrator reads.
type CartStore interface {
	Items(ctx context.Context, ident cart.Identity) ([]domain.CartLine, error)
}

// AddressStore lists and resolves the buyer's saved addresses.
type AddressStore interface {
	ListForUser(ctx context.Context, userID int64) ([]domain.Address, error)
	GetForUser(ctx context.Context, id, userID int64) (*domain.Address, error)
}

// OrderPlacer is the atomic order transaction.
type OrderPlacer interface {
	PlaceOrder(ctx context.Context, in orders.PlaceOrderInput) (*domain.Order, error)
}

// Publisher emits the order.placed event; nil disables publishing.
type Publisher interface {
	Publish(ctx context.Context, key string, event any) error
}

// Orchestrator sequences the checkout flow: summary, intent creation,
// payment verification, order transaction, event publication.
type Orchestrator struct {
	cart          CartStore
	addresses     AddressStore
	gateway       payment.Gateway
	orders        OrderPlacer
	producer      Publisher
	paymentMethod string
	logger        *slog.Logger

	ordersPlaced   metric.Int64Counter
	divergences    metric.Int64Counter
	checkoutAmount metric.Int64Histogram
}

func NewOrchestrator(cartStore CartStore, addresses AddressStore, gateway payment.Gateway,
	placer OrderPlacer, producer Publisher, paymentMethod string, logger *slog.Logger) (*Orchestrator, error) {

	meter := otel.Meter("checkout")

	ordersPlaced, err := meter.Int64Counter("checkout.orders_placed",
		metric.WithDescription("Orders successfully recorded"))
	if err != nil {
		return nil, err
	}

	divergences, err := meter.Int64Counter("checkout.payment_divergences",
		metric.WithDescription("Charges confirmed by the gateway whose order transaction failed"))
	if err != nil {
		return nil, err
	}

	checkoutAmount, err := meter.Int64Histogram("checkout.order_amount",
		metric.WithDescription("Order totals in minor units"),
		metric.WithUnit("{cent}"))
	if err != nil {
		return nil, err
	}

	return &Orchestrator{
		cart:           cartStore,
		addresses:      addresses,
		gateway:        gateway,
		orders:         placer,
		producer:       producer,
		paymentMethod:  paymentMethod,
		logger:         logger,
		ordersPlaced:   ordersPlaced,
		divergences:    divergences,
		checkoutAmount: checkoutAmount,
	}, nil
}

// Summary is the order math shown next to the payment form and the amount
// the intent is created for. Computed from the live cart every time.
type Summary struct {
	Items    []domain.CartLine `json:"items"`
	Subtotal int64             `json:"subtotal"`
	Shipping int64             `json:"shipping"`
	Tax      int64             `json:"tax"`
	Total    int64             `json:"total"`
}

func (o *Orchestrator) Summary(ctx context.Context, userID int64) (*Summary, error) {
	items, err := o.cart.Items(ctx, cart.Identity{UserID: userID, Authenticated: true})
	if err != nil {
		return nil, fmt.Errorf("load cart: %w", err)
	}
	if len(items) == 0 {
		return nil, ErrEmptyCart
	}

	return summarize(items), nil
}

func summarize(items []domain.CartLine) *Summary {
	s := &Summary{Items: items, Shipping: ShippingFee}
	for _, l := range items {
		s.Subtotal += l.Subtotal()
	}
	s.Tax = s.Subtotal * TaxRatePercent / 100
	s.Total = s.Subtotal + s.Shipping + s.Tax
	return s
}

// IntentResult is what the payment form needs to confirm the charge.
type IntentResult struct {
	IntentID     string `json:"intent_id"`
	ClientSecret string `json:"client_secret"`
	Amount       int64  `json:"amount"`
}

// CreateIntent guards against empty carts and asks the gateway for an intent
// over the current summary total. Called again whenever the cart changes
// before payment.
func (o *Orchestrator) CreateIntent(ctx context.Context, userID int64) (*IntentResult, error) {
	summary, err := o.Summary(ctx, userID)
	if err != nil {
		return nil, err
	}

	intent, err := o.gateway.CreateIntent(ctx, summary.Total, Currency, map[string]string{
		"user_id":   strconv.FormatInt(userID, 10),
		"cart_size": strconv.Itoa(len(summary.Items)),
	})
	if err != nil {
		return nil, fmt.Errorf("create intent: %w", err)
	}

	o.logger.Info("payment intent created", "user_id", userID, "intent_id", intent.ID, "amount", summary.Total)

	return &IntentResult{
		IntentID:     intent.ID,
		ClientSecret: intent.ClientSecret,
		Amount:       intent.Amount,
	}, nil
}

// Complete runs the post-payment half of checkout. The intent status is
// re-verified against the gateway rather than trusted from the client; only
// then does the order transaction run. A duplicate intent returns the
// original order with orders.ErrAlreadyPlaced.
func (o *Orchestrator) Complete(ctx context.Context, userID int64, intentID string, addressID int64) (*domain.Order, error) {
	items, err := o.cart.Items(ctx, cart.Identity{UserID: userID, Authenticated: true})
	if err != nil {
		return nil, fmt.Errorf("load cart: %w", err)
	}
	if len(items) == 0 {
		return nil, ErrEmptyCart
	}
	summary := summarize(items)

	address, err := o.addresses.GetForUser(ctx, addressID, userID)
	if err != nil {
		return nil, fmt.Errorf("resolve address: %w", err)
	}
	if address == nil {
		return nil, orders.ErrAddressNotFound
	}

	intent, err := o.gateway.Retrieve(ctx, intentID)
	if err != nil {
		if errors.Is(err, payment.ErrIntentNotFound) {
			return nil, fmt.Errorf("%w: unknown intent %s", ErrPaymentNotConfirmed, intentID)
		}
		return nil, fmt.Errorf("verify intent: %w", err)
	}
	if intent.Status != payment.StatusSucceeded {
		return nil, fmt.Errorf("%w: intent status %s", ErrPaymentNotConfirmed, intent.Status)
	}

	order, err := o.orders.PlaceOrder(ctx, orders.PlaceOrderInput{
		UserID:          userID,
		PaymentIntentID: intentID,
		AddressID:       addressID,
		TotalAmount:     summary.Total,
		PaymentMethod:   o.paymentMethod,
		Lines:           items,
	})
	if err != nil {
		if errors.Is(err, orders.ErrAlreadyPlaced) {
			o.logger.Info("duplicate checkout submit, returning original order",
				"intent_id", intentID, "order_number", order.OrderNumber)
			return order, orders.ErrAlreadyPlaced
		}

		// The charge is confirmed but nothing was recorded: every failure
		// past this point needs out-of-band recovery.
		o.divergences.Add(ctx, 1)
		o.logger.Error("order transaction failed after confirmed charge",
			"error", err, "intent_id", intentID, "user_id", userID, "amount", summary.Total)

		if errors.Is(err, orders.ErrStockExhausted) || errors.Is(err, orders.ErrAddressNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrChargedNotRecorded, err)
	}

	o.ordersPlaced.Add(ctx, 1)
	o.checkoutAmount.Record(ctx, order.TotalAmount)

	if o.producer != nil {
		event := domain.OrderPlacedEvent{
			OrderNumber: order.OrderNumber,
			UserID:      order.UserID,
			Items:       order.Items,
			TotalAmount: order.TotalAmount,
			Timestamp:   time.Now().UTC(),
		}
		if err := o.producer.Publish(ctx, order.OrderNumber, event); err != nil {
			o.logger.Error("failed to publish order placed event", "error", err, "order_number", order.OrderNumber)
		}
	}

	o.logger.Info("order placed", "order_number", order.OrderNumber, "user_id", userID, "total", order.TotalAmount)
	return order, nil
}

// Addresses backs the checkout address picker.
func (o *Orchestrator) Addresses(ctx context.Context, userID int64) ([]domain.Address, error) {
	return o.addresses.ListForUser(ctx, userID)
}
