package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hanbokmall/checkout/internal/domain"
)

// ConfirmationHandler turns order.placed events into confirmation emails.
// Stock and order state are already settled by the checkout transaction, so
// this worker only notifies; a failed send returns an error and the event is
// redelivered.
type ConfirmationHandler struct {
	emailServiceURL string
	httpClient      *http.Client
	logger          *slog.Logger
}

func NewConfirmationHandler(emailServiceURL string, client *http.Client, logger *slog.Logger) *ConfirmationHandler {
	return &ConfirmationHandler{
		emailServiceURL: emailServiceURL,
		httpClient:      client,
		logger:          logger,
	}
}

func (h *ConfirmationHandler) Handle(ctx context.Context, event domain.OrderPlacedEvent) error {
	h.logger.Info("processing order placed event",
		"order_number", event.OrderNumber, "user_id", event.UserID, "items", len(event.Items))

	if err := h.sendConfirmation(ctx, event); err != nil {
		h.logger.Error("failed to send confirmation email", "error", err, "order_number", event.OrderNumber)
		return fmt.Errorf("send confirmation email: %w", err)
	}

	h.logger.Info("confirmation sent", "order_number", event.OrderNumber)
	return nil
}

func (h *ConfirmationHandler) sendConfirmation(ctx context.Context, event domain.OrderPlacedEvent) error {
	payload := map[string]string{
		"to":           fmt.Sprintf("user-%d@example.com", event.UserID),
		"subject":      "Order confirmation " + event.OrderNumber,
		"body":         confirmationBody(event),
		"order_number": event.OrderNumber,
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.emailServiceURL+"/send", bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("email service returned status %d", resp.StatusCode)
	}

	return nil
}

func confirmationBody(event domain.OrderPlacedEvent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Thank you for your order %s.\n\n", event.OrderNumber)
	for _, item := range event.Items {
		fmt.Fprintf(&b, "- %s (size %s) x%d\n", item.ProductSlug, item.Size, item.Quantity)
	}
	fmt.Fprintf(&b, "\nTotal charged: %d.%02d\n", event.TotalAmount/100, event.TotalAmount%100)
	return b.String()
}
