package checkout

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/hanbokmall/checkout/internal/auth"
	"github.com/hanbokmall/checkout/internal/orders"
)

// Handler serves the checkout endpoints: summary, address picker, intent
// creation, completion. All of them require an authenticated user.
type Handler struct {
	orchestrator *Orchestrator
	validate     *validator.Validate
	logger       *slog.Logger
}

func NewHandler(orchestrator *Orchestrator, validate *validator.Validate, logger *slog.Logger) *Handler {
	return &Handler{
		orchestrator: orchestrator,
		validate:     validate,
		logger:       logger,
	}
}

func (h *Handler) HandleSummary(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserID(r.Context())

	summary, err := h.orchestrator.Summary(r.Context(), userID)
	if err != nil {
		h.writeCheckoutError(w, err, userID)
		return
	}

	h.writeJSON(w, http.StatusOK, summary)
}

func (h *Handler) HandleAddresses(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserID(r.Context())

	addresses, err := h.orchestrator.Addresses(r.Context(), userID)
	if err != nil {
		h.logger.Error("failed to list addresses", "error", err, "user_id", userID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, addresses)
}

func (h *Handler) HandleCreateIntent(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserID(r.Context())

	result, err := h.orchestrator.CreateIntent(r.Context(), userID)
	if err != nil {
		h.writeCheckoutError(w, err, userID)
		return
	}

	h.writeJSON(w, http.StatusCreated, result)
}

type completeRequest struct {
	PaymentIntentID string `json:"payment_intent_id" validate:"required"`
	AddressID       int64  `json:"address_id" validate:"required,min=1"`
}

func (h *Handler) HandleComplete(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserID(r.Context())

	var req completeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			h.writeError(w, http.StatusBadRequest, "invalid field: "+verrs[0].Field())
			return
		}
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	order, err := h.orchestrator.Complete(r.Context(), userID, req.PaymentIntentID, req.AddressID)
	if err != nil {
		// A consumed intent is success from the buyer's point of view.
		if errors.Is(err, orders.ErrAlreadyPlaced) {
			h.writeJSON(w, http.StatusOK, order)
			return
		}
		h.writeCheckoutError(w, err, userID)
		return
	}

	h.writeJSON(w, http.StatusCreated, order)
}

func (h *Handler) writeCheckoutError(w http.ResponseWriter, err error, userID int64) {
	switch {
	case errors.Is(err, ErrEmptyCart):
		h.writeError(w, http.StatusConflict, "cart is empty")
	case errors.Is(err, ErrPaymentNotConfirmed):
		h.writeError(w, http.StatusPaymentRequired, "payment not confirmed")
	case errors.Is(err, orders.ErrAddressNotFound):
		h.writeError(w, http.StatusNotFound, "address not found")
	case errors.Is(err, orders.ErrStockExhausted):
		h.writeError(w, http.StatusConflict, err.Error())
	default:
		h.logger.Error("checkout failed", "error", err, "user_id", userID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
