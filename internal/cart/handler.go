package cart

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"

	"github.com/hanbokmall/checkout/internal/auth"
	"github.com/hanbokmall/checkout/internal/domain"
)

type Handler struct {
	service  *Service
	validate *validator.Validate
	logger   *slog.Logger
}

func NewHandler(service *Service, validate *validator.Validate, logger *slog.Logger) *Handler {
	return &Handler{
		service:  service,
		validate: validate,
		logger:   logger,
	}
}

func identityFrom(r *http.Request) Identity {
	userID, ok := auth.UserID(r.Context())
	return Identity{
		UserID:        userID,
		Authenticated: ok,
		CartToken:     auth.CartToken(r.Context()),
	}
}

type cartResponse struct {
	Items   []domain.CartLine `json:"items"`
	Version uint64            `json:"version"`
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.Items(r.Context(), identityFrom(r))
	if err != nil {
		h.logger.Error("failed to load cart", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, cartResponse{Items: items, Version: h.service.Version()})
}

type addRequest struct {
	ProductSlug string `json:"product_slug" validate:"required"`
	Quantity    int    `json:"quantity" validate:"required,min=1"`
	Size        string `json:"size"`
	Color       string `json:"color"`
}

func (h *Handler) HandleAdd(w http.ResponseWriter, r *http.Request) {
	var req addRequest
	if !h.bind(w, r, &req) {
		return
	}

	line, err := h.service.Add(r.Context(), identityFrom(r), AddInput{
		ProductSlug: req.ProductSlug,
		Quantity:    req.Quantity,
		Size:        req.Size,
		Color:       req.Color,
	})
	if err != nil {
		h.writeServiceError(w, err, "failed to add to cart", "slug", req.ProductSlug)
		return
	}

	h.logger.Info("cart line added", "slug", req.ProductSlug, "quantity", line.Quantity, "size", line.Size)
	h.writeJSON(w, http.StatusCreated, line)
}

func (h *Handler) HandleRemove(w http.ResponseWriter, r *http.Request) {
	slug := r.PathValue("slug")
	if slug == "" {
		h.writeError(w, http.StatusBadRequest, "missing product slug")
		return
	}

	if err := h.service.RemoveProduct(r.Context(), identityFrom(r), slug); err != nil {
		h.writeServiceError(w, err, "failed to remove from cart", "slug", slug)
		return
	}

	h.logger.Info("cart product removed", "slug", slug)
	w.WriteHeader(http.StatusNoContent)
}

type updateQuantityRequest struct {
	Quantity int `json:"quantity" validate:"required,min=1"`
}

func (h *Handler) HandleUpdateQuantity(w http.ResponseWriter, r *http.Request) {
	lineID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid cart line id")
		return
	}

	var req updateQuantityRequest
	if !h.bind(w, r, &req) {
		return
	}

	if err := h.service.UpdateQuantity(r.Context(), identityFrom(r), lineID, req.Quantity); err != nil {
		h.writeServiceError(w, err, "failed to update quantity", "line_id", lineID)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"id": lineID, "quantity": req.Quantity})
}

type mergeRequest struct {
	Items []mergeLine `json:"items" validate:"dive"`
}

type mergeLine struct {
	ProductSlug string `json:"product_slug" validate:"required"`
	Quantity    int    `json:"quantity" validate:"min=0"`
	Size        string `json:"size"`
	Color       string `json:"color"`
}

// HandleMerge is called by the auth flow right after login or signup: the
// client posts its local snapshot, the server cart is replaced with it and
// the guest snapshot cleared.
func (h *Handler) HandleMerge(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserID(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req mergeRequest
	if !h.bind(w, r, &req) {
		return
	}

	guestLines := make([]domain.CartLine, 0, len(req.Items))
	for _, item := range req.Items {
		guestLines = append(guestLines, domain.CartLine{
			ProductSlug: item.ProductSlug,
			Quantity:    item.Quantity,
			Size:        item.Size,
			Color:       item.Color,
		})
	}

	if err := h.service.MergeGuestCart(r.Context(), userID, auth.CartToken(r.Context()), guestLines); err != nil {
		h.logger.Error("failed to merge guest cart", "error", err, "user_id", userID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	items, err := h.service.Items(r.Context(), Identity{UserID: userID, Authenticated: true})
	if err != nil {
		h.logger.Error("failed to load merged cart", "error", err, "user_id", userID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, cartResponse{Items: items, Version: h.service.Version()})
}

func (h *Handler) bind(w http.ResponseWriter, r *http.Request, out any) bool {
	if err := json.NewDecoder(r.Body).Decode(out); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}

	if err := h.validate.Struct(out); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			h.writeError(w, http.StatusBadRequest, "validation failed: "+verrs[0].Error())
			return false
		}
		h.writeError(w, http.StatusBadRequest, "validation failed")
		return false
	}

	return true
}

func (h *Handler) writeServiceError(w http.ResponseWriter, err error, msg string, args ...any) {
	switch {
	case errors.Is(err, ErrInvalidQuantity):
		h.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrProductNotFound):
		h.writeError(w, http.StatusNotFound, "product not found")
	case errors.Is(err, ErrLineNotFound):
		h.writeError(w, http.StatusNotFound, "cart line not found")
	default:
		h.logger.Error(msg, append([]any{"error", err}, args...)...)
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
