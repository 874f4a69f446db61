package cart

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/hanbokmall/checkout/internal/auth"
	"github.com/hanbokmall/checkout/internal/domain"
)

const testSecret = "test-secret"

func newTestHandler(t *testing.T) (*Handler, *auth.Middleware) {
	t.Helper()
	svc, _, _, _ := newTestService()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	validate := validator.New(validator.WithRequiredStructEnabled())
	return NewHandler(svc, validate, logger), auth.NewMiddleware(testSecret)
}

func bearer(t *testing.T, userID int64) string {
	t.Helper()
	token, err := auth.SignToken(testSecret, userID, false, time.Hour)
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return "Bearer " + token
}

func TestHandlerAdd(t *testing.T) {
	t.Run("authenticated add returns the created line", func(t *testing.T) {
		handler, authn := newTestHandler(t)

		body := `{"product_slug": "silk-hanbok-red", "quantity": 2, "size": "L"}`
		req := httptest.NewRequest(http.MethodPost, "/cart/items", strings.NewReader(body))
		req.Header.Set("Authorization", bearer(t, 7))
		rec := httptest.NewRecorder()

		authn.WithIdentity(handler.HandleAdd)(rec, req)

		if rec.Code != http.StatusCreated {
			t.Fatalf("expected status 201, got %d: %s", rec.Code, rec.Body.String())
		}

		var line domain.CartLine
		if err := json.NewDecoder(rec.Body).Decode(&line); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if line.Quantity != 2 || line.Size != "L" {
			t.Errorf("unexpected line: %+v", line)
		}
	})

	t.Run("guest add works without a token", func(t *testing.T) {
		handler, authn := newTestHandler(t)

		body := `{"product_slug": "silk-hanbok-red", "quantity": 1}`
		req := httptest.NewRequest(http.MethodPost, "/cart/items", strings.NewReader(body))
		rec := httptest.NewRecorder()

		authn.WithIdentity(handler.HandleAdd)(rec, req)

		if rec.Code != http.StatusCreated {
			t.Fatalf("expected status 201, got %d: %s", rec.Code, rec.Body.String())
		}

		// First contact issues the guest cart cookie.
		cookies := rec.Result().Cookies()
		found := false
		for _, c := range cookies {
			if c.Name == auth.CartTokenCookie && c.Value != "" {
				found = true
			}
		}
		if !found {
			t.Error("expected cart token cookie to be issued")
		}
	})

	t.Run("zero quantity is rejected", func(t *testing.T) {
		handler, authn := newTestHandler(t)

		body := `{"product_slug": "silk-hanbok-red", "quantity": 0}`
		req := httptest.NewRequest(http.MethodPost, "/cart/items", strings.NewReader(body))
		req.Header.Set("Authorization", bearer(t, 7))
		rec := httptest.NewRecorder()

		authn.WithIdentity(handler.HandleAdd)(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected status 400, got %d", rec.Code)
		}
	})

	t.Run("unknown product returns 404", func(t *testing.T) {
		handler, authn := newTestHandler(t)

		body := `{"product_slug": "no-such-product", "quantity": 1}`
		req := httptest.NewRequest(http.MethodPost, "/cart/items", strings.NewReader(body))
		req.Header.Set("Authorization", bearer(t, 7))
		rec := httptest.NewRecorder()

		authn.WithIdentity(handler.HandleAdd)(rec, req)

		if rec.Code != http.StatusNotFound {
			t.Fatalf("expected status 404, got %d", rec.Code)
		}
	})
}

func TestHandlerGetAndRemove(t *testing.T) {
	handler, authn := newTestHandler(t)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /cart", authn.WithIdentity(handler.HandleGet))
	mux.HandleFunc("POST /cart/items", authn.WithIdentity(handler.HandleAdd))
	mux.HandleFunc("DELETE /cart/items/{slug}", authn.WithIdentity(handler.HandleRemove))

	add := httptest.NewRequest(http.MethodPost, "/cart/items",
		strings.NewReader(`{"product_slug": "cotton-jeogori", "quantity": 1}`))
	add.Header.Set("Authorization", bearer(t, 7))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, add)
	if rec.Code != http.StatusCreated {
		t.Fatalf("add failed: %d %s", rec.Code, rec.Body.String())
	}

	get := httptest.NewRequest(http.MethodGet, "/cart", nil)
	get.Header.Set("Authorization", bearer(t, 7))
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, get)
	if rec.Code != http.StatusOK {
		t.Fatalf("get failed: %d", rec.Code)
	}

	var resp struct {
		Items   []domain.CartLine `json:"items"`
		Version uint64            `json:"version"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Items) != 1 {
		t.Fatalf("expected one item, got %d", len(resp.Items))
	}
	if resp.Version == 0 {
		t.Error("expected non-zero version after a mutation")
	}

	del := httptest.NewRequest(http.MethodDelete, "/cart/items/cotton-jeogori", nil)
	del.Header.Set("Authorization", bearer(t, 7))
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, del)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("remove failed: %d %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	get = httptest.NewRequest(http.MethodGet, "/cart", nil)
	get.Header.Set("Authorization", bearer(t, 7))
	mux.ServeHTTP(rec, get)
	resp.Items = nil
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Items) != 0 {
		t.Errorf("expected empty cart, got %d items", len(resp.Items))
	}
}

func TestHandlerMerge(t *testing.T) {
	t.Run("requires authentication", func(t *testing.T) {
		handler, authn := newTestHandler(t)

		req := httptest.NewRequest(http.MethodPost, "/cart/merge", strings.NewReader(`{"items": []}`))
		rec := httptest.NewRecorder()

		authn.WithIdentity(handler.HandleMerge)(rec, req)

		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected status 401, got %d", rec.Code)
		}
	})

	t.Run("replaces the server cart with the posted snapshot", func(t *testing.T) {
		handler, authn := newTestHandler(t)

		body := `{"items": [{"product_slug": "silk-hanbok-red", "quantity": 2, "size": "L"}, {"product_slug": "gone", "quantity": 1}]}`
		req := httptest.NewRequest(http.MethodPost, "/cart/merge", strings.NewReader(body))
		req.Header.Set("Authorization", bearer(t, 12))
		rec := httptest.NewRecorder()

		authn.WithIdentity(handler.HandleMerge)(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
		}

		var resp struct {
			Items []domain.CartLine `json:"items"`
		}
		if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if len(resp.Items) != 1 || resp.Items[0].ProductSlug != "silk-hanbok-red" {
			t.Errorf("unexpected merged cart: %+v", resp.Items)
		}
	})
}
