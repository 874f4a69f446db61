package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type contextKey string

const (
	userIDKey    contextKey = "auth.userID"
	adminKey     contextKey = "auth.admin"
	cartTokenKey contextKey = "auth.cartToken"
)

// CartTokenCookie carries the guest cart identity across requests. It plays
// the role browser local storage plays on the client: it scopes the guest
// snapshot, not a server session.
const CartTokenCookie = "cart_token"

// Middleware extracts the caller identity from a bearer token and the guest
// cart token from its cookie. Token verification failures on optional routes
// simply leave the request anonymous.
type Middleware struct {
	secret []byte
}

func NewMiddleware(secret string) *Middleware {
	return &Middleware{secret: []byte(secret)}
}

// WithIdentity resolves the optional identity: authenticated callers get a
// user id in context, everyone gets a cart token (issued on first contact).
func (m *Middleware) WithIdentity(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if userID, admin, err := m.parseBearer(r); err == nil {
			ctx = context.WithValue(ctx, userIDKey, userID)
			ctx = context.WithValue(ctx, adminKey, admin)
		}

		token := m.cartToken(r)
		if token == "" {
			token = uuid.NewString()
			http.SetCookie(w, &http.Cookie{
				Name:     CartTokenCookie,
				Value:    token,
				Path:     "/",
				MaxAge:   int((30 * 24 * time.Hour).Seconds()),
				HttpOnly: true,
				SameSite: http.SameSiteLaxMode,
			})
		}
		ctx = context.WithValue(ctx, cartTokenKey, token)

		next(w, r.WithContext(ctx))
	}
}

// RequireUser rejects unauthenticated callers with 401. Owner-scoped routes
// (checkout, orders, addresses) sit behind it.
func (m *Middleware) RequireUser(next http.HandlerFunc) http.HandlerFunc {
	return m.WithIdentity(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := UserID(r.Context()); !ok {
			writeAuthError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		next(w, r)
	})
}

// RequireAdmin guards the back-office status transitions.
func (m *Middleware) RequireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return m.WithIdentity(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := UserID(r.Context()); !ok {
			writeAuthError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		if admin, _ := r.Context().Value(adminKey).(bool); !admin {
			writeAuthError(w, http.StatusForbidden, "access denied")
			return
		}
		next(w, r)
	})
}

func (m *Middleware) parseBearer(r *http.Request) (int64, bool, error) {
	header := r.Header.Get("Authorization")
	raw, found := strings.CutPrefix(header, "Bearer ")
	if !found {
		return 0, false, fmt.Errorf("missing bearer token")
	}

	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		return 0, false, err
	}

	sub, err := claims.GetSubject()
	if err != nil {
		return 0, false, err
	}
	userID, err := strconv.ParseInt(sub, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("parse subject: %w", err)
	}

	role, _ := claims["role"].(string)
	return userID, role == "admin", nil
}

func (m *Middleware) cartToken(r *http.Request) string {
	c, err := r.Cookie(CartTokenCookie)
	if err != nil {
		return ""
	}
	return c.Value
}

// UserID returns the authenticated user id, if any.
func UserID(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(userIDKey).(int64)
	return id, ok
}

// CartToken returns the guest cart token for this request.
func CartToken(ctx context.Context) string {
	token, _ := ctx.Value(cartTokenKey).(string)
	return token
}

// SignToken issues a session token; used by tests and local tooling, the
// production issuer lives in the identity service.
func SignToken(secret string, userID int64, admin bool, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"sub": strconv.FormatInt(userID, 10),
		"exp": time.Now().Add(ttl).Unix(),
	}
	if admin {
		claims["role"] = "admin"
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func writeAuthError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
