package orders

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/hanbokmall/checkout/internal/domain"
)

var (
	ErrAddressNotFound   = errors.New("address not found")
	ErrStockExhausted    = errors.New("insufficient stock")
	ErrOrderNotFound     = errors.New("order not found")
	ErrAlreadyPlaced     = errors.New("payment intent already consumed")
	ErrInvalidTransition = errors.New("invalid status transition")
)

const pqUniqueViolation = "23505"

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// PlaceOrderInput carries everything the transaction persists. TotalAmount
// and line prices are the values captured at checkout time; they are written
// as-is, never recomputed from the catalog.
type PlaceOrderInput struct {
	UserID          int64
	PaymentIntentID string
	AddressID       int64
	TotalAmount     int64
	PaymentMethod   string
	Lines           []domain.CartLine
}

// PlaceOrder converts a confirmed payment into a durable order in one
// database transaction: order row, items with snapshot prices, conditional
// stock decrements, full cart clear. Any failure rolls everything back.
//
// The UNIQUE constraint on payment_intent_id makes the call idempotent: a
// second attempt with a consumed intent returns the original order together
// with ErrAlreadyPlaced.
func (r *Repository) PlaceOrder(ctx context.Context, in PlaceOrderInput) (*domain.Order, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var addressID int64
	err = tx.QueryRowContext(ctx, `
		SELECT id FROM addresses WHERE id = $1 AND user_id = $2
	`, in.AddressID, in.UserID).Scan(&addressID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrAddressNotFound
		}
		return nil, err
	}

	order := &domain.Order{
		OrderNumber:     newOrderNumber(),
		PaymentIntentID: in.PaymentIntentID,
		UserID:          in.UserID,
		AddressID:       in.AddressID,
		TotalAmount:     in.TotalAmount,
		PaymentStatus:   domain.PaymentStatusPaid,
		PaymentMethod:   in.PaymentMethod,
		Status:          domain.OrderStatusConfirmed,
		CreatedAt:       time.Now().UTC(),
	}

	err = tx.QueryRowContext(ctx, `
		INSERT INTO orders (order_number, payment_intent_id, user_id, address_id,
		                    total_amount, payment_status, payment_method, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`, order.OrderNumber, order.PaymentIntentID, order.UserID, order.AddressID,
		order.TotalAmount, order.PaymentStatus, order.PaymentMethod, order.Status, order.CreatedAt).
		Scan(&order.ID)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
			_ = tx.Rollback()
			existing, getErr := r.GetByIntentID(ctx, in.PaymentIntentID)
			if getErr != nil {
				return nil, fmt.Errorf("lookup existing order for intent %s: %w", in.PaymentIntentID, getErr)
			}
			return existing, ErrAlreadyPlaced
		}
		return nil, err
	}

	for _, line := range in.Lines {
		item := domain.OrderItem{
			OrderID:     order.ID,
			ProductID:   line.ProductID,
			ProductSlug: line.ProductSlug,
			Quantity:    line.Quantity,
			Price:       line.UnitPrice,
			Size:        line.Size,
			Color:       line.Color,
		}

		err = tx.QueryRowContext(ctx, `
			INSERT INTO order_items (order_id, product_id, product_slug, quantity, price, size, color)
			VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''))
			RETURNING id
		`, item.OrderID, item.ProductID, item.ProductSlug, item.Quantity, item.Price, item.Size, item.Color).
			Scan(&item.ID)
		if err != nil {
			return nil, err
		}
		order.Items = append(order.Items, item)

		// Conditional decrement: refuse to oversell rather than drive
		// stock negative under concurrent checkouts.
		result, err := tx.ExecContext(ctx, `
			UPDATE products SET stock = stock - $2
			WHERE id = $1 AND stock >= $2
		`, line.ProductID, line.Quantity)
		if err != nil {
			return nil, err
		}

		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return nil, err
		}
		if rowsAffected == 0 {
			return nil, fmt.Errorf("%w: %s", ErrStockExhausted, line.ProductSlug)
		}
	}

	// Full cart clear for the purchaser, not just the purchased lines.
	if _, err := tx.ExecContext(ctx, `DELETE FROM cart_items WHERE user_id = $1`, in.UserID); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return order, nil
}

func (r *Repository) GetByNumber(ctx context.Context, orderNumber string, userID int64) (*domain.Order, error) {
	order, err := r.scanOrder(r.db.QueryRowContext(ctx, `
		SELECT id, order_number, payment_intent_id, user_id, address_id,
		       total_amount, payment_status, payment_method, status, created_at
		FROM orders
		WHERE order_number = $1 AND user_id = $2
	`, orderNumber, userID))
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, nil
	}

	if err := r.loadItems(ctx, order); err != nil {
		return nil, err
	}

	return order, nil
}

func (r *Repository) GetByIntentID(ctx context.Context, intentID string) (*domain.Order, error) {
	order, err := r.scanOrder(r.db.QueryRowContext(ctx, `
		SELECT id, order_number, payment_intent_id, user_id, address_id,
		       total_amount, payment_status, payment_method, status, created_at
		FROM orders
		WHERE payment_intent_id = $1
	`, intentID))
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, nil
	}

	if err := r.loadItems(ctx, order); err != nil {
		return nil, err
	}

	return order, nil
}

func (r *Repository) ListForUser(ctx context.Context, userID int64) ([]domain.Order, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, order_number, payment_intent_id, user_id, address_id,
		       total_amount, payment_status, payment_method, status, created_at
		FROM orders
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	orderMap := make(map[int64]*domain.Order)
	var orderIDs []int64

	for rows.Next() {
		var order domain.Order
		if err := rows.Scan(&order.ID, &order.OrderNumber, &order.PaymentIntentID, &order.UserID,
			&order.AddressID, &order.TotalAmount, &order.PaymentStatus, &order.PaymentMethod,
			&order.Status, &order.CreatedAt); err != nil {
			return nil, err
		}
		order.Items = []domain.OrderItem{}
		orderMap[order.ID] = &order
		orderIDs = append(orderIDs, order.ID)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(orderIDs) == 0 {
		return []domain.Order{}, nil
	}

	itemRows, err := r.db.QueryContext(ctx, `
		SELECT id, order_id, product_id, product_slug, quantity, price, size, COALESCE(color, '')
		FROM order_items
		WHERE order_id = ANY($1)
	`, pq.Array(orderIDs))
	if err != nil {
		return nil, err
	}
	defer func() { _ = itemRows.Close() }()

	for itemRows.Next() {
		var item domain.OrderItem
		if err := itemRows.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.ProductSlug,
			&item.Quantity, &item.Price, &item.Size, &item.Color); err != nil {
			return nil, err
		}
		order := orderMap[item.OrderID]
		order.Items = append(order.Items, item)
	}

	if err := itemRows.Err(); err != nil {
		return nil, err
	}

	orders := make([]domain.Order, 0, len(orderIDs))
	for _, id := range orderIDs {
		orders = append(orders, *orderMap[id])
	}

	return orders, nil
}

// UpdateStatus applies an admin-driven transition under the lifecycle rules.
func (r *Repository) UpdateStatus(ctx context.Context, orderNumber string, next domain.OrderStatus) (*domain.Order, error) {
	return r.transition(ctx, orderNumber, 0, next)
}

// Cancel is the owner's self-service cancellation.
func (r *Repository) Cancel(ctx context.Context, orderNumber string, userID int64) (*domain.Order, error) {
	return r.transition(ctx, orderNumber, userID, domain.OrderStatusCancelled)
}

func (r *Repository) transition(ctx context.Context, orderNumber string, userID int64, next domain.OrderStatus) (*domain.Order, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	query := `SELECT status FROM orders WHERE order_number = $1 FOR UPDATE`
	args := []any{orderNumber}
	if userID != 0 {
		query = `SELECT status FROM orders WHERE order_number = $1 AND user_id = $2 FOR UPDATE`
		args = append(args, userID)
	}

	var current domain.OrderStatus
	if err := tx.QueryRowContext(ctx, query, args...).Scan(&current); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}

	if !current.CanTransitionTo(next) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, next)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE orders SET status = $2 WHERE order_number = $1
	`, orderNumber, next); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	order, err := r.scanOrder(r.db.QueryRowContext(ctx, `
		SELECT id, order_number, payment_intent_id, user_id, address_id,
		       total_amount, payment_status, payment_method, status, created_at
		FROM orders
		WHERE order_number = $1
	`, orderNumber))
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}

	if err := r.loadItems(ctx, order); err != nil {
		return nil, err
	}

	return order, nil
}

func (r *Repository) scanOrder(row *sql.Row) (*domain.Order, error) {
	order := &domain.Order{}
	err := row.Scan(&order.ID, &order.OrderNumber, &order.PaymentIntentID, &order.UserID,
		&order.AddressID, &order.TotalAmount, &order.PaymentStatus, &order.PaymentMethod,
		&order.Status, &order.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return order, nil
}

func (r *Repository) loadItems(ctx context.Context, order *domain.Order) error {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, order_id, product_id, product_slug, quantity, price, size, COALESCE(color, '')
		FROM order_items
		WHERE order_id = $1
		ORDER BY id
	`, order.ID)
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.ProductSlug,
			&item.Quantity, &item.Price, &item.Size, &item.Color); err != nil {
			return err
		}
		order.Items = append(order.Items, item)
	}

	return rows.Err()
}

// newOrderNumber builds the time-based order number with a random suffix,
// e.g. ORD-1724800000000-3f9c1b2a7.
func newOrderNumber() string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:9]
	return fmt.Sprintf("ORD-%d-%s", time.Now().UnixMilli(), suffix)
}
