package cart

import (
	"context"
	"database/sql"
	"time"

	"github.com/hanbokmall/checkout/internal/domain"
)

// Repository owns the server-side cart rows of authenticated users.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) ListForUser(ctx context.Context, userID int64) ([]domain.CartLine, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT c.id, c.user_id, c.product_id, c.product_slug, c.quantity, c.size,
		       COALESCE(c.color, ''), c.added_at,
		       p.name, p.price, COALESCE(p.main_image, '')
		FROM cart_items c
		JOIN products p ON p.id = c.product_id
		WHERE c.user_id = $1
		ORDER BY c.added_at, c.id
	`, userID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var lines []domain.CartLine
	for rows.Next() {
		var l domain.CartLine
		if err := rows.Scan(&l.ID, &l.UserID, &l.ProductID, &l.ProductSlug, &l.Quantity, &l.Size,
			&l.Color, &l.AddedAt, &l.ProductName, &l.UnitPrice, &l.MainImage); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return lines, nil
}

// Upsert inserts a line or increments the quantity of the existing
// (user, product, size) line. The unique index makes concurrent adds from the
// same user collapse into one row instead of racing read-modify-write.
func (r *Repository) Upsert(ctx context.Context, userID int64, product *domain.Product, quantity int, size, color string) (*domain.CartLine, error) {
	line := &domain.CartLine{
		UserID:      userID,
		ProductID:   product.ID,
		ProductSlug: product.Slug,
		Size:        size,
		Color:       color,
		ProductName: product.Name,
		UnitPrice:   product.Price,
		MainImage:   product.MainImage,
	}

	err := r.db.QueryRowContext(ctx, `
		INSERT INTO cart_items (user_id, product_id, product_slug, quantity, size, color, added_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7)
		ON CONFLICT (user_id, product_id, size)
		DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity
		RETURNING id, quantity, added_at
	`, userID, product.ID, product.Slug, quantity, size, color, time.Now().UTC()).
		Scan(&line.ID, &line.Quantity, &line.AddedAt)
	if err != nil {
		return nil, err
	}

	return line, nil
}

// RemoveProduct deletes every line of the product for the user, across all
// sizes and colors. Removal is coarse-grained by product.
func (r *Repository) RemoveProduct(ctx context.Context, userID, productID int64) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM cart_items
		WHERE user_id = $1 AND product_id = $2
	`, userID, productID)
	return err
}

// UpdateQuantity sets the quantity of one exact row, scoped to its owner.
func (r *Repository) UpdateQuantity(ctx context.Context, lineID, userID int64, quantity int) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE cart_items SET quantity = $3
		WHERE id = $1 AND user_id = $2
	`, lineID, userID, quantity)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return ErrLineNotFound
	}

	return nil
}

// ReplaceForUser swaps the user's entire cart for the supplied lines in one
// transaction. This is the login-time reconciliation write.
func (r *Repository) ReplaceForUser(ctx context.Context, userID int64, lines []domain.CartLine) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM cart_items WHERE user_id = $1`, userID); err != nil {
		return err
	}

	for _, l := range lines {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO cart_items (user_id, product_id, product_slug, quantity, size, color, added_at)
			VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7)
		`, userID, l.ProductID, l.ProductSlug, l.Quantity, l.Size, l.Color, time.Now().UTC())
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}
