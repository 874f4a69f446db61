package catalog

import (
	"context"
	"database/sql"

	"github.com/lib/pq"

	"github.com/hanbokmall/checkout/internal/domain"
)

// Repository is the read-only catalog lookup the cart core depends on.
// Product CRUD lives in the admin service and is not part of this module.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) FindBySlug(ctx context.Context, slug string) (*domain.Product, error) {
	p := &domain.Product{}

	err := r.db.QueryRowContext(ctx, `
		SELECT id, slug, name, price, stock, COALESCE(main_image, '')
		FROM products
		WHERE slug = $1
	`, slug).Scan(&p.ID, &p.Slug, &p.Name, &p.Price, &p.Stock, &p.MainImage)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	return p, nil
}

// FindBySlugs resolves guest cart slugs in one round-trip. Slugs that no
// longer exist in the catalog are simply absent from the result.
func (r *Repository) FindBySlugs(ctx context.Context, slugs []string) ([]domain.Product, error) {
	if len(slugs) == 0 {
		return []domain.Product{}, nil
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, slug, name, price, stock, COALESCE(main_image, '')
		FROM products
		WHERE slug = ANY($1)
	`, pq.Array(slugs))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var products []domain.Product
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Slug, &p.Name, &p.Price, &p.Stock, &p.MainImage); err != nil {
			return nil, err
		}
		products = append(products, p)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return products, nil
}
