package cart

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/hanbokmall/checkout/internal/domain"
)

var (
	ErrProductNotFound = errors.New("product not found")
	ErrInvalidQuantity = errors.New("quantity must be at least 1")
	ErrLineNotFound    = errors.New("cart line not found")
)

// Identity selects which of the two cart storages an operation targets.
// Every operation touches exactly one storage; the only point where both meet
// is the one-shot login merge.
type Identity struct {
	UserID        int64
	Authenticated bool
	CartToken     string
}

// LineStore is the server-side cart of authenticated users.
type LineStore interface {
	ListForUser(ctx context.Context, userID int64) ([]domain.CartLine, error)
	Upsert(ctx context.Context, userID int64, product *domain.Product, quantity int, size, color string) (*domain.CartLine, error)
	RemoveProduct(ctx context.Context, userID, productID int64) error
	UpdateQuantity(ctx context.Context, lineID, userID int64, quantity int) error
	ReplaceForUser(ctx context.Context, userID int64, lines []domain.CartLine) error
}

// SnapshotStore is the guest cart shadow.
type SnapshotStore interface {
	Load(ctx context.Context, token string) ([]domain.CartLine, error)
	Save(ctx context.Context, token string, lines []domain.CartLine) error
	Clear(ctx context.Context, token string) error
}

// Catalog resolves slugs to purchasable products.
type Catalog interface {
	FindBySlug(ctx context.Context, slug string) (*domain.Product, error)
	FindBySlugs(ctx context.Context, slugs []string) ([]domain.Product, error)
}

// Service presents one cart abstraction over both storages.
type Service struct {
	lines    LineStore
	snapshot SnapshotStore
	catalog  Catalog
	logger   *slog.Logger

	// version ticks on every mutation or refresh; the presentation layer
	// polls it for the badge counter.
	version atomic.Uint64
}

func NewService(lines LineStore, snapshot SnapshotStore, catalog Catalog, logger *slog.Logger) *Service {
	return &Service{
		lines:    lines,
		snapshot: snapshot,
		catalog:  catalog,
		logger:   logger,
	}
}

// Version is the observable mutation counter for UI badges.
func (s *Service) Version() uint64 {
	return s.version.Load()
}

type AddInput struct {
	ProductSlug string
	Quantity    int
	Size        string
	Color       string
}

// Add upserts a line for the caller's storage: find the (owner, product,
// size) line and increment, or create it. Returns the resulting line.
func (s *Service) Add(ctx context.Context, ident Identity, in AddInput) (*domain.CartLine, error) {
	if in.Quantity < 1 {
		return nil, ErrInvalidQuantity
	}
	if in.Size == "" {
		in.Size = domain.DefaultSize
	}

	defer s.version.Add(1)

	if ident.Authenticated {
		product, err := s.catalog.FindBySlug(ctx, in.ProductSlug)
		if err != nil {
			return nil, fmt.Errorf("resolve product: %w", err)
		}
		if product == nil {
			return nil, ErrProductNotFound
		}
		return s.lines.Upsert(ctx, ident.UserID, product, in.Quantity, in.Size, in.Color)
	}

	// Guest path: rewrite the snapshot, no catalog round-trip.
	snapshot, err := s.snapshot.Load(ctx, ident.CartToken)
	if err != nil {
		return nil, err
	}

	var line *domain.CartLine
	for i := range snapshot {
		if snapshot[i].ProductSlug == in.ProductSlug && snapshot[i].Size == in.Size {
			snapshot[i].Quantity += in.Quantity
			line = &snapshot[i]
			break
		}
	}
	if line == nil {
		snapshot = append(snapshot, domain.CartLine{
			ID:          time.Now().UnixMilli(),
			ProductSlug: in.ProductSlug,
			Quantity:    in.Quantity,
			Size:        in.Size,
			Color:       in.Color,
			AddedAt:     time.Now().UTC(),
		})
		line = &snapshot[len(snapshot)-1]
	}

	if err := s.snapshot.Save(ctx, ident.CartToken, snapshot); err != nil {
		return nil, err
	}

	result := *line
	return &result, nil
}

// RemoveProduct drops every line of the product, whatever its size or color.
func (s *Service) RemoveProduct(ctx context.Context, ident Identity, slug string) error {
	defer s.version.Add(1)

	if ident.Authenticated {
		product, err := s.catalog.FindBySlug(ctx, slug)
		if err != nil {
			return fmt.Errorf("resolve product: %w", err)
		}
		if product == nil {
			return ErrProductNotFound
		}
		return s.lines.RemoveProduct(ctx, ident.UserID, product.ID)
	}

	snapshot, err := s.snapshot.Load(ctx, ident.CartToken)
	if err != nil {
		return err
	}

	kept := snapshot[:0]
	for _, l := range snapshot {
		if l.ProductSlug != slug {
			kept = append(kept, l)
		}
	}

	return s.snapshot.Save(ctx, ident.CartToken, kept)
}

// UpdateQuantity rewrites one exact line, identified by its row id.
func (s *Service) UpdateQuantity(ctx context.Context, ident Identity, lineID int64, quantity int) error {
	if quantity < 1 {
		return ErrInvalidQuantity
	}

	defer s.version.Add(1)

	if ident.Authenticated {
		return s.lines.UpdateQuantity(ctx, lineID, ident.UserID, quantity)
	}

	snapshot, err := s.snapshot.Load(ctx, ident.CartToken)
	if err != nil {
		return err
	}

	found := false
	for i := range snapshot {
		if snapshot[i].ID == lineID {
			snapshot[i].Quantity = quantity
			found = true
			break
		}
	}
	if !found {
		return ErrLineNotFound
	}

	return s.snapshot.Save(ctx, ident.CartToken, snapshot)
}

// Items re-reads the caller's storage. Safe to call redundantly.
func (s *Service) Items(ctx context.Context, ident Identity) ([]domain.CartLine, error) {
	if ident.Authenticated {
		lines, err := s.lines.ListForUser(ctx, ident.UserID)
		if err != nil {
			return nil, err
		}
		if lines == nil {
			lines = []domain.CartLine{}
		}
		return lines, nil
	}
	return s.snapshot.Load(ctx, ident.CartToken)
}

// Refresh is Items plus a version tick, mirroring the cart-view refresh
// signal the storefront observes.
func (s *Service) Refresh(ctx context.Context, ident Identity) ([]domain.CartLine, error) {
	defer s.version.Add(1)
	return s.Items(ctx, ident)
}

// MergeGuestCart is the one-shot reconciliation run when a guest
// authenticates. The guest snapshot is resolved against the catalog
// (unresolvable slugs are dropped) and REPLACES the user's existing server
// lines; the snapshot is cleared afterwards. Replace-over-merge is a product
// decision: the cart the shopper just looked at wins.
func (s *Service) MergeGuestCart(ctx context.Context, userID int64, cartToken string, guestLines []domain.CartLine) error {
	if len(guestLines) == 0 {
		guestLines, _ = s.snapshot.Load(ctx, cartToken)
	}

	slugs := make([]string, 0, len(guestLines))
	for _, l := range guestLines {
		if l.ProductSlug != "" {
			slugs = append(slugs, l.ProductSlug)
		}
	}

	products, err := s.catalog.FindBySlugs(ctx, slugs)
	if err != nil {
		return fmt.Errorf("resolve guest cart: %w", err)
	}

	bySlug := make(map[string]domain.Product, len(products))
	for _, p := range products {
		bySlug[p.Slug] = p
	}

	resolved := make([]domain.CartLine, 0, len(guestLines))
	for _, l := range guestLines {
		product, ok := bySlug[l.ProductSlug]
		if !ok {
			s.logger.Warn("dropping unresolvable guest cart line", "slug", l.ProductSlug)
			continue
		}

		quantity := l.Quantity
		if quantity < 1 {
			quantity = 1
		}
		size := l.Size
		if size == "" {
			size = domain.DefaultSize
		}

		resolved = append(resolved, domain.CartLine{
			UserID:      userID,
			ProductID:   product.ID,
			ProductSlug: product.Slug,
			Quantity:    quantity,
			Size:        size,
			Color:       l.Color,
		})
	}

	if err := s.lines.ReplaceForUser(ctx, userID, resolved); err != nil {
		return fmt.Errorf("replace server cart: %w", err)
	}

	// Snapshot clear failure must not undo the server write; the snapshot
	// will expire on its own.
	if cartToken != "" {
		if err := s.snapshot.Clear(ctx, cartToken); err != nil {
			s.logger.Error("failed to clear guest snapshot after merge", "error", err)
		}
	}

	s.version.Add(1)
	s.logger.Info("guest cart merged", "user_id", userID, "lines", len(resolved))
	return nil
}
