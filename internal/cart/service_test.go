package cart

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/hanbokmall/checkout/internal/domain"
)

type fakeLineStore struct {
	lines  []domain.CartLine
	nextID int64
}

func (f *fakeLineStore) ListForUser(_ context.Context, userID int64) ([]domain.CartLine, error) {
	var out []domain.CartLine
	for _, l := range f.lines {
		if l.UserID == userID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (f *fakeLineStore) Upsert(_ context.Context, userID int64, product *domain.Product, quantity int, size, color string) (*domain.CartLine, error) {
	for i := range f.lines {
		l := &f.lines[i]
		if l.UserID == userID && l.ProductID == product.ID && l.Size == size {
			l.Quantity += quantity
			out := *l
			return &out, nil
		}
	}
	f.nextID++
	line := domain.CartLine{
		ID:          f.nextID,
		UserID:      userID,
		ProductID:   product.ID,
		ProductSlug: product.Slug,
		Quantity:    quantity,
		Size:        size,
		Color:       color,
		ProductName: product.Name,
		UnitPrice:   product.Price,
	}
	f.lines = append(f.lines, line)
	return &line, nil
}

func (f *fakeLineStore) RemoveProduct(_ context.Context, userID, productID int64) error {
	kept := f.lines[:0]
	for _, l := range f.lines {
		if l.UserID != userID || l.ProductID != productID {
			kept = append(kept, l)
		}
	}
	f.lines = kept
	return nil
}

func (f *fakeLineStore) UpdateQuantity(_ context.Context, lineID, userID int64, quantity int) error {
	for i := range f.lines {
		if f.lines[i].ID == lineID && f.lines[i].UserID == userID {
			f.lines[i].Quantity = quantity
			return nil
		}
	}
	return ErrLineNotFound
}

func (f *fakeLineStore) ReplaceForUser(_ context.Context, userID int64, lines []domain.CartLine) error {
	kept := f.lines[:0]
	for _, l := range f.lines {
		if l.UserID != userID {
			kept = append(kept, l)
		}
	}
	f.lines = kept
	for _, l := range lines {
		f.nextID++
		l.ID = f.nextID
		f.lines = append(f.lines, l)
	}
	return nil
}

type fakeSnapshotStore struct {
	snapshots map[string][]domain.CartLine
	cleared   []string
}

func newFakeSnapshotStore() *fakeSnapshotStore {
	return &fakeSnapshotStore{snapshots: make(map[string][]domain.CartLine)}
}

func (f *fakeSnapshotStore) Load(_ context.Context, token string) ([]domain.CartLine, error) {
	lines := f.snapshots[token]
	out := make([]domain.CartLine, len(lines))
	copy(out, lines)
	return out, nil
}

func (f *fakeSnapshotStore) Save(_ context.Context, token string, lines []domain.CartLine) error {
	f.snapshots[token] = lines
	return nil
}

func (f *fakeSnapshotStore) Clear(_ context.Context, token string) error {
	delete(f.snapshots, token)
	f.cleared = append(f.cleared, token)
	return nil
}

type fakeCatalog struct {
	products map[string]domain.Product
}

func (f *fakeCatalog) FindBySlug(_ context.Context, slug string) (*domain.Product, error) {
	p, ok := f.products[slug]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (f *fakeCatalog) FindBySlugs(_ context.Context, slugs []string) ([]domain.Product, error) {
	var out []domain.Product
	for _, slug := range slugs {
		if p, ok := f.products[slug]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func newTestService() (*Service, *fakeLineStore, *fakeSnapshotStore, *fakeCatalog) {
	lines := &fakeLineStore{}
	snapshots := newFakeSnapshotStore()
	catalog := &fakeCatalog{products: map[string]domain.Product{
		"silk-hanbok-red": {ID: 1, Slug: "silk-hanbok-red", Name: "Silk Hanbok Red", Price: 12000, Stock: 10},
		"cotton-jeogori":  {ID: 2, Slug: "cotton-jeogori", Name: "Cotton Jeogori", Price: 4500, Stock: 5},
		"norigae-pendant": {ID: 3, Slug: "norigae-pendant", Name: "Norigae Pendant", Price: 1500, Stock: 50},
	}}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(lines, snapshots, catalog, logger), lines, snapshots, catalog
}

func TestServiceAdd(t *testing.T) {
	ctx := context.Background()
	user := Identity{UserID: 7, Authenticated: true}
	guest := Identity{CartToken: "tok-1"}

	t.Run("rejects quantity below one", func(t *testing.T) {
		svc, _, _, _ := newTestService()
		if _, err := svc.Add(ctx, user, AddInput{ProductSlug: "silk-hanbok-red", Quantity: 0}); !errors.Is(err, ErrInvalidQuantity) {
			t.Fatalf("expected ErrInvalidQuantity, got %v", err)
		}
	})

	t.Run("defaults size to M", func(t *testing.T) {
		svc, _, _, _ := newTestService()
		line, err := svc.Add(ctx, user, AddInput{ProductSlug: "silk-hanbok-red", Quantity: 1})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if line.Size != domain.DefaultSize {
			t.Errorf("expected size %q, got %q", domain.DefaultSize, line.Size)
		}
	})

	t.Run("same product and size increments the existing line", func(t *testing.T) {
		svc, lines, _, _ := newTestService()
		if _, err := svc.Add(ctx, user, AddInput{ProductSlug: "silk-hanbok-red", Quantity: 2, Size: "L"}); err != nil {
			t.Fatalf("first add failed: %v", err)
		}
		line, err := svc.Add(ctx, user, AddInput{ProductSlug: "silk-hanbok-red", Quantity: 3, Size: "L"})
		if err != nil {
			t.Fatalf("second add failed: %v", err)
		}
		if line.Quantity != 5 {
			t.Errorf("expected quantity 5, got %d", line.Quantity)
		}
		if len(lines.lines) != 1 {
			t.Errorf("expected a single line, got %d", len(lines.lines))
		}
	})

	t.Run("different size creates a separate line", func(t *testing.T) {
		svc, lines, _, _ := newTestService()
		if _, err := svc.Add(ctx, user, AddInput{ProductSlug: "silk-hanbok-red", Quantity: 1, Size: "M"}); err != nil {
			t.Fatalf("add failed: %v", err)
		}
		if _, err := svc.Add(ctx, user, AddInput{ProductSlug: "silk-hanbok-red", Quantity: 1, Size: "L"}); err != nil {
			t.Fatalf("add failed: %v", err)
		}
		if len(lines.lines) != 2 {
			t.Errorf("expected two lines, got %d", len(lines.lines))
		}
	})

	t.Run("unknown slug fails for authenticated users", func(t *testing.T) {
		svc, _, _, _ := newTestService()
		if _, err := svc.Add(ctx, user, AddInput{ProductSlug: "no-such-product", Quantity: 1}); !errors.Is(err, ErrProductNotFound) {
			t.Fatalf("expected ErrProductNotFound, got %v", err)
		}
	})

	t.Run("guest adds accumulate in the snapshot", func(t *testing.T) {
		svc, _, snapshots, _ := newTestService()
		if _, err := svc.Add(ctx, guest, AddInput{ProductSlug: "silk-hanbok-red", Quantity: 1}); err != nil {
			t.Fatalf("add failed: %v", err)
		}
		line, err := svc.Add(ctx, guest, AddInput{ProductSlug: "silk-hanbok-red", Quantity: 2})
		if err != nil {
			t.Fatalf("add failed: %v", err)
		}
		if line.Quantity != 3 {
			t.Errorf("expected quantity 3, got %d", line.Quantity)
		}
		if got := len(snapshots.snapshots["tok-1"]); got != 1 {
			t.Errorf("expected one snapshot line, got %d", got)
		}
	})
}

func TestServiceRemoveProduct(t *testing.T) {
	ctx := context.Background()
	user := Identity{UserID: 7, Authenticated: true}

	t.Run("removes every size of the product", func(t *testing.T) {
		svc, lines, _, _ := newTestService()
		for _, size := range []string{"S", "M", "L"} {
			if _, err := svc.Add(ctx, user, AddInput{ProductSlug: "silk-hanbok-red", Quantity: 1, Size: size}); err != nil {
				t.Fatalf("add failed: %v", err)
			}
		}
		if _, err := svc.Add(ctx, user, AddInput{ProductSlug: "cotton-jeogori", Quantity: 1}); err != nil {
			t.Fatalf("add failed: %v", err)
		}

		if err := svc.RemoveProduct(ctx, user, "silk-hanbok-red"); err != nil {
			t.Fatalf("remove failed: %v", err)
		}

		if len(lines.lines) != 1 {
			t.Fatalf("expected one remaining line, got %d", len(lines.lines))
		}
		if lines.lines[0].ProductSlug != "cotton-jeogori" {
			t.Errorf("wrong line survived: %s", lines.lines[0].ProductSlug)
		}
	})

	t.Run("guest removal filters the snapshot", func(t *testing.T) {
		svc, _, snapshots, _ := newTestService()
		guest := Identity{CartToken: "tok-2"}
		if _, err := svc.Add(ctx, guest, AddInput{ProductSlug: "silk-hanbok-red", Quantity: 1, Size: "S"}); err != nil {
			t.Fatalf("add failed: %v", err)
		}
		if _, err := svc.Add(ctx, guest, AddInput{ProductSlug: "silk-hanbok-red", Quantity: 1, Size: "L"}); err != nil {
			t.Fatalf("add failed: %v", err)
		}
		if _, err := svc.Add(ctx, guest, AddInput{ProductSlug: "norigae-pendant", Quantity: 1}); err != nil {
			t.Fatalf("add failed: %v", err)
		}

		if err := svc.RemoveProduct(ctx, guest, "silk-hanbok-red"); err != nil {
			t.Fatalf("remove failed: %v", err)
		}

		remaining := snapshots.snapshots["tok-2"]
		if len(remaining) != 1 || remaining[0].ProductSlug != "norigae-pendant" {
			t.Errorf("unexpected snapshot after removal: %+v", remaining)
		}
	})
}

func TestServiceUpdateQuantity(t *testing.T) {
	ctx := context.Background()
	user := Identity{UserID: 7, Authenticated: true}

	t.Run("rewrites one exact line", func(t *testing.T) {
		svc, lines, _, _ := newTestService()
		line, err := svc.Add(ctx, user, AddInput{ProductSlug: "silk-hanbok-red", Quantity: 1})
		if err != nil {
			t.Fatalf("add failed: %v", err)
		}

		if err := svc.UpdateQuantity(ctx, user, line.ID, 4); err != nil {
			t.Fatalf("update failed: %v", err)
		}
		if lines.lines[0].Quantity != 4 {
			t.Errorf("expected quantity 4, got %d", lines.lines[0].Quantity)
		}
	})

	t.Run("unknown line id", func(t *testing.T) {
		svc, _, _, _ := newTestService()
		if err := svc.UpdateQuantity(ctx, user, 999, 2); !errors.Is(err, ErrLineNotFound) {
			t.Fatalf("expected ErrLineNotFound, got %v", err)
		}
	})
}

func TestServiceVersion(t *testing.T) {
	ctx := context.Background()
	user := Identity{UserID: 7, Authenticated: true}
	svc, _, _, _ := newTestService()

	before := svc.Version()
	if _, err := svc.Add(ctx, user, AddInput{ProductSlug: "silk-hanbok-red", Quantity: 1}); err != nil {
		t.Fatalf("add failed: %v", err)
	}
	if svc.Version() != before+1 {
		t.Errorf("expected version to tick on add")
	}

	if _, err := svc.Refresh(ctx, user); err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	if svc.Version() != before+2 {
		t.Errorf("expected version to tick on refresh")
	}

	// Plain reads must not tick.
	if _, err := svc.Items(ctx, user); err != nil {
		t.Fatalf("items failed: %v", err)
	}
	if svc.Version() != before+2 {
		t.Errorf("expected version to stay put on read")
	}
}

func TestServiceMergeGuestCart(t *testing.T) {
	ctx := context.Background()

	t.Run("replaces server cart and clears snapshot", func(t *testing.T) {
		svc, _, snapshots, _ := newTestService()
		user := Identity{UserID: 9, Authenticated: true}

		// Pre-existing server line that must be replaced, not merged into.
		if _, err := svc.Add(ctx, user, AddInput{ProductSlug: "cotton-jeogori", Quantity: 5}); err != nil {
			t.Fatalf("add failed: %v", err)
		}

		guestLines := []domain.CartLine{
			{ProductSlug: "silk-hanbok-red", Quantity: 2, Size: "L"},
			{ProductSlug: "norigae-pendant"}, // zero quantity, blank size
		}
		if err := svc.MergeGuestCart(ctx, 9, "tok-9", guestLines); err != nil {
			t.Fatalf("merge failed: %v", err)
		}

		merged, err := svc.Items(ctx, user)
		if err != nil {
			t.Fatalf("items failed: %v", err)
		}
		if len(merged) != 2 {
			t.Fatalf("expected 2 lines after merge, got %d", len(merged))
		}
		for _, l := range merged {
			if l.ProductSlug == "cotton-jeogori" {
				t.Error("expected pre-existing server line to be replaced")
			}
			if l.ProductSlug == "norigae-pendant" {
				if l.Quantity != 1 || l.Size != domain.DefaultSize {
					t.Errorf("expected defaults applied, got qty=%d size=%q", l.Quantity, l.Size)
				}
			}
		}
		if len(snapshots.cleared) != 1 || snapshots.cleared[0] != "tok-9" {
			t.Errorf("expected guest snapshot to be cleared, got %v", snapshots.cleared)
		}
	})

	t.Run("drops unresolvable slugs", func(t *testing.T) {
		svc, _, _, _ := newTestService()
		user := Identity{UserID: 10, Authenticated: true}

		guestLines := []domain.CartLine{
			{ProductSlug: "silk-hanbok-red", Quantity: 1},
			{ProductSlug: "discontinued-item", Quantity: 3},
		}
		if err := svc.MergeGuestCart(ctx, 10, "tok-10", guestLines); err != nil {
			t.Fatalf("merge failed: %v", err)
		}

		merged, err := svc.Items(ctx, user)
		if err != nil {
			t.Fatalf("items failed: %v", err)
		}
		if len(merged) != 1 || merged[0].ProductSlug != "silk-hanbok-red" {
			t.Errorf("expected only the resolvable line, got %+v", merged)
		}
	})

	t.Run("falls back to the stored snapshot when the payload is empty", func(t *testing.T) {
		svc, _, snapshots, _ := newTestService()
		user := Identity{UserID: 11, Authenticated: true}

		snapshots.snapshots["tok-11"] = []domain.CartLine{
			{ProductSlug: "norigae-pendant", Quantity: 2},
		}
		if err := svc.MergeGuestCart(ctx, 11, "tok-11", nil); err != nil {
			t.Fatalf("merge failed: %v", err)
		}

		merged, err := svc.Items(ctx, user)
		if err != nil {
			t.Fatalf("items failed: %v", err)
		}
		if len(merged) != 1 || merged[0].ProductSlug != "norigae-pendant" || merged[0].Quantity != 2 {
			t.Errorf("expected snapshot line to be merged, got %+v", merged)
		}
	})
}
