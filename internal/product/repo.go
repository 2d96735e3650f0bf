// Package product provides the product listings: the repository over the
// document store, image handling and the seller/admin workflows.
package product

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MikeMC777/campus-market/internal/apperr"
	"github.com/MikeMC777/campus-market/internal/docstore"
	"github.com/MikeMC777/campus-market/internal/listing"
)

var (
	ErrNotFound   = fmt.Errorf("product %w", apperr.ErrNotFound)
	ErrOutOfStock = fmt.Errorf("product %w", apperr.ErrInsufficientStock)
)

type Repository interface {
	Create(ctx context.Context, p *Product) error
	GetByID(ctx context.Context, id string) (*Product, error)
	Update(ctx context.Context, id string, fields map[string]any) error
	// AdjustStock atomically adds delta to the stock counter.
	AdjustStock(ctx context.Context, id string, delta int) error
	// TakeStock subtracts qty only if at least qty is in stock, failing
	// with ErrOutOfStock otherwise.
	TakeStock(ctx context.Context, id string, qty int) error
	Delete(ctx context.Context, id string) error
	ListApproved(ctx context.Context, category Category) ([]Product, error)
	ListBySeller(ctx context.Context, sellerID string) ([]Product, error)
	ListPending(ctx context.Context) ([]Product, error)
}

type DocRepo struct {
	store  docstore.Store
	reader *listing.Reader
}

func NewDocRepo(reader *listing.Reader) *DocRepo {
	return &DocRepo{store: reader.Store(), reader: reader}
}

func mapErr(err error) error {
	if errors.Is(err, docstore.ErrNotFound) {
		return ErrNotFound
	}
	return err
}

func (r *DocRepo) Create(ctx context.Context, p *Product) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return r.store.Create(ctx, docstore.Products, p.ID, p)
}

func (r *DocRepo) GetByID(ctx context.Context, id string) (*Product, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	p, err := docstore.GetAs[Product](ctx, r.store, docstore.Products, id)
	return p, mapErr(err)
}

func (r *DocRepo) Update(ctx context.Context, id string, fields map[string]any) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	fields["updatedAt"] = time.Now().UTC()
	return mapErr(r.store.Update(ctx, docstore.Products, id, fields))
}

func (r *DocRepo) AdjustStock(ctx context.Context, id string, delta int) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return mapErr(r.store.Increment(ctx, docstore.Products, id, "stock", int64(delta)))
}

func (r *DocRepo) TakeStock(ctx context.Context, id string, qty int) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err := r.store.IncrementIfAtLeast(ctx, docstore.Products, id, "stock", -int64(qty), int64(qty))
	if errors.Is(err, docstore.ErrConditionFailed) {
		return ErrOutOfStock
	}
	return mapErr(err)
}

func (r *DocRepo) Delete(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return mapErr(r.store.Delete(ctx, docstore.Products, id))
}

func (r *DocRepo) ListApproved(ctx context.Context, category Category) ([]Product, error) {
	q := docstore.NewQuery().Where("approved", docstore.Eq, true)
	if category != "" {
		q = q.Where("category", docstore.Eq, string(category))
	}
	return listing.Newest[Product](ctx, r.reader, docstore.Products, q, "createdAt")
}

func (r *DocRepo) ListBySeller(ctx context.Context, sellerID string) ([]Product, error) {
	q := docstore.NewQuery().Where("sellerId", docstore.Eq, sellerID)
	return listing.Newest[Product](ctx, r.reader, docstore.Products, q, "createdAt")
}

func (r *DocRepo) ListPending(ctx context.Context) ([]Product, error) {
	q := docstore.NewQuery().Where("approved", docstore.Eq, false)
	return listing.Newest[Product](ctx, r.reader, docstore.Products, q, "createdAt")
}
