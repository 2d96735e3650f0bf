package seller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MikeMC777/campus-market/internal/apperr"
	"github.com/MikeMC777/campus-market/internal/docstore"
	"github.com/MikeMC777/campus-market/internal/listing"
)

var ErrNotFound = fmt.Errorf("seller application %w", apperr.ErrNotFound)

type Repository interface {
	Create(ctx context.Context, a *Application) error
	GetByID(ctx context.Context, id string) (*Application, error)
	Update(ctx context.Context, id string, fields map[string]any) error
	ListByUser(ctx context.Context, userID string) ([]Application, error)
	ListByStatus(ctx context.Context, status Status) ([]Application, error)
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

func (r *DocRepo) Create(ctx context.Context, a *Application) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return r.store.Create(ctx, docstore.SellerApplications, a.ID, a)
}

func (r *DocRepo) GetByID(ctx context.Context, id string) (*Application, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	a, err := docstore.GetAs[Application](ctx, r.store, docstore.SellerApplications, id)
	return a, mapErr(err)
}

func (r *DocRepo) Update(ctx context.Context, id string, fields map[string]any) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	fields["updatedAt"] = time.Now().UTC()
	return mapErr(r.store.Update(ctx, docstore.SellerApplications, id, fields))
}

func (r *DocRepo) ListByUser(ctx context.Context, userID string) ([]Application, error) {
	q := docstore.NewQuery().Where("userId", docstore.Eq, userID)
	return listing.Newest[Application](ctx, r.reader, docstore.SellerApplications, q, "createdAt")
}

func (r *DocRepo) ListByStatus(ctx context.Context, status Status) ([]Application, error) {
	q := docstore.NewQuery().Where("status", docstore.Eq, string(status))
	return listing.Newest[Application](ctx, r.reader, docstore.SellerApplications, q, "createdAt")
}
