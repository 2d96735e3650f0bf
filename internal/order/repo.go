package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/MikeMC777/campus-market/internal/apperr"
	"github.com/MikeMC777/campus-market/internal/docstore"
	"github.com/MikeMC777/campus-market/internal/listing"
)

var (
	ErrNotFound = fmt.Errorf("order %w", apperr.ErrNotFound)
	// ErrStatusChanged means another writer moved the order first.
	ErrStatusChanged = fmt.Errorf("%w: order status changed concurrently", apperr.ErrInvalidTransition)
)

type Repository interface {
	Create(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, id string) (*Order, error)
	// UpdateStatus moves the order from one status to another, failing with
	// ErrStatusChanged if it is no longer in from.
	UpdateStatus(ctx context.Context, id string, from, to Status) error
	ListByCustomer(ctx context.Context, customerID string) ([]Order, error)
	ListBySeller(ctx context.Context, sellerID string) ([]Order, error)
	ListAll(ctx context.Context) ([]Order, error)
	// SubscribeCustomer and SubscribeSeller deliver the full list, newest
	// first, on every change until the subscription is closed.
	SubscribeCustomer(ctx context.Context, customerID string, fn func([]Order)) (*docstore.Subscription, error)
	SubscribeSeller(ctx context.Context, sellerID string, fn func([]Order)) (*docstore.Subscription, error)
}

type DocRepo struct {
	store  docstore.Store
	reader *listing.Reader
	log    zerolog.Logger
}

func NewDocRepo(reader *listing.Reader, log zerolog.Logger) *DocRepo {
	return &DocRepo{store: reader.Store(), reader: reader, log: log}
}

func mapErr(err error) error {
	if errors.Is(err, docstore.ErrNotFound) {
		return ErrNotFound
	}
	return err
}

func (r *DocRepo) Create(ctx context.Context, o *Order) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return r.store.Create(ctx, docstore.Orders, o.ID, o)
}

func (r *DocRepo) GetByID(ctx context.Context, id string) (*Order, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	o, err := docstore.GetAs[Order](ctx, r.store, docstore.Orders, id)
	return o, mapErr(err)
}

func (r *DocRepo) UpdateStatus(ctx context.Context, id string, from, to Status) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err := r.store.UpdateIf(ctx, docstore.Orders, id, "status", string(from), map[string]any{
		"status":    string(to),
		"updatedAt": time.Now().UTC(),
	})
	if errors.Is(err, docstore.ErrConditionFailed) {
		return ErrStatusChanged
	}
	return mapErr(err)
}

func (r *DocRepo) ListByCustomer(ctx context.Context, customerID string) ([]Order, error) {
	q := docstore.NewQuery().Where("customerId", docstore.Eq, customerID)
	return listing.Newest[Order](ctx, r.reader, docstore.Orders, q, "createdAt")
}

func (r *DocRepo) ListBySeller(ctx context.Context, sellerID string) ([]Order, error) {
	q := docstore.NewQuery().Where("sellerId", docstore.Eq, sellerID)
	return listing.Newest[Order](ctx, r.reader, docstore.Orders, q, "createdAt")
}

func (r *DocRepo) ListAll(ctx context.Context) ([]Order, error) {
	return listing.Newest[Order](ctx, r.reader, docstore.Orders, docstore.NewQuery(), "createdAt")
}

func (r *DocRepo) SubscribeCustomer(ctx context.Context, customerID string, fn func([]Order)) (*docstore.Subscription, error) {
	return r.subscribe(ctx, docstore.NewQuery().Where("customerId", docstore.Eq, customerID), fn)
}

func (r *DocRepo) SubscribeSeller(ctx context.Context, sellerID string, fn func([]Order)) (*docstore.Subscription, error) {
	return r.subscribe(ctx, docstore.NewQuery().Where("sellerId", docstore.Eq, sellerID), fn)
}

// subscribe sorts every snapshot client-side so the feed works without a
// composite index on any backend.
func (r *DocRepo) subscribe(ctx context.Context, q docstore.Query, fn func([]Order)) (*docstore.Subscription, error) {
	return r.store.Subscribe(ctx, docstore.Orders, q.Unsorted(), func(docs []docstore.Document) {
		orders, err := docstore.DecodeAll[Order](docs)
		if err != nil {
			r.log.Warn().Err(err).Msg("dropping undecodable order snapshot")
			return
		}
		listing.Sort(orders, true)
		fn(orders)
	})
}
