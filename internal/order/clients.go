package order

import (
	"context"

	"github.com/MikeMC777/campus-market/internal/cart"
	"github.com/MikeMC777/campus-market/internal/notify"
	"github.com/MikeMC777/campus-market/internal/product"
)

// Products is the part of the product catalogue checkout and inventory
// need. product.Repository satisfies it.
type Products interface {
	GetByID(ctx context.Context, id string) (*product.Product, error)
	// AdjustStock adds delta atomically.
	AdjustStock(ctx context.Context, id string, delta int) error
	// TakeStock subtracts qty unless fewer than qty are left.
	TakeStock(ctx context.Context, id string, qty int) error
}

// Notifier stores in-app notifications and publishes side-effect events.
// Both are best effort. notify.Service satisfies it.
type Notifier interface {
	Notify(ctx context.Context, n notify.Notification)
	Publish(ctx context.Context, typ, key string, payload any)
}

// Cart is the customer's cart as seen by checkout. *cart.Cart satisfies it.
type Cart interface {
	Owner() string
	Items() []cart.Item
	Remove(ctx context.Context, productID string) error
	Clear(ctx context.Context) error
}
