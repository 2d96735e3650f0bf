package main

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/MikeMC777/campus-market/internal/cart"
	"github.com/MikeMC777/campus-market/internal/chat"
	"github.com/MikeMC777/campus-market/internal/docstore"
	"github.com/MikeMC777/campus-market/internal/listing"
	"github.com/MikeMC777/campus-market/internal/logging"
	"github.com/MikeMC777/campus-market/internal/notify"
	"github.com/MikeMC777/campus-market/internal/order"
	"github.com/MikeMC777/campus-market/internal/product"
	"github.com/MikeMC777/campus-market/internal/realtime"
	"github.com/MikeMC777/campus-market/internal/seller"
	"github.com/MikeMC777/campus-market/internal/user"
)

// invalidator drops a cached user so the next lookup reads the store.
type invalidator interface {
	Invalidate(ctx context.Context, id string)
}

// deps are the backends picked by main (or by the tests).
type deps struct {
	store     docstore.Store
	carts     cart.Storage
	publisher notify.Publisher
	receipts  notify.ReceiptSender
	// lookup wraps the local user repo; nil uses the repo directly.
	lookup func(user.Lookup) user.Lookup

	surcharge   decimal.Decimal
	adminIDs    []string
	origins     []string
	chatTimeout time.Duration
	log         zerolog.Logger
}

type app struct {
	users         *user.Service
	sessions      *user.Sessions
	products      *product.Service
	carts         *cart.Registry
	orders        *order.Service
	sellers       *seller.Service
	chats         *chat.Service
	notifications *notify.Service
	streamer      *realtime.Streamer
	log           zerolog.Logger
}

func newApp(d deps) *app {
	log := d.log
	reader := listing.NewReader(d.store, logging.Component(log, "listing"))

	userRepo := user.NewDocRepo(reader)
	var lookup user.Lookup = userRepo
	if d.lookup != nil {
		lookup = d.lookup(userRepo)
	}
	users := user.NewService(userRepo, d.adminIDs, logging.Component(log, "user"))
	sessions := user.NewSessions(lookup)
	carts := cart.NewRegistry(d.carts, logging.Component(log, "cart"))

	// Sign-out drops role-scoped state; a role or active change re-reads
	// the user so the next request sees it.
	sessions.OnSignOut(func(ctx context.Context, id string) {
		carts.Evict(id)
		if inv, ok := lookup.(invalidator); ok {
			inv.Invalidate(ctx, id)
		}
	})
	users.OnChange(func(ctx context.Context, id string) {
		if inv, ok := lookup.(invalidator); ok {
			inv.Invalidate(ctx, id)
		}
		sessions.Refresh(ctx, id)
	})

	notifications := notify.NewService(reader, d.publisher, logging.Component(log, "notify"))
	productRepo := product.NewDocRepo(reader)

	receipts := d.receipts
	if receipts == nil {
		receipts = notify.NewEventReceipts(d.publisher)
	}
	var streamOpts []realtime.Option
	if len(d.origins) > 0 {
		streamOpts = append(streamOpts, realtime.WithOrigins(d.origins...))
	}
	surcharge := d.surcharge
	if surcharge.IsZero() {
		surcharge = order.DefaultSurcharge
	}

	return &app{
		users:    users,
		sessions: sessions,
		products: product.NewService(productRepo, notifications, logging.Component(log, "product")),
		carts:    carts,
		orders: order.NewService(
			order.NewDocRepo(reader, logging.Component(log, "order")),
			productRepo,
			notifications,
			logging.Component(log, "order"),
			order.WithSurcharge(surcharge),
			order.WithReceipts(receipts),
			order.WithUsers(lookup),
		),
		sellers:       seller.NewService(seller.NewDocRepo(reader), users, notifications, logging.Component(log, "seller")),
		chats:         chat.NewService(reader, lookup, notifications, d.chatTimeout, logging.Component(log, "chat")),
		notifications: notifications,
		streamer:      realtime.NewStreamer(logging.Component(log, "realtime"), streamOpts...),
		log:           log,
	}
}
