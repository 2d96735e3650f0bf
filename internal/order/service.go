// Package order implements checkout with one order per seller, the order
// status state machine and the order read paths.
package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"

	"github.com/MikeMC777/campus-market/internal/apperr"
	"github.com/MikeMC777/campus-market/internal/notify"
	"github.com/MikeMC777/campus-market/internal/product"
	"github.com/MikeMC777/campus-market/internal/user"
)

const instrumentation = "github.com/MikeMC777/campus-market/internal/order"

// DefaultSurcharge is the flat cash-on-delivery fee used when none is configured.
var DefaultSurcharge = decimal.RequireFromString("20.00")

var validate = validator.New()

type Service struct {
	repo      Repository
	products  Products
	notifier  Notifier
	receipts  notify.ReceiptSender
	users     user.Lookup
	surcharge decimal.Decimal
	log       zerolog.Logger

	tracer trace.Tracer
	placed metric.Int64Counter
	// receiptTimeout bounds the background receipt send.
	receiptTimeout time.Duration
}

type Option func(*Service)

func WithSurcharge(d decimal.Decimal) Option { return func(s *Service) { s.surcharge = d } }

// WithReceipts sets where checkout receipts go. Without it none are sent.
func WithReceipts(r notify.ReceiptSender) Option { return func(s *Service) { s.receipts = r } }

// WithUsers lets status updates carry the recipient's email address.
func WithUsers(l user.Lookup) Option { return func(s *Service) { s.users = l } }

func NewService(repo Repository, products Products, notifier Notifier, log zerolog.Logger, opts ...Option) *Service {
	s := &Service{
		repo:           repo,
		products:       products,
		notifier:       notifier,
		surcharge:      DefaultSurcharge,
		log:            log,
		tracer:         otel.Tracer(instrumentation),
		receiptTimeout: 30 * time.Second,
	}
	for _, o := range opts {
		o(s)
	}

	placed, err := otel.Meter(instrumentation).Int64Counter("orders_placed",
		metric.WithDescription("Orders created by checkout, one per seller."))
	if err != nil {
		log.Warn().Err(err).Msg("orders_placed counter unavailable")
		placed, _ = noop.NewMeterProvider().Meter(instrumentation).Int64Counter("orders_placed")
	}
	s.placed = placed
	return s
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func isParticipant(actor user.User, o *Order) bool {
	return actor.IsAdmin() || actor.ID == o.CustomerID || actor.ID == o.SellerID
}

// Get returns an order to its customer, its seller or an admin.
func (s *Service) Get(ctx context.Context, actor user.User, id string) (*Order, error) {
	o, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !isParticipant(actor, o) {
		return nil, fmt.Errorf("%w: not your order", apperr.ErrForbidden)
	}
	return o, nil
}

// ListMine returns the orders the actor placed, newest first.
func (s *Service) ListMine(ctx context.Context, actor user.User) ([]Order, error) {
	return s.repo.ListByCustomer(ctx, actor.ID)
}

// ListSelling returns the orders placed with the actor as seller.
func (s *Service) ListSelling(ctx context.Context, actor user.User) ([]Order, error) {
	if !actor.IsSeller() && !actor.IsAdmin() {
		return nil, fmt.Errorf("%w: sellers only", apperr.ErrForbidden)
	}
	return s.repo.ListBySeller(ctx, actor.ID)
}

func (s *Service) ListAll(ctx context.Context, actor user.User) ([]Order, error) {
	if !actor.IsAdmin() {
		return nil, fmt.Errorf("%w: admins only", apperr.ErrForbidden)
	}
	return s.repo.ListAll(ctx)
}

func (s *Service) SubscribeMine(ctx context.Context, actor user.User, fn func([]Order)) (func(), error) {
	sub, err := s.repo.SubscribeCustomer(ctx, actor.ID, fn)
	if err != nil {
		return nil, err
	}
	return func() { _ = sub.Close() }, nil
}

func (s *Service) SubscribeSelling(ctx context.Context, actor user.User, fn func([]Order)) (func(), error) {
	if !actor.IsSeller() && !actor.IsAdmin() {
		return nil, fmt.Errorf("%w: sellers only", apperr.ErrForbidden)
	}
	sub, err := s.repo.SubscribeSeller(ctx, actor.ID, fn)
	if err != nil {
		return nil, err
	}
	return func() { _ = sub.Close() }, nil
}

// UpdateStatus applies one transition of the order state machine. The
// request is validated against the transition table and the actor's role
// before anything is written. Confirming takes the ordered quantities from
// stock; cancelling a confirmed order puts them back once the cancellation
// is stored. The status write only succeeds if nobody moved the order in
// the meantime.
func (s *Service) UpdateStatus(ctx context.Context, actor user.User, id string, to Status) (_ *Order, err error) {
	ctx, span := s.tracer.Start(ctx, "order.UpdateStatus",
		trace.WithAttributes(attribute.String("order.id", id), attribute.String("order.status.to", string(to))))
	defer func() { endSpan(span, err) }()

	o, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !isParticipant(actor, o) {
		return nil, fmt.Errorf("%w: not your order", apperr.ErrForbidden)
	}
	if err := checkTransition(o.Status, to); err != nil {
		return nil, err
	}
	if err := authorize(actor, o, to); err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("order.status.from", string(o.Status)))

	from := o.Status
	if to == StatusConfirmed {
		if err := s.reserveStock(ctx, o.Items); err != nil {
			return nil, err
		}
	}
	if err := s.repo.UpdateStatus(ctx, id, from, to); err != nil {
		if to == StatusConfirmed {
			s.releaseStock(ctx, o.Items)
		}
		return nil, err
	}
	if to == StatusCancelled && from == StatusConfirmed {
		s.releaseStock(ctx, o.Items)
	}
	o.Status = to
	o.UpdatedAt = time.Now().UTC()

	s.log.Info().Str("order", id).Str("from", string(from)).Str("to", string(to)).Str("by", actor.ID).Msg("order status changed")
	s.announce(ctx, actor, o)
	return o, nil
}

// reserveStock takes every line's quantity from stock, undoing what it took
// if any line cannot be covered. Each take is conditional on the stock
// still covering it, so concurrent confirmations cannot oversell.
func (s *Service) reserveStock(ctx context.Context, items []Item) error {
	var taken []Item
	for _, it := range items {
		err := s.products.TakeStock(ctx, it.ProductID, it.Quantity)
		switch {
		case errors.Is(err, product.ErrNotFound):
			s.log.Warn().Str("product", it.ProductID).Msg("confirming order for a deleted product")
			continue
		case errors.Is(err, product.ErrOutOfStock):
			short := &InsufficientStockError{ProductID: it.ProductID, Name: it.Name, Requested: it.Quantity}
			if p, gerr := s.products.GetByID(ctx, it.ProductID); gerr == nil {
				short.Available = p.Stock
			}
			err = short
		}
		if err != nil {
			s.releaseStock(ctx, taken)
			return err
		}
		taken = append(taken, it)
	}
	return nil
}

func (s *Service) releaseStock(ctx context.Context, items []Item) {
	for _, it := range items {
		err := s.products.AdjustStock(ctx, it.ProductID, it.Quantity)
		if err != nil && !errors.Is(err, product.ErrNotFound) {
			s.log.Error().Err(err).Str("product", it.ProductID).Int("quantity", it.Quantity).Msg("failed to restore stock")
		}
	}
}

// announce notifies the counterpart of the actor and publishes the status
// change for the mailer.
func (s *Service) announce(ctx context.Context, actor user.User, o *Order) {
	var recipients []string
	switch actor.ID {
	case o.CustomerID:
		recipients = []string{o.SellerID}
	case o.SellerID:
		recipients = []string{o.CustomerID}
	default:
		recipients = []string{o.CustomerID, o.SellerID}
	}

	for _, uid := range recipients {
		s.notifier.Notify(ctx, notify.Notification{
			UserID:  uid,
			Kind:    notify.KindOrderStatus,
			Title:   "Order " + humanStatus(o.Status),
			Body:    fmt.Sprintf("Order %s is now %s.", o.ID, humanStatus(o.Status)),
			OrderID: o.ID,
		})

		update := notify.StatusUpdate{
			OrderID:     o.ID,
			RecipientID: uid,
			Status:      humanStatus(o.Status),
			SellerName:  o.SellerName,
		}
		if uid == o.CustomerID {
			update.RecipientName = o.CustomerName
		} else {
			update.RecipientName = o.SellerName
		}
		if s.users != nil {
			if u, err := s.users.GetUser(ctx, uid); err == nil {
				update.RecipientEmail = u.Email
				update.RecipientName = u.Name
			}
		}
		s.notifier.Publish(ctx, notify.EventOrderStatus, uid, update)
	}
}

func humanStatus(s Status) string {
	switch s {
	case StatusReadyForPickup:
		return "ready for pickup"
	default:
		return string(s)
	}
}
