package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/MikeMC777/campus-market/internal/apperr"
	"github.com/MikeMC777/campus-market/internal/cart"
	"github.com/MikeMC777/campus-market/internal/notify"
	"github.com/MikeMC777/campus-market/internal/product"
	"github.com/MikeMC777/campus-market/internal/user"
)

// MissingProductError aborts a checkout whose cart names a product that no
// longer exists or is no longer listed. The item has been removed from the
// cart by the time the caller sees it.
type MissingProductError struct {
	ProductID string
	Name      string
}

func (e *MissingProductError) Error() string {
	return fmt.Sprintf("%q is no longer available and was removed from your cart", e.Name)
}

func (e *MissingProductError) Unwrap() error { return apperr.ErrNotFound }

// InsufficientStockError reports a line whose quantity exceeds stock.
type InsufficientStockError struct {
	ProductID string
	Name      string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("only %d of %q available, %d requested", e.Available, e.Name, e.Requested)
}

func (e *InsufficientStockError) Unwrap() error { return apperr.ErrInsufficientStock }

const fetchConcurrency = 8

func validateCheckout(req CheckoutRequest) error {
	if err := validate.Struct(req); err != nil {
		return fmt.Errorf("%w: %v", apperr.ErrInvalidInput, err)
	}
	if !req.PaymentMethod.Valid() {
		return fmt.Errorf("%w: unknown payment method %q", apperr.ErrInvalidInput, req.PaymentMethod)
	}
	if req.PaymentMethod == PayEWallet && req.PaymentReference == "" {
		return fmt.Errorf("%w: e-wallet payments need a payment reference", apperr.ErrInvalidInput)
	}
	if req.PaymentMethod == PayCashOnDelivery && req.PickupLocation == "" {
		return fmt.Errorf("%w: cash on delivery needs a delivery location", apperr.ErrInvalidInput)
	}
	return nil
}

// fetchProducts loads the current record of every cart line concurrently.
// A nil entry marks a product that no longer exists.
func (s *Service) fetchProducts(ctx context.Context, items []cart.Item) ([]*product.Product, error) {
	out := make([]*product.Product, len(items))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fetchConcurrency)
	for i, it := range items {
		g.Go(func() error {
			p, err := s.products.GetByID(gctx, it.ProductID)
			switch {
			case errors.Is(err, product.ErrNotFound):
				return nil
			case err != nil:
				return fmt.Errorf("load product %s: %w", it.ProductID, err)
			}
			out[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Checkout turns the customer's cart into one placed order per seller.
//
// Every line is checked against the current product first, in cart order.
// A product that is gone (or unlisted) is removed from the cart and the
// checkout fails with *MissingProductError; a line above stock fails with
// *InsufficientStockError. Either way no order is written. If a write fails
// part way, the orders already created are cancelled so a retry does not
// duplicate them. Once all orders exist the receipt is sent in the
// background and the cart is cleared.
func (s *Service) Checkout(ctx context.Context, customer user.User, c Cart, req CheckoutRequest) (_ *CheckoutResponse, err error) {
	ctx, span := s.tracer.Start(ctx, "order.Checkout", trace.WithAttributes(attribute.String("customer.id", customer.ID)))
	defer func() { endSpan(span, err) }()

	if c.Owner() != customer.ID {
		return nil, fmt.Errorf("%w: cart belongs to another user", apperr.ErrForbidden)
	}
	if err := validateCheckout(req); err != nil {
		return nil, err
	}
	items := c.Items()
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: cart is empty", apperr.ErrInvalidInput)
	}

	current, err := s.fetchProducts(ctx, items)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*product.Product, len(items))
	for i, it := range items {
		p := current[i]
		if p == nil || !p.Approved {
			if rmErr := c.Remove(ctx, it.ProductID); rmErr != nil {
				s.log.Warn().Err(rmErr).Str("product", it.ProductID).Msg("failed to drop missing product from cart")
			}
			return nil, &MissingProductError{ProductID: it.ProductID, Name: it.Name}
		}
		if it.Quantity <= 0 || it.Quantity > cart.MaxQuantity {
			return nil, fmt.Errorf("%w: quantity of %q must be between 1 and %d", apperr.ErrInvalidInput, it.Name, cart.MaxQuantity)
		}
		if it.Quantity > p.Stock {
			return nil, &InsufficientStockError{ProductID: it.ProductID, Name: p.Title, Requested: it.Quantity, Available: p.Stock}
		}
		byID[it.ProductID] = p
	}

	groups := cart.GroupBySeller(items)
	span.SetAttributes(attribute.Int("order.count", len(groups)))

	now := time.Now().UTC()
	orders := make([]Order, 0, len(groups))
	for _, g := range groups {
		o := s.buildOrder(customer, g, byID, req, now)
		if err := s.repo.Create(ctx, &o); err != nil {
			s.log.Error().Err(err).Str("customer", customer.ID).Int("created", len(orders)).Msg("checkout failed while creating orders")
			s.withdraw(ctx, orders)
			return nil, fmt.Errorf("create order for seller %s: %w", g.SellerID, err)
		}
		orders = append(orders, o)
	}

	grand := decimal.Zero
	for _, o := range orders {
		grand = grand.Add(o.TotalPrice)
		s.placed.Add(ctx, 1, metric.WithAttributes(attribute.String("payment_method", string(o.PaymentMethod))))
		s.notifier.Notify(ctx, notify.Notification{
			UserID:  o.SellerID,
			Kind:    notify.KindNewOrder,
			Title:   "New order",
			Body:    fmt.Sprintf("%s placed an order for %s.", customer.Name, o.TotalPrice.StringFixed(2)),
			OrderID: o.ID,
		})
	}
	s.sendReceipt(ctx, customer, req, orders)

	if err := c.Clear(ctx); err != nil {
		s.log.Warn().Err(err).Str("customer", customer.ID).Msg("orders placed but cart could not be cleared")
	}
	s.log.Info().Str("customer", customer.ID).Int("orders", len(orders)).Str("total", grand.StringFixed(2)).Msg("checkout complete")
	return &CheckoutResponse{Orders: orders, GrandTotal: grand.StringFixed(2)}, nil
}

// withdraw cancels the orders of a checkout that could not be completed.
// It runs even if the request was cancelled.
func (s *Service) withdraw(ctx context.Context, orders []Order) {
	ctx = context.WithoutCancel(ctx)
	for _, o := range orders {
		if err := s.repo.UpdateStatus(ctx, o.ID, StatusPlaced, StatusCancelled); err != nil {
			s.log.Error().Err(err).Str("order", o.ID).Msg("failed to withdraw order of an incomplete checkout")
			continue
		}
		s.log.Info().Str("order", o.ID).Str("seller", o.SellerID).Msg("order withdrawn after incomplete checkout")
	}
}

func (s *Service) buildOrder(customer user.User, g cart.Group, products map[string]*product.Product, req CheckoutRequest, now time.Time) Order {
	o := Order{
		ID:               uuid.NewString(),
		CustomerID:       customer.ID,
		CustomerName:     customer.Name,
		SellerID:         g.SellerID,
		SellerName:       g.SellerName,
		Items:            make([]Item, 0, len(g.Items)),
		Status:           StatusPlaced,
		PaymentMethod:    req.PaymentMethod,
		PickupLocation:   req.PickupLocation,
		Notes:            req.Notes,
		ContactNumber:    req.ContactNumber,
		PaymentReference: req.PaymentReference,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	for _, it := range g.Items {
		p := products[it.ProductID]
		image := p.FirstImage()
		if image == "" {
			image = it.Image
		}
		if o.SellerName == "" {
			o.SellerName = p.SellerName
		}
		o.Items = append(o.Items, Item{
			ProductID: it.ProductID,
			Name:      p.Title,
			Image:     image,
			Quantity:  it.Quantity,
			Price:     p.Price,
		})
	}
	o.Subtotal = ItemsTotal(o.Items)
	o.DeliveryFee = decimal.Zero
	if req.PaymentMethod.HasSurcharge() {
		o.DeliveryFee = s.surcharge
	}
	o.TotalPrice = o.Subtotal.Add(o.DeliveryFee)
	return o
}

// sendReceipt mails the receipt without holding up the checkout. Failures
// are only logged.
func (s *Service) sendReceipt(ctx context.Context, customer user.User, req CheckoutRequest, orders []Order) {
	if s.receipts == nil {
		return
	}
	r := notify.Receipt{
		CustomerID:     customer.ID,
		CustomerName:   customer.Name,
		CustomerEmail:  customer.Email,
		PaymentMethod:  string(req.PaymentMethod),
		PickupLocation: req.PickupLocation,
	}
	for _, o := range orders {
		ro := notify.ReceiptOrder{OrderID: o.ID, SellerName: o.SellerName, DeliveryFee: o.DeliveryFee, Total: o.TotalPrice}
		for _, it := range o.Items {
			ro.Lines = append(ro.Lines, notify.ReceiptLine{Name: it.Name, Quantity: it.Quantity, Price: it.Price, Subtotal: it.Subtotal()})
		}
		r.Orders = append(r.Orders, ro)
		r.GrandTotal = r.GrandTotal.Add(o.TotalPrice)
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.receiptTimeout)
	go func() {
		defer cancel()
		if err := s.receipts.SendReceipt(ctx, r); err != nil {
			s.log.Warn().Err(err).Str("customer", customer.ID).Msg("failed to send receipt")
		}
	}()
}
