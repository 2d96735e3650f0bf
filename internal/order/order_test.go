package order

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MikeMC777/campus-market/internal/apperr"
	"github.com/MikeMC777/campus-market/internal/cart"
	"github.com/MikeMC777/campus-market/internal/docstore"
	"github.com/MikeMC777/campus-market/internal/listing"
	"github.com/MikeMC777/campus-market/internal/notify"
	"github.com/MikeMC777/campus-market/internal/product"
	"github.com/MikeMC777/campus-market/internal/user"
)

type recordingNotifier struct {
	mu        sync.Mutex
	sent      []notify.Notification
	published []notify.StatusUpdate
}

func (r *recordingNotifier) Notify(_ context.Context, n notify.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
}

func (r *recordingNotifier) Publish(_ context.Context, typ, _ string, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := payload.(notify.StatusUpdate); ok && typ == notify.EventOrderStatus {
		r.published = append(r.published, u)
	}
}

func (r *recordingNotifier) recipients(kind notify.Kind) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, n := range r.sent {
		if n.Kind == kind {
			out = append(out, n.UserID)
		}
	}
	return out
}

type chanReceipts struct {
	ch  chan notify.Receipt
	err error
}

func (c *chanReceipts) SendReceipt(_ context.Context, r notify.Receipt) error {
	c.ch <- r
	return c.err
}

// failingRepo lets the first n creates through and fails the rest.
type failingRepo struct {
	Repository
	allowed int32
	calls   atomic.Int32
}

func (f *failingRepo) Create(ctx context.Context, o *Order) error {
	if f.calls.Add(1) > f.allowed {
		return errors.New("write failed")
	}
	return f.Repository.Create(ctx, o)
}

// stuckRepo refuses every status write.
type stuckRepo struct{ Repository }

func (stuckRepo) UpdateStatus(context.Context, string, Status, Status) error {
	return errors.New("write failed")
}

// rawCart hands checkout lines as they are, bypassing cart validation.
type rawCart struct {
	owner string
	items []cart.Item
}

func (c *rawCart) Owner() string { return c.owner }
func (c *rawCart) Items() []cart.Item { return c.items }
func (c *rawCart) Remove(context.Context, string) error { return nil }

func (c *rawCart) Clear(context.Context) error {
	c.items = nil
	return nil
}

var (
	ana    = user.User{ID: "c1", Name: "Ana", Email: "ana@campus.edu", Role: user.RoleCustomer, Active: true}
	ben    = user.User{ID: "c2", Name: "Ben", Role: user.RoleCustomer, Active: true}
	sellA  = user.User{ID: "sA", Name: "Book Nook", Role: user.RoleSeller, Active: true}
	sellB  = user.User{ID: "sB", Name: "Gadget Hub", Role: user.RoleSeller, Active: true}
	dean   = user.User{ID: "a1", Name: "Dean", Role: user.RoleAdmin, Active: true}
	origin = time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)
)

type fixture struct {
	t        *testing.T
	store    *docstore.MemoryStore
	products *product.DocRepo
	orders   *DocRepo
	notifier *recordingNotifier
	receipts *chanReceipts
	svc      *Service
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	store := docstore.NewMemoryStore()
	reader := listing.NewReader(store, zerolog.Nop())
	f := &fixture{
		t:        t,
		store:    store,
		products: product.NewDocRepo(reader),
		orders:   NewDocRepo(reader, zerolog.Nop()),
		notifier: &recordingNotifier{},
		receipts: &chanReceipts{ch: make(chan notify.Receipt, 4)},
	}
	opts = append([]Option{WithReceipts(f.receipts)}, opts...)
	f.svc = NewService(f.orders, f.products, f.notifier, zerolog.Nop(), opts...)
	return f
}

func (f *fixture) product(id string, seller user.User, price string, stock int) {
	f.t.Helper()
	require.NoError(f.t, f.products.Create(context.Background(), &product.Product{
		ID: id, SellerID: seller.ID, SellerName: seller.Name, Title: "title " + id,
		Price: decimal.RequireFromString(price), Category: product.CategoryBooks,
		Images: []string{"https://cdn.campus.edu/" + id + ".jpg"}, Approved: true, Stock: stock,
		CreatedAt: origin, UpdatedAt: origin,
	}))
}

func (f *fixture) cart(owner user.User, lines ...cart.Item) *cart.Cart {
	f.t.Helper()
	c, err := cart.Load(context.Background(), owner.ID, cart.NewMemoryStorage(), zerolog.Nop())
	require.NoError(f.t, err)
	for _, it := range lines {
		require.NoError(f.t, c.Add(context.Background(), it))
	}
	return c
}

func (f *fixture) stock(id string) int {
	f.t.Helper()
	p, err := f.products.GetByID(context.Background(), id)
	require.NoError(f.t, err)
	return p.Stock
}

func line(id string, seller user.User, price string, qty int) cart.Item {
	return cart.Item{
		ProductID: id, Name: "title " + id, Price: decimal.RequireFromString(price),
		Quantity: qty, SellerID: seller.ID, SellerName: seller.Name,
	}
}

func cartIDs(c *cart.Cart) []string {
	var out []string
	for _, it := range c.Items() {
		out = append(out, it.ProductID)
	}
	return out
}

var pickup = CheckoutRequest{PaymentMethod: PayCashOnPickup, PickupLocation: "Main library lobby"}

func TestCheckout_OneOrderPerSeller(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.product("p1", sellA, "100", 5)
	f.product("p2", sellB, "250", 5)
	f.product("p3", sellA, "35.50", 5)
	c := f.cart(ana, line("p1", sellA, "100", 2), line("p2", sellB, "250", 1), line("p3", sellA, "35.50", 1))

	res, err := f.svc.Checkout(ctx, ana, c, pickup)
	require.NoError(t, err)
	require.Len(t, res.Orders, 2)

	a, b := res.Orders[0], res.Orders[1]
	assert.Equal(t, "sA", a.SellerID)
	assert.Equal(t, "sB", b.SellerID)
	for _, o := range res.Orders {
		assert.Equal(t, StatusPlaced, o.Status)
		assert.Equal(t, "c1", o.CustomerID)
		assert.True(t, o.TotalPrice.Equal(ItemsTotal(o.Items)), "total equals its own line items")
		assert.True(t, o.DeliveryFee.IsZero())
	}
	assert.Equal(t, "235.5", a.TotalPrice.String())
	assert.Equal(t, "250", b.TotalPrice.String())
	assert.Equal(t, "485.50", res.GrandTotal)
	require.Len(t, a.Items, 2)
	assert.Equal(t, "https://cdn.campus.edu/p1.jpg", a.Items[0].Image)

	assert.Empty(t, c.Items(), "cart is cleared")
	stored, err := f.orders.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, stored, 2)
	assert.ElementsMatch(t, []string{"sA", "sB"}, f.notifier.recipients(notify.KindNewOrder))

	select {
	case r := <-f.receipts.ch:
		assert.Equal(t, "ana@campus.edu", r.CustomerEmail)
		assert.Len(t, r.Orders, 2)
		assert.Equal(t, "485.5", r.GrandTotal.String())
	case <-time.After(2 * time.Second):
		t.Fatal("receipt was not sent")
	}
	assert.Equal(t, 5, f.stock("p1"), "stock is only taken on confirmation")
}

func TestCheckout_SurchargeOncePerOrder(t *testing.T) {
	f := newFixture(t, WithSurcharge(decimal.RequireFromString("20.00")))
	f.product("p1", sellA, "100", 5)
	f.product("p2", sellA, "50", 5)
	f.product("p3", sellB, "10", 5)
	c := f.cart(ana, line("p1", sellA, "100", 1), line("p2", sellA, "50", 3), line("p3", sellB, "10", 1))

	res, err := f.svc.Checkout(context.Background(), ana, c, CheckoutRequest{
		PaymentMethod: PayCashOnDelivery, PickupLocation: "Dorm 4, room 12",
	})
	require.NoError(t, err)
	require.Len(t, res.Orders, 2)
	assert.Equal(t, "250", res.Orders[0].Subtotal.String())
	assert.Equal(t, "270", res.Orders[0].TotalPrice.String())
	assert.Equal(t, "30", res.Orders[1].TotalPrice.String())
	assert.Equal(t, "300.00", res.GrandTotal)
}

func TestCheckout_InsufficientStockLeavesCart(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.product("p1", sellA, "10", 5)
	f.product("p2", sellB, "10", 2)
	f.product("p3", sellA, "10", 5)
	c := f.cart(ana, line("p1", sellA, "10", 1), line("p2", sellB, "10", 5), line("p3", sellA, "10", 1))
	before := c.Items()

	_, err := f.svc.Checkout(ctx, ana, c, pickup)
	var short *InsufficientStockError
	require.ErrorAs(t, err, &short)
	assert.Equal(t, "p2", short.ProductID)
	assert.Equal(t, 2, short.Available)
	assert.Equal(t, 5, short.Requested)
	assert.ErrorIs(t, err, apperr.ErrInsufficientStock)
	assert.Contains(t, err.Error(), "only 2")

	assert.Equal(t, before, c.Items(), "cart unchanged")
	stored, err := f.orders.ListAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, stored)
	assert.Empty(t, f.notifier.recipients(notify.KindNewOrder))
}

func TestCheckout_MissingProductRemovedFromCart(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.product("p1", sellA, "10", 5)
	f.product("p3", sellB, "10", 5)
	c := f.cart(ana, line("p1", sellA, "10", 1), line("gone", sellA, "10", 1), line("p3", sellB, "10", 1))

	_, err := f.svc.Checkout(ctx, ana, c, pickup)
	var missing *MissingProductError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "gone", missing.ProductID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	assert.Equal(t, []string{"p1", "p3"}, cartIDs(c))
	stored, err := f.orders.ListAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestCheckout_UnapprovedCountsAsMissing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.product("p1", sellA, "10", 5)
	require.NoError(t, f.products.Update(ctx, "p1", map[string]any{"approved": false}))
	c := f.cart(ana, line("p1", sellA, "10", 1))

	_, err := f.svc.Checkout(ctx, ana, c, pickup)
	var missing *MissingProductError
	require.ErrorAs(t, err, &missing)
	assert.Empty(t, c.Items())
}

func TestCheckout_PriceSnapshot(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.product("p1", sellA, "120", 5)
	c := f.cart(ana, line("p1", sellA, "99", 2))

	res, err := f.svc.Checkout(ctx, ana, c, pickup)
	require.NoError(t, err)
	o := res.Orders[0]
	assert.Equal(t, "120", o.Items[0].Price.String(), "price comes from the product at checkout")
	assert.Equal(t, "240", o.TotalPrice.String())

	require.NoError(t, f.products.Update(ctx, "p1", map[string]any{"price": decimal.NewFromInt(500), "title": "renamed"}))
	stored, err := f.orders.GetByID(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, "120", stored.Items[0].Price.String())
	assert.Equal(t, "title p1", stored.Items[0].Name)
	assert.Equal(t, "240", stored.TotalPrice.String())
}

func TestCheckout_Validation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.product("p1", sellA, "10", 5)

	_, err := f.svc.Checkout(ctx, ana, f.cart(ana), pickup)
	assert.ErrorIs(t, err, apperr.ErrInvalidInput, "empty cart")

	for name, req := range map[string]CheckoutRequest{
		"no method":           {},
		"unknown method":      {PaymentMethod: "barter"},
		"wallet without ref":  {PaymentMethod: PayEWallet},
		"delivery without to": {PaymentMethod: PayCashOnDelivery},
	} {
		t.Run(name, func(t *testing.T) {
			c := f.cart(ana, line("p1", sellA, "10", 1))
			_, err := f.svc.Checkout(ctx, ana, c, req)
			assert.ErrorIs(t, err, apperr.ErrInvalidInput)
			assert.Len(t, c.Items(), 1)
		})
	}

	_, err = f.svc.Checkout(ctx, ben, f.cart(ana, line("p1", sellA, "10", 1)), pickup)
	assert.ErrorIs(t, err, apperr.ErrForbidden)
}

func TestCheckout_WriteFailureKeepsCart(t *testing.T) {
	f := newFixture(t)
	f.product("p1", sellA, "10", 5)
	f.product("p2", sellB, "10", 5)
	repo := &failingRepo{Repository: f.orders, allowed: 1}
	svc := NewService(repo, f.products, f.notifier, zerolog.Nop())
	c := f.cart(ana, line("p1", sellA, "10", 1), line("p2", sellB, "10", 1))

	_, err := svc.Checkout(context.Background(), ana, c, pickup)
	require.Error(t, err)
	assert.True(t, apperr.Transient(err))
	assert.Equal(t, []string{"p1", "p2"}, cartIDs(c), "cart kept for a retry")
	assert.Equal(t, int32(2), repo.calls.Load(), "no automatic retry")

	mine, err := f.orders.ListByCustomer(context.Background(), ana.ID)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "sA", mine[0].SellerID)
	assert.Equal(t, StatusCancelled, mine[0].Status, "orders of the incomplete checkout are withdrawn")
	assert.Empty(t, f.notifier.recipients(notify.KindNewOrder))
}

func TestCheckout_RejectsOutOfRangeQuantities(t *testing.T) {
	f := newFixture(t)
	f.product("p1", sellA, "10", 5)

	for _, qty := range []int{0, -3, cart.MaxQuantity + 1} {
		c := &rawCart{owner: ana.ID, items: []cart.Item{line("p1", sellA, "10", qty)}}
		_, err := f.svc.Checkout(context.Background(), ana, c, pickup)
		assert.ErrorIs(t, err, apperr.ErrInvalidInput, "quantity %d", qty)
		assert.Len(t, c.items, 1, "quantity %d", qty)
	}
	mine, err := f.orders.ListByCustomer(context.Background(), ana.ID)
	require.NoError(t, err)
	assert.Empty(t, mine)
}

func TestTransitionTable(t *testing.T) {
	all := []Status{StatusPlaced, StatusConfirmed, StatusReadyForPickup, StatusCompleted, StatusCancelled}
	allowed := map[[2]Status]bool{
		{StatusPlaced, StatusConfirmed}:         true,
		{StatusConfirmed, StatusReadyForPickup}: true,
		{StatusReadyForPickup, StatusCompleted}: true,
		{StatusPlaced, StatusCancelled}:         true,
		{StatusConfirmed, StatusCancelled}:      true,
	}
	for _, from := range all {
		for _, to := range all {
			assert.Equal(t, allowed[[2]Status{from, to}], CanTransition(from, to), "%s -> %s", from, to)
		}
	}
	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusCancelled.Terminal())
	assert.False(t, StatusPlaced.Terminal())
	assert.Equal(t, []Status{StatusCompleted}, Next(StatusReadyForPickup))
}

func (f *fixture) placed(customer user.User, lines ...cart.Item) *Order {
	f.t.Helper()
	res, err := f.svc.Checkout(context.Background(), customer, f.cart(customer, lines...), pickup)
	require.NoError(f.t, err)
	require.Len(f.t, res.Orders, 1)
	return &res.Orders[0]
}

func TestUpdateStatus_HappyPath(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.product("p1", sellA, "10", 5)
	o := f.placed(ana, line("p1", sellA, "10", 2))

	for _, next := range []Status{StatusConfirmed, StatusReadyForPickup, StatusCompleted} {
		got, err := f.svc.UpdateStatus(ctx, sellA, o.ID, next)
		require.NoError(t, err, next)
		assert.Equal(t, next, got.Status)
	}

	stored, err := f.orders.GetByID(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, stored.Status)
	assert.True(t, stored.UpdatedAt.After(stored.CreatedAt) || stored.UpdatedAt.Equal(stored.CreatedAt))
	assert.Equal(t, 3, f.stock("p1"), "confirmation takes stock once")
	assert.Equal(t, []string{"c1", "c1", "c1"}, f.notifier.recipients(notify.KindOrderStatus))

	for _, to := range []Status{StatusPlaced, StatusConfirmed, StatusReadyForPickup, StatusCancelled} {
		_, err := f.svc.UpdateStatus(ctx, dean, o.ID, to)
		assert.ErrorIs(t, err, apperr.ErrInvalidTransition, "completed -> %s", to)
	}
}

func TestUpdateStatus_RejectsSkipsAndBackwards(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.product("p1", sellA, "10", 5)
	o := f.placed(ana, line("p1", sellA, "10", 1))

	_, err := f.svc.UpdateStatus(ctx, sellA, o.ID, StatusCompleted)
	assert.ErrorIs(t, err, apperr.ErrInvalidTransition)
	_, err = f.svc.UpdateStatus(ctx, sellA, o.ID, "shipped")
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)

	_, err = f.svc.UpdateStatus(ctx, sellA, o.ID, StatusConfirmed)
	require.NoError(t, err)
	_, err = f.svc.UpdateStatus(ctx, sellA, o.ID, StatusReadyForPickup)
	require.NoError(t, err)

	_, err = f.svc.UpdateStatus(ctx, sellA, o.ID, StatusPlaced)
	assert.ErrorIs(t, err, apperr.ErrInvalidTransition)
	_, err = f.svc.UpdateStatus(ctx, ana, o.ID, StatusCancelled)
	assert.ErrorIs(t, err, apperr.ErrInvalidTransition, "no cancelling once ready for pickup")

	stored, err := f.orders.GetByID(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusReadyForPickup, stored.Status)
}

func TestUpdateStatus_Authorization(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.product("p1", sellA, "10", 5)
	o := f.placed(ana, line("p1", sellA, "10", 1))

	_, err := f.svc.UpdateStatus(ctx, ana, o.ID, StatusConfirmed)
	assert.ErrorIs(t, err, apperr.ErrForbidden, "customers cannot confirm")
	_, err = f.svc.UpdateStatus(ctx, sellB, o.ID, StatusConfirmed)
	assert.ErrorIs(t, err, apperr.ErrForbidden, "other sellers cannot touch it")
	_, err = f.svc.UpdateStatus(ctx, ben, o.ID, StatusCancelled)
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	_, err = f.svc.UpdateStatus(ctx, dean, o.ID, StatusConfirmed)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"c1", "sA"}, f.notifier.recipients(notify.KindOrderStatus), "admin changes reach both sides")

	_, err = f.svc.UpdateStatus(ctx, ana, o.ID, StatusCancelled)
	require.NoError(t, err)
	assert.Equal(t, "sA", f.notifier.recipients(notify.KindOrderStatus)[2], "customer cancellation notifies the seller")

	_, err = f.svc.UpdateStatus(ctx, sellA, "missing", StatusConfirmed)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestUpdateStatus_Inventory(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.product("p1", sellA, "10", 5)
	f.product("p2", sellA, "10", 5)

	first := f.placed(ana, line("p1", sellA, "10", 2), line("p2", sellA, "10", 4))
	second := f.placed(ben, line("p1", sellA, "10", 1), line("p2", sellA, "10", 3))

	_, err := f.svc.UpdateStatus(ctx, sellA, first.ID, StatusConfirmed)
	require.NoError(t, err)
	assert.Equal(t, 3, f.stock("p1"))
	assert.Equal(t, 1, f.stock("p2"))

	_, err = f.svc.UpdateStatus(ctx, sellA, second.ID, StatusConfirmed)
	var short *InsufficientStockError
	require.ErrorAs(t, err, &short)
	assert.Equal(t, "p2", short.ProductID)
	assert.Equal(t, 1, short.Available)
	assert.Equal(t, 3, f.stock("p1"), "partial reservation rolled back")
	assert.Equal(t, 1, f.stock("p2"))
	stored, err := f.orders.GetByID(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPlaced, stored.Status)

	_, err = f.svc.UpdateStatus(ctx, ana, first.ID, StatusCancelled)
	require.NoError(t, err)
	assert.Equal(t, 5, f.stock("p1"), "cancelling a confirmed order restocks")
	assert.Equal(t, 5, f.stock("p2"))

	_, err = f.svc.UpdateStatus(ctx, ben, second.ID, StatusCancelled)
	require.NoError(t, err)
	assert.Equal(t, 5, f.stock("p1"), "cancelling a placed order leaves stock alone")
}

func TestUpdateStatus_ConcurrentConfirmsDoNotOversell(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.product("p1", sellA, "10", 3)
	first := f.placed(ana, line("p1", sellA, "10", 2))
	second := f.placed(ben, line("p1", sellA, "10", 2))

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i, id := range []string{first.ID, second.ID} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = f.svc.UpdateStatus(ctx, sellA, id, StatusConfirmed)
		}()
	}
	wg.Wait()

	var ok, short int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, apperr.ErrInsufficientStock):
			short++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, short)
	assert.Equal(t, 1, f.stock("p1"))
}

func TestUpdateStatus_ConcurrentSameTransition(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.product("p1", sellA, "10", 8)
	o := f.placed(ana, line("p1", sellA, "10", 2))

	errs := make([]error, 4)
	var wg sync.WaitGroup
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = f.svc.UpdateStatus(ctx, sellA, o.ID, StatusConfirmed)
		}()
	}
	wg.Wait()

	var ok int
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.ErrorIs(t, err, apperr.ErrInvalidTransition)
	}
	assert.Equal(t, 1, ok, "exactly one confirmation wins")
	assert.Equal(t, 6, f.stock("p1"), "stock taken once")
}

func TestUpdateStatus_StatusChangedUnderneath(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.product("p1", sellA, "10", 5)
	o := f.placed(ana, line("p1", sellA, "10", 1))

	require.NoError(t, f.orders.UpdateStatus(ctx, o.ID, StatusPlaced, StatusCancelled))
	err := f.orders.UpdateStatus(ctx, o.ID, StatusPlaced, StatusConfirmed)
	assert.ErrorIs(t, err, ErrStatusChanged)
	assert.ErrorIs(t, err, apperr.ErrInvalidTransition)
	assert.ErrorIs(t, f.orders.UpdateStatus(ctx, "missing", StatusPlaced, StatusConfirmed), ErrNotFound)
}

func TestUpdateStatus_FailedCancelKeepsStockTaken(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.product("p1", sellA, "10", 5)
	o := f.placed(ana, line("p1", sellA, "10", 2))
	_, err := f.svc.UpdateStatus(ctx, sellA, o.ID, StatusConfirmed)
	require.NoError(t, err)
	require.Equal(t, 3, f.stock("p1"))

	svc := NewService(stuckRepo{f.orders}, f.products, f.notifier, zerolog.Nop())
	_, err = svc.UpdateStatus(ctx, ana, o.ID, StatusCancelled)
	require.Error(t, err)
	assert.Equal(t, 3, f.stock("p1"), "stock returns only once the cancellation is stored")

	_, err = svc.UpdateStatus(ctx, sellA, o.ID, StatusReadyForPickup)
	require.Error(t, err)
	assert.Equal(t, 3, f.stock("p1"))
}

func TestNewDetail(t *testing.T) {
	d := NewDetail(&Order{ID: "o1", Status: StatusConfirmed})
	assert.Equal(t, "o1", d.ID)
	assert.Equal(t, []Status{StatusReadyForPickup, StatusCancelled}, d.Next)
	assert.False(t, d.Terminal)

	d = NewDetail(&Order{ID: "o2", Status: StatusCompleted})
	assert.Equal(t, []Status{}, d.Next)
	assert.True(t, d.Terminal)
}

func TestUpdateStatus_PublishesForMailer(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemoryStore()
	users := user.NewDocRepo(listing.NewReader(store, zerolog.Nop()))
	require.NoError(t, users.Create(ctx, &ana))

	f := newFixture(t, WithUsers(users))
	f.product("p1", sellA, "10", 5)
	o := f.placed(ana, line("p1", sellA, "10", 1))

	_, err := f.svc.UpdateStatus(ctx, sellA, o.ID, StatusConfirmed)
	require.NoError(t, err)
	require.Len(t, f.notifier.published, 1)
	u := f.notifier.published[0]
	assert.Equal(t, "c1", u.RecipientID)
	assert.Equal(t, "ana@campus.edu", u.RecipientEmail)
	assert.Equal(t, "confirmed", u.Status)
	assert.Equal(t, "Book Nook", u.SellerName)
}

func TestGetAndListings(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.product("p1", sellA, "10", 5)
	f.product("p2", sellB, "10", 5)
	mine := f.placed(ana, line("p1", sellA, "10", 1))
	f.placed(ben, line("p2", sellB, "10", 1))

	_, err := f.svc.Get(ctx, ana, mine.ID)
	assert.NoError(t, err)
	_, err = f.svc.Get(ctx, sellA, mine.ID)
	assert.NoError(t, err)
	_, err = f.svc.Get(ctx, dean, mine.ID)
	assert.NoError(t, err)
	_, err = f.svc.Get(ctx, ben, mine.ID)
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	got, err := f.svc.ListMine(ctx, ana)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, mine.ID, got[0].ID)

	selling, err := f.svc.ListSelling(ctx, sellB)
	require.NoError(t, err)
	require.Len(t, selling, 1)
	assert.Equal(t, "c2", selling[0].CustomerID)

	_, err = f.svc.ListSelling(ctx, ana)
	assert.ErrorIs(t, err, apperr.ErrForbidden)
	_, err = f.svc.ListAll(ctx, sellA)
	assert.ErrorIs(t, err, apperr.ErrForbidden)
	all, err := f.svc.ListAll(ctx, dean)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestSubscribeSelling_SnapshotsAndRelease(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.product("p1", sellA, "10", 5)

	snapshots := make(chan []Order, 8)
	release, err := f.svc.SubscribeSelling(ctx, sellA, func(orders []Order) { snapshots <- orders })
	require.NoError(t, err)

	next := func() []Order {
		select {
		case s := <-snapshots:
			return s
		case <-time.After(2 * time.Second):
			t.Fatal("no snapshot delivered")
			return nil
		}
	}
	assert.Empty(t, next())

	o := f.placed(ana, line("p1", sellA, "10", 1))
	latest := next()
	for len(latest) == 0 {
		latest = next()
	}
	require.Len(t, latest, 1)
	assert.Equal(t, o.ID, latest[0].ID)

	assert.Equal(t, 1, f.store.Watchers(docstore.Orders))
	release()
	assert.Equal(t, 0, f.store.Watchers(docstore.Orders))

	_, err = f.svc.SubscribeSelling(ctx, ana, func([]Order) {})
	assert.ErrorIs(t, err, apperr.ErrForbidden)
}
