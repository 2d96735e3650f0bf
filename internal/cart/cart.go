// Package cart holds a customer's cart: one line per product, persisted on
// every change and broadcast to subscribers after the write succeeds.
package cart

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/MikeMC777/campus-market/internal/apperr"
)

var ErrItemNotFound = fmt.Errorf("cart item %w", apperr.ErrNotFound)

// MaxQuantity caps a single cart line.
const MaxQuantity = 999

type Item struct {
	ProductID  string          `json:"productId"  validate:"required"`
	Name       string          `json:"name"`
	Image      string          `json:"image,omitempty"`
	Price      decimal.Decimal `json:"price"`
	Quantity   int             `json:"quantity"   validate:"gt=0,lte=999"`
	SellerID   string          `json:"sellerId"   validate:"required"`
	SellerName string          `json:"sellerName"`
}

// Subtotal is price times quantity.
func (it Item) Subtotal() decimal.Decimal {
	return it.Price.Mul(decimal.NewFromInt(int64(it.Quantity)))
}

// Group is the slice of a cart that belongs to one seller.
type Group struct {
	SellerID   string `json:"sellerId"`
	SellerName string `json:"sellerName"`
	Items      []Item `json:"items"`
}

func (g Group) Subtotal() decimal.Decimal {
	total := decimal.Zero
	for _, it := range g.Items {
		total = total.Add(it.Subtotal())
	}
	return total
}

var validate = validator.New()

type Cart struct {
	owner   string
	storage Storage
	log     zerolog.Logger

	mu      sync.Mutex
	items   []Item
	subs    map[int]func([]Item)
	nextSub int
}

// Load reads owner's cart from storage.
func Load(ctx context.Context, owner string, storage Storage, log zerolog.Logger) (*Cart, error) {
	items, err := storage.Load(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("load cart %s: %w", owner, err)
	}
	return &Cart{
		owner:   owner,
		storage: storage,
		log:     log.With().Str("owner", owner).Logger(),
		items:   items,
		subs:    map[int]func([]Item){},
	}, nil
}

func (c *Cart) Owner() string { return c.owner }

func copyItems(items []Item) []Item {
	return append([]Item(nil), items...)
}

func indexOf(items []Item, productID string) int {
	for i, it := range items {
		if it.ProductID == productID {
			return i
		}
	}
	return -1
}

// apply computes the next state with change, persists it and only then makes
// it current and notifies subscribers. On any error the cart is unchanged.
func (c *Cart) apply(ctx context.Context, change func([]Item) ([]Item, bool, error)) error {
	c.mu.Lock()
	next, changed, err := change(copyItems(c.items))
	if err != nil || !changed {
		c.mu.Unlock()
		return err
	}
	if err := c.storage.Save(ctx, c.owner, next); err != nil {
		c.mu.Unlock()
		return fmt.Errorf("persist cart: %w", err)
	}
	c.items = next
	snapshot := copyItems(next)
	subs := make([]func([]Item), 0, len(c.subs))
	for _, fn := range c.subs {
		subs = append(subs, fn)
	}
	c.mu.Unlock()

	for _, fn := range subs {
		fn(copyItems(snapshot))
	}
	return nil
}

// Add appends item or merges its quantity into the existing line for the
// same product. A merge that would take the line above MaxQuantity is
// refused and leaves the cart as it was.
func (c *Cart) Add(ctx context.Context, item Item) error {
	if err := validate.Struct(item); err != nil {
		return fmt.Errorf("%w: %v", apperr.ErrInvalidInput, err)
	}
	if item.Price.IsNegative() {
		return fmt.Errorf("%w: price must not be negative", apperr.ErrInvalidInput)
	}
	return c.apply(ctx, func(items []Item) ([]Item, bool, error) {
		if i := indexOf(items, item.ProductID); i >= 0 {
			if items[i].Quantity > MaxQuantity-item.Quantity {
				return nil, false, fmt.Errorf("%w: at most %d of one product per cart", apperr.ErrInvalidInput, MaxQuantity)
			}
			items[i].Quantity += item.Quantity
			return items, true, nil
		}
		return append(items, item), true, nil
	})
}

// UpdateQuantity sets the quantity of a line; qty <= 0 removes it.
func (c *Cart) UpdateQuantity(ctx context.Context, productID string, qty int) error {
	if productID == "" {
		return fmt.Errorf("%w: product id is required", apperr.ErrInvalidInput)
	}
	if qty > MaxQuantity {
		return fmt.Errorf("%w: at most %d of one product per cart", apperr.ErrInvalidInput, MaxQuantity)
	}
	return c.apply(ctx, func(items []Item) ([]Item, bool, error) {
		i := indexOf(items, productID)
		switch {
		case i < 0 && qty <= 0:
			return items, false, nil
		case i < 0:
			return nil, false, fmt.Errorf("%w: %s", ErrItemNotFound, productID)
		case qty <= 0:
			return append(items[:i], items[i+1:]...), true, nil
		default:
			items[i].Quantity = qty
			return items, true, nil
		}
	})
}

func (c *Cart) Remove(ctx context.Context, productID string) error {
	return c.UpdateQuantity(ctx, productID, 0)
}

func (c *Cart) Clear(ctx context.Context) error {
	return c.apply(ctx, func(items []Item) ([]Item, bool, error) {
		return []Item{}, len(items) > 0, nil
	})
}

// Items returns a copy of the lines in cart order.
func (c *Cart) Items() []Item {
	c.mu.Lock()
	defer c.mu.Unlock()
	return copyItems(c.items)
}

// Count is the total number of units.
func (c *Cart) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, it := range c.items {
		n += it.Quantity
	}
	return n
}

func (c *Cart) Total() decimal.Decimal {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := decimal.Zero
	for _, it := range c.items {
		total = total.Add(it.Subtotal())
	}
	return total
}

// GroupBySeller partitions the items by seller. Groups come in the order
// their seller first appears; items keep their cart order.
func (c *Cart) GroupBySeller() []Group {
	return GroupBySeller(c.Items())
}

func GroupBySeller(items []Item) []Group {
	var groups []Group
	pos := map[string]int{}
	for _, it := range items {
		i, ok := pos[it.SellerID]
		if !ok {
			i = len(groups)
			pos[it.SellerID] = i
			groups = append(groups, Group{SellerID: it.SellerID, SellerName: it.SellerName})
		}
		groups[i].Items = append(groups[i].Items, it)
	}
	return groups
}

// Subscribe registers fn for every committed change. The returned function
// removes it.
func (c *Cart) Subscribe(fn func([]Item)) (unsubscribe func()) {
	c.mu.Lock()
	c.nextSub++
	id := c.nextSub
	c.subs[id] = fn
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs, id)
			c.mu.Unlock()
		})
	}
}

// Subscribers reports how many listeners are registered.
func (c *Cart) Subscribers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subs)
}
