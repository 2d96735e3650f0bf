package cart

import "github.com/shopspring/decimal"

// AddRequest puts a product in the cart. Price and seller come from the
// catalog, never from the client.
// swagger:model AddToCartRequest
type AddRequest struct {
	ProductID string `json:"productId" validate:"required"        example:"4e7d4e5c-5cb9-4a3f-9f21-7e1a4f9f2b2a"`
	Quantity  int    `json:"quantity"  validate:"gt=0,lte=999" example:"1"`
}

// QuantityRequest sets a line's quantity; zero or less removes it.
// swagger:model CartQuantityRequest
type QuantityRequest struct {
	Quantity int `json:"quantity" example:"2"`
}

// View is the cart as returned to clients.
// swagger:model CartView
type View struct {
	Items  []Item          `json:"items"`
	Groups []Group         `json:"groups"`
	Count  int             `json:"count"`
	Total  decimal.Decimal `json:"total"`
}

// NewView builds the client view of items.
func NewView(items []Item) View {
	v := View{Items: items, Groups: GroupBySeller(items), Total: decimal.Zero}
	if v.Items == nil {
		v.Items = []Item{}
	}
	if v.Groups == nil {
		v.Groups = []Group{}
	}
	for _, it := range items {
		v.Count += it.Quantity
		v.Total = v.Total.Add(it.Subtotal())
	}
	return v
}
