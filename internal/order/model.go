package order

import (
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPlaced         Status = "placed"
	StatusConfirmed      Status = "confirmed"
	StatusReadyForPickup Status = "ready_for_pickup"
	StatusCompleted      Status = "completed"
	StatusCancelled      Status = "cancelled"
)

type PaymentMethod string

const (
	PayCashOnPickup   PaymentMethod = "cash_on_pickup"
	PayCashOnDelivery PaymentMethod = "cash_on_delivery"
	PayEWallet        PaymentMethod = "e_wallet"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PayCashOnPickup, PayCashOnDelivery, PayEWallet:
		return true
	}
	return false
}

// HasSurcharge reports whether the method carries the flat delivery fee.
func (m PaymentMethod) HasSurcharge() bool { return m == PayCashOnDelivery }

type Order struct {
	ID               string          `json:"id"                         bson:"_id"`
	CustomerID       string          `json:"customerId"                 bson:"customerId"`
	CustomerName     string          `json:"customerName"               bson:"customerName"`
	SellerID         string          `json:"sellerId"                   bson:"sellerId"`
	SellerName       string          `json:"sellerName"                 bson:"sellerName"`
	Items            []Item          `json:"items"                      bson:"items"`
	Subtotal         decimal.Decimal `json:"subtotal"                   bson:"subtotal"`
	DeliveryFee      decimal.Decimal `json:"deliveryFee"                bson:"deliveryFee"`
	TotalPrice       decimal.Decimal `json:"totalPrice"                 bson:"totalPrice"`
	Status           Status          `json:"status"                     bson:"status"`
	PaymentMethod    PaymentMethod   `json:"paymentMethod"              bson:"paymentMethod"`
	PickupLocation   string          `json:"pickupLocation,omitempty"   bson:"pickupLocation,omitempty"`
	Notes            string          `json:"notes,omitempty"            bson:"notes,omitempty"`
	ContactNumber    string          `json:"contactNumber,omitempty"    bson:"contactNumber,omitempty"`
	PaymentReference string          `json:"paymentReference,omitempty" bson:"paymentReference,omitempty"`
	CreatedAt        time.Time       `json:"createdAt"                  bson:"createdAt"`
	UpdatedAt        time.Time       `json:"updatedAt"                  bson:"updatedAt"`
}

func (o Order) SortKey() (time.Time, string) { return o.CreatedAt, o.ID }

// Item is a snapshot of the product at checkout; later product edits do
// not change it.
type Item struct {
	ProductID string          `json:"productId" bson:"productId"`
	Name      string          `json:"name"      bson:"name"`
	Image     string          `json:"image"     bson:"image"`
	Quantity  int             `json:"quantity"  bson:"quantity"`
	Price     decimal.Decimal `json:"price"     bson:"price"`
}

func (it Item) Subtotal() decimal.Decimal {
	return it.Price.Mul(decimal.NewFromInt(int64(it.Quantity)))
}

// ItemsTotal sums price x quantity over items.
func ItemsTotal(items []Item) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.Subtotal())
	}
	return total
}
