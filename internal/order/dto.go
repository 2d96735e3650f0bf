package order

// CheckoutRequest is the delivery and payment form submitted with the cart.
// swagger:model CheckoutRequest
type CheckoutRequest struct {
	PaymentMethod    PaymentMethod `json:"paymentMethod"    validate:"required"       example:"cash_on_pickup"`
	PickupLocation   string        `json:"pickupLocation"   validate:"max=200"        example:"Main library lobby"`
	Notes            string        `json:"notes"            validate:"max=500"        example:"After 3pm please"`
	ContactNumber    string        `json:"contactNumber"    validate:"omitempty,max=32" example:"+63 917 555 0101"`
	PaymentReference string        `json:"paymentReference" validate:"max=64"         example:"GC-12345678"`
}

// CheckoutResponse lists the orders created, one per seller.
// swagger:model CheckoutResponse
type CheckoutResponse struct {
	Orders     []Order `json:"orders"`
	GrandTotal string  `json:"grandTotal" example:"720.00"`
}

// StatusRequest asks for a status transition.
// swagger:model StatusRequest
type StatusRequest struct {
	Status Status `json:"status" validate:"required" example:"confirmed"`
}

// ListResponse wraps an order listing.
// swagger:model OrderListResponse
type ListResponse struct {
	Items []Order `json:"items"`
}

// Detail is a single order together with the statuses it can move to, so
// clients can offer only the valid actions.
// swagger:model OrderDetail
type Detail struct {
	Order
	Next     []Status `json:"next"`
	Terminal bool     `json:"terminal"`
}

func NewDetail(o *Order) Detail {
	next := Next(o.Status)
	if next == nil {
		next = []Status{}
	}
	return Detail{Order: *o, Next: next, Terminal: o.Status.Terminal()}
}
