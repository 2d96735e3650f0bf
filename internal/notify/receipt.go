package notify

import (
	"bytes"
	"context"
	"fmt"
	"html/template"

	"github.com/RoyceAzure/rj/infra/mail"
	"github.com/shopspring/decimal"
)

type ReceiptLine struct {
	Name     string          `json:"name"`
	Quantity int             `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
	Subtotal decimal.Decimal `json:"subtotal"`
}

type ReceiptOrder struct {
	OrderID     string          `json:"orderId"`
	SellerName  string          `json:"sellerName"`
	Lines       []ReceiptLine   `json:"lines"`
	DeliveryFee decimal.Decimal `json:"deliveryFee"`
	Total       decimal.Decimal `json:"total"`
}

// Receipt covers every order created by one checkout.
type Receipt struct {
	CustomerID     string          `json:"customerId"`
	CustomerName   string          `json:"customerName"`
	CustomerEmail  string          `json:"customerEmail"`
	PaymentMethod  string          `json:"paymentMethod"`
	PickupLocation string          `json:"pickupLocation,omitempty"`
	Orders         []ReceiptOrder  `json:"orders"`
	GrandTotal     decimal.Decimal `json:"grandTotal"`
}

// StatusUpdate is mailed when an order changes status.
type StatusUpdate struct {
	OrderID        string `json:"orderId"`
	RecipientID    string `json:"recipientId"`
	RecipientEmail string `json:"recipientEmail,omitempty"`
	RecipientName  string `json:"recipientName"`
	Status         string `json:"status"`
	SellerName     string `json:"sellerName"`
}

var (
	receiptTmpl = template.Must(template.New("receipt").Parse(receiptTemplate))
	statusTmpl  = template.Must(template.New("status").Parse(statusTemplate))
)

func RenderReceipt(r Receipt) (string, error) {
	var buf bytes.Buffer
	if err := receiptTmpl.Execute(&buf, r); err != nil {
		return "", fmt.Errorf("render receipt: %w", err)
	}
	return buf.String(), nil
}

func RenderStatusUpdate(u StatusUpdate) (string, error) {
	var buf bytes.Buffer
	if err := statusTmpl.Execute(&buf, u); err != nil {
		return "", fmt.Errorf("render status update: %w", err)
	}
	return buf.String(), nil
}

// ReceiptSender delivers checkout receipts.
type ReceiptSender interface {
	SendReceipt(ctx context.Context, r Receipt) error
}

type emailSender interface {
	SendEmail(subject, content string, to, cc, bcc, attachFiles []string) error
}

// Mailer sends receipts and status updates by email.
type Mailer struct {
	sender emailSender
}

func NewMailer(senderName, address, password string) *Mailer {
	return &Mailer{sender: mail.NewGmailSender(senderName, address, password)}
}

func newMailerWith(sender emailSender) *Mailer { return &Mailer{sender: sender} }

func (m *Mailer) SendReceipt(ctx context.Context, r Receipt) error {
	if r.CustomerEmail == "" {
		return fmt.Errorf("receipt for %s has no email address", r.CustomerID)
	}
	html, err := RenderReceipt(r)
	if err != nil {
		return err
	}
	return m.sender.SendEmail("Your Campus Market order receipt", html, []string{r.CustomerEmail}, nil, nil, nil)
}

func (m *Mailer) SendStatusUpdate(ctx context.Context, u StatusUpdate) error {
	if u.RecipientEmail == "" {
		return fmt.Errorf("status update for %s has no email address", u.RecipientID)
	}
	html, err := RenderStatusUpdate(u)
	if err != nil {
		return err
	}
	subject := fmt.Sprintf("Order %s is now %s", u.OrderID, u.Status)
	return m.sender.SendEmail(subject, html, []string{u.RecipientEmail}, nil, nil, nil)
}

// EventReceipts hands receipts to the notifier service through the events
// topic instead of mailing them in-process.
type EventReceipts struct {
	pub Publisher
}

func NewEventReceipts(pub Publisher) *EventReceipts { return &EventReceipts{pub: pub} }

func (e *EventReceipts) SendReceipt(ctx context.Context, r Receipt) error {
	ev, err := NewEvent(EventOrderReceipt, r.CustomerID, r)
	if err != nil {
		return err
	}
	return e.pub.Publish(ctx, ev)
}

const receiptTemplate = `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>Order receipt</title>
    <style>
        body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
        .container { max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { background-color: #1f6f43; color: white; padding: 20px; text-align: center; }
        table { width: 100%; border-collapse: collapse; margin: 10px 0 20px; }
        th, td { padding: 6px; border-bottom: 1px solid #ddd; text-align: left; }
        .total { font-weight: bold; }
    </style>
</head>
<body>
    <div class="container">
        <div class="header"><h1>Thanks for your order, {{.CustomerName}}</h1></div>
        <p>Payment method: {{.PaymentMethod}}{{if .PickupLocation}} &middot; Pickup at {{.PickupLocation}}{{end}}</p>
        {{range .Orders}}
        <h3>Order {{.OrderID}} from {{.SellerName}}</h3>
        <table>
            <tr><th>Item</th><th>Qty</th><th>Price</th><th>Subtotal</th></tr>
            {{range .Lines}}<tr><td>{{.Name}}</td><td>{{.Quantity}}</td><td>{{.Price.StringFixed 2}}</td><td>{{.Subtotal.StringFixed 2}}</td></tr>
            {{end}}
            {{if .DeliveryFee.IsPositive}}<tr><td colspan="3">Delivery fee</td><td>{{.DeliveryFee.StringFixed 2}}</td></tr>{{end}}
            <tr class="total"><td colspan="3">Total</td><td>{{.Total.StringFixed 2}}</td></tr>
        </table>
        {{end}}
        <p class="total">Grand total: {{.GrandTotal.StringFixed 2}}</p>
    </div>
</body>
</html>
`

const statusTemplate = `<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"><title>Order update</title></head>
<body style="font-family: Arial, sans-serif; color: #333;">
    <p>Hi {{.RecipientName}},</p>
    <p>Your order <strong>{{.OrderID}}</strong> with {{.SellerName}} is now <strong>{{.Status}}</strong>.</p>
</body>
</html>
`
