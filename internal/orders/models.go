package orders

import (
	"time"

	"github.com/shopspring/decimal"
)

type PaymentMethod string

const (
	PaymentCOD          PaymentMethod = "COD"
	PaymentBankTransfer PaymentMethod = "BankTransfer"
	PaymentCreditCard   PaymentMethod = "CreditCard"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCOD, PaymentBankTransfer, PaymentCreditCard:
		return true
	}
	return false
}

type PaymentStatus string

const (
	PaymentUnpaid PaymentStatus = "Unpaid"
	PaymentPaid   PaymentStatus = "Paid"
)

// Variant is the catalog view used to snapshot a line item at checkout.
type Variant struct {
	ID          string
	ProductName string
	SKU         string
	ColorName   string
	SizeName    string
	Price       decimal.Decimal
	Active      bool
}

type ShippingInfo struct {
	FullName     string `json:"full_name"`
	Phone        string `json:"phone,omitempty"`
	AddressLine1 string `json:"address_line1"`
	AddressLine2 string `json:"address_line2,omitempty"`
	City         string `json:"city"`
	PostalCode   string `json:"postal_code"`
	Country      string `json:"country"`
}

// LineItem is an immutable snapshot of a purchased variant.
type LineItem struct {
	ID          string          `json:"id"`
	VariantID   string          `json:"variant_id"`
	ProductName string          `json:"product_name"`
	SKU         string          `json:"sku"`
	ColorName   string          `json:"color_name"`
	SizeName    string          `json:"size_name"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	LineTotal   decimal.Decimal `json:"line_total"`
}

type Order struct {
	ID                      string          `json:"id"`
	Number                  string          `json:"order_number"`
	CustomerID              string          `json:"customer_id"`
	Status                  Status          `json:"status"`
	Lines                   []LineItem      `json:"lines"`
	Subtotal                decimal.Decimal `json:"subtotal"`
	Shipping                decimal.Decimal `json:"shipping_fee"`
	Tax                     decimal.Decimal `json:"tax"`
	Discount                decimal.Decimal `json:"discount"`
	Total                   decimal.Decimal `json:"total"`
	DiscountCode            string          `json:"discount_code,omitempty"`
	ShipTo                  ShippingInfo    `json:"shipping"`
	PaymentMethod           PaymentMethod   `json:"payment_method"`
	PaymentStatus           PaymentStatus   `json:"payment_status"`
	IsGift                  bool            `json:"is_gift"`
	GiftMessage             string          `json:"gift_message,omitempty"`
	CancellationReason      string          `json:"cancellation_reason,omitempty"`
	CancellationRequestedAt *time.Time      `json:"cancellation_requested_at,omitempty"`
	CancelledAt             *time.Time      `json:"cancelled_at,omitempty"`
	TrackingNumber          string          `json:"tracking_number,omitempty"`
	ShippedAt               *time.Time      `json:"shipped_at,omitempty"`
	DeliveredAt             *time.Time      `json:"delivered_at,omitempty"`
	CreatedAt               time.Time       `json:"created_at"`
	UpdatedAt               time.Time       `json:"updated_at"`
	Version                 int64           `json:"version"`
}

// Clone returns a deep copy; stores hand out clones so callers never alias
// persisted state.
func (o *Order) Clone() *Order {
	c := *o
	c.Lines = append([]LineItem(nil), o.Lines...)
	c.CancellationRequestedAt = cloneTime(o.CancellationRequestedAt)
	c.CancelledAt = cloneTime(o.CancelledAt)
	c.ShippedAt = cloneTime(o.ShippedAt)
	c.DeliveredAt = cloneTime(o.DeliveredAt)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

type DiscountType string

const (
	DiscountPercentage  DiscountType = "Percentage"
	DiscountFixedAmount DiscountType = "FixedAmount"
)

type DiscountCode struct {
	Code         string
	Type         DiscountType
	Value        decimal.Decimal
	MinimumOrder decimal.Decimal
	StartsAt     time.Time
	EndsAt       time.Time
	Active       bool
}

// ListFilter narrows ListOrders. Zero values mean "any".
type ListFilter struct {
	CustomerID string
	Status     Status
	Limit      int
	Offset     int
}
