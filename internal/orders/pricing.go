package orders

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/ariefcatur/go-clothing-orders/internal/apperr"
)

// DefaultShippingFee is the flat fee charged on every order.
var DefaultShippingFee = decimal.NewFromInt(30000)

type Pricing struct {
	ShippingFee decimal.Decimal
	// TaxRate is applied to the discounted subtotal, e.g. 0.11 for 11%.
	TaxRate decimal.Decimal
}

func DefaultPricing() Pricing {
	return Pricing{ShippingFee: DefaultShippingFee, TaxRate: decimal.Zero}
}

type Totals struct {
	Subtotal decimal.Decimal
	Shipping decimal.Decimal
	Tax      decimal.Decimal
	Discount decimal.Decimal
	Total    decimal.Decimal
}

// Compute prices lines, applying code when non-nil. Money is rounded to two
// places; the discount never exceeds the subtotal.
func (p Pricing) Compute(lines []LineItem, code *DiscountCode, now time.Time) (Totals, error) {
	subtotal := decimal.Zero
	for _, l := range lines {
		subtotal = subtotal.Add(l.LineTotal)
	}

	discount := decimal.Zero
	if code != nil {
		d, err := code.Apply(subtotal, now)
		if err != nil {
			return Totals{}, err
		}
		discount = d
	}

	tax := subtotal.Sub(discount).Mul(p.TaxRate).Round(2)
	t := Totals{
		Subtotal: subtotal.Round(2),
		Shipping: p.ShippingFee.Round(2),
		Tax:      tax,
		Discount: discount.Round(2),
	}
	t.Total = t.Subtotal.Add(t.Shipping).Add(t.Tax).Sub(t.Discount)
	return t, nil
}

// Apply returns the discount code takes off subtotal at now.
func (d DiscountCode) Apply(subtotal decimal.Decimal, now time.Time) (decimal.Decimal, error) {
	if !d.Active {
		return decimal.Zero, apperr.New(apperr.KindInvalidInput, "discount code %s is not active", d.Code)
	}
	if (!d.StartsAt.IsZero() && now.Before(d.StartsAt)) || (!d.EndsAt.IsZero() && now.After(d.EndsAt)) {
		return decimal.Zero, apperr.New(apperr.KindInvalidInput, "discount code %s is not valid at this time", d.Code)
	}
	if subtotal.LessThan(d.MinimumOrder) {
		return decimal.Zero, apperr.New(apperr.KindInvalidInput,
			"discount code %s requires a minimum order of %s", d.Code, d.MinimumOrder.StringFixed(2))
	}

	var amount decimal.Decimal
	switch d.Type {
	case DiscountPercentage:
		amount = subtotal.Mul(d.Value).Div(decimal.NewFromInt(100)).Round(2)
	case DiscountFixedAmount:
		amount = d.Value
	default:
		return decimal.Zero, apperr.New(apperr.KindInvalidInput, "discount code %s has unknown type %q", d.Code, d.Type)
	}
	if amount.IsNegative() {
		amount = decimal.Zero
	}
	if amount.GreaterThan(subtotal) {
		amount = subtotal
	}
	return amount, nil
}
