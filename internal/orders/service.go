package orders

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/ariefcatur/go-clothing-orders/internal/apperr"
	"github.com/ariefcatur/go-clothing-orders/internal/auth"
	"github.com/ariefcatur/go-clothing-orders/internal/events"
	"github.com/ariefcatur/go-clothing-orders/internal/inventory"
	"github.com/ariefcatur/go-clothing-orders/internal/logger"
	"github.com/ariefcatur/go-clothing-orders/internal/metrics"
	"github.com/ariefcatur/go-clothing-orders/internal/tracing"
)

const tracerName = "orders"

type ItemInput struct {
	VariantID string `json:"variant_id"`
	Quantity  int    `json:"quantity"`
}

type PlaceOrderInput struct {
	// CustomerID defaults to the caller. Only admins may place orders for
	// someone else.
	CustomerID    string        `json:"customer_id,omitempty"`
	Items         []ItemInput   `json:"items"`
	Shipping      ShippingInfo  `json:"shipping"`
	PaymentMethod PaymentMethod `json:"payment_method"`
	IsGift        bool          `json:"is_gift"`
	GiftMessage   string        `json:"gift_message,omitempty"`
	DiscountCode  string        `json:"discount_code,omitempty"`
}

type TransitionInput struct {
	Reason         string `json:"reason,omitempty"`
	TrackingNumber string `json:"tracking_number,omitempty"`
}

type Service struct {
	UoW         UnitOfWork
	Ledger      *inventory.Ledger
	Pricing     Pricing
	Events      events.Publisher
	ServiceName string
	Attempts    int
	Now         func() time.Time
}

func NewService(uow UnitOfWork, pub events.Publisher, serviceName string) *Service {
	if pub == nil {
		pub = events.Nop{}
	}
	return &Service{
		UoW:         uow,
		Ledger:      inventory.NewLedger(),
		Pricing:     DefaultPricing(),
		Events:      pub,
		ServiceName: serviceName,
		Attempts:    2,
		Now:         time.Now,
	}
}

// PlaceOrder turns a cart into a Pending order. Every line is reserved in the
// same unit of work as the order insert, so a shortage on any line leaves no
// reservation and no order behind.
func (s *Service) PlaceOrder(ctx context.Context, actor auth.Actor, in PlaceOrderInput) (order *Order, err error) {
	ctx, span := tracing.Start(ctx, tracerName, "orders.PlaceOrder", attribute.Int("items", len(in.Items)))
	defer func() {
		metrics.OrdersPlaced.WithLabelValues(metrics.Result(err)).Inc()
		tracing.End(span, err)
	}()

	if in.CustomerID == "" {
		in.CustomerID = actor.ID
	}
	if !actor.IsAdmin() && !actor.Owns(in.CustomerID) {
		return nil, apperr.New(apperr.KindForbidden, "cannot place an order for another customer")
	}
	items, err := validatePlaceOrder(&in)
	if err != nil {
		return nil, err
	}

	var changes []inventory.Change
	err = s.run(ctx, "place_order", func(ctx context.Context, r Repository) error {
		changes = changes[:0]
		now := s.Now().UTC()

		o, err := s.buildOrder(ctx, r, in, items, now)
		if err != nil {
			return err
		}
		ref := inventory.Ref{OrderID: o.ID, ActorID: actor.ID, Reason: "order " + o.Number + " placed"}
		for _, l := range o.Lines {
			ch, err := s.Ledger.Reserve(ctx, r, l.VariantID, l.Quantity, ref)
			if err != nil {
				return err
			}
			changes = append(changes, ch)
		}
		if err := r.InsertOrder(ctx, o); err != nil {
			return err
		}
		order = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx).
		Str("order_id", order.ID).
		Str("order_number", order.Number).
		Str("customer_id", order.CustomerID).
		Str("total", order.Total.StringFixed(2)).
		Msg("order placed")
	s.publishPlaced(ctx, order, changes)
	return order, nil
}

func validatePlaceOrder(in *PlaceOrderInput) ([]ItemInput, error) {
	if len(in.Items) == 0 {
		return nil, apperr.New(apperr.KindEmptyCart, "cart is empty")
	}
	merged := make(map[string]int, len(in.Items))
	for _, it := range in.Items {
		if it.VariantID == "" {
			return nil, apperr.New(apperr.KindInvalidInput, "item variant id is required")
		}
		if it.Quantity <= 0 {
			return nil, apperr.New(apperr.KindInvalidInput, "variant %s: quantity must be positive", it.VariantID)
		}
		merged[it.VariantID] += it.Quantity
	}
	if !in.PaymentMethod.Valid() {
		return nil, apperr.New(apperr.KindInvalidInput, "unknown payment method %q", in.PaymentMethod)
	}
	if err := validateShipping(in.Shipping); err != nil {
		return nil, err
	}
	if !in.IsGift {
		in.GiftMessage = ""
	}

	// sorted so locks are always taken in the same order
	items := make([]ItemInput, 0, len(merged))
	for id, qty := range merged {
		items = append(items, ItemInput{VariantID: id, Quantity: qty})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].VariantID < items[j].VariantID })
	return items, nil
}

func validateShipping(sh ShippingInfo) error {
	required := []struct{ name, value string }{
		{"full name", sh.FullName},
		{"address line 1", sh.AddressLine1},
		{"city", sh.City},
		{"postal code", sh.PostalCode},
		{"country", sh.Country},
	}
	var missing []string
	for _, f := range required {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return apperr.New(apperr.KindInvalidInput, "shipping %s required", strings.Join(missing, ", "))
	}
	return nil
}

func (s *Service) buildOrder(ctx context.Context, r Repository, in PlaceOrderInput, items []ItemInput, now time.Time) (*Order, error) {
	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.VariantID
	}
	variants, err := r.GetVariants(ctx, ids)
	if err != nil {
		return nil, err
	}

	o := &Order{
		ID:            uuid.NewString(),
		Number:        NewOrderNumber(now),
		CustomerID:    in.CustomerID,
		Status:        StatusPending,
		ShipTo:        in.Shipping,
		PaymentMethod: in.PaymentMethod,
		PaymentStatus: PaymentUnpaid,
		IsGift:        in.IsGift,
		GiftMessage:   in.GiftMessage,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	for _, it := range items {
		v, ok := variants[it.VariantID]
		if !ok || !v.Active {
			return nil, apperr.New(apperr.KindInvalidInput, "variant %s is not available for sale", it.VariantID)
		}
		o.Lines = append(o.Lines, LineItem{
			ID:          uuid.NewString(),
			VariantID:   v.ID,
			ProductName: v.ProductName,
			SKU:         v.SKU,
			ColorName:   v.ColorName,
			SizeName:    v.SizeName,
			Quantity:    it.Quantity,
			UnitPrice:   v.Price,
			LineTotal:   v.Price.Mul(decimalInt(it.Quantity)),
		})
	}

	var code *DiscountCode
	if c := strings.TrimSpace(in.DiscountCode); c != "" {
		code, err = r.GetDiscountCode(ctx, c)
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, apperr.New(apperr.KindInvalidInput, "unknown discount code %s", c)
		}
		if err != nil {
			return nil, err
		}
		o.DiscountCode = code.Code
	}
	t, err := s.Pricing.Compute(o.Lines, code, now)
	if err != nil {
		return nil, err
	}
	o.Subtotal, o.Shipping, o.Tax, o.Discount, o.Total = t.Subtotal, t.Shipping, t.Tax, t.Discount, t.Total
	return o, nil
}

// Transition fires event on the order. The order is read under lock, the
// event is resolved against its current status, and the stock effect for
// every line is applied in the same unit of work as the status change.
func (s *Service) Transition(ctx context.Context, actor auth.Actor, orderID string, event Event, in TransitionInput) (order *Order, err error) {
	ctx, span := tracing.Start(ctx, tracerName, "orders.Transition",
		attribute.String("order_id", orderID), attribute.String("event", string(event)))
	defer func() {
		metrics.OrderTransitions.WithLabelValues(string(event), metrics.Result(err)).Inc()
		tracing.End(span, err)
	}()

	var (
		step    Step
		changes []inventory.Change
	)
	err = s.run(ctx, string(event), func(ctx context.Context, r Repository) error {
		changes = changes[:0]
		o, err := r.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if !visible(o, actor) {
			return apperr.New(apperr.KindNotFound, "order %s not found", orderID)
		}
		step, err = Next(o, event, actor)
		if err != nil {
			return err
		}
		effect := step.Effect
		if step.To == StatusCancelled {
			if effect, err = reversalFor(step.From); err != nil {
				return err
			}
		}
		if err := s.applyInput(o, step, in); err != nil {
			return err
		}

		ref := inventory.Ref{OrderID: o.ID, ActorID: actor.ID, Reason: string(event) + " order " + o.Number}
		for _, l := range sortedLines(o.Lines) {
			ch, err := s.applyEffect(ctx, r, effect, l, ref)
			if err != nil {
				return err
			}
			if ch != nil {
				changes = append(changes, *ch)
			}
		}
		if err := r.UpdateOrder(ctx, o); err != nil {
			return err
		}
		order = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx).
		Str("order_id", order.ID).
		Str("event", string(event)).
		Str("from", string(step.From)).
		Str("to", string(step.To)).
		Str("actor_id", actor.ID).
		Msg("order transitioned")
	s.publishTransition(ctx, order, step, actor, in.Reason, changes)
	return order, nil
}

// applyInput records the event's bookkeeping fields on o.
func (s *Service) applyInput(o *Order, step Step, in TransitionInput) error {
	now := s.Now().UTC()
	switch step.Event {
	case EventRequestCancellation:
		reason := strings.TrimSpace(in.Reason)
		if reason == "" {
			return apperr.New(apperr.KindInvalidInput, "a cancellation reason is required")
		}
		o.CancellationReason = reason
		o.CancellationRequestedAt = &now
	case EventShip:
		o.TrackingNumber = strings.TrimSpace(in.TrackingNumber)
		o.ShippedAt = &now
	case EventConfirmDelivery:
		o.DeliveredAt = &now
		if o.PaymentMethod == PaymentCOD {
			o.PaymentStatus = PaymentPaid
		}
	}
	if step.To == StatusCancelled {
		if r := strings.TrimSpace(in.Reason); r != "" {
			o.CancellationReason = r
		}
		o.CancelledAt = &now
	}
	o.Status = step.To
	o.UpdatedAt = now
	return nil
}

func (s *Service) applyEffect(ctx context.Context, r Repository, effect Effect, l LineItem, ref inventory.Ref) (*inventory.Change, error) {
	var (
		ch  inventory.Change
		err error
	)
	switch effect {
	case EffectNone:
		return nil, nil
	case EffectCommit:
		ch, err = s.Ledger.Commit(ctx, r, l.VariantID, l.Quantity, ref)
	case EffectRelease:
		ch, err = s.Ledger.Release(ctx, r, l.VariantID, l.Quantity, ref)
	case EffectRestore:
		ch, err = s.Ledger.Restore(ctx, r, l.VariantID, l.Quantity, ref)
	}
	if err != nil {
		return nil, err
	}
	return &ch, nil
}

func (s *Service) Approve(ctx context.Context, actor auth.Actor, orderID string) (*Order, error) {
	if err := requireAdmin(actor, EventApprove); err != nil {
		return nil, err
	}
	return s.Transition(ctx, actor, orderID, EventApprove, TransitionInput{})
}

func (s *Service) Ship(ctx context.Context, actor auth.Actor, orderID, trackingNumber string) (*Order, error) {
	if err := requireAdmin(actor, EventShip); err != nil {
		return nil, err
	}
	return s.Transition(ctx, actor, orderID, EventShip, TransitionInput{TrackingNumber: trackingNumber})
}

// ConfirmDelivery marks a shipped order delivered. The owning customer may
// confirm receipt as well as an admin.
func (s *Service) ConfirmDelivery(ctx context.Context, actor auth.Actor, orderID string) (*Order, error) {
	return s.Transition(ctx, actor, orderID, EventConfirmDelivery, TransitionInput{})
}

func (s *Service) ApproveCancellation(ctx context.Context, actor auth.Actor, orderID string) (*Order, error) {
	if err := requireAdmin(actor, EventApproveCancellation); err != nil {
		return nil, err
	}
	return s.Transition(ctx, actor, orderID, EventApproveCancellation, TransitionInput{})
}

func (s *Service) CancelByAdmin(ctx context.Context, actor auth.Actor, orderID, reason string) (*Order, error) {
	if err := requireAdmin(actor, EventCancel); err != nil {
		return nil, err
	}
	return s.Transition(ctx, actor, orderID, EventCancel, TransitionInput{Reason: reason})
}

// ForceCancel cancels a shipped order and puts its stock back on hand.
func (s *Service) ForceCancel(ctx context.Context, actor auth.Actor, orderID, reason string) (*Order, error) {
	if err := requireAdmin(actor, EventForceCancel); err != nil {
		return nil, err
	}
	return s.Transition(ctx, actor, orderID, EventForceCancel, TransitionInput{Reason: reason})
}

func (s *Service) CancelByCustomer(ctx context.Context, actor auth.Actor, orderID string) (*Order, error) {
	return s.Transition(ctx, actor, orderID, EventCancel, TransitionInput{Reason: "cancelled by customer"})
}

func (s *Service) RequestCancellation(ctx context.Context, actor auth.Actor, orderID, reason string) (*Order, error) {
	return s.Transition(ctx, actor, orderID, EventRequestCancellation, TransitionInput{Reason: reason})
}

func (s *Service) GetOrder(ctx context.Context, actor auth.Actor, orderID string) (*Order, error) {
	var o *Order
	err := s.UoW.RunInTx(ctx, func(ctx context.Context, r Repository) error {
		var err error
		o, err = r.GetOrder(ctx, orderID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if !visible(o, actor) {
		return nil, apperr.New(apperr.KindNotFound, "order %s not found", orderID)
	}
	return o, nil
}

// ListOrders returns orders newest first. Customers only ever see their own.
func (s *Service) ListOrders(ctx context.Context, actor auth.Actor, f ListFilter) ([]Order, error) {
	switch {
	case actor.IsAdmin():
	case actor.ID != "":
		f.CustomerID = actor.ID
	default:
		return nil, apperr.New(apperr.KindForbidden, "listing orders requires a signed-in caller")
	}
	if f.Status != "" && !f.Status.Valid() {
		return nil, apperr.New(apperr.KindInvalidInput, "unknown status %q", f.Status)
	}
	var out []Order
	err := s.UoW.RunInTx(ctx, func(ctx context.Context, r Repository) error {
		var err error
		out, err = r.ListOrders(ctx, f)
		return err
	})
	return out, err
}

func (s *Service) run(ctx context.Context, op string, fn func(ctx context.Context, r Repository) error) error {
	return apperr.RetryOnConflict(ctx, s.Attempts, func() error {
		return s.UoW.RunInTx(ctx, fn)
	}, func(attempt int, err error) {
		metrics.ConflictRetries.WithLabelValues(op).Inc()
		logger.Warn(ctx).Err(err).Str("operation", op).Int("attempt", attempt).Msg("retrying after concurrent modification")
	})
}

func requireAdmin(actor auth.Actor, event Event) error {
	if !actor.IsAdmin() {
		return apperr.New(apperr.KindForbidden, "%s requires the admin role", event)
	}
	return nil
}

// visible hides other customers' orders behind NotFound.
func visible(o *Order, actor auth.Actor) bool {
	return actor.IsAdmin() || actor.Owns(o.CustomerID)
}

func sortedLines(lines []LineItem) []LineItem {
	out := append([]LineItem(nil), lines...)
	sort.Slice(out, func(i, j int) bool { return out[i].VariantID < out[j].VariantID })
	return out
}
