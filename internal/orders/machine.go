package orders

import (
	"github.com/ariefcatur/go-clothing-orders/internal/apperr"
	"github.com/ariefcatur/go-clothing-orders/internal/auth"
)

type Event string

const (
	EventApprove             Event = "approve"
	EventCancel              Event = "cancel"
	EventRequestCancellation Event = "request_cancellation"
	EventApproveCancellation Event = "approve_cancellation"
	EventShip                Event = "ship"
	EventConfirmDelivery     Event = "confirm_delivery"
	EventForceCancel         Event = "force_cancel"
)

// Effect is the stock side effect applied to every line of an order when a
// transition fires.
type Effect int

const (
	EffectNone Effect = iota
	EffectCommit
	EffectRelease
	EffectRestore
)

func (e Effect) String() string {
	switch e {
	case EffectCommit:
		return "commit"
	case EffectRelease:
		return "release"
	case EffectRestore:
		return "restore"
	}
	return "none"
}

// who may fire an event
type allow uint8

const (
	allowAdmin allow = 1 << iota
	allowOwner
)

type ruleKey struct {
	from  Status
	event Event
}

type rule struct {
	to     Status
	effect Effect
	allow  allow
}

var rules = map[ruleKey]rule{
	{StatusPending, EventApprove}:                         {to: StatusProcessing, effect: EffectCommit, allow: allowAdmin},
	{StatusPending, EventCancel}:                          {to: StatusCancelled, effect: EffectRelease, allow: allowAdmin | allowOwner},
	{StatusPending, EventRequestCancellation}:             {to: StatusPendingCancellation, allow: allowOwner},
	{StatusPendingCancellation, EventApproveCancellation}: {to: StatusCancelled, effect: EffectRelease, allow: allowAdmin},
	{StatusProcessing, EventShip}:                         {to: StatusShipped, allow: allowAdmin},
	{StatusShipped, EventConfirmDelivery}:                 {to: StatusDelivered, allow: allowAdmin | allowOwner},
	{StatusShipped, EventForceCancel}:                     {to: StatusCancelled, effect: EffectRestore, allow: allowAdmin},
}

// Step is a resolved transition.
type Step struct {
	From   Status
	To     Status
	Event  Event
	Effect Effect
}

// Next resolves event against the order's current status. Undefined pairs
// fail with InvalidTransition; a caller the rule does not admit fails with
// Forbidden. Nothing is mutated.
func Next(o *Order, event Event, actor auth.Actor) (Step, error) {
	r, ok := rules[ruleKey{o.Status, event}]
	if !ok {
		if !knownEvent(event) {
			return Step{}, apperr.New(apperr.KindInvalidInput, "unknown event %q", event)
		}
		return Step{}, apperr.New(apperr.KindInvalidTransition,
			"order %s: cannot %s from %s", o.Number, event, o.Status)
	}
	if !permitted(r.allow, o, actor) {
		return Step{}, apperr.New(apperr.KindForbidden, "%s is not allowed for this caller", event)
	}
	return Step{From: o.Status, To: r.to, Event: event, Effect: r.effect}, nil
}

func permitted(a allow, o *Order, actor auth.Actor) bool {
	if a&allowAdmin != 0 && actor.IsAdmin() {
		return true
	}
	return a&allowOwner != 0 && actor.Owns(o.CustomerID)
}

func knownEvent(e Event) bool {
	for k := range rules {
		if k.event == e {
			return true
		}
	}
	return false
}
