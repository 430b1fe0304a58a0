package domain

import "fmt"

// EventKind names a provider event this service reacts to.
type EventKind string

const (
	EventKindChargeSuccess        EventKind = "charge.success"
	EventKindSubscriptionCreate   EventKind = "subscription.create"
	EventKindSubscriptionNotRenew EventKind = "subscription.not_renew"
	EventKindSubscriptionUpdate   EventKind = "subscription.update"
	EventKindSubscriptionDisable  EventKind = "subscription.disable"
	EventKindTransferSuccess      EventKind = "transfer.success"
	EventKindTransferFailed       EventKind = "transfer.failed"
	EventKindTransferReversed     EventKind = "transfer.reversed"
)

// EventKinds lists every kind the parser can produce.
func EventKinds() []EventKind {
	return []EventKind{
		EventKindChargeSuccess,
		EventKindSubscriptionCreate,
		EventKindSubscriptionNotRenew,
		EventKindSubscriptionUpdate,
		EventKindSubscriptionDisable,
		EventKindTransferSuccess,
		EventKindTransferFailed,
		EventKindTransferReversed,
	}
}

// PayloadType is the shape of the data carried by an event kind.
type PayloadType string

const (
	PayloadCharge       PayloadType = "charge"
	PayloadSubscription PayloadType = "subscription"
	PayloadTransfer     PayloadType = "transfer"
)

func (k EventKind) PayloadType() (PayloadType, bool) {
	switch k {
	case EventKindChargeSuccess:
		return PayloadCharge, true
	case EventKindSubscriptionCreate, EventKindSubscriptionNotRenew,
		EventKindSubscriptionUpdate, EventKindSubscriptionDisable:
		return PayloadSubscription, true
	case EventKindTransferSuccess, EventKindTransferFailed, EventKindTransferReversed:
		return PayloadTransfer, true
	}
	return "", false
}

type Customer struct {
	CustomerCode string
	Email        string
	FirstName    string
	LastName     string
}

type PurchaseLine struct {
	SellerID  string
	ProductID string
	Amount    int64
}

// Charge is a successful payment. Purchase is nil for charges that are not
// marketplace purchases, such as subscription renewals.
type Charge struct {
	Reference string
	Amount    int64
	Currency  string
	Customer  Customer
	Purchase  []PurchaseLine
}

type Subscription struct {
	SubscriptionCode string
	PlanCode         string
	Status           string
	Customer         Customer
}

type Transfer struct {
	Reference       string
	TransferCode    string
	Status          string
	Amount          int64
	GatewayResponse string
}

// Event is a parsed provider event. Exactly one payload field is set and it
// must match Kind; the accessors panic with *ModelMismatchError otherwise.
type Event struct {
	ID           string
	Provider     string
	Kind         EventKind
	Charge       *Charge
	Subscription *Subscription
	Transfer     *Transfer
}

func (e *Event) ChargeData() *Charge {
	e.mustBe(PayloadCharge, e.Charge != nil)
	return e.Charge
}

func (e *Event) SubscriptionData() *Subscription {
	e.mustBe(PayloadSubscription, e.Subscription != nil)
	return e.Subscription
}

func (e *Event) TransferData() *Transfer {
	e.mustBe(PayloadTransfer, e.Transfer != nil)
	return e.Transfer
}

func (e *Event) mustBe(want PayloadType, present bool) {
	got, _ := e.Kind.PayloadType()
	if got != want || !present {
		panic(&ModelMismatchError{Kind: e.Kind, Requested: want})
	}
}

// ModelMismatchError reports a payload accessed through the wrong event
// kind. It signals a programming error and is raised as a panic.
type ModelMismatchError struct {
	Kind      EventKind
	Requested PayloadType
}

func (e *ModelMismatchError) Error() string {
	return fmt.Sprintf("event %s does not carry a %s payload", e.Kind, e.Requested)
}
