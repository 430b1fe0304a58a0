package service

import (
	"context"
	"errors"
	"testing"

	orderdomain "github.com/smallbiznis/payoutd/internal/order/domain"
	paymentdomain "github.com/smallbiznis/payoutd/internal/payment/domain"
	payoutdomain "github.com/smallbiznis/payoutd/internal/payout/domain"
	subscriptiondomain "github.com/smallbiznis/payoutd/internal/subscription/domain"
	"github.com/smallbiznis/payoutd/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubOrders struct {
	orderdomain.Service
	calls []orderdomain.PurchaseRequest
}

func (s *stubOrders) RecordPurchase(ctx context.Context, req orderdomain.PurchaseRequest) (*orderdomain.PurchaseResult, error) {
	s.calls = append(s.calls, req)
	return &orderdomain.PurchaseResult{}, nil
}

type stubSubscriptions struct {
	subscriptiondomain.Service
	calls []string
}

func (s *stubSubscriptions) Activate(ctx context.Context, req subscriptiondomain.ActivateRequest) (*subscriptiondomain.Subscription, error) {
	s.calls = append(s.calls, "activate:"+req.SubscriptionCode)
	return &subscriptiondomain.Subscription{}, nil
}

func (s *stubSubscriptions) UpdateStatus(ctx context.Context, req subscriptiondomain.UpdateStatusRequest) (*subscriptiondomain.Subscription, error) {
	s.calls = append(s.calls, "update:"+req.ProviderStatus)
	return &subscriptiondomain.Subscription{}, nil
}

func (s *stubSubscriptions) Disable(ctx context.Context, req subscriptiondomain.DisableRequest) (*subscriptiondomain.Subscription, error) {
	s.calls = append(s.calls, "disable:"+req.SubscriptionCode)
	return &subscriptiondomain.Subscription{}, nil
}

type stubPayouts struct {
	payoutdomain.Service
	calls []payoutdomain.SettleRequest
}

func (s *stubPayouts) Settle(ctx context.Context, req payoutdomain.SettleRequest) (*payoutdomain.SettleResult, error) {
	s.calls = append(s.calls, req)
	return &payoutdomain.SettleResult{Applied: true}, nil
}

func sampleEvent(kind paymentdomain.EventKind) *paymentdomain.Event {
	event := &paymentdomain.Event{ID: string(kind) + ":1", Provider: "paystack", Kind: kind}
	payloadType, _ := kind.PayloadType()
	switch payloadType {
	case paymentdomain.PayloadCharge:
		event.Charge = &paymentdomain.Charge{
			Reference: "T-1",
			Customer:  paymentdomain.Customer{Email: "buyer@example.com"},
			Purchase:  []paymentdomain.PurchaseLine{{SellerID: "1620000000000000001", ProductID: "p", Amount: 100}},
		}
	case paymentdomain.PayloadSubscription:
		event.Subscription = &paymentdomain.Subscription{SubscriptionCode: "SUB_1", Status: "active"}
	case paymentdomain.PayloadTransfer:
		event.Transfer = &paymentdomain.Transfer{Reference: "po_1"}
	}
	return event
}

func TestDispatchCoversEveryKind(t *testing.T) {
	orders := &stubOrders{}
	subs := &stubSubscriptions{}
	payouts := &stubPayouts{}
	svc := &Service{
		log:             testutil.Logger(),
		orderSvc:        orders,
		subscriptionSvc: subs,
		payoutSvc:       payouts,
	}

	for _, kind := range paymentdomain.EventKinds() {
		_, ok := kind.PayloadType()
		require.True(t, ok, "kind %s has no payload type", kind)

		err := svc.dispatch(context.Background(), sampleEvent(kind))
		assert.False(t, errors.Is(err, paymentdomain.ErrUnhandledEvent), "kind %s is not dispatched", kind)
		assert.NoError(t, err, kind)
	}

	assert.Len(t, orders.calls, 1)
	assert.Equal(t, []string{"activate:SUB_1", "update:active", "update:active", "disable:SUB_1"}, subs.calls)
	require.Len(t, payouts.calls, 3)
	assert.Equal(t, payoutdomain.StatusCompleted, payouts.calls[0].Outcome)
	assert.Equal(t, payoutdomain.StatusFailed, payouts.calls[1].Outcome)
	assert.Equal(t, payoutdomain.StatusReversed, payouts.calls[2].Outcome)
	assert.Equal(t, "transfer failed", payouts.calls[1].Reason)
}

func TestDispatchUnknownKind(t *testing.T) {
	svc := &Service{log: testutil.Logger()}
	err := svc.dispatch(context.Background(), &paymentdomain.Event{Kind: "refund.processed"})
	assert.ErrorIs(t, err, paymentdomain.ErrUnhandledEvent)
}

func TestDispatchMismatchedPayloadPanics(t *testing.T) {
	svc := &Service{log: testutil.Logger(), payoutSvc: &stubPayouts{}}
	event := &paymentdomain.Event{Kind: paymentdomain.EventKindTransferSuccess, Charge: &paymentdomain.Charge{}}

	assert.PanicsWithError(t, (&paymentdomain.ModelMismatchError{
		Kind:      paymentdomain.EventKindTransferSuccess,
		Requested: paymentdomain.PayloadTransfer,
	}).Error(), func() {
		_ = svc.dispatch(context.Background(), event)
	})
}

func TestChargeWithBadSellerID(t *testing.T) {
	svc := &Service{log: testutil.Logger(), orderSvc: &stubOrders{}}
	event := sampleEvent(paymentdomain.EventKindChargeSuccess)
	event.Charge.Purchase[0].SellerID = "abc"

	err := svc.dispatch(context.Background(), event)
	assert.ErrorIs(t, err, orderdomain.ErrInvalidSeller)
}
