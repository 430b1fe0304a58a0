package paystack

import (
	"encoding/hex"
	"testing"

	paymentdomain "github.com/smallbiznis/payoutd/internal/payment/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerify(t *testing.T) {
	adapter := NewAdapter("sk_test_secret")
	body := []byte(`{"event":"transfer.success","data":{"id":1,"reference":"po_1"}}`)
	signature := hex.EncodeToString(Sign([]byte("sk_test_secret"), body))

	assert.True(t, adapter.Verify(body, signature))
	assert.True(t, adapter.Verify(body, "  "+signature+" "))
	assert.False(t, adapter.Verify(body, hex.EncodeToString(Sign([]byte("other"), body))))
	assert.False(t, adapter.Verify(append(body, ' '), signature))
	assert.False(t, adapter.Verify(body, "not-hex"))
	assert.False(t, adapter.Verify(body, ""))
	assert.False(t, NewAdapter("").Verify(body, signature))
}

func TestParseChargeWithPurchase(t *testing.T) {
	body := []byte(`{
		"event": "charge.success",
		"data": {
			"id": 302961,
			"reference": "T-ref-1",
			"amount": 9500,
			"currency": "ngn",
			"metadata": {"purchase": {"items": [
				{"seller_id": "1620000000000000001", "product_id": "ebook-1", "amount": 2500},
				{"seller_id": 1620000000000000002, "product_id": 77, "amount": 7000}
			]}},
			"customer": {"email": "Buyer@Example.com", "customer_code": "CUS_b", "first_name": "Grace"}
		}
	}`)

	event, err := NewAdapter("k").Parse(body)
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.EventKindChargeSuccess, event.Kind)
	assert.Equal(t, "charge.success:302961", event.ID)

	charge := event.ChargeData()
	assert.Equal(t, "NGN", charge.Currency)
	assert.Equal(t, "buyer@example.com", charge.Customer.Email)
	require.Len(t, charge.Purchase, 2)
	assert.Equal(t, "1620000000000000002", charge.Purchase[1].SellerID)
	assert.Equal(t, "77", charge.Purchase[1].ProductID)
	assert.Equal(t, int64(7000), charge.Purchase[1].Amount)
}

func TestParseChargeWithoutPurchase(t *testing.T) {
	for _, meta := range []string{`""`, `null`, `{"plan":"PLN_x"}`} {
		body := []byte(`{"event":"charge.success","data":{"id":5,"reference":"r","amount":100,"metadata":` + meta + `}}`)
		event, err := NewAdapter("k").Parse(body)
		require.NoError(t, err, meta)
		assert.Nil(t, event.ChargeData().Purchase, meta)
	}
}

func TestParseSubscriptionAndTransfer(t *testing.T) {
	sub, err := NewAdapter("k").Parse([]byte(`{"event":"subscription.create","data":{
		"id": 9, "subscription_code": "SUB_1", "status": "active",
		"plan": {"plan_code": "PLN_premium"}, "customer": {"customer_code": "CUS_1"}}}`))
	require.NoError(t, err)
	assert.Equal(t, "SUB_1", sub.SubscriptionData().SubscriptionCode)
	assert.Equal(t, "PLN_premium", sub.SubscriptionData().PlanCode)
	assert.Equal(t, "CUS_1", sub.SubscriptionData().Customer.CustomerCode)

	transfer, err := NewAdapter("k").Parse([]byte(`{"event":"transfer.reversed","data":{
		"id": 11, "reference": "po_abc", "transfer_code": "TRF_1", "status": "reversed", "amount": 5000}}`))
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.EventKindTransferReversed, transfer.Kind)
	assert.Equal(t, "po_abc", transfer.TransferData().Reference)
	assert.Equal(t, "transfer.reversed:11", transfer.ID)
}

func TestParseRejects(t *testing.T) {
	adapter := NewAdapter("k")

	_, err := adapter.Parse([]byte(`not json`))
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidPayload)

	_, err = adapter.Parse([]byte(`{"event":"invoice.create","data":{"id":1}}`))
	assert.ErrorIs(t, err, paymentdomain.ErrEventIgnored)

	_, err = adapter.Parse([]byte(`{"event":"transfer.success","data":{"id":1}}`))
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidEvent)

	_, err = adapter.Parse([]byte(`{"event":"charge.success","data":{"reference":"r","metadata":{"purchase":{"items":[]}}}}`))
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidPayload)
}

func TestEventIDFallsBackToDigest(t *testing.T) {
	body := []byte(`{"event":"transfer.failed","data":{"reference":"po_1"}}`)
	first, err := NewAdapter("k").Parse(body)
	require.NoError(t, err)
	second, err := NewAdapter("k").Parse(body)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, first.ID, len("transfer.failed:")+64)
}

func TestAccessorPanicsOnMismatch(t *testing.T) {
	event, err := NewAdapter("k").Parse([]byte(`{"event":"transfer.success","data":{"id":1,"reference":"po_1"}}`))
	require.NoError(t, err)

	defer func() {
		r := recover()
		mismatch, ok := r.(*paymentdomain.ModelMismatchError)
		require.True(t, ok)
		assert.Equal(t, paymentdomain.PayloadCharge, mismatch.Requested)
	}()
	event.ChargeData()
}
