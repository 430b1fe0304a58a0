// Package paystack verifies and parses Paystack webhook deliveries.
package paystack

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	paymentdomain "github.com/smallbiznis/payoutd/internal/payment/domain"
)

const ProviderName = "paystack"

// SignatureHeader carries the hex HMAC-SHA512 of the raw body.
const SignatureHeader = "x-paystack-signature"

type Adapter struct {
	secretKey []byte
}

func NewAdapter(secretKey string) *Adapter {
	return &Adapter{secretKey: []byte(strings.TrimSpace(secretKey))}
}

func (a *Adapter) Provider() string {
	return ProviderName
}

func (a *Adapter) Verify(payload []byte, signature string) bool {
	signature = strings.TrimSpace(signature)
	if len(a.secretKey) == 0 || signature == "" {
		return false
	}
	given, err := hex.DecodeString(strings.ToLower(signature))
	if err != nil {
		return false
	}
	return hmac.Equal(given, Sign(a.secretKey, payload))
}

// Sign returns the raw HMAC-SHA512 digest Paystack sends hex encoded.
func Sign(secretKey, payload []byte) []byte {
	mac := hmac.New(sha512.New, secretKey)
	_, _ = mac.Write(payload)
	return mac.Sum(nil)
}

func (a *Adapter) Parse(payload []byte) (*paymentdomain.Event, error) {
	var envelope paystackEvent
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	name := strings.TrimSpace(envelope.Event)
	if name == "" || len(envelope.Data) == 0 {
		return nil, paymentdomain.ErrInvalidEvent
	}

	kind := paymentdomain.EventKind(name)
	payloadType, ok := kind.PayloadType()
	if !ok {
		return nil, paymentdomain.ErrEventIgnored
	}

	event := &paymentdomain.Event{
		Provider: ProviderName,
		Kind:     kind,
	}

	var dataID json.RawMessage
	switch payloadType {
	case paymentdomain.PayloadCharge:
		var data chargeData
		if err := json.Unmarshal(envelope.Data, &data); err != nil {
			return nil, paymentdomain.ErrInvalidPayload
		}
		charge, err := data.toDomain()
		if err != nil {
			return nil, err
		}
		event.Charge = charge
		dataID = data.ID
	case paymentdomain.PayloadSubscription:
		var data subscriptionData
		if err := json.Unmarshal(envelope.Data, &data); err != nil {
			return nil, paymentdomain.ErrInvalidPayload
		}
		if strings.TrimSpace(data.SubscriptionCode) == "" {
			return nil, paymentdomain.ErrInvalidEvent
		}
		event.Subscription = &paymentdomain.Subscription{
			SubscriptionCode: strings.TrimSpace(data.SubscriptionCode),
			PlanCode:         strings.TrimSpace(data.Plan.PlanCode),
			Status:           strings.TrimSpace(data.Status),
			Customer:         data.Customer.toDomain(),
		}
		dataID = data.ID
	case paymentdomain.PayloadTransfer:
		var data transferData
		if err := json.Unmarshal(envelope.Data, &data); err != nil {
			return nil, paymentdomain.ErrInvalidPayload
		}
		if strings.TrimSpace(data.Reference) == "" {
			return nil, paymentdomain.ErrInvalidEvent
		}
		event.Transfer = &paymentdomain.Transfer{
			Reference:       strings.TrimSpace(data.Reference),
			TransferCode:    strings.TrimSpace(data.TransferCode),
			Status:          strings.TrimSpace(data.Status),
			Amount:          data.Amount,
			GatewayResponse: strings.TrimSpace(data.GatewayResponse),
		}
		dataID = data.ID
	}

	event.ID = eventID(name, dataID, payload)
	return event, nil
}

// eventID derives a stable delivery key. Paystack sends no envelope id, so
// the event name plus data.id is used, falling back to a body digest.
func eventID(name string, dataID json.RawMessage, payload []byte) string {
	id := strings.Trim(string(bytes.TrimSpace(dataID)), `"`)
	if id != "" && id != "null" {
		return name + ":" + id
	}
	sum := sha256.Sum256(payload)
	return name + ":" + hex.EncodeToString(sum[:])
}

type paystackEvent struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type customerData struct {
	CustomerCode string `json:"customer_code"`
	Email        string `json:"email"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
}

func (c customerData) toDomain() paymentdomain.Customer {
	return paymentdomain.Customer{
		CustomerCode: strings.TrimSpace(c.CustomerCode),
		Email:        strings.ToLower(strings.TrimSpace(c.Email)),
		FirstName:    strings.TrimSpace(c.FirstName),
		LastName:     strings.TrimSpace(c.LastName),
	}
}

type chargeData struct {
	ID        json.RawMessage `json:"id"`
	Reference string          `json:"reference"`
	Amount    int64           `json:"amount"`
	Currency  string          `json:"currency"`
	Metadata  json.RawMessage `json:"metadata"`
	Customer  customerData    `json:"customer"`
}

// purchaseMetadata is written by the marketplace checkout into the
// transaction metadata.
type purchaseMetadata struct {
	Purchase *struct {
		Items []purchaseItem `json:"items"`
	} `json:"purchase"`
}

type purchaseItem struct {
	SellerID  flexString `json:"seller_id"`
	ProductID flexString `json:"product_id"`
	Amount    int64      `json:"amount"`
}

func (d chargeData) toDomain() (*paymentdomain.Charge, error) {
	reference := strings.TrimSpace(d.Reference)
	if reference == "" {
		return nil, paymentdomain.ErrInvalidEvent
	}
	charge := &paymentdomain.Charge{
		Reference: reference,
		Amount:    d.Amount,
		Currency:  strings.ToUpper(strings.TrimSpace(d.Currency)),
		Customer:  d.Customer.toDomain(),
	}

	meta := bytes.TrimSpace(d.Metadata)
	if len(meta) == 0 || meta[0] != '{' {
		// Paystack sends "" or null when no metadata was attached.
		return charge, nil
	}
	var parsed purchaseMetadata
	if err := json.Unmarshal(meta, &parsed); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	if parsed.Purchase == nil {
		return charge, nil
	}
	if len(parsed.Purchase.Items) == 0 {
		return nil, paymentdomain.ErrInvalidPayload
	}
	charge.Purchase = make([]paymentdomain.PurchaseLine, 0, len(parsed.Purchase.Items))
	for _, item := range parsed.Purchase.Items {
		charge.Purchase = append(charge.Purchase, paymentdomain.PurchaseLine{
			SellerID:  string(item.SellerID),
			ProductID: string(item.ProductID),
			Amount:    item.Amount,
		})
	}
	return charge, nil
}

type subscriptionData struct {
	ID               json.RawMessage `json:"id"`
	SubscriptionCode string          `json:"subscription_code"`
	Status           string          `json:"status"`
	Plan             struct {
		PlanCode string `json:"plan_code"`
	} `json:"plan"`
	Customer customerData `json:"customer"`
}

type transferData struct {
	ID              json.RawMessage `json:"id"`
	Reference       string          `json:"reference"`
	TransferCode    string          `json:"transfer_code"`
	Status          string          `json:"status"`
	Amount          int64           `json:"amount"`
	GatewayResponse string          `json:"gateway_response"`
}

// flexString accepts a JSON string or integer.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("expected string or number: %w", err)
	}
	if _, err := strconv.ParseInt(n.String(), 10, 64); err != nil {
		return fmt.Errorf("expected integer id: %w", err)
	}
	*f = flexString(n.String())
	return nil
}
