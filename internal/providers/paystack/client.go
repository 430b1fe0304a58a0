// Package paystack implements the payment gateway contract against the
// Paystack REST API.
package paystack

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/smallbiznis/payoutd/internal/config"
	"github.com/smallbiznis/payoutd/internal/observability/metrics"
	gateway "github.com/smallbiznis/payoutd/internal/providers/payment/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	DefaultBaseURL = "https://api.paystack.co"
	maxBodyBytes   = 1 << 20
)

type Params struct {
	fx.In

	Cfg     config.Config
	Log     *zap.Logger
	Metrics *metrics.Metrics `optional:"true"`
}

type Client struct {
	baseURL     string
	secretKey   string
	callbackURL string
	httpClient  *http.Client
	log         *zap.Logger
	metrics     *metrics.Metrics
	tracer      trace.Tracer
}

func New(p Params) gateway.Gateway {
	return NewClient(p.Cfg.Paystack, &http.Client{Timeout: p.Cfg.Paystack.Timeout}, p.Log, p.Metrics)
}

func NewClient(cfg config.PaystackConfig, httpClient *http.Client, log *zap.Logger, m *metrics.Metrics) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		baseURL:     baseURL,
		secretKey:   cfg.SecretKey,
		callbackURL: cfg.CallbackURL,
		httpClient:  httpClient,
		log:         log.Named("paystack.client"),
		metrics:     m,
		tracer:      otel.Tracer("payoutd/paystack"),
	}
}

type envelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (c *Client) CreateCustomer(ctx context.Context, req gateway.CreateCustomerRequest) (*gateway.Customer, error) {
	body := map[string]any{
		"email":      req.Email,
		"first_name": req.FirstName,
		"last_name":  req.LastName,
	}
	var data struct {
		CustomerCode string `json:"customer_code"`
		Email        string `json:"email"`
	}
	if err := c.do(ctx, "create_customer", http.MethodPost, "/customer", body, &data); err != nil {
		return nil, err
	}
	if data.CustomerCode == "" {
		return nil, &gateway.ProviderError{Operation: "create_customer", Message: "missing customer_code"}
	}
	return &gateway.Customer{CustomerCode: data.CustomerCode, Email: data.Email}, nil
}

func (c *Client) InitializeTransaction(ctx context.Context, req gateway.InitializeTransactionRequest) (*gateway.TransactionInit, error) {
	callback := req.CallbackURL
	if callback == "" {
		callback = c.callbackURL
	}
	body := map[string]any{
		"email":  req.Email,
		"amount": req.Amount,
	}
	if req.PlanCode != "" {
		body["plan"] = req.PlanCode
	}
	if callback != "" {
		body["callback_url"] = callback
	}
	if req.Reference != "" {
		body["reference"] = req.Reference
	}
	if len(req.Metadata) > 0 {
		body["metadata"] = req.Metadata
	}

	var data struct {
		AuthorizationURL string `json:"authorization_url"`
		AccessCode       string `json:"access_code"`
		Reference        string `json:"reference"`
	}
	if err := c.do(ctx, "initialize_transaction", http.MethodPost, "/transaction/initialize", body, &data); err != nil {
		return nil, err
	}
	return &gateway.TransactionInit{
		AuthorizationURL: data.AuthorizationURL,
		AccessCode:       data.AccessCode,
		Reference:        data.Reference,
	}, nil
}

func (c *Client) CreateTransferRecipient(ctx context.Context, req gateway.CreateRecipientRequest) (*gateway.Recipient, error) {
	body := map[string]any{
		"type":           "nuban",
		"name":           req.Name,
		"account_number": req.AccountNumber,
		"bank_code":      req.BankCode,
		"currency":       req.Currency,
	}
	var data struct {
		RecipientCode string `json:"recipient_code"`
		Name          string `json:"name"`
		Details       struct {
			AccountName string `json:"account_name"`
			BankName    string `json:"bank_name"`
		} `json:"details"`
	}
	if err := c.do(ctx, "create_transfer_recipient", http.MethodPost, "/transferrecipient", body, &data); err != nil {
		return nil, err
	}
	if data.RecipientCode == "" {
		return nil, &gateway.ProviderError{Operation: "create_transfer_recipient", Message: "missing recipient_code"}
	}
	accountName := data.Details.AccountName
	if accountName == "" {
		accountName = data.Name
	}
	return &gateway.Recipient{
		RecipientCode: data.RecipientCode,
		BankName:      data.Details.BankName,
		AccountName:   accountName,
	}, nil
}

func (c *Client) InitiateTransfer(ctx context.Context, req gateway.InitiateTransferRequest) (*gateway.Transfer, error) {
	body := map[string]any{
		"source":    "balance",
		"amount":    req.Amount,
		"recipient": req.RecipientCode,
		"reference": req.Reference,
		"reason":    req.Reason,
	}
	if req.Currency != "" {
		body["currency"] = req.Currency
	}
	var data struct {
		TransferCode string `json:"transfer_code"`
		Reference    string `json:"reference"`
		Status       string `json:"status"`
	}
	if err := c.do(ctx, "initiate_transfer", http.MethodPost, "/transfer", body, &data); err != nil {
		return nil, err
	}
	return &gateway.Transfer{
		TransferCode: data.TransferCode,
		Reference:    data.Reference,
		Status:       data.Status,
	}, nil
}

func (c *Client) ListSubscriptions(ctx context.Context, customerCode string) ([]gateway.Subscription, error) {
	path := "/subscription?customer=" + url.QueryEscape(customerCode)
	var data []struct {
		SubscriptionCode string `json:"subscription_code"`
		Status           string `json:"status"`
		Plan             struct {
			PlanCode string `json:"plan_code"`
		} `json:"plan"`
		Customer struct {
			CustomerCode string `json:"customer_code"`
		} `json:"customer"`
	}
	if err := c.do(ctx, "list_subscriptions", http.MethodGet, path, nil, &data); err != nil {
		return nil, err
	}

	out := make([]gateway.Subscription, 0, len(data))
	for _, item := range data {
		code := item.Customer.CustomerCode
		if code == "" {
			code = customerCode
		}
		out = append(out, gateway.Subscription{
			SubscriptionCode: item.SubscriptionCode,
			PlanCode:         item.Plan.PlanCode,
			Status:           item.Status,
			CustomerCode:     code,
		})
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, operation, method, path string, body any, out any) (err error) {
	ctx, span := c.tracer.Start(ctx, "paystack."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("http.method", method)),
	)
	start := time.Now()
	defer func() {
		elapsed := time.Since(start)
		c.metrics.RecordProviderCall(ctx, operation, elapsed, err)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			c.log.Warn("provider call failed",
				zap.String("operation", operation),
				zap.Duration("elapsed", elapsed),
				zap.Error(err),
			)
		}
		span.End()
	}()

	var reader io.Reader
	if body != nil {
		raw, marshalErr := json.Marshal(body)
		if marshalErr != nil {
			return &gateway.ProviderError{Operation: operation, Err: marshalErr}
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return &gateway.ProviderError{Operation: operation, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &gateway.ProviderError{Operation: operation, Err: err}
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return &gateway.ProviderError{Operation: operation, StatusCode: resp.StatusCode, Err: err}
	}

	var env envelope
	if decodeErr := json.Unmarshal(raw, &env); decodeErr != nil {
		return &gateway.ProviderError{
			Operation:  operation,
			StatusCode: resp.StatusCode,
			Message:    "malformed response",
			Err:        decodeErr,
		}
	}
	if resp.StatusCode >= http.StatusBadRequest || !env.Status {
		return &gateway.ProviderError{
			Operation:  operation,
			StatusCode: resp.StatusCode,
			Message:    env.Message,
		}
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return &gateway.ProviderError{
			Operation:  operation,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("decode %s data", operation),
			Err:        err,
		}
	}
	return nil
}

// IsTimeout reports whether err came from a deadline or client timeout.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr interface{ Timeout() bool }
	return errors.As(err, &netErr) && netErr.Timeout()
}
